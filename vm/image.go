package vm

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Program images
// ---------------------------------------------------------------------------

const (
	imageMagic   = "EMBC"
	imageVersion = 1
)

// ErrBadImage is returned for data that is not a program image.
var ErrBadImage = errors.New("vm: not an ember program image")

var imageEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	imageEncMode = em
}

type imageFile struct {
	Magic     string         `cbor:"1,keyasint"`
	Version   int            `cbor:"2,keyasint"`
	Constants []imageValue   `cbor:"3,keyasint"`
	Functions []imageFunc    `cbor:"4,keyasint"`
	Named     map[string]int `cbor:"5,keyasint,omitempty"`
}

type imageValue struct {
	Kind Kind    `cbor:"1,keyasint"`
	Int  int64   `cbor:"2,keyasint,omitempty"`
	Num  float64 `cbor:"3,keyasint,omitempty"`
	Str  string  `cbor:"4,keyasint,omitempty"`
}

type imageFunc struct {
	Name     string       `cbor:"1,keyasint,omitempty"`
	Code     []int64      `cbor:"2,keyasint"` // op<<32 | uint32(arg)
	Params   []imageParam `cbor:"3,keyasint,omitempty"`
	Locals   []imageLocal `cbor:"4,keyasint,omitempty"`
	Lines    [][2]int     `cbor:"5,keyasint,omitempty"`
	Arrow    bool         `cbor:"6,keyasint,omitempty"`
	ThisFrom int          `cbor:"7,keyasint,omitempty"`
}

type imageParam struct {
	Name    string      `cbor:"1,keyasint"`
	Default *imageValue `cbor:"2,keyasint,omitempty"`
}

type imageLocal struct {
	Name  string  `cbor:"1,keyasint"`
	Kind  VarKind `cbor:"2,keyasint"`
	Depth int     `cbor:"3,keyasint,omitempty"`
}

// EncodeProgram serializes prog to a canonical CBOR image. Only primitive
// constants can be encoded, which is all the compiler produces.
func EncodeProgram(prog *Program) ([]byte, error) {
	img := imageFile{
		Magic:     imageMagic,
		Version:   imageVersion,
		Constants: make([]imageValue, len(prog.Constants)),
		Functions: make([]imageFunc, len(prog.Functions)),
		Named:     prog.Named,
	}
	for i, c := range prog.Constants {
		v, err := encodeValue(c)
		if err != nil {
			return nil, fmt.Errorf("vm: encode constant %d: %w", i, err)
		}
		img.Constants[i] = v
	}
	for i, fn := range prog.Functions {
		f := imageFunc{
			Name:     fn.Name,
			Code:     make([]int64, len(fn.Code)),
			Arrow:    fn.Arrow,
			ThisFrom: fn.ThisFrom,
		}
		for j, in := range fn.Code {
			f.Code[j] = int64(in.Op)<<32 | int64(uint32(in.Arg))
		}
		for _, p := range fn.Params {
			ip := imageParam{Name: p.Name}
			if p.HasDefault {
				d, err := encodeValue(p.Default)
				if err != nil {
					return nil, fmt.Errorf("vm: encode default of %s: %w", p.Name, err)
				}
				ip.Default = &d
			}
			f.Params = append(f.Params, ip)
		}
		for _, lv := range fn.Locals {
			f.Locals = append(f.Locals, imageLocal{Name: lv.Name, Kind: lv.Kind, Depth: lv.Depth})
		}
		for _, le := range fn.Lines {
			f.Lines = append(f.Lines, [2]int{le.Start, le.Line})
		}
		img.Functions[i] = f
	}
	return imageEncMode.Marshal(&img)
}

// DecodeProgram reads an image written by EncodeProgram.
func DecodeProgram(data []byte) (*Program, error) {
	var img imageFile
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("vm: unmarshal image: %w", err)
	}
	if img.Magic != imageMagic {
		return nil, ErrBadImage
	}
	if img.Version != imageVersion {
		return nil, fmt.Errorf("vm: unsupported image version %d", img.Version)
	}
	if len(img.Functions) == 0 {
		return nil, fmt.Errorf("%w: no functions", ErrBadImage)
	}

	prog := &Program{
		Constants: make([]Value, len(img.Constants)),
		Functions: make([]*Function, len(img.Functions)),
		Named:     img.Named,
	}
	if prog.Named == nil {
		prog.Named = make(map[string]int)
	}
	for i, c := range img.Constants {
		v, err := decodeValue(c)
		if err != nil {
			return nil, fmt.Errorf("vm: decode constant %d: %w", i, err)
		}
		prog.Constants[i] = v
	}
	for i, f := range img.Functions {
		fn := &Function{
			Index:    i,
			Name:     f.Name,
			Code:     make([]Instruction, len(f.Code)),
			Arrow:    f.Arrow,
			ThisFrom: f.ThisFrom,
		}
		for j, word := range f.Code {
			fn.Code[j] = Instruction{Op: Opcode(word >> 32), Arg: int32(uint32(word))}
		}
		for _, p := range f.Params {
			param := Param{Name: p.Name}
			if p.Default != nil {
				d, err := decodeValue(*p.Default)
				if err != nil {
					return nil, fmt.Errorf("vm: decode default of %s: %w", p.Name, err)
				}
				param.Default, param.HasDefault = d, true
			}
			fn.Params = append(fn.Params, param)
		}
		for slot, lv := range f.Locals {
			fn.Locals = append(fn.Locals, LocalVar{Slot: slot, Name: lv.Name, Kind: lv.Kind, Depth: lv.Depth})
		}
		for _, le := range f.Lines {
			fn.Lines = append(fn.Lines, LineEntry{Start: le[0], Line: le[1]})
		}
		prog.Functions[i] = fn
	}
	for _, fn := range prog.Functions {
		if err := validate(prog, fn); err != nil {
			return nil, err
		}
	}
	for name, idx := range prog.Named {
		if idx <= 0 || idx >= len(prog.Functions) {
			return nil, fmt.Errorf("%w: function %s has index %d", ErrBadImage, name, idx)
		}
	}
	return prog, nil
}

// validate rejects functions whose operands index outside the program or
// whose code can pop below its frame's stack base.
func validate(prog *Program, fn *Function) error {
	nconst, nfunc := len(prog.Constants), len(prog.Functions)
	if len(fn.Params) > len(fn.Locals) {
		return fmt.Errorf("%w: %s has %d params but %d locals", ErrBadImage, fn.DisplayName(), len(fn.Params), len(fn.Locals))
	}
	if fn.Arrow && (fn.ThisFrom < 0 || fn.ThisFrom >= nfunc) {
		return fmt.Errorf("%w: %s takes this from function %d", ErrBadImage, fn.DisplayName(), fn.ThisFrom)
	}
	for ip, in := range fn.Code {
		arg := int(in.Arg)
		bad := false
		switch in.Op.Info().Operand {
		case OperandConst:
			bad = arg < 0 || arg >= nconst
			if !bad && namesConstant(in.Op) {
				bad = prog.Constants[arg].kind != KindString
			}
		case OperandSlot:
			bad = arg < 0 || arg >= len(fn.Locals)
		case OperandParent:
			pf, slot := SplitParentRef(in.Arg)
			bad = arg < 0 || pf >= nfunc || slot >= len(prog.Functions[pf].Locals)
		case OperandFunc:
			bad = arg <= 0 || arg >= nfunc
		case OperandTarget:
			bad = arg < 0 || arg > len(fn.Code)
		case OperandCount, OperandInt:
			bad = in.Op != OpInt && arg < 0
		}
		if _, known := opcodeTable[in.Op]; !known || bad {
			return fmt.Errorf("%w: bad instruction %s at %s:%d", ErrBadImage, in, fn.DisplayName(), ip)
		}
	}
	return checkStack(fn)
}

// namesConstant reports whether op reads its constant as a name.
func namesConstant(op Opcode) bool {
	switch op {
	case OpGetProp, OpSetProp, OpLoadGlobal, OpStoreGlobal, OpTypeofName:
		return true
	}
	return false
}

// stackUse returns how many values op needs above the frame's stack base
// and its net effect on the stack height.
func stackUse(in Instruction) (need, effect int) {
	n := int(in.Arg)
	switch in.Op {
	case OpInsert:
		return n + 1, 0
	case OpCall:
		return n + 1, -n
	case OpMakeArray:
		return n, 1 - n
	case OpMakeObject:
		return 2 * n, 1 - 2*n
	case OpJumpIfFalseKeep, OpJumpIfTrueKeep:
		return 1, -1 // fallthrough pops; the jump edge keeps the value
	case OpDup:
		return 1, 1
	case OpDup2:
		return 2, 2
	case OpPop, OpJumpIfFalse, OpJumpIfTrue, OpReturn,
		OpStoreLocal, OpStoreParent, OpStoreGlobal, OpGetProp, OpUnbind,
		OpNeg, OpToNumber, OpNot, OpBitNot, OpTypeof:
		return 1, in.Op.Info().StackEffect
	case OpSetIndex:
		return 3, -2
	}
	effect = in.Op.Info().StackEffect
	if effect < 0 {
		return 1 - effect, effect
	}
	return 0, effect
}

// checkStack walks every reachable instruction keeping the lowest stack
// height seen there, and fails when an instruction would underflow.
func checkStack(fn *Function) error {
	low := make([]int, len(fn.Code))
	for i := range low {
		low[i] = -1
	}
	type state struct{ ip, height int }
	work := []state{{0, 0}}
	for len(work) > 0 {
		st := work[len(work)-1]
		work = work[:len(work)-1]
		if st.ip >= len(fn.Code) || (low[st.ip] >= 0 && low[st.ip] <= st.height) {
			continue
		}
		low[st.ip] = st.height
		in := fn.Code[st.ip]
		need, effect := stackUse(in)
		if st.height < need {
			return fmt.Errorf("%w: stack underflow at %s:%d (%s)", ErrBadImage, fn.DisplayName(), st.ip, in)
		}
		next := st.height + effect
		switch in.Op {
		case OpReturn:
		case OpJump:
			work = append(work, state{int(in.Arg), st.height})
		case OpJumpIfFalseKeep, OpJumpIfTrueKeep:
			work = append(work, state{int(in.Arg), st.height}, state{st.ip + 1, next})
		default:
			if in.Op.IsJump() {
				work = append(work, state{int(in.Arg), next})
			}
			work = append(work, state{st.ip + 1, next})
		}
	}
	return nil
}

func encodeValue(v Value) (imageValue, error) {
	switch v.kind {
	case KindUndefined, KindNull:
		return imageValue{Kind: v.kind}, nil
	case KindBool, KindInt:
		return imageValue{Kind: v.kind, Int: v.n}, nil
	case KindFloat:
		return imageValue{Kind: v.kind, Num: v.f}, nil
	case KindString:
		return imageValue{Kind: v.kind, Str: v.s}, nil
	}
	return imageValue{}, fmt.Errorf("cannot encode %s value", v.kind)
}

func decodeValue(iv imageValue) (Value, error) {
	switch iv.Kind {
	case KindUndefined:
		return Undefined, nil
	case KindNull:
		return Null(), nil
	case KindBool:
		return Bool(iv.Int != 0), nil
	case KindInt:
		return Int(iv.Int), nil
	case KindFloat:
		return Float(iv.Num), nil
	case KindString:
		return String(iv.Str), nil
	}
	return Undefined, fmt.Errorf("%w: value kind %d", ErrBadImage, iv.Kind)
}
