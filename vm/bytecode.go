package vm

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode operation.
type Opcode byte

// Stack Operations
const (
	OpNop    Opcode = 0x00 // no operation
	OpPop    Opcode = 0x01 // discard top of stack
	OpDup    Opcode = 0x02 // duplicate top of stack
	OpDup2   Opcode = 0x03 // duplicate the top two values
	OpInsert Opcode = 0x04 // move top of stack down n positions
	OpUnbind Opcode = 0x05 // forget the receiver recorded for the top value
)

// Push Constants
const (
	OpConst     Opcode = 0x10 // push constant (index)
	OpInt       Opcode = 0x11 // push small integer held in the operand
	OpUndefined Opcode = 0x12 // push undefined
	OpNull      Opcode = 0x13 // push null
	OpTrue      Opcode = 0x14 // push true
	OpFalse     Opcode = 0x15 // push false
)

// Variable Operations
const (
	OpLoadLocal   Opcode = 0x20 // push local (slot)
	OpStoreLocal  Opcode = 0x21 // store top into local (slot), value stays
	OpLoadParent  Opcode = 0x22 // push enclosing function local (fn<<16 | slot)
	OpStoreParent Opcode = 0x23 // store into enclosing function local
	OpLoadGlobal  Opcode = 0x24 // push external binding (name constant)
	OpStoreGlobal Opcode = 0x25 // store external binding (name constant)
	OpLoadFunc    Opcode = 0x26 // push function reference (function index)
	OpThis        Opcode = 0x27 // push the frame receiver
	OpTypeofName  Opcode = 0x28 // typeof an external binding, undeclared is "undefined"
)

// Property Operations
const (
	OpGetProp  Opcode = 0x30 // obj -> obj.name (name constant), records receiver
	OpSetProp  Opcode = 0x31 // obj value -> value
	OpGetIndex Opcode = 0x32 // obj key -> obj[key], records receiver
	OpSetIndex Opcode = 0x33 // obj key value -> value
)

// Arithmetic and Bitwise
const (
	OpAdd    Opcode = 0x40
	OpSub    Opcode = 0x41
	OpMul    Opcode = 0x42
	OpDiv    Opcode = 0x43
	OpMod    Opcode = 0x44
	OpPow    Opcode = 0x45
	OpBitAnd Opcode = 0x46
	OpBitOr  Opcode = 0x47
	OpBitXor Opcode = 0x48
	OpShl    Opcode = 0x49
	OpShr    Opcode = 0x4A
	OpUShr   Opcode = 0x4B
)

// Comparison
const (
	OpEq       Opcode = 0x50
	OpNe       Opcode = 0x51
	OpStrictEq Opcode = 0x52
	OpStrictNe Opcode = 0x53
	OpLt       Opcode = 0x54
	OpLe       Opcode = 0x55
	OpGt       Opcode = 0x56
	OpGe       Opcode = 0x57
)

// Unary Operations
const (
	OpNeg      Opcode = 0x60 // numeric negation
	OpToNumber Opcode = 0x61 // unary plus
	OpNot      Opcode = 0x62 // logical not
	OpBitNot   Opcode = 0x63 // bitwise not
	OpTypeof   Opcode = 0x64 // type name string
)

// Control Flow
const (
	OpJump            Opcode = 0x70 // jump to absolute target
	OpJumpIfFalse     Opcode = 0x71 // pop, jump if falsy
	OpJumpIfTrue      Opcode = 0x72 // pop, jump if truthy
	OpJumpIfFalseKeep Opcode = 0x73 // jump if falsy leaving the value, else pop
	OpJumpIfTrueKeep  Opcode = 0x74 // jump if truthy leaving the value, else pop
)

// Calls
const (
	OpCall   Opcode = 0x80 // callee args... -> result (argc)
	OpReturn Opcode = 0x81 // return top of stack
)

// Construction
const (
	OpMakeArray  Opcode = 0x90 // n values -> array
	OpMakeObject Opcode = 0x91 // n key/value pairs -> dictionary
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OperandKind says how the disassembler should render an operand.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandInt
	OperandConst
	OperandSlot
	OperandParent
	OperandFunc
	OperandTarget
	OperandCount
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name        string      // human-readable name
	Operand     OperandKind // operand interpretation
	StackEffect int         // net effect on stack (-99 = variable)
}

const variable = -99

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	// Stack operations
	OpNop:    {"NOP", OperandNone, 0},
	OpPop:    {"POP", OperandNone, -1},
	OpDup:    {"DUP", OperandNone, 1},
	OpDup2:   {"DUP2", OperandNone, 2},
	OpInsert: {"INSERT", OperandInt, 0},
	OpUnbind: {"UNBIND", OperandNone, 0},

	// Push constants
	OpConst:     {"CONST", OperandConst, 1},
	OpInt:       {"INT", OperandInt, 1},
	OpUndefined: {"UNDEFINED", OperandNone, 1},
	OpNull:      {"NULL", OperandNone, 1},
	OpTrue:      {"TRUE", OperandNone, 1},
	OpFalse:     {"FALSE", OperandNone, 1},

	// Variables
	OpLoadLocal:   {"LOAD_LOCAL", OperandSlot, 1},
	OpStoreLocal:  {"STORE_LOCAL", OperandSlot, 0},
	OpLoadParent:  {"LOAD_PARENT", OperandParent, 1},
	OpStoreParent: {"STORE_PARENT", OperandParent, 0},
	OpLoadGlobal:  {"LOAD_GLOBAL", OperandConst, 1},
	OpStoreGlobal: {"STORE_GLOBAL", OperandConst, 0},
	OpLoadFunc:    {"LOAD_FUNC", OperandFunc, 1},
	OpThis:        {"THIS", OperandNone, 1},
	OpTypeofName:  {"TYPEOF_NAME", OperandConst, 1},

	// Properties
	OpGetProp:  {"GET_PROP", OperandConst, 0},
	OpSetProp:  {"SET_PROP", OperandConst, -1},
	OpGetIndex: {"GET_INDEX", OperandNone, -1},
	OpSetIndex: {"SET_INDEX", OperandNone, -2},

	// Arithmetic
	OpAdd:    {"ADD", OperandNone, -1},
	OpSub:    {"SUB", OperandNone, -1},
	OpMul:    {"MUL", OperandNone, -1},
	OpDiv:    {"DIV", OperandNone, -1},
	OpMod:    {"MOD", OperandNone, -1},
	OpPow:    {"POW", OperandNone, -1},
	OpBitAnd: {"BIT_AND", OperandNone, -1},
	OpBitOr:  {"BIT_OR", OperandNone, -1},
	OpBitXor: {"BIT_XOR", OperandNone, -1},
	OpShl:    {"SHL", OperandNone, -1},
	OpShr:    {"SHR", OperandNone, -1},
	OpUShr:   {"USHR", OperandNone, -1},

	// Comparison
	OpEq:       {"EQ", OperandNone, -1},
	OpNe:       {"NE", OperandNone, -1},
	OpStrictEq: {"STRICT_EQ", OperandNone, -1},
	OpStrictNe: {"STRICT_NE", OperandNone, -1},
	OpLt:       {"LT", OperandNone, -1},
	OpLe:       {"LE", OperandNone, -1},
	OpGt:       {"GT", OperandNone, -1},
	OpGe:       {"GE", OperandNone, -1},

	// Unary
	OpNeg:      {"NEG", OperandNone, 0},
	OpToNumber: {"TO_NUMBER", OperandNone, 0},
	OpNot:      {"NOT", OperandNone, 0},
	OpBitNot:   {"BIT_NOT", OperandNone, 0},
	OpTypeof:   {"TYPEOF", OperandNone, 0},

	// Control flow
	OpJump:            {"JUMP", OperandTarget, 0},
	OpJumpIfFalse:     {"JUMP_IF_FALSE", OperandTarget, -1},
	OpJumpIfTrue:      {"JUMP_IF_TRUE", OperandTarget, -1},
	OpJumpIfFalseKeep: {"JUMP_IF_FALSE_KEEP", OperandTarget, variable},
	OpJumpIfTrueKeep:  {"JUMP_IF_TRUE_KEEP", OperandTarget, variable},

	// Calls
	OpCall:   {"CALL", OperandCount, variable},
	OpReturn: {"RETURN", OperandNone, -1},

	// Construction
	OpMakeArray:  {"MAKE_ARRAY", OperandCount, variable},
	OpMakeObject: {"MAKE_OBJECT", OperandCount, variable},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op)), StackEffect: 0}
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Info().Name
}

// IsJump reports whether the operand is an instruction index.
func (op Opcode) IsJump() bool {
	return op.Info().Operand == OperandTarget
}

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

// Instruction is one fixed-size operation with a single integer operand.
type Instruction struct {
	Op  Opcode
	Arg int32
}

func (in Instruction) String() string {
	if in.Op.Info().Operand == OperandNone {
		return in.Op.String()
	}
	return fmt.Sprintf("%s %d", in.Op, in.Arg)
}

// ParentRef packs an enclosing function index and a slot into one operand.
func ParentRef(fn, slot int) int32 {
	return int32(fn<<16 | slot&0xFFFF)
}

// SplitParentRef unpacks an operand made by ParentRef.
func SplitParentRef(arg int32) (fn, slot int) {
	return int(arg >> 16), int(arg & 0xFFFF)
}

// ---------------------------------------------------------------------------
// Builder: Helper for constructing instruction sequences
// ---------------------------------------------------------------------------

// Builder appends instructions and backpatches jumps.
type Builder struct {
	code  []Instruction
	lines []LineEntry
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{code: make([]Instruction, 0, 32)}
}

// Emit appends an instruction and returns its index.
func (b *Builder) Emit(op Opcode, arg int) int {
	b.code = append(b.code, Instruction{Op: op, Arg: int32(arg)})
	return len(b.code) - 1
}

// EmitJump appends a jump with a placeholder target to be patched.
func (b *Builder) EmitJump(op Opcode) int {
	return b.Emit(op, -1)
}

// PatchJump points the jump at index to the next instruction emitted.
func (b *Builder) PatchJump(index int) {
	b.code[index].Arg = int32(len(b.code))
}

// PatchJumpTo points the jump at index to target.
func (b *Builder) PatchJumpTo(index, target int) {
	b.code[index].Arg = int32(target)
}

// Len returns the number of instructions emitted so far.
func (b *Builder) Len() int {
	return len(b.code)
}

// Last returns the most recently emitted instruction.
func (b *Builder) Last() (Instruction, bool) {
	if len(b.code) == 0 {
		return Instruction{}, false
	}
	return b.code[len(b.code)-1], true
}

// MarkLine records that instructions from here on come from line.
func (b *Builder) MarkLine(line int) {
	if line <= 0 {
		return
	}
	if n := len(b.lines); n > 0 {
		last := &b.lines[n-1]
		if last.Line == line {
			return
		}
		if last.Start == len(b.code) {
			last.Line = line
			return
		}
	}
	b.lines = append(b.lines, LineEntry{Start: len(b.code), Line: line})
}

// Code returns the instructions.
func (b *Builder) Code() []Instruction {
	return b.code
}

// Lines returns the line table.
func (b *Builder) Lines() []LineEntry {
	return b.lines
}
