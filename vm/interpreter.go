package vm

import "fmt"

// ---------------------------------------------------------------------------
// Stack helpers
// ---------------------------------------------------------------------------

func (vm *VM) push(v Value) {
	if n := len(vm.stack); n < len(vm.recv) {
		vm.recv[n] = nil
	}
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() Value {
	n := len(vm.stack) - 1
	v := vm.stack[n]
	vm.stack[n] = Value{}
	vm.stack = vm.stack[:n]
	return v
}

func (vm *VM) top() Value {
	return vm.stack[len(vm.stack)-1]
}

// popN removes the top n values and returns them as a fresh slice.
func (vm *VM) popN(n int) []Value {
	start := len(vm.stack) - n
	out := make([]Value, n)
	copy(out, vm.stack[start:])
	clear(vm.stack[start:])
	vm.stack = vm.stack[:start]
	return out
}

// setReceiver records recv as the `this` for the value at stack position pos.
func (vm *VM) setReceiver(pos int, recv Value) {
	for len(vm.recv) <= pos {
		vm.recv = append(vm.recv, nil)
	}
	vm.recv[pos] = &recv
}

func (vm *VM) receiverAt(pos int) Value {
	if pos < len(vm.recv) && vm.recv[pos] != nil {
		return *vm.recv[pos]
	}
	return Undefined
}

func (vm *VM) trimReceivers() {
	if len(vm.recv) > len(vm.stack) {
		clear(vm.recv[len(vm.stack):])
		vm.recv = vm.recv[:len(vm.stack)]
	}
}

func (vm *VM) errorf(format string, args ...any) *RuntimeError {
	err := &RuntimeError{Msg: fmt.Sprintf(format, args...), VM: vm.id}
	if n := len(vm.frames); n > 0 {
		fr := &vm.frames[n-1]
		err.Function = fr.Fn.DisplayName()
		err.IP = max(fr.IP-1, 0)
		err.Line = fr.Fn.LineAt(err.IP)
	}
	return err
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// run executes until the top-level frame returns or a return brings the
// frame count down to haltDepth. It returns the halting return value. A Go
// panic from malformed code becomes a RuntimeError.
func (vm *VM) run(haltDepth int) (result Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("vm %s: recovered from panic: %v", vm.id, r)
			result, err = Undefined, vm.errorf("internal error: %v", r)
		}
	}()
	consts := vm.prog.Constants
	for {
		fr := &vm.frames[len(vm.frames)-1]
		code := fr.Fn.Code
		if fr.IP >= len(code) {
			return Undefined, vm.errorf("execution ran past the end of %s", fr.Fn.DisplayName())
		}
		if vm.hook != nil {
			if err := vm.hook(fr.Fn, fr.IP); err != nil {
				return Undefined, err
			}
		}
		in := code[fr.IP]
		fr.IP++

		switch in.Op {
		case OpNop:

		// Stack
		case OpPop:
			vm.pop()
		case OpDup:
			vm.push(vm.top())
		case OpDup2:
			n := len(vm.stack)
			a, b := vm.stack[n-2], vm.stack[n-1]
			vm.push(a)
			vm.push(b)
		case OpInsert:
			n := len(vm.stack)
			at := n - 1 - int(in.Arg)
			v := vm.stack[n-1]
			copy(vm.stack[at+1:], vm.stack[at:n-1])
			vm.stack[at] = v
			if at < len(vm.recv) {
				clear(vm.recv[at:])
				vm.recv = vm.recv[:at]
			}
		case OpUnbind:
			if n := len(vm.stack) - 1; n < len(vm.recv) {
				vm.recv[n] = nil
			}

		// Constants
		case OpConst:
			vm.push(consts[in.Arg])
		case OpInt:
			vm.push(Int(int64(in.Arg)))
		case OpUndefined:
			vm.push(Undefined)
		case OpNull:
			vm.push(Null())
		case OpTrue:
			vm.push(Bool(true))
		case OpFalse:
			vm.push(Bool(false))

		// Variables
		case OpLoadLocal:
			vm.push(vm.locals[fr.Base+int(in.Arg)])
		case OpStoreLocal:
			vm.locals[fr.Base+int(in.Arg)] = vm.top()
		case OpLoadParent:
			base, err := vm.parentBase(in.Arg)
			if err != nil {
				return Undefined, err
			}
			_, slot := SplitParentRef(in.Arg)
			vm.push(vm.locals[base+slot])
		case OpStoreParent:
			base, err := vm.parentBase(in.Arg)
			if err != nil {
				return Undefined, err
			}
			_, slot := SplitParentRef(in.Arg)
			vm.locals[base+slot] = vm.top()
		case OpLoadGlobal:
			name := consts[in.Arg].s
			v, ok := vm.globals[name]
			if !ok {
				return Undefined, vm.errorf("%s is not defined", name)
			}
			vm.push(v)
		case OpStoreGlobal:
			vm.globals[consts[in.Arg].s] = vm.top()
		case OpLoadFunc:
			vm.push(FuncRef(int(in.Arg)))
		case OpThis:
			vm.push(fr.This)
		case OpTypeofName:
			if v, ok := vm.globals[consts[in.Arg].s]; ok {
				vm.push(String(TypeOf(v)))
			} else {
				vm.push(String("undefined"))
			}

		// Properties
		case OpGetProp:
			obj := vm.pop()
			v, err := GetProperty(obj, consts[in.Arg].s)
			if err != nil {
				return Undefined, vm.errorf("%v", err)
			}
			vm.push(v)
			vm.setReceiver(len(vm.stack)-1, obj)
		case OpSetProp:
			v := vm.pop()
			obj := vm.pop()
			if err := SetProperty(obj, consts[in.Arg].s, v); err != nil {
				return Undefined, vm.errorf("%v", err)
			}
			vm.push(v)
		case OpGetIndex:
			key := vm.pop()
			obj := vm.pop()
			v, err := GetIndex(obj, key)
			if err != nil {
				return Undefined, vm.errorf("%v", err)
			}
			vm.push(v)
			vm.setReceiver(len(vm.stack)-1, obj)
		case OpSetIndex:
			v := vm.pop()
			key := vm.pop()
			obj := vm.pop()
			if err := SetIndex(obj, key, v); err != nil {
				return Undefined, vm.errorf("%v", err)
			}
			vm.push(v)

		// Arithmetic
		case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow,
			OpBitAnd, OpBitOr, OpBitXor, OpShl, OpShr, OpUShr:
			b := vm.pop()
			a := vm.pop()
			vm.push(binaryOps[in.Op](a, b))

		// Comparison
		case OpEq:
			b, a := vm.pop(), vm.pop()
			vm.push(Bool(LooseEquals(a, b)))
		case OpNe:
			b, a := vm.pop(), vm.pop()
			vm.push(Bool(!LooseEquals(a, b)))
		case OpStrictEq:
			b, a := vm.pop(), vm.pop()
			vm.push(Bool(StrictEquals(a, b)))
		case OpStrictNe:
			b, a := vm.pop(), vm.pop()
			vm.push(Bool(!StrictEquals(a, b)))
		case OpLt, OpLe, OpGt, OpGe:
			b, a := vm.pop(), vm.pop()
			cmp, ok := Compare(a, b)
			vm.push(Bool(ok && compareHolds(in.Op, cmp)))

		// Unary
		case OpNeg:
			vm.push(Neg(vm.pop()))
		case OpToNumber:
			vm.push(ToNumber(vm.pop()))
		case OpNot:
			vm.push(Bool(!Truthy(vm.pop())))
		case OpBitNot:
			vm.push(BitNot(vm.pop()))
		case OpTypeof:
			vm.push(String(TypeOf(vm.pop())))

		// Control flow
		case OpJump:
			fr.IP = int(in.Arg)
		case OpJumpIfFalse:
			if !Truthy(vm.pop()) {
				fr.IP = int(in.Arg)
			}
		case OpJumpIfTrue:
			if Truthy(vm.pop()) {
				fr.IP = int(in.Arg)
			}
		case OpJumpIfFalseKeep:
			if !Truthy(vm.top()) {
				fr.IP = int(in.Arg)
			} else {
				vm.pop()
			}
		case OpJumpIfTrueKeep:
			if Truthy(vm.top()) {
				fr.IP = int(in.Arg)
			} else {
				vm.pop()
			}

		// Calls
		case OpCall:
			if _, err := vm.call(int(in.Arg)); err != nil {
				return Undefined, err
			}
		case OpReturn:
			v := vm.pop()
			if len(vm.frames) == 1 {
				// Top-level return halts; frame 0 and its locals stay live
				// for the host API.
				vm.stack = vm.stack[:fr.StackBase]
				vm.trimReceivers()
				return v, nil
			}
			vm.frames = vm.frames[:len(vm.frames)-1]
			clear(vm.locals[fr.Base:])
			vm.locals = vm.locals[:fr.Base]
			clear(vm.stack[fr.StackBase:])
			vm.stack = vm.stack[:fr.StackBase]
			vm.push(v)
			if len(vm.frames) == haltDepth {
				vm.trimReceivers()
				return vm.pop(), nil
			}

		// Construction
		case OpMakeArray:
			vm.push(ArrayOf(vm.popN(int(in.Arg))...))
		case OpMakeObject:
			pairs := vm.popN(2 * int(in.Arg))
			o := NewObject()
			for i := 0; i < len(pairs); i += 2 {
				o.Set(ToString(pairs[i]), pairs[i+1])
			}
			vm.push(ObjectValue(o))

		default:
			return Undefined, vm.errorf("unknown opcode %s", in.Op)
		}

		vm.trimReceivers()
	}
}

var binaryOps = map[Opcode]func(a, b Value) Value{
	OpAdd:    Add,
	OpSub:    Sub,
	OpMul:    Mul,
	OpDiv:    Div,
	OpMod:    Mod,
	OpPow:    Pow,
	OpBitAnd: BitAnd,
	OpBitOr:  BitOr,
	OpBitXor: BitXor,
	OpShl:    Shl,
	OpShr:    Shr,
	OpUShr:   UShr,
}

func compareHolds(op Opcode, cmp int) bool {
	switch op {
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	}
	return cmp >= 0
}

// parentBase finds the locals base of the most recent live frame running the
// function named by a parent reference.
func (vm *VM) parentBase(arg int32) (int, error) {
	fn, _ := SplitParentRef(arg)
	for i := len(vm.frames) - 1; i >= 0; i-- {
		if vm.frames[i].Fn.Index == fn {
			return vm.frames[i].Base, nil
		}
	}
	name := "<unknown>"
	if fn < len(vm.prog.Functions) {
		name = vm.prog.Functions[fn].DisplayName()
	}
	return 0, vm.errorf("enclosing scope of %s is no longer active", name)
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// call performs the call protocol for the callee sitting below argc
// arguments. It reports whether a new frame was pushed; native results are
// pushed directly.
func (vm *VM) call(argc int) (bool, error) {
	calleePos := len(vm.stack) - argc - 1
	callee := vm.stack[calleePos]
	this := vm.receiverAt(calleePos)

	switch callee.kind {
	case KindFunc:
		idx := callee.FuncIndex()
		if idx <= 0 || idx >= len(vm.prog.Functions) {
			return false, vm.errorf("invalid function reference %d", idx)
		}
		if len(vm.frames) >= maxFrames {
			return false, vm.errorf("maximum call stack size exceeded")
		}
		fn := vm.prog.Functions[idx]
		base := len(vm.locals)
		vm.locals = append(vm.locals, make([]Value, fn.Size())...)
		args := vm.stack[calleePos+1:]
		for i, p := range fn.Params {
			v := Undefined
			if i < argc {
				v = args[i]
			}
			if v.IsUndefined() && p.HasDefault {
				v = p.Default
			}
			vm.locals[base+i] = v
		}
		if fn.Arrow {
			this = vm.lexicalThis(fn.ThisFrom)
		}
		clear(vm.stack[calleePos:])
		vm.stack = vm.stack[:calleePos]
		vm.frames = append(vm.frames, Frame{
			Fn:        fn,
			Base:      base,
			Size:      fn.Size(),
			This:      this,
			StackBase: calleePos,
		})
		log.Debugf("call %s (depth %d)", fn.DisplayName(), len(vm.frames))
		return true, nil

	case KindNative:
		n := callee.Native()
		args := vm.popN(argc)
		if n.Arity >= 0 {
			switch {
			case len(args) > n.Arity:
				args = args[:n.Arity]
			case len(args) < n.Arity:
				args = append(args, make([]Value, n.Arity-len(args))...)
			}
		}
		vm.pop()
		result, err := n.Fn(this, args)
		if err != nil {
			if rerr, ok := err.(*RuntimeError); ok {
				return false, rerr
			}
			return false, vm.errorf("%s: %v", n.Name, err)
		}
		vm.push(result)
		return false, nil
	}
	return false, vm.errorf("%s is not a function", describe(callee))
}

// lexicalThis returns the receiver of the live frame running fn.
func (vm *VM) lexicalThis(fn int) Value {
	for i := len(vm.frames) - 1; i >= 0; i-- {
		if vm.frames[i].Fn.Index == fn {
			return vm.frames[i].This
		}
	}
	return Undefined
}

func describe(v Value) string {
	switch v.kind {
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindArray, KindObject, KindHost:
		return TypeOf(v)
	}
	return ToString(v)
}
