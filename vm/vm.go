package vm

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("ember.vm")

// Errors returned by the host API.
var (
	ErrRunning     = errors.New("vm: already running")
	ErrNotExecuted = errors.New("vm: program has not been executed")
	ErrNoProgram   = errors.New("vm: no program loaded")
	ErrUnknownVar  = errors.New("vm: no such top-level variable")
)

// maxFrames bounds the call stack.
const maxFrames = 10000

// StepHook is called before every instruction. A non-nil error aborts the
// run with that error.
type StepHook func(fn *Function, ip int) error

// Frame is the execution state of one function activation. Its locals are
// the window [Base, Base+Size) of the shared locals array.
type Frame struct {
	Fn        *Function
	IP        int
	Base      int
	Size      int
	This      Value
	StackBase int // value stack height below the callee
}

// ---------------------------------------------------------------------------
// VM
// ---------------------------------------------------------------------------

// VM executes one compiled Program. It is single-threaded and refuses
// re-entrant use of its dispatch loop.
type VM struct {
	id      uuid.UUID
	prog    *Program
	globals map[string]Value

	stack  []Value
	recv   []*Value // pending receivers, indexed by value stack position
	frames []Frame
	locals []Value

	running  bool
	executed bool

	out  io.Writer
	hook StepHook
}

// New creates a VM with the built-in globals installed.
func New() *VM {
	vm := &VM{
		id:      uuid.New(),
		globals: make(map[string]Value),
		stack:   make([]Value, 0, 64),
		out:     os.Stdout,
	}
	vm.installBuiltins()
	log.Debugf("vm %s created", vm.id)
	return vm
}

// ID identifies this VM instance in logs.
func (vm *VM) ID() uuid.UUID {
	return vm.id
}

// SetOutput redirects print.
func (vm *VM) SetOutput(w io.Writer) {
	vm.out = w
}

// SetStepHook installs a hook run before each instruction; nil removes it.
func (vm *VM) SetStepHook(h StepHook) {
	vm.hook = h
}

// Program returns the loaded program.
func (vm *VM) Program() *Program {
	return vm.prog
}

// ---------------------------------------------------------------------------
// Bindings
// ---------------------------------------------------------------------------

// Register binds a host value under name. Go values are converted with
// FromGo.
func (vm *VM) Register(name string, x any) error {
	if vm.running {
		return ErrRunning
	}
	v, err := FromGo(x)
	if err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	vm.globals[name] = v
	return nil
}

// RegisterFunc binds a host function. Arity -1 accepts any argument count.
func (vm *VM) RegisterFunc(name string, arity int, fn NativeFunc) error {
	if vm.running {
		return ErrRunning
	}
	vm.globals[name] = NewNative(name, arity, fn)
	return nil
}

// Global returns the external binding for name.
func (vm *VM) Global(name string) (Value, bool) {
	v, ok := vm.globals[name]
	return v, ok
}

// Globals returns the names of all external bindings.
func (vm *VM) Globals() []string {
	names := make([]string, 0, len(vm.globals))
	for name := range vm.globals {
		names = append(names, name)
	}
	return names
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// Load installs a program. Any previous execution state is discarded.
func (vm *VM) Load(prog *Program) error {
	if vm.running {
		return ErrRunning
	}
	if prog == nil || len(prog.Functions) == 0 {
		return ErrNoProgram
	}
	vm.prog = prog
	vm.reset()
	log.Debugf("vm %s: loaded %d functions, %d constants", vm.id, len(prog.Functions), len(prog.Constants))
	return nil
}

func (vm *VM) reset() {
	clear(vm.stack)
	clear(vm.locals)
	vm.stack = vm.stack[:0]
	vm.recv = vm.recv[:0]
	vm.frames = vm.frames[:0]
	vm.locals = vm.locals[:0]
	vm.executed = false
}

// Run executes the top-level code and returns its completion value. A
// failed run leaves the VM as if it had never executed.
func (vm *VM) Run() (Value, error) {
	if vm.running {
		return Undefined, ErrRunning
	}
	if vm.prog == nil {
		return Undefined, ErrNoProgram
	}
	vm.reset()
	main := vm.prog.Main()
	vm.locals = append(vm.locals, make([]Value, main.Size())...)
	vm.frames = append(vm.frames, Frame{Fn: main, Size: main.Size()})

	vm.running = true
	defer func() { vm.running = false }()
	result, err := vm.run(0)
	if err != nil {
		vm.reset()
		return Undefined, err
	}
	vm.executed = true
	return result, nil
}

// Call invokes a top-level function by name after Run: a named function
// declaration first, then a top-level variable or external binding holding
// a function.
func (vm *VM) Call(name string, args ...Value) (Value, error) {
	if err := vm.ready(); err != nil {
		return Undefined, fmt.Errorf("call %s: %w", name, err)
	}
	var callee Value
	if idx, ok := vm.prog.Named[name]; ok {
		callee = FuncRef(idx)
	} else if lv, ok := vm.prog.TopLevel(name); ok {
		callee = vm.locals[lv.Slot]
	} else if g, ok := vm.globals[name]; ok {
		callee = g
	} else {
		return Undefined, fmt.Errorf("call %s: function not found", name)
	}
	return vm.CallValue(callee, args...)
}

// CallValue invokes a function value with a synchronous result. On error
// the VM returns to the state it had before the call.
func (vm *VM) CallValue(fn Value, args ...Value) (Value, error) {
	if err := vm.ready(); err != nil {
		return Undefined, err
	}
	if !fn.IsCallable() {
		return Undefined, fmt.Errorf("vm: cannot call a value of type %s", TypeOf(fn))
	}
	depth, height, nlocals := len(vm.frames), len(vm.stack), len(vm.locals)

	vm.running = true
	defer func() { vm.running = false }()
	vm.push(fn)
	for _, a := range args {
		vm.push(a)
	}
	result, err := vm.invoke(len(args), depth)
	if err != nil {
		vm.unwind(depth, height, nlocals)
		return Undefined, err
	}
	vm.unwind(depth, height, nlocals)
	return result, nil
}

func (vm *VM) invoke(argc, depth int) (Value, error) {
	pushed, err := vm.call(argc)
	if err != nil {
		return Undefined, err
	}
	if pushed {
		return vm.run(depth)
	}
	return vm.pop(), nil
}

func (vm *VM) unwind(depth, height, nlocals int) {
	vm.frames = vm.frames[:depth]
	clear(vm.locals[nlocals:])
	vm.locals = vm.locals[:nlocals]
	clear(vm.stack[height:])
	vm.stack = vm.stack[:height]
	vm.trimReceivers()
}

func (vm *VM) ready() error {
	switch {
	case vm.running:
		return ErrRunning
	case vm.prog == nil:
		return ErrNoProgram
	case !vm.executed:
		return ErrNotExecuted
	}
	return nil
}

// ---------------------------------------------------------------------------
// Top-level variables
// ---------------------------------------------------------------------------

// HasVar reports whether name is a live top-level variable.
func (vm *VM) HasVar(name string) bool {
	if vm.prog == nil || !vm.executed {
		return false
	}
	_, ok := vm.prog.TopLevel(name)
	return ok
}

// GetVar reads a top-level variable.
func (vm *VM) GetVar(name string) (Value, error) {
	lv, err := vm.topLevel(name)
	if err != nil {
		return Undefined, err
	}
	return vm.locals[lv.Slot], nil
}

// SetVar writes a top-level variable. Constants cannot be written.
func (vm *VM) SetVar(name string, v Value) error {
	lv, err := vm.topLevel(name)
	if err != nil {
		return err
	}
	if lv.Kind == VarConst {
		return fmt.Errorf("vm: assignment to constant %q", name)
	}
	vm.locals[lv.Slot] = v
	return nil
}

func (vm *VM) topLevel(name string) (LocalVar, error) {
	if err := vm.ready(); err != nil {
		return LocalVar{}, err
	}
	lv, ok := vm.prog.TopLevel(name)
	if !ok {
		return LocalVar{}, fmt.Errorf("%w: %s", ErrUnknownVar, name)
	}
	return lv, nil
}

// ---------------------------------------------------------------------------
// RuntimeError
// ---------------------------------------------------------------------------

// RuntimeError aborts execution. Function and IP locate the failing
// instruction; Line is its source line when known. VM is the ID of the
// machine that raised it.
type RuntimeError struct {
	Msg      string
	Function string
	IP       int
	Line     int
	VM       uuid.UUID
}

func (e *RuntimeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("runtime error: line %d in %s: %s", e.Line, e.Function, e.Msg)
	}
	return fmt.Sprintf("runtime error: in %s at %d: %s", e.Function, e.IP, e.Msg)
}
