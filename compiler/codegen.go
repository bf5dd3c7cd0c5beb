package compiler

import (
	"errors"
	"math"

	"github.com/chazu/ember/vm"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("ember.compiler")

// ---------------------------------------------------------------------------
// Codegen: Compile AST to bytecode
// ---------------------------------------------------------------------------

// Compiler translates a syntax tree into a vm.Program.
type Compiler struct {
	prog     *vm.Program
	consts   map[constKey]int
	fs       *funcState
	declared map[*FunctionLiteral]int // reserved indices of function declarations
	errors   []*CompileError
}

type constKey struct {
	kind vm.Kind
	i    int64
	f    uint64
	s    string
}

// NewCompiler creates a new compiler.
func NewCompiler() *Compiler {
	return &Compiler{}
}

// Errors returns the errors of the last compilation.
func (c *Compiler) Errors() []*CompileError {
	return c.errors
}

// fail records a compilation error. Compilation continues so every
// offending construct is reported once.
func (c *Compiler) fail(pos Position, format string, args ...any) {
	c.errors = append(c.errors, errorAt(pos, format, args...))
}

// Compile compiles a parsed program with a fresh Compiler.
func Compile(prog *Program) (*vm.Program, error) {
	return NewCompiler().Compile(prog)
}

// CompileSource parses and compiles src.
func CompileSource(src string) (*vm.Program, error) {
	prog, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return Compile(prog)
}

// Compile compiles p. Function 0 is the top-level code; it returns the
// value of the last expression statement executed.
func (c *Compiler) Compile(p *Program) (*vm.Program, error) {
	c.prog = &vm.Program{Named: make(map[string]int)}
	c.consts = make(map[constKey]int)
	c.declared = make(map[*FunctionLiteral]int)
	c.errors = nil

	main := c.prog.Functions[c.reserveFunction("")]
	fs := &funcState{fn: main, b: vm.NewBuilder(), scope: newScope(nil)}
	c.fs = fs
	fs.completion = fs.hidden("completion")

	c.hoistVars(p.Stmts)
	c.compileSeq(p.Stmts)
	for name, idx := range fs.scope.funcs {
		c.prog.Named[name] = idx
	}
	fs.b.Emit(vm.OpLoadLocal, fs.completion)
	fs.b.Emit(vm.OpReturn, 0)
	c.finish(fs)
	c.fs = nil

	if len(c.errors) > 0 {
		errs := make([]error, len(c.errors))
		for i, e := range c.errors {
			errs[i] = e
		}
		return nil, errors.Join(errs...)
	}
	log.Debugf("compiled %d functions, %d constants", len(c.prog.Functions), len(c.prog.Constants))
	return c.prog, nil
}

func (c *Compiler) reserveFunction(name string) int {
	idx := len(c.prog.Functions)
	c.prog.Functions = append(c.prog.Functions, &vm.Function{Index: idx, Name: name})
	return idx
}

func (c *Compiler) finish(fs *funcState) {
	fs.fn.Code = fs.b.Code()
	fs.fn.Lines = fs.b.Lines()
	log.Debugf("function %s: %d instructions, %d locals", fs.fn.DisplayName(), len(fs.fn.Code), len(fs.fn.Locals))
}

// constant interns v in the constant pool.
func (c *Compiler) constant(v vm.Value) int {
	key := constKey{kind: v.Kind()}
	switch v.Kind() {
	case vm.KindInt, vm.KindBool:
		key.i = v.AsInt()
	case vm.KindFloat:
		key.f = math.Float64bits(v.AsFloat())
	case vm.KindString:
		key.s = v.AsString()
	}
	if idx, ok := c.consts[key]; ok {
		return idx
	}
	idx := len(c.prog.Constants)
	c.prog.Constants = append(c.prog.Constants, v)
	c.consts[key] = idx
	return idx
}

func (c *Compiler) emit(op vm.Opcode, arg int) int {
	return c.fs.b.Emit(op, arg)
}

func (c *Compiler) emitInt(n int64) {
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		c.emit(vm.OpInt, int(n))
		return
	}
	c.emit(vm.OpConst, c.constant(vm.Int(n)))
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// compileFunction compiles lit into the reserved function idx. Function
// expressions can refer to their own name.
func (c *Compiler) compileFunction(lit *FunctionLiteral, idx int, selfBind bool) {
	parent := c.fs
	fn := c.prog.Functions[idx]
	fn.Name = lit.Name
	fn.Arrow = lit.Arrow
	if lit.Arrow {
		fn.ThisFrom = parent.thisFrom()
	}

	fs := &funcState{parent: parent, fn: fn, b: vm.NewBuilder(), scope: newScope(nil), completion: -1}
	c.fs = fs
	defer func() { c.fs = parent }()
	fs.b.MarkLine(lit.SpanVal.Start.Line)

	if selfBind && lit.Name != "" {
		fs.scope.funcs[lit.Name] = idx
	}
	for _, p := range lit.Params {
		if _, ok := fs.declare(p.Name, vm.VarParam); !ok {
			c.fail(p.Pos, "duplicate parameter name %q", p.Name)
			fs.hidden(p.Name)
		}
		param := vm.Param{Name: p.Name}
		if p.Default != nil {
			param.Default, param.HasDefault = literalValue(p.Default), true
		}
		fn.Params = append(fn.Params, param)
	}

	c.hoistVars(lit.Body.Stmts)
	c.compileSeq(lit.Body.Stmts)
	fs.b.Emit(vm.OpUndefined, 0)
	fs.b.Emit(vm.OpReturn, 0)
	c.finish(fs)
}

func literalValue(e Expr) vm.Value {
	switch n := e.(type) {
	case *IntLiteral:
		return vm.Int(n.Value)
	case *FloatLiteral:
		return vm.Float(n.Value)
	case *StringLiteral:
		return vm.String(n.Value)
	case *BoolLiteral:
		return vm.Bool(n.Value)
	case *NullLiteral:
		return vm.Null()
	}
	return vm.Undefined
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// compileSeq compiles a statement list in the current block after binding
// its block-scoped declarations.
func (c *Compiler) compileSeq(stmts []Stmt) {
	c.declareBlock(stmts)
	for _, s := range stmts {
		c.compileStmt(s)
	}
}

// compileBody compiles s in a block scope of its own.
func (c *Compiler) compileBody(s Stmt) {
	c.fs.pushScope()
	if blk, ok := s.(*BlockStmt); ok {
		c.compileSeq(blk.Stmts)
	} else {
		c.compileSeq([]Stmt{s})
	}
	c.fs.popScope()
}

func (c *Compiler) compileStmt(s Stmt) {
	fs := c.fs
	fs.b.MarkLine(s.Span().Start.Line)

	switch n := s.(type) {
	case *EmptyStmt:
	case *ExprStmt:
		c.compileExpr(n.X)
		if fs.completion >= 0 {
			c.emit(vm.OpStoreLocal, fs.completion)
		}
		c.emit(vm.OpPop, 0)
	case *VarDecl:
		c.compileVarDecl(n)
	case *FunctionDecl:
		if idx, ok := c.declared[n.Func]; ok {
			c.compileFunction(n.Func, idx, false)
		}
	case *ReturnStmt:
		if n.Value != nil {
			c.compileExpr(n.Value)
		} else {
			c.emit(vm.OpUndefined, 0)
		}
		c.emit(vm.OpReturn, 0)
	case *BlockStmt:
		c.compileBody(n)
	case *IfStmt:
		c.compileIf(n)
	case *WhileStmt:
		c.compileWhile(n)
	case *DoWhileStmt:
		c.compileDoWhile(n)
	case *ForStmt:
		c.compileFor(n)
	case *SwitchStmt:
		c.compileSwitch(n)
	case *BreakStmt:
		t := fs.target(false)
		if t == nil {
			c.fail(n.SpanVal.Start, "illegal break statement: not inside a loop or switch")
			return
		}
		t.breaks = append(t.breaks, fs.b.EmitJump(vm.OpJump))
	case *ContinueStmt:
		t := fs.target(true)
		if t == nil {
			c.fail(n.SpanVal.Start, "illegal continue statement: not inside a loop")
			return
		}
		t.continues = append(t.continues, fs.b.EmitJump(vm.OpJump))
	default:
		c.fail(s.Span().Start, "unsupported statement %T", s)
	}
}

func (c *Compiler) compileVarDecl(n *VarDecl) {
	fs := c.fs
	for _, d := range n.Declarators {
		if n.Kind == DeclVar && d.Init == nil {
			continue
		}
		b, ok := fs.scope.vars[d.Name]
		if !ok {
			kind := vm.VarVar
			switch n.Kind {
			case DeclLet:
				kind = vm.VarLet
			case DeclConst:
				kind = vm.VarConst
			}
			b.slot, _ = fs.declare(d.Name, kind)
		}
		if d.Init != nil {
			c.compileExpr(d.Init)
		} else {
			c.emit(vm.OpUndefined, 0)
		}
		c.emit(vm.OpStoreLocal, b.slot)
		c.emit(vm.OpPop, 0)
	}
}

func (c *Compiler) compileIf(n *IfStmt) {
	b := c.fs.b
	var ends []int
	for i, cl := range n.Clauses {
		c.compileExpr(cl.Cond)
		next := b.EmitJump(vm.OpJumpIfFalse)
		c.compileBody(cl.Body)
		if i < len(n.Clauses)-1 || n.Else != nil {
			ends = append(ends, b.EmitJump(vm.OpJump))
		}
		b.PatchJump(next)
	}
	if n.Else != nil {
		c.compileBody(n.Else)
	}
	for _, j := range ends {
		b.PatchJump(j)
	}
}

func (c *Compiler) pushTarget(loop bool) *jumpTarget {
	t := &jumpTarget{loop: loop}
	c.fs.targets = append(c.fs.targets, t)
	return t
}

func (c *Compiler) popTarget() {
	c.fs.targets = c.fs.targets[:len(c.fs.targets)-1]
}

func (c *Compiler) patchTarget(t *jumpTarget, cont, brk int) {
	for _, j := range t.continues {
		c.fs.b.PatchJumpTo(j, cont)
	}
	for _, j := range t.breaks {
		c.fs.b.PatchJumpTo(j, brk)
	}
}

func (c *Compiler) compileWhile(n *WhileStmt) {
	b := c.fs.b
	start := b.Len()
	c.compileExpr(n.Cond)
	exit := b.EmitJump(vm.OpJumpIfFalse)
	t := c.pushTarget(true)
	c.compileBody(n.Body)
	c.popTarget()
	b.Emit(vm.OpJump, start)
	b.PatchJump(exit)
	c.patchTarget(t, start, b.Len())
}

func (c *Compiler) compileDoWhile(n *DoWhileStmt) {
	b := c.fs.b
	start := b.Len()
	t := c.pushTarget(true)
	c.compileBody(n.Body)
	c.popTarget()
	cont := b.Len()
	c.compileExpr(n.Cond)
	b.Emit(vm.OpJumpIfTrue, start)
	c.patchTarget(t, cont, b.Len())
}

func (c *Compiler) compileFor(n *ForStmt) {
	fs := c.fs
	b := fs.b
	fs.pushScope()
	defer fs.popScope()

	switch init := n.Init.(type) {
	case *VarDecl:
		c.declareBlock([]Stmt{init})
		c.compileStmt(init)
	case *ExprStmt:
		c.compileExpr(init.X)
		c.emit(vm.OpPop, 0)
	}

	start := b.Len()
	exit := -1
	if _, empty := n.Cond.(*EmptyStmt); !empty {
		c.compileExpr(n.Cond)
		exit = b.EmitJump(vm.OpJumpIfFalse)
	}
	t := c.pushTarget(true)
	c.compileBody(n.Body)
	c.popTarget()
	cont := b.Len()
	if _, empty := n.Update.(*EmptyStmt); !empty {
		c.compileExpr(n.Update)
		c.emit(vm.OpPop, 0)
	}
	b.Emit(vm.OpJump, start)
	end := b.Len()
	if exit >= 0 {
		b.PatchJumpTo(exit, end)
	}
	c.patchTarget(t, cont, end)
}

// compileSwitch tests every case in order against the subject held in a
// hidden local, then lays the case bodies out back to back so control
// falls through until a break.
func (c *Compiler) compileSwitch(n *SwitchStmt) {
	fs := c.fs
	b := fs.b
	c.compileExpr(n.Subject)
	subject := fs.hidden("switch")
	c.emit(vm.OpStoreLocal, subject)
	c.emit(vm.OpPop, 0)

	tests := make([]int, len(n.Cases))
	hasDefault := false
	for i, cc := range n.Cases {
		if cc.Test == nil {
			hasDefault = true
			continue
		}
		b.MarkLine(cc.Pos.Line)
		c.emit(vm.OpLoadLocal, subject)
		c.compileExpr(cc.Test)
		c.emit(vm.OpStrictEq, 0)
		tests[i] = b.EmitJump(vm.OpJumpIfTrue)
	}
	noMatch := b.EmitJump(vm.OpJump)

	t := c.pushTarget(false)
	fs.pushScope()
	var all []Stmt
	for _, cc := range n.Cases {
		all = append(all, cc.Body...)
	}
	c.declareBlock(all)
	for i, cc := range n.Cases {
		if cc.Test == nil {
			b.PatchJump(noMatch)
		} else {
			b.PatchJump(tests[i])
		}
		for _, s := range cc.Body {
			c.compileStmt(s)
		}
	}
	fs.popScope()
	c.popTarget()

	end := b.Len()
	if !hasDefault {
		b.PatchJumpTo(noMatch, end)
	}
	c.patchTarget(t, end, end)
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// unbind drops the receiver a member read leaves on the result of a
// conditional, logical or comma expression, so (c ? o.f : g)() calls with
// no `this`.
func (c *Compiler) unbind(branches ...Expr) {
	for _, e := range branches {
		switch e.(type) {
		case *MemberExpr, *IndexExpr:
			c.emit(vm.OpUnbind, 0)
			return
		}
	}
}

var binaryOpcodes = map[TokenType]vm.Opcode{
	TokenPlus:     vm.OpAdd,
	TokenMinus:    vm.OpSub,
	TokenStar:     vm.OpMul,
	TokenSlash:    vm.OpDiv,
	TokenPercent:  vm.OpMod,
	TokenStarStar: vm.OpPow,
	TokenAmp:      vm.OpBitAnd,
	TokenPipe:     vm.OpBitOr,
	TokenCaret:    vm.OpBitXor,
	TokenShl:      vm.OpShl,
	TokenShr:      vm.OpShr,
	TokenUShr:     vm.OpUShr,
	TokenEq:       vm.OpEq,
	TokenNe:       vm.OpNe,
	TokenStrictEq: vm.OpStrictEq,
	TokenStrictNe: vm.OpStrictNe,
	TokenLt:       vm.OpLt,
	TokenLe:       vm.OpLe,
	TokenGt:       vm.OpGt,
	TokenGe:       vm.OpGe,
}

var unaryOpcodes = map[TokenType]vm.Opcode{
	TokenMinus: vm.OpNeg,
	TokenPlus:  vm.OpToNumber,
	TokenBang:  vm.OpNot,
	TokenTilde: vm.OpBitNot,
}

// compileExpr emits code leaving exactly one value on the stack.
func (c *Compiler) compileExpr(e Expr) {
	b := c.fs.b
	switch n := e.(type) {
	case *IntLiteral:
		c.emitInt(n.Value)
	case *FloatLiteral:
		c.emit(vm.OpConst, c.constant(vm.Float(n.Value)))
	case *StringLiteral:
		c.emit(vm.OpConst, c.constant(vm.String(n.Value)))
	case *BoolLiteral:
		if n.Value {
			c.emit(vm.OpTrue, 0)
		} else {
			c.emit(vm.OpFalse, 0)
		}
	case *NullLiteral:
		c.emit(vm.OpNull, 0)
	case *UndefinedLiteral, *EmptyStmt:
		c.emit(vm.OpUndefined, 0)
	case *Identifier:
		c.compileLoad(n.Name, n.SpanVal.Start)
	case *ThisExpr:
		c.emit(vm.OpThis, 0)
	case *ArrayLiteral:
		for _, el := range n.Elements {
			c.compileExpr(el)
		}
		c.emit(vm.OpMakeArray, len(n.Elements))
	case *ObjectLiteral:
		for _, p := range n.Properties {
			c.emit(vm.OpConst, c.constant(vm.String(p.Key)))
			c.compileExpr(p.Value)
		}
		c.emit(vm.OpMakeObject, len(n.Properties))
	case *FunctionLiteral:
		idx := c.reserveFunction(n.Name)
		c.compileFunction(n, idx, true)
		c.emit(vm.OpLoadFunc, idx)
	case *UnaryExpr:
		c.compileUnary(n)
	case *BinaryExpr:
		switch {
		case IsAssignOp(n.Op):
			c.compileAssign(n)
		case n.Op == TokenAndAnd:
			c.compileExpr(n.Left)
			j := b.EmitJump(vm.OpJumpIfFalseKeep)
			c.compileExpr(n.Right)
			b.PatchJump(j)
			c.unbind(n.Left, n.Right)
		case n.Op == TokenOrOr:
			c.compileExpr(n.Left)
			j := b.EmitJump(vm.OpJumpIfTrueKeep)
			c.compileExpr(n.Right)
			b.PatchJump(j)
			c.unbind(n.Left, n.Right)
		default:
			c.compileExpr(n.Left)
			c.compileExpr(n.Right)
			c.emitBinary(n.Op, n.SpanVal.Start)
		}
	case *SequenceExpr:
		for i, x := range n.Exprs {
			if i > 0 {
				c.emit(vm.OpPop, 0)
			}
			c.compileExpr(x)
		}
		c.unbind(n.Exprs[len(n.Exprs)-1])

	case *ConditionalExpr:
		c.compileExpr(n.Cond)
		other := b.EmitJump(vm.OpJumpIfFalse)
		c.compileExpr(n.Then)
		end := b.EmitJump(vm.OpJump)
		b.PatchJump(other)
		c.compileExpr(n.Else)
		b.PatchJump(end)
		c.unbind(n.Then, n.Else)
	case *MemberExpr:
		c.compileExpr(n.Object)
		c.emit(vm.OpGetProp, c.constant(vm.String(n.Name)))
	case *IndexExpr:
		c.compileExpr(n.Object)
		c.compileExpr(n.Index)
		c.emit(vm.OpGetIndex, 0)
	case *CallExpr:
		c.compileExpr(n.Callee)
		for _, a := range n.Args {
			c.compileExpr(a)
		}
		c.emit(vm.OpCall, len(n.Args))
	default:
		c.fail(e.Span().Start, "unsupported expression %T", e)
		c.emit(vm.OpUndefined, 0)
	}
}

func (c *Compiler) emitBinary(op TokenType, pos Position) {
	code, ok := binaryOpcodes[op]
	if !ok {
		c.fail(pos, "unsupported operator %s", op)
		return
	}
	c.emit(code, 0)
}

func (c *Compiler) compileUnary(n *UnaryExpr) {
	switch n.Op {
	case TokenPlusPlus, TokenMinusMinus:
		c.compileUpdate(n)
	case TokenTypeof:
		if id, ok := n.Operand.(*Identifier); ok && c.fs.resolve(id.Name).kind == refGlobal {
			c.emit(vm.OpTypeofName, c.constant(vm.String(id.Name)))
			return
		}
		c.compileExpr(n.Operand)
		c.emit(vm.OpTypeof, 0)
	default:
		c.compileExpr(n.Operand)
		code, ok := unaryOpcodes[n.Op]
		if !ok {
			c.fail(n.SpanVal.Start, "unsupported operator %s", n.Op)
			return
		}
		c.emit(code, 0)
	}
}

func (c *Compiler) compileLoad(name string, pos Position) {
	r := c.fs.resolve(name)
	switch r.kind {
	case refLocal:
		c.emit(vm.OpLoadLocal, r.slot)
	case refParent:
		c.emit(vm.OpLoadParent, c.parentRef(r, pos))
	case refFunc:
		c.emit(vm.OpLoadFunc, r.fn)
	default:
		c.emit(vm.OpLoadGlobal, c.constant(vm.String(name)))
	}
}

// compileStore writes the top of stack to name, leaving it there.
func (c *Compiler) compileStore(name string, pos Position) {
	r := c.fs.resolve(name)
	switch r.kind {
	case refFunc:
		c.fail(pos, "assignment to function %q", name)
	case refLocal, refParent:
		if r.vk == vm.VarConst {
			c.fail(pos, "assignment to constant variable %q", name)
			return
		}
		if r.kind == refLocal {
			c.emit(vm.OpStoreLocal, r.slot)
		} else {
			c.emit(vm.OpStoreParent, c.parentRef(r, pos))
		}
	default:
		c.emit(vm.OpStoreGlobal, c.constant(vm.String(name)))
	}
}

func (c *Compiler) parentRef(r ref, pos Position) int {
	if r.slot > 0xFFFF {
		c.fail(pos, "too many local variables in enclosing function")
	}
	return int(vm.ParentRef(r.fn, r.slot))
}

// compileAssign handles = and compound assignment per target kind. The
// assigned value is the result.
func (c *Compiler) compileAssign(n *BinaryExpr) {
	op, compound := compoundOps[n.Op]
	pos := n.SpanVal.Start
	switch t := n.Left.(type) {
	case *Identifier:
		if compound {
			c.compileLoad(t.Name, t.SpanVal.Start)
			c.compileExpr(n.Right)
			c.emitBinary(op, pos)
		} else {
			c.compileExpr(n.Right)
		}
		c.compileStore(t.Name, t.SpanVal.Start)
	case *MemberExpr:
		name := c.constant(vm.String(t.Name))
		c.compileExpr(t.Object)
		if compound {
			c.emit(vm.OpDup, 0)
			c.emit(vm.OpGetProp, name)
			c.compileExpr(n.Right)
			c.emitBinary(op, pos)
		} else {
			c.compileExpr(n.Right)
		}
		c.emit(vm.OpSetProp, name)
	case *IndexExpr:
		c.compileExpr(t.Object)
		c.compileExpr(t.Index)
		if compound {
			c.emit(vm.OpDup2, 0)
			c.emit(vm.OpGetIndex, 0)
			c.compileExpr(n.Right)
			c.emitBinary(op, pos)
		} else {
			c.compileExpr(n.Right)
		}
		c.emit(vm.OpSetIndex, 0)
	default:
		c.fail(n.Left.Span().Start, "invalid assignment target")
		c.compileExpr(n.Right)
	}
}

// compileUpdate lowers ++ and --. Postfix forms keep a copy of the old
// numeric value below the write-back.
func (c *Compiler) compileUpdate(n *UnaryExpr) {
	op := vm.OpAdd
	if n.Op == TokenMinusMinus {
		op = vm.OpSub
	}
	step := func(keepDepth int) {
		c.emit(vm.OpToNumber, 0)
		if n.Postfix {
			c.emit(vm.OpDup, 0)
			if keepDepth > 0 {
				c.emit(vm.OpInsert, keepDepth)
			}
		}
		c.emit(vm.OpInt, 1)
		c.emit(op, 0)
	}

	switch t := n.Operand.(type) {
	case *Identifier:
		c.compileLoad(t.Name, t.SpanVal.Start)
		step(0)
		c.compileStore(t.Name, t.SpanVal.Start)
	case *MemberExpr:
		name := c.constant(vm.String(t.Name))
		c.compileExpr(t.Object)
		c.emit(vm.OpDup, 0)
		c.emit(vm.OpGetProp, name)
		step(2)
		c.emit(vm.OpSetProp, name)
	case *IndexExpr:
		c.compileExpr(t.Object)
		c.compileExpr(t.Index)
		c.emit(vm.OpDup2, 0)
		c.emit(vm.OpGetIndex, 0)
		step(3)
		c.emit(vm.OpSetIndex, 0)
	default:
		c.fail(n.SpanVal.Start, "invalid %s operand", n.Op)
		c.compileExpr(n.Operand)
		return
	}
	if n.Postfix {
		c.emit(vm.OpPop, 0)
	}
}
