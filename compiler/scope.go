package compiler

import (
	"maps"

	"github.com/chazu/ember/vm"
)

// ---------------------------------------------------------------------------
// Scopes: block and function state during code generation
// ---------------------------------------------------------------------------

// binding is a resolved local slot.
type binding struct {
	slot int
	kind vm.VarKind
}

// scope is one block. vars is a snapshot of the enclosing block's bindings
// plus this block's own declarations, so leaving a block needs no undo.
type scope struct {
	parent *scope
	depth  int
	vars   map[string]binding
	own    map[string]bool
	funcs  map[string]int // function declarations of this block
}

func newScope(parent *scope) *scope {
	s := &scope{
		parent: parent,
		own:    make(map[string]bool),
		funcs:  make(map[string]int),
	}
	if parent != nil {
		s.depth = parent.depth + 1
		s.vars = maps.Clone(parent.vars)
	} else {
		s.vars = make(map[string]binding)
	}
	return s
}

// jumpTarget collects the unpatched jumps of a loop or switch.
type jumpTarget struct {
	loop      bool // switch targets accept break only
	breaks    []int
	continues []int
}

// funcState is the per-function compilation context.
type funcState struct {
	parent     *funcState
	fn         *vm.Function
	b          *vm.Builder
	scope      *scope
	targets    []*jumpTarget
	completion int // hidden completion slot of the top-level function, else -1
}

func (fs *funcState) pushScope() {
	fs.scope = newScope(fs.scope)
}

func (fs *funcState) popScope() {
	fs.scope = fs.scope.parent
}

// addLocal allocates a new slot. Slots are never reused within a function.
func (fs *funcState) addLocal(name string, kind vm.VarKind) int {
	slot := len(fs.fn.Locals)
	fs.fn.Locals = append(fs.fn.Locals, vm.LocalVar{
		Slot:  slot,
		Name:  name,
		Kind:  kind,
		Depth: fs.scope.depth,
	})
	return slot
}

// declare binds name in the current block. ok is false when the block
// already declares it.
func (fs *funcState) declare(name string, kind vm.VarKind) (int, bool) {
	if fs.scope.own[name] {
		return fs.scope.vars[name].slot, false
	}
	slot := fs.addLocal(name, kind)
	fs.scope.own[name] = true
	fs.scope.vars[name] = binding{slot: slot, kind: kind}
	return slot, true
}

// hidden allocates a compiler temporary.
func (fs *funcState) hidden(name string) int {
	return fs.addLocal(name, vm.VarHidden)
}

// ---------------------------------------------------------------------------
// Name resolution
// ---------------------------------------------------------------------------

type refKind int

const (
	refGlobal refKind = iota
	refLocal
	refParent
	refFunc
)

// ref is where an identifier resolves to.
type ref struct {
	kind refKind
	slot int
	fn   int // owning function for refParent, function index for refFunc
	vk   vm.VarKind
}

// resolve looks name up: current function locals, then function
// declarations visible from here, then enclosing function locals, then
// globals.
func (fs *funcState) resolve(name string) ref {
	if b, ok := fs.scope.vars[name]; ok {
		return ref{kind: refLocal, slot: b.slot, vk: b.kind}
	}
	for f := fs; f != nil; f = f.parent {
		for s := f.scope; s != nil; s = s.parent {
			if idx, ok := s.funcs[name]; ok {
				return ref{kind: refFunc, fn: idx}
			}
		}
	}
	for f := fs.parent; f != nil; f = f.parent {
		if b, ok := f.scope.vars[name]; ok {
			return ref{kind: refParent, slot: b.slot, fn: f.fn.Index, vk: b.kind}
		}
	}
	return ref{kind: refGlobal}
}

// target returns the innermost jump target accepting break (any) or
// continue (loops only).
func (fs *funcState) target(forContinue bool) *jumpTarget {
	for i := len(fs.targets) - 1; i >= 0; i-- {
		if t := fs.targets[i]; t.loop || !forContinue {
			return t
		}
	}
	return nil
}

// thisFrom is the function whose frame supplies `this` to code compiled in
// fs: fs itself unless it is an arrow function.
func (fs *funcState) thisFrom() int {
	if fs.fn.Arrow {
		return fs.fn.ThisFrom
	}
	return fs.fn.Index
}

// ---------------------------------------------------------------------------
// Declaration pre-passes
// ---------------------------------------------------------------------------

// hoistVars declares every `var` in stmts at function scope, without
// descending into nested functions.
func (c *Compiler) hoistVars(stmts []Stmt) {
	for _, s := range stmts {
		c.hoistStmt(s)
	}
}

func (c *Compiler) hoistStmt(s Stmt) {
	fs := c.fs
	switch n := s.(type) {
	case *VarDecl:
		if n.Kind != DeclVar {
			return
		}
		for _, d := range n.Declarators {
			if b, ok := fs.scope.vars[d.Name]; ok && (b.kind == vm.VarVar || b.kind == vm.VarParam) {
				continue
			}
			fs.declare(d.Name, vm.VarVar)
		}
	case *BlockStmt:
		c.hoistVars(n.Stmts)
	case *IfStmt:
		for _, cl := range n.Clauses {
			c.hoistStmt(cl.Body)
		}
		if n.Else != nil {
			c.hoistStmt(n.Else)
		}
	case *WhileStmt:
		c.hoistStmt(n.Body)
	case *DoWhileStmt:
		c.hoistStmt(n.Body)
	case *ForStmt:
		c.hoistStmt(n.Init)
		c.hoistStmt(n.Body)
	case *SwitchStmt:
		for _, cc := range n.Cases {
			c.hoistVars(cc.Body)
		}
	}
}

// declareBlock binds the let/const names and function declarations that
// stmts introduce into the current block, before any of them is compiled.
func (c *Compiler) declareBlock(stmts []Stmt) {
	fs := c.fs
	for _, s := range stmts {
		switch n := s.(type) {
		case *VarDecl:
			if n.Kind == DeclVar {
				continue
			}
			kind := vm.VarLet
			if n.Kind == DeclConst {
				kind = vm.VarConst
			}
			for _, d := range n.Declarators {
				if _, isFunc := fs.scope.funcs[d.Name]; isFunc {
					c.fail(d.Pos, "identifier %q has already been declared", d.Name)
					continue
				}
				if _, ok := fs.declare(d.Name, kind); !ok {
					c.fail(d.Pos, "identifier %q has already been declared", d.Name)
				}
			}
		case *FunctionDecl:
			name := n.Func.Name
			if fs.scope.own[name] {
				c.fail(n.SpanVal.Start, "identifier %q has already been declared", name)
				continue
			}
			if _, dup := fs.scope.funcs[name]; dup {
				c.fail(n.SpanVal.Start, "function %q has already been declared", name)
				continue
			}
			idx := c.reserveFunction(name)
			fs.scope.funcs[name] = idx
			c.declared[n.Func] = idx
		}
	}
}
