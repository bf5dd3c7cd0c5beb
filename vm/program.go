package vm

import "sort"

// VarKind is the declaration kind of a local variable.
type VarKind uint8

const (
	VarParam VarKind = iota
	VarVar
	VarLet
	VarConst
	VarHidden // compiler temporaries
)

func (k VarKind) String() string {
	switch k {
	case VarParam:
		return "param"
	case VarVar:
		return "var"
	case VarLet:
		return "let"
	case VarConst:
		return "const"
	default:
		return "hidden"
	}
}

// LocalVar describes one slot of a function's locals window. Depth is the
// block nesting level of the declaration; zero is the function body.
type LocalVar struct {
	Slot  int
	Name  string
	Kind  VarKind
	Depth int
}

// Param is a declared parameter with an optional literal default.
type Param struct {
	Name       string
	Default    Value
	HasDefault bool
}

// LineEntry maps the instructions starting at Start to a source line.
type LineEntry struct {
	Start int
	Line  int
}

// Function is the compiled form of one script function.
type Function struct {
	Index  int
	Name   string
	Code   []Instruction
	Params []Param
	Locals []LocalVar // parameters first, then every other slot
	Lines  []LineEntry

	// Arrow functions take `this` from the live frame of ThisFrom, the
	// nearest enclosing non-arrow function.
	Arrow    bool
	ThisFrom int
}

// Size is the length of the function's locals window.
func (f *Function) Size() int {
	return len(f.Locals)
}

// LineAt returns the source line for the instruction at ip, or 0.
func (f *Function) LineAt(ip int) int {
	i := sort.Search(len(f.Lines), func(i int) bool { return f.Lines[i].Start > ip })
	if i == 0 {
		return 0
	}
	return f.Lines[i-1].Line
}

// DisplayName returns the function name or a placeholder for anonymous
// functions.
func (f *Function) DisplayName() string {
	switch {
	case f.Index == 0:
		return "<top>"
	case f.Name == "":
		return "<anonymous>"
	}
	return f.Name
}

// Program is the unit handed from the compiler to the VM: a constant pool,
// a flat function array with index 0 as the top-level code, and the
// top-level named functions.
type Program struct {
	Constants []Value
	Functions []*Function
	Named     map[string]int
}

// Main returns the top-level function.
func (p *Program) Main() *Function {
	return p.Functions[0]
}

// TopLevel returns the top-level local named name, if any. Only
// declarations at the outermost block of the top-level function count.
func (p *Program) TopLevel(name string) (LocalVar, bool) {
	if len(p.Functions) == 0 {
		return LocalVar{}, false
	}
	locals := p.Functions[0].Locals
	for i := len(locals) - 1; i >= 0; i-- {
		lv := locals[i]
		if lv.Name == name && lv.Depth == 0 && lv.Kind != VarHidden {
			return lv, true
		}
	}
	return LocalVar{}, false
}
