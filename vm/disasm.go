package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of every function in prog.
func Disassemble(prog *Program) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("; Ember Bytecode: %d functions, %d constants\n", len(prog.Functions), len(prog.Constants)))
	if len(prog.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, c := range prog.Constants {
			display := Inspect(c)
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, display))
		}
	}
	for _, fn := range prog.Functions {
		sb.WriteString("\n")
		sb.WriteString(DisassembleFunction(prog, fn))
	}
	return sb.String()
}

// DisassembleFunction lists one function with its parameters and locals.
func DisassembleFunction(prog *Program, fn *Function) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("; === #%d %s ===", fn.Index, fn.DisplayName()))
	if fn.Arrow {
		sb.WriteString(fmt.Sprintf(" [ARROW this<-#%d]", fn.ThisFrom))
	}
	sb.WriteString("\n")

	if len(fn.Params) > 0 {
		sb.WriteString(fmt.Sprintf("; Parameters (%d): ", len(fn.Params)))
		for i, p := range fn.Params {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(p.Name)
			if p.HasDefault {
				sb.WriteString("=" + Inspect(p.Default))
			}
		}
		sb.WriteString("\n")
	}
	if len(fn.Locals) > 0 {
		sb.WriteString(fmt.Sprintf("; Locals: %d slots\n", len(fn.Locals)))
	}

	line := 0
	for ip, in := range fn.Code {
		prefix := "    "
		if l := fn.LineAt(ip); l != line {
			line = l
			prefix = fmt.Sprintf("%4d", l)
		}
		sb.WriteString(fmt.Sprintf("%s %04d  %-20s", prefix, ip, in.Op))
		sb.WriteString(operand(prog, fn, in))
		sb.WriteString("\n")
	}
	return sb.String()
}

func operand(prog *Program, fn *Function, in Instruction) string {
	arg := int(in.Arg)
	switch in.Op.Info().Operand {
	case OperandInt, OperandCount:
		return fmt.Sprintf("%d", arg)
	case OperandConst:
		if arg >= 0 && arg < len(prog.Constants) {
			return fmt.Sprintf("%d (%s)", arg, Inspect(prog.Constants[arg]))
		}
		return fmt.Sprintf("%d (?)", arg)
	case OperandSlot:
		if arg >= 0 && arg < len(fn.Locals) {
			return fmt.Sprintf("%d (%s)", arg, localName(fn.Locals[arg]))
		}
		return fmt.Sprintf("%d", arg)
	case OperandParent:
		fi, slot := SplitParentRef(in.Arg)
		if fi >= 0 && fi < len(prog.Functions) && slot < len(prog.Functions[fi].Locals) {
			return fmt.Sprintf("#%d.%d (%s)", fi, slot, localName(prog.Functions[fi].Locals[slot]))
		}
		return fmt.Sprintf("#%d.%d", fi, slot)
	case OperandFunc:
		if arg >= 0 && arg < len(prog.Functions) {
			return fmt.Sprintf("#%d (%s)", arg, prog.Functions[arg].DisplayName())
		}
		return fmt.Sprintf("#%d", arg)
	case OperandTarget:
		return fmt.Sprintf("-> %04d", arg)
	}
	return ""
}

func localName(lv LocalVar) string {
	if lv.Kind == VarHidden {
		return "<" + lv.Name + ">"
	}
	return lv.Name
}
