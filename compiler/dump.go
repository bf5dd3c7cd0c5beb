package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// Sexpr renders a node as an s-expression. It is used by `ember -ast` and by
// tests that compare tree shapes.
func Sexpr(n Node) string {
	var b strings.Builder
	writeSexpr(&b, n)
	return b.String()
}

func writeSexpr(b *strings.Builder, n Node) {
	switch n := n.(type) {
	case nil:
		b.WriteString("nil")
	case *EmptyStmt:
		b.WriteString("empty")
	case *IntLiteral:
		b.WriteString(strconv.FormatInt(n.Value, 10))
	case *FloatLiteral:
		b.WriteString(strconv.FormatFloat(n.Value, 'g', -1, 64))
	case *StringLiteral:
		b.WriteString(strconv.Quote(n.Value))
	case *BoolLiteral:
		b.WriteString(strconv.FormatBool(n.Value))
	case *NullLiteral:
		b.WriteString("null")
	case *UndefinedLiteral:
		b.WriteString("undefined")
	case *Identifier:
		b.WriteString(n.Name)
	case *ThisExpr:
		b.WriteString("this")
	case *ArrayLiteral:
		list(b, "array", n.Elements)
	case *ObjectLiteral:
		b.WriteString("(object")
		for _, p := range n.Properties {
			fmt.Fprintf(b, " (%s ", p.Key)
			writeSexpr(b, p.Value)
			b.WriteString(")")
		}
		b.WriteString(")")
	case *FunctionLiteral:
		kind := "function"
		if n.Arrow {
			kind = "arrow"
		}
		names := make([]string, len(n.Params))
		for i, p := range n.Params {
			names[i] = p.Name
		}
		fmt.Fprintf(b, "(%s %s (%s) ", kind, n.Name, strings.Join(names, " "))
		writeSexpr(b, n.Body)
		b.WriteString(")")
	case *UnaryExpr:
		op := n.Op.String()
		if n.Postfix {
			op = "post" + op
		}
		fmt.Fprintf(b, "(%s ", op)
		writeSexpr(b, n.Operand)
		b.WriteString(")")
	case *BinaryExpr:
		fmt.Fprintf(b, "(%s ", n.Op)
		writeSexpr(b, n.Left)
		b.WriteString(" ")
		writeSexpr(b, n.Right)
		b.WriteString(")")
	case *ConditionalExpr:
		b.WriteString("(? ")
		writeSexpr(b, n.Cond)
		b.WriteString(" ")
		writeSexpr(b, n.Then)
		b.WriteString(" ")
		writeSexpr(b, n.Else)
		b.WriteString(")")
	case *SequenceExpr:
		b.WriteString("(,")
		for _, x := range n.Exprs {
			b.WriteString(" ")
			writeSexpr(b, x)
		}
		b.WriteString(")")
	case *MemberExpr:
		b.WriteString("(. ")
		writeSexpr(b, n.Object)
		fmt.Fprintf(b, " %s)", n.Name)
	case *IndexExpr:
		b.WriteString("([] ")
		writeSexpr(b, n.Object)
		b.WriteString(" ")
		writeSexpr(b, n.Index)
		b.WriteString(")")
	case *CallExpr:
		b.WriteString("(call ")
		writeSexpr(b, n.Callee)
		for _, a := range n.Args {
			b.WriteString(" ")
			writeSexpr(b, a)
		}
		b.WriteString(")")

	case *VarDecl:
		fmt.Fprintf(b, "(%s", n.Kind)
		for _, d := range n.Declarators {
			fmt.Fprintf(b, " (%s ", d.Name)
			writeSexpr(b, d.Init)
			b.WriteString(")")
		}
		b.WriteString(")")
	case *FunctionDecl:
		writeSexpr(b, n.Func)
	case *ExprStmt:
		writeSexpr(b, n.X)
	case *ReturnStmt:
		b.WriteString("(return ")
		writeSexpr(b, n.Value)
		b.WriteString(")")
	case *BlockStmt:
		b.WriteString("(block")
		stmts(b, n.Stmts)
		b.WriteString(")")
	case *IfStmt:
		b.WriteString("(if")
		for _, c := range n.Clauses {
			b.WriteString(" ")
			writeSexpr(b, c.Cond)
			b.WriteString(" ")
			writeSexpr(b, c.Body)
		}
		if n.Else != nil {
			b.WriteString(" else ")
			writeSexpr(b, n.Else)
		}
		b.WriteString(")")
	case *WhileStmt:
		b.WriteString("(while ")
		writeSexpr(b, n.Cond)
		b.WriteString(" ")
		writeSexpr(b, n.Body)
		b.WriteString(")")
	case *DoWhileStmt:
		b.WriteString("(do ")
		writeSexpr(b, n.Body)
		b.WriteString(" ")
		writeSexpr(b, n.Cond)
		b.WriteString(")")
	case *ForStmt:
		b.WriteString("(for ")
		writeSexpr(b, n.Init)
		b.WriteString(" ")
		writeSexpr(b, n.Cond)
		b.WriteString(" ")
		writeSexpr(b, n.Update)
		b.WriteString(" ")
		writeSexpr(b, n.Body)
		b.WriteString(")")
	case *SwitchStmt:
		b.WriteString("(switch ")
		writeSexpr(b, n.Subject)
		for _, c := range n.Cases {
			if c.Test == nil {
				b.WriteString(" (default")
				stmts(b, c.Body)
			} else {
				b.WriteString(" (case ")
				writeSexpr(b, c.Test)
				stmts(b, c.Body)
			}
			b.WriteString(")")
		}
		b.WriteString(")")
	case *BreakStmt:
		b.WriteString("break")
	case *ContinueStmt:
		b.WriteString("continue")
	default:
		fmt.Fprintf(b, "<%T>", n)
	}
}

func list(b *strings.Builder, head string, xs []Expr) {
	b.WriteString("(" + head)
	for _, x := range xs {
		b.WriteString(" ")
		writeSexpr(b, x)
	}
	b.WriteString(")")
}

func stmts(b *strings.Builder, ss []Stmt) {
	for _, s := range ss {
		b.WriteString(" ")
		writeSexpr(b, s)
	}
}
