package exprengine

// Assoc is the associativity of a binary operator.
type Assoc int

const (
	LeftToRight Assoc = iota
	RightToLeft
)

// Fix says where a unary operator may appear relative to its operand.
type Fix int

const (
	Prefix Fix = 1 << iota
	Postfix

	Either = Prefix | Postfix
)

// BinaryOp describes a binary operator. Higher Prec binds tighter.
//
// MinPrefix, when non-zero, rejects a left operand carrying a prefix
// operator with precedence below it, so -2 ** 2 must be written with
// parentheses.
type BinaryOp struct {
	Prec      int
	Assoc     Assoc
	MinPrefix int
}

// UnaryOp describes a unary operator.
type UnaryOp struct {
	Prec int
	Fix  Fix
}

// TernaryOp describes a conditional operator such as `c ? a : b`.
type TernaryOp[T comparable] struct {
	Open  T
	Delim T
	Prec  int
}

// Stream is the token cursor the parser reads from. Peek returns the token
// type at the given offset from the cursor and must return the grammar's EOF
// type past the end of input.
type Stream[T comparable] interface {
	Peek(offset int) T
	Advance()
	Cursor() int
}

// Operand recognizes and builds a primary expression at the cursor.
type Operand[T comparable, N any] struct {
	Name  string
	Match func(p *Parser[T, N]) bool
	Build func(p *Parser[T, N]) (N, error)
}

// Decorator extends an already built operand (member access, index, call).
type Decorator[T comparable, N any] struct {
	Name  string
	Match func(p *Parser[T, N], operand N) bool
	Build func(p *Parser[T, N], operand N) (N, error)
}

// Grammar is the set of tables a language binding supplies to the parser.
// The Make callbacks receive the token index of the operator so bindings can
// attach source positions.
type Grammar[T comparable, N any] struct {
	EOF        T
	Operands   []Operand[T, N]
	Decorators []Decorator[T, N]
	Binary     map[T]BinaryOp
	Unary      map[T]UnaryOp
	Ternary    *TernaryOp[T]

	MakeBinary  func(op T, at int, left, right N) N
	MakeUnary   func(op T, at int, operand N, postfix bool) N
	MakeTernary func(at int, cond, then, els N) N
}

// StopPoint tells the parser where the current expression ends. Match is
// asked whether the token at the cursor ends the expression; afterOperand
// reports whether a complete operand precedes the cursor. When CheckPrevious
// is set and Match declines, the next-outer stop point is consulted too.
type StopPoint struct {
	Match         func(afterOperand bool) bool
	CheckPrevious bool
}
