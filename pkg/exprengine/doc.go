// Package exprengine is a grammar-agnostic operator-precedence expression
// parser.
//
// A concrete language supplies a Grammar: operand recognizers, decorators
// (member access, indexing, calls), binary and unary operator tables and an
// optional ternary descriptor. The Parser consumes tokens from a Stream and
// produces one expression tree per Parse call using a generalized
// shunting-yard algorithm.
//
// Where an expression ends is decided by a stack of stop points pushed and
// popped by the grammar binding (closing parentheses, argument separators,
// statement terminators). The parser keeps its postfix buffer, operator
// stack, prefix stack and reduction stack as scratch arenas addressed by
// base index, so builders may call Parse recursively.
package exprengine
