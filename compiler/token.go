package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the script lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenInteger    // 42, 0xff
	TokenFloat      // 3.14, 1e10
	TokenString     // "hello", 'hello'
	TokenIdentifier // foo, $bar, _baz

	// Keywords
	TokenVar
	TokenLet
	TokenConst
	TokenFunction
	TokenReturn
	TokenIf
	TokenElse
	TokenWhile
	TokenDo
	TokenFor
	TokenSwitch
	TokenCase
	TokenDefault
	TokenBreak
	TokenContinue
	TokenTrue
	TokenFalse
	TokenNull
	TokenUndefined
	TokenThis
	TokenTypeof

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenLBrace    // {
	TokenRBrace    // }
	TokenComma     // ,
	TokenSemicolon // ;
	TokenColon     // :
	TokenDot       // .
	TokenQuestion  // ?
	TokenArrow     // =>

	// Operators
	TokenAssign         // =
	TokenPlusAssign     // +=
	TokenMinusAssign    // -=
	TokenStarAssign     // *=
	TokenSlashAssign    // /=
	TokenPercentAssign  // %=
	TokenStarStarAssign // **=
	TokenAmpAssign      // &=
	TokenPipeAssign     // |=
	TokenCaretAssign    // ^=
	TokenShlAssign      // <<=
	TokenShrAssign      // >>=
	TokenUShrAssign     // >>>=
	TokenOrOr           // ||
	TokenAndAnd         // &&
	TokenPipe           // |
	TokenCaret          // ^
	TokenAmp            // &
	TokenEq             // ==
	TokenNe             // !=
	TokenStrictEq       // ===
	TokenStrictNe       // !==
	TokenLt             // <
	TokenLe             // <=
	TokenGt             // >
	TokenGe             // >=
	TokenShl            // <<
	TokenShr            // >>
	TokenUShr           // >>>
	TokenPlus           // +
	TokenMinus          // -
	TokenStar           // *
	TokenSlash          // /
	TokenPercent        // %
	TokenStarStar       // **
	TokenBang           // !
	TokenTilde          // ~
	TokenPlusPlus       // ++
	TokenMinusMinus     // --
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenInteger:    "INTEGER",
	TokenFloat:      "FLOAT",
	TokenString:     "STRING",
	TokenIdentifier: "IDENTIFIER",

	TokenVar:       "var",
	TokenLet:       "let",
	TokenConst:     "const",
	TokenFunction:  "function",
	TokenReturn:    "return",
	TokenIf:        "if",
	TokenElse:      "else",
	TokenWhile:     "while",
	TokenDo:        "do",
	TokenFor:       "for",
	TokenSwitch:    "switch",
	TokenCase:      "case",
	TokenDefault:   "default",
	TokenBreak:     "break",
	TokenContinue:  "continue",
	TokenTrue:      "true",
	TokenFalse:     "false",
	TokenNull:      "null",
	TokenUndefined: "undefined",
	TokenThis:      "this",
	TokenTypeof:    "typeof",

	TokenLParen:    "(",
	TokenRParen:    ")",
	TokenLBracket:  "[",
	TokenRBracket:  "]",
	TokenLBrace:    "{",
	TokenRBrace:    "}",
	TokenComma:     ",",
	TokenSemicolon: ";",
	TokenColon:     ":",
	TokenDot:       ".",
	TokenQuestion:  "?",
	TokenArrow:     "=>",

	TokenAssign:         "=",
	TokenPlusAssign:     "+=",
	TokenMinusAssign:    "-=",
	TokenStarAssign:     "*=",
	TokenSlashAssign:    "/=",
	TokenPercentAssign:  "%=",
	TokenStarStarAssign: "**=",
	TokenAmpAssign:      "&=",
	TokenPipeAssign:     "|=",
	TokenCaretAssign:    "^=",
	TokenShlAssign:      "<<=",
	TokenShrAssign:      ">>=",
	TokenUShrAssign:     ">>>=",
	TokenOrOr:           "||",
	TokenAndAnd:         "&&",
	TokenPipe:           "|",
	TokenCaret:          "^",
	TokenAmp:            "&",
	TokenEq:             "==",
	TokenNe:             "!=",
	TokenStrictEq:       "===",
	TokenStrictNe:       "!==",
	TokenLt:             "<",
	TokenLe:             "<=",
	TokenGt:             ">",
	TokenGe:             ">=",
	TokenShl:            "<<",
	TokenShr:            ">>",
	TokenUShr:           ">>>",
	TokenPlus:           "+",
	TokenMinus:          "-",
	TokenStar:           "*",
	TokenSlash:          "/",
	TokenPercent:        "%",
	TokenStarStar:       "**",
	TokenBang:           "!",
	TokenTilde:          "~",
	TokenPlusPlus:       "++",
	TokenMinusMinus:     "--",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", t)
}

// keywords maps reserved words to their token types.
var keywords = map[string]TokenType{
	"var":       TokenVar,
	"let":       TokenLet,
	"const":     TokenConst,
	"function":  TokenFunction,
	"return":    TokenReturn,
	"if":        TokenIf,
	"else":      TokenElse,
	"while":     TokenWhile,
	"do":        TokenDo,
	"for":       TokenFor,
	"switch":    TokenSwitch,
	"case":      TokenCase,
	"default":   TokenDefault,
	"break":     TokenBreak,
	"continue":  TokenContinue,
	"true":      TokenTrue,
	"false":     TokenFalse,
	"null":      TokenNull,
	"undefined": TokenUndefined,
	"this":      TokenThis,
	"typeof":    TokenTypeof,
}

// Keywords returns the reserved words, for completion.
func Keywords() []string {
	out := make([]string, 0, len(keywords))
	for k := range keywords {
		out = append(out, k)
	}
	return out
}

// Token represents a lexical token. Len is the length of the source text the
// token was scanned from; NewlineBefore records a line break between this
// token and the previous one.
type Token struct {
	Type          TokenType
	Literal       string
	Pos           Position
	Len           int
	NewlineBefore bool
}

func (t Token) String() string {
	if t.Literal != "" {
		return fmt.Sprintf("%s(%q)@%d:%d", t.Type, t.Literal, t.Pos.Line, t.Pos.Column)
	}
	return fmt.Sprintf("%s@%d:%d", t.Type, t.Pos.Line, t.Pos.Column)
}
