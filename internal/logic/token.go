package logic

import "fmt"

// TokenType represents the type of token in host-form logic
type TokenType int

const (
	// Special tokens
	TOKEN_EOF TokenType = iota

	// Literals
	TOKEN_NUMBER
	TOKEN_STRING
	TOKEN_IDENTIFIER

	// Keywords
	TOKEN_AND
	TOKEN_OR
	TOKEN_LOOKUP

	// Operators
	TOKEN_PLUS          // +
	TOKEN_MINUS         // -
	TOKEN_STAR          // *
	TOKEN_SLASH         // /
	TOKEN_LESS          // <
	TOKEN_GREATER       // >
	TOKEN_LESS_EQUAL    // <=
	TOKEN_GREATER_EQUAL // >=
	TOKEN_EQUAL_EQUAL   // ==
	TOKEN_BANG_EQUAL    // !=

	// Delimiters
	TOKEN_LPAREN // (
	TOKEN_RPAREN // )
)

var tokenNames = map[TokenType]string{
	TOKEN_EOF:           "EOF",
	TOKEN_NUMBER:        "NUMBER",
	TOKEN_STRING:        "STRING",
	TOKEN_IDENTIFIER:    "IDENTIFIER",
	TOKEN_AND:           "and",
	TOKEN_OR:            "or",
	TOKEN_LOOKUP:        LookupFunc,
	TOKEN_PLUS:          "+",
	TOKEN_MINUS:         "-",
	TOKEN_STAR:          "*",
	TOKEN_SLASH:         "/",
	TOKEN_LESS:          "<",
	TOKEN_GREATER:       ">",
	TOKEN_LESS_EQUAL:    "<=",
	TOKEN_GREATER_EQUAL: ">=",
	TOKEN_EQUAL_EQUAL:   "==",
	TOKEN_BANG_EQUAL:    "!=",
	TOKEN_LPAREN:        "(",
	TOKEN_RPAREN:        ")",
}

// String returns a string representation of the token type
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token represents a single lexical token
type Token struct {
	Type   TokenType
	Lexeme string
	Pos    int // Byte offset where the token starts
}

// keywords are matched case-insensitively, as the platform does
var keywords = map[string]TokenType{
	"and":      TOKEN_AND,
	"or":       TOKEN_OR,
	LookupFunc: TOKEN_LOOKUP,
}
