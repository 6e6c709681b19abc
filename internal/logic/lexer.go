package logic

import "strings"

// Lexer tokenizes host-form logic
type Lexer struct {
	source  string
	start   int
	current int
	tokens  []Token
}

// NewLexer creates a new Lexer for the given expression
func NewLexer(source string) *Lexer {
	return &Lexer{
		source: source,
		tokens: make([]Token, 0, len(source)/4+1),
	}
}

// ScanTokens scans all tokens. The first character outside the grammar
// stops scanning with a *SyntaxError.
func (l *Lexer) ScanTokens() ([]Token, error) {
	for !l.isAtEnd() {
		l.start = l.current
		if err := l.scanToken(); err != nil {
			return nil, err
		}
	}

	l.tokens = append(l.tokens, Token{Type: TOKEN_EOF, Pos: l.current})
	return l.tokens, nil
}

func (l *Lexer) scanToken() error {
	c := l.advance()

	switch c {
	case ' ', '\t', '\r', '\n':
		return nil
	case '(':
		l.addToken(TOKEN_LPAREN)
	case ')':
		l.addToken(TOKEN_RPAREN)
	case '+':
		l.addToken(TOKEN_PLUS)
	case '-':
		l.addToken(TOKEN_MINUS)
	case '*':
		l.addToken(TOKEN_STAR)
	case '/':
		l.addToken(TOKEN_SLASH)
	case '<':
		if l.match('=') {
			l.addToken(TOKEN_LESS_EQUAL)
		} else {
			l.addToken(TOKEN_LESS)
		}
	case '>':
		if l.match('=') {
			l.addToken(TOKEN_GREATER_EQUAL)
		} else {
			l.addToken(TOKEN_GREATER)
		}
	case '=':
		if !l.match('=') {
			return l.errorf("bare '=' is platform syntax; translate the logic first")
		}
		l.addToken(TOKEN_EQUAL_EQUAL)
	case '!':
		if !l.match('=') {
			return l.errorf("unexpected '!'")
		}
		l.addToken(TOKEN_BANG_EQUAL)
	case '\'', '"':
		return l.scanString(c)
	case '[', ']':
		return l.errorf("untranslated field reference")
	default:
		switch {
		case isDigit(c) || (c == '.' && isDigit(l.peek())):
			l.scanNumber()
		case isAlpha(c):
			l.scanIdentifier()
		default:
			return l.errorf("unexpected character %q", c)
		}
	}
	return nil
}

// scanString scans a quoted literal. The platform has no escape sequences.
func (l *Lexer) scanString(quote byte) error {
	for !l.isAtEnd() && l.peek() != quote {
		l.advance()
	}
	if l.isAtEnd() {
		return l.errorf("unterminated string literal")
	}
	l.advance()
	l.tokens = append(l.tokens, Token{
		Type:   TOKEN_STRING,
		Lexeme: l.source[l.start+1 : l.current-1],
		Pos:    l.start,
	})
	return nil
}

func (l *Lexer) scanNumber() {
	for isDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' && isDigit(l.peekNext()) {
		l.advance()
		for isDigit(l.peek()) {
			l.advance()
		}
	}
	l.addToken(TOKEN_NUMBER)
}

func (l *Lexer) scanIdentifier() {
	for isAlpha(l.peek()) || isDigit(l.peek()) {
		l.advance()
	}
	lexeme := l.source[l.start:l.current]
	if tokenType, ok := keywords[strings.ToLower(lexeme)]; ok {
		l.addToken(tokenType)
		return
	}
	l.addToken(TOKEN_IDENTIFIER)
}

// Helper methods

func (l *Lexer) isAtEnd() bool {
	return l.current >= len(l.source)
}

func (l *Lexer) advance() byte {
	c := l.source[l.current]
	l.current++
	return c
}

func (l *Lexer) match(expected byte) bool {
	if l.isAtEnd() || l.source[l.current] != expected {
		return false
	}
	l.current++
	return true
}

func (l *Lexer) peek() byte {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.current]
}

func (l *Lexer) peekNext() byte {
	if l.current+1 >= len(l.source) {
		return 0
	}
	return l.source[l.current+1]
}

func (l *Lexer) addToken(tokenType TokenType) {
	l.tokens = append(l.tokens, Token{
		Type:   tokenType,
		Lexeme: l.source[l.start:l.current],
		Pos:    l.start,
	})
}

func (l *Lexer) errorf(format string, args ...interface{}) error {
	return syntaxErrorf(l.source, l.start, format, args...)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}
