package logic

import (
	"strconv"
)

// Operator precedence levels (higher number = higher precedence)
const (
	PREC_NONE       = iota
	PREC_OR         // or
	PREC_AND        // and
	PREC_COMPARISON // == != < <= > >=
	PREC_TERM       // + -
	PREC_FACTOR     // * /
	PREC_UNARY      // - (unary)
)

var infixPrecedence = map[TokenType]int{
	TOKEN_OR:            PREC_OR,
	TOKEN_AND:           PREC_AND,
	TOKEN_EQUAL_EQUAL:   PREC_COMPARISON,
	TOKEN_BANG_EQUAL:    PREC_COMPARISON,
	TOKEN_LESS:          PREC_COMPARISON,
	TOKEN_LESS_EQUAL:    PREC_COMPARISON,
	TOKEN_GREATER:       PREC_COMPARISON,
	TOKEN_GREATER_EQUAL: PREC_COMPARISON,
	TOKEN_PLUS:          PREC_TERM,
	TOKEN_MINUS:         PREC_TERM,
	TOKEN_STAR:          PREC_FACTOR,
	TOKEN_SLASH:         PREC_FACTOR,
}

// Parser builds an expression tree from host-form tokens
type Parser struct {
	source  string
	tokens  []Token
	current int
}

// Parse tokenizes and parses a host-form expression. An empty or
// whitespace-only expression yields a nil tree.
func Parse(source string) (Expr, error) {
	tokens, err := NewLexer(source).ScanTokens()
	if err != nil {
		return nil, err
	}

	p := &Parser{source: source, tokens: tokens}
	if p.check(TOKEN_EOF) {
		return nil, nil
	}

	expr, err := p.parseExpression(PREC_OR)
	if err != nil {
		return nil, err
	}
	if !p.check(TOKEN_EOF) {
		return nil, p.errorAt(p.peek(), "unexpected %s after expression", describe(p.peek()))
	}
	return expr, nil
}

// parseExpression implements operator precedence climbing. All binary
// operators are left associative. Comparisons do not chain.
func (p *Parser) parseExpression(minPrec int) (Expr, error) {
	left, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}

	for {
		op := p.peek()
		prec, ok := infixPrecedence[op.Type]
		if !ok || prec < minPrec {
			return left, nil
		}
		p.advance()

		right, err := p.parseExpression(prec + 1)
		if err != nil {
			return nil, err
		}

		switch {
		case op.Type == TOKEN_AND || op.Type == TOKEN_OR:
			left = &LogicalExpr{Operator: op.Type, Left: left, Right: right, Pos: op.Pos}
		case prec == PREC_COMPARISON:
			if next := p.peek(); infixPrecedence[next.Type] == PREC_COMPARISON {
				return nil, p.errorAt(next, "comparisons cannot be chained")
			}
			left = &BinaryExpr{Operator: op.Type, Left: left, Right: right, Pos: op.Pos}
		default:
			left = &BinaryExpr{Operator: op.Type, Left: left, Right: right, Pos: op.Pos}
		}
	}
}

func (p *Parser) parsePrefix() (Expr, error) {
	if p.check(TOKEN_MINUS) {
		op := p.advance()
		operand, err := p.parseExpression(PREC_UNARY)
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Operator: op.Type, Operand: operand, Pos: op.Pos}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.peek()

	switch tok.Type {
	case TOKEN_NUMBER:
		p.advance()
		n, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			return nil, p.errorAt(tok, "invalid number %q", tok.Lexeme)
		}
		return &LiteralExpr{Value: NumberValue(n), Pos: tok.Pos}, nil

	case TOKEN_STRING:
		p.advance()
		return &LiteralExpr{Value: StringValue(tok.Lexeme), Pos: tok.Pos}, nil

	case TOKEN_LOOKUP:
		return p.parseLookup()

	case TOKEN_LPAREN:
		p.advance()
		expr, err := p.parseExpression(PREC_OR)
		if err != nil {
			return nil, err
		}
		if _, err := p.consume(TOKEN_RPAREN, "expected ')'"); err != nil {
			return nil, err
		}
		return expr, nil

	case TOKEN_IDENTIFIER:
		return nil, p.errorAt(tok, "unknown identifier %q", tok.Lexeme)
	}

	return nil, p.errorAt(tok, "expected expression, got %s", describe(tok))
}

// parseLookup parses lookup("key")
func (p *Parser) parseLookup() (Expr, error) {
	start := p.advance()
	if _, err := p.consume(TOKEN_LPAREN, "expected '(' after "+LookupFunc); err != nil {
		return nil, err
	}
	key, err := p.consume(TOKEN_STRING, "expected quoted key in "+LookupFunc)
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(TOKEN_RPAREN, "expected ')' after "+LookupFunc+" key"); err != nil {
		return nil, err
	}

	name, err := ExportName(key.Lexeme)
	if err != nil {
		return nil, p.errorAt(key, "%v", err)
	}
	return &LookupExpr{Key: key.Lexeme, ExportName: name, Pos: start.Pos}, nil
}

// Helper methods for token manipulation

func (p *Parser) peek() Token {
	return p.tokens[p.current]
}

func (p *Parser) check(tokenType TokenType) bool {
	return p.peek().Type == tokenType
}

func (p *Parser) advance() Token {
	tok := p.tokens[p.current]
	if tok.Type != TOKEN_EOF {
		p.current++
	}
	return tok
}

func (p *Parser) consume(tokenType TokenType, message string) (Token, error) {
	if p.check(tokenType) {
		return p.advance(), nil
	}
	return Token{}, p.errorAt(p.peek(), "%s, got %s", message, describe(p.peek()))
}

func (p *Parser) errorAt(tok Token, format string, args ...interface{}) error {
	return syntaxErrorf(p.source, tok.Pos, format, args...)
}

func describe(tok Token) string {
	if tok.Type == TOKEN_EOF {
		return "end of expression"
	}
	return strconv.Quote(tok.Lexeme)
}
