package logic

import (
	"fmt"
	"strconv"
	"strings"
)

// Env supplies record values to the evaluator by export field name
type Env interface {
	Lookup(key string) (string, bool)
}

// MapEnv adapts a wire-format record to Env
type MapEnv map[string]string

// Lookup implements Env
func (m MapEnv) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

type valueKind int

const (
	kindString valueKind = iota
	kindNumber
	kindBool
)

// Value is the result of evaluating a sub-expression
type Value struct {
	kind valueKind
	str  string
	num  float64
	b    bool
}

// StringValue wraps a string
func StringValue(s string) Value { return Value{kind: kindString, str: s} }

// NumberValue wraps a number
func NumberValue(n float64) Value { return Value{kind: kindNumber, num: n} }

// BoolValue wraps a boolean
func BoolValue(b bool) Value { return Value{kind: kindBool, b: b} }

// number reports the numeric reading of v. Strings are numeric when the
// whole trimmed text parses as a float; blanks never are.
func (v Value) number() (float64, bool) {
	switch v.kind {
	case kindNumber:
		return v.num, true
	case kindString:
		s := strings.TrimSpace(v.str)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(s, 64)
		return n, err == nil
	}
	return 0, false
}

// Truthy mirrors the platform: blank and "0" are false.
func (v Value) Truthy() bool {
	switch v.kind {
	case kindBool:
		return v.b
	case kindNumber:
		return v.num != 0
	default:
		return v.str != "" && v.str != "0"
	}
}

func (v Value) String() string {
	switch v.kind {
	case kindBool:
		return strconv.FormatBool(v.b)
	case kindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return v.str
	}
}

// Program is a compiled host-form expression
type Program struct {
	source string
	root   Expr
}

// Compile parses expr once for repeated evaluation
func Compile(expr string) (*Program, error) {
	root, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	return &Program{source: expr, root: root}, nil
}

// Source returns the expression the program was compiled from
func (p *Program) Source() string {
	return p.source
}

// Eval evaluates the program against env. An empty program is true.
func (p *Program) Eval(env Env) (bool, error) {
	if p.root == nil {
		return true, nil
	}
	v, err := eval(p.root, env)
	if err != nil {
		return false, err
	}
	return v.Truthy(), nil
}

// Evaluate compiles and evaluates expr in one step
func Evaluate(expr string, env Env) (bool, error) {
	prog, err := Compile(expr)
	if err != nil {
		return false, err
	}
	return prog.Eval(env)
}

func eval(e Expr, env Env) (Value, error) {
	switch n := e.(type) {
	case *LiteralExpr:
		return n.Value, nil

	case *LookupExpr:
		v, _ := env.Lookup(n.ExportName)
		return StringValue(v), nil

	case *UnaryExpr:
		operand, err := eval(n.Operand, env)
		if err != nil {
			return Value{}, err
		}
		num, ok := operand.number()
		if !ok {
			return Value{}, &EvalError{Message: fmt.Sprintf("cannot negate %q", operand.String()), Pos: n.Pos}
		}
		return NumberValue(-num), nil

	case *LogicalExpr:
		left, err := eval(n.Left, env)
		if err != nil {
			return Value{}, err
		}
		if n.Operator == TOKEN_OR && left.Truthy() {
			return BoolValue(true), nil
		}
		if n.Operator == TOKEN_AND && !left.Truthy() {
			return BoolValue(false), nil
		}
		right, err := eval(n.Right, env)
		if err != nil {
			return Value{}, err
		}
		return BoolValue(right.Truthy()), nil

	case *BinaryExpr:
		left, err := eval(n.Left, env)
		if err != nil {
			return Value{}, err
		}
		right, err := eval(n.Right, env)
		if err != nil {
			return Value{}, err
		}
		return evalBinary(n, left, right)
	}

	return Value{}, &EvalError{Message: fmt.Sprintf("unsupported node %T", e), Pos: e.Position()}
}

func evalBinary(n *BinaryExpr, left, right Value) (Value, error) {
	switch n.Operator {
	case TOKEN_PLUS, TOKEN_MINUS, TOKEN_STAR, TOKEN_SLASH:
		l, lok := left.number()
		r, rok := right.number()
		if !lok || !rok {
			return Value{}, &EvalError{
				Message: fmt.Sprintf("arithmetic on non-numeric operands %q %s %q", left.String(), n.Operator, right.String()),
				Pos:     n.Pos,
			}
		}
		switch n.Operator {
		case TOKEN_PLUS:
			return NumberValue(l + r), nil
		case TOKEN_MINUS:
			return NumberValue(l - r), nil
		case TOKEN_STAR:
			return NumberValue(l * r), nil
		default:
			if r == 0 {
				return Value{}, &EvalError{Message: "division by zero", Pos: n.Pos}
			}
			return NumberValue(l / r), nil
		}
	}

	cmp, err := compare(left, right, n)
	if err != nil {
		return Value{}, err
	}
	switch n.Operator {
	case TOKEN_EQUAL_EQUAL:
		return BoolValue(cmp == 0), nil
	case TOKEN_BANG_EQUAL:
		return BoolValue(cmp != 0), nil
	case TOKEN_LESS:
		return BoolValue(cmp < 0), nil
	case TOKEN_LESS_EQUAL:
		return BoolValue(cmp <= 0), nil
	case TOKEN_GREATER:
		return BoolValue(cmp > 0), nil
	case TOKEN_GREATER_EQUAL:
		return BoolValue(cmp >= 0), nil
	}
	return Value{}, &EvalError{Message: fmt.Sprintf("unsupported operator %s", n.Operator), Pos: n.Pos}
}

// compare orders two values: numerically when both read as numbers,
// as booleans for equality only, and as strings otherwise.
func compare(left, right Value, n *BinaryExpr) (int, error) {
	if left.kind == kindBool || right.kind == kindBool {
		if n.Operator != TOKEN_EQUAL_EQUAL && n.Operator != TOKEN_BANG_EQUAL {
			return 0, &EvalError{Message: fmt.Sprintf("cannot order boolean values with %s", n.Operator), Pos: n.Pos}
		}
		if left.Truthy() == right.Truthy() {
			return 0, nil
		}
		return 1, nil
	}

	if l, ok := left.number(); ok {
		if r, ok := right.number(); ok {
			switch {
			case l < r:
				return -1, nil
			case l > r:
				return 1, nil
			}
			return 0, nil
		}
	}
	return strings.Compare(left.String(), right.String()), nil
}
