// Package logic translates REDCap branching logic to and from a host
// expression form and evaluates the host form against a record.
//
// Platform syntax:  [age] >= 18 and [consent(1)] = '1'
// Host syntax:      lookup("age") >= 18 and lookup("consent___1") == '1'
//
// Only field references and the comparison operators are rewritten. String
// literals and whitespace pass through untouched, so Dump(Load(x)) == x.
package logic

import (
	"regexp"
	"strings"
)

// Separator joins a checkbox field and one of its choices into the export
// name the platform uses for that choice.
const Separator = "___"

// LookupFunc is the only call the host form contains.
const LookupFunc = "lookup"

const lookupPrefix = LookupFunc + `("`

// Placeholders shield multi-character operators while bare '=' is rewritten.
// NUL never survives Load's input check, so they cannot collide.
const (
	placeholderLE = "\x00LE\x00"
	placeholderGE = "\x00GE\x00"
	placeholderNE = "\x00NE\x00"
)

var (
	protectOperators = strings.NewReplacer(
		"<=", placeholderLE,
		">=", placeholderGE,
		"<>", placeholderNE,
	)
	rewriteEquality  = strings.NewReplacer("=", "==")
	restoreOperators = strings.NewReplacer(
		placeholderLE, "<=",
		placeholderGE, ">=",
		placeholderNE, "!=",
	)
	dumpOperators = strings.NewReplacer("==", "=", "!=", "<>")

	referenceRE = regexp.MustCompile(`^\[(\w+)(?:\((\w+)\))?\]`)
)

// Load converts platform branching logic to host syntax. Empty input yields
// empty output, which callers treat as "always shown".
func Load(logic string) (string, error) {
	if logic == "" {
		return "", nil
	}
	if i := strings.IndexByte(logic, 0); i >= 0 {
		return "", syntaxErrorf(logic, i, "NUL byte in logic")
	}

	var out strings.Builder
	out.Grow(len(logic) * 2)

	err := splitLiterals(logic, func(segment string, offset int, literal bool) error {
		if literal {
			out.WriteString(segment)
			return nil
		}
		code, err := loadCode(logic, segment, offset)
		if err != nil {
			return err
		}
		out.WriteString(code)
		return nil
	})
	if err != nil {
		return "", err
	}
	return out.String(), nil
}

// loadCode rewrites one segment that lies outside string literals.
func loadCode(input, segment string, offset int) (string, error) {
	if i := strings.Index(segment, "=="); i >= 0 {
		return "", syntaxErrorf(input, offset+i, "operator '==' is not platform syntax, use '='")
	}
	if i := strings.Index(segment, "!="); i >= 0 {
		return "", syntaxErrorf(input, offset+i, "operator '!=' is not platform syntax, use '<>'")
	}

	var out strings.Builder
	for i := 0; i < len(segment); {
		switch segment[i] {
		case '[':
			m := referenceRE.FindStringSubmatchIndex(segment[i:])
			if m == nil {
				return "", syntaxErrorf(input, offset+i, "malformed field reference")
			}
			field := segment[i+m[2] : i+m[3]]
			var key string
			if m[4] >= 0 {
				key = encodeKey(field, segment[i+m[4]:i+m[5]], true)
			} else {
				key = encodeKey(field, "", false)
			}
			out.WriteString(lookupPrefix)
			out.WriteString(key)
			out.WriteString(`")`)
			i += m[1]
		case ']':
			return "", syntaxErrorf(input, offset+i, "unbalanced ']'")
		default:
			out.WriteByte(segment[i])
			i++
		}
	}

	code := protectOperators.Replace(out.String())
	code = rewriteEquality.Replace(code)
	return restoreOperators.Replace(code), nil
}

// Dump converts host syntax produced by Load back to platform syntax.
func Dump(expr string) (string, error) {
	if expr == "" {
		return "", nil
	}

	var out strings.Builder
	out.Grow(len(expr))

	code := func(s string) {
		out.WriteString(dumpOperators.Replace(s))
	}

	start := 0
	for i := 0; i < len(expr); {
		switch {
		case strings.HasPrefix(expr[i:], lookupPrefix):
			code(expr[start:i])
			end := strings.Index(expr[i+len(lookupPrefix):], `")`)
			if end < 0 {
				return "", syntaxErrorf(expr, i, "unterminated %s call", LookupFunc)
			}
			raw := expr[i+len(lookupPrefix) : i+len(lookupPrefix)+end]
			field, choice, hasChoice, err := decodeKey(raw)
			if err != nil {
				return "", syntaxErrorf(expr, i, "%v", err)
			}
			out.WriteByte('[')
			out.WriteString(field)
			if hasChoice {
				out.WriteByte('(')
				out.WriteString(choice)
				out.WriteByte(')')
			}
			out.WriteByte(']')
			i += len(lookupPrefix) + end + 2
			start = i
		case expr[i] == '\'' || expr[i] == '"':
			code(expr[start:i])
			end := strings.IndexByte(expr[i+1:], expr[i])
			if end < 0 {
				return "", syntaxErrorf(expr, i, "unterminated string literal")
			}
			out.WriteString(expr[i : i+end+2])
			i += end + 2
			start = i
		default:
			i++
		}
	}
	code(expr[start:])
	return out.String(), nil
}

// splitLiterals walks s and hands fn alternating code and quoted-literal
// segments. Literal segments include their quotes.
func splitLiterals(s string, fn func(segment string, offset int, literal bool) error) error {
	start := 0
	for i := 0; i < len(s); i++ {
		q := s[i]
		if q != '\'' && q != '"' {
			continue
		}
		if i > start {
			if err := fn(s[start:i], start, false); err != nil {
				return err
			}
		}
		end := strings.IndexByte(s[i+1:], q)
		if end < 0 {
			return syntaxErrorf(s, i, "unterminated string literal")
		}
		if err := fn(s[i:i+end+2], i, true); err != nil {
			return err
		}
		i += end + 1
		start = i + 1
	}
	if start < len(s) {
		return fn(s[start:], start, false)
	}
	return nil
}

// encodeKey builds the lookup key for a reference. A name part that could be
// confused with a separator has its underscores escaped as `\_`.
func encodeKey(field, choice string, hasChoice bool) string {
	if !hasChoice {
		if strings.Contains(field, Separator) {
			return escapeUnderscores(field)
		}
		return field
	}
	if strings.Contains(field, Separator) || strings.HasSuffix(field, "_") {
		field = escapeUnderscores(field)
	}
	return field + Separator + choice
}

func escapeUnderscores(s string) string {
	return strings.ReplaceAll(s, "_", `\_`)
}

// decodeKey splits a lookup key at its first unescaped separator.
func decodeKey(raw string) (field, choice string, hasChoice bool, err error) {
	var b strings.Builder
	run := 0
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '\\':
			if i+1 >= len(raw) || raw[i+1] != '_' {
				return "", "", false, &SyntaxError{Message: "invalid escape in lookup key", Input: raw, Pos: i}
			}
			b.WriteByte('_')
			run = 0
			i++
		case c == '_':
			run++
			if run == len(Separator) {
				f := b.String()
				f = f[:len(f)-(len(Separator)-1)]
				choice = raw[i+1:]
				if f == "" || choice == "" {
					return "", "", false, &SyntaxError{Message: "empty field or choice in lookup key", Input: raw, Pos: i}
				}
				return f, choice, true, nil
			}
			b.WriteByte('_')
		case c == '"' || c == '[' || c == ']':
			return "", "", false, &SyntaxError{Message: "invalid character in lookup key", Input: raw, Pos: i}
		default:
			run = 0
			b.WriteByte(c)
		}
	}
	if b.Len() == 0 {
		return "", "", false, &SyntaxError{Message: "empty lookup key", Input: raw}
	}
	return b.String(), "", false, nil
}

// ExportName resolves a lookup key to the export field name it reads.
func ExportName(key string) (string, error) {
	field, choice, hasChoice, err := decodeKey(key)
	if err != nil {
		return "", err
	}
	if hasChoice {
		return field + Separator + choice, nil
	}
	return field, nil
}
