// Package codec converts field values between their REDCap wire strings and
// typed Go values, keyed by the field's validation type.
//
// Typed values are:
//
//	date, datetime and time tags   time.Time (UTC; time tags on the zero date)
//	integer                        int64
//	number tags                    decimal.Decimal
//	everything else                string
//
// A blank wire value loads to nil for every non-text tag, and nil dumps to "".
package codec

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// StorageKind is the column kind a validation type is persisted as
type StorageKind int

const (
	KindText StorageKind = iota
	KindDate
	KindDateTime
	KindTime
	KindInt
	KindFloat
)

// String returns the storage kind name used in emitted schemas
func (k StorageKind) String() string {
	switch k {
	case KindDate:
		return "DATE"
	case KindDateTime:
		return "DATETIME"
	case KindTime:
		return "TIME"
	case KindInt:
		return "INT"
	case KindFloat:
		return "FLOAT"
	default:
		return "TEXT"
	}
}

// LoadFunc converts a non-blank wire string to a typed value
type LoadFunc func(wire string) (interface{}, error)

// DumpFunc converts a non-nil typed value to its wire string
type DumpFunc func(value interface{}) (string, error)

// Codec is the load/dump/storage-kind triple for one validation type
type Codec struct {
	Tag  string
	Kind StorageKind
	load LoadFunc
	dump DumpFunc
}

// Load converts a wire string to the tag's typed value
func (c Codec) Load(wire string) (interface{}, error) {
	if wire == "" && c.Kind != KindText {
		return nil, nil
	}
	v, err := c.load(wire)
	if err != nil {
		return nil, &ValueError{Tag: c.Tag, Value: wire, Err: err}
	}
	return v, nil
}

// Dump converts a typed value back to its exact wire string
func (c Codec) Dump(value interface{}) (string, error) {
	if value == nil {
		return "", nil
	}
	s, err := c.dump(value)
	if err != nil {
		return "", &ValueError{Tag: c.Tag, Value: value, Err: err}
	}
	return s, nil
}

// Lookup returns the codec registered for tag
func Lookup(tag string) (Codec, error) {
	c, ok := registry[tag]
	if !ok {
		return Codec{}, &UnknownValidationTypeError{Tag: tag}
	}
	return c, nil
}

// Load converts wire using the codec for tag
func Load(tag, wire string) (interface{}, error) {
	c, err := Lookup(tag)
	if err != nil {
		return nil, err
	}
	return c.Load(wire)
}

// Dump converts value using the codec for tag
func Dump(tag string, value interface{}) (string, error) {
	c, err := Lookup(tag)
	if err != nil {
		return "", err
	}
	return c.Dump(value)
}

// KindOf returns the storage kind for tag
func KindOf(tag string) (StorageKind, error) {
	c, err := Lookup(tag)
	if err != nil {
		return KindText, err
	}
	return c.Kind, nil
}

// Tags returns every registered validation type, sorted
func Tags() []string {
	tags := make([]string, 0, len(registry))
	for tag := range registry {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Equal compares two typed values the way the round trip law needs:
// decimals numerically, times by instant, everything else by ==.
func Equal(a, b interface{}) bool {
	switch av := a.(type) {
	case decimal.Decimal:
		bv, ok := b.(decimal.Decimal)
		return ok && av.Equal(bv)
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case nil:
		return b == nil
	}
	return a == b
}

func typeMismatch(want string, got interface{}) error {
	return fmt.Errorf("expected %s, got %T", want, got)
}
