package codec

import (
	"errors"
	"fmt"
)

// UnknownValidationTypeError is returned for a tag missing from the table
type UnknownValidationTypeError struct {
	Tag string
}

func (e *UnknownValidationTypeError) Error() string {
	return fmt.Sprintf("unknown validation type %q", e.Tag)
}

// IsUnknownValidationType checks whether err is, or wraps, an unknown tag error
func IsUnknownValidationType(err error) bool {
	var ue *UnknownValidationTypeError
	return errors.As(err, &ue)
}

// ValueError reports a wire string or typed value the tag cannot convert
type ValueError struct {
	Tag   string
	Value interface{}
	Err   error
}

func (e *ValueError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s value %v: %v", tagName(e.Tag), e.Value, e.Err)
	}
	return fmt.Sprintf("invalid %s value %v", tagName(e.Tag), e.Value)
}

func (e *ValueError) Unwrap() error {
	return e.Err
}

func tagName(tag string) string {
	if tag == "" {
		return "text"
	}
	return tag
}
