package metadata

import (
	"errors"
	"fmt"
	"strings"
)

// MissingFieldMappingError is returned for an export name the field-name
// list does not contain
type MissingFieldMappingError struct {
	ExportName string
}

func (e *MissingFieldMappingError) Error() string {
	return fmt.Sprintf("no field name mapping for export name %q", e.ExportName)
}

// MissingMetadatumError is returned when an export name maps to a canonical
// field the metadata rows do not define. It signals a stale or partial export.
type MissingMetadatumError struct {
	ExportName string
	FieldName  string
}

func (e *MissingMetadatumError) Error() string {
	return fmt.Sprintf("no metadata for field %q (export name %q)", e.FieldName, e.ExportName)
}

// IsMissingFieldMapping checks whether err is, or wraps, a missing mapping error
func IsMissingFieldMapping(err error) bool {
	var me *MissingFieldMappingError
	return errors.As(err, &me)
}

// IsMissingMetadatum checks whether err is, or wraps, a missing metadatum error
func IsMissingMetadatum(err error) bool {
	var me *MissingMetadatumError
	return errors.As(err, &me)
}

// SnapshotError reports raw input that cannot form an index
type SnapshotError struct {
	Field  string
	Reason string
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("invalid metadata snapshot: field %q: %s", e.Field, e.Reason)
}

// FieldError pairs an export name with the error casting it produced
type FieldError struct {
	Field string
	Err   error
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e FieldError) Unwrap() error {
	return e.Err
}

// CastErrors collects per-field failures of a record conversion, sorted by
// field. Fields that converted are still returned alongside it.
type CastErrors []FieldError

func (el CastErrors) Error() string {
	if len(el) == 0 {
		return "no errors"
	}
	if len(el) == 1 {
		return el[0].Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", el[0].Error(), len(el)-1)
}

// Unwrap exposes every field error to errors.Is and errors.As
func (el CastErrors) Unwrap() []error {
	errs := make([]error, len(el))
	for i, e := range el {
		errs[i] = e
	}
	return errs
}

// Fields returns the names of the fields that failed
func (el CastErrors) Fields() []string {
	fields := make([]string, len(el))
	for i, e := range el {
		fields[i] = e.Field
	}
	return fields
}

// Format renders every failure on its own line
func (el CastErrors) Format() string {
	if len(el) == 0 {
		return "No errors"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d field error(s):\n", len(el))
	for i, e := range el {
		fmt.Fprintf(&b, "%d. %s\n", i+1, e.Error())
	}
	return b.String()
}
