// Package schema writes a metadata index out as a flat CSV data dictionary
// or as a grouped schema-migration script.
package schema

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/redcapp/redcapp/internal/codec"
	"github.com/redcapp/redcapp/internal/logic"
	"github.com/redcapp/redcapp/internal/metadata"
)

// Target selects the artifact Write produces
type Target int

const (
	// TargetFlatExport is a CSV in the platform's import column order
	TargetFlatExport Target = iota
	// TargetSchemaMigration is a SQL script with one table per group
	TargetSchemaMigration
)

// UngroupedTable names the table for rows whose group-by column is blank.
// Platform form and field names start with a letter, so it cannot clash
// with one of them.
const UngroupedTable = "_ungrouped"

// ErrSchemaUnsupported is returned when a schema name is given for a dialect
// that cannot qualify tables
var ErrSchemaUnsupported = errors.New("dialect does not support schema names")

func (t Target) String() string {
	switch t {
	case TargetFlatExport:
		return "flat"
	case TargetSchemaMigration:
		return "migration"
	default:
		return fmt.Sprintf("Target(%d)", int(t))
	}
}

// ParseTarget accepts "flat" (or "csv") and "migration" (or "sql")
func ParseTarget(name string) (Target, error) {
	switch strings.ToLower(name) {
	case "flat", "csv", "flat_export":
		return TargetFlatExport, nil
	case "migration", "sql", "schema_migration":
		return TargetSchemaMigration, nil
	}
	return 0, fmt.Errorf("unknown export target %q (expected flat or migration)", name)
}

// Options tunes a migration script. The flat export ignores them.
type Options struct {
	// SchemaName qualifies every generated table when set
	SchemaName string
	// GroupBy is the metadata column rows are grouped into tables by
	GroupBy string
	// Dialect defaults to DialectGeneric
	Dialect Dialect
}

func (o Options) normalize() (Options, error) {
	if o.GroupBy == "" {
		o.GroupBy = metadata.DefaultGroupBy
	}
	if !metadata.IsColumn(o.GroupBy) {
		return o, fmt.Errorf("invalid group_by %q: not a metadata column", o.GroupBy)
	}
	d, err := ParseDialect(string(o.Dialect))
	if err != nil {
		return o, err
	}
	o.Dialect = d
	if o.SchemaName != "" && !o.Dialect.SupportsSchemas() {
		return o, fmt.Errorf("%w: %s", ErrSchemaUnsupported, o.Dialect)
	}
	return o, nil
}

// Write renders idx as target to w. The index is never modified.
//
// A migration field whose validation type is unknown is still emitted, as a
// TEXT column; the affected fields come back as metadata.CastErrors after
// the whole script has been written. Any other error means the output is
// incomplete.
func Write(w io.Writer, idx *metadata.Index, target Target, opts Options) error {
	switch target {
	case TargetFlatExport:
		return writeFlat(w, idx)
	case TargetSchemaMigration:
		opts, err := opts.normalize()
		if err != nil {
			return err
		}
		return writeMigration(w, idx, opts)
	default:
		return fmt.Errorf("unknown export target %s", target)
	}
}

// WriteFile renders idx to path. The file is flushed and closed on every
// path, and removed again if rendering fails. Per-field errors leave the
// complete file in place and are returned as from Write.
func WriteFile(path string, idx *metadata.Index, target Target, opts Options) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	bw := bufio.NewWriter(f)
	defer func() {
		if ferr := bw.Flush(); err == nil && ferr != nil {
			err = fmt.Errorf("failed to write %s: %w", path, ferr)
		}
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
		if err != nil && !IsFieldErrors(err) {
			_ = os.Remove(path)
		}
	}()

	return Write(bw, idx, target, opts)
}

// writeFlat writes the data dictionary with logic back in platform syntax
func writeFlat(w io.Writer, idx *metadata.Index) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(metadata.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, row := range idx.Rows() {
		m := row.Metadatum
		if row.Translated {
			raw, err := logic.Dump(m.BranchingLogic)
			if err != nil {
				return fmt.Errorf("field %s: %w", m.FieldName, err)
			}
			m.BranchingLogic = raw
		}
		if err := cw.Write(m.Row()); err != nil {
			return fmt.Errorf("failed to write field %s: %w", m.FieldName, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

type column struct {
	name       string
	columnType string
}

// writeMigration groups rows by opts.GroupBy. Groups are sorted by key and
// rows keep definition order, so the output is stable for a snapshot.
func writeMigration(w io.Writer, idx *metadata.Index, opts Options) error {
	groups := make(map[string][]column)
	var fieldErrs metadata.CastErrors
	for _, row := range idx.Rows() {
		kind, err := codec.KindOf(row.Tag())
		if err != nil {
			fieldErrs = append(fieldErrs, metadata.FieldError{Field: row.FieldName, Err: err})
			kind = codec.KindText
		}
		key, _ := row.Value(opts.GroupBy)
		groups[key] = append(groups[key], column{
			name:       row.FieldName,
			columnType: opts.Dialect.ColumnType(kind),
		})
	}

	_, blank := groups[""]
	if _, taken := groups[UngroupedTable]; blank && taken {
		return fmt.Errorf("group %q is reserved for rows with a blank %s", UngroupedTable, opts.GroupBy)
	}
	sort.SliceStable(fieldErrs, func(a, b int) bool { return fieldErrs[a].Field < fieldErrs[b].Field })

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sql strings.Builder
	sql.WriteString("-- redcapp schema migration\n")
	sql.WriteString(fmt.Sprintf("-- grouped by %s, dialect %s\n\n", opts.GroupBy, opts.Dialect))

	if opts.SchemaName != "" {
		sql.WriteString(opts.Dialect.createSchema(opts.SchemaName))
		sql.WriteString("\n\n")
	}

	for i, key := range keys {
		table := tableName(opts.SchemaName, key)
		sql.WriteString(opts.Dialect.createTable(table))
		sql.WriteString("\n")
		for _, col := range groups[key] {
			sql.WriteString(opts.Dialect.addColumn(table, col.name, col.columnType))
			sql.WriteString("\n")
		}
		if i < len(keys)-1 {
			sql.WriteString("\n")
		}
	}

	if _, err := io.WriteString(w, sql.String()); err != nil {
		return fmt.Errorf("failed to write migration: %w", err)
	}
	if len(fieldErrs) > 0 {
		return fieldErrs
	}
	return nil
}

// IsFieldErrors reports whether err only lists per-field failures of an
// otherwise complete export
func IsFieldErrors(err error) bool {
	var errs metadata.CastErrors
	return errors.As(err, &errs)
}

func tableName(schemaName, key string) string {
	if key == "" {
		key = UngroupedTable
	}
	if schemaName == "" {
		return QuoteIdentifier(key)
	}
	return QuoteIdentifier(schemaName) + "." + QuoteIdentifier(key)
}
