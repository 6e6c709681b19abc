package metadata

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/redcapp/redcapp/internal/codec"
	"github.com/redcapp/redcapp/internal/logic"
)

// Index owns one metadata snapshot. Fields are resolved on first access and
// cached for the index's lifetime; a changed snapshot needs a new Index.
// An Index is safe for concurrent use once New returns.
type Index struct {
	rows     []Metadatum
	byName   map[string]int
	mappings map[string]FieldName
	exports  []string
	logger   *zap.Logger

	// mu guards resolved and translated
	mu         sync.RWMutex
	resolved   map[string]*Resolved
	translated map[string]*translation
}

// translation is the memoized result of translating one canonical field's
// branching logic. Checkbox choices of the same field share it.
type translation struct {
	host       string
	err        error
	program    *logic.Program
	compileErr error
}

// Option configures an Index
type Option func(*Index)

// WithLogger sets the logger resolution is reported to
func WithLogger(logger *zap.Logger) Option {
	return func(i *Index) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// New builds an index from the two raw exports. Canonical and export names
// must be unique, and only checkbox fields may have several export names.
func New(rawMetadata []Metadatum, rawFieldNames []FieldName, opts ...Option) (*Index, error) {
	idx := &Index{
		rows:       make([]Metadatum, len(rawMetadata)),
		byName:     make(map[string]int, len(rawMetadata)),
		mappings:   make(map[string]FieldName, len(rawFieldNames)),
		exports:    make([]string, 0, len(rawFieldNames)),
		logger:     zap.NewNop(),
		resolved:   make(map[string]*Resolved),
		translated: make(map[string]*translation),
	}
	for _, opt := range opts {
		opt(idx)
	}

	copy(idx.rows, rawMetadata)
	for pos, m := range idx.rows {
		if m.FieldName == "" {
			return nil, &SnapshotError{Field: m.FieldName, Reason: fmt.Sprintf("metadata row %d has no field name", pos)}
		}
		if _, dup := idx.byName[m.FieldName]; dup {
			return nil, &SnapshotError{Field: m.FieldName, Reason: "duplicate field name"}
		}
		idx.byName[m.FieldName] = pos
	}

	perField := make(map[string]int)
	for _, fn := range rawFieldNames {
		if fn.ExportFieldName == "" || fn.OriginalFieldName == "" {
			return nil, &SnapshotError{Field: fn.OriginalFieldName, Reason: "field name mapping with empty name"}
		}
		if _, dup := idx.mappings[fn.ExportFieldName]; dup {
			return nil, &SnapshotError{Field: fn.OriginalFieldName, Reason: fmt.Sprintf("duplicate export name %q", fn.ExportFieldName)}
		}
		idx.mappings[fn.ExportFieldName] = fn
		idx.exports = append(idx.exports, fn.ExportFieldName)
		perField[fn.OriginalFieldName]++
	}

	for field, n := range perField {
		pos, ok := idx.byName[field]
		if !ok || n < 2 {
			continue
		}
		if idx.rows[pos].FieldType != FieldTypeCheckbox {
			return nil, &SnapshotError{
				Field:  field,
				Reason: fmt.Sprintf("%s field has %d export names", idx.rows[pos].FieldType, n),
			}
		}
	}

	idx.logger.Debug("metadata index built",
		zap.Int("fields", len(idx.rows)),
		zap.Int("export_names", len(idx.exports)))

	return idx, nil
}

// Len returns the number of metadata rows
func (i *Index) Len() int {
	return len(i.rows)
}

// ExportNames returns every export name in field-name list order
func (i *Index) ExportNames() []string {
	names := make([]string, len(i.exports))
	copy(names, i.exports)
	return names
}

// Get resolves an export name. The first call translates the field's
// branching logic; later calls return the same *Resolved.
func (i *Index) Get(exportName string) (*Resolved, error) {
	i.mu.RLock()
	r, ok := i.resolved[exportName]
	i.mu.RUnlock()
	if ok {
		return r, nil
	}

	mapping, ok := i.mappings[exportName]
	if !ok {
		return nil, &MissingFieldMappingError{ExportName: exportName}
	}
	pos, ok := i.byName[mapping.OriginalFieldName]
	if !ok {
		return nil, &MissingMetadatumError{ExportName: exportName, FieldName: mapping.OriginalFieldName}
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	// Another goroutine may have resolved it while we waited
	if r, ok := i.resolved[exportName]; ok {
		return r, nil
	}

	m := i.rows[pos]
	tr := i.translateLocked(m)
	if tr.err != nil {
		return nil, fmt.Errorf("field %s: %w", m.FieldName, tr.err)
	}

	r = &Resolved{
		Metadatum:   m,
		ExportName:  exportName,
		ChoiceValue: mapping.ChoiceValue,
		RawLogic:    m.BranchingLogic,
	}
	r.BranchingLogic = tr.host
	i.resolved[exportName] = r

	i.logger.Debug("resolved field",
		zap.String("export_name", exportName),
		zap.String("field_name", m.FieldName))

	return r, nil
}

// translateLocked returns the memoized translation for m, translating on
// first use. Callers must hold the write lock.
func (i *Index) translateLocked(m Metadatum) *translation {
	if tr, ok := i.translated[m.FieldName]; ok {
		return tr
	}

	tr := &translation{}
	tr.host, tr.err = logic.Load(m.BranchingLogic)
	if tr.err == nil {
		tr.program, tr.compileErr = logic.Compile(tr.host)
	}
	i.translated[m.FieldName] = tr
	return tr
}

// ResolveAll translates the branching logic of every metadata row, including
// fields that have no export name. It returns the first syntax error found.
func (i *Index) ResolveAll() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, m := range i.rows {
		if tr := i.translateLocked(m); tr.err != nil {
			return fmt.Errorf("field %s: %w", m.FieldName, tr.err)
		}
	}
	return nil
}

// Visible evaluates the branching logic of exportName against rec. A field
// without branching logic is always visible.
func (i *Index) Visible(exportName string, rec Record) (bool, error) {
	r, err := i.Get(exportName)
	if err != nil {
		return false, err
	}

	i.mu.RLock()
	tr := i.translated[r.FieldName]
	i.mu.RUnlock()

	if tr.compileErr != nil {
		return false, fmt.Errorf("field %s: %w", r.FieldName, tr.compileErr)
	}
	visible, err := tr.program.Eval(logic.MapEnv(rec))
	if err != nil {
		return false, fmt.Errorf("field %s: %w", r.FieldName, err)
	}
	return visible, nil
}

// CastRecord loads every value of rec with its own field's validation type.
// Failures are returned as CastErrors next to the values that did convert.
func (i *Index) CastRecord(rec Record) (TypedRecord, error) {
	out := make(TypedRecord, len(rec))
	var errs CastErrors

	for _, name := range sortedKeys(rec) {
		r, err := i.Get(name)
		if err != nil {
			errs = append(errs, FieldError{Field: name, Err: err})
			continue
		}
		v, err := codec.Load(r.Tag(), rec[name])
		if err != nil {
			errs = append(errs, FieldError{Field: name, Err: err})
			continue
		}
		out[name] = v
	}

	if len(errs) > 0 {
		return out, errs
	}
	return out, nil
}

// DumpRecord converts typed values back to wire strings, reporting failures
// the same way CastRecord does.
func (i *Index) DumpRecord(rec TypedRecord) (Record, error) {
	out := make(Record, len(rec))
	var errs CastErrors

	names := make([]string, 0, len(rec))
	for name := range rec {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r, err := i.Get(name)
		if err != nil {
			errs = append(errs, FieldError{Field: name, Err: err})
			continue
		}
		s, err := codec.Dump(r.Tag(), rec[name])
		if err != nil {
			errs = append(errs, FieldError{Field: name, Err: err})
			continue
		}
		out[name] = s
	}

	if len(errs) > 0 {
		return out, errs
	}
	return out, nil
}

// Row is a metadata row as the index currently holds it. When Translated is
// set, BranchingLogic is in host form.
type Row struct {
	Metadatum
	Translated bool
}

// Rows returns copies of the metadata rows in definition order
func (i *Index) Rows() []Row {
	i.mu.RLock()
	defer i.mu.RUnlock()

	rows := make([]Row, len(i.rows))
	for pos, m := range i.rows {
		row := Row{Metadatum: m}
		if tr, ok := i.translated[m.FieldName]; ok && tr.err == nil {
			row.BranchingLogic = tr.host
			row.Translated = true
		}
		rows[pos] = row
	}
	return rows
}

func sortedKeys(rec Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
