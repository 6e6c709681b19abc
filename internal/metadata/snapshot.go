package metadata

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
)

// Snapshot is the serializable pair of raw exports an Index is built from
type Snapshot struct {
	Metadata   []Metadatum `json:"metadata"`
	FieldNames []FieldName `json:"field_names"`
}

// Index builds an Index from the snapshot
func (s *Snapshot) Index(opts ...Option) (*Index, error) {
	return New(s.Metadata, s.FieldNames, opts...)
}

// Encode writes the snapshot as indented JSON
func (s *Snapshot) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// Marshal returns the snapshot's compact JSON form
func (s *Snapshot) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot reads a snapshot written by Encode or Marshal
func DecodeSnapshot(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &s, nil
}

// UnmarshalSnapshot parses a snapshot from data
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &s, nil
}

// ReadSnapshotFile loads a snapshot from a JSON file
func ReadSnapshotFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	return DecodeSnapshot(f)
}

// Snapshot returns the raw exports the index was built from
func (i *Index) Snapshot() *Snapshot {
	s := &Snapshot{
		Metadata:   make([]Metadatum, len(i.rows)),
		FieldNames: make([]FieldName, 0, len(i.exports)),
	}
	copy(s.Metadata, i.rows)
	for _, name := range i.exports {
		s.FieldNames = append(s.FieldNames, i.mappings[name])
	}
	return s
}
