package persona

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed data/*.json
var embeddedRecords embed.FS

// ErrNoPersonas indicates the store was constructed with no records at all.
var ErrNoPersonas = errors.New("no persona records")

// Store holds the loaded persona records.
// Read-only after construction — safe for unbounded concurrent readers.
type Store struct {
	byID      map[string]*Record
	order     []string // load order; first record is the fallback default
	defaultID string
}

// NewStore builds a store from the given records.
// The first record becomes the fallback default. At least one record is
// required: Resolve must never fail in the request path.
func NewStore(records ...*Record) (*Store, error) {
	if len(records) == 0 {
		return nil, ErrNoPersonas
	}

	s := &Store{byID: make(map[string]*Record, len(records))}
	for _, rec := range records {
		if rec.ID == "" {
			return nil, fmt.Errorf("persona record %q has no id", rec.DisplayName)
		}
		if _, dup := s.byID[rec.ID]; dup {
			return nil, fmt.Errorf("duplicate persona id %q", rec.ID)
		}
		s.byID[rec.ID] = rec
		s.order = append(s.order, rec.ID)
	}
	s.defaultID = s.order[0]
	return s, nil
}

// Load builds a store from persona JSON files.
// When dir is empty the embedded records are used; otherwise every *.json
// file in dir is loaded instead. Files are read in lexical order so the
// default persona is stable across runs.
func Load(dir string) (*Store, error) {
	if dir == "" {
		return loadFS(embeddedRecords, "data")
	}
	return loadFS(os.DirFS(dir), ".")
}

func loadFS(fsys fs.FS, root string) (*Store, error) {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("reading persona directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var records []*Record
	for _, name := range names {
		data, err := fs.ReadFile(fsys, filepath.Join(root, name))
		if err != nil {
			return nil, fmt.Errorf("reading persona file %s: %w", name, err)
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("parsing persona file %s: %w", name, err)
		}
		records = append(records, &rec)
	}

	return NewStore(records...)
}

// Resolve returns the persona for the given id, falling back to the default
// persona for unknown or empty ids. It never fails — unknown personas must
// not break the request path.
func (s *Store) Resolve(id string) *Record {
	if rec, ok := s.byID[id]; ok {
		return rec
	}
	return s.byID[s.defaultID]
}

// DefaultID returns the id of the fallback persona.
func (s *Store) DefaultID() string {
	return s.defaultID
}

// All returns the records in load order.
func (s *Store) All() []*Record {
	records := make([]*Record, 0, len(s.order))
	for _, id := range s.order {
		records = append(records, s.byID[id])
	}
	return records
}
