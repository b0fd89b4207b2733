// Package project implements the Project aggregate (spec.md §4.7): the
// composition root that owns one project's Schemes, Features, QuickModels
// and LanguageModels managers, plus the next_element selection policy.
package project

import (
	"bytes"
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
)

// RawStore holds the corpus text and context columns a project was
// created from — the `data_all` / per-partition raw text spec.md §6 keeps
// on disk alongside the parquet files. No columnar/dataframe library
// appears in the example corpus (see pkg/features/store.go), so this uses
// the same gob-atomic-replace pattern.
type RawStore struct {
	mu sync.RWMutex

	path string

	Order     []string // every element id in original corpus row order
	Texts     map[string]string            // elementID -> text
	Context   map[string]map[string]string // elementID -> {column: value}
	Partition map[string]models.Partition
	RawLabel  map[string]string // elementID -> original col_label value, if any
}

// OpenRawStore loads path if present, otherwise returns an empty store
// rooted at path for a later Save.
func OpenRawStore(path string) (*RawStore, error) {
	rs := &RawStore{
		path:      path,
		Texts:     make(map[string]string),
		Context:   make(map[string]map[string]string),
		Partition: make(map[string]models.Partition),
		RawLabel:  make(map[string]string),
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return rs, nil
	}
	if err != nil {
		return nil, errs.Internalf(err, "reading raw dataset %s", path)
	}
	var onDisk struct {
		Order     []string
		Texts     map[string]string
		Context   map[string]map[string]string
		Partition map[string]models.Partition
		RawLabel  map[string]string
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&onDisk); err != nil {
		return nil, errs.Internalf(err, "decoding raw dataset %s", path)
	}
	rs.Order, rs.Texts, rs.Context, rs.Partition, rs.RawLabel = onDisk.Order, onDisk.Texts, onDisk.Context, onDisk.Partition, onDisk.RawLabel
	return rs, nil
}

// Save atomically writes the store back to disk.
func (rs *RawStore) Save() error {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	var buf bytes.Buffer
	payload := struct {
		Order     []string
		Texts     map[string]string
		Context   map[string]map[string]string
		Partition map[string]models.Partition
		RawLabel  map[string]string
	}{rs.Order, rs.Texts, rs.Context, rs.Partition, rs.RawLabel}
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return errs.Internalf(err, "encoding raw dataset")
	}
	if err := os.MkdirAll(filepath.Dir(rs.path), 0o755); err != nil {
		return errs.Internalf(err, "creating raw dataset dir")
	}
	tmp := rs.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return errs.Internalf(err, "writing raw dataset")
	}
	if err := os.Rename(tmp, rs.path); err != nil {
		return errs.Internalf(err, "replacing raw dataset")
	}
	return nil
}

// ElementIDs returns every element in original corpus row order, restricted
// to dataset (PartitionAll returns every element regardless of partition).
// Preserving row order is what makes SelectionDeterministic deterministic.
func (rs *RawStore) ElementIDs(dataset models.Partition) []string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	var out []string
	for _, id := range rs.Order {
		if dataset == models.PartitionAll || rs.Partition[id] == dataset {
			out = append(out, id)
		}
	}
	return out
}

// Init seeds the store for a freshly created project (spec.md §4.8).
func (rs *RawStore) Init(order []string, texts map[string]string, context map[string]map[string]string, partition map[string]models.Partition, rawLabel map[string]string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.Order = order
	rs.Texts = texts
	rs.Context = context
	rs.Partition = partition
	rs.RawLabel = rawLabel
}

func (rs *RawStore) Text(elementID string) string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.Texts[elementID]
}

func (rs *RawStore) ContextOf(elementID string) map[string]string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.Context[elementID]
}

// TextsByIDs returns a map suitable for feature computation calls.
func (rs *RawStore) TextsByIDs(ids []string) map[string]string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		out[id] = rs.Texts[id]
	}
	return out
}
