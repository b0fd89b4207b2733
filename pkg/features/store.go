// Package features implements the Features component (spec.md §4.4): a
// per-project feature catalog over a columnar store, computing sbert,
// fasttext, dfm, regex and dataset-derived features.
//
// No columnar/parquet library appears anywhere in the example corpus (the
// spec's "parquet" on-disk format is a Python-ecosystem detail), so the
// store here is a small gob-encoded columnar file under the project
// directory — the narrowest stdlib surface that still gives O(1) column
// access and crash-safe atomic replace, justified in DESIGN.md.
package features

import (
	"bytes"
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
)

// ColumnarStore holds every feature column for one project, keyed by
// element id. Row order is stable (Elements), so all columns and the
// Partition marker stay aligned by index.
type ColumnarStore struct {
	mu sync.RWMutex

	path      string
	Elements  []string
	Partition map[string]models.Partition
	Columns   map[string][]float64
}

// OpenColumnarStore loads path if present, otherwise returns an empty
// store rooted at path for a later Save.
func OpenColumnarStore(path string) (*ColumnarStore, error) {
	cs := &ColumnarStore{
		path:      path,
		Partition: make(map[string]models.Partition),
		Columns:   make(map[string][]float64),
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cs, nil
	}
	if err != nil {
		return nil, errs.Internalf(err, "reading feature store %s", path)
	}
	var onDisk struct {
		Elements  []string
		Partition map[string]models.Partition
		Columns   map[string][]float64
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&onDisk); err != nil {
		return nil, errs.Internalf(err, "decoding feature store %s", path)
	}
	cs.Elements = onDisk.Elements
	cs.Partition = onDisk.Partition
	cs.Columns = onDisk.Columns
	return cs, nil
}

// Save atomically writes the store back to disk (write-then-rename,
// matching the "parquet overwrite under a project-level write lock"
// invariant of spec.md §5 without needing a parquet codec).
func (cs *ColumnarStore) Save() error {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	var buf bytes.Buffer
	payload := struct {
		Elements  []string
		Partition map[string]models.Partition
		Columns   map[string][]float64
	}{cs.Elements, cs.Partition, cs.Columns}
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return errs.Internalf(err, "encoding feature store")
	}

	tmp := cs.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(cs.path), 0o755); err != nil {
		return errs.Internalf(err, "creating feature store dir")
	}
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return errs.Internalf(err, "writing feature store")
	}
	if err := os.Rename(tmp, cs.path); err != nil {
		return errs.Internalf(err, "replacing feature store")
	}
	return nil
}

// RowCount returns the number of rows currently indexed.
func (cs *ColumnarStore) RowCount() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.Elements)
}

// AllElements returns every indexed element id, in row order.
func (cs *ColumnarStore) AllElements() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return append([]string(nil), cs.Elements...)
}

// Init seeds the row index and partition marker for a freshly created
// project (Orchestrator.create_project initializes the store with only
// the dataset column — spec.md §4.8).
func (cs *ColumnarStore) Init(elements []string, partitions []models.Partition) error {
	if len(elements) != len(partitions) {
		return errs.Invalidf("elements and partitions must be the same length")
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.Elements = append([]string(nil), elements...)
	cs.Partition = make(map[string]models.Partition, len(elements))
	for i, e := range elements {
		cs.Partition[e] = partitions[i]
	}
	return nil
}

// AddColumns inserts len(values) new columns, each indexed by element id
// within content. content must cover exactly the rows already indexed
// (spec.md §4.4 "content rows must equal train+valid+test total").
func (cs *ColumnarStore) AddColumns(values map[string]map[string]float64) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for name, byElement := range values {
		if _, exists := cs.Columns[name]; exists {
			return errs.AlreadyExistsf("column %q already exists", name)
		}
		if len(byElement) != len(cs.Elements) {
			return errs.Invalidf("column %q has %d rows, expected %d", name, len(byElement), len(cs.Elements))
		}
		col := make([]float64, len(cs.Elements))
		for i, elementID := range cs.Elements {
			v, ok := byElement[elementID]
			if !ok {
				return errs.Invalidf("column %q missing row for element %q", name, elementID)
			}
			col[i] = v
		}
		cs.Columns[name] = col
	}
	return nil
}

// DropColumnsWithPrefix removes every column named prefix+"__"+anything,
// used by Delete(name) (spec.md §4.4).
func (cs *ColumnarStore) DropColumnsWithPrefix(prefix string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	needle := prefix + "__"
	for name := range cs.Columns {
		if len(name) >= len(needle) && name[:len(needle)] == needle {
			delete(cs.Columns, name)
		}
	}
}

// Get returns a dense matrix of the requested columns, restricted to rows
// in dataset, plus the element ids in row order (spec.md §4.4).
func (cs *ColumnarStore) Get(columnNames []string, dataset models.Partition) (elementIDs []string, matrix [][]float64, err error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	cols := make([][]float64, len(columnNames))
	for i, name := range columnNames {
		col, ok := cs.Columns[name]
		if !ok {
			return nil, nil, errs.NotFoundf("feature column %q not found", name)
		}
		cols[i] = col
	}

	for rowIdx, elementID := range cs.Elements {
		if dataset != models.PartitionAll && cs.Partition[elementID] != dataset {
			continue
		}
		elementIDs = append(elementIDs, elementID)
		row := make([]float64, len(columnNames))
		for i, col := range cols {
			row[i] = col[rowIdx]
		}
		matrix = append(matrix, row)
	}
	return elementIDs, matrix, nil
}
