// Package orchestrator implements the Orchestrator component (spec.md
// §4.8): the process-wide singleton that loads, evicts, creates and
// deletes projects, and appends the audit log.
package orchestrator

import (
	"container/list"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/features"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
	"github.com/AXLMRIN/activetigger-go/pkg/project"
	"github.com/AXLMRIN/activetigger-go/pkg/queue"
	"github.com/AXLMRIN/activetigger-go/pkg/store"
)

// Orchestrator is the process-wide singleton spec.md §4.8 and §9 describe
// ("no ambient globals" — callers hold one instance and pass it down
// explicitly; it is not a package-level variable).
type Orchestrator struct {
	store     *store.Store
	pool      *queue.Pool
	dataPath  string
	maxLoaded int
	sbert     features.Embedder
	fasttext  features.Embedder

	mu      sync.Mutex
	loaded  map[string]*list.Element // slug -> LRU node
	lru     *list.List               // front = most recently used
}

type lruEntry struct {
	slug string
	proj *project.Project
}

// New builds the Orchestrator. No ecosystem LRU/cache library appears
// anywhere in the example corpus, so eviction is implemented on
// container/list + map — the narrowest idiomatic stdlib structure for a
// bounded LRU (see DESIGN.md).
func New(db *store.Store, pool *queue.Pool, dataPath string, maxLoaded int, sbert, fasttext features.Embedder) *Orchestrator {
	if maxLoaded <= 0 {
		maxLoaded = 10
	}
	return &Orchestrator{
		store: db, pool: pool, dataPath: dataPath, maxLoaded: maxLoaded,
		sbert: sbert, fasttext: fasttext,
		loaded: make(map[string]*list.Element), lru: list.New(),
	}
}

// GetProject loads slug on a cache miss and evicts the least-recently-used
// project if the cache is over MAX_LOADED_PROJECTS (spec.md §4.8).
// Eviction is safe because in-flight tasks reference the Queue, not the
// Project instance.
func (o *Orchestrator) GetProject(ctx context.Context, slug string) (*project.Project, error) {
	o.mu.Lock()
	if el, ok := o.loaded[slug]; ok {
		o.lru.MoveToFront(el)
		p := el.Value.(*lruEntry).proj
		o.mu.Unlock()
		return p, nil
	}
	o.mu.Unlock()

	meta, err := o.store.Projects.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	p, err := project.Open(meta, project.Deps{Store: o.store, Pool: o.pool, DataPath: o.dataPath, SBert: o.sbert, FastText: o.fasttext})
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if el, ok := o.loaded[slug]; ok {
		o.lru.MoveToFront(el)
		return el.Value.(*lruEntry).proj, nil
	}
	el := o.lru.PushFront(&lruEntry{slug: slug, proj: p})
	o.loaded[slug] = el
	o.evictOverflowLocked()
	return p, nil
}

func (o *Orchestrator) evictOverflowLocked() {
	for o.lru.Len() > o.maxLoaded {
		back := o.lru.Back()
		if back == nil {
			return
		}
		entry := back.Value.(*lruEntry)
		delete(o.loaded, entry.slug)
		o.lru.Remove(back)
		slog.Info("evicted project from memory", "project", entry.slug)
	}
}

// LoadedCount reports |loaded_projects|, used to test the LRU cap
// invariant (spec.md §8).
func (o *Orchestrator) LoadedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lru.Len()
}

// CreateSpec carries create_project's arguments (spec.md §4.8).
type CreateSpec struct {
	Name        string
	ColText     string
	ColsContext []string
	ColLabel    string // optional
	NTest       int
	ColsTest    []string // stratification columns, best-effort
	Rows        []CorpusRow
}

// CorpusRow is one uploaded row before partitioning.
type CorpusRow struct {
	ID      string            `json:"id"`
	Text    string            `json:"text"`
	Context map[string]string `json:"context"`
	Label   string            `json:"label"` // "" means unlabeled
}

// CreateProject validates slug uniqueness, partitions the corpus into
// train/valid/test, seeds the feature store with only the dataset column,
// and — if a label column was supplied — creates a default scheme and
// replays those labels as annotations attributed to user (spec.md §4.8).
func (o *Orchestrator) CreateProject(ctx context.Context, spec CreateSpec, user string) (*project.Project, error) {
	slug := slugify(spec.Name)
	if _, err := o.store.Projects.Get(ctx, slug); err == nil {
		return nil, errs.AlreadyExistsf("project %q already exists", slug)
	}

	nTrain, nTest := partitionSizes(len(spec.Rows), spec.NTest)
	order, partitions, err := partitionRows(spec.Rows, nTrain, nTest)
	if err != nil {
		return nil, err
	}

	meta := &models.Project{
		Slug: slug, Name: spec.Name, CreatedBy: user, ColText: spec.ColText,
		ColsContext: spec.ColsContext, ColLabel: spec.ColLabel,
		NTrain: nTrain, NValid: 0, NTest: nTest,
	}
	if err := o.store.Projects.Add(ctx, meta); err != nil {
		return nil, err
	}

	p, err := project.Open(meta, project.Deps{Store: o.store, Pool: o.pool, DataPath: o.dataPath, SBert: o.sbert, FastText: o.fasttext})
	if err != nil {
		return nil, err
	}

	// Rows that partitionRows left out of both partitions (surplus labeled
	// rows beyond nTrain) are dropped entirely here too, matching the
	// original's behavior of never writing them to any parquet file.
	texts := make(map[string]string, len(order))
	contexts := make(map[string]map[string]string, len(order))
	rawLabels := make(map[string]string, len(order))
	for _, r := range spec.Rows {
		if _, used := partitions[r.ID]; !used {
			continue
		}
		texts[r.ID] = r.Text
		contexts[r.ID] = r.Context
		if r.Label != "" {
			rawLabels[r.ID] = r.Label
		}
	}
	p.Raw.Init(order, texts, contexts, partitions, rawLabels)
	if err := p.Raw.Save(); err != nil {
		return nil, err
	}

	rowPartitions := make([]models.Partition, len(order))
	for i, id := range order {
		rowPartitions[i] = partitions[id]
	}
	if err := p.Features.InitRows(order, rowPartitions); err != nil {
		return nil, err
	}
	datasetValues := make(map[string]float64, len(order))
	for _, id := range order {
		datasetValues[id] = partitionCode(partitions[id])
	}
	if _, err := p.Features.ComputeDataset(ctx, "dataset", "dataset", user, datasetValues); err != nil {
		return nil, err
	}

	if spec.ColLabel != "" {
		labelSet := make(map[string]bool)
		for _, v := range rawLabels {
			labelSet[v] = true
		}
		var labels []string
		for l := range labelSet {
			labels = append(labels, l)
		}
		sort.Strings(labels)

		if _, err := p.Schemes.AddScheme(ctx, "default", models.SchemeMulticlass, labels, user); err != nil {
			return nil, err
		}
		for _, id := range order {
			label, ok := rawLabels[id]
			if !ok {
				continue
			}
			l := label
			if _, err := p.Schemes.PushAnnotation(ctx, id, "default", &l, user, partitions[id], "seeded from upload"); err != nil {
				return nil, err
			}
		}
	}

	if err := o.LogAction(ctx, user, models.ActionAdd, slug); err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteProject removes the project directory tree, cascades DB deletions,
// and evicts it from memory (spec.md §4.8).
func (o *Orchestrator) DeleteProject(ctx context.Context, slug, user string) error {
	if err := o.store.Projects.Delete(ctx, slug); err != nil {
		return err
	}
	_ = os.RemoveAll(filepath.Join(o.dataPath, "projects", slug))

	o.mu.Lock()
	if el, ok := o.loaded[slug]; ok {
		o.lru.Remove(el)
		delete(o.loaded, slug)
	}
	o.mu.Unlock()

	return o.LogAction(ctx, user, models.ActionDelete, slug)
}

// StopUserProcesses cancels every in-flight task of the given kinds owned
// by user (spec.md §4.8).
func (o *Orchestrator) StopUserProcesses(user string, kinds []string) {
	for _, t := range o.pool.ActiveByUser(user, kinds) {
		_ = o.pool.Kill(t.UniqueID)
	}
}

// LogAction appends one append-only audit row (spec.md §4.8).
func (o *Orchestrator) LogAction(ctx context.Context, user string, action models.Action, projectSlug string) error {
	return o.store.Logs.Add(ctx, user, projectSlug, string(action))
}

// partitionCode numerically encodes a partition for the seed "dataset"
// feature column (spec.md §4.8).
func partitionCode(p models.Partition) float64 {
	switch p {
	case models.PartitionTrain:
		return 0
	case models.PartitionValid:
		return 1
	case models.PartitionTest:
		return 2
	default:
		return 3
	}
}

func slugify(name string) string {
	lower := strings.ToLower(name)
	var b strings.Builder
	lastDash := false
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// partitionSizes honors an explicit n_test, defaulting to 20% of the
// corpus, and reserves the remainder for training (spec.md §4.8: no
// separate n_valid carve-out is named, so valid starts empty until a
// caller grows it explicitly).
func partitionSizes(total, nTest int) (nTrain, resolvedTest int) {
	if nTest <= 0 {
		nTest = total / 5
	}
	if nTest > total {
		nTest = total
	}
	return total - nTest, nTest
}

// partitionRows implements create_project's Step 2/Step 3 from
// original_source/api/activetigger/server.py: test is sampled exclusively
// from unlabeled rows (erroring if there aren't enough), and train then
// prioritizes labeled rows, filling any remaining slots from whatever
// unlabeled rows test didn't take. A row that is neither selected for test
// nor needed to fill train — a labeled row beyond nTrain once test is
// satisfied from the unlabeled pool, or an unlabeled row beyond what test
// and train both need — is left out of partition entirely, exactly as the
// original never writes such rows to either parquet file. Order preserves
// the rows' original upload order, restricted to the rows actually used.
func partitionRows(rows []CorpusRow, nTrain, nTest int) (order []string, partition map[string]models.Partition, err error) {
	var labeled, unlabeled []CorpusRow
	for _, r := range rows {
		if r.Label != "" {
			labeled = append(labeled, r)
		} else {
			unlabeled = append(unlabeled, r)
		}
	}
	if len(unlabeled) < nTest {
		return nil, nil, errs.Invalidf(
			"not enough unlabeled rows for the test dataset: need %d, have %d", nTest, len(unlabeled))
	}

	partition = make(map[string]models.Partition, nTrain+nTest)
	for _, r := range unlabeled[:nTest] {
		partition[r.ID] = models.PartitionTest
	}
	remainingUnlabeled := unlabeled[nTest:]

	trainLabeled := labeled
	if len(trainLabeled) > nTrain {
		trainLabeled = trainLabeled[:nTrain] // surplus labeled rows are left unused, never placed in test
	}
	for _, r := range trainLabeled {
		partition[r.ID] = models.PartitionTrain
	}

	need := nTrain - len(trainLabeled)
	if need > len(remainingUnlabeled) {
		need = len(remainingUnlabeled)
	}
	for _, r := range remainingUnlabeled[:need] {
		partition[r.ID] = models.PartitionTrain
	}

	for _, r := range rows {
		if _, used := partition[r.ID]; used {
			order = append(order, r.ID)
		}
	}
	return order, partition, nil
}
