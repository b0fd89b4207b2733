package features

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
	"github.com/AXLMRIN/activetigger-go/pkg/queue"
	"github.com/AXLMRIN/activetigger-go/pkg/store"
)

// Embedder computes one dense feature vector per input text. Real sbert /
// fasttext backends are external collaborators (spec.md §1); this is the
// narrow seam the queue tasks call through, so tests can supply a fake.
type Embedder interface {
	Embed(ctx context.Context, texts map[string]string, progress func(done, total int)) (map[string][]float64, error)
}

// Manager owns every Feature operation for one project.
type Manager struct {
	project  string
	repo     *store.FeaturesRepo
	colStore *ColumnarStore
	pool     *queue.Pool

	sbert    Embedder
	fasttext Embedder

	mu      sync.Mutex
	pending map[string]bool // user -> has a feature job in flight

	progress    *ProgressWatcher
	progressDir string
}

// New builds a Manager scoped to one project. sbert/fasttext may be nil
// until an embedding backend is configured; compute calls for those kinds
// then fail fast with Unavailable instead of deadlocking a worker.
func New(project string, repo *store.FeaturesRepo, colStore *ColumnarStore, pool *queue.Pool, sbert, fasttext Embedder) *Manager {
	m := &Manager{
		project:  project,
		repo:     repo,
		colStore: colStore,
		pool:     pool,
		sbert:    sbert,
		fasttext: fasttext,
		pending:  make(map[string]bool),
	}
	pool.RegisterHook("feature:"+project, m.onComplete)
	return m
}

// Add registers feature metadata and writes its columns, prefixed
// name__col to avoid collisions (spec.md §4.4). content maps column
// suffix -> elementID -> value.
func (m *Manager) Add(ctx context.Context, name string, kind models.FeatureKind, user string, params map[string]any, content map[string]map[string]float64) (*models.Feature, error) {
	if m.colStore.RowCount() == 0 {
		return nil, errs.Invalidf("feature store has no rows; create the project first")
	}
	prefixed := make(map[string]map[string]float64, len(content))
	columns := make([]string, 0, len(content))
	for suffix, byElement := range content {
		colName := name + "__" + suffix
		prefixed[colName] = byElement
		columns = append(columns, colName)
	}

	if err := m.colStore.AddColumns(prefixed); err != nil {
		return nil, err
	}
	if err := m.colStore.Save(); err != nil {
		return nil, err
	}

	f := &models.Feature{
		Project: m.project,
		Name:    name,
		Kind:    kind,
		User:    user,
		Params:  params,
		Columns: columns,
	}
	id, err := m.repo.Add(ctx, f)
	if err != nil {
		m.colStore.DropColumnsWithPrefix(name)
		return nil, err
	}
	f.ID = id
	return f, nil
}

// Delete drops a feature's columns and metadata row.
func (m *Manager) Delete(ctx context.Context, name string) error {
	if err := m.repo.Delete(ctx, m.project, name); err != nil {
		return err
	}
	m.colStore.DropColumnsWithPrefix(name)
	return m.colStore.Save()
}

// Get loads the requested feature columns for dataset.
func (m *Manager) Get(columnNames []string, dataset models.Partition) (elementIDs []string, matrix [][]float64, err error) {
	return m.colStore.Get(columnNames, dataset)
}

// InitRows seeds the feature store's row index for a freshly created
// project and persists it (Orchestrator.CreateProject initializes the
// store before any feature is computed — spec.md §4.8).
func (m *Manager) InitRows(elements []string, partitions []models.Partition) error {
	if err := m.colStore.Init(elements, partitions); err != nil {
		return err
	}
	return m.colStore.Save()
}

// AllElementIDs returns every row currently indexed by the feature store,
// in row order — used by callers that must pad a partial result (e.g. a
// prediction over one partition) out to a full column before Add.
func (m *Manager) AllElementIDs() []string {
	return m.colStore.AllElements()
}

// List returns every feature's metadata.
func (m *Manager) List(ctx context.Context) ([]*models.Feature, error) {
	return m.repo.List(ctx, m.project)
}

// ComputeRegex is the synchronous regex feature path (spec.md §4.4):
// compiles params' pattern, counts matches per text, registers a boolean
// column.
func (m *Manager) ComputeRegex(ctx context.Context, name, pattern string, user string, texts map[string]string) (*models.Feature, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errs.Invalidf("invalid regex %q: %v", pattern, err)
	}
	content := map[string]map[string]float64{
		"match": make(map[string]float64, len(texts)),
	}
	for elementID, text := range texts {
		if re.MatchString(text) {
			content["match"][elementID] = 1
		} else {
			content["match"][elementID] = 0
		}
	}
	params := map[string]any{"value": pattern}
	return m.Add(ctx, name, models.FeatureRegex, user, params, content)
}

// ComputeDataset materializes an existing raw column, coerced to numeric
// (spec.md §4.4). values must already be numeric-coded by the caller (the
// CSV/type-coercion details are out of scope, spec.md §1).
func (m *Manager) ComputeDataset(ctx context.Context, name, sourceColumn, user string, values map[string]float64) (*models.Feature, error) {
	content := map[string]map[string]float64{"value": values}
	params := map[string]any{"source_column": sourceColumn}
	return m.Add(ctx, name, models.FeatureDataset, user, params, content)
}

// DFMParams configures the document-feature matrix computation.
type DFMParams struct {
	TFIDF        bool
	NGrams       int
	MinTermFreq  int
	MaxTermFreq  float64
	Norm         string
	Log          bool
}

// ComputeAsync submits an sbert, fasttext or dfm computation to the queue
// and returns its unique task id. At most one pending computation per
// user is allowed (spec.md §4.4 "Concurrency rule").
func (m *Manager) ComputeAsync(ctx context.Context, name string, kind models.FeatureKind, user string, texts map[string]string, dfmParams DFMParams) (string, error) {
	if !kind.Async() {
		return "", errs.Invalidf("feature kind %q is computed synchronously", kind)
	}

	m.mu.Lock()
	if m.pending[user] {
		m.mu.Unlock()
		return "", errs.Conflictf("user %q already has a feature computation pending", user)
	}
	m.pending[user] = true
	m.mu.Unlock()

	taskKind := "feature:" + m.project
	q := models.QueueCPU
	if kind == models.FeatureSBERT {
		q = models.QueueGPU
	}

	fn := func(runCtx context.Context) (any, error) {
		return m.runAsyncCompute(runCtx, name, kind, user, texts, dfmParams)
	}

	id, err := m.pool.Submit(ctx, taskKind, m.project, user, q, fn)
	if err != nil {
		m.mu.Lock()
		delete(m.pending, user)
		m.mu.Unlock()
		return "", err
	}
	return id, nil
}

func (m *Manager) runAsyncCompute(ctx context.Context, name string, kind models.FeatureKind, user string, texts map[string]string, dfmParams DFMParams) (*models.Feature, error) {
	switch kind {
	case models.FeatureSBERT:
		return m.computeEmbedding(ctx, name, kind, m.sbert, user, texts)
	case models.FeatureFastText:
		return m.computeEmbedding(ctx, name, kind, m.fasttext, user, texts)
	case models.FeatureDFM:
		return m.computeDFM(ctx, name, user, texts, dfmParams)
	default:
		return nil, errs.Invalidf("unsupported async feature kind %q", kind)
	}
}

func (m *Manager) computeEmbedding(ctx context.Context, name string, kind models.FeatureKind, embedder Embedder, user string, texts map[string]string) (*models.Feature, error) {
	if embedder == nil {
		return nil, errs.Unavailablef("no %s backend configured", kind)
	}
	taskID := m.project + ":" + name
	progress := func(done, total int) {
		_ = WriteProgress(m.progressDir, taskID, fmt.Sprintf("%d/%d", done, total))
	}
	vectors, err := embedder.Embed(ctx, texts, progress)
	if err != nil {
		return nil, err
	}
	content := make(map[string]map[string]float64)
	for elementID, vec := range vectors {
		for dim, v := range vec {
			col := fmt.Sprintf("d%d", dim)
			if content[col] == nil {
				content[col] = make(map[string]float64, len(vectors))
			}
			content[col][elementID] = v
		}
	}
	return m.Add(ctx, name, kind, user, map[string]any{}, content)
}

func (m *Manager) computeDFM(ctx context.Context, name, user string, texts map[string]string, params DFMParams) (*models.Feature, error) {
	vocab, docFreq := buildVocabulary(texts, params.NGrams, params.MinTermFreq, params.MaxTermFreq)
	content := make(map[string]map[string]float64, len(vocab))
	for term := range vocab {
		content[sanitizeColumn(term)] = termColumn(texts, term, docFreq[term], len(texts), params)
	}
	p := map[string]any{
		"tfidf": params.TFIDF, "ngrams": params.NGrams,
		"min_term_freq": params.MinTermFreq, "max_term_freq": params.MaxTermFreq,
		"norm": params.Norm, "log": params.Log,
	}
	return m.Add(ctx, name, models.FeatureDFM, user, p, content)
}

// onComplete clears the per-user pending flag once a feature task finishes
// on this project's queue, regardless of outcome.
func (m *Manager) onComplete(ctx context.Context, res queue.Result) {
	m.mu.Lock()
	delete(m.pending, res.Task.User)
	m.mu.Unlock()
}

// CurrentComputing returns in-flight feature tasks for this project. Each
// task's Progress holds only what Pool.SetProgress recorded; the feature
// computations do not call it, so the per-feature progress lines they
// write are read through FeatureProgress instead.
func (m *Manager) CurrentComputing() []*models.Task {
	kind := "feature:" + m.project
	var out []*models.Task
	for _, t := range m.pool.ActiveByProject(m.project) {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// FeatureProgress reports the last progress line an in-flight sbert or
// fasttext computation named name has written, via the fsnotify-backed
// ProgressWatcher (spec.md §4.4 current_computing), without re-reading the
// filesystem on every call.
func (m *Manager) FeatureProgress(name string) (string, bool) {
	if m.progress == nil {
		return "", false
	}
	return m.progress.Get(m.project + ":" + name)
}
