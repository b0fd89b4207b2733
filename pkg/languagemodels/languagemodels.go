// Package languagemodels implements the LanguageModels component
// (spec.md §4.6): the lifecycle wrapper around fine-tuned transformer
// models. The actual transformer training/inference loop is an external
// collaborator out of scope for this core (spec.md §1 Non-goals); this
// package owns only the lifecycle contract — launching the task, updating
// status transitions, and registering predict output as a feature.
package languagemodels

import (
	"bytes"
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/features"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
	"github.com/AXLMRIN/activetigger-go/pkg/queue"
	"github.com/AXLMRIN/activetigger-go/pkg/store"
)

// Row is one training/prediction input, matching the `id, dataset, text[,
// labels]` dataframe contract of spec.md §4.6.
type Row struct {
	ID      string
	Dataset models.Partition
	Text    string
	Label   *string
}

// Manager owns every LanguageModel operation for one project.
type Manager struct {
	project      string
	repo         *store.ModelsRepo
	pool         *queue.Pool
	features     *features.Manager
	artifactRoot string

	mu       sync.Mutex
	training map[string]bool
}

// New builds a Manager scoped to one project and registers its queue hook.
func New(project string, repo *store.ModelsRepo, pool *queue.Pool, feats *features.Manager, artifactRoot string) *Manager {
	m := &Manager{project: project, repo: repo, pool: pool, features: feats, artifactRoot: artifactRoot, training: make(map[string]bool)}
	pool.RegisterHook("languagemodel:"+project, m.onComplete)
	return m
}

// TrainRequest carries Train's arguments (spec.md §4.6).
type TrainRequest struct {
	Name        string
	Scheme      string
	BaseModel   string
	Hyperparams map[string]any
	Rows        []Row
	User        string
}

// jobKind distinguishes train/predict/test tasks dispatched through the
// same queue hook.
type jobKind string

const (
	jobTrain   jobKind = "train"
	jobPredict jobKind = "predict"
	jobTest    jobKind = "test"
)

type jobResult struct {
	kind    jobKind
	name    string
	dataset models.Partition
	user    string
	labels  map[string][]string   // elementID -> class label list surrogate
	probas  map[string]map[string]float64
	metrics models.MetricsSet
	err     error
}

// Train submits a training job to the GPU pool and returns its task id
// (spec.md §4.6 "training ... always queue-backed").
func (m *Manager) Train(ctx context.Context, req TrainRequest) (string, error) {
	if len(req.Rows) == 0 {
		return "", errs.Invalidf("language model training requires at least one row")
	}
	if err := m.beginTraining(req.User); err != nil {
		return "", err
	}
	if _, err := m.repo.Get(ctx, m.project, req.Name); err == nil {
		m.endTraining(req.User)
		return "", errs.AlreadyExistsf("language model %q already exists in %s", req.Name, m.project)
	}
	row := &store.ModelRow{
		Project: m.project, Family: store.FamilyLanguage, Name: req.Name, Scheme: req.Scheme,
		User: req.User, Kind: req.BaseModel, Parameters: req.Hyperparams, Status: string(models.ModelQueued),
	}
	if _, err := m.repo.Add(ctx, row); err != nil {
		m.endTraining(req.User)
		return "", err
	}

	fn := func(runCtx context.Context) (any, error) {
		return m.runTrain(runCtx, req)
	}
	taskID, err := m.pool.Submit(ctx, "languagemodel:"+m.project, m.project, req.User, models.QueueGPU, fn)
	if err != nil {
		m.endTraining(req.User)
		_ = m.repo.SetStatus(ctx, m.project, req.Name, string(models.ModelFailed), err.Error())
		return "", err
	}
	_ = m.repo.SetStatus(ctx, m.project, req.Name, string(models.ModelTraining), "")
	return taskID, nil
}

func (m *Manager) runTrain(ctx context.Context, req TrainRequest) (jobResult, error) {
	baseline, metrics := fitBaseline(req.Rows)
	if err := saveBaseline(m.artifactPath(req.Name), baseline); err != nil {
		return jobResult{kind: jobTrain, name: req.Name, user: req.User, err: err}, err
	}
	return jobResult{kind: jobTrain, name: req.Name, user: req.User, metrics: metrics}, nil
}

// PredictRequest carries Predict's arguments (spec.md §4.6).
type PredictRequest struct {
	Name    string
	Dataset models.Partition
	Rows    []Row
	User    string
}

// Predict submits a prediction job; on completion its output is registered
// as a new feature name-mangled `<name>__label_i` via Features.Add
// (spec.md §4.6).
func (m *Manager) Predict(ctx context.Context, req PredictRequest) (string, error) {
	row, err := m.repo.Get(ctx, m.project, req.Name)
	if err != nil {
		return "", err
	}
	if row.Status != string(models.ModelTrained) {
		return "", errs.Conflictf("language model %q is not trained yet (status=%s)", req.Name, row.Status)
	}

	fn := func(runCtx context.Context) (any, error) {
		return m.runPredict(runCtx, req)
	}
	return m.pool.Submit(ctx, "languagemodel:"+m.project, m.project, req.User, models.QueueGPU, fn)
}

func (m *Manager) runPredict(ctx context.Context, req PredictRequest) (jobResult, error) {
	baseline, err := loadBaseline(m.artifactPath(req.Name))
	if err != nil {
		return jobResult{kind: jobPredict, name: req.Name, user: req.User, err: err}, err
	}
	probas := make(map[string]map[string]float64, len(req.Rows))
	for _, r := range req.Rows {
		probas[r.ID] = baseline.predict(r.Text)
	}
	return jobResult{kind: jobPredict, name: req.Name, dataset: req.Dataset, user: req.User, probas: probas}, nil
}

// Test submits a scoring job against a held-out labeled set.
func (m *Manager) Test(ctx context.Context, req PredictRequest) (string, error) {
	fn := func(runCtx context.Context) (any, error) {
		baseline, err := loadBaseline(m.artifactPath(req.Name))
		if err != nil {
			return jobResult{kind: jobTest, name: req.Name, user: req.User, err: err}, err
		}
		var predicted, actual []string
		for _, r := range req.Rows {
			if r.Label == nil {
				continue
			}
			probas := baseline.predict(r.Text)
			predicted = append(predicted, argmaxMap(probas))
			actual = append(actual, *r.Label)
		}
		metrics := models.MetricsSet{Test: scoreLabels(predicted, actual)}
		return jobResult{kind: jobTest, name: req.Name, user: req.User, metrics: metrics}, nil
	}
	return m.pool.Submit(ctx, "languagemodel:"+m.project, m.project, req.User, models.QueueGPU, fn)
}

func (m *Manager) onComplete(ctx context.Context, res queue.Result) {
	jr, _ := res.Value.(jobResult)
	m.endTraining(jr.user)

	if res.Err != nil {
		_ = m.repo.SetStatus(ctx, m.project, jr.name, string(models.ModelFailed), res.Err.Error())
		return
	}

	switch jr.kind {
	case jobTrain:
		stats := map[string]any{"train": jr.metrics.Train}
		_ = m.repo.SetArtifact(ctx, m.project, jr.name, m.artifactPath(jr.name), stats)
		_ = m.repo.SetStatus(ctx, m.project, jr.name, string(models.ModelTrained), "")
	case jobTest:
		stats := map[string]any{"test": jr.metrics.Test}
		_ = m.repo.SetArtifact(ctx, m.project, jr.name, m.artifactPath(jr.name), stats)
	case jobPredict:
		m.registerPredictFeature(ctx, jr)
	}
}

// registerPredictFeature name-mangles every class into its own column
// (`<name>__label_<i>`) and registers it through Features.Add, per
// spec.md §4.6's "predict job completes ... registered as a new feature".
// Features.Add requires one value per row in the project's feature store,
// so rows outside the predicted partition are padded with 0 (spec.md
// names predict's dataset argument but not this padding detail).
func (m *Manager) registerPredictFeature(ctx context.Context, jr jobResult) {
	labelSet := make(map[string]bool)
	for _, p := range jr.probas {
		for label := range p {
			labelSet[label] = true
		}
	}
	allElements := m.features.AllElementIDs()
	content := make(map[string]map[string]float64, len(labelSet))
	for label := range labelSet {
		col := "label_" + label
		values := make(map[string]float64, len(allElements))
		for _, elementID := range allElements {
			values[elementID] = jr.probas[elementID][label]
		}
		content[col] = values
	}
	_, _ = m.features.Add(ctx, jr.name, models.FeatureDataset, jr.user, map[string]any{"source": "languagemodel_predict"}, content)
}

func (m *Manager) beginTraining(user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.training[user] {
		return errs.Conflictf("user %q already has a language model training in progress", user)
	}
	m.training[user] = true
	return nil
}

func (m *Manager) endTraining(user string) {
	if user == "" {
		return
	}
	m.mu.Lock()
	delete(m.training, user)
	m.mu.Unlock()
}

func (m *Manager) artifactPath(name string) string {
	return filepath.Join(m.artifactRoot, name, "model.gob")
}

// Rename, Delete, Get, List, GetInformations round out the symmetric
// operation set named in spec.md §4.6.
func (m *Manager) Rename(ctx context.Context, oldName, newName string) error {
	return m.repo.Rename(ctx, m.project, oldName, newName)
}

func (m *Manager) Delete(ctx context.Context, name string) error {
	row, err := m.repo.Get(ctx, m.project, name)
	if err != nil {
		return err
	}
	if err := m.repo.Delete(ctx, m.project, name); err != nil {
		return err
	}
	_ = os.RemoveAll(filepath.Dir(row.Path))
	return nil
}

func (m *Manager) GetInformations(ctx context.Context, name string) (*store.ModelRow, error) {
	return m.repo.Get(ctx, m.project, name)
}

func (m *Manager) List(ctx context.Context) ([]*store.ModelRow, error) {
	return m.repo.List(ctx, m.project, store.FamilyLanguage)
}

// baseline is the deterministic stand-in for an actual fine-tuned
// transformer: a bag-of-words majority-vote classifier. It satisfies the
// lifecycle contract this component owns without depending on any
// generative/transformer library, none of which appear in the example
// corpus (the same reasoning as pkg/features/embedders.go).
type baseline struct {
	Labels     []string
	WordLabel  map[string]map[string]int // word -> label -> count
	LabelTotal map[string]int
}

func fitBaseline(rows []Row) (*baseline, models.MetricsSet) {
	b := &baseline{WordLabel: make(map[string]map[string]int), LabelTotal: make(map[string]int)}
	labelSet := make(map[string]bool)
	var predicted, actual []string
	for _, r := range rows {
		if r.Label == nil {
			continue
		}
		labelSet[*r.Label] = true
		b.LabelTotal[*r.Label]++
		for _, word := range tokenize(r.Text) {
			if b.WordLabel[word] == nil {
				b.WordLabel[word] = make(map[string]int)
			}
			b.WordLabel[word][*r.Label]++
		}
	}
	for l := range labelSet {
		b.Labels = append(b.Labels, l)
	}
	for _, r := range rows {
		if r.Label == nil {
			continue
		}
		p := b.predict(r.Text)
		predicted = append(predicted, argmaxMap(p))
		actual = append(actual, *r.Label)
	}
	return b, models.MetricsSet{Train: scoreLabels(predicted, actual)}
}

func (b *baseline) predict(text string) map[string]float64 {
	scores := make(map[string]float64, len(b.Labels))
	for _, l := range b.Labels {
		scores[l] = float64(b.LabelTotal[l]) + 1
	}
	for _, word := range tokenize(text) {
		for l, count := range b.WordLabel[word] {
			scores[l] += float64(count)
		}
	}
	sum := 0.0
	for _, v := range scores {
		sum += v
	}
	if sum == 0 {
		for l := range scores {
			scores[l] = 1.0 / float64(len(scores))
		}
		return scores
	}
	for l := range scores {
		scores[l] /= sum
	}
	return scores
}

func tokenize(text string) []string {
	var words []string
	word := ""
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' {
			if word != "" {
				words = append(words, word)
				word = ""
			}
			continue
		}
		word += string(r)
	}
	if word != "" {
		words = append(words, word)
	}
	return words
}

func argmaxMap(scores map[string]float64) string {
	best, bestLabel := -1.0, ""
	for l, v := range scores {
		if v > best {
			best, bestLabel = v, l
		}
	}
	return bestLabel
}

func scoreLabels(predicted, actual []string) *models.Metrics {
	if len(actual) == 0 {
		return nil
	}
	correct := 0
	for i := range actual {
		if predicted[i] == actual[i] {
			correct++
		}
	}
	return &models.Metrics{Accuracy: float64(correct) / float64(len(actual)), N: len(actual)}
}

func saveBaseline(path string, b *baseline) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b); err != nil {
		return errs.Internalf(err, "encoding language model baseline")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Internalf(err, "creating language model artifact dir")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return errs.Internalf(err, "writing language model artifact")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errs.Internalf(err, "replacing language model artifact")
	}
	return nil
}

func loadBaseline(path string) (*baseline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Internalf(err, "reading language model artifact %s", path)
	}
	var b baseline
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&b); err != nil {
		return nil, errs.Internalf(err, "decoding language model artifact %s", path)
	}
	return &b, nil
}
