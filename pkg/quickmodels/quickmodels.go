// Package quickmodels implements the QuickModels component (spec.md §4.5):
// training and prediction for small classifiers over a project's feature
// matrix.
//
// No linear-algebra/ML library appears anywhere in the example corpus (the
// teacher and the rest of the pack are server/orchestration code, not data
// science code), so the estimators in this package are hand-rolled — the
// one deliberate stdlib-only component of the core, justified in DESIGN.md.
package quickmodels

import (
	"bytes"
	"context"
	"encoding/gob"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/features"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
	"github.com/AXLMRIN/activetigger-go/pkg/schemes"
	"github.com/AXLMRIN/activetigger-go/pkg/store"
)

func init() {
	gob.Register(&logisticModel{})
	gob.Register(&knnModel{})
	gob.Register(&forestModel{})
	gob.Register(&naiveBayesModel{})
}

// Prediction is one element's inference output: the argmax label, the full
// probability vector, and its Shannon entropy (spec.md §4.5, §4.7).
type Prediction struct {
	Label   string
	Proba   map[string]float64
	Entropy float64
}

// PredictionSet is the in-memory cache of a model's latest prediction run
// over one dataset partition, consulted by pkg/project's maxprob/active
// selection modes (spec.md §4.7).
type PredictionSet struct {
	Dataset   models.Partition
	ByElement map[string]Prediction
}

type trainedArtifact struct {
	Classifier   classifier
	FeatureNames []string
	Standardize  bool
	Means        []float64
	Stds         []float64
}

// Manager owns every QuickModel operation for one project.
type Manager struct {
	project      string
	repo         *store.ModelsRepo
	features     *features.Manager
	schemes      *schemes.Manager
	artifactRoot string

	mu          sync.Mutex
	training    map[string]bool // user -> training in flight
	artifacts   map[string]*trainedArtifact
	predictions map[string]*PredictionSet
}

// New builds a Manager scoped to one project. artifactRoot is the
// project's quickmodels/ directory (spec.md §6 on-disk layout).
func New(project string, repo *store.ModelsRepo, feats *features.Manager, schemeMgr *schemes.Manager, artifactRoot string) *Manager {
	return &Manager{
		project:      project,
		repo:         repo,
		features:     feats,
		schemes:      schemeMgr,
		artifactRoot: artifactRoot,
		training:     make(map[string]bool),
		artifacts:    make(map[string]*trainedArtifact),
		predictions:  make(map[string]*PredictionSet),
	}
}

// TrainRequest carries Train's arguments (spec.md §4.5).
type TrainRequest struct {
	Name        string
	Kind        models.QuickModelKind
	Scheme      string
	Features    []string
	Hyperparams map[string]any
	Standardize bool
	CV10        bool
	Retrain     bool
	User        string
}

// Train builds (X, Y) from the feature store and latest train-partition
// annotations, fits the requested classifier, scores it, and persists the
// artifact. Trainings are serialized per user (spec.md §5).
func (m *Manager) Train(ctx context.Context, req TrainRequest) (*models.QuickModel, error) {
	if len(req.Features) == 0 {
		return nil, errs.Invalidf("quick model training requires at least one feature")
	}
	if req.Kind == models.ModelMultiNaiveBayes {
		req.Standardize = false
		if err := m.requireDFMFeatures(ctx, req.Features); err != nil {
			return nil, err
		}
	}

	if err := m.beginTraining(req.User); err != nil {
		return nil, err
	}
	defer m.endTraining(req.User)

	if !req.Retrain {
		if _, err := m.repo.Get(ctx, m.project, req.Name); err == nil {
			return nil, errs.AlreadyExistsf("quick model %q already exists in %s", req.Name, m.project)
		}
	}

	elementIDs, rawX, err := m.features.Get(req.Features, models.PartitionTrain)
	if err != nil {
		return nil, err
	}
	labels, err := m.schemes.GetSchemeData(ctx, req.Scheme, []models.Partition{models.PartitionTrain}, "")
	if err != nil {
		return nil, err
	}

	X, Y := joinLabeled(elementIDs, rawX, labels)
	if len(distinctLabels(Y)) < 2 {
		return nil, errs.Invalidf("training requires at least 2 labels, got %d", len(distinctLabels(Y)))
	}

	means, stds := []float64(nil), []float64(nil)
	trainX := X
	if req.Standardize {
		trainX, means, stds = standardize(X)
	}

	clf, err := newClassifier(req.Kind, req.Hyperparams)
	if err != nil {
		return nil, err
	}
	if err := clf.Fit(trainX, Y); err != nil {
		return nil, errs.Internalf(err, "fitting %s model %q", req.Kind, req.Name)
	}

	metricsSet := models.MetricsSet{
		Train: computeMetrics(argmaxLabels(clf, trainX), Y),
	}
	if req.CV10 && len(X) >= 10 {
		metricsSet.CV10 = crossValidate(req.Kind, req.Hyperparams, X, Y, req.Standardize)
	}
	if m, err := m.scorePartition(ctx, req, clf, means, stds, models.PartitionValid); err == nil {
		metricsSet.Valid = m
	}
	if m, err := m.scorePartition(ctx, req, clf, means, stds, models.PartitionTest); err == nil {
		metricsSet.Test = m
	}

	artifactPath := filepath.Join(m.artifactRoot, req.Name, "model.gob")
	artifact := &trainedArtifact{Classifier: clf, FeatureNames: req.Features, Standardize: req.Standardize, Means: means, Stds: stds}
	if err := saveArtifact(artifactPath, artifact); err != nil {
		return nil, err
	}

	statistics := map[string]any{"train": metricsSet.Train}
	row := &store.ModelRow{
		Project: m.project, Family: store.FamilyQuick, Name: req.Name, Scheme: req.Scheme,
		User: req.User, Kind: string(req.Kind), Parameters: req.Hyperparams, Status: "trained",
	}
	if req.Retrain {
		_ = m.repo.Delete(ctx, m.project, req.Name)
	}
	id, err := m.repo.Add(ctx, row)
	if err != nil {
		return nil, err
	}
	if err := m.repo.SetArtifact(ctx, m.project, req.Name, artifactPath, statistics); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.artifacts[req.Name] = artifact
	m.mu.Unlock()

	return &models.QuickModel{
		ID: id, Project: m.project, Name: req.Name, Scheme: req.Scheme, User: req.User,
		Kind: req.Kind, Hyperparams: req.Hyperparams, Features: req.Features,
		Standardize: req.Standardize, CV10: req.CV10, Metrics: metricsSet, ArtifactPath: artifactPath,
	}, nil
}

// requireDFMFeatures enforces multi_naivebayes' "forces dfm features"
// precondition (spec.md §4.5): every requested column must come from a
// feature registered with kind dfm, never sbert/fasttext/regex/dataset.
func (m *Manager) requireDFMFeatures(ctx context.Context, columns []string) error {
	feats, err := m.features.List(ctx)
	if err != nil {
		return err
	}
	kindByColumn := make(map[string]models.FeatureKind, len(feats))
	for _, f := range feats {
		for _, col := range f.Columns {
			kindByColumn[col] = f.Kind
		}
	}
	for _, col := range columns {
		if kindByColumn[col] != models.FeatureDFM {
			return errs.Invalidf("multi_naivebayes requires dfm features, %q is not a dfm column", col)
		}
	}
	return nil
}

func (m *Manager) beginTraining(user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.training[user] {
		return errs.Conflictf("user %q already has a quick model training in progress", user)
	}
	m.training[user] = true
	return nil
}

func (m *Manager) endTraining(user string) {
	m.mu.Lock()
	delete(m.training, user)
	m.mu.Unlock()
}

// scorePartition scores an already-fitted classifier on a non-train
// partition when that partition has any labeled rows, per spec.md §4.5
// "when valid/test partitions exist".
func (m *Manager) scorePartition(ctx context.Context, req TrainRequest, clf classifier, means, stds []float64, partition models.Partition) (*models.Metrics, error) {
	elementIDs, rawX, err := m.features.Get(req.Features, partition)
	if err != nil || len(elementIDs) == 0 {
		return nil, errs.NotFoundf("no rows in partition %s", partition)
	}
	labels, err := m.schemes.GetSchemeData(ctx, req.Scheme, []models.Partition{partition}, "")
	if err != nil {
		return nil, err
	}
	X, Y := joinLabeled(elementIDs, rawX, labels)
	if len(X) == 0 {
		return nil, errs.NotFoundf("no labeled rows in partition %s", partition)
	}
	if req.Standardize {
		X = applyStandardize(X, means, stds)
	}
	return computeMetrics(argmaxLabels(clf, X), Y), nil
}

// PredictRequest carries Predict's arguments (spec.md §4.5).
type PredictRequest struct {
	Name     string
	Dataset  models.Partition // annotable, all, external
	Features []string
}

// Predict runs inference over dataset using model Name's fitted artifact,
// caching the result set for selection (pkg/project) and returning it for
// the caller (e.g. an HTTP handler would materialize predict_<dataset>).
func (m *Manager) Predict(ctx context.Context, req PredictRequest) (*PredictionSet, error) {
	artifact, err := m.loadArtifact(ctx, req.Name)
	if err != nil {
		return nil, err
	}

	partition := req.Dataset
	if partition == "annotable" {
		partition = models.PartitionAll
	}
	elementIDs, rawX, err := m.features.Get(artifact.FeatureNames, partition)
	if err != nil {
		return nil, err
	}
	X := rawX
	if artifact.Standardize {
		X = applyStandardize(rawX, artifact.Means, artifact.Stds)
	}

	labels, probas := artifact.Classifier.PredictProba(X)
	byElement := make(map[string]Prediction, len(elementIDs))
	for i, elementID := range elementIDs {
		argmax, probaMap := predictRow(labels, probas[i])
		byElement[elementID] = Prediction{Label: argmax, Proba: probaMap, Entropy: shannonEntropy(probas[i])}
	}

	set := &PredictionSet{Dataset: req.Dataset, ByElement: byElement}
	m.mu.Lock()
	m.predictions[req.Name] = set
	m.mu.Unlock()
	return set, nil
}

// LatestPredictions returns the cached prediction set from the most recent
// Predict call for name, used by next_element's maxprob/active modes
// (spec.md §4.7).
func (m *Manager) LatestPredictions(name string) (*PredictionSet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.predictions[name]
	return set, ok
}

func (m *Manager) loadArtifact(ctx context.Context, name string) (*trainedArtifact, error) {
	m.mu.Lock()
	a, ok := m.artifacts[name]
	m.mu.Unlock()
	if ok {
		return a, nil
	}

	row, err := m.repo.Get(ctx, m.project, name)
	if err != nil {
		return nil, err
	}
	artifact, err := loadArtifactFile(row.Path)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.artifacts[name] = artifact
	m.mu.Unlock()
	return artifact, nil
}

// Rename and Delete mirror the Models service surface named in spec.md
// §4.1 ("rename(old,new)").
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
	m.mu.Lock()
	delete(m.artifacts, name)
	delete(m.predictions, name)
	m.mu.Unlock()
	return nil
}

func (m *Manager) List(ctx context.Context) ([]*store.ModelRow, error) {
	return m.repo.List(ctx, m.project, store.FamilyQuick)
}

// joinLabeled aligns feature rows with the latest train-partition
// annotation for the same element, dropping unlabeled rows (spec.md §4.5
// "dropping rows with any missing feature" — with a dense columnar store,
// the only drop condition that can occur is a missing/null label).
func joinLabeled(elementIDs []string, X [][]float64, labels map[string]*models.Annotation) (outX [][]float64, outY []string) {
	for i, id := range elementIDs {
		ann, ok := labels[id]
		if !ok || ann.Annotation == nil {
			continue
		}
		outX = append(outX, X[i])
		outY = append(outY, *ann.Annotation)
	}
	return outX, outY
}

func argmaxLabels(clf classifier, X [][]float64) []string {
	labels, probas := clf.PredictProba(X)
	out := make([]string, len(X))
	for i, p := range probas {
		out[i], _ = predictRow(labels, p)
	}
	return out
}

func standardize(X [][]float64) (out [][]float64, means, stds []float64) {
	if len(X) == 0 {
		return X, nil, nil
	}
	nFeatures := len(X[0])
	means = make([]float64, nFeatures)
	stds = make([]float64, nFeatures)
	for _, row := range X {
		for j, v := range row {
			means[j] += v
		}
	}
	n := float64(len(X))
	for j := range means {
		means[j] /= n
	}
	for _, row := range X {
		for j, v := range row {
			d := v - means[j]
			stds[j] += d * d
		}
	}
	for j := range stds {
		stds[j] = math.Sqrt(stds[j] / n)
		if stds[j] == 0 {
			stds[j] = 1
		}
	}
	return applyStandardize(X, means, stds), means, stds
}

func applyStandardize(X [][]float64, means, stds []float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = (v - means[j]) / stds[j]
		}
		out[i] = r
	}
	return out
}

// crossValidate runs stratified-free 10-fold CV (spec.md §4.5 "cross
// validation metrics (10-fold, conditional)"), refitting a fresh
// classifier per fold so the reported metric reflects held-out
// generalization rather than the final fitted model.
func crossValidate(kind models.QuickModelKind, hyperparams map[string]any, X [][]float64, Y []string, standardizeFlag bool) *models.Metrics {
	const folds = 10
	n := len(X)
	perm := rand.New(rand.NewSource(7)).Perm(n)

	var allPredicted, allActual []string
	for k := 0; k < folds; k++ {
		var trainX, testX [][]float64
		var trainY, testY []string
		for i, idx := range perm {
			if i%folds == k {
				testX = append(testX, X[idx])
				testY = append(testY, Y[idx])
			} else {
				trainX = append(trainX, X[idx])
				trainY = append(trainY, Y[idx])
			}
		}
		if len(testX) == 0 || len(distinctLabels(trainY)) < 2 {
			continue
		}
		fx := trainX
		tx := testX
		if standardizeFlag {
			var means, stds []float64
			fx, means, stds = standardize(trainX)
			tx = applyStandardize(testX, means, stds)
		}
		clf, err := newClassifier(kind, hyperparams)
		if err != nil {
			continue
		}
		if err := clf.Fit(fx, trainY); err != nil {
			continue
		}
		allPredicted = append(allPredicted, argmaxLabels(clf, tx)...)
		allActual = append(allActual, testY...)
	}
	if len(allActual) == 0 {
		return nil
	}
	return computeMetrics(allPredicted, allActual)
}

func saveArtifact(path string, a *trainedArtifact) error {
	var buf bytes.Buffer
	payload := struct {
		Classifier   classifier
		FeatureNames []string
		Standardize  bool
		Means        []float64
		Stds         []float64
	}{a.Classifier, a.FeatureNames, a.Standardize, a.Means, a.Stds}
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return errs.Internalf(err, "encoding quick model artifact")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Internalf(err, "creating quick model artifact dir")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return errs.Internalf(err, "writing quick model artifact")
	}
	return errOrNil(os.Rename(tmp, path))
}

func errOrNil(err error) error {
	if err == nil {
		return nil
	}
	return errs.Internalf(err, "replacing quick model artifact")
}

func loadArtifactFile(path string) (*trainedArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Internalf(err, "reading quick model artifact %s", path)
	}
	var payload struct {
		Classifier   classifier
		FeatureNames []string
		Standardize  bool
		Means        []float64
		Stds         []float64
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
		return nil, errs.Internalf(err, "decoding quick model artifact %s", path)
	}
	return &trainedArtifact{
		Classifier: payload.Classifier, FeatureNames: payload.FeatureNames,
		Standardize: payload.Standardize, Means: payload.Means, Stds: payload.Stds,
	}, nil
}
