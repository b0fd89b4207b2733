package quickmodels

import (
	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
)

// LiblinearParams is an L2-regularized logistic regression (spec.md §4.5).
type LiblinearParams struct {
	Cost float64
}

// LassoParams is an L1-regularized logistic regression.
type LassoParams struct {
	C float64
}

// KNNParams configures a lazy nearest-neighbor classifier.
type KNNParams struct {
	NNeighbors int
}

// RandomForestParams configures a bagged decision-tree ensemble.
type RandomForestParams struct {
	NEstimators int
	MaxFeatures int // 0 means sqrt(n_features), the scikit-learn default
}

// MultiNaiveBayesParams forces dfm features and disables standardization
// (spec.md §4.5); Train rejects any requested feature that isn't a dfm
// column before fitting.
type MultiNaiveBayesParams struct {
	Alpha      float64
	FitPrior   bool
	ClassPrior map[string]float64
}

func floatField(h map[string]any, key string, def float64) float64 {
	if v, ok := h[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return def
}

func intField(h map[string]any, key string, def int) int {
	if v, ok := h[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return def
}

func boolField(h map[string]any, key string, def bool) bool {
	if v, ok := h[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// newClassifier builds the untrained estimator for kind from its
// hyperparameter map, validating the values the spec pins down.
func newClassifier(kind models.QuickModelKind, hyperparams map[string]any) (classifier, error) {
	switch kind {
	case models.ModelLiblinear:
		cost := floatField(hyperparams, "cost", 1.0)
		if cost <= 0 {
			return nil, errs.Invalidf("liblinear cost must be > 0")
		}
		return &logisticModel{C: cost, L1: false}, nil
	case models.ModelLasso:
		c := floatField(hyperparams, "C", 1.0)
		if c <= 0 {
			return nil, errs.Invalidf("lasso C must be > 0")
		}
		return &logisticModel{C: c, L1: true}, nil
	case models.ModelKNN:
		k := intField(hyperparams, "n_neighbors", 5)
		if k < 1 {
			return nil, errs.Invalidf("n_neighbors must be >= 1")
		}
		return &knnModel{K: k}, nil
	case models.ModelRandomForest:
		n := intField(hyperparams, "n_estimators", 100)
		if n < 1 {
			return nil, errs.Invalidf("n_estimators must be >= 1")
		}
		return &forestModel{NEstimators: n, MaxFeatures: intField(hyperparams, "max_features", 0)}, nil
	case models.ModelMultiNaiveBayes:
		alpha := floatField(hyperparams, "alpha", 1.0)
		if alpha < 0 {
			return nil, errs.Invalidf("alpha must be >= 0")
		}
		classPrior := map[string]float64{}
		if cp, ok := hyperparams["class_prior"].(map[string]float64); ok {
			classPrior = cp
		}
		return &naiveBayesModel{Alpha: alpha, FitPrior: boolField(hyperparams, "fit_prior", true), ClassPrior: classPrior}, nil
	default:
		return nil, errs.Invalidf("unknown quick model kind %q", kind)
	}
}
