package quickmodels

import "math"

// logisticModel is a one-vs-rest logistic regression trained by batch
// gradient descent, shared by liblinear (L2) and lasso (L1, via an
// iterative soft-threshold proximal step) — spec.md §4.5 pins down the
// two regularizers, not the solver. Fields are exported so the fitted
// model gob-encodes directly as the persisted artifact.
type logisticModel struct {
	C  float64
	L1 bool

	Labels  []string
	Weights [][]float64 // one weight vector (+ bias at index 0) per label
}

const (
	logregLR    = 0.1
	logregIters = 300
)

func (m *logisticModel) Fit(X [][]float64, y []string) error {
	m.Labels = distinctLabels(y)
	nFeatures := 0
	if len(X) > 0 {
		nFeatures = len(X[0])
	}
	lambda := 1.0 / m.C

	m.Weights = make([][]float64, len(m.Labels))
	for li, label := range m.Labels {
		target := make([]float64, len(y))
		for i, v := range y {
			if v == label {
				target[i] = 1
			}
		}
		m.Weights[li] = fitBinaryLogistic(X, target, nFeatures, lambda, m.L1)
	}
	return nil
}

func fitBinaryLogistic(X [][]float64, target []float64, nFeatures int, lambda float64, l1 bool) []float64 {
	w := make([]float64, nFeatures+1) // w[0] is bias
	n := float64(len(X))
	if n == 0 {
		return w
	}
	for iter := 0; iter < logregIters; iter++ {
		grad := make([]float64, nFeatures+1)
		for i, row := range X {
			z := w[0]
			for j, v := range row {
				z += w[j+1] * v
			}
			p := sigmoid(z)
			diff := p - target[i]
			grad[0] += diff
			for j, v := range row {
				grad[j+1] += diff * v
			}
		}
		for j := range w {
			g := grad[j] / n
			if j > 0 && !l1 {
				g += lambda * w[j] / n
			}
			w[j] -= logregLR * g
		}
		if l1 {
			threshold := logregLR * lambda / n
			for j := 1; j < len(w); j++ {
				w[j] = softThreshold(w[j], threshold)
			}
		}
	}
	return w
}

func softThreshold(v, threshold float64) float64 {
	switch {
	case v > threshold:
		return v - threshold
	case v < -threshold:
		return v + threshold
	default:
		return 0
	}
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

func (m *logisticModel) PredictProba(X [][]float64) (labels []string, probas [][]float64) {
	probas = make([][]float64, len(X))
	for i, row := range X {
		raw := make([]float64, len(m.Labels))
		sum := 0.0
		for li, w := range m.Weights {
			z := w[0]
			for j, v := range row {
				z += w[j+1] * v
			}
			raw[li] = sigmoid(z)
			sum += raw[li]
		}
		if sum == 0 {
			for li := range raw {
				raw[li] = 1.0 / float64(len(raw))
			}
		} else {
			for li := range raw {
				raw[li] /= sum
			}
		}
		probas[i] = raw
	}
	return m.Labels, probas
}
