package quickmodels

import (
	"math"
	"sort"
)

// knnModel is a lazy k-nearest-neighbor classifier: Fit only stores the
// training set, PredictProba does the work (spec.md §4.5 {n_neighbors}).
type knnModel struct {
	K int

	TrainX [][]float64
	TrainY []string
	Labels []string
}

func (m *knnModel) Fit(X [][]float64, y []string) error {
	m.TrainX = X
	m.TrainY = y
	m.Labels = distinctLabels(y)
	if m.K > len(X) {
		m.K = len(X)
	}
	return nil
}

type neighborDist struct {
	dist  float64
	label string
}

func (m *knnModel) PredictProba(X [][]float64) (labels []string, probas [][]float64) {
	probas = make([][]float64, len(X))
	for i, row := range X {
		dists := make([]neighborDist, len(m.TrainX))
		for j, trainRow := range m.TrainX {
			dists[j] = neighborDist{dist: euclidean(row, trainRow), label: m.TrainY[j]}
		}
		sort.Slice(dists, func(a, b int) bool { return dists[a].dist < dists[b].dist })

		counts := make(map[string]int, len(m.Labels))
		k := m.K
		if k > len(dists) {
			k = len(dists)
		}
		for _, d := range dists[:k] {
			counts[d.label]++
		}
		proba := make([]float64, len(m.Labels))
		for li, l := range m.Labels {
			if k > 0 {
				proba[li] = float64(counts[l]) / float64(k)
			}
		}
		probas[i] = proba
	}
	return m.Labels, probas
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
