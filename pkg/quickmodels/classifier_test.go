package quickmodels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistinctLabelsPreservesFirstSeenOrder(t *testing.T) {
	got := distinctLabels([]string{"b", "a", "b", "c", "a"})
	assert.Equal(t, []string{"b", "a", "c"}, got)
}

func TestPredictRowPicksArgmax(t *testing.T) {
	labels := []string{"neg", "neutral", "pos"}
	argmax, probaMap := predictRow(labels, []float64{0.1, 0.2, 0.7})
	assert.Equal(t, "pos", argmax)
	assert.Equal(t, 0.7, probaMap["pos"])
	assert.Len(t, probaMap, 3)
}

func TestKNNFitCapsKToTrainingSetSize(t *testing.T) {
	m := &knnModel{K: 100}
	require.NoError(t, m.Fit([][]float64{{0, 0}, {1, 1}}, []string{"a", "b"}))
	assert.Equal(t, 2, m.K)
}

func TestKNNPredictsNearestNeighborLabel(t *testing.T) {
	m := &knnModel{K: 1}
	require.NoError(t, m.Fit([][]float64{
		{0, 0}, {0, 1}, // cluster "a"
		{10, 10}, {10, 11}, // cluster "b"
	}, []string{"a", "a", "b", "b"}))

	labels, probas := m.PredictProba([][]float64{{0.1, 0.1}, {10.1, 10.1}})
	require.Len(t, probas, 2)

	aIdx, bIdx := indexOf(labels, "a"), indexOf(labels, "b")
	assert.Equal(t, 1.0, probas[0][aIdx])
	assert.Equal(t, 0.0, probas[0][bIdx])
	assert.Equal(t, 1.0, probas[1][bIdx])
	assert.Equal(t, 0.0, probas[1][aIdx])
}

func TestKNNMajorityVoteIgnoresPointsBeyondK(t *testing.T) {
	m := &knnModel{K: 3}
	require.NoError(t, m.Fit([][]float64{
		{0, 0}, {0, 0.1}, {0, 0.2}, // three close "a" points
		{5, 5}, // one far "b" point
	}, []string{"a", "a", "a", "b"}))

	labels, probas := m.PredictProba([][]float64{{0, 0}})
	aIdx := indexOf(labels, "a")
	assert.InDelta(t, 1.0, probas[0][aIdx], 1e-9)
}

func TestEuclideanDistance(t *testing.T) {
	assert.InDelta(t, 5.0, euclidean([]float64{0, 0}, []float64{3, 4}), 1e-9)
	assert.InDelta(t, 0.0, euclidean([]float64{1, 1}, []float64{1, 1}), 1e-9)
}

func TestNaiveBayesFavorsLabelWithStrongerFeatureCounts(t *testing.T) {
	m := &naiveBayesModel{Alpha: 1.0, FitPrior: true}
	// two single-feature-dominant classes, unambiguous at prediction time.
	X := [][]float64{
		{10, 0}, {9, 1}, // label "pos": feature 0 dominant
		{0, 10}, {1, 9}, // label "neg": feature 1 dominant
	}
	y := []string{"pos", "pos", "neg", "neg"}
	require.NoError(t, m.Fit(X, y))

	labels, probas := m.PredictProba([][]float64{{8, 0}, {0, 8}})
	require.Len(t, probas, 2)

	posIdx, negIdx := indexOf(labels, "pos"), indexOf(labels, "neg")
	assert.Greater(t, probas[0][posIdx], probas[0][negIdx])
	assert.Greater(t, probas[1][negIdx], probas[1][posIdx])

	for _, row := range probas {
		sum := 0.0
		for _, p := range row {
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestNaiveBayesUsesExplicitClassPrior(t *testing.T) {
	m := &naiveBayesModel{Alpha: 1.0, ClassPrior: map[string]float64{"a": 0.9, "b": 0.1}}
	require.NoError(t, m.Fit([][]float64{{1, 0}, {0, 1}}, []string{"a", "b"}))
	assert.Less(t, m.LogPrior[indexOf(m.Labels, "b")], m.LogPrior[indexOf(m.Labels, "a")])
}

func indexOf(labels []string, target string) int {
	for i, l := range labels {
		if l == target {
			return i
		}
	}
	return -1
}
