package quickmodels

import (
	"math"
	"math/rand"
)

// forestModel is a bagged ensemble of shallow decision trees (spec.md §4.5
// {n_estimators, max_features}), hand-rolled for the same reason as the
// rest of this package — no ecosystem ML library appears in the corpus.
// Fields are exported so the fitted ensemble gob-encodes as the artifact.
type forestModel struct {
	NEstimators int
	MaxFeatures int

	Trees  []*treeNode
	Labels []string
}

const forestMaxDepth = 6

type treeNode struct {
	IsLeaf    bool
	Proba     []float64 // valid when IsLeaf
	Feature   int
	Threshold float64
	Left      *treeNode
	Right     *treeNode
}

func (m *forestModel) Fit(X [][]float64, y []string) error {
	m.Labels = distinctLabels(y)
	if len(X) == 0 {
		return nil
	}
	nFeatures := len(X[0])
	maxFeatures := m.MaxFeatures
	if maxFeatures <= 0 || maxFeatures > nFeatures {
		maxFeatures = int(math.Max(1, math.Sqrt(float64(nFeatures))))
	}
	rng := rand.New(rand.NewSource(42))

	labelIndex := make(map[string]int, len(m.Labels))
	for i, l := range m.Labels {
		labelIndex[l] = i
	}
	yIdx := make([]int, len(y))
	for i, v := range y {
		yIdx[i] = labelIndex[v]
	}

	m.Trees = make([]*treeNode, m.NEstimators)
	for t := 0; t < m.NEstimators; t++ {
		sampleX, sampleY := bootstrapSample(X, yIdx, rng)
		m.Trees[t] = buildTree(sampleX, sampleY, len(m.Labels), maxFeatures, 0, rng)
	}
	return nil
}

func bootstrapSample(X [][]float64, y []int, rng *rand.Rand) ([][]float64, []int) {
	n := len(X)
	sx := make([][]float64, n)
	sy := make([]int, n)
	for i := 0; i < n; i++ {
		idx := rng.Intn(n)
		sx[i] = X[idx]
		sy[i] = y[idx]
	}
	return sx, sy
}

func buildTree(X [][]float64, y []int, nClasses, maxFeatures, depth int, rng *rand.Rand) *treeNode {
	if depth >= forestMaxDepth || len(X) < 4 || isPure(y) {
		return &treeNode{IsLeaf: true, Proba: classProba(y, nClasses)}
	}

	nFeatures := len(X[0])
	candidates := rng.Perm(nFeatures)
	if maxFeatures < len(candidates) {
		candidates = candidates[:maxFeatures]
	}

	bestFeature, bestThreshold, bestGini := -1, 0.0, math.Inf(1)
	for _, f := range candidates {
		threshold := medianOf(X, f)
		leftY, rightY := splitLabels(X, y, f, threshold)
		if len(leftY) == 0 || len(rightY) == 0 {
			continue
		}
		g := weightedGini(leftY, rightY, nClasses)
		if g < bestGini {
			bestGini, bestFeature, bestThreshold = g, f, threshold
		}
	}
	if bestFeature < 0 {
		return &treeNode{IsLeaf: true, Proba: classProba(y, nClasses)}
	}

	leftX, leftY, rightX, rightY := split(X, y, bestFeature, bestThreshold)
	return &treeNode{
		Feature:   bestFeature,
		Threshold: bestThreshold,
		Left:      buildTree(leftX, leftY, nClasses, maxFeatures, depth+1, rng),
		Right:     buildTree(rightX, rightY, nClasses, maxFeatures, depth+1, rng),
	}
}

func isPure(y []int) bool {
	for _, v := range y {
		if v != y[0] {
			return false
		}
	}
	return true
}

func classProba(y []int, nClasses int) []float64 {
	counts := make([]float64, nClasses)
	for _, v := range y {
		counts[v]++
	}
	n := float64(len(y))
	if n == 0 {
		for i := range counts {
			counts[i] = 1.0 / float64(nClasses)
		}
		return counts
	}
	for i := range counts {
		counts[i] /= n
	}
	return counts
}

func medianOf(X [][]float64, feature int) float64 {
	sum := 0.0
	for _, row := range X {
		sum += row[feature]
	}
	return sum / float64(len(X))
}

func splitLabels(X [][]float64, y []int, feature int, threshold float64) (left, right []int) {
	for i, row := range X {
		if row[feature] <= threshold {
			left = append(left, y[i])
		} else {
			right = append(right, y[i])
		}
	}
	return
}

func split(X [][]float64, y []int, feature int, threshold float64) (lX [][]float64, lY []int, rX [][]float64, rY []int) {
	for i, row := range X {
		if row[feature] <= threshold {
			lX = append(lX, row)
			lY = append(lY, y[i])
		} else {
			rX = append(rX, row)
			rY = append(rY, y[i])
		}
	}
	return
}

func gini(y []int, nClasses int) float64 {
	counts := make([]float64, nClasses)
	for _, v := range y {
		counts[v]++
	}
	n := float64(len(y))
	if n == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := c / n
		g -= p * p
	}
	return g
}

func weightedGini(left, right []int, nClasses int) float64 {
	n := float64(len(left) + len(right))
	return float64(len(left))/n*gini(left, nClasses) + float64(len(right))/n*gini(right, nClasses)
}

func (m *forestModel) PredictProba(X [][]float64) (labels []string, probas [][]float64) {
	probas = make([][]float64, len(X))
	for i, row := range X {
		agg := make([]float64, len(m.Labels))
		for _, tree := range m.Trees {
			p := tree.predict(row)
			for j, v := range p {
				agg[j] += v
			}
		}
		if len(m.Trees) > 0 {
			for j := range agg {
				agg[j] /= float64(len(m.Trees))
			}
		}
		probas[i] = agg
	}
	return m.Labels, probas
}

func (n *treeNode) predict(row []float64) []float64 {
	if n.IsLeaf {
		return n.Proba
	}
	if row[n.Feature] <= n.Threshold {
		return n.Left.predict(row)
	}
	return n.Right.predict(row)
}
