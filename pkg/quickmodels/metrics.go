package quickmodels

import (
	"math"
	"sort"

	"github.com/AXLMRIN/activetigger-go/pkg/models"
)

func logNatural(v float64) float64 { return math.Log(v) }

func softmax(scores []float64) []float64 {
	max := scores[0]
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	sum := 0.0
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = math.Exp(s - max)
		sum += out[i]
	}
	if sum == 0 {
		for i := range out {
			out[i] = 1.0 / float64(len(out))
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// shannonEntropy computes the row-wise entropy of a probability vector in
// bits, used by next_element's "active" selection mode (spec.md §4.7) and
// by the prediction table (spec.md §4.5).
func shannonEntropy(proba []float64) float64 {
	h := 0.0
	for _, p := range proba {
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h
}

// computeMetrics builds accuracy/F1-macro/per-class precision+recall+F1
// from predicted vs. true labels (spec.md §4.5/§8).
func computeMetrics(predicted, actual []string) *models.Metrics {
	n := len(actual)
	if n == 0 {
		return &models.Metrics{N: 0}
	}
	labels := distinctLabels(append(append([]string{}, actual...), predicted...))
	sort.Strings(labels)

	tp := make(map[string]int)
	fp := make(map[string]int)
	fn := make(map[string]int)
	correct := 0
	for i := range actual {
		if predicted[i] == actual[i] {
			correct++
			tp[actual[i]]++
		} else {
			fp[predicted[i]]++
			fn[actual[i]]++
		}
	}

	precision := make(map[string]float64, len(labels))
	recall := make(map[string]float64, len(labels))
	f1 := make(map[string]float64, len(labels))
	f1Sum := 0.0
	for _, l := range labels {
		p := safeDiv(float64(tp[l]), float64(tp[l]+fp[l]))
		r := safeDiv(float64(tp[l]), float64(tp[l]+fn[l]))
		f := 0.0
		if p+r > 0 {
			f = 2 * p * r / (p + r)
		}
		precision[l], recall[l], f1[l] = p, r, f
		f1Sum += f
	}

	return &models.Metrics{
		Accuracy:   float64(correct) / float64(n),
		F1Macro:    f1Sum / float64(len(labels)),
		Precision:  precision,
		Recall:     recall,
		F1PerClass: f1,
		N:          n,
	}
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
