package quickmodels

// naiveBayesModel is a multinomial Naive Bayes classifier over
// non-negative feature counts (dfm columns), per spec.md §4.5
// "multi_naivebayes {alpha, fit_prior, class_prior?} forces dfm features".
// Fields are exported so the fitted model gob-encodes as the artifact.
type naiveBayesModel struct {
	Alpha      float64
	FitPrior   bool
	ClassPrior map[string]float64

	Labels    []string
	LogPrior  []float64
	LogLikely [][]float64 // [label][feature]
}

func (m *naiveBayesModel) Fit(X [][]float64, y []string) error {
	m.Labels = distinctLabels(y)
	nFeatures := 0
	if len(X) > 0 {
		nFeatures = len(X[0])
	}

	byLabel := make(map[string][][]float64, len(m.Labels))
	for i, label := range y {
		byLabel[label] = append(byLabel[label], X[i])
	}

	m.LogPrior = make([]float64, len(m.Labels))
	m.LogLikely = make([][]float64, len(m.Labels))

	n := float64(len(y))
	for li, label := range m.Labels {
		rows := byLabel[label]
		var prior float64
		if p, ok := m.ClassPrior[label]; ok {
			prior = p
		} else if m.FitPrior {
			prior = float64(len(rows)) / n
		} else {
			prior = 1.0 / float64(len(m.Labels))
		}
		m.LogPrior[li] = logSafe(prior)

		featTotals := make([]float64, nFeatures)
		grandTotal := 0.0
		for _, row := range rows {
			for j, v := range row {
				featTotals[j] += v
				grandTotal += v
			}
		}
		likely := make([]float64, nFeatures)
		denom := grandTotal + m.Alpha*float64(nFeatures)
		for j := range likely {
			likely[j] = logSafe((featTotals[j] + m.Alpha) / denom)
		}
		m.LogLikely[li] = likely
	}
	return nil
}

func logSafe(v float64) float64 {
	if v <= 0 {
		return -1e9
	}
	return logNatural(v)
}

func (m *naiveBayesModel) PredictProba(X [][]float64) (labels []string, probas [][]float64) {
	probas = make([][]float64, len(X))
	for i, row := range X {
		scores := make([]float64, len(m.Labels))
		for li := range m.Labels {
			s := m.LogPrior[li]
			for j, v := range row {
				s += v * m.LogLikely[li][j]
			}
			scores[li] = s
		}
		probas[i] = softmax(scores)
	}
	return m.Labels, probas
}
