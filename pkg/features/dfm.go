package features

import (
	"math"
	"strings"
)

// buildVocabulary tokenizes every text into n-grams and returns the
// surviving vocabulary (after min/max document-frequency pruning) plus
// each term's raw document frequency, grounded on the {tfidf, ngrams,
// min_term_freq, max_term_freq, norm, log} parameter set of spec.md §4.4.
func buildVocabulary(texts map[string]string, ngrams, minTermFreq int, maxTermFreq float64) (map[string]bool, map[string]int) {
	if ngrams <= 0 {
		ngrams = 1
	}
	docFreq := make(map[string]int)
	for _, text := range texts {
		seen := make(map[string]bool)
		for _, term := range ngramsOf(text, ngrams) {
			seen[term] = true
		}
		for term := range seen {
			docFreq[term]++
		}
	}

	n := len(texts)
	vocab := make(map[string]bool)
	for term, df := range docFreq {
		if df < minTermFreq {
			continue
		}
		if maxTermFreq > 0 && n > 0 && float64(df)/float64(n) > maxTermFreq {
			continue
		}
		vocab[term] = true
	}
	return vocab, docFreq
}

func ngramsOf(text string, n int) []string {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) < n {
		return nil
	}
	out := make([]string, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		out = append(out, strings.Join(tokens[i:i+n], "_"))
	}
	return out
}

// termColumn computes one DFM column (token frequency or TF-IDF) for
// every element, normalized and log-scaled per params.
func termColumn(texts map[string]string, term string, docFreq, nDocs int, params DFMParams) map[string]float64 {
	out := make(map[string]float64, len(texts))
	idf := 1.0
	if params.TFIDF && docFreq > 0 {
		idf = math.Log(float64(nDocs)/float64(docFreq)) + 1
	}
	for elementID, text := range texts {
		tf := float64(countTerm(text, term))
		v := tf
		if params.TFIDF {
			v = tf * idf
		}
		if params.Log && v > 0 {
			v = math.Log(1 + v)
		}
		out[elementID] = v
	}
	if params.Norm == "l2" {
		normalizeL2(out)
	}
	return out
}

func countTerm(text, term string) int {
	n := strings.Count(term, "_") + 1
	count := 0
	for _, candidate := range ngramsOf(text, n) {
		if candidate == term {
			count++
		}
	}
	return count
}

func normalizeL2(values map[string]float64) {
	sumSq := 0.0
	for _, v := range values {
		sumSq += v * v
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for k, v := range values {
		values[k] = v / norm
	}
}

// sanitizeColumn makes a vocabulary term safe as a column suffix.
func sanitizeColumn(term string) string {
	var b strings.Builder
	for _, r := range term {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
