package project

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
	"github.com/AXLMRIN/activetigger-go/pkg/quickmodels"
)

// Frame is the [xmin, xmax, ymin, ymax] rectangle filter (spec.md §4.7).
type Frame struct{ XMin, XMax, YMin, YMax float64 }

// NextElementRequest carries next_element's arguments (spec.md §4.7).
type NextElementRequest struct {
	Scheme    string
	Selection models.SelectionMode
	Sample    models.SampleFilter
	User      string
	Tag       *string
	History   []string
	Frame     *Frame
	Filter    string // plain regex, or "CONTEXT=<regex>"
	ModelName string // quick model consulted by maxprob/active
	Limit     int
}

// NextElementResult is what the UI renders for one annotation turn
// (spec.md §4.7).
type NextElementResult struct {
	ElementID  string
	Text       string
	Context    map[string]string
	Selection  models.SelectionMode
	Indicator  string
	Prediction *quickmodels.Prediction
	History    []*models.Annotation
	Limit      int
}

const defaultHistoryLimit = 20

// NextElement implements the candidate-filter-then-select pipeline
// (spec.md §4.7): sample filter, then regex/context/frame/history
// sub-filters, then one of the five selection strategies.
func (p *Project) NextElement(ctx context.Context, req NextElementRequest) (*NextElementResult, error) {
	partition := models.PartitionTrain
	if req.Selection == models.SelectionTest {
		partition = models.PartitionTest
	}

	candidates := p.Raw.ElementIDs(partition)
	if len(candidates) == 0 {
		return nil, errs.Unavailablef("no elements in partition %s", partition)
	}

	latest, err := p.Schemes.GetSchemeData(ctx, req.Scheme, []models.Partition{partition}, "")
	if err != nil {
		return nil, err
	}
	candidates = filterBySample(candidates, latest, req.Sample)
	candidates = excludeHistory(candidates, req.History)
	candidates, err = p.filterByRegex(candidates, req.Filter)
	if err != nil {
		return nil, err
	}
	candidates = p.filterByFrame(candidates, req.User, req.Frame)

	if len(candidates) == 0 {
		return nil, errs.Unavailablef("no element available after filtering")
	}

	elementID, indicator, prediction, err := p.selectOne(candidates, latest, req)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	history, err := p.Schemes.History(ctx, req.Scheme, elementID, limit)
	if err != nil {
		return nil, err
	}

	return &NextElementResult{
		ElementID:  elementID,
		Text:       p.Raw.Text(elementID),
		Context:    p.Raw.ContextOf(elementID),
		Selection:  req.Selection,
		Indicator:  indicator,
		Prediction: prediction,
		History:    history,
		Limit:      limit,
	}, nil
}

func filterBySample(candidates []string, latest map[string]*models.Annotation, sample models.SampleFilter) []string {
	if sample == models.SampleAll {
		return candidates
	}
	var out []string
	for _, id := range candidates {
		ann, tagged := latest[id]
		isTagged := tagged && ann.Annotation != nil
		if sample == models.SampleTagged && isTagged {
			out = append(out, id)
		} else if sample == models.SampleUntagged && !isTagged {
			out = append(out, id)
		}
	}
	return out
}

func excludeHistory(candidates, history []string) []string {
	if len(history) == 0 {
		return candidates
	}
	seen := make(map[string]bool, len(history))
	for _, id := range history {
		seen[id] = true
	}
	var out []string
	for _, id := range candidates {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

func (p *Project) filterByRegex(candidates []string, filter string) ([]string, error) {
	if filter == "" {
		return candidates, nil
	}
	onContext := strings.HasPrefix(filter, "CONTEXT=")
	pattern := strings.TrimPrefix(filter, "CONTEXT=")
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errs.Invalidf("invalid filter regex %q: %v", pattern, err)
	}
	var out []string
	for _, id := range candidates {
		var haystack string
		if onContext {
			ctx := p.Raw.ContextOf(id)
			parts := make([]string, 0, len(ctx))
			for _, v := range ctx {
				parts = append(parts, v)
			}
			haystack = strings.Join(parts, " ")
		} else {
			haystack = p.Raw.Text(id)
		}
		if re.MatchString(haystack) {
			out = append(out, id)
		}
	}
	return out, nil
}

// filterByFrame restricts to a rectangle in a 2-D projection, when one is
// registered for user. No projection/dimensionality-reduction component
// exists yet in this core (spec.md names it only in passing via
// next_element's frame argument), so absent a projection this is a no-op —
// matching the spec's own "if a 2-D projection exists" conditional.
func (p *Project) filterByFrame(candidates []string, user string, frame *Frame) []string {
	if frame == nil {
		return candidates
	}
	proj, ok := p.projections[user]
	if !ok {
		return candidates
	}
	var out []string
	for _, id := range candidates {
		pt, ok := proj[id]
		if !ok {
			continue
		}
		if pt.X >= frame.XMin && pt.X <= frame.XMax && pt.Y >= frame.YMin && pt.Y <= frame.YMax {
			out = append(out, id)
		}
	}
	return out
}

func (p *Project) selectOne(candidates []string, latest map[string]*models.Annotation, req NextElementRequest) (elementID, indicator string, prediction *quickmodels.Prediction, err error) {
	switch req.Selection {
	case models.SelectionDeterministic:
		return candidates[0], "deterministic", nil, nil

	case models.SelectionRandom:
		rng := rand.New(rand.NewSource(p.selectionSeed(req.User)))
		return candidates[rng.Intn(len(candidates))], "random", nil, nil

	case models.SelectionTest:
		// test may only ever serve a null-labeled row (spec.md §4.7,
		// partition exclusivity in §8): enforced here directly rather than
		// trusting the caller to have passed SampleUntagged, since a
		// non-null test label would contradict that invariant.
		untagged := filterBySample(candidates, latest, models.SampleUntagged)
		if len(untagged) == 0 {
			return "", "", nil, errs.Unavailablef("no untagged element available in the test partition")
		}
		rng := rand.New(rand.NewSource(p.selectionSeed(req.User)))
		return untagged[rng.Intn(len(untagged))], "test", nil, nil

	case models.SelectionMaxProb:
		if req.Tag == nil {
			return "", "", nil, errs.Invalidf("maxprob selection requires a tag")
		}
		set, ok := p.QuickModels.LatestPredictions(req.ModelName)
		if !ok {
			return "", "", nil, errs.Unavailablef("no trained quick model %q to select from", req.ModelName)
		}
		id, pred, err := argmaxByProba(candidates, set, *req.Tag)
		if err != nil {
			return "", "", nil, err
		}
		return id, indicatorString("probability", pred.Proba[*req.Tag]), &pred, nil

	case models.SelectionActive:
		set, ok := p.QuickModels.LatestPredictions(req.ModelName)
		if !ok {
			return "", "", nil, errs.Unavailablef("no trained quick model %q to select from", req.ModelName)
		}
		id, pred, err := argmaxByEntropy(candidates, set)
		if err != nil {
			return "", "", nil, err
		}
		return id, indicatorString("entropy", pred.Entropy), &pred, nil

	default:
		return "", "", nil, errs.Invalidf("unknown selection mode %q", req.Selection)
	}
}

func argmaxByProba(candidates []string, set *quickmodels.PredictionSet, tag string) (string, quickmodels.Prediction, error) {
	best, bestID := -1.0, ""
	var bestPred quickmodels.Prediction
	for _, id := range candidates {
		pred, ok := set.ByElement[id]
		if !ok {
			continue
		}
		if v := pred.Proba[tag]; v > best {
			best, bestID, bestPred = v, id, pred
		}
	}
	if bestID == "" {
		return "", quickmodels.Prediction{}, errs.Unavailablef("no candidate has a prediction for tag %q", tag)
	}
	return bestID, bestPred, nil
}

func argmaxByEntropy(candidates []string, set *quickmodels.PredictionSet) (string, quickmodels.Prediction, error) {
	best, bestID := -1.0, ""
	var bestPred quickmodels.Prediction
	for _, id := range candidates {
		pred, ok := set.ByElement[id]
		if !ok {
			continue
		}
		if pred.Entropy > best {
			best, bestID, bestPred = pred.Entropy, id, pred
		}
	}
	if bestID == "" {
		return "", quickmodels.Prediction{}, errs.Unavailablef("no candidate has a prediction to rank by entropy")
	}
	return bestID, bestPred, nil
}

// indicatorString renders the UI hint mentioned in spec.md §4.7, e.g.
// "probability: 0.87".
func indicatorString(kind string, value float64) string {
	return fmt.Sprintf("%s: %.2f", kind, value)
}

// selectionSeed derives a per-(project, user) deterministic seed so
// repeated random/test selections for the same user are reproducible
// within a process lifetime, without a shared mutable RNG.
func (p *Project) selectionSeed(user string) int64 {
	h := int64(1469598103934665603) // 64-bit FNV offset basis minus its last digit, to fit int64
	for _, c := range p.meta.Slug + "|" + user {
		h ^= int64(c)
		h *= 1099511628211
	}
	if h < 0 {
		h = -h
	}
	return h
}
