package project

import (
	"context"
	"path/filepath"

	"github.com/AXLMRIN/activetigger-go/pkg/features"
	"github.com/AXLMRIN/activetigger-go/pkg/languagemodels"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
	"github.com/AXLMRIN/activetigger-go/pkg/queue"
	"github.com/AXLMRIN/activetigger-go/pkg/quickmodels"
	"github.com/AXLMRIN/activetigger-go/pkg/schemes"
	"github.com/AXLMRIN/activetigger-go/pkg/store"
)

// Point is a 2-D projection coordinate, consulted by the frame sub-filter
// in next_element (spec.md §4.7).
type Point struct{ X, Y float64 }

// Project is the aggregate root: it owns Schemes, Features, QuickModels
// and LanguageModels for one project and exposes next_element. Cyclic
// references are broken by construction — every sub-manager only ever
// holds the narrow repo/pool handles it needs, never a pointer back to
// Project (spec.md §9).
type Project struct {
	meta *models.Project

	Raw            *RawStore
	Schemes        *schemes.Manager
	Features       *features.Manager
	QuickModels    *quickmodels.Manager
	LanguageModels *languagemodels.Manager

	projections map[string]map[string]Point // user -> elementID -> 2-D point
}

// Deps bundles the shared service handles a Project needs to assemble its
// sub-managers (spec.md §9 "narrow service handle").
type Deps struct {
	Store        *store.Store
	Pool         *queue.Pool
	DataPath     string
	SBert        features.Embedder
	FastText     features.Embedder
}

// Open loads (or initializes) every sub-manager for meta.Slug, rooted
// under <DataPath>/projects/<slug>/ (spec.md §6 on-disk layout).
func Open(meta *models.Project, deps Deps) (*Project, error) {
	root := filepath.Join(deps.DataPath, "projects", meta.Slug)

	raw, err := OpenRawStore(filepath.Join(root, "data_all.gob"))
	if err != nil {
		return nil, err
	}
	colStore, err := features.OpenColumnarStore(filepath.Join(root, "features.gob"))
	if err != nil {
		return nil, err
	}

	schemesMgr := schemes.New(meta.Slug, deps.Store.Schemes, deps.Store.Annotations)
	featuresMgr := features.New(meta.Slug, deps.Store.Features, colStore, deps.Pool, deps.SBert, deps.FastText)
	quickMgr := quickmodels.New(meta.Slug, deps.Store.Models, featuresMgr, schemesMgr, filepath.Join(root, "quickmodels"))
	langMgr := languagemodels.New(meta.Slug, deps.Store.Models, deps.Pool, featuresMgr, filepath.Join(root, "bert_models"))

	return &Project{
		meta:           meta,
		Raw:            raw,
		Schemes:        schemesMgr,
		Features:       featuresMgr,
		QuickModels:    quickMgr,
		LanguageModels: langMgr,
		projections:    make(map[string]map[string]Point),
	}, nil
}

func (p *Project) Slug() string { return p.meta.Slug }

func (p *Project) Meta() *models.Project { return p.meta }

// SetProjection registers user's 2-D projection coordinates, consumed by
// next_element's optional frame filter (spec.md §4.7).
func (p *Project) SetProjection(user string, points map[string]Point) {
	p.projections[user] = points
}

// Statistics is the coarse per-project summary spec.md §6 names under
// GET /projects/{slug}/statistics.
type Statistics struct {
	NTrain, NValid, NTest int
	NSchemes              int
	NFeatures             int
}

func (p *Project) Statistics(ctx context.Context) (Statistics, error) {
	schemeList, err := p.Schemes.ListSchemes(ctx)
	if err != nil {
		return Statistics{}, err
	}
	featureList, err := p.Features.List(ctx)
	if err != nil {
		return Statistics{}, err
	}
	return Statistics{
		NTrain:    len(p.Raw.ElementIDs(models.PartitionTrain)),
		NValid:    len(p.Raw.ElementIDs(models.PartitionValid)),
		NTest:     len(p.Raw.ElementIDs(models.PartitionTest)),
		NSchemes:  len(schemeList),
		NFeatures: len(featureList),
	}, nil
}
