// Package schemes implements the Schemes & Annotations component
// (spec.md §4.3): per-project coding schemes and the append-only
// annotation history that backs them.
package schemes

import (
	"context"
	"sort"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/lock"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
	"github.com/AXLMRIN/activetigger-go/pkg/store"
)

// lockStripes bounds contention on the per-(element,scheme,user) append
// lock without growing an unbounded map — see pkg/lock.
const lockStripes = 256

// Manager owns every Scheme and Annotation operation for one project. It
// is constructed per-project by pkg/project and never reaches back into
// its parent (spec.md §9 "Cyclic references... broken by passing a narrow
// service handle").
type Manager struct {
	project     string
	schemesRepo *store.SchemesRepo
	annRepo     *store.AnnotationsRepo
	writeLocks  *lock.Striped
}

// New builds a Manager scoped to one project.
func New(project string, schemesRepo *store.SchemesRepo, annRepo *store.AnnotationsRepo) *Manager {
	return &Manager{
		project:     project,
		schemesRepo: schemesRepo,
		annRepo:     annRepo,
		writeLocks:  lock.New(lockStripes),
	}
}

// AddScheme rejects duplicate names (spec.md §4.3).
func (m *Manager) AddScheme(ctx context.Context, name string, kind models.SchemeKind, labels []string, createdBy string) (*models.Scheme, error) {
	s := &models.Scheme{
		Project:   m.project,
		Name:      name,
		Kind:      kind,
		Labels:    append([]string(nil), labels...),
		CreatedBy: createdBy,
	}
	id, err := m.schemesRepo.Add(ctx, s)
	if err != nil {
		return nil, err
	}
	s.ID = id
	return s, nil
}

// DeleteScheme removes the scheme row. Per spec.md §9 Open Question (b)
// the source does not settle whether history should be deleted or merely
// orphaned; we follow the conservative reading in spec.md §4.3 ("annotation
// history is retained but becomes orphaned") and never touch annotations
// here.
func (m *Manager) DeleteScheme(ctx context.Context, name string) error {
	return m.schemesRepo.Delete(ctx, m.project, name)
}

func (m *Manager) GetScheme(ctx context.Context, name string) (*models.Scheme, error) {
	return m.schemesRepo.Get(ctx, m.project, name)
}

func (m *Manager) ListSchemes(ctx context.Context) ([]*models.Scheme, error) {
	return m.schemesRepo.List(ctx, m.project)
}

// AddLabel appends label to the end of scheme's ordered label list.
func (m *Manager) AddLabel(ctx context.Context, scheme, label string) error {
	s, err := m.schemesRepo.Get(ctx, m.project, scheme)
	if err != nil {
		return err
	}
	for _, existing := range s.Labels {
		if existing == label {
			return errs.AlreadyExistsf("label %q already in scheme %q", label, scheme)
		}
	}
	return m.schemesRepo.SetLabels(ctx, m.project, scheme, append(s.Labels, label))
}

// DeleteLabel removes label from the scheme's label list and writes a
// clearing annotation (null label) for every current holder, attributed to
// actingUser (spec.md §4.3).
func (m *Manager) DeleteLabel(ctx context.Context, scheme, label, actingUser string) error {
	s, err := m.schemesRepo.Get(ctx, m.project, scheme)
	if err != nil {
		return err
	}

	remaining := make([]string, 0, len(s.Labels))
	found := false
	for _, existing := range s.Labels {
		if existing == label {
			found = true
			continue
		}
		remaining = append(remaining, existing)
	}
	if !found {
		return errs.NotFoundf("label %q not in scheme %q", label, scheme)
	}

	holders, err := m.holdersOfLabel(ctx, scheme, label)
	if err != nil {
		return err
	}

	if err := m.schemesRepo.SetLabels(ctx, m.project, scheme, remaining); err != nil {
		return err
	}

	for _, h := range holders {
		if _, err := m.pushAnnotationLocked(ctx, h.elementID, scheme, nil, actingUser, h.dataset, "label deleted"); err != nil {
			return err
		}
	}
	return nil
}

type holder struct {
	elementID string
	dataset   models.Partition
}

// holdersOfLabel finds every element whose most recent annotation, by any
// user, is label, across every dataset partition, so DeleteLabel can clear
// it regardless of where the element lives.
func (m *Manager) holdersOfLabel(ctx context.Context, scheme, label string) ([]holder, error) {
	all := []models.Partition{models.PartitionTrain, models.PartitionValid, models.PartitionTest, models.PartitionExternal}
	latest, err := m.annRepo.LatestPerElement(ctx, m.project, scheme, "", all)
	if err != nil {
		return nil, err
	}
	var out []holder
	for elementID, a := range latest {
		if a.Annotation != nil && *a.Annotation == label {
			out = append(out, holder{elementID: elementID, dataset: a.Dataset})
		}
	}
	return out, nil
}

// PushAnnotation validates label against the scheme and appends one
// record, serialized per (project, element, scheme, user) by a striped
// lock (spec.md §4.3, §9).
func (m *Manager) PushAnnotation(ctx context.Context, elementID, scheme string, label *string, user string, dataset models.Partition, comment string) (*models.Annotation, error) {
	if label != nil {
		s, err := m.schemesRepo.Get(ctx, m.project, scheme)
		if err != nil {
			return nil, err
		}
		if !contains(s.Labels, *label) {
			return nil, errs.Invalidf("label %q is not in scheme %q", *label, scheme)
		}
	}
	return m.pushAnnotationLocked(ctx, elementID, scheme, label, user, dataset, comment)
}

func (m *Manager) pushAnnotationLocked(ctx context.Context, elementID, scheme string, label *string, user string, dataset models.Partition, comment string) (*models.Annotation, error) {
	key := m.project + "|" + elementID + "|" + scheme + "|" + user
	var result *models.Annotation
	var err error
	m.writeLocks.WithLock(key, func() {
		result, err = m.annRepo.Append(ctx, &models.Annotation{
			Dataset:    dataset,
			User:       user,
			Project:    m.project,
			ElementID:  elementID,
			Scheme:     scheme,
			Annotation: label,
			Comment:    comment,
		})
	})
	return result, err
}

// GetSchemeData returns the latest annotation per element across the
// requested dataset partitions. user == "" means "latest regardless of
// author" (the table view used for selection and export); a non-empty
// user restricts to that annotator's own history.
func (m *Manager) GetSchemeData(ctx context.Context, scheme string, datasets []models.Partition, user string) (map[string]*models.Annotation, error) {
	return m.annRepo.LatestPerElement(ctx, m.project, scheme, user, datasets)
}

// History returns up to limit records for one element, newest first.
func (m *Manager) History(ctx context.Context, scheme, elementID string, limit int) ([]*models.Annotation, error) {
	return m.annRepo.History(ctx, m.project, scheme, elementID, limit)
}

func (m *Manager) DistinctUsers(ctx context.Context, scheme string) ([]string, error) {
	return m.annRepo.DistinctUsers(ctx, m.project, scheme)
}

func (m *Manager) RecentIDs(ctx context.Context, scheme, user string, limit int) ([]string, error) {
	return m.annRepo.RecentIDs(ctx, m.project, scheme, user, limit)
}

// ConvertLabel appends a new annotation to newLabel for every element
// whose current label is oldLabel. Applying it twice in a row is
// idempotent: the second pass finds nothing still at oldLabel (spec.md §8).
func (m *Manager) ConvertLabel(ctx context.Context, scheme, oldLabel, newLabel, user string) error {
	holders, err := m.holdersOfLabel(ctx, scheme, oldLabel)
	if err != nil {
		return err
	}
	for _, h := range holders {
		label := newLabel
		if _, err := m.pushAnnotationLocked(ctx, h.elementID, scheme, &label, user, h.dataset, "converted from "+oldLabel); err != nil {
			return err
		}
	}
	return nil
}

// ReconciliationEntry is one disagreement: an element with >=2 distinct
// non-null current labels across users.
type ReconciliationEntry struct {
	ElementID string
	Labels    map[string]string // user -> label
}

// Reconciliation yields every element labeled by >=2 users with >=2
// distinct non-null labels (spec.md §4.3).
func (m *Manager) Reconciliation(ctx context.Context, scheme string) ([]ReconciliationEntry, error) {
	table, err := m.annRepo.ReconciliationTable(ctx, m.project, scheme)
	if err != nil {
		return nil, err
	}

	var out []ReconciliationEntry
	for elementID, byUser := range table {
		distinct := make(map[string]bool)
		nonNull := make(map[string]string)
		for user, label := range byUser {
			if label != nil {
				distinct[*label] = true
				nonNull[user] = *label
			}
		}
		if len(nonNull) >= 2 && len(distinct) >= 2 {
			out = append(out, ReconciliationEntry{ElementID: elementID, Labels: nonNull})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ElementID < out[j].ElementID })
	return out, nil
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}
