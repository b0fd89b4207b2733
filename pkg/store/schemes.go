package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
)

// SchemesRepo is the Schemes service named in spec.md §4.1.
type SchemesRepo struct{ db *sql.DB }

func (r *SchemesRepo) Add(ctx context.Context, s *models.Scheme) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO schemes (project_slug, name, kind, labels, codebook, created_by)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		s.Project, s.Name, string(s.Kind), pq.Array(s.Labels), s.Codebook, nullString(s.CreatedBy),
	).Scan(&id)
	if err != nil {
		return 0, classify(err, fmt.Sprintf("scheme %q already exists in %s", s.Name, s.Project))
	}
	return id, nil
}

func (r *SchemesRepo) Get(ctx context.Context, project, name string) (*models.Scheme, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_slug, name, kind, labels, codebook, created_by, time_created
		FROM schemes WHERE project_slug = $1 AND name = $2`, project, name)
	var s models.Scheme
	var kind string
	var createdBy sql.NullString
	if err := row.Scan(&s.ID, &s.Project, &s.Name, &kind, pq.Array(&s.Labels), &s.Codebook, &createdBy, &s.TimeCreated); err != nil {
		return nil, classify(err, fmt.Sprintf("scheme %q not found in %s", name, project))
	}
	s.Kind = models.SchemeKind(kind)
	s.CreatedBy = createdBy.String
	return &s, nil
}

func (r *SchemesRepo) List(ctx context.Context, project string) ([]*models.Scheme, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM schemes WHERE project_slug = $1 ORDER BY name`, project)
	if err != nil {
		return nil, errs.Internalf(err, "listing schemes for %s", project)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, errs.Internalf(err, "scanning scheme row")
		}
		names = append(names, n)
	}
	out := make([]*models.Scheme, 0, len(names))
	for _, n := range names {
		s, err := r.Get(ctx, project, n)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Delete removes the scheme row. Whether annotation history is deleted or
// merely orphaned is the caller's decision (spec.md §9 Open Question (b));
// this repo never touches the annotations table.
func (r *SchemesRepo) Delete(ctx context.Context, project, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM schemes WHERE project_slug = $1 AND name = $2`, project, name)
	if err != nil {
		return errs.Internalf(err, "deleting scheme %q", name)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFoundf("scheme %q not found in %s", name, project)
	}
	return nil
}

// SetLabels overwrites the ordered label list for a scheme in place,
// preserving order as required by spec.md §4.3.
func (r *SchemesRepo) SetLabels(ctx context.Context, project, name string, labels []string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE schemes SET labels = $3 WHERE project_slug = $1 AND name = $2`,
		project, name, pq.Array(labels),
	)
	if err != nil {
		return errs.Internalf(err, "updating labels for scheme %q", name)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFoundf("scheme %q not found in %s", name, project)
	}
	return nil
}
