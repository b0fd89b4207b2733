package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
)

// ProjectsRepo is the Projects service named in spec.md §4.1.
type ProjectsRepo struct{ db *sql.DB }

// Add inserts a new project row. Fails with AlreadyExists if the slug is
// already taken.
func (r *ProjectsRepo) Add(ctx context.Context, p *models.Project) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects (project_slug, name, created_by, col_text, cols_context, col_label, n_train, n_valid, n_test)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.Slug, p.Name, p.CreatedBy, p.ColText, pq.Array(p.ColsContext), nullString(p.ColLabel), p.NTrain, p.NValid, p.NTest,
	)
	if err != nil {
		return classify(err, fmt.Sprintf("project %q already exists", p.Slug))
	}
	return nil
}

// Get loads a project by slug.
func (r *ProjectsRepo) Get(ctx context.Context, slug string) (*models.Project, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT project_slug, name, created_by, time_created, time_modified, col_text, cols_context, col_label, n_train, n_valid, n_test
		FROM projects WHERE project_slug = $1`, slug)

	var p models.Project
	var colLabel sql.NullString
	var timeModified sql.NullTime
	if err := row.Scan(&p.Slug, &p.Name, &p.CreatedBy, &p.TimeCreated, &timeModified, &p.ColText, pq.Array(&p.ColsContext), &colLabel, &p.NTrain, &p.NValid, &p.NTest); err != nil {
		return nil, classify(err, fmt.Sprintf("project %q not found", slug))
	}
	if colLabel.Valid {
		p.ColLabel = colLabel.String
	}
	if timeModified.Valid {
		t := timeModified.Time
		p.TimeModified = &t
	}
	return &p, nil
}

// List returns every project, ordered by slug.
func (r *ProjectsRepo) List(ctx context.Context) ([]*models.Project, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT project_slug FROM projects ORDER BY project_slug`)
	if err != nil {
		return nil, errs.Internalf(err, "listing projects")
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, errs.Internalf(err, "scanning project row")
		}
		slugs = append(slugs, slug)
	}

	out := make([]*models.Project, 0, len(slugs))
	for _, slug := range slugs {
		p, err := r.Get(ctx, slug)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Delete removes a project row; ON DELETE CASCADE sweeps every dependent
// row (project_auths, schemes, annotations, features, models, generations).
func (r *ProjectsRepo) Delete(ctx context.Context, slug string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE project_slug = $1`, slug)
	if err != nil {
		return errs.Internalf(err, "deleting project %q", slug)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFoundf("project %q not found", slug)
	}
	return nil
}

// Touch updates time_modified to now.
func (r *ProjectsRepo) Touch(ctx context.Context, slug string) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `UPDATE projects SET time_modified = $2 WHERE project_slug = $1`, slug, now)
	if err != nil {
		return errs.Internalf(err, "touching project %q", slug)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
