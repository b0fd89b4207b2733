package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
)

// AnnotationsRepo is the Annotations service named in spec.md §4.1. Every
// write is a pure append; "current" is always derived by ordering on time.
type AnnotationsRepo struct{ db *sql.DB }

// Append inserts one history record. Per-key write ordering is the
// caller's responsibility (pkg/schemes holds the striped lock).
func (r *AnnotationsRepo) Append(ctx context.Context, a *models.Annotation) (*models.Annotation, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO annotations (dataset, user_name, project_slug, element_id, scheme, annotation, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, time`,
		string(a.Dataset), a.User, a.Project, a.ElementID, a.Scheme, a.Annotation, a.Comment,
	)
	out := *a
	if err := row.Scan(&out.ID, &out.Time); err != nil {
		return nil, errs.Internalf(err, "appending annotation for %s/%s", a.Project, a.ElementID)
	}
	return &out, nil
}

// LatestPerElement returns, for every element_id with at least one
// annotation in one of datasets, the single most recent row. If user is
// non-empty it restricts to that user's history; otherwise it picks the
// globally most recent row per element regardless of author.
func (r *AnnotationsRepo) LatestPerElement(ctx context.Context, project, scheme, user string, datasets []models.Partition) (map[string]*models.Annotation, error) {
	ds := make([]string, len(datasets))
	for i, d := range datasets {
		ds[i] = string(d)
	}

	query := `
		SELECT DISTINCT ON (element_id) id, time, dataset, user_name, project_slug, element_id, scheme, annotation, comment
		FROM annotations
		WHERE project_slug = $1 AND scheme = $2 AND dataset = ANY($3)`
	args := []any{project, scheme, pq.Array(ds)}
	if user != "" {
		query += " AND user_name = $4"
		args = append(args, user)
	}
	query += " ORDER BY element_id, time DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Internalf(err, "loading latest annotations for %s/%s", project, scheme)
	}
	defer rows.Close()

	out := make(map[string]*models.Annotation)
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, err
		}
		out[a.ElementID] = a
	}
	return out, nil
}

// History returns up to limit records for (project, scheme, elementID),
// newest first. limit <= 0 means unlimited.
func (r *AnnotationsRepo) History(ctx context.Context, project, scheme, elementID string, limit int) ([]*models.Annotation, error) {
	query := `
		SELECT id, time, dataset, user_name, project_slug, element_id, scheme, annotation, comment
		FROM annotations
		WHERE project_slug = $1 AND scheme = $2 AND element_id = $3
		ORDER BY time DESC`
	args := []any{project, scheme, elementID}
	if limit > 0 {
		query += " LIMIT $4"
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Internalf(err, "loading history for %s/%s/%s", project, scheme, elementID)
	}
	defer rows.Close()

	var out []*models.Annotation
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// DistinctUsers returns every user who has annotated under scheme.
func (r *AnnotationsRepo) DistinctUsers(ctx context.Context, project, scheme string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT user_name FROM annotations WHERE project_slug = $1 AND scheme = $2 ORDER BY user_name`,
		project, scheme)
	if err != nil {
		return nil, errs.Internalf(err, "loading distinct users for %s/%s", project, scheme)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, errs.Internalf(err, "scanning user row")
		}
		out = append(out, u)
	}
	return out, nil
}

// RecentIDs returns the most recently touched element ids, newest first.
// If user is empty it spans every user.
func (r *AnnotationsRepo) RecentIDs(ctx context.Context, project, scheme, user string, limit int) ([]string, error) {
	query := `SELECT element_id FROM annotations WHERE project_slug = $1 AND scheme = $2`
	args := []any{project, scheme}
	if user != "" {
		query += " AND user_name = $3"
		args = append(args, user)
	}
	query += " ORDER BY time DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Internalf(err, "loading recent ids for %s/%s", project, scheme)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Internalf(err, "scanning element id")
		}
		out = append(out, id)
	}
	return out, nil
}

// ReconciliationTable returns, per element, the latest label each user
// assigned under scheme. Filtering to genuine disagreements (>=2 users,
// >=2 distinct non-null labels) is done by pkg/schemes so this stays a
// pure read.
func (r *AnnotationsRepo) ReconciliationTable(ctx context.Context, project, scheme string) (map[string]map[string]*string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT ON (element_id, user_name) element_id, user_name, annotation
		FROM annotations
		WHERE project_slug = $1 AND scheme = $2
		ORDER BY element_id, user_name, time DESC`, project, scheme)
	if err != nil {
		return nil, errs.Internalf(err, "loading reconciliation table for %s/%s", project, scheme)
	}
	defer rows.Close()

	out := make(map[string]map[string]*string)
	for rows.Next() {
		var elementID, user string
		var annotation sql.NullString
		if err := rows.Scan(&elementID, &user, &annotation); err != nil {
			return nil, errs.Internalf(err, "scanning reconciliation row")
		}
		if out[elementID] == nil {
			out[elementID] = make(map[string]*string)
		}
		if annotation.Valid {
			v := annotation.String
			out[elementID][user] = &v
		} else {
			out[elementID][user] = nil
		}
	}
	return out, nil
}

func scanAnnotation(rows *sql.Rows) (*models.Annotation, error) {
	var a models.Annotation
	var dataset string
	var annotation sql.NullString
	if err := rows.Scan(&a.ID, &a.Time, &dataset, &a.User, &a.Project, &a.ElementID, &a.Scheme, &annotation, &a.Comment); err != nil {
		return nil, errs.Internalf(err, "scanning annotation row")
	}
	a.Dataset = models.Partition(dataset)
	if annotation.Valid {
		v := annotation.String
		a.Annotation = &v
	}
	return &a, nil
}
