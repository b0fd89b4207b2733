package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
)

// FeaturesRepo is the Features service named in spec.md §4.1. It tracks
// feature metadata only; the actual column data lives in the project's
// columnar store (pkg/features).
type FeaturesRepo struct{ db *sql.DB }

func (r *FeaturesRepo) Add(ctx context.Context, f *models.Feature) (int64, error) {
	params, err := json.Marshal(f.Params)
	if err != nil {
		return 0, errs.Internalf(err, "marshaling feature params")
	}
	var id int64
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO features (project_slug, name, kind, user_name, params, columns)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		f.Project, f.Name, string(f.Kind), nullString(f.User), params, pq.Array(f.Columns),
	).Scan(&id)
	if err != nil {
		return 0, classify(err, fmt.Sprintf("feature %q already exists in %s", f.Name, f.Project))
	}
	return id, nil
}

func (r *FeaturesRepo) Get(ctx context.Context, project, name string) (*models.Feature, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_slug, name, kind, user_name, params, columns, time_created
		FROM features WHERE project_slug = $1 AND name = $2`, project, name)
	return scanFeature(row)
}

func (r *FeaturesRepo) List(ctx context.Context, project string) ([]*models.Feature, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_slug, name, kind, user_name, params, columns, time_created
		FROM features WHERE project_slug = $1 ORDER BY name`, project)
	if err != nil {
		return nil, errs.Internalf(err, "listing features for %s", project)
	}
	defer rows.Close()

	var out []*models.Feature
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (r *FeaturesRepo) Delete(ctx context.Context, project, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM features WHERE project_slug = $1 AND name = $2`, project, name)
	if err != nil {
		return errs.Internalf(err, "deleting feature %q", name)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFoundf("feature %q not found in %s", name, project)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFeature(row scanner) (*models.Feature, error) {
	var f models.Feature
	var kind string
	var user sql.NullString
	var params []byte
	if err := row.Scan(&f.ID, &f.Project, &f.Name, &kind, &user, &params, pq.Array(&f.Columns), &f.TimeCreated); err != nil {
		return nil, classify(err, "feature not found")
	}
	f.Kind = models.FeatureKind(kind)
	f.User = user.String
	if len(params) > 0 {
		if err := json.Unmarshal(params, &f.Params); err != nil {
			return nil, errs.Internalf(err, "unmarshaling feature params")
		}
	}
	return &f, nil
}
