package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
)

// ModelFamily distinguishes quick models from language models within the
// shared `models` table — both share the same (name unique per project)
// invariant and status lifecycle, so one table and one repo serve both
// QuickModels and LanguageModels (spec.md §4.1 "for models: add(...),
// set_status, rename(old,new) ..., list_trained(project, kind)").
type ModelFamily string

const (
	FamilyQuick    ModelFamily = "quick"
	FamilyLanguage ModelFamily = "language"
)

// ModelRow is the persisted shape shared by quick and language models.
type ModelRow struct {
	ID           int64
	Project      string
	Family       ModelFamily
	Name         string
	Scheme       string
	User         string
	Kind         string
	Parameters   map[string]any
	Path         string
	Status       string
	Statistics   map[string]any
	ErrorMessage string
}

// ModelsRepo is the Models service named in spec.md §4.1.
type ModelsRepo struct{ db *sql.DB }

func (r *ModelsRepo) Add(ctx context.Context, m *ModelRow) (int64, error) {
	params, err := json.Marshal(m.Parameters)
	if err != nil {
		return 0, errs.Internalf(err, "marshaling model parameters")
	}
	var id int64
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO models (project_slug, family, name, scheme, user_name, kind, parameters, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		m.Project, string(m.Family), m.Name, m.Scheme, nullString(m.User), m.Kind, params, m.Status,
	).Scan(&id)
	if err != nil {
		return 0, classify(err, fmt.Sprintf("model %q already exists in %s", m.Name, m.Project))
	}
	return id, nil
}

func (r *ModelsRepo) Get(ctx context.Context, project, name string) (*ModelRow, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_slug, family, name, scheme, user_name, kind, parameters, path, status, statistics, error_message
		FROM models WHERE project_slug = $1 AND name = $2`, project, name)
	return scanModel(row)
}

func (r *ModelsRepo) List(ctx context.Context, project string, family ModelFamily) ([]*ModelRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_slug, family, name, scheme, user_name, kind, parameters, path, status, statistics, error_message
		FROM models WHERE project_slug = $1 AND family = $2 ORDER BY name`, project, string(family))
	if err != nil {
		return nil, errs.Internalf(err, "listing %s models for %s", family, project)
	}
	defer rows.Close()
	var out []*ModelRow
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ListTrained returns every model of the given family+kind whose status
// marks it predict-eligible ("trained" for language models; quick models
// are predict-eligible as soon as they exist, since training is
// synchronous from the caller's perspective — see pkg/quickmodels).
func (r *ModelsRepo) ListTrained(ctx context.Context, project string, family ModelFamily, status string) ([]*ModelRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_slug, family, name, scheme, user_name, kind, parameters, path, status, statistics, error_message
		FROM models WHERE project_slug = $1 AND family = $2 AND status = $3 ORDER BY name`,
		project, string(family), status)
	if err != nil {
		return nil, errs.Internalf(err, "listing trained %s models for %s", family, project)
	}
	defer rows.Close()
	var out []*ModelRow
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *ModelsRepo) SetStatus(ctx context.Context, project, name, status, errMsg string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE models SET status = $3, error_message = $4, time_modified = now()
		WHERE project_slug = $1 AND name = $2`, project, name, status, nullString(errMsg))
	if err != nil {
		return errs.Internalf(err, "setting status for model %q", name)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFoundf("model %q not found in %s", name, project)
	}
	return nil
}

func (r *ModelsRepo) SetArtifact(ctx context.Context, project, name, path string, statistics map[string]any) error {
	stats, err := json.Marshal(statistics)
	if err != nil {
		return errs.Internalf(err, "marshaling model statistics")
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE models SET path = $3, statistics = $4, time_modified = now()
		WHERE project_slug = $1 AND name = $2`, project, name, path, stats)
	if err != nil {
		return errs.Internalf(err, "setting artifact for model %q", name)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFoundf("model %q not found in %s", name, project)
	}
	return nil
}

// Rename renames a model, rejecting collisions with an existing name.
func (r *ModelsRepo) Rename(ctx context.Context, project, oldName, newName string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE models SET name = $3, time_modified = now() WHERE project_slug = $1 AND name = $2`,
		project, oldName, newName)
	if err != nil {
		return classify(err, fmt.Sprintf("model %q already exists in %s", newName, project))
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFoundf("model %q not found in %s", oldName, project)
	}
	return nil
}

func (r *ModelsRepo) Delete(ctx context.Context, project, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM models WHERE project_slug = $1 AND name = $2`, project, name)
	if err != nil {
		return errs.Internalf(err, "deleting model %q", name)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFoundf("model %q not found in %s", name, project)
	}
	return nil
}

func scanModel(row scanner) (*ModelRow, error) {
	var m ModelRow
	var family, kind, status string
	var user, errMsg sql.NullString
	var params, stats []byte
	if err := row.Scan(&m.ID, &m.Project, &family, &m.Name, &m.Scheme, &user, &kind, &params, &m.Path, &status, &stats, &errMsg); err != nil {
		return nil, classify(err, "model not found")
	}
	m.Family = ModelFamily(family)
	m.Kind = kind
	m.Status = status
	m.User = user.String
	m.ErrorMessage = errMsg.String
	if len(params) > 0 {
		if err := json.Unmarshal(params, &m.Parameters); err != nil {
			return nil, errs.Internalf(err, "unmarshaling model parameters")
		}
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &m.Statistics); err != nil {
			return nil, errs.Internalf(err, "unmarshaling model statistics")
		}
	}
	return &m, nil
}
