package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
)

// AuthRepo is the Auth service named in spec.md §4.1: per-(user, project)
// role grants checked by auth(user, project_slug) in the HTTP layer.
type AuthRepo struct{ db *sql.DB }

func (r *AuthRepo) Grant(ctx context.Context, a *models.ProjectAuth) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO project_auths (user_name, project_slug, status, created_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_name, project_slug) DO UPDATE SET status = EXCLUDED.status`,
		a.User, a.Project, string(a.Status), nullString(a.CreatedBy),
	)
	if err != nil {
		return classify(err, fmt.Sprintf("granting %s access to %s on %s", a.Status, a.User, a.Project))
	}
	return nil
}

func (r *AuthRepo) Revoke(ctx context.Context, user, project string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM project_auths WHERE user_name = $1 AND project_slug = $2`, user, project)
	if err != nil {
		return errs.Internalf(err, "revoking %s access on %s", user, project)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFoundf("no grant for %s on %s", user, project)
	}
	return nil
}

// Get returns the role of user on project, or NotFound if ungranted.
func (r *AuthRepo) Get(ctx context.Context, user, project string) (models.AuthStatus, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `
		SELECT status FROM project_auths WHERE user_name = $1 AND project_slug = $2`, user, project).Scan(&status)
	if err != nil {
		return "", classify(err, fmt.Sprintf("no grant for %s on %s", user, project))
	}
	return models.AuthStatus(status), nil
}

// ListForProject returns every (user, status) grant on project.
func (r *AuthRepo) ListForProject(ctx context.Context, project string) ([]*models.ProjectAuth, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_name, project_slug, status, created_by FROM project_auths WHERE project_slug = $1`, project)
	if err != nil {
		return nil, errs.Internalf(err, "listing auths for %s", project)
	}
	defer rows.Close()

	var out []*models.ProjectAuth
	for rows.Next() {
		var a models.ProjectAuth
		var status string
		var createdBy sql.NullString
		if err := rows.Scan(&a.User, &a.Project, &status, &createdBy); err != nil {
			return nil, errs.Internalf(err, "scanning auth row")
		}
		a.Status = models.AuthStatus(status)
		a.CreatedBy = createdBy.String
		out = append(out, &a)
	}
	return out, nil
}
