package store

import (
	"context"
	"database/sql"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
)

// GenerationsRepo records prompt/answer pairs produced by the (external)
// generative-API collaborator, grounded on db.py's Generations table.
type GenerationsRepo struct{ db *sql.DB }

func (r *GenerationsRepo) Add(ctx context.Context, g *models.Generation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO generations (user_name, project_slug, element_id, endpoint, prompt, answer)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		g.User, g.Project, g.ElementID, g.Endpoint, g.Prompt, g.Answer)
	if err != nil {
		return errs.Internalf(err, "recording generation for %s", g.Project)
	}
	return nil
}

func (r *GenerationsRepo) ListForUser(ctx context.Context, project, user string, limit int) ([]*models.Generation, error) {
	query := `
		SELECT id, time, user_name, project_slug, element_id, endpoint, prompt, answer
		FROM generations WHERE project_slug = $1 AND user_name = $2 ORDER BY time DESC`
	args := []any{project, user}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Internalf(err, "listing generations for %s", user)
	}
	defer rows.Close()

	var out []*models.Generation
	for rows.Next() {
		var g models.Generation
		if err := rows.Scan(&g.ID, &g.Time, &g.User, &g.Project, &g.ElementID, &g.Endpoint, &g.Prompt, &g.Answer); err != nil {
			return nil, errs.Internalf(err, "scanning generation row")
		}
		out = append(out, &g)
	}
	return out, nil
}
