package store

import (
	"context"
	"database/sql"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
)

// LogsRepo is the append-only audit Logs service named in spec.md §4.1 and
// §4.8 (`log_action`).
type LogsRepo struct{ db *sql.DB }

func (r *LogsRepo) Add(ctx context.Context, user, project, action string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO logs (user_name, project_slug, action) VALUES ($1, $2, $3)`,
		user, nullString(project), action)
	if err != nil {
		return errs.Internalf(err, "logging action %q for %s", action, user)
	}
	return nil
}

// RecentByUser returns the user's most recent log rows, newest first,
// bounded by limit (<=0 means unlimited). Used by the 300s active-user
// detection window in spec.md §5.
func (r *LogsRepo) RecentByUser(ctx context.Context, user string, limit int) ([]*models.LogEntry, error) {
	query := `SELECT id, time, user_name, project_slug, action FROM logs WHERE user_name = $1 ORDER BY time DESC`
	args := []any{user}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Internalf(err, "loading logs for %s", user)
	}
	defer rows.Close()

	var out []*models.LogEntry
	for rows.Next() {
		var l models.LogEntry
		var project sql.NullString
		if err := rows.Scan(&l.ID, &l.Time, &l.User, &project, &l.Action); err != nil {
			return nil, errs.Internalf(err, "scanning log row")
		}
		l.Project = project.String
		out = append(out, &l)
	}
	return out, nil
}
