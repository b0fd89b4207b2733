package store

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
)

// TasksRepo persists the Queue's bookkeeping rows (spec.md §3 Task, §4.2)
// so that status endpoints survive the HTTP request that submitted them.
type TasksRepo struct{ db *sql.DB }

func (r *TasksRepo) Add(ctx context.Context, t *models.Task) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (unique_id, kind, project_slug, user_name, queue, status, submitted_at, progress)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.UniqueID, t.Kind, t.Project, t.User, string(t.Queue), string(t.Status), t.SubmittedAt, t.Progress)
	if err != nil {
		return classify(err, "task already registered")
	}
	return nil
}

func (r *TasksRepo) Get(ctx context.Context, uniqueID string) (*models.Task, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT unique_id, kind, project_slug, user_name, queue, status, submitted_at, started_at, ended_at, progress, error_message
		FROM tasks WHERE unique_id = $1`, uniqueID)
	return scanTask(row)
}

func (r *TasksRepo) ListByProject(ctx context.Context, project string) ([]*models.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT unique_id, kind, project_slug, user_name, queue, status, submitted_at, started_at, ended_at, progress, error_message
		FROM tasks WHERE project_slug = $1 ORDER BY submitted_at`, project)
	if err != nil {
		return nil, errs.Internalf(err, "listing tasks for %s", project)
	}
	defer rows.Close()
	var out []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ListActiveByUser returns every in-flight task for user whose kind is in kinds
// (empty kinds matches every kind), used by Orchestrator.StopUserProcesses.
func (r *TasksRepo) ListActiveByUser(ctx context.Context, user string, kinds []string) ([]*models.Task, error) {
	query := `
		SELECT unique_id, kind, project_slug, user_name, queue, status, submitted_at, started_at, ended_at, progress, error_message
		FROM tasks WHERE user_name = $1 AND status IN ('pending', 'running')`
	args := []any{user}
	if len(kinds) > 0 {
		query += " AND kind = ANY($2)"
		args = append(args, pq.Array(kinds))
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Internalf(err, "listing active tasks for %s", user)
	}
	defer rows.Close()
	var out []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *TasksRepo) SetStatus(ctx context.Context, uniqueID string, status models.TaskStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE tasks SET status = $2 WHERE unique_id = $1`, uniqueID, string(status))
	if err != nil {
		return errs.Internalf(err, "setting status for task %s", uniqueID)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFoundf("task %s not found", uniqueID)
	}
	return nil
}

func (r *TasksRepo) SetProgress(ctx context.Context, uniqueID, progress string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE tasks SET progress = $2 WHERE unique_id = $1`, uniqueID, progress)
	if err != nil {
		return errs.Internalf(err, "setting progress for task %s", uniqueID)
	}
	return nil
}

func (r *TasksRepo) MarkStarted(ctx context.Context, uniqueID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET status = 'running', started_at = now() WHERE unique_id = $1`, uniqueID)
	if err != nil {
		return errs.Internalf(err, "marking task %s started", uniqueID)
	}
	return nil
}

func (r *TasksRepo) MarkEnded(ctx context.Context, uniqueID string, status models.TaskStatus, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET status = $2, ended_at = now(), error_message = $3 WHERE unique_id = $1`,
		uniqueID, string(status), nullString(errMsg))
	if err != nil {
		return errs.Internalf(err, "marking task %s ended", uniqueID)
	}
	return nil
}

func scanTask(row scanner) (*models.Task, error) {
	var t models.Task
	var queue, status string
	var startedAt, endedAt sql.NullTime
	var errMsg sql.NullString
	if err := row.Scan(&t.UniqueID, &t.Kind, &t.Project, &t.User, &queue, &status, &t.SubmittedAt, &startedAt, &endedAt, &t.Progress, &errMsg); err != nil {
		return nil, classify(err, "task not found")
	}
	t.Queue = models.TaskQueueKind(queue)
	t.Status = models.TaskStatus(status)
	t.Error = errMsg.String
	if startedAt.Valid {
		v := startedAt.Time
		t.StartedAt = &v
	}
	if endedAt.Valid {
		v := endedAt.Time
		t.EndedAt = &v
	}
	return &t, nil
}
