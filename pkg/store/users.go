package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
)

// UsersRepo is the Users service named in spec.md §4.1.
type UsersRepo struct{ db *sql.DB }

func (r *UsersRepo) Add(ctx context.Context, u *models.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (user_name, password_hash, created_by) VALUES ($1, $2, $3)`,
		u.Name, u.PasswordHash, nullString(u.CreatedBy),
	)
	if err != nil {
		return classify(err, fmt.Sprintf("user %q already exists", u.Name))
	}
	return nil
}

func (r *UsersRepo) Get(ctx context.Context, name string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_name, password_hash, created_by, time_created, deactivated_at
		FROM users WHERE user_name = $1`, name)

	var u models.User
	var createdBy sql.NullString
	var deactivated sql.NullTime
	if err := row.Scan(&u.Name, &u.PasswordHash, &createdBy, &u.TimeCreated, &deactivated); err != nil {
		return nil, classify(err, fmt.Sprintf("user %q not found", name))
	}
	u.CreatedBy = createdBy.String
	if deactivated.Valid {
		t := deactivated.Time
		u.DeactivatedAt = &t
	}
	return &u, nil
}

func (r *UsersRepo) List(ctx context.Context) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_name FROM users ORDER BY user_name`)
	if err != nil {
		return nil, errs.Internalf(err, "listing users")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, errs.Internalf(err, "scanning user row")
		}
		names = append(names, n)
	}
	out := make([]*models.User, 0, len(names))
	for _, n := range names {
		u, err := r.Get(ctx, n)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *UsersRepo) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE user_name = $1`, name)
	if err != nil {
		return errs.Internalf(err, "deleting user %q", name)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFoundf("user %q not found", name)
	}
	return nil
}

func (r *UsersRepo) Deactivate(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET deactivated_at = now() WHERE user_name = $1`, name)
	if err != nil {
		return errs.Internalf(err, "deactivating user %q", name)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFoundf("user %q not found", name)
	}
	return nil
}
