package store

import (
	"context"
	"database/sql"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
)

// TokensRepo is the Tokens service, grounded on db.py's add_token,
// get_token_status, revoke_token (lines 91-98, 288-311) — JWT issuance
// itself stays outside this core (spec.md §1 Non-goals), but the
// bookkeeping of which tokens are live/revoked belongs to Persistence.
type TokensRepo struct{ db *sql.DB }

func (r *TokensRepo) Add(ctx context.Context, token, status string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO tokens (token, status) VALUES ($1, $2)`, token, status)
	if err != nil {
		return classify(err, "token already registered")
	}
	return nil
}

func (r *TokensRepo) Status(ctx context.Context, token string) (string, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM tokens WHERE token = $1`, token).Scan(&status)
	if err != nil {
		return "", classify(err, "token not found")
	}
	return status, nil
}

func (r *TokensRepo) Revoke(ctx context.Context, token string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tokens SET status = 'revoked', time_revoked = now() WHERE token = $1`, token)
	if err != nil {
		return errs.Internalf(err, "revoking token")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFoundf("token not found")
	}
	return nil
}
