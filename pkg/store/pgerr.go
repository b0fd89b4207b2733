package store

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
)

// uniqueViolationCode is the Postgres SQLSTATE for a unique-constraint
// violation, mirroring ent.IsConstraintError's role in session_service.go.
const uniqueViolationCode = "23505"

// classify turns a raw database/sql error into the core's error kinds. Any
// error not recognized here is wrapped as Internal.
func classify(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errs.NotFoundf("%s", msg)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return errs.AlreadyExistsf("%s", msg)
	}
	return errs.Internalf(err, "%s", msg)
}
