// Package store is the Persistence component (spec.md §4.1): a thin
// wrapper over database/sql (pgx stdlib driver) exposing one repository
// per domain entity. It is grounded on pkg/database/client.go in the
// teacher repo, adapted from ent to hand-written SQL because ent's
// generated client cannot be produced without running `go generate`
// (see DESIGN.md).
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

//go:embed migrations
var migrationsFS embed.FS

// Store holds the connection pool and every per-entity repository.
type Store struct {
	db *sql.DB

	Projects    *ProjectsRepo
	Users       *UsersRepo
	Auth        *AuthRepo
	Schemes     *SchemesRepo
	Annotations *AnnotationsRepo
	Features    *FeaturesRepo
	Models      *ModelsRepo
	Logs        *LogsRepo
	Tokens      *TokensRepo
	Generations *GenerationsRepo
	Tasks       *TasksRepo
}

// Open connects to the Postgres database at dsn, runs embedded migrations,
// and wires every repository against the resulting pool.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return wrap(db), nil
}

func wrap(db *sql.DB) *Store {
	return &Store{
		db:          db,
		Projects:    &ProjectsRepo{db: db},
		Users:       &UsersRepo{db: db},
		Auth:        &AuthRepo{db: db},
		Schemes:     &SchemesRepo{db: db},
		Annotations: &AnnotationsRepo{db: db},
		Features:    &FeaturesRepo{db: db},
		Models:      &ModelsRepo{db: db},
		Logs:        &LogsRepo{db: db},
		Tokens:      &TokensRepo{db: db},
		Generations: &GenerationsRepo{db: db},
		Tasks:       &TasksRepo{db: db},
	}
}

// DB exposes the underlying pool for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

func runMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("creating postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "activetigger", driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("applying migrations: %w", err)
	}

	// Do not call m.Close(): it would close db, which the caller still owns.
	return sourceDriver.Close()
}
