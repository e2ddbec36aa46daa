// Package migrations embeds the PostgreSQL schema and applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/pressly/goose/v3"
	"github.com/samber/oops"
)

//go:embed sql/*.sql
var files embed.FS

const dir = "sql"

// Seams for tests.
var (
	gooseUp = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.UpContext(ctx, db, dir, opts...)
	}
	gooseDown = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.DownContext(ctx, db, dir, opts...)
	}
	gooseVersion = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) (int64, error) {
		return goose.GetDBVersionContext(ctx, db)
	}
)

func setup() error {
	goose.SetBaseFS(files)
	return goose.SetDialect("pgx")
}

// Open opens a database/sql handle through the pgx driver for goose.
func Open(url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "open migration connection").Wrap(err)
	}
	return db, nil
}

// Up applies every pending migration.
func Up(ctx context.Context, db *sql.DB) error {
	if err := setup(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "configure goose").Wrap(err)
	}
	if err := gooseUp(ctx, db, dir); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "migrate up").Wrap(err)
	}
	return nil
}

// Down rolls back the most recent migration.
func Down(ctx context.Context, db *sql.DB) error {
	if err := setup(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "configure goose").Wrap(err)
	}
	if err := gooseDown(ctx, db, dir); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "migrate down").Wrap(err)
	}
	return nil
}

// Version returns the currently applied schema version.
func Version(ctx context.Context, db *sql.DB) (int64, error) {
	if err := setup(); err != nil {
		return 0, oops.Code("MIGRATION_FAILED").With("operation", "configure goose").Wrap(err)
	}
	v, err := gooseVersion(ctx, db, dir)
	if err != nil {
		return 0, oops.Code("MIGRATION_FAILED").With("operation", "read schema version").Wrap(err)
	}
	return v, nil
}
