package registry

import (
	"context"
	"embed"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
	"github.com/lwbtt0915/joyrpc/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrator applies the postgres Registry backend's schema, adapted from
// the teacher's database.Migrator (same goose/embed.FS wiring, new schema
// for joyrpc_providers/joyrpc_config instead of the teacher's domain
// tables).
type Migrator struct {
	pool *pgxpool.Pool
}

// NewMigrator wraps pool for schema migration.
func NewMigrator(pool *pgxpool.Pool) *Migrator {
	return &Migrator{pool: pool}
}

// Up applies every pending migration under migrations/.
func (m *Migrator) Up(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(m.pool)
	defer db.Close()

	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return joyerr.Wrap(joyerr.CodeInit, "failed to set goose dialect", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return joyerr.Wrap(joyerr.CodeInit, "failed to run registry migrations", err)
	}
	logger.WithService("registry-postgres").Info("registry schema migrations applied")
	return nil
}
