package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
	"github.com/lwbtt0915/joyrpc/pkg/logger"
)

// pgDB is the minimal pgx surface the postgres Registry backend needs,
// adapted from the teacher's database.DB interface so PostgresBackend can
// be exercised against pgxmock in tests exactly the way the teacher's
// repository tests do.
type pgDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
	Ping(ctx context.Context) error
}

// PostgresPoolConfig holds the fields config.PostgresRegistryConfig maps
// onto, needed to build a connection string and pool.
type PostgresPoolConfig struct {
	Host            string
	Port            int
	Database        string
	Username        string
	Password        string
	SSLMode         string
	MaxOpenConns    int32
	MaxIdleConns    int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// pgxPoolDB wraps *pgxpool.Pool to satisfy pgDB, identical in shape to the
// teacher's PostgresDB wrapper.
type pgxPoolDB struct {
	pool *pgxpool.Pool
}

func (db *pgxPoolDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return db.pool.Exec(ctx, sql, args...)
}
func (db *pgxPoolDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return db.pool.Query(ctx, sql, args...)
}
func (db *pgxPoolDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return db.pool.QueryRow(ctx, sql, args...)
}
func (db *pgxPoolDB) Close()                        { db.pool.Close() }
func (db *pgxPoolDB) Ping(ctx context.Context) error { return db.pool.Ping(ctx) }

// newPgxPool dials PostgreSQL and pings it before returning, matching the
// teacher's NewPostgresDB fail-fast-on-construction pattern.
func newPgxPool(ctx context.Context, cfg PostgresPoolConfig) (*pgxPoolDB, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, joyerr.Wrap(joyerr.CodeConfig, "failed to parse postgres connection string", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	}
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime
	poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, joyerr.Wrap(joyerr.CodeInit, "failed to create postgres pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, joyerr.Wrap(joyerr.CodeInit, "failed to ping postgres", err)
	}

	logger.WithService("registry-postgres").Info("connected to postgres",
		"host", cfg.Host, "port", cfg.Port, "database", cfg.Database)
	return &pgxPoolDB{pool: pool}, nil
}
