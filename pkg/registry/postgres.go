package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
	"github.com/lwbtt0915/joyrpc/pkg/joyurl"
	"github.com/lwbtt0915/joyrpc/pkg/logger"
)

// PostgresBackend is a durable, multi-process Registry backend: providers
// and config overlays are rows in joyrpc_providers/joyrpc_config, and
// subscribers are served by a poll loop (no LISTEN/NOTIFY dependency on a
// dedicated non-pooled connection) re-reading the table on a short tick
// and delivering through the same version-gate discipline as the other
// backends.
//
// Grounded on the teacher's PostgresSimulationRepository: parameterized
// SQL via pgx, QueryRow+Scan for single rows, Query+rows.Next for sets,
// wrapped errors via joyerr instead of the teacher's bare fmt.Errorf.
type PostgresBackend struct {
	db       pgDB
	pollEvery time.Duration
}

// NewPostgresBackend dials cfg and runs pending migrations before
// returning, matching the teacher's connect-then-migrate startup order.
func NewPostgresBackend(ctx context.Context, cfg PostgresPoolConfig) (*PostgresBackend, error) {
	pool, err := newPgxPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	migrator := NewMigrator(pool.pool)
	if err := migrator.Up(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresBackend{db: pool, pollEvery: 2 * time.Second}, nil
}

// newPostgresBackendWithDB is the test seam: construct directly over a
// pgDB (e.g. a pgxmock pool), bypassing dialing and migration.
func newPostgresBackendWithDB(db pgDB) *PostgresBackend {
	return &PostgresBackend{db: db, pollEvery: 20 * time.Millisecond}
}

func (b *PostgresBackend) clusterSnapshot(ctx context.Context, key Key) (Snapshot, error) {
	rows, err := b.db.Query(ctx,
		`SELECT url, version FROM joyrpc_providers WHERE interface = $1 AND alias = $2`,
		key.Interface, key.Alias)
	if err != nil {
		return Snapshot{}, joyerr.Wrap(joyerr.CodeTransport, "postgres registry query failed", err)
	}
	defer rows.Close()

	var maxVersion uint64
	var providers []*joyurl.URL
	for rows.Next() {
		var raw string
		var version int64
		if err := rows.Scan(&raw, &version); err != nil {
			return Snapshot{}, joyerr.Wrap(joyerr.CodeTransport, "postgres registry scan failed", err)
		}
		u, err := parseURL(raw)
		if err != nil {
			logger.WithService("registry-postgres").Warn("dropping malformed provider row", "raw", raw, "error", err)
			continue
		}
		providers = append(providers, u)
		if uint64(version) > maxVersion {
			maxVersion = uint64(version)
		}
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, joyerr.Wrap(joyerr.CodeTransport, "postgres registry rows error", err)
	}
	return Snapshot{Version: maxVersion, Providers: providers}, nil
}

// SubscribeCluster replays the current snapshot, then polls at
// pollEvery, delivering only strictly newer versions.
func (b *PostgresBackend) SubscribeCluster(ctx context.Context, key Key, fn ClusterListener) (Handle, error) {
	snap, err := b.clusterSnapshot(ctx, key)
	if err != nil {
		return nil, err
	}
	gate := &versionGate{}
	gate.apply(snap.Version)
	fn(snap)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(b.pollEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				latest, err := b.clusterSnapshot(ctx, key)
				if err != nil {
					logger.WithService("registry-postgres").Warn("poll failed", "error", err)
					continue
				}
				if gate.apply(latest.Version) {
					fn(latest)
				}
			}
		}
	}()

	return handleFunc(func() { close(done) }), nil
}

func (b *PostgresBackend) configSnapshot(ctx context.Context, key Key) (ConfigSnapshot, error) {
	var raw []byte
	var version int64
	err := b.db.QueryRow(ctx,
		`SELECT params, version FROM joyrpc_config WHERE interface = $1 AND alias = $2`,
		key.Interface, key.Alias).Scan(&raw, &version)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ConfigSnapshot{Version: 0, Params: map[string]string{}}, nil
		}
		return ConfigSnapshot{}, joyerr.Wrap(joyerr.CodeTransport, "postgres registry config query failed", err)
	}
	params := map[string]string{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return ConfigSnapshot{}, joyerr.Wrap(joyerr.CodeSerialization, "postgres registry config decode failed", err)
		}
	}
	return ConfigSnapshot{Version: uint64(version), Params: params}, nil
}

// SubscribeConfigure mirrors SubscribeCluster for the config overlay.
func (b *PostgresBackend) SubscribeConfigure(ctx context.Context, key Key, fn ConfigListener) (Handle, error) {
	snap, err := b.configSnapshot(ctx, key)
	if err != nil {
		return nil, err
	}
	gate := &versionGate{}
	gate.apply(snap.Version)
	fn(snap)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(b.pollEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				latest, err := b.configSnapshot(ctx, key)
				if err != nil {
					continue
				}
				if gate.apply(latest.Version) {
					fn(latest)
				}
			}
		}
	}()

	return handleFunc(func() { close(done) }), nil
}

// Register upserts node's row, bumping its version to
// max(existing)+1, computed in the same statement
// to avoid a read-then-write race under concurrent registrants.
func (b *PostgresBackend) Register(ctx context.Context, key Key, node *joyurl.URL) error {
	_, err := b.db.Exec(ctx, `
		INSERT INTO joyrpc_providers (interface, alias, url_key, url, version, updated_at)
		VALUES ($1, $2, $3, $4,
			COALESCE((SELECT MAX(version) + 1 FROM joyrpc_providers WHERE interface = $1 AND alias = $2), 1),
			now())
		ON CONFLICT (interface, alias, url_key) DO UPDATE SET
			url = EXCLUDED.url,
			version = COALESCE((SELECT MAX(version) + 1 FROM joyrpc_providers WHERE interface = $1 AND alias = $2), 1),
			updated_at = now()
	`, key.Interface, key.Alias, node.Key(), node.String())
	if err != nil {
		return joyerr.Wrap(joyerr.CodeTransport, "postgres registry register failed", err)
	}
	return nil
}

// Deregister removes node's row; absent rows are a no-op (idempotent).
func (b *PostgresBackend) Deregister(ctx context.Context, key Key, node *joyurl.URL) error {
	_, err := b.db.Exec(ctx,
		`DELETE FROM joyrpc_providers WHERE interface = $1 AND alias = $2 AND url_key = $3`,
		key.Interface, key.Alias, node.Key())
	if err != nil {
		return joyerr.Wrap(joyerr.CodeTransport, "postgres registry deregister failed", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (b *PostgresBackend) Close() { b.db.Close() }
