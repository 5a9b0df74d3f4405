// Package store provides clients for the relational database instances
// sitting behind the coordinator. The storage engine itself and its
// physical replication are external; this package only executes queries,
// reads replication metadata, and issues administrative commands.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dd0wney/cluso-sqlgate/pkg/config"
)

// Instance is a connection-pooled client for a single database instance
type Instance struct {
	id   string
	host string
	pool *pgxpool.Pool
}

// Connect creates a pooled client for one instance and verifies connectivity
func Connect(ctx context.Context, cfg config.InstanceConfig) (*Instance, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN for %s: %w", cfg.ID, err)
	}

	// Connection pooling configuration
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 5 * time.Minute
	poolCfg.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool for %s: %w", cfg.ID, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("instance %s unreachable: %w", cfg.ID, err)
	}

	return &Instance{id: cfg.ID, host: cfg.Host, pool: pool}, nil
}

// NewInstance wraps an existing pool; used by Fleet and by tests
func NewInstance(id, host string, pool *pgxpool.Pool) *Instance {
	return &Instance{id: id, host: host, pool: pool}
}

// ID returns the instance identifier
func (i *Instance) ID() string { return i.id }

// Host returns the instance host descriptor
func (i *Instance) Host() string { return i.host }

// Close releases the connection pool
func (i *Instance) Close() {
	if i.pool != nil {
		i.pool.Close()
	}
}

// Probe measures round-trip latency with a trivial query
func (i *Instance) Probe(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	var one int
	if err := i.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return 0, fmt.Errorf("probe failed on %s: %w", i.id, err)
	}
	return time.Since(start), nil
}

// AppliedTimestamp reads the instance's last applied global timestamp
func (i *Instance) AppliedTimestamp(ctx context.Context) (uint64, error) {
	var ts int64
	err := i.pool.QueryRow(ctx,
		"SELECT last_applied_timestamp FROM _metadata LIMIT 1").Scan(&ts)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read applied timestamp from %s: %w", i.id, err)
	}
	if ts < 0 {
		ts = 0
	}
	return uint64(ts), nil
}

// Query runs a read statement and returns its rows as generic maps
func (i *Instance) Query(ctx context.Context, sql string) ([]map[string]any, error) {
	rows, err := i.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query failed on %s: %w", i.id, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	results := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row on %s: %w", i.id, err)
		}
		row := make(map[string]any, len(fields))
		for idx, fd := range fields {
			row[fd.Name] = values[idx]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed on %s: %w", i.id, err)
	}

	return results, nil
}

// ApplyWrite executes a write statement and records its global timestamp
// in the same transaction, so the applied timestamp never runs ahead of
// or behind the data it describes.
func (i *Instance) ApplyWrite(ctx context.Context, sql string, ts uint64) (int64, error) {
	tx, err := i.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin write on %s: %w", i.id, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, sql)
	if err != nil {
		return 0, fmt.Errorf("write failed on %s: %w", i.id, err)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE _metadata SET last_applied_timestamp = $1 WHERE id = 1", int64(ts)); err != nil {
		return 0, fmt.Errorf("failed to record timestamp on %s: %w", i.id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit write on %s: %w", i.id, err)
	}

	return tag.RowsAffected(), nil
}

// Exec runs a statement without timestamp bookkeeping (administrative SQL)
func (i *Instance) Exec(ctx context.Context, sql string) (int64, error) {
	tag, err := i.pool.Exec(ctx, sql)
	if err != nil {
		return 0, fmt.Errorf("exec failed on %s: %w", i.id, err)
	}
	return tag.RowsAffected(), nil
}
