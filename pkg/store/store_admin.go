package store

import (
	"context"
	"fmt"
)

// Promote reconfigures a replica instance as the writable master.
// The replica detaches from its replication source and starts accepting writes.
func (i *Instance) Promote(ctx context.Context) error {
	var promoted bool
	err := i.pool.QueryRow(ctx, "SELECT pg_promote(wait => true)").Scan(&promoted)
	if err != nil {
		return fmt.Errorf("failed to promote %s: %w", i.id, err)
	}
	if !promoted {
		return fmt.Errorf("promotion of %s did not complete", i.id)
	}
	return nil
}

// IsWritable reports whether the instance currently accepts writes
func (i *Instance) IsWritable(ctx context.Context) (bool, error) {
	var inRecovery bool
	if err := i.pool.QueryRow(ctx, "SELECT pg_is_in_recovery()").Scan(&inRecovery); err != nil {
		return false, fmt.Errorf("failed to check recovery state on %s: %w", i.id, err)
	}
	return !inRecovery, nil
}

// Demote points the instance at a new replication source. The instance
// must be restarted into standby mode by the process controller for the
// new source to take effect; this only rewrites its replication settings.
func (i *Instance) Demote(ctx context.Context, primaryHost string) error {
	conninfo := fmt.Sprintf("host=%s port=5432", primaryHost)
	if _, err := i.pool.Exec(ctx,
		fmt.Sprintf("ALTER SYSTEM SET primary_conninfo = '%s'", conninfo)); err != nil {
		return fmt.Errorf("failed to set replication source on %s: %w", i.id, err)
	}
	if _, err := i.pool.Exec(ctx, "SELECT pg_reload_conf()"); err != nil {
		return fmt.Errorf("failed to reload configuration on %s: %w", i.id, err)
	}
	return nil
}
