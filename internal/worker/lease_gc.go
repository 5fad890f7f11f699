package worker

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/lib/pq"

	"github.com/opinari/fieldqc/internal/pkg/distlock"
)

// =============================================================================
// LEASE GC — Reclaims Expired Review Leases
// =============================================================================
// A reviewer who walks away mid-review leaves a lease that blocks the response
// until it expires. Expiry alone makes the response claimable again (dispatch
// checks lease_expires_at), but the stale lease columns and the 'assigned'
// view rows would linger. The GC clears both so the pool reflects reality.

const (
	DefaultLeaseGCInterval = 60 * time.Second
	leaseGCBatchSize       = 500
)

// LeaseGC sweeps expired leases off pending responses.
type LeaseGC struct {
	db       *sql.DB
	lock     distlock.DistLock
	interval time.Duration
}

func NewLeaseGC(db *sql.DB, lock distlock.DistLock, interval time.Duration) *LeaseGC {
	if interval <= 0 {
		interval = DefaultLeaseGCInterval
	}
	return &LeaseGC{db: db, lock: lock, interval: interval}
}

// Start blocks until ctx is cancelled, sweeping on the configured interval.
func (gc *LeaseGC) Start(ctx context.Context) {
	log.Printf("[LeaseGC] Starting (interval=%s)", gc.interval)

	gc.sweep(ctx)

	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[LeaseGC] Stopping")
			return
		case <-ticker.C:
			gc.sweep(ctx)
		}
	}
}

func (gc *LeaseGC) sweep(ctx context.Context) {
	_, err := distlock.RunExclusive(ctx, gc.lock, func(ctx context.Context) error {
		var total int
		for {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			n, err := gc.reclaimBatch(ctx)
			if err != nil {
				log.Printf("[LeaseGC] Reclaim failed: %v", err)
				return nil
			}
			total += n
			if n < leaseGCBatchSize {
				break
			}
		}
		if total > 0 {
			log.Printf("[LeaseGC] Reclaimed %d expired leases", total)
		}
		return nil
	})
	if err != nil {
		log.Printf("[LeaseGC] Sweep failed: %v", err)
	}
}

// reclaimBatch clears one batch of expired leases and flips their view rows
// back to available, in a single transaction. SKIP LOCKED keeps the sweep
// from stalling behind a row a verdict is updating at the same moment.
func (gc *LeaseGC) reclaimBatch(ctx context.Context) (int, error) {
	tx, err := gc.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM qc_responses
		WHERE status = 'pending_approval'
		  AND lease_expires_at IS NOT NULL
		  AND lease_expires_at <= NOW()
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, leaseGCBatchSize)
	if err != nil {
		return 0, err
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE qc_responses
		SET leased_by = NULL, leased_at = NULL, lease_expires_at = NULL, updated_at = NOW()
		WHERE id = ANY($1::uuid[])
	`, pq.Array(ids)); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE qc_assignments
		SET view_status = 'available', refreshed_at = NOW()
		WHERE response_id = ANY($1::uuid[])
	`, pq.Array(ids)); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(ids), nil
}
