package worker

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/opinari/fieldqc/internal/pkg/distlock"
)

// =============================================================================
// VIEW REFRESHER — Reconciles The Materialized Dispatch View
// =============================================================================
// Seal, verdict, and remainder transactions maintain qc_assignments inline,
// but their view writes are best-effort outside the critical transitions. The
// refresher is the reconciler: on a short timer it inserts missing rows,
// removes rows whose response is no longer reviewable, and syncs the advisory
// lease/skip columns. Dispatch re-verifies leases against qc_responses, so
// view staleness between passes costs freshness, never correctness.
//
// A response is eligible for the view while it awaits a verdict:
//   - sample rows of a qc_in_progress batch
//   - remainder rows of a queued_for_qc batch

const (
	DefaultViewRefreshInterval = 10 * time.Second

	// viewDeleteChunk bounds each cleanup DELETE so a large finalized batch
	// cannot hold row locks for long.
	viewDeleteChunk = 5000
)

// eligibleResponses is the membership predicate of the dispatch view.
const eligibleResponses = `
	SELECT r.id, r.tenant_id, r.survey_id, r.interviewer_id, r.mode, r.selected_ac,
	       r.priority, r.last_skipped_at, r.created_at
	FROM qc_responses r
	JOIN qc_batches b ON b.id = r.batch_id
	WHERE r.status = 'pending_approval'
	  AND ((r.is_sample_response AND b.status = 'qc_in_progress')
	    OR (NOT r.is_sample_response AND b.status = 'queued_for_qc'))`

// ViewRefresher keeps qc_assignments consistent with the responses table.
type ViewRefresher struct {
	db       *sql.DB
	lock     distlock.DistLock
	interval time.Duration
}

func NewViewRefresher(db *sql.DB, lock distlock.DistLock, interval time.Duration) *ViewRefresher {
	if interval <= 0 {
		interval = DefaultViewRefreshInterval
	}
	return &ViewRefresher{db: db, lock: lock, interval: interval}
}

// Start blocks until ctx is cancelled, refreshing on the configured interval.
func (vr *ViewRefresher) Start(ctx context.Context) {
	log.Printf("[ViewRefresher] Starting (interval=%s)", vr.interval)

	vr.refresh(ctx)

	ticker := time.NewTicker(vr.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[ViewRefresher] Stopping")
			return
		case <-ticker.C:
			vr.refresh(ctx)
		}
	}
}

func (vr *ViewRefresher) refresh(ctx context.Context) {
	_, err := distlock.RunExclusive(ctx, vr.lock, func(ctx context.Context) error {
		inserted := vr.insertMissing(ctx)
		removed := vr.removeIneligible(ctx)
		synced := vr.syncLeaseState(ctx)

		if inserted+removed+synced > 0 {
			log.Printf("[ViewRefresher] Reconciled view: +%d inserted, -%d removed, %d lease states synced",
				inserted, removed, synced)
		}
		return nil
	})
	if err != nil {
		log.Printf("[ViewRefresher] Refresh failed: %v", err)
	}
}

// insertMissing adds eligible responses that have no view row yet.
func (vr *ViewRefresher) insertMissing(ctx context.Context) int64 {
	res, err := vr.db.ExecContext(ctx, `
		INSERT INTO qc_assignments
			(response_id, tenant_id, survey_id, interviewer_id, mode, selected_ac, priority, last_skipped_at, created_at, view_status, refreshed_at)
		SELECT e.*, 'available', NOW()
		FROM (`+eligibleResponses+`) e
		ON CONFLICT (response_id) DO NOTHING
	`)
	if err != nil {
		log.Printf("[ViewRefresher] Failed to insert missing view rows: %v", err)
		return 0
	}
	n, _ := res.RowsAffected()
	return n
}

// removeIneligible deletes view rows whose response was decided, reassigned,
// or whose batch left a dispatchable state. Chunked to bound lock time.
func (vr *ViewRefresher) removeIneligible(ctx context.Context) int64 {
	var total int64
	for {
		if ctx.Err() != nil {
			return total
		}
		res, err := vr.db.ExecContext(ctx, `
			DELETE FROM qc_assignments
			WHERE response_id IN (
				SELECT a.response_id
				FROM qc_assignments a
				WHERE a.response_id NOT IN (SELECT e.id FROM (`+eligibleResponses+`) e)
				LIMIT $1
			)
		`, viewDeleteChunk)
		if err != nil {
			log.Printf("[ViewRefresher] Failed to remove stale view rows: %v", err)
			return total
		}
		n, _ := res.RowsAffected()
		total += n
		if n < viewDeleteChunk {
			return total
		}
	}
}

// syncLeaseState mirrors lease and skip state from qc_responses into the
// advisory view columns so operators querying the view see current holds.
func (vr *ViewRefresher) syncLeaseState(ctx context.Context) int64 {
	res, err := vr.db.ExecContext(ctx, `
		UPDATE qc_assignments a
		SET view_status = want.status, last_skipped_at = want.skipped_at, refreshed_at = NOW()
		FROM (
			SELECT id,
			       CASE WHEN lease_expires_at > NOW() THEN 'assigned' ELSE 'available' END AS status,
			       last_skipped_at AS skipped_at
			FROM qc_responses
		) want
		WHERE want.id = a.response_id
		  AND (a.view_status != want.status OR a.last_skipped_at IS DISTINCT FROM want.skipped_at)
	`)
	if err != nil {
		log.Printf("[ViewRefresher] Failed to sync lease state: %v", err)
		return 0
	}
	n, _ := res.RowsAffected()
	return n
}
