package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/opinari/fieldqc/internal/domain"
	"github.com/opinari/fieldqc/internal/service/sampling"
)

// SamplingRepo implements sampling.Repository.
type SamplingRepo struct {
	db *sql.DB
}

func NewSamplingRepo(db *sql.DB) *SamplingRepo {
	return &SamplingRepo{db: db}
}

func (r *SamplingRepo) GetBatch(ctx context.Context, batchID string) (*domain.Batch, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+batchColumns+`
		FROM qc_batches
		WHERE id = $1
	`, batchID)

	b, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return nil, sampling.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return b, nil
}

func (r *SamplingRepo) ResponseIDs(ctx context.Context, batchID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id
		FROM qc_responses
		WHERE batch_id = $1
		ORDER BY batch_position ASC
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch responses: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan response id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Seal performs the collecting -> qc_in_progress transition. The conditional
// batch update is the single-winner gate; everything after it runs only in
// the transaction that won. The response_count guard refuses a seal whose
// membership read went stale: an append that committed after the caller
// listed the batch bumps the count, the guarded update matches nothing, and
// the caller re-reads. Appends that arrive later block on the locked batch
// row and find the batch sealed.
func (r *SamplingRepo) Seal(ctx context.Context, batchID string, sampleIDs, remainderIDs []string, snap domain.ConfigSnapshot) error {
	rules, err := json.Marshal(snap.ApprovalRules)
	if err != nil {
		return fmt.Errorf("marshal config snapshot: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seal: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE qc_batches
		SET status = 'qc_in_progress',
		    sample_count = $2,
		    remaining_count = $3,
		    approved_count = 0,
		    rejected_count = 0,
		    pending_count = $2,
		    approval_rate = 0,
		    config_sample_percentage = $4,
		    config_approval_rules = $5,
		    processing_started_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'collecting' AND response_count = $6
	`, batchID, len(sampleIDs), len(remainderIDs), snap.SamplePercentage, rules, len(sampleIDs)+len(remainderIDs))
	if err != nil {
		return fmt.Errorf("transition batch to qc_in_progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var status string
		err := tx.QueryRowContext(ctx, `
			SELECT status FROM qc_batches WHERE id = $1
		`, batchID).Scan(&status)
		if err == sql.ErrNoRows {
			return sampling.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("classify refused seal: %w", err)
		}
		if status == string(domain.BatchCollecting) {
			return sampling.ErrMembershipChanged
		}
		return sampling.ErrAlreadySealed
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE qc_responses
		SET status = 'pending_approval', is_sample_response = TRUE, updated_at = NOW()
		WHERE batch_id = $1 AND id = ANY($2::uuid[])
	`, batchID, pq.Array(sampleIDs))
	if err != nil {
		return fmt.Errorf("mark sample responses: %w", err)
	}

	if len(remainderIDs) > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE qc_responses
			SET status = 'pending_approval', is_sample_response = FALSE, updated_at = NOW()
			WHERE batch_id = $1 AND id = ANY($2::uuid[])
		`, batchID, pq.Array(remainderIDs))
		if err != nil {
			return fmt.Errorf("mark remainder responses: %w", err)
		}
	}

	// Publish the sample to the dispatch view inside the same transaction so
	// a sealed batch is reviewable immediately, not on the next view refresh.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO qc_assignments
			(response_id, tenant_id, survey_id, interviewer_id, mode, selected_ac, priority, last_skipped_at, created_at, view_status, refreshed_at)
		SELECT id, tenant_id, survey_id, interviewer_id, mode, selected_ac, priority, last_skipped_at, created_at, 'available', NOW()
		FROM qc_responses
		WHERE batch_id = $1 AND id = ANY($2::uuid[])
		ON CONFLICT (response_id) DO UPDATE
		SET view_status = 'available', refreshed_at = NOW()
	`, batchID, pq.Array(sampleIDs))
	if err != nil {
		return fmt.Errorf("publish sample to dispatch view: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seal: %w", err)
	}
	return nil
}

func (r *SamplingRepo) CountSampleVerdicts(ctx context.Context, batchID string) (approved, rejected, pending int, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'approved'),
			COUNT(*) FILTER (WHERE status = 'rejected'),
			COUNT(*) FILTER (WHERE status = 'pending_approval')
		FROM qc_responses
		WHERE batch_id = $1 AND is_sample_response = TRUE
	`, batchID).Scan(&approved, &rejected, &pending)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("count sample verdicts: %w", err)
	}
	return approved, rejected, pending, nil
}

func (r *SamplingRepo) UpdateStats(ctx context.Context, batchID string, stats domain.QCStats) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE qc_batches
		SET approved_count = $2, rejected_count = $3, pending_count = $4, approval_rate = $5, updated_at = NOW()
		WHERE id = $1 AND status = 'qc_in_progress'
	`, batchID, stats.ApprovedCount, stats.RejectedCount, stats.PendingCount, stats.ApprovalRate)
	if err != nil {
		return fmt.Errorf("update batch stats: %w", err)
	}
	return nil
}

// ApplyRemainderDecision is the terminal batch transition. The conditional
// status update picks the single winner; remainder mutations and view
// maintenance commit atomically with it.
func (r *SamplingRepo) ApplyRemainderDecision(ctx context.Context, p sampling.RemainderParams) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin remainder decision: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE qc_batches
		SET status = $2,
		    remainder_decision = $3,
		    remainder_decided_at = NOW(),
		    trigger_approval_rate = $4,
		    approved_count = $5,
		    rejected_count = $6,
		    pending_count = 0,
		    approval_rate = $4,
		    finalized_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'qc_in_progress'
	`, p.BatchID, p.BatchStatus, p.Decision, p.Stats.ApprovalRate, p.Stats.ApprovedCount, p.Stats.RejectedCount)
	if err != nil {
		return 0, fmt.Errorf("transition batch to %s: %w", p.BatchStatus, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, sampling.ErrAlreadyDecided
	}

	var mutated int64
	switch p.Decision {
	case domain.DecisionAutoApproved:
		res, err = tx.ExecContext(ctx, `
			UPDATE qc_responses
			SET status = 'approved', auto_approved = TRUE, verification_batch_id = batch_id,
			    verified_at = NOW(), feedback = $2,
			    leased_by = NULL, leased_at = NULL, lease_expires_at = NULL,
			    updated_at = NOW()
			WHERE batch_id = $1 AND is_sample_response = FALSE AND status = 'pending_approval'
		`, p.BatchID, p.Feedback)
		if err != nil {
			return 0, fmt.Errorf("auto-approve remainder: %w", err)
		}
		mutated, _ = res.RowsAffected()
		if err := r.sweepBatchView(ctx, tx, p.BatchID); err != nil {
			return 0, err
		}

	case domain.DecisionRejectedAll:
		res, err = tx.ExecContext(ctx, `
			UPDATE qc_responses
			SET status = 'rejected', auto_rejected = TRUE, verification_batch_id = batch_id,
			    verified_at = NOW(), feedback = $2,
			    leased_by = NULL, leased_at = NULL, lease_expires_at = NULL,
			    updated_at = NOW()
			WHERE batch_id = $1 AND is_sample_response = FALSE AND status = 'pending_approval'
		`, p.BatchID, p.Feedback)
		if err != nil {
			return 0, fmt.Errorf("reject remainder: %w", err)
		}
		mutated, _ = res.RowsAffected()
		if err := r.sweepBatchView(ctx, tx, p.BatchID); err != nil {
			return 0, err
		}

	case domain.DecisionQueuedForQC:
		// Remainder rows stay pending_approval and become dispatchable.
		// Decided sample rows whose best-effort view delete was missed get
		// swept here so the batch's view state is consistent on commit.
		_, err = tx.ExecContext(ctx, `
			DELETE FROM qc_assignments
			WHERE response_id IN (
				SELECT id FROM qc_responses
				WHERE batch_id = $1 AND status IN ('approved', 'rejected')
			)
		`, p.BatchID)
		if err != nil {
			return 0, fmt.Errorf("sweep decided sample from view: %w", err)
		}

		res, err = tx.ExecContext(ctx, `
			INSERT INTO qc_assignments
				(response_id, tenant_id, survey_id, interviewer_id, mode, selected_ac, priority, last_skipped_at, created_at, view_status, refreshed_at)
			SELECT id, tenant_id, survey_id, interviewer_id, mode, selected_ac, priority, last_skipped_at, created_at, 'available', NOW()
			FROM qc_responses
			WHERE batch_id = $1 AND is_sample_response = FALSE AND status = 'pending_approval'
			ON CONFLICT (response_id) DO UPDATE
			SET view_status = 'available', refreshed_at = NOW()
		`, p.BatchID)
		if err != nil {
			return 0, fmt.Errorf("publish remainder to dispatch view: %w", err)
		}
		mutated, _ = res.RowsAffected()

	default:
		return 0, fmt.Errorf("unknown remainder decision %q", p.Decision)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit remainder decision: %w", err)
	}
	return int(mutated), nil
}

func (r *SamplingRepo) FinalizeCompleted(ctx context.Context, batchID string, stats domain.QCStats) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finalize: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE qc_batches
		SET status = 'completed',
		    approved_count = $2,
		    rejected_count = $3,
		    pending_count = 0,
		    approval_rate = $4,
		    finalized_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'qc_in_progress'
	`, batchID, stats.ApprovedCount, stats.RejectedCount, stats.ApprovalRate)
	if err != nil {
		return fmt.Errorf("complete batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sampling.ErrAlreadyDecided
	}

	if err := r.sweepBatchView(ctx, tx, batchID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finalize: %w", err)
	}
	return nil
}

// sweepBatchView removes every view row belonging to the batch. Used on
// transitions after which none of the batch's responses are dispatchable.
func (r *SamplingRepo) sweepBatchView(ctx context.Context, tx *sql.Tx, batchID string) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM qc_assignments
		WHERE response_id IN (SELECT id FROM qc_responses WHERE batch_id = $1)
	`, batchID)
	if err != nil {
		return fmt.Errorf("sweep batch from dispatch view: %w", err)
	}
	return nil
}

func (r *SamplingRepo) InProgressIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id
		FROM qc_batches
		WHERE status = 'qc_in_progress'
		ORDER BY processing_started_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list in-progress batches: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (r *SamplingRepo) CollectingIDsBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id
		FROM qc_batches
		WHERE status = 'collecting' AND batch_date < $1::date
		ORDER BY batch_date ASC, created_at ASC
		LIMIT $2
	`, cutoff.Format("2006-01-02"), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale collecting batches: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func collectIDs(rows *sql.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan batch id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
