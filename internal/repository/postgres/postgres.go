// Package postgres implements the service repositories against PostgreSQL.
//
// Lock ordering is batch row first, then response rows, in every
// multi-statement transaction (append, seal, remainder decision), so the
// concurrent writers cannot deadlock. Single-winner transitions are plain
// conditional updates checked via RowsAffected.
package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opinari/fieldqc/internal/domain"
)

// responseColumns is the full qc_responses column list in scanResponse order.
const responseColumns = `
	id, tenant_id, survey_id, interviewer_id, mode, status, priority, selected_ac, metadata,
	is_sample_response, batch_id, batch_position,
	leased_by, leased_at, lease_expires_at, last_skipped_at, last_skipped_by,
	verified_by, verdict, verified_at, feedback, auto_approved, auto_rejected, verification_batch_id,
	submitted_at, created_at, updated_at`

// batchColumns is the full qc_batches column list in scanBatch order.
const batchColumns = `
	id, tenant_id, survey_id, interviewer_id, batch_date, status,
	response_count, sample_count, remaining_count,
	approved_count, rejected_count, pending_count, approval_rate,
	remainder_decision, remainder_decided_at, trigger_approval_rate,
	config_sample_percentage, config_approval_rules,
	processing_started_at, finalized_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanResponse(row rowScanner) (*domain.Response, error) {
	var (
		r            domain.Response
		metadata     []byte
		batchID      sql.NullString
		batchPos     sql.NullInt64
		leasedBy     sql.NullString
		leasedAt     sql.NullTime
		leaseExpires sql.NullTime
		skippedAt    sql.NullTime
		skippedBy    sql.NullString
		verifiedBy   sql.NullString
		verdict      sql.NullString
		verifiedAt   sql.NullTime
		feedback     string
		autoApproved bool
		autoRejected bool
		verifBatch   sql.NullString
	)

	err := row.Scan(
		&r.ID, &r.TenantID, &r.SurveyID, &r.InterviewerID, &r.Mode, &r.Status, &r.Priority, &r.SelectedAC, &metadata,
		&r.IsSample, &batchID, &batchPos,
		&leasedBy, &leasedAt, &leaseExpires, &skippedAt, &skippedBy,
		&verifiedBy, &verdict, &verifiedAt, &feedback, &autoApproved, &autoRejected, &verifBatch,
		&r.SubmittedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Metadata = json.RawMessage(metadata)
	r.BatchID = nullStr(batchID)
	r.BatchPosition = nullInt(batchPos)
	r.LeasedBy = nullStr(leasedBy)
	r.LeasedAt = nullTime(leasedAt)
	r.LeaseExpiresAt = nullTime(leaseExpires)
	r.LastSkippedAt = nullTime(skippedAt)
	r.LastSkippedBy = nullStr(skippedBy)

	if verifiedBy.Valid || autoApproved || autoRejected {
		r.Verification = &domain.Verification{
			ReviewerID:   verifiedBy.String,
			Verdict:      verdict.String,
			DecidedAt:    verifiedAt.Time,
			Feedback:     feedback,
			AutoApproved: autoApproved,
			AutoRejected: autoRejected,
			BatchID:      verifBatch.String,
		}
	}
	return &r, nil
}

func scanBatch(row rowScanner) (*domain.Batch, error) {
	var (
		b           domain.Batch
		decidedAt   sql.NullTime
		triggerRate sql.NullFloat64
		cfgPct      sql.NullInt64
		cfgRules    []byte
		startedAt   sql.NullTime
		finalizedAt sql.NullTime
	)

	err := row.Scan(
		&b.ID, &b.TenantID, &b.SurveyID, &b.InterviewerID, &b.BatchDate, &b.Status,
		&b.ResponseCount, &b.SampleCount, &b.RemainingCount,
		&b.Stats.ApprovedCount, &b.Stats.RejectedCount, &b.Stats.PendingCount, &b.Stats.ApprovalRate,
		&b.Remainder.Decision, &decidedAt, &triggerRate,
		&cfgPct, &cfgRules,
		&startedAt, &finalizedAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.Remainder.DecidedAt = nullTime(decidedAt)
	if triggerRate.Valid {
		rate := triggerRate.Float64
		b.Remainder.TriggerApprovalRate = &rate
	}
	if cfgPct.Valid {
		b.Config.SamplePercentage = int(cfgPct.Int64)
	}
	if len(cfgRules) > 0 {
		if err := json.Unmarshal(cfgRules, &b.Config.ApprovalRules); err != nil {
			return nil, fmt.Errorf("parse batch config rules: %w", err)
		}
	}
	b.ProcessingStartedAt = nullTime(startedAt)
	b.FinalizedAt = nullTime(finalizedAt)
	return &b, nil
}

func nullStr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
