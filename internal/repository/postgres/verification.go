package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/opinari/fieldqc/internal/domain"
	"github.com/opinari/fieldqc/internal/service/sampling"
	"github.com/opinari/fieldqc/internal/service/verification"
)

// VerificationRepo implements verification.Repository.
type VerificationRepo struct {
	db *sql.DB
}

func NewVerificationRepo(db *sql.DB) *VerificationRepo {
	return &VerificationRepo{db: db}
}

func (r *VerificationRepo) GetResponse(ctx context.Context, id string) (*domain.Response, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+responseColumns+`
		FROM qc_responses
		WHERE id = $1
	`, id)

	resp, err := scanResponse(row)
	if err == sql.ErrNoRows {
		return nil, verification.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get response: %w", err)
	}
	return resp, nil
}

func (r *VerificationRepo) BatchStatus(ctx context.Context, batchID string) (domain.BatchStatus, error) {
	var status domain.BatchStatus
	err := r.db.QueryRowContext(ctx, `
		SELECT status FROM qc_batches WHERE id = $1
	`, batchID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", sampling.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get batch status: %w", err)
	}
	return status, nil
}

// ApplyVerdict records the decision only while the caller still holds a live
// lease on a pending response. Zero rows means the precondition was lost to a
// race; the service re-reads to classify which one.
func (r *VerificationRepo) ApplyVerdict(ctx context.Context, p verification.VerdictParams) (*verification.VerdictResult, error) {
	var (
		isSample bool
		batchID  string
	)
	err := r.db.QueryRowContext(ctx, `
		UPDATE qc_responses
		SET status = $3, verified_by = $2, verdict = $4, verified_at = NOW(), feedback = $5,
		    verification_batch_id = batch_id,
		    leased_by = NULL, leased_at = NULL, lease_expires_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'pending_approval'
		  AND leased_by = $2
		  AND lease_expires_at > NOW()
		RETURNING is_sample_response, COALESCE(batch_id::text, '')
	`, p.ResponseID, p.AgentID, p.Verdict.Status(), p.Verdict, p.Feedback).Scan(&isSample, &batchID)
	if err == sql.ErrNoRows {
		return &verification.VerdictResult{Applied: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("apply verdict: %w", err)
	}
	return &verification.VerdictResult{Applied: true, IsSample: isSample, BatchID: batchID}, nil
}

func (r *VerificationRepo) DeleteViewRow(ctx context.Context, responseID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM qc_assignments WHERE response_id = $1
	`, responseID)
	if err != nil {
		return fmt.Errorf("delete view row: %w", err)
	}
	return nil
}
