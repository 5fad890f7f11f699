package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opinari/fieldqc/internal/domain"
	"github.com/opinari/fieldqc/internal/service/dispatch"
)

// DispatchRepo implements dispatch.Repository.
type DispatchRepo struct {
	db *sql.DB
}

func NewDispatchRepo(db *sql.DB) *DispatchRepo {
	return &DispatchRepo{db: db}
}

// Candidates reads the assignment view but verifies lease state against
// qc_responses, so view refresh lag can only hide work, never hand out a
// response that is already held. Never-skipped rows sort ahead of skipped
// ones via NULLS FIRST.
func (r *DispatchRepo) Candidates(ctx context.Context, q dispatch.CandidateQuery) ([]domain.Assignment, error) {
	query := `
		SELECT a.response_id, a.tenant_id, a.survey_id, a.interviewer_id, a.mode, a.selected_ac,
		       a.priority, a.last_skipped_at, a.created_at, a.view_status, a.refreshed_at
		FROM qc_assignments a
		JOIN qc_responses r ON r.id = a.response_id
		WHERE a.tenant_id = $1
		  AND r.status = 'pending_approval'
		  AND (r.lease_expires_at IS NULL OR r.lease_expires_at <= NOW())`
	args := []interface{}{q.TenantID}
	idx := 2

	if q.AgentID != "" && q.SkipCooldown > 0 {
		query += fmt.Sprintf(`
		  AND (r.last_skipped_by IS DISTINCT FROM $%d OR r.last_skipped_at <= NOW() - make_interval(secs => $%d))`, idx, idx+1)
		args = append(args, q.AgentID, q.SkipCooldown.Seconds())
		idx += 2
	}
	if q.Mode != "" {
		query += fmt.Sprintf(" AND a.mode = $%d", idx)
		args = append(args, q.Mode)
		idx++
	}
	if q.SelectedAC != "" {
		query += fmt.Sprintf(" AND a.selected_ac = $%d", idx)
		args = append(args, q.SelectedAC)
		idx++
	}
	if q.ExcludeResponseID != "" {
		query += fmt.Sprintf(" AND a.response_id != $%d", idx)
		args = append(args, q.ExcludeResponseID)
		idx++
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}
	query += fmt.Sprintf(`
		ORDER BY a.priority ASC, a.last_skipped_at ASC NULLS FIRST, a.created_at ASC
		LIMIT $%d`, idx)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assignment candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.Assignment
	for rows.Next() {
		var a domain.Assignment
		var skippedAt sql.NullTime
		if err := rows.Scan(&a.ResponseID, &a.TenantID, &a.SurveyID, &a.InterviewerID, &a.Mode, &a.SelectedAC,
			&a.Priority, &skippedAt, &a.CreatedAt, &a.ViewStatus, &a.RefreshedAt); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		a.LastSkippedAt = nullTime(skippedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Lease grants exclusivity through a conditional update: only a pending
// response without a live lease can be claimed, and the row comes back with
// the winning lease already applied.
func (r *DispatchRepo) Lease(ctx context.Context, responseID, agentID string, expiresAt time.Time) (*domain.Response, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE qc_responses
		SET leased_by = $2, leased_at = NOW(), lease_expires_at = $3, updated_at = NOW()
		WHERE id = $1
		  AND status = 'pending_approval'
		  AND (lease_expires_at IS NULL OR lease_expires_at <= NOW())
		RETURNING `+responseColumns+`
	`, responseID, agentID, expiresAt)

	resp, err := scanResponse(row)
	if err == sql.ErrNoRows {
		return nil, dispatch.ErrLeaseLost
	}
	if err != nil {
		return nil, fmt.Errorf("lease response: %w", err)
	}
	return resp, nil
}

func (r *DispatchRepo) Release(ctx context.Context, responseID, agentID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE qc_responses
		SET leased_by = NULL, leased_at = NULL, lease_expires_at = NULL, updated_at = NOW()
		WHERE id = $1 AND leased_by = $2
	`, responseID, agentID)
	if err != nil {
		return false, fmt.Errorf("release lease: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *DispatchRepo) Skip(ctx context.Context, responseID, agentID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE qc_responses
		SET leased_by = NULL, leased_at = NULL, lease_expires_at = NULL,
		    last_skipped_at = NOW(), last_skipped_by = $2, updated_at = NOW()
		WHERE id = $1 AND leased_by = $2 AND lease_expires_at > NOW()
	`, responseID, agentID)
	if err != nil {
		return false, fmt.Errorf("skip response: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *DispatchRepo) MarkViewAssigned(ctx context.Context, responseID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE qc_assignments
		SET view_status = 'assigned', refreshed_at = NOW()
		WHERE response_id = $1
	`, responseID)
	if err != nil {
		return fmt.Errorf("mark view assigned: %w", err)
	}
	return nil
}

func (r *DispatchRepo) MarkViewAvailable(ctx context.Context, responseID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE qc_assignments
		SET view_status = 'available', refreshed_at = NOW()
		WHERE response_id = $1
	`, responseID)
	if err != nil {
		return fmt.Errorf("mark view available: %w", err)
	}
	return nil
}

func (r *DispatchRepo) TouchViewSkip(ctx context.Context, responseID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE qc_assignments
		SET view_status = 'available', last_skipped_at = $2, refreshed_at = NOW()
		WHERE response_id = $1
	`, responseID, at)
	if err != nil {
		return fmt.Errorf("touch view skip: %w", err)
	}
	return nil
}
