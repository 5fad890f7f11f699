package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/opinari/fieldqc/internal/domain"
	"github.com/opinari/fieldqc/internal/service/verification"
)

// ResponseStore serves tenant-scoped response reads for the admin API.
type ResponseStore struct {
	db *sql.DB
}

func NewResponseStore(db *sql.DB) *ResponseStore {
	return &ResponseStore{db: db}
}

func (s *ResponseStore) Get(ctx context.Context, tenantID, id string) (*domain.Response, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+responseColumns+`
		FROM qc_responses
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)

	resp, err := scanResponse(row)
	if err == sql.ErrNoRows {
		return nil, verification.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get response: %w", err)
	}
	return resp, nil
}

func (s *ResponseStore) List(ctx context.Context, tenantID string, f domain.ResponseFilter, limit, offset int) ([]domain.Response, int, error) {
	where := " WHERE tenant_id = $1"
	args := []interface{}{tenantID}
	idx := 2

	add := func(clause string, value interface{}) {
		where += fmt.Sprintf(clause, idx)
		args = append(args, value)
		idx++
	}
	if f.SurveyID != "" {
		add(" AND survey_id = $%d", f.SurveyID)
	}
	if f.InterviewerID != "" {
		add(" AND interviewer_id = $%d", f.InterviewerID)
	}
	if f.Status != "" {
		add(" AND status = $%d", f.Status)
	}
	if f.Mode != "" {
		add(" AND mode = $%d", f.Mode)
	}
	if f.BatchID != "" {
		add(" AND batch_id = $%d", f.BatchID)
	}
	if f.SubmittedFrom != nil {
		add(" AND submitted_at >= $%d", *f.SubmittedFrom)
	}
	if f.SubmittedTo != nil {
		add(" AND submitted_at < $%d", *f.SubmittedTo)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM qc_responses"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count responses: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT `+responseColumns+`
		FROM qc_responses
		%s
		ORDER BY submitted_at DESC
		LIMIT $%d OFFSET $%d`, where, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var out []domain.Response
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan response: %w", err)
		}
		out = append(out, *resp)
	}
	return out, total, rows.Err()
}
