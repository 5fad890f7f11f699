package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/opinari/fieldqc/internal/domain"
	"github.com/opinari/fieldqc/internal/service/sampling"
)

// BatchStore serves tenant-scoped batch reads for the admin API.
type BatchStore struct {
	db *sql.DB
}

func NewBatchStore(db *sql.DB) *BatchStore {
	return &BatchStore{db: db}
}

func (s *BatchStore) Get(ctx context.Context, tenantID, id string) (*domain.Batch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+batchColumns+`
		FROM qc_batches
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)

	b, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return nil, sampling.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return b, nil
}

// Members returns the batch's response ids in batch position order, split by
// sample membership. Before seal every response reports as remainder since
// the sample has not been drawn yet.
func (s *BatchStore) Members(ctx context.Context, batchID string) (sample, remainder []string, err error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, is_sample_response
		FROM qc_responses
		WHERE batch_id = $1
		ORDER BY batch_position ASC
	`, batchID)
	if err != nil {
		return nil, nil, fmt.Errorf("list batch members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var isSample bool
		if err := rows.Scan(&id, &isSample); err != nil {
			return nil, nil, fmt.Errorf("scan batch member: %w", err)
		}
		if isSample {
			sample = append(sample, id)
		} else {
			remainder = append(remainder, id)
		}
	}
	return sample, remainder, rows.Err()
}

func (s *BatchStore) List(ctx context.Context, tenantID string, f domain.BatchFilter, limit, offset int) ([]domain.Batch, int, error) {
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
	if f.BatchDate != nil {
		add(" AND batch_date = $%d::date", f.BatchDate.Format("2006-01-02"))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM qc_batches"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count batches: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT `+batchColumns+`
		FROM qc_batches
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []domain.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan batch: %w", err)
		}
		out = append(out, *b)
	}
	return out, total, rows.Err()
}
