package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/opinari/fieldqc/internal/domain"
	"github.com/opinari/fieldqc/internal/service/batching"
)

// BatchingRepo implements batching.Repository.
type BatchingRepo struct {
	db *sql.DB
}

func NewBatchingRepo(db *sql.DB) *BatchingRepo {
	return &BatchingRepo{db: db}
}

func (r *BatchingRepo) CreateResponse(ctx context.Context, resp *domain.Response) error {
	var metadata []byte
	if len(resp.Metadata) > 0 {
		metadata = []byte(resp.Metadata)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO qc_responses
			(id, tenant_id, survey_id, interviewer_id, mode, status, priority, selected_ac, metadata, submitted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	`, resp.ID, resp.TenantID, resp.SurveyID, resp.InterviewerID, resp.Mode, resp.Status,
		resp.Priority, resp.SelectedAC, metadata, resp.SubmittedAt)
	if err != nil {
		return fmt.Errorf("create response: %w", err)
	}
	return nil
}

// FindOrCreateCollecting relies on ux_qc_batches_collecting: the speculative
// insert hits the partial unique index when a collecting batch already exists,
// so at most one can be live per (survey, interviewer). The select after a
// conflicted insert can still come up empty if a racing sealer closed the
// batch in between, hence the second pass.
func (r *BatchingRepo) FindOrCreateCollecting(ctx context.Context, key batching.BatchKey) (*batching.CollectingResult, error) {
	batchDate := key.BatchDate.Format("2006-01-02")

	for attempt := 0; attempt < 2; attempt++ {
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO qc_batches (id, tenant_id, survey_id, interviewer_id, batch_date, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 'collecting', NOW(), NOW())
			ON CONFLICT (survey_id, interviewer_id) WHERE status = 'collecting' DO NOTHING
		`, uuid.New().String(), key.TenantID, key.SurveyID, key.InterviewerID, batchDate)
		if err != nil {
			return nil, fmt.Errorf("create collecting batch: %w", err)
		}
		inserted, _ := res.RowsAffected()

		rows, err := r.db.QueryContext(ctx, `
			SELECT `+batchColumns+`
			FROM qc_batches
			WHERE survey_id = $1 AND interviewer_id = $2 AND status = 'collecting'
			ORDER BY created_at DESC
		`, key.SurveyID, key.InterviewerID)
		if err != nil {
			return nil, fmt.Errorf("find collecting batch: %w", err)
		}

		var batches []*domain.Batch
		for rows.Next() {
			b, err := scanBatch(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan collecting batch: %w", err)
			}
			batches = append(batches, b)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("find collecting batch: %w", err)
		}

		if len(batches) > 0 {
			return &batching.CollectingResult{
				Batch:      batches[0],
				Created:    inserted > 0,
				Collisions: len(batches),
			}, nil
		}
	}
	return nil, fmt.Errorf("no collecting batch for survey %s interviewer %s after retry", key.SurveyID, key.InterviewerID)
}

// AppendResponse bumps the batch count and attaches the response in one
// transaction. Both updates are conditional; either affecting zero rows means
// the precondition no longer holds and the error tells the engine which one.
func (r *BatchingRepo) AppendResponse(ctx context.Context, batchID, responseID string, capacity int) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx, `
		UPDATE qc_batches
		SET response_count = response_count + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'collecting' AND response_count < $2
		RETURNING response_count
	`, batchID, capacity).Scan(&count)
	if err == sql.ErrNoRows {
		// At capacity, or sealed under us. The engine handles both the same
		// way: seal (a no-op when already sealed) and retry on a fresh batch.
		return 0, batching.ErrBatchFull
	}
	if err != nil {
		return 0, fmt.Errorf("bump batch count: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE qc_responses
		SET batch_id = $1, batch_position = $2, updated_at = NOW()
		WHERE id = $3 AND status = 'submitted' AND batch_id IS NULL
	`, batchID, count-1, responseID)
	if err != nil {
		return 0, fmt.Errorf("attach response: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		tx.Rollback()
		return 0, r.classifyAttachFailure(ctx, responseID)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append: %w", err)
	}
	return count, nil
}

func (r *BatchingRepo) classifyAttachFailure(ctx context.Context, responseID string) error {
	var batchID sql.NullString
	var status string
	err := r.db.QueryRowContext(ctx, `
		SELECT batch_id, status FROM qc_responses WHERE id = $1
	`, responseID).Scan(&batchID, &status)
	if err == sql.ErrNoRows {
		return batching.ErrNotAppendable
	}
	if err != nil {
		return fmt.Errorf("inspect response %s: %w", responseID, err)
	}
	if batchID.Valid {
		return batching.ErrAlreadyBatched
	}
	return batching.ErrNotAppendable
}

func (r *BatchingRepo) SiblingInProgressIDs(ctx context.Context, tenantID, surveyID, interviewerID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id
		FROM qc_batches
		WHERE tenant_id = $1 AND survey_id = $2 AND interviewer_id = $3 AND status = 'qc_in_progress'
		ORDER BY created_at ASC
	`, tenantID, surveyID, interviewerID)
	if err != nil {
		return nil, fmt.Errorf("list sibling batches: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan sibling batch id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
