package batching

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opinari/fieldqc/internal/domain"
	"github.com/opinari/fieldqc/internal/pkg/logger"
	"github.com/opinari/fieldqc/internal/service/sampling"
)

// DefaultCapacity is the per-batch response cap that triggers an immediate
// seal when reached.
const DefaultCapacity = 100

// appendAttempts bounds the find-append retry loop under contention. Each
// retry only happens after this submitter sealed a full batch, so two
// retries already covers the pathological case.
const appendAttempts = 3

// Engine routes submitted responses into collecting batches.
type Engine struct {
	repo     Repository
	sealer   Sealer
	capacity int
	loc      *time.Location
}

// NewEngine builds a batching engine. capacity <= 0 selects DefaultCapacity;
// loc determines the logical collection day stamped on new batches and
// defaults to UTC.
func NewEngine(repo Repository, sealer Sealer, capacity int, loc *time.Location) *Engine {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{repo: repo, sealer: sealer, capacity: capacity, loc: loc}
}

// Capacity returns the configured per-batch response cap.
func (e *Engine) Capacity() int { return e.capacity }

// SubmitInput is the ingress payload for a completed interview. Metadata is
// opaque to the pipeline and stored verbatim.
type SubmitInput struct {
	SurveyID      string          `json:"survey_id"`
	InterviewerID string          `json:"interviewer_id"`
	Mode          string          `json:"mode"`
	SelectedAC    string          `json:"selected_ac"`
	Priority      *int            `json:"priority"`
	SubmittedAt   *time.Time      `json:"submitted_at"`
	Metadata      json.RawMessage `json:"metadata"`
}

func (in *SubmitInput) validate() error {
	var missing []string
	if in.SurveyID == "" {
		missing = append(missing, "survey_id")
	}
	if in.InterviewerID == "" {
		missing = append(missing, "interviewer_id")
	}
	if in.Mode == "" {
		missing = append(missing, "mode")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidSubmission, strings.Join(missing, ", "))
	}
	if !domain.ValidMode(in.Mode) {
		return fmt.Errorf("%w: mode must be capi or cati, got %q", ErrInvalidSubmission, in.Mode)
	}
	return nil
}

// SubmitResponse persists a new response and routes it through the engine.
// The returned response carries its batch placement.
func (e *Engine) SubmitResponse(ctx context.Context, tenantID string, in SubmitInput) (*domain.Response, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	submittedAt := now
	if in.SubmittedAt != nil {
		submittedAt = in.SubmittedAt.UTC()
	}
	priority := 100
	if in.Priority != nil && *in.Priority > 0 {
		priority = *in.Priority
	}

	r := &domain.Response{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		SurveyID:      in.SurveyID,
		InterviewerID: in.InterviewerID,
		Mode:          domain.Mode(in.Mode),
		Status:        domain.ResponseSubmitted,
		Priority:      priority,
		SelectedAC:    in.SelectedAC,
		Metadata:      in.Metadata,
		SubmittedAt:   submittedAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := e.repo.CreateResponse(ctx, r); err != nil {
		return nil, fmt.Errorf("persisting response: %w", err)
	}

	if err := e.OnResponseSubmitted(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// OnResponseSubmitted routes one response into its collecting batch, sealing
// on capacity. Responses that already hold a batch reference, or that left
// the submitted state, are skipped without error.
func (e *Engine) OnResponseSubmitted(ctx context.Context, r *domain.Response) error {
	if r.Status == domain.ResponseRejected || r.Status == domain.ResponseAbandoned {
		logger.Debug("skipping response in terminal state", "response_id", r.ID, "status", string(r.Status))
		return nil
	}
	if r.BatchID != nil {
		return nil
	}
	if r.Status != domain.ResponseSubmitted {
		logger.Warn("response not in submitted state, skipping batching",
			"response_id", r.ID, "status", string(r.Status))
		return nil
	}

	key := BatchKey{
		TenantID:      r.TenantID,
		SurveyID:      r.SurveyID,
		InterviewerID: r.InterviewerID,
		BatchDate:     collectionDay(time.Now(), e.loc),
	}

	var placed *domain.Batch
	var total int
	for attempt := 0; attempt < appendAttempts; attempt++ {
		res, err := e.repo.FindOrCreateCollecting(ctx, key)
		if err != nil {
			return fmt.Errorf("finding collecting batch: %w", err)
		}
		if res.Collisions > 1 {
			logger.Error("multiple collecting batches for one interviewer",
				"survey_id", key.SurveyID,
				"interviewer_id", key.InterviewerID,
				"count", res.Collisions,
				"chosen", res.Batch.ID,
			)
		}

		total, err = e.repo.AppendResponse(ctx, res.Batch.ID, r.ID, e.capacity)
		if err == nil {
			placed = res.Batch
			break
		}
		switch {
		case err == ErrAlreadyBatched:
			return nil
		case err == ErrNotAppendable:
			logger.Warn("response changed state during batching", "response_id", r.ID)
			return nil
		case err == ErrBatchFull:
			// Leftover full batch from a crashed capacity seal. Seal it and
			// retry against a fresh collecting batch.
			if serr := e.sealer.SealBatch(ctx, res.Batch.ID); serr != nil && serr != sampling.ErrAlreadySealed {
				logger.Error("sealing full batch", "batch_id", res.Batch.ID, "error", serr.Error())
			}
			continue
		default:
			return fmt.Errorf("appending response to batch: %w", err)
		}
	}
	if placed == nil {
		return ErrBatchConflict
	}

	batchID := placed.ID
	pos := total - 1
	r.BatchID = &batchID
	r.BatchPosition = &pos

	if total >= e.capacity {
		// Capacity seal is synchronous with the submission that filled the
		// batch. A failure here leaves the batch collecting at capacity,
		// which the next submission or the daily sweep will seal.
		if err := e.sealer.SealBatch(ctx, batchID); err != nil && err != sampling.ErrAlreadySealed {
			logger.Error("capacity seal failed", "batch_id", batchID, "error", err.Error())
		}
	}

	e.evaluateSiblings(ctx, r)
	return nil
}

// evaluateSiblings re-runs remainder evaluation for this interviewer's
// in-progress batches. A verdict trigger lost to a crash would otherwise
// strand the batch until the periodic sweep.
func (e *Engine) evaluateSiblings(ctx context.Context, r *domain.Response) {
	ids, err := e.repo.SiblingInProgressIDs(ctx, r.TenantID, r.SurveyID, r.InterviewerID)
	if err != nil {
		logger.Warn("listing sibling batches", "survey_id", r.SurveyID, "error", err.Error())
		return
	}
	for _, id := range ids {
		if _, err := e.sealer.EvaluateBatch(ctx, id); err != nil {
			logger.Warn("evaluating sibling batch", "batch_id", id, "error", err.Error())
		}
	}
}

// collectionDay truncates now to the logical collection day in the seal
// timezone.
func collectionDay(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
