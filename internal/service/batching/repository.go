package batching

import (
	"context"
	"time"

	"github.com/opinari/fieldqc/internal/domain"
)

// BatchKey identifies the collecting batch a response belongs to.
type BatchKey struct {
	TenantID      string
	SurveyID      string
	InterviewerID string
	BatchDate     time.Time
}

// CollectingResult is the outcome of a find-or-create. Collisions reports how
// many collecting batches matched the key; anything above one is an invariant
// violation the store resolves by returning the most recent.
type CollectingResult struct {
	Batch      *domain.Batch
	Created    bool
	Collisions int
}

// Repository is the persistence contract for the batching engine.
type Repository interface {
	// CreateResponse persists a freshly submitted response.
	CreateResponse(ctx context.Context, r *domain.Response) error

	// FindOrCreateCollecting returns the collecting batch for the key,
	// creating one when none exists. Safe under concurrent submitters: a
	// partial unique index guarantees at most one collecting batch per
	// (survey, interviewer).
	FindOrCreateCollecting(ctx context.Context, key BatchKey) (*CollectingResult, error)

	// AppendResponse attaches the response to the batch and bumps the count,
	// both conditional in one transaction: the batch must be collecting and
	// under capacity, the response unattached and submitted. Returns the new
	// response count, or ErrBatchFull / ErrAlreadyBatched / ErrNotAppendable.
	AppendResponse(ctx context.Context, batchID, responseID string, capacity int) (int, error)

	// SiblingInProgressIDs lists qc_in_progress batches for the same
	// (survey, interviewer), oldest first. The engine opportunistically
	// re-evaluates them on each submission so a missed verdict trigger
	// cannot strand a batch until the sweep.
	SiblingInProgressIDs(ctx context.Context, tenantID, surveyID, interviewerID string) ([]string, error)
}

// Sealer is the slice of the sampling service the engine drives.
type Sealer interface {
	SealBatch(ctx context.Context, batchID string) error
	EvaluateBatch(ctx context.Context, batchID string) (bool, error)
}
