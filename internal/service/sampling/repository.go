package sampling

import (
	"context"
	"time"

	"github.com/opinari/fieldqc/internal/domain"
)

// RemainderParams describes the single atomic transition that finalizes a
// batch remainder. The store applies the batch status change, the remainder
// response mutations, and the dispatch-view maintenance in one transaction,
// and returns ErrAlreadyDecided if the batch already left qc_in_progress.
type RemainderParams struct {
	BatchID     string
	Decision    domain.RemainderDecision
	BatchStatus domain.BatchStatus
	Stats       domain.QCStats
	Feedback    string
}

// Repository is the persistence contract for sealing and evaluation.
type Repository interface {
	// GetBatch returns a batch with its frozen config snapshot, or ErrNotFound.
	GetBatch(ctx context.Context, batchID string) (*domain.Batch, error)

	// ResponseIDs returns the ids of all responses attached to the batch,
	// ordered by batch position.
	ResponseIDs(ctx context.Context, batchID string) ([]string, error)

	// Seal transitions the batch collecting -> qc_in_progress, marks the
	// given responses as sample/remainder (all pending_approval), snapshots
	// the config, and publishes sample rows to the dispatch view, in one
	// transaction. The transition only applies while the batch response
	// count still equals len(sampleIDs)+len(remainderIDs): a response
	// appended after the caller's ResponseIDs read yields
	// ErrMembershipChanged so the caller re-reads and retries. Returns
	// ErrAlreadySealed if the batch is not collecting.
	Seal(ctx context.Context, batchID string, sampleIDs, remainderIDs []string, snap domain.ConfigSnapshot) error

	// CountSampleVerdicts tallies the batch's sample responses by outcome.
	CountSampleVerdicts(ctx context.Context, batchID string) (approved, rejected, pending int, err error)

	// UpdateStats persists refreshed verdict tallies on a batch still in
	// qc_in_progress. Racing a terminal transition is harmless: the
	// conditional update simply affects no row.
	UpdateStats(ctx context.Context, batchID string, stats domain.QCStats) error

	// ApplyRemainderDecision performs the terminal transition and returns
	// the number of remainder responses mutated. Exactly one concurrent
	// caller succeeds; the rest get ErrAlreadyDecided.
	ApplyRemainderDecision(ctx context.Context, p RemainderParams) (int, error)

	// FinalizeCompleted closes a fully-sampled batch (empty remainder) as
	// completed. The remainder decision itself stays pending since there was
	// nothing to decide.
	FinalizeCompleted(ctx context.Context, batchID string, stats domain.QCStats) error

	// InProgressIDs lists batches awaiting evaluation.
	InProgressIDs(ctx context.Context, limit int) ([]string, error)

	// CollectingIDsBefore lists collecting batches whose batch date is
	// strictly before cutoff, oldest first.
	CollectingIDsBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// ConfigResolver supplies the effective QC policy for a survey at seal time.
type ConfigResolver interface {
	ResolveConfig(ctx context.Context, tenantID, surveyID string) (*domain.QCConfig, error)
}
