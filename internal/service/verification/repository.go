package verification

import (
	"context"

	"github.com/opinari/fieldqc/internal/domain"
)

// VerdictParams carries one verdict application.
type VerdictParams struct {
	ResponseID string
	AgentID    string
	Verdict    domain.Verdict
	Feedback   string
}

// VerdictResult reports what the conditional update did. Applied is false
// when the response was not pending under the agent's live lease at commit
// time; IsSample and BatchID are only meaningful when Applied.
type VerdictResult struct {
	Applied  bool
	IsSample bool
	BatchID  string
}

// Repository is the persistence contract for verdicts.
type Repository interface {
	// GetResponse returns the response or ErrNotFound.
	GetResponse(ctx context.Context, id string) (*domain.Response, error)

	// BatchStatus returns the owning batch's current status.
	BatchStatus(ctx context.Context, batchID string) (domain.BatchStatus, error)

	// ApplyVerdict sets the final status, records the verification trail,
	// and clears the lease, all conditional on the response still being
	// pending under the agent's live lease.
	ApplyVerdict(ctx context.Context, p VerdictParams) (*VerdictResult, error)

	// DeleteViewRow removes the response from the assignment view.
	// Best-effort; the refresher reconciles stragglers.
	DeleteViewRow(ctx context.Context, responseID string) error
}

// Evaluator triggers remainder evaluation after a sample verdict.
type Evaluator interface {
	EvaluateBatch(ctx context.Context, batchID string) (bool, error)
}
