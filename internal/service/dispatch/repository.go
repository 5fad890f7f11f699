package dispatch

import (
	"context"
	"time"

	"github.com/opinari/fieldqc/internal/domain"
)

// CandidateQuery filters and bounds one read of the assignment view.
type CandidateQuery struct {
	TenantID          string
	AgentID           string
	Mode              domain.Mode // empty selects both channels
	SelectedAC        string
	ExcludeResponseID string
	// SkipCooldown suppresses responses this agent skipped within the
	// window, covering the view-refresh lag after a skip.
	SkipCooldown time.Duration
	Limit        int
}

// Repository is the persistence contract for dispatching.
type Repository interface {
	// Candidates returns view rows eligible for the agent, best first:
	// priority ascending, never-skipped before skipped, oldest first. Rows
	// with a live lease are filtered out on the responses table, not the
	// view, so refresh lag cannot surface a leased response.
	Candidates(ctx context.Context, q CandidateQuery) ([]domain.Assignment, error)

	// Lease atomically grants the agent an exclusive hold until expiresAt,
	// provided the response is still pending with no live lease. Returns the
	// full response row on success and ErrLeaseLost when the condition no
	// longer holds.
	Lease(ctx context.Context, responseID, agentID string, expiresAt time.Time) (*domain.Response, error)

	// Release clears the agent's lease. Returns false without error when the
	// agent holds no lease on the response.
	Release(ctx context.Context, responseID, agentID string) (bool, error)

	// Skip releases the agent's live lease and stamps the skip demotion.
	// Returns false when the agent does not hold a live lease.
	Skip(ctx context.Context, responseID, agentID string) (bool, error)

	// View maintenance. All best-effort: the refresher reconciles the view
	// on its next pass.
	MarkViewAssigned(ctx context.Context, responseID string) error
	MarkViewAvailable(ctx context.Context, responseID string) error
	TouchViewSkip(ctx context.Context, responseID string, at time.Time) error
}
