package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/opinari/fieldqc/internal/domain"
	"github.com/opinari/fieldqc/internal/pkg/logger"
)

// DefaultLeaseDuration is how long an agent exclusively holds a response
// before the lease lapses back into the pool.
const DefaultLeaseDuration = 30 * time.Minute

// leaseAttempts bounds how many view candidates one NextAssignment call will
// try to lease before reporting the race to the caller.
const leaseAttempts = 5

// Service implements the dispatcher.
type Service struct {
	repo          Repository
	leaseDuration time.Duration
	skipCooldown  time.Duration
}

// NewService builds a dispatcher. leaseDuration <= 0 selects the default;
// skipCooldown should match the view refresh interval so a skipped response
// stays away from the skipping agent at least until the view catches up.
func NewService(repo Repository, leaseDuration, skipCooldown time.Duration) *Service {
	if leaseDuration <= 0 {
		leaseDuration = DefaultLeaseDuration
	}
	if skipCooldown < 0 {
		skipCooldown = 0
	}
	return &Service{repo: repo, leaseDuration: leaseDuration, skipCooldown: skipCooldown}
}

// LeaseDuration returns the configured exclusive-hold window.
func (s *Service) LeaseDuration() time.Duration { return s.leaseDuration }

// Options narrows what NextAssignment may return.
type Options struct {
	Mode              string
	SelectedAC        string
	ExcludeResponseID string
}

// Assignment is a leased response handed to an agent.
type Assignment struct {
	Response       *domain.Response `json:"response"`
	LeaseExpiresAt time.Time        `json:"lease_expires_at"`
}

// NextAssignment leases the best eligible response for the agent. It walks
// the ranked candidates and returns the first successful lease; candidates
// leased by faster agents are skipped. ErrNoneAvailable means the pool is
// empty for these filters; ErrLeaseRace means candidates existed but every
// lease attempt lost.
func (s *Service) NextAssignment(ctx context.Context, tenantID, agentID string, opts Options) (*Assignment, error) {
	if agentID == "" {
		return nil, ErrMissingAgent
	}
	if opts.Mode != "" && !domain.ValidMode(opts.Mode) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, opts.Mode)
	}

	candidates, err := s.repo.Candidates(ctx, CandidateQuery{
		TenantID:          tenantID,
		AgentID:           agentID,
		Mode:              domain.Mode(opts.Mode),
		SelectedAC:        opts.SelectedAC,
		ExcludeResponseID: opts.ExcludeResponseID,
		SkipCooldown:      s.skipCooldown,
		Limit:             leaseAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("reading assignment view: %w", err)
	}
	if len(candidates) == 0 {
		return nil, ErrNoneAvailable
	}

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		expiresAt := time.Now().Add(s.leaseDuration)
		resp, err := s.repo.Lease(ctx, c.ResponseID, agentID, expiresAt)
		if err == ErrLeaseLost {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("leasing response %s: %w", c.ResponseID, err)
		}

		if verr := s.repo.MarkViewAssigned(ctx, c.ResponseID); verr != nil {
			logger.Warn("marking view row assigned", "response_id", c.ResponseID, "error", verr.Error())
		}
		logger.Debug("assignment leased",
			"response_id", c.ResponseID,
			"agent_id", agentID,
			"expires_at", expiresAt.Format(time.RFC3339),
		)
		return &Assignment{Response: resp, LeaseExpiresAt: expiresAt}, nil
	}

	return nil, ErrLeaseRace
}

// Release gives up the agent's lease. Releasing a lease the agent does not
// hold is a silent no-op: the desired state (agent holds nothing) already
// holds, and double-releases from flaky clients are routine.
func (s *Service) Release(ctx context.Context, agentID, responseID string) error {
	if agentID == "" {
		return ErrMissingAgent
	}
	ok, err := s.repo.Release(ctx, responseID, agentID)
	if err != nil {
		return fmt.Errorf("releasing lease on %s: %w", responseID, err)
	}
	if ok {
		if verr := s.repo.MarkViewAvailable(ctx, responseID); verr != nil {
			logger.Warn("marking view row available", "response_id", responseID, "error", verr.Error())
		}
	}
	return nil
}

// Skip releases the lease and demotes the response in dispatch order so the
// agent's next call sees something else. Unlike Release, skipping requires a
// live lease: it is an explicit reviewing action, not cleanup.
func (s *Service) Skip(ctx context.Context, agentID, responseID string) error {
	if agentID == "" {
		return ErrMissingAgent
	}
	ok, err := s.repo.Skip(ctx, responseID, agentID)
	if err != nil {
		return fmt.Errorf("skipping response %s: %w", responseID, err)
	}
	if !ok {
		return ErrNotLeaseHolder
	}
	if verr := s.repo.TouchViewSkip(ctx, responseID, time.Now()); verr != nil {
		logger.Warn("recording skip on view row", "response_id", responseID, "error", verr.Error())
	}
	return nil
}
