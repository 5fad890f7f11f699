package verification

import (
	"context"
	"fmt"
	"time"

	"github.com/opinari/fieldqc/internal/domain"
	"github.com/opinari/fieldqc/internal/pkg/logger"
)

// Service applies verdicts and drives evaluation of the owning batch.
type Service struct {
	repo      Repository
	evaluator Evaluator
}

func NewService(repo Repository, evaluator Evaluator) *Service {
	return &Service{repo: repo, evaluator: evaluator}
}

// SubmitVerdict records the agent's decision on a leased response. On
// success the lease is gone, the response is approved or rejected, and for
// sample responses the owning batch is re-evaluated.
func (s *Service) SubmitVerdict(ctx context.Context, agentID, responseID string, verdict domain.Verdict, feedback string) error {
	if verdict != domain.VerdictApprove && verdict != domain.VerdictReject {
		return fmt.Errorf("%w: got %q", ErrInvalidVerdict, verdict)
	}
	if agentID == "" {
		return ErrNotLeaseHolder
	}

	r, err := s.repo.GetResponse(ctx, responseID)
	if err != nil {
		return err
	}
	if err := s.checkReviewable(ctx, r, agentID); err != nil {
		return err
	}

	res, err := s.repo.ApplyVerdict(ctx, VerdictParams{
		ResponseID: responseID,
		AgentID:    agentID,
		Verdict:    verdict,
		Feedback:   feedback,
	})
	if err != nil {
		return fmt.Errorf("applying verdict: %w", err)
	}
	if !res.Applied {
		// The precondition held a moment ago; re-read to name what changed.
		return s.classifyConflict(ctx, responseID, agentID)
	}

	if verr := s.repo.DeleteViewRow(ctx, responseID); verr != nil {
		logger.Warn("removing view row after verdict", "response_id", responseID, "error", verr.Error())
	}

	logger.Info("verdict recorded",
		"response_id", responseID,
		"agent_id", agentID,
		"verdict", string(verdict),
		"is_sample", res.IsSample,
	)

	// Only sample verdicts can complete a batch's sample set; remainder
	// reviews in queued_for_qc batches never re-enter the rule table.
	if res.IsSample {
		if _, err := s.evaluator.EvaluateBatch(ctx, res.BatchID); err != nil {
			logger.Error("evaluating batch after sample verdict",
				"batch_id", res.BatchID, "error", err.Error())
		}
	}
	return nil
}

func (s *Service) checkReviewable(ctx context.Context, r *domain.Response, agentID string) error {
	if r.IsDecided() {
		return ErrAlreadyDecided
	}
	if r.Status != domain.ResponsePendingApproval {
		return fmt.Errorf("%w: response is %s", ErrBatchNotReviewable, r.Status)
	}
	if !r.LeaseHeldBy(agentID, time.Now()) {
		return ErrNotLeaseHolder
	}
	if r.BatchID == nil {
		return fmt.Errorf("response %s is pending without a batch", r.ID)
	}

	status, err := s.repo.BatchStatus(ctx, *r.BatchID)
	if err != nil {
		return fmt.Errorf("reading batch %s: %w", *r.BatchID, err)
	}
	if status != domain.BatchQCInProgress && status != domain.BatchQueuedForQC {
		return fmt.Errorf("%w: batch is %s", ErrBatchNotReviewable, status)
	}
	return nil
}

// classifyConflict names the reason a conditional verdict matched no row.
func (s *Service) classifyConflict(ctx context.Context, responseID, agentID string) error {
	r, err := s.repo.GetResponse(ctx, responseID)
	if err != nil {
		return err
	}
	if r.IsDecided() {
		return ErrAlreadyDecided
	}
	if !r.LeaseHeldBy(agentID, time.Now()) {
		return ErrNotLeaseHolder
	}
	return fmt.Errorf("verdict conflict on response %s", responseID)
}
