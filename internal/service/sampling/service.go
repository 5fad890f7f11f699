package sampling

import (
	"context"
	"fmt"
	"time"

	"github.com/opinari/fieldqc/internal/domain"
	"github.com/opinari/fieldqc/internal/pkg/logger"
)

// sealAttempts bounds the read-draw-seal retry loop. Each retry means a
// submitter appended between the membership read and the seal transition;
// the re-read picks the new response up, so one retry normally suffices.
const sealAttempts = 3

// Service owns the seal and evaluate halves of the QC pipeline.
type Service struct {
	repo     Repository
	resolver ConfigResolver
}

func NewService(repo Repository, resolver ConfigResolver) *Service {
	return &Service{repo: repo, resolver: resolver}
}

// SealBatch freezes a collecting batch: resolves the effective config, draws
// the random sample, and transitions every response to pending_approval with
// the sample published for dispatch. Safe to call concurrently; losers of the
// collecting -> qc_in_progress race get ErrAlreadySealed. A submission
// landing between the membership read and the seal transition is refused by
// the store's count guard; the whole read-draw-seal sequence is retried so
// the late response is sealed with its batch.
func (s *Service) SealBatch(ctx context.Context, batchID string) error {
	var err error
	for attempt := 0; attempt < sealAttempts; attempt++ {
		if err = s.sealOnce(ctx, batchID); err != ErrMembershipChanged {
			return err
		}
		logger.Warn("batch membership moved during seal, retrying",
			"batch_id", batchID, "attempt", attempt+1)
	}
	return err
}

func (s *Service) sealOnce(ctx context.Context, batchID string) error {
	b, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if b.Status != domain.BatchCollecting {
		return ErrAlreadySealed
	}

	ids, err := s.repo.ResponseIDs(ctx, batchID)
	if err != nil {
		return fmt.Errorf("loading batch responses: %w", err)
	}
	if len(ids) == 0 {
		return ErrEmptyBatch
	}

	cfg, err := s.resolver.ResolveConfig(ctx, b.TenantID, b.SurveyID)
	if err != nil {
		return fmt.Errorf("resolving config for batch %s: %w", batchID, err)
	}

	sample, remainder, err := drawSample(ids, cfg.SamplePercentage)
	if err != nil {
		return err
	}

	if err := s.repo.Seal(ctx, batchID, sample, remainder, cfg.Snapshot()); err != nil {
		return err
	}

	logger.Info("batch sealed",
		"batch_id", batchID,
		"survey_id", b.SurveyID,
		"interviewer_id", b.InterviewerID,
		"responses", len(ids),
		"sample", len(sample),
		"remainder", len(remainder),
		"sample_percentage", cfg.SamplePercentage,
	)
	return nil
}

// EvaluateBatch checks whether a qc_in_progress batch is ready for its
// remainder decision and applies it if so. Returns true when this call
// finalized the batch. Not-ready and lost-race outcomes are not errors:
// evaluation is retried by verdict triggers and the periodic sweep.
func (s *Service) EvaluateBatch(ctx context.Context, batchID string) (bool, error) {
	b, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return false, err
	}
	if b.Status != domain.BatchQCInProgress {
		return false, nil
	}

	approved, rejected, pending, err := s.repo.CountSampleVerdicts(ctx, batchID)
	if err != nil {
		return false, fmt.Errorf("counting sample verdicts: %w", err)
	}

	stats := domain.QCStats{
		ApprovedCount: approved,
		RejectedCount: rejected,
		PendingCount:  pending,
		ApprovalRate:  approvalRate(approved, rejected),
	}

	if pending > 0 {
		if err := s.repo.UpdateStats(ctx, batchID, stats); err != nil {
			logger.Warn("updating batch stats", "batch_id", batchID, "error", err.Error())
		}
		return false, nil
	}

	if approved+rejected == 0 {
		// A sealed batch always has at least one sample response, so a zero
		// denominator with nothing pending means the rows were mutated
		// outside the pipeline. Leave the batch for inspection.
		logger.Error("batch has no adjudicated sample", "batch_id", batchID)
		return false, nil
	}

	// Fully-sampled batches have no remainder to decide; close them out.
	if b.RemainingCount == 0 {
		if err := s.repo.FinalizeCompleted(ctx, batchID, stats); err != nil {
			if err == ErrAlreadyDecided {
				return false, nil
			}
			return false, err
		}
		logger.Info("batch completed",
			"batch_id", batchID,
			"approved", approved,
			"rejected", rejected,
			"approval_rate", fmt.Sprintf("%.2f", stats.ApprovalRate),
		)
		return true, nil
	}

	rule := matchRule(b.Config.ApprovalRules, stats.ApprovalRate)
	decision, status := ruleOutcome(rule.Action)

	mutated, err := s.repo.ApplyRemainderDecision(ctx, RemainderParams{
		BatchID:     batchID,
		Decision:    decision,
		BatchStatus: status,
		Stats:       stats,
		Feedback:    autoFeedback(rule.Action, stats.ApprovalRate),
	})
	if err != nil {
		if err == ErrAlreadyDecided {
			return false, nil
		}
		return false, fmt.Errorf("applying remainder decision: %w", err)
	}

	logger.Info("batch remainder decided",
		"batch_id", batchID,
		"decision", string(decision),
		"approval_rate", fmt.Sprintf("%.2f", stats.ApprovalRate),
		"remainder_responses", mutated,
	)
	return true, nil
}

// InProgressIDs lists batches that may be awaiting a remainder decision.
// Used by the evaluation sweep.
func (s *Service) InProgressIDs(ctx context.Context) ([]string, error) {
	return s.repo.InProgressIDs(ctx, 500)
}

// CollectingIDsBefore lists batches left collecting from previous logical
// days. Used by the daily sealer.
func (s *Service) CollectingIDsBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	return s.repo.CollectingIDsBefore(ctx, cutoff, 500)
}

// approvalRate computes approved/(approved+rejected) as a percentage,
// returning 0 while the denominator is 0.
func approvalRate(approved, rejected int) float64 {
	total := approved + rejected
	if total == 0 {
		return 0
	}
	return float64(approved) / float64(total) * 100
}

// matchRule walks the frozen rule table in order and returns the first rule
// whose inclusive band contains rate. When no rule matches it falls back to
// the built-in policy: auto-approve at or above 50%, otherwise route to QC.
func matchRule(rules []domain.ApprovalRule, rate float64) domain.ApprovalRule {
	for _, r := range rules {
		if r.Contains(rate) {
			return r
		}
	}
	if rate >= 50 {
		return domain.ApprovalRule{MinRate: 50, MaxRate: 100, Action: domain.ActionAutoApprove}
	}
	return domain.ApprovalRule{MinRate: 0, MaxRate: 50, Action: domain.ActionSendToQC}
}

func ruleOutcome(action domain.RuleAction) (domain.RemainderDecision, domain.BatchStatus) {
	switch action {
	case domain.ActionAutoApprove:
		return domain.DecisionAutoApproved, domain.BatchAutoApproved
	case domain.ActionRejectAll:
		return domain.DecisionRejectedAll, domain.BatchCompleted
	default:
		return domain.DecisionQueuedForQC, domain.BatchQueuedForQC
	}
}

func autoFeedback(action domain.RuleAction, rate float64) string {
	switch action {
	case domain.ActionAutoApprove:
		return fmt.Sprintf("Auto-approved: sample approval rate %.1f%%", rate)
	case domain.ActionRejectAll:
		return fmt.Sprintf("Rejected with batch: sample approval rate %.1f%%", rate)
	default:
		return ""
	}
}
