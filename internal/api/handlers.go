package api

import (
	"context"
	"time"

	"github.com/opinari/fieldqc/internal/domain"
	"github.com/opinari/fieldqc/internal/service/batching"
	"github.com/opinari/fieldqc/internal/service/dispatch"
	"github.com/opinari/fieldqc/internal/service/qcconfig"
)

// Submitter ingests responses and routes them through the batching engine.
type Submitter interface {
	SubmitResponse(ctx context.Context, tenantID string, in batching.SubmitInput) (*domain.Response, error)
}

// Dispatcher hands out, returns, and deprioritizes leased assignments.
type Dispatcher interface {
	NextAssignment(ctx context.Context, tenantID, agentID string, opts dispatch.Options) (*dispatch.Assignment, error)
	Release(ctx context.Context, agentID, responseID string) error
	Skip(ctx context.Context, agentID, responseID string) error
	LeaseDuration() time.Duration
}

// Verifier applies agent verdicts to leased responses.
type Verifier interface {
	SubmitVerdict(ctx context.Context, agentID, responseID string, verdict domain.Verdict, feedback string) error
}

// BatchSealer seals a collecting batch ahead of its scheduled time.
type BatchSealer interface {
	SealBatch(ctx context.Context, batchID string) error
}

// SealRunner runs the daily-seal catch-up pass on demand.
type SealRunner interface {
	RunOnce(ctx context.Context) int
}

// BatchEvaluator lists and re-evaluates batches under review.
type BatchEvaluator interface {
	InProgressIDs(ctx context.Context) ([]string, error)
	EvaluateBatch(ctx context.Context, batchID string) (bool, error)
}

// ConfigService resolves and manages sampling configurations.
type ConfigService interface {
	Resolve(ctx context.Context, tenantID, surveyID string) (*domain.QCConfig, qcconfig.Source, error)
	Create(ctx context.Context, tenantID string, in qcconfig.CreateInput) (*domain.QCConfig, error)
	List(ctx context.Context, tenantID string, surveyID *string, limit, offset int) ([]domain.QCConfig, int, error)
}

// ResponseReader serves response lookups and filtered listings.
type ResponseReader interface {
	Get(ctx context.Context, tenantID, id string) (*domain.Response, error)
	List(ctx context.Context, tenantID string, f domain.ResponseFilter, limit, offset int) ([]domain.Response, int, error)
}

// BatchReader serves batch lookups, member listings, and filtered listings.
type BatchReader interface {
	Get(ctx context.Context, tenantID, id string) (*domain.Batch, error)
	Members(ctx context.Context, batchID string) (sample, remainder []string, err error)
	List(ctx context.Context, tenantID string, f domain.BatchFilter, limit, offset int) ([]domain.Batch, int, error)
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	submitter  Submitter
	dispatcher Dispatcher
	verifier   Verifier
	sealer     BatchSealer
	sealRunner SealRunner
	evaluator  BatchEvaluator
	configs    ConfigService
	responses  ResponseReader
	batches    BatchReader

	counters  *Counters
	startTime time.Time
}

// NewHandlers creates a new Handlers instance wired to the core services.
func NewHandlers(
	submitter Submitter,
	dispatcher Dispatcher,
	verifier Verifier,
	configs ConfigService,
	responses ResponseReader,
	batches BatchReader,
) *Handlers {
	return &Handlers{
		submitter:  submitter,
		dispatcher: dispatcher,
		verifier:   verifier,
		configs:    configs,
		responses:  responses,
		batches:    batches,
		counters:   &Counters{},
		startTime:  time.Now(),
	}
}

// SetBatchSealer sets the manual-seal backend.
func (h *Handlers) SetBatchSealer(sealer BatchSealer) {
	h.sealer = sealer
}

// SetSealRunner sets the on-demand daily-seal pass.
func (h *Handlers) SetSealRunner(runner SealRunner) {
	h.sealRunner = runner
}

// SetBatchEvaluator sets the on-demand batch evaluation backend.
func (h *Handlers) SetBatchEvaluator(evaluator BatchEvaluator) {
	h.evaluator = evaluator
}
