package worker

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opinari/fieldqc/internal/pkg/distlock"
)

// =============================================================================
// EVALUATION SWEEP — Safety Net For Missed Remainder Decisions
// =============================================================================
// Remainder evaluation normally runs when the last sample verdict lands. A
// crash between the verdict and the evaluation would strand the batch in
// qc_in_progress, so this sweep re-evaluates every in-progress batch on a
// timer. Evaluation is idempotent; sweeping an already-healthy batch only
// refreshes its stats.

const (
	DefaultEvalSweepInterval = 5 * time.Minute
	evalSweepConcurrency     = 4
)

// Evaluator is the slice of the sampling service the sweep drives.
type Evaluator interface {
	InProgressIDs(ctx context.Context) ([]string, error)
	EvaluateBatch(ctx context.Context, batchID string) (bool, error)
}

// EvalSweep periodically re-evaluates in-progress batches.
type EvalSweep struct {
	evaluator Evaluator
	lock      distlock.DistLock
	interval  time.Duration

	batchesDecided int64
}

func NewEvalSweep(evaluator Evaluator, lock distlock.DistLock, interval time.Duration) *EvalSweep {
	if interval <= 0 {
		interval = DefaultEvalSweepInterval
	}
	return &EvalSweep{evaluator: evaluator, lock: lock, interval: interval}
}

// Start blocks until ctx is cancelled, sweeping on the configured interval.
func (es *EvalSweep) Start(ctx context.Context) {
	log.Printf("[EvalSweep] Starting (interval=%s, concurrency=%d)", es.interval, evalSweepConcurrency)

	es.sweep(ctx)

	ticker := time.NewTicker(es.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[EvalSweep] Stopping. Batches decided: %d", atomic.LoadInt64(&es.batchesDecided))
			return
		case <-ticker.C:
			es.sweep(ctx)
		}
	}
}

func (es *EvalSweep) sweep(ctx context.Context) {
	_, err := distlock.RunExclusive(ctx, es.lock, func(ctx context.Context) error {
		ids, err := es.evaluator.InProgressIDs(ctx)
		if err != nil {
			log.Printf("[EvalSweep] Failed to list in-progress batches: %v", err)
			return nil
		}
		if len(ids) == 0 {
			return nil
		}

		var decided int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(evalSweepConcurrency)
		for _, id := range ids {
			id := id
			g.Go(func() error {
				done, err := es.evaluator.EvaluateBatch(gctx, id)
				if err != nil {
					// Per-batch failures must not abort the sweep.
					log.Printf("[EvalSweep] Failed to evaluate batch %s: %v", id, err)
					return nil
				}
				if done {
					atomic.AddInt64(&decided, 1)
				}
				return nil
			})
		}
		_ = g.Wait()

		if n := atomic.LoadInt64(&decided); n > 0 {
			atomic.AddInt64(&es.batchesDecided, n)
			log.Printf("[EvalSweep] Decided %d of %d in-progress batches", n, len(ids))
		}
		return nil
	})
	if err != nil {
		log.Printf("[EvalSweep] Sweep failed: %v", err)
	}
}
