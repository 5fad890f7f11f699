package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeEvaluator struct {
	mu        sync.Mutex
	ids       []string
	decides   map[string]bool
	failures  map[string]error
	evaluated []string
}

func (f *fakeEvaluator) InProgressIDs(ctx context.Context) ([]string, error) {
	return f.ids, nil
}

func (f *fakeEvaluator) EvaluateBatch(ctx context.Context, batchID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluated = append(f.evaluated, batchID)
	if err := f.failures[batchID]; err != nil {
		return false, err
	}
	return f.decides[batchID], nil
}

func TestEvalSweepEvaluatesAllBatches(t *testing.T) {
	ev := &fakeEvaluator{
		ids:     []string{"b1", "b2", "b3", "b4", "b5", "b6"},
		decides: map[string]bool{"b2": true, "b5": true},
	}
	es := NewEvalSweep(ev, nopLock{}, time.Minute)

	es.sweep(context.Background())

	if len(ev.evaluated) != 6 {
		t.Errorf("evaluated %d batches, want 6", len(ev.evaluated))
	}
	if es.batchesDecided != 2 {
		t.Errorf("batchesDecided = %d, want 2", es.batchesDecided)
	}
}

func TestEvalSweepSurvivesBatchFailures(t *testing.T) {
	ev := &fakeEvaluator{
		ids:      []string{"b1", "b2", "b3"},
		decides:  map[string]bool{"b3": true},
		failures: map[string]error{"b1": errors.New("connection reset")},
	}
	es := NewEvalSweep(ev, nopLock{}, time.Minute)

	es.sweep(context.Background())

	// b1's failure must not keep b2 and b3 from being evaluated.
	if len(ev.evaluated) != 3 {
		t.Errorf("evaluated %d batches, want 3", len(ev.evaluated))
	}
	if es.batchesDecided != 1 {
		t.Errorf("batchesDecided = %d, want 1", es.batchesDecided)
	}
}

func TestEvalSweepYieldsWhenLockHeld(t *testing.T) {
	ev := &fakeEvaluator{ids: []string{"b1"}}
	es := NewEvalSweep(ev, heldLock{}, time.Minute)

	es.sweep(context.Background())

	if len(ev.evaluated) != 0 {
		t.Errorf("evaluated %v, want none while the lock is held elsewhere", ev.evaluated)
	}
}
