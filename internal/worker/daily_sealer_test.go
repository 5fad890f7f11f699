package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opinari/fieldqc/internal/service/sampling"
)

// nopLock always grants the lock. heldLock simulates another instance
// holding it.
type nopLock struct{}

func (nopLock) Acquire(ctx context.Context) (bool, error) { return true, nil }
func (nopLock) Release(ctx context.Context) error         { return nil }

type heldLock struct{}

func (heldLock) Acquire(ctx context.Context) (bool, error) { return false, nil }
func (heldLock) Release(ctx context.Context) error         { return nil }

type fakeSealer struct {
	mu      sync.Mutex
	stale   []string
	results map[string]error
	sealed  []string
	listed  int
}

func (f *fakeSealer) CollectingIDsBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed++
	// Sealed batches leave the collecting set.
	var out []string
	for _, id := range f.stale {
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeSealer) SealBatch(ctx context.Context, batchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.results[batchID]; ok && err != nil {
		// A raced batch is sealed by someone and leaves the collecting set;
		// an empty one stays collecting.
		if err == sampling.ErrAlreadySealed {
			f.remove(batchID)
		}
		return err
	}
	f.sealed = append(f.sealed, batchID)
	f.remove(batchID)
	return nil
}

func (f *fakeSealer) remove(batchID string) {
	remaining := f.stale[:0]
	for _, id := range f.stale {
		if id != batchID {
			remaining = append(remaining, id)
		}
	}
	f.stale = remaining
}

func TestDailySealerRunOnceSealsStaleBatches(t *testing.T) {
	sealer := &fakeSealer{stale: []string{"b1", "b2", "b3"}}
	ds := NewDailySealer(sealer, nopLock{}, time.UTC)

	sealed := ds.RunOnce(context.Background())
	if sealed != 3 {
		t.Errorf("sealed = %d, want 3", sealed)
	}
	if len(sealer.sealed) != 3 {
		t.Errorf("seal calls = %v, want b1 b2 b3", sealer.sealed)
	}
}

func TestDailySealerSkipsEmptyAndRacedBatches(t *testing.T) {
	sealer := &fakeSealer{
		stale: []string{"b1", "b2", "b3"},
		results: map[string]error{
			"b1": sampling.ErrEmptyBatch,
			"b2": sampling.ErrAlreadySealed,
		},
	}
	ds := NewDailySealer(sealer, nopLock{}, time.UTC)

	sealed := ds.RunOnce(context.Background())
	if sealed != 1 {
		t.Errorf("sealed = %d, want 1 (b3 only)", sealed)
	}
	if len(sealer.sealed) != 1 || sealer.sealed[0] != "b3" {
		t.Errorf("seal calls = %v, want [b3]", sealer.sealed)
	}
	// The empty batch keeps coming back from the listing; the sweep must not
	// loop forever on it.
	if sealer.listed > sealSweepPasses+1 {
		t.Errorf("listing ran %d times, progress guard failed", sealer.listed)
	}
}

func TestDailySealerYieldsWhenLockHeld(t *testing.T) {
	sealer := &fakeSealer{stale: []string{"b1"}}
	ds := NewDailySealer(sealer, heldLock{}, time.UTC)

	if sealed := ds.RunOnce(context.Background()); sealed != 0 {
		t.Errorf("sealed = %d, want 0 when another instance holds the lock", sealed)
	}
	if len(sealer.sealed) != 0 {
		t.Errorf("seal calls = %v, want none", sealer.sealed)
	}
}

func TestNextMidnightCrossesDayInLocation(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)

	// 23:30 IST on March 14 rolls into March 15 00:00 IST.
	at := time.Date(2026, 3, 14, 23, 30, 0, 0, ist)
	next := nextMidnight(at)

	if next.Hour() != 0 || next.Minute() != 0 {
		t.Errorf("next midnight clock = %02d:%02d, want 00:00", next.Hour(), next.Minute())
	}
	y, m, d := next.Date()
	if y != 2026 || m != time.March || d != 15 {
		t.Errorf("next midnight date = %04d-%02d-%02d, want 2026-03-15", y, m, d)
	}
	if got := next.Sub(at); got != 30*time.Minute {
		t.Errorf("time until midnight = %s, want 30m", got)
	}
}

func TestMidnightOfTruncatesInLocation(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)

	at := time.Date(2026, 3, 14, 18, 45, 12, 0, ist)
	mid := midnightOf(at)

	y, m, d := mid.Date()
	if y != 2026 || m != time.March || d != 14 {
		t.Errorf("midnight date = %04d-%02d-%02d, want 2026-03-14", y, m, d)
	}
	if mid.Hour() != 0 || mid.Minute() != 0 || mid.Second() != 0 {
		t.Error("midnight should have a zero clock")
	}
	if mid.Location() != ist {
		t.Error("midnight should stay in the source location")
	}
}

func TestMidnightEndOfMonth(t *testing.T) {
	at := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)
	next := nextMidnight(at)
	y, m, d := next.Date()
	if y != 2026 || m != time.February || d != 1 {
		t.Errorf("next midnight date = %04d-%02d-%02d, want 2026-02-01", y, m, d)
	}
}
