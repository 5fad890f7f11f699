package worker

import (
	"context"
	"log"
	"time"

	"github.com/opinari/fieldqc/internal/pkg/distlock"
	"github.com/opinari/fieldqc/internal/service/sampling"
)

// =============================================================================
// DAILY SEALER — Closes Out Yesterday's Collecting Batches
// =============================================================================
// Batches that never reach capacity would otherwise collect forever. At local
// midnight every batch opened on a previous logical day is sealed, which draws
// its sample and hands it to review. The sweep also runs once at boot so
// batches stranded by a restart are sealed without waiting a day.

const sealSweepPasses = 20

// Sealer is the slice of the sampling service the daily sealer drives.
type Sealer interface {
	CollectingIDsBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	SealBatch(ctx context.Context, batchID string) error
}

// DailySealer seals stale collecting batches at midnight in the configured
// timezone. The distributed lock keeps the sweep on a single instance.
type DailySealer struct {
	sealer Sealer
	lock   distlock.DistLock
	loc    *time.Location
}

func NewDailySealer(sealer Sealer, lock distlock.DistLock, loc *time.Location) *DailySealer {
	if loc == nil {
		loc = time.UTC
	}
	return &DailySealer{sealer: sealer, lock: lock, loc: loc}
}

// Start blocks until ctx is cancelled, sealing at each local midnight.
func (ds *DailySealer) Start(ctx context.Context) {
	log.Printf("[DailySealer] Starting (timezone=%s)", ds.loc.String())

	// Catch-up pass for batches left collecting across a restart.
	ds.RunOnce(ctx)

	for {
		next := nextMidnight(time.Now().In(ds.loc))
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			log.Printf("[DailySealer] Stopping")
			return
		case <-timer.C:
			ds.RunOnce(ctx)
		}
	}
}

// RunOnce seals every batch whose collection day has passed. Returns the
// number of batches sealed by this instance; zero with a held lock elsewhere
// is normal.
func (ds *DailySealer) RunOnce(ctx context.Context) int {
	var sealed int

	ran, err := distlock.RunExclusive(ctx, ds.lock, func(ctx context.Context) error {
		cutoff := midnightOf(time.Now().In(ds.loc))

		for pass := 0; pass < sealSweepPasses; pass++ {
			ids, err := ds.sealer.CollectingIDsBefore(ctx, cutoff)
			if err != nil {
				log.Printf("[DailySealer] Failed to list stale batches: %v", err)
				return err
			}
			if len(ids) == 0 {
				return nil
			}

			progress := 0
			for _, id := range ids {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				switch err := ds.sealer.SealBatch(ctx, id); err {
				case nil:
					sealed++
					progress++
				case sampling.ErrAlreadySealed:
					// Another path (capacity seal, competing sweep) won.
					progress++
				case sampling.ErrEmptyBatch:
					// An empty container left by a crashed append. It stays
					// collecting until it has responses to sample.
				default:
					log.Printf("[DailySealer] Failed to seal batch %s: %v", id, err)
				}
			}
			if progress == 0 {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[DailySealer] Seal sweep aborted: %v", err)
		return sealed
	}
	if !ran {
		log.Printf("[DailySealer] Another instance holds the seal lock, skipping")
		return 0
	}
	if sealed > 0 {
		log.Printf("[DailySealer] Sealed %d batches", sealed)
	}
	return sealed
}

// nextMidnight returns the first instant of the next day in t's location.
// time.Date normalizes the day overflow, which also handles DST days where
// midnight shifts.
func nextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// midnightOf returns the first instant of t's day in t's location.
func midnightOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
