package api

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/opinari/fieldqc/internal/pkg/httputil"
)

// Counters tracks in-process review activity. Counts reset on restart;
// they are operational signals, not accounting.
type Counters struct {
	dispatched int64
	released   int64
	skipped    int64
	verified   int64
}

func (c *Counters) IncDispatched() { atomic.AddInt64(&c.dispatched, 1) }
func (c *Counters) IncReleased()   { atomic.AddInt64(&c.released, 1) }
func (c *Counters) IncSkipped()    { atomic.AddInt64(&c.skipped, 1) }
func (c *Counters) IncVerified()   { atomic.AddInt64(&c.verified, 1) }

// CounterSnapshot is a point-in-time read of the activity counters.
type CounterSnapshot struct {
	Dispatched int64 `json:"dispatched"`
	Released   int64 `json:"released"`
	Skipped    int64 `json:"skipped"`
	Verified   int64 `json:"verified"`
}

// Snapshot reads every counter.
func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Dispatched: atomic.LoadInt64(&c.dispatched),
		Released:   atomic.LoadInt64(&c.released),
		Skipped:    atomic.LoadInt64(&c.skipped),
		Verified:   atomic.LoadInt64(&c.verified),
	}
}

// HandleSystemStatus reports process uptime, lease settings, and review
// activity since start.
//
//	GET /api/system/status
func (h *Handlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"uptime":         time.Since(h.startTime).Round(time.Second).String(),
		"lease_duration": h.dispatcher.LeaseDuration().String(),
		"counters":       h.counters.Snapshot(),
	})
}
