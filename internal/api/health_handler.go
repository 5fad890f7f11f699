package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opinari/fieldqc/internal/pkg/httputil"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Uptime string                    `json:"uptime"`
	Checks map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthChecker probes the service's dependencies. Postgres is the only
// critical one; Redis only backs the scheduler locks (Postgres advisory
// locks take over when it is away), so a Redis outage degrades rather than
// fails. Any dependency may be nil and reports "not configured".
type HealthChecker struct {
	db          *sql.DB
	redisClient *redis.Client
	startTime   time.Time
}

// NewHealthChecker creates a new HealthChecker.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client) *HealthChecker {
	return &HealthChecker{
		db:          db,
		redisClient: redisClient,
		startTime:   time.Now(),
	}
}

// HandleHealth returns the health of all components. Always 200; the status
// field conveys health. Probes that need HTTP 503 use /health/ready.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())

	httputil.JSON(w, http.StatusOK, HealthStatus{
		Status: determineOverallStatus(checks),
		Uptime: time.Since(hc.startTime).Round(time.Second).String(),
		Checks: checks,
	})
}

// HandleLiveness answers 200 whenever the process is serving.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(hc.startTime).Round(time.Second).String(),
	})
}

// HandleReadiness answers 200 only when the service can take traffic.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := determineOverallStatus(checks)

	ready := overall != "unhealthy"
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	httputil.JSON(w, status, map[string]interface{}{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	checks := make(map[string]ComponentCheck, 3)

	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, 3)

	go func() { ch <- result{"database", hc.checkDatabase(ctx)} }()
	go func() { ch <- result{"redis", hc.checkRedis(ctx)} }()
	go func() { ch <- result{"workers", hc.checkWorkers(ctx)} }()

	for i := 0; i < 3; i++ {
		r := <-ch
		checks[r.name] = r.check
	}

	return checks
}

// checkDatabase pings PostgreSQL with a 3-second timeout.
func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.db.PingContext(pingCtx)
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{
			Status:  "down",
			Latency: latency.String(),
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}

	status, msg := "up", "connected"
	if latency > time.Second {
		status, msg = "degraded", fmt.Sprintf("slow response (%s)", latency)
	}

	return ComponentCheck{Status: status, Latency: latency.String(), Message: msg}
}

// checkRedis pings Redis with a 2-second timeout.
func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.redisClient == nil {
		return ComponentCheck{Status: "degraded", Message: "not configured, advisory locks in use"}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.redisClient.Ping(pingCtx).Err()
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{
			Status:  "degraded",
			Latency: latency.String(),
			Message: fmt.Sprintf("ping failed, advisory locks in use: %v", err),
		}
	}

	return ComponentCheck{Status: "up", Latency: latency.String(), Message: "connected"}
}

// checkWorkers reports scheduler liveness from heartbeat rows. A heartbeat
// older than two intervals counts as stale.
func (hc *HealthChecker) checkWorkers(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}

	queryCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var active, stale int
	err := hc.db.QueryRowContext(queryCtx, `
		SELECT
			COUNT(*) FILTER (WHERE last_heartbeat > NOW() - INTERVAL '60 seconds'),
			COUNT(*) FILTER (WHERE last_heartbeat <= NOW() - INTERVAL '60 seconds')
		FROM qc_workers
		WHERE status = 'active'`).Scan(&active, &stale)
	if err != nil {
		return ComponentCheck{Status: "down", Message: fmt.Sprintf("heartbeat query failed: %v", err)}
	}

	switch {
	case active == 0 && stale == 0:
		return ComponentCheck{Status: "degraded", Message: "no scheduler workers registered"}
	case active == 0:
		return ComponentCheck{Status: "degraded", Message: fmt.Sprintf("%d workers registered, all heartbeats stale", stale)}
	case stale > 0:
		return ComponentCheck{Status: "up", Message: fmt.Sprintf("%d active, %d stale", active, stale)}
	default:
		return ComponentCheck{Status: "up", Message: fmt.Sprintf("%d active", active)}
	}
}

// determineOverallStatus folds component checks into one verdict. The
// database is the only critical component.
func determineOverallStatus(checks map[string]ComponentCheck) string {
	if db, ok := checks["database"]; ok && db.Status == "down" {
		return "unhealthy"
	}
	for _, c := range checks {
		if c.Status != "up" {
			return "degraded"
		}
	}
	return "healthy"
}
