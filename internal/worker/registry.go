package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"
)

// DefaultHeartbeatInterval is how often a registered worker refreshes its
// qc_workers row. The health endpoint treats a worker as live while its
// heartbeat is younger than three intervals.
const DefaultHeartbeatInterval = 30 * time.Second

// Registry keeps one qc_workers row per process alive. The row is how
// operators (and the readiness probe) see which scheduler instances exist
// and whether they are still breathing.
type Registry struct {
	db        *sql.DB
	workerID  string
	interval  time.Duration
	startedAt time.Time
}

func NewRegistry(db *sql.DB, name string) *Registry {
	hostname := getHostname()
	return &Registry{
		db:       db,
		workerID: fmt.Sprintf("%s-%s-%d", name, hostname, os.Getpid()),
		interval: DefaultHeartbeatInterval,
	}
}

// WorkerID returns the process's registry identity.
func (r *Registry) WorkerID() string {
	return r.workerID
}

// Start registers the worker and blocks heartbeating until ctx is cancelled,
// then marks the row stopped.
func (r *Registry) Start(ctx context.Context) {
	r.register(ctx)
	log.Printf("[Registry] Registered worker %s (heartbeat every %s)", r.workerID, r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.deregister()
			log.Printf("[Registry] Deregistered worker %s", r.workerID)
			return
		case <-ticker.C:
			r.heartbeat(ctx)
		}
	}
}

func (r *Registry) register(ctx context.Context) {
	r.startedAt = time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO qc_workers (id, hostname, pid, status, started_at, last_heartbeat)
		VALUES ($1, $2, $3, 'active', NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET status = 'active', started_at = NOW(), last_heartbeat = NOW()
	`, r.workerID, getHostname(), os.Getpid())
	if err != nil {
		log.Printf("[Registry] Failed to register worker %s: %v", r.workerID, err)
	}
}

func (r *Registry) heartbeat(ctx context.Context) {
	_, err := r.db.ExecContext(ctx, `
		UPDATE qc_workers SET last_heartbeat = NOW(), status = 'active' WHERE id = $1
	`, r.workerID)
	if err != nil {
		log.Printf("[Registry] Heartbeat failed for %s: %v", r.workerID, err)
	}
}

func (r *Registry) deregister() {
	// ctx is already cancelled by the time we get here.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `
		UPDATE qc_workers SET status = 'stopped', last_heartbeat = NOW() WHERE id = $1
	`, r.workerID)
	if err != nil {
		log.Printf("[Registry] Failed to deregister worker %s: %v", r.workerID, err)
	}
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
