package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/opinari/fieldqc/internal/config"
	"github.com/opinari/fieldqc/internal/pkg/distlock"
	"github.com/opinari/fieldqc/internal/pkg/logger"
	"github.com/opinari/fieldqc/internal/repository/postgres"
	"github.com/opinari/fieldqc/internal/service/qcconfig"
	"github.com/opinari/fieldqc/internal/service/sampling"
	"github.com/opinari/fieldqc/internal/worker"
)

// Standalone scheduler binary. Runs only the background tasks (daily seal,
// view refresh, lease GC, eval sweep) so API nodes can be scaled separately
// from the scheduling tier. Safe to run alongside servers that embed the
// same tasks: every task is guarded by a distributed lock.
func main() {
	log.Println("Starting FieldQC worker (schedulers only)")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logger.DEBUG)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime())
	db.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime())

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Failed to ping database: %v", err)
	}
	pingCancel()
	log.Println("Connected to database")

	var redisClient *redis.Client
	if cfg.Redis.URL != "" || cfg.Redis.Addr != "" {
		if cfg.Redis.URL != "" {
			if opts, err := redis.ParseURL(cfg.Redis.URL); err == nil {
				redisClient = redis.NewClient(opts)
			} else {
				redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.URL})
			}
		} else {
			redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		}
		pingCtx, pingCancel = context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: Redis connection failed: %v, falling back to PG advisory locks", err)
			redisClient.Close()
			redisClient = nil
		}
		pingCancel()
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	configSvc := qcconfig.NewService(postgres.NewConfigRepo(db), cfg.QC.FallbackSamplePercentage, cfg.QC.ConfigCacheTTL())
	samplingSvc := sampling.NewService(postgres.NewSamplingRepo(db), configSvc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := worker.NewRegistry(db, "worker")
	dailySealer := worker.NewDailySealer(samplingSvc,
		distlock.NewLock(redisClient, db, "fieldqc:daily_seal", 10*time.Minute), cfg.QC.SealLocation())
	viewRefresher := worker.NewViewRefresher(db,
		distlock.NewLock(redisClient, db, "fieldqc:view_refresh", 30*time.Second), cfg.QC.ViewRefreshInterval())
	leaseGC := worker.NewLeaseGC(db,
		distlock.NewLock(redisClient, db, "fieldqc:lease_gc", time.Minute), cfg.QC.LeaseGCInterval())
	evalSweep := worker.NewEvalSweep(samplingSvc,
		distlock.NewLock(redisClient, db, "fieldqc:eval_sweep", 5*time.Minute), cfg.QC.EvalSweepInterval())

	go registry.Start(ctx)
	go dailySealer.Start(ctx)
	go viewRefresher.Start(ctx)
	go leaseGC.Start(ctx)
	go evalSweep.Start(ctx)

	log.Printf("Worker %s running: daily seal (tz %q), view refresh (%s), lease GC (%s), eval sweep (%s)",
		registry.WorkerID(), cfg.QC.DailySealTimezone,
		cfg.QC.ViewRefreshInterval(), cfg.QC.LeaseGCInterval(), cfg.QC.EvalSweepInterval())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()

	// Give in-flight passes a moment to release their locks
	time.Sleep(2 * time.Second)
	log.Println("Worker stopped")
}
