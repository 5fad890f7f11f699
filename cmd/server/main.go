package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/opinari/fieldqc/internal/api"
	"github.com/opinari/fieldqc/internal/config"
	"github.com/opinari/fieldqc/internal/pkg/distlock"
	"github.com/opinari/fieldqc/internal/pkg/logger"
	"github.com/opinari/fieldqc/internal/repository/postgres"
	"github.com/opinari/fieldqc/internal/service/batching"
	"github.com/opinari/fieldqc/internal/service/dispatch"
	"github.com/opinari/fieldqc/internal/service/qcconfig"
	"github.com/opinari/fieldqc/internal/service/sampling"
	"github.com/opinari/fieldqc/internal/service/verification"
	"github.com/opinari/fieldqc/internal/worker"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

// openDatabase connects the pool with the configured limits and verifies
// the connection.
func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime())
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime())

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

// connectRedis builds the Redis client for distributed scheduler locks.
// Returns nil when Redis is unconfigured or unreachable; the lock layer
// falls back to Postgres advisory locks.
func connectRedis(cfg config.RedisConfig) *redis.Client {
	var client *redis.Client
	switch {
	case cfg.URL != "":
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			log.Printf("Warning: invalid Redis URL (%v), treating as plain address", err)
			client = redis.NewClient(&redis.Options{Addr: cfg.URL})
		} else {
			client = redis.NewClient(opts)
		}
	case cfg.Addr != "":
		client = redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	default:
		log.Println("Redis not configured, using PG advisory locks for scheduler exclusivity")
		return nil
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("Warning: Redis connection failed: %v, falling back to PG advisory locks", err)
		client.Close()
		return nil
	}

	log.Println("Redis connected (distributed locking enabled)")
	return client
}

func main() {
	log.Println("Starting FieldQC server (API + embedded schedulers)")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logger.DEBUG)
	}

	// Pre-flight check: verify the target port is available
	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

	db, err := openDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	redisClient := connectRedis(cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Repositories
	batchingRepo := postgres.NewBatchingRepo(db)
	samplingRepo := postgres.NewSamplingRepo(db)
	dispatchRepo := postgres.NewDispatchRepo(db)
	verificationRepo := postgres.NewVerificationRepo(db)
	configRepo := postgres.NewConfigRepo(db)
	responseStore := postgres.NewResponseStore(db)
	batchStore := postgres.NewBatchStore(db)

	// Services
	configSvc := qcconfig.NewService(configRepo, cfg.QC.FallbackSamplePercentage, cfg.QC.ConfigCacheTTL())
	samplingSvc := sampling.NewService(samplingRepo, configSvc)
	engine := batching.NewEngine(batchingRepo, samplingSvc, cfg.QC.BatchCapacity, cfg.QC.SealLocation())
	dispatchSvc := dispatch.NewService(dispatchRepo, cfg.QC.LeaseDuration(), cfg.QC.ViewRefreshInterval())
	verificationSvc := verification.NewService(verificationRepo, samplingSvc)

	// Embedded scheduler workers. Each task takes a distributed lock so
	// extra server or worker instances coexist without double-processing.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dailySealer := worker.NewDailySealer(samplingSvc,
		distlock.NewLock(redisClient, db, "fieldqc:daily_seal", 10*time.Minute), cfg.QC.SealLocation())
	viewRefresher := worker.NewViewRefresher(db,
		distlock.NewLock(redisClient, db, "fieldqc:view_refresh", 30*time.Second), cfg.QC.ViewRefreshInterval())
	leaseGC := worker.NewLeaseGC(db,
		distlock.NewLock(redisClient, db, "fieldqc:lease_gc", time.Minute), cfg.QC.LeaseGCInterval())
	evalSweep := worker.NewEvalSweep(samplingSvc,
		distlock.NewLock(redisClient, db, "fieldqc:eval_sweep", 5*time.Minute), cfg.QC.EvalSweepInterval())
	registry := worker.NewRegistry(db, "server")

	go registry.Start(ctx)
	go dailySealer.Start(ctx)
	go viewRefresher.Start(ctx)
	go leaseGC.Start(ctx)
	go evalSweep.Start(ctx)
	log.Printf("Schedulers started: daily seal (tz %q), view refresh (%s), lease GC (%s), eval sweep (%s)",
		cfg.QC.DailySealTimezone, cfg.QC.ViewRefreshInterval(), cfg.QC.LeaseGCInterval(), cfg.QC.EvalSweepInterval())

	// API
	handlers := api.NewHandlers(engine, dispatchSvc, verificationSvc, configSvc, responseStore, batchStore)
	handlers.SetBatchSealer(samplingSvc)
	handlers.SetSealRunner(dailySealer)
	handlers.SetBatchEvaluator(samplingSvc)

	health := api.NewHealthChecker(db, redisClient)
	server := api.NewServer(handlers, health, cfg.Server.DevMode)

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		log.Printf("Server listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	// Stop schedulers first so no new work starts during drain
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
