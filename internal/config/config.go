package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	QC       QCConfig       `yaml:"qc"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port    int    `yaml:"port"`
	Host    string `yaml:"host"`
	DevMode bool   `yaml:"dev_mode"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// Inside a container/orchestrator, listen on all interfaces
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" || os.Getenv("CONTAINER") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	ConnMaxIdleSeconds     int    `yaml:"conn_max_idle_seconds"`
}

// ConnMaxLifetime returns the configured connection lifetime as a duration
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

// ConnMaxIdleTime returns the configured idle timeout as a duration
func (c DatabaseConfig) ConnMaxIdleTime() time.Duration {
	return time.Duration(c.ConnMaxIdleSeconds) * time.Second
}

// RedisConfig holds Redis connection configuration. Redis backs the
// distributed scheduler locks; when absent, Postgres advisory locks are used.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// QCConfig holds the quality-control pipeline tunables
type QCConfig struct {
	BatchCapacity            int    `yaml:"batch_capacity"`
	LeaseDurationMinutes     int    `yaml:"lease_duration_minutes"`
	ViewRefreshSeconds       int    `yaml:"view_refresh_seconds"`
	LeaseGCIntervalSeconds   int    `yaml:"lease_gc_interval_seconds"`
	EvalSweepIntervalSeconds int    `yaml:"eval_sweep_interval_seconds"`
	DailySealTimezone        string `yaml:"daily_seal_timezone"`
	FallbackSamplePercentage int    `yaml:"fallback_sample_percentage"`
	ConfigCacheTTLSeconds    int    `yaml:"config_cache_ttl_seconds"`
}

// LeaseDuration returns the lease exclusivity window as a duration
func (c QCConfig) LeaseDuration() time.Duration {
	return time.Duration(c.LeaseDurationMinutes) * time.Minute
}

// ViewRefreshInterval returns the assignment-view refresh cadence
func (c QCConfig) ViewRefreshInterval() time.Duration {
	return time.Duration(c.ViewRefreshSeconds) * time.Second
}

// LeaseGCInterval returns the expired-lease sweep cadence
func (c QCConfig) LeaseGCInterval() time.Duration {
	return time.Duration(c.LeaseGCIntervalSeconds) * time.Second
}

// EvalSweepInterval returns the batch re-evaluation cadence
func (c QCConfig) EvalSweepInterval() time.Duration {
	return time.Duration(c.EvalSweepIntervalSeconds) * time.Second
}

// ConfigCacheTTL returns how long resolved QC configs may be cached
func (c QCConfig) ConfigCacheTTL() time.Duration {
	return time.Duration(c.ConfigCacheTTLSeconds) * time.Second
}

// SealLocation resolves the timezone the daily seal fires in. An empty or
// invalid name falls back to the system timezone.
func (c QCConfig) SealLocation() *time.Location {
	if c.DailySealTimezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.DailySealTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 3
	}
	if cfg.Database.ConnMaxLifetimeMinutes == 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 5
	}
	if cfg.Database.ConnMaxIdleSeconds == 0 {
		cfg.Database.ConnMaxIdleSeconds = 30
	}
	if cfg.QC.BatchCapacity == 0 {
		cfg.QC.BatchCapacity = 100
	}
	if cfg.QC.LeaseDurationMinutes == 0 {
		cfg.QC.LeaseDurationMinutes = 30
	}
	if cfg.QC.ViewRefreshSeconds == 0 {
		cfg.QC.ViewRefreshSeconds = 10
	}
	if cfg.QC.LeaseGCIntervalSeconds == 0 {
		cfg.QC.LeaseGCIntervalSeconds = 60
	}
	if cfg.QC.EvalSweepIntervalSeconds == 0 {
		cfg.QC.EvalSweepIntervalSeconds = 300
	}
	if cfg.QC.FallbackSamplePercentage < 1 || cfg.QC.FallbackSamplePercentage > 100 {
		cfg.QC.FallbackSamplePercentage = 40
	}
	if cfg.QC.ConfigCacheTTLSeconds < 1 || cfg.QC.ConfigCacheTTLSeconds > 60 {
		cfg.QC.ConfigCacheTTLSeconds = 60
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so local development keeps secrets in .env and deployments use real env vars.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Database override (critical for deployments where config.yaml has local defaults)
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		cfg.Redis.Addr = redisAddr
	}

	// QC pipeline overrides (the recognized operational set)
	if v, ok := envInt("BATCH_CAPACITY"); ok && v > 0 {
		cfg.QC.BatchCapacity = v
	}
	if v, ok := envInt("LEASE_DURATION_MIN"); ok && v > 0 {
		cfg.QC.LeaseDurationMinutes = v
	}
	if v, ok := envInt("VIEW_REFRESH_SEC"); ok && v > 0 {
		cfg.QC.ViewRefreshSeconds = v
	}
	if v, ok := envInt("LEASE_GC_INTERVAL_SEC"); ok && v > 0 {
		cfg.QC.LeaseGCIntervalSeconds = v
	}
	if tz := os.Getenv("DAILY_SEAL_TZ"); tz != "" {
		cfg.QC.DailySealTimezone = tz
	}
	if v, ok := envInt("FALLBACK_SAMPLE_PERCENTAGE"); ok && v >= 1 && v <= 100 {
		cfg.QC.FallbackSamplePercentage = v
	}

	return cfg, nil
}

func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
