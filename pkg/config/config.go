package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"slotcore/pkg/client"
	"slotcore/pkg/logger"
	"slotcore/pkg/model"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	Port string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	LockLeaseDefault   time.Duration
	LockLeaseMax       time.Duration
	LockAcquireTimeout time.Duration

	HoldTTLDefault time.Duration
	HoldTTLMax     time.Duration
	SweepInterval  time.Duration
	SweepBatchSize int

	CacheTTL            time.Duration
	CacheDebounceWindow time.Duration

	SubscriberQueueSize int

	// ConflictStrategies maps resource class to resolution strategy. The
	// "default" entry applies to unmapped classes.
	ConflictStrategies map[string]string

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		Port: getEnvStr(EnvPort, DefaultPort),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		LockLeaseDefault:   getEnvDuration(EnvLockLeaseDefault, DefaultLockLeaseDefault),
		LockLeaseMax:       getEnvDuration(EnvLockLeaseMax, DefaultLockLeaseMax),
		LockAcquireTimeout: getEnvDuration(EnvLockAcquireTimeout, DefaultLockAcquireTimeout),

		HoldTTLDefault: getEnvDuration(EnvHoldTTLDefault, DefaultHoldTTLDefault),
		HoldTTLMax:     getEnvDuration(EnvHoldTTLMax, DefaultHoldTTLMax),
		SweepInterval:  getEnvDuration(EnvSweepInterval, DefaultSweepInterval),
		SweepBatchSize: getEnvNum(EnvSweepBatchSize, DefaultSweepBatchSize),

		CacheTTL:            getEnvDuration(EnvCacheTTL, DefaultCacheTTL),
		CacheDebounceWindow: getEnvDuration(EnvCacheDebounceWindow, DefaultCacheDebounceWindow),

		SubscriberQueueSize: getEnvNum(EnvSubscriberQueueSize, DefaultSubscriberQueueSize),

		ConflictStrategies: parseStrategyTable(getEnvStr(EnvConflictStrategyTable, DefaultConflictStrategyTable)),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

// StrategyFor resolves the configured conflict strategy for a resource class.
func (cfg *Config) StrategyFor(class string) string {
	if s, ok := cfg.ConflictStrategies[class]; ok {
		return s
	}
	if s, ok := cfg.ConflictStrategies["default"]; ok {
		return s
	}
	return model.StrategyFirstComeFirstServe
}

var validStrategies = map[string]bool{
	model.StrategyFirstComeFirstServe: true,
	model.StrategyLastWins:            true,
	model.StrategyPriorityBased:       true,
	model.StrategyRollbackAll:         true,
	model.StrategyConsensus:           true,
	model.StrategyArbitration:         true,
	model.StrategyAdminIntervention:   true,
}

func parseStrategyTable(raw string) map[string]string {
	table := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		table[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return table
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errors = append(errors, "MongoURI cannot be empty")
	} else if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", cfg.MongoURI))
	}

	if cfg.MongoDatabaseName == "" {
		errors = append(errors, "MongoDatabaseName cannot be empty")
	}

	for name, d := range map[string]time.Duration{
		"MongoConnTimeout":    cfg.MongoConnTimeout,
		"RateLimitWindow":     cfg.RateLimitWindow,
		"RequestTimeout":      cfg.RequestTimeout,
		"IdempotencyTTL":      cfg.IdempotencyTTL,
		"ReadTimeout":         cfg.ReadTimeout,
		"WriteTimeout":        cfg.WriteTimeout,
		"IdleTimeout":         cfg.IdleTimeout,
		"ShutdownTimeout":     cfg.ShutdownTimeout,
		"LockLeaseDefault":    cfg.LockLeaseDefault,
		"LockLeaseMax":        cfg.LockLeaseMax,
		"LockAcquireTimeout":  cfg.LockAcquireTimeout,
		"HoldTTLDefault":      cfg.HoldTTLDefault,
		"HoldTTLMax":          cfg.HoldTTLMax,
		"SweepInterval":       cfg.SweepInterval,
		"CacheTTL":            cfg.CacheTTL,
		"CacheDebounceWindow": cfg.CacheDebounceWindow,
	} {
		if d <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %s", name, d))
		}
	}

	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.SweepBatchSize <= 0 {
		errors = append(errors, fmt.Sprintf("SweepBatchSize must be positive, got: %d", cfg.SweepBatchSize))
	}
	if cfg.SubscriberQueueSize <= 0 {
		errors = append(errors, fmt.Sprintf("SubscriberQueueSize must be positive, got: %d", cfg.SubscriberQueueSize))
	}

	if cfg.LockLeaseDefault > cfg.LockLeaseMax {
		errors = append(errors, fmt.Sprintf("LockLeaseDefault (%s) must be <= LockLeaseMax (%s)", cfg.LockLeaseDefault, cfg.LockLeaseMax))
	}
	if cfg.HoldTTLDefault > cfg.HoldTTLMax {
		errors = append(errors, fmt.Sprintf("HoldTTLDefault (%s) must be <= HoldTTLMax (%s)", cfg.HoldTTLDefault, cfg.HoldTTLMax))
	}

	for class, strategy := range cfg.ConflictStrategies {
		if !validStrategies[strategy] {
			errors = append(errors, fmt.Sprintf("unknown conflict strategy %q for resource class %q", strategy, class))
		}
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"port", cfg.Port,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"lock_lease_default", cfg.LockLeaseDefault,
		"lock_lease_max", cfg.LockLeaseMax,
		"lock_acquire_timeout", cfg.LockAcquireTimeout,
		"hold_ttl_default", cfg.HoldTTLDefault,
		"hold_ttl_max", cfg.HoldTTLMax,
		"sweep_interval", cfg.SweepInterval,
		"sweep_batch_size", cfg.SweepBatchSize,
		"cache_ttl", cfg.CacheTTL,
		"cache_debounce_window", cfg.CacheDebounceWindow,
		"subscriber_queue_size", cfg.SubscriberQueueSize,
		"conflict_strategies", cfg.ConflictStrategies,
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown()
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
