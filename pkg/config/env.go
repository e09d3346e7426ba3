package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvLockLeaseDefault   = "LOCK_LEASE_DEFAULT"
	EnvLockLeaseMax       = "LOCK_LEASE_MAX"
	EnvLockAcquireTimeout = "LOCK_ACQUIRE_TIMEOUT"

	EnvHoldTTLDefault  = "HOLD_TTL_DEFAULT"
	EnvHoldTTLMax      = "HOLD_TTL_MAX"
	EnvSweepInterval   = "SWEEP_INTERVAL"
	EnvSweepBatchSize  = "SWEEP_BATCH_SIZE"

	EnvCacheTTL            = "CACHE_TTL"
	EnvCacheDebounceWindow = "CACHE_DEBOUNCE_WINDOW"

	EnvSubscriberQueueSize = "SUBSCRIBER_QUEUE_SIZE"

	EnvConflictStrategyTable = "CONFLICT_STRATEGY_TABLE"
)
