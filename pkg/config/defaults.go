package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "slotcore"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Lock leases bound how long a claimant may sit on a key without
	// renewing. Acquire gives up after the acquire timeout and reports Busy.
	DefaultLockLeaseDefault   = 30 * time.Second
	DefaultLockLeaseMax       = 10 * time.Minute
	DefaultLockAcquireTimeout = 3 * time.Second

	DefaultHoldTTLDefault = 5 * time.Minute
	DefaultHoldTTLMax     = 30 * time.Minute
	DefaultSweepInterval  = 15 * time.Second
	DefaultSweepBatchSize = 100

	DefaultCacheTTL            = 2 * time.Minute
	DefaultCacheDebounceWindow = 500 * time.Millisecond

	DefaultSubscriberQueueSize = 64

	// All classes fall back to first-come-first-serve unless the operator
	// maps them otherwise, e.g. "massage=priority,gym=arbitration,default=fcfs".
	DefaultConflictStrategyTable = "default=fcfs"

	DefaultPaginationLimit = 100
)
