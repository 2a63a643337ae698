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

	EnvBibRanges           = "BIB_RANGES"
	EnvBibRangesFile       = "BIB_RANGES_FILE"
	EnvBibMaxAttempts      = "BIB_MAX_ATTEMPTS"
	EnvBibRetryBackoff     = "BIB_RETRY_BACKOFF"
	EnvRepairRatePerSecond = "REPAIR_RATE_PER_SECOND"
	EnvPickupTokenKey      = "PICKUP_TOKEN_KEY"
)
