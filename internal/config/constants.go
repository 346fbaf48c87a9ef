package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts. Broadcast sends are sequential, so the request timeout
// is generous.
const (
	ServerRequestTimeout  = 10 * time.Minute
	ServerReadTimeout     = 30 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Migration timeout on startup
const MigrationTimeout = 60 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Used passcodes are kept this long before the cleanup job removes them
const UsedPasscodeRetention = 24 * time.Hour

// Per-IP limits for the public auth endpoints
const (
	AuthIPRateLimit  = 30
	AuthIPRateWindow = time.Minute
)

// Passcode length in digits
const PasscodeLength = 6
