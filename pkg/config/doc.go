// Package config provides configuration management for the tilerealm server.
//
// This package handles environment variable loading with type-safe parsing,
// applies secure production defaults, and performs extensive validation of
// all configuration values.
//
// # Loading Configuration
//
// Configuration is loaded from environment variables (names carry no prefix):
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Environment Variables
//
// Server settings:
//   - SERVER_PORT: HTTP port (default: 8080)
//   - WEB_DIR: Static file directory (default: "./web")
//   - LOG_LEVEL: Logging verbosity (default: "info")
//
// Timeouts:
//   - SESSION_TIMEOUT: Session inactivity timeout (default: 30m)
//   - REQUEST_TIMEOUT: HTTP request timeout (default: 30s)
//
// Security:
//   - ENABLE_DEV_MODE: Enable development mode (default: true)
//   - ALLOWED_ORIGINS: CORS allowed origins (comma-separated)
//   - MAX_REQUEST_SIZE: Maximum request body size (default: 1MB)
//
// Rate limiting:
//   - RATE_LIMIT_REQUESTS_PER_SECOND: Requests per second (default: 5)
//   - RATE_LIMIT_BURST: Burst allowance (default: 10)
//
// Retry policy:
//   - RETRY_MAX_ATTEMPTS: Maximum attempts (default: 3)
//   - RETRY_INITIAL_DELAY: First retry delay (default: 100ms)
//   - RETRY_MAX_DELAY: Maximum retry delay (default: 30s)
//   - RETRY_BACKOFF_MULTIPLIER: Backoff factor (default: 2.0)
//
// Persistence:
//   - DATA_DIR: Data storage directory (default: "./data")
//   - AUTO_SAVE_INTERVAL: Auto-save frequency (default: 30s)
//
// # Validation
//
// All configuration values are validated on load:
//   - Port must be in valid range (1-65535)
//   - Timeouts must meet minimum requirements
//   - Rate limit values must be positive
//   - Retry configuration must be sensible
//
// # CORS Support
//
// Use OriginAllowed to check WebSocket origins:
//
//	if cfg.OriginAllowed(origin) {
//	    // Allow connection
//	}
//
// In development mode (EnableDevMode=true), all origins are allowed.
//
// # Retry Configuration
//
// GetRetryConfig returns a retry.RetryConfig that can be used directly
// with the retry package:
//
//	retryConfig := cfg.GetRetryConfig()
//	retrier := retry.NewRetrier(retryConfig)
package config
