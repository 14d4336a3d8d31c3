// Package config holds runtime settings for the upload engine and layers
// them from defaults, an optional JSON file, environment variables and
// command-line flags — later sources win.
package config

import "time"

type Config struct {
	// APIBaseURL is the root of the metadata service, e.g.
	// "https://app.example.com/api".
	APIBaseURL string

	// APIToken is the bearer credential attached to every metadata call.
	// Supplied externally; this engine never mints or refreshes it.
	APIToken string

	// DatabasePath is the SQLite file holding resumable upload sessions.
	DatabasePath string

	// RequestTimeout bounds every metadata-service call.
	RequestTimeout time.Duration

	// TransferTimeout bounds a single PUT to object storage. Parts and
	// whole small files each get their own budget.
	TransferTimeout time.Duration

	// MultipartThreshold routes files at or above this size (bytes)
	// through the multipart path. Configurable because storage providers
	// differ in minimum part sizes.
	MultipartThreshold int64

	// MaxConcurrent caps simultaneously in-flight transfers, globally.
	MaxConcurrent int64

	// BatchSize groups files into batches; all batches run concurrently.
	BatchSize int

	// MaxAttempts is the total attempt budget per network operation.
	MaxAttempts int

	// RetryBaseDelay is the first backoff delay; it doubles per attempt.
	RetryBaseDelay time.Duration

	// HashTimeout bounds content hashing, independent of network timeouts.
	HashTimeout time.Duration

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

func (c *Config) LoadDefaults() {
	c.APIBaseURL = "http://127.0.0.1:8080/api"
	c.DatabasePath = "docpilot-uploads.db"
	c.RequestTimeout = 30 * time.Second
	c.TransferTimeout = 5 * time.Minute
	c.MultipartThreshold = 100 << 20
	c.MaxConcurrent = 4
	c.BatchSize = 5
	c.MaxAttempts = 4
	c.RetryBaseDelay = 500 * time.Millisecond
	c.HashTimeout = 30 * time.Second
	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present), environment and command-line flags, in that order.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJSON(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
