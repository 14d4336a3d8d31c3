package config

import (
	"encoding/json"
	"os"

	"github.com/avetisov/docpilot/internal/flagx"
	"github.com/avetisov/docpilot/internal/timex"
)

// jsonConfig is a DTO used exclusively for JSON unmarshalling. Durations may
// be given as strings like "30s" or as integer nanoseconds.
type jsonConfig struct {
	APIBaseURL         *string         `json:"api_base_url"`
	DatabasePath       *string         `json:"database_path"`
	RequestTimeout     *timex.Duration `json:"request_timeout"`
	TransferTimeout    *timex.Duration `json:"transfer_timeout"`
	MultipartThreshold *int64          `json:"multipart_threshold"`
	MaxConcurrent      *int64          `json:"max_concurrent"`
	BatchSize          *int            `json:"batch_size"`
	MaxAttempts        *int            `json:"max_attempts"`
	RetryBaseDelay     *timex.Duration `json:"retry_base_delay"`
	HashTimeout        *timex.Duration `json:"hash_timeout"`
	LogLevel           *string         `json:"log_level"`
}

// parseJSON overlays cfg with values from the JSON file named by -c/-config,
// if any. Only fields present in the file are copied, so defaults survive.
func parseJSON(cfg *Config) {
	path := flagx.JSONConfigFlags()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.APIBaseURL != nil {
		cfg.APIBaseURL = *jc.APIBaseURL
	}
	if jc.DatabasePath != nil {
		cfg.DatabasePath = *jc.DatabasePath
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.TransferTimeout != nil {
		cfg.TransferTimeout = jc.TransferTimeout.Duration
	}
	if jc.MultipartThreshold != nil {
		cfg.MultipartThreshold = *jc.MultipartThreshold
	}
	if jc.MaxConcurrent != nil {
		cfg.MaxConcurrent = *jc.MaxConcurrent
	}
	if jc.BatchSize != nil {
		cfg.BatchSize = *jc.BatchSize
	}
	if jc.MaxAttempts != nil {
		cfg.MaxAttempts = *jc.MaxAttempts
	}
	if jc.RetryBaseDelay != nil {
		cfg.RetryBaseDelay = jc.RetryBaseDelay.Duration
	}
	if jc.HashTimeout != nil {
		cfg.HashTimeout = jc.HashTimeout.Duration
	}
	if jc.LogLevel != nil {
		cfg.LogLevel = *jc.LogLevel
	}
}
