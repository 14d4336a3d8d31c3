package config

import (
	"flag"
	"os"
	"time"

	"github.com/avetisov/docpilot/internal/flagx"
)

// parseEnv overlays cfg with environment variables. The token in particular
// should come from the environment rather than the command line.
func parseEnv(cfg *Config) {
	if v := os.Getenv("UPLOADER_API_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("UPLOADER_API_TOKEN"); v != "" {
		cfg.APIToken = v
	}
	if v := os.Getenv("UPLOADER_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}
}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string        metadata service base URL
//	-d string        sqlite database path
//	-threshold int   multipart threshold in bytes
//	-parallel int    global in-flight transfer cap
//	-batch int       batch size
//	-retries int     attempts per network operation
//	-timeout int     per-request timeout in seconds
//	-v string        log level
//
// os.Args is filtered through flagx.FilterArgs so flags owned by the CLI
// commands do not interfere.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-d", "-threshold", "-parallel", "-batch", "-retries", "-timeout", "-v",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.APIBaseURL, "a", cfg.APIBaseURL, "metadata service base URL")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "sqlite database path")
	fs.Int64Var(&cfg.MultipartThreshold, "threshold", cfg.MultipartThreshold, "multipart threshold in bytes")
	fs.Int64Var(&cfg.MaxConcurrent, "parallel", cfg.MaxConcurrent, "max simultaneously in-flight transfers")
	fs.IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "transfer batch size")
	fs.IntVar(&cfg.MaxAttempts, "retries", cfg.MaxAttempts, "attempts per network operation")
	timeout := fs.Int("timeout", int(cfg.RequestTimeout.Seconds()), "request timeout in seconds")
	fs.StringVar(&cfg.LogLevel, "v", cfg.LogLevel, "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
}
