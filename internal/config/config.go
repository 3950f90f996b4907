package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/a-schmidtlab/caption-translator/internal/translate"
)

// Config holds all application configuration, sourced from environment
// variables with sensible defaults. Host facts (CPU count) are queried
// exactly once here; every component receives plain values.
//
// Environment Variables:
//
// Translator backend:
// - TRANSLATOR_PROVIDER: "http" or "openai" (default: http)
// - TRANSLATOR_API_URL: endpoint URL (required for http)
// - TRANSLATOR_API_KEY: API key (required for openai)
// - TRANSLATOR_MODEL: model name for the openai provider
// - TRANSLATOR_TIMEOUT: connection timeout in seconds (default: 60)
//
// Languages and columns:
// - SOURCE_LANG / TARGET_LANG: BCP 47 tags (default: de / en)
// - COLUMN_ALLOWLIST / COLUMN_DENYLIST: comma-separated column names
// - SKIP_TARGET_LANGUAGE_CELLS: resolve cells already in the target
//   language without a backend call (default: false)
//
// Pipeline:
// - MAX_BATCH_CHARS (default: 4000), MAX_BATCH_ITEMS (default: 50)
// - CONCURRENCY (default: derived from CPU count, capped at 4 — the
//   bottleneck is the remote service, not local compute)
// - MAX_RETRIES (default: 3), RETRY_BASE_DELAY_MS (default: 500),
//   RETRY_MULTIPLIER (default: 2.0), ATTEMPT_TIMEOUT_MS (default: 60000)
// - RATE_LIMIT_COUNT / RATE_LIMIT_WINDOW_MS (default: 60 per 60000)
// - MAX_CONSECUTIVE_FAILURES (default: 5)
//
// Checkpointing and progress:
// - CHECKPOINT_DIR (default: .checkpoints)
// - CHECKPOINT_EVERY_BATCHES (default: 5), CHECKPOINT_INTERVAL_MS (default: 60000)
// - STALL_WINDOW_MS zero-movement window (default: 300000)
// - STALL_MIN_RATE items/minute (default: 0, disabled)
// - STALL_FATAL_AFTER_MS (default: 1800000)
//
// Extras:
// - MEMORY_DB_PATH: SQLite translation memory (empty disables it)
// - WATCH_DIRS: comma-separated directories for watch mode
// - WATCH_CRON: cron expression for watch mode (default: every hour)
// - LOG_LEVEL: debug/info/warn/error (default: info)

type Config struct {
	Translator translate.Config

	Translate  TranslateConfig
	Pipeline   PipelineConfig
	Checkpoint CheckpointConfig
	Progress   ProgressConfig
	Memory     MemoryConfig
	Watch      WatchConfig

	LogLevel string
}

type TranslateConfig struct {
	SourceLanguage  language.Tag
	TargetLanguage  language.Tag
	ColumnAllowList []string
	ColumnDenyList  []string
	SkipTargetCells bool
}

// SourceSuffix returns the column suffix for the source language,
// e.g. "_DE".
func (c TranslateConfig) SourceSuffix() string {
	return "_" + strings.ToUpper(c.SourceLanguage.String())
}

// TargetSuffix returns the column suffix for the target language,
// e.g. "_EN".
func (c TranslateConfig) TargetSuffix() string {
	return "_" + strings.ToUpper(c.TargetLanguage.String())
}

type PipelineConfig struct {
	MaxBatchChars          int
	MaxBatchItems          int
	Concurrency            int
	MaxRetries             int
	RetryBaseDelay         time.Duration
	RetryMultiplier        float64
	AttemptTimeout         time.Duration
	RateLimitCount         int
	RateLimitWindow        time.Duration
	MaxConsecutiveFailures int
}

type CheckpointConfig struct {
	Dir          string
	EveryBatches int
	Interval     time.Duration
}

type ProgressConfig struct {
	StallWindow     time.Duration // zero-movement window that counts as a stall
	StallMinRate    float64       // items per minute, 0 disables
	StallFatalAfter time.Duration
}

type MemoryConfig struct {
	DBPath string
}

func (c MemoryConfig) Enabled() bool { return c.DBPath != "" }

type WatchConfig struct {
	Dirs     []string
	CronExpr string
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a Config from environment variables and options.
func NewFromEnv(opts ...Option) (*Config, error) {
	sourceLang, err := language.Parse(getEnvString("SOURCE_LANG", "de"))
	if err != nil {
		return nil, fmt.Errorf("invalid SOURCE_LANG: %w", err)
	}
	targetLang, err := language.Parse(getEnvString("TARGET_LANG", "en"))
	if err != nil {
		return nil, fmt.Errorf("invalid TARGET_LANG: %w", err)
	}

	config := &Config{
		Translator: translate.Config{
			Provider: getEnvString("TRANSLATOR_PROVIDER", "http"),
			APIURL:   getEnvString("TRANSLATOR_API_URL", ""),
			APIKey:   getEnvString("TRANSLATOR_API_KEY", ""),
			Model:    getEnvString("TRANSLATOR_MODEL", ""),
			Timeout:  getEnvInt("TRANSLATOR_TIMEOUT", 60),
		},
		Translate: TranslateConfig{
			SourceLanguage:  sourceLang,
			TargetLanguage:  targetLang,
			ColumnAllowList: getEnvStringSlice("COLUMN_ALLOWLIST"),
			ColumnDenyList:  getEnvStringSlice("COLUMN_DENYLIST"),
			SkipTargetCells: getEnvBool("SKIP_TARGET_LANGUAGE_CELLS", false),
		},
		Pipeline: PipelineConfig{
			MaxBatchChars:          getEnvInt("MAX_BATCH_CHARS", 4000),
			MaxBatchItems:          getEnvInt("MAX_BATCH_ITEMS", 50),
			Concurrency:            getEnvInt("CONCURRENCY", defaultConcurrency()),
			MaxRetries:             getEnvInt("MAX_RETRIES", 3),
			RetryBaseDelay:         getEnvDuration("RETRY_BASE_DELAY_MS", 500*time.Millisecond),
			RetryMultiplier:        getEnvFloat("RETRY_MULTIPLIER", 2.0),
			AttemptTimeout:         getEnvDuration("ATTEMPT_TIMEOUT_MS", 60*time.Second),
			RateLimitCount:         getEnvInt("RATE_LIMIT_COUNT", 60),
			RateLimitWindow:        getEnvDuration("RATE_LIMIT_WINDOW_MS", time.Minute),
			MaxConsecutiveFailures: getEnvInt("MAX_CONSECUTIVE_FAILURES", 5),
		},
		Checkpoint: CheckpointConfig{
			Dir:          getEnvString("CHECKPOINT_DIR", ".checkpoints"),
			EveryBatches: getEnvInt("CHECKPOINT_EVERY_BATCHES", 5),
			Interval:     getEnvDuration("CHECKPOINT_INTERVAL_MS", time.Minute),
		},
		Progress: ProgressConfig{
			StallWindow:     getEnvDuration("STALL_WINDOW_MS", 5*time.Minute),
			StallMinRate:    getEnvFloat("STALL_MIN_RATE", 0),
			StallFatalAfter: getEnvDuration("STALL_FATAL_AFTER_MS", 30*time.Minute),
		},
		Memory: MemoryConfig{
			DBPath: getEnvString("MEMORY_DB_PATH", ""),
		},
		Watch: WatchConfig{
			Dirs:     getEnvStringSlice("WATCH_DIRS"),
			CronExpr: getEnvString("WATCH_CRON", "0 * * * *"),
		},
		LogLevel: getEnvString("LOG_LEVEL", "info"),
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if err := c.Translator.Validate(); err != nil {
		return err
	}
	if c.Translate.SourceLanguage == c.Translate.TargetLanguage {
		return fmt.Errorf("SOURCE_LANG and TARGET_LANG must differ")
	}
	if c.Pipeline.MaxBatchItems <= 0 || c.Pipeline.MaxBatchChars <= 0 {
		return fmt.Errorf("batch limits must be positive")
	}
	return nil
}

// defaultConcurrency derives the worker count from available CPU
// parallelism, capped low because the remote service is the bottleneck.
func defaultConcurrency() int {
	n := runtime.NumCPU()
	if n > 4 {
		n = 4
	}
	if n < 1 {
		n = 1
	}
	return n
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean value from environment variables with default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration reads a millisecond count with default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

// getEnvStringSlice reads a comma-separated list, trimming blanks
func getEnvStringSlice(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ret := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ret = append(ret, p)
		}
	}
	return ret
}
