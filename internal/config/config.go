// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"

	"github.com/voicevault/voicevault/internal/session"
	"github.com/voicevault/voicevault/internal/store"
	"github.com/voicevault/voicevault/internal/vad"
)

// ErrInvalidConfiguration wraps validation failures so callers can treat
// them uniformly.
var ErrInvalidConfiguration = errors.New("config: invalid configuration")

// Config holds all configuration for the recording pipeline. It is passed
// into the core as an opaque object at construction; the core never reads
// configuration files itself.
type Config struct {
	// Recording settings
	Enabled    bool   `env:"VOICEVAULT_ENABLED, default=true" json:"enabled"`
	StorageDir string `env:"STORAGE_DIR, default=/var/lib/voicevault" json:"storage_dir"`

	// Retention settings
	MaxStorageBytes int64 `env:"MAX_STORAGE_BYTES, default=10737418240" json:"max_storage_bytes" validate:"min=0"`
	RetentionDays   int   `env:"RETENTION_DAYS, default=30" json:"retention_days" validate:"min=0"`
	KeepRecentCount int   `env:"KEEP_RECENT_COUNT, default=5" json:"keep_recent_count" validate:"min=0"`
	// CleanupIntervalMin is how often the maintenance loop runs.
	CleanupIntervalMin int `env:"CLEANUP_INTERVAL_MIN, default=15" json:"cleanup_interval_min" validate:"min=1"`

	// Compression settings
	Codec            string `env:"CODEC, default=zstd" json:"codec" validate:"oneof=raw zstd opus-low opus-verylow"`
	CompressionLevel int    `env:"COMPRESSION_LEVEL, default=5" json:"compression_level" validate:"min=0,max=9"`

	// PrivacyMode controls automatic retention: "auto-delete" lets the
	// maintenance loop enforce the retention policy, "none" leaves
	// cleanup to explicit calls.
	PrivacyMode string `env:"PRIVACY_MODE, default=auto-delete" json:"privacy_mode" validate:"oneof=none auto-delete"`

	// AudioQuality selects the capture tier: low (16 kHz/16-bit),
	// medium (44.1 kHz/16-bit) or high (48 kHz/24-bit).
	AudioQuality string `env:"AUDIO_QUALITY, default=medium" json:"audio_quality" validate:"oneof=low medium high"`

	// VAD settings
	VADSensitivity float64 `env:"VAD_SENSITIVITY, default=0.5" json:"vad_sensitivity" validate:"min=0,max=1"`
	VADHangoverMS  int     `env:"VAD_HANGOVER_MS, default=400" json:"vad_hangover_ms" validate:"min=0"`
	VADMode        string  `env:"VAD_MODE, default=auto" json:"vad_mode" validate:"oneof=auto push-to-talk toggle"`

	// Optional S3 archive settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 archive configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field consistency.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	if (c.S3Bucket == "") != (c.S3Region == "") {
		return fmt.Errorf("%w: S3_BUCKET and S3_REGION must be set together", ErrInvalidConfiguration)
	}
	return nil
}

// RetentionPolicy derives the retention policy for maintenance.
func (c *Config) RetentionPolicy() store.RetentionPolicy {
	return store.RetentionPolicy{
		MaxAgeDays:      c.RetentionDays,
		MaxTotalBytes:   c.MaxStorageBytes,
		KeepRecentCount: c.KeepRecentCount,
	}
}

// CleanupInterval returns the maintenance loop interval.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMin) * time.Minute
}

// VADHangover returns the hangover timeout as a duration.
func (c *Config) VADHangover() time.Duration {
	return time.Duration(c.VADHangoverMS) * time.Millisecond
}

// VADDetectorMode maps the configured mode string onto the detector mode.
func (c *Config) VADDetectorMode() vad.Mode {
	switch c.VADMode {
	case "push-to-talk":
		return vad.ModePushToTalk
	case "toggle":
		return vad.ModeToggle
	default:
		return vad.ModeAuto
	}
}

// CaptureFormat derives the stream format for the configured quality tier.
func (c *Config) CaptureFormat() session.AudioFormat {
	format := session.AudioFormat{Channels: 1, Codec: c.Codec}
	switch c.AudioQuality {
	case "low":
		format.SampleRate = 16000
		format.BitDepth = 16
	case "high":
		format.SampleRate = 48000
		format.BitDepth = 24
	default:
		format.SampleRate = 44100
		format.BitDepth = 16
	}
	return format
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive
// values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Enabled: %t, StorageDir: %s, MaxStorageBytes: %d, RetentionDays: %d, KeepRecentCount: %d, Codec: %s, CompressionLevel: %d, PrivacyMode: %s, AudioQuality: %s, VADMode: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Enabled,
		c.StorageDir,
		c.MaxStorageBytes,
		c.RetentionDays,
		c.KeepRecentCount,
		c.Codec,
		c.CompressionLevel,
		c.PrivacyMode,
		c.AudioQuality,
		c.VADMode,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
