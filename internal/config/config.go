package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr     = ":8080"
	defaultDBPath         = "partload.db"
	defaultSessionIdleTTL = 5 * time.Minute
	defaultSweepInterval  = 30 * time.Second
	defaultTimeout        = 100 * time.Millisecond
	defaultPaging         = 1000

	envListenAddr     = "PARTLOAD_LISTEN_ADDR"
	envDBPath         = "PARTLOAD_DB_PATH"
	envLogLevel       = "PARTLOAD_LOG_LEVEL"
	envSessionIdleTTL = "PARTLOAD_SESSION_IDLE_TTL"
	envSweepInterval  = "PARTLOAD_SWEEP_INTERVAL"
	envDefaultTimeout = "PARTLOAD_DEFAULT_TIMEOUT"
	envDefaultPaging  = "PARTLOAD_DEFAULT_PAGING"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level

	// SessionIdleTTL is how long a Partial session survives without calls.
	SessionIdleTTL time.Duration
	SweepInterval  time.Duration

	// DefaultTimeout and DefaultPaging apply to chunk requests that do not
	// set their own budgets. Zero disables the bound.
	DefaultTimeout time.Duration
	DefaultPaging  int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr: defaultListenAddr,
		DBPath:     defaultDBPath,
		LogLevel:   slog.LevelInfo,

		SessionIdleTTL: defaultSessionIdleTTL,
		SweepInterval:  defaultSweepInterval,
		DefaultTimeout: defaultTimeout,
		DefaultPaging:  defaultPaging,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	cfg.SessionIdleTTL = parseDuration(os.Getenv(envSessionIdleTTL), cfg.SessionIdleTTL)
	cfg.SweepInterval = parseDuration(os.Getenv(envSweepInterval), cfg.SweepInterval)
	cfg.DefaultTimeout = parseDuration(os.Getenv(envDefaultTimeout), cfg.DefaultTimeout)
	if v := os.Getenv(envDefaultPaging); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.DefaultPaging = n
		}
	}

	return cfg
}

// parseDuration parses s as a Go duration, or as whole milliseconds when it
// has no unit. Empty, malformed and negative values yield def.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if ms, err := strconv.Atoi(s); err == nil {
		if ms < 0 {
			return def
		}
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
