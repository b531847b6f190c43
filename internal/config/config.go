// Package config provides configuration loading from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Listener and rate limit defaults
const (
	DefaultHost              = "127.0.0.1"
	DefaultPort              = 1071
	DefaultCORSOrigin        = "*"
	DefaultRateLimitWindowMs = 15 * 60 * 1000
	DefaultRateLimitMax      = 600
)

// Transport and process defaults
const (
	DefaultRateLimitMaxKeys  = 65536
	DefaultMaxBodyBytes      = 1 << 20
	DefaultShutdownTimeoutMs = 10000
)

// Config holds all configuration for the stateless MCP server.
// It is built once at startup and never mutated afterwards.
type Config struct {
	Host             string        // HOST, default "127.0.0.1"
	Port             int           // PORT, default 1071
	CORSOrigin       string        // CORS_ORIGIN, default "*" (any origin)
	RateLimitWindow  time.Duration // RATE_LIMIT_WINDOW_MS, default 900000ms (15m)
	RateLimitMax     int           // RATE_LIMIT_MAX, default 600
	RateLimitMaxKeys int           // RATE_LIMIT_MAX_KEYS, default 65536
	RateLimitRedis   string        // RATE_LIMIT_REDIS_URL, default "" (in-process store)

	JSONResponse    bool          // MCP_JSON_RESPONSE, default false (event-stream)
	MaxBodyBytes    int           // MAX_BODY_BYTES, default 1 MiB
	ShutdownTimeout time.Duration // SHUTDOWN_TIMEOUT_MS, default 10000ms

	// Logging configuration
	LogLevel      string // LOG_LEVEL, default "info"
	LogFormat     string // LOG_FORMAT, default "text"
	LogFile       string // LOG_FILE, default "" (stderr only)
	LogMaxSizeMB  int    // LOG_MAX_SIZE_MB, default 10
	LogMaxBackups int    // LOG_MAX_BACKUPS, default 5
	LogMaxAgeDays int    // LOG_MAX_AGE_DAYS, default 28
	LogCompress   bool   // LOG_COMPRESS, default true
}

// Load reads configuration from the process environment.
func Load() *Config {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom builds a Config from an arbitrary lookup function. Absent, malformed
// or non-positive values silently fall back to their defaults; it never fails.
func LoadFrom(lookup func(string) (string, bool)) *Config {
	e := env(lookup)
	return &Config{
		Host:             e.getString("HOST", DefaultHost),
		Port:             e.getPositiveInt("PORT", DefaultPort),
		CORSOrigin:       e.getString("CORS_ORIGIN", DefaultCORSOrigin),
		RateLimitWindow:  e.getDurationMs("RATE_LIMIT_WINDOW_MS", DefaultRateLimitWindowMs),
		RateLimitMax:     e.getPositiveInt("RATE_LIMIT_MAX", DefaultRateLimitMax),
		RateLimitMaxKeys: e.getPositiveInt("RATE_LIMIT_MAX_KEYS", DefaultRateLimitMaxKeys),
		RateLimitRedis:   e.getString("RATE_LIMIT_REDIS_URL", ""),

		JSONResponse:    e.getBool("MCP_JSON_RESPONSE", false),
		MaxBodyBytes:    e.getPositiveInt("MAX_BODY_BYTES", DefaultMaxBodyBytes),
		ShutdownTimeout: e.getDurationMs("SHUTDOWN_TIMEOUT_MS", DefaultShutdownTimeoutMs),

		LogLevel:      e.getString("LOG_LEVEL", "info"),
		LogFormat:     e.getString("LOG_FORMAT", "text"),
		LogFile:       e.getString("LOG_FILE", ""),
		LogMaxSizeMB:  e.getPositiveInt("LOG_MAX_SIZE_MB", 10),
		LogMaxBackups: e.getPositiveInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: e.getPositiveInt("LOG_MAX_AGE_DAYS", 28),
		LogCompress:   e.getBool("LOG_COMPRESS", true),
	}
}

// Addr returns the host:port pair the listener binds to.
func (c *Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// AllowAnyOrigin reports whether CORS allows every origin.
func (c *Config) AllowAnyOrigin() bool {
	return c.CORSOrigin == "*"
}

type env func(string) (string, bool)

func (e env) get(key string) string {
	if e == nil {
		return ""
	}
	v, _ := e(key)
	return v
}

func (e env) getBool(key string, defaultVal bool) bool {
	if v := e.get(key); v != "" {
		switch v {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultVal
}

func (e env) getString(key, defaultVal string) string {
	if v := e.get(key); v != "" {
		return v
	}
	return defaultVal
}

func (e env) getPositiveInt(key string, defaultVal int) int {
	if v := e.get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return defaultVal
}

func (e env) getDurationMs(key string, defaultMs int) time.Duration {
	ms := e.getPositiveInt(key, defaultMs)
	return time.Duration(ms) * time.Millisecond
}
