// Package config reads depgraph settings from the environment.
//
// Every getter falls back to its default when the variable is unset or empty. A value that
// is set but cannot be parsed also yields the default, and a warning naming the variable
// is logged so a typo in a deployment manifest does not go unnoticed.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// lookup returns the parsed value of key, or defaultValue when key is unset or malformed.
func lookup[T any](key string, defaultValue T, parse func(string) (T, bool)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue
	}

	value, ok := parse(strings.TrimSpace(raw))
	if !ok {
		slog.Warn("Ignoring malformed environment variable",
			slog.String("key", key),
			slog.String("value", raw),
			slog.Any("default", defaultValue),
		)

		return defaultValue
	}

	return value
}

// GetEnvStr returns a string environment variable value or a default if not set.
//
// Example:
//
//	host := GetEnvStr("DEPGRAPH_SERVER_HOST", "0.0.0.0")
func GetEnvStr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// GetEnvInt returns an int environment variable value or a default if not set.
//
// Example:
//
//	port := GetEnvInt("DEPGRAPH_SERVER_PORT", 8080)
func GetEnvInt(key string, defaultValue int) int {
	return lookup(key, defaultValue, func(s string) (int, bool) {
		v, err := strconv.Atoi(s)

		return v, err == nil
	})
}

// GetEnvInt64 returns an int64 environment variable value or a default if not set.
//
// Example:
//
//	size := GetEnvInt64("DEPGRAPH_MAX_REQUEST_SIZE", 1048576)
func GetEnvInt64(key string, defaultValue int64) int64 {
	return lookup(key, defaultValue, func(s string) (int64, bool) {
		v, err := strconv.ParseInt(s, 10, 64)

		return v, err == nil
	})
}

// GetEnvBool returns a bool environment variable value or a default if not set.
// Accepts "true", "1", "yes" and "on" as true; "false", "0", "no" and "off" as false
// (case-insensitive).
//
// Example:
//
//	enabled := GetEnvBool("DEPGRAPH_AUTH_ENABLED", false)
func GetEnvBool(key string, defaultValue bool) bool {
	return lookup(key, defaultValue, func(s string) (bool, bool) {
		switch strings.ToLower(s) {
		case "true", "1", "yes", "on":
			return true, true
		case "false", "0", "no", "off":
			return false, true
		default:
			return false, false
		}
	})
}

// GetEnvDuration returns a time.Duration environment variable value or a default if not set.
//
// Example:
//
//	timeout := GetEnvDuration("DEPGRAPH_SERVER_READ_TIMEOUT", 30*time.Second)
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	return lookup(key, defaultValue, func(s string) (time.Duration, bool) {
		v, err := time.ParseDuration(s)

		return v, err == nil
	})
}

// GetEnvLogLevel returns a slog.Level environment variable value or a default if not set.
// Accepts debug, info, warn (or warning) and error.
//
// Example:
//
//	level := GetEnvLogLevel("DEPGRAPH_SERVER_LOG_LEVEL", slog.LevelInfo)
func GetEnvLogLevel(key string, defaultValue slog.Level) slog.Level {
	return lookup(key, defaultValue, func(s string) (slog.Level, bool) {
		switch strings.ToLower(s) {
		case "debug":
			return slog.LevelDebug, true
		case "info":
			return slog.LevelInfo, true
		case "warn", "warning":
			return slog.LevelWarn, true
		case "error":
			return slog.LevelError, true
		default:
			return defaultValue, false
		}
	})
}

// ParseCommaSeparatedList parses a comma-separated string into a slice of trimmed strings.
// Empty values are filtered out.
func ParseCommaSeparatedList(input string) []string {
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
