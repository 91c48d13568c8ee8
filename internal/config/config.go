// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	UpstreamURL  string
	ListenAddr   string
	PageSize     int
	ListDelay    time.Duration
	RestoreDelay time.Duration
	HTTPTimeout  time.Duration
	LogLevel     slog.Level
}

// Load reads configuration from environment variables and returns a validated
// Config. A .env file in the working directory, if present, is loaded first;
// variables already set in the environment take precedence over it.
//
// All variables are optional, with defaults: ARCHIVERESTORE_UPSTREAM_URL
// (https://chatgpt.com/backend-api), ARCHIVERESTORE_LISTEN_ADDR
// (127.0.0.1:8080), ARCHIVERESTORE_PAGE_SIZE (50), ARCHIVERESTORE_LIST_DELAY
// (100ms), ARCHIVERESTORE_RESTORE_DELAY (100ms), ARCHIVERESTORE_HTTP_TIMEOUT
// (30s), ARCHIVERESTORE_LOG_LEVEL (info).
func Load() (*Config, error) {
	_ = godotenv.Load()

	upstreamURL := "https://chatgpt.com/backend-api"
	if v, ok := os.LookupEnv("ARCHIVERESTORE_UPSTREAM_URL"); ok {
		u, err := url.Parse(v)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("ARCHIVERESTORE_UPSTREAM_URL must be an absolute URL, got %q", v)
		}
		upstreamURL = strings.TrimRight(v, "/")
	}

	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("ARCHIVERESTORE_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	pageSize := 50
	if v, ok := os.LookupEnv("ARCHIVERESTORE_PAGE_SIZE"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("ARCHIVERESTORE_PAGE_SIZE has invalid integer %q: %w", v, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("ARCHIVERESTORE_PAGE_SIZE must be positive, got %d", parsed)
		}
		pageSize = parsed
	}

	listDelay, err := durationEnv("ARCHIVERESTORE_LIST_DELAY", 100*time.Millisecond)
	if err != nil {
		return nil, err
	}

	restoreDelay, err := durationEnv("ARCHIVERESTORE_RESTORE_DELAY", 100*time.Millisecond)
	if err != nil {
		return nil, err
	}

	httpTimeout, err := durationEnv("ARCHIVERESTORE_HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	if httpTimeout == 0 {
		return nil, errors.New("ARCHIVERESTORE_HTTP_TIMEOUT must be positive")
	}

	logLevel := slog.LevelInfo
	if v, ok := os.LookupEnv("ARCHIVERESTORE_LOG_LEVEL"); ok {
		if err := logLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("ARCHIVERESTORE_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	return &Config{
		UpstreamURL:  upstreamURL,
		ListenAddr:   listenAddr,
		PageSize:     pageSize,
		ListDelay:    listDelay,
		RestoreDelay: restoreDelay,
		HTTPTimeout:  httpTimeout,
		LogLevel:     logLevel,
	}, nil
}

// durationEnv parses a non-negative duration from key, or returns def when
// the variable is unset.
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", key, parsed)
	}
	return parsed, nil
}
