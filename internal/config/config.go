package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string
	LogLevel    string
	LogFormat   string

	// Session lifecycle
	SessionTimeout  time.Duration
	ReaperInterval  time.Duration
	MonitorInterval time.Duration
	DriftThreshold  int

	// Transport limits
	MaxConnsPerUser int
	PollWait        time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	var err error
	if cfg.SessionTimeout, err = getMinutes("SESSION_TIMEOUT_MINUTES", 30); err != nil {
		return nil, err
	}
	if cfg.ReaperInterval, err = getMinutes("REAPER_INTERVAL_MINUTES", 5); err != nil {
		return nil, err
	}
	if cfg.MonitorInterval, err = getMinutes("MONITOR_INTERVAL_MINUTES", 2); err != nil {
		return nil, err
	}
	if cfg.DriftThreshold, err = getInt("DRIFT_THRESHOLD", 5); err != nil {
		return nil, err
	}
	if cfg.MaxConnsPerUser, err = getInt("MAX_CONNS_PER_USER", 8); err != nil {
		return nil, err
	}

	pollWaitSeconds, err := getInt("POLL_WAIT_SECONDS", 25)
	if err != nil {
		return nil, err
	}
	cfg.PollWait = time.Duration(pollWaitSeconds) * time.Second

	if cfg.SessionTimeout < cfg.ReaperInterval {
		return nil, fmt.Errorf("SESSION_TIMEOUT_MINUTES must be >= REAPER_INTERVAL_MINUTES")
	}
	if cfg.DriftThreshold < 0 {
		return nil, fmt.Errorf("DRIFT_THRESHOLD must be >= 0")
	}
	if cfg.MaxConnsPerUser < 1 {
		return nil, fmt.Errorf("MAX_CONNS_PER_USER must be >= 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return value, nil
}

func getMinutes(key string, defaultValue int) (time.Duration, error) {
	value, err := getInt(key, defaultValue)
	if err != nil {
		return 0, err
	}
	if value < 1 {
		return 0, fmt.Errorf("%s must be >= 1", key)
	}
	return time.Duration(value) * time.Minute, nil
}
