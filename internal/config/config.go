// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	YouTubeAPIKeys  []string
	YouTubeEndpoint string
	SearchQuery     string
	FetchInterval   time.Duration
	MaxResults      int
	DailyQuota      int64
	QueryCost       int64
	InitialLookback time.Duration
	CycleTimeout    time.Duration
	KeyNamespace    string

	RedisURL    string
	DatabaseURL string
	DBPath      string

	ListenAddr string
	RateLimit  float64
	RateBurst  int

	LogLevel  slog.Level
	LogFormat string
}

// HasAPIKeys returns true when at least one YouTube API key is configured.
// Without keys the service still starts, but every ingest cycle ends with a
// no-credentials error until keys are configured.
func (c *Config) HasAPIKeys() bool {
	return len(c.YouTubeAPIKeys) > 0
}

// UsesRedis reports whether key rotation state lives in Redis.
func (c *Config) UsesRedis() bool {
	return c.RedisURL != ""
}

// UsesPostgres reports whether videos are stored in PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return c.DatabaseURL != ""
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding variables already set. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load reads configuration from TUBEFEED_* environment variables and returns a
// validated Config. All variables are optional:
//
//	TUBEFEED_YOUTUBE_API_KEYS   comma-separated keys (none)
//	TUBEFEED_YOUTUBE_ENDPOINT   API base URL override (library default)
//	TUBEFEED_SEARCH_QUERY       football
//	TUBEFEED_FETCH_INTERVAL     10s
//	TUBEFEED_MAX_RESULTS        50 (1-50)
//	TUBEFEED_DAILY_QUOTA        10000
//	TUBEFEED_QUERY_COST         100
//	TUBEFEED_INITIAL_LOOKBACK   24h
//	TUBEFEED_CYCLE_TIMEOUT      2m
//	TUBEFEED_KEY_NAMESPACE      youtube-api
//	TUBEFEED_REDIS_URL          rotation state in Redis when set
//	TUBEFEED_DATABASE_URL       videos in PostgreSQL when set
//	TUBEFEED_DB_PATH            tubefeed.db
//	TUBEFEED_LISTEN_ADDR        127.0.0.1:8080
//	TUBEFEED_RATE_LIMIT         20 requests/s per client, 0 disables
//	TUBEFEED_RATE_BURST         40
//	TUBEFEED_LOG_LEVEL          info
//	TUBEFEED_LOG_FORMAT         text (text or json)
func Load() (*Config, error) {
	cfg := &Config{
		YouTubeAPIKeys:  splitList(os.Getenv("TUBEFEED_YOUTUBE_API_KEYS")),
		YouTubeEndpoint: os.Getenv("TUBEFEED_YOUTUBE_ENDPOINT"),
		SearchQuery:     stringEnv("TUBEFEED_SEARCH_QUERY", "football"),
		KeyNamespace:    stringEnv("TUBEFEED_KEY_NAMESPACE", "youtube-api"),
		RedisURL:        os.Getenv("TUBEFEED_REDIS_URL"),
		DatabaseURL:     os.Getenv("TUBEFEED_DATABASE_URL"),
		DBPath:          stringEnv("TUBEFEED_DB_PATH", "tubefeed.db"),
		ListenAddr:      stringEnv("TUBEFEED_LISTEN_ADDR", "127.0.0.1:8080"),
		LogFormat:       strings.ToLower(stringEnv("TUBEFEED_LOG_FORMAT", "text")),
	}

	var err error
	if cfg.FetchInterval, err = durationEnv("TUBEFEED_FETCH_INTERVAL", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.InitialLookback, err = durationEnv("TUBEFEED_INITIAL_LOOKBACK", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.CycleTimeout, err = durationEnv("TUBEFEED_CYCLE_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MaxResults, err = intEnv("TUBEFEED_MAX_RESULTS", 50); err != nil {
		return nil, err
	}
	if cfg.RateBurst, err = intEnv("TUBEFEED_RATE_BURST", 40); err != nil {
		return nil, err
	}
	if cfg.DailyQuota, err = int64Env("TUBEFEED_DAILY_QUOTA", 10000); err != nil {
		return nil, err
	}
	if cfg.QueryCost, err = int64Env("TUBEFEED_QUERY_COST", 100); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = floatEnv("TUBEFEED_RATE_LIMIT", 20); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("TUBEFEED_LOG_LEVEL"); ok {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("TUBEFEED_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case strings.TrimSpace(c.SearchQuery) == "":
		return errors.New("TUBEFEED_SEARCH_QUERY must not be empty")
	case c.MaxResults < 1 || c.MaxResults > 50:
		return fmt.Errorf("TUBEFEED_MAX_RESULTS must be between 1 and 50, got %d", c.MaxResults)
	case c.DailyQuota <= 0:
		return fmt.Errorf("TUBEFEED_DAILY_QUOTA must be positive, got %d", c.DailyQuota)
	case c.QueryCost <= 0:
		return fmt.Errorf("TUBEFEED_QUERY_COST must be positive, got %d", c.QueryCost)
	case c.FetchInterval <= 0:
		return fmt.Errorf("TUBEFEED_FETCH_INTERVAL must be positive, got %s", c.FetchInterval)
	case c.InitialLookback <= 0:
		return fmt.Errorf("TUBEFEED_INITIAL_LOOKBACK must be positive, got %s", c.InitialLookback)
	case c.CycleTimeout <= 0:
		return fmt.Errorf("TUBEFEED_CYCLE_TIMEOUT must be positive, got %s", c.CycleTimeout)
	case c.RateLimit < 0:
		return fmt.Errorf("TUBEFEED_RATE_LIMIT must not be negative, got %g", c.RateLimit)
	case c.RateBurst < 0:
		return fmt.Errorf("TUBEFEED_RATE_BURST must not be negative, got %d", c.RateBurst)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("TUBEFEED_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

func stringEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	return parsed, nil
}

func intEnv(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	return parsed, nil
}

func int64Env(key string, fallback int64) (int64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	return parsed, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid number %q: %w", key, v, err)
	}
	return parsed, nil
}

// splitList splits a comma-separated list, trimming blanks and dropping empty entries.
func splitList(v string) []string {
	out := []string{}
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
