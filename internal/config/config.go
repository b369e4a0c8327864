// Package config reads settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ConfigDir  string
	DBPath     string
	LogFile    string
	LogLevel   string
	APIBaseURL string

	PageSize   int
	BatchSize  int
	MaxResults int
	RPS        int

	PageDelay   time.Duration
	BatchDelay  time.Duration
	ItemDelay   time.Duration
	DeleteDelay time.Duration

	Sequential bool
	SyncLabel  string
}

// Load reads .env from the working directory and from the config directory,
// then the environment. Existing environment variables take precedence.
func Load() (*Config, error) {
	loadDotEnv(".env")

	configDir := os.Getenv("UNCLUTTER_CONFIG_DIR")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "unclutter")
	}
	loadDotEnv(filepath.Join(configDir, ".env"))

	r := &envReader{}
	c := &Config{
		ConfigDir:  configDir,
		DBPath:     getEnvOrDefault("UNCLUTTER_DB_PATH", filepath.Join(configDir, "unclutter.db")),
		LogFile:    getEnvOrDefault("UNCLUTTER_LOG_FILE", filepath.Join(configDir, "unclutter.log")),
		LogLevel:   getEnvOrDefault("UNCLUTTER_LOG_LEVEL", "info"),
		APIBaseURL: getEnvOrDefault("UNCLUTTER_API_BASE_URL", "https://gmail.googleapis.com/gmail/v1/users/me/"),

		PageSize:   r.int("UNCLUTTER_PAGE_SIZE", 100),
		BatchSize:  r.int("UNCLUTTER_BATCH_SIZE", 10),
		MaxResults: r.int("UNCLUTTER_MAX_RESULTS", 500),
		RPS:        r.int("UNCLUTTER_RPS", 20),

		PageDelay:   r.duration("UNCLUTTER_PAGE_DELAY", 200*time.Millisecond),
		BatchDelay:  r.duration("UNCLUTTER_BATCH_DELAY", 500*time.Millisecond),
		ItemDelay:   r.duration("UNCLUTTER_ITEM_DELAY", 100*time.Millisecond),
		DeleteDelay: r.duration("UNCLUTTER_DELETE_DELAY", 500*time.Millisecond),

		Sequential: r.bool("UNCLUTTER_SEQUENTIAL", false),
		SyncLabel:  getEnvOrDefault("UNCLUTTER_SYNC_LABEL", "INBOX"),
	}
	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.ConfigDir == "" {
		return fmt.Errorf("config directory is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("UNCLUTTER_DB_PATH is required")
	}
	if c.PageSize < 1 || c.PageSize > 500 {
		return fmt.Errorf("UNCLUTTER_PAGE_SIZE must be between 1 and 500, got %d", c.PageSize)
	}
	if c.BatchSize < 1 || c.BatchSize > 100 {
		return fmt.Errorf("UNCLUTTER_BATCH_SIZE must be between 1 and 100, got %d", c.BatchSize)
	}
	if c.MaxResults < 0 {
		return fmt.Errorf("UNCLUTTER_MAX_RESULTS must not be negative, got %d", c.MaxResults)
	}
	if c.RPS < 0 {
		return fmt.Errorf("UNCLUTTER_RPS must not be negative, got %d", c.RPS)
	}
	for name, d := range map[string]time.Duration{
		"UNCLUTTER_PAGE_DELAY":   c.PageDelay,
		"UNCLUTTER_BATCH_DELAY":  c.BatchDelay,
		"UNCLUTTER_ITEM_DELAY":   c.ItemDelay,
		"UNCLUTTER_DELETE_DELAY": c.DeleteDelay,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d)
		}
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("UNCLUTTER_LOG_LEVEL must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	return nil
}

func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	// a malformed file is ignored like a missing one; explicit env still applies
	_ = godotenv.Load(path)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

type envReader struct {
	errs []error
}

func (r *envReader) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

// duration accepts Go durations ("250ms") or bare milliseconds ("250").
func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (r *envReader) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}
