// Package config contains everything related to configuration
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath string
	SessionPath  string
	LogPath      string
	LogLevel     string
	JWTSecret    string
	// EnvPath is the .env file that was loaded, empty when none was found.
	EnvPath string

	TokenTTL      time.Duration
	TypingDelay   time.Duration
	DecoyDuration time.Duration
	SettleDelay   time.Duration
	ArmDelay      time.Duration

	CreditRatio      int
	FreeTrialCredits int64
	ProgressEvery    int
}

// Default values
const (
	defaultJWTSecret        = "codepaste-dev-secret-change-me"
	defaultTokenTTL         = 7 * 24 * time.Hour
	defaultTypingDelayMS    = 40
	defaultDecoyDuration    = 3 * time.Second
	defaultSettleDelay      = 300 * time.Millisecond
	defaultArmDelay         = 3 * time.Second
	defaultCreditRatio      = 1
	defaultFreeTrialCredits = 2000
	defaultProgressEvery    = 50
)

// Load reads configuration from .env files and environment variables.
func Load() (*Config, error) {
	var envPath string
	for _, path := range getEnvPaths() {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			envPath = path
			break
		}
	}

	cfg := build(os.Getenv)
	cfg.EnvPath = envPath

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for _, p := range []string{cfg.DatabasePath, cfg.SessionPath, cfg.LogPath} {
		if err := ensureDir(filepath.Dir(p)); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Reload re-reads the .env file at path. Values in the file win over the
// process environment so edits take effect while the program runs.
func Reload(path string) (*Config, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg := build(func(key string) string {
		if v, ok := values[key]; ok {
			return v
		}
		return os.Getenv(key)
	})
	cfg.EnvPath = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func build(getenv func(string) string) *Config {
	return &Config{
		DatabasePath:     getEnvString(getenv, "DATABASE_PATH", defaultPath("typer.db")),
		SessionPath:      getEnvString(getenv, "SESSION_PATH", defaultPath("session.json")),
		LogPath:          getEnvString(getenv, "LOG_PATH", defaultPath("typer.log")),
		LogLevel:         getEnvString(getenv, "LOG_LEVEL", "info"),
		JWTSecret:        getEnvString(getenv, "JWT_SECRET", defaultJWTSecret),
		TokenTTL:         getEnvDuration(getenv, "TOKEN_TTL", defaultTokenTTL),
		TypingDelay:      time.Duration(getEnvInt(getenv, "TYPING_DELAY_MS", defaultTypingDelayMS)) * time.Millisecond,
		DecoyDuration:    getEnvDuration(getenv, "DECOY_DURATION", defaultDecoyDuration),
		SettleDelay:      getEnvDuration(getenv, "SETTLE_DELAY", defaultSettleDelay),
		ArmDelay:         getEnvDuration(getenv, "ARM_DELAY", defaultArmDelay),
		CreditRatio:      getEnvInt(getenv, "CREDIT_RATIO", defaultCreditRatio),
		FreeTrialCredits: int64(getEnvInt(getenv, "FREE_TRIAL_CREDITS", defaultFreeTrialCredits)),
		ProgressEvery:    getEnvInt(getenv, "PROGRESS_EVERY", defaultProgressEvery),
	}
}

// Validate rejects values the typer cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("DATABASE_PATH must not be empty"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.TypingDelay <= 0 {
		errs = append(errs, errors.New("TYPING_DELAY_MS must be positive"))
	}
	if c.DecoyDuration < 0 {
		errs = append(errs, errors.New("DECOY_DURATION must not be negative"))
	}
	if c.SettleDelay < 0 {
		errs = append(errs, errors.New("SETTLE_DELAY must not be negative"))
	}
	if c.ArmDelay < 0 {
		errs = append(errs, errors.New("ARM_DELAY must not be negative"))
	}
	if c.CreditRatio < 1 {
		errs = append(errs, errors.New("CREDIT_RATIO must be at least 1"))
	}
	if c.FreeTrialCredits < 0 {
		errs = append(errs, errors.New("FREE_TRIAL_CREDITS must not be negative"))
	}
	if c.ProgressEvery < 1 {
		errs = append(errs, errors.New("PROGRESS_EVERY must be at least 1"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// getEnvPaths returns a list of paths to check for .env files.
func getEnvPaths() []string {
	var paths []string

	// Current directory
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}

	// Home directory locations
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "codepaste", ".env"),
			filepath.Join(home, ".codepaste", ".env"),
		)
	}

	// Parent directory (useful for development)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(cwd), ".env"))
	}

	return paths
}

// defaultPath returns the default location of a file in the config directory.
func defaultPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".config", "codepaste", name)
}

// getEnvString retrieves a string environment variable or returns the default.
func getEnvString(getenv func(string) string, key, defaultValue string) string {
	if value := getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns the default.
func getEnvInt(getenv func(string) string, key string, defaultValue int) int {
	if value := getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns the default.
// Accepts values like "30s", "1m", "500ms".
func getEnvDuration(getenv func(string) string, key string, defaultValue time.Duration) time.Duration {
	if value := getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Try parsing as seconds if no unit specified
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// ensureDir creates a directory and all parent directories if they don't exist.
func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o750)
}
