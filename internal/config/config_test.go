package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

// isolate points HOME and the working directory at an empty temp dir so no
// stray .env file is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	wd, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(wd) })
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	return tmpDir
}

func TestGetEnvString(t *testing.T) {
	getenv := envMap(map[string]string{"TEST_ENV_STRING": "test_value"})

	if got := getEnvString(getenv, "TEST_ENV_STRING", "default"); got != "test_value" {
		t.Errorf("getEnvString() = %q, want %q", got, "test_value")
	}

	if got := getEnvString(getenv, "NON_EXISTENT", "default"); got != "default" {
		t.Errorf("getEnvString() = %q, want %q", got, "default")
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name   string
		envVal string
		want   int
	}{
		{"Valid", "25", 25},
		{"Negative", "-3", -3},
		{"Invalid", "fast", 40},
		{"Empty", "", 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getenv := envMap(map[string]string{"N": tt.envVal})
			if got := getEnvInt(getenv, "N", 40); got != tt.want {
				t.Errorf("getEnvInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name       string
		envVal     string
		defaultVal time.Duration
		want       time.Duration
	}{
		{"ValidDuration", "1m", time.Second, time.Minute},
		{"ValidSeconds", "60", time.Second, 60 * time.Second},
		{"Milliseconds", "300ms", time.Second, 300 * time.Millisecond},
		{"Invalid", "invalid", time.Second, time.Second},
		{"Empty", "", time.Second, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getenv := envMap(map[string]string{"D": tt.envVal})
			if got := getEnvDuration(getenv, "D", tt.defaultVal); got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEnsureDir(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "dir")

	if err := ensureDir(path); err != nil {
		t.Fatalf("ensureDir() failed: %v", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("directory was not created")
	}

	if err := ensureDir(""); err != nil {
		t.Error("ensureDir(\"\") should not error")
	}
}

func TestDefaultPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Skipping test because user home dir cannot be found")
	}

	want := filepath.Join(home, ".config", "codepaste", "typer.db")
	if got := defaultPath("typer.db"); got != want {
		t.Errorf("defaultPath() = %q, want %q", got, want)
	}
}

func TestGetEnvPaths(t *testing.T) {
	paths := getEnvPaths()
	if len(paths) == 0 {
		t.Error("getEnvPaths() returned empty list")
	}

	cwd, _ := os.Getwd()
	found := false
	for _, p := range paths {
		if p == filepath.Join(cwd, ".env") {
			found = true
			break
		}
	}
	if !found {
		t.Error("getEnvPaths() missing current directory .env")
	}
}

func TestBuild_Defaults(t *testing.T) {
	cfg := build(envMap(nil))

	if cfg.TypingDelay != 40*time.Millisecond {
		t.Errorf("TypingDelay = %v, want 40ms", cfg.TypingDelay)
	}
	if cfg.DecoyDuration != 3*time.Second {
		t.Errorf("DecoyDuration = %v, want 3s", cfg.DecoyDuration)
	}
	if cfg.SettleDelay != 300*time.Millisecond {
		t.Errorf("SettleDelay = %v, want 300ms", cfg.SettleDelay)
	}
	if cfg.CreditRatio != 1 {
		t.Errorf("CreditRatio = %d, want 1", cfg.CreditRatio)
	}
	if cfg.FreeTrialCredits != 2000 {
		t.Errorf("FreeTrialCredits = %d, want 2000", cfg.FreeTrialCredits)
	}
	if cfg.ProgressEvery != 50 {
		t.Errorf("ProgressEvery = %d, want 50", cfg.ProgressEvery)
	}
	if cfg.TokenTTL != 7*24*time.Hour {
		t.Errorf("TokenTTL = %v, want 168h", cfg.TokenTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"ZeroDelay", func(c *Config) { c.TypingDelay = 0 }, "TYPING_DELAY_MS"},
		{"ZeroRatio", func(c *Config) { c.CreditRatio = 0 }, "CREDIT_RATIO"},
		{"NegativeTrial", func(c *Config) { c.FreeTrialCredits = -1 }, "FREE_TRIAL_CREDITS"},
		{"ZeroCadence", func(c *Config) { c.ProgressEvery = 0 }, "PROGRESS_EVERY"},
		{"NegativeDecoy", func(c *Config) { c.DecoyDuration = -time.Second }, "DECOY_DURATION"},
		{"EmptySecret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := build(envMap(nil))
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() should fail")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %s", err, tt.field)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	tmpDir := isolate(t)
	t.Setenv("DATABASE_PATH", filepath.Join(tmpDir, "data", "typer.db"))
	t.Setenv("TYPING_DELAY_MS", "25")
	t.Setenv("DECOY_DURATION", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.TypingDelay != 25*time.Millisecond {
		t.Errorf("TypingDelay = %v, want 25ms", cfg.TypingDelay)
	}
	if cfg.DecoyDuration != 2*time.Second {
		t.Errorf("DecoyDuration = %v, want 2s", cfg.DecoyDuration)
	}
	if cfg.EnvPath != "" {
		t.Errorf("EnvPath = %q, want empty", cfg.EnvPath)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "data")); err != nil {
		t.Errorf("database directory not created: %v", err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tmpDir := isolate(t)
	t.Setenv("DATABASE_PATH", filepath.Join(tmpDir, "typer.db"))
	t.Setenv("CREDIT_RATIO", "0")

	if _, err := Load(); err == nil {
		t.Error("Load() should fail with CREDIT_RATIO=0")
	}
}

func TestLoad_WithEnvFile(t *testing.T) {
	tmpDir := isolate(t)
	envPath := filepath.Join(tmpDir, ".env")
	content := "FREE_TRIAL_CREDITS=500\nDATABASE_PATH=" + filepath.Join(tmpDir, "typer.db")
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("FREE_TRIAL_CREDITS")
		os.Unsetenv("DATABASE_PATH")
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.FreeTrialCredits != 500 {
		t.Errorf("FreeTrialCredits = %d, want 500", cfg.FreeTrialCredits)
	}
	if filepath.Base(cfg.EnvPath) != ".env" {
		t.Errorf("EnvPath = %q", cfg.EnvPath)
	}
}

func TestReload_FileWins(t *testing.T) {
	tmpDir := t.TempDir()
	envPath := filepath.Join(tmpDir, ".env")
	if err := os.WriteFile(envPath, []byte("TYPING_DELAY_MS=90\n"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Setenv("TYPING_DELAY_MS", "10")

	cfg, err := Reload(envPath)
	if err != nil {
		t.Fatalf("Reload() failed: %v", err)
	}
	if cfg.TypingDelay != 90*time.Millisecond {
		t.Errorf("TypingDelay = %v, want 90ms", cfg.TypingDelay)
	}

	if _, err := Reload(filepath.Join(tmpDir, "missing.env")); err == nil {
		t.Error("Reload() of a missing file should fail")
	}
}

func TestWatch(t *testing.T) {
	tmpDir := t.TempDir()
	envPath := filepath.Join(tmpDir, ".env")
	if err := os.WriteFile(envPath, []byte("PROGRESS_EVERY=50\n"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	if err := Watch(ctx, envPath, func(cfg *Config) { changes <- cfg }); err != nil {
		t.Fatalf("Watch() failed: %v", err)
	}

	if err := os.WriteFile(envPath, []byte("PROGRESS_EVERY=10\n"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	select {
	case cfg := <-changes:
		if cfg.ProgressEvery != 10 {
			t.Errorf("ProgressEvery = %d, want 10", cfg.ProgressEvery)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config reload")
	}
}

func TestWatch_NoPath(t *testing.T) {
	if err := Watch(context.Background(), "", func(*Config) {}); err == nil {
		t.Error("Watch(\"\") should fail")
	}
}
