package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	if cfg.LLM.Timeout.Std() != 120*time.Second {
		t.Errorf("LLM timeout = %v, want 120s", cfg.LLM.Timeout.Std())
	}
	if cfg.Worker.Concurrency != 4 {
		t.Errorf("concurrency = %d, want 4", cfg.Worker.Concurrency)
	}
	if cfg.Reconcile.StaleAfter.Std() != 15*time.Minute {
		t.Errorf("stale_after = %v, want 15m", cfg.Reconcile.StaleAfter.Std())
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Queue.Backend != "memory" {
		t.Errorf("expected default queue backend, got %s", cfg.Queue.Backend)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
llm:
  provider: openai
  base_url: https://api.openai.com/v1
  model: gpt-4o-mini
  timeout: 45s
tools:
  fact_timeout: 5s
worker:
  concurrency: 2
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Timeout.Std() != 45*time.Second {
		t.Errorf("llm not overlaid: %+v", cfg.LLM)
	}
	if cfg.Tools.TimeoutFor("fact") != 5*time.Second {
		t.Errorf("fact timeout = %v, want 5s", cfg.Tools.TimeoutFor("fact"))
	}
	if cfg.Tools.TimeoutFor("section") != 60*time.Second {
		t.Errorf("section timeout lost its default: %v", cfg.Tools.TimeoutFor("section"))
	}
	if cfg.Worker.Concurrency != 2 {
		t.Errorf("concurrency = %d, want 2", cfg.Worker.Concurrency)
	}
	if cfg.Database.Path == "" {
		t.Error("database path lost its default")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad duration", "llm:\n  timeout: soon\n", "invalid duration"},
		{"unknown provider", "llm:\n  provider: bard\n", "invalid config"},
		{"redis without url", "queue:\n  backend: redis\n  redis_url: \"\"\n", "invalid config"},
		{"zero concurrency", "worker:\n  concurrency: 0\n", "invalid config"},
		{"http tools without endpoint", "tools:\n  transport: http\n", "invalid config"},
		{"unknown trace exporter", "tracing:\n  exporter: zipkin\n", "invalid config"},
		{"sample ratio above one", "tracing:\n  sample_ratio: 2\n", "invalid config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	want := Default()
	want.Reconcile.Interval = Duration(90 * time.Second)

	if err := Save(path, want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "interval: 1m30s") {
		t.Errorf("durations should be written as strings:\n%s", data)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Reconcile.Interval != want.Reconcile.Interval {
		t.Errorf("interval = %v, want %v", got.Reconcile.Interval.Std(), want.Reconcile.Interval.Std())
	}
}

func TestResolvePath(t *testing.T) {
	if got, _ := ResolvePath("/tmp/flag.yaml"); got != "/tmp/flag.yaml" {
		t.Errorf("flag ignored: %s", got)
	}

	t.Setenv(EnvConfigPath, "/tmp/env.yaml")
	if got, _ := ResolvePath(""); got != "/tmp/env.yaml" {
		t.Errorf("env ignored: %s", got)
	}

	t.Setenv(EnvConfigPath, "")
	got, err := ResolvePath("")
	if err != nil {
		t.Fatalf("ResolvePath failed: %v", err)
	}
	if !strings.HasSuffix(got, filepath.Join(".dialectica", "config.yaml")) {
		t.Errorf("unexpected default path: %s", got)
	}
}
