// Package config loads the dialectica YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the default config location.
const EnvConfigPath = "DIALECTICA_CONFIG"

// Config is the complete dialectica configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Tools     ToolsConfig     `yaml:"tools"`
	Queue     QueueConfig     `yaml:"queue"`
	Worker    WorkerConfig    `yaml:"worker"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Log       LogConfig       `yaml:"log"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// LLMConfig selects and tunes the language model provider.
type LLMConfig struct {
	Provider    string   `yaml:"provider" validate:"oneof=ollama openai disabled"`
	BaseURL     string   `yaml:"base_url" validate:"required_if=Provider ollama"`
	Model       string   `yaml:"model" validate:"required_unless=Provider disabled"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	Temperature float64  `yaml:"temperature" validate:"gte=0,lte=2"`
	Timeout     Duration `yaml:"timeout" validate:"gt=0"`
}

// ToolsConfig selects how the research tools server is reached and bounds
// each tool class's calls.
type ToolsConfig struct {
	Transport       string   `yaml:"transport" validate:"oneof=inprocess command http"`
	Command         []string `yaml:"command" validate:"required_if=Transport command"`
	Endpoint        string   `yaml:"endpoint" validate:"required_if=Transport http"`
	ManifestTimeout Duration `yaml:"manifest_timeout" validate:"gt=0"`
	FactTimeout     Duration `yaml:"fact_timeout" validate:"gt=0"`
	SectionTimeout  Duration `yaml:"section_timeout" validate:"gt=0"`
	SearchTimeout   Duration `yaml:"search_timeout" validate:"gt=0"`
	AnalysisTimeout Duration `yaml:"analysis_timeout" validate:"gt=0"`
}

// TimeoutFor returns the call timeout for a tool class
// ("fact", "section", "search" or "analysis").
func (c ToolsConfig) TimeoutFor(class string) time.Duration {
	switch class {
	case "fact":
		return c.FactTimeout.Std()
	case "section":
		return c.SectionTimeout.Std()
	case "analysis":
		return c.AnalysisTimeout.Std()
	default:
		return c.SearchTimeout.Std()
	}
}

// QueueConfig selects the task queue backend.
type QueueConfig struct {
	Backend  string `yaml:"backend" validate:"oneof=memory redis"`
	RedisURL string `yaml:"redis_url" validate:"required_if=Backend redis"`
	Key      string `yaml:"key" validate:"required"`
}

// WorkerConfig sizes the dispatcher.
type WorkerConfig struct {
	Concurrency int      `yaml:"concurrency" validate:"min=1,max=64"`
	UnitTimeout Duration `yaml:"unit_timeout" validate:"gt=0"`
}

// ReconcileConfig schedules the repair sweep.
type ReconcileConfig struct {
	Interval   Duration `yaml:"interval" validate:"gt=0"`
	StaleAfter Duration `yaml:"stale_after" validate:"gt=0"`
}

// MetricsConfig exposes Prometheus metrics. An empty address disables the listener.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// TracingConfig selects where spans from serve are exported.
type TracingConfig struct {
	Exporter    string  `yaml:"exporter" validate:"oneof=none stdout otlp"`
	Endpoint    string  `yaml:"endpoint" validate:"required_if=Exporter otlp"`
	SampleRatio float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "~/.dialectica/dialectica.db"},
		LLM: LLMConfig{
			Provider:    "ollama",
			BaseURL:     "http://localhost:11434",
			Model:       "gemma3:27b",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0.3,
			Timeout:     Duration(120 * time.Second),
		},
		Tools: ToolsConfig{
			Transport:       "inprocess",
			ManifestTimeout: Duration(30 * time.Second),
			FactTimeout:     Duration(30 * time.Second),
			SectionTimeout:  Duration(60 * time.Second),
			SearchTimeout:   Duration(60 * time.Second),
			AnalysisTimeout: Duration(120 * time.Second),
		},
		Queue: QueueConfig{
			Backend:  "memory",
			RedisURL: "redis://localhost:6379/0",
			Key:      "dialectica:tasks",
		},
		Worker: WorkerConfig{
			Concurrency: 4,
			UnitTimeout: Duration(10 * time.Minute),
		},
		Reconcile: ReconcileConfig{
			Interval:   Duration(time.Minute),
			StaleAfter: Duration(15 * time.Minute),
		},
		Metrics: MetricsConfig{Addr: ":9464"},
		Tracing: TracingConfig{Exporter: "none", Endpoint: "localhost:4317", SampleRatio: 1},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// ResolvePath returns the config path: flag, then $DIALECTICA_CONFIG, then
// ~/.dialectica/config.yaml.
func ResolvePath(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".dialectica", "config.yaml"), nil
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path, creating its directory.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

var validate = validator.New()

// Validate checks every section's constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Duration is a time.Duration written as a string such as "30s" in YAML.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}
