package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// AgentConfig controls the scheduler loop and task defaults.
type AgentConfig struct {
	// TickInterval is the delay between ticks while work is pending
	TickInterval time.Duration `yaml:"tick_interval"`

	// IdleInterval is the delay between ticks when the queue is empty or
	// the synthesis worker is unhealthy
	IdleInterval time.Duration `yaml:"idle_interval"`

	// MaxAttempts is the default attempt budget for new tasks
	MaxAttempts int `yaml:"max_attempts"`

	// TargetLanguage is the default driver language for new tasks
	TargetLanguage string `yaml:"target_language"`
}

// WorkerConfig controls the resilience gateway around the synthesis worker.
type WorkerConfig struct {
	// BaseURL is the synthesis worker endpoint
	BaseURL string `yaml:"base_url"`

	// Timeout bounds a single synthesize call (the worker runs a
	// multi-agent workflow, so this is on the order of minutes)
	Timeout time.Duration `yaml:"timeout"`

	// RetryCount is the number of gateway-level retries on transient failures
	RetryCount int `yaml:"retry_count"`

	// RetryBaseDelay is the base for exponential backoff between retries
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`

	// BreakerThreshold is the consecutive-failure count that opens the circuit
	BreakerThreshold int `yaml:"breaker_threshold"`

	// BreakerCooldown is how long the open circuit rejects calls before a trial
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

// HealthConfig controls the cached health probe.
type HealthConfig struct {
	// Timeout bounds a single probe request
	Timeout time.Duration `yaml:"timeout"`

	// RetryCount is the number of probe retries before reporting unhealthy
	RetryCount int `yaml:"retry_count"`

	// RetryDelay is the pause between probe retries
	RetryDelay time.Duration `yaml:"retry_delay"`

	// CacheTTL is how long a probe result is shared between callers
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// StoreConfig controls task persistence.
type StoreConfig struct {
	// DBPath is the path to the SQLite database
	DBPath string `yaml:"db_path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level sets verbosity (trace, debug, info, warn, error)
	Level string `yaml:"level"`

	// Dir is where run log files are written
	Dir string `yaml:"dir"`
}

// Config represents synthd configuration options.
type Config struct {
	Agent   AgentConfig   `yaml:"agent"`
	Worker  WorkerConfig  `yaml:"worker"`
	Health  HealthConfig  `yaml:"health"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			TickInterval:   5 * time.Second,
			IdleInterval:   30 * time.Second,
			MaxAttempts:    5,
			TargetLanguage: "python",
		},
		Worker: WorkerConfig{
			BaseURL:          "http://localhost:8000",
			Timeout:          5 * time.Minute,
			RetryCount:       2,
			RetryBaseDelay:   2 * time.Second,
			BreakerThreshold: 3,
			BreakerCooldown:  15 * time.Second,
		},
		Health: HealthConfig{
			Timeout:    5 * time.Second,
			RetryCount: 2,
			RetryDelay: time.Second,
			CacheTTL:   10 * time.Second,
		},
		Store: StoreConfig{
			DBPath: filepath.Join(".synthd", "synthd.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   filepath.Join(".synthd", "logs"),
		},
	}
}

// yamlDurations mirrors the duration fields as strings so config files can
// use human-readable forms ("90s", "5m").
type yamlConfig struct {
	Agent struct {
		TickInterval   string `yaml:"tick_interval"`
		IdleInterval   string `yaml:"idle_interval"`
		MaxAttempts    int    `yaml:"max_attempts"`
		TargetLanguage string `yaml:"target_language"`
	} `yaml:"agent"`
	Worker struct {
		BaseURL          string `yaml:"base_url"`
		Timeout          string `yaml:"timeout"`
		RetryCount       int    `yaml:"retry_count"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		BreakerThreshold int    `yaml:"breaker_threshold"`
		BreakerCooldown  string `yaml:"breaker_cooldown"`
	} `yaml:"worker"`
	Health struct {
		Timeout    string `yaml:"timeout"`
		RetryCount int    `yaml:"retry_count"`
		RetryDelay string `yaml:"retry_delay"`
		CacheTTL   string `yaml:"cache_ttl"`
	} `yaml:"health"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoadConfig loads configuration from the specified file path.
// If the file doesn't exist, returns default configuration without error.
// If the file exists but is malformed, returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	// Apply non-zero values from file, merging with defaults.
	if err := applyDuration(&cfg.Agent.TickInterval, yamlCfg.Agent.TickInterval, "agent.tick_interval"); err != nil {
		return nil, err
	}
	if err := applyDuration(&cfg.Agent.IdleInterval, yamlCfg.Agent.IdleInterval, "agent.idle_interval"); err != nil {
		return nil, err
	}
	if yamlCfg.Agent.MaxAttempts != 0 {
		cfg.Agent.MaxAttempts = yamlCfg.Agent.MaxAttempts
	}
	if yamlCfg.Agent.TargetLanguage != "" {
		cfg.Agent.TargetLanguage = yamlCfg.Agent.TargetLanguage
	}

	if yamlCfg.Worker.BaseURL != "" {
		cfg.Worker.BaseURL = yamlCfg.Worker.BaseURL
	}
	if err := applyDuration(&cfg.Worker.Timeout, yamlCfg.Worker.Timeout, "worker.timeout"); err != nil {
		return nil, err
	}
	if yamlCfg.Worker.RetryCount != 0 {
		cfg.Worker.RetryCount = yamlCfg.Worker.RetryCount
	}
	if err := applyDuration(&cfg.Worker.RetryBaseDelay, yamlCfg.Worker.RetryBaseDelay, "worker.retry_base_delay"); err != nil {
		return nil, err
	}
	if yamlCfg.Worker.BreakerThreshold != 0 {
		cfg.Worker.BreakerThreshold = yamlCfg.Worker.BreakerThreshold
	}
	if err := applyDuration(&cfg.Worker.BreakerCooldown, yamlCfg.Worker.BreakerCooldown, "worker.breaker_cooldown"); err != nil {
		return nil, err
	}

	if err := applyDuration(&cfg.Health.Timeout, yamlCfg.Health.Timeout, "health.timeout"); err != nil {
		return nil, err
	}
	if yamlCfg.Health.RetryCount != 0 {
		cfg.Health.RetryCount = yamlCfg.Health.RetryCount
	}
	if err := applyDuration(&cfg.Health.RetryDelay, yamlCfg.Health.RetryDelay, "health.retry_delay"); err != nil {
		return nil, err
	}
	if err := applyDuration(&cfg.Health.CacheTTL, yamlCfg.Health.CacheTTL, "health.cache_ttl"); err != nil {
		return nil, err
	}

	if yamlCfg.Store.DBPath != "" {
		cfg.Store.DBPath = yamlCfg.Store.DBPath
	}
	if yamlCfg.Logging.Level != "" {
		cfg.Logging.Level = yamlCfg.Logging.Level
	}
	if yamlCfg.Logging.Dir != "" {
		cfg.Logging.Dir = yamlCfg.Logging.Dir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromDir loads configuration from dir/.synthd/config.yaml.
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ".synthd", "config.yaml"))
}

func applyDuration(dst *time.Duration, raw, field string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	*dst = d
	return nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Agent.TickInterval <= 0 {
		return fmt.Errorf("agent.tick_interval must be positive, got %s", c.Agent.TickInterval)
	}
	if c.Agent.IdleInterval <= 0 {
		return fmt.Errorf("agent.idle_interval must be positive, got %s", c.Agent.IdleInterval)
	}
	if c.Agent.MaxAttempts <= 0 {
		return fmt.Errorf("agent.max_attempts must be positive, got %d", c.Agent.MaxAttempts)
	}
	if c.Worker.BaseURL == "" {
		return fmt.Errorf("worker.base_url is required")
	}
	if c.Worker.Timeout <= 0 {
		return fmt.Errorf("worker.timeout must be positive, got %s", c.Worker.Timeout)
	}
	if c.Worker.RetryCount < 0 {
		return fmt.Errorf("worker.retry_count must not be negative, got %d", c.Worker.RetryCount)
	}
	if c.Worker.BreakerThreshold <= 0 {
		return fmt.Errorf("worker.breaker_threshold must be positive, got %d", c.Worker.BreakerThreshold)
	}
	if c.Health.CacheTTL <= 0 {
		return fmt.Errorf("health.cache_ttl must be positive, got %s", c.Health.CacheTTL)
	}
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of trace/debug/info/warn/error, got %q", c.Logging.Level)
	}
	return nil
}
