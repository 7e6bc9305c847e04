package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the streamtag configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Store   StoreConfig   `yaml:"store"`
	Writer  WriterConfig  `yaml:"writer"`
	Rules   []RuleConfig  `yaml:"rules"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// StoreConfig holds document-store connection settings.
type StoreConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// WriterConfig holds the persist pipeline settings.
type WriterConfig struct {
	Index          string `yaml:"index"`
	Type           string `yaml:"type"`
	BatchSize      int    `yaml:"batch_size"`
	MaxBatchBytes  int    `yaml:"max_batch_bytes"` // 0 disables the byte threshold
	QueueDepth     int    `yaml:"queue_depth"`
	RetryAttempts  int    `yaml:"retry_attempts"`
	BackoffBaseMS  int    `yaml:"backoff_base_ms"`
	CallTimeoutSec int    `yaml:"call_timeout_sec"`
}

// RuleConfig holds one configured match-rule.
type RuleConfig struct {
	ID     string   `yaml:"id"`
	Query  string   `yaml:"query"`
	Fields []string `yaml:"fields"` // empty: catch-all field
	Policy string   `yaml:"policy"` // must (default), should, must_not
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "valkey"
	}
	if c.Store.ReadinessTimeout <= 0 {
		c.Store.ReadinessTimeout = 10
	}
	if c.Store.KeyPrefix == "" {
		c.Store.KeyPrefix = "streamtag:"
	}
	if c.Writer.Type == "" {
		c.Writer.Type = "activity"
	}
	if c.Writer.BatchSize <= 0 {
		c.Writer.BatchSize = 100
	}
	if c.Writer.QueueDepth <= 0 {
		c.Writer.QueueDepth = 1
	}
	if c.Writer.RetryAttempts <= 0 {
		c.Writer.RetryAttempts = 3
	}
	if c.Writer.BackoffBaseMS <= 0 {
		c.Writer.BackoffBaseMS = 500
	}
	if c.Writer.CallTimeoutSec <= 0 {
		c.Writer.CallTimeoutSec = 30
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Store.Addrs) == 0 {
		return fmt.Errorf("store.addrs is required")
	}
	switch c.Store.Driver {
	case "valkey", "redis":
	default:
		return fmt.Errorf("store.driver must be \"valkey\" or \"redis\", got %q", c.Store.Driver)
	}
	if c.Writer.Index == "" {
		return fmt.Errorf("writer.index is required")
	}
	seen := make(map[string]struct{}, len(c.Rules))
	for i, r := range c.Rules {
		if r.ID == "" {
			return fmt.Errorf("rules[%d].id is required", i)
		}
		if r.Query == "" {
			return fmt.Errorf("rules[%d].query is required", i)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("rules[%d].id %q is duplicated", i, r.ID)
		}
		seen[r.ID] = struct{}{}
		switch r.Policy {
		case "", "must", "should", "must_not":
		default:
			return fmt.Errorf(
				"rules[%d].policy must be \"must\", \"should\" or \"must_not\", got %q",
				i, r.Policy,
			)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
