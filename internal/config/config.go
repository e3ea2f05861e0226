package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"chefassist/internal/engine"
	"chefassist/internal/session"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig          `yaml:"server"`
	Metrics   MetricsConfig         `yaml:"metrics"`
	Database  DatabaseConfig        `yaml:"database"`
	LLM       engine.ProviderConfig `yaml:"llm"`
	Assistant AssistantConfig       `yaml:"assistant"`
	Auth      AuthConfig            `yaml:"auth"`
	Log       LogConfig             `yaml:"log"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	Mode            string        `yaml:"mode"` // gin mode: debug, release or test
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite3 or postgres
	DSN    string `yaml:"dsn"`
	Seed   bool   `yaml:"seed"`
}

// AssistantConfig bounds a single assistant session.
type AssistantConfig struct {
	SessionTimeout  time.Duration `yaml:"session_timeout"`
	MaxToolRounds   int           `yaml:"max_tool_rounds"`
	StreamBuffer    int           `yaml:"stream_buffer"`
	ToolConcurrency int           `yaml:"tool_concurrency"`
	HistoryLimit    int           `yaml:"history_limit"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type LogConfig struct {
	Mode     string `yaml:"mode"` // dev, prod or test
	HashSalt string `yaml:"hash_salt"`
}

// Session converts the assistant section to orchestrator settings.
func (a AssistantConfig) Session() session.Config {
	return session.Config{
		Timeout:         a.SessionTimeout,
		MaxToolRounds:   a.MaxToolRounds,
		ToolConcurrency: a.ToolConcurrency,
		HistoryLimit:    a.HistoryLimit,
	}
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Mode:            "release",
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "chefassist.db",
		},
		LLM: engine.ProviderConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
		},
		Assistant: AssistantConfig{
			SessionTimeout:  2 * time.Minute,
			MaxToolRounds:   8,
			StreamBuffer:    32,
			ToolConcurrency: 4,
			HistoryLimit:    40,
		},
		Auth: AuthConfig{
			TokenTTL: 12 * time.Hour,
		},
		Log: LogConfig{
			Mode: "prod",
		},
	}
}

// Load reads a YAML file over the defaults and applies CHEFASSIST_* overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	str := map[string]*string{
		"CHEFASSIST_SERVER_MODE":  &c.Server.Mode,
		"CHEFASSIST_DB_DRIVER":    &c.Database.Driver,
		"CHEFASSIST_DB_DSN":       &c.Database.DSN,
		"CHEFASSIST_LLM_PROVIDER": &c.LLM.Provider,
		"CHEFASSIST_LLM_MODEL":    &c.LLM.Model,
		"CHEFASSIST_LLM_API_KEY":  &c.LLM.APIKey,
		"CHEFASSIST_LLM_BASE_URL": &c.LLM.BaseURL,
		"CHEFASSIST_JWT_SECRET":   &c.Auth.JWTSecret,
		"CHEFASSIST_LOG_MODE":     &c.Log.Mode,
		"CHEFASSIST_LOG_SALT":     &c.Log.HashSalt,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"CHEFASSIST_PORT":            &c.Server.Port,
		"CHEFASSIST_METRICS_PORT":    &c.Metrics.Port,
		"CHEFASSIST_MAX_TOOL_ROUNDS": &c.Assistant.MaxToolRounds,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
	}

	if v := os.Getenv("CHEFASSIST_SESSION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CHEFASSIST_SESSION_TIMEOUT: %w", err)
		}
		c.Assistant.SessionTimeout = d
	}
	return nil
}

// Validate checks everything the server needs except the LLM key, which only
// `serve` requires.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		errs = append(errs, fmt.Errorf("metrics.port out of range: %d", c.Metrics.Port))
	}
	if c.Metrics.Enabled && c.Metrics.Port == c.Server.Port {
		errs = append(errs, errors.New("metrics.port must differ from server.port"))
	}
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported database.driver %q (valid: sqlite3, postgres)", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Assistant.SessionTimeout <= 0 {
		errs = append(errs, errors.New("assistant.session_timeout must be positive"))
	}
	if c.Assistant.MaxToolRounds <= 0 {
		errs = append(errs, errors.New("assistant.max_tool_rounds must be positive"))
	}
	if c.Assistant.StreamBuffer <= 0 {
		errs = append(errs, errors.New("assistant.stream_buffer must be positive"))
	}
	if c.Assistant.ToolConcurrency <= 0 {
		errs = append(errs, errors.New("assistant.tool_concurrency must be positive"))
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 16 characters (set CHEFASSIST_JWT_SECRET)"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
