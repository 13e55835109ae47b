// Package config provides configuration management for the task execution server.
// It supports loading configuration from environment variables, a config file,
// and built-in defaults, following spf13/viper conventions.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config aggregates every configuration section the server needs.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Docker  DockerConfig  `mapstructure:"docker"`
	Session SessionConfig `mapstructure:"session"`
	Task    TaskConfig    `mapstructure:"task"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Events  EventsConfig  `mapstructure:"events"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // seconds
}

func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// AgentConfig controls how the server talks to the underlying coding agent.
type AgentConfig struct {
	APIKey               string   `mapstructure:"apiKey"`
	BaseURL              string   `mapstructure:"baseUrl"`
	DefaultModel         string   `mapstructure:"defaultModel"`
	DefaultPermissionMode string  `mapstructure:"defaultPermissionMode"`
	DefaultAllowedTools  []string `mapstructure:"defaultAllowedTools"`
	MaxTurns             int      `mapstructure:"maxTurns"`
}

// DockerConfig controls the Docker-backed Agent Adapter.
type DockerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Image   string `mapstructure:"image"`
	Network string `mapstructure:"network"`
}

// SessionConfig controls the Session Manager's pool and idle reaper.
type SessionConfig struct {
	MaxConcurrent           int `mapstructure:"maxConcurrent"`
	IdleTimeoutSeconds      int `mapstructure:"idleTimeoutSeconds"`
	CleanupIntervalSeconds  int `mapstructure:"cleanupIntervalSeconds"`
}

func (s *SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutSeconds) * time.Second
}

func (s *SessionConfig) CleanupInterval() time.Duration {
	return time.Duration(s.CleanupIntervalSeconds) * time.Second
}

// TaskConfig controls the Task Executor and per-task Event Bus.
type TaskConfig struct {
	DefaultTimeoutSeconds int    `mapstructure:"defaultTimeoutSeconds"`
	MaxQueueSize          int    `mapstructure:"maxQueueSize"`
	RunDirectory          string `mapstructure:"runDirectory"`
}

func (t *TaskConfig) DefaultTimeout() time.Duration {
	return time.Duration(t.DefaultTimeoutSeconds) * time.Second
}

// AuthConfig controls the single shared-secret bearer auth guard.
type AuthConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BearerToken string `mapstructure:"bearerToken"`
}

// EventsConfig controls the coarse lifecycle telemetry bus.
type EventsConfig struct {
	NATSURL   string `mapstructure:"natsUrl"`
	Namespace string `mapstructure:"namespace"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("TASKSERVER_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	v.SetDefault("agent.baseUrl", "")
	v.SetDefault("agent.defaultModel", "")
	v.SetDefault("agent.defaultPermissionMode", "acceptEdits")
	v.SetDefault("agent.defaultAllowedTools", []string{"Read", "Write", "Edit", "Bash"})
	v.SetDefault("agent.maxTurns", 50)

	v.SetDefault("docker.enabled", true)
	v.SetDefault("docker.host", "unix:///var/run/docker.sock")
	v.SetDefault("docker.image", "taskserver/agent-runtime:latest")
	v.SetDefault("docker.network", "taskserver-network")

	v.SetDefault("session.maxConcurrent", 10)
	v.SetDefault("session.idleTimeoutSeconds", 1800)
	v.SetDefault("session.cleanupIntervalSeconds", 300)

	v.SetDefault("task.defaultTimeoutSeconds", 3600)
	v.SetDefault("task.maxQueueSize", 100)
	v.SetDefault("task.runDirectory", "./runs")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.bearerToken", "")

	v.SetDefault("events.natsUrl", "")
	v.SetDefault("events.namespace", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads configuration from environment variables (prefix TASKSERVER_),
// an optional config.yaml, and defaults.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath is Load but searches configPath first for config.yaml.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TASKSERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("agent.apiKey", "TASKSERVER_AGENT_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("agent.defaultModel", "TASKSERVER_AGENT_DEFAULT_MODEL")
	_ = v.BindEnv("logging.level", "TASKSERVER_LOG_LEVEL")
	_ = v.BindEnv("auth.bearerToken", "TASKSERVER_AUTH_BEARER_TOKEN")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/taskserver/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Agent.APIKey == "" {
		errs = append(errs, "agent.apiKey is required (set TASKSERVER_AGENT_API_KEY or ANTHROPIC_API_KEY)")
	}

	if cfg.Session.MaxConcurrent <= 0 {
		errs = append(errs, "session.maxConcurrent must be positive")
	}
	if cfg.Session.IdleTimeoutSeconds <= 0 {
		errs = append(errs, "session.idleTimeoutSeconds must be positive")
	}

	if cfg.Task.MaxQueueSize <= 0 {
		errs = append(errs, "task.maxQueueSize must be positive")
	}

	if cfg.Auth.Enabled && cfg.Auth.BearerToken == "" {
		cfg.Auth.BearerToken = generateDevSecret()
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text, console")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// generateDevSecret produces a random bearer token for development use when
// auth is enabled but no token was configured.
func generateDevSecret() string {
	return "dev-" + uuid.NewString()
}
