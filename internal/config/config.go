package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ErrMissingConfig is returned when a required configuration key is absent.
var ErrMissingConfig = errors.New("missing required configuration")

// Config holds the process settings shared by the Pulumi program and policyctl.
// The stack being described lives in Stack, not here.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Manifest   ManifestConfig   `yaml:"manifest"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

type ServerConfig struct {
	BindAddr  string `yaml:"bind_addr"`
	AuthToken string `yaml:"auth_token"` // bearer token for the preview API; empty disables auth
}

// DatabaseConfig points at the optional policy catalog. An empty Host disables it.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// PrometheusConfig enables the PromQL preflight when URL is set.
type PrometheusConfig struct {
	URL          string `yaml:"url"`
	QueryTimeout string `yaml:"query_timeout"` // e.g. "10s"
	Strict       bool   `yaml:"strict"`        // fail the run on preflight errors
}

// MetricsConfig enables pushing run metrics when PushgatewayURL is set.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

type ManifestConfig struct {
	OutputFile string `yaml:"output_file"`
}

// Enabled reports whether a catalog database is configured.
func (c DatabaseConfig) Enabled() bool { return strings.TrimSpace(c.Host) != "" }

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Timeout parses QueryTimeout, falling back to 10s.
func (c PrometheusConfig) Timeout() time.Duration {
	if c.QueryTimeout == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(c.QueryTimeout)
	if err != nil {
		log.Warn().Err(err).Str("timeout", c.QueryTimeout).Msg("invalid prometheus query timeout, using default")
		return 10 * time.Second
	}
	return d
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Server:  ServerConfig{BindAddr: "0.0.0.0:8080"},
		Database: DatabaseConfig{
			Port:    5432,
			DBName:  "alert_policies",
			SSLMode: "disable",
		},
		Prometheus: PrometheusConfig{QueryTimeout: "10s"},
		Metrics:    MetricsConfig{Job: "alert-policies"},
	}
}

// Load builds the configuration from defaults, the optional YAML file at path,
// and environment overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}
	log.Debug().Str("config_file", filePath).Msg("configuration file loaded")
	return nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Console = getEnvBool("LOG_CONSOLE", cfg.Logging.Console)
	cfg.Server.BindAddr = getEnv("SERVER_BIND_ADDR", cfg.Server.BindAddr)
	cfg.Server.AuthToken = getEnv("SERVER_AUTH_TOKEN", cfg.Server.AuthToken)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("DB_NAME", cfg.Database.DBName)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)

	cfg.Prometheus.URL = getEnv("PROMETHEUS_URL", cfg.Prometheus.URL)
	cfg.Prometheus.QueryTimeout = getEnv("PROMETHEUS_QUERY_TIMEOUT", cfg.Prometheus.QueryTimeout)
	cfg.Prometheus.Strict = getEnvBool("PROMETHEUS_PREFLIGHT_STRICT", cfg.Prometheus.Strict)

	cfg.Metrics.PushgatewayURL = getEnv("PUSHGATEWAY_URL", cfg.Metrics.PushgatewayURL)
	cfg.Metrics.Job = getEnv("PUSHGATEWAY_JOB", cfg.Metrics.Job)

	cfg.Manifest.OutputFile = getEnv("MANIFEST_OUTPUT_FILE", cfg.Manifest.OutputFile)
}

func validate(cfg *Config) error {
	if cfg.Prometheus.QueryTimeout != "" {
		if _, err := time.ParseDuration(cfg.Prometheus.QueryTimeout); err != nil {
			return fmt.Errorf("invalid prometheus query timeout: %w", err)
		}
	}
	if cfg.Server.BindAddr == "" {
		return fmt.Errorf("server bind address is required")
	}
	if cfg.Metrics.PushgatewayURL != "" && cfg.Metrics.Job == "" {
		return fmt.Errorf("pushgateway job is required when pushgateway url is set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
