// Package config provides configuration loading and validation for
// flowmetric. Supports YAML files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned when a configuration fails validation.
var ErrInvalid = errors.New("config: invalid configuration")

// Config holds all configuration for a flowmetric runtime.
type Config struct {
	Kafka         KafkaConfig         `yaml:"kafka"`
	Statsd        StatsdConfig        `yaml:"statsd"`
	Prometheus    PrometheusConfig    `yaml:"prometheus"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type KafkaConfig struct {
	Brokers          []string `yaml:"brokers"`
	GroupID          string   `yaml:"groupId"`
	ClientID         string   `yaml:"clientId"`
	Topics           []string `yaml:"topics"`
	SinkTopic        string   `yaml:"sinkTopic"`
	CommitIntervalMs int64    `yaml:"commitIntervalMs"`
	EndOffsetPollMs  int64    `yaml:"endOffsetPollMs"`
}

type StatsdConfig struct {
	Host   string  `yaml:"host"`
	Port   int     `yaml:"port"`
	Prefix string  `yaml:"prefix"`
	Rate   float64 `yaml:"rate"`
}

type PrometheusConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

type ObservabilityConfig struct {
	// Backend selects the metrics sensor: "datadog", "prometheus" or
	// "none".
	Backend   string `yaml:"backend"`
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Kafka: KafkaConfig{
			Brokers:          []string{"localhost:9092"},
			GroupID:          "flowmetric",
			CommitIntervalMs: 3000,
			EndOffsetPollMs:  10000,
		},
		Statsd: StatsdConfig{
			Host:   "localhost",
			Port:   8125,
			Prefix: "faust-app",
			Rate:   1.0,
		},
		Prometheus: PrometheusConfig{
			ListenAddr: ":9090",
		},
		Observability: ObservabilityConfig{
			Backend:   "datadog",
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load returns the default configuration with environment overrides
// applied.
func Load() (*Config, error) {
	cfg := Default()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath reads a YAML file over the defaults, then applies
// environment overrides.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from FLOWMETRIC_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("FLOWMETRIC_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("FLOWMETRIC_GROUP_ID"); v != "" {
		c.Kafka.GroupID = v
	}
	if v := os.Getenv("FLOWMETRIC_CLIENT_ID"); v != "" {
		c.Kafka.ClientID = v
	}
	if v := os.Getenv("FLOWMETRIC_TOPICS"); v != "" {
		c.Kafka.Topics = splitList(v)
	}
	if v := os.Getenv("FLOWMETRIC_SINK_TOPIC"); v != "" {
		c.Kafka.SinkTopic = v
	}
	if v := os.Getenv("FLOWMETRIC_STATSD_HOST"); v != "" {
		c.Statsd.Host = v
	}
	if v := os.Getenv("FLOWMETRIC_STATSD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Statsd.Port = port
		}
	}
	if v := os.Getenv("FLOWMETRIC_STATSD_PREFIX"); v != "" {
		c.Statsd.Prefix = v
	}
	if v := os.Getenv("FLOWMETRIC_STATSD_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			c.Statsd.Rate = rate
		}
	}
	if v := os.Getenv("FLOWMETRIC_PROMETHEUS_ADDR"); v != "" {
		c.Prometheus.ListenAddr = v
	}
	if v := os.Getenv("FLOWMETRIC_BACKEND"); v != "" {
		c.Observability.Backend = v
	}
	if v := os.Getenv("FLOWMETRIC_LOG_LEVEL"); v != "" {
		c.Observability.LogLevel = v
	}
	if v := os.Getenv("FLOWMETRIC_LOG_FORMAT"); v != "" {
		c.Observability.LogFormat = v
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("%w: kafka.brokers must not be empty", ErrInvalid)
	}
	if len(c.Kafka.Topics) == 0 {
		return fmt.Errorf("%w: kafka.topics must not be empty", ErrInvalid)
	}
	if c.Statsd.Rate < 0 || c.Statsd.Rate > 1 {
		return fmt.Errorf("%w: statsd.rate %v outside [0, 1]", ErrInvalid, c.Statsd.Rate)
	}
	switch c.Observability.Backend {
	case "datadog", "prometheus", "none":
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Observability.Backend)
	}
	return nil
}
