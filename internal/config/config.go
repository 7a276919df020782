package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port        int    `yaml:"port"`
		MetricsPort int    `yaml:"metrics_port"`
		InstanceID  string `yaml:"instance_id"`
	} `yaml:"server"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`
	Oracle struct {
		URL string `yaml:"url"`
	} `yaml:"oracle"`
	Agent struct {
		URL string `yaml:"url"`
	} `yaml:"agent"`
	Registry struct {
		Host  string `yaml:"host"`
		Token string `yaml:"token"`
	} `yaml:"registry"`
	Lock struct {
		Lease   string `yaml:"lease"`
		Timeout string `yaml:"timeout"`
	} `yaml:"lock"`
}

// LockLease returns the parsed lock lease duration.
func (c *Config) LockLease() time.Duration { return parseDuration(c.Lock.Lease, 30*time.Second) }

// LockTimeout returns the parsed lock acquisition timeout.
func (c *Config) LockTimeout() time.Duration { return parseDuration(c.Lock.Timeout, 10*time.Second) }

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}
