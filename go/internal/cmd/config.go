package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the hoot server's YAML configuration. Environment variables
// override individual fields where a getEnv default exists.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	NATS struct {
		URL        string `yaml:"url"`
		StreamName string `yaml:"stream_name"`
	} `yaml:"nats"`
	Gateway struct {
		WriteTimeout time.Duration `yaml:"write_timeout"`
		PingInterval time.Duration `yaml:"ping_interval"`
	} `yaml:"gateway"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// loadConfig reads the YAML config at path. A missing file yields an empty
// config so env vars and defaults can carry a bare deployment.
func loadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &config, nil
}

func (c *Config) port() string {
	if c.Server.Port != "" {
		return c.Server.Port
	}
	return getEnv("PORT", "8080")
}

func (c *Config) natsURL() string {
	if c.NATS.URL != "" {
		return c.NATS.URL
	}
	return getEnv("NATS_URL", "nats://localhost:4222")
}
