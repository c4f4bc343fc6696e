package config

import (
	"fmt"
	"os"
	"time"

	"market-terminal/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new Config instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// Default creates a Config with built-in defaults, for the test harness.
func Default() *Config {
	c := &Config{MConfig: &models.MConfig{
		Name: "market-terminal",
		Host: "127.0.0.1",
		Port: 8080,
		Gateway: models.MGatewayConfig{
			Host:     "127.0.0.1",
			Port:     7497,
			ClientID: 1,
		},
		Storage: models.MStorageConfig{DBType: "sqlite", DBPath: "market_terminal.db"},
	}}
	c.applyDefaults()
	return c
}

// -----------------------------------------------------------------------------

// applyDefaults fills zero values with the defaults modeled on vendor limits.
func (c *Config) applyDefaults() {
	gw := &c.Gateway
	if gw.ConnectionTimeoutSeconds <= 0 {
		gw.ConnectionTimeoutSeconds = 30
	}
	if gw.DataTimeoutSeconds <= 0 {
		gw.DataTimeoutSeconds = 10
	}
	if gw.StreamTimeoutSeconds <= 0 {
		gw.StreamTimeoutSeconds = 10
	}
	if gw.NewsTimeoutSeconds <= 0 {
		gw.NewsTimeoutSeconds = 30
	}
	if gw.SweepIntervalSeconds <= 0 {
		gw.SweepIntervalSeconds = 1
	}

	if c.Pacing.MaxRequests <= 0 {
		c.Pacing.MaxRequests = 45
	}
	if c.Pacing.WindowSeconds <= 0 {
		c.Pacing.WindowSeconds = 1
	}
	if c.Pacing.QueueDepth <= 0 {
		c.Pacing.QueueDepth = 512
	}

	if c.Streaming.BufferCapacity <= 0 {
		c.Streaming.BufferCapacity = 1000
	}

	if len(c.Analytics.MAPeriods) == 0 {
		c.Analytics.MAPeriods = []int{5, 10, 20}
	}
	if c.Analytics.VolatilityHighThreshold <= 0 {
		c.Analytics.VolatilityHighThreshold = 0.02
	}
	if c.Analytics.VolatilityLowThreshold <= 0 {
		c.Analytics.VolatilityLowThreshold = 0.005
	}

	if c.Storage.RetentionDays <= 0 {
		c.Storage.RetentionDays = 7
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	// Validate Gateway configuration
	if c.Gateway.Host == "" {
		return fmt.Errorf("gateway host cannot be empty")
	}
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port number: %d", c.Gateway.Port)
	}
	if c.Gateway.ClientID < 0 {
		return fmt.Errorf("gateway client id cannot be negative")
	}

	// Validate Pacing configuration
	if c.Pacing.MaxRequests <= 0 {
		return fmt.Errorf("pacing max requests must be greater than 0")
	}
	if c.Pacing.WindowSeconds <= 0 {
		return fmt.Errorf("pacing window must be greater than 0")
	}

	// Validate Analytics configuration
	for i, p := range c.Analytics.MAPeriods {
		if p <= 0 {
			return fmt.Errorf("ma period %d must be greater than 0", i)
		}
	}
	if c.Analytics.VolatilityLowThreshold >= c.Analytics.VolatilityHighThreshold {
		return fmt.Errorf("volatility low threshold must be below high threshold")
	}

	// Validate Storage configuration
	if c.Storage.DBType == "" {
		return fmt.Errorf("database type cannot be empty")
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite")
	}

	// Validate Publisher configuration
	if c.Publisher.Enabled && c.Publisher.URL == "" {
		return fmt.Errorf("publisher url cannot be empty when enabled")
	}

	return nil
}

// -----------------------------------------------------------------------------
// Duration accessors (timeouts are stored as plain seconds in YAML)
// -----------------------------------------------------------------------------

func (c *Config) ConnectionTimeout() time.Duration {
	return time.Duration(c.Gateway.ConnectionTimeoutSeconds) * time.Second
}

func (c *Config) DataTimeout() time.Duration {
	return time.Duration(c.Gateway.DataTimeoutSeconds) * time.Second
}

func (c *Config) StreamTimeout() time.Duration {
	return time.Duration(c.Gateway.StreamTimeoutSeconds) * time.Second
}

func (c *Config) NewsTimeout() time.Duration {
	return time.Duration(c.Gateway.NewsTimeoutSeconds) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Gateway.SweepIntervalSeconds) * time.Second
}

func (c *Config) PacingWindow() time.Duration {
	return time.Duration(c.Pacing.WindowSeconds) * time.Second
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
