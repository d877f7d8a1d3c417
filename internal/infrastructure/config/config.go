package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Ovenlink Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Cloud    CloudConfig    `yaml:"cloud"`
	Command  CommandConfig  `yaml:"command"`
	Executor ExecutorConfig `yaml:"executor"`
	Recipes  RecipesConfig  `yaml:"recipes"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// CloudConfig contains vendor cloud connection settings.
type CloudConfig struct {
	// URL is the WebSocket endpoint of the vendor cloud service.
	URL string `yaml:"url"`

	// Token is the account access token presented during authentication.
	Token string `yaml:"token"`

	// ConnectTimeout is the maximum time to establish and authenticate
	// a session, in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`

	// Reconnect controls the backoff applied after an unexpected disconnect.
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig contains reconnection backoff settings.
type ReconnectConfig struct {
	// InitialDelay is the first retry delay, in seconds.
	InitialDelay int `yaml:"initial_delay"`

	// MaxDelay caps the exponential backoff, in seconds.
	MaxDelay int `yaml:"max_delay"`

	// MaxAttempts limits consecutive attempts. 0 means unlimited.
	MaxAttempts int `yaml:"max_attempts"`
}

// CommandConfig contains command dispatch settings.
type CommandConfig struct {
	// AckTimeout is how long to wait for a command acknowledgement
	// from the cloud, in seconds.
	AckTimeout int `yaml:"ack_timeout"`

	// QueueSize is the per-device FIFO depth for commands waiting
	// behind the in-flight one.
	QueueSize int `yaml:"queue_size"`
}

// ExecutorConfig contains recipe executor settings.
type ExecutorConfig struct {
	// OfflineGrace is how long a device may be unreachable mid-recipe
	// before the run is failed, in seconds.
	OfflineGrace int `yaml:"offline_grace"`
}

// RecipesConfig contains recipe library settings.
type RecipesConfig struct {
	// Path is the YAML recipe library file. Empty disables the library.
	Path string `yaml:"path"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetention is how long cook history rows are kept, in
	// hours. 0 disables pruning.
	HistoryRetention int `yaml:"history_retention"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Broker    MQTTBrokerConfig `yaml:"broker"`
	Auth      MQTTAuthConfig   `yaml:"auth"`
	QoS       int              `yaml:"qos"`
	Reconnect ReconnectConfig  `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: OVENLINK_SECTION_KEY
// For example: OVENLINK_CLOUD_TOKEN, OVENLINK_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Cloud: CloudConfig{
			URL:            "wss://devices.anovaculinary.io",
			ConnectTimeout: 10,
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     120,
				MaxAttempts:  0,
			},
		},
		Command: CommandConfig{
			AckTimeout: 10,
			QueueSize:  16,
		},
		Executor: ExecutorConfig{
			OfflineGrace: 60,
		},
		Recipes: RecipesConfig{
			Path: "configs/recipes.yaml",
		},
		Database: DatabaseConfig{
			Path:             "./data/ovenlink.db",
			WALMode:          true,
			BusyTimeout:      5,
			HistoryRetention: 720,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "ovenlink-core",
			},
			QoS: 1,
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: OVENLINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Cloud - the account token is the credential deployments inject at runtime
	if v := os.Getenv("OVENLINK_CLOUD_TOKEN"); v != "" {
		cfg.Cloud.Token = v
	}
	if v := os.Getenv("OVENLINK_CLOUD_URL"); v != "" {
		cfg.Cloud.URL = v
	}

	// Database
	if v := os.Getenv("OVENLINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Recipes
	if v := os.Getenv("OVENLINK_RECIPES_PATH"); v != "" {
		cfg.Recipes.Path = v
	}

	// MQTT
	if v := os.Getenv("OVENLINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("OVENLINK_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("OVENLINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("OVENLINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("OVENLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Cloud validation
	if c.Cloud.URL == "" {
		errs = append(errs, "cloud.url is required")
	} else if !strings.HasPrefix(c.Cloud.URL, "ws://") && !strings.HasPrefix(c.Cloud.URL, "wss://") {
		errs = append(errs, "cloud.url must be a ws:// or wss:// endpoint")
	}
	if c.Cloud.Token == "" {
		errs = append(errs, "cloud.token is required (set OVENLINK_CLOUD_TOKEN environment variable)")
	}
	if c.Cloud.ConnectTimeout < 1 {
		errs = append(errs, "cloud.connect_timeout must be at least 1 second")
	}
	if c.Cloud.Reconnect.InitialDelay < 1 {
		errs = append(errs, "cloud.reconnect.initial_delay must be at least 1 second")
	}
	if c.Cloud.Reconnect.MaxDelay < c.Cloud.Reconnect.InitialDelay {
		errs = append(errs, "cloud.reconnect.max_delay must be >= initial_delay")
	}

	// Command validation
	if c.Command.AckTimeout < 1 {
		errs = append(errs, "command.ack_timeout must be at least 1 second")
	}
	if c.Command.QueueSize < 1 {
		errs = append(errs, "command.queue_size must be at least 1")
	}

	// Executor validation
	if c.Executor.OfflineGrace < 1 {
		errs = append(errs, "executor.offline_grace must be at least 1 second")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.HistoryRetention < 0 {
		errs = append(errs, "database.history_retention must not be negative")
	}

	// MQTT validation
	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetConnectTimeout returns the cloud connect timeout as a Duration.
func (c *CloudConfig) GetConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

// GetInitialDelay returns the initial reconnect delay as a Duration.
func (r *ReconnectConfig) GetInitialDelay() time.Duration {
	return time.Duration(r.InitialDelay) * time.Second
}

// GetMaxDelay returns the maximum reconnect delay as a Duration.
func (r *ReconnectConfig) GetMaxDelay() time.Duration {
	return time.Duration(r.MaxDelay) * time.Second
}

// GetAckTimeout returns the command acknowledgement timeout as a Duration.
func (c *CommandConfig) GetAckTimeout() time.Duration {
	return time.Duration(c.AckTimeout) * time.Second
}

// GetHistoryRetention returns the cook history retention as a Duration.
// Zero means pruning is disabled.
func (d *DatabaseConfig) GetHistoryRetention() time.Duration {
	return time.Duration(d.HistoryRetention) * time.Hour
}

// GetOfflineGrace returns the executor offline grace period as a Duration.
func (e *ExecutorConfig) GetOfflineGrace() time.Duration {
	return time.Duration(e.OfflineGrace) * time.Second
}
