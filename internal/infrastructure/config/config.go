package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the handset agent.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	ADB       ADBConfig       `yaml:"adb"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Companion CompanionConfig `yaml:"companion"`
	Master    MasterConfig    `yaml:"master"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AgentConfig describes how this agent is reachable from the master.
// The advertised endpoint is written into every device record on attach.
type AgentConfig struct {
	ID            string `yaml:"id"`
	AdvertiseHost string `yaml:"advertise_host"`
	AdvertisePort int    `yaml:"advertise_port"`
}

// ADBConfig contains Android Debug Bridge settings.
type ADBConfig struct {
	// Binary is the path to the adb executable.
	Binary string `yaml:"binary"`

	// ServerHost is where the adb server listens. Default: localhost
	ServerHost string `yaml:"server_host"`

	// ServerPort is the adb server port (adb -P). Default: 5037
	ServerPort int `yaml:"server_port"`

	// Managed indicates whether the agent should run the adb server itself.
	// If false, an adb server is expected to be running already.
	Managed bool `yaml:"managed"`

	RestartOnFailure    bool `yaml:"restart_on_failure"`
	RestartDelaySeconds int  `yaml:"restart_delay_seconds"`
	MaxRestartAttempts  int  `yaml:"max_restart_attempts"`

	// CommandTimeout bounds every individual adb invocation.
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// LifecycleConfig contains attach/detach processing settings.
type LifecycleConfig struct {
	// OnlineTimeout bounds how long an attach waits for the device to come online.
	OnlineTimeout time.Duration `yaml:"online_timeout"`

	// MaxConcurrentProvisions limits simultaneous first-seen provisioning runs.
	// 0 means unbounded.
	MaxConcurrentProvisions int `yaml:"max_concurrent_provisions"`

	// JournalRetention is how long lifecycle journal entries are kept.
	// 0 keeps them forever.
	JournalRetention time.Duration `yaml:"journal_retention"`

	// FleetReportInterval is how often fleet size is written to InfluxDB.
	FleetReportInterval time.Duration `yaml:"fleet_report_interval"`
}

// CompanionConfig locates the companion tool artefacts pushed to devices.
type CompanionConfig struct {
	// ResourcesDir holds minicap/, minitouch/ and uiautomator2/ subdirectories.
	ResourcesDir string `yaml:"resources_dir"`

	// RemoteDir is the writable on-device directory for pushed binaries.
	RemoteDir string `yaml:"remote_dir"`
}

// MasterConfig contains the central registry connection settings.
type MasterConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
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
// Environment variables follow the pattern: HANDSETAGENT_SECTION_KEY
// For example: HANDSETAGENT_MASTER_URL, HANDSETAGENT_ADB_BINARY
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			ID:            "agent-001",
			AdvertiseHost: "127.0.0.1",
			AdvertisePort: 10004,
		},
		ADB: ADBConfig{
			Binary:              "adb",
			ServerHost:          "localhost",
			ServerPort:          5037,
			Managed:             true,
			RestartOnFailure:    true,
			RestartDelaySeconds: 5,
			MaxRestartAttempts:  10,
			CommandTimeout:      2 * time.Minute,
		},
		Lifecycle: LifecycleConfig{
			OnlineTimeout:           60 * time.Second,
			MaxConcurrentProvisions: 4,
			JournalRetention:        30 * 24 * time.Hour,
			FleetReportInterval:     time.Minute,
		},
		Companion: CompanionConfig{
			ResourcesDir: "./vendor-resources",
			RemoteDir:    "/data/local/tmp",
		},
		Master: MasterConfig{
			BaseURL: "http://localhost:8887",
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        "./data/handsetagent.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "handsetagent",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 10004,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HANDSETAGENT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Agent
	if v := os.Getenv("HANDSETAGENT_AGENT_HOST"); v != "" {
		cfg.Agent.AdvertiseHost = v
	}
	if v := os.Getenv("HANDSETAGENT_AGENT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Agent.AdvertisePort = port
		}
	}

	// ADB
	if v := os.Getenv("HANDSETAGENT_ADB_BINARY"); v != "" {
		cfg.ADB.Binary = v
	}

	// Master
	if v := os.Getenv("HANDSETAGENT_MASTER_URL"); v != "" {
		cfg.Master.BaseURL = v
	}

	// Database
	if v := os.Getenv("HANDSETAGENT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("HANDSETAGENT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HANDSETAGENT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HANDSETAGENT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("HANDSETAGENT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Agent.AdvertiseHost == "" {
		errs = append(errs, "agent.advertise_host is required")
	}
	if c.Agent.AdvertisePort < 1 || c.Agent.AdvertisePort > 65535 {
		errs = append(errs, "agent.advertise_port must be between 1 and 65535")
	}

	if c.ADB.Binary == "" {
		errs = append(errs, "adb.binary is required")
	}
	if c.ADB.Managed && c.ADB.ServerHost != "localhost" && c.ADB.ServerHost != "127.0.0.1" {
		errs = append(errs, "adb.server_host must be local when adb.managed is true")
	}
	if c.ADB.ServerPort < 1 || c.ADB.ServerPort > 65535 {
		errs = append(errs, "adb.server_port must be between 1 and 65535")
	}

	if c.Lifecycle.OnlineTimeout <= 0 {
		errs = append(errs, "lifecycle.online_timeout must be positive")
	}
	if c.Lifecycle.MaxConcurrentProvisions < 0 {
		errs = append(errs, "lifecycle.max_concurrent_provisions cannot be negative")
	}
	if c.Lifecycle.JournalRetention < 0 {
		errs = append(errs, "lifecycle.journal_retention cannot be negative")
	}

	if c.Master.BaseURL == "" {
		errs = append(errs, "master.base_url is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
