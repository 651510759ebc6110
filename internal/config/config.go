package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/erikbeerepoot/bramble/internal/errors"
	"github.com/erikbeerepoot/bramble/internal/logger"
)

// Serial drivers
const (
	DriverBugst = "bugst"
	DriverTarm  = "tarm"
)

// Config represents the complete application configuration
type Config struct {
	Serial  SerialConfig         `yaml:"serial"`
	Hub     HubConfig            `yaml:"hub"`
	Storage StorageConfig        `yaml:"storage"`
	Queue   QueueConfig          `yaml:"queue"`
	HTTP    HTTPConfig           `yaml:"http"`
	MQTT    MQTTConfig           `yaml:"mqtt"`
	Logging logger.LoggingConfig `yaml:"logging"`
}

// SerialConfig contains the hub link settings
type SerialConfig struct {
	Port        string  `yaml:"port"`
	Baud        int     `yaml:"baud"`
	Driver      string  `yaml:"driver"`       // bugst or tarm
	ReadTimeout float64 `yaml:"read_timeout"` // seconds
}

// HubConfig contains command engine settings
type HubConfig struct {
	CommandTimeout       float64 `yaml:"command_timeout"`        // seconds
	QuietPeriod          float64 `yaml:"quiet_period"`           // seconds
	DatetimeSyncInterval int     `yaml:"datetime_sync_interval"` // seconds, 0 disables
}

// StorageConfig contains the reading store and write buffer settings
type StorageConfig struct {
	Path          string  `yaml:"path"`
	BatchSize     int     `yaml:"batch_size"`
	FlushInterval float64 `yaml:"flush_interval"` // seconds
}

// QueueConfig contains the outbound task queue retry contract
type QueueConfig struct {
	Path         string  `yaml:"path"`          // defaults to the storage database
	MaxRetries   int     `yaml:"max_retries"`
	RetryDelay   float64 `yaml:"retry_delay"`   // seconds
	PollInterval float64 `yaml:"poll_interval"` // seconds
}

// HTTPConfig contains API server settings
type HTTPConfig struct {
	Addr         string `yaml:"addr"`
	ReadTimeout  int    `yaml:"read_timeout"`  // seconds
	WriteTimeout int    `yaml:"write_timeout"` // seconds
	MetricsPath  string `yaml:"metrics_path"`
}

// MQTTConfig contains the optional broker used to publish readings
type MQTTConfig struct {
	Broker          string `yaml:"broker"` // empty disables MQTT
	Port            int    `yaml:"port"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	ClientID        string `yaml:"client_id"`
	TopicPrefix     string `yaml:"topic_prefix"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`   // Home Assistant, empty disables discovery
	RetryDelay      int    `yaml:"retry_delay"`        // milliseconds
	KeepAlive       int    `yaml:"keep_alive"`         // seconds
	Heartbeat       int    `yaml:"heartbeat_interval"` // seconds, 0 disables
}

// Default returns a configuration populated with the built-in defaults
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:        "/dev/ttyAMA0",
			Baud:        115200,
			Driver:      DriverBugst,
			ReadTimeout: 1.0,
		},
		Hub: HubConfig{
			CommandTimeout: 5.0,
			QuietPeriod:    0.5,
		},
		Storage: StorageConfig{
			Path:          "/data/sensor_data.db",
			BatchSize:     100,
			FlushInterval: 60,
		},
		Queue: QueueConfig{
			MaxRetries:   3,
			RetryDelay:   30,
			PollInterval: 1,
		},
		HTTP: HTTPConfig{
			Addr:         ":5000",
			ReadTimeout:  15,
			WriteTimeout: 30,
			MetricsPath:  "/metrics",
		},
		MQTT: MQTTConfig{
			Port:            1883,
			ClientID:        "bramble-hub",
			TopicPrefix:     "bramble",
			DiscoveryPrefix: "homeassistant",
			RetryDelay:      5000,
			KeepAlive:       60,
			Heartbeat:       20,
		},
		Logging: logger.LoggingConfig{
			Level:  logger.LogLevelInfo,
			Format: logger.FormatConsole,
		},
	}
}

// LoadConfig loads defaults, then the YAML file, then .env and environment overrides.
// A missing file is only an error when configPath was given explicitly.
func LoadConfig(configPath string) (*Config, error) {
	paths := []string{
		configPath,
		"/etc/bramble/config.yaml",
		"./config.yaml",
	}

	cfg := Default()
	usedPath := ""

	for _, path := range paths {
		if path == "" {
			continue
		}
		// #nosec G304 - Paths are from a hardcoded list of configuration file locations
		data, err := os.ReadFile(path)
		if err != nil {
			if path == configPath {
				return nil, errors.NewConfigError("read", err, path)
			}
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.NewConfigError("parse", fmt.Errorf("%s: %w", path, err), "")
		}
		usedPath = path
		break
	}

	if err := godotenv.Load(); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		logger.LogWarn("Could not load .env file: %v", err)
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if usedPath != "" {
		logger.LogInfo("✅ Configuration loaded from %s", usedPath)
	} else {
		logger.LogInfo("✅ Configuration loaded from defaults and environment")
	}
	return cfg, nil
}

// LoadConfigFromString loads configuration from a YAML string (for testing)
func LoadConfigFromString(yamlContent string) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(yamlContent), cfg); err != nil {
		return nil, errors.NewConfigError("parse", err, "")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables using lookup
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var firstErr error
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			if firstErr == nil {
				firstErr = errors.NewConfigError("env", err, key)
			}
			return
		}
		*dst = n
	}
	seconds := func(key string, dst *float64) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			if firstErr == nil {
				firstErr = errors.NewConfigError("env", err, key)
			}
			return
		}
		*dst = f
	}

	str("SERIAL_PORT", &cfg.Serial.Port)
	num("SERIAL_BAUD", &cfg.Serial.Baud)
	str("SERIAL_DRIVER", &cfg.Serial.Driver)
	seconds("SERIAL_TIMEOUT", &cfg.Serial.ReadTimeout)
	seconds("COMMAND_TIMEOUT", &cfg.Hub.CommandTimeout)
	seconds("QUIET_PERIOD", &cfg.Hub.QuietPeriod)
	num("DATETIME_SYNC_INTERVAL", &cfg.Hub.DatetimeSyncInterval)
	num("MAX_RETRIES", &cfg.Queue.MaxRetries)
	seconds("RETRY_DELAY", &cfg.Queue.RetryDelay)
	str("QUEUE_DB_PATH", &cfg.Queue.Path)
	str("SENSOR_DB_PATH", &cfg.Storage.Path)
	num("DB_BATCH_SIZE", &cfg.Storage.BatchSize)
	seconds("DB_FLUSH_INTERVAL", &cfg.Storage.FlushInterval)
	str("HTTP_ADDR", &cfg.HTTP.Addr)
	str("MQTT_BROKER", &cfg.MQTT.Broker)
	num("MQTT_PORT", &cfg.MQTT.Port)
	str("MQTT_USERNAME", &cfg.MQTT.Username)
	str("MQTT_PASSWORD", &cfg.MQTT.Password)
	str("MQTT_TOPIC_PREFIX", &cfg.MQTT.TopicPrefix)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FILE", &cfg.Logging.File)
	str("LOG_FORMAT", &cfg.Logging.Format)

	return firstErr
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	invalid := func(field, reason string) error {
		return errors.NewConfigError("validate", fmt.Errorf("%s", reason), field)
	}

	if c.Serial.Port == "" {
		return invalid("serial.port", "is not specified")
	}
	if c.Serial.Baud <= 0 {
		return invalid("serial.baud", "must be positive")
	}
	switch c.Serial.Driver {
	case DriverBugst, DriverTarm:
	default:
		return invalid("serial.driver", fmt.Sprintf("must be %q or %q, got %q", DriverBugst, DriverTarm, c.Serial.Driver))
	}
	if c.Serial.ReadTimeout <= 0 {
		return invalid("serial.read_timeout", "must be positive")
	}
	if c.Hub.CommandTimeout <= 0 {
		return invalid("hub.command_timeout", "must be positive")
	}
	if c.Hub.QuietPeriod <= 0 {
		return invalid("hub.quiet_period", "must be positive")
	}
	if c.Hub.DatetimeSyncInterval < 0 {
		return invalid("hub.datetime_sync_interval", "must be non-negative")
	}
	if c.Storage.Path == "" {
		return invalid("storage.path", "is not specified")
	}
	if c.Storage.BatchSize <= 0 {
		return invalid("storage.batch_size", "must be positive")
	}
	if c.Storage.FlushInterval <= 0 {
		return invalid("storage.flush_interval", "must be positive")
	}
	if c.Queue.MaxRetries < 0 {
		return invalid("queue.max_retries", "must be non-negative")
	}
	if c.Queue.RetryDelay < 0 {
		return invalid("queue.retry_delay", "must be non-negative")
	}
	if c.Queue.PollInterval <= 0 {
		return invalid("queue.poll_interval", "must be positive")
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "is not specified")
	}
	if c.MQTT.Broker != "" && c.MQTT.Port <= 0 {
		return invalid("mqtt.port", "must be positive")
	}
	if c.MQTT.Broker != "" && c.MQTT.TopicPrefix == "" {
		return invalid("mqtt.topic_prefix", "is not specified")
	}
	if c.MQTT.Heartbeat < 0 {
		return invalid("mqtt.heartbeat_interval", "must be non-negative")
	}
	return nil
}
