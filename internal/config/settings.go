package config

import (
	"time"
)

// SerialSettings contains only the serial link configuration
// Used for dependency injection to avoid coupling to full Config
type SerialSettings struct {
	Port        string
	Baud        int
	Driver      string
	ReadTimeout time.Duration
}

// NewSerialSettings extracts serial settings from full config
func NewSerialSettings(cfg *Config) SerialSettings {
	return SerialSettings{
		Port:        cfg.Serial.Port,
		Baud:        cfg.Serial.Baud,
		Driver:      cfg.Serial.Driver,
		ReadTimeout: seconds(cfg.Serial.ReadTimeout),
	}
}

// EngineSettings contains the command/response engine configuration
type EngineSettings struct {
	CommandTimeout       time.Duration
	QuietPeriod          time.Duration
	DatetimeSyncInterval time.Duration
}

// NewEngineSettings extracts engine settings from full config
func NewEngineSettings(cfg *Config) EngineSettings {
	return EngineSettings{
		CommandTimeout:       seconds(cfg.Hub.CommandTimeout),
		QuietPeriod:          seconds(cfg.Hub.QuietPeriod),
		DatetimeSyncInterval: time.Duration(cfg.Hub.DatetimeSyncInterval) * time.Second,
	}
}

// StorageSettings contains the database and write buffer configuration
type StorageSettings struct {
	Path          string
	BatchSize     int
	FlushInterval time.Duration
}

// NewStorageSettings extracts storage settings from full config
func NewStorageSettings(cfg *Config) StorageSettings {
	return StorageSettings{
		Path:          cfg.Storage.Path,
		BatchSize:     cfg.Storage.BatchSize,
		FlushInterval: seconds(cfg.Storage.FlushInterval),
	}
}

// QueueSettings contains the outbound task queue configuration
type QueueSettings struct {
	Path         string
	MaxRetries   int
	RetryDelay   time.Duration
	PollInterval time.Duration
}

// NewQueueSettings extracts queue settings from full config
func NewQueueSettings(cfg *Config) QueueSettings {
	return QueueSettings{
		Path:         cfg.Queue.Path,
		MaxRetries:   cfg.Queue.MaxRetries,
		RetryDelay:   seconds(cfg.Queue.RetryDelay),
		PollInterval: seconds(cfg.Queue.PollInterval),
	}
}

// MQTTSettings contains only MQTT-specific configuration
type MQTTSettings struct {
	Broker          string
	Port            int
	Username        string
	Password        string
	ClientID        string
	TopicPrefix     string
	DiscoveryPrefix string
	RetryDelay      time.Duration
	KeepAlive       time.Duration
	Heartbeat       time.Duration
}

// NewMQTTSettings extracts MQTT settings from full config
func NewMQTTSettings(cfg *Config) MQTTSettings {
	return MQTTSettings{
		Broker:          cfg.MQTT.Broker,
		Port:            cfg.MQTT.Port,
		Username:        cfg.MQTT.Username,
		Password:        cfg.MQTT.Password,
		ClientID:        cfg.MQTT.ClientID,
		TopicPrefix:     cfg.MQTT.TopicPrefix,
		DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
		RetryDelay:      time.Duration(cfg.MQTT.RetryDelay) * time.Millisecond,
		KeepAlive:       time.Duration(cfg.MQTT.KeepAlive) * time.Second,
		Heartbeat:       time.Duration(cfg.MQTT.Heartbeat) * time.Second,
	}
}

// Enabled reports whether a broker is configured
func (s MQTTSettings) Enabled() bool {
	return s.Broker != ""
}

// HTTPSettings contains only API server configuration
type HTTPSettings struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MetricsPath  string
}

// NewHTTPSettings extracts HTTP settings from full config
func NewHTTPSettings(cfg *Config) HTTPSettings {
	return HTTPSettings{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
		MetricsPath:  cfg.HTTP.MetricsPath,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
