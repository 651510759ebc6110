package main

import (
	"fmt"
	"os"

	"github.com/erikbeerepoot/bramble/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: validate_config <config-file>")
		os.Exit(1)
	}

	configPath := os.Args[1]
	fmt.Printf("📄 Loading config from: %s\n", configPath)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("❌ Error loading config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Config loaded successfully!\n")

	fmt.Printf("\n🔌 Serial\n")
	fmt.Printf("   Port: %s @ %d baud (driver %s)\n", cfg.Serial.Port, cfg.Serial.Baud, cfg.Serial.Driver)
	fmt.Printf("   Read timeout: %.1fs\n", cfg.Serial.ReadTimeout)

	fmt.Printf("\n📡 Hub\n")
	fmt.Printf("   Command timeout: %.1fs\n", cfg.Hub.CommandTimeout)
	fmt.Printf("   Quiet period: %.2fs\n", cfg.Hub.QuietPeriod)
	if cfg.Hub.DatetimeSyncInterval > 0 {
		fmt.Printf("   Datetime sync: every %ds\n", cfg.Hub.DatetimeSyncInterval)
	} else {
		fmt.Printf("   Datetime sync: disabled\n")
	}

	fmt.Printf("\n💾 Storage\n")
	fmt.Printf("   Database: %s\n", cfg.Storage.Path)
	fmt.Printf("   Write buffer: %d readings / %.0fs\n", cfg.Storage.BatchSize, cfg.Storage.FlushInterval)

	fmt.Printf("\n📋 Task queue\n")
	if cfg.Queue.Path == "" {
		fmt.Printf("   Database: shared with storage\n")
	} else {
		fmt.Printf("   Database: %s\n", cfg.Queue.Path)
	}
	fmt.Printf("   Retries: %d, delay %.0fs, poll %.1fs\n", cfg.Queue.MaxRetries, cfg.Queue.RetryDelay, cfg.Queue.PollInterval)

	fmt.Printf("\n🌐 HTTP\n")
	fmt.Printf("   Listen: %s\n", cfg.HTTP.Addr)
	fmt.Printf("   Timeouts: read %ds, write %ds\n", cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout)
	fmt.Printf("   Metrics: %s\n", cfg.HTTP.MetricsPath)

	fmt.Printf("\n📨 MQTT\n")
	if cfg.MQTT.Broker == "" {
		fmt.Printf("   Disabled (no broker)\n")
	} else {
		fmt.Printf("   Broker: %s:%d (client %s)\n", cfg.MQTT.Broker, cfg.MQTT.Port, cfg.MQTT.ClientID)
		fmt.Printf("   Topic prefix: %s\n", cfg.MQTT.TopicPrefix)
		if cfg.MQTT.DiscoveryPrefix != "" {
			fmt.Printf("   Home Assistant discovery: %s\n", cfg.MQTT.DiscoveryPrefix)
		} else {
			fmt.Printf("   Home Assistant discovery: disabled\n")
		}
	}

	fmt.Printf("\n📝 Logging: level %s, format %s\n", cfg.Logging.Level, cfg.Logging.Format)
	if cfg.Logging.File != "" {
		fmt.Printf("   File: %s\n", cfg.Logging.File)
	}
}
