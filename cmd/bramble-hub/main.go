package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/erikbeerepoot/bramble/internal/app"
	"github.com/erikbeerepoot/bramble/internal/config"
	"github.com/erikbeerepoot/bramble/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(app.Version)
		return
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT and SIGTERM for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Configure(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️ Logging setup: %v\n", err)
	}
	logger.LogStartup("🔧 Logging initialized with level: %s", cfg.Logging.Level)

	application, err := app.NewApplicationBuilder(cfg).Build()
	if err != nil {
		logger.LogError("Application creation error: %v", err)
		os.Exit(1)
	}

	if err := application.Start(ctx); err != nil {
		logger.LogError("Application start error: %v", err)
		application.Stop()
		os.Exit(1)
	}

	exitCode := 0
	select {
	case <-sigChan:
		logger.LogInfo("📢 Stop signal received...")
	case err := <-application.Fatal():
		logger.LogError("💥 Fatal error: %v", err)
		exitCode = 1
	}

	application.Stop()
	os.Exit(exitCode)
}
