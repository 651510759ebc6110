package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/erikbeerepoot/bramble/internal/api"
	"github.com/erikbeerepoot/bramble/internal/config"
	"github.com/erikbeerepoot/bramble/internal/errors"
	"github.com/erikbeerepoot/bramble/internal/health"
	"github.com/erikbeerepoot/bramble/internal/hub"
	"github.com/erikbeerepoot/bramble/internal/logger"
	"github.com/erikbeerepoot/bramble/internal/metrics"
	"github.com/erikbeerepoot/bramble/internal/mqtt"
	"github.com/erikbeerepoot/bramble/internal/queue"
	"github.com/erikbeerepoot/bramble/internal/serial"
	"github.com/erikbeerepoot/bramble/internal/services"
	"github.com/erikbeerepoot/bramble/internal/storage"
	"github.com/erikbeerepoot/bramble/internal/websocket"
)

const shutdownTimeout = 5 * time.Second

// Application owns every long-running component of the bridge
type Application struct {
	config    *config.Config
	metrics   *metrics.PrometheusMetrics
	transport *serial.Transport
	engine    *hub.Engine
	commands  *hub.Commands
	monitor   *health.HubHealthMonitor
	db        *storage.DB
	tasks     *queue.Store
	buffer    *storage.WriteBuffer
	worker    *queue.Worker
	breaker   *hub.CircuitBreakerSender
	live      *websocket.Hub
	publisher *mqtt.Publisher // nil when MQTT is disabled
	errors    *errors.ErrorHandler
	server    *api.Server
	flush     *services.FlushService
	heartbeat *services.HeartbeatService // nil when MQTT is disabled
	sync      *services.DatetimeSync

	cancel context.CancelFunc
	wg     sync.WaitGroup
	fatal  chan error
	once   sync.Once
}

// GetConfig returns the application configuration
func (app *Application) GetConfig() *config.Config {
	return app.config
}

// Commands returns the typed hub command helpers
func (app *Application) Commands() *hub.Commands {
	return app.commands
}

// Handler returns the HTTP handler serving the API
func (app *Application) Handler() http.Handler {
	return app.server.Handler()
}

// HealthMonitor returns the hub health monitor
func (app *Application) HealthMonitor() *health.HubHealthMonitor {
	return app.monitor
}

// Fatal delivers an error when a component stops unexpectedly
func (app *Application) Fatal() <-chan error {
	return app.fatal
}

// Start connects the serial link and starts every background service and the
// HTTP server. A serial open failure is a startup error.
func (app *Application) Start(ctx context.Context) error {
	logger.LogStartup("🚀 Starting bramble hub bridge %s", Version)

	if err := app.transport.Connect(); err != nil {
		app.errors.Handle(ctx, err)
		return err
	}

	ctx, app.cancel = context.WithCancel(ctx)
	app.fatal = make(chan error, 1)

	app.run(func() { app.live.Run(ctx) })
	app.run(func() { app.worker.Start(ctx) })
	app.run(func() { app.flush.Start(ctx) })
	app.run(func() { app.sync.Start(ctx) })

	if app.publisher != nil {
		// The API does not wait for the broker
		app.run(func() {
			if err := app.publisher.Connect(ctx); err != nil {
				logger.LogWarn("⚠️ MQTT publishing unavailable: %v", err)
			}
		})
		app.run(func() { app.heartbeat.Start(ctx) })
	}

	go func() {
		if err := app.server.ListenAndServe(); err != nil {
			logger.LogError("HTTP server error: %v", err)
			app.fatal <- err
		}
	}()

	logger.LogInfo("✅ Bridge started (serial %s, api %s)", app.config.Serial.Port, app.config.HTTP.Addr)
	return nil
}

func (app *Application) run(fn func()) {
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		fn()
	}()
}

// Stop shuts down in dependency order: HTTP, background services (which
// flush the write buffer), the serial link, MQTT and finally the databases.
func (app *Application) Stop() {
	app.once.Do(app.stop)
}

func (app *Application) stop() {
	logger.LogInfo("🛑 Stopping bridge...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		logger.LogWarn("HTTP shutdown: %v", err)
	}

	if app.cancel != nil {
		app.cancel()
	}
	app.wg.Wait()

	app.transport.Disconnect()

	if app.publisher != nil {
		app.publisher.Disconnect()
	}

	if err := app.tasks.Close(); err != nil {
		logger.LogWarn("Closing task queue: %v", err)
	}
	if err := app.db.Close(); err != nil {
		logger.LogWarn("Closing database: %v", err)
	}

	stats := app.buffer.Stats()
	logger.LogInfo("✅ Bridge stopped (%d readings stored, %d flush failures)", stats.Inserted, stats.Failures)
}
