// Package app wires the bridge components together and runs them.
package app

import (
	"fmt"
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
	"github.com/erikbeerepoot/bramble/internal/recovery"
	"github.com/erikbeerepoot/bramble/internal/serial"
	"github.com/erikbeerepoot/bramble/internal/services"
	"github.com/erikbeerepoot/bramble/internal/storage"
	"github.com/erikbeerepoot/bramble/internal/websocket"
)

// Version is overridden at build time with -ldflags "-X ...app.Version=..."
var Version = "dev"

// ApplicationBuilder provides a fluent interface for constructing Application instances
type ApplicationBuilder struct {
	config      *config.Config
	opener      serial.Opener
	metrics     *metrics.PrometheusMetrics
	breaker     recovery.CircuitBreakerConfig
	gracePeriod time.Duration
}

// NewApplicationBuilder creates a new builder with default configuration
func NewApplicationBuilder(cfg *config.Config) *ApplicationBuilder {
	return &ApplicationBuilder{
		config:      cfg,
		gracePeriod: 15 * time.Second,
	}
}

// WithOpener replaces the serial driver, mainly for tests
func (b *ApplicationBuilder) WithOpener(open serial.Opener) *ApplicationBuilder {
	b.opener = open
	return b
}

// WithMetrics sets the metrics collector
func (b *ApplicationBuilder) WithMetrics(m *metrics.PrometheusMetrics) *ApplicationBuilder {
	b.metrics = m
	return b
}

// WithCircuitBreaker tunes the breaker guarding queued commands
func (b *ApplicationBuilder) WithCircuitBreaker(cfg recovery.CircuitBreakerConfig) *ApplicationBuilder {
	b.breaker = cfg
	return b
}

// WithErrorGracePeriod sets how long timeouts are tolerated before the hub is marked offline
func (b *ApplicationBuilder) WithErrorGracePeriod(period time.Duration) *ApplicationBuilder {
	b.gracePeriod = period
	return b
}

// Build constructs the Application with all dependencies. It opens the
// databases but does not touch the serial port or the network.
func (b *ApplicationBuilder) Build() (*Application, error) {
	if b.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := b.config

	m := b.metrics
	if m == nil {
		m = metrics.NewPrometheusMetrics()
	}

	open := b.opener
	if open == nil {
		var err error
		if open, err = serial.OpenerFor(cfg.Serial.Driver); err != nil {
			return nil, errors.NewConfigError("serial driver", err, "serial.driver")
		}
	}

	serialSettings := config.NewSerialSettings(cfg)
	transport := serial.NewTransport(serialSettings, open, logger.NewComponentLogger("serial"))
	monitor := health.NewHubHealthMonitor(transport, b.gracePeriod, m, logger.NewComponentLogger("health"))

	engineSettings := config.NewEngineSettings(cfg)
	engine := hub.NewEngine(transport, hub.EngineOptions{
		DefaultTimeout: engineSettings.CommandTimeout,
		Quiet:          hub.QuietPeriodPolicy{Period: engineSettings.QuietPeriod},
		Metrics:        m,
		Observer:       monitor,
		Logger:         logger.NewComponentLogger("engine"),
	})

	storageSettings := config.NewStorageSettings(cfg)
	db, err := storage.Open(storageSettings.Path, logger.NewComponentLogger("storage"))
	if err != nil {
		return nil, err
	}

	queueSettings := config.NewQueueSettings(cfg)
	var tasks *queue.Store
	if queueSettings.Path == "" {
		tasks, err = queue.NewStore(db.Bolt(), nil)
	} else {
		tasks, err = queue.OpenStore(queueSettings.Path, nil)
	}
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	directory := hub.NewDeviceDirectory(db, logger.NewComponentLogger("directory"))
	commands := hub.NewCommands(engine, directory)

	live := websocket.NewHub(logger.NewComponentLogger("websocket"))
	readingObservers := []hub.ReadingObserver{live}
	statusObservers := []hub.StatusObserver{live}

	var publisher *mqtt.Publisher
	var heartbeat *services.HeartbeatService
	errorHandler := errors.NewErrorHandler(nil)
	mqttSettings := config.NewMQTTSettings(cfg)
	if mqttSettings.Enabled() {
		publisher = mqtt.NewPublisher(mqttSettings, m, logger.NewComponentLogger("mqtt"))
		errorHandler = errors.NewErrorHandler(publisher)
		heartbeat = services.NewHeartbeatService(publisher, monitor, mqttSettings.Heartbeat, logger.NewComponentLogger("heartbeat"))
		readingObservers = append(readingObservers, publisher)
		statusObservers = append(statusObservers, publisher)
	}

	buffer := storage.NewWriteBuffer(db, storageSettings, nil, m, logger.NewComponentLogger("write-buffer"))
	samples := hub.NewSampleAssembler(buffer, directory, nil, logger.NewComponentLogger("samples"), readingObservers...)
	batches := hub.NewBatchReceiver(hub.BatchReceiverDeps{
		Store:   db,
		Devices: directory,
		Link:    transport,
		Metrics: m,
		Logger:  logger.NewComponentLogger("batch"),
	})
	status := hub.NewStatusRecorder(db, directory, nil, logger.NewComponentLogger("status"), statusObservers...)

	router := hub.NewRouter(hub.RouterDeps{
		Responses: engine,
		Samples:   samples,
		Batches:   batches,
		Status:    status,
		Link:      transport,
		Metrics:   m,
		Logger:    logger.NewComponentLogger("router"),
	})
	transport.SetLineHandler(router.HandleLine)

	breaker := hub.NewCircuitBreakerSender(engine, b.breaker, logger.NewComponentLogger("breaker"))
	worker := queue.NewWorker(tasks, breaker, queueSettings, queue.WorkerOptions{
		Metrics: m,
		Logger:  logger.NewComponentLogger("queue"),
		Errors:  errorHandler,
	})

	server := api.NewServer(config.NewHTTPSettings(cfg), api.Deps{
		Hub:        commands,
		Store:      db,
		Tasks:      worker,
		TaskLookup: tasks,
		Health:     monitor,
		Breaker:    breaker,
		Metrics:    m,
		Live:       live,
		SerialPort: serialSettings.Port,
		Version:    Version,
		Logger:     logger.NewComponentLogger("api"),
	})

	app := &Application{
		config:    cfg,
		metrics:   m,
		transport: transport,
		engine:    engine,
		commands:  commands,
		monitor:   monitor,
		db:        db,
		tasks:     tasks,
		buffer:    buffer,
		worker:    worker,
		breaker:   breaker,
		live:      live,
		publisher: publisher,
		errors:    errorHandler,
		server:    server,
		flush:     services.NewFlushService(buffer, storageSettings.FlushInterval, logger.NewComponentLogger("flush")),
		heartbeat: heartbeat,
		sync:      services.NewDatetimeSync(commands, worker, engineSettings.DatetimeSyncInterval, logger.NewComponentLogger("datetime-sync")),
	}
	return app, nil
}
