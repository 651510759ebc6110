// Package api serves the hub's JSON REST interface, the CSV export and the
// live WebSocket feed.
package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"

	"github.com/erikbeerepoot/bramble/internal/config"
	"github.com/erikbeerepoot/bramble/internal/health"
	"github.com/erikbeerepoot/bramble/internal/hub"
	"github.com/erikbeerepoot/bramble/internal/logger"
	"github.com/erikbeerepoot/bramble/internal/models"
	"github.com/erikbeerepoot/bramble/internal/queue"
	"github.com/erikbeerepoot/bramble/internal/recovery"
	"github.com/erikbeerepoot/bramble/internal/storage"
)

// HubCommands is the live hub surface the handlers call synchronously
type HubCommands interface {
	ListNodes(ctx context.Context) ([]models.Node, error)
	GetQueue(ctx context.Context, addr uint16) ([]models.QueuedUpdate, error)
	DeleteNode(ctx context.Context, addr uint16) error
	Raw(ctx context.Context, command string, timeout time.Duration) (hub.Response, error)
}

// TaskSubmitter accepts mutating commands for background delivery
type TaskSubmitter interface {
	Submit(command string) (queue.Task, error)
}

// TaskReader looks up submitted tasks
type TaskReader interface {
	Get(id string) (queue.Task, error)
	List(state queue.State) ([]queue.Task, error)
}

// HealthSource reports the hub link state
type HealthSource interface {
	Snapshot() health.Status
}

// BreakerSource reports the queue's circuit breaker
type BreakerSource interface {
	Stats() recovery.CircuitBreakerStats
}

// Deps are the collaborators of a Server. Breaker, Metrics and Live may be nil.
type Deps struct {
	Hub        HubCommands
	Store      *storage.DB
	Tasks      TaskSubmitter
	TaskLookup TaskReader
	Health     HealthSource
	Breaker    BreakerSource
	Metrics    http.Handler
	Live       http.Handler
	SerialPort string
	Version    string
	Clock      func() time.Time
	Logger     logger.ILogger
}

// Server is the HTTP front of the bridge
type Server struct {
	deps      Deps
	settings  config.HTTPSettings
	router    *mux.Router
	http      *http.Server
	log       logger.ILogger
	now       func() time.Time
	startTime time.Time
}

// NewServer builds the router. Call ListenAndServe to accept connections.
func NewServer(settings config.HTTPSettings, deps Deps) *Server {
	s := &Server{
		deps:     deps,
		settings: settings,
		log:      deps.Logger,
		now:      deps.Clock,
	}
	if s.log == nil {
		s.log = logger.NewComponentLogger("api")
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.startTime = s.now()
	s.router = s.routes()

	writeTimeout := settings.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	readTimeout := settings.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	s.http = &http.Server{
		Addr:              settings.Addr,
		Handler:           s.router,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.requestLogger, middleware.Recoverer)
	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "Endpoint not found"})
	})
	notAllowed := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
	})
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = notAllowed

	if s.deps.Live != nil {
		r.Handle("/ws", s.deps.Live).Methods(http.MethodGet)
	}
	if s.deps.Metrics != nil {
		path := s.settings.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, s.deps.Metrics).Methods(http.MethodGet)
	}

	// Subrouters do not inherit the fallbacks; without them a method
	// mismatch under /api falls through to 404
	api := r.PathPrefix("/api").Subrouter()
	api.NotFoundHandler = notFound
	api.MethodNotAllowedHandler = notAllowed
	api.Use(middleware.Timeout(s.requestTimeout()))

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/system/time", s.handleSystemTime).Methods(http.MethodGet)

	// Live hub state
	api.HandleFunc("/nodes", s.handleListNodes).Methods(http.MethodGet)
	api.HandleFunc("/nodes/{addr:[0-9]+}", s.handleGetNode).Methods(http.MethodGet)
	api.HandleFunc("/nodes/{addr:[0-9]+}", s.handleDeleteNode).Methods(http.MethodDelete)
	api.HandleFunc("/nodes/{addr:[0-9]+}/queue", s.handleNodeQueue).Methods(http.MethodGet)

	// Queued node updates
	api.HandleFunc("/nodes/{addr:[0-9]+}/schedules", s.handleSetSchedule).Methods(http.MethodPost)
	api.HandleFunc("/nodes/{addr:[0-9]+}/schedules/{index:[0-9]+}", s.handleRemoveSchedule).Methods(http.MethodDelete)
	api.HandleFunc("/nodes/{addr:[0-9]+}/wake-interval", s.handleSetWakeInterval).Methods(http.MethodPost)
	api.HandleFunc("/nodes/{addr:[0-9]+}/datetime", s.handleSetDateTime).Methods(http.MethodPost)
	api.HandleFunc("/nodes/{addr:[0-9]+}/reboot", s.handleReboot).Methods(http.MethodPost)

	// Stored node details
	api.HandleFunc("/nodes/{device_id:[0-9]+}/metadata", s.handleGetMetadata).Methods(http.MethodGet)
	api.HandleFunc("/nodes/{device_id:[0-9]+}/metadata", s.handleUpdateMetadata).Methods(http.MethodPut)
	api.HandleFunc("/nodes/{device_id:[0-9]+}/status", s.handleNodeStatus).Methods(http.MethodGet)
	api.HandleFunc("/nodes/{device_id:[0-9]+}/status/history", s.handleStatusHistory).Methods(http.MethodGet)

	api.HandleFunc("/sensor-data", s.handleSensorData).Methods(http.MethodGet)
	api.HandleFunc("/sensor-data/export", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/sensor-data/downsampled", s.handleDownsampled).Methods(http.MethodGet)
	api.HandleFunc("/sensor-data/backup", s.handleBackup).Methods(http.MethodGet)
	api.HandleFunc("/sensor-data/nodes", s.handleStoredNodes).Methods(http.MethodGet)
	api.HandleFunc("/sensor-data/nodes/{device_id:[0-9]+}/latest", s.handleLatestReading).Methods(http.MethodGet)
	api.HandleFunc("/sensor-data/nodes/{device_id:[0-9]+}/stats", s.handleNodeStats).Methods(http.MethodGet)

	api.HandleFunc("/zones", s.handleListZones).Methods(http.MethodGet)
	api.HandleFunc("/zones", s.handleCreateZone).Methods(http.MethodPost)
	api.HandleFunc("/zones/{id:[0-9]+}", s.handleUpdateZone).Methods(http.MethodPut)
	api.HandleFunc("/zones/{id:[0-9]+}", s.handleDeleteZone).Methods(http.MethodDelete)

	api.HandleFunc("/tasks", s.handleListTasks).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{id}", s.handleGetTask).Methods(http.MethodGet)

	api.HandleFunc("/internal/hub-command", s.handleHubCommand).Methods(http.MethodPost)

	return r
}

func (s *Server) requestTimeout() time.Duration {
	if s.settings.WriteTimeout > 0 {
		return s.settings.WriteTimeout
	}
	return 30 * time.Second
}

// requestLogger logs one debug line per request with its id and status
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.LogDebug("[%s] %s %s -> %d (%s)", middleware.GetReqID(r.Context()),
			r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
	})
}

// ListenAndServe blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) ListenAndServe() error {
	s.log.LogInfo("🌐 HTTP API listening on %s", s.settings.Addr)
	if err := s.http.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
