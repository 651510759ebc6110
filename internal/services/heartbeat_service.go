package services

import (
	"context"
	"time"

	"github.com/erikbeerepoot/bramble/internal/logger"
)

// diagnosticOK is the code published while everything is healthy
const diagnosticOK = 0

// StatusPublisher is the part of the MQTT publisher the heartbeat needs
type StatusPublisher interface {
	PublishStatusOnline(ctx context.Context) error
	PublishDiagnostic(ctx context.Context, code int, message string) error
}

// OnlineChecker reports whether the hub is answering commands
type OnlineChecker interface {
	IsOnline() bool
}

// HeartbeatService refreshes the retained online status while the hub answers,
// so the broker's last-will "offline" only survives a real outage.
type HeartbeatService struct {
	publisher StatusPublisher
	hub       OnlineChecker
	interval  time.Duration
	log       logger.ILogger
}

// NewHeartbeatService creates a new heartbeat service. interval <= 0 disables it.
func NewHeartbeatService(publisher StatusPublisher, hub OnlineChecker, interval time.Duration, log logger.ILogger) *HeartbeatService {
	if log == nil {
		log = logger.NewComponentLogger("heartbeat")
	}
	return &HeartbeatService{publisher: publisher, hub: hub, interval: interval, log: log}
}

// Start sends a heartbeat every interval until ctx is cancelled
func (s *HeartbeatService) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.log.LogDebug("💓 Heartbeat disabled")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.LogInfo("💓 Heartbeat service started with interval: %v", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.log.LogDebug("🔇 Heartbeat service stopped")
			return
		case <-ticker.C:
			s.SendHeartbeat(ctx)
		}
	}
}

// SendHeartbeat publishes online status and a running diagnostic, unless the hub is offline.
// It reports whether anything was sent.
func (s *HeartbeatService) SendHeartbeat(ctx context.Context) bool {
	if !s.hub.IsOnline() {
		s.log.LogDebug("💔 Skipping heartbeat - hub is offline")
		return false
	}

	if err := s.publisher.PublishStatusOnline(ctx); err != nil {
		s.log.LogWarn("⚠️ Heartbeat failed: %v", err)
		return false
	}
	s.log.LogDebug("💓 Heartbeat sent: online")

	if err := s.publisher.PublishDiagnostic(ctx, diagnosticOK, "Bramble hub bridge running"); err != nil {
		s.log.LogDebug("⚠️ Diagnostic heartbeat failed: %v", err)
	}
	return true
}
