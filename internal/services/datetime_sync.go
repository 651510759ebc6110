package services

import (
	"context"
	"time"

	"github.com/erikbeerepoot/bramble/internal/logger"
	"github.com/erikbeerepoot/bramble/internal/models"
	"github.com/erikbeerepoot/bramble/internal/protocol"
	"github.com/erikbeerepoot/bramble/internal/queue"
)

// NodeLister returns the hub's live node table
type NodeLister interface {
	ListNodes(ctx context.Context) ([]models.Node, error)
}

// TaskSubmitter accepts a command for durable delivery
type TaskSubmitter interface {
	Submit(command string) (queue.Task, error)
}

// DatetimeSync periodically queues SET_DATETIME for every node the hub knows.
// Irrigation nodes run schedules off their RTC, so drift matters.
type DatetimeSync struct {
	nodes    NodeLister
	tasks    TaskSubmitter
	interval time.Duration
	now      func() time.Time
	log      logger.ILogger
}

// NewDatetimeSync creates the service. An interval of zero disables it.
func NewDatetimeSync(nodes NodeLister, tasks TaskSubmitter, interval time.Duration, log logger.ILogger) *DatetimeSync {
	if log == nil {
		log = logger.NewComponentLogger("datetime-sync")
	}
	return &DatetimeSync{nodes: nodes, tasks: tasks, interval: interval, now: time.Now, log: log}
}

// Enabled reports whether a sync interval is configured
func (s *DatetimeSync) Enabled() bool {
	return s.interval > 0
}

// Start runs the sync loop until ctx is cancelled
func (s *DatetimeSync) Start(ctx context.Context) {
	if !s.Enabled() {
		s.log.LogDebug("🕐 Datetime sync disabled")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.LogInfo("🕐 Datetime sync started with interval: %v", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.log.LogDebug("🕐 Datetime sync stopped")
			return
		case <-ticker.C:
			s.SyncOnce(ctx)
		}
	}
}

// SyncOnce queues the current time for each listed node and returns how many were queued
func (s *DatetimeSync) SyncOnce(ctx context.Context) int {
	nodes, err := s.nodes.ListNodes(ctx)
	if err != nil {
		s.log.LogWarn("⚠️ Datetime sync skipped, could not list nodes: %v", err)
		return 0
	}

	dt := models.HubDateTimeFrom(s.now())
	queued := 0
	for _, node := range nodes {
		if _, err := s.tasks.Submit(protocol.SetDateTimeCommand(node.Address, dt)); err != nil {
			s.log.LogError("Failed to queue datetime for node %d: %v", node.Address, err)
			continue
		}
		queued++
	}
	s.log.LogDebug("🕐 Queued datetime sync for %d nodes", queued)
	return queued
}
