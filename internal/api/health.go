package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/erikbeerepoot/bramble/internal/recovery"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status                string    `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp             time.Time `json:"timestamp"`
	Uptime                string    `json:"uptime"`
	SerialConnected       bool      `json:"serial_connected"`
	SerialPort            string    `json:"serial_port"`
	HubOnline             bool      `json:"hub_online"`
	LastSuccessfulCommand string    `json:"last_successful_command"`
	ConsecutiveTimeouts   int       `json:"consecutive_timeouts"`
	CircuitBreaker        string    `json:"circuit_breaker,omitempty"`
	Version               string    `json:"version,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.healthStatus()

	statusCode := http.StatusOK
	if status.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	s.writeJSON(w, statusCode, status)
}

// healthStatus determines current health status
func (s *Server) healthStatus() HealthStatus {
	now := s.now()
	out := HealthStatus{
		Status:                "healthy",
		Timestamp:             now,
		Uptime:                formatDuration(now.Sub(s.startTime)),
		SerialPort:            s.deps.SerialPort,
		LastSuccessfulCommand: "never",
		Version:               s.deps.Version,
	}
	if s.deps.Health == nil {
		out.Status = "unhealthy"
		return out
	}

	snap := s.deps.Health.Snapshot()
	out.SerialConnected = snap.SerialConnected
	out.HubOnline = snap.Online
	out.ConsecutiveTimeouts = snap.ConsecutiveErrors
	if snap.LastSuccess != nil {
		out.LastSuccessfulCommand = formatAgo(now.Sub(*snap.LastSuccess))
	}

	breakerOpen := false
	if s.deps.Breaker != nil {
		stats := s.deps.Breaker.Stats()
		out.CircuitBreaker = stats.State
		breakerOpen = stats.State != recovery.StateClosed.String()
	}

	switch {
	case !snap.SerialConnected || !snap.Online:
		out.Status = "unhealthy"
	case snap.InGracePeriod || snap.ConsecutiveErrors > 0 || breakerOpen:
		out.Status = "degraded"
	}
	return out
}

type systemTime struct {
	Datetime  string `json:"datetime"`
	Formatted string `json:"formatted"`
	Weekday   int    `json:"weekday"` // 0=Sunday
	Timestamp int64  `json:"timestamp"`
}

func (s *Server) handleSystemTime(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	s.writeJSON(w, http.StatusOK, systemTime{
		Datetime:  now.Format(time.RFC3339),
		Formatted: now.Format("2006-01-02 15:04:05"),
		Weekday:   int(now.Weekday()),
		Timestamp: now.Unix(),
	})
}

func formatAgo(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds ago", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%d minutes ago", int(d.Minutes()))
	}
	return fmt.Sprintf("%d hours ago", int(d.Hours()))
}

// formatDuration formats a duration in human-readable form
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%d hours %d minutes", hours, minutes)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%d days %d hours", days, hours)
}
