package hub

import (
	"time"

	"github.com/erikbeerepoot/bramble/internal/logger"
	"github.com/erikbeerepoot/bramble/internal/models"
	"github.com/erikbeerepoot/bramble/internal/protocol"
)

// StatusStore persists node health reports
type StatusStore interface {
	RecordNodeStatus(status models.NodeStatus) error
}

// StatusObserver is told about every node health report
type StatusObserver interface {
	ObserveStatus(status models.NodeStatus)
}

// StatusRecorder handles NODE_STATUS pushes
type StatusRecorder struct {
	store     StatusStore
	directory *DeviceDirectory
	observers []StatusObserver
	now       func() time.Time
	log       logger.ILogger
}

// NewStatusRecorder creates a recorder. directory may be nil.
func NewStatusRecorder(store StatusStore, directory *DeviceDirectory, clock func() time.Time, log logger.ILogger, observers ...StatusObserver) *StatusRecorder {
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		log = logger.NewComponentLogger("status")
	}
	return &StatusRecorder{store: store, directory: directory, observers: observers, now: clock, log: log}
}

// HandleStatus stores report and teaches the directory its address
func (r *StatusRecorder) HandleStatus(report protocol.NodeStatusReport) {
	if r.directory != nil {
		r.directory.Learn(report.Address, report.DeviceID)
	}

	status := models.NodeStatus{
		DeviceID:       report.DeviceID,
		Address:        report.Address,
		BatteryLevel:   report.BatteryLevel,
		ErrorFlags:     report.ErrorFlags,
		SignalStrength: report.SignalStrength,
		UptimeSeconds:  report.UptimeSeconds,
		PendingRecords: report.PendingRecords,
		UpdatedAt:      r.now().Unix(),
	}
	if status.DeviceID == 0 && r.directory != nil {
		status.DeviceID = r.directory.DeviceID(report.Address)
	}

	if r.store != nil {
		if err := r.store.RecordNodeStatus(status); err != nil {
			r.log.LogError("Failed to store status for %d: %v", report.Address, err)
		}
	}
	for _, o := range r.observers {
		o.ObserveStatus(status)
	}
	if status.ErrorFlags != 0 {
		r.log.LogWarn("Node %d reports error flags 0x%08x", report.Address, status.ErrorFlags)
	}
}
