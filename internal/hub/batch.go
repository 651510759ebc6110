package hub

import (
	"sync"
	"time"

	"github.com/erikbeerepoot/bramble/internal/logger"
	"github.com/erikbeerepoot/bramble/internal/metrics"
	"github.com/erikbeerepoot/bramble/internal/models"
	"github.com/erikbeerepoot/bramble/internal/protocol"
)

// LineWriter sends a single line to the hub
type LineWriter interface {
	WriteLine(line string) error
}

// BatchInserter stores a set of readings in one transaction
type BatchInserter interface {
	InsertBatch(readings []models.SensorReading) (inserted, duplicates int, err error)
}

// PendingBatch is a bulk upload being collected
type PendingBatch struct {
	Address   uint16
	Expected  int
	Records   []models.SensorReading
	StartedAt time.Time
}

// BatchReceiver reassembles SENSOR_BATCH / SENSOR_RECORD / BATCH_COMPLETE
// sequences and acknowledges each completed upload.
//
// States: idle (pending == nil) and collecting. At most one batch is
// collected at a time.
type BatchReceiver struct {
	mu      sync.Mutex
	pending *PendingBatch

	store   BatchInserter
	devices DeviceResolver
	link    LineWriter
	now     func() time.Time
	metrics metrics.MetricsCollector
	log     logger.ILogger
}

// BatchReceiverDeps are the collaborators of a BatchReceiver
type BatchReceiverDeps struct {
	Store   BatchInserter
	Devices DeviceResolver
	Link    LineWriter
	Clock   func() time.Time
	Metrics metrics.MetricsCollector
	Logger  logger.ILogger
}

// NewBatchReceiver creates an idle receiver
func NewBatchReceiver(deps BatchReceiverDeps) *BatchReceiver {
	b := &BatchReceiver{
		store:   deps.Store,
		devices: deps.Devices,
		link:    deps.Link,
		now:     deps.Clock,
		metrics: deps.Metrics,
		log:     deps.Logger,
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.metrics == nil {
		b.metrics = metrics.NewNullMetrics()
	}
	if b.log == nil {
		b.log = logger.NewComponentLogger("batch")
	}
	return b
}

// Pending returns a copy of the batch being collected, or nil when idle
func (b *BatchReceiver) Pending() *PendingBatch {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return nil
	}
	cp := *b.pending
	cp.Records = append([]models.SensorReading(nil), b.pending.Records...)
	return &cp
}

// Start opens a new batch, abandoning any batch still being collected
func (b *BatchReceiver) Start(msg protocol.BatchStart) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending != nil {
		b.log.LogWarn("Abandoning batch from %d after %d of %d records: new batch from %d",
			b.pending.Address, len(b.pending.Records), b.pending.Expected, msg.Address)
	}
	b.pending = &PendingBatch{
		Address:   msg.Address,
		Expected:  msg.Count,
		Records:   make([]models.SensorReading, 0, msg.Count),
		StartedAt: b.now(),
	}
	b.log.LogDebug("Receiving batch of %d records from %d", msg.Count, msg.Address)
}

// Record appends one reading to the batch for its address
func (b *BatchReceiver) Record(msg protocol.BatchRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending == nil {
		b.log.LogWarn("Dropping record from %d: no batch in progress", msg.Address)
		return
	}
	if b.pending.Address != msg.Address {
		b.log.LogWarn("Dropping record from %d: batch in progress is for %d", msg.Address, b.pending.Address)
		return
	}

	b.pending.Records = append(b.pending.Records, models.SensorReading{
		DeviceID:                b.devices.DeviceID(msg.Address),
		Address:                 msg.Address,
		Timestamp:               msg.Timestamp,
		TemperatureCentidegrees: msg.Temperature,
		HumidityCentipercent:    msg.Humidity,
		Flags:                   msg.Flags,
		ReceivedAt:              b.now(),
	})
}

// Complete stores the collected records and acknowledges them to the hub
func (b *BatchReceiver) Complete(msg protocol.BatchComplete) {
	b.mu.Lock()
	batch := b.pending
	if batch == nil {
		b.mu.Unlock()
		b.log.LogWarn("Dropping BATCH_COMPLETE from %d: no batch in progress", msg.Address)
		return
	}
	if batch.Address != msg.Address {
		b.mu.Unlock()
		b.log.LogWarn("Dropping BATCH_COMPLETE from %d: batch in progress is for %d", msg.Address, batch.Address)
		return
	}
	b.pending = nil
	b.mu.Unlock()

	if len(batch.Records) != msg.Count || len(batch.Records) != batch.Expected {
		b.log.LogWarn("Batch from %d count mismatch: announced %d, completed %d, received %d",
			msg.Address, batch.Expected, msg.Count, len(batch.Records))
	}

	inserted, duplicates, err := 0, 0, error(nil)
	if len(batch.Records) > 0 {
		inserted, duplicates, err = b.store.InsertBatch(batch.Records)
	}

	status := protocol.AckFailed
	switch {
	case err != nil:
		inserted = 0
		b.log.LogError("Failed to store batch from %d: %v", msg.Address, err)
	case inserted > 0:
		status = protocol.AckSuccess
	}
	b.metrics.AddReadings(inserted, duplicates)
	b.metrics.IncrementBatches(status)

	if err == nil {
		b.log.LogInfo("📦 Batch from %d: %d inserted, %d duplicates", msg.Address, inserted, duplicates)
	}

	ack := protocol.FormatBatchAck(msg.Address, inserted, status)
	if werr := b.link.WriteLine(ack); werr != nil {
		b.log.LogError("Failed to send %s: %v", ack, werr)
	}
}
