package storage

import (
	"sync"
	"time"

	"github.com/erikbeerepoot/bramble/internal/config"
	"github.com/erikbeerepoot/bramble/internal/logger"
	"github.com/erikbeerepoot/bramble/internal/metrics"
	"github.com/erikbeerepoot/bramble/internal/models"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 60 * time.Second
)

// BatchWriter is the storage side of the write buffer
type BatchWriter interface {
	InsertBatch(readings []models.SensorReading) (inserted, duplicates int, err error)
}

// FlushStats describes the buffer's flush history
type FlushStats struct {
	Flushes       int64     `json:"flushes"`
	Failures      int64     `json:"failures"`
	Inserted      int64     `json:"inserted"`
	Duplicates    int64     `json:"duplicates"`
	LastFlushAt   time.Time `json:"last_flush_at"`
	BufferedCount int       `json:"buffered"`
}

// WriteBuffer accumulates live readings and writes them in batches, either
// when maxSize readings are pending or when MaybeFlush finds the interval elapsed.
type WriteBuffer struct {
	mu        sync.Mutex
	buffer    []models.SensorReading
	store     BatchWriter
	maxSize   int
	interval  time.Duration
	lastFlush time.Time
	stats     FlushStats
	now       func() time.Time
	metrics   metrics.MetricsCollector
	log       logger.ILogger
}

// NewWriteBuffer creates a buffer in front of store. clock may be nil.
func NewWriteBuffer(store BatchWriter, settings config.StorageSettings, clock func() time.Time, m metrics.MetricsCollector, log logger.ILogger) *WriteBuffer {
	if clock == nil {
		clock = time.Now
	}
	if m == nil {
		m = metrics.NewNullMetrics()
	}
	if log == nil {
		log = logger.NewComponentLogger("write-buffer")
	}
	wb := &WriteBuffer{
		store:    store,
		maxSize:  settings.BatchSize,
		interval: settings.FlushInterval,
		now:      clock,
		metrics:  m,
		log:      log,
	}
	if wb.maxSize <= 0 {
		wb.maxSize = defaultBatchSize
	}
	if wb.interval <= 0 {
		wb.interval = defaultFlushInterval
	}
	wb.lastFlush = clock()
	return wb
}

// Add buffers reading, flushing when the buffer reaches its maximum size
func (wb *WriteBuffer) Add(reading models.SensorReading) {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	wb.buffer = append(wb.buffer, reading)
	if len(wb.buffer) >= wb.maxSize {
		wb.flushLocked()
	}
}

// MaybeFlush flushes if readings are pending and the interval has elapsed
func (wb *WriteBuffer) MaybeFlush() {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	if len(wb.buffer) > 0 && wb.now().Sub(wb.lastFlush) >= wb.interval {
		wb.flushLocked()
	}
}

// Flush writes all pending readings now
func (wb *WriteBuffer) Flush() {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	wb.flushLocked()
}

// Shutdown flushes whatever remains
func (wb *WriteBuffer) Shutdown() {
	wb.Flush()
	wb.log.LogInfo("Write buffer flushed on shutdown")
}

// Len returns the number of pending readings
func (wb *WriteBuffer) Len() int {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	return len(wb.buffer)
}

// Stats returns a snapshot of flush statistics
func (wb *WriteBuffer) Stats() FlushStats {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	s := wb.stats
	s.BufferedCount = len(wb.buffer)
	return s
}

// flushLocked writes the buffer. The buffer is cleared even when storage
// fails so a persistent fault cannot grow memory without bound.
func (wb *WriteBuffer) flushLocked() {
	if len(wb.buffer) == 0 {
		return
	}
	inserted, duplicates, err := wb.store.InsertBatch(wb.buffer)
	wb.stats.Flushes++
	if err != nil {
		wb.stats.Failures++
		wb.metrics.IncrementFlushErrors()
		wb.log.LogError("Write buffer flush of %d readings failed: %v", len(wb.buffer), err)
	} else {
		wb.stats.Inserted += int64(inserted)
		wb.stats.Duplicates += int64(duplicates)
		wb.metrics.AddReadings(inserted, duplicates)
		wb.log.LogDebug("Write buffer flushed: %d inserted, %d duplicates", inserted, duplicates)
	}
	wb.buffer = nil
	wb.lastFlush = wb.now()
	wb.stats.LastFlushAt = wb.lastFlush
}
