package services

import (
	"context"
	"time"

	"github.com/erikbeerepoot/bramble/internal/logger"
)

// Flusher is the write buffer as seen by the flush ticker
type Flusher interface {
	MaybeFlush()
	Shutdown()
}

// maxFlushTick caps how long readings can sit past the flush interval
const maxFlushTick = time.Second

// FlushService drives the write buffer's interval flush and flushes the
// remainder when stopped
type FlushService struct {
	buffer   Flusher
	interval time.Duration
	tick     time.Duration
	log      logger.ILogger
}

// NewFlushService creates a ticker polling MaybeFlush often enough that a
// reading waits at most interval plus one tick
func NewFlushService(buffer Flusher, interval time.Duration, log logger.ILogger) *FlushService {
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = logger.NewComponentLogger("flush")
	}
	return &FlushService{buffer: buffer, interval: interval, tick: flushTick(interval), log: log}
}

// flushTick is a quarter of the interval, at most maxFlushTick. Ticking at
// the interval itself would miss every other flush, since the buffer stamps
// lastFlush after the insert returns.
func flushTick(interval time.Duration) time.Duration {
	tick := interval / 4
	if tick > maxFlushTick {
		tick = maxFlushTick
	}
	if tick <= 0 {
		tick = time.Millisecond
	}
	return tick
}

// Start runs until ctx is cancelled, then flushes what is left
func (s *FlushService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.log.LogInfo("💾 Flush service started (interval %v, checking every %v)", s.interval, s.tick)

	for {
		select {
		case <-ctx.Done():
			s.buffer.Shutdown()
			s.log.LogDebug("💾 Flush service stopped")
			return
		case <-ticker.C:
			s.buffer.MaybeFlush()
		}
	}
}
