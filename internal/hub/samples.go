package hub

import (
	"sync"
	"time"

	"github.com/erikbeerepoot/bramble/internal/logger"
	"github.com/erikbeerepoot/bramble/internal/models"
	"github.com/erikbeerepoot/bramble/internal/protocol"
)

// SamplePairTimeout bounds how long a lone TEMP or HUM value waits for its partner
const SamplePairTimeout = 60 * time.Second

// ReadingSink accepts assembled live readings for storage
type ReadingSink interface {
	Add(reading models.SensorReading)
}

// ReadingObserver is told about every live reading
type ReadingObserver interface {
	ObserveReading(reading models.SensorReading)
}

type halfSample struct {
	temperature *int32
	humidity    *int32
	firstSeen   time.Time
}

// SampleAssembler pairs per-field SENSOR_DATA lines into readings
type SampleAssembler struct {
	mu        sync.Mutex
	pending   map[uint16]*halfSample
	sink      ReadingSink
	observers []ReadingObserver
	devices   DeviceResolver
	now       func() time.Time
	log       logger.ILogger
}

// NewSampleAssembler creates an assembler writing to sink
func NewSampleAssembler(sink ReadingSink, devices DeviceResolver, clock func() time.Time, log logger.ILogger, observers ...ReadingObserver) *SampleAssembler {
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		log = logger.NewComponentLogger("samples")
	}
	return &SampleAssembler{
		pending:   make(map[uint16]*halfSample),
		sink:      sink,
		observers: observers,
		devices:   devices,
		now:       clock,
		log:       log,
	}
}

// Add records one field and emits a reading once both fields are known
func (a *SampleAssembler) Add(sample protocol.SensorSample) {
	now := a.now()

	a.mu.Lock()
	a.expire(now)
	half, ok := a.pending[sample.Address]
	if !ok {
		half = &halfSample{firstSeen: now}
		a.pending[sample.Address] = half
	}
	v := sample.Value
	switch sample.Field {
	case protocol.FieldTemperature:
		half.temperature = &v
	case protocol.FieldHumidity:
		half.humidity = &v
	}
	if half.temperature == nil || half.humidity == nil {
		a.mu.Unlock()
		return
	}
	delete(a.pending, sample.Address)
	a.mu.Unlock()

	reading := models.SensorReading{
		DeviceID:                a.devices.DeviceID(sample.Address),
		Address:                 sample.Address,
		Timestamp:               now.Unix(),
		TemperatureCentidegrees: *half.temperature,
		HumidityCentipercent:    *half.humidity,
		ReceivedAt:              now,
	}
	logger.LogDebug("Live reading from %d: %.2f°C %.2f%%", sample.Address, reading.TemperatureCelsius(), reading.HumidityPercent())

	if a.sink != nil {
		a.sink.Add(reading)
	}
	for _, o := range a.observers {
		o.ObserveReading(reading)
	}
}

// expire drops half-assembled pairs older than SamplePairTimeout. Caller holds mu.
func (a *SampleAssembler) expire(now time.Time) {
	for addr, half := range a.pending {
		if now.Sub(half.firstSeen) > SamplePairTimeout {
			a.log.LogDebug("Discarding unpaired sample from %d", addr)
			delete(a.pending, addr)
		}
	}
}
