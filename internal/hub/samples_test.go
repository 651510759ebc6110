package hub

import (
	"testing"
	"time"

	"github.com/erikbeerepoot/bramble/internal/logger"
	"github.com/erikbeerepoot/bramble/internal/models"
	"github.com/erikbeerepoot/bramble/internal/protocol"
)

type statusStore struct {
	statuses []models.NodeStatus
}

func (s *statusStore) RecordNodeStatus(status models.NodeStatus) error {
	s.statuses = append(s.statuses, status)
	return nil
}

func TestSampleAssemblerPairsFields(t *testing.T) {
	now := time.Unix(1760000000, 0)
	sink := &readingCollector{}
	observer := &readingCollector{}
	a := NewSampleAssembler(sink, staticResolver{3: 42}, func() time.Time { return now }, logger.NewMockLogger(), observer)

	a.Add(protocol.SensorSample{Address: 3, Field: protocol.FieldTemperature, Value: 2150})
	if len(sink.Readings()) != 0 {
		t.Fatal("A single field must not produce a reading")
	}
	a.Add(protocol.SensorSample{Address: 3, Field: protocol.FieldHumidity, Value: 4525})

	readings := sink.Readings()
	if len(readings) != 1 {
		t.Fatalf("Expected 1 reading, got %d", len(readings))
	}
	r := readings[0]
	if r.DeviceID != 42 || r.Timestamp != 1760000000 || r.TemperatureCentidegrees != 2150 || r.HumidityCentipercent != 4525 {
		t.Errorf("Unexpected reading %+v", r)
	}
	if len(observer.Readings()) != 1 {
		t.Error("Expected observer to be notified")
	}
}

func TestSampleAssemblerExpiresLoneField(t *testing.T) {
	now := time.Unix(1760000000, 0)
	sink := &readingCollector{}
	a := NewSampleAssembler(sink, staticResolver{}, func() time.Time { return now }, logger.NewMockLogger())

	a.Add(protocol.SensorSample{Address: 3, Field: protocol.FieldTemperature, Value: 2150})
	now = now.Add(SamplePairTimeout + time.Second)
	a.Add(protocol.SensorSample{Address: 3, Field: protocol.FieldHumidity, Value: 4525})

	if len(sink.Readings()) != 0 {
		t.Error("Expired temperature must not pair with a late humidity")
	}
}

func TestStatusRecorderFallsBackToDirectory(t *testing.T) {
	dir := NewDeviceDirectory(nil, logger.NewMockLogger())
	dir.Learn(9, 777)
	store := &statusStore{}
	rec := NewStatusRecorder(store, dir, func() time.Time { return time.Unix(100, 0) }, logger.NewMockLogger())

	rec.HandleStatus(protocol.NodeStatusReport{Address: 9, BatteryLevel: 50})

	if len(store.statuses) != 1 || store.statuses[0].DeviceID != 777 || store.statuses[0].UpdatedAt != 100 {
		t.Errorf("Unexpected stored status %+v", store.statuses)
	}
}
