package hub

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/erikbeerepoot/bramble/internal/logger"
	"github.com/erikbeerepoot/bramble/internal/metrics"
	"github.com/erikbeerepoot/bramble/internal/protocol"
)

func TestRouterAnswersDateTimeQuery(t *testing.T) {
	link := newFakeLink()
	fixed := time.Date(2026, 10, 14, 9, 5, 7, 0, time.Local)
	r := NewRouter(RouterDeps{Link: link, Clock: func() time.Time { return fixed }, Logger: logger.NewMockLogger()})

	r.HandleLine("GET_DATETIME")

	writes := link.Writes()
	if len(writes) != 1 || writes[0] != "DATETIME 2026-10-14 09:05:07 3" {
		t.Errorf("Unexpected datetime reply %v", writes)
	}
}

func TestRouterDateTimeWriteFailureIsLogged(t *testing.T) {
	link := newFakeLink()
	link.writeErr = context.DeadlineExceeded
	mock := logger.NewMockLogger()
	r := NewRouter(RouterDeps{Link: link, Logger: mock})

	r.HandleLine("GET_DATETIME")

	if !mock.HasErrorContaining("datetime") {
		t.Error("Expected datetime write failure to be logged")
	}
}

func TestRouterBatchDuringCommandNotMisrouted(t *testing.T) {
	h := newTestHub(EngineOptions{})
	h.link.script = func(string) []string {
		return []string{"NODE_LIST 1", "SENSOR_BATCH 5 2", "NODE 5 0 SENSOR 1 3"}
	}

	resp, err := h.engine.Send(context.Background(), "LIST_NODES", 2*time.Second)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	for _, line := range resp {
		if strings.HasPrefix(line, protocol.PrefixSensorBatch) {
			t.Errorf("Batch start leaked into command response: %v", resp)
		}
	}
	if len(resp) != 2 {
		t.Errorf("Expected 2 response lines, got %v", resp)
	}

	pending := h.batch.Pending()
	if pending == nil || pending.Address != 5 || pending.Expected != 2 {
		t.Errorf("Expected batch from 5 to be collecting, got %+v", pending)
	}
}

func TestRouterDropsMalformedPush(t *testing.T) {
	pm := metrics.NewPrometheusMetrics()
	mock := logger.NewMockLogger()
	collector := &readingCollector{}
	r := NewRouter(RouterDeps{
		Samples: NewSampleAssembler(collector, staticResolver{}, nil, mock),
		Metrics: pm,
		Logger:  mock,
	})

	r.HandleLine("SENSOR_DATA 3 TEMP")
	r.HandleLine("SENSOR_RECORD x 1 2 3 4")

	if got := pm.GetStats().MalformedLinesTotal; got != 2 {
		t.Errorf("Expected 2 malformed lines, got %d", got)
	}
	if !mock.HasWarnContaining("malformed") {
		t.Error("Expected malformed line warning")
	}
}

type panickingSamples struct{}

func (panickingSamples) Add(protocol.SensorSample) { panic("boom") }

func TestRouterRecoversHandlerPanic(t *testing.T) {
	mock := logger.NewMockLogger()
	r := NewRouter(RouterDeps{Samples: panickingSamples{}, Logger: mock})

	r.HandleLine("SENSOR_DATA 3 TEMP 21.5")

	if !mock.HasErrorContaining("boom") {
		t.Error("Expected panic to be logged")
	}
}

func TestRouterRoutesNodeStatus(t *testing.T) {
	dir := NewDeviceDirectory(nil, logger.NewMockLogger())
	store := &statusStore{}
	r := NewRouter(RouterDeps{
		Status: NewStatusRecorder(store, dir, nil, logger.NewMockLogger()),
		Logger: logger.NewMockLogger(),
	})

	r.HandleLine("NODE_STATUS 4 81985529216486895 87 0 -71 3600 12")

	if len(store.statuses) != 1 {
		t.Fatalf("Expected 1 stored status, got %d", len(store.statuses))
	}
	got := store.statuses[0]
	if got.DeviceID != 81985529216486895 || got.BatteryLevel != 87 || got.PendingRecords != 12 {
		t.Errorf("Unexpected status %+v", got)
	}
	if id := dir.DeviceID(4); id != 81985529216486895 {
		t.Errorf("Expected directory to learn address 4, got %d", id)
	}
}
