package mqtt

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/erikbeerepoot/bramble/internal/config"
	"github.com/erikbeerepoot/bramble/internal/errors"
	"github.com/erikbeerepoot/bramble/internal/logger"
	"github.com/erikbeerepoot/bramble/internal/metrics"
	"github.com/erikbeerepoot/bramble/internal/models"
)

// fakeToken is an already completed paho token
type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type message struct {
	topic    string
	retained bool
	payload  []byte
}

// MockClient records publishes. Methods it does not override panic via the
// nil embedded interface, which keeps the test honest about what is used.
type MockClient struct {
	paho.Client

	mu         sync.Mutex
	connected  bool
	connectErr []error
	publishErr error
	messages   []message
}

func (c *MockClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *MockClient) Connect() paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.connectErr) > 0 {
		err := c.connectErr[0]
		c.connectErr = c.connectErr[1:]
		return newFakeToken(err)
	}
	c.connected = true
	return newFakeToken(nil)
}

func (c *MockClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *MockClient) Publish(topic string, _ byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	}
	c.messages = append(c.messages, message{topic: topic, retained: retained, payload: data})
	return newFakeToken(c.publishErr)
}

func (c *MockClient) find(topic string) (message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.messages {
		if m.topic == topic {
			return m, true
		}
	}
	return message{}, false
}

func (c *MockClient) count(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.messages {
		if strings.HasPrefix(m.topic, prefix) {
			n++
		}
	}
	return n
}

func testSettings() config.MQTTSettings {
	return config.MQTTSettings{
		Broker:          "localhost",
		Port:            1883,
		ClientID:        "bramble-hub",
		TopicPrefix:     "bramble",
		DiscoveryPrefix: "homeassistant",
		RetryDelay:      time.Millisecond,
	}
}

func TestTopics(t *testing.T) {
	topics := Topics{Prefix: "bramble", DiscoveryPrefix: "homeassistant"}
	tests := []struct {
		got, want string
	}{
		{topics.Status(), "bramble/status"},
		{topics.Diagnostic(), "bramble/diagnostic"},
		{topics.Reading(42), "bramble/nodes/42/reading"},
		{topics.NodeStatus(42), "bramble/nodes/42/status"},
		{topics.Discovery(42, "temperature"), "homeassistant/sensor/bramble_42/temperature/config"},
		{UniqueID(42, "humidity"), "bramble_42_humidity"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestObserveReadingPublishesAndAnnouncesOnce(t *testing.T) {
	client := &MockClient{connected: true}
	p := NewPublisherWithClient(client, testSettings(), nil, logger.NewMockLogger())

	r := models.SensorReading{DeviceID: 42, Address: 3, Timestamp: 1760000000, TemperatureCentidegrees: 2150, HumidityCentipercent: 5525}
	p.ObserveReading(r)
	p.ObserveReading(r)

	msg, ok := client.find("bramble/nodes/42/reading")
	if !ok {
		t.Fatal("Reading not published")
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(msg.payload, &payload); err != nil {
		t.Fatalf("Invalid payload: %v", err)
	}
	if payload["temperature_celsius"] != 21.5 || payload["humidity_percent"] != 55.25 {
		t.Errorf("Unexpected payload %s", msg.payload)
	}
	if n := client.count("homeassistant/"); n != 2 {
		t.Errorf("Expected temperature and humidity discovery once each, got %d", n)
	}
	cfgMsg, _ := client.find("homeassistant/sensor/bramble_42/temperature/config")
	if !cfgMsg.retained {
		t.Error("Discovery configs must be retained")
	}
}

func TestObserveStatusIsRetained(t *testing.T) {
	client := &MockClient{connected: true}
	p := NewPublisherWithClient(client, testSettings(), nil, logger.NewMockLogger())

	p.ObserveStatus(models.NodeStatus{DeviceID: 42, Address: 3, BatteryLevel: 80})

	msg, ok := client.find("bramble/nodes/42/status")
	if !ok || !msg.retained {
		t.Fatalf("Expected retained status, got %+v", msg)
	}
}

func TestPublishDiagnostic(t *testing.T) {
	client := &MockClient{connected: true}
	m := metrics.NewPrometheusMetrics()
	p := NewPublisherWithClient(client, testSettings(), m, logger.NewMockLogger())

	if err := p.PublishDiagnostic(context.Background(), errors.CodeTimeout, "Command 'LIST_NODES' timed out"); err != nil {
		t.Fatalf("PublishDiagnostic failed: %v", err)
	}
	msg, _ := client.find("bramble/diagnostic")
	var payload diagnosticPayload
	if err := json.Unmarshal(msg.payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Code != errors.CodeTimeout || payload.Message != "Command 'LIST_NODES' timed out" {
		t.Errorf("Unexpected diagnostic %+v", payload)
	}
	if !strings.Contains(m.GetMetricsText(), "mqtt_publishes_total 1") {
		t.Error("Expected publish to be counted")
	}
}

func TestPublishWhileDisconnected(t *testing.T) {
	client := &MockClient{}
	p := NewPublisherWithClient(client, testSettings(), nil, logger.NewMockLogger())

	err := p.PublishDiagnostic(context.Background(), 1, "x")
	var mqttErr *errors.MQTTError
	if !stderrors.As(err, &mqttErr) {
		t.Fatalf("Expected MQTTError, got %v", err)
	}

	// Observers drop silently rather than block the reader
	p.ObserveReading(models.SensorReading{DeviceID: 1})
	if client.count("") != 0 {
		t.Error("Nothing should be published while disconnected")
	}
}

func TestConnectRetries(t *testing.T) {
	client := &MockClient{connectErr: []error{stderrors.New("refused"), stderrors.New("refused")}}
	mock := logger.NewMockLogger()
	p := NewPublisherWithClient(client, testSettings(), nil, mock)

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !client.IsConnected() {
		t.Error("Expected connected")
	}
	if mock.ErrorCount() != 2 {
		t.Errorf("Expected 2 failed attempts logged, got %d", mock.ErrorCount())
	}
}

func TestConnectCancelled(t *testing.T) {
	client := &MockClient{connectErr: []error{stderrors.New("refused")}}
	settings := testSettings()
	settings.RetryDelay = time.Hour
	p := NewPublisherWithClient(client, settings, nil, logger.NewMockLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Connect(ctx); !stderrors.Is(err, context.Canceled) {
		t.Errorf("Expected cancellation, got %v", err)
	}
}

func TestDisconnectPublishesOffline(t *testing.T) {
	client := &MockClient{connected: true}
	p := NewPublisherWithClient(client, testSettings(), nil, logger.NewMockLogger())

	p.Disconnect()
	msg, ok := client.find("bramble/status")
	if !ok || string(msg.payload) != "offline" || !msg.retained {
		t.Errorf("Expected retained offline status, got %+v", msg)
	}
}
