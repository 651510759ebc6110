// Package mqtt publishes readings, node status and diagnostics to an MQTT
// broker, with Home Assistant discovery for each node's sensors.
package mqtt

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/erikbeerepoot/bramble/internal/config"
	"github.com/erikbeerepoot/bramble/internal/errors"
	"github.com/erikbeerepoot/bramble/internal/logger"
	"github.com/erikbeerepoot/bramble/internal/metrics"
	"github.com/erikbeerepoot/bramble/internal/models"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
	publishTimeout = 5 * time.Second
)

var errClientNotConnected = stderrors.New("client is not connected")

// Publisher sends hub data to the broker
type Publisher struct {
	client   paho.Client
	settings config.MQTTSettings
	topics   Topics
	broker   string
	metrics  metrics.MetricsCollector
	log      logger.ILogger

	mu        sync.Mutex
	announced map[string]bool
}

// NewPublisher creates a publisher with its own paho client. The client
// publishes "online" on every connect and the broker publishes "offline"
// through the last will when the connection drops.
func NewPublisher(settings config.MQTTSettings, m metrics.MetricsCollector, log logger.ILogger) *Publisher {
	topics := Topics{Prefix: settings.TopicPrefix, DiscoveryPrefix: settings.DiscoveryPrefix}
	if log == nil {
		log = logger.NewComponentLogger("mqtt")
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(brokerURL(settings))
	opts.SetClientID(settings.ClientID)
	opts.SetUsername(settings.Username)
	opts.SetPassword(settings.Password)
	opts.SetAutoReconnect(true)

	keepAlive := settings.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 60 * time.Second
	}
	opts.SetKeepAlive(keepAlive)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetWill(topics.Status(), payloadOffline, 1, true)

	opts.SetOnConnectHandler(func(client paho.Client) {
		log.LogInfo("MQTT publisher connected to %s", brokerURL(settings))
		if token := client.Publish(topics.Status(), 1, true, payloadOnline); token.Wait() && token.Error() != nil {
			log.LogWarn("Error publishing online status on connect: %v", token.Error())
		}
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.LogError("MQTT publisher disconnected: %v", err)
	})

	return NewPublisherWithClient(paho.NewClient(opts), settings, m, log)
}

// NewPublisherWithClient wraps an existing client
func NewPublisherWithClient(client paho.Client, settings config.MQTTSettings, m metrics.MetricsCollector, log logger.ILogger) *Publisher {
	if m == nil {
		m = metrics.NewNullMetrics()
	}
	if log == nil {
		log = logger.NewComponentLogger("mqtt")
	}
	return &Publisher{
		client:    client,
		settings:  settings,
		topics:    Topics{Prefix: settings.TopicPrefix, DiscoveryPrefix: settings.DiscoveryPrefix},
		broker:    brokerURL(settings),
		metrics:   m,
		log:       log,
		announced: make(map[string]bool),
	}
}

func brokerURL(s config.MQTTSettings) string {
	return fmt.Sprintf("tcp://%s:%d", s.Broker, s.Port)
}

// Connect connects to the broker, retrying until it succeeds or ctx is cancelled
func (p *Publisher) Connect(ctx context.Context) error {
	retryDelay := p.settings.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}

	for attempt := 1; ; attempt++ {
		p.log.LogDebug("🔄 Attempting to connect to MQTT broker %s (attempt %d)...", p.broker, attempt)

		token := p.client.Connect()
		if token.Wait() && token.Error() == nil {
			p.log.LogInfo("✅ MQTT publisher connected after %d attempts", attempt)
			return nil
		}
		p.log.LogError("❌ MQTT connection failed (attempt %d): %v", attempt, token.Error())
		p.log.LogInfo("⏳ Retrying in %.0f seconds...", retryDelay.Seconds())

		select {
		case <-ctx.Done():
			return errors.NewMQTTError("connect", ctx.Err(), p.broker)
		case <-time.After(retryDelay):
		}
	}
}

// Disconnect marks the bridge offline and closes the connection
func (p *Publisher) Disconnect() {
	if !p.client.IsConnected() {
		return
	}
	token := p.client.Publish(p.topics.Status(), 1, true, payloadOffline)
	token.WaitTimeout(time.Second)
	p.client.Disconnect(250)
}

// IsConnected reports whether the broker connection is up
func (p *Publisher) IsConnected() bool {
	return p.client.IsConnected()
}

type readingPayload struct {
	DeviceID           uint64  `json:"device_id"`
	Address            uint16  `json:"address,omitempty"`
	Timestamp          int64   `json:"timestamp"`
	TemperatureCelsius float64 `json:"temperature_celsius"`
	HumidityPercent    float64 `json:"humidity_percent"`
	Flags              uint8   `json:"flags"`
}

type diagnosticPayload struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// ObserveReading publishes a live reading. Called on the serial reader
// goroutine, so delivery is confirmed asynchronously.
func (p *Publisher) ObserveReading(r models.SensorReading) {
	p.announce(r.DeviceID, readingSensors, p.topics.Reading(r.DeviceID))
	p.publishAsync(p.topics.Reading(r.DeviceID), false, readingPayload{
		DeviceID:           r.DeviceID,
		Address:            r.Address,
		Timestamp:          r.Timestamp,
		TemperatureCelsius: r.TemperatureCelsius(),
		HumidityPercent:    r.HumidityPercent(),
		Flags:              r.Flags,
	})
}

// ObserveStatus publishes a node status report as a retained message
func (p *Publisher) ObserveStatus(s models.NodeStatus) {
	p.announce(s.DeviceID, statusSensors, p.topics.NodeStatus(s.DeviceID))
	p.publishAsync(p.topics.NodeStatus(s.DeviceID), true, s)
}

// PublishDiagnostic publishes an error code and message
func (p *Publisher) PublishDiagnostic(ctx context.Context, code int, message string) error {
	return p.publish(ctx, p.topics.Diagnostic(), false, diagnosticPayload{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().Unix(),
	})
}

// PublishStatusOnline publishes the retained "online" availability
func (p *Publisher) PublishStatusOnline(ctx context.Context) error {
	return p.publishRaw(ctx, p.topics.Status(), true, []byte(payloadOnline))
}

func (p *Publisher) publish(ctx context.Context, topic string, retained bool, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.NewMQTTError("encode "+topic, err, p.broker)
	}
	return p.publishRaw(ctx, topic, retained, data)
}

func (p *Publisher) publishRaw(ctx context.Context, topic string, retained bool, data []byte) error {
	token, err := p.send(topic, retained, data)
	if err != nil {
		return err
	}
	return p.await(ctx, topic, token)
}

func (p *Publisher) publishAsync(topic string, retained bool, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.LogError("Failed to encode %s: %v", topic, err)
		return
	}
	token, err := p.send(topic, retained, data)
	if err != nil {
		p.log.LogDebug("Skipping %s: %v", topic, err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := p.await(ctx, topic, token); err != nil {
			p.log.LogWarn("Publish to %s failed: %v", topic, err)
		}
	}()
}

func (p *Publisher) send(topic string, retained bool, data []byte) (paho.Token, error) {
	if !p.client.IsConnected() {
		p.metrics.IncrementMQTTErrors()
		return nil, errors.NewMQTTError("publish "+topic, errClientNotConnected, p.broker)
	}
	if logger.IsTraceEnabled() {
		logger.LogTrace("📤 Publishing %s: %s", topic, data)
	}
	return p.client.Publish(topic, 1, retained, data), nil
}

func (p *Publisher) await(ctx context.Context, topic string, token paho.Token) error {
	select {
	case <-token.Done():
	case <-ctx.Done():
		p.metrics.IncrementMQTTErrors()
		return errors.NewMQTTError("publish "+topic, ctx.Err(), p.broker)
	}
	if err := token.Error(); err != nil {
		p.metrics.IncrementMQTTErrors()
		return errors.NewMQTTError("publish "+topic, err, p.broker)
	}
	p.metrics.IncrementMQTTPublishes()
	return nil
}
