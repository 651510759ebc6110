package mqtt

import (
	"fmt"
)

// SensorConfig is a Home Assistant MQTT discovery payload
type SensorConfig struct {
	Name                string     `json:"name"`
	UniqueID            string     `json:"unique_id"`
	StateTopic          string     `json:"state_topic"`
	UnitOfMeasurement   string     `json:"unit_of_measurement,omitempty"`
	DeviceClass         string     `json:"device_class,omitempty"`
	StateClass          string     `json:"state_class,omitempty"`
	Device              DeviceInfo `json:"device"`
	ValueTemplate       string     `json:"value_template"`
	AvailabilityTopic   string     `json:"availability_topic"`
	PayloadAvailable    string     `json:"payload_available"`
	PayloadNotAvailable string     `json:"payload_not_available"`
	EntityCategory      string     `json:"entity_category,omitempty"`
}

// DeviceInfo identifies a node to Home Assistant
type DeviceInfo struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

type sensorDef struct {
	key      string
	name     string
	unit     string
	class    string
	template string
	category string
}

var readingSensors = []sensorDef{
	{key: "temperature", name: "Temperature", unit: "°C", class: "temperature", template: "{{ value_json.temperature_celsius }}"},
	{key: "humidity", name: "Humidity", unit: "%", class: "humidity", template: "{{ value_json.humidity_percent }}"},
}

var statusSensors = []sensorDef{
	{key: "battery", name: "Battery", unit: "%", class: "battery", template: "{{ value_json.battery_level }}", category: "diagnostic"},
	{key: "signal", name: "Signal", unit: "dBm", class: "signal_strength", template: "{{ value_json.signal_strength }}", category: "diagnostic"},
	{key: "error_flags", name: "Error flags", template: "{{ value_json.error_flags }}", category: "diagnostic"},
}

// announce publishes discovery configs for sensors once per node and process
func (p *Publisher) announce(deviceID uint64, sensors []sensorDef, stateTopic string) {
	if p.topics.DiscoveryPrefix == "" || !p.client.IsConnected() {
		return
	}

	device := DeviceInfo{
		Name:         fmt.Sprintf("Bramble node %d", deviceID),
		Identifiers:  []string{NodeObjectID(deviceID)},
		Manufacturer: "Bramble",
		Model:        "LoRa sensor node",
		ViaDevice:    p.settings.ClientID,
	}

	for _, sensor := range sensors {
		key := UniqueID(deviceID, sensor.key)
		p.mu.Lock()
		done := p.announced[key]
		p.announced[key] = true
		p.mu.Unlock()
		if done {
			continue
		}

		stateClass := "measurement"
		if sensor.unit == "" {
			stateClass = ""
		}
		p.publishAsync(p.topics.Discovery(deviceID, sensor.key), true, SensorConfig{
			Name:                sensor.name,
			UniqueID:            key,
			StateTopic:          stateTopic,
			UnitOfMeasurement:   sensor.unit,
			DeviceClass:         sensor.class,
			StateClass:          stateClass,
			Device:              device,
			ValueTemplate:       sensor.template,
			AvailabilityTopic:   p.topics.Status(),
			PayloadAvailable:    payloadOnline,
			PayloadNotAvailable: payloadOffline,
			EntityCategory:      sensor.category,
		})
		p.log.LogDebug("📡 Published discovery for %s", key)
	}
}
