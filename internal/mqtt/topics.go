package mqtt

import "fmt"

// Topics builds every topic the publisher writes to
type Topics struct {
	Prefix          string
	DiscoveryPrefix string
}

// Status is the retained online/offline availability topic (also the LWT)
// Pattern: {prefix}/status
func (t Topics) Status() string {
	return fmt.Sprintf("%s/status", t.Prefix)
}

// Diagnostic carries error codes and messages
// Pattern: {prefix}/diagnostic
func (t Topics) Diagnostic() string {
	return fmt.Sprintf("%s/diagnostic", t.Prefix)
}

// Reading carries one sensor reading per message
// Pattern: {prefix}/nodes/{device_id}/reading
func (t Topics) Reading(deviceID uint64) string {
	return fmt.Sprintf("%s/nodes/%d/reading", t.Prefix, deviceID)
}

// NodeStatus is the retained latest status of a node
// Pattern: {prefix}/nodes/{device_id}/status
func (t Topics) NodeStatus(deviceID uint64) string {
	return fmt.Sprintf("%s/nodes/%d/status", t.Prefix, deviceID)
}

// Discovery is the Home Assistant config topic for one sensor of a node
// Pattern: {discovery_prefix}/sensor/bramble_{device_id}/{sensor_key}/config
func (t Topics) Discovery(deviceID uint64, sensorKey string) string {
	return fmt.Sprintf("%s/sensor/%s/%s/config", t.DiscoveryPrefix, NodeObjectID(deviceID), sensorKey)
}

// NodeObjectID is the Home Assistant device identifier of a node
func NodeObjectID(deviceID uint64) string {
	return fmt.Sprintf("bramble_%d", deviceID)
}

// UniqueID is the Home Assistant entity id of one sensor of a node
// Pattern: bramble_{device_id}_{sensor_key}
func UniqueID(deviceID uint64, sensorKey string) string {
	return fmt.Sprintf("%s_%s", NodeObjectID(deviceID), sensorKey)
}
