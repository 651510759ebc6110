package models

import (
	"fmt"
	"time"
)

// Node types reported by the hub
const (
	NodeTypeSensor     = "SENSOR"
	NodeTypeIrrigation = "IRRIGATION"
	NodeTypeUnknown    = "UNKNOWN"
)

// SensorReading is one temperature/humidity sample. Values are fixed-point
// hundredths (centidegrees / centipercent) everywhere except at display time.
type SensorReading struct {
	DeviceID                uint64    `json:"device_id"`
	Address                 uint16    `json:"address,omitempty"` // 0 when unknown
	Timestamp               int64     `json:"timestamp"`         // unix seconds
	TemperatureCentidegrees int32     `json:"temperature_centidegrees"`
	HumidityCentipercent    int32     `json:"humidity_centipercent"`
	Flags                   uint8     `json:"flags"`
	ReceivedAt              time.Time `json:"received_at"`
}

// TemperatureCelsius converts to display units
func (r SensorReading) TemperatureCelsius() float64 {
	return float64(r.TemperatureCentidegrees) / 100.0
}

// HumidityPercent converts to display units
func (r SensorReading) HumidityPercent() float64 {
	return float64(r.HumidityCentipercent) / 100.0
}

// Node is one entry of the hub's live node listing
type Node struct {
	Address         uint16  `json:"address"`
	DeviceID        *uint64 `json:"device_id"`
	Type            string  `json:"type"`
	Online          bool    `json:"online"`
	LastSeenSeconds int64   `json:"last_seen_seconds"`
	FirmwareVersion *string `json:"firmware_version"`
}

// NodeRecord is the persisted view of a node, maintained from stored readings
type NodeRecord struct {
	DeviceID      uint64 `json:"device_id"`
	Address       uint16 `json:"address,omitempty"`
	NodeType      string `json:"node_type"`
	FirstSeenAt   int64  `json:"first_seen_at"`
	LastSeenAt    int64  `json:"last_seen_at"`
	TotalReadings int64  `json:"total_readings"`
}

// NodeMetadata holds user-assigned details for a node
type NodeMetadata struct {
	DeviceID  uint64  `json:"device_id"`
	Name      *string `json:"name"`
	Location  *string `json:"location"`
	Notes     *string `json:"notes"`
	ZoneID    *int    `json:"zone_id"`
	UpdatedAt int64   `json:"updated_at"`
}

// Zone groups nodes for display
type Zone struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Color       string  `json:"color"`
	Description *string `json:"description"`
}

// NodeStatus is the latest health report pushed for a node
type NodeStatus struct {
	DeviceID       uint64 `json:"device_id"`
	Address        uint16 `json:"address"`
	BatteryLevel   int    `json:"battery_level"`
	ErrorFlags     uint32 `json:"error_flags"`
	SignalStrength int    `json:"signal_strength"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	PendingRecords int    `json:"pending_records"`
	UpdatedAt      int64  `json:"updated_at"`
}

// QueuedUpdate is one pending update in the hub's per-node queue
type QueuedUpdate struct {
	Sequence   int    `json:"sequence"`
	Type       string `json:"type"`
	AgeSeconds int64  `json:"age_seconds"`
}

// Schedule is an irrigation schedule entry
type Schedule struct {
	Index    int `json:"index"`
	Hour     int `json:"hour"`
	Minute   int `json:"minute"`
	Duration int `json:"duration"` // seconds
	Days     int `json:"days"`     // bitmask, 127 = every day
	Valve    int `json:"valve"`
}

// Validate returns one message per out-of-range field
func (s Schedule) Validate() []string {
	var problems []string
	if s.Index < 0 || s.Index > 7 {
		problems = append(problems, "index must be 0-7")
	}
	if s.Hour < 0 || s.Hour > 23 {
		problems = append(problems, "hour must be 0-23")
	}
	if s.Minute < 0 || s.Minute > 59 {
		problems = append(problems, "minute must be 0-59")
	}
	if s.Duration < 0 || s.Duration > 65535 {
		problems = append(problems, "duration must be 0-65535 seconds")
	}
	if s.Days < 0 || s.Days > 127 {
		problems = append(problems, "days must be 0-127 (bitmask)")
	}
	if s.Valve < 0 {
		problems = append(problems, "valve must be >= 0")
	}
	return problems
}

// HubDateTime is the payload of SET_DATETIME. Year is two-digit, weekday 1-7.
type HubDateTime struct {
	Year    int `json:"year"`
	Month   int `json:"month"`
	Day     int `json:"day"`
	Weekday int `json:"weekday"`
	Hour    int `json:"hour"`
	Minute  int `json:"minute"`
	Second  int `json:"second"`
}

// Validate returns one message per out-of-range field
func (d HubDateTime) Validate() []string {
	var problems []string
	check := func(name string, v, lo, hi int) {
		if v < lo || v > hi {
			problems = append(problems, fmt.Sprintf("%s must be %d-%d", name, lo, hi))
		}
	}
	check("year", d.Year, 0, 99)
	check("month", d.Month, 1, 12)
	check("day", d.Day, 1, 31)
	check("weekday", d.Weekday, 1, 7)
	check("hour", d.Hour, 0, 23)
	check("minute", d.Minute, 0, 59)
	check("second", d.Second, 0, 59)
	return problems
}

// HubDateTimeFrom converts t to the hub's SET_DATETIME fields (Monday=1 .. Sunday=7)
func HubDateTimeFrom(t time.Time) HubDateTime {
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7
	}
	return HubDateTime{
		Year:    t.Year() % 100,
		Month:   int(t.Month()),
		Day:     t.Day(),
		Weekday: wd,
		Hour:    t.Hour(),
		Minute:  t.Minute(),
		Second:  t.Second(),
	}
}

// Wake interval bounds in seconds
const (
	MinWakeInterval = 10
	MaxWakeInterval = 3600
)
