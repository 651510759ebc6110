// Package protocol decodes and encodes the hub's newline-delimited ASCII protocol.
//
// Every line received from the hub is decoded exactly once into one of the
// Message variants below; downstream components switch on the concrete type.
package protocol

// Push and query tokens sent unsolicited by the hub
const (
	TokenGetDateTime   = "GET_DATETIME"
	PrefixSensorData   = "SENSOR_DATA"
	PrefixSensorBatch  = "SENSOR_BATCH"
	PrefixSensorRecord = "SENSOR_RECORD"
	PrefixBatchDone    = "BATCH_COMPLETE"
	PrefixNodeStatus   = "NODE_STATUS"
)

// Response line tokens
const (
	TokenNodeList    = "NODE_LIST"
	TokenNode        = "NODE"
	TokenQueue       = "QUEUE"
	TokenUpdate      = "UPDATE"
	TokenQueued      = "QUEUED"
	TokenError       = "ERROR"
	TokenDeletedNode = "DELETED_NODE"
)

// Message is a decoded line. The set of implementations is closed.
type Message interface {
	isMessage()
}

// ResponseTag classifies a response line
type ResponseTag int

const (
	TagOther ResponseTag = iota
	TagNodeListHeader
	TagNodeEntry
	TagQueueHeader
	TagQueueEntry
	TagQueued
	TagError
	TagDeleted
)

// String returns the tag name
func (t ResponseTag) String() string {
	switch t {
	case TagNodeListHeader:
		return "node-list-header"
	case TagNodeEntry:
		return "node-entry"
	case TagQueueHeader:
		return "queue-header"
	case TagQueueEntry:
		return "queue-entry"
	case TagQueued:
		return "queued"
	case TagError:
		return "error"
	case TagDeleted:
		return "deleted"
	default:
		return "other"
	}
}

// ResponseLine is a fragment of the outstanding command's response.
// Count is the announced item count for header tags, otherwise zero.
type ResponseLine struct {
	Text  string
	Tag   ResponseTag
	Count int
}

// DateTimeQuery is the hub asking for the current wall-clock time
type DateTimeQuery struct{}

// SampleField identifies the quantity of a live sample
type SampleField string

const (
	FieldTemperature SampleField = "TEMP"
	FieldHumidity    SampleField = "HUM"
)

// SensorSample is a single live value, one field per line, in hundredths
type SensorSample struct {
	Address uint16
	Field   SampleField
	Value   int32
}

// BatchStart opens a bulk upload of Count historical records
type BatchStart struct {
	Address uint16
	Count   int
}

// BatchRecord is one historical reading inside a bulk upload
type BatchRecord struct {
	Address     uint16
	Timestamp   int64
	Temperature int32
	Humidity    int32
	Flags       uint8
}

// BatchComplete closes a bulk upload; Count is what the hub believes it sent
type BatchComplete struct {
	Address uint16
	Count   int
}

// NodeStatusReport is a health report relayed for a node
type NodeStatusReport struct {
	Address        uint16
	DeviceID       uint64
	BatteryLevel   int
	ErrorFlags     uint32
	SignalStrength int
	UptimeSeconds  int64
	PendingRecords int
}

func (ResponseLine) isMessage()     {}
func (DateTimeQuery) isMessage()    {}
func (SensorSample) isMessage()     {}
func (BatchStart) isMessage()       {}
func (BatchRecord) isMessage()      {}
func (BatchComplete) isMessage()    {}
func (NodeStatusReport) isMessage() {}
