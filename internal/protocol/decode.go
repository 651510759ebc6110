package protocol

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/erikbeerepoot/bramble/internal/errors"
)

// Decode classifies a trimmed, non-empty line. Priority is fixed: the exact
// datetime query token, then push prefixes, then everything else is a
// response line. A line carrying a push prefix with bad fields returns a
// *errors.ProtocolError and must be dropped, never treated as a response.
func Decode(line string) (Message, error) {
	if line == TokenGetDateTime {
		return DateTimeQuery{}, nil
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ResponseLine{Text: line}, nil
	}

	switch fields[0] {
	case PrefixSensorData:
		return decodeSensorData(line, fields)
	case PrefixSensorBatch:
		addr, count, err := decodeAddrCount(line, fields)
		if err != nil {
			return nil, err
		}
		return BatchStart{Address: addr, Count: count}, nil
	case PrefixSensorRecord:
		return decodeRecord(line, fields)
	case PrefixBatchDone:
		addr, count, err := decodeAddrCount(line, fields)
		if err != nil {
			return nil, err
		}
		return BatchComplete{Address: addr, Count: count}, nil
	case PrefixNodeStatus:
		return decodeNodeStatus(line, fields)
	}

	return classifyResponse(line, fields), nil
}

func classifyResponse(line string, fields []string) ResponseLine {
	resp := ResponseLine{Text: line, Tag: TagOther}

	switch {
	case fields[0] == TokenNodeList:
		if len(fields) >= 2 {
			if n, err := strconv.Atoi(fields[1]); err == nil && n >= 0 {
				resp.Tag, resp.Count = TagNodeListHeader, n
			}
		}
	case strings.HasPrefix(line, TokenNode+" "):
		resp.Tag = TagNodeEntry
	case fields[0] == TokenQueue:
		if len(fields) >= 3 {
			if n, err := strconv.Atoi(fields[2]); err == nil && n >= 0 {
				resp.Tag, resp.Count = TagQueueHeader, n
			}
		}
	case strings.HasPrefix(line, TokenUpdate+" "):
		resp.Tag = TagQueueEntry
	case strings.HasPrefix(line, TokenQueued):
		resp.Tag = TagQueued
	case strings.HasPrefix(line, TokenDeletedNode):
		resp.Tag = TagDeleted
	case strings.HasPrefix(line, TokenError):
		resp.Tag = TagError
	}
	return resp
}

func malformed(line, op string, format string, args ...interface{}) error {
	return errors.NewProtocolError(op, fmt.Errorf(format, args...), line)
}

func expectFields(line string, fields []string, n int) error {
	if len(fields) != n {
		return malformed(line, "decode "+fields[0], "expected %d fields, got %d", n, len(fields))
	}
	return nil
}

// ParseAddress parses a LoRa node address
func ParseAddress(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return uint16(v), nil
}

func decodeAddrCount(line string, fields []string) (uint16, int, error) {
	if err := expectFields(line, fields, 3); err != nil {
		return 0, 0, err
	}
	addr, err := ParseAddress(fields[1])
	if err != nil {
		return 0, 0, malformed(line, "decode "+fields[0], "%v", err)
	}
	count, err := strconv.Atoi(fields[2])
	if err != nil || count < 0 {
		return 0, 0, malformed(line, "decode "+fields[0], "invalid count %q", fields[2])
	}
	return addr, count, nil
}

func decodeSensorData(line string, fields []string) (Message, error) {
	if err := expectFields(line, fields, 4); err != nil {
		return nil, err
	}
	addr, err := ParseAddress(fields[1])
	if err != nil {
		return nil, malformed(line, "decode SENSOR_DATA", "%v", err)
	}

	field := SampleField(fields[2])
	if field != FieldTemperature && field != FieldHumidity {
		return nil, malformed(line, "decode SENSOR_DATA", "unknown field %q", fields[2])
	}

	value, err := parseCentiValue(fields[3])
	if err != nil {
		return nil, malformed(line, "decode SENSOR_DATA", "%v", err)
	}
	return SensorSample{Address: addr, Field: field, Value: value}, nil
}

// parseCentiValue accepts integer hundredths ("2150") or a decimal in
// display units ("21.50").
func parseCentiValue(s string) (int32, error) {
	if !strings.Contains(s, ".") {
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q", s)
		}
		return int32(v), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	scaled := math.Round(f * 100)
	if scaled > math.MaxInt32 || scaled < math.MinInt32 {
		return 0, fmt.Errorf("value %q out of range", s)
	}
	return int32(scaled), nil
}

func decodeRecord(line string, fields []string) (Message, error) {
	if err := expectFields(line, fields, 6); err != nil {
		return nil, err
	}
	const op = "decode SENSOR_RECORD"

	addr, err := ParseAddress(fields[1])
	if err != nil {
		return nil, malformed(line, op, "%v", err)
	}
	ts, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return nil, malformed(line, op, "invalid timestamp %q", fields[2])
	}
	temp, err := strconv.ParseInt(fields[3], 10, 32)
	if err != nil {
		return nil, malformed(line, op, "invalid temperature %q", fields[3])
	}
	hum, err := strconv.ParseInt(fields[4], 10, 32)
	if err != nil {
		return nil, malformed(line, op, "invalid humidity %q", fields[4])
	}
	flags, err := strconv.ParseUint(fields[5], 10, 8)
	if err != nil {
		return nil, malformed(line, op, "invalid flags %q", fields[5])
	}

	return BatchRecord{
		Address:     addr,
		Timestamp:   int64(ts),
		Temperature: int32(temp),
		Humidity:    int32(hum),
		Flags:       uint8(flags),
	}, nil
}

func decodeNodeStatus(line string, fields []string) (Message, error) {
	if err := expectFields(line, fields, 8); err != nil {
		return nil, err
	}
	const op = "decode NODE_STATUS"

	addr, err := ParseAddress(fields[1])
	if err != nil {
		return nil, malformed(line, op, "%v", err)
	}
	deviceID, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return nil, malformed(line, op, "invalid device id %q", fields[2])
	}

	ints := make([]int64, 5)
	for i, s := range fields[3:] {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, malformed(line, op, "invalid field %d %q", i+3, s)
		}
		ints[i] = v
	}
	if ints[1] < 0 || ints[1] > math.MaxUint32 {
		return nil, malformed(line, op, "error flags out of range %d", ints[1])
	}

	return NodeStatusReport{
		Address:        addr,
		DeviceID:       deviceID,
		BatteryLevel:   int(ints[0]),
		ErrorFlags:     uint32(ints[1]),
		SignalStrength: int(ints[2]),
		UptimeSeconds:  ints[3],
		PendingRecords: int(ints[4]),
	}, nil
}
