package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/erikbeerepoot/bramble/internal/models"
)

// QueuedAck is the acknowledgment for a mutating command
type QueuedAck struct {
	Verb     string
	Address  uint16
	Position int
}

// ParseQueued parses QUEUED <VERB> <addr> <position>
func ParseQueued(line string) (QueuedAck, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 || fields[0] != TokenQueued {
		return QueuedAck{}, fmt.Errorf("not a QUEUED acknowledgment: %q", line)
	}
	addr, err := ParseAddress(fields[2])
	if err != nil {
		return QueuedAck{}, err
	}
	pos, err := strconv.Atoi(fields[3])
	if err != nil {
		return QueuedAck{}, fmt.Errorf("invalid queue position %q", fields[3])
	}
	return QueuedAck{Verb: fields[1], Address: addr, Position: pos}, nil
}

// ParseNodeList parses a NODE_LIST header followed by NODE lines.
// Format: NODE <addr> <device_id> <type> <online 0/1> <last_seen_sec> [<fw_version>]
func ParseNodeList(lines []string) ([]models.Node, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("empty node list response")
	}
	header := strings.Fields(lines[0])
	if len(header) < 2 || header[0] != TokenNodeList {
		return nil, fmt.Errorf("unexpected node list header %q", lines[0])
	}

	nodes := make([]models.Node, 0, len(lines)-1)
	for _, line := range lines[1:] {
		if !strings.HasPrefix(line, TokenNode+" ") {
			continue
		}
		node, err := parseNode(line)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func parseNode(line string) (models.Node, error) {
	f := strings.Fields(line)
	if len(f) != 6 && len(f) != 7 {
		return models.Node{}, fmt.Errorf("malformed NODE line %q", line)
	}

	addr, err := ParseAddress(f[1])
	if err != nil {
		return models.Node{}, err
	}
	deviceID, err := strconv.ParseUint(f[2], 10, 64)
	if err != nil {
		return models.Node{}, fmt.Errorf("invalid device id in %q", line)
	}
	lastSeen, err := strconv.ParseInt(f[5], 10, 64)
	if err != nil {
		return models.Node{}, fmt.Errorf("invalid last seen in %q", line)
	}

	node := models.Node{
		Address:         addr,
		Type:            f[3],
		Online:          f[4] == "1",
		LastSeenSeconds: lastSeen,
	}
	if deviceID != 0 {
		node.DeviceID = &deviceID
	}
	if len(f) == 7 {
		packed, err := strconv.ParseUint(f[6], 10, 32)
		if err != nil {
			return models.Node{}, fmt.Errorf("invalid firmware version in %q", line)
		}
		node.FirmwareVersion = FormatFirmwareVersion(uint32(packed))
	}
	return node, nil
}

// ParseQueue parses a QUEUE <addr> <count> header followed by UPDATE lines.
// Format: UPDATE <seq> <type> <age_sec>
func ParseQueue(lines []string) (uint16, []models.QueuedUpdate, error) {
	if len(lines) == 0 {
		return 0, nil, fmt.Errorf("empty queue response")
	}
	header := strings.Fields(lines[0])
	if len(header) != 3 || header[0] != TokenQueue {
		return 0, nil, fmt.Errorf("unexpected queue header %q", lines[0])
	}
	addr, err := ParseAddress(header[1])
	if err != nil {
		return 0, nil, err
	}

	updates := make([]models.QueuedUpdate, 0, len(lines)-1)
	for _, line := range lines[1:] {
		if !strings.HasPrefix(line, TokenUpdate+" ") {
			continue
		}
		f := strings.Fields(line)
		if len(f) != 4 {
			return 0, nil, fmt.Errorf("malformed UPDATE line %q", line)
		}
		seq, err := strconv.Atoi(f[1])
		if err != nil {
			return 0, nil, fmt.Errorf("invalid sequence in %q", line)
		}
		age, err := strconv.ParseInt(f[3], 10, 64)
		if err != nil {
			return 0, nil, fmt.Errorf("invalid age in %q", line)
		}
		updates = append(updates, models.QueuedUpdate{Sequence: seq, Type: f[2], AgeSeconds: age})
	}
	return addr, updates, nil
}

// FormatFirmwareVersion unpacks (major<<24)|(minor<<16)|build. Zero means
// the node did not report a version and yields nil.
func FormatFirmwareVersion(packed uint32) *string {
	if packed == 0 {
		return nil
	}
	v := fmt.Sprintf("%d.%d.%d", packed>>24, (packed>>16)&0xFF, packed&0xFFFF)
	return &v
}
