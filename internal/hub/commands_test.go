package hub

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/erikbeerepoot/bramble/internal/errors"
	"github.com/erikbeerepoot/bramble/internal/logger"
	"github.com/erikbeerepoot/bramble/internal/models"
)

// scriptedSender answers each command from a fixed table
type scriptedSender struct {
	replies map[string]Response
	err     error
	sent    []string
}

func (s *scriptedSender) Send(_ context.Context, command string, _ time.Duration) (Response, error) {
	s.sent = append(s.sent, command)
	if s.err != nil {
		return nil, s.err
	}
	return s.replies[command], nil
}

func TestSetScheduleEndToEnd(t *testing.T) {
	h := newTestHub(EngineOptions{})
	h.link.script = func(string) []string { return []string{"QUEUED SET_SCHEDULE 3 5"} }
	cmds := NewCommands(h.engine, nil)

	ack, err := cmds.SetSchedule(context.Background(), 3, models.Schedule{Index: 0, Hour: 14, Minute: 30, Duration: 900, Days: 127})
	if err != nil {
		t.Fatalf("SetSchedule failed: %v", err)
	}
	if ack.Position != 5 || ack.Address != 3 || ack.Verb != "SET_SCHEDULE" {
		t.Errorf("Unexpected ack %+v", ack)
	}
	if writes := h.link.Writes(); len(writes) != 1 || writes[0] != "SET_SCHEDULE 3 0 14 30 900 127 0" {
		t.Errorf("Unexpected command %v", writes)
	}
}

func TestSetScheduleValidation(t *testing.T) {
	sender := &scriptedSender{}
	cmds := NewCommands(sender, nil)

	_, err := cmds.SetSchedule(context.Background(), 3, models.Schedule{Index: 9, Hour: 24})
	var validationErr *errors.ValidationError
	if !stderrors.As(err, &validationErr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Error("Invalid schedule must not be sent")
	}
}

func TestSetWakeIntervalBounds(t *testing.T) {
	sender := &scriptedSender{replies: map[string]Response{
		"SET_WAKE_INTERVAL 3 10": {"QUEUED SET_WAKE_INTERVAL 3 1"},
	}}
	cmds := NewCommands(sender, nil)

	if _, err := cmds.SetWakeInterval(context.Background(), 3, 9); errors.HTTPStatus(err) != 400 {
		t.Errorf("Expected 400 for 9s, got %v", err)
	}
	if _, err := cmds.SetWakeInterval(context.Background(), 3, 3601); errors.HTTPStatus(err) != 400 {
		t.Errorf("Expected 400 for 3601s, got %v", err)
	}
	if _, err := cmds.SetWakeInterval(context.Background(), 3, 10); err != nil {
		t.Errorf("10s should be accepted: %v", err)
	}
}

func TestInterpretQueuedRejected(t *testing.T) {
	_, err := InterpretQueued(Response{"ERROR Unknown node 12"})
	if !stderrors.Is(err, errors.ErrRejected) {
		t.Fatalf("Expected ErrRejected, got %v", err)
	}

	_, err = InterpretQueued(Response{"SOMETHING else"})
	var protoErr *errors.ProtocolError
	if !stderrors.As(err, &protoErr) {
		t.Fatalf("Expected ProtocolError, got %v", err)
	}
}

func TestListNodesTeachesDirectory(t *testing.T) {
	sender := &scriptedSender{replies: map[string]Response{
		"LIST_NODES": {"NODE_LIST 2", "NODE 3 12345 SENSOR 1 12 16842755", "NODE 4 0 IRRIGATION 0 600"},
	}}
	dir := NewDeviceDirectory(nil, logger.NewMockLogger())
	cmds := NewCommands(sender, dir)

	nodes, err := cmds.ListNodes(context.Background())
	if err != nil {
		t.Fatalf("ListNodes failed: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("Expected 2 nodes, got %d", len(nodes))
	}
	if nodes[0].FirmwareVersion == nil || *nodes[0].FirmwareVersion != "1.1.3" {
		t.Errorf("Unexpected firmware %v", nodes[0].FirmwareVersion)
	}
	if nodes[1].DeviceID != nil {
		t.Errorf("Device id 0 should be absent, got %v", *nodes[1].DeviceID)
	}
	if id := dir.DeviceID(3); id != 12345 {
		t.Errorf("Expected directory to map 3 to 12345, got %d", id)
	}
	if id := dir.DeviceID(4); id != 4 {
		t.Errorf("Expected unknown device to fall back to address, got %d", id)
	}
}

func TestGetQueueParses(t *testing.T) {
	sender := &scriptedSender{replies: map[string]Response{
		"GET_QUEUE 3": {"QUEUE 3 1", "UPDATE 7 SET_SCHEDULE 40"},
	}}
	updates, err := NewCommands(sender, nil).GetQueue(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetQueue failed: %v", err)
	}
	if len(updates) != 1 || updates[0].Sequence != 7 || updates[0].Type != "SET_SCHEDULE" || updates[0].AgeSeconds != 40 {
		t.Errorf("Unexpected updates %+v", updates)
	}
}

func TestDeleteNode(t *testing.T) {
	sender := &scriptedSender{replies: map[string]Response{
		"DELETE_NODE 3": {"DELETED_NODE 3"},
		"DELETE_NODE 4": {"ERROR Node not found"},
	}}
	cmds := NewCommands(sender, nil)

	if err := cmds.DeleteNode(context.Background(), 3); err != nil {
		t.Errorf("DeleteNode(3) failed: %v", err)
	}
	if err := cmds.DeleteNode(context.Background(), 4); !stderrors.Is(err, errors.ErrRejected) {
		t.Errorf("Expected ErrRejected for 4, got %v", err)
	}
}

type mapLookup map[uint16]uint64

func (m mapLookup) ResolveDevice(addr uint16) (uint64, bool, error) {
	id, ok := m[addr]
	return id, ok, nil
}

func TestDeviceDirectoryLookupFallback(t *testing.T) {
	dir := NewDeviceDirectory(mapLookup{8: 888}, logger.NewMockLogger())
	if id := dir.DeviceID(8); id != 888 {
		t.Errorf("Expected storage lookup, got %d", id)
	}
	if id := dir.DeviceID(9); id != 9 {
		t.Errorf("Expected address fallback, got %d", id)
	}
	dir.Learn(8, 999)
	if id := dir.DeviceID(8); id != 999 {
		t.Errorf("Expected latest mapping, got %d", id)
	}
}
