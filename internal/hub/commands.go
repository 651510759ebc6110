package hub

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/erikbeerepoot/bramble/internal/errors"
	"github.com/erikbeerepoot/bramble/internal/models"
	"github.com/erikbeerepoot/bramble/internal/protocol"
)

// Sender sends one command and returns its response
type Sender interface {
	Send(ctx context.Context, command string, timeout time.Duration) (Response, error)
}

// Commands builds typed hub commands on top of a Sender and parses their responses
type Commands struct {
	sender    Sender
	directory *DeviceDirectory
}

// NewCommands creates typed command helpers. directory may be nil.
func NewCommands(sender Sender, directory *DeviceDirectory) *Commands {
	return &Commands{sender: sender, directory: directory}
}

// Raw sends command unchanged. Used by the internal passthrough endpoint.
func (c *Commands) Raw(ctx context.Context, command string, timeout time.Duration) (Response, error) {
	return c.sender.Send(ctx, command, timeout)
}

// ListNodes returns the hub's current node table
func (c *Commands) ListNodes(ctx context.Context) ([]models.Node, error) {
	resp, err := c.sender.Send(ctx, protocol.ListNodesCommand(), 0)
	if err != nil {
		return nil, err
	}
	if err := rejected(resp); err != nil {
		return nil, err
	}
	nodes, err := protocol.ParseNodeList(resp)
	if err != nil {
		return nil, errors.NewProtocolError("list nodes", err, resp.First())
	}
	if c.directory != nil {
		c.directory.LearnNodes(nodes)
	}
	return nodes, nil
}

// GetQueue returns the updates waiting at the hub for addr
func (c *Commands) GetQueue(ctx context.Context, addr uint16) ([]models.QueuedUpdate, error) {
	resp, err := c.sender.Send(ctx, protocol.GetQueueCommand(addr), 0)
	if err != nil {
		return nil, err
	}
	if err := rejected(resp); err != nil {
		return nil, err
	}
	_, updates, err := protocol.ParseQueue(resp)
	if err != nil {
		return nil, errors.NewProtocolError("get queue", err, resp.First())
	}
	return updates, nil
}

// SetSchedule queues a schedule update for addr
func (c *Commands) SetSchedule(ctx context.Context, addr uint16, s models.Schedule) (protocol.QueuedAck, error) {
	command, err := ScheduleCommand(addr, s)
	if err != nil {
		return protocol.QueuedAck{}, err
	}
	return c.queued(ctx, command)
}

// RemoveSchedule queues removal of schedule slot index for addr
func (c *Commands) RemoveSchedule(ctx context.Context, addr uint16, index int) (protocol.QueuedAck, error) {
	command, err := RemoveScheduleCommand(addr, index)
	if err != nil {
		return protocol.QueuedAck{}, err
	}
	return c.queued(ctx, command)
}

// SetWakeInterval queues a new wake interval in seconds for addr
func (c *Commands) SetWakeInterval(ctx context.Context, addr uint16, seconds int) (protocol.QueuedAck, error) {
	command, err := WakeIntervalCommand(addr, seconds)
	if err != nil {
		return protocol.QueuedAck{}, err
	}
	return c.queued(ctx, command)
}

// SetDateTime queues a clock update for addr
func (c *Commands) SetDateTime(ctx context.Context, addr uint16, dt models.HubDateTime) (protocol.QueuedAck, error) {
	command, err := DateTimeCommand(addr, dt)
	if err != nil {
		return protocol.QueuedAck{}, err
	}
	return c.queued(ctx, command)
}

// RebootNode queues a reboot for addr
func (c *Commands) RebootNode(ctx context.Context, addr uint16) (protocol.QueuedAck, error) {
	return c.queued(ctx, protocol.RebootNodeCommand(addr))
}

// DeleteNode removes addr from the hub's node table
func (c *Commands) DeleteNode(ctx context.Context, addr uint16) error {
	resp, err := c.sender.Send(ctx, protocol.DeleteNodeCommand(addr), 0)
	if err != nil {
		return err
	}
	if err := rejected(resp); err != nil {
		return err
	}
	if !strings.HasPrefix(resp.First(), protocol.TokenDeletedNode) {
		return errors.NewProtocolError("delete node", fmt.Errorf("unexpected response"), resp.First())
	}
	return nil
}

func (c *Commands) queued(ctx context.Context, command string) (protocol.QueuedAck, error) {
	resp, err := c.sender.Send(ctx, command, 0)
	if err != nil {
		return protocol.QueuedAck{}, err
	}
	return InterpretQueued(resp)
}

// InterpretQueued extracts the QUEUED acknowledgment from a mutating
// command's response. An ERROR line yields an error wrapping ErrRejected.
func InterpretQueued(resp Response) (protocol.QueuedAck, error) {
	if err := rejected(resp); err != nil {
		return protocol.QueuedAck{}, err
	}
	for _, line := range resp {
		if strings.HasPrefix(line, protocol.TokenQueued) {
			ack, err := protocol.ParseQueued(line)
			if err != nil {
				return protocol.QueuedAck{}, errors.NewProtocolError("queued ack", err, line)
			}
			return ack, nil
		}
	}
	return protocol.QueuedAck{}, errors.NewProtocolError("queued ack", fmt.Errorf("no QUEUED line"), resp.First())
}

func rejected(resp Response) error {
	for _, line := range resp {
		if strings.HasPrefix(line, protocol.TokenError) {
			return fmt.Errorf("%s: %w", line, errors.ErrRejected)
		}
	}
	return nil
}

// ScheduleCommand validates s and builds its SET_SCHEDULE line
func ScheduleCommand(addr uint16, s models.Schedule) (string, error) {
	if problems := s.Validate(); len(problems) > 0 {
		return "", errors.NewValidationError("schedule", "valid schedule", problems)
	}
	return protocol.SetScheduleCommand(addr, s), nil
}

// RemoveScheduleCommand validates index and builds its REMOVE_SCHEDULE line
func RemoveScheduleCommand(addr uint16, index int) (string, error) {
	if index < 0 || index > 7 {
		return "", errors.NewValidationError("index", "0-7", index)
	}
	return protocol.RemoveScheduleCommand(addr, index), nil
}

// WakeIntervalCommand validates seconds and builds its SET_WAKE_INTERVAL line
func WakeIntervalCommand(addr uint16, seconds int) (string, error) {
	if seconds < models.MinWakeInterval || seconds > models.MaxWakeInterval {
		return "", errors.NewValidationError("interval_seconds",
			fmt.Sprintf("%d-%d", models.MinWakeInterval, models.MaxWakeInterval), seconds)
	}
	return protocol.SetWakeIntervalCommand(addr, seconds), nil
}

// DateTimeCommand validates dt and builds its SET_DATETIME line
func DateTimeCommand(addr uint16, dt models.HubDateTime) (string, error) {
	if problems := dt.Validate(); len(problems) > 0 {
		return "", errors.NewValidationError("datetime", "valid datetime", problems)
	}
	return protocol.SetDateTimeCommand(addr, dt), nil
}
