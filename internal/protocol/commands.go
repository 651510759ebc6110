package protocol

import (
	"fmt"
	"strings"
	"time"

	"github.com/erikbeerepoot/bramble/internal/models"
)

// Command verbs sent to the hub
const (
	VerbListNodes       = "LIST_NODES"
	VerbGetQueue        = "GET_QUEUE"
	VerbSetSchedule     = "SET_SCHEDULE"
	VerbRemoveSchedule  = "REMOVE_SCHEDULE"
	VerbSetWakeInterval = "SET_WAKE_INTERVAL"
	VerbSetDateTime     = "SET_DATETIME"
	VerbRebootNode      = "REBOOT_NODE"
	VerbDeleteNode      = "DELETE_NODE"
	VerbBatchAck        = "BATCH_ACK"
	VerbDateTime        = "DATETIME"
)

// Ack status codes carried by BATCH_ACK
const (
	AckSuccess = 0
	AckFailed  = 1
)

// Verb returns the first token of a command line
func Verb(command string) string {
	verb, _, _ := strings.Cut(strings.TrimSpace(command), " ")
	return verb
}

// ListNodesCommand builds LIST_NODES
func ListNodesCommand() string {
	return VerbListNodes
}

// GetQueueCommand builds GET_QUEUE <addr>
func GetQueueCommand(addr uint16) string {
	return fmt.Sprintf("%s %d", VerbGetQueue, addr)
}

// SetScheduleCommand builds SET_SCHEDULE <addr> <idx> <hour> <minute> <duration> <days> <valve>
func SetScheduleCommand(addr uint16, s models.Schedule) string {
	return fmt.Sprintf("%s %d %d %d %d %d %d %d",
		VerbSetSchedule, addr, s.Index, s.Hour, s.Minute, s.Duration, s.Days, s.Valve)
}

// RemoveScheduleCommand builds REMOVE_SCHEDULE <addr> <idx>
func RemoveScheduleCommand(addr uint16, index int) string {
	return fmt.Sprintf("%s %d %d", VerbRemoveSchedule, addr, index)
}

// SetWakeIntervalCommand builds SET_WAKE_INTERVAL <addr> <seconds>
func SetWakeIntervalCommand(addr uint16, seconds int) string {
	return fmt.Sprintf("%s %d %d", VerbSetWakeInterval, addr, seconds)
}

// SetDateTimeCommand builds SET_DATETIME <addr> <yy> <mm> <dd> <wd> <hh> <mm> <ss>
func SetDateTimeCommand(addr uint16, dt models.HubDateTime) string {
	return fmt.Sprintf("%s %d %d %d %d %d %d %d %d",
		VerbSetDateTime, addr, dt.Year, dt.Month, dt.Day, dt.Weekday, dt.Hour, dt.Minute, dt.Second)
}

// RebootNodeCommand builds REBOOT_NODE <addr>
func RebootNodeCommand(addr uint16) string {
	return fmt.Sprintf("%s %d", VerbRebootNode, addr)
}

// DeleteNodeCommand builds DELETE_NODE <addr>
func DeleteNodeCommand(addr uint16) string {
	return fmt.Sprintf("%s %d", VerbDeleteNode, addr)
}

// FormatBatchAck builds BATCH_ACK <addr> <inserted> <status>
func FormatBatchAck(addr uint16, inserted int, status int) string {
	return fmt.Sprintf("%s %d %d %d", VerbBatchAck, addr, inserted, status)
}

// FormatDateTime builds the reply to GET_DATETIME. Weekday is 0=Sunday..6=Saturday.
func FormatDateTime(t time.Time) string {
	return fmt.Sprintf("%s %s %d", VerbDateTime, t.Format(time.DateTime), int(t.Weekday()))
}
