package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/erikbeerepoot/bramble/internal/errors"
	"github.com/erikbeerepoot/bramble/internal/hub"
	"github.com/erikbeerepoot/bramble/internal/models"
	"github.com/erikbeerepoot/bramble/internal/protocol"
	"github.com/erikbeerepoot/bramble/internal/queue"
)

// nodeView is a live node enriched with its stored name and zone
type nodeView struct {
	models.Node
	Name   *string `json:"name,omitempty"`
	ZoneID *int    `json:"zone_id,omitempty"`
}

func (s *Server) nodeViews(nodes []models.Node) []nodeView {
	var meta map[uint64]models.NodeMetadata
	if s.deps.Store != nil {
		var err error
		if meta, err = s.deps.Store.AllNodeMetadata(); err != nil {
			s.log.LogWarn("Node metadata unavailable: %v", err)
		}
	}
	views := make([]nodeView, 0, len(nodes))
	for _, n := range nodes {
		v := nodeView{Node: n}
		if n.DeviceID != nil {
			if md, ok := meta[*n.DeviceID]; ok {
				v.Name = md.Name
				v.ZoneID = md.ZoneID
			}
		}
		views = append(views, v)
	}
	return views
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.deps.Hub.ListNodes(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(nodes),
		"nodes": s.nodeViews(nodes),
	})
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	nodes, err := s.deps.Hub.ListNodes(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, v := range s.nodeViews(nodes) {
		if v.Address == addr {
			s.writeJSON(w, http.StatusOK, v)
			return
		}
	}
	s.writeError(w, r, fmt.Errorf("node %d: %w", addr, errors.ErrNotFound))
}

// handleDeleteNode removes addr from the hub, then purges the stored data of
// the device last seen at that address
func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Hub.DeleteNode(r.Context(), addr); err != nil {
		s.writeError(w, r, err)
		return
	}

	body := map[string]interface{}{"status": "deleted", "node_address": addr}
	if s.deps.Store != nil && r.URL.Query().Get("purge") == "true" {
		deviceID, found, err := s.deps.Store.ResolveDevice(addr)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if found {
			if err := s.deps.Store.DeleteNode(deviceID); err != nil {
				s.writeError(w, r, err)
				return
			}
			body["purged_device_id"] = deviceID
		}
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleNodeQueue(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	updates, err := s.deps.Hub.GetQueue(r.Context(), addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if updates == nil {
		updates = []models.QueuedUpdate{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"node_address": addr,
		"count":        len(updates),
		"updates":      updates,
	})
}

// taskAccepted answers a mutating request handed to the task queue
type taskAccepted struct {
	Status      string      `json:"status"`
	TaskID      string      `json:"task_id"`
	NodeAddress uint16      `json:"node_address"`
	Command     string      `json:"command"`
	Request     interface{} `json:"request,omitempty"`
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, addr uint16, command string, request interface{}) {
	task, err := s.deps.Tasks.Submit(command)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/tasks/"+task.ID)
	s.writeJSON(w, http.StatusAccepted, taskAccepted{
		Status:      string(queue.StatePending),
		TaskID:      task.ID,
		NodeAddress: addr,
		Command:     command,
		Request:     request,
	})
}

type scheduleRequest struct {
	Index    *int `json:"index"`
	Hour     *int `json:"hour"`
	Minute   *int `json:"minute"`
	Duration *int `json:"duration"`
	Days     *int `json:"days"`
	Valve    *int `json:"valve"`
}

func (s *Server) handleSetSchedule(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := required(field("index", req.Index), field("hour", req.Hour), field("minute", req.Minute),
		field("duration", req.Duration), field("days", req.Days), field("valve", req.Valve)); err != nil {
		s.writeError(w, r, err)
		return
	}
	schedule := models.Schedule{
		Index:    *req.Index,
		Hour:     *req.Hour,
		Minute:   *req.Minute,
		Duration: *req.Duration,
		Days:     *req.Days,
		Valve:    *req.Valve,
	}
	command, err := hub.ScheduleCommand(addr, schedule)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.submit(w, r, addr, command, schedule)
}

func (s *Server) handleRemoveSchedule(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	index, err := pathInt(r, "index")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	command, err := hub.RemoveScheduleCommand(addr, index)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.submit(w, r, addr, command, map[string]int{"schedule_index": index})
}

func (s *Server) handleSetWakeInterval(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		IntervalSeconds *int `json:"interval_seconds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := required(field("interval_seconds", req.IntervalSeconds)); err != nil {
		s.writeError(w, r, err)
		return
	}
	command, err := hub.WakeIntervalCommand(addr, *req.IntervalSeconds)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.submit(w, r, addr, command, map[string]int{"interval_seconds": *req.IntervalSeconds})
}

type dateTimeRequest struct {
	Year    *int `json:"year"`
	Month   *int `json:"month"`
	Day     *int `json:"day"`
	Weekday *int `json:"weekday"`
	Hour    *int `json:"hour"`
	Minute  *int `json:"minute"`
	Second  *int `json:"second"`
}

func (s *Server) handleSetDateTime(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req dateTimeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := required(field("year", req.Year), field("month", req.Month), field("day", req.Day),
		field("weekday", req.Weekday), field("hour", req.Hour), field("minute", req.Minute),
		field("second", req.Second)); err != nil {
		s.writeError(w, r, err)
		return
	}
	dt := models.HubDateTime{
		Year:    *req.Year,
		Month:   *req.Month,
		Day:     *req.Day,
		Weekday: *req.Weekday,
		Hour:    *req.Hour,
		Minute:  *req.Minute,
		Second:  *req.Second,
	}
	command, err := hub.DateTimeCommand(addr, dt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.submit(w, r, addr, command, dt)
}

func (s *Server) handleReboot(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.submit(w, r, addr, protocol.RebootNodeCommand(addr), nil)
}

type hubCommandRequest struct {
	Command        string  `json:"command"`
	CommandID      string  `json:"command_id,omitempty"`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
}

// handleHubCommand sends one raw command synchronously and returns every
// response line
func (s *Server) handleHubCommand(w http.ResponseWriter, r *http.Request) {
	var req hubCommandRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	command := strings.TrimSpace(req.Command)
	if command == "" || strings.ContainsAny(command, "\r\n") {
		s.writeError(w, r, errors.NewValidationError("command", "single non-empty line", req.Command))
		return
	}
	timeout := time.Duration(req.TimeoutSeconds * float64(time.Second))

	resp, err := s.deps.Hub.Raw(r.Context(), command, timeout)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"command_id": req.CommandID,
		"command":    command,
		"responses":  []string(resp),
	})
}
