package api

import (
	"net/http"
	"strings"

	"github.com/erikbeerepoot/bramble/internal/errors"
	"github.com/erikbeerepoot/bramble/internal/models"
	"github.com/erikbeerepoot/bramble/internal/queue"
	"github.com/erikbeerepoot/bramble/internal/storage"
)

const defaultZoneColor = "#4CAF50"

func errRequiredQuery(name string) error {
	return errors.NewValidationError(name, "required query parameter", "missing")
}

func (s *Server) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	deviceID, err := pathDeviceID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	md, err := s.deps.Store.NodeMetadata(deviceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, md)
}

func (s *Server) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	deviceID, err := pathDeviceID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var u storage.MetadataUpdate
	if err := decodeJSON(r, &u); err != nil {
		s.writeError(w, r, err)
		return
	}
	if u.ZoneID != nil && *u.ZoneID < 0 && *u.ZoneID != storage.UnsetZone {
		s.writeError(w, r, errors.NewValidationError("zone_id", "zone id or -1 to clear", *u.ZoneID))
		return
	}
	md, err := s.deps.Store.UpdateNodeMetadata(deviceID, u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, md)
}

func (s *Server) handleNodeStatus(w http.ResponseWriter, r *http.Request) {
	deviceID, err := pathDeviceID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status, err := s.deps.Store.NodeStatus(deviceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleStatusHistory(w http.ResponseWriter, r *http.Request) {
	deviceID, err := pathDeviceID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	start, end, err := s.timeWindow(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	history, err := s.deps.Store.StatusHistory(deviceID, start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if history == nil {
		history = []models.NodeStatus{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"device_id": deviceID,
		"start":     start,
		"end":       end,
		"count":     len(history),
		"history":   history,
	})
}

func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	zones, err := s.deps.Store.ListZones()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if zones == nil {
		zones = []models.Zone{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(zones),
		"zones": zones,
	})
}

func (s *Server) handleCreateZone(w http.ResponseWriter, r *http.Request) {
	var req storage.ZoneUpdate
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		s.writeError(w, r, errors.NewValidationError("name", "non-empty zone name", "missing"))
		return
	}
	color := defaultZoneColor
	if req.Color != nil && *req.Color != "" {
		color = *req.Color
	}
	zone, err := s.deps.Store.CreateZone(strings.TrimSpace(*req.Name), color, req.Description)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, zone)
}

func (s *Server) handleUpdateZone(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var u storage.ZoneUpdate
	if err := decodeJSON(r, &u); err != nil {
		s.writeError(w, r, err)
		return
	}
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		s.writeError(w, r, errors.NewValidationError("name", "non-empty zone name", *u.Name))
		return
	}
	zone, err := s.deps.Store.UpdateZone(id, u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, zone)
}

func (s *Server) handleDeleteZone(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Store.DeleteZone(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "deleted", "zone_id": id})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	state := queue.State(r.URL.Query().Get("state"))
	switch state {
	case "", queue.StatePending, queue.StateRunning, queue.StateSucceeded, queue.StateWarning, queue.StateFailed:
	default:
		s.writeError(w, r, errors.NewValidationError("state", "pending|running|succeeded|warning|failed", string(state)))
		return
	}
	tasks, err := s.deps.TaskLookup.List(state)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []queue.Task{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(tasks),
		"tasks": tasks,
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.deps.TaskLookup.Get(muxVar(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}
