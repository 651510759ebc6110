package api

import (
	"fmt"
	"net/http"

	"github.com/erikbeerepoot/bramble/internal/models"
	"github.com/erikbeerepoot/bramble/internal/storage"
)

const defaultMaxPoints = 500

// readingView is a stored reading in display units
type readingView struct {
	DeviceID           uint64  `json:"device_id"`
	Address            uint16  `json:"address,omitempty"`
	Timestamp          int64   `json:"timestamp"`
	TemperatureCelsius float64 `json:"temperature_celsius"`
	HumidityPercent    float64 `json:"humidity_percent"`
	Flags              uint8   `json:"flags"`
}

func viewReading(r models.SensorReading) readingView {
	return readingView{
		DeviceID:           r.DeviceID,
		Address:            r.Address,
		Timestamp:          r.Timestamp,
		TemperatureCelsius: r.TemperatureCelsius(),
		HumidityPercent:    r.HumidityPercent(),
		Flags:              r.Flags,
	}
}

func readingFilter(r *http.Request) (storage.ReadingFilter, error) {
	var f storage.ReadingFilter
	var err error
	if f.DeviceID, err = queryUint64(r, "device_id"); err != nil {
		return f, err
	}
	if f.Start, err = queryInt64(r, "start"); err != nil {
		return f, err
	}
	if f.End, err = queryInt64(r, "end"); err != nil {
		return f, err
	}
	if f.Limit, err = queryIntDefault(r, "limit", storage.DefaultQueryLimit, 1); err != nil {
		return f, err
	}
	if f.Offset, err = queryIntDefault(r, "offset", 0, 0); err != nil {
		return f, err
	}
	return f, nil
}

func (s *Server) handleSensorData(w http.ResponseWriter, r *http.Request) {
	f, err := readingFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	readings, err := s.deps.Store.QueryReadings(f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	total, err := s.deps.Store.ReadingCount(f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]readingView, 0, len(readings))
	for _, reading := range readings {
		views = append(views, viewReading(reading))
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(views),
		"total":    total,
		"limit":    f.Limit,
		"offset":   f.Offset,
		"readings": views,
	})
}

// handleExport streams every matching reading as CSV
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	f, err := readingFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	filename := "sensor_data.csv"
	if f.DeviceID != nil {
		filename = fmt.Sprintf("sensor_data_%d.csv", *f.DeviceID)
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	rows, err := s.deps.Store.ExportCSV(w, f)
	if err != nil {
		// Headers are gone; all that is left is to log
		s.log.LogError("CSV export failed after %d rows: %v", rows, err)
		return
	}
	s.log.LogDebug("📤 Exported %d readings", rows)
}

func (s *Server) handleDownsampled(w http.ResponseWriter, r *http.Request) {
	deviceID, err := queryUint64(r, "device_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if deviceID == nil {
		s.writeError(w, r, errRequiredQuery("device_id"))
		return
	}
	start, end, err := s.timeWindow(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	maxPoints, err := queryIntDefault(r, "max_points", defaultMaxPoints, 1)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	points, err := s.deps.Store.QueryDownsampled(*deviceID, start, end, maxPoints)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if points == nil {
		points = []storage.DownsampledPoint{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"device_id":  *deviceID,
		"start":      start,
		"end":        end,
		"max_points": maxPoints,
		"count":      len(points),
		"points":     points,
	})
}

func (s *Server) handleStoredNodes(w http.ResponseWriter, r *http.Request) {
	records, err := s.deps.Store.ListNodeRecords()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []models.NodeRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(records),
		"nodes": records,
	})
}

func (s *Server) handleLatestReading(w http.ResponseWriter, r *http.Request) {
	deviceID, err := pathDeviceID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	reading, err := s.deps.Store.LatestReading(deviceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewReading(reading))
}

func (s *Server) handleNodeStats(w http.ResponseWriter, r *http.Request) {
	deviceID, err := pathDeviceID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	start, err := queryInt64(r, "start")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	end, err := queryInt64(r, "end")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := s.deps.Store.Statistics(deviceID, start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// handleBackup streams a consistent copy of the database file
func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	filename := fmt.Sprintf("bramble-%s.db", s.now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	n, err := s.deps.Store.WriteBackup(w)
	if err != nil {
		s.log.LogError("Backup failed after %d bytes: %v", n, err)
		return
	}
	s.log.LogInfo("💾 Backup of %d bytes sent to %s", n, r.RemoteAddr)
}
