package api

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/erikbeerepoot/bramble/internal/errors"
)

const maxBodyBytes = 64 << 10

// errorResponse is the body of every non-2xx answer
type errorResponse struct {
	Error   string   `json:"error"`
	Field   string   `json:"field,omitempty"`
	Details []string `json:"details,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.LogDebug("Failed to encode response: %v", err)
	}
}

// writeError answers with the status errors.HTTPStatus assigns to err
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	body := errorResponse{Error: err.Error()}

	var validationErr *errors.ValidationError
	switch {
	case stderrors.As(err, &validationErr):
		body.Error = "Validation failed"
		body.Field = validationErr.Field
		if problems, ok := validationErr.Actual.([]string); ok {
			body.Details = problems
		} else {
			body.Details = []string{fmt.Sprintf("%s must be %v, got %v", validationErr.Field, validationErr.Expected, validationErr.Actual)}
		}
	case status == http.StatusGatewayTimeout:
		body.Error = "Hub did not respond"
	case stderrors.Is(err, errors.ErrCircuitOpen):
		body.Error = "Hub unavailable, retry later"
	case errors.IsNotConnected(err):
		body.Error = "Serial link not connected"
	case status == http.StatusInternalServerError:
		s.log.LogError("%s %s failed: %v", r.Method, r.URL.Path, err)
		body.Error = "Internal server error"
	}
	if status >= 500 && status != http.StatusInternalServerError {
		s.log.LogWarn("%s %s: %v", r.Method, r.URL.Path, err)
	}
	s.writeJSON(w, status, body)
}

// decodeJSON reads a JSON body into dst
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if stderrors.Is(err, io.EOF) {
			return errors.NewValidationError("body", "JSON object", "empty body")
		}
		return errors.NewValidationError("body", "JSON object", err.Error())
	}
	return nil
}

// required returns a ValidationError for the first nil field
func required(fields ...namedField) error {
	for _, f := range fields {
		if f.value == nil {
			return errors.NewValidationError(f.name, "required field", "missing")
		}
	}
	return nil
}

type namedField struct {
	name  string
	value *int
}

func field(name string, value *int) namedField {
	return namedField{name: name, value: value}
}

func muxVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

func pathAddress(r *http.Request) (uint16, error) {
	raw := muxVar(r, "addr")
	v, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, errors.NewValidationError("addr", "node address 0-65535", raw)
	}
	return uint16(v), nil
}

func pathDeviceID(r *http.Request) (uint64, error) {
	raw := muxVar(r, "device_id")
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.NewValidationError("device_id", "unsigned integer", raw)
	}
	return v, nil
}

func pathInt(r *http.Request, name string) (int, error) {
	raw := muxVar(r, name)
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewValidationError(name, "integer", raw)
	}
	return v, nil
}

// queryInt64 returns nil when the parameter is absent
func queryInt64(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.NewValidationError(name, "integer", raw)
	}
	return &v, nil
}

func queryUint64(r *http.Request, name string) (*uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, errors.NewValidationError(name, "unsigned integer", raw)
	}
	return &v, nil
}

func queryIntDefault(r *http.Request, name string, def, min int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min {
		return 0, errors.NewValidationError(name, fmt.Sprintf("integer >= %d", min), raw)
	}
	return v, nil
}

// timeWindow reads start/end, defaulting to the last day ending now
func (s *Server) timeWindow(r *http.Request) (int64, int64, error) {
	start, err := queryInt64(r, "start")
	if err != nil {
		return 0, 0, err
	}
	end, err := queryInt64(r, "end")
	if err != nil {
		return 0, 0, err
	}
	e := s.now().Unix()
	if end != nil {
		e = *end
	}
	st := e - int64((24 * time.Hour).Seconds())
	if start != nil {
		st = *start
	}
	if st > e {
		return 0, 0, errors.NewValidationError("start", "start <= end", st)
	}
	return st, e, nil
}
