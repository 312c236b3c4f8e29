package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hupe1980/chatreview/core"
)

type errorBody struct {
	Detail string `json:"detail"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch core.KindOf(err) {
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrInvalidArgument, core.ErrInvalidScore, core.ErrUnsupportedTool:
		return http.StatusBadRequest
	case core.ErrInvalidState:
		return http.StatusConflict
	case core.ErrTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.opts.Logger.Warn("api.request.failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Detail: detail(err)})
}

// detail strips the operation prefix so clients see the cause only.
func detail(err error) string {
	var ce *core.Error
	if errors.As(err, &ce) {
		if ce.Err != nil {
			return ce.Err.Error()
		}
		return ce.Kind.Error()
	}
	return err.Error()
}

// decode reads a JSON body into v. Unknown fields are rejected.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return core.E("api.decode", core.ErrInvalidArgument, err)
	}
	return nil
}
