package server

import (
	"encoding/json"
	"net/http"

	"voice-broker-go/internal/faults"

	"go.uber.org/zap"
)

type errorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusFor(kind faults.Kind) int {
	switch kind {
	case faults.Validation:
		return http.StatusBadRequest
	case faults.NotFound:
		return http.StatusNotFound
	case faults.InsufficientResource:
		return http.StatusUnprocessableEntity
	case faults.Upstream:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeError maps a classified error to a status code. Internal details are not echoed.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := faults.KindOf(err)
	message := err.Error()
	if kind == faults.Internal {
		s.logger.Error("Request failed", zap.Error(err))
		message = "internal error"
	}
	s.writeJSON(w, statusFor(kind), errorResponse{Status: "error", Code: faults.CodeOf(err), Message: message})
}

func (s *Server) writeTwiML(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}
