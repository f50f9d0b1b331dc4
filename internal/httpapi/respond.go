package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"library/internal/models"
)

// envelope is the body of every JSON response
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
}

// nullEnvelope always carries data, rendered as null
type nullEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// fieldError is the error body of a validation failure
type fieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// failure holds the per-operation messages for each error class
type failure struct {
	notFound   string
	conflict   string
	validation string
	fallback   string
}

// statusFor maps an error class to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeData(w http.ResponseWriter, status int, message string, data any) {
	if data == nil {
		s.writeJSON(w, status, nullEnvelope{Success: true, Message: message})
		return
	}
	s.writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

// writeBadRequest rejects a request that could not be decoded
func (s *Server) writeBadRequest(w http.ResponseWriter, message string, err error) {
	s.writeJSON(w, http.StatusBadRequest, envelope{
		Success: false,
		Message: message,
		Error:   fieldError{Message: err.Error()},
	})
}

// writeError picks the status and message for err. Internal errors are logged
// and their details are not sent to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, f failure) {
	status := statusFor(err)
	message := f.fallback
	var body any = err.Error()

	switch status {
	case http.StatusBadRequest:
		if f.validation != "" {
			message = f.validation
		}
		var vErr *models.ValidationError
		if errors.As(err, &vErr) {
			body = fieldError{Field: vErr.Field, Message: vErr.Message}
		}
	case http.StatusNotFound:
		if f.notFound != "" {
			message = f.notFound
		}
	case http.StatusConflict:
		if f.conflict != "" {
			message = f.conflict
		}
	default:
		s.logger.Error("Request failed",
			zap.Error(err),
			zap.Bool("invariant_violation", errors.Is(err, models.ErrInvariantViolation)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		body = "Something went wrong"
	}

	s.writeJSON(w, status, envelope{Success: false, Message: message, Error: body})
}
