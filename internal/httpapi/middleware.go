package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logRequests logs method, path, status and duration of every request
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		}
		if rec.status >= http.StatusInternalServerError {
			s.logger.Warn("Request completed", fields...)
			return
		}
		s.logger.Info("Request completed", fields...)
	})
}

// recoverPanics turns a handler panic into a 500 envelope
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				s.logger.Error("Handler panicked",
					zap.String("panic", fmt.Sprint(p)),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
				)
				s.writeJSON(w, http.StatusInternalServerError, envelope{
					Success: false,
					Message: "Something went wrong",
					Error:   "internal error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
