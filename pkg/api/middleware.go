package api

import (
	"context"
	"net/http"

	"github.com/cuemby/warren/pkg/auth"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/gorilla/mux"
)

type contextKey string

const userContextKey contextKey = "user"

// userFromContext returns the authenticated tenancy key set by
// authMiddleware.
func userFromContext(r *http.Request) string {
	if u, ok := r.Context().Value(userContextKey).(string); ok {
		return u
	}
	return auth.AnonymousUser
}

// authMiddleware verifies the bearer credential and stashes the sanitized
// identity in the request context for every handler downstream.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.verifier.Verify(r.Header.Get("Authorization"))
		if err != nil {
			unauthorized(w, "invalid or missing credential")
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs one line per request at debug level, matching the
// rest of the service's structured-logging convention.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("request received")
		next.ServeHTTP(w, r)
	})
}

// recoverMiddleware turns a panic in any handler into a 500 response
// instead of tearing down the server, since the HTTP surface must never
// take other in-flight requests down with it.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panicked")
				internalError(w, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code written by the wrapped handler
// so metricsMiddleware can label the request after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware records request counts and latency labeled by the
// route's path template (not the raw path, so per-job ids don't explode
// the label cardinality).
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		metrics.APIRequestsTotal.WithLabelValues(r.Method, path, http.StatusText(rec.status)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method, path)
	})
}
