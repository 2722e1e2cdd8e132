package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// StatsProvider is implemented by *Server.
type StatsProvider interface {
	Stats() Stats
}

// NewAdminRouter serves health, stats and Prometheus metrics over HTTP.
func NewAdminRouter(stats StatsProvider, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(logger.With().Str("component", "admin").Logger()))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, stats.Stats())
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// accessLog records each admin request under its chi route pattern so
// /stats and /metrics polls group cleanly. Scrapes log at debug, client
// errors at warn and server errors at error.
func accessLog(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			var ev *zerolog.Event
			switch {
			case status >= http.StatusInternalServerError:
				ev = logger.Error()
			case status >= http.StatusBadRequest:
				ev = logger.Warn()
			case route == "/metrics":
				ev = logger.Debug()
			default:
				ev = logger.Info()
			}
			ev.Str("route", route).
				Str("method", r.Method).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("admin request")
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
