// Package httptransport composes the HTTP surface: the base middleware
// chain, health and metrics endpoints, and every area handler.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tidemark/internal/pii"
	"tidemark/internal/platform/middleware"
	"tidemark/internal/transport/http/shared"
)

const requestTimeout = 30 * time.Second

// Registrar is implemented by every area handler.
type Registrar interface {
	Register(r chi.Router)
}

// Config assembles the router. RedactionObserver may be nil.
type Config struct {
	Logger            *slog.Logger
	RedactInbound     bool
	RedactionObserver pii.RedactionObserver
	Ingest            Registrar
	AdminRegistrars   []Registrar
	Health            func() error
}

// NewRouter wires the full HTTP surface.
//
// The ingest path gets no inbound redaction middleware: a PII-bearing
// delivery must reach the admission pipeline intact so it lands in
// quarantine (redacted there), rather than being silently cleansed and
// admitted as if it had been well-formed. Admin routes get the advisory
// redaction layer because their payloads are operator input, not evidence.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Metadata)

	r.Get("/healthz", handleHealth(cfg.Health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if cfg.Ingest != nil {
		cfg.Ingest.Register(r)
	}

	r.Group(func(admin chi.Router) {
		if cfg.RedactInbound {
			admin.Use(pii.RedactInbound(cfg.Logger, cfg.RedactionObserver))
		}
		for _, registrar := range cfg.AdminRegistrars {
			registrar.Register(admin)
		}
	})

	return r
}

func handleHealth(check func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(); err != nil {
				shared.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
