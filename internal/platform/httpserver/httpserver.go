package httpserver

import (
	"net/http"
	"time"
)

// New builds the ingest-facing HTTP server. Webhook senders hold
// connections open between delivery bursts, so idle connections are kept
// cheap but bounded; slow-header clients are cut off early to protect the
// admission path.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
