package pii

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"tidemark/pkg/requestcontext"
)

// RedactionObserver counts redaction events; satisfied by the ingest metrics.
type RedactionObserver interface {
	ObserveRedactions(n int)
}

// RedactInbound is the best-effort runtime redaction layer. It rewrites JSON
// bodies of write-method requests, replacing PII values with the Marker, and
// lets the request proceed. It never blocks: the storage guardrail is the
// authoritative control, this layer only shrinks the PII surface before
// business logic runs.
//
// Unparseable bodies pass through untouched; the admission pipeline
// quarantines them as malformed.
func RedactInbound(logger *slog.Logger, observer RedactionObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isWriteMethod(r.Method) || !isJSON(r.Header.Get("Content-Type")) || r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			_ = r.Body.Close()
			if err != nil {
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}

			replacement := body
			if len(bytes.TrimSpace(body)) > 0 {
				var doc any
				if err := json.Unmarshal(body, &doc); err == nil {
					redacted, paths := Redact(doc)
					if len(paths) > 0 {
						if encoded, err := json.Marshal(redacted); err == nil {
							replacement = encoded
							logger.InfoContext(r.Context(), "pii redacted from request",
								"request_id", requestcontext.RequestID(r.Context()),
								"path", r.URL.Path,
								"redacted_paths", paths,
								"redaction_count", len(paths),
							)
							if observer != nil {
								observer.ObserveRedactions(len(paths))
							}
						}
					}
				}
			}

			r.Body = io.NopCloser(bytes.NewReader(replacement))
			r.ContentLength = int64(len(replacement))
			next.ServeHTTP(w, r)
		})
	}
}

func isWriteMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func isJSON(contentType string) bool {
	return strings.Contains(contentType, "application/json")
}
