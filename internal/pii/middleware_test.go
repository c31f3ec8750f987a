package pii

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidemark/internal/platform/logger"
)

type countingObserver struct{ n int }

func (c *countingObserver) ObserveRedactions(n int) { c.n += n }

func runThroughMiddleware(t *testing.T, method, contentType, body string) (string, *countingObserver) {
	t.Helper()

	observer := &countingObserver{}
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		seen = string(b)
		w.WriteHeader(http.StatusOK)
	})

	handler := RedactInbound(logger.NewNop(), observer)(inner)
	req := httptest.NewRequest(method, "/admin/channels", strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return seen, observer
}

func TestRedactInboundRewritesPIIValues(t *testing.T) {
	body := `{"display_name":"Email","contact":{"email":"ops@example.com"}}`
	seen, observer := runThroughMiddleware(t, http.MethodPost, "application/json", body)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(seen), &doc))
	assert.Equal(t, Marker, doc["contact"].(map[string]any)["email"])
	assert.Equal(t, "Email", doc["display_name"])
	assert.Equal(t, 1, observer.n)
}

func TestRedactInboundLeavesCleanPayloadsAlone(t *testing.T) {
	body := `{"display_name":"Direct","family":"organic"}`
	seen, observer := runThroughMiddleware(t, http.MethodPost, "application/json", body)

	assert.JSONEq(t, body, seen)
	assert.Equal(t, 0, observer.n)
}

func TestRedactInboundSkipsReadsAndNonJSON(t *testing.T) {
	seen, observer := runThroughMiddleware(t, http.MethodPost, "text/plain", `email=a@example.com`)
	assert.Equal(t, `email=a@example.com`, seen)
	assert.Equal(t, 0, observer.n)
}

func TestRedactInboundPassesMalformedJSONThrough(t *testing.T) {
	body := `{"email": not-json`
	seen, observer := runThroughMiddleware(t, http.MethodPost, "application/json", body)

	// Malformed bodies proceed untouched; the admission pipeline quarantines them.
	assert.Equal(t, body, seen)
	assert.Equal(t, 0, observer.n)
}
