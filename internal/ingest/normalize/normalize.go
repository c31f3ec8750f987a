// Package normalize converts heterogeneous vendor payloads into the one
// canonical internal event shape the admission pipeline operates on.
//
// Each known source gets its own extractor; unknown or extra fields are
// preserved opaquely in the payload and remain subject to the PII scan,
// which operates structurally rather than by known schema.
package normalize

import (
	"fmt"
	"time"

	"tidemark/internal/ingest/models"
)

// Normalized is the canonical internal event shape before admission.
type Normalized struct {
	EventType      string
	EventTimestamp time.Time
	// SessionRef is the identifying session or transaction reference the
	// vendor supplied. Required for admission.
	SessionRef string
	// ExternalID is the vendor's own event/delivery identifier, when present.
	ExternalID string
	// SuppliedKey is a caller-provided idempotency key, when present.
	SuppliedKey string
	Hints       Hints
	// Payload is the decoded document as received (vendor fields preserved).
	Payload map[string]any
}

// Hints feeds the channel normalization lookup.
type Hints struct {
	Vendor    string
	UTMSource string
	UTMMedium string
}

// Event builds the canonical event per source. It is lenient: missing fields
// come back zero-valued and the admission pipeline decides whether the
// result is admissible. A payload that is not a JSON object at all, or a
// source outside the closed set, is a malformed-payload error.
func Event(source models.Source, doc any) (*Normalized, error) {
	payload, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("payload is not a JSON object")
	}

	switch source {
	case models.SourceShopify:
		return fromShopify(payload), nil
	case models.SourceStripe:
		return fromStripe(payload), nil
	case models.SourceWooCommerce:
		return fromWooCommerce(payload), nil
	case models.SourceWebhook:
		return fromGenericWebhook(payload), nil
	default:
		return nil, fmt.Errorf("unknown source %q", source)
	}
}

func fromShopify(payload map[string]any) *Normalized {
	n := &Normalized{
		EventType:   str(payload, "topic"),
		SessionRef:  firstStr(payload, "checkout_token", "cart_token", "session_id"),
		ExternalID:  str(payload, "id"),
		SuppliedKey: str(payload, "idempotency_key"),
		Payload:     payload,
		Hints: Hints{
			Vendor:    "shopify",
			UTMSource: nestedStr(payload, "note_attributes", "utm_source"),
			UTMMedium: nestedStr(payload, "note_attributes", "utm_medium"),
		},
	}
	if n.EventType == "" {
		n.EventType = "order_created"
	}
	n.EventTimestamp = timestamp(payload, "created_at")
	return n
}

func fromStripe(payload map[string]any) *Normalized {
	n := &Normalized{
		EventType:   str(payload, "type"),
		ExternalID:  str(payload, "id"),
		SuppliedKey: str(payload, "idempotency_key"),
		Payload:     payload,
		Hints:       Hints{Vendor: "stripe"},
	}
	if created, ok := payload["created"].(float64); ok {
		n.EventTimestamp = time.Unix(int64(created), 0).UTC()
	}
	if data, ok := payload["data"].(map[string]any); ok {
		if object, ok := data["object"].(map[string]any); ok {
			n.SessionRef = firstStr(object, "payment_intent", "checkout_session", "id")
			if meta, ok := object["metadata"].(map[string]any); ok {
				n.Hints.UTMSource = str(meta, "utm_source")
				n.Hints.UTMMedium = str(meta, "utm_medium")
			}
		}
	}
	return n
}

func fromWooCommerce(payload map[string]any) *Normalized {
	n := &Normalized{
		EventType:   str(payload, "event"),
		SessionRef:  firstStr(payload, "order_key", "cart_hash"),
		ExternalID:  str(payload, "id"),
		SuppliedKey: str(payload, "idempotency_key"),
		Payload:     payload,
		Hints: Hints{
			Vendor:    "woocommerce",
			UTMSource: nestedStr(payload, "meta_data", "utm_source"),
			UTMMedium: nestedStr(payload, "meta_data", "utm_medium"),
		},
	}
	if n.EventType == "" {
		n.EventType = "order_updated"
	}
	n.EventTimestamp = timestamp(payload, "date_created")
	return n
}

func fromGenericWebhook(payload map[string]any) *Normalized {
	return &Normalized{
		EventType:      str(payload, "event_type"),
		EventTimestamp: timestamp(payload, "event_timestamp"),
		SessionRef:     firstStr(payload, "session_id", "transaction_id"),
		ExternalID:     str(payload, "external_event_id"),
		SuppliedKey:    str(payload, "idempotency_key"),
		Payload:        payload,
		Hints: Hints{
			Vendor:    str(payload, "vendor"),
			UTMSource: str(payload, "utm_source"),
			UTMMedium: str(payload, "utm_medium"),
		},
	}
}

func str(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		// Vendor numeric IDs arrive as JSON numbers.
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}

func firstStr(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v := str(m, key); v != "" {
			return v
		}
	}
	return ""
}

// nestedStr finds key either in a nested object or in a WooCommerce/Shopify
// style list of {key,value} pairs under container.
func nestedStr(m map[string]any, container, key string) string {
	switch c := m[container].(type) {
	case map[string]any:
		return str(c, key)
	case []any:
		for _, item := range c {
			pair, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if str(pair, "key") == key || str(pair, "name") == key {
				return firstStr(pair, "value")
			}
		}
	}
	return ""
}

func timestamp(m map[string]any, key string) time.Time {
	raw, ok := m[key].(string)
	if !ok || raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
