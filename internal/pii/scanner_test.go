package pii

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var doc any
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return doc
}

func TestScanFindsTopLevelKeys(t *testing.T) {
	doc := decode(t, `{"email":"a@example.com","order_id":"o-1"}`)

	matches := Scan(doc)
	require.Len(t, matches, 1)
	assert.Equal(t, "email", matches[0].Key)
	assert.Equal(t, "email", matches[0].Path)
	assert.False(t, matches[0].Redacted)
}

func TestScanFindsDeeplyNestedKeys(t *testing.T) {
	doc := decode(t, `{
		"data": {
			"object": {
				"billing_details": {
					"email": "buyer@example.com"
				}
			}
		}
	}`)

	m, found := FirstUnredacted(doc)
	require.True(t, found)
	assert.Equal(t, "email", m.Key)
	assert.Equal(t, "data.object.billing_details.email", m.Path)
}

func TestScanWalksArraysInsideObjects(t *testing.T) {
	doc := decode(t, `{
		"line_items": [
			{"sku": "a"},
			{"recipient": {"customer_phone": "555-0100"}}
		]
	}`)

	matches := Scan(doc)
	require.Len(t, matches, 1)
	assert.Equal(t, "customer_phone", matches[0].Key)
	assert.Equal(t, "line_items[1].recipient.customer_phone", matches[0].Path)
}

func TestScanIsCaseInsensitiveOnKeys(t *testing.T) {
	doc := decode(t, `{"Email":"a@example.com"}`)

	_, found := FirstUnredacted(doc)
	assert.True(t, found)
}

func TestScanIgnoresNonPIIKeys(t *testing.T) {
	doc := decode(t, `{"order_id":"o-1","amount":12.5,"currency":"USD","nested":{"emailish_field":"x"}}`)

	assert.Empty(t, Scan(doc))
	assert.NoError(t, Inspect(doc))
}

func TestRedactReplacesValuesAndReportsPaths(t *testing.T) {
	doc := decode(t, `{
		"email": "a@example.com",
		"customer": {"first_name": "Ada", "plan": "pro"},
		"items": [{"shipping_address": "1 Main St"}]
	}`)

	redacted, paths := Redact(doc)
	assert.ElementsMatch(t, []string{"email", "customer.first_name", "items[0].shipping_address"}, paths)

	m := redacted.(map[string]any)
	assert.Equal(t, Marker, m["email"])
	assert.Equal(t, Marker, m["customer"].(map[string]any)["first_name"])
	assert.Equal(t, "pro", m["customer"].(map[string]any)["plan"])
	assert.Equal(t, Marker, m["items"].([]any)[0].(map[string]any)["shipping_address"])

	// Input untouched.
	assert.Equal(t, "a@example.com", doc.(map[string]any)["email"])
}

func TestRedactedValuesPassTheGuardrail(t *testing.T) {
	doc := decode(t, `{"email":"a@example.com","data":{"phone":"555-0100"}}`)

	redacted, _ := Redact(doc)
	assert.NoError(t, Inspect(redacted))

	matches := Scan(redacted)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.True(t, m.Redacted)
	}
}

func TestInspectNamesFirstKeyDeterministically(t *testing.T) {
	doc := decode(t, `{"zz_wrap":{"phone":"555"},"aa_wrap":{"email":"a@b.c"}}`)

	err := Inspect(doc)
	require.Error(t, err)
	var pErr *Error
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "email", pErr.Key)
	assert.Equal(t, "aa_wrap.email", pErr.Path)
}

func TestInspectHandlesScalarsAndNull(t *testing.T) {
	assert.NoError(t, Inspect(nil))
	assert.NoError(t, Inspect("just a string"))
	assert.NoError(t, Inspect(decode(t, `[1,2,3]`)))
}
