package normalize

import "strings"

// FallbackChannel is the guaranteed non-empty channel code for anything the
// mapping does not cover.
const FallbackChannel = "unknown"

// vendor + utm hints → canonical taxonomy code. The mapping is the pure
// lookup collaborator of the admission pipeline; business rules for new
// vendors land here without touching admission logic.
var channelMapping = map[string]string{
	"facebook|cpc":     "facebook_paid",
	"facebook|paid":    "facebook_paid",
	"facebook|social":  "facebook_brand",
	"instagram|cpc":    "facebook_paid",
	"google|cpc":       "google_search_paid",
	"google|display":   "google_display_paid",
	"tiktok|cpc":       "tiktok_paid",
	"tiktok|paid":      "tiktok_paid",
	"email|email":      "email",
	"newsletter|email": "email",
	"google|organic":   "organic",
	"bing|organic":     "organic",
	"|referral":        "referral",
	"|direct":          "direct",
	"|":                "direct",
}

// Channel maps vendor hints to a canonical channel code. It always returns
// a valid code; FallbackChannel covers every unmapped combination.
func Channel(hints Hints) string {
	source := strings.ToLower(strings.TrimSpace(hints.UTMSource))
	medium := strings.ToLower(strings.TrimSpace(hints.UTMMedium))
	if code, ok := channelMapping[source+"|"+medium]; ok {
		return code
	}
	if code, ok := channelMapping["|"+medium]; ok {
		return code
	}
	return FallbackChannel
}
