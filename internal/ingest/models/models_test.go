package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemediationStatus_Transitions(t *testing.T) {
	cases := []struct {
		from    RemediationStatus
		to      RemediationStatus
		allowed bool
	}{
		{RemediationPending, RemediationInProgress, true},
		{RemediationPending, RemediationResolved, true},
		{RemediationPending, RemediationAbandoned, true},
		{RemediationInProgress, RemediationResolved, true},
		{RemediationInProgress, RemediationAbandoned, true},
		{RemediationInProgress, RemediationPending, false},
		{RemediationResolved, RemediationInProgress, false},
		{RemediationResolved, RemediationPending, false},
		{RemediationAbandoned, RemediationResolved, false},
		{RemediationPending, RemediationPending, false},
		{RemediationResolved, RemediationResolved, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestRemediationStatus_Terminal(t *testing.T) {
	assert.False(t, RemediationPending.Terminal())
	assert.False(t, RemediationInProgress.Terminal())
	assert.True(t, RemediationResolved.Terminal())
	assert.True(t, RemediationAbandoned.Terminal())
}

func TestKnownSource(t *testing.T) {
	for _, src := range []Source{SourceShopify, SourceStripe, SourceWooCommerce, SourceWebhook} {
		assert.True(t, KnownSource(src))
	}
	assert.False(t, KnownSource(Source("fax")))
	assert.False(t, KnownSource(Source("")))
}
