package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTenantID(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseTenantID("")
		require.Error(t, err)
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseTenantID("not-a-uuid")
		require.Error(t, err)
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		u := uuid.New()
		id, err := ParseTenantID(u.String())
		require.NoError(t, err)
		assert.Equal(t, TenantID(u), id)
	})
}

// TestTypeDistinction verifies the typed IDs stay distinct types.
// If this compiles, the invariant holds: an EventID cannot be passed where
// a TenantID is expected.
func TestTypeDistinction(t *testing.T) {
	eventID := EventID(uuid.New())
	tenantID := TenantID(uuid.New())

	// These would fail to compile if the types were interchangeable:
	// var _ EventID = tenantID
	// var _ TenantID = eventID

	assert.NotEqual(t, uuid.UUID(eventID), uuid.UUID(tenantID))
}

func TestIsNil(t *testing.T) {
	assert.True(t, TenantID{}.IsNil())
	assert.True(t, EventID{}.IsNil())
	assert.True(t, DeadEventID{}.IsNil())

	assert.False(t, NewTenantID().IsNil())
	assert.False(t, NewEventID().IsNil())
	assert.False(t, NewDeadEventID().IsNil())
	assert.False(t, NewAllocationID().IsNil())
	assert.False(t, NewSessionID().IsNil())
	assert.False(t, NewTransitionID().IsNil())
	assert.False(t, NewCorrectionID().IsNil())
}

// TestAllIDTypes_ConsistentParsing ensures every parseable ID type behaves
// identically at the trust boundary.
func TestAllIDTypes_ConsistentParsing(t *testing.T) {
	valid := uuid.New().String()

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errTenant := ParseTenantID(valid)
		_, errEvent := ParseEventID(valid)
		_, errDead := ParseDeadEventID(valid)
		_, errAllocation := ParseAllocationID(valid)
		_, errSession := ParseSessionID(valid)

		require.NoError(t, errTenant)
		require.NoError(t, errEvent)
		require.NoError(t, errDead)
		require.NoError(t, errAllocation)
		require.NoError(t, errSession)
	})

	for _, input := range []string{"", "invalid", "550e8400"} {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errTenant := ParseTenantID(input)
			_, errEvent := ParseEventID(input)
			_, errDead := ParseDeadEventID(input)
			_, errAllocation := ParseAllocationID(input)
			_, errSession := ParseSessionID(input)

			require.Error(t, errTenant)
			require.Error(t, errEvent)
			require.Error(t, errDead)
			require.Error(t, errAllocation)
			require.Error(t, errSession)
		})
	}
}
