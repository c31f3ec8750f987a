// Package domain holds strongly typed identifiers shared across the service.
//
// Wrapping uuid.UUID in distinct named types prevents accidental cross-use
// (passing an EventID where a TenantID is expected fails at compile time).
package domain

import "github.com/google/uuid"

type (
	// TenantID identifies a tenant organization.
	TenantID uuid.UUID
	// EventID identifies a canonical attribution event.
	EventID uuid.UUID
	// DeadEventID identifies a quarantined (dead-letter) event.
	DeadEventID uuid.UUID
	// AllocationID identifies an attribution allocation record.
	AllocationID uuid.UUID
	// SessionID identifies the visitor session an event belongs to.
	SessionID uuid.UUID
	// TransitionID identifies a taxonomy state transition audit row.
	TransitionID uuid.UUID
	// CorrectionID identifies a channel assignment correction audit row.
	CorrectionID uuid.UUID
)

func (id TenantID) String() string     { return uuid.UUID(id).String() }
func (id EventID) String() string      { return uuid.UUID(id).String() }
func (id DeadEventID) String() string  { return uuid.UUID(id).String() }
func (id AllocationID) String() string { return uuid.UUID(id).String() }
func (id SessionID) String() string    { return uuid.UUID(id).String() }
func (id TransitionID) String() string { return uuid.UUID(id).String() }
func (id CorrectionID) String() string { return uuid.UUID(id).String() }

func (id TenantID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id DeadEventID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id AllocationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id TransitionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id CorrectionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// NewTenantID returns a freshly generated tenant identifier.
func NewTenantID() TenantID { return TenantID(uuid.New()) }

// NewEventID returns a freshly generated event identifier.
func NewEventID() EventID { return EventID(uuid.New()) }

// NewDeadEventID returns a freshly generated dead-letter identifier.
func NewDeadEventID() DeadEventID { return DeadEventID(uuid.New()) }

// NewAllocationID returns a freshly generated allocation identifier.
func NewAllocationID() AllocationID { return AllocationID(uuid.New()) }

// NewSessionID returns a freshly generated session identifier.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// NewTransitionID returns a freshly generated transition audit identifier.
func NewTransitionID() TransitionID { return TransitionID(uuid.New()) }

// NewCorrectionID returns a freshly generated correction audit identifier.
func NewCorrectionID() CorrectionID { return CorrectionID(uuid.New()) }

// ParseTenantID parses a string form tenant ID.
func ParseTenantID(s string) (TenantID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return TenantID{}, err
	}
	return TenantID(u), nil
}

// ParseEventID parses a string form event ID.
func ParseEventID(s string) (EventID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return EventID{}, err
	}
	return EventID(u), nil
}

// ParseDeadEventID parses a string form dead-letter ID.
func ParseDeadEventID(s string) (DeadEventID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return DeadEventID{}, err
	}
	return DeadEventID(u), nil
}

// ParseAllocationID parses a string form allocation ID.
func ParseAllocationID(s string) (AllocationID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return AllocationID{}, err
	}
	return AllocationID(u), nil
}

// ParseSessionID parses a string form session ID.
func ParseSessionID(s string) (SessionID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return SessionID{}, err
	}
	return SessionID(u), nil
}
