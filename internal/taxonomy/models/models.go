// Package models defines the channel taxonomy entry, its lifecycle state
// machine, and the append-only transition audit record.
package models

import (
	"regexp"
	"time"

	id "tidemark/pkg/domain"
	dErrors "tidemark/pkg/domain-errors"
)

// State is the lifecycle state of a channel definition.
type State string

const (
	StateDraft      State = "draft"
	StateActive     State = "active"
	StateDeprecated State = "deprecated"
	StateArchived   State = "archived"
)

// ValidState reports whether s is one of the four lifecycle states.
func ValidState(s State) bool {
	switch s {
	case StateDraft, StateActive, StateDeprecated, StateArchived:
		return true
	}
	return false
}

// allowedTransitions is the closed transition table. Archived is terminal:
// nothing leaves it, and deprecated channels cannot be reactivated.
var allowedTransitions = map[State][]State{
	StateDraft:      {StateActive},
	StateActive:     {StateDeprecated, StateArchived},
	StateDeprecated: {StateArchived},
	StateArchived:   {},
}

// CanTransitionTo reports whether from -> to is in the allowed set.
// A no-op (from == to) is not a transition and returns false; callers handle
// it separately because it succeeds without producing an audit row.
func (s State) CanTransitionTo(to State) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves this state.
func (s State) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

// SystemActor is recorded on audit rows produced through paths that carry no
// actor context. Mutations are never silently unattributed.
const SystemActor = "system"

var codePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Entry is a named canonical channel. Code is the immutable identity;
// retirement is a state change, never a row deletion.
type Entry struct {
	Code        string    `json:"code"`
	DisplayName string    `json:"display_name"`
	Family      string    `json:"family"`
	Paid        bool      `json:"paid"`
	State       State     `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewEntry validates and constructs a channel definition in draft state.
func NewEntry(code, displayName, family string, paid bool, now time.Time) (*Entry, error) {
	if code == "" || len(code) > 64 || !codePattern.MatchString(code) {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "invalid channel code %q", code)
	}
	if displayName == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "display name is required")
	}
	return &Entry{
		Code:        code,
		DisplayName: displayName,
		Family:      family,
		Paid:        paid,
		State:       StateDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Assignable reports whether events and corrections may target this channel.
func (e *Entry) Assignable() bool {
	return e.State == StateActive
}

// StateTransition is one append-only audit row per real state change.
// FromState is nil only for the row recording initial creation.
type StateTransition struct {
	ID          id.TransitionID `json:"id"`
	ChannelCode string          `json:"channel_code"`
	FromState   *State          `json:"from_state,omitempty"`
	ToState     State           `json:"to_state"`
	Actor       string          `json:"actor"`
	Reason      string          `json:"reason,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
