package store

import (
	"errors"
	"strings"
)

// ErrConstraintRace indicates a check-and-create transaction lost a race on
// one of the occupancy invariants. Engines treat it as skip-and-continue:
// the next pass reconsiders the pairing from fresh state.
var ErrConstraintRace = errors.New("constraint race lost")

// ErrInvalidTransition indicates a lifecycle update found the row in a
// status the transition does not apply to.
var ErrInvalidTransition = errors.New("invalid status transition")

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
