package orders

import "errors"

// ErrInvalidStatusTransition is returned for any transition request outside
// the table below. The order is left unmodified.
var ErrInvalidStatusTransition = errors.New("invalid status transition")

// transitions is the single source of truth for valid status moves.
// canceled and fulfilled are terminal.
var transitions = map[Status][]Status{
	StatusPending:     {StatusConfirmed, StatusUnconfirmed, StatusCanceled},
	StatusConfirmed:   {StatusFulfilled},
	StatusUnconfirmed: {StatusCanceled},
	StatusCanceled:    {},
	StatusFulfilled:   {},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status admits no further transitions.
func Terminal(s Status) bool {
	return len(transitions[s]) == 0
}
