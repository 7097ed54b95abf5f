// Package economy holds the shared pieces of the card economy: the error
// taxonomy reported back to users and the rarity value tables used by the
// merge, recycle and mission subsystems.
package economy

import (
	"errors"
	"fmt"
)

// The user-facing error taxonomy. Every engine failure wraps exactly one of
// these sentinels so command handlers can classify with errors.Is and render
// the message as-is; nothing is ever silently swallowed.
var (
	// ErrPrecondition marks a validation failure caught before any mutation
	// (insufficient credits or cards, wrong merge level, mismatched perk).
	ErrPrecondition = errors.New("precondition failed")

	// ErrStateConflict marks an operation invoked against the wrong trade or
	// mission state.
	ErrStateConflict = errors.New("state conflict")

	// ErrStaleReference marks a reference that went stale between read and
	// action (expired trade, instance recycled by another flow). Detected by
	// re-validation inside the settlement transaction; the whole operation
	// aborts with zero partial effect.
	ErrStaleReference = errors.New("stale reference")

	// ErrNotFound marks an unknown card, trade or mission.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable marks a collaborator failure (no deck assigned, store
	// transaction error). Surfaced to users as a generic apology.
	ErrUnavailable = errors.New("temporarily unavailable")
)

func Preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}

func StateConflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStateConflict, fmt.Sprintf(format, args...))
}

func StaleReferencef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStaleReference, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Unavailablef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}

// UserMessage strips the sentinel prefix for display, leaving the detail
// that names actual vs. required values.
func UserMessage(err error) string {
	for _, sentinel := range []error{ErrPrecondition, ErrStateConflict, ErrStaleReference, ErrNotFound, ErrUnavailable} {
		if errors.Is(err, sentinel) {
			msg := err.Error()
			prefix := sentinel.Error() + ": "
			if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
				return msg[len(prefix):]
			}
			return msg
		}
	}
	return "Something went wrong. Please try again later."
}
