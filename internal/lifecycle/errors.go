package lifecycle

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrTransient         = errors.New("transient error")
	ErrValidation        = errors.New("validation error")
)

// Reasons shown to the user when an action is rejected.
const (
	ReasonRoomClosed       = "room is closed"
	ReasonReopenPending    = "room is waiting for a reopen to be accepted"
	ReasonRoomActive       = "room is already active"
	ReasonNotClosed        = "room is not closed"
	ReasonNoPendingReopen  = "no reopen request is pending"
	ReasonOwnReopenRequest = "cannot accept your own reopen request"
	ReasonReopenOwnClose   = "cannot request to reopen a room you closed"
	ReasonNotParticipant   = "not a participant of this room"
	ReasonEmptyBody        = "message body is required"
	ReasonSameParticipants = "participants must be different users"
	ReasonUnknownKind      = "unknown message kind"
	ReasonNoParticipants   = "both participants are required"
)

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, reason)
}

func unauthorized() error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, ReasonNotParticipant)
}

func validation(reason string) error {
	return fmt.Errorf("%w: %s", ErrValidation, reason)
}

// Reason strips the taxonomy prefix from err, leaving the user-facing text.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var te interface{ Unwrap() error }
	msg := err.Error()
	if errors.As(err, &te) {
		if inner := te.Unwrap(); inner != nil {
			prefix := inner.Error() + ": "
			if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
				return msg[len(prefix):]
			}
		}
	}
	return msg
}

// IsRetryable reports whether the caller may retry the same action.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrConflict)
}
