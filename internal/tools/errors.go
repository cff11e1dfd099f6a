package tools

import (
	"errors"
	"fmt"

	"github.com/xaenox/frontdesk/internal/calendar"
)

// Kind classifies a tool failure by how the caller should react to it.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotConnected Kind = "integration_not_connected"
	KindTransient    Kind = "transient"
	KindUnknown      Kind = "unknown"
)

// Error is returned by every tool operation. Message is safe to show to the user;
// Err holds the underlying cause for logs.
type Error struct {
	Kind    Kind
	Op      Operation
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or KindUnknown when err is not a tool error.
func KindOf(err error) Kind {
	var terr *Error
	if errors.As(err, &terr) {
		return terr.Kind
	}
	return KindUnknown
}

func validationError(op Operation, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: msg}
}

// mapError converts a calendar failure into a tool error.
func mapError(op Operation, err error) *Error {
	switch {
	case errors.Is(err, calendar.ErrNotConnected):
		return &Error{
			Kind:    KindNotConnected,
			Op:      op,
			Message: "Your Google Calendar isn't connected. Please connect it and try again.",
			Err:     err,
		}
	case errors.Is(err, calendar.ErrEventNotFound):
		return &Error{
			Kind:    KindValidation,
			Op:      op,
			Message: "I couldn't find that event on your calendar.",
			Err:     err,
		}
	case errors.Is(err, calendar.ErrTransient):
		return &Error{
			Kind:    KindTransient,
			Op:      op,
			Message: "The calendar is not responding right now, please try again.",
			Err:     err,
		}
	default:
		return &Error{
			Kind:    KindUnknown,
			Op:      op,
			Message: "Something went wrong with the calendar.",
			Err:     err,
		}
	}
}
