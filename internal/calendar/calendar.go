// Package calendar is the boundary to the user's calendar provider.
package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/xaenox/frontdesk/internal/models"
)

var (
	// ErrNotConnected means the user has no usable calendar credential.
	ErrNotConnected = errors.New("calendar: integration not connected")
	// ErrTransient marks provider failures worth one retry.
	ErrTransient = errors.New("calendar: temporary provider failure")
	// ErrEventNotFound means the referenced event does not exist.
	ErrEventNotFound = errors.New("calendar: event not found")
)

// PrimaryCalendar is the calendar every operation targets.
const PrimaryCalendar = "primary"

// BusyWindow is an interval the calendar reports as taken.
type BusyWindow struct {
	Start time.Time
	End   time.Time
}

// Event is the provider's view of a meeting.
type Event struct {
	ID        string
	Summary   string
	Start     time.Time
	End       time.Time
	JoinLink  string
	HTMLLink  string
	Status    string
	Attendees []string
}

// Ref converts the event into the reference kept in a scheduling session.
func (e Event) Ref() *models.EventRef {
	return &models.EventRef{
		ID:       e.ID,
		Summary:  e.Summary,
		Start:    e.Start,
		End:      e.End,
		JoinLink: e.JoinLink,
	}
}

// NewEvent is the input of CreateEvent.
type NewEvent struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Timezone    string
	Attendees   []models.Attendee
	Conference  bool
}

// Calendar is keyed by user id; implementations resolve the credential.
type Calendar interface {
	FreeBusy(ctx context.Context, userID string, start, end time.Time, timezone string) ([]BusyWindow, error)
	CreateEvent(ctx context.Context, userID string, ev NewEvent) (Event, error)
	GetEvent(ctx context.Context, userID, eventID string) (Event, error)
	UpdateEvent(ctx context.Context, userID, eventID string, start, end time.Time, timezone string) (Event, error)
	CancelEvent(ctx context.Context, userID, eventID, reason string) error
	ListEvents(ctx context.Context, userID string, start, end time.Time) ([]Event, error)
}

// FreeWindows returns up to limit free slots of the given length between from
// and to, stepping on slot boundaries.
func FreeWindows(busy []BusyWindow, from, to time.Time, length time.Duration, limit int) []BusyWindow {
	var out []BusyWindow
	for start := from; !start.Add(length).After(to); start = start.Add(length) {
		end := start.Add(length)
		if overlaps(busy, start, end) {
			continue
		}
		out = append(out, BusyWindow{Start: start, End: end})
		if len(out) == limit {
			break
		}
	}
	return out
}

// IsFree reports whether [start, end) does not overlap any busy window.
func IsFree(busy []BusyWindow, start, end time.Time) bool {
	return !overlaps(busy, start, end)
}

func overlaps(busy []BusyWindow, start, end time.Time) bool {
	for _, b := range busy {
		if b.Start.Before(end) && start.Before(b.End) {
			return true
		}
	}
	return false
}
