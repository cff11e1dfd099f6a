package tools

import (
	"net/mail"
	"strings"
	"time"

	"github.com/xaenox/frontdesk/internal/models"
)

// MeetingDuration is the fixed length of every booked meeting.
const MeetingDuration = 60 * time.Minute

// Operation names a calendar tool.
type Operation string

const (
	OpAvailability Operation = "availability"
	OpBook         Operation = "book"
	OpReschedule   Operation = "reschedule"
	OpCancel       Operation = "cancel"
)

// Request is one of AvailabilityRequest, BookRequest, RescheduleRequest or
// CancelRequest.
type Request interface {
	Operation() Operation
	// Validate checks the arguments without calling the provider.
	Validate() error
	isRequest()
}

// Mutating reports whether the request changes the calendar.
func Mutating(r Request) bool {
	return r.Operation() != OpAvailability
}

// AvailabilityRequest asks about explicit candidate starts, or when Times is
// empty, about the business hours of Date.
type AvailabilityRequest struct {
	Times []string `json:"times,omitempty"`
	Date  string   `json:"date,omitempty"`
}

func (AvailabilityRequest) Operation() Operation { return OpAvailability }
func (AvailabilityRequest) isRequest()           {}

func (r AvailabilityRequest) Validate() error {
	if len(r.Times) == 0 && r.Date == "" {
		return validationError(OpAvailability, "Which day or time should I check?")
	}
	for _, ts := range r.Times {
		if _, err := parseTimestamp(ts); err != nil {
			return validationError(OpAvailability, "Times must be full ISO-8601 timestamps, like 2025-03-04T09:00:00-08:00.")
		}
	}
	if r.Date != "" {
		if _, err := time.ParseInLocation(time.DateOnly, r.Date, models.PT()); err != nil {
			return validationError(OpAvailability, "Dates must look like 2025-03-04.")
		}
	}
	return nil
}

type BookRequest struct {
	StartTime     string `json:"start_time"`
	GuestName     string `json:"guest_name"`
	GuestEmail    string `json:"guest_email"`
	ClientCompany string `json:"client_company,omitempty"`
	Agenda        string `json:"agenda,omitempty"`
}

func (BookRequest) Operation() Operation { return OpBook }
func (BookRequest) isRequest()           {}

func (r BookRequest) Validate() error {
	if _, err := parseTimestamp(r.StartTime); err != nil {
		return validationError(OpBook, "The meeting start must be a full ISO-8601 timestamp.")
	}
	if strings.TrimSpace(r.GuestName) == "" {
		return validationError(OpBook, "I need the guest's name to book the meeting.")
	}
	if !ValidEmail(r.GuestEmail) {
		return validationError(OpBook, "I need a valid email address for the guest, like name@example.com.")
	}
	return nil
}

// Summary is the calendar title of the meeting.
func (r BookRequest) Summary() string {
	if company := strings.TrimSpace(r.ClientCompany); company != "" {
		return "Meeting-" + company + "-" + strings.TrimSpace(r.GuestName)
	}
	return "Meeting-" + strings.TrimSpace(r.GuestName)
}

type RescheduleRequest struct {
	EventID      string `json:"event_id"`
	NewStartTime string `json:"new_start_time"`
}

func (RescheduleRequest) Operation() Operation { return OpReschedule }
func (RescheduleRequest) isRequest()           {}

func (r RescheduleRequest) Validate() error {
	if strings.TrimSpace(r.EventID) == "" {
		return validationError(OpReschedule, "Which meeting should I move?")
	}
	if _, err := parseTimestamp(r.NewStartTime); err != nil {
		return validationError(OpReschedule, "The new start must be a full ISO-8601 timestamp.")
	}
	return nil
}

type CancelRequest struct {
	EventID string `json:"event_id"`
	Reason  string `json:"reason,omitempty"`
}

func (CancelRequest) Operation() Operation { return OpCancel }
func (CancelRequest) isRequest()           {}

func (r CancelRequest) Validate() error {
	if strings.TrimSpace(r.EventID) == "" {
		return validationError(OpCancel, "Which meeting should I cancel?")
	}
	return nil
}

// ValidEmail reports whether s is a bare address with a dotted domain.
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return false
	}
	at := strings.LastIndex(s, "@")
	return at > 0 && strings.Contains(s[at+1:], ".")
}

// parseTimestamp reads an RFC 3339 timestamp and moves it to PT.
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return t.In(models.PT()), nil
}
