package models

import (
	"sync"
	"time"
	_ "time/tzdata"
)

// CanonicalTimezone is the zone every time is normalised to before it is stored,
// compared or shown to the user.
const CanonicalTimezone = "America/Los_Angeles"

var (
	ptOnce sync.Once
	ptLoc  *time.Location
)

// PT returns the canonical location.
func PT() *time.Location {
	ptOnce.Do(func() {
		loc, err := time.LoadLocation(CanonicalTimezone)
		if err != nil {
			loc = time.FixedZone("PT", -8*60*60)
		}
		ptLoc = loc
	})
	return ptLoc
}

// TimeSlot is the best-effort understanding of a date/time mentioned in a message.
// Start, End and DateOnly are only set when Understood is true.
type TimeSlot struct {
	Understood bool   `json:"understood"`
	Start      string `json:"start"`
	End        string `json:"end"`
	DateOnly   string `json:"date_only"`
	Notes      string `json:"notes"`
}

// Unknown returns a slot that was not understood.
func Unknown(notes string) TimeSlot {
	return TimeSlot{Notes: notes}
}

// StartTime parses Start as RFC 3339.
func (s TimeSlot) StartTime() (time.Time, bool) {
	if !s.Understood || s.Start == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s.Start)
	if err != nil {
		return time.Time{}, false
	}
	return t.In(PT()), true
}

// EndTime parses End as RFC 3339.
func (s TimeSlot) EndTime() (time.Time, bool) {
	if !s.Understood || s.End == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s.End)
	if err != nil {
		return time.Time{}, false
	}
	return t.In(PT()), true
}

// Date parses DateOnly (YYYY-MM-DD) as midnight PT.
func (s TimeSlot) Date() (time.Time, bool) {
	if !s.Understood || s.DateOnly == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(time.DateOnly, s.DateOnly, PT())
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
