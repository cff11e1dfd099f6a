// Package slots extracts a date/time understanding from free text. Every time
// it returns is expressed in the canonical PT zone, and nothing is set unless
// the parser is confident.
package slots

import (
	"context"
	"time"

	"github.com/xaenox/frontdesk/internal/models"
)

// Input is the message to parse plus optional business instructions.
type Input struct {
	Text         string
	Instructions string
}

// Parser extracts a time slot from a message.
type Parser interface {
	Parse(ctx context.Context, in Input) (models.TimeSlot, error)
}

// Normalize enforces the slot invariant: fields are only kept when the slot is
// understood and they parse, times are rewritten in PT, and a slot left with
// nothing usable is downgraded to not understood.
func Normalize(s models.TimeSlot) models.TimeSlot {
	if !s.Understood {
		return models.Unknown(s.Notes)
	}

	out := models.TimeSlot{Understood: true, Notes: s.Notes}
	if start, err := time.Parse(time.RFC3339, s.Start); err == nil {
		out.Start = start.In(models.PT()).Format(time.RFC3339)
		if end, err := time.Parse(time.RFC3339, s.End); err == nil && end.After(start) {
			out.End = end.In(models.PT()).Format(time.RFC3339)
		}
	}
	if out.Start == "" && s.DateOnly != "" {
		if d, err := time.ParseInLocation(time.DateOnly, s.DateOnly, models.PT()); err == nil {
			out.DateOnly = d.Format(time.DateOnly)
		}
	}

	if out.Start == "" && out.DateOnly == "" {
		return models.Unknown(s.Notes)
	}
	return out
}
