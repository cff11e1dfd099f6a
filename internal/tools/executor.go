// Package tools validates and issues calendar operations on behalf of a user.
package tools

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/xaenox/frontdesk/internal/calendar"
	"github.com/xaenox/frontdesk/internal/models"
	"go.uber.org/zap"
)

// ExecContext identifies who a call is made for.
type ExecContext struct {
	UserID string
}

// Window is a one-hour slot in PT.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Result is the outcome of a successful call.
type Result struct {
	Operation Operation `json:"operation"`
	EventID   string    `json:"event_id,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	JoinLink  string    `json:"join_link,omitempty"`
	Start     time.Time `json:"start,omitempty"`
	End       time.Time `json:"end,omitempty"`
	// Free and Busy are filled by availability checks.
	Free []Window `json:"free,omitempty"`
	Busy []Window `json:"busy,omitempty"`
}

// Event returns the event reference produced by book or reschedule.
func (r Result) Event() *models.EventRef {
	if r.EventID == "" {
		return nil
	}
	return &models.EventRef{ID: r.EventID, Summary: r.Summary, Start: r.Start, End: r.End, JoinLink: r.JoinLink}
}

type Options struct {
	// BusinessStart and BusinessEnd bound default availability windows, in PT hours.
	BusinessStart int
	BusinessEnd   int
	MaxWindows    int
}

func (o Options) withDefaults() Options {
	if o.BusinessStart == 0 && o.BusinessEnd == 0 {
		o.BusinessStart, o.BusinessEnd = 9, 17
	}
	if o.MaxWindows <= 0 {
		o.MaxWindows = 3
	}
	return o
}

// Executor issues calendar operations. Mutating calls never overlap.
type Executor struct {
	cal    calendar.Calendar
	opts   Options
	now    func() time.Time
	logger *zap.Logger

	mu sync.Mutex
}

func NewExecutor(cal calendar.Calendar, opts Options, now func() time.Time, logger *zap.Logger) *Executor {
	if now == nil {
		now = time.Now
	}
	return &Executor{
		cal:    cal,
		opts:   opts.withDefaults(),
		now:    now,
		logger: logger,
	}
}

// Execute validates req and performs it for ec.UserID. Failures are always *Error.
func (e *Executor) Execute(ctx context.Context, ec ExecContext, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	if ec.UserID == "" {
		return Result{}, &Error{Kind: KindUnknown, Op: req.Operation(), Message: "Something went wrong.", Err: errors.New("missing user id")}
	}

	if Mutating(req) {
		e.mu.Lock()
		defer e.mu.Unlock()
	}

	logger := e.logger.With(zap.String("user_id", ec.UserID), zap.String("tool", string(req.Operation())))
	logger.Debug("Executing tool")

	var (
		res Result
		err error
	)
	switch r := req.(type) {
	case AvailabilityRequest:
		res, err = e.availability(ctx, ec, r)
	case BookRequest:
		res, err = e.book(ctx, ec, r)
	case RescheduleRequest:
		res, err = e.reschedule(ctx, ec, r)
	case CancelRequest:
		res, err = e.cancel(ctx, ec, r)
	default:
		err = &Error{Kind: KindUnknown, Op: req.Operation(), Message: "Something went wrong.", Err: errors.New("unsupported request")}
	}

	if err != nil {
		var terr *Error
		if errors.As(err, &terr) && terr.Kind != KindValidation {
			logger.Warn("Tool failed", zap.String("kind", string(terr.Kind)), zap.Error(terr.Err))
		}
		return Result{}, err
	}
	res.Operation = req.Operation()
	logger.Info("Tool succeeded", zap.String("event_id", res.EventID))
	return res, nil
}

// FindEvents lists the user's events starting in [start, end).
func (e *Executor) FindEvents(ctx context.Context, ec ExecContext, start, end time.Time) ([]calendar.Event, error) {
	var events []calendar.Event
	err := retryOnce(ctx, func() error {
		var err error
		events, err = e.cal.ListEvents(ctx, ec.UserID, start, end)
		return err
	})
	if err != nil {
		return nil, mapError(OpCancel, err)
	}
	return events, nil
}

// GetEvent loads one of the user's events. op names the action it serves.
func (e *Executor) GetEvent(ctx context.Context, ec ExecContext, op Operation, eventID string) (calendar.Event, error) {
	var ev calendar.Event
	err := retryOnce(ctx, func() error {
		var err error
		ev, err = e.cal.GetEvent(ctx, ec.UserID, eventID)
		return err
	})
	if err != nil {
		return calendar.Event{}, mapError(op, err)
	}
	return ev, nil
}

func (e *Executor) availability(ctx context.Context, ec ExecContext, r AvailabilityRequest) (Result, error) {
	var from, to time.Time
	var starts []time.Time
	if len(r.Times) > 0 {
		for _, ts := range r.Times {
			t, _ := parseTimestamp(ts)
			starts = append(starts, t)
		}
		from, to = starts[0], starts[0].Add(MeetingDuration)
		for _, s := range starts[1:] {
			if s.Before(from) {
				from = s
			}
			if s.Add(MeetingDuration).After(to) {
				to = s.Add(MeetingDuration)
			}
		}
	} else {
		day, _ := time.ParseInLocation(time.DateOnly, r.Date, models.PT())
		from = day.Add(time.Duration(e.opts.BusinessStart) * time.Hour)
		to = day.Add(time.Duration(e.opts.BusinessEnd) * time.Hour)
		if now := e.now(); from.Before(now) {
			from = nextHour(now.In(models.PT()))
		}
		if !from.Before(to) {
			return Result{}, nil
		}
	}

	var busy []calendar.BusyWindow
	err := retryOnce(ctx, func() error {
		var err error
		busy, err = e.cal.FreeBusy(ctx, ec.UserID, from, to, models.CanonicalTimezone)
		return err
	})
	if err != nil {
		return Result{}, mapError(OpAvailability, err)
	}

	var res Result
	if len(starts) > 0 {
		for _, s := range starts {
			w := Window{Start: s, End: s.Add(MeetingDuration)}
			if calendar.IsFree(busy, w.Start, w.End) {
				res.Free = append(res.Free, w)
			} else {
				res.Busy = append(res.Busy, w)
			}
		}
		return res, nil
	}

	for _, w := range calendar.FreeWindows(busy, from, to, MeetingDuration, e.opts.MaxWindows) {
		res.Free = append(res.Free, Window{Start: w.Start.In(models.PT()), End: w.End.In(models.PT())})
	}
	for _, b := range busy {
		res.Busy = append(res.Busy, Window{Start: b.Start.In(models.PT()), End: b.End.In(models.PT())})
	}
	return res, nil
}

func (e *Executor) book(ctx context.Context, ec ExecContext, r BookRequest) (Result, error) {
	start, _ := parseTimestamp(r.StartTime)
	if start.Before(e.now()) {
		return Result{}, validationError(OpBook, "That time has already passed. Please pick a time in the future.")
	}

	var ev calendar.Event
	err := retryOnce(ctx, func() error {
		var err error
		ev, err = e.cal.CreateEvent(ctx, ec.UserID, calendar.NewEvent{
			Summary:     r.Summary(),
			Description: r.Agenda,
			Start:       start,
			End:         start.Add(MeetingDuration),
			Timezone:    models.CanonicalTimezone,
			Attendees:   []models.Attendee{{Name: r.GuestName, Email: r.GuestEmail, Company: r.ClientCompany}},
			Conference:  true,
		})
		return err
	})
	if err != nil {
		return Result{}, mapError(OpBook, err)
	}
	return fromEvent(ev, start), nil
}

func (e *Executor) reschedule(ctx context.Context, ec ExecContext, r RescheduleRequest) (Result, error) {
	start, _ := parseTimestamp(r.NewStartTime)
	if start.Before(e.now()) {
		return Result{}, validationError(OpReschedule, "That time has already passed. Please pick a time in the future.")
	}

	var ev calendar.Event
	err := retryOnce(ctx, func() error {
		var err error
		ev, err = e.cal.UpdateEvent(ctx, ec.UserID, r.EventID, start, start.Add(MeetingDuration), models.CanonicalTimezone)
		return err
	})
	if err != nil {
		return Result{}, mapError(OpReschedule, err)
	}
	if ev.ID == "" {
		ev.ID = r.EventID
	}
	return fromEvent(ev, start), nil
}

func (e *Executor) cancel(ctx context.Context, ec ExecContext, r CancelRequest) (Result, error) {
	err := retryOnce(ctx, func() error {
		return e.cal.CancelEvent(ctx, ec.UserID, r.EventID, r.Reason)
	})
	if err != nil {
		return Result{}, mapError(OpCancel, err)
	}
	return Result{EventID: r.EventID}, nil
}

// fromEvent reports the provider's times, falling back to the requested start.
func fromEvent(ev calendar.Event, start time.Time) Result {
	res := Result{
		EventID:  ev.ID,
		Summary:  ev.Summary,
		JoinLink: ev.JoinLink,
		Start:    ev.Start,
		End:      ev.End,
	}
	if res.Start.IsZero() {
		res.Start = start
		res.End = start.Add(MeetingDuration)
	}
	res.Start = res.Start.In(models.PT())
	res.End = res.End.In(models.PT())
	return res
}

// retryOnce repeats fn a single time when it fails with a transient error.
func retryOnce(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || !errors.Is(err, calendar.ErrTransient) || ctx.Err() != nil {
		return err
	}
	return fn()
}

func nextHour(t time.Time) time.Time {
	return t.Truncate(time.Hour).Add(time.Hour)
}
