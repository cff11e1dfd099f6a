// Package calendartest provides an in-memory calendar.Calendar for tests.
package calendartest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xaenox/frontdesk/internal/calendar"
)

// Call records one operation issued against the fake.
type Call struct {
	Op      string
	UserID  string
	EventID string
	Start   time.Time
	End     time.Time
}

// Fake keeps events in memory. Errs maps an operation name ("freebusy",
// "create", "get", "update", "cancel", "list") to the errors returned by its
// next calls, consumed in order.
type Fake struct {
	mu        sync.Mutex
	Busy      []calendar.BusyWindow
	Events    map[string]calendar.Event
	Errs      map[string][]error
	JoinLink  string
	Delay     time.Duration
	calls     []Call
	nextID    int
	inFlight  int
	maxFlight int
}

func New() *Fake {
	return &Fake{
		Events:   make(map[string]calendar.Event),
		Errs:     make(map[string][]error),
		JoinLink: "https://meet.google.com/test-link",
	}
}

func (f *Fake) begin(op string, c Call) error {
	f.mu.Lock()
	c.Op = op
	f.calls = append(f.calls, c)
	if op != "freebusy" && op != "get" && op != "list" {
		f.inFlight++
		if f.inFlight > f.maxFlight {
			f.maxFlight = f.inFlight
		}
	}
	var err error
	if errs := f.Errs[op]; len(errs) > 0 {
		err = errs[0]
		f.Errs[op] = errs[1:]
	}
	delay := f.Delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

func (f *Fake) end(op string) {
	if op == "freebusy" || op == "get" || op == "list" {
		return
	}
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func (f *Fake) FreeBusy(_ context.Context, userID string, start, end time.Time, _ string) ([]calendar.BusyWindow, error) {
	if err := f.begin("freebusy", Call{UserID: userID, Start: start, End: end}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []calendar.BusyWindow
	for _, b := range f.Busy {
		if b.Start.Before(end) && start.Before(b.End) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *Fake) CreateEvent(_ context.Context, userID string, ev calendar.NewEvent) (calendar.Event, error) {
	defer f.end("create")
	if err := f.begin("create", Call{UserID: userID, Start: ev.Start, End: ev.End}); err != nil {
		return calendar.Event{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	created := calendar.Event{
		ID:       fmt.Sprintf("ev%d", f.nextID),
		Summary:  ev.Summary,
		Start:    ev.Start,
		End:      ev.End,
		JoinLink: f.JoinLink,
		Status:   "confirmed",
	}
	for _, a := range ev.Attendees {
		created.Attendees = append(created.Attendees, a.Email)
	}
	f.Events[created.ID] = created
	f.Busy = append(f.Busy, calendar.BusyWindow{Start: ev.Start, End: ev.End})
	return created, nil
}

func (f *Fake) GetEvent(_ context.Context, userID, eventID string) (calendar.Event, error) {
	if err := f.begin("get", Call{UserID: userID, EventID: eventID}); err != nil {
		return calendar.Event{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.Events[eventID]
	if !ok {
		return calendar.Event{}, calendar.ErrEventNotFound
	}
	return ev, nil
}

func (f *Fake) UpdateEvent(_ context.Context, userID, eventID string, start, end time.Time, _ string) (calendar.Event, error) {
	defer f.end("update")
	if err := f.begin("update", Call{UserID: userID, EventID: eventID, Start: start, End: end}); err != nil {
		return calendar.Event{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.Events[eventID]
	if !ok {
		return calendar.Event{}, calendar.ErrEventNotFound
	}
	ev.Start, ev.End = start, end
	f.Events[eventID] = ev
	return ev, nil
}

func (f *Fake) CancelEvent(_ context.Context, userID, eventID, _ string) error {
	defer f.end("cancel")
	if err := f.begin("cancel", Call{UserID: userID, EventID: eventID}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.Events[eventID]
	if !ok {
		return calendar.ErrEventNotFound
	}
	ev.Status = "cancelled"
	f.Events[eventID] = ev
	return nil
}

func (f *Fake) ListEvents(_ context.Context, userID string, start, end time.Time) ([]calendar.Event, error) {
	if err := f.begin("list", Call{UserID: userID, Start: start, End: end}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []calendar.Event
	for _, ev := range f.Events {
		if ev.Status == "cancelled" {
			continue
		}
		if !ev.Start.Before(start) && ev.Start.Before(end) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Calls returns the recorded operations in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf returns how many times op was issued.
func (f *Fake) CallsOf(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// MaxConcurrentMutations is the highest number of overlapping mutating calls seen.
func (f *Fake) MaxConcurrentMutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxFlight
}

// AddEvent stores an existing event.
func (f *Fake) AddEvent(ev calendar.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ev.Status == "" {
		ev.Status = "confirmed"
	}
	f.Events[ev.ID] = ev
}
