package tools

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/frontdesk/internal/calendar"
	"github.com/xaenox/frontdesk/internal/calendar/calendartest"
	"github.com/xaenox/frontdesk/internal/models"
	"go.uber.org/zap"
)

var ec = ExecContext{UserID: "u1"}

func fixedNow() time.Time {
	return time.Date(2026, 10, 14, 10, 0, 0, 0, models.PT())
}

func pt(day, hour int) time.Time {
	return time.Date(2026, 10, day, hour, 0, 0, 0, models.PT())
}

func newExecutor(cal calendar.Calendar) *Executor {
	return NewExecutor(cal, Options{}, fixedNow, zap.NewNop())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		valid bool
	}{
		{"availability by date", AvailabilityRequest{Date: "2026-10-20"}, true},
		{"availability by times", AvailabilityRequest{Times: []string{"2026-10-20T09:00:00-07:00"}}, true},
		{"availability empty", AvailabilityRequest{}, false},
		{"availability bad time", AvailabilityRequest{Times: []string{"Tuesday 9am"}}, false},
		{"availability bad date", AvailabilityRequest{Date: "20/10/2026"}, false},
		{"book", BookRequest{StartTime: "2026-10-20T09:00:00-07:00", GuestName: "Ana", GuestEmail: "ana@example.com"}, true},
		{"book without timezone", BookRequest{StartTime: "2026-10-20T09:00:00", GuestName: "Ana", GuestEmail: "ana@example.com"}, false},
		{"book without name", BookRequest{StartTime: "2026-10-20T09:00:00-07:00", GuestEmail: "ana@example.com"}, false},
		{"book bad email", BookRequest{StartTime: "2026-10-20T09:00:00-07:00", GuestName: "Ana", GuestEmail: "ana at example"}, false},
		{"book display name email", BookRequest{StartTime: "2026-10-20T09:00:00-07:00", GuestName: "Ana", GuestEmail: "Ana <ana@example.com>"}, false},
		{"reschedule", RescheduleRequest{EventID: "ev1", NewStartTime: "2026-10-21T09:00:00-07:00"}, true},
		{"reschedule without event", RescheduleRequest{NewStartTime: "2026-10-21T09:00:00-07:00"}, false},
		{"cancel", CancelRequest{EventID: "ev1"}, true},
		{"cancel without event", CancelRequest{Reason: "sick"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("ana@example.com"))
	assert.False(t, ValidEmail("ana@localhost"))
	assert.False(t, ValidEmail(""))
	assert.False(t, ValidEmail("@example.com"))
}

func TestBookSummary(t *testing.T) {
	assert.Equal(t, "Meeting-Acme-Ana", BookRequest{GuestName: "Ana", ClientCompany: "Acme"}.Summary())
	assert.Equal(t, "Meeting-Ana", BookRequest{GuestName: "Ana"}.Summary())
}

func TestExecute_Book(t *testing.T) {
	cal := calendartest.New()
	res, err := newExecutor(cal).Execute(context.Background(), ec, BookRequest{
		StartTime:     "2026-10-20T16:00:00Z",
		GuestName:     "Ana",
		GuestEmail:    "ana@example.com",
		ClientCompany: "Acme",
	})
	require.NoError(t, err)

	assert.Equal(t, OpBook, res.Operation)
	assert.NotEmpty(t, res.EventID)
	assert.Equal(t, "https://meet.google.com/test-link", res.JoinLink)
	assert.True(t, res.Start.Equal(pt(20, 9)))
	assert.Equal(t, MeetingDuration, res.End.Sub(res.Start))
	assert.Equal(t, models.PT(), res.Start.Location())

	calls := cal.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "create", calls[0].Op)
	assert.Equal(t, "u1", calls[0].UserID)
	assert.Equal(t, "Meeting-Acme-Ana", cal.Events[res.EventID].Summary)
}

func TestExecute_ValidationNeverReachesProvider(t *testing.T) {
	cal := calendartest.New()
	_, err := newExecutor(cal).Execute(context.Background(), ec, BookRequest{StartTime: "soon"})
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Empty(t, cal.Calls())
}

func TestExecute_BookInThePast(t *testing.T) {
	cal := calendartest.New()
	_, err := newExecutor(cal).Execute(context.Background(), ec, BookRequest{
		StartTime:  "2026-10-13T09:00:00-07:00",
		GuestName:  "Ana",
		GuestEmail: "ana@example.com",
	})
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Empty(t, cal.Calls())
}

func TestExecute_ErrorKinds(t *testing.T) {
	tests := []struct {
		name  string
		errs  []error
		kind  Kind
		calls int
	}{
		{"not connected", []error{calendar.ErrNotConnected}, KindNotConnected, 1},
		{"transient then ok", []error{calendar.ErrTransient}, "", 2},
		{"transient twice", []error{calendar.ErrTransient, calendar.ErrTransient}, KindTransient, 2},
		{"missing event", []error{calendar.ErrEventNotFound}, KindValidation, 1},
		{"unexpected", []error{errors.New("teapot")}, KindUnknown, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal := calendartest.New()
			cal.AddEvent(calendar.Event{ID: "ev1", Start: pt(20, 9), End: pt(20, 10)})
			cal.Errs["cancel"] = tt.errs

			_, err := newExecutor(cal).Execute(context.Background(), ec, CancelRequest{EventID: "ev1"})
			if tt.kind == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.kind, KindOf(err))
				var terr *Error
				require.ErrorAs(t, err, &terr)
				assert.NotContains(t, terr.Message, "teapot")
			}
			assert.Equal(t, tt.calls, cal.CallsOf("cancel"))
		})
	}
}

func TestExecute_MutationsAreSerialized(t *testing.T) {
	cal := calendartest.New()
	cal.Delay = 5 * time.Millisecond
	exec := newExecutor(cal)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := exec.Execute(context.Background(), ExecContext{UserID: "u1"}, BookRequest{
				StartTime:  pt(20+i%3, 9+i).Format(time.RFC3339),
				GuestName:  "Ana",
				GuestEmail: "ana@example.com",
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 6, cal.CallsOf("create"))
	assert.Equal(t, 1, cal.MaxConcurrentMutations())
}

func TestExecute_Reschedule(t *testing.T) {
	cal := calendartest.New()
	cal.AddEvent(calendar.Event{ID: "ev1", Summary: "Meeting-Ana", Start: pt(20, 9), End: pt(20, 10), JoinLink: "https://meet.google.com/x"})

	res, err := newExecutor(cal).Execute(context.Background(), ec, RescheduleRequest{
		EventID:      "ev1",
		NewStartTime: pt(21, 11).Format(time.RFC3339),
	})
	require.NoError(t, err)
	assert.Equal(t, "ev1", res.EventID)
	assert.True(t, res.Start.Equal(pt(21, 11)))
	assert.True(t, res.End.Equal(pt(21, 12)))
	assert.Equal(t, "https://meet.google.com/x", res.JoinLink)
}

func TestExecute_AvailabilityDefaultWindows(t *testing.T) {
	cal := calendartest.New()
	cal.Busy = []calendar.BusyWindow{
		{Start: pt(20, 9), End: pt(20, 10)},
		{Start: pt(20, 11), End: pt(20, 12)},
	}

	res, err := newExecutor(cal).Execute(context.Background(), ec, AvailabilityRequest{Date: "2026-10-20"})
	require.NoError(t, err)

	require.Len(t, res.Free, 3)
	assert.True(t, res.Free[0].Start.Equal(pt(20, 10)))
	assert.True(t, res.Free[1].Start.Equal(pt(20, 12)))
	assert.True(t, res.Free[2].Start.Equal(pt(20, 13)))
	assert.Len(t, res.Busy, 2)
	assert.Zero(t, cal.CallsOf("create"))

	calls := cal.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Start.Equal(pt(20, 9)))
	assert.True(t, calls[0].End.Equal(pt(20, 17)))
}

func TestExecute_AvailabilityToday(t *testing.T) {
	cal := calendartest.New()
	res, err := newExecutor(cal).Execute(context.Background(), ec, AvailabilityRequest{Date: "2026-10-14"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Free)
	assert.True(t, res.Free[0].Start.Equal(pt(14, 11)))
}

func TestExecute_AvailabilityPastDate(t *testing.T) {
	cal := calendartest.New()
	res, err := newExecutor(cal).Execute(context.Background(), ec, AvailabilityRequest{Date: "2026-10-01"})
	require.NoError(t, err)
	assert.Empty(t, res.Free)
	assert.Empty(t, cal.Calls())
}

func TestExecute_AvailabilityCandidates(t *testing.T) {
	cal := calendartest.New()
	cal.Busy = []calendar.BusyWindow{{Start: pt(20, 9), End: pt(20, 10)}}

	res, err := newExecutor(cal).Execute(context.Background(), ec, AvailabilityRequest{Times: []string{
		pt(20, 9).Format(time.RFC3339),
		pt(20, 14).Format(time.RFC3339),
	}})
	require.NoError(t, err)
	require.Len(t, res.Free, 1)
	assert.True(t, res.Free[0].Start.Equal(pt(20, 14)))
	require.Len(t, res.Busy, 1)
	assert.True(t, res.Busy[0].Start.Equal(pt(20, 9)))
}

func TestFindEvents(t *testing.T) {
	cal := calendartest.New()
	cal.AddEvent(calendar.Event{ID: "ev1", Start: pt(20, 9), End: pt(20, 10)})
	cal.AddEvent(calendar.Event{ID: "ev2", Start: pt(20, 11), End: pt(20, 12)})

	events, err := newExecutor(cal).FindEvents(context.Background(), ec, pt(20, 9), pt(20, 10))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ev1", events[0].ID)
}

func TestGetEvent(t *testing.T) {
	cal := calendartest.New()
	cal.AddEvent(calendar.Event{ID: "ev1", Summary: "Meeting-Bo", Start: pt(20, 9), End: pt(20, 10)})
	cal.Errs["get"] = []error{calendar.ErrTransient}

	ev, err := newExecutor(cal).GetEvent(context.Background(), ec, OpCancel, "ev1")
	require.NoError(t, err)
	assert.Equal(t, "Meeting-Bo", ev.Summary)
	assert.Equal(t, 2, cal.CallsOf("get"))

	_, err = newExecutor(cal).GetEvent(context.Background(), ec, OpReschedule, "missing")
	assert.Equal(t, KindValidation, KindOf(err))
	assert.ErrorIs(t, err, calendar.ErrEventNotFound)
}
