// Package scheduling drives the scheduling dialogue. Calendar changes happen
// only after the user answers an explicit yes to a restated proposal.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xaenox/frontdesk/internal/calendar"
	"github.com/xaenox/frontdesk/internal/models"
	"github.com/xaenox/frontdesk/internal/slots"
	"github.com/xaenox/frontdesk/internal/storage"
	"github.com/xaenox/frontdesk/internal/tools"
	"go.uber.org/zap"
)

const (
	askDateTime   = "What day and time would you like to meet? All times are Pacific Time (PT)."
	askDay        = "Which day should I check? All times are Pacific Time (PT)."
	askEmail      = "What email address should I send the calendar invite to?"
	askCancelWhat = `I can cancel a meeting once I know exactly which one. What is the date and time of the meeting you'd like to cancel? I'll restate it and ask you to reply "yes" before cancelling.`
	askMoveWhat   = `Which meeting should I move? Tell me its current date and time, and I'll ask you to reply "yes" before changing anything.`
	declined      = "Okay, I won't change anything. Is there anything else I can help with?"
	notConnected  = "Your Google Calendar isn't connected yet. Please connect it from the Connections page and then ask me again."
)

// Tools is the calendar tool surface used by the machine.
type Tools interface {
	Execute(ctx context.Context, ec tools.ExecContext, req tools.Request) (tools.Result, error)
	FindEvents(ctx context.Context, ec tools.ExecContext, start, end time.Time) ([]calendar.Event, error)
	GetEvent(ctx context.Context, ec tools.ExecContext, op tools.Operation, eventID string) (calendar.Event, error)
}

// Outcome is the machine's answer to one turn.
type Outcome struct {
	Text      string
	State     models.SchedulingState
	SubIntent models.SubIntent
	// NeedsClarification is set when the time could not be understood.
	NeedsClarification bool
	// Result is set when a mutating tool call succeeded.
	Result *tools.Result
}

type Machine struct {
	parser   slots.Parser
	tools    Tools
	sessions storage.SessionStore
	now      func() time.Time
	logger   *zap.Logger
}

func NewMachine(parser slots.Parser, t Tools, sessions storage.SessionStore, now func() time.Time, logger *zap.Logger) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{
		parser:   parser,
		tools:    t,
		sessions: sessions,
		now:      now,
		logger:   logger,
	}
}

// Handle advances the user's scheduling dialogue by one turn. instructions are
// the business's scheduling notes passed on to the slot parser. Errors are
// returned only for failures the user cannot act on.
func (m *Machine) Handle(ctx context.Context, turn models.ConversationTurn, instructions string) (Outcome, error) {
	session, err := m.sessions.GetSession(ctx, turn.UserID)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading session: %w", err)
	}

	out, err := m.step(ctx, session, turn, instructions)
	if err != nil {
		session.State = models.StateClassifyingSubIntent
		session.Proposal = nil
		session.Draft = nil
		session.UpdatedAt = m.now()
		if serr := m.sessions.SaveSession(ctx, session); serr != nil {
			m.logger.Error("Failed to reset session", zap.String("user_id", turn.UserID), zap.Error(serr))
		}
		return Outcome{}, err
	}

	session.UpdatedAt = m.now()
	if err := m.sessions.SaveSession(ctx, session); err != nil {
		return Outcome{}, fmt.Errorf("saving session: %w", err)
	}

	out.State = session.State
	out.SubIntent = session.SubIntent
	m.logger.Debug("Scheduling turn handled",
		zap.String("user_id", turn.UserID),
		zap.String("state", string(out.State)),
		zap.String("sub_intent", string(out.SubIntent)))
	return out, nil
}

func (m *Machine) step(ctx context.Context, session *models.SchedulingSession, turn models.ConversationTurn, instructions string) (Outcome, error) {
	text := strings.TrimSpace(turn.Text)
	affirmative := IsAffirmative(text)

	if session.State == models.StateAwaitingConfirmation && session.Proposal != nil {
		switch {
		case affirmative && confirmed(turn, session.Proposal):
			return m.execute(ctx, session, turn)
		case affirmative:
			// a yes that does not directly answer the restated proposal
			return Outcome{Text: session.Proposal.Prompt}, nil
		}
		// anything else revises the pending request
		draft := *session.Proposal
		draft.Prompt = ""
		session.Draft = &draft
		session.Proposal = nil
	}

	if session.State.Open() && IsNegative(text) {
		session.State = models.StateReported
		session.Proposal = nil
		session.Draft = nil
		return Outcome{Text: declined}, nil
	}

	if session.State == models.StateAwaitingConfirmation && affirmative {
		return m.reaskTarget(session), nil
	}

	sub, explicit := DetectSubIntent(text)
	if !explicit {
		switch {
		case session.State.Open() && session.Draft != nil:
			sub = session.Draft.SubIntent
		case session.State.Open() && session.SubIntent != "":
			sub = session.SubIntent
		default:
			sub = models.SubIntentSchedule
		}
	}
	if !session.State.Open() {
		session.Draft = nil
	}
	session.State = models.StateClassifyingSubIntent
	session.SubIntent = sub
	if session.Draft == nil {
		session.Draft = &models.Proposal{SubIntent: sub}
	}
	if session.Draft.SubIntent != sub {
		session.Draft.SubIntent = sub
		if sub != models.SubIntentCancel && sub != models.SubIntentReschedule {
			session.Draft.Event = nil
		}
	}
	if sub == models.SubIntentCancel {
		if reason := extractReason(text); reason != "" {
			session.Draft.Note = reason
		}
	}

	slot := models.Unknown("")
	if !affirmative && text != "" {
		parsed, err := m.parser.Parse(ctx, slots.Input{Text: text, Instructions: instructions})
		if err != nil {
			return Outcome{}, fmt.Errorf("parsing time: %w", err)
		}
		slot = resolveSlot(parsed, session.Draft, text)
	}
	if !slot.Understood {
		m.logger.Debug("Time not understood", zap.String("user_id", turn.UserID), zap.String("notes", slot.Notes))
	}

	ec := tools.ExecContext{UserID: turn.UserID}
	switch sub {
	case models.SubIntentAvailability:
		return m.availability(ctx, ec, session, slot)
	case models.SubIntentReschedule:
		return m.reschedule(ctx, ec, session, slot)
	case models.SubIntentCancel:
		return m.cancel(ctx, ec, session, slot)
	default:
		return m.schedule(ctx, ec, session, turn, slot)
	}
}

// confirmed holds when the message right before this one is the restated proposal.
func confirmed(turn models.ConversationTurn, p *models.Proposal) bool {
	prev, ok := turn.PreviousMessage()
	return ok && prev.Role == models.RoleAssistant && strings.TrimSpace(prev.Text) == strings.TrimSpace(p.Prompt)
}

// resolveSlot fills a bare clock time from a day offered in an earlier turn.
func resolveSlot(slot models.TimeSlot, draft *models.Proposal, text string) models.TimeSlot {
	if slot.Understood || draft == nil || draft.DateOnly == "" {
		return slot
	}
	mins, ok := slots.TimeOfDay(text)
	if !ok {
		return slot
	}
	day, err := time.ParseInLocation(time.DateOnly, draft.DateOnly, models.PT())
	if err != nil {
		return slot
	}
	start := day.Add(time.Duration(mins) * time.Minute)
	return models.TimeSlot{Understood: true, Start: start.Format(time.RFC3339)}
}

func (m *Machine) reaskTarget(session *models.SchedulingSession) Outcome {
	if session.SubIntent == models.SubIntentReschedule {
		return Outcome{Text: askMoveWhat}
	}
	return Outcome{Text: askCancelWhat}
}

func (m *Machine) availability(ctx context.Context, ec tools.ExecContext, session *models.SchedulingSession, slot models.TimeSlot) (Outcome, error) {
	if !slot.Understood {
		session.State = models.StateAwaitingDetails
		return Outcome{Text: askDay, NeedsClarification: true}, nil
	}

	if start, ok := slot.StartTime(); ok {
		res, err := m.tools.Execute(ctx, ec, tools.AvailabilityRequest{Times: []string{start.Format(time.RFC3339)}})
		if err != nil {
			return m.toolFailure(session, err)
		}
		if len(res.Free) > 0 {
			session.State = models.StateAwaitingDetails
			session.Draft = &models.Proposal{SubIntent: models.SubIntentSchedule, Start: start, End: start.Add(tools.MeetingDuration), Attendee: session.Draft.Attendee}
			return Outcome{Text: FormatTime(start) + " is open. Would you like me to book it?"}, nil
		}
		return m.offerDay(ctx, ec, session, dayOf(start), "That time is already taken.")
	}

	day, _ := slot.Date()
	return m.offerDay(ctx, ec, session, day, "")
}

// offerDay lists the free windows of day and waits for the user to pick one.
func (m *Machine) offerDay(ctx context.Context, ec tools.ExecContext, session *models.SchedulingSession, day time.Time, lead string) (Outcome, error) {
	res, err := m.tools.Execute(ctx, ec, tools.AvailabilityRequest{Date: day.Format(time.DateOnly)})
	if err != nil {
		return m.toolFailure(session, err)
	}

	attendee := models.Attendee{}
	if session.Draft != nil {
		attendee = session.Draft.Attendee
	}
	session.State = models.StateAwaitingDetails

	var b strings.Builder
	if lead != "" {
		b.WriteString(lead + " ")
	}
	if len(res.Free) == 0 {
		session.Draft = &models.Proposal{SubIntent: models.SubIntentSchedule, Attendee: attendee}
		fmt.Fprintf(&b, "I don't see any open times on %s. Would another day work?", FormatDay(day))
		return Outcome{Text: b.String()}, nil
	}

	session.Draft = &models.Proposal{SubIntent: models.SubIntentSchedule, DateOnly: day.Format(time.DateOnly), Attendee: attendee}
	fmt.Fprintf(&b, "Here are open times on %s (PT): %s. Which one would you like?", FormatDay(day), formatWindows(res.Free))
	return Outcome{Text: b.String()}, nil
}

func (m *Machine) schedule(ctx context.Context, ec tools.ExecContext, session *models.SchedulingSession, turn models.ConversationTurn, slot models.TimeSlot) (Outcome, error) {
	draft := session.Draft
	applyTime(draft, slot)
	fillAttendee(draft, session, turn)

	if draft.Start.IsZero() {
		if day, ok := slot.Date(); ok {
			return m.offerDay(ctx, ec, session, day, "")
		}
		session.State = models.StateAwaitingDetails
		return Outcome{Text: askDateTime, NeedsClarification: !slot.Understood}, nil
	}
	if draft.Start.Before(m.now()) {
		draft.Start, draft.End = time.Time{}, time.Time{}
		session.State = models.StateAwaitingDetails
		return Outcome{Text: "That time has already passed. What other day and time work for you?"}, nil
	}
	if draft.Attendee.Email == "" {
		session.State = models.StateAwaitingDetails
		return Outcome{Text: askEmail}, nil
	}

	free, err := m.isFree(ctx, ec, draft.Start)
	if err != nil {
		return m.toolFailure(session, err)
	}
	if !free {
		return m.offerDay(ctx, ec, session, dayOf(draft.Start), "That time is already taken.")
	}

	who := draft.Attendee.Email
	if draft.Attendee.Name != "" {
		who = draft.Attendee.Name + " (" + draft.Attendee.Email + ")"
	}
	return m.propose(session, fmt.Sprintf(
		`Just to confirm: book a 60-minute meeting with %s on %s? Reply "yes" to confirm.`,
		who, FormatTime(draft.Start))), nil
}

func (m *Machine) reschedule(ctx context.Context, ec tools.ExecContext, session *models.SchedulingSession, slot models.TimeSlot) (Outcome, error) {
	draft := session.Draft
	if draft.Event == nil {
		ev, err := m.lastEvent(ctx, ec, session, tools.OpReschedule)
		if err != nil {
			return m.toolFailure(session, err)
		}
		draft.Event = ev
	}

	if draft.Event == nil {
		if out, found, err := m.findTarget(ctx, ec, session, slot, askMoveWhat); !found {
			return out, err
		}
		// the time in this message identified the meeting, not its new slot
		slot = models.Unknown("")
	}

	applyTime(draft, slot)
	if draft.Start.IsZero() {
		session.State = models.StateAwaitingDetails
		return Outcome{
			Text:               fmt.Sprintf("What new day and time would you like for %s, currently on %s?", eventLabel(draft.Event), FormatTime(draft.Event.Start)),
			NeedsClarification: true,
		}, nil
	}
	if draft.Start.Before(m.now()) {
		draft.Start, draft.End = time.Time{}, time.Time{}
		session.State = models.StateAwaitingDetails
		return Outcome{Text: "That time has already passed. What other day and time work for you?"}, nil
	}

	ownSlot := draft.Start.Before(draft.Event.End) && draft.Event.Start.Before(draft.End)
	if !ownSlot {
		free, err := m.isFree(ctx, ec, draft.Start)
		if err != nil {
			return m.toolFailure(session, err)
		}
		if !free {
			draft.Start, draft.End = time.Time{}, time.Time{}
			session.State = models.StateAwaitingDetails
			return Outcome{Text: "That time is already taken. What other day and time work for you?"}, nil
		}
	}

	return m.propose(session, fmt.Sprintf(
		`Just to confirm: move %s from %s to %s? Reply "yes" to confirm.`,
		eventLabel(draft.Event), FormatTime(draft.Event.Start), FormatTime(draft.Start))), nil
}

func (m *Machine) cancel(ctx context.Context, ec tools.ExecContext, session *models.SchedulingSession, slot models.TimeSlot) (Outcome, error) {
	draft := session.Draft
	if draft.Event == nil {
		ev, err := m.lastEvent(ctx, ec, session, tools.OpCancel)
		if err != nil {
			return m.toolFailure(session, err)
		}
		draft.Event = ev
	}
	if draft.Event == nil {
		if out, found, err := m.findTarget(ctx, ec, session, slot, askCancelWhat); !found {
			return out, err
		}
	}

	return m.propose(session, fmt.Sprintf(
		`Just to confirm: cancel %s on %s? Reply "yes" to confirm.`,
		eventLabel(draft.Event), FormatTime(draft.Event.Start))), nil
}

// lastEvent re-reads the event reported earlier in the session so a proposal
// restates its current time. An event that is gone is forgotten.
func (m *Machine) lastEvent(ctx context.Context, ec tools.ExecContext, session *models.SchedulingSession, op tools.Operation) (*models.EventRef, error) {
	if session.LastEvent == nil {
		return nil, nil
	}
	ev, err := m.tools.GetEvent(ctx, ec, op, session.LastEvent.ID)
	if errors.Is(err, calendar.ErrEventNotFound) || (err == nil && ev.Status == "cancelled") {
		session.LastEvent = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	session.LastEvent = ev.Ref()
	ref := *session.LastEvent
	return &ref, nil
}

// findTarget looks up the single event starting in the slot's hour. When it
// cannot, the machine holds for confirmation of a specific event.
func (m *Machine) findTarget(ctx context.Context, ec tools.ExecContext, session *models.SchedulingSession, slot models.TimeSlot, ask string) (Outcome, bool, error) {
	session.State = models.StateAwaitingConfirmation
	start, ok := slot.StartTime()
	if !ok {
		return Outcome{Text: ask, NeedsClarification: !slot.Understood}, false, nil
	}

	events, err := m.tools.FindEvents(ctx, ec, start, start.Add(tools.MeetingDuration))
	if err != nil {
		out, ferr := m.toolFailure(session, err)
		return out, false, ferr
	}
	switch len(events) {
	case 1:
		session.Draft.Event = events[0].Ref()
		return Outcome{}, true, nil
	case 0:
		return Outcome{Text: fmt.Sprintf("I couldn't find a meeting starting on %s. %s", FormatTime(start), ask)}, false, nil
	default:
		return Outcome{Text: fmt.Sprintf("I found %d meetings around %s. %s", len(events), FormatTime(start), ask)}, false, nil
	}
}

// propose restates the drafted action and waits for an explicit yes.
func (m *Machine) propose(session *models.SchedulingSession, prompt string) Outcome {
	p := *session.Draft
	p.Prompt = prompt
	p.CreatedAt = m.now()
	session.Proposal = &p
	session.Draft = nil
	session.State = models.StateAwaitingConfirmation
	return Outcome{Text: prompt}
}

func (m *Machine) execute(ctx context.Context, session *models.SchedulingSession, turn models.ConversationTurn) (Outcome, error) {
	p := session.Proposal
	if !p.SubIntent.Mutating() {
		return Outcome{}, fmt.Errorf("proposal with sub-intent %q cannot be executed", p.SubIntent)
	}
	session.State = models.StateExecuting
	session.UpdatedAt = m.now()
	if err := m.sessions.SaveSession(ctx, session); err != nil {
		return Outcome{}, fmt.Errorf("saving session: %w", err)
	}

	var req tools.Request
	switch p.SubIntent {
	case models.SubIntentSchedule:
		req = tools.BookRequest{
			StartTime:     p.Start.Format(time.RFC3339),
			GuestName:     p.Attendee.Name,
			GuestEmail:    p.Attendee.Email,
			ClientCompany: p.Attendee.Company,
			Agenda:        p.Note,
		}
	case models.SubIntentReschedule:
		req = tools.RescheduleRequest{EventID: p.Event.ID, NewStartTime: p.Start.Format(time.RFC3339)}
	default:
		req = tools.CancelRequest{EventID: p.Event.ID, Reason: p.Note}
	}

	session.Proposal = nil
	res, err := m.tools.Execute(ctx, tools.ExecContext{UserID: turn.UserID}, req)
	if err != nil {
		draft := *p
		draft.Prompt = ""
		session.Draft = &draft
		out, ferr := m.toolFailure(session, err)
		if ferr == nil && tools.KindOf(err) == tools.KindNotConnected {
			// the request is proposed again once the calendar is connected
			session.State = models.StateAwaitingDetails
		}
		return out, ferr
	}

	session.State = models.StateReported
	session.Draft = nil
	session.Attendee = p.Attendee

	var text string
	switch p.SubIntent {
	case models.SubIntentSchedule:
		session.LastEvent = res.Event()
		text = fmt.Sprintf("You're all set! %s is booked for %s.", eventLabel(session.LastEvent), FormatTime(res.Start))
	case models.SubIntentReschedule:
		session.LastEvent = res.Event()
		text = fmt.Sprintf("Done! %s is now on %s.", eventLabel(session.LastEvent), FormatTime(res.Start))
	case models.SubIntentCancel:
		session.LastEvent = nil
		return Outcome{
			Text:   fmt.Sprintf("Done. %s on %s has been cancelled.", eventLabel(p.Event), FormatTime(p.Event.Start)),
			Result: &res,
		}, nil
	}
	if res.JoinLink != "" {
		text += " Join link: " + res.JoinLink
	}
	return Outcome{Text: text, Result: &res}, nil
}

// toolFailure turns user-actionable tool errors into replies. Anything else is
// returned as an error.
func (m *Machine) toolFailure(session *models.SchedulingSession, err error) (Outcome, error) {
	var terr *tools.Error
	if !errors.As(err, &terr) {
		return Outcome{}, err
	}
	switch terr.Kind {
	case tools.KindNotConnected:
		session.State = models.StateReported
		return Outcome{Text: notConnected}, nil
	case tools.KindValidation, tools.KindTransient:
		session.State = models.StateAwaitingDetails
		return Outcome{Text: terr.Message}, nil
	default:
		return Outcome{}, err
	}
}

func (m *Machine) isFree(ctx context.Context, ec tools.ExecContext, start time.Time) (bool, error) {
	res, err := m.tools.Execute(ctx, ec, tools.AvailabilityRequest{Times: []string{start.Format(time.RFC3339)}})
	if err != nil {
		return false, err
	}
	return len(res.Free) > 0, nil
}

func applyTime(draft *models.Proposal, slot models.TimeSlot) {
	if start, ok := slot.StartTime(); ok {
		draft.Start = start
		draft.End = start.Add(tools.MeetingDuration)
		draft.DateOnly = ""
		return
	}
	if day, ok := slot.Date(); ok {
		draft.Start, draft.End = time.Time{}, time.Time{}
		draft.DateOnly = day.Format(time.DateOnly)
	}
}

// fillAttendee prefers an address typed in this message, then what the
// session already knows, then the verified identity.
func fillAttendee(draft *models.Proposal, session *models.SchedulingSession, turn models.ConversationTurn) {
	a := &draft.Attendee
	if email := ExtractEmail(turn.Text); email != "" {
		if !strings.EqualFold(email, a.Email) {
			a.Name = ""
		}
		a.Email = email
	}
	if a.Email == "" {
		a.Email = session.Attendee.Email
		if a.Name == "" {
			a.Name = session.Attendee.Name
		}
		if a.Company == "" {
			a.Company = session.Attendee.Company
		}
	}
	if a.Email == "" && tools.ValidEmail(turn.Email) {
		a.Email = strings.ToLower(turn.Email)
		if a.Name == "" {
			a.Name = turn.Name
		}
	}
	if a.Name == "" && a.Email != "" {
		a.Name = nameFromEmail(a.Email)
	}
}

func dayOf(t time.Time) time.Time {
	t = t.In(models.PT())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, models.PT())
}
