package models

import "time"

// SchedulingState is the position of a user's scheduling dialogue
type SchedulingState string

const (
	StateClassifyingSubIntent SchedulingState = "CLASSIFYING_SUBINTENT"
	StateAwaitingDetails      SchedulingState = "AWAITING_DETAILS"
	StateAwaitingConfirmation SchedulingState = "AWAITING_CONFIRMATION"
	StateExecuting            SchedulingState = "EXECUTING"
	StateReported             SchedulingState = "REPORTED"
)

// Open reports whether the dialogue is waiting on the user.
func (s SchedulingState) Open() bool {
	return s == StateAwaitingDetails || s == StateAwaitingConfirmation
}

// SubIntent is the fine-grained scheduling action
type SubIntent string

const (
	SubIntentAvailability SubIntent = "availability"
	SubIntentSchedule     SubIntent = "schedule"
	SubIntentReschedule   SubIntent = "reschedule"
	SubIntentCancel       SubIntent = "cancel"
)

// Mutating reports whether the sub-intent changes the calendar.
func (s SubIntent) Mutating() bool {
	return s == SubIntentSchedule || s == SubIntentReschedule || s == SubIntentCancel
}

// Attendee is the guest of a meeting
type Attendee struct {
	Name    string `json:"name,omitempty" firestore:"name"`
	Email   string `json:"email,omitempty" firestore:"email"`
	Company string `json:"company,omitempty" firestore:"company"`
}

// EventRef points at a calendar event the assistant has reported to the user
type EventRef struct {
	ID       string    `json:"id" firestore:"id"`
	Summary  string    `json:"summary,omitempty" firestore:"summary"`
	Start    time.Time `json:"start" firestore:"start"`
	End      time.Time `json:"end" firestore:"end"`
	JoinLink string    `json:"join_link,omitempty" firestore:"join_link"`
}

// Proposal is an exact action restated to the user and waiting for a "yes"
type Proposal struct {
	SubIntent SubIntent `json:"sub_intent" firestore:"sub_intent"`
	Start     time.Time `json:"start,omitempty" firestore:"start"`
	End       time.Time `json:"end,omitempty" firestore:"end"`
	DateOnly  string    `json:"date_only,omitempty" firestore:"date_only"`
	Event     *EventRef `json:"event,omitempty" firestore:"event"`
	Attendee  Attendee  `json:"attendee" firestore:"attendee"`
	// Note is the agenda of a booking or the reason of a cancellation.
	Note      string    `json:"note,omitempty" firestore:"note"`
	Prompt    string    `json:"prompt" firestore:"prompt"`
	CreatedAt time.Time `json:"created_at" firestore:"created_at"`
}

// SchedulingSession is the per-user state of the scheduling state machine
type SchedulingSession struct {
	UserID    string          `json:"user_id" firestore:"user_id"`
	State     SchedulingState `json:"state" firestore:"state"`
	SubIntent SubIntent       `json:"sub_intent,omitempty" firestore:"sub_intent"`
	Proposal  *Proposal       `json:"proposal,omitempty" firestore:"proposal"`
	// Draft collects details of a request that is not ready to be proposed yet.
	Draft     *Proposal `json:"draft,omitempty" firestore:"draft"`
	Attendee  Attendee  `json:"attendee" firestore:"attendee"`
	LastEvent *EventRef `json:"last_event,omitempty" firestore:"last_event"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updated_at"`
}

// NewSchedulingSession returns an empty session for the user.
func NewSchedulingSession(userID string) *SchedulingSession {
	return &SchedulingSession{
		UserID: userID,
		State:  StateClassifyingSubIntent,
	}
}
