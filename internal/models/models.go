package models

import (
	"strings"
	"time"
)

// Role identifies the author of a conversation message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single entry in a user's conversation history
type Message struct {
	ID        string    `json:"id" firestore:"id"`
	Role      Role      `json:"role" firestore:"role"`
	Text      string    `json:"text" firestore:"text"`
	CreatedAt time.Time `json:"created_at" firestore:"created_at"`
}

// ConversationTurn is one inbound message together with the context it arrived in.
// It is not modified after the orchestrator receives it.
type ConversationTurn struct {
	UserID     string    `json:"user_id"`
	TenantID   string    `json:"tenant_id,omitempty"`
	Email      string    `json:"email,omitempty"`
	Name       string    `json:"name,omitempty"`
	Text       string    `json:"text"`
	History    []Message `json:"history,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// LastAssistantMessage returns the most recent assistant message in the history.
func (t ConversationTurn) LastAssistantMessage() (Message, bool) {
	for i := len(t.History) - 1; i >= 0; i-- {
		if t.History[i].Role == RoleAssistant {
			return t.History[i], true
		}
	}
	return Message{}, false
}

// PreviousMessage returns the message directly before the current input.
func (t ConversationTurn) PreviousMessage() (Message, bool) {
	if len(t.History) == 0 {
		return Message{}, false
	}
	return t.History[len(t.History)-1], true
}

// Intent is the coarse label produced once per turn by the classifier
type Intent string

const (
	IntentAppointment Intent = "appointment_related"
	IntentInformation Intent = "get_information"
	IntentElse        Intent = "else"
)

// ParseIntent maps a raw label onto the closed set. Anything unknown is IntentElse.
func ParseIntent(label string) Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(label))) {
	case IntentAppointment:
		return IntentAppointment
	case IntentInformation:
		return IntentInformation
	default:
		return IntentElse
	}
}

// AgentSettings holds per-user overrides for the assistant instructions
type AgentSettings struct {
	UserID               string    `json:"-" firestore:"user_id"`
	SchedulingPrompt     string    `json:"schedulingPrompt" firestore:"scheduling_prompt"`
	InformationPrompt    string    `json:"informationPrompt" firestore:"information_prompt"`
	ClassificationPrompt string    `json:"classificationPrompt" firestore:"classification_prompt"`
	UpdatedAt            time.Time `json:"updatedAt" firestore:"updated_at"`
}
