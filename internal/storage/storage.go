package storage

import (
	"context"
	"errors"

	"github.com/xaenox/frontdesk/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("storage: not found")

// Storage is the per-user state the assistant keeps between turns.
type Storage interface {
	ConversationStore
	SessionStore
	ConnectionStore
	KnowledgeStore
	SettingsStore
	Close() error
}

// ConversationStore keeps the ordered message history of each user.
type ConversationStore interface {
	AppendMessages(ctx context.Context, userID string, msgs ...models.Message) error
	// RecentMessages returns at most limit messages, oldest first.
	RecentMessages(ctx context.Context, userID string, limit int) ([]models.Message, error)
}

// SessionStore keeps the scheduling state machine position of each user.
type SessionStore interface {
	// GetSession returns a fresh session when none has been saved yet.
	GetSession(ctx context.Context, userID string) (*models.SchedulingSession, error)
	SaveSession(ctx context.Context, session *models.SchedulingSession) error
}

// ConnectionStore keeps external-service credentials.
type ConnectionStore interface {
	GetConnection(ctx context.Context, userID string, provider models.Provider) (*models.Connection, error)
	SaveConnection(ctx context.Context, conn *models.Connection) error
}

// KnowledgeStore keeps the index id and file listing of each user.
type KnowledgeStore interface {
	GetKnowledge(ctx context.Context, userID string) (*models.KnowledgeRecord, error)
	SaveKnowledge(ctx context.Context, record *models.KnowledgeRecord) error
}

// SettingsStore keeps per-user instruction overrides.
type SettingsStore interface {
	// GetSettings returns empty settings when none have been saved yet.
	GetSettings(ctx context.Context, userID string) (*models.AgentSettings, error)
	SaveSettings(ctx context.Context, settings *models.AgentSettings) error
}

func cloneSession(s *models.SchedulingSession) *models.SchedulingSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Proposal = cloneProposal(s.Proposal)
	out.Draft = cloneProposal(s.Draft)
	if s.LastEvent != nil {
		ev := *s.LastEvent
		out.LastEvent = &ev
	}
	return &out
}

func cloneProposal(p *models.Proposal) *models.Proposal {
	if p == nil {
		return nil
	}
	out := *p
	if p.Event != nil {
		ev := *p.Event
		out.Event = &ev
	}
	return &out
}

func cloneKnowledge(r *models.KnowledgeRecord) *models.KnowledgeRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Files = append([]models.KnowledgeFile(nil), r.Files...)
	return &out
}

func cloneConnection(c *models.Connection) *models.Connection {
	if c == nil {
		return nil
	}
	out := *c
	out.Scopes = append([]string(nil), c.Scopes...)
	return &out
}
