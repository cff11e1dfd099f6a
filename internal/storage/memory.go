package storage

import (
	"context"
	"sync"
	"time"

	"github.com/xaenox/frontdesk/internal/models"
)

type MemoryStorage struct {
	mu          sync.RWMutex
	messages    map[string][]models.Message
	sessions    map[string]*models.SchedulingSession
	connections map[string]map[models.Provider]*models.Connection
	knowledge   map[string]*models.KnowledgeRecord
	settings    map[string]*models.AgentSettings
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		messages:    make(map[string][]models.Message),
		sessions:    make(map[string]*models.SchedulingSession),
		connections: make(map[string]map[models.Provider]*models.Connection),
		knowledge:   make(map[string]*models.KnowledgeRecord),
		settings:    make(map[string]*models.AgentSettings),
	}
}

// Conversation methods
func (s *MemoryStorage) AppendMessages(ctx context.Context, userID string, msgs ...models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[userID] = append(s.messages[userID], msgs...)
	return nil
}

func (s *MemoryStorage) RecentMessages(ctx context.Context, userID string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[userID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]models.Message(nil), all...), nil
}

// Session methods
func (s *MemoryStorage) GetSession(ctx context.Context, userID string) (*models.SchedulingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if session, exists := s.sessions[userID]; exists {
		return cloneSession(session), nil
	}
	return models.NewSchedulingSession(userID), nil
}

func (s *MemoryStorage) SaveSession(ctx context.Context, session *models.SchedulingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneSession(session)
	stored.UpdatedAt = time.Now()
	s.sessions[session.UserID] = stored
	return nil
}

// Connection methods
func (s *MemoryStorage) GetConnection(ctx context.Context, userID string, provider models.Provider) (*models.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if conn, exists := s.connections[userID][provider]; exists {
		return cloneConnection(conn), nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) SaveConnection(ctx context.Context, conn *models.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byProvider, exists := s.connections[conn.UserID]
	if !exists {
		byProvider = make(map[models.Provider]*models.Connection)
		s.connections[conn.UserID] = byProvider
	}
	stored := cloneConnection(conn)
	stored.UpdatedAt = time.Now()
	byProvider[conn.Provider] = stored
	return nil
}

// Knowledge methods
func (s *MemoryStorage) GetKnowledge(ctx context.Context, userID string) (*models.KnowledgeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if record, exists := s.knowledge[userID]; exists {
		return cloneKnowledge(record), nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) SaveKnowledge(ctx context.Context, record *models.KnowledgeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneKnowledge(record)
	stored.UpdatedAt = time.Now()
	s.knowledge[record.UserID] = stored
	return nil
}

// Settings methods
func (s *MemoryStorage) GetSettings(ctx context.Context, userID string) (*models.AgentSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if settings, exists := s.settings[userID]; exists {
		out := *settings
		return &out, nil
	}
	return &models.AgentSettings{UserID: userID}, nil
}

func (s *MemoryStorage) SaveSettings(ctx context.Context, settings *models.AgentSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *settings
	stored.UpdatedAt = time.Now()
	s.settings[settings.UserID] = &stored
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
