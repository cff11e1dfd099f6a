package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/xaenox/frontdesk/internal/models"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collectionConversations = "conversations"
	collectionMessages      = "messages"
	collectionSessions      = "sessions"
	collectionConnections   = "connections"
	collectionKnowledge     = "knowledge"
	collectionSettings      = "agentSettings"
)

// FirestoreStorage keeps one document per user in each collection. Connections for
// every provider share the user's document, keyed by provider name.
type FirestoreStorage struct {
	client *firestore.Client
	logger *zap.Logger
}

func NewFirestoreStorage(client *firestore.Client, logger *zap.Logger) *FirestoreStorage {
	return &FirestoreStorage{client: client, logger: logger}
}

type connectionDoc struct {
	Calendar *models.Connection `firestore:"calendar,omitempty"`
	Gmail    *models.Connection `firestore:"gmail,omitempty"`
}

func (d connectionDoc) get(provider models.Provider) *models.Connection {
	switch provider {
	case models.ProviderCalendar:
		return d.Calendar
	case models.ProviderGmail:
		return d.Gmail
	}
	return nil
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (s *FirestoreStorage) AppendMessages(ctx context.Context, userID string, msgs ...models.Message) error {
	col := s.client.Collection(collectionConversations).Doc(userID).Collection(collectionMessages)
	batch := s.client.Batch()
	for _, msg := range msgs {
		batch.Set(col.Doc(msg.ID), msg)
	}
	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("error appending messages: %w", err)
	}
	return nil
}

func (s *FirestoreStorage) RecentMessages(ctx context.Context, userID string, limit int) ([]models.Message, error) {
	query := s.client.Collection(collectionConversations).Doc(userID).Collection(collectionMessages).
		OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}

	messages := make([]models.Message, len(docs))
	for i, doc := range docs {
		var msg models.Message
		if err := doc.DataTo(&msg); err != nil {
			return nil, fmt.Errorf("error decoding message %s: %w", doc.Ref.ID, err)
		}
		messages[len(docs)-1-i] = msg
	}
	return messages, nil
}

func (s *FirestoreStorage) GetSession(ctx context.Context, userID string) (*models.SchedulingSession, error) {
	snap, err := s.client.Collection(collectionSessions).Doc(userID).Get(ctx)
	if isNotFound(err) {
		return models.NewSchedulingSession(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading session: %w", err)
	}

	var session models.SchedulingSession
	if err := snap.DataTo(&session); err != nil {
		return nil, fmt.Errorf("error decoding session: %w", err)
	}
	return &session, nil
}

func (s *FirestoreStorage) SaveSession(ctx context.Context, session *models.SchedulingSession) error {
	stored := cloneSession(session)
	stored.UpdatedAt = time.Now()
	if _, err := s.client.Collection(collectionSessions).Doc(session.UserID).Set(ctx, stored); err != nil {
		return fmt.Errorf("error saving session: %w", err)
	}
	return nil
}

func (s *FirestoreStorage) GetConnection(ctx context.Context, userID string, provider models.Provider) (*models.Connection, error) {
	snap, err := s.client.Collection(collectionConnections).Doc(userID).Get(ctx)
	if isNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error loading connections: %w", err)
	}

	var doc connectionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("error decoding connections: %w", err)
	}
	conn := doc.get(provider)
	if conn == nil {
		return nil, ErrNotFound
	}
	return conn, nil
}

func (s *FirestoreStorage) SaveConnection(ctx context.Context, conn *models.Connection) error {
	stored := cloneConnection(conn)
	stored.UpdatedAt = time.Now()
	_, err := s.client.Collection(collectionConnections).Doc(conn.UserID).Set(ctx,
		map[string]interface{}{string(conn.Provider): stored},
		firestore.MergeAll,
	)
	if err != nil {
		return fmt.Errorf("error saving connection: %w", err)
	}
	return nil
}

func (s *FirestoreStorage) GetKnowledge(ctx context.Context, userID string) (*models.KnowledgeRecord, error) {
	snap, err := s.client.Collection(collectionKnowledge).Doc(userID).Get(ctx)
	if isNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error loading knowledge: %w", err)
	}

	var record models.KnowledgeRecord
	if err := snap.DataTo(&record); err != nil {
		return nil, fmt.Errorf("error decoding knowledge: %w", err)
	}
	return &record, nil
}

func (s *FirestoreStorage) SaveKnowledge(ctx context.Context, record *models.KnowledgeRecord) error {
	stored := cloneKnowledge(record)
	stored.UpdatedAt = time.Now()
	if _, err := s.client.Collection(collectionKnowledge).Doc(record.UserID).Set(ctx, stored); err != nil {
		return fmt.Errorf("error saving knowledge: %w", err)
	}
	return nil
}

func (s *FirestoreStorage) GetSettings(ctx context.Context, userID string) (*models.AgentSettings, error) {
	snap, err := s.client.Collection(collectionSettings).Doc(userID).Get(ctx)
	if isNotFound(err) {
		return &models.AgentSettings{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading settings: %w", err)
	}

	var settings models.AgentSettings
	if err := snap.DataTo(&settings); err != nil {
		return nil, fmt.Errorf("error decoding settings: %w", err)
	}
	return &settings, nil
}

func (s *FirestoreStorage) SaveSettings(ctx context.Context, settings *models.AgentSettings) error {
	stored := *settings
	stored.UpdatedAt = time.Now()
	if _, err := s.client.Collection(collectionSettings).Doc(settings.UserID).Set(ctx, stored); err != nil {
		return fmt.Errorf("error saving settings: %w", err)
	}
	return nil
}

func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}
