package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/xaenox/frontdesk/internal/models"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations_postgres.sql migrations_sqlite.sql
var migrations embed.FS

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// Path is the SQLite database file; ":memory:" keeps everything in process.
	Path string
}

// DSN builds the driver specific connection string.
func (c DatabaseConfig) DSN() string {
	if c.Driver == DriverSQLite {
		return c.Path
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// SQLStorage implements Storage on Postgres or SQLite.
type SQLStorage struct {
	db     *sql.DB
	driver string
	logger *zap.Logger
}

func NewSQLStorage(ctx context.Context, config DatabaseConfig, logger *zap.Logger) (*SQLStorage, error) {
	if config.Driver != DriverPostgres && config.Driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
	}

	db, err := sql.Open(config.Driver, config.DSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if config.Driver == DriverSQLite {
		// a single connection keeps ":memory:" databases shared and serialises writers
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &SQLStorage{db: db, driver: config.Driver, logger: logger}
	if err := storage.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("SQL storage ready", zap.String("driver", config.Driver))
	return storage, nil
}

func (s *SQLStorage) initializeSchema(ctx context.Context) error {
	migrationSQL, err := migrations.ReadFile("migrations_" + s.driver + ".sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	for _, stmt := range strings.Split(string(migrationSQL), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error executing migrations: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders into $n for Postgres.
func (s *SQLStorage) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStorage) timeArg(t time.Time) any {
	if s.driver == DriverSQLite {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC()
}

// sqlTime scans timestamps stored natively or as RFC 3339 text.
type sqlTime struct{ time.Time }

func (t *sqlTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

func (t *sqlTime) parse(v string) error {
	parsed, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return fmt.Errorf("error parsing time %q: %w", v, err)
	}
	t.Time = parsed
	return nil
}

func (s *SQLStorage) AppendMessages(ctx context.Context, userID string, msgs ...models.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	var position int64
	err = tx.QueryRowContext(ctx,
		s.rebind(`SELECT COALESCE(MAX(position), 0) FROM messages WHERE user_id = ?`),
		userID,
	).Scan(&position)
	if err != nil {
		return fmt.Errorf("error reading message position: %w", err)
	}

	query := s.rebind(`
		INSERT INTO messages (id, user_id, position, role, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	for _, msg := range msgs {
		position++
		if _, err := tx.ExecContext(ctx, query,
			msg.ID, userID, position, string(msg.Role), msg.Text, s.timeArg(msg.CreatedAt),
		); err != nil {
			return fmt.Errorf("error inserting message: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLStorage) RecentMessages(ctx context.Context, userID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 1 << 20
	}
	query := s.rebind(`
		SELECT id, role, text, created_at
		FROM messages
		WHERE user_id = ?
		ORDER BY position DESC
		LIMIT ?`)

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var (
			msg       models.Message
			role      string
			createdAt sqlTime
		)
		if err := rows.Scan(&msg.ID, &role, &msg.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		msg.Role = models.Role(role)
		msg.CreatedAt = createdAt.Time
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	// newest first from the query, oldest first for callers
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *SQLStorage) GetSession(ctx context.Context, userID string) (*models.SchedulingSession, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT data FROM scheduling_sessions WHERE user_id = ?`),
		userID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NewSchedulingSession(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying session: %w", err)
	}

	var session models.SchedulingSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("error decoding session: %w", err)
	}
	return &session, nil
}

func (s *SQLStorage) SaveSession(ctx context.Context, session *models.SchedulingSession) error {
	now := time.Now()
	stored := cloneSession(session)
	stored.UpdatedAt = now
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("error encoding session: %w", err)
	}

	query := s.rebind(`
		INSERT INTO scheduling_sessions (user_id, state, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET state = excluded.state, data = excluded.data, updated_at = excluded.updated_at`)
	if _, err := s.db.ExecContext(ctx, query, session.UserID, string(session.State), string(data), s.timeArg(now)); err != nil {
		return fmt.Errorf("error saving session: %w", err)
	}
	return nil
}

func (s *SQLStorage) GetConnection(ctx context.Context, userID string, provider models.Provider) (*models.Connection, error) {
	query := s.rebind(`
		SELECT tenant_id, refresh_token, scopes, email_address, updated_at
		FROM connections
		WHERE user_id = ? AND provider = ?`)

	conn := &models.Connection{UserID: userID, Provider: provider}
	var (
		scopes    string
		updatedAt sqlTime
	)
	err := s.db.QueryRowContext(ctx, query, userID, string(provider)).Scan(
		&conn.TenantID, &conn.RefreshToken, &scopes, &conn.EmailAddress, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying connection: %w", err)
	}
	if err := json.Unmarshal([]byte(scopes), &conn.Scopes); err != nil {
		return nil, fmt.Errorf("error decoding scopes: %w", err)
	}
	conn.UpdatedAt = updatedAt.Time
	return conn, nil
}

func (s *SQLStorage) SaveConnection(ctx context.Context, conn *models.Connection) error {
	scopes, err := json.Marshal(conn.Scopes)
	if err != nil {
		return fmt.Errorf("error encoding scopes: %w", err)
	}
	if conn.Scopes == nil {
		scopes = []byte("[]")
	}

	query := s.rebind(`
		INSERT INTO connections (user_id, provider, tenant_id, refresh_token, scopes, email_address, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, provider) DO UPDATE
		SET tenant_id = excluded.tenant_id,
		    refresh_token = excluded.refresh_token,
		    scopes = excluded.scopes,
		    email_address = excluded.email_address,
		    updated_at = excluded.updated_at`)
	_, err = s.db.ExecContext(ctx, query,
		conn.UserID, string(conn.Provider), conn.TenantID, conn.RefreshToken,
		string(scopes), conn.EmailAddress, s.timeArg(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("error saving connection: %w", err)
	}
	return nil
}

func (s *SQLStorage) GetKnowledge(ctx context.Context, userID string) (*models.KnowledgeRecord, error) {
	record := &models.KnowledgeRecord{UserID: userID}
	var (
		files     string
		updatedAt sqlTime
	)
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT index_id, files, updated_at FROM knowledge WHERE user_id = ?`),
		userID,
	).Scan(&record.IndexID, &files, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying knowledge: %w", err)
	}
	if err := json.Unmarshal([]byte(files), &record.Files); err != nil {
		return nil, fmt.Errorf("error decoding knowledge files: %w", err)
	}
	record.UpdatedAt = updatedAt.Time
	return record, nil
}

func (s *SQLStorage) SaveKnowledge(ctx context.Context, record *models.KnowledgeRecord) error {
	files := record.Files
	if files == nil {
		files = []models.KnowledgeFile{}
	}
	data, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("error encoding knowledge files: %w", err)
	}

	query := s.rebind(`
		INSERT INTO knowledge (user_id, index_id, files, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET index_id = excluded.index_id, files = excluded.files, updated_at = excluded.updated_at`)
	if _, err := s.db.ExecContext(ctx, query, record.UserID, record.IndexID, string(data), s.timeArg(time.Now())); err != nil {
		return fmt.Errorf("error saving knowledge: %w", err)
	}
	return nil
}

func (s *SQLStorage) GetSettings(ctx context.Context, userID string) (*models.AgentSettings, error) {
	settings := &models.AgentSettings{UserID: userID}
	var updatedAt sqlTime
	err := s.db.QueryRowContext(ctx,
		s.rebind(`
		SELECT scheduling_prompt, information_prompt, classification_prompt, updated_at
		FROM agent_settings WHERE user_id = ?`),
		userID,
	).Scan(&settings.SchedulingPrompt, &settings.InformationPrompt, &settings.ClassificationPrompt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return settings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying settings: %w", err)
	}
	settings.UpdatedAt = updatedAt.Time
	return settings, nil
}

func (s *SQLStorage) SaveSettings(ctx context.Context, settings *models.AgentSettings) error {
	query := s.rebind(`
		INSERT INTO agent_settings (user_id, scheduling_prompt, information_prompt, classification_prompt, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET scheduling_prompt = excluded.scheduling_prompt,
		    information_prompt = excluded.information_prompt,
		    classification_prompt = excluded.classification_prompt,
		    updated_at = excluded.updated_at`)
	_, err := s.db.ExecContext(ctx, query,
		settings.UserID, settings.SchedulingPrompt, settings.InformationPrompt,
		settings.ClassificationPrompt, s.timeArg(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("error saving settings: %w", err)
	}
	return nil
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}
