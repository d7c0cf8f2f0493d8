package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/chatkit-demo/internal/domain"
)

// SQLiteStore implements Store on top of a migrated DB.
type SQLiteStore struct {
	db *DB
}

// NewSQLiteStore creates a store using the given database.
func NewSQLiteStore(db *DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// timeLayout is fixed width so that text order in SQLite is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

// parseTime also accepts rows written with trailing zeros trimmed.
func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

func (s *SQLiteStore) EnsureAgent(ctx context.Context, agent domain.AgentProfile) error {
	addr := ""
	if agent.Address != nil {
		addr = agent.Address.String()
	}
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO agents (id, name, description, address, connection)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   description = excluded.description,
		   address = excluded.address,
		   connection = excluded.connection`,
		agent.ID.String(), agent.Name, agent.Description, addr, agent.ConnectionMode.String(),
	)
	if err != nil {
		return fmt.Errorf("saving agent %s: %w", agent.ID, err)
	}
	return nil
}

func (s *SQLiteStore) SaveConversation(ctx context.Context, rec domain.ConversationRecord) error {
	known, err := s.exists(ctx, `SELECT 1 FROM agents WHERE id = ?`, rec.AgentID.String())
	if err != nil {
		return err
	}
	if !known {
		return ErrUnknownAgent
	}

	_, err = s.db.sql.ExecContext(ctx,
		`INSERT INTO conversations
		   (session_id, agent_id, agent_name, title, preview, connection, created_at, updated_at, pinned)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   agent_name = excluded.agent_name,
		   title = excluded.title,
		   preview = excluded.preview,
		   connection = excluded.connection,
		   updated_at = excluded.updated_at,
		   pinned = excluded.pinned`,
		rec.SessionID.String(), rec.AgentID.String(), rec.AgentName, rec.Title,
		rec.LastMessagePreview, rec.Connection.String(),
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt), rec.Pinned,
	)
	if err != nil {
		return fmt.Errorf("saving conversation %s: %w", rec.SessionID, err)
	}
	s.db.log.Trace().Str("session", rec.SessionID.String()).Str("title", rec.Title).Msg("conversation saved")
	return nil
}

func (s *SQLiteStore) DeleteConversation(ctx context.Context, sessionID uuid.UUID) error {
	if _, err := s.db.sql.ExecContext(ctx,
		`DELETE FROM conversations WHERE session_id = ?`, sessionID.String(),
	); err != nil {
		return fmt.Errorf("deleting conversation %s: %w", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteAllConversations(ctx context.Context, agentID uuid.UUID) error {
	res, err := s.db.sql.ExecContext(ctx,
		`DELETE FROM conversations WHERE agent_id = ?`, agentID.String(),
	)
	if err != nil {
		return fmt.Errorf("deleting conversations for agent %s: %w", agentID, err)
	}
	n, _ := res.RowsAffected()
	s.db.log.Debug().Str("agent", agentID.String()).Int64("deleted", n).Msg("conversations cleared")
	return nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, agentID uuid.UUID) ([]domain.ConversationRecord, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT session_id, agent_id, agent_name, title, preview, connection, created_at, updated_at, pinned
		 FROM conversations WHERE agent_id = ?
		 ORDER BY created_at, session_id`, agentID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []domain.ConversationRecord
	for rows.Next() {
		rec, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanConversation(rows *sql.Rows) (domain.ConversationRecord, error) {
	var (
		rec                      domain.ConversationRecord
		sessionID, agentID, conn string
		createdAt, updatedAt     string
	)
	if err := rows.Scan(
		&sessionID, &agentID, &rec.AgentName, &rec.Title, &rec.LastMessagePreview,
		&conn, &createdAt, &updatedAt, &rec.Pinned,
	); err != nil {
		return rec, fmt.Errorf("scanning conversation: %w", err)
	}

	var err error
	if rec.SessionID, err = uuid.Parse(sessionID); err != nil {
		return rec, fmt.Errorf("conversation id %q: %w", sessionID, err)
	}
	if rec.AgentID, err = uuid.Parse(agentID); err != nil {
		return rec, fmt.Errorf("agent id %q: %w", agentID, err)
	}
	if rec.Connection, err = domain.ParseConnectionMode(conn); err != nil {
		return rec, err
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return rec, fmt.Errorf("created_at: %w", err)
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return rec, fmt.Errorf("updated_at: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, msg domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	res, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, timestamp)
		 SELECT ?, ?, ?, ?, ?
		 WHERE EXISTS (SELECT 1 FROM conversations WHERE session_id = ?)`,
		msg.ID, msg.SessionID.String(), msg.Role, msg.Content, formatTime(ts), msg.SessionID.String(),
	)
	if err != nil {
		return fmt.Errorf("appending message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUnknownConversation
	}
	return nil
}

func (s *SQLiteStore) Messages(ctx context.Context, sessionID uuid.UUID) ([]domain.Message, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT id, role, content, timestamp FROM messages
		 WHERE session_id = ? ORDER BY seq`, sessionID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		msg := domain.Message{SessionID: sessionID}
		var ts string
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &ts); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if msg.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("message timestamp: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// Stats reports row counts for the status command.
func (s *SQLiteStore) Stats(ctx context.Context) (agents, conversations, messages int, err error) {
	err = s.db.sql.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM agents),
		        (SELECT COUNT(*) FROM conversations),
		        (SELECT COUNT(*) FROM messages)`,
	).Scan(&agents, &conversations, &messages)
	return
}

func (s *SQLiteStore) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := s.db.sql.QueryRowContext(ctx, query, args...).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}
