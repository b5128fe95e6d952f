// Package store persists the user directory, the ordered conversation log and the
// flattened per-user query log.
//
// All mutation is append-only and every append is one single-row INSERT, so a
// reader never observes a partial row and no update locking is needed. The
// conversation log and the query log record the same question/answer pair twice;
// that duplication is kept on purpose for audit compatibility.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSQL       = "sql"
	RoleSystem    = "system"
)

// ErrNotFound is returned when a user or conversation does not exist.
var ErrNotFound = errors.New("not found")

// User is an entry in the user directory.
type User struct {
	ID       int64
	Username string
	Email    string
	Role     string
	JoinedAt time.Time
}

// Conversation is the header of an ordered message log owned by one user.
type Conversation struct {
	ID        int64
	UserID    int64
	Title     string
	StartedAt time.Time
}

// Message is one immutable entry of a conversation. Seq is its 1-based position.
type Message struct {
	ID             int64
	ConversationID int64
	Seq            int64
	Role           string
	Content        string
	WrittenAt      time.Time
}

// QueryRecord is one entry of the flattened per-user query log.
type QueryRecord struct {
	ID       int64
	UserID   int64
	Question string
	Answer   string
	AskedAt  time.Time
}

// Store is a database/sql backed implementation of every persistence interface
// the agent consumes. Message appends are serialized within a process.
type Store struct {
	DB *sql.DB

	appendMu sync.Mutex
}

// New wraps an already opened and migrated store database.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// ValidRole reports whether role may be written to a conversation.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSQL, RoleSystem:
		return true
	}
	return false
}

// CreateUser adds a user to the directory.
func (s *Store) CreateUser(ctx context.Context, username, email, role string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, fmt.Errorf("create user: username is required")
	}
	if role == "" {
		role = "user"
	}
	var emailArg any
	if email != "" {
		emailArg = email
	}
	var u User
	var joined int64
	var storedEmail sql.NullString
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO users (username, email, role) VALUES (?, ?, ?)
		 RETURNING id, username, email, role, joined_at`,
		username, emailArg, role,
	).Scan(&u.ID, &u.Username, &storedEmail, &u.Role, &joined)
	if err != nil {
		return User{}, fmt.Errorf("create user %s: %w", username, err)
	}
	u.Email = storedEmail.String
	u.JoinedAt = time.Unix(joined, 0).UTC()
	return u, nil
}

// LookupUser returns the user with the given id or ErrNotFound.
func (s *Store) LookupUser(ctx context.Context, id int64) (User, error) {
	var u User
	var joined int64
	var email sql.NullString
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, username, email, role, joined_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &email, &u.Role, &joined)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user %d: %w", id, err)
	}
	u.Email = email.String
	u.JoinedAt = time.Unix(joined, 0).UTC()
	return u, nil
}

// ListUsers returns every user ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, username, email, role, joined_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var joined int64
		var email sql.NullString
		if err := rows.Scan(&u.ID, &u.Username, &email, &u.Role, &joined); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Email = email.String
		u.JoinedAt = time.Unix(joined, 0).UTC()
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateConversation starts an empty conversation for userID.
func (s *Store) CreateConversation(ctx context.Context, userID int64, title string) (Conversation, error) {
	var c Conversation
	var started int64
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO conversations (user_id, title) VALUES (?, ?)
		 RETURNING id, user_id, title, started_at`,
		userID, title,
	).Scan(&c.ID, &c.UserID, &c.Title, &started)
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation for user %d: %w", userID, err)
	}
	c.StartedAt = time.Unix(started, 0).UTC()
	return c, nil
}

// GetConversation returns the conversation with the given id or ErrNotFound.
func (s *Store) GetConversation(ctx context.Context, id int64) (Conversation, error) {
	var c Conversation
	var started int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, user_id, title, started_at FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.UserID, &c.Title, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, fmt.Errorf("conversation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation %d: %w", id, err)
	}
	c.StartedAt = time.Unix(started, 0).UTC()
	return c, nil
}

// ListConversations returns a user's conversations, oldest first.
func (s *Store) ListConversations(ctx context.Context, userID int64) ([]Conversation, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_id, title, started_at FROM conversations WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var started int64
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &started); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c.StartedAt = time.Unix(started, 0).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// AppendMessage writes the next message of a conversation. The sequence position
// is computed by the same INSERT statement, which makes each append atomic, and
// concurrent appends wait for each other instead of failing.
func (s *Store) AppendMessage(ctx context.Context, conversationID int64, role, content string) (Message, error) {
	if !ValidRole(role) {
		return Message{}, fmt.Errorf("append message: invalid role %q", role)
	}
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	var m Message
	var written int64
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO conversation_messages (conversation_id, seq, role, content)
		 SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?
		 FROM conversation_messages WHERE conversation_id = ?
		 RETURNING id, conversation_id, seq, role, content, written_at`,
		conversationID, role, content, conversationID,
	).Scan(&m.ID, &m.ConversationID, &m.Seq, &m.Role, &m.Content, &written)
	if err != nil {
		return Message{}, fmt.Errorf("append %s message to conversation %d: %w", role, conversationID, err)
	}
	m.WrittenAt = time.Unix(written, 0).UTC()
	return m, nil
}

// ListMessages returns the full message log of a conversation in sequence order.
func (s *Store) ListMessages(ctx context.Context, conversationID int64) ([]Message, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, conversation_id, seq, role, content, written_at
		 FROM conversation_messages WHERE conversation_id = ? ORDER BY seq ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages for conversation %d: %w", conversationID, err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var written int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Seq, &m.Role, &m.Content, &written); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.WrittenAt = time.Unix(written, 0).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// AppendQuery adds a question/answer pair to the user's flattened query log.
func (s *Store) AppendQuery(ctx context.Context, userID int64, question, answer string) (QueryRecord, error) {
	var q QueryRecord
	var asked int64
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO queries (user_id, query_text, response_text) VALUES (?, ?, ?)
		 RETURNING id, user_id, query_text, response_text, asked_at`,
		userID, question, answer,
	).Scan(&q.ID, &q.UserID, &q.Question, &q.Answer, &asked)
	if err != nil {
		return QueryRecord{}, fmt.Errorf("append query for user %d: %w", userID, err)
	}
	q.AskedAt = time.Unix(asked, 0).UTC()
	return q, nil
}

// ListQueries returns a user's query log, oldest first.
func (s *Store) ListQueries(ctx context.Context, userID int64) ([]QueryRecord, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_id, query_text, response_text, asked_at
		 FROM queries WHERE user_id = ? ORDER BY asked_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list queries for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []QueryRecord
	for rows.Next() {
		var q QueryRecord
		var asked int64
		if err := rows.Scan(&q.ID, &q.UserID, &q.Question, &q.Answer, &asked); err != nil {
			return nil, fmt.Errorf("scan query: %w", err)
		}
		q.AskedAt = time.Unix(asked, 0).UTC()
		out = append(out, q)
	}
	return out, rows.Err()
}
