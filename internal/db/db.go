package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Event type constants: process lifecycle
const (
	EventProcessStarted = "process.started"
	EventServerStarted  = "server.started"
)

// Event type constants: per-question pipeline
const (
	EventAgentStarted     = "agent.started"
	EventAgentCompleted   = "agent.completed"
	EventContextAssembled = "context.assembled"
	EventSQLSynthesized   = "sql.synthesized"
	EventSynthesisFailed  = "synthesis.failed"
	EventSQLRejected      = "sql.rejected"
	EventQueryExecuted    = "query.executed"
	EventQueryFailed      = "query.failed"
	EventCircuitOpened    = "circuit.opened"
	EventCircuitHalfOpen  = "circuit.half_open"
	EventCircuitClosed    = "circuit.closed"
)

// Driver names registered by the imported database/sql drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// OpenDB opens (or creates) the SQLite store at the given path, ensuring
// that the parent directory exists.
func OpenDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open(DriverSQLite, path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db at %s: %w", path, err)
	}

	return db, nil
}

// OpenTarget opens the relational engine that validated statements run against.
// For sqlite3 an empty dsn means storePath; a bare path is opened with mode=ro and
// query_only so the engine itself refuses writes. For pgx the dsn is used as given
// and read-only access is enforced per transaction by the executor.
func OpenTarget(driver, dsn, storePath string) (*sql.DB, error) {
	switch driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = storePath
		}
		if !strings.HasPrefix(dsn, "file:") {
			dsn = "file:" + dsn + "?mode=ro&_query_only=true&_busy_timeout=5000"
		}
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("target dsn is required for driver %s", driver)
		}
	default:
		return nil, fmt.Errorf("unsupported target driver: %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open target %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping target %s: %w", driver, err)
	}
	return db, nil
}

// InitSchema creates all tables: users, conversations, conversation_messages,
// queries, events. Column names stay clear of the validator's deny list so that
// the model can query the store without tripping it.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			email TEXT UNIQUE,
			role TEXT NOT NULL DEFAULT 'user',
			joined_at INTEGER NOT NULL DEFAULT (unixepoch())
		);

		CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			started_at INTEGER NOT NULL DEFAULT (unixepoch())
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_user_id ON conversations(user_id);

		CREATE TABLE IF NOT EXISTS conversation_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			written_at INTEGER NOT NULL DEFAULT (unixepoch()),
			UNIQUE (conversation_id, seq)
		);

		CREATE TABLE IF NOT EXISTS queries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			query_text TEXT NOT NULL,
			response_text TEXT NOT NULL,
			asked_at INTEGER NOT NULL DEFAULT (unixepoch())
		);
		CREATE INDEX IF NOT EXISTS idx_queries_user_id ON queries(user_id, id);

		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY,
			timestamp INTEGER NOT NULL DEFAULT (unixepoch()),
			parent_id INTEGER,
			event_type TEXT NOT NULL,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_parent_id ON events(parent_id);
	`)
	return err
}

// LogEvent inserts an event into the events table and returns its auto-generated id.
// parentID may be nil for root events. payload is serialized to JSON; nil payload stores NULL.
func LogEvent(db *sql.DB, parentID *int64, eventType string, payload map[string]any) (int64, error) {
	var payloadJSON any
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("marshal event payload: %w", err)
		}
		payloadJSON = string(data)
	}

	res, err := db.Exec(
		`INSERT INTO events (parent_id, event_type, payload) VALUES (?, ?, ?)`,
		parentID, eventType, payloadJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("insert event %s: %w", eventType, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get event id: %w", err)
	}
	return id, nil
}

// CountEvents returns how many events of the given type have been recorded.
func CountEvents(db *sql.DB, eventType string) (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM events WHERE event_type = ?`, eventType).Scan(&count)
	return count, err
}
