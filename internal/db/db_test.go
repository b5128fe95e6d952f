package db

import (
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDB(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatal(err)
	}
	if err := InitSchema(db); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInitSchema(t *testing.T) {
	db := testDB(t)

	tables := map[string]bool{}
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatal(err)
		}
		tables[name] = true
	}

	for _, want := range []string{"users", "conversations", "conversation_messages", "queries", "events"} {
		if !tables[want] {
			t.Errorf("table %q not created", want)
		}
	}
}

func TestInitSchema_Idempotent(t *testing.T) {
	db := testDB(t)
	if err := InitSchema(db); err != nil {
		t.Fatalf("second InitSchema failed: %v", err)
	}
}

func TestLogEvent_Basic(t *testing.T) {
	db := testDB(t)

	id1, err := LogEvent(db, nil, EventProcessStarted, map[string]any{"role": "server", "pid": 123})
	if err != nil {
		t.Fatal(err)
	}
	if id1 <= 0 {
		t.Errorf("expected positive id, got %d", id1)
	}

	id2, err := LogEvent(db, nil, EventAgentStarted, map[string]any{"user_id": 456})
	if err != nil {
		t.Fatal(err)
	}
	if id2 <= id1 {
		t.Errorf("expected id2 > id1, got %d <= %d", id2, id1)
	}

	var payloadStr string
	err = db.QueryRow(`SELECT payload FROM events WHERE id = ?`, id1).Scan(&payloadStr)
	if err != nil {
		t.Fatal(err)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(payloadStr), &payload); err != nil {
		t.Fatalf("invalid payload JSON: %v", err)
	}
	if payload["role"] != "server" {
		t.Errorf("expected role=server, got %v", payload["role"])
	}
}

func TestLogEvent_WithParent(t *testing.T) {
	db := testDB(t)

	parentID, err := LogEvent(db, nil, EventAgentStarted, map[string]any{"user_id": 1})
	if err != nil {
		t.Fatal(err)
	}
	childID, err := LogEvent(db, &parentID, EventSQLSynthesized, nil)
	if err != nil {
		t.Fatal(err)
	}

	var storedParent int64
	if err := db.QueryRow(`SELECT parent_id FROM events WHERE id = ?`, childID).Scan(&storedParent); err != nil {
		t.Fatal(err)
	}
	if storedParent != parentID {
		t.Errorf("expected parent_id=%d, got %d", parentID, storedParent)
	}

	var payload sql.NullString
	if err := db.QueryRow(`SELECT payload FROM events WHERE id = ?`, childID).Scan(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.Valid {
		t.Errorf("expected NULL payload, got %q", payload.String)
	}

	n, err := CountEvents(db, EventSQLSynthesized)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 sql.synthesized event, got %d", n)
	}
}

func TestOpenTarget_SQLiteIsReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	store, err := OpenDB(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if err := InitSchema(store); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Exec(`INSERT INTO users (username) VALUES ('alice')`); err != nil {
		t.Fatal(err)
	}

	target, err := OpenTarget(DriverSQLite, "", path)
	if err != nil {
		t.Fatal(err)
	}
	defer target.Close()

	var n int
	if err := target.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 user through target, got %d", n)
	}
	if _, err := target.Exec(`INSERT INTO users (username) VALUES ('mallory')`); err == nil {
		t.Fatal("expected read-only target to refuse writes")
	}
}

func TestOpenTarget_Unsupported(t *testing.T) {
	if _, err := OpenTarget("oracle", "x", ""); err == nil {
		t.Fatal("expected unsupported driver error")
	}
	if _, err := OpenTarget(DriverPostgres, "", ""); err == nil {
		t.Fatal("expected missing dsn error")
	}
}
