package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/stupiduntilnot/querygate/internal/agent"
)

func setupEnv(t *testing.T, script string) {
	t.Helper()
	t.Setenv("QUERYGATE_CONFIG", "")
	t.Setenv("QUERYGATE_DB_PATH", filepath.Join(t.TempDir(), "querygate.db"))
	t.Setenv("QUERYGATE_LLM_PROVIDER", "dummy")
	t.Setenv("QUERYGATE_LLM_API_KEY", "")
	t.Setenv("QUERYGATE_DUMMY_SCRIPT", script)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("%v failed: %v", args, err)
	}
	return out
}

func TestInitAndUsers(t *testing.T) {
	setupEnv(t, "")

	if out := mustRun(t, "init"); !strings.Contains(out, "store ready") {
		t.Fatalf("unexpected init output: %q", out)
	}
	if out := mustRun(t, "init"); !strings.Contains(out, "store ready") {
		t.Fatalf("second init should succeed, got %q", out)
	}
	if out := mustRun(t, "user", "add", "alice", "--email", "a@example.com"); !strings.Contains(out, "created user 1 (alice)") {
		t.Fatalf("unexpected add output: %q", out)
	}
	if _, err := run(t, "user", "add", "alice"); err == nil {
		t.Fatal("expected duplicate user error")
	}
	out := mustRun(t, "user", "list")
	if !strings.Contains(out, "alice") || !strings.Contains(out, "a@example.com") {
		t.Fatalf("unexpected list output: %q", out)
	}
}

func TestAskHistoryAndReplay(t *testing.T) {
	setupEnv(t, "SELECT COUNT(*) FROM users;")
	mustRun(t, "user", "add", "alice")
	mustRun(t, "user", "add", "bob")

	out := mustRun(t, "ask", "--user", "1", "--json", "How", "many", "users?")
	var ex agent.Exchange
	if err := json.Unmarshal([]byte(out), &ex); err != nil {
		t.Fatalf("invalid json %q: %v", out, err)
	}
	if ex.Answer != "2" || ex.Question != "How many users?" || ex.ConversationID != 1 {
		t.Fatalf("unexpected exchange: %+v", ex)
	}

	t.Setenv("QUERYGATE_DUMMY_SCRIPT", "DELETE FROM users")
	out = mustRun(t, "ask", "--user", "1", "--conversation", "1", "remove", "bob")
	if !strings.Contains(out, "DELETE FROM users") || !strings.Contains(out, "I can only answer safe database-related questions.") {
		t.Fatalf("unexpected ask output: %q", out)
	}

	out = mustRun(t, "history", "--user", "1", "--format", "json")
	var entries []agent.HistoryEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Answer != "2" || entries[1].Answer != agent.Refusal {
		t.Fatalf("unexpected history: %+v", entries)
	}

	out = mustRun(t, "history", "--user", "1", "--format", "yaml")
	var fromYAML []map[string]any
	if err := yaml.Unmarshal([]byte(out), &fromYAML); err != nil {
		t.Fatal(err)
	}
	if len(fromYAML) != 2 || fromYAML[0]["question"] != "How many users?" {
		t.Fatalf("unexpected yaml history: %v", fromYAML)
	}

	out = mustRun(t, "conversation", "show", "1")
	for _, want := range []string{"user", "sql", "assistant", "SELECT COUNT(*) FROM users;", "remove bob"} {
		if !strings.Contains(out, want) {
			t.Errorf("replay missing %q:\n%s", want, out)
		}
	}
	if out := mustRun(t, "conversation", "list", "--user", "1"); !strings.Contains(out, "#1") {
		t.Fatalf("unexpected conversation list: %q", out)
	}
}

func TestAsk_UnknownUser(t *testing.T) {
	setupEnv(t, "SELECT COUNT(*) FROM users;")
	if _, err := run(t, "ask", "--user", "42", "anything"); err == nil || !strings.Contains(err.Error(), "user not found") {
		t.Fatalf("expected user not found, got %v", err)
	}
}

func TestHistory_BadFormat(t *testing.T) {
	setupEnv(t, "")
	mustRun(t, "user", "add", "alice")
	if _, err := run(t, "history", "--user", "1", "--format", "xml"); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", false)
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output: %q", buf.String())
	}

	buf.Reset()
	newLogger(&buf, "error", true).Debug("verbose wins")
	if !strings.Contains(buf.String(), "verbose wins") {
		t.Fatalf("expected debug output with verbose, got %q", buf.String())
	}
}

func TestEvents_ShowsLatestRun(t *testing.T) {
	setupEnv(t, "SELECT COUNT(*) FROM users;")
	mustRun(t, "user", "add", "alice")

	if _, err := run(t, "events"); err == nil {
		t.Fatal("expected no root event before any ask")
	}

	mustRun(t, "ask", "--user", "1", "How many users?")

	out := mustRun(t, "events")
	for _, want := range []string{"process.started", "role=ask", "agent.started", "sql.synthesized", "query.executed", "agent.completed"} {
		if !strings.Contains(out, want) {
			t.Errorf("event tree missing %q:\n%s", want, out)
		}
	}

	out = mustRun(t, "events", "--conversation", "1", "--no-payload", "-L", "1")
	if !strings.Contains(out, "agent.started") || strings.Contains(out, "conversation_id=") || !strings.Contains(out, "[...]") {
		t.Fatalf("unexpected truncated tree:\n%s", out)
	}

	out = mustRun(t, "events", "--json")
	var node map[string]any
	if err := json.Unmarshal([]byte(out), &node); err != nil {
		t.Fatalf("invalid json %q: %v", out, err)
	}
	if node["event_type"] != "process.started" {
		t.Fatalf("unexpected root: %v", node["event_type"])
	}
}
