// Package events reads the diagnostic event trail back as a tree.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/stupiduntilnot/querygate/internal/db"
)

// ErrNoRoot is returned when no event matches the requested root.
var ErrNoRoot = errors.New("no matching root event")

// Event is one row of the events table with its children attached.
type Event struct {
	ID        int64
	Timestamp int64
	ParentID  sql.NullInt64
	Type      string
	Payload   map[string]any
	Children  []*Event
}

// LatestProcess returns the id of the most recent process.started event.
func LatestProcess(ctx context.Context, database *sql.DB) (int64, error) {
	return scanRoot(database.QueryRowContext(ctx,
		`SELECT id FROM events WHERE event_type = ? ORDER BY id DESC LIMIT 1`,
		db.EventProcessStarted))
}

// LatestRun returns the id of the most recent agent.started event of a conversation.
func LatestRun(ctx context.Context, database *sql.DB, conversationID int64) (int64, error) {
	return scanRoot(database.QueryRowContext(ctx,
		`SELECT id FROM events WHERE event_type = ?
		 AND json_extract(payload, '$.conversation_id') = ?
		 ORDER BY id DESC LIMIT 1`,
		db.EventAgentStarted, conversationID))
}

func scanRoot(row *sql.Row) (int64, error) {
	var id int64
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoRoot
	}
	return id, err
}

// Subtree loads the event rootID and all of its descendants as a tree.
func Subtree(ctx context.Context, database *sql.DB, rootID int64) (*Event, error) {
	rows, err := database.QueryContext(ctx, `
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM events WHERE id = ?
			UNION ALL
			SELECT e.id FROM events e JOIN subtree s ON e.parent_id = s.id
		)
		SELECT e.id, e.timestamp, e.parent_id, e.event_type, e.payload
		FROM events e
		WHERE e.id IN (SELECT id FROM subtree)
		ORDER BY e.id ASC
	`, rootID)
	if err != nil {
		return nil, fmt.Errorf("query subtree %d: %w", rootID, err)
	}
	defer rows.Close()

	var flat []*Event
	for rows.Next() {
		ev := &Event{}
		var payload sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.ParentID, &ev.Type, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if payload.Valid && payload.String != "" {
			// unparsable payloads are shown without fields
			_ = json.Unmarshal([]byte(payload.String), &ev.Payload)
		}
		flat = append(flat, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	root := link(flat, rootID)
	if root == nil {
		return nil, fmt.Errorf("event %d: %w", rootID, ErrNoRoot)
	}
	return root, nil
}

func link(flat []*Event, rootID int64) *Event {
	byID := make(map[int64]*Event, len(flat))
	for _, ev := range flat {
		byID[ev.ID] = ev
	}
	for _, ev := range flat {
		if ev.ParentID.Valid && ev.ParentID.Int64 != ev.ID {
			if parent, ok := byID[ev.ParentID.Int64]; ok {
				parent.Children = append(parent.Children, ev)
			}
		}
	}
	for _, ev := range flat {
		sort.Slice(ev.Children, func(i, j int) bool { return ev.Children[i].ID < ev.Children[j].ID })
	}
	return byID[rootID]
}

// RenderOptions controls tree rendering. MaxDepth 0 means unlimited.
type RenderOptions struct {
	MaxDepth  int
	NoPayload bool
}

// Render writes the tree with box-drawing connectors.
func Render(w io.Writer, root *Event, opts RenderOptions) {
	render(w, root, "", true, 1, opts)
}

func render(w io.Writer, ev *Event, prefix string, isLast bool, depth int, opts RenderOptions) {
	connector := "├── "
	if isLast {
		connector = "└── "
	}
	if depth == 1 {
		fmt.Fprintln(w, Line(ev, opts.NoPayload))
	} else {
		fmt.Fprintln(w, prefix+connector+Line(ev, opts.NoPayload))
	}

	childPrefix := prefix
	if depth > 1 {
		if isLast {
			childPrefix += "    "
		} else {
			childPrefix += "│   "
		}
	}
	if opts.MaxDepth > 0 && depth >= opts.MaxDepth {
		if len(ev.Children) > 0 {
			fmt.Fprintln(w, childPrefix+"└── [...]")
		}
		return
	}
	for i, child := range ev.Children {
		render(w, child, childPrefix, i == len(ev.Children)-1, depth+1, opts)
	}
}

// Line formats one event: [id] timestamp  type  key=value ...
func Line(ev *Event, noPayload bool) string {
	var b strings.Builder
	ts := time.Unix(ev.Timestamp, 0).UTC().Format(time.DateTime)
	fmt.Fprintf(&b, "[%d] %s  %s", ev.ID, ts, ev.Type)
	if noPayload {
		return b.String()
	}
	keys := make([]string, 0, len(ev.Payload))
	for k := range ev.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s=%s", k, formatValue(ev.Payload[k]))
	}
	return b.String()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		val = strings.ReplaceAll(val, "\n", " ")
		if len(val) > 80 {
			return fmt.Sprintf("%q", val[:80]+"...")
		}
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Node is the JSON shape of a rendered tree.
type Node struct {
	ID        int64          `json:"id"`
	Timestamp int64          `json:"timestamp"`
	Type      string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Children  []Node         `json:"children,omitempty"`
}

// ToNode converts the tree for JSON output, honoring the same options as Render.
func ToNode(ev *Event, opts RenderOptions) Node {
	return toNode(ev, 1, opts)
}

func toNode(ev *Event, depth int, opts RenderOptions) Node {
	n := Node{ID: ev.ID, Timestamp: ev.Timestamp, Type: ev.Type}
	if !opts.NoPayload {
		n.Payload = ev.Payload
	}
	if opts.MaxDepth > 0 && depth >= opts.MaxDepth {
		return n
	}
	for _, child := range ev.Children {
		n.Children = append(n.Children, toNode(child, depth+1, opts))
	}
	return n
}
