// Package agent runs one question through synthesis, validation and execution
// and records the exchange.
package agent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stupiduntilnot/querygate/internal/config"
	ctxpkg "github.com/stupiduntilnot/querygate/internal/context"
	"github.com/stupiduntilnot/querygate/internal/db"
	"github.com/stupiduntilnot/querygate/internal/executor"
	"github.com/stupiduntilnot/querygate/internal/sqlguard"
	"github.com/stupiduntilnot/querygate/internal/store"
	"github.com/stupiduntilnot/querygate/internal/synth"
)

// Refusal is the answer given whenever a statement is rejected.
const Refusal = "I can only answer safe database-related questions. " +
	"Examples:\n- How many users are there?\n" +
	"- What was the first question asked by User 1?\n" +
	"- Show me all reports for User 2."

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrEmptyQuestion        = errors.New("question is empty")
)

// Store is the persistence the agent needs.
type Store interface {
	LookupUser(ctx context.Context, id int64) (store.User, error)
	CreateConversation(ctx context.Context, userID int64, title string) (store.Conversation, error)
	GetConversation(ctx context.Context, id int64) (store.Conversation, error)
	AppendMessage(ctx context.Context, conversationID int64, role, content string) (store.Message, error)
	ListMessages(ctx context.Context, conversationID int64) ([]store.Message, error)
	AppendQuery(ctx context.Context, userID int64, question, answer string) (store.QueryRecord, error)
	ListQueries(ctx context.Context, userID int64) ([]store.QueryRecord, error)
}

// Synthesizer produces candidate SQL.
type Synthesizer interface {
	Synthesize(ctx context.Context, messages []ctxpkg.Message) synth.Outcome
	SynthesizeQuestion(ctx context.Context, question string) synth.Outcome
}

// Executor runs accepted SQL.
type Executor interface {
	Execute(ctx context.Context, query string) executor.Result
}

// Validator gates candidate SQL.
type Validator interface {
	Validate(sql string) sqlguard.Verdict
}

// AskRequest is one incoming question. A nil ConversationID starts a new
// conversation.
type AskRequest struct {
	UserID         int64
	Question       string
	ConversationID *int64
}

// Exchange is the persisted outcome of one question.
type Exchange struct {
	ConversationID int64  `json:"conversationId"`
	Question       string `json:"question"`
	SQL            string `json:"sql"`
	Answer         string `json:"answer"`
}

// HistoryEntry is one row of a user's flattened query log.
type HistoryEntry struct {
	Question  string    `json:"question" yaml:"question"`
	Answer    string    `json:"answer" yaml:"answer"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Agent wires the pipeline stages together.
type Agent struct {
	Store           Store
	HistoryProvider ctxpkg.Provider
	Window          ctxpkg.Compressor
	Assembler       ctxpkg.Assembler
	Synth           Synthesizer
	Guard           Validator
	Exec            Executor
	Mode            string
	Schema          string
	Logger          *slog.Logger

	// Events, when set, receives the diagnostic event trail. Each run's
	// agent.started event is attached under ParentEvent when that is set.
	Events      *sql.DB
	ParentEvent *int64
	Now         func() time.Time
}

// Ask answers one question. Only an unknown user, an unknown explicit
// conversation, an empty question or a store write failure produce an error;
// every synthesis, validation and execution problem becomes the answer text.
// Once the conversation is resolved the run is detached from ctx cancellation,
// so every question that gets this far records user, sql and assistant
// messages plus one query record. The stage timeouts still bound it.
func (a *Agent) Ask(ctx context.Context, req AskRequest) (Exchange, error) {
	question := req.Question
	if strings.TrimSpace(question) == "" {
		return Exchange{}, ErrEmptyQuestion
	}
	if _, err := a.Store.LookupUser(ctx, req.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Exchange{}, fmt.Errorf("user %d: %w", req.UserID, ErrUserNotFound)
		}
		return Exchange{}, err
	}

	var conv store.Conversation
	var err error
	if req.ConversationID != nil {
		conv, err = a.Store.GetConversation(ctx, *req.ConversationID)
		if errors.Is(err, store.ErrNotFound) {
			return Exchange{}, fmt.Errorf("conversation %d: %w", *req.ConversationID, ErrConversationNotFound)
		}
	} else {
		conv, err = a.Store.CreateConversation(ctx, req.UserID, "Conversation started at "+a.clock().Format(time.DateTime))
	}
	if err != nil {
		return Exchange{}, err
	}
	ctx = context.WithoutCancel(ctx)

	runID := a.event(a.ParentEvent, db.EventAgentStarted, map[string]any{
		"user_id":         req.UserID,
		"conversation_id": conv.ID,
	})
	logger := a.logger().With("user_id", req.UserID, "conversation_id", conv.ID)

	if _, err := a.Store.AppendMessage(ctx, conv.ID, store.RoleUser, question); err != nil {
		return Exchange{}, err
	}

	outcome := a.synthesize(ctx, runID, conv.ID, req.UserID, question)
	if outcome.Err != nil {
		a.event(runID, db.EventSynthesisFailed, map[string]any{
			"class": outcome.Failure,
			"error": outcome.Err.Error(),
		})
	} else {
		a.event(runID, db.EventSQLSynthesized, map[string]any{
			"sql":         outcome.SQL,
			"duration_ms": outcome.Duration.Milliseconds(),
		})
	}
	candidate := outcome.SQL

	if _, err := a.Store.AppendMessage(ctx, conv.ID, store.RoleSQL, candidate); err != nil {
		return Exchange{}, err
	}

	var answer string
	verdict := a.Guard.Validate(candidate)
	if !verdict.Accepted {
		logger.Info("sql rejected", "reason", verdict.Reason)
		a.event(runID, db.EventSQLRejected, map[string]any{"reason": verdict.Reason, "sql": candidate})
		answer = Refusal
	} else {
		res := a.Exec.Execute(ctx, candidate)
		if res.Kind == executor.KindError {
			a.event(runID, db.EventQueryFailed, map[string]any{"error": res.Text})
		} else {
			a.event(runID, db.EventQueryExecuted, map[string]any{"kind": string(res.Kind), "rows": len(res.Rows)})
		}
		answer = res.Text
	}

	if _, err := a.Store.AppendMessage(ctx, conv.ID, store.RoleAssistant, answer); err != nil {
		return Exchange{}, err
	}
	if _, err := a.Store.AppendQuery(ctx, req.UserID, question, answer); err != nil {
		return Exchange{}, err
	}

	a.event(runID, db.EventAgentCompleted, map[string]any{"accepted": verdict.Accepted})
	logger.Info("question answered", "accepted", verdict.Accepted)
	return Exchange{
		ConversationID: conv.ID,
		Question:       question,
		SQL:            candidate,
		Answer:         answer,
	}, nil
}

func (a *Agent) synthesize(ctx context.Context, runID *int64, convID, userID int64, question string) synth.Outcome {
	if a.Mode == config.ContextFree {
		return a.Synth.SynthesizeQuestion(ctx, question)
	}

	history, err := a.HistoryProvider.GetHistory(ctx, convID, userID)
	if err != nil {
		// History is advisory; answer from the question alone.
		a.logger().Warn("history unavailable", "conversation_id", convID, "err", err)
		history = nil
	}
	if a.Window != nil {
		history = a.Window.Compress(history)
	}
	messages := a.Assembler.Assemble(ctxpkg.SystemPrompt(a.Schema, userID), history, question)
	a.event(runID, db.EventContextAssembled, map[string]any{
		"history_messages": len(history),
		"messages":         len(messages),
	})
	return a.Synth.Synthesize(ctx, messages)
}

// History returns a user's flattened query log, oldest first.
func (a *Agent) History(ctx context.Context, userID int64) ([]HistoryEntry, error) {
	if _, err := a.Store.LookupUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("user %d: %w", userID, ErrUserNotFound)
		}
		return nil, err
	}
	records, err := a.Store.ListQueries(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, 0, len(records))
	for _, r := range records {
		out = append(out, HistoryEntry{Question: r.Question, Answer: r.Answer, Timestamp: r.AskedAt})
	}
	return out, nil
}

// Conversation returns a conversation header and its ordered message log.
func (a *Agent) Conversation(ctx context.Context, id int64) (store.Conversation, []store.Message, error) {
	conv, err := a.Store.GetConversation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Conversation{}, nil, fmt.Errorf("conversation %d: %w", id, ErrConversationNotFound)
	}
	if err != nil {
		return store.Conversation{}, nil, err
	}
	msgs, err := a.Store.ListMessages(ctx, id)
	if err != nil {
		return store.Conversation{}, nil, err
	}
	return conv, msgs, nil
}

func (a *Agent) event(parentID *int64, eventType string, payload map[string]any) *int64 {
	if a.Events == nil {
		return nil
	}
	id, err := db.LogEvent(a.Events, parentID, eventType, payload)
	if err != nil {
		a.logger().Warn("failed to log event", "type", eventType, "err", err)
		return nil
	}
	return &id
}

func (a *Agent) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

func (a *Agent) clock() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}
