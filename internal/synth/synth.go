// Package synth turns assembled chat context into one candidate SQL statement.
//
// Synthesis never fails from the caller's point of view: any provider problem is
// logged and replaced by the UNSUPPORTED sentinel, which the validator rejects.
package synth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	ctxpkg "github.com/stupiduntilnot/querygate/internal/context"
	"github.com/stupiduntilnot/querygate/internal/control"
	"github.com/stupiduntilnot/querygate/internal/db"
	modelpkg "github.com/stupiduntilnot/querygate/internal/model"
	"github.com/stupiduntilnot/querygate/internal/openai"
)

// Unsupported is the sentinel the model answers, and synthesis falls back to,
// when no safe read query exists.
const Unsupported = "UNSUPPORTED"

// Failure classes reported in Outcome.Failure.
const (
	FailureTimeout     = "timeout"
	FailureStatus      = "status"
	FailureEmpty       = "empty"
	FailureProvider    = "provider"
	FailureCircuitOpen = "circuit_open"
	FailureCanceled    = "canceled"
)

// Outcome is the result of one synthesis call. SQL is always usable; Failure and
// Err are set only when SQL is the fallback sentinel.
type Outcome struct {
	SQL      string
	Failure  string
	Err      error
	Duration time.Duration
}

// Client wraps a model provider with a per-call timeout, a circuit breaker and
// output cleanup.
type Client struct {
	Provider modelpkg.Provider
	Policy   control.Policy
	Breaker  *control.CircuitBreaker
	Schema   string
	Logger   *slog.Logger

	// OnEvent, when set, receives circuit breaker transitions.
	OnEvent func(eventType string, payload map[string]any)

	now func() time.Time
}

// New creates a synthesis client. breaker may be nil.
func New(provider modelpkg.Provider, policy control.Policy, breaker *control.CircuitBreaker, schema string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		Provider: provider,
		Policy:   policy,
		Breaker:  breaker,
		Schema:   schema,
		Logger:   logger,
		now:      time.Now,
	}
}

// Synthesize asks the model for SQL given an assembled message list.
func (c *Client) Synthesize(ctx context.Context, messages []ctxpkg.Message) Outcome {
	return c.complete(ctx, messages)
}

// SynthesizeQuestion asks the model for SQL from the question alone, using the
// fixed context-free prompt.
func (c *Client) SynthesizeQuestion(ctx context.Context, question string) Outcome {
	return c.complete(ctx, []ctxpkg.Message{
		{Role: ctxpkg.RoleSystem, Content: ctxpkg.QuestionPrompt(c.Schema)},
		{Role: ctxpkg.RoleUser, Content: question},
	})
}

func (c *Client) complete(ctx context.Context, messages []ctxpkg.Message) Outcome {
	start := c.clock()
	if c.Breaker != nil {
		prev := c.Breaker.State()
		if !c.Breaker.Allow(start) {
			c.Logger.Warn("synthesis skipped, circuit open", "class", c.Breaker.OpenedClass())
			return Outcome{SQL: Unsupported, Failure: FailureCircuitOpen, Err: errors.New("circuit open")}
		}
		if prev == control.CircuitOpen && c.Breaker.State() == control.CircuitHalfOpen {
			c.emit(db.EventCircuitHalfOpen, map[string]any{"error_class": c.Breaker.OpenedClass()})
		}
	}

	callCtx, cancel := c.Policy.SynthesisContext(ctx)
	defer cancel()

	resp, err := c.Provider.ChatCompletion(callCtx, messages)
	end := c.clock()
	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = openai.ErrEmptyResponse
	}
	if err != nil {
		err = control.CheckDeadline(err, control.LimitSynthesis, c.Policy.SynthesisTimeout, start, end)
		class := classify(err)
		if class == FailureCanceled {
			// the caller went away; that says nothing about the provider
			if c.Breaker != nil {
				c.Breaker.Release()
			}
			c.Logger.Info("synthesis abandoned by caller", "err", err)
			return Outcome{SQL: Unsupported, Failure: class, Err: err, Duration: end.Sub(start)}
		}
		if c.Breaker != nil && c.Breaker.RecordFailure(class, end) {
			c.Logger.Warn("circuit opened", "class", class)
			c.emit(db.EventCircuitOpened, map[string]any{
				"error_class":      class,
				"threshold":        c.Breaker.Threshold,
				"cooldown_seconds": int(c.Breaker.Cooldown.Seconds()),
			})
		}
		c.Logger.Warn("synthesis failed, falling back", "class", class, "err", err)
		return Outcome{SQL: Unsupported, Failure: class, Err: err, Duration: end.Sub(start)}
	}
	if c.Breaker != nil {
		if c.Breaker.State() != control.CircuitClosed {
			c.emit(db.EventCircuitClosed, nil)
		}
		c.Breaker.RecordSuccess()
	}

	sql := Clean(resp.Content)
	if sql == "" {
		sql = Unsupported
	}
	c.Logger.Debug("sql synthesized", "sql", sql, "input_tokens", resp.InputTokens, "output_tokens", resp.OutputTokens)
	return Outcome{SQL: sql, Duration: end.Sub(start)}
}

func (c *Client) emit(eventType string, payload map[string]any) {
	if c.OnEvent != nil {
		c.OnEvent(eventType, payload)
	}
}

func (c *Client) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

func classify(err error) string {
	var limit *control.LimitError
	var status *openai.StatusError
	switch {
	case errors.As(err, &limit), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.As(err, &status):
		return FailureStatus
	case errors.Is(err, openai.ErrEmptyResponse):
		return FailureEmpty
	case errors.Is(err, context.Canceled):
		return FailureCanceled
	default:
		return FailureProvider
	}
}

// Clean strips markdown code fences from model output and trims whitespace.
func Clean(s string) string {
	s = strings.ReplaceAll(s, "```sql", "")
	s = strings.ReplaceAll(s, "```SQL", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
