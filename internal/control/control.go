package control

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy bounds the two blocking stages of answering a question.
type Policy struct {
	SynthesisTimeout time.Duration
	ExecutionTimeout time.Duration
}

// DefaultPolicy returns the default stage limits.
func DefaultPolicy() Policy {
	return Policy{
		SynthesisTimeout: 30 * time.Second,
		ExecutionTimeout: 15 * time.Second,
	}
}

// LimitType identifies which limit is reached.
type LimitType string

const (
	LimitSynthesis LimitType = "synthesis_timeout_seconds"
	LimitExecution LimitType = "execution_timeout_seconds"
)

// LimitError indicates a stage ran past its limit.
type LimitError struct {
	Type      LimitType
	Elapsed   time.Duration
	Threshold time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("limit reached type=%s elapsed=%s threshold=%s", e.Type, e.Elapsed.Round(time.Millisecond), e.Threshold)
}

// SynthesisContext derives the context a single model call runs under.
func (p Policy) SynthesisContext(parent context.Context) (context.Context, context.CancelFunc) {
	return withLimit(parent, p.SynthesisTimeout)
}

// ExecutionContext derives the context a single statement runs under.
func (p Policy) ExecutionContext(parent context.Context) (context.Context, context.CancelFunc) {
	return withLimit(parent, p.ExecutionTimeout)
}

func withLimit(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}

// CheckDeadline converts a deadline overrun into a LimitError. Any other error,
// including nil, is returned unchanged.
func CheckDeadline(err error, t LimitType, threshold time.Duration, startedAt, now time.Time) error {
	if err == nil || !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &LimitError{Type: t, Elapsed: now.Sub(startedAt), Threshold: threshold}
}
