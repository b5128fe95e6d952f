package control

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.SynthesisTimeout != 30*time.Second || p.ExecutionTimeout != 15*time.Second {
		t.Fatalf("unexpected defaults: %+v", p)
	}
}

func TestSynthesisContext_HasDeadline(t *testing.T) {
	p := Policy{SynthesisTimeout: time.Minute}
	ctx, cancel := p.SynthesisContext(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Fatal("expected deadline")
	}
}

func TestExecutionContext_ZeroMeansNoDeadline(t *testing.T) {
	p := Policy{}
	ctx, cancel := p.ExecutionContext(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Fatal("expected no deadline")
	}
}

func TestCheckDeadline(t *testing.T) {
	start := time.Unix(100, 0)
	if err := CheckDeadline(nil, LimitExecution, time.Second, start, start); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	other := errors.New("boom")
	if err := CheckDeadline(other, LimitExecution, time.Second, start, start); err != other {
		t.Fatalf("expected passthrough, got %v", err)
	}

	err := CheckDeadline(context.DeadlineExceeded, LimitSynthesis, 2*time.Second, start, start.Add(3*time.Second))
	var lerr *LimitError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected LimitError, got %v", err)
	}
	if lerr.Type != LimitSynthesis || lerr.Elapsed != 3*time.Second {
		t.Fatalf("unexpected limit error: %+v", lerr)
	}
}
