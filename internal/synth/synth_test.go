package synth

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	ctxpkg "github.com/stupiduntilnot/querygate/internal/context"
	"github.com/stupiduntilnot/querygate/internal/control"
	"github.com/stupiduntilnot/querygate/internal/db"
	"github.com/stupiduntilnot/querygate/internal/dummy"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(t *testing.T, script string, policy control.Policy, breaker *control.CircuitBreaker) (*Client, *dummy.Provider) {
	t.Helper()
	p, err := dummy.NewProvider(script)
	if err != nil {
		t.Fatal(err)
	}
	return New(p, policy, breaker, "users(id, username)", quietLogger()), p
}

var question = []ctxpkg.Message{{Role: "system", Content: "sys"}, {Role: "user", Content: "how many users?"}}

func TestSynthesize_StripsFences(t *testing.T) {
	c, _ := newClient(t, "msgb64:YGBgc3FsClNFTEVDVCBDT1VOVCgqKSBGUk9NIHVzZXJzOwpgYGA=", control.DefaultPolicy(), nil)
	out := c.Synthesize(context.Background(), question)
	if out.SQL != "SELECT COUNT(*) FROM users;" {
		t.Fatalf("unexpected sql %q", out.SQL)
	}
	if out.Failure != "" || out.Err != nil {
		t.Fatalf("unexpected failure: %+v", out)
	}
}

func TestSynthesize_ProviderErrorBecomesUnsupported(t *testing.T) {
	c, _ := newClient(t, "err:boom", control.DefaultPolicy(), nil)
	out := c.Synthesize(context.Background(), question)
	if out.SQL != Unsupported || out.Failure != FailureProvider || out.Err == nil {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestSynthesize_TimeoutBecomesUnsupported(t *testing.T) {
	c, _ := newClient(t, "sleep:2000:SELECT 1 FROM users", control.Policy{SynthesisTimeout: 20 * time.Millisecond}, nil)
	start := time.Now()
	out := c.Synthesize(context.Background(), question)
	if out.SQL != Unsupported || out.Failure != FailureTimeout {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if time.Since(start) > time.Second {
		t.Fatal("timeout was not enforced")
	}
}

func TestSynthesize_WhitespaceOnlyIsEmpty(t *testing.T) {
	c, _ := newClient(t, "msg:   ", control.DefaultPolicy(), nil)
	out := c.Synthesize(context.Background(), question)
	if out.SQL != Unsupported || out.Failure != FailureEmpty {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestSynthesize_CircuitOpensAndShortCircuits(t *testing.T) {
	breaker := control.NewCircuitBreaker(2, time.Hour)
	c, p := newClient(t, "err:down", control.DefaultPolicy(), breaker)
	ctx := context.Background()
	var events []string
	c.OnEvent = func(eventType string, _ map[string]any) { events = append(events, eventType) }

	c.Synthesize(ctx, question)
	c.Synthesize(ctx, question)
	if breaker.State() != control.CircuitOpen {
		t.Fatalf("expected open breaker, got %s", breaker.State())
	}

	out := c.Synthesize(ctx, question)
	if out.Failure != FailureCircuitOpen || out.SQL != Unsupported {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if n := len(p.Calls()); n != 2 {
		t.Fatalf("expected provider not to be called while open, got %d calls", n)
	}
	if len(events) != 1 || events[0] != db.EventCircuitOpened {
		t.Fatalf("unexpected events: %v", events)
	}
}

func TestSynthesize_HalfOpenProbeClosesCircuit(t *testing.T) {
	breaker := control.NewCircuitBreaker(1, time.Millisecond)
	c, _ := newClient(t, "err:down\nSELECT id FROM users", control.DefaultPolicy(), breaker)
	var events []string
	c.OnEvent = func(eventType string, _ map[string]any) { events = append(events, eventType) }

	c.Synthesize(context.Background(), question)
	time.Sleep(5 * time.Millisecond)
	out := c.Synthesize(context.Background(), question)
	if out.SQL != "SELECT id FROM users" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	want := []string{db.EventCircuitOpened, db.EventCircuitHalfOpen, db.EventCircuitClosed}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected events: %v", events)
	}
	if breaker.State() != control.CircuitClosed {
		t.Fatalf("expected closed, got %s", breaker.State())
	}
}

func TestSynthesizeQuestion_UsesFixedPrompt(t *testing.T) {
	c, p := newClient(t, "SELECT COUNT(*) FROM users;", control.DefaultPolicy(), nil)
	out := c.SynthesizeQuestion(context.Background(), "how many users?")
	if out.SQL != "SELECT COUNT(*) FROM users;" {
		t.Fatalf("unexpected sql %q", out.SQL)
	}
	calls := p.Calls()
	if len(calls) != 1 || len(calls[0]) != 2 {
		t.Fatalf("unexpected calls: %+v", calls)
	}
	if calls[0][0].Role != "system" || !strings.Contains(calls[0][0].Content, "users(id, username)") {
		t.Errorf("expected schema in system prompt, got %q", calls[0][0].Content)
	}
	if calls[0][1].Content != "how many users?" {
		t.Errorf("unexpected user turn %+v", calls[0][1])
	}
}

func TestClean(t *testing.T) {
	cases := map[string]string{
		"```sql\nSELECT 1 FROM t\n```": "SELECT 1 FROM t",
		"  SELECT 1 FROM t  ":           "SELECT 1 FROM t",
		"```\nUNSUPPORTED\n```":         "UNSUPPORTED",
		"":                              "",
	}
	for in, want := range cases {
		if got := Clean(in); got != want {
			t.Errorf("Clean(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSynthesize_CallerCancellationSparesCircuit(t *testing.T) {
	breaker := control.NewCircuitBreaker(1, time.Hour)
	c, _ := newClient(t, "sleep:2000:SELECT id FROM users", control.DefaultPolicy(), breaker)
	var events []string
	c.OnEvent = func(eventType string, _ map[string]any) { events = append(events, eventType) }

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	out := c.Synthesize(ctx, question)
	if out.SQL != Unsupported || out.Failure != FailureCanceled {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if breaker.State() != control.CircuitClosed {
		t.Fatalf("expected closed breaker after cancellation, got %s", breaker.State())
	}
	if len(events) != 0 {
		t.Fatalf("unexpected events: %v", events)
	}
}
