package control

import (
	"sync"
	"testing"
	"time"
)

func TestCircuitBreaker_StateTransitions(t *testing.T) {
	c := NewCircuitBreaker(2, 100*time.Millisecond)
	now := time.Now()

	if c.State() != CircuitClosed {
		t.Fatalf("expected closed, got %s", c.State())
	}

	if c.RecordFailure("provider_api", now) {
		t.Fatal("first failure should not open")
	}
	if c.State() != CircuitClosed {
		t.Fatalf("expected closed after first failure, got %s", c.State())
	}

	if !c.RecordFailure("provider_api", now) {
		t.Fatal("second failure should open")
	}
	if c.State() != CircuitOpen || c.OpenedClass() != "provider_api" {
		t.Fatalf("expected open on provider_api, got %s/%s", c.State(), c.OpenedClass())
	}

	if c.Allow(now.Add(10 * time.Millisecond)) {
		t.Fatal("expected deny while cooldown not elapsed")
	}
	if !c.Allow(now.Add(120 * time.Millisecond)) {
		t.Fatal("expected allow after cooldown")
	}
	if c.State() != CircuitHalfOpen {
		t.Fatalf("expected half_open, got %s", c.State())
	}
	if c.Allow(now.Add(130 * time.Millisecond)) {
		t.Fatal("expected a single probe while half open")
	}

	c.RecordSuccess()
	if c.State() != CircuitClosed {
		t.Fatalf("expected closed after probe success, got %s", c.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	c := NewCircuitBreaker(1, time.Millisecond)
	now := time.Now()
	c.RecordFailure("timeout", now)
	if !c.Allow(now.Add(time.Second)) {
		t.Fatal("expected probe")
	}
	if !c.RecordFailure("status", now.Add(time.Second)) {
		t.Fatal("expected probe failure to reopen")
	}
	if c.State() != CircuitOpen || c.OpenedClass() != "status" {
		t.Fatalf("unexpected state %s/%s", c.State(), c.OpenedClass())
	}
}

func TestCircuitBreaker_ClassesCountedSeparately(t *testing.T) {
	c := NewCircuitBreaker(2, time.Second)
	now := time.Now()
	c.RecordFailure("a", now)
	c.RecordFailure("b", now)
	if c.State() != CircuitClosed {
		t.Fatalf("expected closed, got %s", c.State())
	}
}

func TestCircuitBreaker_Concurrent(t *testing.T) {
	c := NewCircuitBreaker(50, time.Second)
	now := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Allow(now)
			c.RecordFailure("x", now)
		}()
	}
	wg.Wait()
	if c.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", c.State())
	}
}

func TestCircuitBreaker_ReleaseReturnsProbe(t *testing.T) {
	c := NewCircuitBreaker(1, time.Millisecond)
	now := time.Now()
	c.RecordFailure("timeout", now)
	if !c.Allow(now.Add(time.Second)) {
		t.Fatal("expected probe")
	}
	c.Release()
	if c.State() != CircuitOpen {
		t.Fatalf("expected open after release, got %s", c.State())
	}
	if !c.Allow(now.Add(time.Second)) {
		t.Fatal("expected a new probe after release")
	}

	closed := NewCircuitBreaker(1, time.Millisecond)
	closed.Release()
	if closed.State() != CircuitClosed {
		t.Fatalf("release must not change a closed breaker, got %s", closed.State())
	}
}
