package agent

import (
	"errors"
	"testing"
	"time"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3})

	for i := 0; i < 2; i++ {
		b.Failure()
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() before threshold error = %v, want nil", err)
	}

	b.Failure()
	if b.State() != BreakerOpen {
		t.Errorf("State() = %v, want open after %d failures", b.State(), 3)
	}
	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("Allow() error = %v, want ErrBreakerOpen", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 2})

	b.Failure()
	b.Success()
	b.Failure()

	if b.State() != BreakerClosed {
		t.Errorf("State() = %v, want closed; success should reset the count", b.State())
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Cooldown:         time.Millisecond,
	})

	b.Failure()
	if b.State() != BreakerOpen {
		t.Fatalf("State() = %v, want open", b.State())
	}

	time.Sleep(5 * time.Millisecond)

	// First probe transitions to half-open.
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() after cooldown error = %v, want nil", err)
	}
	if b.State() != BreakerHalfOpen {
		t.Fatalf("State() = %v, want half-open", b.State())
	}

	b.Success()
	if b.State() != BreakerHalfOpen {
		t.Errorf("State() = %v, want half-open until success threshold", b.State())
	}
	b.Success()
	if b.State() != BreakerClosed {
		t.Errorf("State() = %v, want closed after recovery", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 1,
		Cooldown:         time.Millisecond,
	})

	b.Failure()
	time.Sleep(5 * time.Millisecond)
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}

	b.Failure()
	if b.State() != BreakerOpen {
		t.Errorf("State() = %v, want open after half-open failure", b.State())
	}
}

func TestBreakerState_String(t *testing.T) {
	tests := []struct {
		state BreakerState
		want  string
	}{
		{BreakerClosed, "closed"},
		{BreakerOpen, "open"},
		{BreakerHalfOpen, "half-open"},
		{BreakerState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
