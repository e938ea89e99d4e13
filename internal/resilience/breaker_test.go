package resilience

import (
	"errors"
	"testing"
	"time"
)

var errGatewayDown = errors.New("gateway unavailable")

func trip(b *Breaker, failures int) {
	for i := 0; i < failures; i++ {
		_ = b.Execute(func() error { return errGatewayDown })
	}
}

func TestBreakerPassesThroughWhileClosed(t *testing.T) {
	b := NewBreaker(3, time.Second)

	var called bool
	if err := b.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("Execute() = %v, want nil", err)
	}
	if !called {
		t.Fatal("call was not invoked")
	}
	if got := b.State(); got != StateClosed {
		t.Errorf("State() = %s, want closed", got)
	}
}

func TestBreakerOpensOnConsecutiveFailures(t *testing.T) {
	b := NewBreaker(3, time.Second)
	trip(b, 3)

	err := b.Execute(func() error {
		t.Error("call should have been rejected")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute() = %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerProbesAfterCooldown(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.clock = func() time.Time { return now }

	trip(b, 2)
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute() during cooldown = %v, want ErrCircuitOpen", err)
	}

	now = now.Add(2 * time.Second)
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("State() after cooldown = %s, want half-open", got)
	}

	// Successful probe closes the breaker.
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe Execute() = %v, want nil", err)
	}
	if got := b.State(); got != StateClosed {
		t.Errorf("State() after probe success = %s, want closed", got)
	}
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.clock = func() time.Time { return now }

	trip(b, 2)
	now = now.Add(2 * time.Second)

	_ = b.Execute(func() error { return errGatewayDown })

	if got := b.State(); got != StateOpen {
		t.Fatalf("State() after failed probe = %s, want open", got)
	}
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() = %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerSuccessResetsTheStreak(t *testing.T) {
	b := NewBreaker(3, time.Second)

	trip(b, 2)
	_ = b.Execute(func() error { return nil })
	trip(b, 2)

	// Streak never reached 3 in a row, so the breaker stays closed.
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute() = %v, want nil", err)
	}
}

func TestBreakerPropagatesCallError(t *testing.T) {
	b := NewBreaker(5, time.Second)
	if err := b.Execute(func() error { return errGatewayDown }); !errors.Is(err, errGatewayDown) {
		t.Fatalf("Execute() = %v, want the call's own error", err)
	}
}
