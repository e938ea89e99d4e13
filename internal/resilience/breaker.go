// Package resilience guards calls to the inference gateway. A council run
// fans out one gateway call per agent, so a gateway outage would otherwise
// burn the full per-call timeout once per evaluator, per round.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without invoking the call while the breaker
// is cooling down after repeated failures.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State reports where the breaker currently is in its lifecycle.
type State string

const (
	// StateClosed: calls flow normally.
	StateClosed State = "closed"
	// StateOpen: calls are rejected until the cooldown elapses.
	StateOpen State = "open"
	// StateHalfOpen: one probe call is allowed through; its result
	// decides whether the breaker closes again or reopens.
	StateHalfOpen State = "half-open"
)

// Breaker is a consecutive-failure circuit breaker. It opens once
// maxFailures calls fail in a row, rejects everything for the cooldown
// window, then lets a single probe through.
type Breaker struct {
	maxFailures int
	cooldown    time.Duration

	mu          sync.Mutex
	state       State
	consecutive int
	openedAt    time.Time

	clock func() time.Time // overridable in tests
}

// NewBreaker returns a closed breaker that trips after maxFailures
// consecutive failures and stays open for the cooldown duration.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		state:       StateClosed,
		clock:       time.Now,
	}
}

// Execute runs fn unless the breaker is open, in which case it returns
// ErrCircuitOpen immediately. fn's own error is passed through.
func (b *Breaker) Execute(fn func() error) error {
	if !b.admit() {
		return ErrCircuitOpen
	}

	err := fn()
	b.record(err)
	return err
}

// State returns the breaker's current state, accounting for an elapsed
// cooldown.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.clock().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return true
	}
	if b.clock().Sub(b.openedAt) < b.cooldown {
		return false
	}
	b.state = StateHalfOpen
	return true
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.consecutive = 0
		b.state = StateClosed
		return
	}

	b.consecutive++
	// A half-open probe failing reopens immediately regardless of count.
	if b.state == StateHalfOpen || b.consecutive >= b.maxFailures {
		b.state = StateOpen
		b.openedAt = b.clock()
	}
}
