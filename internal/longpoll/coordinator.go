// Package longpoll implements bounded waits keyed by session slot.
//
// A consumer that finds nothing to consume parks on a one-shot waiter with a
// deadline. A producer that deposits data resolves the waiter directly. The
// waiter leaves the registry exactly once, under the coordinator lock, and the
// party that removes it decides the outcome.
package longpoll

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/Jayvir101/Signaling-Server/internal/mailbox"
)

// ErrAlreadyWaiting is returned by Wait under PolicyReject when the slot
// already has a registered waiter.
var ErrAlreadyWaiting = errors.New("slot already has a pending wait")

type Slot string

const (
	// SlotOffer is waited on by the media peer.
	SlotOffer Slot = "offer"
	// SlotAnswer is waited on by the viewer that submitted the offer.
	SlotAnswer Slot = "answer"
)

type Key struct {
	Session mailbox.Key
	Slot    Slot
}

func (k Key) String() string {
	return k.Session.String() + "#" + string(k.Slot)
}

// DuplicatePolicy decides what happens when Wait is called for a slot that
// already has a waiter.
type DuplicatePolicy string

const (
	// PolicyReplace hands the slot to the newest caller and releases the
	// earlier one immediately with OutcomeSuperseded.
	PolicyReplace DuplicatePolicy = "replace"
	// PolicyReject fails the newer caller with ErrAlreadyWaiting.
	PolicyReject DuplicatePolicy = "reject"
)

func ParseDuplicatePolicy(raw string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(raw); p {
	case PolicyReplace, PolicyReject:
		return p, nil
	default:
		return "", errors.New("expected replace or reject")
	}
}

type Outcome int

const (
	OutcomeResolved Outcome = iota
	OutcomeTimedOut
	OutcomeCancelled
	OutcomeSuperseded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeResolved:
		return "resolved"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

type Result struct {
	Outcome Outcome
	// Value is only meaningful for OutcomeResolved.
	Value webrtc.SessionDescription
	// WaiterID identifies the waiter for logs. It is empty on the fast path.
	WaiterID string
}

type waiter struct {
	id string
	// done is buffered so the party removing the waiter never blocks.
	done chan Result
}

type Coordinator struct {
	policy DuplicatePolicy

	mu      sync.Mutex
	waiters map[Key]*waiter
}

func New(policy DuplicatePolicy) *Coordinator {
	if policy == "" {
		policy = PolicyReplace
	}
	return &Coordinator{
		policy:  policy,
		waiters: make(map[Key]*waiter),
	}
}

func (c *Coordinator) Policy() DuplicatePolicy { return c.policy }

// Tx is the coordinator as seen from inside its lock. It is only valid for
// the duration of the callback it was passed to.
type Tx struct {
	c *Coordinator
}

// Resolve hands v to the waiter registered for key, if any, and reports
// whether one received it.
func (tx Tx) Resolve(key Key, v webrtc.SessionDescription) bool {
	return tx.c.resolveLocked(key, v)
}

// Waiting reports whether key has a registered waiter.
func (tx Tx) Waiting(key Key) bool {
	_, ok := tx.c.waiters[key]
	return ok
}

func (c *Coordinator) resolveLocked(key Key, v webrtc.SessionDescription) bool {
	w, ok := c.waiters[key]
	if !ok {
		return false
	}
	delete(c.waiters, key)
	w.done <- Result{Outcome: OutcomeResolved, Value: v, WaiterID: w.id}
	return true
}

// Update runs fn under the coordinator lock. Store mutations that must be
// atomic with waiter registration go through Update.
func (c *Coordinator) Update(fn func(tx Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(Tx{c: c})
}

// Resolve hands v to the waiter registered for key, if any.
func (c *Coordinator) Resolve(key Key, v webrtc.SessionDescription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolveLocked(key, v)
}

// Probe runs under the coordinator lock before a waiter is registered. It
// returns ok=true with a value to complete the wait immediately.
type Probe func(tx Tx) (v webrtc.SessionDescription, ok bool, err error)

// Wait blocks until key is resolved, timeout elapses, ctx is done, or a
// newer waiter supersedes this one. Only probe errors and ErrAlreadyWaiting
// are returned as errors; every other ending is reported in Result.
func (c *Coordinator) Wait(ctx context.Context, key Key, timeout time.Duration, probe Probe) (Result, error) {
	c.mu.Lock()
	if c.policy == PolicyReject {
		if _, busy := c.waiters[key]; busy {
			c.mu.Unlock()
			return Result{}, ErrAlreadyWaiting
		}
	}
	if probe != nil {
		v, ok, err := probe(Tx{c: c})
		if err != nil {
			c.mu.Unlock()
			return Result{}, err
		}
		if ok {
			c.mu.Unlock()
			return Result{Outcome: OutcomeResolved, Value: v}, nil
		}
	}
	if prev, ok := c.waiters[key]; ok {
		delete(c.waiters, key)
		prev.done <- Result{Outcome: OutcomeSuperseded, WaiterID: prev.id}
	}
	w := &waiter{id: uuid.NewString(), done: make(chan Result, 1)}
	c.waiters[key] = w
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-w.done:
		return res, nil
	case <-timer.C:
		return c.release(key, w, OutcomeTimedOut), nil
	case <-ctx.Done():
		return c.release(key, w, OutcomeCancelled), nil
	}
}

// release removes w if it is still registered. If another party removed it
// first, that party already sent the outcome and release returns it.
func (c *Coordinator) release(key Key, w *waiter, outcome Outcome) Result {
	c.mu.Lock()
	if cur, ok := c.waiters[key]; ok && cur == w {
		delete(c.waiters, key)
		c.mu.Unlock()
		return Result{Outcome: outcome, WaiterID: w.id}
	}
	c.mu.Unlock()
	return <-w.done
}

// Pending returns the number of registered waiters.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
