package longpoll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/Jayvir101/Signaling-Server/internal/mailbox"
)

func offerKey(id string) Key {
	return Key{Session: mailbox.Key{Namespace: mailbox.NamespaceSession, ID: id}, Slot: SlotOffer}
}

func sd(sdp string) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
}

// waitAsync starts Wait in a goroutine and blocks until the waiter is
// registered.
func waitAsync(t *testing.T, c *Coordinator, ctx context.Context, key Key, timeout time.Duration) <-chan Result {
	t.Helper()
	before := c.Pending()
	ch := make(chan Result, 1)
	go func() {
		res, err := c.Wait(ctx, key, timeout, nil)
		if err != nil {
			t.Errorf("Wait: %v", err)
		}
		ch <- res
	}()
	deadline := time.Now().Add(2 * time.Second)
	for c.Pending() == before {
		if time.Now().After(deadline) {
			t.Fatalf("waiter never registered")
		}
		time.Sleep(time.Millisecond)
	}
	return ch
}

func TestWait_FastPathReturnsWithoutRegistering(t *testing.T) {
	c := New(PolicyReplace)
	res, err := c.Wait(context.Background(), offerKey("cam1"), time.Hour, func(Tx) (webrtc.SessionDescription, bool, error) {
		return sd("ready"), true, nil
	})
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res.Outcome != OutcomeResolved || res.Value.SDP != "ready" {
		t.Fatalf("Wait=%+v, want resolved with %q", res, "ready")
	}
	if got := c.Pending(); got != 0 {
		t.Fatalf("Pending=%d, want 0", got)
	}
}

func TestWait_ProbeErrorIsReturned(t *testing.T) {
	c := New(PolicyReplace)
	boom := errors.New("boom")
	_, err := c.Wait(context.Background(), offerKey("cam1"), time.Hour, func(Tx) (webrtc.SessionDescription, bool, error) {
		return webrtc.SessionDescription{}, false, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Wait err=%v, want %v", err, boom)
	}
	if got := c.Pending(); got != 0 {
		t.Fatalf("Pending=%d, want 0", got)
	}
}

func TestWait_ResolvedBeforeDeadline(t *testing.T) {
	c := New(PolicyReplace)
	key := offerKey("cam1")
	start := time.Now()
	ch := waitAsync(t, c, context.Background(), key, 25*time.Second)

	if !c.Resolve(key, sd("O")) {
		t.Fatalf("Resolve found no waiter")
	}
	select {
	case res := <-ch:
		if res.Outcome != OutcomeResolved || res.Value.SDP != "O" {
			t.Fatalf("Wait=%+v, want resolved with O", res)
		}
		if res.WaiterID == "" {
			t.Fatalf("resolved result missing waiter id")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Wait did not return after Resolve")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Wait took %v, want well under the deadline", elapsed)
	}
	if c.Resolve(key, sd("late")) {
		t.Fatalf("second Resolve found a waiter")
	}
}

func TestWait_TimesOutNoEarlierThanDeadline(t *testing.T) {
	c := New(PolicyReplace)
	key := offerKey("cam2")
	const timeout = 50 * time.Millisecond

	start := time.Now()
	res, err := c.Wait(context.Background(), key, timeout, nil)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < timeout {
		t.Fatalf("Wait returned after %v, before timeout %v", elapsed, timeout)
	}
	if res.Outcome != OutcomeTimedOut {
		t.Fatalf("Outcome=%v, want %v", res.Outcome, OutcomeTimedOut)
	}
	if got := c.Pending(); got != 0 {
		t.Fatalf("Pending=%d after timeout, want 0", got)
	}
	// A late producer finds nobody.
	if c.Resolve(key, sd("late")) {
		t.Fatalf("Resolve delivered to an expired waiter")
	}
}

func TestWait_ContextCancelReleasesWaiter(t *testing.T) {
	c := New(PolicyReplace)
	key := offerKey("cam1")
	ctx, cancel := context.WithCancel(context.Background())
	ch := waitAsync(t, c, ctx, key, time.Hour)

	cancel()
	select {
	case res := <-ch:
		if res.Outcome != OutcomeCancelled {
			t.Fatalf("Outcome=%v, want %v", res.Outcome, OutcomeCancelled)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Wait did not return after cancel")
	}
	if got := c.Pending(); got != 0 {
		t.Fatalf("Pending=%d, want 0", got)
	}
}

func TestWait_ReplacePolicySupersedesEarlierWaiter(t *testing.T) {
	c := New(PolicyReplace)
	key := offerKey("cam1")

	first := waitAsync(t, c, context.Background(), key, time.Hour)

	second := make(chan Result, 1)
	go func() {
		res, _ := c.Wait(context.Background(), key, time.Hour, nil)
		second <- res
	}()

	select {
	case res := <-first:
		if res.Outcome != OutcomeSuperseded {
			t.Fatalf("first Outcome=%v, want %v", res.Outcome, OutcomeSuperseded)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("first waiter was not released when superseded")
	}

	if !c.Resolve(key, sd("O")) {
		t.Fatalf("Resolve found no waiter")
	}
	res := <-second
	if res.Outcome != OutcomeResolved || res.Value.SDP != "O" {
		t.Fatalf("second Wait=%+v, want resolved with O", res)
	}
}

func TestWait_RejectPolicyFailsSecondCaller(t *testing.T) {
	c := New(PolicyReject)
	key := offerKey("cam1")
	first := waitAsync(t, c, context.Background(), key, time.Hour)

	probed := false
	_, err := c.Wait(context.Background(), key, time.Hour, func(Tx) (webrtc.SessionDescription, bool, error) {
		probed = true
		return webrtc.SessionDescription{}, false, nil
	})
	if !errors.Is(err, ErrAlreadyWaiting) {
		t.Fatalf("Wait err=%v, want %v", err, ErrAlreadyWaiting)
	}
	if probed {
		t.Fatalf("rejected Wait ran its probe")
	}

	c.Resolve(key, sd("O"))
	if res := <-first; res.Outcome != OutcomeResolved {
		t.Fatalf("first Outcome=%v, want %v", res.Outcome, OutcomeResolved)
	}
}

func TestWait_SlotsAreIndependent(t *testing.T) {
	c := New(PolicyReplace)
	offer := offerKey("cam1")
	answer := Key{Session: offer.Session, Slot: SlotAnswer}

	ch := waitAsync(t, c, context.Background(), answer, time.Hour)
	if c.Resolve(offer, sd("O")) {
		t.Fatalf("offer Resolve woke the answer waiter")
	}
	c.Resolve(answer, sd("A"))
	if res := <-ch; res.Value.SDP != "A" {
		t.Fatalf("answer waiter got %q, want A", res.Value.SDP)
	}
}

func TestUpdate_ProbeAndResolveAreAtomic(t *testing.T) {
	c := New(PolicyReplace)
	key := offerKey("cam1")

	// A value deposited through Update is either seen by the probe or
	// delivered to the registered waiter, never lost between the two.
	for i := 0; i < 200; i++ {
		var mu sync.Mutex
		var stored *webrtc.SessionDescription

		done := make(chan Result, 1)
		go func() {
			res, _ := c.Wait(context.Background(), key, 2*time.Second, func(Tx) (webrtc.SessionDescription, bool, error) {
				mu.Lock()
				defer mu.Unlock()
				if stored != nil {
					return *stored, true, nil
				}
				return webrtc.SessionDescription{}, false, nil
			})
			done <- res
		}()

		_ = c.Update(func(tx Tx) error {
			mu.Lock()
			v := sd("O")
			stored = &v
			mu.Unlock()
			tx.Resolve(key, v)
			return nil
		})

		res := <-done
		if res.Outcome != OutcomeResolved || res.Value.SDP != "O" {
			t.Fatalf("iteration %d: Wait=%+v, want resolved", i, res)
		}
	}
}

func TestWait_ExactlyOnceUnderRacingResolveAndTimeout(t *testing.T) {
	c := New(PolicyReplace)
	const timeout = time.Millisecond

	for i := 0; i < 500; i++ {
		key := offerKey("race")
		done := make(chan Result, 1)
		go func() {
			res, _ := c.Wait(context.Background(), key, timeout, nil)
			done <- res
		}()

		// Aim the producer at the deadline.
		time.Sleep(timeout)
		delivered := c.Resolve(key, sd("O"))
		res := <-done

		switch {
		case delivered && res.Outcome != OutcomeResolved:
			t.Fatalf("iteration %d: Resolve delivered but Wait reported %v", i, res.Outcome)
		case !delivered && res.Outcome == OutcomeResolved:
			t.Fatalf("iteration %d: Wait resolved but Resolve reported no waiter", i)
		}
		if got := c.Pending(); got != 0 {
			t.Fatalf("iteration %d: Pending=%d, want 0", i, got)
		}
	}
}

func TestParseDuplicatePolicy(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    DuplicatePolicy
		wantErr bool
	}{
		{in: "replace", want: PolicyReplace},
		{in: "reject", want: PolicyReject},
		{in: "fanout", wantErr: true},
	} {
		got, err := ParseDuplicatePolicy(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseDuplicatePolicy(%q) err=%v, wantErr=%v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Fatalf("ParseDuplicatePolicy(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}
