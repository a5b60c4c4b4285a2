package mailbox

import (
	"context"
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
)

type storeFactory func(t *testing.T, maxQueueLen int) Store

func strPtr(s string) *string { return &s }

func candidate(s string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: s, SDPMid: strPtr("0")}
}

func offer(sdp string) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
}

// runStoreTests exercises the behavior every Store implementation shares.
func runStoreTests(t *testing.T, newStore storeFactory) {
	ctx := context.Background()
	cam1 := Key{Namespace: NamespaceSession, ID: "cam1"}

	t.Run("PutThenPeekReturnsOffer", func(t *testing.T) {
		s := newStore(t, 0)
		if err := s.PutOffer(ctx, cam1, offer("v=0 a")); err != nil {
			t.Fatalf("PutOffer: %v", err)
		}
		got, ok, err := s.PeekOffer(ctx, cam1)
		if err != nil || !ok {
			t.Fatalf("PeekOffer ok=%v err=%v, want stored offer", ok, err)
		}
		if got.SDP != "v=0 a" || got.Type != webrtc.SDPTypeOffer {
			t.Fatalf("PeekOffer=%+v, want offer %q", got, "v=0 a")
		}
		// Peek does not consume.
		if _, ok, _ := s.PeekOffer(ctx, cam1); !ok {
			t.Fatalf("offer missing after second PeekOffer")
		}
	})

	t.Run("PutOverwritesUnconsumedOffer", func(t *testing.T) {
		s := newStore(t, 0)
		_ = s.PutOffer(ctx, cam1, offer("first"))
		_ = s.PutOffer(ctx, cam1, offer("second"))
		got, ok, err := s.TakeOffer(ctx, cam1)
		if err != nil || !ok {
			t.Fatalf("TakeOffer ok=%v err=%v", ok, err)
		}
		if got.SDP != "second" {
			t.Fatalf("TakeOffer sdp=%q, want %q", got.SDP, "second")
		}
		if _, ok, _ := s.TakeOffer(ctx, cam1); ok {
			t.Fatalf("offer still present after TakeOffer")
		}
	})

	t.Run("NamespacesAreDisjoint", func(t *testing.T) {
		s := newStore(t, 0)
		_ = s.PutOffer(ctx, cam1, offer("viewer"))
		pub := Key{Namespace: NamespacePublish, ID: "cam1"}
		if _, ok, _ := s.PeekOffer(ctx, pub); ok {
			t.Fatalf("publisher namespace saw viewer offer")
		}
	})

	t.Run("ClearOfferComparesSDP", func(t *testing.T) {
		s := newStore(t, 0)
		_ = s.PutOffer(ctx, cam1, offer("newer"))
		if err := s.ClearOffer(ctx, cam1, "older"); err != nil {
			t.Fatalf("ClearOffer: %v", err)
		}
		if _, ok, _ := s.PeekOffer(ctx, cam1); !ok {
			t.Fatalf("ClearOffer removed an offer with different sdp")
		}
		if err := s.ClearOffer(ctx, cam1, "newer"); err != nil {
			t.Fatalf("ClearOffer: %v", err)
		}
		if _, ok, _ := s.PeekOffer(ctx, cam1); ok {
			t.Fatalf("ClearOffer kept matching offer")
		}
		_ = s.PutOffer(ctx, cam1, offer("x"))
		_ = s.ClearOffer(ctx, cam1, "")
		if _, ok, _ := s.PeekOffer(ctx, cam1); ok {
			t.Fatalf("unconditional ClearOffer kept offer")
		}
	})

	t.Run("ICEQueueIsFIFO", func(t *testing.T) {
		s := newStore(t, 0)
		for _, c := range []string{"A", "B", "C"} {
			if err := s.EnqueueICE(ctx, cam1, ToPeer, candidate(c)); err != nil {
				t.Fatalf("EnqueueICE(%s): %v", c, err)
			}
		}
		for _, want := range []string{"A", "B", "C"} {
			got, ok, err := s.DequeueICE(ctx, cam1, ToPeer)
			if err != nil || !ok {
				t.Fatalf("DequeueICE ok=%v err=%v, want %s", ok, err, want)
			}
			if got.Candidate != want {
				t.Fatalf("DequeueICE=%q, want %q", got.Candidate, want)
			}
			if got.SDPMid == nil || *got.SDPMid != "0" {
				t.Fatalf("DequeueICE lost sdpMid: %+v", got)
			}
		}
		if _, ok, err := s.DequeueICE(ctx, cam1, ToPeer); ok || err != nil {
			t.Fatalf("fourth DequeueICE ok=%v err=%v, want empty", ok, err)
		}
	})

	t.Run("DirectionsAreIndependent", func(t *testing.T) {
		s := newStore(t, 0)
		_ = s.EnqueueICE(ctx, cam1, ToViewer, candidate("from-peer"))
		if _, ok, _ := s.DequeueICE(ctx, cam1, ToPeer); ok {
			t.Fatalf("ToPeer queue returned a ToViewer candidate")
		}
		got, ok, _ := s.DequeueICE(ctx, cam1, ToViewer)
		if !ok || got.Candidate != "from-peer" {
			t.Fatalf("DequeueICE(ToViewer)=%+v ok=%v", got, ok)
		}
	})

	t.Run("OfferAndQueuesAreIndependent", func(t *testing.T) {
		s := newStore(t, 0)
		_ = s.PutOffer(ctx, cam1, offer("o"))
		_ = s.EnqueueICE(ctx, cam1, ToPeer, candidate("A"))
		_ = s.ClearOffer(ctx, cam1, "")
		if _, ok, _ := s.DequeueICE(ctx, cam1, ToPeer); !ok {
			t.Fatalf("clearing the offer dropped queued candidates")
		}
	})

	t.Run("QueueBoundRejectsNewest", func(t *testing.T) {
		s := newStore(t, 2)
		_ = s.EnqueueICE(ctx, cam1, ToPeer, candidate("A"))
		_ = s.EnqueueICE(ctx, cam1, ToPeer, candidate("B"))
		err := s.EnqueueICE(ctx, cam1, ToPeer, candidate("C"))
		if !errors.Is(err, ErrQueueFull) {
			t.Fatalf("EnqueueICE err=%v, want %v", err, ErrQueueFull)
		}
		got, _, _ := s.DequeueICE(ctx, cam1, ToPeer)
		if got.Candidate != "A" {
			t.Fatalf("DequeueICE=%q, want oldest candidate kept", got.Candidate)
		}
	})

	t.Run("LenAndReset", func(t *testing.T) {
		s := newStore(t, 0)
		_ = s.PutOffer(ctx, cam1, offer("o"))
		_ = s.EnqueueICE(ctx, cam1, ToPeer, candidate("A"))
		_ = s.EnqueueICE(ctx, Key{Namespace: NamespacePublish, ID: "cam3"}, ToPeer, candidate("B"))
		n, err := s.Len(ctx)
		if err != nil {
			t.Fatalf("Len: %v", err)
		}
		if n != 2 {
			t.Fatalf("Len=%d, want 2", n)
		}
		if err := s.Reset(ctx); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		if n, _ := s.Len(ctx); n != 0 {
			t.Fatalf("Len after Reset=%d, want 0", n)
		}
	})

	t.Run("RejectsInvalidKeys", func(t *testing.T) {
		s := newStore(t, 0)
		if err := s.PutOffer(ctx, Key{Namespace: NamespaceSession}, offer("o")); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("PutOffer(empty id) err=%v, want %v", err, ErrInvalidKey)
		}
		if err := s.EnqueueICE(ctx, cam1, Direction("sideways"), candidate("A")); !errors.Is(err, ErrInvalidDirection) {
			t.Fatalf("EnqueueICE(bad dir) err=%v, want %v", err, ErrInvalidDirection)
		}
	})
}
