package mailbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

var (
	// ErrTooManySessions is returned when a write would create a session beyond
	// the configured session bound. Existing sessions are unaffected.
	ErrTooManySessions = errors.New("too many sessions")
	// ErrQueueFull is returned when an ICE queue already holds the configured
	// maximum number of candidates. The new candidate is rejected; queued ones
	// are never evicted.
	ErrQueueFull        = errors.New("ice candidate queue full")
	ErrInvalidKey       = errors.New("invalid mailbox key")
	ErrInvalidDirection = errors.New("invalid ice direction")
)

// Namespace separates viewer-initiated sessions from publisher sessions. The
// same identifier in two namespaces names two unrelated sessions.
type Namespace string

const (
	NamespaceSession Namespace = "session"
	NamespacePublish Namespace = "publish"
)

func (ns Namespace) Valid() bool {
	return ns == NamespaceSession || ns == NamespacePublish
}

// Direction names the travel direction of an ICE candidate queue.
type Direction string

const (
	// ToPeer carries candidates produced by the viewer (or publisher) and
	// drained by the media peer.
	ToPeer Direction = "to_peer"
	// ToViewer carries candidates produced by the media peer.
	ToViewer Direction = "to_viewer"
)

func (d Direction) index() (int, error) {
	switch d {
	case ToPeer:
		return 0, nil
	case ToViewer:
		return 1, nil
	default:
		return 0, fmt.Errorf("%w %q", ErrInvalidDirection, string(d))
	}
}

// Key identifies one session.
type Key struct {
	Namespace Namespace
	ID        string
}

func (k Key) String() string {
	return string(k.Namespace) + "/" + k.ID
}

func (k Key) validate() error {
	if !k.Namespace.Valid() || k.ID == "" {
		return fmt.Errorf("%w %q", ErrInvalidKey, k.String())
	}
	return nil
}

// Store is the session mailbox. All methods are safe for concurrent use.
//
// Offers are last-write-wins: PutOffer replaces an unconsumed offer. ICE
// queues are strict FIFO per (key, direction).
type Store interface {
	PutOffer(ctx context.Context, key Key, offer webrtc.SessionDescription) error
	// PeekOffer returns the stored offer without removing it.
	PeekOffer(ctx context.Context, key Key) (webrtc.SessionDescription, bool, error)
	// TakeOffer returns the stored offer and removes it.
	TakeOffer(ctx context.Context, key Key) (webrtc.SessionDescription, bool, error)
	// ClearOffer removes the stored offer. When ifSDP is non-empty the offer is
	// only removed if it still carries that SDP, so a newer offer from a later
	// negotiation survives.
	ClearOffer(ctx context.Context, key Key, ifSDP string) error

	EnqueueICE(ctx context.Context, key Key, dir Direction, c webrtc.ICECandidateInit) error
	// DequeueICE removes and returns the oldest candidate. An empty queue is
	// reported with ok=false, not an error.
	DequeueICE(ctx context.Context, key Key, dir Direction) (c webrtc.ICECandidateInit, ok bool, err error)

	// Len reports the number of sessions currently holding state.
	Len(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}
