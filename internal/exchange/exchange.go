// Package exchange sequences the offer/answer handshake and ICE trickle on
// top of a mailbox.Store and a longpoll.Coordinator.
//
// Per session the offer slot moves EMPTY -> OFFER_PENDING -> ANSWERED ->
// EMPTY. The offer is a mailbox that any media peer poll can read. The answer
// is push-only: it goes to the viewer currently waiting on the session and is
// dropped when nobody waits.
package exchange

import (
	"errors"
	"log/slog"
	"time"

	"github.com/Jayvir101/Signaling-Server/internal/events"
	"github.com/Jayvir101/Signaling-Server/internal/longpoll"
	"github.com/Jayvir101/Signaling-Server/internal/mailbox"
	"github.com/Jayvir101/Signaling-Server/internal/metrics"
)

const DefaultLongPollTimeout = 25 * time.Second

var (
	// ErrAnswerTimeout is returned by SubmitOffer when no answer arrived
	// before the long-poll deadline.
	ErrAnswerTimeout = errors.New("no answer before deadline")
	// ErrSuperseded is returned by SubmitOffer when a newer offer for the same
	// session took over the answer slot.
	ErrSuperseded = errors.New("superseded by a newer request")
)

// EventSink receives exchange events.
type EventSink interface {
	Publish(events.Event)
}

type Config struct {
	Store       mailbox.Store
	Coordinator *longpoll.Coordinator

	// LongPollTimeout bounds every blocking wait. Defaults to
	// DefaultLongPollTimeout.
	LongPollTimeout time.Duration
	// ClearAbandonedOffers removes a viewer's offer when its answer wait ends
	// without an answer, provided no newer offer replaced it. When false the
	// offer stays readable until answered, overwritten, or evicted.
	ClearAbandonedOffers bool

	Metrics *metrics.Metrics
	Events  EventSink
	Logger  *slog.Logger
}

type Exchange struct {
	store      mailbox.Store
	coord      *longpoll.Coordinator
	timeout    time.Duration
	clearStale bool

	metrics *metrics.Metrics
	events  EventSink
	log     *slog.Logger
}

func New(cfg Config) *Exchange {
	if cfg.LongPollTimeout <= 0 {
		cfg.LongPollTimeout = DefaultLongPollTimeout
	}
	if cfg.Coordinator == nil {
		cfg.Coordinator = longpoll.New(longpoll.PolicyReplace)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Exchange{
		store:      cfg.Store,
		coord:      cfg.Coordinator,
		timeout:    cfg.LongPollTimeout,
		clearStale: cfg.ClearAbandonedOffers,
		metrics:    cfg.Metrics,
		events:     cfg.Events,
		log:        cfg.Logger,
	}
}

// PendingWaits returns the number of parked long-poll requests.
func (e *Exchange) PendingWaits() int { return e.coord.Pending() }

func (e *Exchange) emit(name string, key mailbox.Key) {
	e.metrics.Inc(name)
	if e.events != nil {
		e.events.Publish(events.Event{
			Type:      name,
			Namespace: string(key.Namespace),
			SessionID: key.ID,
		})
	}
}

func (e *Exchange) drop(reason string, key mailbox.Key, err error) {
	e.metrics.Inc(reason)
	e.log.Warn("signaling request rejected", "reason", reason, "session", key.String(), "err", err)
}

// observeStoreError counts bound violations and backend failures.
func (e *Exchange) observeStoreError(key mailbox.Key, err error) {
	switch {
	case errors.Is(err, mailbox.ErrTooManySessions):
		e.drop(metrics.DropReasonTooManySessions, key, err)
	case errors.Is(err, mailbox.ErrQueueFull):
		e.drop(metrics.DropReasonQueueFull, key, err)
	case errors.Is(err, mailbox.ErrInvalidKey), errors.Is(err, mailbox.ErrInvalidDirection):
	default:
		e.metrics.Inc(metrics.DropReasonBackendUnavailable)
		e.log.Error("mailbox store failure", "session", key.String(), "err", err)
	}
}

func slotKey(key mailbox.Key, slot longpoll.Slot) longpoll.Key {
	return longpoll.Key{Session: key, Slot: slot}
}
