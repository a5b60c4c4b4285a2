package metrics

import "sync"

// Exchange events. Each is counted once per occurrence and shares its name
// with the event broadcast on the debug feed.
const (
	OfferStored     = "offer_stored"
	OfferDelivered  = "offer_delivered"
	AnswerDelivered = "answer_delivered"
	AnswerDropped   = "answer_dropped"
	AnswerTimeout   = "answer_timeout"
	WaitTimedOut    = "wait_timed_out"
	WaitCancelled   = "wait_cancelled"
	WaitSuperseded  = "wait_superseded"
	ICEQueued       = "ice_queued"
	ICEDelivered    = "ice_delivered"
	SessionsEvicted = "sessions_evicted"

	RateLimitClientsEvicted = "rate_limit_clients_evicted"
)

// Drop reasons.
const (
	DropReasonRateLimited         = "rate_limited"
	DropReasonTooManySessions     = "too_many_sessions"
	DropReasonQueueFull           = "ice_queue_full"
	DropReasonAlreadyWaiting      = "already_waiting"
	DropReasonPublisherNotAllowed = "publisher_not_allowed"
	DropReasonEventSubscriberSlow = "event_subscriber_slow"
	DropReasonBackendUnavailable  = "backend_unavailable"
)

// Metrics is a minimal, concurrency-safe counter registry.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

// Inc and Add are no-ops on a nil *Metrics so components can run without a
// registry in tests.
func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, n uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name] += n
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of every counter.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
