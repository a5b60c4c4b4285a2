package mailbox

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// MemoryConfig bounds a MemoryStore. Zero values disable the corresponding
// bound.
type MemoryConfig struct {
	MaxSessions int
	MaxQueueLen int
	IdleTTL     time.Duration

	// Now is used for idle tracking. Defaults to time.Now.
	Now func() time.Time
}

type memorySession struct {
	offer    *webrtc.SessionDescription
	queues   [2][]webrtc.ICECandidateInit
	lastUsed time.Time
}

func (s *memorySession) empty() bool {
	return s.offer == nil && len(s.queues[0]) == 0 && len(s.queues[1]) == 0
}

// MemoryStore is a process-local Store guarded by a single mutex. Every
// operation is O(1) apart from Sweep.
type MemoryStore struct {
	cfg MemoryConfig

	mu       sync.Mutex
	sessions map[Key]*memorySession
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(cfg MemoryConfig) *MemoryStore {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &MemoryStore{
		cfg:      cfg,
		sessions: make(map[Key]*memorySession),
	}
}

// lookupLocked returns the session for key, creating it if create is set.
// A nil session with a nil error means the key holds no state.
func (s *MemoryStore) lookupLocked(key Key, create bool) (*memorySession, error) {
	sess, ok := s.sessions[key]
	if ok {
		sess.lastUsed = s.cfg.Now()
		return sess, nil
	}
	if !create {
		return nil, nil
	}
	if s.cfg.MaxSessions > 0 && len(s.sessions) >= s.cfg.MaxSessions {
		return nil, ErrTooManySessions
	}
	sess = &memorySession{lastUsed: s.cfg.Now()}
	s.sessions[key] = sess
	return sess, nil
}

func (s *MemoryStore) dropIfEmptyLocked(key Key, sess *memorySession) {
	if sess.empty() {
		delete(s.sessions, key)
	}
}

func (s *MemoryStore) PutOffer(_ context.Context, key Key, offer webrtc.SessionDescription) error {
	if err := key.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookupLocked(key, true)
	if err != nil {
		return err
	}
	sess.offer = &offer
	return nil
}

func (s *MemoryStore) PeekOffer(_ context.Context, key Key) (webrtc.SessionDescription, bool, error) {
	if err := key.validate(); err != nil {
		return webrtc.SessionDescription{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, _ := s.lookupLocked(key, false)
	if sess == nil || sess.offer == nil {
		return webrtc.SessionDescription{}, false, nil
	}
	return *sess.offer, true, nil
}

func (s *MemoryStore) TakeOffer(_ context.Context, key Key) (webrtc.SessionDescription, bool, error) {
	if err := key.validate(); err != nil {
		return webrtc.SessionDescription{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, _ := s.lookupLocked(key, false)
	if sess == nil || sess.offer == nil {
		return webrtc.SessionDescription{}, false, nil
	}
	offer := *sess.offer
	sess.offer = nil
	s.dropIfEmptyLocked(key, sess)
	return offer, true, nil
}

func (s *MemoryStore) ClearOffer(_ context.Context, key Key, ifSDP string) error {
	if err := key.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, _ := s.lookupLocked(key, false)
	if sess == nil || sess.offer == nil {
		return nil
	}
	if ifSDP != "" && sess.offer.SDP != ifSDP {
		return nil
	}
	sess.offer = nil
	s.dropIfEmptyLocked(key, sess)
	return nil
}

func (s *MemoryStore) EnqueueICE(_ context.Context, key Key, dir Direction, c webrtc.ICECandidateInit) error {
	if err := key.validate(); err != nil {
		return err
	}
	idx, err := dir.index()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookupLocked(key, true)
	if err != nil {
		return err
	}
	if s.cfg.MaxQueueLen > 0 && len(sess.queues[idx]) >= s.cfg.MaxQueueLen {
		return ErrQueueFull
	}
	sess.queues[idx] = append(sess.queues[idx], c)
	return nil
}

func (s *MemoryStore) DequeueICE(_ context.Context, key Key, dir Direction) (webrtc.ICECandidateInit, bool, error) {
	if err := key.validate(); err != nil {
		return webrtc.ICECandidateInit{}, false, err
	}
	idx, err := dir.index()
	if err != nil {
		return webrtc.ICECandidateInit{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, _ := s.lookupLocked(key, false)
	if sess == nil || len(sess.queues[idx]) == 0 {
		return webrtc.ICECandidateInit{}, false, nil
	}
	q := sess.queues[idx]
	c := q[0]
	copy(q, q[1:])
	q[len(q)-1] = webrtc.ICECandidateInit{}
	sess.queues[idx] = q[:len(q)-1]
	s.dropIfEmptyLocked(key, sess)
	return c, true, nil
}

func (s *MemoryStore) Len(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions), nil
}

func (s *MemoryStore) Reset(context.Context) error {
	s.mu.Lock()
	s.sessions = make(map[Key]*memorySession)
	s.mu.Unlock()
	return nil
}

// Sweep evicts sessions that have not been touched for IdleTTL and returns
// the number evicted. It is a no-op when IdleTTL is zero.
func (s *MemoryStore) Sweep(now time.Time) int {
	if s.cfg.IdleTTL <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, sess := range s.sessions {
		if now.Sub(sess.lastUsed) >= s.cfg.IdleTTL {
			delete(s.sessions, key)
			evicted++
		}
	}
	return evicted
}

// RunSweeper calls Sweep every interval until ctx is done. onEvict, if
// non-nil, is called with the count of every non-empty sweep.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration, onEvict func(n int)) {
	if s.cfg.IdleTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(s.cfg.Now()); n > 0 && onEvict != nil {
				onEvict(n)
			}
		}
	}
}
