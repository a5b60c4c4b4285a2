// Package ratelimit throttles HTTP callers by client address.
package ratelimit

import (
	"container/list"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMaxClients bounds the limiter table when Config.MaxClients is unset.
const DefaultMaxClients = 10000

type Config struct {
	// PerSecond is the sustained request rate per client. Zero or less
	// disables limiting.
	PerSecond float64
	Burst     int
	// MaxClients bounds the number of tracked clients. The least recently
	// seen client is forgotten first.
	MaxClients int

	// OnEvict is called once per forgotten client, outside the lock.
	OnEvict func()
	// Now overrides the clock in tests.
	Now func() time.Time
}

// ClientLimiter holds one token bucket per client key.
type ClientLimiter struct {
	limit rate.Limit
	burst int
	max   int

	onEvict func()
	now     func() time.Time

	mu      sync.Mutex
	clients map[string]*list.Element
	lru     *list.List
}

type clientEntry struct {
	key     string
	limiter *rate.Limiter
}

// New returns nil when cfg disables limiting. A nil *ClientLimiter allows
// everything.
func New(cfg Config) *ClientLimiter {
	if cfg.PerSecond <= 0 {
		return nil
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = DefaultMaxClients
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ClientLimiter{
		limit:   rate.Limit(cfg.PerSecond),
		burst:   cfg.Burst,
		max:     cfg.MaxClients,
		onEvict: cfg.OnEvict,
		now:     cfg.Now,
		clients: make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// Allow spends one token from key's bucket.
func (l *ClientLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	return l.bucket(key).AllowN(l.now(), 1)
}

// Len returns the number of tracked clients.
func (l *ClientLimiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lru.Len()
}

func (l *ClientLimiter) bucket(key string) *rate.Limiter {
	var evicted bool

	l.mu.Lock()
	if elem, ok := l.clients[key]; ok {
		l.lru.MoveToFront(elem)
		lim := elem.Value.(*clientEntry).limiter
		l.mu.Unlock()
		return lim
	}

	if l.lru.Len() >= l.max {
		if oldest := l.lru.Back(); oldest != nil {
			l.lru.Remove(oldest)
			delete(l.clients, oldest.Value.(*clientEntry).key)
			evicted = true
		}
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.clients[key] = l.lru.PushFront(&clientEntry{key: key, limiter: lim})
	l.mu.Unlock()

	if evicted && l.onEvict != nil {
		l.onEvict()
	}
	return lim
}

// ClientKey identifies the caller of r by its remote IP. Forwarding headers
// are ignored since any client can set them.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
