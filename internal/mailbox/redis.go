package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/redis/go-redis/v9"
)

const redisTxRetries = 5

// RedisConfig configures a RedisStore. Prefix is optional and defaults to
// "signaling".
//
// MaxSessions is not enforced by RedisStore; counting sessions needs a key
// scan and is only done by Len.
type RedisConfig struct {
	Prefix      string
	MaxQueueLen int
	IdleTTL     time.Duration
}

// RedisStore implements Store on Redis.
//
// Layout:
//
//	<prefix>:offer:<namespace>:<id>       string, JSON offer
//	<prefix>:ice:<namespace>:<id>:<dir>   list, JSON candidates (RPUSH/LPOP)
//
// Every write refreshes the key expiry to IdleTTL.
type RedisStore struct {
	rdb redis.UniversalClient
	cfg RedisConfig
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb redis.UniversalClient, cfg RedisConfig) *RedisStore {
	p := strings.TrimSuffix(strings.TrimSpace(cfg.Prefix), ":")
	if p == "" {
		p = "signaling"
	}
	cfg.Prefix = p
	return &RedisStore{rdb: rdb, cfg: cfg}
}

type redisOffer struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func encodeOffer(offer webrtc.SessionDescription) ([]byte, error) {
	return json.Marshal(redisOffer{Type: offer.Type.String(), SDP: offer.SDP})
}

func decodeOffer(raw []byte) (webrtc.SessionDescription, error) {
	var rec redisOffer
	if err := json.Unmarshal(raw, &rec); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(rec.Type), SDP: rec.SDP}, nil
}

func (s *RedisStore) offerKey(key Key) string {
	return fmt.Sprintf("%s:offer:%s:%s", s.cfg.Prefix, key.Namespace, key.ID)
}

func (s *RedisStore) iceKey(key Key, dir Direction) string {
	return fmt.Sprintf("%s:ice:%s:%s:%s", s.cfg.Prefix, key.Namespace, key.ID, dir)
}

func (s *RedisStore) PutOffer(ctx context.Context, key Key, offer webrtc.SessionDescription) error {
	if err := key.validate(); err != nil {
		return err
	}
	raw, err := encodeOffer(offer)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.offerKey(key), raw, s.cfg.IdleTTL).Err(); err != nil {
		return fmt.Errorf("redis put offer %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) PeekOffer(ctx context.Context, key Key) (webrtc.SessionDescription, bool, error) {
	if err := key.validate(); err != nil {
		return webrtc.SessionDescription{}, false, err
	}
	raw, err := s.rdb.Get(ctx, s.offerKey(key)).Bytes()
	return s.offerResult(key, raw, err)
}

func (s *RedisStore) TakeOffer(ctx context.Context, key Key) (webrtc.SessionDescription, bool, error) {
	if err := key.validate(); err != nil {
		return webrtc.SessionDescription{}, false, err
	}
	raw, err := s.rdb.GetDel(ctx, s.offerKey(key)).Bytes()
	return s.offerResult(key, raw, err)
}

func (s *RedisStore) offerResult(key Key, raw []byte, err error) (webrtc.SessionDescription, bool, error) {
	if errors.Is(err, redis.Nil) {
		return webrtc.SessionDescription{}, false, nil
	}
	if err != nil {
		return webrtc.SessionDescription{}, false, fmt.Errorf("redis get offer %s: %w", key, err)
	}
	offer, err := decodeOffer(raw)
	if err != nil {
		return webrtc.SessionDescription{}, false, fmt.Errorf("decode stored offer %s: %w", key, err)
	}
	return offer, true, nil
}

func (s *RedisStore) ClearOffer(ctx context.Context, key Key, ifSDP string) error {
	if err := key.validate(); err != nil {
		return err
	}
	k := s.offerKey(key)
	if ifSDP == "" {
		if err := s.rdb.Del(ctx, k).Err(); err != nil {
			return fmt.Errorf("redis clear offer %s: %w", key, err)
		}
		return nil
	}

	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		offer, err := decodeOffer(raw)
		if err != nil {
			return err
		}
		if offer.SDP != ifSDP {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, k)
			return nil
		})
		return err
	}, k)
	// A concurrent write replaced the offer, which is exactly the case the
	// compare is meant to protect.
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis clear offer %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) EnqueueICE(ctx context.Context, key Key, dir Direction, c webrtc.ICECandidateInit) error {
	if err := key.validate(); err != nil {
		return err
	}
	if _, err := dir.index(); err != nil {
		return err
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	k := s.iceKey(key, dir)

	push := func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, k, raw)
		if s.cfg.IdleTTL > 0 {
			pipe.Expire(ctx, k, s.cfg.IdleTTL)
		}
		return nil
	}

	if s.cfg.MaxQueueLen <= 0 {
		if _, err := s.rdb.TxPipelined(ctx, push); err != nil {
			return fmt.Errorf("redis enqueue ice %s: %w", key, err)
		}
		return nil
	}

	txf := func(tx *redis.Tx) error {
		n, err := tx.LLen(ctx, k).Result()
		if err != nil {
			return err
		}
		if n >= int64(s.cfg.MaxQueueLen) {
			return ErrQueueFull
		}
		_, err = tx.TxPipelined(ctx, push)
		return err
	}
	for attempt := 0; attempt < redisTxRetries; attempt++ {
		err := s.rdb.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, ErrQueueFull) {
			return fmt.Errorf("redis enqueue ice %s: %w", key, err)
		}
		return err
	}
	return fmt.Errorf("redis enqueue ice %s: %w", key, redis.TxFailedErr)
}

func (s *RedisStore) DequeueICE(ctx context.Context, key Key, dir Direction) (webrtc.ICECandidateInit, bool, error) {
	if err := key.validate(); err != nil {
		return webrtc.ICECandidateInit{}, false, err
	}
	if _, err := dir.index(); err != nil {
		return webrtc.ICECandidateInit{}, false, err
	}
	raw, err := s.rdb.LPop(ctx, s.iceKey(key, dir)).Bytes()
	if errors.Is(err, redis.Nil) {
		return webrtc.ICECandidateInit{}, false, nil
	}
	if err != nil {
		return webrtc.ICECandidateInit{}, false, fmt.Errorf("redis dequeue ice %s: %w", key, err)
	}
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &c); err != nil {
		return webrtc.ICECandidateInit{}, false, fmt.Errorf("decode stored candidate %s: %w", key, err)
	}
	return c, true, nil
}

// Len counts distinct sessions by scanning the key space. It is meant for
// readiness and metrics, not for hot paths.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	seen := make(map[string]struct{})

	offerPrefix := s.cfg.Prefix + ":offer:"
	iter := s.rdb.Scan(ctx, 0, offerPrefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		seen[strings.TrimPrefix(iter.Val(), offerPrefix)] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan offers: %w", err)
	}

	icePrefix := s.cfg.Prefix + ":ice:"
	iter = s.rdb.Scan(ctx, 0, icePrefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		rest := strings.TrimPrefix(iter.Val(), icePrefix)
		for _, dir := range []Direction{ToPeer, ToViewer} {
			if trimmed, ok := strings.CutSuffix(rest, ":"+string(dir)); ok {
				rest = trimmed
				break
			}
		}
		seen[rest] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan ice queues: %w", err)
	}
	return len(seen), nil
}

// Reset deletes every key under the store prefix.
func (s *RedisStore) Reset(ctx context.Context) error {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, s.cfg.Prefix+":*", 256).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

// Ping reports whether the Redis server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
