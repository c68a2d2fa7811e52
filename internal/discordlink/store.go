package discordlink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps link sessions.  Complete and Claim must be atomic with
// respect to each other so a token is delivered at most once.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, linkID string) (Session, error)
	// Update applies fn to an unexpired session whose status is from.
	Update(ctx context.Context, linkID string, from Status, fn func(*Session)) error
	// Claim returns a pending session unchanged and removes a complete one.
	Claim(ctx context.Context, linkID string) (Session, error)
	Sweep(ctx context.Context) (int, error)
}

// MemoryStore is a process-local Store for single-worker deployments.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session), now: time.Now}
}

func (m *MemoryStore) Create(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.LinkID]; ok {
		return errors.New("link id collision")
	}
	m.sessions[s.LinkID] = s
	return nil
}

func (m *MemoryStore) Get(_ context.Context, linkID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[linkID]
	if !ok || !m.now().Before(s.ExpiresAt) {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) Update(_ context.Context, linkID string, from Status, fn func(*Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[linkID]
	if !ok || !m.now().Before(s.ExpiresAt) {
		return ErrNotFound
	}
	if s.Status != from {
		return ErrNotPending
	}
	fn(&s)
	m.sessions[linkID] = s
	return nil
}

func (m *MemoryStore) Claim(_ context.Context, linkID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[linkID]
	if !ok || s.expired(m.now()) {
		return Session{}, ErrNotFound
	}
	if s.Status == StatusComplete {
		delete(m.sessions, linkID)
	}
	return s, nil
}

func (m *MemoryStore) Sweep(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for id, s := range m.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// RedisStore shares sessions between API processes.  Keys expire with the
// session; Update and Claim use WATCH/MULTI so racing pollers see the
// session removed at most once.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "hj:discord:link"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, now: time.Now}
}

// maxTxRetries bounds optimistic retries when a watched key changes.
const maxTxRetries = 3

func (r *RedisStore) key(linkID string) string { return r.prefix + ":" + linkID }

func (r *RedisStore) Create(ctx context.Context, s Session) error {
	ttl := s.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return errors.New("link session already expired")
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ok, err := r.rdb.SetNX(ctx, r.key(s.LinkID), payload, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("link id collision")
	}
	return nil
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisStore) load(ctx context.Context, c getter, linkID string) (Session, error) {
	raw, err := c.Get(ctx, r.key(linkID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, err
	}
	if !r.now().Before(s.ExpiresAt) {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (r *RedisStore) Get(ctx context.Context, linkID string) (Session, error) {
	return r.load(ctx, r.rdb, linkID)
}

func (r *RedisStore) Update(ctx context.Context, linkID string, from Status, fn func(*Session)) error {
	key := r.key(linkID)
	txf := func(tx *redis.Tx) error {
		s, err := r.load(ctx, tx, linkID)
		if err != nil {
			return err
		}
		if s.Status != from {
			return ErrNotPending
		}
		fn(&s)
		payload, err := json.Marshal(s)
		if err != nil {
			return err
		}
		ttl := s.ExpiresAt.Sub(r.now())
		if ttl <= 0 {
			return ErrNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			return nil
		})
		return err
	}
	return r.watch(ctx, key, txf)
}

func (r *RedisStore) Claim(ctx context.Context, linkID string) (Session, error) {
	key := r.key(linkID)
	var out Session
	txf := func(tx *redis.Tx) error {
		s, err := r.load(ctx, tx, linkID)
		if err != nil {
			return err
		}
		if s.Status == StatusExpired {
			return ErrNotFound
		}
		if s.Status == StatusComplete {
			if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			}); err != nil {
				return err
			}
		}
		out = s
		return nil
	}
	if err := r.watch(ctx, key, txf); err != nil {
		return Session{}, err
	}
	return out, nil
}

// Sweep is a no-op: Redis expires session keys on its own.
func (r *RedisStore) Sweep(context.Context) (int, error) { return 0, nil }

func (r *RedisStore) watch(ctx context.Context, key string, txf func(*redis.Tx) error) error {
	for i := 0; i < maxTxRetries; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}
