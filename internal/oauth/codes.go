package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/happiness-journal/internal/utils"
)

// CodeTTL is the lifetime of an authorization code.
const CodeTTL = 10 * time.Minute

// codeBytes gives 256-bit codes.
const codeBytes = 32

// AuthCode is the state staged between POST /authorize and POST /token.
type AuthCode struct {
	UserID              uint64    `json:"user_id"`
	ExpiresAt           time.Time `json:"expires_at"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
	ClientID            string    `json:"client_id,omitempty"`
	RedirectURI         string    `json:"redirect_uri"`
}

// CodeStore stages one-time authorization codes.  Consume must let at
// most one caller obtain the user for a given code.
type CodeStore interface {
	Issue(ctx context.Context, c AuthCode) (string, error)
	Consume(ctx context.Context, code, verifier, redirectURI string) (uint64, error)
	Sweep(ctx context.Context) (int, error)
}

// check validates a loaded code against the token request.  Expiry is
// checked by the caller because it also deletes the entry.
func (c AuthCode) check(verifier, redirectURI string) error {
	if c.RedirectURI != redirectURI {
		return invalidGrant("redirect_uri_mismatch")
	}
	if c.CodeChallenge == "" {
		return nil
	}
	if verifier == "" {
		return invalidRequest("code_verifier_required")
	}
	if !VerifyPKCE(c.CodeChallengeMethod, c.CodeChallenge, verifier) {
		return invalidGrant("invalid code_verifier")
	}
	return nil
}

// MemoryCodeStore keeps codes in process memory.  It is only correct when
// a single process serves the OAuth endpoints.
type MemoryCodeStore struct {
	mu    sync.Mutex
	codes map[string]AuthCode
	now   func() time.Time
}

func NewMemoryCodeStore() *MemoryCodeStore {
	return &MemoryCodeStore{codes: make(map[string]AuthCode), now: time.Now}
}

func (s *MemoryCodeStore) Issue(_ context.Context, c AuthCode) (string, error) {
	code, err := utils.RandomURLToken(codeBytes)
	if err != nil {
		return "", err
	}
	c.ExpiresAt = s.now().UTC().Add(CodeTTL)

	s.mu.Lock()
	s.codes[code] = c
	s.mu.Unlock()
	return code, nil
}

func (s *MemoryCodeStore) Consume(_ context.Context, code, verifier, redirectURI string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.codes[code]
	if !ok {
		return 0, invalidGrant("invalid code")
	}
	if !s.now().Before(c.ExpiresAt) {
		delete(s.codes, code)
		return 0, invalidGrant("code expired")
	}
	if err := c.check(verifier, redirectURI); err != nil {
		return 0, err
	}
	delete(s.codes, code)
	return c.UserID, nil
}

func (s *MemoryCodeStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for k, c := range s.codes {
		if !now.Before(c.ExpiresAt) {
			delete(s.codes, k)
			n++
		}
	}
	return n, nil
}

// RedisCodeStore keeps codes in Redis so that every API process sees the
// same set.  The DEL reply decides which concurrent consumer wins.
type RedisCodeStore struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisCodeStore(rdb *redis.Client, prefix string) *RedisCodeStore {
	if prefix == "" {
		prefix = "hj:oauth:code"
	}
	return &RedisCodeStore{rdb: rdb, prefix: prefix, now: time.Now}
}

func (s *RedisCodeStore) key(code string) string { return s.prefix + ":" + code }

func (s *RedisCodeStore) Issue(ctx context.Context, c AuthCode) (string, error) {
	code, err := utils.RandomURLToken(codeBytes)
	if err != nil {
		return "", err
	}
	c.ExpiresAt = s.now().UTC().Add(CodeTTL)
	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	ok, err := s.rdb.SetNX(ctx, s.key(code), payload, CodeTTL).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New("authorization code collision")
	}
	return code, nil
}

func (s *RedisCodeStore) Consume(ctx context.Context, code, verifier, redirectURI string) (uint64, error) {
	k := s.key(code)
	raw, err := s.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, invalidGrant("invalid code")
	}
	if err != nil {
		return 0, err
	}
	var c AuthCode
	if err := json.Unmarshal(raw, &c); err != nil {
		_ = s.rdb.Del(ctx, k).Err()
		return 0, invalidGrant("invalid code")
	}
	if !s.now().Before(c.ExpiresAt) {
		_ = s.rdb.Del(ctx, k).Err()
		return 0, invalidGrant("code expired")
	}
	if err := c.check(verifier, redirectURI); err != nil {
		return 0, err
	}
	n, err := s.rdb.Del(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	if n != 1 {
		// another consumer deleted it first
		return 0, invalidGrant("invalid code")
	}
	return c.UserID, nil
}

// Sweep is a no-op: Redis expires keys on its own.
func (s *RedisCodeStore) Sweep(context.Context) (int, error) { return 0, nil }
