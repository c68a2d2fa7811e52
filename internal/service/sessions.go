package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/happiness-journal/internal/model"
	"github.com/iliyamo/happiness-journal/internal/repository"
	"github.com/iliyamo/happiness-journal/internal/utils"
)

const (
	// NativeSessionTTL is the lifetime of a token issued by POST /api/token.
	NativeSessionTTL = 21 * 24 * time.Hour
	// OAuthSessionTTL is the lifetime of a token issued by the OAuth front.
	OAuthSessionTTL = 24 * time.Hour
	// SweepGrace is how long expired rows are kept before Sweep deletes them.
	SweepGrace = 24 * time.Hour
)

// SessionService issues and checks opaque bearer tokens.  Only the SHA-256
// digest of a token is stored.  Every method resolves its connection from
// the context, so Issue and Revoke join an enclosing database.WithTx while
// Verify also works against the bare pool.
type SessionService struct {
	Tokens *repository.TokenRepo
	Now    func() time.Time
}

func NewSessionService(tokens *repository.TokenRepo) *SessionService {
	return &SessionService{Tokens: tokens, Now: time.Now}
}

// Issue creates a token for userID valid for ttl and returns the plaintext.
// The plaintext is not recoverable afterwards.
func (s *SessionService) Issue(ctx context.Context, userID uint64, ttl time.Duration) (string, model.SessionToken, error) {
	raw, err := utils.NewSessionToken()
	if err != nil {
		return "", model.SessionToken{}, err
	}
	now := s.Now().UTC()
	rec := model.SessionToken{
		UserID:      userID,
		HashedValue: utils.HashToken(raw),
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}
	id, err := s.Tokens.Store(ctx, userID, rec.HashedValue, rec.ExpiresAt)
	if err != nil {
		return "", model.SessionToken{}, err
	}
	rec.ID = id
	return raw, rec, nil
}

// Verify returns the owner of a valid token.
func (s *SessionService) Verify(ctx context.Context, raw string) (uint64, error) {
	if raw == "" {
		return 0, ErrInvalidToken
	}
	uid, err := s.Tokens.Lookup(ctx, utils.HashToken(raw), s.Now().UTC())
	if errors.Is(err, repository.ErrNotFound) {
		return 0, ErrInvalidToken
	}
	return uid, err
}

// Revoke moves the token's expiry into the past.  Revoking an unknown or
// already expired token yields ErrInvalidToken.
func (s *SessionService) Revoke(ctx context.Context, raw string) error {
	n, err := s.Tokens.Expire(ctx, utils.HashToken(raw), s.Now().UTC().Add(-time.Second))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidToken
	}
	return nil
}

// RevokeAll expires every token of a user.
func (s *SessionService) RevokeAll(ctx context.Context, userID uint64) error {
	return s.Tokens.ExpireAllForUser(ctx, userID, s.Now().UTC().Add(-time.Second))
}

// Sweep deletes rows that expired more than SweepGrace ago.
func (s *SessionService) Sweep(ctx context.Context) (int64, error) {
	return s.Tokens.DeleteExpiredBefore(ctx, s.Now().UTC().Add(-SweepGrace))
}
