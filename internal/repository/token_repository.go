package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/happiness-journal/internal/database"
)

// TokenRepo persists session tokens by their SHA-256 hex digest
// ('hashed_value' column).  The plaintext never reaches this layer.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Store inserts a token hash row and returns its id.
func (r *TokenRepo) Store(ctx context.Context, userID uint64, hash string, exp time.Time) (uint64, error) {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"INSERT INTO session_tokens (user_id, hashed_value, expires_at) VALUES (?,?,?)",
		userID, hash, exp)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Lookup returns the owner of an unexpired token.  Expired and unknown
// hashes both yield ErrNotFound.
func (r *TokenRepo) Lookup(ctx context.Context, hash string, now time.Time) (uint64, error) {
	var (
		userID    uint64
		expiresAt time.Time
	)
	err := database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT user_id, expires_at FROM session_tokens WHERE hashed_value=? LIMIT 1",
		hash).Scan(&userID, &expiresAt)
	if err != nil {
		return 0, notFound(err)
	}
	if !expiresAt.After(now) {
		return 0, ErrNotFound
	}
	return userID, nil
}

// Expire moves an active token's expiry to at.  It reports how many rows
// changed so callers can tell an already-revoked token apart.
func (r *TokenRepo) Expire(ctx context.Context, hash string, at time.Time) (int64, error) {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"UPDATE session_tokens SET expires_at=? WHERE hashed_value=? AND expires_at>?",
		at, hash, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExpireAllForUser revokes every active token of a user.
func (r *TokenRepo) ExpireAllForUser(ctx context.Context, userID uint64, at time.Time) error {
	_, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"UPDATE session_tokens SET expires_at=? WHERE user_id=? AND expires_at>?",
		at, userID, at)
	return err
}

// DeleteExpiredBefore removes rows that expired before cutoff.
func (r *TokenRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"DELETE FROM session_tokens WHERE expires_at<?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
