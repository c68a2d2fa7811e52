package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRepo_LookupValid(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT user_id, expires_at FROM session_tokens WHERE hashed_value=\?`).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at"}).AddRow(4, now.Add(time.Hour)))

	uid, err := repo.Lookup(context.Background(), "abc", now)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), uid)
}

func TestTokenRepo_LookupExpired(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT user_id, expires_at FROM session_tokens`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at"}).AddRow(4, now))

	_, err := repo.Lookup(context.Background(), "abc", now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokenRepo_LookupUnknown(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)

	mock.ExpectQuery(`SELECT user_id, expires_at FROM session_tokens`).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Lookup(context.Background(), "abc", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokenRepo_ExpireReportsRows(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)
	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE session_tokens SET expires_at=\? WHERE hashed_value=\? AND expires_at>\?`).
		WithArgs(at, "abc", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.Expire(context.Background(), "abc", at)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestTokenRepo_DeleteExpiredBefore(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)
	cutoff := time.Now().UTC().Add(-24 * time.Hour)

	mock.ExpectExec(`DELETE FROM session_tokens WHERE expires_at<\?`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteExpiredBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
