package model

import (
	"database/sql"
	"time"
)

// User represents a row of the `users` table.  The struct is used by the
// repository and service layers; handlers render their own response
// shapes and never serialize PasswordHash or the wrapped keys.
//
// Fields:
//
//	ID                 – primary key identifier of the user.
//	Email              – unique, stored lower-case.
//	Username           – unique, compared case-insensitively.
//	PasswordHash       – bcrypt hash of the password.
//	Pfp                – profile picture URL (nullable).
//	WrappedDEK         – the data-encryption key wrapped by the password key.
//	WrappedDEKRecovery – the same key wrapped by the recovery phrase (nullable).
//	CreatedAt          – timestamp of creation.
type User struct {
	ID                 uint64         // users.id
	Email              string         // users.email
	Username           string         // users.username
	PasswordHash       string         // users.password_hash
	Pfp                sql.NullString // users.pfp
	WrappedDEK         string         // users.wrapped_dek
	WrappedDEKRecovery sql.NullString // users.wrapped_dek_recovery
	CreatedAt          time.Time      // users.created_at
}

// HasRecovery reports whether a recovery-wrapped key is stored.
func (u User) HasRecovery() bool {
	return u.WrappedDEKRecovery.Valid && u.WrappedDEKRecovery.String != ""
}

// SessionToken models an entry in the `session_tokens` table.  The
// plaintext token is never stored; only its SHA-256 hex digest.
type SessionToken struct {
	ID          uint64    // session_tokens.id
	UserID      uint64    // session_tokens.user_id
	HashedValue string    // session_tokens.hashed_value
	ExpiresAt   time.Time // session_tokens.expires_at
	CreatedAt   time.Time // session_tokens.created_at
}
