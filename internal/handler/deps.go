package handler

import (
	"context"
	"time"

	"github.com/iliyamo/happiness-journal/internal/model"
)

// Accounts is the account service as seen by the HTTP layer.
type Accounts interface {
	Register(ctx context.Context, email, username, password string) (model.User, error)
	VerifyCredentials(ctx context.Context, identifier, password string) (model.User, error)
	PasswordKey(password string) string
	ChangePassword(ctx context.Context, userID uint64, oldPwdKey, newPassword string) (string, error)
	AddRecoveryPhrase(ctx context.Context, userID uint64, pwdKey, phrase string) error
	ResetPassword(ctx context.Context, userID uint64, newPassword, phrase string) (bool, error)
	ChangeUsername(ctx context.Context, userID uint64, username string) error
	ChangeEmail(ctx context.Context, userID uint64, email string) error
	Delete(ctx context.Context, userID uint64) error
}

// Sessions issues and revokes bearer tokens.
type Sessions interface {
	Issue(ctx context.Context, userID uint64, ttl time.Duration) (string, model.SessionToken, error)
	Revoke(ctx context.Context, raw string) error
}

// Users reads profile data.
type Users interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	UpdatePfp(ctx context.Context, id uint64, url string) error
}

// Journals is the encrypted journal service.
type Journals interface {
	Create(ctx context.Context, userID uint64, pwdKey, data string, day model.Date) (model.Journal, error)
	List(ctx context.Context, userID uint64, pwdKey string, start, end model.Date) ([]model.Journal, error)
	Update(ctx context.Context, userID uint64, pwdKey string, id uint64, data string) (model.Journal, error)
	Delete(ctx context.Context, userID, id uint64) error
}

// KeyMinter turns a password key into a Password-Key token.
type KeyMinter interface {
	Mint(pwdKey string) (string, time.Time, error)
	Verify(tok string) (string, error)
}
