package service

import (
	"context"
	"database/sql"
	"errors"
	"net/mail"
	"strings"

	"github.com/iliyamo/happiness-journal/internal/database"
	"github.com/iliyamo/happiness-journal/internal/keys"
	"github.com/iliyamo/happiness-journal/internal/logger"
	"github.com/iliyamo/happiness-journal/internal/model"
	"github.com/iliyamo/happiness-journal/internal/repository"
	"github.com/iliyamo/happiness-journal/internal/utils"

	"go.uber.org/zap"
)

// AccountService owns user identity: registration, credential checks and
// every operation that touches the password or the wrapped keys.
type AccountService struct {
	DB         *sql.DB
	Users      *repository.UserRepo
	Journal    *repository.JournalRepo
	Sessions   *SessionService
	Keys       *keys.Engine
	BcryptCost int
}

func NewAccountService(db *sql.DB, users *repository.UserRepo, journal *repository.JournalRepo,
	sessions *SessionService, k *keys.Engine, cost int) *AccountService {
	return &AccountService{DB: db, Users: users, Journal: journal, Sessions: sessions, Keys: k, BcryptCost: cost}
}

// Register creates a user together with its wrapped DEK in one
// transaction.  Email and username are unique regardless of case.
func (s *AccountService) Register(ctx context.Context, email, username, password string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)
	if err := validateEmail(email); err != nil {
		return model.User{}, err
	}
	if err := validateUsername(username); err != nil {
		return model.User{}, err
	}
	if err := validatePassword(password); err != nil {
		return model.User{}, err
	}

	hash, err := utils.HashPassword(password, s.BcryptCost)
	if err != nil {
		return model.User{}, err
	}
	wrapped, err := s.Keys.Init(s.Keys.DerivePasswordKey(password))
	if err != nil {
		return model.User{}, err
	}

	u := model.User{Email: email, Username: username, PasswordHash: hash, WrappedDEK: wrapped}
	err = database.WithTx(ctx, s.DB, func(ctx context.Context) error {
		taken, err := s.Users.Taken(ctx, email, username)
		if err != nil {
			return err
		}
		if taken {
			return ErrAlreadyExists
		}
		id, err := s.Users.Create(ctx, u)
		if errors.Is(err, repository.ErrDuplicate) {
			return ErrAlreadyExists
		}
		u.ID = id
		return err
	})
	if err != nil {
		return model.User{}, err
	}
	logger.WithContext(ctx).Info("user registered", zap.Uint64("user_id", u.ID))
	return u, nil
}

// VerifyCredentials matches identifier against emails first, then
// usernames, and checks the password.  When no user matches, a dummy
// bcrypt comparison keeps the timing equal to a wrong password.
func (s *AccountService) VerifyCredentials(ctx context.Context, identifier, password string) (model.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return model.User{}, ErrInvalidCredentials
	}
	u, err := s.Users.GetByEmail(ctx, identifier)
	if errors.Is(err, repository.ErrNotFound) {
		u, err = s.Users.GetByUsername(ctx, identifier)
	}
	if errors.Is(err, repository.ErrNotFound) {
		utils.BurnPasswordCheck(password, s.BcryptCost)
		return model.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return model.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// PasswordKey derives the password key of a plaintext password.
func (s *AccountService) PasswordKey(password string) string {
	return s.Keys.DerivePasswordKey(password)
}

// ChangePassword re-wraps the existing DEK under the new password.  If the
// old key cannot unwrap it the password hash is left untouched and
// keys.ErrInvalidKey is returned.  The new password key is returned so the
// caller can mint a fresh password-key token.
func (s *AccountService) ChangePassword(ctx context.Context, userID uint64, oldPwdKey, newPassword string) (string, error) {
	if err := validatePassword(newPassword); err != nil {
		return "", err
	}
	newKey := s.Keys.DerivePasswordKey(newPassword)
	err := database.WithTx(ctx, s.DB, func(ctx context.Context) error {
		u, err := s.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		rewrapped, err := s.Keys.Rewrap(oldPwdKey, newKey, u.WrappedDEK)
		if err != nil {
			return err
		}
		hash, err := utils.HashPassword(newPassword, s.BcryptCost)
		if err != nil {
			return err
		}
		return s.Users.UpdateCredentials(ctx, userID, hash, rewrapped)
	})
	if err != nil {
		return "", err
	}
	return newKey, nil
}

// AddRecoveryPhrase stores a copy of the DEK wrapped by the phrase.
func (s *AccountService) AddRecoveryPhrase(ctx context.Context, userID uint64, pwdKey, phrase string) error {
	if strings.TrimSpace(phrase) == "" {
		return invalid("phrase required")
	}
	return database.WithTx(ctx, s.DB, func(ctx context.Context) error {
		u, err := s.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		recovery, err := s.Keys.Rewrap(pwdKey, s.Keys.DeriveRecoveryKey(phrase), u.WrappedDEK)
		if err != nil {
			return err
		}
		return s.Users.SetRecovery(ctx, userID, sql.NullString{String: recovery, Valid: true})
	})
}

// ResetPassword sets a new password for a user who lost the old one.  When
// a recovery copy exists and phrase unwraps it, the DEK is re-wrapped and
// the journal survives.  Otherwise a new DEK is generated and the user's
// journal rows are deleted in the same transaction, because nothing could
// decrypt them anymore.  Every session of the user is revoked.
func (s *AccountService) ResetPassword(ctx context.Context, userID uint64, newPassword, phrase string) (bool, error) {
	if err := validatePassword(newPassword); err != nil {
		return false, err
	}
	newKey := s.Keys.DerivePasswordKey(newPassword)
	hash, err := utils.HashPassword(newPassword, s.BcryptCost)
	if err != nil {
		return false, err
	}

	preserved := false
	err = database.WithTx(ctx, s.DB, func(ctx context.Context) error {
		u, err := s.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if u.HasRecovery() && strings.TrimSpace(phrase) != "" {
			rewrapped, err := s.Keys.Rewrap(s.Keys.DeriveRecoveryKey(phrase), newKey, u.WrappedDEKRecovery.String)
			if err == nil {
				preserved = true
				if err := s.Users.UpdateCredentials(ctx, userID, hash, rewrapped); err != nil {
					return err
				}
				return s.Sessions.RevokeAll(ctx, userID)
			}
			if !errors.Is(err, keys.ErrInvalidKey) {
				return err
			}
		}

		wrapped, err := s.Keys.Init(newKey)
		if err != nil {
			return err
		}
		if err := s.Users.UpdateCredentials(ctx, userID, hash, wrapped); err != nil {
			return err
		}
		if _, err := s.Journal.DeleteAllForUser(ctx, userID); err != nil {
			return err
		}
		if err := s.Users.SetRecovery(ctx, userID, sql.NullString{}); err != nil {
			return err
		}
		return s.Sessions.RevokeAll(ctx, userID)
	})
	if err != nil {
		return false, err
	}
	logger.WithContext(ctx).Info("password reset",
		zap.Uint64("user_id", userID), zap.Bool("data_preserved", preserved))
	return preserved, nil
}

// ChangeUsername renames a user.
func (s *AccountService) ChangeUsername(ctx context.Context, userID uint64, username string) error {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return err
	}
	err := s.Users.UpdateUsername(ctx, userID, username)
	if errors.Is(err, repository.ErrDuplicate) {
		return ErrAlreadyExists
	}
	return err
}

// ChangeEmail changes the login email.
func (s *AccountService) ChangeEmail(ctx context.Context, userID uint64, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validateEmail(email); err != nil {
		return err
	}
	err := s.Users.UpdateEmail(ctx, userID, email)
	if errors.Is(err, repository.ErrDuplicate) {
		return ErrAlreadyExists
	}
	return err
}

// Delete removes the user and, through foreign keys, everything it owns.
func (s *AccountService) Delete(ctx context.Context, userID uint64) error {
	return s.Users.Delete(ctx, userID)
}

func validateEmail(email string) error {
	if email == "" || len(email) > 255 {
		return invalid("email required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return invalid("invalid email")
	}
	return nil
}

func validateUsername(username string) error {
	if username == "" || len(username) > 64 {
		return invalid("username must be 1-64 characters")
	}
	if strings.ContainsAny(username, " @:/") {
		return invalid("username contains invalid characters")
	}
	return nil
}

func validatePassword(password string) error {
	if password == "" {
		return invalid("password required")
	}
	if len(password) > 72 {
		return invalid("password must be at most 72 bytes")
	}
	return nil
}
