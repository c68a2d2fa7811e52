package router

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/happiness-journal/internal/keys"
	"github.com/iliyamo/happiness-journal/internal/model"
	"github.com/iliyamo/happiness-journal/internal/repository"
	"github.com/iliyamo/happiness-journal/internal/service"
	"github.com/iliyamo/happiness-journal/internal/utils"
)

// backend is an in-memory stand-in for the account, session and journal
// services.  It uses the real key engine so that encryption round trips
// behave exactly as in production.
type backend struct {
	mu      sync.Mutex
	keys    *keys.Engine
	nextID  uint64
	users   map[uint64]*model.User
	tokens  map[string]uint64
	journal map[uint64]model.Journal
}

func newBackend() *backend {
	return &backend{
		keys:    keys.NewWithIterations("test-salt", 1000),
		users:   map[uint64]*model.User{},
		tokens:  map[string]uint64{},
		journal: map[uint64]model.Journal{},
	}
}

func (b *backend) Register(_ context.Context, email, username, password string) (model.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, u := range b.users {
		if strings.EqualFold(u.Email, email) || strings.EqualFold(u.Username, username) {
			return model.User{}, service.ErrAlreadyExists
		}
	}
	hash, err := utils.HashPassword(password, bcrypt.MinCost)
	if err != nil {
		return model.User{}, err
	}
	wrapped, err := b.keys.Init(b.keys.DerivePasswordKey(password))
	if err != nil {
		return model.User{}, err
	}
	b.nextID++
	u := &model.User{ID: b.nextID, Email: strings.ToLower(email), Username: username,
		PasswordHash: hash, WrappedDEK: wrapped, CreatedAt: time.Now().UTC()}
	b.users[u.ID] = u
	return *u, nil
}

func (b *backend) VerifyCredentials(_ context.Context, identifier, password string) (model.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, u := range b.users {
		if strings.EqualFold(u.Email, identifier) || strings.EqualFold(u.Username, identifier) {
			if utils.VerifyPassword(u.PasswordHash, password) {
				return *u, nil
			}
		}
	}
	return model.User{}, service.ErrInvalidCredentials
}

func (b *backend) PasswordKey(password string) string { return b.keys.DerivePasswordKey(password) }

func (b *backend) ChangePassword(_ context.Context, uid uint64, oldKey, newPassword string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := b.users[uid]
	newKey := b.keys.DerivePasswordKey(newPassword)
	rewrapped, err := b.keys.Rewrap(oldKey, newKey, u.WrappedDEK)
	if err != nil {
		return "", err
	}
	hash, err := utils.HashPassword(newPassword, bcrypt.MinCost)
	if err != nil {
		return "", err
	}
	u.PasswordHash, u.WrappedDEK = hash, rewrapped
	return newKey, nil
}

func (b *backend) AddRecoveryPhrase(_ context.Context, uid uint64, pwdKey, phrase string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := b.users[uid]
	rec, err := b.keys.Rewrap(pwdKey, b.keys.DeriveRecoveryKey(phrase), u.WrappedDEK)
	if err != nil {
		return err
	}
	u.WrappedDEKRecovery = sql.NullString{String: rec, Valid: true}
	return nil
}

func (b *backend) ResetPassword(context.Context, uint64, string, string) (bool, error) {
	return false, nil
}

func (b *backend) ChangeUsername(context.Context, uint64, string) error { return nil }
func (b *backend) ChangeEmail(context.Context, uint64, string) error    { return nil }

func (b *backend) Delete(_ context.Context, uid uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.users, uid)
	return nil
}

func (b *backend) Issue(_ context.Context, uid uint64, ttl time.Duration) (string, model.SessionToken, error) {
	raw, err := utils.NewSessionToken()
	if err != nil {
		return "", model.SessionToken{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[raw] = uid
	return raw, model.SessionToken{UserID: uid, HashedValue: utils.HashToken(raw), ExpiresAt: time.Now().Add(ttl)}, nil
}

func (b *backend) Verify(_ context.Context, raw string) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	uid, ok := b.tokens[raw]
	if !ok {
		return 0, service.ErrInvalidToken
	}
	return uid, nil
}

func (b *backend) Revoke(_ context.Context, raw string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.tokens[raw]; !ok {
		return service.ErrInvalidToken
	}
	delete(b.tokens, raw)
	return nil
}

func (b *backend) GetByID(_ context.Context, id uint64) (model.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return *u, nil
}

func (b *backend) GetByEmail(_ context.Context, email string) (model.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, u := range b.users {
		if u.Email == email {
			return *u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (b *backend) UpdatePfp(context.Context, uint64, string) error { return nil }

// journalService adapts backend to handler.Journals.
type journalService struct{ *backend }

func (j journalService) Create(_ context.Context, uid uint64, pwdKey, data string, day model.Date) (model.Journal, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	ct, err := j.keys.Encrypt(pwdKey, j.users[uid].WrappedDEK, data)
	if err != nil {
		return model.Journal{}, err
	}
	j.nextID++
	row := model.Journal{ID: j.nextID, UserID: uid, Data: ct, Timestamp: day}
	j.journal[row.ID] = row
	row.Data = data
	return row, nil
}

func (j journalService) List(_ context.Context, uid uint64, pwdKey string, start, end model.Date) ([]model.Journal, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	dek, err := j.keys.Unwrap(pwdKey, j.users[uid].WrappedDEK)
	if err != nil {
		return nil, err
	}
	var out []model.Journal
	for _, row := range j.journal {
		if row.UserID != uid || row.Timestamp.Before(start.Time) || row.Timestamp.After(end.Time) {
			continue
		}
		pt, err := keys.DecryptWith(dek, row.Data)
		if err != nil {
			return nil, err
		}
		row.Data = pt
		out = append(out, row)
	}
	return out, nil
}

func (j journalService) Update(context.Context, uint64, string, uint64, string) (model.Journal, error) {
	return model.Journal{}, repository.ErrNotFound
}

func (j journalService) Delete(context.Context, uint64, uint64) error { return repository.ErrNotFound }
