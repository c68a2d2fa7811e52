package service

import (
	"context"
	"strings"

	"github.com/iliyamo/happiness-journal/internal/keys"
	"github.com/iliyamo/happiness-journal/internal/model"
	"github.com/iliyamo/happiness-journal/internal/repository"
)

// JournalService encrypts journal rows on the way in and decrypts them on
// the way out.  The caller supplies the password key taken from a
// verified password-key token; it is used for the duration of the call
// only.
type JournalService struct {
	Users   *repository.UserRepo
	Journal *repository.JournalRepo
	Keys    *keys.Engine
}

func NewJournalService(users *repository.UserRepo, journal *repository.JournalRepo, k *keys.Engine) *JournalService {
	return &JournalService{Users: users, Journal: journal, Keys: k}
}

// Create encrypts data and stores it for day.
func (s *JournalService) Create(ctx context.Context, userID uint64, pwdKey, data string, day model.Date) (model.Journal, error) {
	if strings.TrimSpace(data) == "" {
		return model.Journal{}, invalid("data required")
	}
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return model.Journal{}, err
	}
	ct, err := s.Keys.Encrypt(pwdKey, u.WrappedDEK, data)
	if err != nil {
		return model.Journal{}, err
	}
	j := model.Journal{UserID: userID, Data: ct, Timestamp: day}
	id, err := s.Journal.Create(ctx, j)
	if err != nil {
		return model.Journal{}, err
	}
	j.ID = id
	j.Data = data
	return j, nil
}

// List returns decrypted rows in [start, end].  The key is checked even
// when the range is empty so a wrong key is always reported.
func (s *JournalService) List(ctx context.Context, userID uint64, pwdKey string, start, end model.Date) ([]model.Journal, error) {
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	dek, err := s.Keys.Unwrap(pwdKey, u.WrappedDEK)
	if err != nil {
		return nil, err
	}
	rows, err := s.Journal.ListRange(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		pt, err := keys.DecryptWith(dek, rows[i].Data)
		if err != nil {
			return nil, err
		}
		rows[i].Data = pt
	}
	return rows, nil
}

// Update replaces the text of an owned row.
func (s *JournalService) Update(ctx context.Context, userID uint64, pwdKey string, id uint64, data string) (model.Journal, error) {
	if strings.TrimSpace(data) == "" {
		return model.Journal{}, invalid("data required")
	}
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return model.Journal{}, err
	}
	j, err := s.Journal.GetByID(ctx, id, userID)
	if err != nil {
		return model.Journal{}, err
	}
	ct, err := s.Keys.Encrypt(pwdKey, u.WrappedDEK, data)
	if err != nil {
		return model.Journal{}, err
	}
	if err := s.Journal.UpdateData(ctx, id, userID, ct); err != nil {
		return model.Journal{}, err
	}
	j.Data = data
	return j, nil
}

// Delete removes an owned row.  No key is needed.
func (s *JournalService) Delete(ctx context.Context, userID, id uint64) error {
	return s.Journal.Delete(ctx, id, userID)
}
