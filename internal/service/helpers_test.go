package service

import (
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/happiness-journal/internal/keys"
	"github.com/iliyamo/happiness-journal/internal/repository"
)

var userCols = []string{"id", "email", "username", "password_hash", "pfp", "wrapped_dek", "wrapped_dek_recovery", "created_at"}

// capture is an sqlmock.Argument that records the string it was given.
type capture struct{ v string }

func (c *capture) Match(v driver.Value) bool {
	s, ok := v.(string)
	if ok {
		c.v = s
	}
	return ok
}

type fixture struct {
	db       *sql.DB
	mock     sqlmock.Sqlmock
	keys     *keys.Engine
	sessions *SessionService
	accounts *AccountService
	journal  *JournalService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})

	k := keys.NewWithIterations("salt", 1000)
	users := repository.NewUserRepo(db)
	journal := repository.NewJournalRepo(db)
	sessions := NewSessionService(repository.NewTokenRepo(db))
	return &fixture{
		db:       db,
		mock:     mock,
		keys:     k,
		sessions: sessions,
		accounts: NewAccountService(db, users, journal, sessions, k, bcrypt.MinCost),
		journal:  NewJournalService(users, journal, k),
	}
}

func (f *fixture) userRow(id uint64, hash, wrapped string, recovery any) *sqlmock.Rows {
	return sqlmock.NewRows(userCols).
		AddRow(id, "t@x.io", "t", hash, nil, wrapped, recovery, time.Now().UTC())
}
