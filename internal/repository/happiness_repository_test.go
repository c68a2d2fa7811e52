package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/happiness-journal/internal/model"
)

var happinessCols = []string{"id", "user_id", "value", "comment", "timestamp"}

func TestHappinessRepo_CreateDuplicateDay(t *testing.T) {
	db, mock := newMock(t)
	repo := NewHappinessRepo(db)

	d, _ := model.ParseDate("2024-01-10")
	mock.ExpectExec(`INSERT INTO happiness`).
		WithArgs(1, 7.5, "ok", sqlmock.AnyArg()).
		WillReturnError(&mysql.MySQLError{Number: 1062})

	_, err := repo.Create(context.Background(), model.Happiness{UserID: 1, Value: 7.5, Comment: "ok", Timestamp: d})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestHappinessRepo_ListRange(t *testing.T) {
	db, mock := newMock(t)
	repo := NewHappinessRepo(db)

	start, _ := model.ParseDate("2024-01-01")
	end, _ := model.ParseDate("2024-01-31")
	day, _ := model.ParseDate("2024-01-10")

	mock.ExpectQuery(`FROM happiness h WHERE h.user_id=\? AND h.timestamp BETWEEN \? AND \?`).
		WithArgs(1, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(happinessCols).
			AddRow(10, 1, "7.5", "good", day.Time).
			AddRow(11, 1, "3.0", "", day.AddDate(0, 0, 1)))

	got, err := repo.ListRange(context.Background(), 1, start, end)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 7.5, got[0].Value)
	assert.Equal(t, "2024-01-10", got[0].Timestamp.String())
	assert.Equal(t, "2024-01-11", got[1].Timestamp.String())
}

func TestHappinessRepo_SearchBuildsFilters(t *testing.T) {
	db, mock := newMock(t)
	repo := NewHappinessRepo(db)

	low, high := 2.0, 8.0
	mock.ExpectQuery(`WHERE h.user_id = \? AND LOWER\(h.comment\) LIKE \? AND h.value >= \? AND h.value <= \? ORDER BY h.timestamp DESC LIMIT \?`).
		WithArgs(1, "%walk%", 2.0, 8.0, 100).
		WillReturnRows(sqlmock.NewRows(happinessCols))

	got, err := repo.Search(context.Background(), 1, model.HappinessFilter{Text: "Walk", Low: &low, High: &high})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHappinessRepo_DeleteNotOwned(t *testing.T) {
	db, mock := newMock(t)
	repo := NewHappinessRepo(db)

	mock.ExpectExec(`DELETE FROM happiness WHERE id=\? AND user_id=\?`).
		WithArgs(5, 2).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), 5, 2), ErrNotFound)
}
