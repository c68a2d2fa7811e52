package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/happiness-journal/internal/database"
	"github.com/iliyamo/happiness-journal/internal/model"
)

// JournalRepo stores encrypted journal rows.  It only ever sees
// ciphertext in the data column.
type JournalRepo struct{ DB *sql.DB }

func NewJournalRepo(db *sql.DB) *JournalRepo { return &JournalRepo{DB: db} }

// Create inserts a row and returns its id.
func (r *JournalRepo) Create(ctx context.Context, j model.Journal) (uint64, error) {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"INSERT INTO journal (user_id, data, timestamp) VALUES (?,?,?)",
		j.UserID, j.Data, j.Timestamp)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID fetches a row owned by userID.
func (r *JournalRepo) GetByID(ctx context.Context, id, userID uint64) (model.Journal, error) {
	var j model.Journal
	err := database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT id, user_id, data, timestamp FROM journal WHERE id=? AND user_id=? LIMIT 1",
		id, userID).Scan(&j.ID, &j.UserID, &j.Data, &j.Timestamp)
	return j, notFound(err)
}

// ListRange returns rows with start <= timestamp <= end, oldest first.
func (r *JournalRepo) ListRange(ctx context.Context, userID uint64, start, end model.Date) ([]model.Journal, error) {
	rows, err := database.Conn(ctx, r.DB).QueryContext(ctx,
		"SELECT id, user_id, data, timestamp FROM journal WHERE user_id=? AND timestamp BETWEEN ? AND ? ORDER BY timestamp ASC, id ASC",
		userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Journal{}
	for rows.Next() {
		var j model.Journal
		if err := rows.Scan(&j.ID, &j.UserID, &j.Data, &j.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// UpdateData replaces the ciphertext of an owned row.
func (r *JournalRepo) UpdateData(ctx context.Context, id, userID uint64, data string) error {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"UPDATE journal SET data=? WHERE id=? AND user_id=?", data, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an owned row.
func (r *JournalRepo) Delete(ctx context.Context, id, userID uint64) error {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"DELETE FROM journal WHERE id=? AND user_id=?", id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAllForUser drops every journal row of a user.  Password reset
// without a recovery phrase calls it inside the same transaction that
// installs the new key.
func (r *JournalRepo) DeleteAllForUser(ctx context.Context, userID uint64) (int64, error) {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"DELETE FROM journal WHERE user_id=?", userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
