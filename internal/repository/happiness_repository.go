package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/happiness-journal/internal/database"
	"github.com/iliyamo/happiness-journal/internal/model"
)

const happinessColumns = "h.id, h.user_id, h.value, COALESCE(h.comment, ''), h.timestamp"

type HappinessRepo struct{ DB *sql.DB }

func NewHappinessRepo(db *sql.DB) *HappinessRepo { return &HappinessRepo{DB: db} }

func scanHappiness(row rowScanner) (model.Happiness, error) {
	var h model.Happiness
	err := row.Scan(&h.ID, &h.UserID, &h.Value, &h.Comment, &h.Timestamp)
	return h, err
}

// Create inserts an entry.  A second entry for the same day yields
// ErrDuplicate.
func (r *HappinessRepo) Create(ctx context.Context, h model.Happiness) (uint64, error) {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"INSERT INTO happiness (user_id, value, comment, timestamp) VALUES (?,?,?,?)",
		h.UserID, h.Value, h.Comment, h.Timestamp)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID fetches an entry regardless of owner; callers check access.
func (r *HappinessRepo) GetByID(ctx context.Context, id uint64) (model.Happiness, error) {
	row := database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT "+happinessColumns+" FROM happiness h WHERE h.id=? LIMIT 1", id)
	h, err := scanHappiness(row)
	return h, notFound(err)
}

// ListRange returns a user's entries with start <= timestamp <= end.
func (r *HappinessRepo) ListRange(ctx context.Context, userID uint64, start, end model.Date) ([]model.Happiness, error) {
	return r.query(ctx,
		"SELECT "+happinessColumns+" FROM happiness h WHERE h.user_id=? AND h.timestamp BETWEEN ? AND ? ORDER BY h.timestamp ASC",
		userID, start, end)
}

// ListAll returns every entry of a user, oldest first.  Used by exports.
func (r *HappinessRepo) ListAll(ctx context.Context, userID uint64) ([]model.Happiness, error) {
	return r.query(ctx,
		"SELECT "+happinessColumns+" FROM happiness h WHERE h.user_id=? ORDER BY h.timestamp ASC", userID)
}

// Update rewrites value and comment of an owned entry.
func (r *HappinessRepo) Update(ctx context.Context, h model.Happiness) error {
	_, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"UPDATE happiness SET value=?, comment=? WHERE id=? AND user_id=?",
		h.Value, h.Comment, h.ID, h.UserID)
	return err
}

// Delete removes an owned entry; comments cascade.
func (r *HappinessRepo) Delete(ctx context.Context, id, userID uint64) error {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"DELETE FROM happiness WHERE id=? AND user_id=?", id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Search filters a user's entries by comment text, date and value bounds.
func (r *HappinessRepo) Search(ctx context.Context, userID uint64, f model.HappinessFilter) ([]model.Happiness, error) {
	where := []string{"h.user_id = ?"}
	args := []any{userID}

	if f.Text != "" {
		where = append(where, "LOWER(h.comment) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Text)+"%")
	}
	if f.Start != nil {
		where = append(where, "h.timestamp >= ?")
		args = append(args, *f.Start)
	}
	if f.End != nil {
		where = append(where, "h.timestamp <= ?")
		args = append(args, *f.End)
	}
	if f.Low != nil {
		where = append(where, "h.value >= ?")
		args = append(args, *f.Low)
	}
	if f.High != nil {
		where = append(where, "h.value <= ?")
		args = append(args, *f.High)
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := "SELECT " + happinessColumns + " FROM happiness h WHERE " + strings.Join(where, " AND ") +
		" ORDER BY h.timestamp DESC LIMIT ?"
	args = append(args, limit)
	return r.query(ctx, q, args...)
}

// ListForGroup returns the entries of every member of a group in range.
func (r *HappinessRepo) ListForGroup(ctx context.Context, groupID uint64, start, end model.Date) ([]model.Happiness, error) {
	rows, err := database.Conn(ctx, r.DB).QueryContext(ctx,
		`SELECT `+happinessColumns+`, u.username
		FROM happiness h
		JOIN group_users gu ON gu.user_id = h.user_id
		JOIN users u        ON u.id = h.user_id
		WHERE gu.group_id = ? AND h.timestamp BETWEEN ? AND ?
		ORDER BY h.timestamp ASC, u.username ASC`,
		groupID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Happiness{}
	for rows.Next() {
		var h model.Happiness
		if err := rows.Scan(&h.ID, &h.UserID, &h.Value, &h.Comment, &h.Timestamp, &h.Username); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *HappinessRepo) query(ctx context.Context, q string, args ...any) ([]model.Happiness, error) {
	rows, err := database.Conn(ctx, r.DB).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Happiness{}
	for rows.Next() {
		h, err := scanHappiness(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
