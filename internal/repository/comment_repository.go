package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/happiness-journal/internal/database"
	"github.com/iliyamo/happiness-journal/internal/model"
)

type CommentRepo struct{ DB *sql.DB }

func NewCommentRepo(db *sql.DB) *CommentRepo { return &CommentRepo{DB: db} }

// Create inserts a comment and returns its id.
func (r *CommentRepo) Create(ctx context.Context, happinessID, userID uint64, text string, at time.Time) (uint64, error) {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"INSERT INTO comments (happiness_id, user_id, text, timestamp) VALUES (?,?,?,?)",
		happinessID, userID, text, at)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID fetches a comment.
func (r *CommentRepo) GetByID(ctx context.Context, id uint64) (model.Comment, error) {
	var c model.Comment
	err := database.Conn(ctx, r.DB).QueryRowContext(ctx,
		`SELECT c.id, c.happiness_id, c.user_id, u.username, c.text, c.timestamp
		FROM comments c JOIN users u ON u.id = c.user_id
		WHERE c.id=? LIMIT 1`, id).
		Scan(&c.ID, &c.HappinessID, &c.UserID, &c.Username, &c.Text, &c.Timestamp)
	return c, notFound(err)
}

// ListForHappiness returns the comments on an entry, oldest first.
func (r *CommentRepo) ListForHappiness(ctx context.Context, happinessID uint64) ([]model.Comment, error) {
	rows, err := database.Conn(ctx, r.DB).QueryContext(ctx,
		`SELECT c.id, c.happiness_id, c.user_id, u.username, c.text, c.timestamp
		FROM comments c JOIN users u ON u.id = c.user_id
		WHERE c.happiness_id=?
		ORDER BY c.timestamp ASC, c.id ASC`, happinessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Comment{}
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.ID, &c.HappinessID, &c.UserID, &c.Username, &c.Text, &c.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Delete removes a comment written by userID.
func (r *CommentRepo) Delete(ctx context.Context, id, userID uint64) error {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"DELETE FROM comments WHERE id=? AND user_id=?", id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
