package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/happiness-journal/internal/database"
	"github.com/iliyamo/happiness-journal/internal/model"
)

// GroupRepo manages groups and their two edges to users: membership
// (group_users) and pending invitation (group_invites).
type GroupRepo struct{ DB *sql.DB }

func NewGroupRepo(db *sql.DB) *GroupRepo { return &GroupRepo{DB: db} }

// Create inserts a group and returns its id.
func (r *GroupRepo) Create(ctx context.Context, name string) (uint64, error) {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"INSERT INTO `groups` (name) VALUES (?)", name)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID fetches a group.
func (r *GroupRepo) GetByID(ctx context.Context, id uint64) (model.Group, error) {
	var g model.Group
	err := database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT id, name, created_at FROM `groups` WHERE id=? LIMIT 1", id).
		Scan(&g.ID, &g.Name, &g.CreatedAt)
	return g, notFound(err)
}

// Delete removes a group; both edges cascade.
func (r *GroupRepo) Delete(ctx context.Context, id uint64) error {
	_, err := database.Conn(ctx, r.DB).ExecContext(ctx, "DELETE FROM `groups` WHERE id=?", id)
	return err
}

// AddMember inserts a membership edge.
func (r *GroupRepo) AddMember(ctx context.Context, groupID, userID uint64) error {
	_, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"INSERT INTO group_users (group_id, user_id) VALUES (?,?)", groupID, userID)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// RemoveMember deletes a membership edge.
func (r *GroupRepo) RemoveMember(ctx context.Context, groupID, userID uint64) error {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"DELETE FROM group_users WHERE group_id=? AND user_id=?", groupID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IsMember reports whether userID belongs to groupID.
func (r *GroupRepo) IsMember(ctx context.Context, groupID, userID uint64) (bool, error) {
	var n int
	err := database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT COUNT(*) FROM group_users WHERE group_id=? AND user_id=?", groupID, userID).Scan(&n)
	return n > 0, err
}

// SharesGroup reports whether two users are members of a common group.
func (r *GroupRepo) SharesGroup(ctx context.Context, a, b uint64) (bool, error) {
	var n int
	err := database.Conn(ctx, r.DB).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM group_users x
		JOIN group_users y ON y.group_id = x.group_id
		WHERE x.user_id=? AND y.user_id=?`, a, b).Scan(&n)
	return n > 0, err
}

// CountMembers returns the number of members of a group.
func (r *GroupRepo) CountMembers(ctx context.Context, groupID uint64) (int, error) {
	var n int
	err := database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT COUNT(*) FROM group_users WHERE group_id=?", groupID).Scan(&n)
	return n, err
}

// Members lists the members of a group by username.
func (r *GroupRepo) Members(ctx context.Context, groupID uint64) ([]model.GroupMember, error) {
	rows, err := database.Conn(ctx, r.DB).QueryContext(ctx,
		`SELECT u.id, u.username FROM group_users gu
		JOIN users u ON u.id = gu.user_id
		WHERE gu.group_id=? ORDER BY u.username ASC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.GroupMember{}
	for rows.Next() {
		var m model.GroupMember
		if err := rows.Scan(&m.UserID, &m.Username); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListForUser returns the groups a user belongs to.
func (r *GroupRepo) ListForUser(ctx context.Context, userID uint64) ([]model.Group, error) {
	rows, err := database.Conn(ctx, r.DB).QueryContext(ctx,
		"SELECT g.id, g.name, g.created_at FROM `groups` g JOIN group_users gu ON gu.group_id = g.id WHERE gu.user_id=? ORDER BY g.name ASC",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Group{}
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Invite records a pending invitation.  Repeat invitations yield
// ErrDuplicate.
func (r *GroupRepo) Invite(ctx context.Context, groupID, userID uint64) error {
	_, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"INSERT INTO group_invites (group_id, user_id) VALUES (?,?)", groupID, userID)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// TakeInvite removes a pending invitation; ErrNotFound when none exists.
func (r *GroupRepo) TakeInvite(ctx context.Context, groupID, userID uint64) error {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"DELETE FROM group_invites WHERE group_id=? AND user_id=?", groupID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
