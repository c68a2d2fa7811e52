package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/happiness-journal/internal/database"
	"github.com/iliyamo/happiness-journal/internal/model"
)

const userColumns = "id, email, username, password_hash, pfp, wrapped_dek, wrapped_dek_recovery, created_at"

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

func scanUser(row rowScanner) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Pfp,
		&u.WrappedDEK, &u.WrappedDEKRecovery, &u.CreatedAt)
	return u, notFound(err)
}

// Create inserts a user and returns its ID.  The email is normalized to
// lower case.
func (r *UserRepo) Create(ctx context.Context, u model.User) (uint64, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"INSERT INTO users (email, username, password_hash, wrapped_dek) VALUES (?,?,?,?)",
		email, u.Username, u.PasswordHash, u.WrappedDEK)
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

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	row := database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return scanUser(row)
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
	return scanUser(row)
}

// GetByUsername fetches a user by username, ignoring case.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	row := database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE LOWER(username)=LOWER(?) LIMIT 1",
		strings.TrimSpace(username))
	return scanUser(row)
}

// Taken reports whether the email or the username is already in use.
func (r *UserRepo) Taken(ctx context.Context, email, username string) (bool, error) {
	var n int
	err := database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE email=? OR LOWER(username)=LOWER(?)",
		strings.ToLower(strings.TrimSpace(email)), strings.TrimSpace(username)).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateCredentials replaces the password hash and the wrapped DEK together.
func (r *UserRepo) UpdateCredentials(ctx context.Context, id uint64, hash, wrappedDEK string) error {
	_, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"UPDATE users SET password_hash=?, wrapped_dek=? WHERE id=?",
		hash, wrappedDEK, id)
	return err
}

// SetRecovery stores (or clears, when !wrapped.Valid) the recovery copy.
func (r *UserRepo) SetRecovery(ctx context.Context, id uint64, wrapped sql.NullString) error {
	_, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"UPDATE users SET wrapped_dek_recovery=? WHERE id=?", wrapped, id)
	return err
}

// UpdateUsername renames a user.
func (r *UserRepo) UpdateUsername(ctx context.Context, id uint64, username string) error {
	_, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"UPDATE users SET username=? WHERE id=?", strings.TrimSpace(username), id)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// UpdateEmail changes the login email.
func (r *UserRepo) UpdateEmail(ctx context.Context, id uint64, email string) error {
	_, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"UPDATE users SET email=? WHERE id=?", strings.ToLower(strings.TrimSpace(email)), id)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// UpdatePfp stores the profile picture URL.
func (r *UserRepo) UpdatePfp(ctx context.Context, id uint64, url string) error {
	_, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"UPDATE users SET pfp=? WHERE id=?", url, id)
	return err
}

// Delete removes the user; foreign keys cascade to every owned row.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
