package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/happiness-journal/internal/database"
	"github.com/iliyamo/happiness-journal/internal/model"
)

type SettingRepo struct{ DB *sql.DB }

func NewSettingRepo(db *sql.DB) *SettingRepo { return &SettingRepo{DB: db} }

// List returns every setting of a user.
func (r *SettingRepo) List(ctx context.Context, userID uint64) ([]model.Setting, error) {
	rows, err := database.Conn(ctx, r.DB).QueryContext(ctx,
		"SELECT setting_key, setting_value FROM settings WHERE user_id=? ORDER BY setting_key ASC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Setting{}
	for rows.Next() {
		var s model.Setting
		if err := rows.Scan(&s.Key, &s.Value); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Upsert writes a single setting.
func (r *SettingRepo) Upsert(ctx context.Context, userID uint64, key, value string) error {
	_, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"INSERT INTO settings (user_id, setting_key, setting_value) VALUES (?,?,?) ON DUPLICATE KEY UPDATE setting_value=VALUES(setting_value)",
		userID, key, value)
	return err
}
