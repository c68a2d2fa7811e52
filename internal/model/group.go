package model

import "time"

// Group is a small set of users sharing their scores.
type Group struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// GroupMember is a row of the group_users edge joined with the username.
type GroupMember struct {
	UserID   uint64 `json:"user_id"`
	Username string `json:"username"`
}

// Setting is a per-user key/value preference.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
