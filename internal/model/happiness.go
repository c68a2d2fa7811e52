package model

import "time"

// Happiness is one daily score.  A user has at most one row per day.
type Happiness struct {
	ID        uint64  `json:"id"`
	UserID    uint64  `json:"user_id"`
	Username  string  `json:"username,omitempty"` // filled by group queries
	Value     float64 `json:"value"`
	Comment   string  `json:"comment"`
	Timestamp Date    `json:"timestamp"`
}

// Journal is an encrypted journal row.  Data is Fernet ciphertext when it
// leaves the repository and plaintext only after the service decrypts it.
type Journal struct {
	ID        uint64 `json:"id"`
	UserID    uint64 `json:"user_id"`
	Data      string `json:"data"`
	Timestamp Date   `json:"timestamp"`
}

// Comment belongs to its author and lives as long as its happiness entry.
type Comment struct {
	ID          uint64    `json:"id"`
	HappinessID uint64    `json:"happiness_id"`
	UserID      uint64    `json:"user_id"`
	Username    string    `json:"username"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
}

// HappinessFilter narrows a search.  Zero values mean "no bound".
type HappinessFilter struct {
	Text  string
	Start *Date
	End   *Date
	Low   *float64
	High  *float64
	Limit int
}
