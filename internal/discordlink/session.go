// Package discordlink hands a Discord bot an access token for the user who
// clicked its link.  The bot starts a session, the user's browser completes
// the OAuth authorize step against a callback owned by this package, and the
// bot polls until it receives the token exactly once.
package discordlink

import (
	"errors"
	"time"
)

// SessionTTL bounds the whole ceremony, start to poll.
const SessionTTL = 10 * time.Minute

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusPending Status = "pending"
	// StatusExchanging marks a session whose callback is redeeming its code.
	StatusExchanging Status = "exchanging"
	StatusComplete   Status = "complete"
	StatusExpired    Status = "expired"
)

var (
	// ErrNotFound is returned for unknown, expired or already delivered sessions.
	ErrNotFound = errors.New("link session not found")
	// ErrNotPending is returned when a session is not in the state a
	// transition starts from.
	ErrNotPending = errors.New("link session is not in the expected state")
	// ErrLinkFailed is the only error the callback reports to the browser.
	ErrLinkFailed = errors.New("link failed")
	// ErrInvalidRequest is returned for missing start or poll parameters.
	ErrInvalidRequest = errors.New("invalid link request")
)

// Session is one linking attempt.  CodeVerifier never leaves the server.
type Session struct {
	LinkID         string    `json:"link_id"`
	DiscordUserID  string    `json:"discord_user_id"`
	CodeVerifier   string    `json:"code_verifier"`
	RedirectURI    string    `json:"redirect_uri"`
	ExpiresAt      time.Time `json:"expires_at"`
	Status         Status    `json:"status"`
	AccessToken    string    `json:"access_token,omitempty"`
	TokenExpiresAt time.Time `json:"token_expires_at,omitempty"`
}

func (s Session) expired(now time.Time) bool {
	return s.Status == StatusExpired || !now.Before(s.ExpiresAt)
}
