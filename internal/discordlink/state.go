package discordlink

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// stateSalt separates the state key from every other use of SECRET_KEY.
const stateSalt = "discord-link-state-v1"

// StateMaxAge is how long a signed state stays acceptable.
const StateMaxAge = 600 * time.Second

var errBadState = errors.New("invalid link state")

// StateClaims is the payload sealed into the OAuth state parameter.
type StateClaims struct {
	LinkID        string `json:"link_id"`
	DiscordUserID string `json:"discord_user_id"`
	jwt.RegisteredClaims
}

// StateSigner seals and opens time-stamped link state values.
type StateSigner struct {
	key []byte
	now func() time.Time
}

// NewStateSigner derives the signing key as HMAC-SHA256(secret, salt).
func NewStateSigner(secret string) *StateSigner {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(stateSalt))
	return &StateSigner{key: mac.Sum(nil), now: time.Now}
}

func (s *StateSigner) Seal(linkID, discordUserID string) (string, error) {
	now := s.now().UTC()
	claims := StateClaims{
		LinkID:        linkID,
		DiscordUserID: discordUserID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(StateMaxAge)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Open verifies the signature and age of a state value.
func (s *StateSigner) Open(state string) (StateClaims, error) {
	var claims StateClaims
	t, err := jwt.ParseWithClaims(state, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !t.Valid || claims.IssuedAt == nil {
		return StateClaims{}, errBadState
	}
	if s.now().Sub(claims.IssuedAt.Time) > StateMaxAge || claims.LinkID == "" {
		return StateClaims{}, errBadState
	}
	return claims, nil
}
