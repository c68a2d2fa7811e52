package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// PasswordKeyClaim is the claim carrying the derived password key.  The
// same name is used for the request and response header.
const PasswordKeyClaim = "Password-Key"

// ErrInvalidPasswordKeyToken is returned for a missing, malformed, expired
// or forged password-key token.
var ErrInvalidPasswordKeyToken = errors.New("invalid password key token")

// ErrInvalidResetToken is returned for a bad password-reset token.
var ErrInvalidResetToken = errors.New("invalid reset token")

// PasswordKeyBroker mints and verifies the short-lived HS256 token that
// carries a user's password key between requests.  The token is never
// stored server-side.
type PasswordKeyBroker struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewPasswordKeyBroker returns a broker signing with secret.  A zero ttl
// selects one hour.
func NewPasswordKeyBroker(secret string, ttl time.Duration) *PasswordKeyBroker {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &PasswordKeyBroker{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Mint signs {"Password-Key": pwdKey, "exp": now+ttl}.
func (b *PasswordKeyBroker) Mint(pwdKey string) (string, time.Time, error) {
	exp := b.now().UTC().Add(b.ttl)
	claims := jwt.MapClaims{
		PasswordKeyClaim: pwdKey,
		"exp":            exp.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(b.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify returns the password key carried by tok.
func (b *PasswordKeyBroker) Verify(tok string) (string, error) {
	claims, err := parseHS256(tok, b.secret, b.now)
	if err != nil {
		return "", ErrInvalidPasswordKeyToken
	}
	key, ok := claims[PasswordKeyClaim].(string)
	if !ok || key == "" {
		return "", ErrInvalidPasswordKeyToken
	}
	return key, nil
}

// NewResetToken signs {"reset_password": userID, "exp": now+ttl}.
func NewResetToken(secret string, userID uint64, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"reset_password": userID,
		"exp":            time.Now().UTC().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseResetToken returns the user id carried by a reset token.
func ParseResetToken(secret, tok string) (uint64, error) {
	claims, err := parseHS256(tok, []byte(secret), time.Now)
	if err != nil {
		return 0, ErrInvalidResetToken
	}
	// JWT numeric values are decoded as float64.
	v, ok := claims["reset_password"].(float64)
	if !ok || v <= 0 {
		return 0, ErrInvalidResetToken
	}
	return uint64(v), nil
}

func parseHS256(tok string, secret []byte, now func() time.Time) (jwt.MapClaims, error) {
	t, err := jwt.Parse(tok, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil || !t.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}
