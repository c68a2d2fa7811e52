package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestNewSessionToken_ShapeAndHash(t *testing.T) {
	raw, err := NewSessionToken()
	require.NoError(t, err)
	assert.Len(t, raw, 40)

	h := HashToken(raw)
	assert.Len(t, h, 64)
	assert.NotEqual(t, raw, h)
	assert.Equal(t, h, HashToken(raw))

	other, err := NewSessionToken()
	require.NoError(t, err)
	assert.NotEqual(t, raw, other)
}

func TestRandomURLToken_NoPadding(t *testing.T) {
	s, err := RandomURLToken(32)
	require.NoError(t, err)
	assert.Len(t, s, 43)
	assert.False(t, strings.ContainsAny(s, "=+/"))
}

func TestPasswordHashing(t *testing.T) {
	h, err := HashPassword("p", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(h, "p"))
	assert.False(t, VerifyPassword(h, "q"))

	_, err = HashPassword(strings.Repeat("a", 73), bcrypt.MinCost)
	assert.ErrorIs(t, err, ErrPasswordTooLong)
	BurnPasswordCheck("anything", bcrypt.MinCost)
}

func TestPasswordKeyBroker_RoundTrip(t *testing.T) {
	b := NewPasswordKeyBroker("secret", 0)
	tok, exp, err := b.Mint("the-key")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	key, err := b.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "the-key", key)
}

func TestPasswordKeyBroker_RejectsForeignAndExpired(t *testing.T) {
	b := NewPasswordKeyBroker("secret", time.Hour)
	tok, _, err := b.Mint("k")
	require.NoError(t, err)

	_, err = NewPasswordKeyBroker("other", time.Hour).Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidPasswordKeyToken)

	b.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = b.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidPasswordKeyToken)

	_, err = b.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidPasswordKeyToken)
}

func TestResetToken(t *testing.T) {
	tok, err := NewResetToken("s", 7, 30*time.Minute)
	require.NoError(t, err)
	uid, err := ParseResetToken("s", tok)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), uid)

	_, err = ParseResetToken("x", tok)
	assert.ErrorIs(t, err, ErrInvalidResetToken)

	expired, err := NewResetToken("s", 7, -time.Minute)
	require.NoError(t, err)
	_, err = ParseResetToken("s", expired)
	assert.ErrorIs(t, err, ErrInvalidResetToken)
}
