package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lowIter keeps the suite fast; the derivation itself is unchanged.
func lowIter() *Engine {
	return NewWithIterations("test-salt", 1000)
}

func TestDerivePasswordKey_DeterministicAndDistinct(t *testing.T) {
	e := lowIter()
	a := e.DerivePasswordKey("p")
	assert.Equal(t, a, e.DerivePasswordKey("p"))
	assert.NotEqual(t, a, e.DerivePasswordKey("p2"))
	assert.Len(t, a, 44)

	other := NewWithIterations("other-salt", 1000)
	assert.NotEqual(t, a, other.DerivePasswordKey("p"))
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	e := lowIter()
	k := e.DerivePasswordKey("p")
	wrapped, err := e.Init(k)
	require.NoError(t, err)

	ct, err := e.Encrypt(k, wrapped, "secret")
	require.NoError(t, err)
	assert.NotEqual(t, "secret", ct)

	ct2, err := e.Encrypt(k, wrapped, "secret")
	require.NoError(t, err)
	assert.NotEqual(t, ct, ct2, "ciphertext must be randomized")

	pt, err := e.Decrypt(k, wrapped, ct)
	require.NoError(t, err)
	assert.Equal(t, "secret", pt)
}

func TestDecrypt_WrongKey(t *testing.T) {
	e := lowIter()
	k := e.DerivePasswordKey("p")
	wrapped, err := e.Init(k)
	require.NoError(t, err)
	ct, err := e.Encrypt(k, wrapped, "secret")
	require.NoError(t, err)

	_, err = e.Decrypt(e.DerivePasswordKey("p2"), wrapped, ct)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestRewrap_PreservesData(t *testing.T) {
	e := lowIter()
	oldK := e.DerivePasswordKey("p")
	newK := e.DerivePasswordKey("p2")
	wrapped, err := e.Init(oldK)
	require.NoError(t, err)
	ct, err := e.Encrypt(oldK, wrapped, "secret")
	require.NoError(t, err)

	rewrapped, err := e.Rewrap(oldK, newK, wrapped)
	require.NoError(t, err)

	pt, err := e.Decrypt(newK, rewrapped, ct)
	require.NoError(t, err)
	assert.Equal(t, "secret", pt)

	_, err = e.Decrypt(oldK, rewrapped, ct)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestRewrap_WrongOldKeyReturnsNothing(t *testing.T) {
	e := lowIter()
	wrapped, err := e.Init(e.DerivePasswordKey("p"))
	require.NoError(t, err)

	out, err := e.Rewrap(e.DerivePasswordKey("nope"), e.DerivePasswordKey("p2"), wrapped)
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.Empty(t, out)
}

func TestRecoveryKey_CaseInsensitive(t *testing.T) {
	e := lowIter()
	k := e.DerivePasswordKey("p")
	wrapped, err := e.Init(k)
	require.NoError(t, err)
	ct, err := e.Encrypt(k, wrapped, "secret")
	require.NoError(t, err)

	recovery, err := e.Rewrap(k, e.DeriveRecoveryKey("Correct Horse"), wrapped)
	require.NoError(t, err)

	pt, err := e.Decrypt(e.DeriveRecoveryKey("correct horse"), recovery, ct)
	require.NoError(t, err)
	assert.Equal(t, "secret", pt)
}

func TestRecoveryKey_WhitespaceSignificant(t *testing.T) {
	e := lowIter()
	assert.Equal(t, e.DeriveRecoveryKey("WORDS"), e.DeriveRecoveryKey("words"))
	assert.NotEqual(t, e.DeriveRecoveryKey(" words "), e.DeriveRecoveryKey("words"))
}

func TestMalformedPasswordKey(t *testing.T) {
	e := lowIter()
	_, err := e.Init("not-a-key")
	assert.ErrorIs(t, err, ErrWeakPasswordKey)
	_, err = e.Unwrap("", "x")
	assert.ErrorIs(t, err, ErrWeakPasswordKey)
}

func TestUnwrap_Garbage(t *testing.T) {
	e := lowIter()
	_, err := e.Unwrap(e.DerivePasswordKey("p"), "garbage")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
