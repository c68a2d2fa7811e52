package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/rand"     // secure random number generation
	"crypto/sha256"   // SHA-256 hashing for session tokens
	"encoding/base64" // URL-safe encodings for codes and verifiers
	"encoding/hex"    // hex encoding for session tokens and digests
)

// SessionTokenBytes is the entropy of a session token (160 bits).
const SessionTokenBytes = 20

// NewSessionToken returns a fresh opaque bearer token: 160 random bits as
// 40 hex characters.  Only HashToken(raw) is ever persisted.
func NewSessionToken() (string, error) {
	return RandomHex(SessionTokenBytes)
}

// HashToken returns the SHA-256 hash of the raw token as a hex string.
// Storing only the hash prevents a leaked table from being replayed.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// RandomHex returns n bytes of cryptographically secure random data encoded
// as hex.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// RandomURLToken returns n random bytes as unpadded URL-safe base64.  It is
// used for authorization codes, link ids and PKCE verifiers.
func RandomURLToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
