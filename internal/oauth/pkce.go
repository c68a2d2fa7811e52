package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/iliyamo/happiness-journal/internal/utils"
)

const (
	MethodS256  = "S256"
	MethodPlain = "plain"
)

// VerifierBytes yields a 64-character verifier, inside the 43-128 range
// RFC 7636 allows.
const VerifierBytes = 48

// NewVerifier returns a fresh URL-safe PKCE code verifier.
func NewVerifier() (string, error) {
	return utils.RandomURLToken(VerifierBytes)
}

// S256Challenge returns base64url(sha256(verifier)) without padding.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ValidMethod reports whether m is a supported challenge method.  The empty
// string is accepted and means plain.
func ValidMethod(m string) bool {
	return m == "" || m == MethodS256 || m == MethodPlain
}

// VerifyPKCE checks verifier against the stored challenge in constant time.
func VerifyPKCE(method, challenge, verifier string) bool {
	var computed string
	switch method {
	case MethodS256:
		computed = S256Challenge(verifier)
	case MethodPlain, "":
		computed = verifier
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
