// Package keys wraps each user's data-encryption key (DEK) with a key
// derived from their password, and encrypts journal rows with the DEK.
//
// Both layers use Fernet tokens (version, timestamp, IV, AES-128-CBC
// ciphertext, HMAC-SHA256, URL-safe base64).  The password key is
// PBKDF2-HMAC-SHA256 over a process-wide salt; it is never logged and
// never persisted.
package keys

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/fernet/fernet-go"
	"golang.org/x/crypto/pbkdf2"
)

// Iterations is the PBKDF2 work factor.
const Iterations = 200_000

var (
	// ErrInvalidKey is returned whenever authenticated decryption fails.
	ErrInvalidKey = errors.New("invalid password key")
	// ErrWeakPasswordKey is returned for a password key that is not a
	// 32-byte URL-safe base64 value.
	ErrWeakPasswordKey = errors.New("malformed password key")
)

// Engine derives password keys and performs wrapping.  It is safe for
// concurrent use.
type Engine struct {
	salt       []byte
	iterations int
}

// New returns an Engine deriving keys with salt.
func New(salt string) *Engine {
	return NewWithIterations(salt, Iterations)
}

// NewWithIterations is New with an explicit work factor.  Tests use it to
// keep derivation cheap.
func NewWithIterations(salt string, iterations int) *Engine {
	return &Engine{salt: []byte(salt), iterations: iterations}
}

// DerivePasswordKey returns PBKDF2-HMAC-SHA256(password, salt) encoded as
// padded URL-safe base64.
func (e *Engine) DerivePasswordKey(password string) string {
	dk := pbkdf2.Key([]byte(password), e.salt, e.iterations, 32, sha256.New)
	return base64.URLEncoding.EncodeToString(dk)
}

// DeriveRecoveryKey derives the key wrapping the recovery copy of the DEK.
// Phrases are case-insensitive; whitespace is significant.
func (e *Engine) DeriveRecoveryKey(phrase string) string {
	return e.DerivePasswordKey(strings.ToLower(phrase))
}

// Init generates a fresh DEK and returns it wrapped by pwdKey.
func (e *Engine) Init(pwdKey string) (string, error) {
	var dek fernet.Key
	if err := dek.Generate(); err != nil {
		return "", err
	}
	return wrap(pwdKey, &dek)
}

// Unwrap returns the DEK sealed in wrapped.
func (e *Engine) Unwrap(pwdKey, wrapped string) (*fernet.Key, error) {
	k, err := parseKey(pwdKey)
	if err != nil {
		return nil, err
	}
	raw := open(wrapped, k)
	if raw == nil {
		return nil, ErrInvalidKey
	}
	dek, err := fernet.DecodeKey(string(raw))
	if err != nil {
		return nil, ErrInvalidKey
	}
	return dek, nil
}

// Rewrap unwraps with oldKey and wraps the same DEK with newKey.  Nothing
// is returned on failure, so callers cannot persist a half-rotated key.
func (e *Engine) Rewrap(oldKey, newKey, wrapped string) (string, error) {
	dek, err := e.Unwrap(oldKey, wrapped)
	if err != nil {
		return "", err
	}
	return wrap(newKey, dek)
}

// Encrypt encrypts plaintext under the DEK sealed in wrapped.
func (e *Engine) Encrypt(pwdKey, wrapped, plaintext string) (string, error) {
	dek, err := e.Unwrap(pwdKey, wrapped)
	if err != nil {
		return "", err
	}
	return EncryptWith(dek, plaintext)
}

// Decrypt reverses Encrypt.
func (e *Engine) Decrypt(pwdKey, wrapped, ciphertext string) (string, error) {
	dek, err := e.Unwrap(pwdKey, wrapped)
	if err != nil {
		return "", err
	}
	return DecryptWith(dek, ciphertext)
}

// EncryptWith encrypts plaintext with an already unwrapped DEK.
func EncryptWith(dek *fernet.Key, plaintext string) (string, error) {
	tok, err := fernet.EncryptAndSign([]byte(plaintext), dek)
	if err != nil {
		return "", err
	}
	return string(tok), nil
}

// DecryptWith decrypts ciphertext with an already unwrapped DEK.
func DecryptWith(dek *fernet.Key, ciphertext string) (string, error) {
	msg := open(ciphertext, dek)
	if msg == nil {
		return "", ErrInvalidKey
	}
	return string(msg), nil
}

func wrap(pwdKey string, dek *fernet.Key) (string, error) {
	k, err := parseKey(pwdKey)
	if err != nil {
		return "", err
	}
	tok, err := fernet.EncryptAndSign([]byte(dek.Encode()), k)
	if err != nil {
		return "", err
	}
	return string(tok), nil
}

// open verifies and decrypts a token.  A zero ttl disables the age check.
func open(tok string, k *fernet.Key) []byte {
	return fernet.VerifyAndDecrypt([]byte(tok), 0, []*fernet.Key{k})
}

func parseKey(pwdKey string) (*fernet.Key, error) {
	if pwdKey == "" {
		return nil, ErrWeakPasswordKey
	}
	b, err := base64.URLEncoding.DecodeString(pwdKey)
	if err != nil || len(b) != len(fernet.Key{}) {
		return nil, ErrWeakPasswordKey
	}
	var k fernet.Key
	copy(k[:], b)
	return &k, nil
}
