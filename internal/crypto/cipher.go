package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// KeySize is the secretbox key width.
	KeySize = 32
	// NonceSize is the secretbox nonce width.
	NonceSize = 24
)

var (
	// ErrMalformedToken means the token could not be decoded at all
	// (bad base64, or too short to hold a nonce).
	ErrMalformedToken = errors.New("malformed ciphertext token")
	// ErrAuthenticationFailed means the tag check failed. A wrong
	// password and a corrupted token are indistinguishable here.
	ErrAuthenticationFailed = errors.New("decryption failed: wrong password or corrupted data")
)

// DeriveKey turns an arbitrary-length password into a fixed-width
// secretbox key: the UTF-8 bytes of the password, truncated to 32
// bytes, zero-padded on the right. Deliberately not a slow KDF: the
// upstream data format requires this exact mapping, bit for bit.
func DeriveKey(password string) *[KeySize]byte {
	var key [KeySize]byte
	copy(key[:], password)
	return &key
}

// Encrypt seals plaintext under the password-derived key with a random
// nonce and returns base64(nonce || ciphertext).
func Encrypt(plaintext, password string) (string, error) {
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, DeriveKey(password))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. The token may be a raw base64 token or a
// JSON envelope of the form {"_type":"encrypted","data":"<token>"};
// anything that does not parse as such an envelope is treated as a raw
// token.
func Decrypt(token, password string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(unwrapEnvelope(token))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if len(data) < NonceSize {
		return "", fmt.Errorf("%w: shorter than nonce", ErrMalformedToken)
	}

	var nonce [NonceSize]byte
	copy(nonce[:], data[:NonceSize])

	plaintext, ok := secretbox.Open(nil, data[NonceSize:], &nonce, DeriveKey(password))
	if !ok {
		return "", ErrAuthenticationFailed
	}
	return string(plaintext), nil
}

type envelope struct {
	Type string `json:"_type"`
	Data string `json:"data"`
}

func unwrapEnvelope(token string) string {
	trimmed := strings.TrimSpace(token)
	if !strings.HasPrefix(trimmed, "{") {
		return token
	}
	var env envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil || env.Data == "" {
		return token
	}
	return env.Data
}
