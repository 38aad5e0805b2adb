package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Sizes and cost of the challenge-response handshake.
const (
	SaltSize      = 16
	ChallengeSize = 32
	KeySize       = 32
	KDFIterations = 4096
)

// RandomBytes returns n bytes read from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("reading random bytes: %v", err)
	}
	return b, nil
}

// NewSalt returns a fresh random salt.
func NewSalt() ([]byte, error) {
	return RandomBytes(SaltSize)
}

// NewChallenge returns a fresh random challenge.
func NewChallenge() ([]byte, error) {
	return RandomBytes(ChallengeSize)
}

// DeriveKey stretches the shared password with the salt using
// PBKDF2-HMAC-SHA256.
func DeriveKey(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, KDFIterations, KeySize, sha256.New)
}

// ComputeResponse is the keyed hash both sides compute over the challenge:
// HMAC-SHA256 keyed with DeriveKey(password, salt).
func ComputeResponse(password, salt, challenge []byte) []byte {
	key := DeriveKey(password, salt)
	defer Wipe(key)

	mac := hmac.New(sha256.New, key)
	mac.Write(challenge)
	return mac.Sum(nil)
}

// VerifyResponse recomputes the expected response and compares it with the
// received one in constant time.
func VerifyResponse(password, salt, challenge, response []byte) bool {
	expected := ComputeResponse(password, salt, challenge)
	return hmac.Equal(expected, response)
}
