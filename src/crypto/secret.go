package crypto

import "sync"

// CredentialStore supplies the shared table password. Every call returns a
// fresh copy that the caller owns and should Wipe when done.
type CredentialStore interface {
	Password() []byte
}

// Secret holds a byte string with copy-in/copy-out discipline: the buffer
// passed to NewSecret is copied, and Bytes never hands out the internal
// buffer.
type Secret struct {
	sync.RWMutex
	b []byte
}

// NewSecret copies b. The caller remains responsible for wiping b.
func NewSecret(b []byte) *Secret {
	c := make([]byte, len(b))
	copy(c, b)
	return &Secret{b: c}
}

// Bytes returns a copy of the secret.
func (s *Secret) Bytes() []byte {
	s.RLock()
	defer s.RUnlock()

	c := make([]byte, len(s.b))
	copy(c, s.b)
	return c
}

// Password implements CredentialStore.
func (s *Secret) Password() []byte {
	return s.Bytes()
}

// Len returns the length of the secret.
func (s *Secret) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.b)
}

// Wipe zeroes the internal copy. A wiped secret reads as all zeros.
func (s *Secret) Wipe() {
	s.Lock()
	defer s.Unlock()
	Wipe(s.b)
}

// Wipe zeroes b in place.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
