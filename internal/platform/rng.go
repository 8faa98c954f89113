package platform

import "crypto/rand"

// RNG abstracts randomness behind an interface with a deterministic test
// double. No other package in this module takes an RNG;
// EnsureIntegrityKey reads crypto/rand directly.
type RNG interface {
	// ReadBytes fills b with random bytes, returning an error on failure.
	ReadBytes(b []byte) error
}

// CryptoRNG is the production RNG backed by crypto/rand.
type CryptoRNG struct{}

// ReadBytes fills b using crypto/rand.Read.
func (CryptoRNG) ReadBytes(b []byte) error {
	_, err := rand.Read(b)
	return err
}

// SequenceRNG is a deterministic test RNG that cycles through a fixed
// byte sequence.
type SequenceRNG struct {
	Bytes []byte
	pos   int
}

// ReadBytes fills b by repeating the fixed sequence from the current
// position.
func (s *SequenceRNG) ReadBytes(b []byte) error {
	if len(s.Bytes) == 0 {
		for i := range b {
			b[i] = 0
		}
		return nil
	}
	for i := range b {
		b[i] = s.Bytes[s.pos%len(s.Bytes)]
		s.pos++
	}
	return nil
}
