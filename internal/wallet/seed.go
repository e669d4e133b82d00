package wallet

import (
	"fmt"
	"io"
)

// SeedSize is the length of a derived seed in bytes (512 bits).
const SeedSize = 64

// Seed is the PBKDF2-HMAC-SHA512 output of a mnemonic and passphrase.
type Seed [SeedSize]byte

// SeedFromBytes copies a 64-byte slice into a Seed.
func SeedFromBytes(b []byte) (Seed, error) {
	var s Seed
	if len(b) != SeedSize {
		return s, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(b))
	}
	copy(s[:], b)
	return s, nil
}

// Zero wipes the seed.
func (s *Seed) Zero() {
	clear(s[:])
}

// String redacts the seed.
func (s Seed) String() string { return "Seed(" + redacted + ")" }

// Format implements fmt.Formatter so every verb is redacted.
func (s Seed) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, s.String())
}
