// Package wallet implements deterministic multi-chain wallet generation:
// mnemonics, seeds, hierarchical key derivation, per-chain addresses and
// password encryption of the secret at rest.
package wallet

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Supported mnemonic strengths.
const (
	EntropyBits128 = 128 // 12 words
	EntropyBits256 = 256 // 24 words
)

// WordlistSize is the number of words in a BIP-39 wordlist.
const WordlistSize = 2048

// Mnemonic is a normalised BIP-39 phrase. The phrase bytes can be wiped
// with Zero once the mnemonic is no longer needed.
type Mnemonic struct {
	phrase      Secret
	entropyBits int
}

// ParseMnemonic normalises text (NFKD, single spaces) and checks the word
// count. Wordlist membership and checksum are checked by a MnemonicCodec.
func ParseMnemonic(text string) (*Mnemonic, error) {
	phrase := NormalizeMnemonic(text)
	words := strings.Count(phrase, " ") + 1
	if phrase == "" {
		words = 0
	}
	bits, ok := entropyBitsForWords(words)
	if !ok {
		return nil, fmt.Errorf("%w: %d words, need 12 or 24", ErrInvalidMnemonic, words)
	}
	return &Mnemonic{phrase: Secret(phrase), entropyBits: bits}, nil
}

// NormalizeMnemonic applies NFKD and collapses whitespace to single spaces.
func NormalizeMnemonic(text string) string {
	return strings.Join(strings.Fields(norm.NFKD.String(text)), " ")
}

// NormalizePassphrase applies NFKD to a BIP-39 passphrase. Whitespace is
// significant and kept.
func NormalizePassphrase(passphrase string) string {
	return norm.NFKD.String(passphrase)
}

// Phrase returns the space-separated words.
func (m *Mnemonic) Phrase() string {
	return string(m.phrase)
}

// Words returns the individual words.
func (m *Mnemonic) Words() []string {
	return strings.Fields(string(m.phrase))
}

// WordCount returns 12 or 24.
func (m *Mnemonic) WordCount() int {
	return m.entropyBits * 3 / 32
}

// EntropyBits returns 128 or 256.
func (m *Mnemonic) EntropyBits() int {
	return m.entropyBits
}

func (m *Mnemonic) clone() *Mnemonic {
	return &Mnemonic{phrase: Secret(m.phrase.Bytes()), entropyBits: m.entropyBits}
}

// Zero wipes the phrase.
func (m *Mnemonic) Zero() {
	if m == nil {
		return
	}
	m.phrase.Zero()
}

// String redacts the phrase.
func (m *Mnemonic) String() string {
	return fmt.Sprintf("Mnemonic(%s, %d words)", redacted, m.WordCount())
}

// Format implements fmt.Formatter so every verb is redacted.
func (m *Mnemonic) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, m.String())
}

// MarshalJSON redacts the phrase.
func (m *Mnemonic) MarshalJSON() ([]byte, error) {
	return m.phrase.MarshalJSON()
}

func entropyBitsForWords(words int) (int, bool) {
	switch words {
	case 12:
		return EntropyBits128, true
	case 24:
		return EntropyBits256, true
	}
	return 0, false
}

// ValidEntropyBits reports whether bits is a supported mnemonic strength.
func ValidEntropyBits(bits int) bool {
	return bits == EntropyBits128 || bits == EntropyBits256
}

// readEntropy draws bits/8 bytes from r. A nil r means crypto/rand.
func readEntropy(r io.Reader, bits int) ([]byte, error) {
	if r == nil {
		r = rand.Reader
	}
	buf := make([]byte, bits/8)
	if _, err := io.ReadFull(r, buf); err != nil {
		clear(buf)
		return nil, &EntropySourceError{Err: err}
	}
	return buf, nil
}
