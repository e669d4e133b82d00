package wallet

// MnemonicCodec converts entropy to BIP-39 phrases and validates them
// against a fixed wordlist.
type MnemonicCodec interface {
	// EncodeEntropy returns the phrase for 16 or 32 bytes of entropy.
	EncodeEntropy(entropy []byte) (string, error)
	// Validate reports whether phrase has a known word count, only
	// wordlist words and a matching checksum. It never panics on input.
	Validate(phrase string) bool
	// Wordlist returns the 2048 words the codec is pinned to.
	Wordlist() ([]string, error)
}

// SeedDeriver runs the BIP-39 PBKDF2 step. Inputs are already normalised.
type SeedDeriver interface {
	DeriveSeed(phrase, passphrase string) (Seed, error)
}

// KeyTree performs BIP-32 private derivation.
type KeyTree interface {
	MasterKey(seed Seed) (*ExtendedKey, error)
	// DeriveChild derives the child at index (below HardenedOffset).
	DeriveChild(parent *ExtendedKey, index uint32, hardened bool) (*ExtendedKey, error)
}

// Backend is one library implementation of the derivation primitives.
// Errors wrapping ErrBackendUnavailable tell the Selector to stop using
// the backend.
type Backend interface {
	Name() string
	MnemonicCodec
	SeedDeriver
	KeyTree
}
