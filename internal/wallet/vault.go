package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/Klingon-tech/klingwallet/internal/log"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// Argon2Params holds Argon2id parameters.
type Argon2Params struct {
	Memory      uint32 // in KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultArgon2Params returns recommended Argon2id parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024, // 64 MB
		Iterations:  3,
		Parallelism: 4,
	}
}

// Scrypt parameters. N is 2^LogN.
const (
	DefaultScryptLogN = 18
	scryptR           = 8
	scryptP           = 1
)

// Limits applied to parameters read back from a ciphertext, so a crafted
// record cannot make Decrypt allocate or spin without bound. Memory is
// capped on the total the KDF allocates, not per factor.
const (
	maxKDFMemory         = 1 << 30 // bytes
	maxArgon2Memory      = maxKDFMemory / 1024
	maxArgon2Iterations  = 64
	maxArgon2Parallelism = 16
	maxScryptLogN        = 22
	maxScryptR           = 32
	maxScryptP           = 16
	maxSecretSize        = 1 << 20
)

// Minimum cost accepted by NewVault for new ciphertexts.
const (
	MinArgon2Memory = 8 * 1024 // 8 MiB in KiB
	MinScryptLogN   = 14
)

const keySize = 32

// VaultConfig selects the algorithm and cost used for new ciphertexts.
// Decryption always follows the parameters stored in the ciphertext.
type VaultConfig struct {
	Algorithm  Algorithm
	Argon2     Argon2Params
	ScryptLogN uint8
}

// DefaultVaultConfig returns Argon2id + XChaCha20-Poly1305 with default cost.
func DefaultVaultConfig() VaultConfig {
	return VaultConfig{
		Algorithm:  AlgorithmArgon2XChaCha,
		Argon2:     DefaultArgon2Params(),
		ScryptLogN: DefaultScryptLogN,
	}
}

// Vault encrypts wallet secrets under a password.
type Vault struct {
	cfg    VaultConfig
	rand   io.Reader
	logger zerolog.Logger
}

// NewVault validates cfg and returns a Vault. Costs below MinArgon2Memory
// or MinScryptLogN are rejected.
func NewVault(cfg VaultConfig, opts ...Option) (*Vault, error) {
	switch cfg.Algorithm {
	case AlgorithmArgon2XChaCha:
		if cfg.Argon2.Memory < MinArgon2Memory {
			return nil, fmt.Errorf("argon2 memory %d KiB below minimum %d KiB", cfg.Argon2.Memory, MinArgon2Memory)
		}
	case AlgorithmScryptAESGCM:
		if cfg.ScryptLogN < MinScryptLogN {
			return nil, fmt.Errorf("scrypt logN %d below minimum %d", cfg.ScryptLogN, MinScryptLogN)
		}
	}
	return newVault(cfg, opts...)
}

// newVault checks cfg against the decrypt-side limits only.
func newVault(cfg VaultConfig, opts ...Option) (*Vault, error) {
	if _, _, err := algorithmCode(cfg.Algorithm); err != nil {
		return nil, err
	}
	switch cfg.Algorithm {
	case AlgorithmArgon2XChaCha:
		if err := checkArgon2(cfg.Argon2.Memory, cfg.Argon2.Iterations, cfg.Argon2.Parallelism); err != nil {
			return nil, err
		}
	case AlgorithmScryptAESGCM:
		if err := checkScrypt(cfg.ScryptLogN, scryptR, scryptP); err != nil {
			return nil, err
		}
	}
	s := applyOptions(log.Vault, opts)
	r := s.entropy
	if r == nil {
		r = rand.Reader
	}
	return &Vault{cfg: cfg, rand: r, logger: *s.logger}, nil
}

// Algorithm returns the algorithm used for new ciphertexts.
func (v *Vault) Algorithm() Algorithm {
	return v.cfg.Algorithm
}

func checkArgon2(memory, iterations uint32, parallelism uint8) error {
	if memory == 0 || memory > maxArgon2Memory {
		return fmt.Errorf("argon2 memory %d KiB out of range", memory)
	}
	if iterations == 0 || iterations > maxArgon2Iterations {
		return fmt.Errorf("argon2 iterations %d out of range", iterations)
	}
	if parallelism == 0 || parallelism > maxArgon2Parallelism {
		return fmt.Errorf("argon2 parallelism %d out of range", parallelism)
	}
	return nil
}

func checkScrypt(logN uint8, r, p uint32) error {
	if logN == 0 || logN > maxScryptLogN {
		return fmt.Errorf("scrypt logN %d out of range", logN)
	}
	if r == 0 || r > maxScryptR || p == 0 || p > maxScryptP {
		return fmt.Errorf("scrypt r=%d p=%d out of range", r, p)
	}
	// scrypt allocates 128*r*N for V and 128*r*p for B.
	if mem := 128 * uint64(r) * ((uint64(1) << logN) + uint64(p)); mem > maxKDFMemory {
		return fmt.Errorf("scrypt needs %d bytes, limit %d", mem, maxKDFMemory)
	}
	return nil
}

// deriveKey runs the ciphertext's KDF over password.
func deriveKey(c *Ciphertext, password []byte) ([]byte, error) {
	switch c.AlgorithmID {
	case AlgorithmArgon2XChaCha:
		if err := checkArgon2(c.KDF.Memory, c.KDF.Iterations, c.KDF.Parallelism); err != nil {
			return nil, err
		}
		return argon2.IDKey(password, c.Salt, c.KDF.Iterations, c.KDF.Memory, c.KDF.Parallelism, keySize), nil
	case AlgorithmScryptAESGCM:
		if err := checkScrypt(c.KDF.LogN, c.KDF.R, c.KDF.P); err != nil {
			return nil, err
		}
		return scrypt.Key(password, c.Salt, 1<<c.KDF.LogN, int(c.KDF.R), int(c.KDF.P), keySize)
	}
	return nil, fmt.Errorf("unknown vault algorithm %q", c.AlgorithmID)
}

func newAEAD(alg Algorithm, key []byte) (cipher.AEAD, error) {
	switch alg {
	case AlgorithmArgon2XChaCha:
		return chacha20poly1305.NewX(key)
	case AlgorithmScryptAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	}
	return nil, fmt.Errorf("unknown vault algorithm %q", alg)
}

// Encrypt seals secret under password with a fresh salt and nonce.
// The caller keeps ownership of secret and password.
func (v *Vault) Encrypt(secret, password []byte) (*Ciphertext, error) {
	if len(secret) > maxSecretSize {
		return nil, fmt.Errorf("secret too large: %d bytes", len(secret))
	}
	c := &Ciphertext{AlgorithmID: v.cfg.Algorithm, Salt: make([]byte, SaltSize)}
	switch v.cfg.Algorithm {
	case AlgorithmArgon2XChaCha:
		c.KDF = KDFParams{Memory: v.cfg.Argon2.Memory, Iterations: v.cfg.Argon2.Iterations, Parallelism: v.cfg.Argon2.Parallelism}
	case AlgorithmScryptAESGCM:
		c.KDF = KDFParams{LogN: v.cfg.ScryptLogN, R: scryptR, P: scryptP}
	}

	// Generate random salt.
	if _, err := io.ReadFull(v.rand, c.Salt); err != nil {
		return nil, &EntropySourceError{Err: fmt.Errorf("generate salt: %w", err)}
	}

	key, err := deriveKey(c, password)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer clear(key)

	aead, err := newAEAD(c.AlgorithmID, key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	c.Nonce = make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(v.rand, c.Nonce); err != nil {
		return nil, &EntropySourceError{Err: fmt.Errorf("generate nonce: %w", err)}
	}

	aad, err := c.header()
	if err != nil {
		return nil, err
	}
	sealed := aead.Seal(nil, c.Nonce, secret, aad)
	c.Bytes = sealed[:len(sealed)-TagSize]
	c.AuthTag = sealed[len(sealed)-TagSize:]

	v.logger.Debug().Str("algorithm", string(c.AlgorithmID)).Msg("Secret encrypted")
	return c, nil
}

// Decrypt opens c with password. Any failure, including a wrong password,
// returns a *DecryptionError and no plaintext.
func (v *Vault) Decrypt(c *Ciphertext, password []byte) ([]byte, error) {
	if c == nil {
		return nil, &DecryptionError{Reason: "missing ciphertext"}
	}
	_, nonceSize, err := algorithmCode(c.AlgorithmID)
	if err != nil {
		return nil, &DecryptionError{Reason: "malformed ciphertext", Err: err}
	}
	if len(c.Nonce) != nonceSize || len(c.AuthTag) != TagSize || len(c.Salt) != SaltSize {
		return nil, &DecryptionError{Reason: "malformed ciphertext"}
	}
	aad, err := c.header()
	if err != nil {
		return nil, &DecryptionError{Reason: "malformed ciphertext", Err: err}
	}

	key, err := deriveKey(c, password)
	if err != nil {
		return nil, &DecryptionError{Reason: "invalid key derivation parameters", Err: err}
	}
	defer clear(key)

	aead, err := newAEAD(c.AlgorithmID, key)
	if err != nil {
		return nil, &DecryptionError{Reason: "create cipher", Err: err}
	}

	sealed := make([]byte, 0, len(c.Bytes)+TagSize)
	sealed = append(sealed, c.Bytes...)
	sealed = append(sealed, c.AuthTag...)
	plaintext, err := aead.Open(nil, c.Nonce, sealed, aad)
	if err != nil {
		v.logger.Debug().Str("algorithm", string(c.AlgorithmID)).Msg("Authentication failed")
		return nil, &DecryptionError{Reason: "authentication failed (wrong password or corrupted data)"}
	}
	return plaintext, nil
}
