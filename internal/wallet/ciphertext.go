package wallet

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Algorithm identifies a KDF + AEAD combination.
type Algorithm string

// Supported vault algorithms.
const (
	AlgorithmArgon2XChaCha Algorithm = "argon2id-xchacha20poly1305"
	AlgorithmScryptAESGCM  Algorithm = "scrypt-aes256gcm"
)

// Wire codes of the algorithms, the first byte of a serialized Ciphertext.
const (
	codeArgon2XChaCha byte = 0x01
	codeScryptAESGCM  byte = 0x02
)

// Sizes shared by every algorithm.
const (
	SaltSize  = 32
	TagSize   = 16
	paramSize = 9 // argon2: memory(4) iterations(4) parallelism(1); scrypt: logN(1) r(4) p(4)
)

// KDFParams are the key-derivation parameters stored with a ciphertext.
type KDFParams struct {
	// Argon2id
	Memory      uint32 `json:"memory,omitempty"` // KiB
	Iterations  uint32 `json:"iterations,omitempty"`
	Parallelism uint8  `json:"parallelism,omitempty"`

	// scrypt
	LogN uint8  `json:"log_n,omitempty"`
	R    uint32 `json:"r,omitempty"`
	P    uint32 `json:"p,omitempty"`
}

// Ciphertext is an encrypted wallet secret. It never contains plaintext.
//
// Binary format:
// code(1) | salt(32) | params(9) | nonce(24 or 12) | bytes | authTag(16)
type Ciphertext struct {
	AlgorithmID Algorithm
	KDF         KDFParams
	Salt        []byte
	Nonce       []byte
	AuthTag     []byte
	Bytes       []byte
}

func algorithmCode(a Algorithm) (byte, int, error) {
	switch a {
	case AlgorithmArgon2XChaCha:
		return codeArgon2XChaCha, 24, nil
	case AlgorithmScryptAESGCM:
		return codeScryptAESGCM, 12, nil
	}
	return 0, 0, fmt.Errorf("unknown vault algorithm %q", a)
}

func algorithmFromCode(c byte) (Algorithm, int, error) {
	switch c {
	case codeArgon2XChaCha:
		return AlgorithmArgon2XChaCha, 24, nil
	case codeScryptAESGCM:
		return AlgorithmScryptAESGCM, 12, nil
	}
	return "", 0, fmt.Errorf("unknown vault algorithm code 0x%02x", c)
}

// header returns code | salt | params, which is also the AEAD's
// associated data.
func (c *Ciphertext) header() ([]byte, error) {
	code, _, err := algorithmCode(c.AlgorithmID)
	if err != nil {
		return nil, err
	}
	if len(c.Salt) != SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", SaltSize, len(c.Salt))
	}
	out := make([]byte, 0, 1+SaltSize+paramSize)
	out = append(out, code)
	out = append(out, c.Salt...)
	switch c.AlgorithmID {
	case AlgorithmArgon2XChaCha:
		out = binary.LittleEndian.AppendUint32(out, c.KDF.Memory)
		out = binary.LittleEndian.AppendUint32(out, c.KDF.Iterations)
		out = append(out, c.KDF.Parallelism)
	case AlgorithmScryptAESGCM:
		out = append(out, c.KDF.LogN)
		out = binary.LittleEndian.AppendUint32(out, c.KDF.R)
		out = binary.LittleEndian.AppendUint32(out, c.KDF.P)
	}
	return out, nil
}

// MarshalBinary encodes the ciphertext in its wire format.
func (c *Ciphertext) MarshalBinary() ([]byte, error) {
	hdr, err := c.header()
	if err != nil {
		return nil, err
	}
	_, nonceSize, _ := algorithmCode(c.AlgorithmID)
	if len(c.Nonce) != nonceSize {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", nonceSize, len(c.Nonce))
	}
	if len(c.AuthTag) != TagSize {
		return nil, fmt.Errorf("auth tag must be %d bytes, got %d", TagSize, len(c.AuthTag))
	}
	out := make([]byte, 0, len(hdr)+len(c.Nonce)+len(c.Bytes)+TagSize)
	out = append(out, hdr...)
	out = append(out, c.Nonce...)
	out = append(out, c.Bytes...)
	out = append(out, c.AuthTag...)
	return out, nil
}

// UnmarshalBinary decodes the wire format.
func (c *Ciphertext) UnmarshalBinary(data []byte) error {
	if len(data) < 1 {
		return fmt.Errorf("ciphertext is empty")
	}
	alg, nonceSize, err := algorithmFromCode(data[0])
	if err != nil {
		return err
	}
	minSize := 1 + SaltSize + paramSize + nonceSize + TagSize
	if len(data) < minSize {
		return fmt.Errorf("ciphertext too short: %d bytes, need at least %d", len(data), minSize)
	}

	var out Ciphertext
	out.AlgorithmID = alg
	off := 1
	out.Salt = append([]byte(nil), data[off:off+SaltSize]...)
	off += SaltSize
	p := data[off : off+paramSize]
	switch alg {
	case AlgorithmArgon2XChaCha:
		out.KDF.Memory = binary.LittleEndian.Uint32(p[0:4])
		out.KDF.Iterations = binary.LittleEndian.Uint32(p[4:8])
		out.KDF.Parallelism = p[8]
	case AlgorithmScryptAESGCM:
		out.KDF.LogN = p[0]
		out.KDF.R = binary.LittleEndian.Uint32(p[1:5])
		out.KDF.P = binary.LittleEndian.Uint32(p[5:9])
	}
	off += paramSize
	out.Nonce = append([]byte(nil), data[off:off+nonceSize]...)
	off += nonceSize
	body := data[off:]
	out.Bytes = append([]byte(nil), body[:len(body)-TagSize]...)
	out.AuthTag = append([]byte(nil), body[len(body)-TagSize:]...)
	*c = out
	return nil
}

// MarshalText encodes the wire format as standard base64, so JSON carries
// a ciphertext as a single string.
func (c *Ciphertext) MarshalText() ([]byte, error) {
	b, err := c.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(b)))
	base64.StdEncoding.Encode(out, b)
	return out, nil
}

// UnmarshalText decodes the base64 form.
func (c *Ciphertext) UnmarshalText(text []byte) error {
	b := make([]byte, base64.StdEncoding.DecodedLen(len(text)))
	n, err := base64.StdEncoding.Decode(b, text)
	if err != nil {
		return fmt.Errorf("ciphertext base64: %w", err)
	}
	return c.UnmarshalBinary(b[:n])
}
