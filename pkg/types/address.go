// Package types holds the Klingnet address format shared by the wallet
// and its CLI.
package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// AddressSize is the length of an address in bytes.
const AddressSize = 20

// Address HRP (human-readable part) constants for bech32 encoding.
const (
	MainnetHRP = "kgx"
	TestnetHRP = "tkgx"
)

// Address represents a 160-bit Klingnet address (public key hash).
type Address [AddressSize]byte

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the mainnet bech32 encoding (e.g. "kgx1...").
func (a Address) String() string {
	s, err := a.Encode(MainnetHRP)
	if err != nil {
		// Fallback to hex if encoding fails (should never happen).
		return MainnetHRP + ":" + hex.EncodeToString(a[:])
	}
	return s
}

// Encode returns the bech32 encoding of the address under hrp.
func (a Address) Encode(hrp string) (string, error) {
	if hrp == "" {
		return "", fmt.Errorf("bech32: empty HRP")
	}
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("bech32: convert bits: %w", err)
	}
	s, err := bech32.Encode(hrp, conv)
	if err != nil {
		return "", fmt.Errorf("bech32: %w", err)
	}
	return s, nil
}

// Hex returns the raw hex-encoded address without prefix.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// Bytes returns a copy of the address as a byte slice.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

// MarshalJSON encodes the address as a bech32 string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a bech32 or raw hex string into an address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, _, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a bech32 ("kgx1...", "tkgx1...") or raw 40-char hex
// address and returns it with its HRP. Hex input reports an empty HRP.
func ParseAddress(s string) (Address, string, error) {
	if s == "" {
		return Address{}, "", fmt.Errorf("empty address")
	}

	if isHex40(s) {
		decoded, err := hex.DecodeString(s)
		if err != nil {
			return Address{}, "", fmt.Errorf("invalid address: %w", err)
		}
		var a Address
		copy(a[:], decoded)
		return a, "", nil
	}

	hrp, data5, err := bech32.Decode(s)
	if err != nil {
		return Address{}, "", fmt.Errorf("invalid bech32 address: %w", err)
	}
	if hrp != MainnetHRP && hrp != TestnetHRP {
		return Address{}, "", fmt.Errorf("unknown address prefix %q", hrp)
	}
	data, err := bech32.ConvertBits(data5, 5, 8, false)
	if err != nil {
		return Address{}, "", fmt.Errorf("invalid bech32 address: %w", err)
	}
	if len(data) != AddressSize {
		return Address{}, "", fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(data))
	}
	var a Address
	copy(a[:], data)
	return a, strings.ToLower(hrp), nil
}

// isHex40 returns true if s is exactly 40 hex characters.
func isHex40(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
