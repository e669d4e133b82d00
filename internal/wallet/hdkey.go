package wallet

import (
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Klingon-tech/klingwallet/pkg/crypto"
)

// HardenedOffset is added to a child index for hardened derivation.
const HardenedOffset uint32 = 0x80000000

// BIP-44/84 purpose fields.
const (
	PurposeBIP44 = 44
	PurposeBIP84 = 84
)

// Coin types used by the chain table.
const (
	CoinTypeBitcoin  = 0
	CoinTypeLitecoin = 2
	CoinTypeDogecoin = 3
	CoinTypeEthereum = 60
	CoinTypeKlingnet = 8888
)

// ExtendedKey is a BIP-32 private extended key.
type ExtendedKey struct {
	PrivateKey        [32]byte
	ChainCode         [32]byte
	Depth             uint8
	ParentFingerprint uint32
	ChildIndex        uint32 // includes HardenedOffset for hardened children
}

// PublicKey returns the compressed 33-byte secp256k1 public key.
func (k *ExtendedKey) PublicKey() ([]byte, error) {
	pk, err := crypto.PrivateKeyFromBytes(k.PrivateKey[:])
	if err != nil {
		return nil, err
	}
	defer pk.Zero()
	return pk.PublicKey(), nil
}

// Fingerprint returns the first four bytes of HASH160(public key),
// the value children record as their ParentFingerprint.
func (k *ExtendedKey) Fingerprint() (uint32, error) {
	pub, err := k.PublicKey()
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(crypto.Hash160(pub)[:4]), nil
}

// IsHardened reports whether the key is a hardened child.
func (k *ExtendedKey) IsHardened() bool {
	return k.ChildIndex >= HardenedOffset
}

// Equal compares every field, the secret parts in constant time.
func (k *ExtendedKey) Equal(o *ExtendedKey) bool {
	if k == nil || o == nil {
		return k == o
	}
	secret := subtle.ConstantTimeCompare(k.PrivateKey[:], o.PrivateKey[:]) &
		subtle.ConstantTimeCompare(k.ChainCode[:], o.ChainCode[:])
	return secret == 1 &&
		k.Depth == o.Depth &&
		k.ParentFingerprint == o.ParentFingerprint &&
		k.ChildIndex == o.ChildIndex
}

// Zero wipes the private key and chain code.
func (k *ExtendedKey) Zero() {
	if k == nil {
		return
	}
	clear(k.PrivateKey[:])
	clear(k.ChainCode[:])
}

// String redacts key material but keeps the position in the tree.
func (k *ExtendedKey) String() string {
	return fmt.Sprintf("ExtendedKey(depth=%d, child=%d, %s)", k.Depth, k.ChildIndex, redacted)
}

// Format implements fmt.Formatter so every verb is redacted.
func (k *ExtendedKey) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, k.String())
}

// PathSegment is one step of a derivation path.
type PathSegment struct {
	Index    uint32 // below HardenedOffset
	Hardened bool
}

// ChildIndex returns the BIP-32 child number, with the hardened bit set.
func (s PathSegment) ChildIndex() uint32 {
	if s.Hardened {
		return s.Index | HardenedOffset
	}
	return s.Index
}

func (s PathSegment) String() string {
	if s.Hardened {
		return strconv.FormatUint(uint64(s.Index), 10) + "'"
	}
	return strconv.FormatUint(uint64(s.Index), 10)
}

// DerivationPath is an ordered list of segments below the master key.
type DerivationPath []PathSegment

// ParsePath parses "m/44'/60'/0'/0/0". Hardened segments may be marked
// with ', h or H. The leading "m" is required.
func ParsePath(s string) (DerivationPath, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) == 0 || parts[0] != "m" {
		return nil, fmt.Errorf("derivation path %q must start with m", s)
	}
	path := make(DerivationPath, 0, len(parts)-1)
	for _, part := range parts[1:] {
		hardened := false
		switch {
		case strings.HasSuffix(part, "'"), strings.HasSuffix(part, "h"), strings.HasSuffix(part, "H"):
			hardened = true
			part = part[:len(part)-1]
		}
		if part == "" || strings.HasPrefix(part, "+") || strings.HasPrefix(part, "-") {
			return nil, fmt.Errorf("derivation path %q: empty or signed segment", s)
		}
		idx, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("derivation path %q: %w", s, err)
		}
		if uint32(idx) >= HardenedOffset {
			return nil, fmt.Errorf("derivation path %q: index %d out of range", s, idx)
		}
		path = append(path, PathSegment{Index: uint32(idx), Hardened: hardened})
	}
	return path, nil
}

// MustParsePath is ParsePath for package-level tables. It panics on error.
func MustParsePath(s string) DerivationPath {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p DerivationPath) String() string {
	var sb strings.Builder
	sb.WriteString("m")
	for _, seg := range p {
		sb.WriteByte('/')
		sb.WriteString(seg.String())
	}
	return sb.String()
}

// MarshalText encodes the path in its string form.
func (p DerivationPath) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses the string form.
func (p *DerivationPath) UnmarshalText(b []byte) error {
	parsed, err := ParsePath(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// DeriveAddressPath walks tree from the master key of seed along path.
// Intermediate keys are wiped; the caller owns the returned key.
func DeriveAddressPath(tree KeyTree, seed Seed, path DerivationPath) (*ExtendedKey, error) {
	current, err := tree.MasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	for _, seg := range path {
		child, err := tree.DeriveChild(current, seg.Index, seg.Hardened)
		current.Zero()
		if err != nil {
			return nil, fmt.Errorf("derive child %s: %w", seg, err)
		}
		current = child
	}
	return current, nil
}
