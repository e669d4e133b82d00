// Package native implements the derivation primitives directly on
// x/crypto and the decred secp256k1 scalar field. It is the fallback
// backend when the library adapters fail.
package native

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/Klingon-tech/klingwallet/internal/wallet"
	"github.com/Klingon-tech/klingwallet/pkg/crypto"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/tyler-smith/go-bip39/wordlists"
	"golang.org/x/crypto/pbkdf2"
)

// Name is the backend name used in configuration.
const Name = "native"

const (
	pbkdf2Rounds = 2048
	masterKeyTag = "Bitcoin seed"
)

// Backend is the native derivation backend.
type Backend struct {
	once  sync.Once
	index map[string]int
}

// New returns the backend.
func New() *Backend { return &Backend{} }

// Name implements wallet.Backend.
func (*Backend) Name() string { return Name }

func (b *Backend) wordIndex() map[string]int {
	b.once.Do(func() {
		b.index = make(map[string]int, len(wordlists.English))
		for i, w := range wordlists.English {
			b.index[w] = i
		}
	})
	return b.index
}

// Wordlist implements wallet.MnemonicCodec.
func (*Backend) Wordlist() ([]string, error) {
	if len(wordlists.English) != wallet.WordlistSize {
		return nil, fmt.Errorf("%w: wordlist has %d words", wallet.ErrBackendUnavailable, len(wordlists.English))
	}
	return slices.Clone(wordlists.English), nil
}

// EncodeEntropy implements wallet.MnemonicCodec.
func (*Backend) EncodeEntropy(entropy []byte) (string, error) {
	if len(entropy) != 16 && len(entropy) != 32 {
		return "", fmt.Errorf("entropy must be 16 or 32 bytes, got %d", len(entropy))
	}
	sum := sha256.Sum256(entropy)
	csBits := len(entropy) / 4

	// entropy || checksum, read as a bit stream in 11-bit groups.
	data := append(slices.Clone(entropy), sum[0])
	defer clear(data)
	nWords := (len(entropy)*8 + csBits) / 11
	words := make([]string, nWords)
	for i := range words {
		idx := 0
		for j := 0; j < 11; j++ {
			bit := i*11 + j
			idx = idx<<1 | int(data[bit/8]>>(7-bit%8)&1)
		}
		words[i] = wordlists.English[idx]
	}
	return strings.Join(words, " "), nil
}

// Validate implements wallet.MnemonicCodec.
func (b *Backend) Validate(phrase string) bool {
	words := strings.Split(phrase, " ")
	var entBytes int
	switch len(words) {
	case 12:
		entBytes = 16
	case 24:
		entBytes = 32
	default:
		return false
	}

	index := b.wordIndex()
	data := make([]byte, entBytes+1)
	defer clear(data)
	for i, w := range words {
		idx, ok := index[w]
		if !ok {
			return false
		}
		for j := 0; j < 11; j++ {
			if idx>>(10-j)&1 == 1 {
				bit := i*11 + j
				data[bit/8] |= 1 << (7 - bit%8)
			}
		}
	}
	sum := sha256.Sum256(data[:entBytes])
	csBits := uint(entBytes / 4)
	mask := byte(0xff) << (8 - csBits)
	return data[entBytes]&mask == sum[0]&mask
}

// DeriveSeed implements wallet.SeedDeriver.
func (*Backend) DeriveSeed(phrase, passphrase string) (wallet.Seed, error) {
	seed := pbkdf2.Key([]byte(phrase), []byte("mnemonic"+passphrase), pbkdf2Rounds, wallet.SeedSize, sha512.New)
	defer clear(seed)
	return wallet.SeedFromBytes(seed)
}

// MasterKey implements wallet.KeyTree.
func (*Backend) MasterKey(seed wallet.Seed) (*wallet.ExtendedKey, error) {
	mac := hmac.New(sha512.New, []byte(masterKeyTag))
	mac.Write(seed[:])
	sum := mac.Sum(nil)
	defer clear(sum)

	var k secp256k1.ModNScalar
	if overflow := k.SetByteSlice(sum[:32]); overflow || k.IsZero() {
		return nil, fmt.Errorf("seed produces an invalid master key")
	}
	out := &wallet.ExtendedKey{}
	k.PutBytes(&out.PrivateKey)
	k.Zero()
	copy(out.ChainCode[:], sum[32:])
	return out, nil
}

// DeriveChild implements wallet.KeyTree.
func (*Backend) DeriveChild(parent *wallet.ExtendedKey, index uint32, hardened bool) (*wallet.ExtendedKey, error) {
	if index >= wallet.HardenedOffset {
		return nil, fmt.Errorf("child index %d out of range", index)
	}
	if hardened {
		index += wallet.HardenedOffset
	}

	parentPub, err := parent.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("parent key: %w", err)
	}

	data := make([]byte, 0, 37)
	if hardened {
		data = append(data, 0x00)
		data = append(data, parent.PrivateKey[:]...)
	} else {
		data = append(data, parentPub...)
	}
	data = binary.BigEndian.AppendUint32(data, index)
	defer clear(data)

	mac := hmac.New(sha512.New, parent.ChainCode[:])
	mac.Write(data)
	sum := mac.Sum(nil)
	defer clear(sum)

	var il, kpar secp256k1.ModNScalar
	if overflow := il.SetByteSlice(sum[:32]); overflow {
		return nil, fmt.Errorf("child %d: derived scalar out of range", index)
	}
	if overflow := kpar.SetByteSlice(parent.PrivateKey[:]); overflow || kpar.IsZero() {
		return nil, fmt.Errorf("parent key is not a valid scalar")
	}
	il.Add(&kpar)
	kpar.Zero()
	if il.IsZero() {
		return nil, fmt.Errorf("child %d: derived key is zero", index)
	}

	out := &wallet.ExtendedKey{
		Depth:             parent.Depth + 1,
		ParentFingerprint: binary.BigEndian.Uint32(crypto.Hash160(parentPub)[:4]),
		ChildIndex:        index,
	}
	il.PutBytes(&out.PrivateKey)
	il.Zero()
	copy(out.ChainCode[:], sum[32:])
	return out, nil
}
