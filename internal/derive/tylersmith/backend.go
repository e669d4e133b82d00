// Package tylersmith adapts github.com/tyler-smith/go-bip39 and go-bip32
// to the wallet.Backend interface.
package tylersmith

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/Klingon-tech/klingwallet/internal/wallet"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// Name is the backend name used in configuration.
const Name = "tyler-smith"

// Backend is the tyler-smith derivation backend.
type Backend struct{}

// New returns the backend.
func New() *Backend { return &Backend{} }

// Name implements wallet.Backend.
func (*Backend) Name() string { return Name }

// EncodeEntropy implements wallet.MnemonicCodec.
func (*Backend) EncodeEntropy(entropy []byte) (string, error) {
	return bip39.NewMnemonic(entropy)
}

// Validate implements wallet.MnemonicCodec.
func (*Backend) Validate(phrase string) bool {
	return bip39.IsMnemonicValid(phrase)
}

// Wordlist implements wallet.MnemonicCodec.
func (*Backend) Wordlist() ([]string, error) {
	words := bip39.GetWordList()
	if len(words) != wallet.WordlistSize {
		return nil, fmt.Errorf("%w: wordlist has %d words", wallet.ErrBackendUnavailable, len(words))
	}
	return slices.Clone(words), nil
}

// DeriveSeed implements wallet.SeedDeriver.
func (*Backend) DeriveSeed(phrase, passphrase string) (wallet.Seed, error) {
	seed := bip39.NewSeed(phrase, passphrase)
	defer clear(seed)
	return wallet.SeedFromBytes(seed)
}

// MasterKey implements wallet.KeyTree.
func (*Backend) MasterKey(seed wallet.Seed) (*wallet.ExtendedKey, error) {
	k, err := bip32.NewMasterKey(seed[:])
	if err != nil {
		return nil, fmt.Errorf("bip32 master key: %w", err)
	}
	defer clear(k.Key)
	return fromBIP32(k)
}

// DeriveChild implements wallet.KeyTree.
func (*Backend) DeriveChild(parent *wallet.ExtendedKey, index uint32, hardened bool) (*wallet.ExtendedKey, error) {
	if index >= wallet.HardenedOffset {
		return nil, fmt.Errorf("child index %d out of range", index)
	}
	if hardened {
		index += bip32.FirstHardenedChild
	}
	p := toBIP32(parent)
	defer clear(p.Key)

	child, err := p.NewChildKey(index)
	if err != nil {
		return nil, fmt.Errorf("bip32 child %d: %w", index, err)
	}
	defer clear(child.Key)
	return fromBIP32(child)
}

func toBIP32(k *wallet.ExtendedKey) *bip32.Key {
	childNum := make([]byte, 4)
	binary.BigEndian.PutUint32(childNum, k.ChildIndex)
	fp := make([]byte, 4)
	binary.BigEndian.PutUint32(fp, k.ParentFingerprint)
	return &bip32.Key{
		Version:     bip32.PrivateWalletVersion,
		Depth:       k.Depth,
		ChildNumber: childNum,
		FingerPrint: fp,
		ChainCode:   slices.Clone(k.ChainCode[:]),
		Key:         slices.Clone(k.PrivateKey[:]),
		IsPrivate:   true,
	}
}

func fromBIP32(k *bip32.Key) (*wallet.ExtendedKey, error) {
	if !k.IsPrivate || len(k.Key) > 32 || len(k.ChainCode) != 32 {
		return nil, fmt.Errorf("unexpected bip32 key shape")
	}
	if len(k.ChildNumber) != 4 || len(k.FingerPrint) != 4 {
		return nil, fmt.Errorf("unexpected bip32 key metadata")
	}
	out := &wallet.ExtendedKey{
		Depth:             k.Depth,
		ParentFingerprint: binary.BigEndian.Uint32(k.FingerPrint),
		ChildIndex:        binary.BigEndian.Uint32(k.ChildNumber),
	}
	// Keys are big-endian scalars; left-pad short encodings.
	copy(out.PrivateKey[32-len(k.Key):], k.Key)
	copy(out.ChainCode[:], k.ChainCode)
	return out, nil
}
