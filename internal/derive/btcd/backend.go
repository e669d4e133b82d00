// Package btcd adapts github.com/cosmos/go-bip39 and btcd's hdkeychain to
// the wallet.Backend interface.
package btcd

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/Klingon-tech/klingwallet/internal/wallet"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/cosmos/go-bip39"
)

// Name is the backend name used in configuration.
const Name = "btcd"

// Backend is the btcd derivation backend.
type Backend struct {
	once     sync.Once
	words    []string
	wordsErr error
}

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

// Wordlist implements wallet.MnemonicCodec. The library keeps its list
// private, so the words are read back by encoding entropy whose first
// eleven bits select each index in turn.
func (b *Backend) Wordlist() ([]string, error) {
	b.once.Do(func() {
		words := make([]string, wallet.WordlistSize)
		entropy := make([]byte, 16)
		for i := range words {
			entropy[0] = byte(i >> 3)
			entropy[1] = byte(i&7) << 5
			phrase, err := bip39.NewMnemonic(entropy)
			if err != nil {
				b.wordsErr = fmt.Errorf("%w: read wordlist: %v", wallet.ErrBackendUnavailable, err)
				return
			}
			first, _, _ := strings.Cut(phrase, " ")
			words[i] = first
		}
		b.words = words
	})
	if b.wordsErr != nil {
		return nil, b.wordsErr
	}
	return slices.Clone(b.words), nil
}

// DeriveSeed implements wallet.SeedDeriver.
func (*Backend) DeriveSeed(phrase, passphrase string) (wallet.Seed, error) {
	seed := bip39.NewSeed(phrase, passphrase)
	defer clear(seed)
	return wallet.SeedFromBytes(seed)
}

// MasterKey implements wallet.KeyTree.
func (*Backend) MasterKey(seed wallet.Seed) (*wallet.ExtendedKey, error) {
	k, err := hdkeychain.NewMaster(seed[:], &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("hdkeychain master key: %w", err)
	}
	defer k.Zero()
	return fromExtended(k)
}

// DeriveChild implements wallet.KeyTree.
func (*Backend) DeriveChild(parent *wallet.ExtendedKey, index uint32, hardened bool) (*wallet.ExtendedKey, error) {
	if index >= wallet.HardenedOffset {
		return nil, fmt.Errorf("child index %d out of range", index)
	}
	if hardened {
		index += hdkeychain.HardenedKeyStart
	}
	p := hdkeychain.NewExtendedKey(
		chaincfg.MainNetParams.HDPrivateKeyID[:],
		slices.Clone(parent.PrivateKey[:]),
		slices.Clone(parent.ChainCode[:]),
		fingerprintBytes(parent.ParentFingerprint),
		parent.Depth,
		parent.ChildIndex,
		true,
	)
	defer p.Zero()

	child, err := p.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("hdkeychain child %d: %w", index, err)
	}
	defer child.Zero()
	return fromExtended(child)
}

func fingerprintBytes(fp uint32) []byte {
	return []byte{byte(fp >> 24), byte(fp >> 16), byte(fp >> 8), byte(fp)}
}

func fromExtended(k *hdkeychain.ExtendedKey) (*wallet.ExtendedKey, error) {
	if !k.IsPrivate() {
		return nil, fmt.Errorf("extended key is public")
	}
	priv, err := k.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("extended key: %w", err)
	}
	out := &wallet.ExtendedKey{
		Depth:             k.Depth(),
		ParentFingerprint: k.ParentFingerprint(),
		ChildIndex:        k.ChildIndex(),
	}
	serializeInto(out.PrivateKey[:], priv)
	copy(out.ChainCode[:], k.ChainCode())
	return out, nil
}

// serializeInto writes the 32-byte scalar of priv and wipes the key.
func serializeInto(dst []byte, priv *btcec.PrivateKey) {
	b := priv.Serialize()
	copy(dst, b)
	clear(b)
	priv.Zero()
}
