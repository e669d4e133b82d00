package wallet

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// entropyVector is a BIP-39 entropy/phrase pair.
type entropyVector struct {
	entropy string
	phrase  string
}

var entropyVectors = []entropyVector{
	{"00000000000000000000000000000000", "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"},
	{"7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f7f", "legal winner thank year wave sausage worth useful legal winner thank yellow"},
	{"80808080808080808080808080808080", "letter advice cage absurd amount doctor acoustic avoid letter advice cage above"},
	{"ffffffffffffffffffffffffffffffff", "zoo zoo zoo zoo zoo zoo zoo zoo zoo zoo zoo wrong"},
	{"0000000000000000000000000000000000000000000000000000000000000000", "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon art"},
}

var invalidPhrases = []string{
	"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon",
	"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon klingon",
	"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about",
	"",
}

const (
	vectorPhrase     = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	vectorPassphrase = "TREZOR"
	vectorSeed       = "c55257c360c07c72029aebc1b53c05ed0362ada38ead3e3e9efa3708e53495531f09a6987599d18264c1e1c92f2cf141630c7a3c4ab7c81b2f001698e7463b04"
	vectorEthAddress = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
)

// keyVector is the expected key at one step below the vector seed.
type keyVector struct {
	index             uint32
	hardened          bool
	privateKey        string
	chainCode         string
	parentFingerprint uint32
}

var vectorMaster = keyVector{
	privateKey: "cbedc75b0d6412c85c79bc13875112ef912fd1e756631b5a00330866f22ff184",
	chainCode:  "a3fa8c983223306de0f0f65e74ebb1e98aba751633bf91d5fb56529aa5c132c1",
}

// m/0' then m/0'/1, covering both derivation kinds.
var vectorChildren = []keyVector{
	{
		index: 0, hardened: true,
		privateKey:        "42775fdde2aa22ee7133c4ceaff8acec6bba817e5f932e82e45bd0ed80dc0602",
		chainCode:         "47116cb5534e6425238c7e8b9d7063c96ef5b9ad3c66dfcfb10e52f9ea64d1cb",
		parentFingerprint: 0xb4e3f5ed,
	},
	{
		index: 1, hardened: false,
		privateKey:        "3d8957a7b69b630836f2dcc6e82f7449eba3f38e8741cf87fc023504646fa2a6",
		chainCode:         "ab9cfa3f9d147fc4b2c53a7cb3aa8e9b809b3e0c9d16482f97607d1bd58f8f86",
		parentFingerprint: 0xf99a31bb,
	},
}

func nonConformant(backend, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrNonConformantBackend, backend, fmt.Sprintf(format, args...))
}

// checkWordlist verifies the backend's wordlist is a proper BIP-39 list and,
// when ref is set, identical to it.
func checkWordlist(b Backend, ref []string) ([]string, error) {
	words, err := b.Wordlist()
	if err != nil {
		return nil, fmt.Errorf("wordlist: %w", err)
	}
	if len(words) != WordlistSize {
		return nil, nonConformant(b.Name(), "wordlist has %d words", len(words))
	}
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, dup := seen[w]; dup {
			return nil, nonConformant(b.Name(), "wordlist repeats %q", w)
		}
		seen[w] = struct{}{}
	}
	if ref != nil {
		for i := range ref {
			if ref[i] != words[i] {
				return nil, fmt.Errorf("%w: %s: word %d is %q, want %q: %w",
					ErrNonConformantBackend, b.Name(), i, words[i], ref[i], ErrWordlistMismatch)
			}
		}
	}
	return words, nil
}

func checkMnemonicVectors(b Backend) error {
	for _, v := range entropyVectors {
		entropy, _ := hex.DecodeString(v.entropy)
		got, err := b.EncodeEntropy(entropy)
		if err != nil {
			return fmt.Errorf("encode entropy: %w", err)
		}
		if got != v.phrase {
			return nonConformant(b.Name(), "entropy %s encodes to %q", v.entropy, got)
		}
		if !b.Validate(v.phrase) {
			return nonConformant(b.Name(), "rejects valid phrase %q", v.phrase)
		}
	}
	for _, p := range invalidPhrases {
		if b.Validate(p) {
			return nonConformant(b.Name(), "accepts invalid phrase %q", p)
		}
	}
	return nil
}

func checkKey(backend, what string, got *ExtendedKey, want keyVector, depth uint8) error {
	priv, _ := hex.DecodeString(want.privateKey)
	cc, _ := hex.DecodeString(want.chainCode)
	childIndex := want.index
	if want.hardened {
		childIndex |= HardenedOffset
	}
	switch {
	case !bytes.Equal(got.PrivateKey[:], priv):
		return nonConformant(backend, "%s private key mismatch", what)
	case !bytes.Equal(got.ChainCode[:], cc):
		return nonConformant(backend, "%s chain code mismatch", what)
	case got.Depth != depth:
		return nonConformant(backend, "%s depth = %d, want %d", what, got.Depth, depth)
	case got.ParentFingerprint != want.parentFingerprint:
		return nonConformant(backend, "%s parent fingerprint = %08x, want %08x", what, got.ParentFingerprint, want.parentFingerprint)
	case got.ChildIndex != childIndex:
		return nonConformant(backend, "%s child index = %d, want %d", what, got.ChildIndex, childIndex)
	}
	return nil
}

func checkSeedAndTree(b Backend) error {
	seed, err := b.DeriveSeed(vectorPhrase, vectorPassphrase)
	if err != nil {
		return fmt.Errorf("derive seed: %w", err)
	}
	if hex.EncodeToString(seed[:]) != vectorSeed {
		return nonConformant(b.Name(), "seed vector mismatch")
	}

	key, err := b.MasterKey(seed)
	if err != nil {
		return fmt.Errorf("master key: %w", err)
	}
	if err := checkKey(b.Name(), "m", key, vectorMaster, 0); err != nil {
		return err
	}
	path := []string{"m"}
	for i, v := range vectorChildren {
		child, err := b.DeriveChild(key, v.index, v.hardened)
		key.Zero()
		if err != nil {
			return fmt.Errorf("derive child: %w", err)
		}
		key = child
		path = append(path, PathSegment{Index: v.index, Hardened: v.hardened}.String())
		if err := checkKey(b.Name(), strings.Join(path, "/"), key, v, uint8(i+1)); err != nil {
			return err
		}
	}
	key.Zero()
	return nil
}

// checkAddressPath runs a full BIP-44 derivation. The Ethereum address is a
// known answer; the segwit key must match the reference backend.
func checkAddressPath(b, ref Backend) error {
	seed, err := b.DeriveSeed(vectorPhrase, "")
	if err != nil {
		return fmt.Errorf("derive seed: %w", err)
	}
	defer seed.Zero()

	eth, _ := LookupChain("ethereum")
	key, err := DeriveAddressPath(b, seed, eth.Path)
	if err != nil {
		return err
	}
	addr, err := encodeKey(eth, key.PrivateKey[:])
	key.Zero()
	if err != nil {
		return err
	}
	if addr != vectorEthAddress {
		return nonConformant(b.Name(), "%s derives %s, want %s", eth.Path, addr, vectorEthAddress)
	}

	if ref == nil {
		return nil
	}
	segwit := MustParsePath("m/84'/0'/0'/0/0")
	got, err := DeriveAddressPath(b, seed, segwit)
	if err != nil {
		return err
	}
	defer got.Zero()
	want, err := DeriveAddressPath(ref, seed, segwit)
	if err != nil {
		return fmt.Errorf("reference backend %s: %w", ref.Name(), err)
	}
	defer want.Zero()
	if !got.Equal(want) {
		return nonConformant(b.Name(), "%s differs from %s", segwit, ref.Name())
	}
	return nil
}

// checkConformance runs the vector suite over every backend. Mismatching
// output is fatal; a backend that only errors is marked unavailable.
func (s *Selector) checkConformance() error {
	var refWords []string
	var ref Backend
	for _, b := range s.backends {
		var words []string
		err := safeCall(b, func(b Backend) error {
			var err error
			if words, err = checkWordlist(b, refWords); err != nil {
				return err
			}
			if err := checkMnemonicVectors(b); err != nil {
				return err
			}
			if err := checkSeedAndTree(b); err != nil {
				return err
			}
			return checkAddressPath(b, ref)
		})
		if errors.Is(err, ErrNonConformantBackend) {
			s.logger.Error().Err(err).Str("backend", b.Name()).Msg("Backend failed conformance vectors")
			return err
		}
		if err != nil {
			s.markUnavailable(b.Name(), err)
			continue
		}
		if ref == nil {
			ref, refWords = b, words
		}
		s.logger.Debug().Str("backend", b.Name()).Msg("Backend passed conformance vectors")
	}
	if ref == nil {
		return &DerivationBackendExhaustedError{Op: "register backends", Failures: s.unavailableFailures()}
	}
	return nil
}
