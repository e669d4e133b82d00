package wallet

import (
	"fmt"

	"github.com/Klingon-tech/klingwallet/pkg/crypto"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
)

// AddressEncoder turns a compressed secp256k1 public key into a chain's
// canonical address string.
type AddressEncoder interface {
	Encode(pubKey []byte) (string, error)
}

// EVMEncoder produces EIP-55 checksummed addresses:
// Keccak-256 of the uncompressed key without its 0x04 prefix, last 20 bytes.
type EVMEncoder struct{}

func (EVMEncoder) Encode(pubKey []byte) (string, error) {
	uncompressed, err := crypto.DecompressPubKey(pubKey)
	if err != nil {
		return "", err
	}
	h := crypto.Keccak256(uncompressed[1:])
	return common.BytesToAddress(h[12:]).Hex(), nil
}

// P2PKHEncoder produces Base58Check(version || HASH160(pubkey)).
type P2PKHEncoder struct {
	Version byte
}

func (e P2PKHEncoder) Encode(pubKey []byte) (string, error) {
	if len(pubKey) != 33 {
		return "", fmt.Errorf("p2pkh: compressed public key must be 33 bytes, got %d", len(pubKey))
	}
	return base58.CheckEncode(crypto.Hash160(pubKey), e.Version), nil
}

// BitcoinP2PKHEncoder produces mainnet legacy Bitcoin addresses through
// btcutil's address types.
type BitcoinP2PKHEncoder struct{}

func (BitcoinP2PKHEncoder) Encode(pubKey []byte) (string, error) {
	addr, err := btcutil.NewAddressPubKeyHash(crypto.Hash160(pubKey), &chaincfg.MainNetParams)
	if err != nil {
		return "", fmt.Errorf("p2pkh: %w", err)
	}
	return addr.EncodeAddress(), nil
}

// P2WPKHEncoder produces native segwit v0 addresses (bech32, "bc1q...").
type P2WPKHEncoder struct{}

func (P2WPKHEncoder) Encode(pubKey []byte) (string, error) {
	if len(pubKey) != 33 {
		return "", fmt.Errorf("p2wpkh: compressed public key must be 33 bytes, got %d", len(pubKey))
	}
	addr, err := btcutil.NewAddressWitnessPubKeyHash(crypto.Hash160(pubKey), &chaincfg.MainNetParams)
	if err != nil {
		return "", fmt.Errorf("p2wpkh: %w", err)
	}
	return addr.EncodeAddress(), nil
}

// KlingnetEncoder produces bech32(HRP, BLAKE3(compressed pubkey)[:20]).
type KlingnetEncoder struct {
	HRP string
}

func (e KlingnetEncoder) Encode(pubKey []byte) (string, error) {
	if len(pubKey) != 33 {
		return "", fmt.Errorf("klingnet: compressed public key must be 33 bytes, got %d", len(pubKey))
	}
	return crypto.AddressFromPubKey(pubKey).Encode(e.HRP)
}

// ToAddress computes the public key of key and encodes it for chainID.
func ToAddress(key *ExtendedKey, chainID string) (string, error) {
	chain, err := LookupChain(chainID)
	if err != nil {
		return "", err
	}
	return encodeKey(chain, key.PrivateKey[:])
}

func encodeKey(chain Chain, priv []byte) (string, error) {
	pk, err := crypto.PrivateKeyFromBytes(priv)
	if err != nil {
		return "", fmt.Errorf("%s: %w", chain.ID, err)
	}
	defer pk.Zero()
	addr, err := chain.Encoder.Encode(pk.PublicKey())
	if err != nil {
		return "", fmt.Errorf("%s: encode address: %w", chain.ID, err)
	}
	return addr, nil
}
