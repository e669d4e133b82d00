// Package crypto provides the hashing and key primitives the wallet's
// address encoders are built from.
package crypto

import (
	"github.com/Klingon-tech/klingwallet/pkg/types"
	"github.com/btcsuite/btcd/btcutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// Hash160 computes RIPEMD160(SHA256(data)), the Bitcoin-family public key hash.
func Hash160(data []byte) []byte {
	return btcutil.Hash160(data)
}

// Keccak256 computes the legacy Keccak-256 hash used by EVM chains.
func Keccak256(data ...[]byte) []byte {
	return ethcrypto.Keccak256(data...)
}

// AddressFromPubKey derives a Klingnet address from a compressed public key.
// Address = BLAKE3(compressed_pubkey)[:20].
func AddressFromPubKey(pubKey []byte) types.Address {
	h := Hash(pubKey)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}
