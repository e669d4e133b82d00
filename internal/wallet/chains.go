package wallet

import (
	"slices"
	"strings"

	"github.com/Klingon-tech/klingwallet/pkg/types"
)

// Chain is one row of the chain table.
type Chain struct {
	ID      string
	Name    string
	Path    DerivationPath
	Encoder AddressEncoder
}

// ChainAddress is the derived address of one chain.
type ChainAddress struct {
	ChainID string         `json:"chain_id"`
	Path    DerivationPath `json:"path,omitempty"` // empty for imported private keys
	Address string         `json:"address"`
}

// chainTable lists every supported chain. New chains are added as rows.
var chainTable = []Chain{
	{ID: "ethereum", Name: "Ethereum", Path: MustParsePath("m/44'/60'/0'/0/0"), Encoder: EVMEncoder{}},
	{ID: "bsc", Name: "BNB Smart Chain", Path: MustParsePath("m/44'/60'/0'/0/1"), Encoder: EVMEncoder{}},
	{ID: "polygon", Name: "Polygon", Path: MustParsePath("m/44'/60'/0'/0/2"), Encoder: EVMEncoder{}},
	{ID: "avalanche", Name: "Avalanche C-Chain", Path: MustParsePath("m/44'/60'/0'/0/3"), Encoder: EVMEncoder{}},
	{ID: "bitcoin", Name: "Bitcoin", Path: MustParsePath("m/44'/0'/0'/0/0"), Encoder: BitcoinP2PKHEncoder{}},
	{ID: "bitcoin-segwit", Name: "Bitcoin (native segwit)", Path: MustParsePath("m/84'/0'/0'/0/0"), Encoder: P2WPKHEncoder{}},
	{ID: "litecoin", Name: "Litecoin", Path: MustParsePath("m/44'/2'/0'/0/0"), Encoder: P2PKHEncoder{Version: 0x30}},
	{ID: "dogecoin", Name: "Dogecoin", Path: MustParsePath("m/44'/3'/0'/0/0"), Encoder: P2PKHEncoder{Version: 0x1e}},
	{ID: "klingnet", Name: "Klingnet", Path: MustParsePath("m/44'/8888'/0'/0/0"), Encoder: KlingnetEncoder{HRP: types.MainnetHRP}},
}

// Chains known by name that have no conformant encoder.
var unsupportedChains = map[string]string{
	"solana": "ed25519 SLIP-10 derivation is not implemented",
	"tron":   "no Tron address encoder is registered",
}

// LookupChain returns the table row for id.
func LookupChain(id string) (Chain, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, c := range chainTable {
		if c.ID == id {
			return c, nil
		}
	}
	if reason, ok := unsupportedChains[id]; ok {
		return Chain{}, &UnsupportedChainError{Chain: id, Reason: reason}
	}
	return Chain{}, &UnsupportedChainError{Chain: id, Reason: "no encoder registered"}
}

// ChainIDs lists the supported chain ids in table order.
func ChainIDs() []string {
	ids := make([]string, len(chainTable))
	for i, c := range chainTable {
		ids[i] = c.ID
	}
	return ids
}

// Chains returns a copy of the chain table.
func Chains() []Chain {
	return slices.Clone(chainTable)
}

// resolveChains lowercases and de-duplicates ids, keeping first-seen order.
// An empty list selects defaults. Any unsupported id fails the whole set.
func resolveChains(ids, defaults []string) ([]Chain, error) {
	if len(ids) == 0 {
		ids = defaults
	}
	if len(ids) == 0 {
		ids = ChainIDs()
	}
	seen := make(map[string]bool, len(ids))
	out := make([]Chain, 0, len(ids))
	for _, id := range ids {
		c, err := LookupChain(id)
		if err != nil {
			return nil, err
		}
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out, nil
}
