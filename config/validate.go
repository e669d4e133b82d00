package config

import (
	"fmt"
	"strings"

	"github.com/Klingon-tech/klingwallet/internal/derive"
	"github.com/Klingon-tech/klingwallet/internal/log"
	"github.com/Klingon-tech/klingwallet/internal/wallet"
)

// Validate checks config for obvious operator mistakes. List values are
// normalised in place.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.DataDir == "" && cfg.Storage.Backend != StorageMemory {
		return fmt.Errorf("datadir must be set")
	}

	switch cfg.Storage.Backend {
	case StorageBadger, StorageSQLite, StorageFile, StorageMemory:
	default:
		return fmt.Errorf("storage.backend must be badger, sqlite, file, or memory")
	}

	if len(cfg.Derive.Backends) == 0 {
		return fmt.Errorf("derive.backends must name at least one backend")
	}
	names, err := normalizeList(cfg.Derive.Backends, "derive.backends")
	if err != nil {
		return err
	}
	for i, n := range names {
		if _, err := derive.Lookup(n); err != nil {
			return fmt.Errorf("derive.backends[%d]: %w", i, err)
		}
	}
	cfg.Derive.Backends = names

	if _, err := wallet.NewVault(cfg.VaultSettings()); err != nil {
		return fmt.Errorf("vault: %w", err)
	}

	chains, err := normalizeList(cfg.Wallet.Chains, "wallet.chains")
	if err != nil {
		return err
	}
	for i, id := range chains {
		if _, err := wallet.LookupChain(id); err != nil {
			return fmt.Errorf("wallet.chains[%d]: %w", i, err)
		}
	}
	cfg.Wallet.Chains = chains

	if !wallet.ValidEntropyBits(cfg.Wallet.EntropyBits) {
		return fmt.Errorf("wallet.entropy must be %d or %d", wallet.EntropyBits128, wallet.EntropyBits256)
	}

	if !log.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("log.level must be debug, info, warn, error, or off")
	}
	return nil
}

// normalizeList lowercases and trims ids and rejects empties and duplicates.
func normalizeList(ids []string, field string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out := make([]string, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		s := strings.ToLower(strings.TrimSpace(id))
		if s == "" {
			return nil, fmt.Errorf("%s[%d] is empty", field, i)
		}
		if _, ok := seen[s]; ok {
			return nil, fmt.Errorf("%s has duplicate entry %q", field, s)
		}
		seen[s] = struct{}{}
		out[i] = s
	}
	return out, nil
}
