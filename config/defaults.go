package config

import (
	"github.com/Klingon-tech/klingwallet/internal/derive"
	"github.com/Klingon-tech/klingwallet/internal/wallet"
)

// Default returns the default configuration.
func Default() *Config {
	argon := wallet.DefaultArgon2Params()
	return &Config{
		DataDir: DefaultDataDir(),
		Storage: StorageConfig{
			Backend: StorageBadger,
		},
		Derive: DeriveConfig{
			Backends: derive.Names(),
		},
		Vault: VaultConfig{
			Algorithm:         string(wallet.AlgorithmArgon2XChaCha),
			Argon2Memory:      argon.Memory,
			Argon2Iterations:  argon.Iterations,
			Argon2Parallelism: argon.Parallelism,
			ScryptLogN:        wallet.DefaultScryptLogN,
		},
		Wallet: WalletConfig{
			EntropyBits: wallet.EntropyBits256,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// VaultSettings converts the vault section for wallet.NewVault.
func (c *Config) VaultSettings() wallet.VaultConfig {
	return wallet.VaultConfig{
		Algorithm: wallet.Algorithm(c.Vault.Algorithm),
		Argon2: wallet.Argon2Params{
			Memory:      c.Vault.Argon2Memory,
			Iterations:  c.Vault.Argon2Iterations,
			Parallelism: c.Vault.Argon2Parallelism,
		},
		ScryptLogN: c.Vault.ScryptLogN,
	}
}
