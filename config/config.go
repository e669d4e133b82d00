// Package config handles klingwallet configuration.
//
// Settings come from three layers, later ones winning:
//   - Built-in defaults
//   - The key = value config file (<datadir>/klingwallet.conf)
//   - Command-line flags
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// StorageBackend selects the wallet repository implementation.
type StorageBackend string

const (
	StorageBadger StorageBackend = "badger"
	StorageSQLite StorageBackend = "sqlite"
	StorageFile   StorageBackend = "file"
	StorageMemory StorageBackend = "memory"
)

// Config holds runtime configuration.
type Config struct {
	DataDir string `conf:"datadir"`

	// Wallet repository
	Storage StorageConfig

	// Derivation backends
	Derive DeriveConfig

	// Secret encryption
	Vault VaultConfig

	// Wallet creation defaults
	Wallet WalletConfig

	// Logging
	Log LogConfig
}

// StorageConfig holds repository settings.
type StorageConfig struct {
	Backend StorageBackend `conf:"storage.backend"`
	Path    string         `conf:"storage.path"` // empty = derived from datadir
}

// DeriveConfig holds derivation backend settings.
type DeriveConfig struct {
	Backends []string `conf:"derive.backends"` // priority order
}

// VaultConfig holds encryption settings for new wallets. Existing wallets
// always decrypt with the parameters they were written with.
type VaultConfig struct {
	Algorithm         string `conf:"vault.algorithm"`
	Argon2Memory      uint32 `conf:"vault.argon2.memory"` // KiB
	Argon2Iterations  uint32 `conf:"vault.argon2.iterations"`
	Argon2Parallelism uint8  `conf:"vault.argon2.parallelism"`
	ScryptLogN        uint8  `conf:"vault.scrypt.logn"`
}

// WalletConfig holds wallet creation defaults.
type WalletConfig struct {
	Chains      []string `conf:"wallet.chains"`  // empty = every supported chain
	EntropyBits int      `conf:"wallet.entropy"` // 128 or 256
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingwallet
//	macOS:   ~/Library/Application Support/Klingwallet
//	Windows: %APPDATA%\Klingwallet
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingwallet"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Klingwallet")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Klingwallet")
		}
		return filepath.Join(home, "AppData", "Roaming", "Klingwallet")
	default:
		return filepath.Join(home, ".klingwallet")
	}
}

// StoragePath returns the repository location: a directory for badger and
// file, a database file for sqlite. Memory storage has no path.
func (c *Config) StoragePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	switch c.Storage.Backend {
	case StorageSQLite:
		return filepath.Join(c.DataDir, "wallets.db")
	case StorageFile:
		return c.KeystoreDir()
	case StorageMemory:
		return ""
	default:
		return filepath.Join(c.DataDir, "wallets")
	}
}

// KeystoreDir returns the keystore directory used by file storage.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.DataDir, "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "klingwallet.conf")
}
