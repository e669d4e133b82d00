package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

// ErrHelp is returned by ParseFlags when -h or --help was given.
var ErrHelp = flag.ErrHelp

// Flags holds parsed global command-line flags. Parsing stops at the first
// non-flag argument; it and everything after it land in Args.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	DataDir string
	Config  string

	// Storage
	Storage     string
	StoragePath string

	// Derivation
	Backends string

	// Vault
	Vault string

	// Wallet
	Chains  string
	Entropy int

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args (subcommand and its arguments)
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetLogJSON bool
}

// ParseFlags parses global flags from args (without the program name).
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("klingwallet", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// Storage
	fs.StringVar(&f.Storage, "storage", "", "Wallet repository: badger, sqlite, file, memory")
	fs.StringVar(&f.StoragePath, "storage-path", "", "Repository path")

	// Derivation
	fs.StringVar(&f.Backends, "backends", "", "Derivation backends in priority order (comma-separated)")

	// Vault
	fs.StringVar(&f.Vault, "vault", "", "Vault algorithm for new wallets")

	// Wallet
	fs.StringVar(&f.Chains, "chains", "", "Default chains (comma-separated)")
	fs.IntVar(&f.Entropy, "entropy", 0, "Mnemonic strength in bits (128 or 256)")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error, off)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			f.Help = true
			return f, ErrHelp
		}
		return nil, err
	}
	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.Args = fs.Args()
	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// Storage
	if f.Storage != "" {
		cfg.Storage.Backend = StorageBackend(f.Storage)
	}
	if f.StoragePath != "" {
		cfg.Storage.Path = f.StoragePath
	}

	// Derivation
	if f.Backends != "" {
		cfg.Derive.Backends = parseStringList(f.Backends)
	}

	// Vault
	if f.Vault != "" {
		cfg.Vault.Algorithm = f.Vault
	}

	// Wallet
	if f.Chains != "" {
		cfg.Wallet.Chains = parseStringList(f.Chains)
	}
	if f.Entropy != 0 {
		cfg.Wallet.EntropyBits = f.Entropy
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// PrintOptions writes the global option help.
func PrintOptions(w io.Writer) {
	fmt.Fprint(w, `Global Options:
  --help, -h      Show this help message
  --version, -v   Show version information
  --datadir       Data directory (default: ~/.klingwallet)
  --config, -c    Config file path (default: <datadir>/klingwallet.conf)

Storage Options:
  --storage       Wallet repository: badger (default), sqlite, file, memory
  --storage-path  Repository path (default: derived from datadir)

Derivation Options:
  --backends      Backends in priority order (default: tyler-smith,btcd,native)
  --chains        Default chains (default: all supported)
  --entropy       Mnemonic strength: 128 or 256 (default: 256)

Vault Options:
  --vault         argon2id-xchacha20poly1305 (default) or scrypt-aes256gcm

Logging Options:
  --log-level     Log level: debug, info, warn, error, off (default: info)
  --log-file      Log file path (default: stderr only)
  --log-json      Output logs as JSON
`)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
//
// Help and version requests are returned in Flags for the caller to act on.
func Load(args []string) (*Config, *Flags, error) {
	flags, err := ParseFlags(args)
	if err != nil {
		if errors.Is(err, ErrHelp) {
			return nil, flags, nil
		}
		return nil, nil, err
	}
	if flags.Help || flags.Version {
		return nil, flags, nil
	}

	// Start with defaults
	cfg := Default()

	// Override datadir if specified
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	// Auto-create data directories and default config on first start.
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	// Determine config file path
	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	// Load config file
	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}

	// Apply file config
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	// Apply flags (highest precedence)
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. This is idempotent and safe to call on
// every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	// Create default config if it doesn't exist.
	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
