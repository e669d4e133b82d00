package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadFile loads configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key = value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	case "datadir":
		cfg.DataDir = value

	// Storage
	case "storage.backend":
		cfg.Storage.Backend = StorageBackend(strings.ToLower(value))
	case "storage.path":
		cfg.Storage.Path = value

	// Derivation
	case "derive.backends":
		cfg.Derive.Backends = parseStringList(value)

	// Vault
	case "vault.algorithm":
		cfg.Vault.Algorithm = strings.ToLower(value)
	case "vault.argon2.memory":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return err
		}
		cfg.Vault.Argon2Memory = uint32(n)
	case "vault.argon2.iterations":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return err
		}
		cfg.Vault.Argon2Iterations = uint32(n)
	case "vault.argon2.parallelism":
		n, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return err
		}
		cfg.Vault.Argon2Parallelism = uint8(n)
	case "vault.scrypt.logn":
		n, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return err
		}
		cfg.Vault.ScryptLogN = uint8(n)

	// Wallet
	case "wallet.chains":
		cfg.Wallet.Chains = parseStringList(value)
	case "wallet.entropy":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Wallet.EntropyBits = n

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default configuration file.
func WriteDefaultConfig(path string) error {
	d := Default()
	content := `# Klingwallet Configuration
#
# Settings here are overridden by command-line flags.

# Data directory (default: ~/.klingwallet)
# datadir = ~/.klingwallet

# ============================================================================
# Storage
# ============================================================================

# Wallet repository: badger, sqlite, file, or memory
storage.backend = ` + string(d.Storage.Backend) + `

# Repository location (default: derived from datadir)
# storage.path =

# ============================================================================
# Derivation
# ============================================================================

# Derivation backends in priority order (comma-separated)
derive.backends = ` + strings.Join(d.Derive.Backends, ",") + `

# ============================================================================
# Vault
# ============================================================================

# Encryption for new wallets:
# argon2id-xchacha20poly1305 or scrypt-aes256gcm
vault.algorithm = ` + d.Vault.Algorithm + `

# Argon2id cost (memory in KiB)
vault.argon2.memory = ` + strconv.FormatUint(uint64(d.Vault.Argon2Memory), 10) + `
vault.argon2.iterations = ` + strconv.FormatUint(uint64(d.Vault.Argon2Iterations), 10) + `
vault.argon2.parallelism = ` + strconv.FormatUint(uint64(d.Vault.Argon2Parallelism), 10) + `

# scrypt cost, N = 2^logn
vault.scrypt.logn = ` + strconv.FormatUint(uint64(d.Vault.ScryptLogN), 10) + `

# ============================================================================
# Wallets
# ============================================================================

# Chains derived when a command names none (default: all supported)
# wallet.chains = ethereum,bitcoin,klingnet

# Mnemonic strength for new wallets: 128 (12 words) or 256 (24 words)
wallet.entropy = ` + strconv.Itoa(d.Wallet.EntropyBits) + `

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0600)
}
