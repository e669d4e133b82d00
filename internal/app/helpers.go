package app

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/klingwallet/pkg/crypto"
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// ReadKeyFile reads a hex-encoded 32-byte private key from a file and
// returns it as normalised hex, ready for ImportWalletFromPrivateKey.
func ReadKeyFile(path string) (string, error) {
	path = expandHome(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read key file: %w", err)
	}

	key, err := crypto.ParsePrivateKeyHex(string(data))
	if err != nil {
		return "", err
	}
	defer key.Zero()
	return hex.EncodeToString(key.Serialize()), nil
}
