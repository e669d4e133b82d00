package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/Klingon-tech/klingwallet/internal/derive"
)

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	cfg.DataDir = t.TempDir()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate(Default()) error: %v", err)
	}
	if !reflect.DeepEqual(cfg.Derive.Backends, derive.Names()) {
		t.Errorf("backends = %v, want %v", cfg.Derive.Backends, derive.Names())
	}
	if cfg.Wallet.EntropyBits != 256 {
		t.Errorf("entropy = %d, want 256", cfg.Wallet.EntropyBits)
	}
}

func TestStoragePath(t *testing.T) {
	tests := []struct {
		backend StorageBackend
		path    string
		want    string
	}{
		{StorageBadger, "", filepath.Join("/d", "wallets")},
		{StorageSQLite, "", filepath.Join("/d", "wallets.db")},
		{StorageFile, "", filepath.Join("/d", "keystore")},
		{StorageMemory, "", ""},
		{StorageSQLite, "/elsewhere/w.db", "/elsewhere/w.db"},
	}
	for _, tt := range tests {
		cfg := &Config{DataDir: "/d", Storage: StorageConfig{Backend: tt.backend, Path: tt.path}}
		if got := cfg.StoragePath(); got != tt.want {
			t.Errorf("StoragePath(%s, %q) = %q, want %q", tt.backend, tt.path, got, tt.want)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.conf")
	content := `# comment
storage.backend = sqlite

derive.backends = "native, btcd"
log.level = 'debug'
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	want := map[string]string{
		"storage.backend": "sqlite",
		"derive.backends": "native, btcd",
		"log.level":       "debug",
	}
	if !reflect.DeepEqual(values, want) {
		t.Errorf("LoadFile() = %v, want %v", values, want)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	values, err := LoadFile(filepath.Join(t.TempDir(), "absent.conf"))
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("values = %v, want empty", values)
	}
}

func TestLoadFile_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.conf")
	if err := os.WriteFile(path, []byte("log.level = info\nnonsense\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := LoadFile(path)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("LoadFile() error = %v, want line 2 error", err)
	}
}

func TestApplyFileConfig(t *testing.T) {
	cfg := Default()
	err := ApplyFileConfig(cfg, map[string]string{
		"datadir":                  "/tmp/kw",
		"storage.backend":          "SQLite",
		"storage.path":             "/tmp/kw/x.db",
		"derive.backends":          "native,btcd",
		"vault.algorithm":          "scrypt-aes256gcm",
		"vault.argon2.memory":      "1024",
		"vault.argon2.iterations":  "2",
		"vault.argon2.parallelism": "1",
		"vault.scrypt.logn":        "15",
		"wallet.chains":            "ethereum, bitcoin",
		"wallet.entropy":           "128",
		"log.level":                "warn",
		"log.file":                 "/tmp/kw/log",
		"log.json":                 "yes",
		"unknown.key":              "ignored",
	})
	if err != nil {
		t.Fatalf("ApplyFileConfig() error: %v", err)
	}

	if cfg.DataDir != "/tmp/kw" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Storage.Backend != StorageSQLite || cfg.Storage.Path != "/tmp/kw/x.db" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if !reflect.DeepEqual(cfg.Derive.Backends, []string{"native", "btcd"}) {
		t.Errorf("Derive.Backends = %v", cfg.Derive.Backends)
	}
	want := VaultConfig{
		Algorithm:         "scrypt-aes256gcm",
		Argon2Memory:      1024,
		Argon2Iterations:  2,
		Argon2Parallelism: 1,
		ScryptLogN:        15,
	}
	if cfg.Vault != want {
		t.Errorf("Vault = %+v, want %+v", cfg.Vault, want)
	}
	if !reflect.DeepEqual(cfg.Wallet.Chains, []string{"ethereum", "bitcoin"}) || cfg.Wallet.EntropyBits != 128 {
		t.Errorf("Wallet = %+v", cfg.Wallet)
	}
	if cfg.Log.Level != "warn" || cfg.Log.File != "/tmp/kw/log" || !cfg.Log.JSON {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestApplyFileConfig_BadNumber(t *testing.T) {
	tests := []string{"vault.argon2.memory", "vault.argon2.parallelism", "vault.scrypt.logn", "wallet.entropy"}
	for _, key := range tests {
		err := ApplyFileConfig(Default(), map[string]string{key: "lots"})
		if err == nil {
			t.Errorf("ApplyFileConfig(%s=lots) should fail", key)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no datadir", func(c *Config) { c.DataDir = "" }, "datadir"},
		{"storage", func(c *Config) { c.Storage.Backend = "postgres" }, "storage.backend"},
		{"no backends", func(c *Config) { c.Derive.Backends = nil }, "derive.backends"},
		{"unknown backend", func(c *Config) { c.Derive.Backends = []string{"native", "libwally"} }, "derive.backends[1]"},
		{"duplicate backend", func(c *Config) { c.Derive.Backends = []string{"native", "NATIVE"} }, "duplicate"},
		{"vault algorithm", func(c *Config) { c.Vault.Algorithm = "rot13" }, "vault"},
		{"argon2 memory", func(c *Config) { c.Vault.Argon2Memory = 0 }, "vault"},
		{"argon2 memory below minimum", func(c *Config) { c.Vault.Argon2Memory = 1 }, "below minimum"},
		{"scrypt logn below minimum", func(c *Config) { c.Vault.Algorithm = "scrypt-aes256gcm"; c.Vault.ScryptLogN = 1 }, "below minimum"},
		{"unknown chain", func(c *Config) { c.Wallet.Chains = []string{"ethereum", "solana"} }, "wallet.chains[1]"},
		{"empty chain", func(c *Config) { c.Wallet.Chains = []string{" "} }, "empty"},
		{"entropy", func(c *Config) { c.Wallet.EntropyBits = 160 }, "wallet.entropy"},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.DataDir = "/tmp/kw"
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate() should fail")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestValidate_NormalizesLists(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/tmp/kw"
	cfg.Derive.Backends = []string{" Native ", "BTCD"}
	cfg.Wallet.Chains = []string{"Ethereum", "klingnet "}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if !reflect.DeepEqual(cfg.Derive.Backends, []string{"native", "btcd"}) {
		t.Errorf("Derive.Backends = %v", cfg.Derive.Backends)
	}
	if !reflect.DeepEqual(cfg.Wallet.Chains, []string{"ethereum", "klingnet"}) {
		t.Errorf("Wallet.Chains = %v", cfg.Wallet.Chains)
	}
}

func TestValidate_MemoryWithoutDataDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = ""
	cfg.Storage.Backend = StorageMemory
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
}

func TestWriteDefaultConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "klingwallet.conf")
	if err := WriteDefaultConfig(path); err != nil {
		t.Fatalf("WriteDefaultConfig() error: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("perm = %o, want 600", perm)
	}

	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	cfg := Default()
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig() error: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("default file changed config:\n got %+v\nwant %+v", cfg, Default())
	}
}

func TestParseFlags(t *testing.T) {
	f, err := ParseFlags([]string{
		"--datadir", "/tmp/kw",
		"--storage=file",
		"--backends", "btcd,native",
		"--chains", "ethereum",
		"--entropy", "128",
		"--log-json=false",
		"wallet", "create", "--name", "x",
	})
	if err != nil {
		t.Fatalf("ParseFlags() error: %v", err)
	}
	if f.DataDir != "/tmp/kw" || f.Storage != "file" || f.Entropy != 128 {
		t.Errorf("flags = %+v", f)
	}
	if !f.SetLogJSON || f.LogJSON {
		t.Errorf("log-json set=%v value=%v, want set and false", f.SetLogJSON, f.LogJSON)
	}
	want := []string{"wallet", "create", "--name", "x"}
	if !reflect.DeepEqual(f.Args, want) {
		t.Errorf("Args = %v, want %v", f.Args, want)
	}

	cfg := Default()
	cfg.Log.JSON = true
	ApplyFlags(cfg, f)
	if cfg.DataDir != "/tmp/kw" || cfg.Storage.Backend != StorageFile {
		t.Errorf("cfg = %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Derive.Backends, []string{"btcd", "native"}) {
		t.Errorf("Derive.Backends = %v", cfg.Derive.Backends)
	}
	if cfg.Log.JSON {
		t.Error("explicit --log-json=false should override file value")
	}
}

func TestParseFlags_Help(t *testing.T) {
	f, err := ParseFlags([]string{"-h"})
	if !errors.Is(err, ErrHelp) {
		t.Fatalf("ParseFlags(-h) error = %v, want ErrHelp", err)
	}
	if !f.Help {
		t.Error("Help should be set")
	}
}

func TestParseFlags_Unknown(t *testing.T) {
	if _, err := ParseFlags([]string{"--rpc-port", "1"}); err == nil {
		t.Fatal("ParseFlags() should reject unknown flags")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, flags, err := Load([]string{"--datadir", dir, "--storage", "sqlite", "--log-level", "off", "chains"})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Storage.Backend != StorageSQLite {
		t.Errorf("backend = %s, want sqlite", cfg.Storage.Backend)
	}
	if !reflect.DeepEqual(flags.Args, []string{"chains"}) {
		t.Errorf("Args = %v", flags.Args)
	}
	for _, p := range []string{cfg.ConfigFile(), cfg.LogsDir()} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s not created: %v", p, err)
		}
	}
}

func TestLoad_FileThenFlags(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "custom.conf")
	if err := os.WriteFile(conf, []byte("storage.backend = file\nlog.level = error\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := Load([]string{"--datadir", dir, "-c", conf, "--log-level", "debug"})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Storage.Backend != StorageFile {
		t.Errorf("backend = %s, want file from config file", cfg.Storage.Backend)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %s, want flag value debug", cfg.Log.Level)
	}
}

func TestLoad_Invalid(t *testing.T) {
	_, _, err := Load([]string{"--datadir", t.TempDir(), "--backends", "nope"})
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("Load() error = %v, want invalid config", err)
	}
}

func TestLoad_Version(t *testing.T) {
	cfg, flags, err := Load([]string{"--version"})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg != nil || !flags.Version {
		t.Errorf("Load(--version) = %v, %+v", cfg, flags)
	}
}
