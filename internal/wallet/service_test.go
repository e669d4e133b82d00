package wallet_test

import (
	"context"
	"encoding/hex"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Klingon-tech/klingwallet/internal/storage"
	"github.com/Klingon-tech/klingwallet/internal/wallet"
	"github.com/Klingon-tech/klingwallet/internal/walletstore"
	"github.com/rs/zerolog"
)

func newService(t *testing.T, repo wallet.Repository, opts ...wallet.Option) *wallet.Service {
	t.Helper()
	opts = append([]wallet.Option{quiet}, opts...)
	svc, err := wallet.NewService(newSelector(t), fastVault(t, wallet.AlgorithmArgon2XChaCha), repo, opts...)
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	return svc
}

func TestNewService_Validation(t *testing.T) {
	if _, err := wallet.NewService(nil, nil, nil); err == nil {
		t.Error("expected error for missing collaborators")
	}
	_, err := wallet.NewService(newSelector(t), fastVault(t, wallet.AlgorithmArgon2XChaCha), newMemRepo(),
		quiet, wallet.WithDefaultChains([]string{"solana"}))
	if !errors.Is(err, wallet.ErrUnsupportedChain) {
		t.Errorf("NewService(solana default) error = %v, want ErrUnsupportedChain", err)
	}
}

func TestService_CreateAndUnlock(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, walletstore.NewKV(storage.NewMemory(), walletstore.WithLogger(zerolog.Nop())))

	m, err := svc.GenerateMnemonic(wallet.EntropyBits128)
	if err != nil {
		t.Fatalf("GenerateMnemonic() error: %v", err)
	}
	phrase := m.Phrase()

	rec, err := svc.CreateWallet(ctx, "daily", m, []byte("pw"), []string{"ethereum", "klingnet"})
	if err != nil {
		t.Fatalf("CreateWallet() error: %v", err)
	}
	if m.Phrase() != phrase {
		t.Error("CreateWallet() wiped the caller's mnemonic")
	}

	unlocked, err := svc.UnlockWallet(ctx, rec.ID, []byte("pw"))
	if err != nil {
		t.Fatalf("UnlockWallet() error: %v", err)
	}
	if unlocked.Phrase() != phrase {
		t.Error("UnlockWallet() returned a different phrase")
	}

	if _, err := svc.UnlockWallet(ctx, rec.ID, []byte("nope")); !errors.Is(err, wallet.ErrDecryption) {
		t.Errorf("UnlockWallet(wrong password) error = %v, want ErrDecryption", err)
	}
	if _, err := svc.UnlockWallet(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ", []byte("pw")); !errors.Is(err, wallet.ErrNotFound) {
		t.Errorf("UnlockWallet(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := svc.CreateWallet(ctx, "nil", nil, []byte("pw"), nil); !errors.Is(err, wallet.ErrInvalidMnemonic) {
		t.Errorf("CreateWallet(nil) error = %v, want ErrInvalidMnemonic", err)
	}
}

func TestService_ImportMnemonic(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, newMemRepo())

	rec, err := svc.ImportWalletFromMnemonic(ctx, "restored", "  "+abandonAbout+"  ", []byte("pw"), nil)
	if err != nil {
		t.Fatalf("ImportWalletFromMnemonic() error: %v", err)
	}
	for chain, want := range abandonAddresses {
		if got := rec.Addresses[chain].Address; got != want {
			t.Errorf("%s = %s, want %s", chain, got, want)
		}
	}

	if _, err := svc.ImportWalletFromMnemonic(ctx, "empty", " ", []byte("pw"), nil); !errors.Is(err, wallet.ErrInvalidMnemonic) {
		t.Errorf("ImportWalletFromMnemonic(empty) error = %v", err)
	}
}

func TestService_ImportPrivateKey(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, newMemRepo())
	keyHex := "0x0000000000000000000000000000000000000000000000000000000000000001"

	rec, err := svc.ImportWalletFromPrivateKey(ctx, "raw", keyHex, []byte("pw"), []string{"ethereum", "bitcoin-segwit"})
	if err != nil {
		t.Fatalf("ImportWalletFromPrivateKey() error: %v", err)
	}
	if rec.SecretKind != wallet.SecretPrivateKey {
		t.Errorf("kind = %s", rec.SecretKind)
	}
	eth := rec.Addresses["ethereum"]
	if eth.Address != "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf" {
		t.Errorf("ethereum = %s", eth.Address)
	}
	if len(eth.Path) != 0 {
		t.Errorf("imported key should have no path, got %s", eth.Path)
	}
	if got := rec.Addresses["bitcoin-segwit"].Address; got != "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4" {
		t.Errorf("bitcoin-segwit = %s", got)
	}

	if _, err := svc.UnlockWallet(ctx, rec.ID, []byte("pw")); !errors.Is(err, wallet.ErrNotMnemonicWallet) {
		t.Errorf("UnlockWallet(private key wallet) error = %v, want ErrNotMnemonicWallet", err)
	}
	pk, err := svc.UnlockPrivateKey(ctx, rec.ID, []byte("pw"))
	if err != nil {
		t.Fatalf("UnlockPrivateKey() error: %v", err)
	}
	if got := hex.EncodeToString(pk.Serialize()); got != keyHex[2:] {
		t.Errorf("key = %s", got)
	}

	if _, err := svc.ImportWalletFromPrivateKey(ctx, "empty", "", []byte("pw"), nil); !errors.Is(err, wallet.ErrInvalidPrivateKey) {
		t.Errorf("ImportWalletFromPrivateKey(empty) error = %v", err)
	}
}

func TestService_ListDelete(t *testing.T) {
	ctx := context.Background()
	repo, err := walletstore.NewFile(filepath.Join(t.TempDir(), "keystore"), walletstore.WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("NewFile() error: %v", err)
	}
	svc := newService(t, repo, wallet.WithDefaultChains([]string{"bitcoin"}))

	a, err := svc.ImportWalletFromMnemonic(ctx, "a", abandonAbout, []byte("pw"), nil)
	if err != nil {
		t.Fatalf("import a: %v", err)
	}
	if len(a.Addresses) != 1 {
		t.Errorf("default chains ignored: %d addresses", len(a.Addresses))
	}
	if _, err := svc.ImportWalletFromMnemonic(ctx, "b", "legal winner thank year wave sausage worth useful legal winner thank yellow", []byte("pw"), nil); err != nil {
		t.Fatalf("import b: %v", err)
	}

	list, err := svc.ListWallets(ctx)
	if err != nil {
		t.Fatalf("ListWallets() error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListWallets() = %d, want 2", len(list))
	}

	got, err := svc.GetWallet(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetWallet() error: %v", err)
	}
	if got.Addresses["bitcoin"].Address != abandonAddresses["bitcoin"] {
		t.Errorf("bitcoin = %s", got.Addresses["bitcoin"].Address)
	}

	if err := svc.DeleteWallet(ctx, a.ID); err != nil {
		t.Fatalf("DeleteWallet() error: %v", err)
	}
	if _, err := svc.GetWallet(ctx, a.ID); !errors.Is(err, wallet.ErrNotFound) {
		t.Errorf("GetWallet() after delete error = %v", err)
	}
	if err := svc.DeleteWallet(ctx, a.ID); !errors.Is(err, wallet.ErrNotFound) {
		t.Errorf("DeleteWallet() twice error = %v", err)
	}
}

func TestService_Introspection(t *testing.T) {
	svc := newService(t, newMemRepo())
	if len(svc.Chains()) != len(wallet.ChainIDs()) {
		t.Errorf("Chains() = %d", len(svc.Chains()))
	}
	if len(svc.Backends()) != 3 {
		t.Errorf("Backends() = %d, want 3", len(svc.Backends()))
	}
	if !svc.ValidateMnemonic(abandonAbout) || svc.ValidateMnemonic("abandon") {
		t.Error("ValidateMnemonic() wrong")
	}
}
