package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingwallet/internal/log"
	"github.com/Klingon-tech/klingwallet/pkg/crypto"
	"github.com/rs/zerolog"
)

// Service is the public wallet generation API.
type Service struct {
	selector *Selector
	vault    *Vault
	repo     Repository
	logger   zerolog.Logger
	opts     []Option
}

// NewService builds a Service. Options are also handed to every Pipeline
// the service creates.
func NewService(sel *Selector, vault *Vault, repo Repository, opts ...Option) (*Service, error) {
	if sel == nil || vault == nil || repo == nil {
		return nil, errors.New("wallet service needs a selector, a vault and a repository")
	}
	s := applyOptions(log.Pipeline, opts)
	if _, err := resolveChains(s.defaultChains, nil); err != nil {
		return nil, fmt.Errorf("default chains: %w", err)
	}
	return &Service{
		selector: sel,
		vault:    vault,
		repo:     repo,
		logger:   *s.logger,
		opts:     opts,
	}, nil
}

// GenerateMnemonic returns a new 12 (128 bits) or 24 (256 bits) word mnemonic.
func (s *Service) GenerateMnemonic(entropyBits int) (*Mnemonic, error) {
	return s.selector.GenerateMnemonic(entropyBits)
}

// ValidateMnemonic reports whether text is a valid mnemonic.
func (s *Service) ValidateMnemonic(text string) bool {
	return s.selector.ValidateMnemonic(text)
}

// CreateWallet stores a wallet for a mnemonic from GenerateMnemonic.
// The caller keeps ownership of m.
func (s *Service) CreateWallet(ctx context.Context, name string, m *Mnemonic, password []byte, chains []string) (*WalletRecord, error) {
	if m == nil {
		return nil, &WalletError{State: StateGeneratingOrValidatingMnemonic, Err: ErrInvalidMnemonic}
	}
	return s.run(ctx, Request{Name: name, Mnemonic: m, Password: password, Chains: chains})
}

// ImportWalletFromMnemonic stores a wallet for a user-supplied phrase.
func (s *Service) ImportWalletFromMnemonic(ctx context.Context, name, mnemonic string, password []byte, chains []string) (*WalletRecord, error) {
	if NormalizeMnemonic(mnemonic) == "" {
		return nil, &WalletError{State: StateGeneratingOrValidatingMnemonic, Err: fmt.Errorf("%w: empty", ErrInvalidMnemonic)}
	}
	return s.run(ctx, Request{Name: name, MnemonicText: mnemonic, Password: password, Chains: chains})
}

// ImportWalletFromPrivateKey stores a wallet for a raw hex secp256k1 key.
// Every requested chain encodes the same key.
func (s *Service) ImportWalletFromPrivateKey(ctx context.Context, name, privateKeyHex string, password []byte, chains []string) (*WalletRecord, error) {
	if privateKeyHex == "" {
		return nil, &WalletError{State: StateGeneratingOrValidatingMnemonic, Err: ErrInvalidPrivateKey}
	}
	return s.run(ctx, Request{Name: name, PrivateKey: privateKeyHex, Password: password, Chains: chains})
}

func (s *Service) run(ctx context.Context, req Request) (*WalletRecord, error) {
	return NewPipeline(s.selector, s.vault, s.repo, s.opts...).Run(ctx, req)
}

// UnlockWallet decrypts the mnemonic of a mnemonic wallet.
func (s *Service) UnlockWallet(ctx context.Context, id string, password []byte) (*Mnemonic, error) {
	plaintext, err := s.unlock(ctx, id, password, SecretMnemonic)
	if err != nil {
		return nil, err
	}
	defer clear(plaintext)
	m, err := ParseMnemonic(string(plaintext))
	if err != nil {
		return nil, &DecryptionError{Reason: "stored secret is not a mnemonic", Err: err}
	}
	return m, nil
}

// UnlockPrivateKey decrypts the key of a private-key wallet.
func (s *Service) UnlockPrivateKey(ctx context.Context, id string, password []byte) (*crypto.PrivateKey, error) {
	plaintext, err := s.unlock(ctx, id, password, SecretPrivateKey)
	if err != nil {
		return nil, err
	}
	defer clear(plaintext)
	pk, err := crypto.PrivateKeyFromBytes(plaintext)
	if err != nil {
		return nil, &DecryptionError{Reason: "stored secret is not a private key", Err: err}
	}
	return pk, nil
}

func (s *Service) unlock(ctx context.Context, id string, password []byte, kind SecretKind) ([]byte, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.SecretKind != kind {
		if kind == SecretMnemonic {
			return nil, ErrNotMnemonicWallet
		}
		return nil, fmt.Errorf("wallet %s holds a %s, not a %s", id, rec.SecretKind, kind)
	}
	plaintext, err := s.vault.Decrypt(rec.EncryptedSecret, password)
	if err != nil {
		s.logger.Warn().Str("wallet", id).Msg("Unlock failed")
		return nil, err
	}
	return plaintext, nil
}

// GetWallet returns one wallet record.
func (s *Service) GetWallet(ctx context.Context, id string) (*WalletRecord, error) {
	return s.repo.Get(ctx, id)
}

// ListWallets returns every wallet record.
func (s *Service) ListWallets(ctx context.Context) ([]*WalletRecord, error) {
	return s.repo.List(ctx)
}

// DeleteWallet removes a wallet record.
func (s *Service) DeleteWallet(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("wallet", id).Msg("Wallet deleted")
	return nil
}

// Chains returns the supported chain table.
func (s *Service) Chains() []Chain {
	return Chains()
}

// Backends reports the derivation backends and their availability.
func (s *Service) Backends() []BackendStatus {
	return s.selector.Backends()
}
