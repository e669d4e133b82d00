// Package app wires configuration, storage, derivation backends and the
// vault into a ready wallet service that any front end can embed.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Klingon-tech/klingwallet/config"
	"github.com/Klingon-tech/klingwallet/internal/derive"
	klog "github.com/Klingon-tech/klingwallet/internal/log"
	"github.com/Klingon-tech/klingwallet/internal/storage"
	"github.com/Klingon-tech/klingwallet/internal/wallet"
	"github.com/Klingon-tech/klingwallet/internal/walletstore"
	"github.com/rs/zerolog"
)

// App is a fully-initialized wallet service with its storage.
type App struct {
	cfg    *config.Config
	logger zerolog.Logger

	// Storage
	repo   wallet.Repository
	closer io.Closer

	// Wallet
	selector *wallet.Selector
	vault    *wallet.Vault
	service  *wallet.Service
}

// New creates and initializes an App: logger, repository, derivation
// backends, vault and service. Close releases the repository.
func New(cfg *config.Config) (*App, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := expandHome(cfg.Log.File)
	if logFile == "" && cfg.DataDir != "" && cfg.Storage.Backend != config.StorageMemory {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0700); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "klingwallet.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("app")

	// ── 2. Open repository ──────────────────────────────────────────
	repo, closer, err := openRepository(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, logger: logger, repo: repo, closer: closer}
	logger.Debug().
		Str("backend", string(cfg.Storage.Backend)).
		Str("path", cfg.StoragePath()).
		Msg("Repository opened")

	// ── 3. Derivation backends ──────────────────────────────────────
	backends, err := derive.Backends(cfg.Derive.Backends)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("derivation backends: %w", err)
	}
	a.selector, err = wallet.NewSelector(backends)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("derivation selector: %w", err)
	}

	// ── 4. Vault ────────────────────────────────────────────────────
	a.vault, err = wallet.NewVault(cfg.VaultSettings())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("vault: %w", err)
	}

	// ── 5. Service ──────────────────────────────────────────────────
	a.service, err = wallet.NewService(a.selector, a.vault, a.repo,
		wallet.WithDefaultChains(cfg.Wallet.Chains))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("wallet service: %w", err)
	}

	for _, st := range a.selector.Backends() {
		ev := logger.Debug().Str("backend", st.Name).Bool("available", st.Available)
		if st.Reason != "" {
			ev = ev.Str("reason", st.Reason)
		}
		ev.Msg("Derivation backend")
	}
	return a, nil
}

// openRepository opens the configured wallet repository. The returned
// closer is nil when the repository holds no resources.
func openRepository(ctx context.Context, cfg *config.Config) (wallet.Repository, io.Closer, error) {
	opts := []walletstore.Option{walletstore.WithLogger(klog.Storage)}
	path := expandHome(cfg.StoragePath())

	switch cfg.Storage.Backend {
	case config.StorageMemory:
		db := storage.NewMemory()
		return walletstore.NewKV(db, opts...), db, nil
	case config.StorageBadger:
		db, err := storage.NewBadger(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open database at %s: %w", path, err)
		}
		return walletstore.NewKV(db, opts...), db, nil
	case config.StorageSQLite:
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, nil, fmt.Errorf("creating database dir: %w", err)
		}
		db, err := walletstore.OpenSQL(ctx, path, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("open database at %s: %w", path, err)
		}
		return db, db, nil
	case config.StorageFile:
		ks, err := walletstore.NewFile(path, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("open keystore at %s: %w", path, err)
		}
		return ks, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// Service returns the wallet service.
func (a *App) Service() *wallet.Service {
	return a.service
}

// Config returns the configuration the App was built from.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Close releases the repository. It is safe to call more than once.
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	if err != nil {
		return fmt.Errorf("close repository: %w", err)
	}
	return nil
}
