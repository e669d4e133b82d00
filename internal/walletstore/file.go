package walletstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Klingon-tech/klingwallet/internal/wallet"
)

const walletExt = ".wallet"

// File keeps one JSON file per wallet in a keystore directory.
type File struct {
	path string
	opts options
	mu   sync.Mutex
}

// NewFile creates a keystore that reads/writes to the given directory.
// The directory is created if it doesn't exist.
func NewFile(path string, opts ...Option) (*File, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &File{path: path, opts: buildOptions(opts)}, nil
}

// walletPath returns the file path for a wallet by id.
func (ks *File) walletPath(id string) string {
	return filepath.Join(ks.path, id+walletExt)
}

// Create writes a new wallet file. Names are unique across the directory.
func (ks *File) Create(ctx context.Context, name string, secret *wallet.Ciphertext, kind wallet.SecretKind, addresses map[string]wallet.ChainAddress) (*wallet.WalletRecord, error) {
	if err := ctxErr(ctx, "create"); err != nil {
		return nil, err
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()

	existing, err := ks.readAll()
	if err != nil {
		return nil, persistErr("create", err)
	}
	for _, r := range existing {
		if r.Name == name {
			return nil, duplicateName(name)
		}
	}

	rec, err := ks.opts.newRecord(name, secret, kind, addresses)
	if err != nil {
		return nil, persistErr("create", err)
	}
	if err := ks.writeFile(ks.walletPath(rec.ID), rec); err != nil {
		return nil, persistErr("create", err)
	}
	ks.opts.logger.Debug().Str("wallet", rec.ID).Str("path", ks.walletPath(rec.ID)).Msg("Wallet file written")
	return rec.toWallet(), nil
}

// Get reads one wallet file.
func (ks *File) Get(ctx context.Context, id string) (*wallet.WalletRecord, error) {
	if err := ctxErr(ctx, "get"); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, notFound(id)
	}
	rec, err := ks.readFile(ks.walletPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, persistErr("get", err)
	}
	return rec.toWallet(), nil
}

// List returns every wallet in the directory, oldest first.
func (ks *File) List(ctx context.Context) ([]*wallet.WalletRecord, error) {
	if err := ctxErr(ctx, "list"); err != nil {
		return nil, err
	}
	recs, err := ks.readAll()
	if err != nil {
		return nil, persistErr("list", err)
	}
	out := make([]*wallet.WalletRecord, len(recs))
	for i, r := range recs {
		out[i] = r.toWallet()
	}
	sortRecords(out)
	return out, nil
}

// Delete removes a wallet file.
func (ks *File) Delete(ctx context.Context, id string) error {
	if err := ctxErr(ctx, "delete"); err != nil {
		return err
	}
	if !validID(id) {
		return notFound(id)
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()

	err := os.Remove(ks.walletPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return notFound(id)
	}
	if err != nil {
		return persistErr("delete", err)
	}
	return nil
}

func (ks *File) readAll() ([]*record, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}

	var recs []*record
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != walletExt {
			continue
		}
		if !validID(strings.TrimSuffix(e.Name(), walletExt)) {
			continue
		}
		rec, err := ks.readFile(filepath.Join(ks.path, e.Name()))
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// writeFile writes to a temp file and renames it, so a crash never leaves
// a truncated wallet behind.
func (ks *File) writeFile(path string, rec *record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}

func (ks *File) readFile(path string) (*record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	return decodeRecord(data)
}
