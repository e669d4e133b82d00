package walletstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingwallet/internal/storage"
	"github.com/Klingon-tech/klingwallet/internal/wallet"
)

// Key layout inside the KV namespace.
var (
	kvNamespace     = []byte("klingwallet/")
	recordPrefix    = []byte("r/") // r/<id> -> JSON record
	nameIndexPrefix = []byte("n/") // n/<name> -> id
)

// KV stores wallets in a storage.DB (Badger or in-memory).
type KV struct {
	db   *storage.PrefixDB
	opts options
	mu   sync.Mutex
}

// NewKV wraps db. The caller owns db and closes it.
func NewKV(db storage.DB, opts ...Option) *KV {
	return &KV{
		db:   storage.NewPrefixDB(db, kvNamespace),
		opts: buildOptions(opts),
	}
}

func recordKey(id string) []byte {
	return append(append([]byte{}, recordPrefix...), id...)
}

func nameKey(name string) []byte {
	return append(append([]byte{}, nameIndexPrefix...), name...)
}

// Create stores a new wallet and its name index entry in one batch.
func (s *KV) Create(ctx context.Context, name string, secret *wallet.Ciphertext, kind wallet.SecretKind, addresses map[string]wallet.ChainAddress) (*wallet.WalletRecord, error) {
	if err := ctxErr(ctx, "create"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.db.Has(nameKey(name))
	if err != nil {
		return nil, persistErr("create", err)
	}
	if exists {
		return nil, duplicateName(name)
	}

	rec, err := s.opts.newRecord(name, secret, kind, addresses)
	if err != nil {
		return nil, persistErr("create", err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, persistErr("create", fmt.Errorf("marshal wallet: %w", err))
	}

	batch := s.db.NewBatch()
	if err := batch.Put(recordKey(rec.ID), data); err != nil {
		return nil, persistErr("create", err)
	}
	if err := batch.Put(nameKey(name), []byte(rec.ID)); err != nil {
		return nil, persistErr("create", err)
	}
	if err := batch.Commit(); err != nil {
		return nil, persistErr("create", err)
	}
	s.opts.logger.Debug().Str("wallet", rec.ID).Msg("Wallet record stored")
	return rec.toWallet(), nil
}

func (s *KV) load(id string) (*record, error) {
	if !validID(id) {
		return nil, notFound(id)
	}
	data, err := s.db.Get(recordKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, persistErr("get", err)
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return nil, persistErr("get", err)
	}
	return rec, nil
}

// Get returns the wallet with id.
func (s *KV) Get(ctx context.Context, id string) (*wallet.WalletRecord, error) {
	if err := ctxErr(ctx, "get"); err != nil {
		return nil, err
	}
	rec, err := s.load(id)
	if err != nil {
		return nil, err
	}
	return rec.toWallet(), nil
}

// List returns every wallet, oldest first.
func (s *KV) List(ctx context.Context) ([]*wallet.WalletRecord, error) {
	if err := ctxErr(ctx, "list"); err != nil {
		return nil, err
	}
	var out []*wallet.WalletRecord
	err := s.db.ForEach(recordPrefix, func(_, value []byte) error {
		rec, err := decodeRecord(value)
		if err != nil {
			return err
		}
		out = append(out, rec.toWallet())
		return nil
	})
	if err != nil {
		return nil, persistErr("list", err)
	}
	sortRecords(out)
	return out, nil
}

// Delete removes the wallet and its name index entry in one batch.
func (s *KV) Delete(ctx context.Context, id string) error {
	if err := ctxErr(ctx, "delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(id)
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	if err := batch.Delete(recordKey(id)); err != nil {
		return persistErr("delete", err)
	}
	if err := batch.Delete(nameKey(rec.Name)); err != nil {
		return persistErr("delete", err)
	}
	if err := batch.Commit(); err != nil {
		return persistErr("delete", err)
	}
	s.opts.logger.Debug().Str("wallet", id).Msg("Wallet record deleted")
	return nil
}
