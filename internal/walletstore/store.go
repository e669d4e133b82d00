// Package walletstore implements wallet.Repository over the key-value
// storage layer, SQLite and plain keystore files.
package walletstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Klingon-tech/klingwallet/internal/log"
	"github.com/Klingon-tech/klingwallet/internal/wallet"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// recordVersion is the version of the serialized record format.
const recordVersion = 1

type options struct {
	logger zerolog.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a repository.
type Option func(*options)

// WithLogger injects the repository logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces time.Now for CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{
		logger: log.Storage,
		now:    time.Now,
		newID:  func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// record is the serialized form of a wallet.WalletRecord.
type record struct {
	Version         int                            `json:"version"`
	ID              string                         `json:"id"`
	Name            string                         `json:"name"`
	SecretKind      wallet.SecretKind              `json:"secret_kind"`
	EncryptedSecret *wallet.Ciphertext             `json:"encrypted_secret"`
	Addresses       map[string]wallet.ChainAddress `json:"addresses"`
	CreatedAt       time.Time                      `json:"created_at"`
}

func (o *options) newRecord(name string, secret *wallet.Ciphertext, kind wallet.SecretKind, addrs map[string]wallet.ChainAddress) (*record, error) {
	if secret == nil {
		return nil, fmt.Errorf("missing encrypted secret")
	}
	copied := make(map[string]wallet.ChainAddress, len(addrs))
	for k, v := range addrs {
		copied[k] = v
	}
	return &record{
		Version:         recordVersion,
		ID:              o.newID(),
		Name:            name,
		SecretKind:      kind,
		EncryptedSecret: secret,
		Addresses:       copied,
		CreatedAt:       o.now().UTC().Truncate(time.Millisecond),
	}, nil
}

func (r *record) toWallet() *wallet.WalletRecord {
	return &wallet.WalletRecord{
		ID:              r.ID,
		Name:            r.Name,
		EncryptedSecret: r.EncryptedSecret,
		SecretKind:      r.SecretKind,
		Addresses:       r.Addresses,
		CreatedAt:       r.CreatedAt,
	}
}

func decodeRecord(data []byte) (*record, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse wallet: %w", err)
	}
	if r.Version != recordVersion {
		return nil, fmt.Errorf("unsupported wallet version: %d", r.Version)
	}
	return &r, nil
}

func persistErr(op string, err error) error {
	return &wallet.PersistenceError{Op: op, Err: err}
}

func duplicateName(name string) error {
	return persistErr("create", fmt.Errorf("%w: %q", wallet.ErrDuplicateName, name))
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", wallet.ErrNotFound, id)
}

// validID reports whether id is a well-formed ULID. Other ids cannot
// exist and are never used to build keys or paths.
func validID(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}

// sortRecords orders wallets by creation time, then id.
func sortRecords(recs []*wallet.WalletRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})
}

func ctxErr(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return persistErr(op, err)
	}
	return nil
}

var (
	_ wallet.Repository = (*KV)(nil)
	_ wallet.Repository = (*SQL)(nil)
	_ wallet.Repository = (*File)(nil)
)
