package walletstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/klingwallet/internal/wallet"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"
)

// walletRow is the wallets table.
type walletRow struct {
	bun.BaseModel `bun:"table:wallets,alias:w"`

	ID         string    `bun:"id,pk"`
	Name       string    `bun:"name,notnull,unique"`
	SecretKind string    `bun:"secret_kind,notnull"`
	Secret     []byte    `bun:"secret,notnull"`    // Ciphertext wire format
	Addresses  string    `bun:"addresses,notnull"` // JSON map of chain id to address
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

// SQL stores wallets in SQLite through bun.
type SQL struct {
	db   *bun.DB
	opts options
	mu   sync.Mutex
}

// OpenSQL opens (creating if needed) the SQLite database at path. The
// special path ":memory:" gives a private in-memory database.
func OpenSQL(ctx context.Context, path string, opts ...Option) (*SQL, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection keeps ":memory:" a single database and serializes writers.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if _, err := db.NewCreateTable().Model((*walletRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create wallets table: %w", err)
	}
	return &SQL{db: db, opts: buildOptions(opts)}, nil
}

// Close closes the database.
func (s *SQL) Close() error {
	return s.db.Close()
}

func rowFromRecord(rec *record) (*walletRow, error) {
	secret, err := rec.EncryptedSecret.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode secret: %w", err)
	}
	addrs, err := json.Marshal(rec.Addresses)
	if err != nil {
		return nil, fmt.Errorf("encode addresses: %w", err)
	}
	return &walletRow{
		ID:         rec.ID,
		Name:       rec.Name,
		SecretKind: string(rec.SecretKind),
		Secret:     secret,
		Addresses:  string(addrs),
		CreatedAt:  rec.CreatedAt,
	}, nil
}

func (r *walletRow) toWallet() (*wallet.WalletRecord, error) {
	var ct wallet.Ciphertext
	if err := ct.UnmarshalBinary(r.Secret); err != nil {
		return nil, fmt.Errorf("decode secret of %s: %w", r.ID, err)
	}
	addrs := make(map[string]wallet.ChainAddress)
	if err := json.Unmarshal([]byte(r.Addresses), &addrs); err != nil {
		return nil, fmt.Errorf("decode addresses of %s: %w", r.ID, err)
	}
	return &wallet.WalletRecord{
		ID:              r.ID,
		Name:            r.Name,
		EncryptedSecret: &ct,
		SecretKind:      wallet.SecretKind(r.SecretKind),
		Addresses:       addrs,
		CreatedAt:       r.CreatedAt.UTC(),
	}, nil
}

// Create inserts a wallet row.
func (s *SQL) Create(ctx context.Context, name string, secret *wallet.Ciphertext, kind wallet.SecretKind, addresses map[string]wallet.ChainAddress) (*wallet.WalletRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.db.NewSelect().Model((*walletRow)(nil)).Where("name = ?", name).Count(ctx)
	if err != nil {
		return nil, persistErr("create", err)
	}
	if n > 0 {
		return nil, duplicateName(name)
	}

	rec, err := s.opts.newRecord(name, secret, kind, addresses)
	if err != nil {
		return nil, persistErr("create", err)
	}
	row, err := rowFromRecord(rec)
	if err != nil {
		return nil, persistErr("create", err)
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return nil, persistErr("create", err)
	}
	s.opts.logger.Debug().Str("wallet", rec.ID).Msg("Wallet row inserted")
	return rec.toWallet(), nil
}

// Get returns the wallet with id.
func (s *SQL) Get(ctx context.Context, id string) (*wallet.WalletRecord, error) {
	if !validID(id) {
		return nil, notFound(id)
	}
	var row walletRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, persistErr("get", err)
	}
	rec, err := row.toWallet()
	if err != nil {
		return nil, persistErr("get", err)
	}
	return rec, nil
}

// List returns every wallet, oldest first.
func (s *SQL) List(ctx context.Context) ([]*wallet.WalletRecord, error) {
	var rows []walletRow
	if err := s.db.NewSelect().Model(&rows).OrderExpr("created_at, id").Scan(ctx); err != nil {
		return nil, persistErr("list", err)
	}
	out := make([]*wallet.WalletRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toWallet()
		if err != nil {
			return nil, persistErr("list", err)
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

// Delete removes the wallet row.
func (s *SQL) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return notFound(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.NewDelete().Model((*walletRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return persistErr("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistErr("delete", err)
	}
	if n == 0 {
		return notFound(id)
	}
	s.opts.logger.Debug().Str("wallet", id).Msg("Wallet row deleted")
	return nil
}
