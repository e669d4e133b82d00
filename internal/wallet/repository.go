package wallet

import (
	"context"
	"time"
)

// SecretKind tells how to interpret a wallet's decrypted secret.
type SecretKind string

// Secret kinds.
const (
	SecretMnemonic   SecretKind = "mnemonic"
	SecretPrivateKey SecretKind = "private_key"
)

// WalletRecord is a persisted wallet. Addresses never change after
// creation.
type WalletRecord struct {
	ID              string                  `json:"id"`
	Name            string                  `json:"name"`
	EncryptedSecret *Ciphertext             `json:"encrypted_secret"`
	SecretKind      SecretKind              `json:"secret_kind"`
	Addresses       map[string]ChainAddress `json:"addresses"`
	CreatedAt       time.Time               `json:"created_at"`
}

// Repository persists wallet records. Implementations wrap their own
// failures in *PersistenceError and return ErrNotFound and
// ErrDuplicateName where they apply.
type Repository interface {
	Create(ctx context.Context, name string, secret *Ciphertext, kind SecretKind, addresses map[string]ChainAddress) (*WalletRecord, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*WalletRecord, error)
	List(ctx context.Context) ([]*WalletRecord, error)
}
