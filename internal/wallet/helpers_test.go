package wallet_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Klingon-tech/klingwallet/internal/derive"
	"github.com/Klingon-tech/klingwallet/internal/derive/native"
	"github.com/Klingon-tech/klingwallet/internal/wallet"
	"github.com/rs/zerolog"
)

const abandonAbout = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

var quiet = wallet.WithLogger(zerolog.Nop())

// fastVault returns a vault with minimal KDF cost.
func fastVault(t *testing.T, alg wallet.Algorithm) *wallet.Vault {
	t.Helper()
	cfg := wallet.VaultConfig{
		Algorithm:  alg,
		Argon2:     wallet.Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1},
		ScryptLogN: 4,
	}
	v, err := wallet.NewVaultUnchecked(cfg, quiet)
	if err != nil {
		t.Fatalf("NewVault() error: %v", err)
	}
	return v
}

func newSelector(t *testing.T, backends ...wallet.Backend) *wallet.Selector {
	t.Helper()
	if len(backends) == 0 {
		backends = derive.Default()
	}
	sel, err := wallet.NewSelector(backends, quiet)
	if err != nil {
		t.Fatalf("NewSelector() error: %v", err)
	}
	return sel
}

// fakeBackend wraps a real backend and can be switched into failure modes.
type fakeBackend struct {
	wallet.Backend
	name string

	badPhrases  bool // encodes every entropy to the wrong phrase
	offline     bool // wordlist reports ErrBackendUnavailable
	failDerive  atomic.Bool
	panicSeed   atomic.Bool
	unavailable atomic.Bool
}

func newFake(name string) *fakeBackend {
	return &fakeBackend{Backend: native.New(), name: name}
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Wordlist() ([]string, error) {
	if f.offline {
		return nil, fmt.Errorf("%w: library not loaded", wallet.ErrBackendUnavailable)
	}
	return f.Backend.Wordlist()
}

func (f *fakeBackend) EncodeEntropy(entropy []byte) (string, error) {
	if f.badPhrases {
		return abandonAbout, nil
	}
	return f.Backend.EncodeEntropy(entropy)
}

func (f *fakeBackend) DeriveSeed(phrase, passphrase string) (wallet.Seed, error) {
	if f.panicSeed.Load() {
		panic("corrupted state")
	}
	return f.Backend.DeriveSeed(phrase, passphrase)
}

func (f *fakeBackend) DeriveChild(parent *wallet.ExtendedKey, index uint32, hardened bool) (*wallet.ExtendedKey, error) {
	if f.unavailable.Load() {
		return nil, fmt.Errorf("%w: native library crashed", wallet.ErrBackendUnavailable)
	}
	if f.failDerive.Load() {
		return nil, errors.New("transient derivation failure")
	}
	return f.Backend.DeriveChild(parent, index, hardened)
}

// failingReader is an entropy source that always errors.
type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

// memRepo is an in-memory Repository that records calls.
type memRepo struct {
	mu      sync.Mutex
	records map[string]*wallet.WalletRecord
	creates int
	failErr error
	nextID  int
}

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[string]*wallet.WalletRecord)}
}

func (r *memRepo) Create(_ context.Context, name string, secret *wallet.Ciphertext, kind wallet.SecretKind, addresses map[string]wallet.ChainAddress) (*wallet.WalletRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if r.failErr != nil {
		return nil, r.failErr
	}
	for _, rec := range r.records {
		if rec.Name == name {
			return nil, &wallet.PersistenceError{Op: "create", Err: wallet.ErrDuplicateName}
		}
	}
	r.nextID++
	rec := &wallet.WalletRecord{
		ID:              fmt.Sprintf("w%d", r.nextID),
		Name:            name,
		EncryptedSecret: secret,
		SecretKind:      kind,
		Addresses:       addresses,
	}
	r.records[rec.ID] = rec
	return rec, nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return wallet.ErrNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *memRepo) Get(_ context.Context, id string) (*wallet.WalletRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, wallet.ErrNotFound
	}
	return rec, nil
}

func (r *memRepo) List(context.Context) ([]*wallet.WalletRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*wallet.WalletRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out, nil
}

func (r *memRepo) createCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creates
}

// stateRecorder collects observed pipeline states.
type stateRecorder struct {
	mu     sync.Mutex
	states []wallet.State
}

func (s *stateRecorder) observe(st wallet.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
}

func (s *stateRecorder) get() []wallet.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wallet.State(nil), s.states...)
}
