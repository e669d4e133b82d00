package wallet

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/Klingon-tech/klingwallet/internal/log"
	"github.com/Klingon-tech/klingwallet/pkg/crypto"
	"github.com/rs/zerolog"
)

// State is a stage of the wallet creation pipeline.
type State int

// Pipeline states, in order. StateFailed is reachable from every state.
const (
	StatePending State = iota
	StateGeneratingOrValidatingMnemonic
	StateDerivingSeed
	StateDerivingAddresses
	StateEncryptingSecret
	StatePersisting
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateGeneratingOrValidatingMnemonic:
		return "GENERATING_OR_VALIDATING_MNEMONIC"
	case StateDerivingSeed:
		return "DERIVING_SEED"
	case StateDerivingAddresses:
		return "DERIVING_ADDRESSES"
	case StateEncryptingSecret:
		return "ENCRYPTING_SECRET"
	case StatePersisting:
		return "PERSISTING"
	case StateReady:
		return "READY"
	case StateFailed:
		return "FAILED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MaxNameLength bounds wallet names.
const MaxNameLength = 64

// Request describes one wallet to create. Exactly one secret source is
// used, checked in this order: PrivateKey, Mnemonic, MnemonicText, then a
// freshly generated mnemonic of EntropyBits.
type Request struct {
	Name         string
	Mnemonic     *Mnemonic // owned by the caller, not wiped
	MnemonicText string
	PrivateKey   string // hex secp256k1 scalar
	EntropyBits  int
	Password     []byte
	Chains       []string
}

// prepared is the output of the CPU-bound stages.
type prepared struct {
	ciphertext *Ciphertext
	kind       SecretKind
	addresses  map[string]ChainAddress
	backend    string
}

// Pipeline runs one wallet creation. It is single-use; build a new one
// for every attempt.
type Pipeline struct {
	selector      *Selector
	vault         *Vault
	repo          Repository
	logger        zerolog.Logger
	observer      func(State)
	defaultChains []string

	// notify serializes state changes with their observer calls.
	notify sync.Mutex

	mu       sync.Mutex
	state    State
	failedAt State
	backend  string
}

// NewPipeline wires a pipeline to its collaborators.
func NewPipeline(sel *Selector, vault *Vault, repo Repository, opts ...Option) *Pipeline {
	s := applyOptions(log.Pipeline, opts)
	return &Pipeline{
		selector:      sel,
		vault:         vault,
		repo:          repo,
		logger:        *s.logger,
		observer:      s.observer,
		defaultChains: s.defaultChains,
	}
}

// State returns the current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// FailedAt returns the state that failed, or StatePending if none did.
func (p *Pipeline) FailedAt() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failedAt
}

// Backend returns the derivation backend that produced the addresses.
func (p *Pipeline) Backend() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backend
}

// advance moves to next and reports false if the pipeline already failed.
func (p *Pipeline) advance(next State) bool {
	p.notify.Lock()
	defer p.notify.Unlock()

	p.mu.Lock()
	if p.state == StateFailed {
		p.mu.Unlock()
		return false
	}
	p.state = next
	p.mu.Unlock()

	p.logger.Debug().Str("state", next.String()).Msg("Pipeline transition")
	if p.observer != nil {
		p.observer(next)
	}
	return true
}

// fail moves to StateFailed once and returns the WalletError.
func (p *Pipeline) fail(err error) error {
	p.notify.Lock()
	defer p.notify.Unlock()

	p.mu.Lock()
	if p.state == StateFailed {
		p.mu.Unlock()
		return &WalletError{State: p.failedAt, Err: err}
	}
	at := p.state
	p.state = StateFailed
	p.failedAt = at
	p.mu.Unlock()

	p.logger.Warn().Err(err).Str("state", at.String()).Msg("Wallet pipeline failed")
	if p.observer != nil {
		p.observer(StateFailed)
	}
	return &WalletError{State: at, Err: err}
}

// Run executes the pipeline. The CPU-bound stages run on their own
// goroutine; if ctx ends before PERSISTING, Run returns at once and nothing
// is written. PERSISTING itself is not cancellable.
func (p *Pipeline) Run(ctx context.Context, req Request) (*WalletRecord, error) {
	p.mu.Lock()
	if p.state != StatePending {
		p.mu.Unlock()
		return nil, ErrPipelineUsed
	}
	p.mu.Unlock()
	defer log.Benchmark(p.logger, "wallet pipeline")()

	type result struct {
		prep *prepared
		err  error
	}
	// The goroutine can outlive Run, so it owns copies of the secrets.
	own := req
	own.Password = bytes.Clone(req.Password)
	if req.Mnemonic != nil {
		own.Mnemonic = req.Mnemonic.clone()
	}
	done := make(chan result, 1)
	go func() {
		defer clear(own.Password)
		defer own.Mnemonic.Zero()
		prep, err := p.prepare(ctx, own)
		done <- result{prep, err}
	}()

	var prep *prepared
	select {
	case <-ctx.Done():
		return nil, p.fail(ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, p.fail(r.err)
		}
		prep = r.prep
	}
	if err := ctx.Err(); err != nil {
		return nil, p.fail(err)
	}

	if !p.advance(StatePersisting) {
		return nil, &WalletError{State: p.FailedAt(), Err: context.Canceled}
	}
	rec, err := p.repo.Create(context.WithoutCancel(ctx), strings.TrimSpace(req.Name), prep.ciphertext, prep.kind, prep.addresses)
	if err != nil {
		return nil, p.fail(err)
	}
	p.advance(StateReady)
	p.logger.Info().
		Str("wallet", rec.ID).
		Str("backend", prep.backend).
		Int("chains", len(rec.Addresses)).
		Msg("Wallet created")
	return rec, nil
}

// prepare runs every stage before PERSISTING. It owns and wipes every
// secret it creates.
func (p *Pipeline) prepare(ctx context.Context, req Request) (*prepared, error) {
	if !p.advance(StateGeneratingOrValidatingMnemonic) {
		return nil, context.Canceled
	}
	if err := validateName(req.Name); err != nil {
		return nil, err
	}
	if len(req.Password) == 0 {
		return nil, ErrEmptyPassword
	}
	chains, err := resolveChains(req.Chains, p.defaultChains)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(chains))
	for i, c := range chains {
		ids[i] = c.ID
	}

	if req.PrivateKey != "" {
		return p.prepareKey(req, chains)
	}

	m, owned, err := p.mnemonic(req)
	if err != nil {
		return nil, err
	}
	if owned {
		defer m.Zero()
	}

	if !p.advance(StateDerivingSeed) {
		return nil, context.Canceled
	}
	seed, err := p.selector.DeriveSeed(m, "")
	if err != nil {
		return nil, err
	}
	defer seed.Zero()

	if !p.advance(StateDerivingAddresses) {
		return nil, context.Canceled
	}
	d, err := p.selector.DeriveAddresses(ctx, seed, ids)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.backend = d.Backend
	p.mu.Unlock()

	if !p.advance(StateEncryptingSecret) {
		return nil, context.Canceled
	}
	secret := []byte(m.Phrase())
	defer clear(secret)
	ct, err := p.vault.Encrypt(secret, req.Password)
	if err != nil {
		return nil, err
	}
	return &prepared{ciphertext: ct, kind: SecretMnemonic, addresses: d.Addresses, backend: d.Backend}, nil
}

// mnemonic resolves the request's mnemonic. owned reports whether the
// pipeline created it and must wipe it.
func (p *Pipeline) mnemonic(req Request) (m *Mnemonic, owned bool, err error) {
	switch {
	case req.Mnemonic != nil:
		m = req.Mnemonic
	case req.MnemonicText != "":
		m, err = ParseMnemonic(req.MnemonicText)
		if err != nil {
			return nil, false, err
		}
		owned = true
	default:
		bits := req.EntropyBits
		if bits == 0 {
			bits = EntropyBits256
		}
		m, err = p.selector.GenerateMnemonic(bits)
		if err != nil {
			return nil, false, err
		}
		return m, true, nil
	}
	if !p.selector.ValidateMnemonic(m.Phrase()) {
		if owned {
			m.Zero()
		}
		return nil, false, fmt.Errorf("%w: checksum or wordlist mismatch", ErrInvalidMnemonic)
	}
	return m, owned, nil
}

// prepareKey handles imported private keys. There is no seed, so
// DERIVING_SEED passes without work and every chain encodes the key itself.
func (p *Pipeline) prepareKey(req Request, chains []Chain) (*prepared, error) {
	pk, err := crypto.ParsePrivateKeyHex(req.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	defer pk.Zero()

	if !p.advance(StateDerivingSeed) {
		return nil, context.Canceled
	}
	if !p.advance(StateDerivingAddresses) {
		return nil, context.Canceled
	}
	secret := pk.Serialize()
	defer clear(secret)
	addrs := make(map[string]ChainAddress, len(chains))
	for _, c := range chains {
		addr, err := encodeKey(c, secret)
		if err != nil {
			return nil, err
		}
		addrs[c.ID] = ChainAddress{ChainID: c.ID, Address: addr}
	}

	if !p.advance(StateEncryptingSecret) {
		return nil, context.Canceled
	}
	ct, err := p.vault.Encrypt(secret, req.Password)
	if err != nil {
		return nil, err
	}
	return &prepared{ciphertext: ct, kind: SecretPrivateKey, addresses: addrs}, nil
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidName, MaxNameLength)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: contains control characters", ErrInvalidName)
		}
	}
	return nil
}
