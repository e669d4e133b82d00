package wallet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Klingon-tech/klingwallet/internal/log"
	"github.com/rs/zerolog"
)

// Derivation is the result of DeriveAll: the addresses and the backend
// that computed them.
type Derivation struct {
	Addresses map[string]ChainAddress
	Backend   string
}

// BackendStatus describes one registered backend.
type BackendStatus struct {
	Name      string
	Available bool
	Reason    string
}

// Selector runs derivation on an ordered list of conformant backends,
// falling through to the next backend when one fails. The backend list is
// read-only after NewSelector; only the availability cache changes.
type Selector struct {
	backends []Backend
	logger   zerolog.Logger
	entropy  io.Reader

	mu          sync.Mutex
	unavailable map[string]error
}

// NewSelector registers backends in priority order and runs the
// conformance vectors against each of them.
func NewSelector(backends []Backend, opts ...Option) (*Selector, error) {
	if len(backends) == 0 {
		return nil, errors.New("no derivation backends configured")
	}
	seen := make(map[string]bool, len(backends))
	for _, b := range backends {
		if b == nil {
			return nil, errors.New("nil derivation backend")
		}
		if seen[b.Name()] {
			return nil, fmt.Errorf("derivation backend %q registered twice", b.Name())
		}
		seen[b.Name()] = true
	}

	cfg := applyOptions(log.Derive, opts)
	s := &Selector{
		backends:    append([]Backend(nil), backends...),
		logger:      *cfg.logger,
		entropy:     cfg.entropy,
		unavailable: make(map[string]error),
	}
	if err := s.checkConformance(); err != nil {
		return nil, err
	}
	return s, nil
}

// Backends reports every registered backend and whether it is in use.
func (s *Selector) Backends() []BackendStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]BackendStatus, len(s.backends))
	for i, b := range s.backends {
		out[i] = BackendStatus{Name: b.Name(), Available: true}
		if err, ok := s.unavailable[b.Name()]; ok {
			out[i].Available = false
			out[i].Reason = err.Error()
		}
	}
	return out
}

func (s *Selector) markUnavailable(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.unavailable[name]; ok {
		return
	}
	s.unavailable[name] = err
	s.logger.Warn().Err(err).Str("backend", name).Msg("Derivation backend marked unavailable")
}

func (s *Selector) unavailableReason(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unavailable[name]
}

func (s *Selector) unavailableFailures() []BackendFailure {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []BackendFailure
	for _, b := range s.backends {
		if err, ok := s.unavailable[b.Name()]; ok {
			out = append(out, BackendFailure{Backend: b.Name(), Err: err})
		}
	}
	return out
}

// safeCall runs fn and turns a backend panic into an error.
func safeCall(b Backend, fn func(Backend) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend %s panicked: %v", b.Name(), r)
		}
	}()
	return fn(b)
}

// try runs fn on each available backend in order and returns the name of
// the first that succeeds. Context errors stop the walk immediately.
func (s *Selector) try(ctx context.Context, op string, fn func(Backend) error) (string, error) {
	var failures []BackendFailure
	for _, b := range s.backends {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if reason := s.unavailableReason(b.Name()); reason != nil {
			failures = append(failures, BackendFailure{Backend: b.Name(), Err: reason})
			continue
		}
		err := safeCall(b, fn)
		if err == nil {
			return b.Name(), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return "", err
		}
		if errors.Is(err, ErrBackendUnavailable) {
			s.markUnavailable(b.Name(), err)
		} else {
			s.logger.Warn().Err(err).Str("backend", b.Name()).Str("op", op).Msg("Derivation backend failed, trying next")
		}
		failures = append(failures, BackendFailure{Backend: b.Name(), Err: err})
	}
	return "", &DerivationBackendExhaustedError{Op: op, Failures: failures}
}

// GenerateMnemonic draws entropyBits of randomness and encodes it.
func (s *Selector) GenerateMnemonic(entropyBits int) (*Mnemonic, error) {
	if !ValidEntropyBits(entropyBits) {
		return nil, fmt.Errorf("entropy must be %d or %d bits, got %d", EntropyBits128, EntropyBits256, entropyBits)
	}
	entropy, err := readEntropy(s.entropy, entropyBits)
	if err != nil {
		return nil, err
	}
	defer clear(entropy)

	var phrase string
	if _, err := s.try(context.Background(), "generate mnemonic", func(b Backend) error {
		var err error
		phrase, err = b.EncodeEntropy(entropy)
		return err
	}); err != nil {
		return nil, err
	}
	return ParseMnemonic(phrase)
}

// ValidateMnemonic reports whether text is a valid 12 or 24 word phrase.
// It never returns an error; any failure reads as invalid.
func (s *Selector) ValidateMnemonic(text string) bool {
	phrase := NormalizeMnemonic(text)
	if _, err := ParseMnemonic(phrase); err != nil {
		return false
	}
	var ok bool
	_, err := s.try(context.Background(), "validate mnemonic", func(b Backend) error {
		ok = b.Validate(phrase)
		return nil
	})
	return err == nil && ok
}

// DeriveSeed validates m and derives its seed. The passphrase is
// NFKD-normalised first.
func (s *Selector) DeriveSeed(m *Mnemonic, passphrase string) (Seed, error) {
	if m == nil || !s.ValidateMnemonic(m.Phrase()) {
		return Seed{}, ErrInvalidMnemonic
	}
	pass := NormalizePassphrase(passphrase)
	var seed Seed
	_, err := s.try(context.Background(), "derive seed", func(b Backend) error {
		var err error
		seed, err = b.DeriveSeed(m.Phrase(), pass)
		return err
	})
	return seed, err
}

// DeriveAddresses derives one address per chain, all with the same
// backend. An empty chain list selects every supported chain.
func (s *Selector) DeriveAddresses(ctx context.Context, seed Seed, chainIDs []string) (*Derivation, error) {
	chains, err := resolveChains(chainIDs, nil)
	if err != nil {
		return nil, err
	}

	var addrs map[string]ChainAddress
	name, err := s.try(ctx, "derive addresses", func(b Backend) error {
		out := make(map[string]ChainAddress, len(chains))
		for _, c := range chains {
			if err := ctx.Err(); err != nil {
				return err
			}
			key, err := DeriveAddressPath(b, seed, c.Path)
			if err != nil {
				return fmt.Errorf("%s: %w", c.ID, err)
			}
			addr, err := encodeKey(c, key.PrivateKey[:])
			key.Zero()
			if err != nil {
				return err
			}
			out[c.ID] = ChainAddress{ChainID: c.ID, Path: c.Path, Address: addr}
		}
		addrs = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("backend", name).Int("chains", len(addrs)).Msg("Derived addresses")
	return &Derivation{Addresses: addrs, Backend: name}, nil
}

// DeriveAll derives the seed of m and the addresses of chainIDs.
func (s *Selector) DeriveAll(ctx context.Context, m *Mnemonic, passphrase string, chainIDs []string) (*Derivation, error) {
	if _, err := resolveChains(chainIDs, nil); err != nil {
		return nil, err
	}
	seed, err := s.DeriveSeed(m, passphrase)
	if err != nil {
		return nil, err
	}
	defer seed.Zero()
	return s.DeriveAddresses(ctx, seed, chainIDs)
}
