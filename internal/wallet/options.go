package wallet

import (
	"io"

	"github.com/rs/zerolog"
)

// settings collects the optional dependencies of the wallet components.
// Each constructor reads the fields it needs.
type settings struct {
	logger        *zerolog.Logger
	entropy       io.Reader
	observer      func(State)
	defaultChains []string
}

// Option configures a Selector, Vault, Pipeline or Service.
type Option func(*settings)

// WithLogger injects the logger a component writes to.
func WithLogger(l zerolog.Logger) Option {
	return func(s *settings) { s.logger = &l }
}

// WithEntropySource replaces crypto/rand as the mnemonic and vault
// randomness source.
func WithEntropySource(r io.Reader) Option {
	return func(s *settings) { s.entropy = r }
}

// WithObserver registers a callback that receives every pipeline state
// transition, including FAILED. Calls are sequential but may come from
// different goroutines, and none follows FAILED.
func WithObserver(fn func(State)) Option {
	return func(s *settings) { s.observer = fn }
}

// WithDefaultChains sets the chains used when a request names none.
func WithDefaultChains(ids []string) Option {
	return func(s *settings) { s.defaultChains = append([]string(nil), ids...) }
}

func applyOptions(def zerolog.Logger, opts []Option) settings {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = &def
	}
	return s
}
