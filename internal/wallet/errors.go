package wallet

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for programmatic handling.
var (
	ErrInvalidMnemonic      = errors.New("invalid mnemonic")
	ErrUnsupportedChain     = errors.New("unsupported chain")
	ErrEntropySource        = errors.New("entropy source failure")
	ErrBackendsExhausted    = errors.New("all derivation backends failed")
	ErrDecryption           = errors.New("decryption failed")
	ErrPersistence          = errors.New("persistence failure")
	ErrNotFound             = errors.New("wallet not found")
	ErrDuplicateName        = errors.New("wallet name already exists")
	ErrBackendUnavailable   = errors.New("derivation backend unavailable")
	ErrNonConformantBackend = errors.New("derivation backend is not conformant")
	ErrWordlistMismatch     = errors.New("derivation backends use different wordlists")
	ErrNotMnemonicWallet    = errors.New("wallet secret is not a mnemonic")
	ErrInvalidPrivateKey    = errors.New("invalid private key")
	ErrEmptyPassword        = errors.New("password must not be empty")
	ErrInvalidName          = errors.New("invalid wallet name")
	ErrPipelineUsed         = errors.New("pipeline already ran")
)

// UnsupportedChainError is returned for chains without a conformant
// address encoder.
type UnsupportedChainError struct {
	Chain  string
	Reason string
}

func (e *UnsupportedChainError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("unsupported chain %q", e.Chain)
	}
	return fmt.Sprintf("unsupported chain %q: %s", e.Chain, e.Reason)
}

func (e *UnsupportedChainError) Is(target error) bool {
	return target == ErrUnsupportedChain
}

// EntropySourceError means the secure random source failed.
type EntropySourceError struct {
	Err error
}

func (e *EntropySourceError) Error() string {
	return fmt.Sprintf("read entropy: %v", e.Err)
}

func (e *EntropySourceError) Unwrap() error {
	return e.Err
}

func (e *EntropySourceError) Is(target error) bool {
	return target == ErrEntropySource
}

// BackendFailure records why one backend could not serve a request.
type BackendFailure struct {
	Backend string
	Err     error
}

// DerivationBackendExhaustedError lists the failure of every backend that
// was tried.
type DerivationBackendExhaustedError struct {
	Op       string
	Failures []BackendFailure
}

func (e *DerivationBackendExhaustedError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("%s: no derivation backend available", e.Op)
	}
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %v", f.Backend, f.Err)
	}
	return fmt.Sprintf("%s: all derivation backends failed (%s)", e.Op, strings.Join(parts, "; "))
}

func (e *DerivationBackendExhaustedError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

func (e *DerivationBackendExhaustedError) Is(target error) bool {
	return target == ErrBackendsExhausted
}

// DecryptionError is returned when a ciphertext cannot be opened. A wrong
// password and a tampered or malformed ciphertext are indistinguishable.
type DecryptionError struct {
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decrypt: %s: %v", e.Reason, e.Err)
	}
	return "decrypt: " + e.Reason
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

func (e *DecryptionError) Is(target error) bool {
	return target == ErrDecryption
}

// PersistenceError wraps a failure of the wallet repository.
type PersistenceError struct {
	Op  string // "create", "delete", "get", "list"
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("wallet repository %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// WalletError is the failure envelope of a pipeline run. State is the
// stage that failed; Err is the cause, and for PERSISTING it is the
// repository's error unchanged.
type WalletError struct {
	State State
	Err   error
}

func (e *WalletError) Error() string {
	return fmt.Sprintf("wallet pipeline failed at %s: %v", e.State, e.Err)
}

func (e *WalletError) Unwrap() error {
	return e.Err
}
