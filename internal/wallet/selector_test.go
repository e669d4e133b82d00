package wallet_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/Klingon-tech/klingwallet/internal/derive/btcd"
	"github.com/Klingon-tech/klingwallet/internal/derive/tylersmith"
	"github.com/Klingon-tech/klingwallet/internal/wallet"
	"github.com/Klingon-tech/klingwallet/pkg/types"
	"github.com/tyler-smith/go-bip39/wordlists"
)

var abandonAddresses = map[string]string{
	"ethereum":       "0x9858EfFD232B4033E47d90003D41EC34EcaEda94",
	"bsc":            "0x6Fac4D18c912343BF86fa7049364Dd4E424Ab9C0",
	"polygon":        "0xb6716976A3ebe8D39aCEB04372f22Ff8e6802D7A",
	"avalanche":      "0xF3f50213C1d2e255e4B2bAD430F8A38EEF8D718E",
	"bitcoin":        "1LqBGSKuX5yYUonjxT5qGfpUsXKYYWeabA",
	"bitcoin-segwit": "bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu",
	"litecoin":       "LUWPbpM43E2p7ZSh8cyTBEkvpHmr3cB8Ez",
	"dogecoin":       "DBus3bamQjgJULBJtYXpEzDWQRwF5iwxgC",
}

func TestNewSelector_Rejects(t *testing.T) {
	if _, err := wallet.NewSelector(nil, quiet); err == nil {
		t.Error("expected error for empty backend list")
	}
	if _, err := wallet.NewSelector([]wallet.Backend{nil}, quiet); err == nil {
		t.Error("expected error for nil backend")
	}
	if _, err := wallet.NewSelector([]wallet.Backend{tylersmith.New(), tylersmith.New()}, quiet); err == nil {
		t.Error("expected error for duplicate backend")
	}
}

func TestNewSelector_NonConformant(t *testing.T) {
	bad := newFake("liar")
	bad.badPhrases = true
	_, err := wallet.NewSelector([]wallet.Backend{tylersmith.New(), bad}, quiet)
	if !errors.Is(err, wallet.ErrNonConformantBackend) {
		t.Fatalf("NewSelector() error = %v, want ErrNonConformantBackend", err)
	}
	if !strings.Contains(err.Error(), "liar") {
		t.Errorf("error %q should name the backend", err)
	}
}

func TestNewSelector_UnavailableBackend(t *testing.T) {
	off := newFake("offline")
	off.offline = true
	sel := newSelector(t, off, btcd.New())

	st := sel.Backends()
	if len(st) != 2 {
		t.Fatalf("Backends() = %d entries, want 2", len(st))
	}
	if st[0].Available || st[0].Reason == "" {
		t.Errorf("offline backend status = %+v", st[0])
	}
	if !st[1].Available {
		t.Errorf("btcd backend status = %+v", st[1])
	}

	m, err := wallet.ParseMnemonic(abandonAbout)
	if err != nil {
		t.Fatalf("ParseMnemonic() error: %v", err)
	}
	d, err := sel.DeriveAll(context.Background(), m, "", []string{"ethereum"})
	if err != nil {
		t.Fatalf("DeriveAll() error: %v", err)
	}
	if d.Backend != btcd.Name {
		t.Errorf("backend = %s, want %s", d.Backend, btcd.Name)
	}
}

func TestNewSelector_AllUnavailable(t *testing.T) {
	off := newFake("offline")
	off.offline = true
	_, err := wallet.NewSelector([]wallet.Backend{off}, quiet)
	if !errors.Is(err, wallet.ErrBackendsExhausted) {
		t.Fatalf("NewSelector() error = %v, want ErrBackendsExhausted", err)
	}
	if !errors.Is(err, wallet.ErrBackendUnavailable) {
		t.Errorf("error should carry the backend failure: %v", err)
	}
}

func TestSelector_DeriveAllVectors(t *testing.T) {
	sel := newSelector(t)
	m, err := wallet.ParseMnemonic(abandonAbout)
	if err != nil {
		t.Fatalf("ParseMnemonic() error: %v", err)
	}
	d, err := sel.DeriveAll(context.Background(), m, "", nil)
	if err != nil {
		t.Fatalf("DeriveAll() error: %v", err)
	}
	if d.Backend != tylersmith.Name {
		t.Errorf("backend = %s, want first registered", d.Backend)
	}
	if len(d.Addresses) != len(wallet.ChainIDs()) {
		t.Fatalf("addresses = %d, want %d", len(d.Addresses), len(wallet.ChainIDs()))
	}
	for chain, want := range abandonAddresses {
		got := d.Addresses[chain]
		if got.Address != want {
			t.Errorf("%s = %s, want %s", chain, got.Address, want)
		}
		if got.ChainID != chain {
			t.Errorf("%s chain id = %s", chain, got.ChainID)
		}
	}

	kg := d.Addresses["klingnet"]
	if kg.Path.String() != "m/44'/8888'/0'/0/0" {
		t.Errorf("klingnet path = %s", kg.Path)
	}
	if _, hrp, err := types.ParseAddress(kg.Address); err != nil || hrp != types.MainnetHRP {
		t.Errorf("klingnet address %q: hrp=%q err=%v", kg.Address, hrp, err)
	}
}

func TestSelector_Deterministic(t *testing.T) {
	sel := newSelector(t)
	m, err := sel.GenerateMnemonic(wallet.EntropyBits256)
	if err != nil {
		t.Fatalf("GenerateMnemonic() error: %v", err)
	}
	a, err := sel.DeriveAll(context.Background(), m, "", nil)
	if err != nil {
		t.Fatalf("DeriveAll() error: %v", err)
	}
	b, err := sel.DeriveAll(context.Background(), m, "", nil)
	if err != nil {
		t.Fatalf("DeriveAll() error: %v", err)
	}
	for id, addr := range a.Addresses {
		if b.Addresses[id].Address != addr.Address {
			t.Errorf("%s differs between runs", id)
		}
	}
}

func TestSelector_Passphrase(t *testing.T) {
	sel := newSelector(t)
	m, _ := wallet.ParseMnemonic(abandonAbout)
	plain, err := sel.DeriveSeed(m, "")
	if err != nil {
		t.Fatalf("DeriveSeed() error: %v", err)
	}
	trezor, err := sel.DeriveSeed(m, "TREZOR")
	if err != nil {
		t.Fatalf("DeriveSeed() error: %v", err)
	}
	if plain == trezor {
		t.Error("passphrase did not change the seed")
	}

	// "é" composed and decomposed normalise to the same passphrase.
	a, _ := sel.DeriveSeed(m, "caf\u00e9")
	b, _ := sel.DeriveSeed(m, "cafe\u0301")
	if a != b {
		t.Error("passphrase is not NFKD-normalised")
	}
}

func TestSelector_UnsupportedChain(t *testing.T) {
	sel := newSelector(t)
	m, _ := wallet.ParseMnemonic(abandonAbout)
	for _, chain := range []string{"solana", "tron", "cardano"} {
		_, err := sel.DeriveAll(context.Background(), m, "", []string{"ethereum", chain})
		if !errors.Is(err, wallet.ErrUnsupportedChain) {
			t.Errorf("DeriveAll(%s) error = %v, want ErrUnsupportedChain", chain, err)
		}
		var uc *wallet.UnsupportedChainError
		if !errors.As(err, &uc) || uc.Chain != chain {
			t.Errorf("DeriveAll(%s) error = %#v", chain, err)
		}
	}
}

func TestSelector_ChainNormalisation(t *testing.T) {
	sel := newSelector(t)
	m, _ := wallet.ParseMnemonic(abandonAbout)
	d, err := sel.DeriveAll(context.Background(), m, "", []string{"Ethereum", "ethereum", " BITCOIN "})
	if err != nil {
		t.Fatalf("DeriveAll() error: %v", err)
	}
	if len(d.Addresses) != 2 {
		t.Errorf("addresses = %d, want 2", len(d.Addresses))
	}
}

func TestSelector_Fallback(t *testing.T) {
	flaky := newFake("flaky")
	sel := newSelector(t, flaky, btcd.New())
	flaky.failDerive.Store(true)

	m, _ := wallet.ParseMnemonic(abandonAbout)
	d, err := sel.DeriveAll(context.Background(), m, "", []string{"ethereum"})
	if err != nil {
		t.Fatalf("DeriveAll() error: %v", err)
	}
	if d.Backend != btcd.Name {
		t.Errorf("backend = %s, want %s", d.Backend, btcd.Name)
	}
	if d.Addresses["ethereum"].Address != abandonAddresses["ethereum"] {
		t.Errorf("fallback address = %s", d.Addresses["ethereum"].Address)
	}
	// A plain failure does not retire the backend.
	if !sel.Backends()[0].Available {
		t.Error("flaky backend should stay available")
	}
}

func TestSelector_PanicFallback(t *testing.T) {
	p := newFake("panicky")
	sel := newSelector(t, p, tylersmith.New())
	p.panicSeed.Store(true)

	m, _ := wallet.ParseMnemonic(abandonAbout)
	seed, err := sel.DeriveSeed(m, "")
	if err != nil {
		t.Fatalf("DeriveSeed() error: %v", err)
	}
	if seed[0] != 0x5e || seed[1] != 0xb0 {
		t.Errorf("seed = %x..., want 5eb0...", seed[:2])
	}
}

func TestSelector_MarksUnavailable(t *testing.T) {
	f := newFake("fragile")
	sel := newSelector(t, f, tylersmith.New())
	f.unavailable.Store(true)

	m, _ := wallet.ParseMnemonic(abandonAbout)
	if _, err := sel.DeriveAll(context.Background(), m, "", []string{"bitcoin"}); err != nil {
		t.Fatalf("DeriveAll() error: %v", err)
	}
	st := sel.Backends()[0]
	if st.Available {
		t.Fatal("fragile backend should be marked unavailable")
	}

	// It stays skipped even after recovering.
	f.unavailable.Store(false)
	f.failDerive.Store(false)
	d, err := sel.DeriveAll(context.Background(), m, "", []string{"bitcoin"})
	if err != nil {
		t.Fatalf("DeriveAll() error: %v", err)
	}
	if d.Backend != tylersmith.Name {
		t.Errorf("backend = %s, want %s", d.Backend, tylersmith.Name)
	}
}

func TestSelector_Exhausted(t *testing.T) {
	a := newFake("a")
	b := newFake("b")
	sel := newSelector(t, a, b)
	a.failDerive.Store(true)
	b.failDerive.Store(true)

	m, _ := wallet.ParseMnemonic(abandonAbout)
	_, err := sel.DeriveAll(context.Background(), m, "", []string{"ethereum"})
	if !errors.Is(err, wallet.ErrBackendsExhausted) {
		t.Fatalf("DeriveAll() error = %v, want ErrBackendsExhausted", err)
	}
	var ex *wallet.DerivationBackendExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("error %T is not *DerivationBackendExhaustedError", err)
	}
	if len(ex.Failures) != 2 || ex.Failures[0].Backend != "a" || ex.Failures[1].Backend != "b" {
		t.Errorf("failures = %+v", ex.Failures)
	}
}

func TestSelector_Canceled(t *testing.T) {
	sel := newSelector(t)
	m, _ := wallet.ParseMnemonic(abandonAbout)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sel.DeriveAll(ctx, m, "", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("DeriveAll() error = %v, want context.Canceled", err)
	}
}

func TestSelector_GenerateMnemonic(t *testing.T) {
	sel := newSelector(t)
	for _, tt := range []struct {
		bits  int
		words int
	}{
		{wallet.EntropyBits128, 12},
		{wallet.EntropyBits256, 24},
	} {
		m, err := sel.GenerateMnemonic(tt.bits)
		if err != nil {
			t.Fatalf("GenerateMnemonic(%d) error: %v", tt.bits, err)
		}
		if m.WordCount() != tt.words || len(m.Words()) != tt.words {
			t.Errorf("GenerateMnemonic(%d) = %d words, want %d", tt.bits, len(m.Words()), tt.words)
		}
		if !sel.ValidateMnemonic(m.Phrase()) {
			t.Errorf("generated mnemonic does not validate")
		}
	}

	for _, bits := range []int{0, 160, 192, 224, 512} {
		if _, err := sel.GenerateMnemonic(bits); err == nil {
			t.Errorf("GenerateMnemonic(%d) should fail", bits)
		}
	}
}

func TestSelector_GenerateFromEntropySource(t *testing.T) {
	sel, err := wallet.NewSelector([]wallet.Backend{tylersmith.New()}, quiet,
		wallet.WithEntropySource(bytes.NewReader(make([]byte, 16))))
	if err != nil {
		t.Fatalf("NewSelector() error: %v", err)
	}
	m, err := sel.GenerateMnemonic(wallet.EntropyBits128)
	if err != nil {
		t.Fatalf("GenerateMnemonic() error: %v", err)
	}
	if m.Phrase() != abandonAbout {
		t.Errorf("phrase = %q, want the all-zero vector", m.Phrase())
	}
}

func TestSelector_EntropyFailure(t *testing.T) {
	sel, err := wallet.NewSelector([]wallet.Backend{tylersmith.New()}, quiet, wallet.WithEntropySource(failingReader{}))
	if err != nil {
		t.Fatalf("NewSelector() error: %v", err)
	}
	_, err = sel.GenerateMnemonic(wallet.EntropyBits256)
	if !errors.Is(err, wallet.ErrEntropySource) {
		t.Fatalf("GenerateMnemonic() error = %v, want ErrEntropySource", err)
	}
	var ee *wallet.EntropySourceError
	if !errors.As(err, &ee) {
		t.Errorf("error %T is not *EntropySourceError", err)
	}
}

func TestSelector_ValidateMnemonic(t *testing.T) {
	sel := newSelector(t)
	tests := []struct {
		text string
		want bool
	}{
		{abandonAbout, true},
		{"  abandon abandon abandon abandon abandon abandon\tabandon abandon abandon abandon abandon about\n", true},
		{"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon", false},
		{"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon", false},
		{"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon klingon", false},
		{"legal winner thank year wave sausage worth useful legal winner thank yellow", true},
		{"", false},
		{"\x00\xff\xfe", false},
	}
	for _, tt := range tests {
		if got := sel.ValidateMnemonic(tt.text); got != tt.want {
			t.Errorf("ValidateMnemonic(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestSelector_ValidateMnemonic_AlteredWord(t *testing.T) {
	sel := newSelector(t)
	index := make(map[string]int, len(wordlists.English))
	for i, w := range wordlists.English {
		index[w] = i
	}
	rng := rand.New(rand.NewPCG(1, 2))
	for _, bits := range []int{wallet.EntropyBits128, wallet.EntropyBits256} {
		rejected := 0
		for range 50 {
			m, err := sel.GenerateMnemonic(bits)
			if err != nil {
				t.Fatalf("GenerateMnemonic(%d) error: %v", bits, err)
			}
			words := m.Words()
			m.Zero()
			pos := rng.IntN(len(words))
			repl := wordlists.English[rng.IntN(len(wordlists.English))]
			for repl == words[pos] {
				repl = wordlists.English[rng.IntN(len(wordlists.English))]
			}
			words[pos] = repl
			want := checksumMatches(words, index)
			if !want {
				rejected++
			}
			phrase := strings.Join(words, " ")
			if got := sel.ValidateMnemonic(phrase); got != want {
				t.Fatalf("ValidateMnemonic(word %d -> %q) = %v, want %v", pos, repl, got, want)
			}
		}
		if rejected == 0 {
			t.Errorf("%d bits: no altered phrase failed its checksum", bits)
		}
	}
}

// checksumMatches recomputes the BIP-39 checksum of words.
func checksumMatches(words []string, index map[string]int) bool {
	total := len(words) * 11
	ent := total * 32 / 33
	cs := total - ent
	buf := make([]byte, (total+7)/8)
	bit := 0
	for _, w := range words {
		idx := index[w]
		for j := 10; j >= 0; j-- {
			if idx>>j&1 == 1 {
				buf[bit/8] |= 0x80 >> (bit % 8)
			}
			bit++
		}
	}
	sum := sha256.Sum256(buf[:ent/8])
	return sum[0]>>(8-cs) == buf[ent/8]>>(8-cs)
}

func TestSelector_DeriveSeedInvalid(t *testing.T) {
	sel := newSelector(t)
	if _, err := sel.DeriveSeed(nil, ""); !errors.Is(err, wallet.ErrInvalidMnemonic) {
		t.Errorf("DeriveSeed(nil) error = %v", err)
	}
	m, _ := wallet.ParseMnemonic("abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon")
	if _, err := sel.DeriveSeed(m, ""); !errors.Is(err, wallet.ErrInvalidMnemonic) {
		t.Errorf("DeriveSeed(bad checksum) error = %v", err)
	}
}
