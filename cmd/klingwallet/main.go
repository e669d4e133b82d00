// klingwallet creates, imports and unlocks multi-chain HD wallets.
//
// Usage:
//
//	klingwallet [global flags] <command> [flags]
//	klingwallet --help
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/Klingon-tech/klingwallet/config"
	"github.com/Klingon-tech/klingwallet/internal/app"
	klog "github.com/Klingon-tech/klingwallet/internal/log"
	"github.com/Klingon-tech/klingwallet/internal/wallet"
	"golang.org/x/term"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// errUsage marks errors that should be followed by the usage text.
var errUsage = errors.New("usage")

func main() {
	cfg, flags, err := config.Load(os.Args[1:])
	if err != nil {
		fatal("%v", err)
	}
	if flags.Version {
		fmt.Printf("klingwallet %s\n", version)
		return
	}
	if flags.Help || len(flags.Args) == 0 {
		usage(os.Stdout)
		return
	}

	cmd := flags.Args[0]
	cmdArgs := flags.Args[1:]
	if cmd == "help" {
		usage(os.Stdout)
		return
	}

	a, err := app.New(cfg)
	if err != nil {
		fatal("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = dispatch(ctx, a.Service(), cfg, cmd, cmdArgs)
	stop()
	if cerr := a.Close(); cerr != nil {
		klog.CLI.Warn().Err(cerr).Msg("Close failed")
	}

	if err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
			usage(os.Stderr)
			os.Exit(2)
		}
		fatal("%v", err)
	}
}

func dispatch(ctx context.Context, svc *wallet.Service, cfg *config.Config, cmd string, args []string) error {
	switch cmd {
	case "mnemonic":
		return cmdMnemonic(svc, cfg, args)
	case "wallet":
		return cmdWallet(ctx, svc, cfg, args)
	case "chains":
		return cmdChains()
	case "backends":
		return cmdBackends(svc)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Usage: klingwallet [global flags] <command> [flags]

Commands:
  mnemonic new [--words 12|24]    Generate and print a mnemonic
  mnemonic check ["phrase"]       Validate a mnemonic (prompts if omitted)

  wallet create --name <n> [--chains a,b] [--words 12|24]
                                  Generate a mnemonic and store a new wallet
  wallet import --name <n> [--mnemonic "..."] [--chains a,b]
                                  Import a wallet from a mnemonic
  wallet import-key --name <n> [--key <hex> | --key-file <path>] [--chains a,b]
                                  Import a wallet from a secp256k1 private key
  wallet list [--json]            List wallets
  wallet show --wallet <w> [--json]
                                  Show wallet addresses
  wallet unlock --wallet <w>      Decrypt and print the wallet secret
  wallet delete --wallet <w> [--yes]
                                  Delete a wallet

  chains                          List supported chains
  backends                        Show derivation backends and availability

Wallets are addressed by id or by name.

`)
	config.PrintOptions(w)
}

// ── mnemonic ────────────────────────────────────────────────────────────

func cmdMnemonic(svc *wallet.Service, cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: klingwallet mnemonic <new|check>", errUsage)
	}
	switch args[0] {
	case "new":
		return cmdMnemonicNew(svc, cfg, args[1:])
	case "check":
		return cmdMnemonicCheck(svc, args[1:])
	default:
		return fmt.Errorf("%w: unknown mnemonic command %q", errUsage, args[0])
	}
}

func cmdMnemonicNew(svc *wallet.Service, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("mnemonic new", flag.ExitOnError)
	words := fs.Int("words", 0, "Word count: 12 or 24 (default from config)")
	fs.Parse(args)

	bits, err := entropyBits(*words, cfg)
	if err != nil {
		return err
	}
	m, err := svc.GenerateMnemonic(bits)
	if err != nil {
		return fmt.Errorf("generate mnemonic: %w", err)
	}
	defer m.Zero()

	fmt.Println(m.Phrase())
	return nil
}

func cmdMnemonicCheck(svc *wallet.Service, args []string) error {
	phrase := strings.Join(args, " ")
	if phrase == "" {
		p, err := readPassword("Mnemonic: ")
		if err != nil {
			return fmt.Errorf("read mnemonic: %w", err)
		}
		phrase = string(p)
		clear(p)
	}
	if !svc.ValidateMnemonic(phrase) {
		return wallet.ErrInvalidMnemonic
	}
	fmt.Printf("Valid %d-word mnemonic\n", len(strings.Fields(phrase)))
	return nil
}

// entropyBits maps a --words value to entropy, falling back to config.
func entropyBits(words int, cfg *config.Config) (int, error) {
	switch words {
	case 0:
		return cfg.Wallet.EntropyBits, nil
	case 12:
		return wallet.EntropyBits128, nil
	case 24:
		return wallet.EntropyBits256, nil
	default:
		return 0, fmt.Errorf("%w: --words must be 12 or 24", errUsage)
	}
}

// ── wallet ──────────────────────────────────────────────────────────────

func cmdWallet(ctx context.Context, svc *wallet.Service, cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: klingwallet wallet <create|import|import-key|list|show|unlock|delete>", errUsage)
	}

	switch args[0] {
	case "create":
		return cmdWalletCreate(ctx, svc, cfg, args[1:])
	case "import":
		return cmdWalletImport(ctx, svc, args[1:])
	case "import-key":
		return cmdWalletImportKey(ctx, svc, args[1:])
	case "list":
		return cmdWalletList(ctx, svc, args[1:])
	case "show":
		return cmdWalletShow(ctx, svc, args[1:])
	case "unlock":
		return cmdWalletUnlock(ctx, svc, args[1:])
	case "delete":
		return cmdWalletDelete(ctx, svc, args[1:])
	default:
		return fmt.Errorf("%w: unknown wallet command %q", errUsage, args[0])
	}
}

func cmdWalletCreate(ctx context.Context, svc *wallet.Service, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("wallet create", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	chains := fs.String("chains", "", "Chains to derive (comma-separated)")
	words := fs.Int("words", 0, "Word count: 12 or 24 (default from config)")
	fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("%w: klingwallet wallet create --name <name>", errUsage)
	}
	bits, err := entropyBits(*words, cfg)
	if err != nil {
		return err
	}

	// Generate mnemonic.
	m, err := svc.GenerateMnemonic(bits)
	if err != nil {
		return fmt.Errorf("generate mnemonic: %w", err)
	}
	defer m.Zero()

	fmt.Println("Mnemonic (write this down!):")
	fmt.Printf("  %s\n\n", m.Phrase())

	password, err := readNewPassword()
	if err != nil {
		return err
	}
	defer clear(password)

	rec, err := svc.CreateWallet(ctx, *name, m, password, splitList(*chains))
	if err != nil {
		return err
	}

	fmt.Printf("\nWallet created: %s (%s)\n", rec.Name, rec.ID)
	printAddresses(os.Stdout, rec)
	return nil
}

func cmdWalletImport(ctx context.Context, svc *wallet.Service, args []string) error {
	fs := flag.NewFlagSet("wallet import", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	mnemonic := fs.String("mnemonic", "", "BIP-39 mnemonic (prompted if omitted)")
	chains := fs.String("chains", "", "Chains to derive (comma-separated)")
	fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("%w: klingwallet wallet import --name <name> [--mnemonic \"word1 word2 ...\"]", errUsage)
	}

	phrase := *mnemonic
	if phrase == "" {
		p, err := readPassword("Mnemonic: ")
		if err != nil {
			return fmt.Errorf("read mnemonic: %w", err)
		}
		phrase = string(p)
		clear(p)
	}
	if !svc.ValidateMnemonic(phrase) {
		return wallet.ErrInvalidMnemonic
	}

	password, err := readNewPassword()
	if err != nil {
		return err
	}
	defer clear(password)

	rec, err := svc.ImportWalletFromMnemonic(ctx, *name, phrase, password, splitList(*chains))
	if err != nil {
		return err
	}

	fmt.Printf("Wallet imported: %s (%s)\n", rec.Name, rec.ID)
	printAddresses(os.Stdout, rec)
	return nil
}

func cmdWalletImportKey(ctx context.Context, svc *wallet.Service, args []string) error {
	fs := flag.NewFlagSet("wallet import-key", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	key := fs.String("key", "", "Hex private key (prompted if neither --key nor --key-file)")
	keyFile := fs.String("key-file", "", "File holding a hex private key")
	chains := fs.String("chains", "", "Chains to derive (comma-separated)")
	fs.Parse(args)

	if *name == "" || (*key != "" && *keyFile != "") {
		return fmt.Errorf("%w: klingwallet wallet import-key --name <name> [--key <hex> | --key-file <path>]", errUsage)
	}

	keyHex := *key
	switch {
	case *keyFile != "":
		k, err := app.ReadKeyFile(*keyFile)
		if err != nil {
			return err
		}
		keyHex = k
	case keyHex == "":
		p, err := readPassword("Private key (hex): ")
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		keyHex = string(p)
		clear(p)
	}

	password, err := readNewPassword()
	if err != nil {
		return err
	}
	defer clear(password)

	rec, err := svc.ImportWalletFromPrivateKey(ctx, *name, keyHex, password, splitList(*chains))
	if err != nil {
		return err
	}

	fmt.Printf("Wallet imported: %s (%s)\n", rec.Name, rec.ID)
	printAddresses(os.Stdout, rec)
	return nil
}

func cmdWalletList(ctx context.Context, svc *wallet.Service, args []string) error {
	fs := flag.NewFlagSet("wallet list", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Output JSON")
	fs.Parse(args)

	recs, err := svc.ListWallets(ctx)
	if err != nil {
		return fmt.Errorf("list wallets: %w", err)
	}
	if *asJSON {
		return printJSON(summaries(recs))
	}

	if len(recs) == 0 {
		fmt.Println("No wallets found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tKIND\tCHAINS\tCREATED")
	for _, rec := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			rec.ID, rec.Name, rec.SecretKind, len(rec.Addresses),
			rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func cmdWalletShow(ctx context.Context, svc *wallet.Service, args []string) error {
	fs := flag.NewFlagSet("wallet show", flag.ExitOnError)
	ref := fs.String("wallet", "", "Wallet id or name")
	asJSON := fs.Bool("json", false, "Output JSON")
	fs.Parse(args)

	if *ref == "" {
		return fmt.Errorf("%w: klingwallet wallet show --wallet <id|name>", errUsage)
	}
	rec, err := findWallet(ctx, svc, *ref)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(summarize(rec))
	}

	fmt.Printf("Wallet:  %s\n", rec.Name)
	fmt.Printf("ID:      %s\n", rec.ID)
	fmt.Printf("Kind:    %s\n", rec.SecretKind)
	fmt.Printf("Vault:   %s\n", rec.EncryptedSecret.AlgorithmID)
	fmt.Printf("Created: %s\n\n", rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	printAddresses(os.Stdout, rec)
	return nil
}

func cmdWalletUnlock(ctx context.Context, svc *wallet.Service, args []string) error {
	fs := flag.NewFlagSet("wallet unlock", flag.ExitOnError)
	ref := fs.String("wallet", "", "Wallet id or name")
	fs.Parse(args)

	if *ref == "" {
		return fmt.Errorf("%w: klingwallet wallet unlock --wallet <id|name>", errUsage)
	}
	rec, err := findWallet(ctx, svc, *ref)
	if err != nil {
		return err
	}

	password, err := readPassword("Enter password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	defer clear(password)

	switch rec.SecretKind {
	case wallet.SecretPrivateKey:
		pk, err := svc.UnlockPrivateKey(ctx, rec.ID, password)
		if err != nil {
			return err
		}
		defer pk.Zero()
		raw := pk.Serialize()
		fmt.Printf("Private key: %s\n", hex.EncodeToString(raw))
		clear(raw)
	default:
		m, err := svc.UnlockWallet(ctx, rec.ID, password)
		if err != nil {
			return err
		}
		defer m.Zero()
		fmt.Printf("Mnemonic: %s\n", m.Phrase())
	}
	return nil
}

func cmdWalletDelete(ctx context.Context, svc *wallet.Service, args []string) error {
	fs := flag.NewFlagSet("wallet delete", flag.ExitOnError)
	ref := fs.String("wallet", "", "Wallet id or name")
	yes := fs.Bool("yes", false, "Skip confirmation")
	fs.Parse(args)

	if *ref == "" {
		return fmt.Errorf("%w: klingwallet wallet delete --wallet <id|name> [--yes]", errUsage)
	}
	rec, err := findWallet(ctx, svc, *ref)
	if err != nil {
		return err
	}

	if !*yes {
		fmt.Fprintf(os.Stderr, "Delete wallet %s (%s)? This cannot be undone. [y/N]: ", rec.Name, rec.ID)
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := svc.DeleteWallet(ctx, rec.ID); err != nil {
		return err
	}
	fmt.Printf("Wallet deleted: %s\n", rec.Name)
	return nil
}

// findWallet resolves a wallet by id first, then by name.
func findWallet(ctx context.Context, svc *wallet.Service, ref string) (*wallet.WalletRecord, error) {
	rec, err := svc.GetWallet(ctx, ref)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, wallet.ErrNotFound) {
		return nil, err
	}

	recs, err := svc.ListWallets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	for _, r := range recs {
		if r.Name == ref {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", wallet.ErrNotFound, ref)
}

// ── chains / backends ───────────────────────────────────────────────────

func cmdChains() error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPATH")
	for _, c := range wallet.Chains() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Name, c.Path)
	}
	return w.Flush()
}

func cmdBackends(svc *wallet.Service) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PRIORITY\tBACKEND\tSTATUS")
	for i, st := range svc.Backends() {
		status := "available"
		if !st.Available {
			status = "unavailable: " + st.Reason
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, st.Name, status)
	}
	return w.Flush()
}

// ── Output helpers ──────────────────────────────────────────────────────

// walletSummary is the JSON view of a wallet. The ciphertext is left out.
type walletSummary struct {
	ID        string                         `json:"id"`
	Name      string                         `json:"name"`
	Kind      wallet.SecretKind              `json:"kind"`
	Vault     wallet.Algorithm               `json:"vault"`
	Addresses map[string]wallet.ChainAddress `json:"addresses"`
	CreatedAt string                         `json:"created_at"`
}

func summarize(rec *wallet.WalletRecord) walletSummary {
	return walletSummary{
		ID:        rec.ID,
		Name:      rec.Name,
		Kind:      rec.SecretKind,
		Vault:     rec.EncryptedSecret.AlgorithmID,
		Addresses: rec.Addresses,
		CreatedAt: rec.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func summaries(recs []*wallet.WalletRecord) []walletSummary {
	out := make([]walletSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, summarize(rec))
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printAddresses prints a wallet's addresses in chain table order.
func printAddresses(w io.Writer, rec *wallet.WalletRecord) {
	ids := make([]string, 0, len(rec.Addresses))
	for id := range rec.Addresses {
		ids = append(ids, id)
	}
	order := make(map[string]int)
	for i, id := range wallet.ChainIDs() {
		order[id] = i
	}
	sort.Slice(ids, func(i, j int) bool { return order[ids[i]] < order[ids[j]] })

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHAIN\tPATH\tADDRESS")
	for _, id := range ids {
		a := rec.Addresses[id]
		path := "-"
		if len(a.Path) > 0 {
			path = a.Path.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", id, path, a.Address)
	}
	tw.Flush()
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ── Password helper ─────────────────────────────────────────────────────

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	if !term.IsTerminal(int(syscall.Stdin)) {
		// Piped input: read one line.
		line, err := bufio.NewReader(os.Stdin).ReadBytes('\n')
		fmt.Fprintln(os.Stderr)
		if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
			return nil, err
		}
		return []byte(strings.TrimRight(string(line), "\r\n")), nil
	}
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

// readNewPassword prompts twice and requires both entries to match.
func readNewPassword() ([]byte, error) {
	password, err := readPassword("Enter password: ")
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		clear(password)
		return nil, fmt.Errorf("read password: %w", err)
	}
	defer clear(confirm)
	if string(password) != string(confirm) {
		clear(password)
		return nil, errors.New("passwords do not match")
	}
	return password, nil
}

// ── Error helper ────────────────────────────────────────────────────────

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
