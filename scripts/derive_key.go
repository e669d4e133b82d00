// derive_key.go prints the pubkey and the address on every supported chain
// for a hex-encoded private key file.
// Usage: go run scripts/derive_key.go <keyfile>
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/Klingon-tech/klingwallet/internal/app"
	"github.com/Klingon-tech/klingwallet/internal/wallet"
	"github.com/Klingon-tech/klingwallet/pkg/crypto"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_key <keyfile>")
		os.Exit(1)
	}
	keyHex, err := app.ReadKeyFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	key, err := crypto.ParsePrivateKeyHex(keyHex)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer key.Zero()

	pub := key.PublicKey()
	fmt.Printf("pubkey=%s\n", hex.EncodeToString(pub))
	for _, c := range wallet.Chains() {
		addr, err := c.Encoder.Encode(pub)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", c.ID, err)
			continue
		}
		fmt.Printf("%s=%s\n", c.ID, addr)
	}
}
