// Package derive registers the derivation backends by name.
package derive

import (
	"fmt"
	"strings"

	"github.com/Klingon-tech/klingwallet/internal/derive/btcd"
	"github.com/Klingon-tech/klingwallet/internal/derive/native"
	"github.com/Klingon-tech/klingwallet/internal/derive/tylersmith"
	"github.com/Klingon-tech/klingwallet/internal/wallet"
)

// DefaultOrder is the backend preference used when none is configured.
var DefaultOrder = []string{tylersmith.Name, btcd.Name, native.Name}

var constructors = map[string]func() wallet.Backend{
	tylersmith.Name: func() wallet.Backend { return tylersmith.New() },
	btcd.Name:       func() wallet.Backend { return btcd.New() },
	native.Name:     func() wallet.Backend { return native.New() },
}

// Names lists the registered backends in default order.
func Names() []string {
	return append([]string(nil), DefaultOrder...)
}

// Lookup returns a new instance of the named backend.
func Lookup(name string) (wallet.Backend, error) {
	ctor, ok := constructors[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown derivation backend %q (known: %s)", name, strings.Join(DefaultOrder, ", "))
	}
	return ctor(), nil
}

// Backends resolves names in order. An empty list selects DefaultOrder.
func Backends(names []string) ([]wallet.Backend, error) {
	if len(names) == 0 {
		names = DefaultOrder
	}
	out := make([]wallet.Backend, 0, len(names))
	for _, n := range names {
		b, err := Lookup(n)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Default returns every registered backend in default order.
func Default() []wallet.Backend {
	out, _ := Backends(nil)
	return out
}
