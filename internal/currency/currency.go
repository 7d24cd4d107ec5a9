// Package currency provides the process-wide currency registry and the
// CurrencyPair value type used to identify a tradable instrument.
package currency

import (
	"fmt"
	"strings"
	"sync"
)

// Currency is a registered asset tag, e.g. "BTC", "USD".
type Currency string

var (
	mu       sync.RWMutex
	registry map[Currency]struct{}
)

// Init populates the process-wide registry. It must be called exactly once,
// before any CurrencyPair is constructed. Calling it twice is a programmer
// error and panics, matching the "global state initialized exactly once"
// design note.
func Init(symbols []string) {
	mu.Lock()
	defer mu.Unlock()
	if registry != nil {
		panic("currency: registry already initialized")
	}
	registry = make(map[Currency]struct{}, len(symbols))
	for _, s := range symbols {
		registry[Currency(strings.ToUpper(s))] = struct{}{}
	}
}

// Registered reports whether c is present in the registry.
func Registered(c Currency) bool {
	mu.RLock()
	defer mu.RUnlock()
	if registry == nil {
		return false
	}
	_, ok := registry[c]
	return ok
}

// Initialized reports whether Init has run. Used by callers that need to
// fail fast with a Fatal-kind error rather than silently treating every
// pair as invalid.
func Initialized() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// Pair is an ordered (base, quote) instrument identifier, e.g. BTC/USD.
type Pair struct {
	Base  Currency
	Quote Currency
}

// NewPair validates base and quote against the registry and returns a Pair.
func NewPair(base, quote string) (Pair, error) {
	b, q := Currency(strings.ToUpper(base)), Currency(strings.ToUpper(quote))
	if !Registered(b) {
		return Pair{}, fmt.Errorf("currency: unregistered base currency %q", b)
	}
	if !Registered(q) {
		return Pair{}, fmt.Errorf("currency: unregistered quote currency %q", q)
	}
	return Pair{Base: b, Quote: q}, nil
}

// SplitSymbol splits a "BASE/QUOTE" or "BASE-QUOTE" symbol into its two
// components without touching the registry — used by config loading to
// discover which symbols need registering before the registry exists.
func SplitSymbol(symbol string) (base, quote string, err error) {
	sep := "/"
	if !strings.Contains(symbol, sep) {
		sep = "-"
	}
	parts := strings.SplitN(symbol, sep, 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("currency: malformed instrument symbol %q", symbol)
	}
	return parts[0], parts[1], nil
}

// ParsePair parses a "BASE/QUOTE" or "BASE-QUOTE" symbol, as used both in the
// XML config's instrument attribute and the exchange's product_id field.
func ParsePair(symbol string) (Pair, error) {
	base, quote, err := SplitSymbol(symbol)
	if err != nil {
		return Pair{}, err
	}
	return NewPair(base, quote)
}

// String renders the pair in exchange product_id form, e.g. "BTC-USD".
func (p Pair) String() string {
	return string(p.Base) + "-" + string(p.Quote)
}

// Slash renders the pair as "BASE/QUOTE", the config-file form.
func (p Pair) Slash() string {
	return string(p.Base) + "/" + string(p.Quote)
}
