package orderbook

import (
	"fmt"
	"sync"

	"github.com/gridbot/core/internal/domain"
)

// ActiveQuoteTable maps a deterministic quote id to the key/instrument/side
// of the entry currently resting under it. At most one active entry exists
// per (instrument, side, priceString) at a time.
type ActiveQuoteTable struct {
	mu      sync.Mutex
	entries map[string]domain.QuoteInfo
}

func newActiveQuoteTable() *ActiveQuoteTable {
	return &ActiveQuoteTable{entries: make(map[string]domain.QuoteInfo)}
}

// StandardEntryID derives the `{instrument}_{B|A}{price}` id used to key
// both the ActiveQuoteTable and the update-tuple translation.
func StandardEntryID(instrument string, side domain.BookSide, priceLevel string) string {
	tag := "A"
	if side == domain.Bid {
		tag = "B"
	}
	return fmt.Sprintf("%s_%s%s", instrument, tag, priceLevel)
}

// FindQuoteInfo returns the currently-stored info for id, if any.
func (t *ActiveQuoteTable) FindQuoteInfo(id string) (domain.QuoteInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	qi, ok := t.entries[id]
	return qi, ok
}

// ReplaceQuoteInfo stores qi under id and returns whatever was previously
// stored there, if anything. A NEW entry whose id already has a prior
// stored value is the caller's signal to rewrite it to an UPDATE.
func (t *ActiveQuoteTable) ReplaceQuoteInfo(id string, qi domain.QuoteInfo) (domain.QuoteInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, had := t.entries[id]
	t.entries[id] = qi
	return prev, had
}

// RemoveQuoteInfo deletes id's entry, reporting whether it existed.
func (t *ActiveQuoteTable) RemoveQuoteInfo(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; !ok {
		return false
	}
	delete(t.entries, id)
	return true
}

// Has reports whether id currently has an active entry.
func (t *ActiveQuoteTable) Has(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[id]
	return ok
}
