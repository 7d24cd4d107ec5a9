// Package orderbook implements the per-instrument L2 bid/ask book (spec
// component F): it applies reconciled update entries and, once per batch,
// invokes the bound tick callback on the caller's goroutine — by
// construction that is always the MD listener goroutine, so the callback
// never runs concurrently with itself for a given book.
package orderbook

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridbot/core/internal/currency"
	"github.com/gridbot/core/internal/domain"
	"github.com/gridbot/core/pkg/logger"
)

// errNoMarket is returned by GetBestPrice when an instrument has no
// two-sided market yet.
var errNoMarket = errors.New("orderbook: no two-sided market")

// RawUpdate is one {side, price_level, new_quantity} tuple as delivered by
// the exchange's L2 event, before normalization.
type RawUpdate struct {
	Side       domain.BookSide
	PriceLevel string
	NewQty     float64
}

type level struct {
	price  float64
	volume float64
}

// Book holds the bid/ask price levels for every subscribed instrument, keyed
// by standard entry id. The maps are unordered; BestBidAsk finds the best
// level on each side by scanning them.
type Book struct {
	mu sync.RWMutex

	bids map[string]map[string]level // instrument -> entry id -> level
	asks map[string]map[string]level

	quotes     *ActiveQuoteTable
	keyCounter int64

	tickMu   sync.Mutex
	tickFunc func()

	lastMessage time.Time
}

// New constructs an empty Book.
func New() *Book {
	return &Book{
		bids:   make(map[string]map[string]level),
		asks:   make(map[string]map[string]level),
		quotes: newActiveQuoteTable(),
	}
}

// SetTickCallback binds the per-batch strategy tick. cmd/gridbot binds it
// once at startup, after Connect() and the grid strategy's Start(); batches
// applied before it is bound fire no tick.
func (b *Book) SetTickCallback(fn func()) {
	b.tickMu.Lock()
	defer b.tickMu.Unlock()
	b.tickFunc = fn
}

// ParseQuote normalizes one raw L2 tuple into an OrderBookEntry per the rule
// in §4.B: DELETE if new_quantity is zero, otherwise NEW; id = refId =
// the deterministic standard entry id.
func ParseQuote(instrument string, u RawUpdate) domain.OrderBookEntry {
	id := StandardEntryID(instrument, u.Side, u.PriceLevel)
	ut := domain.EntryNew
	if u.NewQty == 0 {
		ut = domain.EntryDelete
	}
	price, _ := strconv.ParseFloat(u.PriceLevel, 64)
	return domain.OrderBookEntry{
		ID:         id,
		RefID:      id,
		Instrument: instrument,
		Side:       u.Side,
		Price:      price,
		Volume:     u.NewQty,
		UpdateType: ut,
	}
}

// ApplyBatch runs the active-quote reconciliation from §3/§4.B over a batch
// of raw updates for one instrument, applies the result to the book, and —
// once the last entry is applied — fires the tick callback exactly once.
func (b *Book) ApplyBatch(instrument string, updates []RawUpdate) {
	if len(updates) == 0 {
		return
	}

	entries := make([]domain.OrderBookEntry, len(updates))
	for i, u := range updates {
		entries[i] = ParseQuote(instrument, u)
	}
	entries[len(entries)-1].EndOfMessage = true

	for i := range entries {
		b.publishQuote(&entries[i])
	}

	b.mu.Lock()
	b.lastMessage = time.Now()
	b.mu.Unlock()

	b.fireTick()
}

// AddEntry applies a single already-keyed entry directly, for callers (e.g.
// tests, or a REST snapshot resync) that construct entries themselves
// rather than going through ApplyBatch's raw-tuple pipeline. The active-quote
// reconciliation invariants in §3 still apply.
func (b *Book) AddEntry(e domain.OrderBookEntry) {
	b.publishQuote(&e)
	if e.EndOfMessage {
		b.fireTick()
	}
}

// publishQuote is the Go analogue of the original connection's
// PublishQuotes: it assigns a monotonic key, reconciles against the
// ActiveQuoteTable (NEW-over-existing becomes UPDATE; UPDATE-with-no-prior
// becomes NEW; DELETE-of-missing is an error and is skipped), and applies
// the outcome to the price-level map.
func (b *Book) publishQuote(e *domain.OrderBookEntry) {
	e.Key = atomic.AddInt64(&b.keyCounter, 1)

	prev, had := b.quotes.FindQuoteInfo(e.RefID)

	switch e.UpdateType {
	case domain.EntryDelete:
		if !had {
			logger.Warnf("orderbook: DELETE for unknown quote id %s", e.RefID)
			return
		}
		b.quotes.RemoveQuoteInfo(e.RefID)
		b.removeLevel(e.Instrument, e.Side, e.ID)

	case domain.EntryUpdate:
		if !had {
			e.UpdateType = domain.EntryNew
		} else {
			e.RefKey = prev.Key
		}
		b.quotes.ReplaceQuoteInfo(e.RefID, domain.QuoteInfo{Key: e.Key, Instrument: e.Instrument, Side: e.Side})
		b.setLevel(e.Instrument, e.Side, e.ID, e.Price, e.Volume)

	case domain.EntryNew:
		if had {
			e.UpdateType = domain.EntryUpdate
			e.RefKey = prev.Key
		}
		b.quotes.ReplaceQuoteInfo(e.RefID, domain.QuoteInfo{Key: e.Key, Instrument: e.Instrument, Side: e.Side})
		b.setLevel(e.Instrument, e.Side, e.ID, e.Price, e.Volume)
	}
}

func (b *Book) sideMap(instrument string, side domain.BookSide) map[string]level {
	m := b.bids
	if side == domain.Ask {
		m = b.asks
	}
	lvl, ok := m[instrument]
	if !ok {
		lvl = make(map[string]level)
		m[instrument] = lvl
	}
	return lvl
}

func (b *Book) setLevel(instrument string, side domain.BookSide, id string, price, volume float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sideMap(instrument, side)[id] = level{price: price, volume: volume}
}

func (b *Book) removeLevel(instrument string, side domain.BookSide, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sideMap(instrument, side), id)
}

func (b *Book) fireTick() {
	b.tickMu.Lock()
	fn := b.tickFunc
	b.tickMu.Unlock()
	if fn != nil {
		fn()
	}
}

// BestBidAsk returns the highest resting bid and lowest resting ask for
// instrument. ok is false if either side is empty.
func (b *Book) BestBidAsk(instrument string) (bestBid, bestAsk float64, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	haveBid, haveAsk := false, false
	for _, lvl := range b.bids[instrument] {
		if lvl.volume <= 0 {
			continue
		}
		if !haveBid || lvl.price > bestBid {
			bestBid, haveBid = lvl.price, true
		}
	}
	for _, lvl := range b.asks[instrument] {
		if lvl.volume <= 0 {
			continue
		}
		if !haveAsk || lvl.price < bestAsk {
			bestAsk, haveAsk = lvl.price, true
		}
	}
	return bestBid, bestAsk, haveBid && haveAsk
}

// Midpoint returns (bestBid+bestAsk)/2, or 0 if the book has no two-sided
// market yet — matching §4.E's "aborts Start if get_current_market_price
// returns 0" contract.
func (b *Book) Midpoint(instrument string) float64 {
	bid, ask, ok := b.BestBidAsk(instrument)
	if !ok {
		return 0
	}
	return (bid + ask) / 2
}

// GetBestPrice implements ports.BestPriceGetter over BestBidAsk, converting
// the instrument key to cp's exchange product_id form and the result to
// decimal — the precision grid math (and Order Manager's midpoint) needs.
// err is non-nil only when the book has no two-sided market yet for cp.
func (b *Book) GetBestPrice(ctx context.Context, cp currency.Pair) (bestBid, bestAsk decimal.Decimal, err error) {
	bid, ask, ok := b.BestBidAsk(cp.String())
	if !ok {
		return decimal.Zero, decimal.Zero, errNoMarket
	}
	return decimal.NewFromFloat(bid), decimal.NewFromFloat(ask), nil
}

// LastMessageTime reports when the book last applied a batch.
func (b *Book) LastMessageTime() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastMessage
}

