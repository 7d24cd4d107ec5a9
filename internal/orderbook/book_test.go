package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbot/core/internal/domain"
)

func TestApplyBatch_NewThenUpdateThenDelete(t *testing.T) {
	b := New()
	ticks := 0
	b.SetTickCallback(func() { ticks++ })

	b.ApplyBatch("BTC-USD", []RawUpdate{
		{Side: domain.Bid, PriceLevel: "100", NewQty: 1.5},
	})
	require.Equal(t, 1, ticks)
	bid, ask, ok := b.BestBidAsk("BTC-USD")
	assert.False(t, ok) // no ask yet
	_ = bid
	_ = ask

	b.ApplyBatch("BTC-USD", []RawUpdate{
		{Side: domain.Ask, PriceLevel: "101", NewQty: 2},
	})
	bid, ask, ok = b.BestBidAsk("BTC-USD")
	require.True(t, ok)
	assert.Equal(t, 100.0, bid)
	assert.Equal(t, 101.0, ask)
	assert.Equal(t, 100.5, b.Midpoint("BTC-USD"))

	// NEW for an id that already exists should reconcile to UPDATE.
	id := StandardEntryID("BTC-USD", domain.Bid, "100")
	require.True(t, b.quotes.Has(id))
	prev, _ := b.quotes.FindQuoteInfo(id)

	b.ApplyBatch("BTC-USD", []RawUpdate{
		{Side: domain.Bid, PriceLevel: "100", NewQty: 2.5},
	})
	cur, ok := b.quotes.FindQuoteInfo(id)
	require.True(t, ok)
	assert.Greater(t, cur.Key, prev.Key, "UPDATE re-keys the existing quote")
	assert.Len(t, b.bids["BTC-USD"], 1, "UPDATE replaces the level rather than adding one")
	assert.Equal(t, 2.5, b.bids["BTC-USD"][id].volume)

	b.ApplyBatch("BTC-USD", []RawUpdate{
		{Side: domain.Bid, PriceLevel: "100", NewQty: 0},
	})
	_, _, ok = b.BestBidAsk("BTC-USD")
	assert.False(t, ok, "bid side removed, so no two-sided market")
	assert.False(t, b.quotes.Has(id))
}

func TestApplyBatch_DeleteUnknownIsSkippedNotFatal(t *testing.T) {
	b := New()
	b.ApplyBatch("ETH-USD", []RawUpdate{
		{Side: domain.Ask, PriceLevel: "50", NewQty: 0},
	})
	id := StandardEntryID("ETH-USD", domain.Ask, "50")
	assert.False(t, b.quotes.Has(id))

	// A subsequent NEW for the same id must succeed normally.
	b.ApplyBatch("ETH-USD", []RawUpdate{
		{Side: domain.Ask, PriceLevel: "50", NewQty: 3},
	})
	assert.True(t, b.quotes.Has(id))
}

func TestStandardEntryID(t *testing.T) {
	assert.Equal(t, "BTC-USD_B100.5", StandardEntryID("BTC-USD", domain.Bid, "100.5"))
	assert.Equal(t, "BTC-USD_A100.5", StandardEntryID("BTC-USD", domain.Ask, "100.5"))
}
