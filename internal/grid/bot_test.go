package grid

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbot/core/internal/currency"
	"github.com/gridbot/core/internal/domain"
	"github.com/gridbot/core/internal/ordermanager"
)

func init() {
	if !currency.Initialized() {
		currency.Init([]string{"BTC", "USD"})
	}
}

// seqConn hands out sequential order ids and never rejects a send, letting
// tests drive the grid engine without a real exchange.
type seqConn struct {
	n int
}

func (c *seqConn) Connect(ctx context.Context) error { return nil }
func (c *seqConn) Disconnect() error                 { return nil }
func (c *seqConn) IsConnected() bool                 { return true }

func (c *seqConn) SendOrder(ctx context.Context, cp currency.Pair, side domain.Side, price, qty decimal.Decimal) (string, error) {
	c.n++
	return fmt.Sprintf("o-%d", c.n), nil
}
func (c *seqConn) CancelOrder(ctx context.Context, orderID string) error { return nil }
func (c *seqConn) QueryOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return nil, fmt.Errorf("unsupported")
}
func (c *seqConn) GetAccountBalances(ctx context.Context) (domain.Balance, error) {
	return domain.Balance{}, nil
}

type zeroBook struct{}

func (zeroBook) GetBestPrice(ctx context.Context, cp currency.Pair) (decimal.Decimal, decimal.Decimal, error) {
	return decimal.Zero, decimal.Zero, nil
}

func d(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

func newTestBot(t *testing.T, cfg Config) (*GridBot, *ordermanager.Manager, *seqConn) {
	t.Helper()
	conn := &seqConn{}
	om := ordermanager.New(conn, zeroBook{})
	bot, err := NewGridBot(cfg, om)
	require.NoError(t, err)
	return bot, om, conn
}

func baseCfg() Config {
	return Config{
		Name:            "btc-grid",
		Instrument:      "BTC/USD",
		BasePrice:       d("100"),
		LevelsBelow:     2,
		LevelsAbove:     2,
		StepPercent:     d("0.01"),
		PercentOrderQty: d("1"),
		MaxPosition:     d("10"),
		CreatePosition:  true,
	}
}

// Scenario 1: clean start places BUY@99, BUY@98, SELL@101, SELL@102.
func TestCleanStart(t *testing.T) {
	bot, om, _ := newTestBot(t, baseCfg())
	bot.LoadExistingOrders()
	require.NoError(t, bot.Start(context.Background()))

	assert.Len(t, bot.activeOrders, 4)
	prices := map[string]bool{}
	for _, id := range bot.activeOrders {
		o, ok := om.GetOrderLocal(id)
		require.True(t, ok)
		prices[string(o.Side)+"@"+o.LimitPx.String()] = true
	}
	assert.True(t, prices["BUY@99"])
	assert.True(t, prices["BUY@98"])
	assert.True(t, prices["SELL@101"])
	assert.True(t, prices["SELL@102"])
}

// Scenario 2: a full BUY fill places the mirrored SELL one step up and
// removes the filled order from tracking.
func TestFullBuyFill(t *testing.T) {
	bot, om, _ := newTestBot(t, baseCfg())
	bot.LoadExistingOrders()
	require.NoError(t, bot.Start(context.Background()))

	var buy99 string
	for _, id := range bot.activeOrders {
		o, _ := om.GetOrderLocal(id)
		if o.Side == domain.Buy && o.LimitPx.Equal(d("99")) {
			buy99 = id
		}
	}
	require.NotEmpty(t, buy99)

	om.UpdateOrder(buy99, domain.StatusFilled, d("1"))
	bot.CheckFilledOrders(context.Background())

	assert.NotContains(t, bot.activeOrders, buy99)
	assert.Len(t, bot.activeOrders, 4)

	var hedge *domain.Order
	for _, id := range bot.activeOrders {
		o, _ := om.GetOrderLocal(id)
		if o.Side == domain.Sell && o.LimitPx.Equal(d("99.99")) {
			hedge = o
		}
	}
	require.NotNil(t, hedge, "expected hedge SELL at 99*1.01=99.99")
	assert.True(t, hedge.OrigQty.Equal(d("1")))
}

// Scenario 3: partial fills accumulate in knownFills and each delta places
// its own hedge, without removing the originating order.
func TestPartialFillAccumulation(t *testing.T) {
	bot, om, _ := newTestBot(t, baseCfg())
	bot.LoadExistingOrders()
	require.NoError(t, bot.Start(context.Background()))

	var buy98 string
	for _, id := range bot.activeOrders {
		o, _ := om.GetOrderLocal(id)
		if o.Side == domain.Buy && o.LimitPx.Equal(d("98")) {
			buy98 = id
		}
	}
	require.NotEmpty(t, buy98)

	om.UpdateOrder(buy98, domain.StatusPartiallyFilled, d("0.3"))
	bot.CheckFilledOrders(context.Background())
	assert.Contains(t, bot.activeOrders, buy98, "partially filled order stays tracked")
	assert.True(t, bot.knownFills[buy98].Equal(d("0.3")))

	var firstHedgeQty decimal.Decimal
	for _, id := range bot.activeOrders {
		o, _ := om.GetOrderLocal(id)
		if o.Side == domain.Sell && o.LimitPx.Equal(d("98.98")) {
			firstHedgeQty = o.OrigQty
		}
	}
	assert.True(t, firstHedgeQty.Equal(d("0.3")))

	om.UpdateOrder(buy98, domain.StatusPartiallyFilled, d("0.7"))
	bot.CheckFilledOrders(context.Background())
	assert.True(t, bot.knownFills[buy98].Equal(d("0.7")))

	var hedgeCount int
	var lastQty decimal.Decimal
	for _, id := range bot.activeOrders {
		o, _ := om.GetOrderLocal(id)
		if o.Side == domain.Sell && o.LimitPx.Equal(d("98.98")) {
			hedgeCount++
			lastQty = o.OrigQty
		}
	}
	assert.Equal(t, 2, hedgeCount, "each partial delta places its own hedge order")
	assert.True(t, lastQty.Equal(d("0.4")))
}

// Scenario 4: restart with create_position=false places nothing new; the
// snapshot-loaded orders remain the entire active set.
func TestRestartSnapshotSkipsPlacement(t *testing.T) {
	cfg := baseCfg()
	cfg.CreatePosition = false
	conn := &seqConn{}
	om := ordermanager.New(conn, zeroBook{})
	cp, _ := currency.ParsePair(cfg.Instrument)
	om.SyncOrder("snap-1", cp, domain.Buy, d("99"), d("1"), domain.StatusNew, decimal.Zero)
	om.SyncOrder("snap-2", cp, domain.Sell, d("101"), d("1"), domain.StatusNew, decimal.Zero)

	bot, err := NewGridBot(cfg, om)
	require.NoError(t, err)
	bot.LoadExistingOrders()
	require.NoError(t, bot.Start(context.Background()))

	assert.Len(t, bot.activeOrders, 2)
}

// Scenario 5: a full BUY fill while the base-currency balance already
// exceeds max_position skips the hedge but still untracks the filled order.
func TestPositionCapSkipsHedge(t *testing.T) {
	cfg := baseCfg()
	bot, om, _ := newTestBot(t, cfg)
	bot.LoadExistingOrders()
	require.NoError(t, bot.Start(context.Background()))

	var buy99 string
	for _, id := range bot.activeOrders {
		o, _ := om.GetOrderLocal(id)
		if o.Side == domain.Buy && o.LimitPx.Equal(d("99")) {
			buy99 = id
		}
	}
	require.NotEmpty(t, buy99)

	om.SetBalance("BTC", d("10.5"))
	om.UpdateOrder(buy99, domain.StatusFilled, d("1"))
	bot.CheckFilledOrders(context.Background())

	assert.NotContains(t, bot.activeOrders, buy99, "filled order is untracked even when the hedge is skipped")
	for _, id := range bot.activeOrders {
		o, _ := om.GetOrderLocal(id)
		assert.False(t, o.Side == domain.Sell && o.LimitPx.Equal(d("99.99")), "no hedge should have been placed")
	}
}

// Scenario 6 (DELETE before NEW) belongs to the order book, exercised in
// internal/orderbook; REJECTED/CANCELED here mirror its "terminal removal,
// no hedge" half.
func TestRejectedAndCanceledAreUntrackedWithoutHedge(t *testing.T) {
	bot, om, _ := newTestBot(t, baseCfg())
	bot.LoadExistingOrders()
	require.NoError(t, bot.Start(context.Background()))
	before := len(bot.activeOrders)

	var target string
	for _, id := range bot.activeOrders {
		o, _ := om.GetOrderLocal(id)
		if o.Side == domain.Sell {
			target = id
			break
		}
	}
	require.NotEmpty(t, target)

	om.UpdateOrder(target, domain.StatusCanceled, decimal.Zero)
	bot.CheckFilledOrders(context.Background())

	assert.NotContains(t, bot.activeOrders, target)
	assert.Len(t, bot.activeOrders, before-1)

	var rejected string
	for _, id := range bot.activeOrders {
		o, _ := om.GetOrderLocal(id)
		if o.Side == domain.Buy {
			rejected = id
			break
		}
	}
	require.NotEmpty(t, rejected)

	om.UpdateOrder(rejected, domain.StatusRejected, decimal.Zero)
	bot.CheckFilledOrders(context.Background())

	assert.NotContains(t, bot.activeOrders, rejected)
	assert.Len(t, bot.activeOrders, before-2)
}
