// Package grid implements the per-instrument grid engine: planning the
// lattice of resting orders around a reference price, reconciling it
// against whatever is already open on the exchange at startup, and
// replacing every fill with a mirrored order one step further out.
package grid

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/gridbot/core/internal/currency"
	"github.com/gridbot/core/internal/domain"
	"github.com/gridbot/core/internal/ports"
	"github.com/gridbot/core/pkg/logger"
	"github.com/gridbot/core/pkg/roundtick"
)

// tolerance is the relative price-matching band used to recognize an
// existing order as an already-placed grid level (absorbs historical fills
// landing at rounded prices rather than the exact geometric price).
const tolerance = 0.01

type orderDetail struct {
	side  domain.Side
	price decimal.Decimal
	qty   decimal.Decimal
}

// GridBot runs the state machine for a single (name, instrument) grid
// configuration. Its state is owned exclusively by whatever goroutine
// calls CheckFilledOrders (the Market-Data listener, via the Order Book's
// tick callback) — it holds no lock of its own.
type GridBot struct {
	cfg Config
	cp  currency.Pair
	om  ports.OrderManager

	activeOrders []string
	orderDetails map[string]orderDetail
	knownFills   map[string]decimal.Decimal
}

// NewGridBot constructs a GridBot for cfg, backed by om for order
// placement, cancellation, and balance reads.
func NewGridBot(cfg Config, om ports.OrderManager) (*GridBot, error) {
	cp, err := currency.ParsePair(cfg.Instrument)
	if err != nil {
		return nil, fmt.Errorf("grid: bot %q: %w", cfg.Name, err)
	}
	return &GridBot{
		cfg:          cfg,
		cp:           cp,
		om:           om,
		orderDetails: make(map[string]orderDetail),
		knownFills:   make(map[string]decimal.Decimal),
	}, nil
}

// Instrument returns the "BASE/QUOTE" symbol this bot manages.
func (b *GridBot) Instrument() string { return b.cfg.Instrument }

// LoadExistingOrders seeds activeOrders/orderDetails from every NEW order
// the Order Manager already knows about for this instrument — reconstructed
// from the exchange's snapshot on connect. Run once, before Start.
func (b *GridBot) LoadExistingOrders() {
	for orderID, o := range b.om.GetAllOrders() {
		if o.Instrument != b.cp || o.Status != domain.StatusNew {
			continue
		}
		b.activeOrders = append(b.activeOrders, orderID)
		b.orderDetails[orderID] = orderDetail{side: o.Side, price: o.LimitPx, qty: o.OrigQty}
	}
	logger.Infof("grid[%s]: loaded %d existing orders", b.cfg.Name, len(b.activeOrders))
}

// Start places whatever grid levels aren't already covered by a loaded
// order. A no-op when create_position=false (intra-day restart: rely on
// whatever LoadExistingOrders found). Resolves base_price dynamically from
// the Order Book midpoint when configured as 0.
func (b *GridBot) Start(ctx context.Context) error {
	if !b.cfg.CreatePosition {
		logger.Infof("grid[%s]: create_position=false, skipping initial placement", b.cfg.Name)
		return nil
	}

	base := b.cfg.BasePrice
	if base.IsZero() {
		base = b.om.GetCurrentMarketPrice(b.cp)
		if base.IsZero() {
			return fmt.Errorf("grid[%s]: base_price=0 and current market price unavailable", b.cfg.Name)
		}
		logger.Infof("grid[%s]: resolved dynamic base price %s", b.cfg.Name, base)
	}

	buyLevels := b.expectedLevels(base, b.cfg.LevelsBelow, -1)
	sellLevels := b.expectedLevels(base, b.cfg.LevelsAbove, 1)
	placed := make(map[*decimal.Decimal]bool)

	b.markPlaced(buyLevels, domain.Buy, placed)
	b.markPlaced(sellLevels, domain.Sell, placed)

	newOrders := 0
	newOrders += b.placeMissing(ctx, buyLevels, domain.Buy, placed)
	newOrders += b.placeMissing(ctx, sellLevels, domain.Sell, placed)

	logger.Infof("grid[%s]: start complete, %d existing + %d new = %d active orders",
		b.cfg.Name, len(b.activeOrders)-newOrders, newOrders, len(b.activeOrders))
	return nil
}

// expectedLevels returns the n geometric levels base*(1+sign*step*i) for
// i in 1..n, as pointers so markPlaced/placeMissing can key a "seen" set
// on level identity.
func (b *GridBot) expectedLevels(base decimal.Decimal, n int, sign int64) []*decimal.Decimal {
	levels := make([]*decimal.Decimal, 0, n)
	for i := 1; i <= n; i++ {
		step := b.cfg.StepPercent.Mul(decimal.NewFromInt(int64(i) * sign))
		price := base.Mul(decimal.NewFromInt(1).Add(step))
		levels = append(levels, &price)
	}
	return levels
}

func (b *GridBot) markPlaced(levels []*decimal.Decimal, side domain.Side, placed map[*decimal.Decimal]bool) {
	for _, orderID := range b.activeOrders {
		d, ok := b.orderDetails[orderID]
		if !ok || d.side != side {
			continue
		}
		for _, lvl := range levels {
			if placed[lvl] {
				continue
			}
			if withinTolerance(d.price, *lvl) {
				placed[lvl] = true
				logger.Infof("grid[%s]: existing %s order %s at %s matches level %s", b.cfg.Name, side, orderID, d.price, *lvl)
				break
			}
		}
	}
}

func (b *GridBot) placeMissing(ctx context.Context, levels []*decimal.Decimal, side domain.Side, placed map[*decimal.Decimal]bool) int {
	n := 0
	for _, lvl := range levels {
		if placed[lvl] {
			continue
		}
		orderID, err := b.om.PlaceLimitOrder(ctx, b.cp, side, *lvl, b.cfg.PercentOrderQty)
		if err != nil || orderID == "" {
			logger.Warnf("grid[%s]: failed to place %s level %s: %v", b.cfg.Name, side, *lvl, err)
			continue
		}
		b.track(orderID, side, *lvl, b.cfg.PercentOrderQty)
		n++
		logger.Infof("grid[%s]: placed new %s order %s at %s", b.cfg.Name, side, orderID, *lvl)
	}
	return n
}

// withinTolerance reports whether a and b differ by less than the 1%
// relative tolerance §4.E requires for startup level matching.
func withinTolerance(a, b decimal.Decimal) bool {
	if b.IsZero() {
		return a.IsZero()
	}
	diff := a.Sub(b).Abs()
	return diff.Div(b).LessThan(decimal.NewFromFloat(tolerance))
}

func (b *GridBot) track(orderID string, side domain.Side, price, qty decimal.Decimal) {
	b.activeOrders = append(b.activeOrders, orderID)
	b.orderDetails[orderID] = orderDetail{side: side, price: price, qty: qty}
}

func (b *GridBot) untrack(orderID string) {
	b.activeOrders = removeString(b.activeOrders, orderID)
	delete(b.orderDetails, orderID)
	delete(b.knownFills, orderID)
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// CheckFilledOrders is the reconciliation tick, driven by the Order Book
// after each batch of L2 updates. Removal of terminal orders is deferred
// to after the loop to preserve iterator stability over activeOrders.
func (b *GridBot) CheckFilledOrders(ctx context.Context) {
	var toRemove []string

	for _, orderID := range b.activeOrders {
		order, ok := b.om.GetOrderLocal(orderID)
		if !ok {
			continue
		}
		detail, ok := b.orderDetails[orderID]
		if !ok {
			continue
		}

		switch order.Status {
		case domain.StatusFilled:
			b.hedge(ctx, orderID, detail, detail.qty)
			toRemove = append(toRemove, orderID)

		case domain.StatusPartiallyFilled:
			known := b.knownFills[orderID]
			delta := order.FilledQty.Sub(known)
			if roundtick.ExceedsEpsilon(delta, b.cfg.Tick) {
				b.knownFills[orderID] = order.FilledQty
				b.hedge(ctx, orderID, detail, delta)
			}

		case domain.StatusRejected, domain.StatusCanceled:
			toRemove = append(toRemove, orderID)
		}
	}

	for _, orderID := range toRemove {
		b.untrack(orderID)
	}
}

// hedge places the mirrored opposite-side order for qty of a fill at
// detail's price, guarded by the capital/position checks §4.E requires.
// Per the resolved reading of Open Question (ii), max_position is checked
// against the balance *before* the hedge is placed (pre-hedge).
func (b *GridBot) hedge(ctx context.Context, orderID string, detail orderDetail, qty decimal.Decimal) {
	step := b.cfg.StepPercent

	if detail.side == domain.Buy {
		sellPrice := detail.price.Mul(decimal.NewFromInt(1).Add(step))
		base := b.om.GetBalance(b.cp.Base)
		if base.GreaterThan(roundtick.Tick(b.cfg.MaxPosition, b.cfg.Tick)) {
			logger.Warnf("grid[%s]: max position exceeded, not placing hedge SELL for %s", b.cfg.Name, orderID)
			return
		}
		newID, err := b.om.PlaceLimitOrder(ctx, b.cp, domain.Sell, sellPrice, qty)
		if err != nil || newID == "" {
			logger.Warnf("grid[%s]: hedge SELL for %s failed: %v", b.cfg.Name, orderID, err)
			return
		}
		b.track(newID, domain.Sell, sellPrice, qty)
		profit := detail.price.Mul(step).Mul(qty)
		logger.Infof("grid[%s]: BUY %s filled at %s, hedge SELL %s at %s, expected profit %s",
			b.cfg.Name, orderID, detail.price, newID, sellPrice, profit)
		return
	}

	buyPrice := detail.price.Mul(decimal.NewFromInt(1).Sub(step))
	quote := b.om.GetBalance(b.cp.Quote)
	cost := buyPrice.Mul(qty)
	if roundtick.Tick(quote, b.cfg.Tick).LessThan(cost) {
		logger.Warnf("grid[%s]: insufficient quote balance, not placing hedge BUY for %s", b.cfg.Name, orderID)
		return
	}
	newID, err := b.om.PlaceLimitOrder(ctx, b.cp, domain.Buy, buyPrice, qty)
	if err != nil || newID == "" {
		logger.Warnf("grid[%s]: hedge BUY for %s failed: %v", b.cfg.Name, orderID, err)
		return
	}
	b.track(newID, domain.Buy, buyPrice, qty)
	profit := detail.price.Mul(step).Mul(qty)
	logger.Infof("grid[%s]: SELL %s filled at %s, hedge BUY %s at %s, expected profit %s",
		b.cfg.Name, orderID, detail.price, newID, buyPrice, profit)
}

// Status returns a snapshot line per active order, for Strategy.Status.
func (b *GridBot) Status() []string {
	lines := make([]string, 0, len(b.activeOrders))
	for _, orderID := range b.activeOrders {
		d := b.orderDetails[orderID]
		lines = append(lines, fmt.Sprintf("%s: %s %s @%s qty=%s", b.cfg.Name, orderID, d.side, d.price, d.qty))
	}
	return lines
}
