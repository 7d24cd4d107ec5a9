// Package ordermanager is the single source of truth for the local order
// cache and asset balances (spec component D). Every public method acquires
// one mutex guarding both maps.
package ordermanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridbot/core/internal/currency"
	"github.com/gridbot/core/internal/domain"
	"github.com/gridbot/core/internal/ports"
	"github.com/gridbot/core/pkg/logger"
)

// Manager implements ports.OrderManager.
type Manager struct {
	mu      sync.Mutex
	orders  map[string]*domain.Order
	balance domain.Balance

	conn ports.OrderConn
	book ports.BestPriceGetter
}

// New constructs a Manager bound to conn (the active order connection
// variant) and book (for get_current_market_price).
func New(conn ports.OrderConn, book ports.BestPriceGetter) *Manager {
	return &Manager{
		orders:  make(map[string]*domain.Order),
		balance: make(domain.Balance),
		conn:    conn,
		book:    book,
	}
}

// PlaceLimitOrder routes to the active order connection; on success it
// constructs an Order with status NEW, filled=0 and inserts it into the
// cache under the id the connection returns (the provisional client id for
// the WS variant, the server id for REST).
func (m *Manager) PlaceLimitOrder(ctx context.Context, cp currency.Pair, side domain.Side, price, qty decimal.Decimal) (string, error) {
	orderID, err := m.conn.SendOrder(ctx, cp, side, price, qty)
	if err != nil || orderID == "" {
		logger.Warnf("ordermanager: place order failed for %s %s@%s: %v", side, cp, price, err)
		return "", err
	}

	m.mu.Lock()
	m.orders[orderID] = &domain.Order{
		OrderID:    orderID,
		Instrument: cp,
		Side:       side,
		OrigQty:    qty,
		LimitPx:    price,
		Status:     domain.StatusNew,
		FilledQty:  decimal.Zero,
		CreatedAt:  time.Now(),
	}
	m.mu.Unlock()

	return orderID, nil
}

// CancelOrder marks a non-terminal order CANCELED, removes it from the
// cache, and forwards the cancel to the connection. Returns false if the
// order is unknown or already terminal.
func (m *Manager) CancelOrder(ctx context.Context, cp currency.Pair, orderID string) bool {
	m.mu.Lock()
	o, ok := m.orders[orderID]
	if !ok || o.Status.Terminal() {
		m.mu.Unlock()
		return false
	}
	delete(m.orders, orderID)
	m.mu.Unlock()

	if err := m.conn.CancelOrder(ctx, orderID); err != nil {
		logger.Warnf("ordermanager: cancel order %s failed: %v", orderID, err)
	}
	return true
}

// GetOrder re-queries the exchange when the underlying connection supports
// it (the REST variant), refreshing the cached status/filled; for the WS
// variant this falls back to the cached copy, per §4.D's note that
// GetOrderLocal is preferred there.
func (m *Manager) GetOrder(ctx context.Context, cp currency.Pair, orderID string) (*domain.Order, bool) {
	fresh, err := m.conn.QueryOrder(ctx, orderID)
	if err != nil {
		logger.Warnf("ordermanager: query order %s failed, falling back to cache: %v", orderID, err)
		return m.GetOrderLocal(orderID)
	}
	if fresh == nil {
		return m.GetOrderLocal(orderID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.orders[orderID]; ok {
		existing.Status = fresh.Status
		existing.FilledQty = fresh.FilledQty
		return existing.Clone(), true
	}
	m.orders[orderID] = fresh
	return fresh.Clone(), true
}

// GetOrderLocal is a pure cache read.
func (m *Manager) GetOrderLocal(orderID string) (*domain.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// UpdateOrder unconditionally overwrites status/filled on an existing
// order. Callers that learn a server id differs from the client id an
// order was placed under must call Rekey first, or this no-ops with an
// unknown-order warning.
func (m *Manager) UpdateOrder(orderID string, status domain.Status, filled decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		logger.Warnf("ordermanager: update for unknown order id %s", orderID)
		return
	}
	o.Status = status
	o.FilledQty = filled
}

// Rekey moves a cache entry from a provisional client-generated id to the
// exchange-assigned server id, once the user stream echoes it. A no-op if
// oldID is unknown or newID already matches oldID.
func (m *Manager) Rekey(oldID, newID string) {
	if oldID == newID {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[oldID]
	if !ok {
		return
	}
	delete(m.orders, oldID)
	o.OrderID = newID
	m.orders[newID] = o
}

// SyncOrder upserts: creates a new Order if absent, otherwise overwrites
// status and filled only — identity fields are never changed on an
// existing entry.
func (m *Manager) SyncOrder(orderID string, cp currency.Pair, side domain.Side, price, qty decimal.Decimal, status domain.Status, filled decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[orderID]; ok {
		o.Status = status
		o.FilledQty = filled
		return
	}
	m.orders[orderID] = &domain.Order{
		OrderID:    orderID,
		Instrument: cp,
		Side:       side,
		OrigQty:    qty,
		LimitPx:    price,
		Status:     status,
		FilledQty:  filled,
		CreatedAt:  time.Now(),
	}
}

// GetAllOrders returns a full copy of the cache, taken under the lock, so
// callers can iterate without holding it.
func (m *Manager) GetAllOrders() map[string]*domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*domain.Order, len(m.orders))
	for id, o := range m.orders {
		out[id] = o.Clone()
	}
	return out
}

func (m *Manager) GetBalance(c currency.Currency) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance[c]
}

func (m *Manager) SetBalance(c currency.Currency, v decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance[c] = v
}

// InitializeBalances pulls account balances from the order connection.
// Currency strings the registry doesn't recognize are skipped with a debug
// log rather than failing the whole fetch.
func (m *Manager) InitializeBalances(ctx context.Context) error {
	bal, err := m.conn.GetAccountBalances(ctx)
	if err != nil {
		return fmt.Errorf("ordermanager: initialize balances: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for c, v := range bal {
		if !currency.Registered(c) {
			logger.Debugf("ordermanager: skipping unregistered balance currency %s", c)
			continue
		}
		m.balance[c] = v
	}
	return nil
}

func (m *Manager) PrintBalances() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for c, v := range m.balance {
		logger.Infof("balance: %s = %s", c, v.String())
	}
}

// GetCurrentMarketPrice reads the best bid/ask from the Order Book and
// returns the midpoint, or zero if the book has no two-sided market yet.
func (m *Manager) GetCurrentMarketPrice(cp currency.Pair) decimal.Decimal {
	bid, ask, err := m.book.GetBestPrice(context.Background(), cp)
	if err != nil {
		return decimal.Zero
	}
	return bid.Add(ask).Div(decimal.NewFromInt(2))
}
