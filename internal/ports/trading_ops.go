package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/gridbot/core/internal/currency"
	"github.com/gridbot/core/internal/domain"
)

// OrderConn is the capability set both order-connection variants satisfy:
// send, cancel, query, subscribe_user. The WS variant and the REST variant
// each implement this single interface so the rest of the system never
// downcasts to a concrete type.
type OrderConn interface {
	OrderPlacer
	OrderCanceler
	OrderQuerier
	BalanceGetter

	// Connect opens the session (and, for the WS variant, subscribes the
	// user channel for the configured product ids).
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
}

// OrderPlacer sends a new limit order and returns the id the caller should
// track it under (client id for the WS push variant, server id for REST).
type OrderPlacer interface {
	SendOrder(ctx context.Context, cp currency.Pair, side domain.Side, price, qty decimal.Decimal) (orderID string, err error)
}

// OrderCanceler cancels a previously placed order.
type OrderCanceler interface {
	CancelOrder(ctx context.Context, orderID string) error
}

// OrderQuerier re-queries a single order's exchange-side state (REST). The
// WS variant returns an error instead, and the Order Manager falls back to
// its cached view.
type OrderQuerier interface {
	QueryOrder(ctx context.Context, orderID string) (*domain.Order, error)
}

// BalanceGetter fetches account balances, used by Order Manager's
// initialize_balances.
type BalanceGetter interface {
	GetAccountBalances(ctx context.Context) (domain.Balance, error)
}

// BestPriceGetter returns the current best bid/ask for an instrument. The
// Order Manager uses this (backed by the Order Book) to compute
// get_current_market_price.
type BestPriceGetter interface {
	GetBestPrice(ctx context.Context, cp currency.Pair) (bestBid, bestAsk decimal.Decimal, err error)
}

// OrderManager is the read-capable surface the Grid Engine depends on. It
// is the same interface ordermanager.Manager implements; kept here so grid
// and exchange packages don't import each other through a concrete type.
type OrderManager interface {
	PlaceLimitOrder(ctx context.Context, cp currency.Pair, side domain.Side, price, qty decimal.Decimal) (string, error)
	CancelOrder(ctx context.Context, cp currency.Pair, orderID string) bool
	GetOrder(ctx context.Context, cp currency.Pair, orderID string) (*domain.Order, bool)
	GetOrderLocal(orderID string) (*domain.Order, bool)
	UpdateOrder(orderID string, status domain.Status, filled decimal.Decimal)
	SyncOrder(orderID string, cp currency.Pair, side domain.Side, price, qty decimal.Decimal, status domain.Status, filled decimal.Decimal)
	GetAllOrders() map[string]*domain.Order
	GetBalance(c currency.Currency) decimal.Decimal
	SetBalance(c currency.Currency, v decimal.Decimal)
	InitializeBalances(ctx context.Context) error
	GetCurrentMarketPrice(cp currency.Pair) decimal.Decimal
}
