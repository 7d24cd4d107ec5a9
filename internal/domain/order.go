// Package domain holds the exchange-independent value types shared across
// the connection, order-manager, grid, and order-book layers.
package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridbot/core/internal/currency"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the other side, used when deriving a hedge order.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Status is the lifecycle state of an Order. FILLED, CANCELED, REJECTED and
// EXPIRED are terminal; no transition leaves a terminal state.
type Status string

const (
	StatusNew             Status = "NEW"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCanceled        Status = "CANCELED"
	StatusRejected        Status = "REJECTED"
	StatusExpired         Status = "EXPIRED"
)

// Terminal reports whether status has no outgoing transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// ParseExchangeStatus translates an exchange status string to the internal
// enum per the 1:1 table in the order-connection contract. Unknown strings
// default to NEW with the caller expected to log a warning.
func ParseExchangeStatus(s string) (Status, bool) {
	switch s {
	case "OPEN", "PENDING":
		return StatusNew, true
	case "PARTIALLY_FILLED":
		return StatusPartiallyFilled, true
	case "FILLED", "DONE":
		return StatusFilled, true
	case "CANCELLED", "CANCELED":
		return StatusCanceled, true
	case "REJECTED", "FAILED":
		return StatusRejected, true
	case "EXPIRED":
		return StatusExpired, true
	default:
		return StatusNew, false
	}
}

// Order is the immutable-identity, mutable-state record the Order Manager
// keeps for every order it knows about. OrderID is the key under which the
// Order Manager's cache stores the order; for the WS order-connection
// variant this may start out as the client order id and later be rekeyed
// to the exchange-assigned id (see ordermanager.Manager.Rekey).
type Order struct {
	OrderID       string
	ClientOrderID string
	Instrument    currency.Pair
	Side          Side
	OrigQty       decimal.Decimal
	LimitPx       decimal.Decimal

	Status    Status
	FilledQty decimal.Decimal

	CreatedAt time.Time
}

// Clone returns a value copy safe to hand to a caller outside the Order
// Manager's lock.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	return &cp
}

// Remaining returns OrigQty - FilledQty, clamped to zero.
func (o *Order) Remaining() decimal.Decimal {
	r := o.OrigQty.Sub(o.FilledQty)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// Balance is a simple non-negative (in normal operation) currency balance
// map, owned exclusively by the Order Manager.
type Balance map[currency.Currency]decimal.Decimal
