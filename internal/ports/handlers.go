package ports

import "github.com/gridbot/core/internal/domain"

// OrderUpdateHandler is the callback surface the ORD connection holds a weak
// back-reference to. Installed by the Connection Manager after both
// connections are constructed but before the Grid Engine starts, per the
// ownership rule in §3: no cyclic construction-time dependency between the
// ORD connection and the Order Manager.
type OrderUpdateHandler interface {
	// OnSnapshot delivers the one-shot open/terminal order list the WS
	// order connection receives on subscribe.
	OnSnapshot(orders []SnapshotOrder)
	// OnUpdate delivers a single streaming order-state change. clientOrderID
	// carries the client-generated id the order was placed under, when the
	// connection variant knows it, so a handler keyed on that id (the WS
	// variant's provisional cache entry) can rekey to orderID before
	// applying the update. Empty when the variant has no client id to report.
	OnUpdate(orderID, clientOrderID string, status domain.Status, filledQty string)
}

// SnapshotOrder is one entry of the user-channel snapshot, translated just
// enough to drive a SyncOrder call.
type SnapshotOrder struct {
	OrderID    string
	Instrument string
	Side       domain.Side
	Price      string
	Qty        string
	FilledQty  string
	Status     string
}
