package exchange

import (
	"context"

	"github.com/gridbot/core/internal/orderbook"
	"github.com/gridbot/core/internal/ports"
	"github.com/gridbot/core/internal/xerrors"
	"github.com/gridbot/core/pkg/syncgroup"
)

// orderUpdateSubscriber is satisfied by wsOrderConn; the REST variant has
// no push channel and doesn't implement it.
type orderUpdateSubscriber interface {
	SetOrderUpdateHandler(h ports.OrderUpdateHandler)
}

// listener is satisfied by connections that run a blocking read loop
// (MarketDataConn and wsOrderConn). restOrderConn has no loop to join.
type listener interface {
	Listen()
}

// Manager owns the Market-Data and Order connections for the process
// lifetime (spec component A).
type Manager struct {
	md   *MarketDataConn
	ord  ports.OrderConn
	book *orderbook.Book

	group *syncgroup.SyncGroup
}

// NewManager constructs a Connection Manager over the given connections.
func NewManager(md *MarketDataConn, ord ports.OrderConn, book *orderbook.Book) *Manager {
	return &Manager{md: md, ord: ord, book: book, group: syncgroup.New()}
}

// Connect opens both connections, subscribes, and spawns their listener
// threads under the syncgroup so Disconnect can join them.
func (m *Manager) Connect(ctx context.Context) error {
	if err := m.md.Connect(ctx); err != nil {
		return xerrors.New(xerrors.Transport, "connmanager.Connect", err)
	}
	if err := m.ord.Connect(ctx); err != nil {
		return xerrors.New(xerrors.Transport, "connmanager.Connect", err)
	}

	m.group.Add(m.md.Listen)
	if l, ok := m.ord.(listener); ok {
		m.group.Add(l.Listen)
	}
	m.group.Run()
	return nil
}

// Disconnect closes both connections' sockets, which unblocks their
// listener loops, then joins those goroutines before returning.
func (m *Manager) Disconnect() error {
	var firstErr error
	if err := m.ord.Disconnect(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := m.md.Disconnect(); err != nil && firstErr == nil {
		firstErr = err
	}
	m.group.Wait()
	return firstErr
}

func (m *Manager) MarketDataConnection() *MarketDataConn { return m.md }
func (m *Manager) OrderConnection() ports.OrderConn       { return m.ord }
func (m *Manager) Book() *orderbook.Book                  { return m.book }

// SetOrderManager installs the back reference the ORD connection uses for
// callback delivery (the weak/back-reference pattern in §3 that avoids
// cyclic ownership). A no-op if the active order-connection variant has no
// push channel (the REST variant).
func (m *Manager) SetOrderManager(h ports.OrderUpdateHandler) {
	if sub, ok := m.ord.(orderUpdateSubscriber); ok {
		sub.SetOrderUpdateHandler(h)
	}
}
