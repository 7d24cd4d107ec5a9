package ordermanager

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbot/core/internal/currency"
	"github.com/gridbot/core/internal/domain"
)

type fakeConn struct {
	sendID   string
	sendErr  error
	canceled []string
	balances domain.Balance
	balErr   error
	queried  *domain.Order
}

func (f *fakeConn) Connect(ctx context.Context) error { return nil }
func (f *fakeConn) Disconnect() error                 { return nil }
func (f *fakeConn) IsConnected() bool                 { return true }

func (f *fakeConn) SendOrder(ctx context.Context, cp currency.Pair, side domain.Side, price, qty decimal.Decimal) (string, error) {
	return f.sendID, f.sendErr
}
func (f *fakeConn) CancelOrder(ctx context.Context, orderID string) error {
	f.canceled = append(f.canceled, orderID)
	return nil
}
func (f *fakeConn) QueryOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return f.queried, nil
}
func (f *fakeConn) GetAccountBalances(ctx context.Context) (domain.Balance, error) {
	return f.balances, f.balErr
}

type fakeBook struct {
	bid, ask decimal.Decimal
}

func (f *fakeBook) GetBestPrice(ctx context.Context, cp currency.Pair) (decimal.Decimal, decimal.Decimal, error) {
	return f.bid, f.ask, nil
}

func init() {
	if !currency.Initialized() {
		currency.Init([]string{"BTC", "USD"})
	}
}

func pair(t *testing.T) currency.Pair {
	p, err := currency.NewPair("BTC", "USD")
	require.NoError(t, err)
	return p
}

func TestPlaceLimitOrder_InsertsUnderReturnedID(t *testing.T) {
	conn := &fakeConn{sendID: "cid-1"}
	m := New(conn, &fakeBook{})
	cp := pair(t)

	id, err := m.PlaceLimitOrder(context.Background(), cp, domain.Buy, decimal.NewFromInt(100), decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, "cid-1", id)

	o, ok := m.GetOrderLocal("cid-1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusNew, o.Status)
	assert.True(t, o.FilledQty.IsZero())
}

func TestPlaceLimitOrder_EmptyIDOnFailure(t *testing.T) {
	conn := &fakeConn{sendID: ""}
	m := New(conn, &fakeBook{})
	id, err := m.PlaceLimitOrder(context.Background(), pair(t), domain.Buy, decimal.NewFromInt(100), decimal.NewFromInt(1))
	assert.NoError(t, err)
	assert.Equal(t, "", id)
	assert.Len(t, m.GetAllOrders(), 0)
}

func TestCancelOrder_UnknownReturnsFalse(t *testing.T) {
	m := New(&fakeConn{}, &fakeBook{})
	assert.False(t, m.CancelOrder(context.Background(), pair(t), "nope"))
}

func TestCancelOrder_RemovesAndForwards(t *testing.T) {
	conn := &fakeConn{sendID: "id-1"}
	m := New(conn, &fakeBook{})
	id, _ := m.PlaceLimitOrder(context.Background(), pair(t), domain.Buy, decimal.NewFromInt(100), decimal.NewFromInt(1))

	ok := m.CancelOrder(context.Background(), pair(t), id)
	assert.True(t, ok)
	assert.Contains(t, conn.canceled, id)
	_, stillThere := m.GetOrderLocal(id)
	assert.False(t, stillThere)
}

func TestRekey_MovesProvisionalIDToServerID(t *testing.T) {
	conn := &fakeConn{sendID: "client-123"}
	m := New(conn, &fakeBook{})
	m.PlaceLimitOrder(context.Background(), pair(t), domain.Buy, decimal.NewFromInt(100), decimal.NewFromInt(1))

	m.Rekey("client-123", "server-456")

	_, ok := m.GetOrderLocal("client-123")
	assert.False(t, ok)
	o, ok := m.GetOrderLocal("server-456")
	require.True(t, ok)
	assert.Equal(t, "server-456", o.OrderID)
}

func TestSyncOrder_UpsertNeverChangesIdentity(t *testing.T) {
	m := New(&fakeConn{}, &fakeBook{})
	cp := pair(t)
	m.SyncOrder("sid-1", cp, domain.Buy, decimal.NewFromInt(100), decimal.NewFromInt(2), domain.StatusNew, decimal.Zero)
	m.SyncOrder("sid-1", cp, domain.Sell, decimal.NewFromInt(999), decimal.NewFromInt(999), domain.StatusPartiallyFilled, decimal.NewFromFloat(0.5))

	o, ok := m.GetOrderLocal("sid-1")
	require.True(t, ok)
	assert.Equal(t, domain.Buy, o.Side, "identity fields must not change on upsert of existing order")
	assert.Equal(t, "100", o.LimitPx.String())
	assert.Equal(t, domain.StatusPartiallyFilled, o.Status)
	assert.Equal(t, "0.5", o.FilledQty.String())
}

func TestInitializeBalances_SkipsUnregisteredCurrency(t *testing.T) {
	conn := &fakeConn{balances: domain.Balance{
		"BTC": decimal.NewFromInt(3),
		"XYZ": decimal.NewFromInt(99),
	}}
	m := New(conn, &fakeBook{})
	require.NoError(t, m.InitializeBalances(context.Background()))
	assert.Equal(t, "3", m.GetBalance("BTC").String())
	assert.True(t, m.GetBalance("XYZ").IsZero())
}

func TestGetCurrentMarketPrice_Midpoint(t *testing.T) {
	m := New(&fakeConn{}, &fakeBook{bid: decimal.NewFromInt(100), ask: decimal.NewFromInt(102)})
	assert.Equal(t, "101", m.GetCurrentMarketPrice(pair(t)).String())
}
