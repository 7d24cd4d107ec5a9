package exchange

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/gridbot/core/internal/currency"
	"github.com/gridbot/core/internal/domain"
	"github.com/gridbot/core/internal/ports"
	"github.com/gridbot/core/internal/xerrors"
	"github.com/gridbot/core/pkg/logger"
)

// ORDConfig carries what both order-connection variants need to reach the
// exchange.
type ORDConfig struct {
	Host        string // WS host, e.g. "advanced-trade-ws.coinbase.com"
	Path        string
	Channel     string // "user"
	OrdersHTTP  string // REST host, e.g. "api.coinbase.com"
	Instruments []string
}

// wsOrderConn is the push-based Order Connection variant: it subscribes to
// the user channel, synthesizes a synchronous response on SendOrder, and
// relays streaming updates to the installed OrderUpdateHandler.
type wsOrderConn struct {
	cfg    ORDConfig
	signer *TokenSigner
	rest   *restClient

	transport *wsTransport
	proc      *messageProcessor

	mu      sync.Mutex
	handler ports.OrderUpdateHandler
}

// NewWSOrderConn constructs an unconnected WS order connection.
func NewWSOrderConn(cfg ORDConfig, signer *TokenSigner) *wsOrderConn {
	c := &wsOrderConn{
		cfg:    cfg,
		signer: signer,
		rest:   newRESTClient(cfg.OrdersHTTP, signer),
	}
	c.proc = newMessageProcessor(defaultKindOf)
	c.proc.Register(cfg.Channel, c.handleUserChannel)
	c.proc.Register("subscriptions", func(map[string]any) {})
	c.proc.Register("error", c.handleError)
	return c
}

// SetOrderUpdateHandler installs the weak back-reference to the Order
// Manager. Per §4.A this happens after both connections exist but before
// the Grid Engine starts.
func (c *wsOrderConn) SetOrderUpdateHandler(h ports.OrderUpdateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *wsOrderConn) Connect(ctx context.Context) error {
	u := url.URL{Scheme: "wss", Host: c.cfg.Host, Path: c.cfg.Path}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return xerrors.New(xerrors.Transport, "order_ws.Connect", err)
	}
	c.transport = newWSTransport(conn, c.proc.Dispatch)

	token, err := c.signer.Sign()
	if err != nil {
		return xerrors.New(xerrors.Auth, "order_ws.Connect", err)
	}
	frame := map[string]any{
		"type":        "subscribe",
		"channel":     c.cfg.Channel,
		"product_ids": c.cfg.Instruments,
		"jwt":         token,
	}
	if err := c.transport.SendJSON(frame); err != nil {
		return xerrors.New(xerrors.Transport, "order_ws.Connect", err)
	}

	return nil
}

// Listen blocks, running the frame-dispatch loop until the socket closes.
// Only the WS variant has a loop to run; the REST variant has no equivalent.
func (c *wsOrderConn) Listen() {
	if c.transport != nil {
		c.transport.Run()
	}
}

func (c *wsOrderConn) Disconnect() error {
	if c.transport == nil {
		return nil
	}
	return c.transport.Close()
}

func (c *wsOrderConn) IsConnected() bool { return c.transport != nil && c.transport.IsConnected() }

// SendOrder constructs a signed JSON frame with a time-ordered
// client-generated client_order_id and transmits it, then returns
// immediately per §4.C — the synthetic synchronous response is exactly the
// client id, which the Order Manager inserts the new order under.
func (c *wsOrderConn) SendOrder(ctx context.Context, cp currency.Pair, side domain.Side, price, qty decimal.Decimal) (string, error) {
	clientOrderID := uuid.Must(uuid.NewV7()).String()

	token, err := c.signer.Sign()
	if err != nil {
		logger.Warnf("order_ws: SendOrder auth failed: %v", err)
		return "", xerrors.New(xerrors.Auth, "order_ws.SendOrder", err)
	}

	payload := map[string]any{
		"client_order_id": clientOrderID,
		"product_id":      cp.String(),
		"side":            string(side),
		"order_configuration": map[string]any{
			"limit_limit_gtc": map[string]any{
				"base_size":   qty.String(),
				"limit_price": price.String(),
				"post_only":   false,
			},
		},
	}
	frame := map[string]any{
		"type":    "order",
		"channel": c.cfg.Channel,
		"jwt":     token,
		"order":   payload,
	}
	if err := c.transport.SendJSON(frame); err != nil {
		logger.Warnf("order_ws: SendOrder transport failed: %v", err)
		return "", xerrors.New(xerrors.Transport, "order_ws.SendOrder", err)
	}

	return clientOrderID, nil
}

func (c *wsOrderConn) CancelOrder(ctx context.Context, orderID string) error {
	token, err := c.signer.Sign()
	if err != nil {
		return xerrors.New(xerrors.Auth, "order_ws.CancelOrder", err)
	}
	frame := map[string]any{
		"type":      "cancel",
		"channel":   c.cfg.Channel,
		"jwt":       token,
		"order_ids": []string{orderID},
	}
	if err := c.transport.SendJSON(frame); err != nil {
		return xerrors.New(xerrors.Transport, "order_ws.CancelOrder", err)
	}
	return nil
}

// QueryOrder is unsupported on the push variant; Order Manager falls back
// to its cached copy, per §4.D's "get_order_local is preferred" note.
func (c *wsOrderConn) QueryOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return nil, errors.New("order_ws: query_order not supported, use cached view")
}

func (c *wsOrderConn) GetAccountBalances(ctx context.Context) (domain.Balance, error) {
	return c.rest.GetAccountBalances(ctx)
}

func (c *wsOrderConn) handleUserChannel(msg map[string]any) {
	events, _ := msg["events"].([]any)
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h == nil {
		return
	}

	for _, ev := range events {
		evm, ok := ev.(map[string]any)
		if !ok {
			continue
		}
		if snap, ok := evm["orders"].([]any); ok && asStr(evm["type"]) == "snapshot" {
			h.OnSnapshot(parseSnapshot(snap))
			continue
		}
		if updates, ok := evm["orders"].([]any); ok {
			for _, u := range updates {
				um, ok := u.(map[string]any)
				if !ok {
					continue
				}
				orderID := asStr(um["order_id"])
				clientOrderID := asStr(um["client_order_id"])
				statusStr := asStr(um["status"])
				status, known := domain.ParseExchangeStatus(statusStr)
				if !known {
					logger.Warnf("order_ws: unknown order status %q, defaulting to NEW", statusStr)
				}
				h.OnUpdate(orderID, clientOrderID, status, asStr(um["cumulative_quantity"]))
			}
		}
	}
}

func (c *wsOrderConn) handleError(msg map[string]any) {
	logger.Errorf("order_ws: protocol error from exchange: %v", msg)
}

func parseSnapshot(raw []any) []ports.SnapshotOrder {
	out := make([]ports.SnapshotOrder, 0, len(raw))
	for _, r := range raw {
		rm, ok := r.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, ports.SnapshotOrder{
			OrderID:    asStr(rm["order_id"]),
			Instrument: asStr(rm["product_id"]),
			Side:       domain.Side(asStr(rm["side"])),
			Price:      asStr(rm["limit_price"]),
			Qty:        asStr(rm["base_size"]),
			FilledQty:  asStr(rm["cumulative_quantity"]),
			Status:     asStr(rm["status"]),
		})
	}
	return out
}

func asStr(v any) string {
	s, _ := v.(string)
	return s
}
