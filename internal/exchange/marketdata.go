package exchange

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gridbot/core/internal/currency"
	"github.com/gridbot/core/internal/domain"
	"github.com/gridbot/core/internal/orderbook"
	"github.com/gridbot/core/internal/xerrors"
	"github.com/gridbot/core/pkg/logger"
)

// MDConfig carries everything the Market-Data Connection needs to dial and
// authenticate.
type MDConfig struct {
	Host        string // e.g. "advanced-trade-ws.coinbase.com"
	Path        string // WS url path
	Channel     string // e.g. "level2"
	Instruments []string
}

// MarketDataConn maintains the long-lived authenticated WebSocket to the
// exchange's L2 channel (spec component B).
type MarketDataConn struct {
	cfg    MDConfig
	signer *TokenSigner
	book   *orderbook.Book

	mu          sync.Mutex
	instruments map[string]bool

	transport *wsTransport
	proc      *messageProcessor
}

// NewMarketDataConn constructs an unconnected MD connection bound to book,
// the Order Book that L2 updates are published into.
func NewMarketDataConn(cfg MDConfig, signer *TokenSigner, book *orderbook.Book) *MarketDataConn {
	m := &MarketDataConn{
		cfg:         cfg,
		signer:      signer,
		book:        book,
		instruments: make(map[string]bool),
	}
	for _, i := range cfg.Instruments {
		m.instruments[i] = true
	}
	m.proc = newMessageProcessor(defaultKindOf)
	m.proc.Register(cfg.Channel, m.handleL2)
	m.proc.Register("l2_data", m.handleL2)
	m.proc.Register("subscriptions", func(map[string]any) {})
	return m
}

// Connect dials the WS endpoint and sends the initial subscribe frame
// listing every configured instrument. The caller (Connection Manager) is
// responsible for running Listen in its own goroutine so it can join on
// Disconnect.
func (m *MarketDataConn) Connect(ctx context.Context) error {
	u := url.URL{Scheme: "wss", Host: m.cfg.Host, Path: m.cfg.Path}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return xerrors.New(xerrors.Transport, "marketdata.Connect", err)
	}

	m.transport = newWSTransport(conn, m.proc.Dispatch)

	m.mu.Lock()
	ids := make([]string, 0, len(m.instruments))
	for i := range m.instruments {
		ids = append(ids, i)
	}
	m.mu.Unlock()

	return m.sendSubscribe(ids)
}

// Listen blocks, running the frame-dispatch loop until the socket closes.
func (m *MarketDataConn) Listen() {
	if m.transport != nil {
		m.transport.Run()
	}
}

func (m *MarketDataConn) sendSubscribe(productIDs []string) error {
	token, err := m.signer.Sign()
	if err != nil {
		return xerrors.New(xerrors.Auth, "marketdata.sendSubscribe", err)
	}
	frame := map[string]any{
		"type":        "subscribe",
		"channel":     m.cfg.Channel,
		"product_ids": productIDs,
		"jwt":         token,
	}
	if err := m.transport.SendJSON(frame); err != nil {
		return xerrors.New(xerrors.Transport, "marketdata.sendSubscribe", err)
	}
	return nil
}

func (m *MarketDataConn) Disconnect() error {
	if m.transport == nil {
		return nil
	}
	return m.transport.Close()
}

func (m *MarketDataConn) IsConnected() bool {
	return m.transport != nil && m.transport.IsConnected()
}

func (m *MarketDataConn) LastMessageTime() time.Time {
	if m.transport == nil {
		return time.Time{}
	}
	return m.transport.LastMessageTime()
}

// SubscribeInstrument validates symbol against the currency registry,
// updates the instrument set, and sends the subscribe frame. Fails if the
// symbol is invalid or already subscribed.
func (m *MarketDataConn) SubscribeInstrument(symbol string) error {
	cp, err := currency.ParsePair(symbol)
	if err != nil {
		return xerrors.New(xerrors.Validation, "marketdata.SubscribeInstrument", err)
	}
	id := cp.String()

	m.mu.Lock()
	if m.instruments[id] {
		m.mu.Unlock()
		return xerrors.New(xerrors.Validation, "marketdata.SubscribeInstrument", fmt.Errorf("already subscribed to %s", id))
	}
	m.instruments[id] = true
	m.mu.Unlock()

	return m.sendSubscribe([]string{id})
}

// UnsubscribeInstrument validates the symbol is currently subscribed, then
// removes it and sends the unsubscribe frame.
func (m *MarketDataConn) UnsubscribeInstrument(symbol string) error {
	cp, err := currency.ParsePair(symbol)
	if err != nil {
		return xerrors.New(xerrors.Validation, "marketdata.UnsubscribeInstrument", err)
	}
	id := cp.String()

	m.mu.Lock()
	if !m.instruments[id] {
		m.mu.Unlock()
		return xerrors.New(xerrors.Validation, "marketdata.UnsubscribeInstrument", fmt.Errorf("not subscribed to %s", id))
	}
	delete(m.instruments, id)
	m.mu.Unlock()

	token, err := m.signer.Sign()
	if err != nil {
		return xerrors.New(xerrors.Auth, "marketdata.UnsubscribeInstrument", err)
	}
	frame := map[string]any{
		"type":        "unsubscribe",
		"channel":     m.cfg.Channel,
		"product_ids": []string{id},
		"jwt":         token,
	}
	if err := m.transport.SendJSON(frame); err != nil {
		return xerrors.New(xerrors.Transport, "marketdata.UnsubscribeInstrument", err)
	}
	return nil
}

// handleL2 normalizes an l2_data event into Book.ApplyBatch calls, one per
// product_id in the event (a single WS message may cover several
// instruments in one events array; each is its own reconciliation batch so
// endOfMessage is scoped per-instrument as §4.F requires).
func (m *MarketDataConn) handleL2(msg map[string]any) {
	events, _ := msg["events"].([]any)
	for _, ev := range events {
		evm, ok := ev.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := evm["type"].(string); t != "update" {
			continue
		}
		productID, _ := evm["product_id"].(string)
		updatesRaw, _ := evm["updates"].([]any)

		batch := make([]orderbook.RawUpdate, 0, len(updatesRaw))
		for _, u := range updatesRaw {
			um, ok := u.(map[string]any)
			if !ok {
				continue
			}
			side := domain.Ask
			if s, _ := um["side"].(string); s == "bid" {
				side = domain.Bid
			}
			priceLevel, _ := um["price_level"].(string)
			qty := parseFloatAny(um["new_quantity"])
			batch = append(batch, orderbook.RawUpdate{Side: side, PriceLevel: priceLevel, NewQty: qty})
		}
		if len(batch) == 0 {
			continue
		}
		m.book.ApplyBatch(productID, batch)
	}
}

func parseFloatAny(v any) float64 {
	switch x := v.(type) {
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			logger.Warnf("exchange: could not parse quantity %q", x)
			return 0
		}
		return f
	case float64:
		return x
	default:
		return 0
	}
}
