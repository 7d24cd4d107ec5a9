package exchange

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gridbot/core/pkg/logger"
)

// maxConsecutiveExceptions is N from §4.C's failure semantics: reaching
// this many consecutive listener exceptions terminates the listener and
// marks the connection disconnected.
const maxConsecutiveExceptions = 100

// wsTransport is the shared frame-opcode dispatch loop for both the
// Market-Data Connection and the WS Order Connection variant, implementing
// the table in §4.B: PING echoes the exact payload as PONG, PONG is
// ignored, CLOSE replies and terminates, TEXT/BINARY are JSON-parsed and
// handed to onMessage, and an empty read terminates the listener.
type wsTransport struct {
	conn      *websocket.Conn
	connected atomic.Bool
	lastMsg   atomic.Int64 // unix nanos

	onMessage func(map[string]any)
}

func newWSTransport(conn *websocket.Conn, onMessage func(map[string]any)) *wsTransport {
	t := &wsTransport{conn: conn, onMessage: onMessage}
	t.connected.Store(true)

	conn.SetPingHandler(func(payload string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(payload), time.Now().Add(5*time.Second))
	})
	conn.SetPongHandler(func(string) error { return nil })
	conn.SetCloseHandler(func(code int, text string) error {
		t.connected.Store(false)
		msg := websocket.FormatCloseMessage(code, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(5*time.Second))
		return nil
	})

	return t
}

// Run blocks, reading frames until the socket closes, a read fails without
// returning any frame data, or the exception budget is exhausted.
func (t *wsTransport) Run() {
	exceptions := 0
	for t.connected.Load() {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || len(data) == 0 {
				t.connected.Store(false)
				return
			}
			exceptions++
			logger.Warnf("exchange: transport read error (%d/%d): %v", exceptions, maxConsecutiveExceptions, err)
			if exceptions >= maxConsecutiveExceptions {
				logger.Errorf("exchange: exceeded %d consecutive transport exceptions, terminating listener", maxConsecutiveExceptions)
				t.connected.Store(false)
				return
			}
			continue
		}
		exceptions = 0
		t.lastMsg.Store(time.Now().UnixNano())

		var parsed map[string]any
		if err := json.Unmarshal(data, &parsed); err != nil {
			logger.Warnf("exchange: dropping malformed JSON message: %v", err)
			continue
		}
		t.onMessage(parsed)
	}
}

func (t *wsTransport) IsConnected() bool { return t.connected.Load() }

func (t *wsTransport) LastMessageTime() time.Time {
	ns := t.lastMsg.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (t *wsTransport) SendJSON(v any) error {
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) Close() error {
	t.connected.Store(false)
	return t.conn.Close()
}
