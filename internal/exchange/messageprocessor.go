package exchange

import "github.com/gridbot/core/pkg/logger"

// kindFunc extracts a message-kind key from a parsed JSON message by
// examining, in order, channel -> type -> "unknown" — the pluggable
// classifier the Message Processor dispatches on (§4.B).
type kindFunc func(msg map[string]any) string

// handlerFunc processes one message of a given kind. Handlers must be
// idempotent and must not block; long work should be queued elsewhere.
type handlerFunc func(msg map[string]any)

// messageProcessor is a registry keyed by message-kind, mirroring the
// GetMessageProcessor().Register(...) pattern the order connection uses.
type messageProcessor struct {
	kindOf   kindFunc
	handlers map[string]handlerFunc
}

func newMessageProcessor(kindOf kindFunc) *messageProcessor {
	return &messageProcessor{kindOf: kindOf, handlers: make(map[string]handlerFunc)}
}

func (p *messageProcessor) Register(kind string, h handlerFunc) {
	p.handlers[kind] = h
}

func (p *messageProcessor) Dispatch(msg map[string]any) {
	kind := p.kindOf(msg)
	h, ok := p.handlers[kind]
	if !ok {
		logger.Debugf("exchange: no handler registered for message kind %q", kind)
		return
	}
	h(msg)
}

// defaultKindOf implements "examine channel -> type -> unknown".
func defaultKindOf(msg map[string]any) string {
	if ch, ok := msg["channel"].(string); ok && ch != "" {
		return ch
	}
	if t, ok := msg["type"].(string); ok && t != "" {
		return t
	}
	return "unknown"
}
