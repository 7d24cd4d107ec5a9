package grid

import (
	"context"
	"fmt"

	"github.com/gridbot/core/internal/ports"
	"github.com/gridbot/core/pkg/logger"
)

// Strategy fans a batch of Config entries out into one GridBot per
// instrument and drives their shared lifecycle. It is itself a trivial
// coordinator — all planning/reconciliation/hedging logic lives in GridBot.
type Strategy struct {
	bots []*GridBot
}

// NewStrategy constructs one GridBot per cfg, backed by om.
func NewStrategy(configs []Config, om ports.OrderManager) (*Strategy, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("grid: no grid configurations found")
	}
	bots := make([]*GridBot, 0, len(configs))
	for _, cfg := range configs {
		b, err := NewGridBot(cfg, om)
		if err != nil {
			return nil, err
		}
		bots = append(bots, b)
	}
	logger.Infof("grid: initialized %d grid bots", len(bots))
	return &Strategy{bots: bots}, nil
}

// LoadExistingOrders seeds every bot from the Order Manager's cache. Must
// run once, before Start.
func (s *Strategy) LoadExistingOrders() {
	for _, b := range s.bots {
		b.LoadExistingOrders()
	}
}

// Start places missing grid levels for every bot.
func (s *Strategy) Start(ctx context.Context) error {
	for _, b := range s.bots {
		if err := b.Start(ctx); err != nil {
			return err
		}
	}
	logger.Infof("grid: all grid bots started")
	return nil
}

// CheckFilledOrders is the tick callback bound to the Order Book: it runs
// the fill-reconciliation pass for every bot in turn. Called on the
// Market-Data listener goroutine, never concurrently with itself.
func (s *Strategy) CheckFilledOrders(ctx context.Context) {
	for _, b := range s.bots {
		b.CheckFilledOrders(ctx)
	}
}

// Status returns a human-readable snapshot of every bot's active orders.
func (s *Strategy) Status() []string {
	var lines []string
	lines = append(lines, "=== Grid Strategy Status ===")
	for _, b := range s.bots {
		lines = append(lines, b.Status()...)
	}
	return lines
}

// Instruments returns the "BASE/QUOTE" symbol managed by each bot.
func (s *Strategy) Instruments() []string {
	out := make([]string, 0, len(s.bots))
	for _, b := range s.bots {
		out = append(out, b.Instrument())
	}
	return out
}
