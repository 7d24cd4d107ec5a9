// Package config loads the XML grid and session configuration files and the
// Java-properties-style logging configuration. There is no ecosystem XML
// library in the retrieval pack with meaningfully different tradeoffs from
// the standard library's encoding/xml, so this package is a documented
// stdlib-only exception (see DESIGN.md).
package config

import (
	"encoding/xml"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/gridbot/core/internal/grid"
)

// Session carries the exchange connection settings read from the
// <Session>/<SessionConfig> element.
type Session struct {
	Host         string
	Port         int
	Instruments  []string
	Channels     []string
	APIKey       string
	SecretKeyPEM string
	OrdersHTTP   string
	Depth        int
	WSPath       string
	OrderVariant string // "ws" (default) or "rest", per §4.C's capability-set choice
}

type xmlSessionConfig struct {
	Host         string `xml:"host,attr"`
	Port         int    `xml:"port,attr"`
	Instruments  string `xml:"instruments,attr"`
	Channels     string `xml:"channels,attr"`
	APIKey       string `xml:"apikey,attr"`
	SecretKey    string `xml:"secretkey,attr"`
	OrdersHTTP   string `xml:"orders_http,attr"`
	Depth        int    `xml:"depth,attr"`
	WSPath       string `xml:"ws_path,attr"`
	OrderVariant string `xml:"order_variant,attr"`
}

type xmlSession struct {
	Config xmlSessionConfig `xml:"SessionConfig"`
}

type xmlGridConfig struct {
	Name            string `xml:"name,attr"`
	Instrument      string `xml:"instrument,attr"`
	BasePrice       string `xml:"base_price,attr"`
	LevelsBelow     int    `xml:"levels_below,attr"`
	LevelsAbove     int    `xml:"levels_above,attr"`
	StepPercent     string `xml:"step_percent,attr"`
	PercentOrderQty string `xml:"percent_order_qty,attr"`
	MaxPosition     string `xml:"max_position,attr"`
	CreatePosition  bool   `xml:"create_position,attr"`
	Tick            string `xml:"tick,attr"`
}

// xmlGridBots is the new multi-bot root: <GridBots><GridConfig .../>...</GridBots>.
type xmlGridBots struct {
	Configs []xmlGridConfig `xml:"GridConfig"`
}

// xmlRoot is the top-level document: a <Session> alongside either a
// <GridBots> wrapper or a single legacy <GridConfig>.
type xmlRoot struct {
	Session    xmlSession     `xml:"Session"`
	GridBots   *xmlGridBots   `xml:"GridBots"`
	LegacyGrid *xmlGridConfig `xml:"GridConfig"`
}

// Load reads path and returns the session settings and every grid-bot
// configuration it declares, accepting both the <GridBots> (new, N
// children) and bare <GridConfig> (legacy, single bot) root shapes.
func Load(path string) (Session, []grid.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Session{}, nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var root xmlRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return Session{}, nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	sess := toSession(root.Session.Config)

	var raw []xmlGridConfig
	switch {
	case root.GridBots != nil && len(root.GridBots.Configs) > 0:
		raw = root.GridBots.Configs
	case root.LegacyGrid != nil:
		raw = []xmlGridConfig{*root.LegacyGrid}
	default:
		return Session{}, nil, fmt.Errorf("config: %s declares no GridConfig", path)
	}

	configs := make([]grid.Config, 0, len(raw))
	for _, g := range raw {
		cfg, err := toGridConfig(g)
		if err != nil {
			return Session{}, nil, err
		}
		configs = append(configs, cfg)
	}
	return sess, configs, nil
}

func toSession(c xmlSessionConfig) Session {
	variant := c.OrderVariant
	if variant == "" {
		variant = "ws"
	}
	return Session{
		Host:         c.Host,
		Port:         c.Port,
		Instruments:  splitCSV(c.Instruments),
		Channels:     splitCSV(c.Channels),
		APIKey:       c.APIKey,
		SecretKeyPEM: c.SecretKey,
		OrdersHTTP:   c.OrdersHTTP,
		Depth:        c.Depth,
		WSPath:       c.WSPath,
		OrderVariant: variant,
	}
}

func toGridConfig(g xmlGridConfig) (grid.Config, error) {
	base, err := decimalAttr(g.BasePrice, "0")
	if err != nil {
		return grid.Config{}, fmt.Errorf("config: %s base_price: %w", g.Name, err)
	}
	step, err := decimalAttr(g.StepPercent, "0")
	if err != nil {
		return grid.Config{}, fmt.Errorf("config: %s step_percent: %w", g.Name, err)
	}
	qty, err := decimalAttr(g.PercentOrderQty, "0")
	if err != nil {
		return grid.Config{}, fmt.Errorf("config: %s percent_order_qty: %w", g.Name, err)
	}
	maxPos, err := decimalAttr(g.MaxPosition, "0")
	if err != nil {
		return grid.Config{}, fmt.Errorf("config: %s max_position: %w", g.Name, err)
	}
	tick, err := decimalAttr(g.Tick, "0")
	if err != nil {
		return grid.Config{}, fmt.Errorf("config: %s tick: %w", g.Name, err)
	}
	return grid.Config{
		Name:            g.Name,
		Instrument:      g.Instrument,
		BasePrice:       base,
		LevelsBelow:     g.LevelsBelow,
		LevelsAbove:     g.LevelsAbove,
		StepPercent:     step,
		PercentOrderQty: qty,
		MaxPosition:     maxPos,
		CreatePosition:  g.CreatePosition,
		Tick:            tick,
	}, nil
}

func decimalAttr(s, fallback string) (decimal.Decimal, error) {
	if s == "" {
		s = fallback
	}
	return decimal.NewFromString(s)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, trim(s[start:i]))
			}
			start = i + 1
		}
	}
	return out
}

func trim(s string) string {
	for len(s) > 0 && s[0] == ' ' {
		s = s[1:]
	}
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}
