package grid

import "github.com/shopspring/decimal"

// Config is one <GridConfig> entry: the parameters of a single grid-bot
// instance. internal/config decodes the XML into this shape.
type Config struct {
	Name            string
	Instrument      string // "BASE/QUOTE"
	BasePrice       decimal.Decimal
	LevelsBelow     int
	LevelsAbove     int
	StepPercent     decimal.Decimal
	PercentOrderQty decimal.Decimal
	MaxPosition     decimal.Decimal
	CreatePosition  bool
	Tick            decimal.Decimal // price/qty tick size for rounding; 0 disables rounding
}
