package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Markups carries the three pipeline percentages, each expressed 0-100.
type Markups struct {
	OverheadPercent         Money `json:"overheadPercent"`
	ProfitPercent           Money `json:"profitPercent"`
	ToolDepreciationPercent Money `json:"toolDepreciationPercent"`
}

// Overrides holds caller-supplied percentages; nil fields fall back to defaults.
type Overrides struct {
	OverheadPercent         *Money `json:"overheadPercent,omitempty" validate:"omitempty,gte=0,lte=100"`
	ProfitPercent           *Money `json:"profitPercent,omitempty" validate:"omitempty,gte=0,lte=100"`
	ToolDepreciationPercent *Money `json:"toolDepreciationPercent,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// DefaultMarkups returns the contractor defaults: overhead 15%, profit 15%,
// tool depreciation 5%.
func DefaultMarkups() Markups {
	return Markups{
		OverheadPercent:         decimal.NewFromInt(15),
		ProfitPercent:           decimal.NewFromInt(15),
		ToolDepreciationPercent: decimal.NewFromInt(5),
	}
}

// WithOverrides returns m with every non-nil override applied.
func (m Markups) WithOverrides(o *Overrides) Markups {
	if o == nil {
		return m
	}
	if o.OverheadPercent != nil {
		m.OverheadPercent = *o.OverheadPercent
	}
	if o.ProfitPercent != nil {
		m.ProfitPercent = *o.ProfitPercent
	}
	if o.ToolDepreciationPercent != nil {
		m.ToolDepreciationPercent = *o.ToolDepreciationPercent
	}
	return m
}

// Percent returns the configured percentage for a stage.
func (m Markups) Percent(stage Stage) Money {
	switch stage {
	case StageToolDepreciation:
		return m.ToolDepreciationPercent
	case StageOverhead:
		return m.OverheadPercent
	case StageProfit:
		return m.ProfitPercent
	default:
		return decimal.Zero
	}
}

// Validate reports the first percentage outside 0-100.
func (m Markups) Validate() error {
	for _, stage := range Stages {
		pct := m.Percent(stage)
		if pct.IsNegative() || pct.GreaterThan(hundred) {
			return fmt.Errorf("%s percent must be between 0 and 100, got %s", stage, pct.String())
		}
	}
	return nil
}
