// Package pricing holds the markup pipeline applied to quote totals. Everything
// here is pure: no I/O, no rounding until a caller asks for published values.
package pricing

import "github.com/shopspring/decimal"

func init() {
	// Published amounts are JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Money is an exact decimal amount. Values are never rounded while they flow
// through the pipeline.
type Money = decimal.Decimal

// Stage identifies one step of the markup pipeline.
type Stage string

const (
	StageToolDepreciation Stage = "tool_depreciation"
	StageOverhead         Stage = "overhead"
	StageProfit           Stage = "profit"
)

// Stages lists the pipeline in its only valid order. Each stage's base includes
// the cost added by the stages before it.
var Stages = []Stage{StageToolDepreciation, StageOverhead, StageProfit}

// Basis returns the human readable description of what a stage is applied to.
func (s Stage) Basis() string {
	switch s {
	case StageToolDepreciation:
		return "Applied to total labor cost."
	case StageOverhead:
		return "Applied to Subtotal + Tool Depreciation."
	case StageProfit:
		return "Applied to Subtotal + Tool Depreciation + Overhead."
	default:
		return ""
	}
}

// Totals aggregates the resolved line costs of a quote.
type Totals struct {
	Labor     Money
	Material  Money
	Equipment Money
	Subtotal  Money
}

// Add accumulates one line into the totals.
func (t Totals) Add(labor, material, equipment, subtotal Money) Totals {
	return Totals{
		Labor:     t.Labor.Add(labor),
		Material:  t.Material.Add(material),
		Equipment: t.Equipment.Add(equipment),
		Subtotal:  t.Subtotal.Add(subtotal),
	}
}

// Breakdown is the unrounded outcome of the pipeline.
type Breakdown struct {
	Totals                    Totals
	Markups                   Markups
	ToolDepreciation          Money
	SubtotalAfterDepreciation Money
	Overhead                  Money
	SubtotalAfterOverhead     Money
	Profit                    Money
	Final                     Money
}

// Cost returns the cost added by the given stage.
func (b Breakdown) Cost(stage Stage) Money {
	switch stage {
	case StageToolDepreciation:
		return b.ToolDepreciation
	case StageOverhead:
		return b.Overhead
	case StageProfit:
		return b.Profit
	default:
		return decimal.Zero
	}
}

// Compute applies tool depreciation, overhead and profit in that order.
// Tool depreciation is charged on labor only; overhead on the subtotal plus
// depreciation; profit on everything before it.
func Compute(t Totals, m Markups) Breakdown {
	depreciation := PercentOf(t.Labor, m.ToolDepreciationPercent)
	afterDepreciation := t.Subtotal.Add(depreciation)

	overhead := PercentOf(afterDepreciation, m.OverheadPercent)
	afterOverhead := afterDepreciation.Add(overhead)

	profit := PercentOf(afterOverhead, m.ProfitPercent)

	return Breakdown{
		Totals:                    t,
		Markups:                   m,
		ToolDepreciation:          depreciation,
		SubtotalAfterDepreciation: afterDepreciation,
		Overhead:                  overhead,
		SubtotalAfterOverhead:     afterOverhead,
		Profit:                    profit,
		Final:                     afterOverhead.Add(profit),
	}
}

// PercentOf returns base * pct / 100 without any loss of precision.
func PercentOf(base, pct Money) Money {
	return base.Mul(pct).Shift(-2)
}

// RoundCents rounds a published amount to two decimal places, half away from zero.
func RoundCents(m Money) Money {
	return m.Round(2)
}
