package catalog

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-estimator/internal/common"
)

type sampleRow struct {
	code, description, category, unit string
	labor, material, equipment        string
}

var sampleRows = []sampleRow{
	{"DRW-RMO", "Remove & dispose of drywall (0-2 ft cut)", "DEMO", "LF", "0.75", "0.05", "0.05"},
	{"BBD-RMO", "Remove & dispose of baseboard/trim", "DEMO", "LF", "0.45", "0.03", "0.02"},
	{"DEHU-L", "Dehumidifier, Large (Rental, 24HR)", "WDR", "Day", "0", "0", "65.00"},
	{"FAN-AXL", "Air Mover, Axial (Rental, 24HR)", "WDR", "Day", "0", "0", "18.00"},
	{"DRW-HNG", `Hang 1/2" drywall`, "DRWL", "SF", "1.20", "0.50", "0"},
	{"DRW-FIN3", "Drywall Finish (Level 3)", "DRWL", "SF", "0.80", "0.10", "0"},
	{"FRM-WALL", "Wall framing (studs, plates, blocking)", "FRMG", "LF", "8.50", "4.00", "0.50"},
}

// SampleItems returns the starter catalog for one tier. Unit prices are left
// to be derived from the cost components.
func SampleItems(tier Tier) []CreateInput {
	out := make([]CreateInput, 0, len(sampleRows))
	for _, row := range sampleRows {
		labor := decimal.RequireFromString(row.labor)
		material := decimal.RequireFromString(row.material)
		equipment := decimal.RequireFromString(row.equipment)
		out = append(out, CreateInput{
			Code:                 row.code,
			Description:          row.description,
			Category:             row.category,
			UnitOfMeasure:        row.unit,
			LaborCostPerUnit:     &labor,
			MaterialCostPerUnit:  &material,
			EquipmentCostPerUnit: &equipment,
			PricingTier:          string(tier),
		})
	}
	return out
}

// SeedSamples creates the starter catalog for each tier. Rows that already
// exist are counted as skipped.
func SeedSamples(ctx context.Context, svc *Service, tiers ...Tier) (created, skipped int, err error) {
	if len(tiers) == 0 {
		tiers = Tiers
	}
	var items []CreateInput
	for _, tier := range tiers {
		items = append(items, SampleItems(tier)...)
	}
	return SeedItems(ctx, svc, items)
}

// SeedItems creates each item in order, counting conflicts as skipped. The
// first other failure stops the run.
func SeedItems(ctx context.Context, svc *Service, items []CreateInput) (created, skipped int, err error) {
	for _, in := range items {
		_, err := svc.Create(ctx, in)
		switch {
		case err == nil:
			created++
		case common.ErrorCode(err) == common.CodeConflict:
			skipped++
		default:
			return created, skipped, fmt.Errorf("seed %s/%s: %w", in.Code, in.PricingTier, err)
		}
	}
	return created, skipped, nil
}
