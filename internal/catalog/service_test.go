package catalog_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-estimator/internal/catalog"
	"github.com/noah-isme/backend-estimator/internal/common"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T) (*catalog.Service, *fixedClock) {
	t.Helper()
	clock := &fixedClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc, err := catalog.NewService(catalog.ServiceConfig{
		Store:  catalog.NewMemoryStore(),
		Logger: zerolog.Nop(),
		Clock:  clock.Now,
	})
	require.NoError(t, err)
	return svc, clock
}

func drywallRemoval(tier string) catalog.CreateInput {
	return catalog.CreateInput{
		Code:                 "drw-rmo",
		Description:          "Remove & dispose of drywall (0-2 ft cut)",
		Category:             "DEMO",
		UnitOfMeasure:        "LF",
		LaborCostPerUnit:     dec("0.75"),
		MaterialCostPerUnit:  dec("0.05"),
		EquipmentCostPerUnit: dec("0.05"),
		PricingTier:          tier,
	}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, common.ErrorCode(err), err.Error())
}

func TestNewServiceRequiresStore(t *testing.T) {
	_, err := catalog.NewService(catalog.ServiceConfig{})
	require.Error(t, err)
}

func TestCreateDerivesUnitPriceAndNormalisesCode(t *testing.T) {
	svc, _ := newTestService(t)
	item, err := svc.Create(context.Background(), drywallRemoval("insurance"))
	require.NoError(t, err)
	require.Equal(t, "DRW-RMO", item.Code)
	require.Equal(t, catalog.TierInsurance, item.Tier)
	require.True(t, item.Active)
	require.True(t, decimal.RequireFromString("0.85").Equal(item.UnitPrice))
	require.Equal(t, item.CreatedAt, item.LastUpdated)
}

func TestCreateKeepsExplicitUnitPrice(t *testing.T) {
	svc, _ := newTestService(t)
	in := drywallRemoval("HOMEOWNER")
	in.UnitPrice = dec("1.10")
	item, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("1.10").Equal(item.UnitPrice))
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := map[string]func(in *catalog.CreateInput){
		"blank code":        func(in *catalog.CreateInput) { in.Code = "   " },
		"missing unit":      func(in *catalog.CreateInput) { in.UnitOfMeasure = "" },
		"missing tier":      func(in *catalog.CreateInput) { in.PricingTier = "" },
		"unknown tier":      func(in *catalog.CreateInput) { in.PricingTier = "WHOLESALE" },
		"negative labor":    func(in *catalog.CreateInput) { in.LaborCostPerUnit = dec("-0.01") },
		"negative price":    func(in *catalog.CreateInput) { in.UnitPrice = dec("-1") },
		"five place labor":  func(in *catalog.CreateInput) { in.LaborCostPerUnit = dec("1.23456") },
		"five place price":  func(in *catalog.CreateInput) { in.UnitPrice = dec("0.00001") },
		"no price or costs": func(in *catalog.CreateInput) {
			in.LaborCostPerUnit, in.MaterialCostPerUnit, in.EquipmentCostPerUnit = nil, nil, nil
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := drywallRemoval("INSURANCE")
			mutate(&in)
			_, err := svc.Create(ctx, in)
			requireCode(t, err, common.CodeInvalidRequest)
		})
	}
}

func TestCreateConflictIsPerTier(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, drywallRemoval("INSURANCE"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, drywallRemoval("INSURANCE"))
	requireCode(t, err, common.CodeConflict)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, map[string]any{"code": "DRW-RMO", "tier": "INSURANCE"}, appErr.Details)

	_, err = svc.Create(ctx, drywallRemoval("HOMEOWNER"))
	require.NoError(t, err)
}

func TestCreateConflictSurvivesDeactivation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	item, err := svc.Create(ctx, drywallRemoval("INSURANCE"))
	require.NoError(t, err)
	_, err = svc.Deactivate(ctx, item.ID.String())
	require.NoError(t, err)

	_, err = svc.Create(ctx, drywallRemoval("INSURANCE"))
	requireCode(t, err, common.CodeConflict)
}

func TestConcurrentCreatesYieldOneWinner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, drywallRemoval("INSURANCE"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else if common.ErrorCode(err) == common.CodeConflict {
				conflicts++
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, created)
	require.Equal(t, writers-1, conflicts)
}

func TestUpdateMergesOnlySuppliedFields(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	item, err := svc.Create(ctx, drywallRemoval("INSURANCE"))
	require.NoError(t, err)
	clock.Advance(time.Hour)

	updated, err := svc.Update(ctx, item.ID.String(), catalog.UpdateInput{LaborCostPerUnit: dec("0.90")})
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("0.90").Equal(updated.LaborCostPerUnit))
	require.True(t, decimal.RequireFromString("0.05").Equal(updated.MaterialCostPerUnit))
	require.Equal(t, item.Description, updated.Description)
	require.Equal(t, item.Category, updated.Category)
	// unitPrice is authoritative and not re-derived on update.
	require.True(t, item.UnitPrice.Equal(updated.UnitPrice))
	require.Equal(t, item.CreatedAt, updated.CreatedAt)
	require.Equal(t, item.CreatedAt.Add(time.Hour), updated.LastUpdated)
}

func TestUpdateErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	item, err := svc.Create(ctx, drywallRemoval("INSURANCE"))
	require.NoError(t, err)
	other, err := svc.Create(ctx, drywallRemoval("HOMEOWNER"))
	require.NoError(t, err)

	_, err = svc.Update(ctx, item.ID.String(), catalog.UpdateInput{})
	requireCode(t, err, common.CodeNotFound)

	_, err = svc.Update(ctx, "5b0f3c4e-9a3f-4b8e-8f43-0d6a1f0f9e11", catalog.UpdateInput{Description: strPtr("x")})
	requireCode(t, err, common.CodeNotFound)

	_, err = svc.Update(ctx, "not-a-uuid", catalog.UpdateInput{Description: strPtr("x")})
	requireCode(t, err, common.CodeInvalidRequest)

	_, err = svc.Update(ctx, item.ID.String(), catalog.UpdateInput{Code: strPtr("  ")})
	requireCode(t, err, common.CodeInvalidRequest)

	_, err = svc.Update(ctx, item.ID.String(), catalog.UpdateInput{EquipmentCostPerUnit: dec("-2")})
	requireCode(t, err, common.CodeInvalidRequest)

	_, err = svc.Update(ctx, other.ID.String(), catalog.UpdateInput{PricingTier: strPtr("insurance")})
	requireCode(t, err, common.CodeConflict)
}

func TestMoneyScaleAcceptsTrailingZeros(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	in := drywallRemoval("INSURANCE")
	in.MaterialCostPerUnit = dec("0.125000")
	item, err := svc.Create(ctx, in)
	require.NoError(t, err)
	require.True(t, item.MaterialCostPerUnit.Equal(decimal.RequireFromString("0.125")))

	_, err = svc.Update(ctx, item.ID.String(), catalog.UpdateInput{UnitPrice: dec("9.99999")})
	requireCode(t, err, common.CodeInvalidRequest)

	updated, err := svc.Update(ctx, item.ID.String(), catalog.UpdateInput{UnitPrice: dec("9.9999")})
	require.NoError(t, err)
	require.True(t, updated.UnitPrice.Equal(decimal.RequireFromString("9.9999")))
}

func TestUpdateConflictReportsMergedKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, drywallRemoval("INSURANCE"))
	require.NoError(t, err)
	in := drywallRemoval("INSURANCE")
	in.Code = "drw-rmv"
	other, err := svc.Create(ctx, in)
	require.NoError(t, err)

	_, err = svc.Update(ctx, other.ID.String(), catalog.UpdateInput{Code: strPtr("drw-rmo")})
	requireCode(t, err, common.CodeConflict)

	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, map[string]any{"code": "DRW-RMO", "tier": "INSURANCE"}, appErr.Details)
}

func TestDeactivateHidesFromLookupButNotFromID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	item, err := svc.Create(ctx, drywallRemoval("INSURANCE"))
	require.NoError(t, err)

	res, err := svc.Deactivate(ctx, item.ID.String())
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.False(t, res.Active)

	again, err := svc.Deactivate(ctx, item.ID.String())
	require.NoError(t, err)
	require.False(t, again.Changed)

	list, err := svc.List(ctx, catalog.Filter{})
	require.NoError(t, err)
	require.Empty(t, list)

	_, err = svc.GetByCodeAndTier(ctx, "drw-rmo", "INSURANCE", false)
	requireCode(t, err, common.CodeNotFound)

	found, err := svc.GetByCodeAndTier(ctx, "drw-rmo", "INSURANCE", true)
	require.NoError(t, err)
	require.False(t, found.Active)

	byID, err := svc.GetByID(ctx, item.ID.String())
	require.NoError(t, err)
	require.Equal(t, item.ID, byID.ID)

	reactivated, err := svc.Update(ctx, item.ID.String(), catalog.UpdateInput{Active: boolPtr(true)})
	require.NoError(t, err)
	require.True(t, reactivated.Active)

	_, err = svc.Deactivate(ctx, "5b0f3c4e-9a3f-4b8e-8f43-0d6a1f0f9e11")
	requireCode(t, err, common.CodeNotFound)
}

func TestGetByCodeAndTierValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetByCodeAndTier(ctx, "DRW-RMO", "", false)
	requireCode(t, err, common.CodeInvalidRequest)
	_, err = svc.GetByCodeAndTier(ctx, "DRW-RMO", "retail", false)
	requireCode(t, err, common.CodeInvalidRequest)
	_, err = svc.GetByCodeAndTier(ctx, "DRW-RMO", "HOMEOWNER", false)
	requireCode(t, err, common.CodeNotFound)
}

func seedCatalog(t *testing.T, svc *catalog.Service) {
	t.Helper()
	ctx := context.Background()
	rows := []catalog.CreateInput{
		{Code: "FAN-AXL", Description: "Air Mover, Axial (Rental, 24HR)", Category: "WDR", UnitOfMeasure: "Day", EquipmentCostPerUnit: dec("18"), PricingTier: "INSURANCE"},
		{Code: "DRW-RMO", Description: "Remove & dispose of drywall (0-2 ft cut)", Category: "DEMO", UnitOfMeasure: "LF", LaborCostPerUnit: dec("0.75"), PricingTier: "INSURANCE"},
		{Code: "DEHU-L", Description: "Dehumidifier, Large (Rental, 24HR)", Category: "WDR", UnitOfMeasure: "Day", EquipmentCostPerUnit: dec("65"), PricingTier: "INSURANCE"},
		{Code: "DRW-RMO", Description: "Remove & dispose of drywall (0-2 ft cut)", Category: "DEMO", UnitOfMeasure: "LF", LaborCostPerUnit: dec("0.70"), PricingTier: "HOMEOWNER"},
		{Code: "DRW-HNG", Description: "Hang 1/2\" drywall", Category: "DRWL", UnitOfMeasure: "SF", LaborCostPerUnit: dec("1.20"), PricingTier: "HOMEOWNER"},
	}
	for _, in := range rows {
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}
}

func codesOf(items []catalog.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Code+"/"+string(it.Tier))
	}
	return out
}

func TestListFiltersAndOrdering(t *testing.T) {
	svc, _ := newTestService(t)
	seedCatalog(t, svc)
	ctx := context.Background()

	all, err := svc.List(ctx, catalog.Filter{})
	require.NoError(t, err)
	require.Equal(t, []string{
		"DEHU-L/INSURANCE", "DRW-HNG/HOMEOWNER", "DRW-RMO/HOMEOWNER", "DRW-RMO/INSURANCE", "FAN-AXL/INSURANCE",
	}, codesOf(all))

	insurance, err := svc.List(ctx, catalog.Filter{Tier: catalog.TierInsurance})
	require.NoError(t, err)
	require.Equal(t, []string{"DRW-RMO/INSURANCE", "DEHU-L/INSURANCE", "FAN-AXL/INSURANCE"}, codesOf(insurance))

	wdr, err := svc.List(ctx, catalog.Filter{Category: "wdr"})
	require.NoError(t, err)
	require.Len(t, wdr, 2)

	search, err := svc.List(ctx, catalog.Filter{Search: "DRYWALL", Tier: catalog.TierHomeowner})
	require.NoError(t, err)
	require.Equal(t, []string{"DRW-RMO/HOMEOWNER", "DRW-HNG/HOMEOWNER"}, codesOf(search))
}

func TestParseListParams(t *testing.T) {
	svc, _ := newTestService(t)

	f, err := svc.ParseListParams(url.Values{"tier": {"homeowner"}, "category": {" DEMO "}, "search": {"drw"}})
	require.NoError(t, err)
	require.Equal(t, catalog.Filter{Tier: catalog.TierHomeowner, Category: "DEMO", Search: "drw"}, f)

	f, err = svc.ParseListParams(url.Values{"tier": {"platinum"}})
	require.NoError(t, err)
	require.Equal(t, catalog.Tier(""), f.Tier)

	f, err = svc.ParseListParams(url.Values{"includeInactive": {"true"}})
	require.NoError(t, err)
	require.True(t, f.IncludeInactive)

	_, err = svc.ParseListParams(url.Values{"includeInactive": {"maybe"}})
	requireCode(t, err, common.CodeInvalidRequest)
}

func TestCategories(t *testing.T) {
	svc, _ := newTestService(t)
	seedCatalog(t, svc)
	ctx := context.Background()

	all, err := svc.Categories(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"DEMO", "DRWL", "WDR"}, all)

	homeowner, err := svc.Categories(ctx, catalog.TierHomeowner)
	require.NoError(t, err)
	require.Equal(t, []string{"DEMO", "DRWL"}, homeowner)
}

func TestResolveCodes(t *testing.T) {
	svc, _ := newTestService(t)
	seedCatalog(t, svc)
	ctx := context.Background()

	got, err := svc.ResolveCodes(ctx, catalog.TierInsurance, []string{"drw-rmo", "DRW-RMO", "dehu-l", "NOPE", " "}, false)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, decimal.RequireFromString("0.75").Equal(got["DRW-RMO"].LaborCostPerUnit))
	require.Contains(t, got, "DEHU-L")

	empty, err := svc.ResolveCodes(ctx, catalog.TierInsurance, nil, false)
	require.NoError(t, err)
	require.Empty(t, empty)
}
