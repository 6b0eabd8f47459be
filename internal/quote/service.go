// Package quote turns requested catalog codes and quantities into a priced,
// auditable breakdown.
package quote

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-estimator/internal/catalog"
	"github.com/noah-isme/backend-estimator/internal/common"
	"github.com/noah-isme/backend-estimator/internal/obs"
	"github.com/noah-isme/backend-estimator/internal/pricing"
)

// Line statuses reported in DetailedItems.
const (
	StatusResolved   = "resolved"
	StatusUnresolved = "unresolved"
)

// Resolver looks up many codes for one tier in a single round trip.
type Resolver interface {
	ResolveCodes(ctx context.Context, tier catalog.Tier, codes []string, includeInactive bool) (map[string]catalog.Item, error)
}

// LineRequest is one requested code and quantity.
type LineRequest struct {
	Code     string           `json:"code" validate:"required"`
	Quantity *decimal.Decimal `json:"quantity"`
}

// Request is the body of a quote calculation.
type Request struct {
	Tier            string             `json:"tier" validate:"required"`
	Lines           []LineRequest      `json:"lines" validate:"required,min=1,dive"`
	Markups         *pricing.Overrides `json:"markups,omitempty"`
	IncludeInactive bool               `json:"includeInactive,omitempty"`
}

// MarkupLine reports one pipeline stage.
type MarkupLine struct {
	Stage   pricing.Stage `json:"stage"`
	Percent pricing.Money `json:"percent"`
	Cost    pricing.Money `json:"cost"`
	Basis   string        `json:"basis"`
}

// Summary aggregates the resolved lines and the markup pipeline.
type Summary struct {
	TotalLabor                pricing.Money `json:"totalLabor"`
	TotalMaterial             pricing.Money `json:"totalMaterial"`
	TotalEquipment            pricing.Money `json:"totalEquipment"`
	SubtotalBeforeMarkups     pricing.Money `json:"subtotalBeforeMarkups"`
	Markups                   []MarkupLine  `json:"markups"`
	SubtotalAfterDepreciation pricing.Money `json:"subtotalAfterDepreciation"`
	SubtotalAfterOverhead     pricing.Money `json:"subtotalAfterOverhead"`
	FinalTotal                pricing.Money `json:"finalTotal"`
}

// LineResult is one entry of DetailedItems. Cost fields are absent for
// unresolved lines.
type LineResult struct {
	Code          string         `json:"code"`
	Quantity      pricing.Money  `json:"quantity"`
	Status        string         `json:"status"`
	ItemID        *uuid.UUID     `json:"itemId,omitempty"`
	Description   string         `json:"description,omitempty"`
	Category      string         `json:"category,omitempty"`
	UnitOfMeasure string         `json:"unitOfMeasure,omitempty"`
	UnitPrice     *pricing.Money `json:"unitPrice,omitempty"`
	LaborCost     *pricing.Money `json:"laborCost,omitempty"`
	MaterialCost  *pricing.Money `json:"materialCost,omitempty"`
	EquipmentCost *pricing.Money `json:"equipmentCost,omitempty"`
	LineTotal     *pricing.Money `json:"lineTotal,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// Result is the published quote. Every money value is rounded to cents.
type Result struct {
	Tier            catalog.Tier    `json:"tier"`
	Summary         Summary         `json:"summary"`
	DetailedItems   []LineResult    `json:"detailedItems"`
	UnresolvedCount int             `json:"unresolvedCount"`
	MarkupsApplied  pricing.Markups `json:"markupsApplied"`
}

// Service computes quotes. It holds no mutable state.
type Service struct {
	resolver Resolver
	defaults pricing.Markups
	logger   zerolog.Logger
}

// ServiceConfig groups Service dependencies. Defaults falls back to
// pricing.DefaultMarkups when nil.
type ServiceConfig struct {
	Resolver Resolver
	Defaults *pricing.Markups
	Logger   zerolog.Logger
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("quote: catalog resolver is required")
	}
	defaults := pricing.DefaultMarkups()
	if cfg.Defaults != nil {
		defaults = *cfg.Defaults
	}
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("quote: default markups: %w", err)
	}
	return &Service{resolver: cfg.Resolver, defaults: defaults, logger: cfg.Logger}, nil
}

// Defaults returns the markups applied when a request omits them.
func (s *Service) Defaults() pricing.Markups {
	return s.defaults
}

// Calculate prices every requested line against the catalog for req.Tier and
// runs the markup pipeline over the resolved totals. Unknown codes are
// reported inline and excluded from the totals.
func (s *Service) Calculate(ctx context.Context, req Request) (Result, error) {
	tier, markups, err := s.validate(&req)
	if err != nil {
		s.record("invalid", 0)
		return Result{}, err
	}

	codes := make([]string, len(req.Lines))
	for i, line := range req.Lines {
		codes[i] = line.Code
	}
	items, err := s.resolver.ResolveCodes(ctx, tier, codes, req.IncludeInactive)
	if err != nil {
		s.record("error", 0)
		return Result{}, err
	}

	var totals pricing.Totals
	details := make([]LineResult, 0, len(req.Lines))
	unresolved := 0
	for _, line := range req.Lines {
		qty := *line.Quantity
		item, ok := items[line.Code]
		if !ok {
			unresolved++
			details = append(details, LineResult{
				Code:     line.Code,
				Quantity: qty,
				Status:   StatusUnresolved,
				Error:    fmt.Sprintf("code %s not found in the %s price list", line.Code, tier),
			})
			continue
		}
		labor := item.LaborCostPerUnit.Mul(qty)
		material := item.MaterialCostPerUnit.Mul(qty)
		equipment := item.EquipmentCostPerUnit.Mul(qty)
		subtotal := item.UnitPrice.Mul(qty)
		totals = totals.Add(labor, material, equipment, subtotal)

		id := item.ID
		details = append(details, LineResult{
			Code:          item.Code,
			Quantity:      qty,
			Status:        StatusResolved,
			ItemID:        &id,
			Description:   item.Description,
			Category:      item.Category,
			UnitOfMeasure: item.UnitOfMeasure,
			UnitPrice:     ptr(item.UnitPrice),
			LaborCost:     ptr(pricing.RoundCents(labor)),
			MaterialCost:  ptr(pricing.RoundCents(material)),
			EquipmentCost: ptr(pricing.RoundCents(equipment)),
			LineTotal:     ptr(pricing.RoundCents(subtotal)),
		})
	}

	breakdown := pricing.Compute(totals, markups)
	result := Result{
		Tier:            tier,
		Summary:         publish(breakdown),
		DetailedItems:   details,
		UnresolvedCount: unresolved,
		MarkupsApplied:  markups,
	}
	s.record("ok", unresolved)
	s.logger.Debug().
		Str("tier", string(tier)).
		Int("lines", len(req.Lines)).
		Int("unresolved", unresolved).
		Str("final_total", result.Summary.FinalTotal.StringFixed(2)).
		Msg("quote calculated")
	return result, nil
}

func (s *Service) validate(req *Request) (catalog.Tier, pricing.Markups, error) {
	for i := range req.Lines {
		req.Lines[i].Code = catalog.NormalizeCode(req.Lines[i].Code)
	}
	if err := common.ValidateStruct(req); err != nil {
		return "", pricing.Markups{}, err
	}
	for i, line := range req.Lines {
		field := "lines[" + strconv.Itoa(i) + "].quantity"
		if line.Quantity == nil {
			return "", pricing.Markups{}, common.InvalidRequest(field, "quantity is required")
		}
		if line.Quantity.IsNegative() {
			return "", pricing.Markups{}, common.InvalidRequest(field, "quantity must not be negative")
		}
	}
	tier, err := catalog.ParseTier(req.Tier)
	if err != nil {
		return "", pricing.Markups{}, common.InvalidRequest("tier", "tier must be INSURANCE or HOMEOWNER")
	}
	markups := s.defaults.WithOverrides(req.Markups)
	if err := markups.Validate(); err != nil {
		return "", pricing.Markups{}, common.InvalidRequest("markups", err.Error())
	}
	return tier, markups, nil
}

func publish(b pricing.Breakdown) Summary {
	lines := make([]MarkupLine, 0, len(pricing.Stages))
	for _, stage := range pricing.Stages {
		lines = append(lines, MarkupLine{
			Stage:   stage,
			Percent: b.Markups.Percent(stage),
			Cost:    pricing.RoundCents(b.Cost(stage)),
			Basis:   stage.Basis(),
		})
	}
	return Summary{
		TotalLabor:                pricing.RoundCents(b.Totals.Labor),
		TotalMaterial:             pricing.RoundCents(b.Totals.Material),
		TotalEquipment:            pricing.RoundCents(b.Totals.Equipment),
		SubtotalBeforeMarkups:     pricing.RoundCents(b.Totals.Subtotal),
		Markups:                   lines,
		SubtotalAfterDepreciation: pricing.RoundCents(b.SubtotalAfterDepreciation),
		SubtotalAfterOverhead:     pricing.RoundCents(b.SubtotalAfterOverhead),
		FinalTotal:                pricing.RoundCents(b.Final),
	}
}

func (s *Service) record(result string, unresolved int) {
	if obs.QuoteCalculationsTotal != nil {
		obs.QuoteCalculationsTotal.WithLabelValues(result).Inc()
	}
	if unresolved > 0 && obs.QuoteUnresolvedLinesTotal != nil {
		obs.QuoteUnresolvedLinesTotal.Add(float64(unresolved))
	}
}

func ptr(m pricing.Money) *pricing.Money { return &m }
