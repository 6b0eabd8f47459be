package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-estimator/internal/pricing"
)

// Tier is the customer pricing tier an item belongs to.
type Tier string

const (
	TierInsurance Tier = "INSURANCE"
	TierHomeowner Tier = "HOMEOWNER"
)

// Tiers lists every valid tier.
var Tiers = []Tier{TierInsurance, TierHomeowner}

// ErrInvalidTier is returned by ParseTier for anything outside the closed set.
var ErrInvalidTier = errors.New("catalog: invalid pricing tier")

// ParseTier normalises raw into a Tier. Matching is case-insensitive.
func ParseTier(raw string) (Tier, error) {
	switch Tier(strings.ToUpper(strings.TrimSpace(raw))) {
	case TierInsurance:
		return TierInsurance, nil
	case TierHomeowner:
		return TierHomeowner, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTier, raw)
	}
}

// NormalizeCode uppercases and trims an item code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Item is one priced catalog line, unique per (Code, Tier).
type Item struct {
	ID                   uuid.UUID     `json:"id"`
	Code                 string        `json:"code"`
	Description          string        `json:"description"`
	Category             string        `json:"category"`
	UnitOfMeasure        string        `json:"unitOfMeasure"`
	LaborCostPerUnit     pricing.Money `json:"laborCostPerUnit"`
	MaterialCostPerUnit  pricing.Money `json:"materialCostPerUnit"`
	EquipmentCostPerUnit pricing.Money `json:"equipmentCostPerUnit"`
	UnitPrice            pricing.Money `json:"unitPrice"`
	Tier                 Tier          `json:"pricingTier"`
	Active               bool          `json:"active"`
	CreatedAt            time.Time     `json:"createdAt"`
	LastUpdated          time.Time     `json:"lastUpdated"`
}

// CostSum returns labor + material + equipment per unit.
func (it Item) CostSum() pricing.Money {
	return it.LaborCostPerUnit.Add(it.MaterialCostPerUnit).Add(it.EquipmentCostPerUnit)
}

// Patch carries the fields of a partial update. Nil fields are left untouched.
type Patch struct {
	Code                 *string
	Description          *string
	Category             *string
	UnitOfMeasure        *string
	LaborCostPerUnit     *decimal.Decimal
	MaterialCostPerUnit  *decimal.Decimal
	EquipmentCostPerUnit *decimal.Decimal
	UnitPrice            *decimal.Decimal
	Tier                 *Tier
	Active               *bool
}

// Empty reports whether the patch would change nothing.
func (p Patch) Empty() bool {
	return p.Code == nil && p.Description == nil && p.Category == nil && p.UnitOfMeasure == nil &&
		p.LaborCostPerUnit == nil && p.MaterialCostPerUnit == nil && p.EquipmentCostPerUnit == nil &&
		p.UnitPrice == nil && p.Tier == nil && p.Active == nil
}

// Apply merges the patch onto item and stamps LastUpdated.
func (p Patch) Apply(item Item, now time.Time) Item {
	if p.Code != nil {
		item.Code = NormalizeCode(*p.Code)
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Category != nil {
		item.Category = *p.Category
	}
	if p.UnitOfMeasure != nil {
		item.UnitOfMeasure = *p.UnitOfMeasure
	}
	if p.LaborCostPerUnit != nil {
		item.LaborCostPerUnit = *p.LaborCostPerUnit
	}
	if p.MaterialCostPerUnit != nil {
		item.MaterialCostPerUnit = *p.MaterialCostPerUnit
	}
	if p.EquipmentCostPerUnit != nil {
		item.EquipmentCostPerUnit = *p.EquipmentCostPerUnit
	}
	if p.UnitPrice != nil {
		item.UnitPrice = *p.UnitPrice
	}
	if p.Tier != nil {
		item.Tier = *p.Tier
	}
	if p.Active != nil {
		item.Active = *p.Active
	}
	item.LastUpdated = now
	return item
}

// Filter narrows a catalog listing. Zero values mean "no constraint".
type Filter struct {
	Tier            Tier
	Category        string
	Search          string
	IncludeInactive bool
}

// Matches reports whether item passes every constraint of f.
func (f Filter) Matches(item Item) bool {
	if !f.IncludeInactive && !item.Active {
		return false
	}
	if f.Tier != "" && item.Tier != f.Tier {
		return false
	}
	if f.Category != "" && !strings.EqualFold(item.Category, f.Category) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(item.Code), needle) &&
			!strings.Contains(strings.ToLower(item.Description), needle) {
			return false
		}
	}
	return true
}

// Less orders two items for a listing under f: by category then code when a
// tier is fixed, by code then tier otherwise.
func (f Filter) Less(a, b Item) bool {
	if f.Tier != "" {
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Code < b.Code
	}
	if a.Code != b.Code {
		return a.Code < b.Code
	}
	return a.Tier < b.Tier
}
