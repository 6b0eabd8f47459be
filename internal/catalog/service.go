package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-estimator/internal/common"
	"github.com/noah-isme/backend-estimator/internal/obs"
)

// Service owns catalog reads and mutations and maps store failures onto
// caller-facing AppErrors.
type Service struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store  Store
	Logger zerolog.Logger
	Clock  func() time.Time
}

// CreateInput is the body of a create request.
type CreateInput struct {
	Code                 string           `json:"code" validate:"required,max=64"`
	Description          string           `json:"description" validate:"required"`
	Category             string           `json:"category"`
	UnitOfMeasure        string           `json:"unitOfMeasure" validate:"required,max=32"`
	LaborCostPerUnit     *decimal.Decimal `json:"laborCostPerUnit" validate:"omitempty,gte=0"`
	MaterialCostPerUnit  *decimal.Decimal `json:"materialCostPerUnit" validate:"omitempty,gte=0"`
	EquipmentCostPerUnit *decimal.Decimal `json:"equipmentCostPerUnit" validate:"omitempty,gte=0"`
	UnitPrice            *decimal.Decimal `json:"unitPrice" validate:"omitempty,gte=0"`
	PricingTier          string           `json:"pricingTier" validate:"required"`
	Active               *bool            `json:"active"`
}

// UpdateInput is the body of a partial update. Absent fields are untouched.
type UpdateInput struct {
	Code                 *string          `json:"code" validate:"omitnil,min=1,max=64"`
	Description          *string          `json:"description" validate:"omitnil,min=1"`
	Category             *string          `json:"category"`
	UnitOfMeasure        *string          `json:"unitOfMeasure" validate:"omitnil,min=1,max=32"`
	LaborCostPerUnit     *decimal.Decimal `json:"laborCostPerUnit" validate:"omitempty,gte=0"`
	MaterialCostPerUnit  *decimal.Decimal `json:"materialCostPerUnit" validate:"omitempty,gte=0"`
	EquipmentCostPerUnit *decimal.Decimal `json:"equipmentCostPerUnit" validate:"omitempty,gte=0"`
	UnitPrice            *decimal.Decimal `json:"unitPrice" validate:"omitempty,gte=0"`
	PricingTier          *string          `json:"pricingTier"`
	Active               *bool            `json:"active"`
}

// DeactivateResult reports the outcome of a soft delete.
type DeactivateResult struct {
	ID      uuid.UUID `json:"id"`
	Active  bool      `json:"active"`
	Changed bool      `json:"changed"`
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog: store is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{store: cfg.Store, logger: cfg.Logger, now: clock}, nil
}

// ParseListParams normalises raw query values into a Filter. An unrecognised
// tier is ignored rather than rejected.
func (s *Service) ParseListParams(values url.Values) (Filter, error) {
	f := Filter{
		Category: strings.TrimSpace(values.Get("category")),
		Search:   strings.TrimSpace(values.Get("search")),
	}
	if raw := strings.TrimSpace(values.Get("tier")); raw != "" {
		tier, err := ParseTier(raw)
		if err != nil {
			s.logger.Warn().Str("tier", raw).Msg("ignoring unknown pricing tier filter")
		} else {
			f.Tier = tier
		}
	}
	if raw := strings.TrimSpace(values.Get("includeInactive")); raw != "" {
		v, ok := common.ParseBool(raw)
		if !ok {
			return f, common.InvalidRequest("includeInactive", "includeInactive must be true or false")
		}
		f.IncludeInactive = v
	}
	return f, nil
}

// List returns the filtered catalog.
func (s *Service) List(ctx context.Context, f Filter) ([]Item, error) {
	items, err := s.store.List(ctx, f)
	if err != nil {
		return nil, s.mapError(err, "list catalog")
	}
	return items, nil
}

// Categories returns the distinct categories of active items, optionally for one tier.
func (s *Service) Categories(ctx context.Context, tier Tier) ([]string, error) {
	out, err := s.store.Categories(ctx, tier)
	if err != nil {
		return nil, s.mapError(err, "list categories")
	}
	return out, nil
}

// GetByCodeAndTier looks up one item. Codes are matched case-insensitively.
func (s *Service) GetByCodeAndTier(ctx context.Context, code, tier string, includeInactive bool) (Item, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Item{}, common.InvalidRequest("code", "code is required")
	}
	if strings.TrimSpace(tier) == "" {
		return Item{}, common.InvalidRequest("tier", "tier is required")
	}
	t, err := ParseTier(tier)
	if err != nil {
		return Item{}, common.InvalidRequest("tier", "tier must be INSURANCE or HOMEOWNER")
	}
	item, err := s.store.GetByCodeAndTier(ctx, code, t, includeInactive)
	if err != nil {
		return Item{}, s.mapError(err, "get item by code")
	}
	return item, nil
}

// GetByID returns an item regardless of its active flag.
func (s *Service) GetByID(ctx context.Context, rawID string) (Item, error) {
	id, err := parseID(rawID)
	if err != nil {
		return Item{}, err
	}
	item, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Item{}, s.mapError(err, "get item by id")
	}
	return item, nil
}

// Create inserts a new item. When unitPrice is omitted it is derived from the
// three cost components.
func (s *Service) Create(ctx context.Context, in CreateInput) (Item, error) {
	in.Code = NormalizeCode(in.Code)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)
	in.UnitOfMeasure = strings.TrimSpace(in.UnitOfMeasure)
	if err := common.ValidateStruct(in); err != nil {
		return Item{}, err
	}
	if err := checkScale(in.LaborCostPerUnit, in.MaterialCostPerUnit, in.EquipmentCostPerUnit, in.UnitPrice); err != nil {
		return Item{}, err
	}
	tier, err := ParseTier(in.PricingTier)
	if err != nil {
		return Item{}, common.InvalidRequest("pricingTier", "pricingTier must be INSURANCE or HOMEOWNER")
	}
	if in.UnitPrice == nil && in.LaborCostPerUnit == nil && in.MaterialCostPerUnit == nil && in.EquipmentCostPerUnit == nil {
		return Item{}, common.InvalidRequest("unitPrice", "unitPrice or at least one cost component is required")
	}

	now := s.now()
	item := Item{
		ID:                   uuid.New(),
		Code:                 in.Code,
		Description:          in.Description,
		Category:             in.Category,
		UnitOfMeasure:        in.UnitOfMeasure,
		LaborCostPerUnit:     valueOrZero(in.LaborCostPerUnit),
		MaterialCostPerUnit:  valueOrZero(in.MaterialCostPerUnit),
		EquipmentCostPerUnit: valueOrZero(in.EquipmentCostPerUnit),
		Tier:                 tier,
		Active:               in.Active == nil || *in.Active,
		CreatedAt:            now,
		LastUpdated:          now,
	}
	if in.UnitPrice != nil {
		item.UnitPrice = *in.UnitPrice
	} else {
		item.UnitPrice = item.CostSum()
	}

	saved, err := s.store.Insert(ctx, item)
	if err != nil {
		s.recordMutation("create", err)
		if errors.Is(err, ErrConflict) {
			return Item{}, conflict(item.Code, item.Tier, err)
		}
		return Item{}, s.mapError(err, "create item")
	}
	s.recordMutation("create", nil)
	s.logger.Info().Str("id", saved.ID.String()).Str("code", saved.Code).Str("tier", string(saved.Tier)).Msg("catalog item created")
	return saved, nil
}

// Update merges the supplied fields onto an existing item.
func (s *Service) Update(ctx context.Context, rawID string, in UpdateInput) (Item, error) {
	id, err := parseID(rawID)
	if err != nil {
		return Item{}, err
	}
	if in.Code != nil {
		code := NormalizeCode(*in.Code)
		in.Code = &code
	}
	trimPtr(in.Description)
	trimPtr(in.Category)
	trimPtr(in.UnitOfMeasure)
	if err := common.ValidateStruct(in); err != nil {
		return Item{}, err
	}
	if err := checkScale(in.LaborCostPerUnit, in.MaterialCostPerUnit, in.EquipmentCostPerUnit, in.UnitPrice); err != nil {
		return Item{}, err
	}
	patch := Patch{
		Code:                 in.Code,
		Description:          in.Description,
		Category:             in.Category,
		UnitOfMeasure:        in.UnitOfMeasure,
		LaborCostPerUnit:     in.LaborCostPerUnit,
		MaterialCostPerUnit:  in.MaterialCostPerUnit,
		EquipmentCostPerUnit: in.EquipmentCostPerUnit,
		UnitPrice:            in.UnitPrice,
		Active:               in.Active,
	}
	if in.PricingTier != nil {
		tier, err := ParseTier(*in.PricingTier)
		if err != nil {
			return Item{}, common.InvalidRequest("pricingTier", "pricingTier must be INSURANCE or HOMEOWNER")
		}
		patch.Tier = &tier
	}
	if patch.Empty() {
		return Item{}, common.NotFound("price list item not found or no changes made", nil)
	}

	item, err := s.store.Update(ctx, id, patch, s.now())
	if err != nil {
		s.recordMutation("update", err)
		if errors.Is(err, ErrConflict) {
			code, tier := s.conflictKey(ctx, id, patch)
			return Item{}, conflict(code, tier, err)
		}
		if errors.Is(err, ErrNotFound) {
			return Item{}, common.NotFound("price list item not found or no changes made", err)
		}
		return Item{}, s.mapError(err, "update item")
	}
	s.recordMutation("update", nil)
	s.logger.Info().Str("id", item.ID.String()).Str("code", item.Code).Msg("catalog item updated")
	return item, nil
}

// Deactivate soft-deletes an item. Repeating the call is harmless.
func (s *Service) Deactivate(ctx context.Context, rawID string) (DeactivateResult, error) {
	id, err := parseID(rawID)
	if err != nil {
		return DeactivateResult{}, err
	}
	item, changed, err := s.store.Deactivate(ctx, id, s.now())
	if err != nil {
		s.recordMutation("deactivate", err)
		return DeactivateResult{}, s.mapError(err, "deactivate item")
	}
	s.recordMutation("deactivate", nil)
	if changed {
		s.logger.Info().Str("id", item.ID.String()).Str("code", item.Code).Msg("catalog item deactivated")
	}
	return DeactivateResult{ID: item.ID, Active: item.Active, Changed: changed}, nil
}

// ResolveCodes resolves codes for a tier in one store round trip. The result
// is keyed by normalised code; codes without a match are simply absent.
func (s *Service) ResolveCodes(ctx context.Context, tier Tier, codes []string, includeInactive bool) (map[string]Item, error) {
	seen := make(map[string]struct{}, len(codes))
	unique := make([]string, 0, len(codes))
	for _, c := range codes {
		c = NormalizeCode(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		unique = append(unique, c)
	}
	out := make(map[string]Item, len(unique))
	if len(unique) == 0 {
		return out, nil
	}
	items, err := s.store.FindByCodes(ctx, tier, unique, includeInactive)
	if err != nil {
		return nil, s.mapError(err, "resolve codes")
	}
	for _, item := range items {
		out[item.Code] = item
	}
	return out, nil
}

func (s *Service) mapError(err error, op string) error {
	switch {
	case common.IsAppError(err):
		return err
	case errors.Is(err, ErrNotFound):
		return common.NotFound("price list item not found", err)
	case errors.Is(err, ErrUnavailable):
		s.logger.Error().Err(err).Str("op", op).Msg("catalog storage unavailable")
		return common.StorageUnavailable(err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (s *Service) recordMutation(op string, err error) {
	if obs.CatalogMutationsTotal == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrConflict):
		result = "conflict"
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case errors.Is(err, ErrUnavailable):
		result = "unavailable"
	default:
		result = "error"
	}
	obs.CatalogMutationsTotal.WithLabelValues(op, result).Inc()
}

// conflictKey is the (code, tier) pair the rejected update would have
// produced: the patch merged onto the stored row.
func (s *Service) conflictKey(ctx context.Context, id uuid.UUID, patch Patch) (string, Tier) {
	current, err := s.store.GetByID(ctx, id)
	if err == nil {
		merged := patch.Apply(current, current.LastUpdated)
		return merged.Code, merged.Tier
	}
	var code string
	var tier Tier
	if patch.Code != nil {
		code = *patch.Code
	}
	if patch.Tier != nil {
		tier = *patch.Tier
	}
	return code, tier
}

func conflict(code string, tier Tier, err error) *common.AppError {
	return common.Conflict(
		"a price list item with this code already exists for the tier",
		map[string]any{"code": code, "tier": string(tier)},
		err,
	)
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, common.InvalidRequest("id", "id must be a valid UUID")
	}
	return id, nil
}

// moneyScale is the number of fractional digits the price list columns hold.
const moneyScale = 4

var moneyFields = [...]string{"laborCostPerUnit", "materialCostPerUnit", "equipmentCostPerUnit", "unitPrice"}

// checkScale rejects amounts the store would round. Trailing zeros are fine.
func checkScale(labor, material, equipment, price *decimal.Decimal) error {
	for i, d := range [...]*decimal.Decimal{labor, material, equipment, price} {
		if d != nil && !d.Equal(d.Truncate(moneyScale)) {
			field := moneyFields[i]
			return common.InvalidRequest(field, fmt.Sprintf("%s must have at most %d decimal places", field, moneyScale))
		}
	}
	return nil
}

func valueOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}
