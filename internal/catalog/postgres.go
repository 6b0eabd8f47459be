package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// pgxConn is the subset of *pgxpool.Pool used by PostgresStore.
type pgxConn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore persists the catalog in the price_list_items table. The
// UNIQUE (code, pricing_tier) constraint is the arbiter for concurrent writers.
type PostgresStore struct {
	db pgxConn
}

// NewPostgresStore wraps a pgx pool.
func NewPostgresStore(db pgxConn) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("catalog: postgres pool is required")
	}
	return &PostgresStore{db: db}, nil
}

const itemColumns = `id, code, description, category, unit_of_measure,
	labor_cost_per_unit, material_cost_per_unit, equipment_cost_per_unit, unit_price,
	pricing_tier, active, created_at, last_updated`

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Item, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if !f.IncludeInactive {
		where = append(where, "active")
	}
	if f.Tier != "" {
		where = append(where, "pricing_tier = "+arg(string(f.Tier)))
	}
	if f.Category != "" {
		where = append(where, "LOWER(category) = LOWER("+arg(f.Category)+")")
	}
	if f.Search != "" {
		p := arg("%" + escapeLike(f.Search) + "%")
		where = append(where, "(code ILIKE "+p+" OR description ILIKE "+p+")")
	}
	sql := "SELECT " + itemColumns + " FROM price_list_items"
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Tier != "" {
		sql += " ORDER BY category, code"
	} else {
		sql += " ORDER BY code, pricing_tier"
	}
	return s.queryItems(ctx, "list items", sql, args...)
}

func (s *PostgresStore) Categories(ctx context.Context, tier Tier) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT category FROM price_list_items
		WHERE active AND category <> '' AND ($1 = '' OR pricing_tier = $1)
		ORDER BY category`, string(tier))
	if err != nil {
		return nil, classify("list categories", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classify("list categories", err)
	}
	return out, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (Item, error) {
	row := s.db.QueryRow(ctx, "SELECT "+itemColumns+" FROM price_list_items WHERE id = $1", id)
	item, err := scanItem(row)
	if err != nil {
		return Item{}, classify("get item by id", err)
	}
	return item, nil
}

func (s *PostgresStore) GetByCodeAndTier(ctx context.Context, code string, tier Tier, includeInactive bool) (Item, error) {
	row := s.db.QueryRow(ctx, "SELECT "+itemColumns+` FROM price_list_items
		WHERE code = $1 AND pricing_tier = $2 AND ($3 OR active)`, code, string(tier), includeInactive)
	item, err := scanItem(row)
	if err != nil {
		return Item{}, classify("get item by code", err)
	}
	return item, nil
}

func (s *PostgresStore) FindByCodes(ctx context.Context, tier Tier, codes []string, includeInactive bool) ([]Item, error) {
	if len(codes) == 0 {
		return []Item{}, nil
	}
	return s.queryItems(ctx, "resolve codes", "SELECT "+itemColumns+` FROM price_list_items
		WHERE pricing_tier = $1 AND code = ANY($2) AND ($3 OR active)`, string(tier), codes, includeInactive)
}

func (s *PostgresStore) Insert(ctx context.Context, item Item) (Item, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	row := s.db.QueryRow(ctx, `INSERT INTO price_list_items (
			id, code, description, category, unit_of_measure,
			labor_cost_per_unit, material_cost_per_unit, equipment_cost_per_unit, unit_price,
			pricing_tier, active, created_at, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+itemColumns,
		item.ID, item.Code, item.Description, item.Category, item.UnitOfMeasure,
		toNumeric(item.LaborCostPerUnit), toNumeric(item.MaterialCostPerUnit),
		toNumeric(item.EquipmentCostPerUnit), toNumeric(item.UnitPrice),
		string(item.Tier), item.Active, item.CreatedAt, item.LastUpdated)
	saved, err := scanItem(row)
	if err != nil {
		return Item{}, classify("insert item", err)
	}
	return saved, nil
}

func (s *PostgresStore) Update(ctx context.Context, id uuid.UUID, patch Patch, now time.Time) (Item, error) {
	var updated Item
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		current, err := scanItem(tx.QueryRow(ctx, "SELECT "+itemColumns+" FROM price_list_items WHERE id = $1 FOR UPDATE", id))
		if err != nil {
			return err
		}
		next := patch.Apply(current, now)
		updated, err = scanItem(tx.QueryRow(ctx, `UPDATE price_list_items SET
				code = $2, description = $3, category = $4, unit_of_measure = $5,
				labor_cost_per_unit = $6, material_cost_per_unit = $7, equipment_cost_per_unit = $8,
				unit_price = $9, pricing_tier = $10, active = $11, last_updated = $12
			WHERE id = $1
			RETURNING `+itemColumns,
			id, next.Code, next.Description, next.Category, next.UnitOfMeasure,
			toNumeric(next.LaborCostPerUnit), toNumeric(next.MaterialCostPerUnit),
			toNumeric(next.EquipmentCostPerUnit), toNumeric(next.UnitPrice),
			string(next.Tier), next.Active, next.LastUpdated))
		return err
	})
	if err != nil {
		return Item{}, classify("update item", err)
	}
	return updated, nil
}

func (s *PostgresStore) Deactivate(ctx context.Context, id uuid.UUID, now time.Time) (Item, bool, error) {
	row := s.db.QueryRow(ctx, `UPDATE price_list_items SET active = FALSE, last_updated = $2
		WHERE id = $1 AND active
		RETURNING `+itemColumns, id, now)
	item, err := scanItem(row)
	if err == nil {
		return item, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Item{}, false, classify("deactivate item", err)
	}
	// Either unknown or already inactive.
	item, err = s.GetByID(ctx, id)
	if err != nil {
		return Item{}, false, err
	}
	return item, false, nil
}

func (s *PostgresStore) queryItems(ctx context.Context, op, sql string, args ...any) ([]Item, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		return scanItem(row)
	})
	if err != nil {
		return nil, classify(op, err)
	}
	return items, nil
}

func scanItem(row pgx.Row) (Item, error) {
	var (
		item                              Item
		tier                              string
		labor, material, equipment, price pgtype.Numeric
	)
	err := row.Scan(&item.ID, &item.Code, &item.Description, &item.Category, &item.UnitOfMeasure,
		&labor, &material, &equipment, &price,
		&tier, &item.Active, &item.CreatedAt, &item.LastUpdated)
	if err != nil {
		return Item{}, err
	}
	item.Tier = Tier(tier)
	for _, pair := range []struct {
		dst *decimal.Decimal
		src pgtype.Numeric
	}{
		{&item.LaborCostPerUnit, labor},
		{&item.MaterialCostPerUnit, material},
		{&item.EquipmentCostPerUnit, equipment},
		{&item.UnitPrice, price},
	} {
		v, err := fromNumeric(pair.src)
		if err != nil {
			return Item{}, fmt.Errorf("item %s: %w", item.Code, err)
		}
		*pair.dst = v
	}
	return item, nil
}

func toNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) (decimal.Decimal, error) {
	if !n.Valid || n.Int == nil {
		return decimal.Zero, nil
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return decimal.Zero, errors.New("non-finite numeric value")
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// classify maps driver errors onto the Store sentinels.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.UniqueViolation:
			return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
		case pgerrcode.IsConnectionException(pgErr.Code),
			pgerrcode.IsInsufficientResources(pgErr.Code),
			pgerrcode.IsOperatorIntervention(pgErr.Code):
			return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.SafeToRetry(err) || errors.Is(err, context.DeadlineExceeded) ||
		(pgconn.Timeout(err) && !errors.Is(err, context.Canceled)) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
