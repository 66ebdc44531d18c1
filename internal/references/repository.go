package references

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/papertrail/internal/platform/db"
	"github.com/odyssey-erp/papertrail/internal/shared"
)

var findQueries = map[Kind]string{
	KindSupplier: `SELECT id, name FROM parties WHERE id = $1 AND role = 'supplier'`,
	KindCustomer: `SELECT id, name FROM parties WHERE id = $1 AND role = 'customer'`,
	KindCompany:  `SELECT id, name FROM parties WHERE id = $1 AND role = 'company'`,
	KindMaterial: `SELECT id, name FROM materials WHERE id = $1`,
	KindBox:      `SELECT id, box_number FROM boxes WHERE id = $1`,
	KindLot:      `SELECT id, lot_number FROM lots WHERE id = $1`,
	KindChallan:  `SELECT id, number FROM challans WHERE id = $1`,
}

// Rates carries master-data pricing for a box through its lot's material.
type Rates struct {
	BoxID        uuid.UUID
	MaterialID   uuid.UUID
	MaterialRate decimal.Decimal
	PlasticRate  decimal.Decimal
}

// Repository reads master data from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Find implements Lookup.
func (r *Repository) Find(ctx context.Context, kind Kind, id uuid.UUID) (Entity, error) {
	query, ok := findQueries[kind]
	if !ok {
		return Entity{}, fmt.Errorf("references: unknown kind %q", kind)
	}
	entity := Entity{Kind: kind}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, id).Scan(&entity.ID, &entity.Display)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entity{}, shared.ErrNotFound
		}
		return Entity{}, err
	}
	return entity, nil
}

// BoxRates returns the material and plastic rates that apply to a box.
func (r *Repository) BoxRates(ctx context.Context, boxID uuid.UUID) (Rates, error) {
	const query = `
		SELECT b.id, m.id, m.material_rate, m.plastic_rate
		FROM boxes b
		JOIN lots l ON l.id = b.lot_id
		JOIN materials m ON m.id = l.material_id
		WHERE b.id = $1
	`
	var rates Rates
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, boxID).Scan(
		&rates.BoxID, &rates.MaterialID, &rates.MaterialRate, &rates.PlasticRate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rates{}, shared.ErrNotFound
		}
		return Rates{}, err
	}
	return rates, nil
}

// BoxForMaterial picks the first box whose lot holds the material.
func (r *Repository) BoxForMaterial(ctx context.Context, materialID uuid.UUID) (uuid.UUID, error) {
	const query = `
		SELECT b.id
		FROM boxes b
		JOIN lots l ON l.id = b.lot_id
		WHERE l.material_id = $1
		ORDER BY b.box_number
		LIMIT 1
	`
	var id uuid.UUID
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, query, materialID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, shared.ErrNotFound
		}
		return uuid.Nil, err
	}
	return id, nil
}
