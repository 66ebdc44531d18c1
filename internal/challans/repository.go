package challans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/papertrail/internal/platform/db"
	"github.com/odyssey-erp/papertrail/internal/shared"
)

const table = "challans"

const selectColumns = `
	SELECT id, number, company_id, supplier_id, request_id, boxes, total_cost, status,
	       version, created_at, updated_at
	FROM challans`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new challan.
func (r *Repository) Create(ctx context.Context, ch Challan) (Challan, error) {
	boxes, err := json.Marshal(ch.Boxes)
	if err != nil {
		return Challan{}, fmt.Errorf("challans: encode boxes: %w", err)
	}
	const query = `
		INSERT INTO challans (id, number, company_id, supplier_id, request_id, boxes, total_cost,
		    status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = db.Conn(ctx, r.pool).Exec(ctx, query,
		ch.ID, ch.Number, ch.CompanyID, ch.SupplierID, ch.RequestID, boxes, ch.TotalCost,
		ch.Status, ch.Version, ch.CreatedAt, ch.UpdatedAt,
	)
	if err != nil {
		return Challan{}, db.MapError(err)
	}
	return ch, nil
}

// Get loads a challan by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Challan, error) {
	ch, err := scanChallan(db.Conn(ctx, r.pool).QueryRow(ctx, selectColumns+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Challan{}, shared.ErrNotFound
		}
		return Challan{}, err
	}
	return ch, nil
}

// List returns a page of challans and the total match count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Challan, int, error) {
	var f db.Filter
	if !filter.Scope.Unrestricted() {
		f.Eq(string(filter.Scope.Column), filter.Scope.ID)
	}
	if filter.Status != "" {
		f.Eq("status", filter.Status)
	}
	if filter.SupplierID != uuid.Nil {
		f.Eq("supplier_id", filter.SupplierID)
	}
	if filter.RequestID != uuid.Nil {
		f.Eq("request_id", filter.RequestID)
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM challans"+f.Where(), f.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := shared.PageWindow(filter.Page, filter.PerPage)
	page, args := f.Page(limit, offset)
	rows, err := conn.Query(ctx, selectColumns+f.Where()+" ORDER BY created_at DESC, id"+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out, err := collect(rows)
	return out, total, err
}

// Batch returns up to limit challans with ids greater than after, in id order.
func (r *Repository) Batch(ctx context.Context, after uuid.UUID, limit int) ([]Challan, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, selectColumns+" WHERE id > $1 ORDER BY id LIMIT $2", after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// Update persists mutable fields when the stored version equals expectedVersion.
func (r *Repository) Update(ctx context.Context, ch Challan, expectedVersion int64) (Challan, error) {
	boxes, err := json.Marshal(ch.Boxes)
	if err != nil {
		return Challan{}, fmt.Errorf("challans: encode boxes: %w", err)
	}
	const query = `
		UPDATE challans
		SET number = $3, supplier_id = $4, boxes = $5, total_cost = $6, status = $7,
		    version = version + 1, updated_at = $8
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`
	conn := db.Conn(ctx, r.pool)
	err = conn.QueryRow(ctx, query,
		ch.ID, expectedVersion, ch.Number, ch.SupplierID, boxes, ch.TotalCost, ch.Status, ch.UpdatedAt,
	).Scan(&ch.Version, &ch.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			exists, existsErr := db.Exists(ctx, conn, table, ch.ID)
			if existsErr != nil {
				return Challan{}, existsErr
			}
			return Challan{}, db.VersionMiss(exists)
		}
		return Challan{}, db.MapError(err)
	}
	return ch, nil
}

// Delete removes a challan. A non-zero expectedVersion guards the delete.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID, expectedVersion int64) error {
	conn := db.Conn(ctx, r.pool)
	tag, err := conn.Exec(ctx, `DELETE FROM challans WHERE id = $1 AND ($2::bigint = 0 OR version = $2)`, id, expectedVersion)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		exists, err := db.Exists(ctx, conn, table, id)
		if err != nil {
			return err
		}
		return db.VersionMiss(exists)
	}
	return nil
}

func collect(rows pgx.Rows) ([]Challan, error) {
	var out []Challan
	for rows.Next() {
		ch, err := scanChallan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChallan(row rowScanner) (Challan, error) {
	var (
		ch        Challan
		boxes     []byte
		requestID pgtype.UUID
	)
	err := row.Scan(
		&ch.ID, &ch.Number, &ch.CompanyID, &ch.SupplierID, &requestID, &boxes, &ch.TotalCost, &ch.Status,
		&ch.Version, &ch.CreatedAt, &ch.UpdatedAt,
	)
	if err != nil {
		return Challan{}, err
	}
	if err := json.Unmarshal(boxes, &ch.Boxes); err != nil {
		return Challan{}, fmt.Errorf("challans: decode boxes: %w", err)
	}
	if requestID.Valid {
		id := uuid.UUID(requestID.Bytes)
		ch.RequestID = &id
	}
	return ch, nil
}
