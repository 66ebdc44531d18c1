package requests

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

const table = "material_requests"

const selectColumns = `
	SELECT id, number, company_id, supplier_id, items, status, supplier_notes,
	       dispatch_date, challan_id, version, created_at, updated_at
	FROM material_requests`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new request.
func (r *Repository) Create(ctx context.Context, req MaterialRequest) (MaterialRequest, error) {
	items, err := json.Marshal(req.Items)
	if err != nil {
		return MaterialRequest{}, fmt.Errorf("requests: encode items: %w", err)
	}
	const query = `
		INSERT INTO material_requests (id, number, company_id, supplier_id, items, status,
		    supplier_notes, dispatch_date, challan_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = db.Conn(ctx, r.pool).Exec(ctx, query,
		req.ID, req.Number, req.CompanyID, req.SupplierID, items, req.Status,
		req.SupplierNotes, req.DispatchDate, req.ChallanID, req.Version, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return MaterialRequest{}, db.MapError(err)
	}
	return req, nil
}

// Get loads a request by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (MaterialRequest, error) {
	req, err := scanRequest(db.Conn(ctx, r.pool).QueryRow(ctx, selectColumns+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MaterialRequest{}, shared.ErrNotFound
		}
		return MaterialRequest{}, err
	}
	return req, nil
}

// List returns a page of requests and the total match count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]MaterialRequest, int, error) {
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

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM material_requests"+f.Where(), f.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := shared.PageWindow(filter.Page, filter.PerPage)
	page, args := f.Page(limit, offset)
	rows, err := conn.Query(ctx, selectColumns+f.Where()+" ORDER BY created_at DESC, id"+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []MaterialRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, req)
	}
	return out, total, rows.Err()
}

// Update persists mutable fields when the stored version equals expectedVersion.
func (r *Repository) Update(ctx context.Context, req MaterialRequest, expectedVersion int64) (MaterialRequest, error) {
	items, err := json.Marshal(req.Items)
	if err != nil {
		return MaterialRequest{}, fmt.Errorf("requests: encode items: %w", err)
	}
	const query = `
		UPDATE material_requests
		SET items = $3, status = $4, supplier_notes = $5, dispatch_date = $6,
		    challan_id = $7, version = version + 1, updated_at = $8
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`
	conn := db.Conn(ctx, r.pool)
	err = conn.QueryRow(ctx, query,
		req.ID, expectedVersion, items, req.Status, req.SupplierNotes, req.DispatchDate, req.ChallanID, req.UpdatedAt,
	).Scan(&req.Version, &req.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			exists, existsErr := db.Exists(ctx, conn, table, req.ID)
			if existsErr != nil {
				return MaterialRequest{}, existsErr
			}
			return MaterialRequest{}, db.VersionMiss(exists)
		}
		return MaterialRequest{}, db.MapError(err)
	}
	return req, nil
}

// Delete removes a request. A non-zero expectedVersion guards the delete.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID, expectedVersion int64) error {
	conn := db.Conn(ctx, r.pool)
	tag, err := conn.Exec(ctx, `DELETE FROM material_requests WHERE id = $1 AND ($2::bigint = 0 OR version = $2)`, id, expectedVersion)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (MaterialRequest, error) {
	var (
		req          MaterialRequest
		items        []byte
		dispatchDate pgtype.Timestamptz
		challanID    pgtype.UUID
	)
	err := row.Scan(
		&req.ID, &req.Number, &req.CompanyID, &req.SupplierID, &items, &req.Status, &req.SupplierNotes,
		&dispatchDate, &challanID, &req.Version, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return MaterialRequest{}, err
	}
	if err := json.Unmarshal(items, &req.Items); err != nil {
		return MaterialRequest{}, fmt.Errorf("requests: decode items: %w", err)
	}
	if dispatchDate.Valid {
		t := dispatchDate.Time
		req.DispatchDate = &t
	}
	if challanID.Valid {
		id := uuid.UUID(challanID.Bytes)
		req.ChallanID = &id
	}
	return req, nil
}
