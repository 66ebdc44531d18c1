package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/papertrail/internal/platform/db"
	"github.com/odyssey-erp/papertrail/internal/shared"
)

// Repository provides PostgreSQL backed persistence for both kinds. Table and column
// names come from Kind and are never user supplied.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func selectColumns(kind Kind) string {
	return fmt.Sprintf(`
	SELECT id, number, company_id, %s, challan_id, items, total_amount, status,
	       version, created_at, updated_at
	FROM %s`, kind.counterpartyColumn(), kind.table())
}

// Create inserts a new document.
func (r *Repository) Create(ctx context.Context, doc Document) (Document, error) {
	items, err := json.Marshal(doc.Items)
	if err != nil {
		return Document{}, fmt.Errorf("billing: encode items: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, number, company_id, %s, challan_id, items, total_amount, status,
		    version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, doc.Kind.table(), doc.Kind.counterpartyColumn())
	_, err = db.Conn(ctx, r.pool).Exec(ctx, query,
		doc.ID, doc.Number, doc.CompanyID, doc.CounterpartyID, doc.ChallanID, items, doc.TotalAmount,
		doc.Status, doc.Version, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return Document{}, db.MapError(err)
	}
	return doc, nil
}

// Get loads a document by id.
func (r *Repository) Get(ctx context.Context, kind Kind, id uuid.UUID) (Document, error) {
	doc, err := scanDocument(kind, db.Conn(ctx, r.pool).QueryRow(ctx, selectColumns(kind)+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, shared.ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// List returns a page of documents and the total match count.
func (r *Repository) List(ctx context.Context, kind Kind, filter ListFilter) ([]Document, int, error) {
	var f db.Filter
	if !filter.Scope.Unrestricted() {
		f.Eq(string(filter.Scope.Column), filter.Scope.ID)
	}
	if filter.Status != "" {
		f.Eq("status", filter.Status)
	}
	if filter.CounterpartyID != uuid.Nil {
		f.Eq(string(kind.counterpartyColumn()), filter.CounterpartyID)
	}
	if filter.ChallanID != uuid.Nil {
		f.Eq("challan_id", filter.ChallanID)
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM "+kind.table()+f.Where(), f.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := shared.PageWindow(filter.Page, filter.PerPage)
	page, args := f.Page(limit, offset)
	rows, err := conn.Query(ctx, selectColumns(kind)+f.Where()+" ORDER BY created_at DESC, id"+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out, err := collect(kind, rows)
	return out, total, err
}

// Batch returns up to limit documents with ids greater than after, in id order.
func (r *Repository) Batch(ctx context.Context, kind Kind, after uuid.UUID, limit int) ([]Document, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, selectColumns(kind)+" WHERE id > $1 ORDER BY id LIMIT $2", after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(kind, rows)
}

// Update persists mutable fields when the stored version equals expectedVersion.
func (r *Repository) Update(ctx context.Context, doc Document, expectedVersion int64) (Document, error) {
	items, err := json.Marshal(doc.Items)
	if err != nil {
		return Document{}, fmt.Errorf("billing: encode items: %w", err)
	}
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = $3, items = $4, total_amount = $5, status = $6,
		    version = version + 1, updated_at = $7
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`, doc.Kind.table(), doc.Kind.counterpartyColumn())
	conn := db.Conn(ctx, r.pool)
	err = conn.QueryRow(ctx, query,
		doc.ID, expectedVersion, doc.CounterpartyID, items, doc.TotalAmount, doc.Status, doc.UpdatedAt,
	).Scan(&doc.Version, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			exists, existsErr := db.Exists(ctx, conn, doc.Kind.table(), doc.ID)
			if existsErr != nil {
				return Document{}, existsErr
			}
			return Document{}, db.VersionMiss(exists)
		}
		return Document{}, db.MapError(err)
	}
	return doc, nil
}

// Delete removes a document. A non-zero expectedVersion guards the delete.
func (r *Repository) Delete(ctx context.Context, kind Kind, id uuid.UUID, expectedVersion int64) error {
	conn := db.Conn(ctx, r.pool)
	query := "DELETE FROM " + kind.table() + " WHERE id = $1 AND ($2::bigint = 0 OR version = $2)"
	tag, err := conn.Exec(ctx, query, id, expectedVersion)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		exists, err := db.Exists(ctx, conn, kind.table(), id)
		if err != nil {
			return err
		}
		return db.VersionMiss(exists)
	}
	return nil
}

func collect(kind Kind, rows pgx.Rows) ([]Document, error) {
	var out []Document
	for rows.Next() {
		doc, err := scanDocument(kind, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(kind Kind, row rowScanner) (Document, error) {
	doc := Document{Kind: kind}
	var items []byte
	err := row.Scan(
		&doc.ID, &doc.Number, &doc.CompanyID, &doc.CounterpartyID, &doc.ChallanID, &items, &doc.TotalAmount,
		&doc.Status, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return Document{}, err
	}
	if err := json.Unmarshal(items, &doc.Items); err != nil {
		return Document{}, fmt.Errorf("billing: decode items: %w", err)
	}
	return doc, nil
}
