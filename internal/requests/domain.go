package requests

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/papertrail/internal/access"
	"github.com/odyssey-erp/papertrail/internal/shared"
	"github.com/odyssey-erp/papertrail/internal/workflow"
)

// Unit of measure for requested materials.
type Unit string

const (
	UnitKg    Unit = "kg"
	UnitPiece Unit = "unit"
)

// ParseUnit validates raw unit input.
func ParseUnit(raw string) (Unit, bool) {
	unit := Unit(shared.Normalize(raw))
	return unit, unit == UnitKg || unit == UnitPiece
}

// Item is one requested material line.
type Item struct {
	MaterialID uuid.UUID       `json:"material_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	Unit       Unit            `json:"unit"`
}

// MaterialRequest is a company-initiated ask for materials from a supplier.
type MaterialRequest struct {
	ID            uuid.UUID
	Number        string
	CompanyID     uuid.UUID
	SupplierID    uuid.UUID
	Items         []Item
	Status        workflow.Status
	SupplierNotes string
	DispatchDate  *time.Time
	ChallanID     *uuid.UUID
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Parties returns the owners used for visibility and transition checks.
func (r MaterialRequest) Parties() shared.Parties {
	return shared.Parties{Company: r.CompanyID, Supplier: r.SupplierID}
}

// Convertible reports whether a challan may be generated from the request.
func (r MaterialRequest) Convertible() bool {
	if r.ChallanID != nil {
		return false
	}
	return r.Status == workflow.RequestAcknowledged || r.Status == workflow.RequestDispatched
}

// ListFilter narrows request listings.
type ListFilter struct {
	Scope      access.Scope
	Status     workflow.Status
	SupplierID uuid.UUID
	Page       int
	PerPage    int
}
