// Package challans manages delivery challans and their generation from material requests.
package challans

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/papertrail/internal/access"
	"github.com/odyssey-erp/papertrail/internal/pricing"
	"github.com/odyssey-erp/papertrail/internal/shared"
	"github.com/odyssey-erp/papertrail/internal/workflow"
)

// Box is one shipped box line.
type Box struct {
	BoxID           uuid.UUID       `json:"box_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	PlasticQuantity decimal.Decimal `json:"plastic_quantity"`
}

// Challan is a delivery note listing the boxes shipped by a supplier.
type Challan struct {
	ID         uuid.UUID
	Number     string
	CompanyID  uuid.UUID
	SupplierID uuid.UUID
	RequestID  *uuid.UUID
	Boxes      []Box
	TotalCost  decimal.Decimal
	Status     workflow.Status
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Parties returns the owners used for visibility checks.
func (c Challan) Parties() shared.Parties {
	return shared.Parties{Company: c.CompanyID, Supplier: c.SupplierID}
}

// Lines converts boxes to calculator input.
func (c Challan) Lines() []pricing.Line {
	return boxLines(c.Boxes)
}

func boxLines(boxes []Box) []pricing.Line {
	lines := make([]pricing.Line, 0, len(boxes))
	for _, b := range boxes {
		lines = append(lines, pricing.Line{Quantity: b.Quantity, PlasticQuantity: b.PlasticQuantity})
	}
	return lines
}

// ListFilter narrows challan listings.
type ListFilter struct {
	Scope      access.Scope
	Status     workflow.Status
	SupplierID uuid.UUID
	RequestID  uuid.UUID
	Page       int
	PerPage    int
}
