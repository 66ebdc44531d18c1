// Package billing manages supplier bills and customer invoices. Both kinds share one
// schema shape and lifecycle and differ only in their counterparty.
package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/papertrail/internal/access"
	"github.com/odyssey-erp/papertrail/internal/pricing"
	"github.com/odyssey-erp/papertrail/internal/references"
	"github.com/odyssey-erp/papertrail/internal/shared"
	"github.com/odyssey-erp/papertrail/internal/workflow"
)

// Kind selects bill or invoice semantics.
type Kind string

const (
	KindBill    Kind = "bill"
	KindInvoice Kind = "invoice"
)

// ParseKind validates raw kind input.
func ParseKind(raw string) (Kind, error) {
	switch kind := Kind(shared.Normalize(raw)); kind {
	case KindBill, KindInvoice:
		return kind, nil
	}
	return "", shared.Invalidf("billing kind %q must be bill or invoice", raw)
}

// DocumentType maps the kind onto the visibility and workflow document type.
func (k Kind) DocumentType() shared.DocumentType {
	if k == KindInvoice {
		return shared.DocInvoice
	}
	return shared.DocBill
}

// CounterpartyKind is the registry the counterparty id resolves against.
func (k Kind) CounterpartyKind() references.Kind {
	if k == KindInvoice {
		return references.KindCustomer
	}
	return references.KindSupplier
}

func (k Kind) table() string {
	if k == KindInvoice {
		return "invoices"
	}
	return "bills"
}

func (k Kind) counterpartyColumn() access.Column {
	if k == KindInvoice {
		return access.ColumnCustomer
	}
	return access.ColumnSupplier
}

func (k Kind) numberPrefix() string {
	if k == KindInvoice {
		return "INV"
	}
	return "BILL"
}

func (k Kind) String() string {
	return string(k)
}

// Item is one priced box line.
type Item struct {
	BoxID           uuid.UUID       `json:"box_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	PlasticQuantity decimal.Decimal `json:"plastic_quantity"`
	MaterialRate    decimal.Decimal `json:"material_rate"`
	PlasticRate     decimal.Decimal `json:"plastic_rate"`
}

// Document is a bill or an invoice raised against a challan.
type Document struct {
	ID             uuid.UUID
	Kind           Kind
	Number         string
	CompanyID      uuid.UUID
	CounterpartyID uuid.UUID
	ChallanID      uuid.UUID
	Items          []Item
	TotalAmount    decimal.Decimal
	Status         workflow.Status
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Parties returns the owners used for visibility checks.
func (d Document) Parties() shared.Parties {
	parties := shared.Parties{Company: d.CompanyID}
	switch d.Kind {
	case KindInvoice:
		parties.Customer = d.CounterpartyID
	default:
		parties.Supplier = d.CounterpartyID
	}
	return parties
}

// Lines converts items to calculator input.
func (d Document) Lines() []pricing.Line {
	return itemLines(d.Items)
}

func itemLines(items []Item) []pricing.Line {
	lines := make([]pricing.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, pricing.Line{
			Quantity:        item.Quantity,
			PlasticQuantity: item.PlasticQuantity,
			MaterialRate:    item.MaterialRate,
			PlasticRate:     item.PlasticRate,
		})
	}
	return lines
}

// ListFilter narrows listings of one kind.
type ListFilter struct {
	Scope          access.Scope
	Status         workflow.Status
	CounterpartyID uuid.UUID
	ChallanID      uuid.UUID
	Page           int
	PerPage        int
}

func (d Document) String() string {
	return fmt.Sprintf("%s %s", d.Kind, d.Number)
}
