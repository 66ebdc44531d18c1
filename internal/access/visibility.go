// Package access narrows document reads to what a principal owns.
package access

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/odyssey-erp/papertrail/internal/shared"
)

// Column is the ownership column a scope filters on.
type Column string

const (
	ColumnSupplier Column = "supplier_id"
	ColumnCustomer Column = "customer_id"
)

// Scope is a list-time ownership predicate. The zero Scope is unrestricted.
type Scope struct {
	Column Column
	ID     uuid.UUID
}

// Unrestricted reports whether the scope admits every document.
func (s Scope) Unrestricted() bool {
	return s.Column == ""
}

// Matches reports whether a document owned by parties falls inside the scope.
func (s Scope) Matches(parties shared.Parties) bool {
	switch s.Column {
	case "":
		return true
	case ColumnSupplier:
		return parties.Supplier == s.ID
	case ColumnCustomer:
		return parties.Customer == s.ID
	default:
		return false
	}
}

// Policy applies role-based visibility.
type Policy struct {
	// ConcealExistence makes out-of-scope single fetches indistinguishable from missing ids.
	ConcealExistence bool
}

// NewPolicy constructs a Policy.
func NewPolicy(concealExistence bool) Policy {
	return Policy{ConcealExistence: concealExistence}
}

// Scope returns the list predicate for principal over documents of type doc. A role
// that has no ownership column on doc is forbidden outright.
func (p Policy) Scope(principal shared.Principal, doc shared.DocumentType) (Scope, error) {
	switch principal.Role {
	case shared.RoleCompany:
		return Scope{}, nil
	case shared.RoleSupplier:
		switch doc {
		case shared.DocMaterialRequest, shared.DocChallan, shared.DocBill:
			return Scope{Column: ColumnSupplier, ID: principal.ID}, nil
		}
	case shared.RoleCustomer:
		if doc == shared.DocInvoice {
			return Scope{Column: ColumnCustomer, ID: principal.ID}, nil
		}
	}
	return Scope{}, fmt.Errorf("%w: %s cannot read %s documents", shared.ErrForbidden, principal.Role, doc)
}

// Authorize checks a loaded document against the principal's scope.
func (p Policy) Authorize(principal shared.Principal, doc shared.DocumentType, parties shared.Parties) error {
	scope, err := p.Scope(principal, doc)
	if err != nil {
		return err
	}
	if scope.Matches(parties) {
		return nil
	}
	if p.ConcealExistence {
		return shared.ErrNotFound
	}
	return fmt.Errorf("%w: %s is not a party to this %s", shared.ErrForbidden, principal.Role, doc)
}
