// Package references resolves foreign ids embedded in documents against master data.
package references

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/papertrail/internal/shared"
)

// Kind names the registry a reference points into.
type Kind string

const (
	KindSupplier Kind = "supplier"
	KindCustomer Kind = "customer"
	KindCompany  Kind = "company"
	KindMaterial Kind = "material"
	KindBox      Kind = "box"
	KindLot      Kind = "lot"
	KindChallan  Kind = "challan"
)

// Entity is a resolved reference with its display projection.
type Entity struct {
	Kind    Kind      `json:"kind"`
	ID      uuid.UUID `json:"id"`
	Display string    `json:"display"`
}

// Lookup finds entities by kind and id, returning shared.ErrNotFound when absent.
type Lookup interface {
	Find(ctx context.Context, kind Kind, id uuid.UUID) (Entity, error)
}

// Ref is an unresolved reference as received from a client.
type Ref struct {
	Kind Kind
	ID   string
}

// Validator checks that references are well formed and exist.
type Validator struct {
	lookup Lookup
}

// NewValidator constructs a Validator.
func NewValidator(lookup Lookup) *Validator {
	return &Validator{lookup: lookup}
}

// Parse checks identifier syntax without touching the store.
func Parse(kind Kind, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, &shared.ReferenceError{Kind: string(kind), ID: raw, Err: shared.ErrInvalidReference}
	}
	return id, nil
}

// Resolve parses raw and confirms the entity exists.
func (v *Validator) Resolve(ctx context.Context, kind Kind, raw string) (Entity, error) {
	id, err := Parse(kind, raw)
	if err != nil {
		return Entity{}, err
	}
	entity, err := v.lookup.Find(ctx, kind, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Entity{}, &shared.ReferenceError{Kind: string(kind), ID: raw, Err: shared.ErrReferenceNotFound}
		}
		return Entity{}, fmt.Errorf("references: resolve %s: %w", kind, err)
	}
	return entity, nil
}

// ResolveAll resolves refs in order and stops at the first failure.
func (v *Validator) ResolveAll(ctx context.Context, refs []Ref) ([]Entity, error) {
	out := make([]Entity, 0, len(refs))
	for _, ref := range refs {
		entity, err := v.Resolve(ctx, ref.Kind, ref.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}
