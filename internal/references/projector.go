package references

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/papertrail/internal/shared"
)

// Key addresses a referenced entity.
type Key struct {
	Kind Kind
	ID   uuid.UUID
}

// Projection maps referenced entities to their display fields.
type Projection map[Key]Entity

// Display returns the display field for a reference, or empty when unknown.
func (p Projection) Display(kind Kind, id uuid.UUID) string {
	return p[Key{Kind: kind, ID: id}].Display
}

// Ref returns the projected entity, falling back to the bare id when unknown.
func (p Projection) Ref(kind Kind, id uuid.UUID) Entity {
	if entity, ok := p[Key{Kind: kind, ID: id}]; ok {
		return entity
	}
	return Entity{Kind: kind, ID: id}
}

// Projector assembles display projections for response payloads.
type Projector struct {
	lookup      Lookup
	concurrency int
}

// NewProjector constructs a Projector.
func NewProjector(lookup Lookup) *Projector {
	return &Projector{lookup: lookup, concurrency: 8}
}

// Project resolves keys concurrently. Entities removed from master data since the
// document was written project with an empty display instead of failing the read.
func (p *Projector) Project(ctx context.Context, keys ...Key) (Projection, error) {
	unique := make([]Key, 0, len(keys))
	seen := make(map[Key]struct{}, len(keys))
	for _, key := range keys {
		if key.ID == uuid.Nil {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}

	results := make([]Entity, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, key := range unique {
		g.Go(func() error {
			entity, err := p.lookup.Find(gctx, key.Kind, key.ID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					results[i] = Entity{Kind: key.Kind, ID: key.ID}
					return nil
				}
				return err
			}
			results[i] = entity
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	projection := make(Projection, len(unique))
	for i, key := range unique {
		projection[key] = results[i]
	}
	return projection, nil
}
