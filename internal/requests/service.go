package requests

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/papertrail/internal/access"
	"github.com/odyssey-erp/papertrail/internal/references"
	"github.com/odyssey-erp/papertrail/internal/shared"
	"github.com/odyssey-erp/papertrail/internal/workflow"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Create(ctx context.Context, req MaterialRequest) (MaterialRequest, error)
	Get(ctx context.Context, id uuid.UUID) (MaterialRequest, error)
	List(ctx context.Context, filter ListFilter) ([]MaterialRequest, int, error)
	Update(ctx context.Context, req MaterialRequest, expectedVersion int64) (MaterialRequest, error)
	Delete(ctx context.Context, id uuid.UUID, expectedVersion int64) error
}

// ReferenceResolver confirms foreign ids before they are stored.
type ReferenceResolver interface {
	Resolve(ctx context.Context, kind references.Kind, raw string) (references.Entity, error)
}

// Service runs the material request lifecycle.
type Service struct {
	repo    RepositoryPort
	refs    ReferenceResolver
	machine *workflow.Machine
	policy  access.Policy
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the material request service.
func NewService(repo RepositoryPort, refs ReferenceResolver, machine *workflow.Machine, policy access.Policy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, refs: refs, machine: machine, policy: policy, logger: logger, now: time.Now}
}

// CreateInput describes creation payload.
type CreateInput struct {
	Number     string      `validate:"omitempty,max=64"`
	SupplierID string      `validate:"required"`
	Items      []ItemInput `validate:"min=1,dive"`
}

// ItemInput describes a requested material line.
type ItemInput struct {
	MaterialID string `validate:"required"`
	Quantity   decimal.Decimal
	Unit       string `validate:"required"`
}

// ListInput describes listing parameters.
type ListInput struct {
	Status     string
	SupplierID string
	Page       int
	PerPage    int
}

// RespondInput is the named supplier's status change, optionally confirming notes,
// a dispatch date and revised item quantities.
type RespondInput struct {
	Status          string `validate:"required"`
	SupplierNotes   *string
	DispatchDate    *time.Time
	Items           []QuantityInput `validate:"dive"`
	ExpectedVersion int64
}

// QuantityInput revises the quantity of one requested material.
type QuantityInput struct {
	MaterialID string `validate:"required"`
	Quantity   decimal.Decimal
}

// Create persists a new request in its initial status.
func (s *Service) Create(ctx context.Context, actor shared.Principal, input CreateInput) (MaterialRequest, error) {
	if actor.Role != shared.RoleCompany {
		return MaterialRequest{}, fmt.Errorf("%w: only a company creates material requests", shared.ErrForbidden)
	}
	if err := shared.ValidateStruct(input); err != nil {
		return MaterialRequest{}, err
	}
	items := make([]Item, 0, len(input.Items))
	for i, line := range input.Items {
		unit, ok := ParseUnit(line.Unit)
		if !ok {
			return MaterialRequest{}, shared.Invalidf("items[%d].unit %q must be kg or unit", i, line.Unit)
		}
		if !line.Quantity.IsPositive() {
			return MaterialRequest{}, shared.Invalidf("items[%d].quantity must be greater than zero", i)
		}
		items = append(items, Item{Quantity: line.Quantity, Unit: unit})
	}

	supplier, err := s.refs.Resolve(ctx, references.KindSupplier, input.SupplierID)
	if err != nil {
		return MaterialRequest{}, err
	}
	for i, line := range input.Items {
		material, err := s.refs.Resolve(ctx, references.KindMaterial, line.MaterialID)
		if err != nil {
			return MaterialRequest{}, err
		}
		items[i].MaterialID = material.ID
	}

	if input.Number == "" {
		input.Number = shared.GenerateNumber("REQ")
	}
	now := s.now().UTC()
	req := MaterialRequest{
		ID:         uuid.New(),
		Number:     input.Number,
		CompanyID:  actor.ID,
		SupplierID: supplier.ID,
		Items:      items,
		Status:     s.machine.Initial(),
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	created, err := s.repo.Create(ctx, req)
	if err != nil {
		return MaterialRequest{}, err
	}
	s.logger.Info("material request created",
		slog.String("id", created.ID.String()),
		slog.String("number", created.Number),
		slog.String("supplier_id", created.SupplierID.String()),
	)
	return created, nil
}

// Get returns a request visible to actor.
func (s *Service) Get(ctx context.Context, actor shared.Principal, rawID string) (MaterialRequest, error) {
	if _, err := s.policy.Scope(actor, shared.DocMaterialRequest); err != nil {
		return MaterialRequest{}, err
	}
	id, err := shared.ParseDocumentID(rawID)
	if err != nil {
		return MaterialRequest{}, err
	}
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return MaterialRequest{}, err
	}
	if err := s.policy.Authorize(actor, shared.DocMaterialRequest, req.Parties()); err != nil {
		return MaterialRequest{}, err
	}
	return req, nil
}

// List returns the requests visible to actor.
func (s *Service) List(ctx context.Context, actor shared.Principal, input ListInput) ([]MaterialRequest, shared.Pagination, error) {
	scope, err := s.policy.Scope(actor, shared.DocMaterialRequest)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	filter := ListFilter{Scope: scope, Page: input.Page, PerPage: input.PerPage}
	if input.Status != "" {
		if filter.Status, err = s.machine.ParseStatus(input.Status); err != nil {
			return nil, shared.Pagination{}, err
		}
	}
	if input.SupplierID != "" {
		if filter.SupplierID, err = references.Parse(references.KindSupplier, input.SupplierID); err != nil {
			return nil, shared.Pagination{}, err
		}
	}
	out, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return out, shared.NewPagination(input.Page, input.PerPage, total), nil
}

// Respond applies the named supplier's status change.
func (s *Service) Respond(ctx context.Context, actor shared.Principal, rawID string, input RespondInput) (MaterialRequest, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return MaterialRequest{}, err
	}
	req, err := s.Get(ctx, actor, rawID)
	if err != nil {
		return MaterialRequest{}, err
	}
	if input.ExpectedVersion != 0 && input.ExpectedVersion != req.Version {
		return MaterialRequest{}, shared.ErrConflict
	}

	target, err := s.machine.ParseStatus(input.Status)
	if err != nil {
		return MaterialRequest{}, err
	}
	action, err := s.machine.ActionInto(target)
	if err != nil {
		return MaterialRequest{}, err
	}
	if err := s.machine.CheckActionFields(action, respondFields(input)...); err != nil {
		return MaterialRequest{}, err
	}
	next, err := s.machine.Transition(req.Status, action, actor, req.Parties())
	if err != nil {
		return MaterialRequest{}, err
	}

	expected := req.Version
	if len(input.Items) > 0 {
		if req.Items, err = reviseQuantities(req.Items, input.Items); err != nil {
			return MaterialRequest{}, err
		}
	}
	if input.SupplierNotes != nil {
		req.SupplierNotes = *input.SupplierNotes
	}
	if input.DispatchDate != nil {
		date := input.DispatchDate.UTC()
		req.DispatchDate = &date
	}
	previous := req.Status
	req.Status = next
	req.UpdatedAt = s.now().UTC()

	updated, err := s.repo.Update(ctx, req, expected)
	if err != nil {
		return MaterialRequest{}, err
	}
	s.logger.Info("material request status changed",
		slog.String("id", updated.ID.String()),
		slog.String("from", string(previous)),
		slog.String("to", string(updated.Status)),
	)
	return updated, nil
}

// LinkChallan records the challan generated from req. The write is guarded by the
// version req was loaded at.
func (s *Service) LinkChallan(ctx context.Context, req MaterialRequest, challanID uuid.UUID) (MaterialRequest, error) {
	if !req.Convertible() {
		return MaterialRequest{}, shared.ErrInvalidState
	}
	expected := req.Version
	req.ChallanID = &challanID
	req.UpdatedAt = s.now().UTC()
	return s.repo.Update(ctx, req, expected)
}

// Delete removes a request. Only a company may delete.
func (s *Service) Delete(ctx context.Context, actor shared.Principal, rawID string, expectedVersion int64) error {
	if actor.Role != shared.RoleCompany {
		return fmt.Errorf("%w: only a company deletes material requests", shared.ErrForbidden)
	}
	id, err := shared.ParseDocumentID(rawID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id, expectedVersion); err != nil {
		return err
	}
	s.logger.Info("material request deleted", slog.String("id", id.String()))
	return nil
}

func respondFields(input RespondInput) []workflow.Field {
	var fields []workflow.Field
	if input.SupplierNotes != nil {
		fields = append(fields, workflow.FieldNotes)
	}
	if input.DispatchDate != nil {
		fields = append(fields, workflow.FieldDispatchDate)
	}
	if len(input.Items) > 0 {
		fields = append(fields, workflow.FieldItems)
	}
	return fields
}

func reviseQuantities(items []Item, revisions []QuantityInput) ([]Item, error) {
	out := append([]Item(nil), items...)
	for i, rev := range revisions {
		materialID, err := references.Parse(references.KindMaterial, rev.MaterialID)
		if err != nil {
			return nil, err
		}
		if !rev.Quantity.IsPositive() {
			return nil, shared.Invalidf("items[%d].quantity must be greater than zero", i)
		}
		found := false
		for j := range out {
			if out[j].MaterialID == materialID {
				out[j].Quantity = rev.Quantity
				found = true
			}
		}
		if !found {
			return nil, shared.Invalidf("items[%d]: material %s is not on this request", i, materialID)
		}
	}
	return out, nil
}
