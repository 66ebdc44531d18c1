package challans

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/papertrail/internal/access"
	"github.com/odyssey-erp/papertrail/internal/pricing"
	"github.com/odyssey-erp/papertrail/internal/references"
	"github.com/odyssey-erp/papertrail/internal/requests"
	"github.com/odyssey-erp/papertrail/internal/shared"
	"github.com/odyssey-erp/papertrail/internal/workflow"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Create(ctx context.Context, ch Challan) (Challan, error)
	Get(ctx context.Context, id uuid.UUID) (Challan, error)
	List(ctx context.Context, filter ListFilter) ([]Challan, int, error)
	Update(ctx context.Context, ch Challan, expectedVersion int64) (Challan, error)
	Delete(ctx context.Context, id uuid.UUID, expectedVersion int64) error
}

// ReferenceResolver confirms foreign ids before they are stored.
type ReferenceResolver interface {
	Resolve(ctx context.Context, kind references.Kind, raw string) (references.Entity, error)
}

// RequestPort is the slice of the material request service used during generation.
type RequestPort interface {
	Get(ctx context.Context, actor shared.Principal, rawID string) (requests.MaterialRequest, error)
	LinkChallan(ctx context.Context, req requests.MaterialRequest, challanID uuid.UUID) (requests.MaterialRequest, error)
}

// BoxLocator picks a box holding a material.
type BoxLocator interface {
	BoxForMaterial(ctx context.Context, materialID uuid.UUID) (uuid.UUID, error)
}

// Transactor runs fn as one atomic unit.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Dependencies wires Service collaborators.
type Dependencies struct {
	Repo       RepositoryPort
	References ReferenceResolver
	Machine    *workflow.Machine
	Calculator pricing.Calculator
	Policy     access.Policy
	Requests   RequestPort
	Boxes      BoxLocator
	Tx         Transactor
	Logger     *slog.Logger
}

// Service runs the challan lifecycle.
type Service struct {
	repo     RepositoryPort
	refs     ReferenceResolver
	machine  *workflow.Machine
	calc     pricing.Calculator
	policy   access.Policy
	requests RequestPort
	boxes    BoxLocator
	tx       Transactor
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the challan service.
func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     deps.Repo,
		refs:     deps.References,
		machine:  deps.Machine,
		calc:     deps.Calculator,
		policy:   deps.Policy,
		requests: deps.Requests,
		boxes:    deps.Boxes,
		tx:       deps.Tx,
		logger:   logger,
		now:      time.Now,
	}
}

// BoxInput describes one box line.
type BoxInput struct {
	BoxID           string `validate:"required"`
	Quantity        decimal.Decimal
	PlasticQuantity decimal.Decimal
}

// CreateInput describes creation payload.
type CreateInput struct {
	Number     string     `validate:"omitempty,max=64"`
	SupplierID string     `validate:"required"`
	Boxes      []BoxInput `validate:"min=1,dive"`
}

// UpdateInput carries content edits. Nil fields are left untouched.
type UpdateInput struct {
	Number          *string `validate:"omitempty,min=1,max=64"`
	SupplierID      *string
	Boxes           []BoxInput `validate:"omitempty,min=1,dive"`
	ExpectedVersion int64
}

// ListInput describes listing parameters.
type ListInput struct {
	Status     string
	SupplierID string
	RequestID  string
	Page       int
	PerPage    int
}

// Create persists a challan in its initial status with a derived total.
func (s *Service) Create(ctx context.Context, actor shared.Principal, input CreateInput) (Challan, error) {
	if err := requireCompany(actor, "creates"); err != nil {
		return Challan{}, err
	}
	if err := shared.ValidateStruct(input); err != nil {
		return Challan{}, err
	}
	ch, err := s.build(ctx, actor, input)
	if err != nil {
		return Challan{}, err
	}
	created, err := s.repo.Create(ctx, ch)
	if err != nil {
		return Challan{}, err
	}
	s.logger.Info("challan created",
		slog.String("id", created.ID.String()),
		slog.String("number", created.Number),
		slog.String("total_cost", pricing.Present(created.TotalCost)),
	)
	return created, nil
}

// Get returns a challan visible to actor.
func (s *Service) Get(ctx context.Context, actor shared.Principal, rawID string) (Challan, error) {
	if _, err := s.policy.Scope(actor, shared.DocChallan); err != nil {
		return Challan{}, err
	}
	id, err := shared.ParseDocumentID(rawID)
	if err != nil {
		return Challan{}, err
	}
	ch, err := s.repo.Get(ctx, id)
	if err != nil {
		return Challan{}, err
	}
	if err := s.policy.Authorize(actor, shared.DocChallan, ch.Parties()); err != nil {
		return Challan{}, err
	}
	return ch, nil
}

// List returns the challans visible to actor.
func (s *Service) List(ctx context.Context, actor shared.Principal, input ListInput) ([]Challan, shared.Pagination, error) {
	scope, err := s.policy.Scope(actor, shared.DocChallan)
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
	if input.RequestID != "" {
		if filter.RequestID, err = shared.ParseDocumentID(input.RequestID); err != nil {
			return nil, shared.Pagination{}, err
		}
	}
	out, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return out, shared.NewPagination(input.Page, input.PerPage, total), nil
}

// Update edits challan content. Edits are accepted only while the challan is pending;
// the total is recomputed from the resulting boxes.
func (s *Service) Update(ctx context.Context, actor shared.Principal, rawID string, input UpdateInput) (Challan, error) {
	if err := requireCompany(actor, "updates"); err != nil {
		return Challan{}, err
	}
	if err := shared.ValidateStruct(input); err != nil {
		return Challan{}, err
	}
	if input.Boxes != nil && len(input.Boxes) == 0 {
		return Challan{}, shared.Invalidf("a challan needs at least one box")
	}
	fields := updateFields(input)
	if len(fields) == 0 {
		return Challan{}, shared.Invalidf("update names no fields")
	}
	ch, err := s.load(ctx, actor, rawID, input.ExpectedVersion)
	if err != nil {
		return Challan{}, err
	}
	if err := s.machine.CheckMutation(ch.Status, fields...); err != nil {
		return Challan{}, err
	}

	expected := ch.Version
	if input.Number != nil {
		ch.Number = *input.Number
	}
	if input.SupplierID != nil {
		supplier, err := s.refs.Resolve(ctx, references.KindSupplier, *input.SupplierID)
		if err != nil {
			return Challan{}, err
		}
		ch.SupplierID = supplier.ID
	}
	if input.Boxes != nil {
		if ch.Boxes, err = s.resolveBoxes(ctx, input.Boxes); err != nil {
			return Challan{}, err
		}
		ch.TotalCost = s.calc.Total(ch.Lines(), pricing.FlatUnitCost)
	}
	ch.UpdatedAt = s.now().UTC()

	updated, err := s.repo.Update(ctx, ch, expected)
	if err != nil {
		return Challan{}, err
	}
	s.logger.Info("challan updated", slog.String("id", updated.ID.String()), slog.Int64("version", updated.Version))
	return updated, nil
}

// Advance applies a lifecycle action such as dispatch or receive.
func (s *Service) Advance(ctx context.Context, actor shared.Principal, rawID string, action workflow.Action, expectedVersion int64) (Challan, error) {
	ch, err := s.load(ctx, actor, rawID, expectedVersion)
	if err != nil {
		return Challan{}, err
	}
	next, err := s.machine.Transition(ch.Status, action, actor, ch.Parties())
	if err != nil {
		return Challan{}, err
	}
	expected := ch.Version
	previous := ch.Status
	ch.Status = next
	ch.UpdatedAt = s.now().UTC()
	updated, err := s.repo.Update(ctx, ch, expected)
	if err != nil {
		return Challan{}, err
	}
	s.logger.Info("challan status changed",
		slog.String("id", updated.ID.String()),
		slog.String("from", string(previous)),
		slog.String("to", string(updated.Status)),
	)
	return updated, nil
}

// Delete removes a challan. Only a company may delete.
func (s *Service) Delete(ctx context.Context, actor shared.Principal, rawID string, expectedVersion int64) error {
	if err := requireCompany(actor, "deletes"); err != nil {
		return err
	}
	id, err := shared.ParseDocumentID(rawID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id, expectedVersion); err != nil {
		return err
	}
	s.logger.Info("challan deleted", slog.String("id", id.String()))
	return nil
}

func (s *Service) load(ctx context.Context, actor shared.Principal, rawID string, expectedVersion int64) (Challan, error) {
	ch, err := s.Get(ctx, actor, rawID)
	if err != nil {
		return Challan{}, err
	}
	if expectedVersion != 0 && expectedVersion != ch.Version {
		return Challan{}, shared.ErrConflict
	}
	return ch, nil
}

// build resolves references and derives the total for a new challan.
func (s *Service) build(ctx context.Context, actor shared.Principal, input CreateInput) (Challan, error) {
	supplier, err := s.refs.Resolve(ctx, references.KindSupplier, input.SupplierID)
	if err != nil {
		return Challan{}, err
	}
	boxes, err := s.resolveBoxes(ctx, input.Boxes)
	if err != nil {
		return Challan{}, err
	}
	if input.Number == "" {
		input.Number = shared.GenerateNumber("CH")
	}
	now := s.now().UTC()
	return Challan{
		ID:         uuid.New(),
		Number:     input.Number,
		CompanyID:  actor.ID,
		SupplierID: supplier.ID,
		Boxes:      boxes,
		TotalCost:  s.calc.Total(boxLines(boxes), pricing.FlatUnitCost),
		Status:     s.machine.Initial(),
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *Service) resolveBoxes(ctx context.Context, inputs []BoxInput) ([]Box, error) {
	boxes := make([]Box, 0, len(inputs))
	for _, in := range inputs {
		boxes = append(boxes, Box{Quantity: in.Quantity, PlasticQuantity: in.PlasticQuantity})
	}
	if err := pricing.ValidateLines(boxLines(boxes)); err != nil {
		return nil, err
	}
	for i, in := range inputs {
		entity, err := s.refs.Resolve(ctx, references.KindBox, in.BoxID)
		if err != nil {
			return nil, err
		}
		boxes[i].BoxID = entity.ID
	}
	return boxes, nil
}

func updateFields(input UpdateInput) []workflow.Field {
	var fields []workflow.Field
	if input.Number != nil {
		fields = append(fields, workflow.FieldNumber)
	}
	if input.SupplierID != nil {
		fields = append(fields, workflow.FieldSupplier)
	}
	if input.Boxes != nil {
		fields = append(fields, workflow.FieldItems)
	}
	return fields
}

func requireCompany(actor shared.Principal, verb string) error {
	if actor.Role != shared.RoleCompany {
		return fmt.Errorf("%w: only a company %s challans", shared.ErrForbidden, verb)
	}
	return nil
}
