package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/papertrail/internal/access"
	"github.com/odyssey-erp/papertrail/internal/challans"
	"github.com/odyssey-erp/papertrail/internal/pricing"
	"github.com/odyssey-erp/papertrail/internal/references"
	"github.com/odyssey-erp/papertrail/internal/shared"
	"github.com/odyssey-erp/papertrail/internal/workflow"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Create(ctx context.Context, doc Document) (Document, error)
	Get(ctx context.Context, kind Kind, id uuid.UUID) (Document, error)
	List(ctx context.Context, kind Kind, filter ListFilter) ([]Document, int, error)
	Update(ctx context.Context, doc Document, expectedVersion int64) (Document, error)
	Delete(ctx context.Context, kind Kind, id uuid.UUID, expectedVersion int64) error
}

// ReferenceResolver confirms foreign ids before they are stored.
type ReferenceResolver interface {
	Resolve(ctx context.Context, kind references.Kind, raw string) (references.Entity, error)
	ResolveAll(ctx context.Context, refs []references.Ref) ([]references.Entity, error)
}

// ChallanSource loads the challan a document is derived from.
type ChallanSource interface {
	Get(ctx context.Context, actor shared.Principal, rawID string) (challans.Challan, error)
}

// RateLookup returns master-data rates for a box.
type RateLookup interface {
	BoxRates(ctx context.Context, boxID uuid.UUID) (references.Rates, error)
}

// Dependencies wires Service collaborators.
type Dependencies struct {
	Repo       RepositoryPort
	References ReferenceResolver
	Challans   ChallanSource
	Rates      RateLookup
	Calculator pricing.Calculator
	Policy     access.Policy
	Bills      *workflow.Machine
	Invoices   *workflow.Machine
	Logger     *slog.Logger
}

// Service runs the bill and invoice lifecycle.
type Service struct {
	repo     RepositoryPort
	refs     ReferenceResolver
	challans ChallanSource
	rates    RateLookup
	calc     pricing.Calculator
	policy   access.Policy
	machines map[Kind]*workflow.Machine
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the billing service.
func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bills, invoices := deps.Bills, deps.Invoices
	if bills == nil {
		bills = workflow.NewBillingMachine(shared.DocBill)
	}
	if invoices == nil {
		invoices = workflow.NewBillingMachine(shared.DocInvoice)
	}
	return &Service{
		repo:     deps.Repo,
		refs:     deps.References,
		challans: deps.Challans,
		rates:    deps.Rates,
		calc:     deps.Calculator,
		policy:   deps.Policy,
		machines: map[Kind]*workflow.Machine{KindBill: bills, KindInvoice: invoices},
		logger:   logger,
		now:      time.Now,
	}
}

// ItemInput describes one priced box line.
type ItemInput struct {
	BoxID           string `validate:"required"`
	Quantity        decimal.Decimal
	PlasticQuantity decimal.Decimal
	MaterialRate    decimal.Decimal
	PlasticRate     decimal.Decimal
}

// CreateInput describes creation payload.
type CreateInput struct {
	Number         string      `validate:"omitempty,max=64"`
	CounterpartyID string      `validate:"required"`
	ChallanID      string      `validate:"required"`
	Items          []ItemInput `validate:"min=1,dive"`
}

// FromChallanInput derives a document from a challan's boxes. A bill defaults its
// counterparty to the challan's supplier.
type FromChallanInput struct {
	Number         string `validate:"omitempty,max=64"`
	ChallanID      string `validate:"required"`
	CounterpartyID string
}

// UpdateInput carries content edits. Nil fields are left untouched.
type UpdateInput struct {
	CounterpartyID  *string
	Items           []ItemInput `validate:"omitempty,dive"`
	ExpectedVersion int64
}

// ListInput describes listing parameters.
type ListInput struct {
	Status         string
	CounterpartyID string
	ChallanID      string
	Page           int
	PerPage        int
}

// Create persists a document in its initial status with a derived total.
func (s *Service) Create(ctx context.Context, actor shared.Principal, kind Kind, input CreateInput) (Document, error) {
	if err := requireCompany(actor, kind, "creates"); err != nil {
		return Document{}, err
	}
	if err := shared.ValidateStruct(input); err != nil {
		return Document{}, err
	}
	items, err := s.resolveItems(ctx, input.Items)
	if err != nil {
		return Document{}, err
	}
	resolved, err := s.refs.ResolveAll(ctx, []references.Ref{
		{Kind: kind.CounterpartyKind(), ID: input.CounterpartyID},
		{Kind: references.KindChallan, ID: input.ChallanID},
	})
	if err != nil {
		return Document{}, err
	}
	counterparty, challan := resolved[0], resolved[1]

	if input.Number == "" {
		input.Number = shared.GenerateNumber(kind.numberPrefix())
	}
	now := s.now().UTC()
	doc := Document{
		ID:             uuid.New(),
		Kind:           kind,
		Number:         input.Number,
		CompanyID:      actor.ID,
		CounterpartyID: counterparty.ID,
		ChallanID:      challan.ID,
		Items:          items,
		TotalAmount:    s.calc.Total(itemLines(items), pricing.RateCarried),
		Status:         s.machine(kind).Initial(),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created, err := s.repo.Create(ctx, doc)
	if err != nil {
		return Document{}, err
	}
	s.logger.Info("billing document created",
		slog.String("kind", kind.String()),
		slog.String("id", created.ID.String()),
		slog.String("number", created.Number),
		slog.String("total_amount", pricing.Present(created.TotalAmount)),
	)
	return created, nil
}

// CreateFromChallan prices each challan box from master-data rates and creates the
// document from the result.
func (s *Service) CreateFromChallan(ctx context.Context, actor shared.Principal, kind Kind, input FromChallanInput) (Document, error) {
	if err := requireCompany(actor, kind, "creates"); err != nil {
		return Document{}, err
	}
	if err := shared.ValidateStruct(input); err != nil {
		return Document{}, err
	}
	challanID, err := references.Parse(references.KindChallan, input.ChallanID)
	if err != nil {
		return Document{}, err
	}
	challan, err := s.challans.Get(ctx, actor, challanID.String())
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Document{}, &shared.ReferenceError{Kind: string(references.KindChallan), ID: input.ChallanID, Err: shared.ErrReferenceNotFound}
		}
		return Document{}, err
	}

	create := CreateInput{Number: input.Number, CounterpartyID: input.CounterpartyID, ChallanID: challan.ID.String()}
	if create.CounterpartyID == "" && kind == KindBill {
		create.CounterpartyID = challan.SupplierID.String()
	}
	for _, box := range challan.Boxes {
		rates, err := s.rates.BoxRates(ctx, box.BoxID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return Document{}, &shared.ReferenceError{Kind: string(references.KindBox), ID: box.BoxID.String(), Err: shared.ErrReferenceNotFound}
			}
			return Document{}, fmt.Errorf("billing: box rates: %w", err)
		}
		create.Items = append(create.Items, ItemInput{
			BoxID:           box.BoxID.String(),
			Quantity:        box.Quantity,
			PlasticQuantity: box.PlasticQuantity,
			MaterialRate:    rates.MaterialRate,
			PlasticRate:     rates.PlasticRate,
		})
	}
	return s.Create(ctx, actor, kind, create)
}

// Get returns a document visible to actor.
func (s *Service) Get(ctx context.Context, actor shared.Principal, kind Kind, rawID string) (Document, error) {
	if _, err := s.policy.Scope(actor, kind.DocumentType()); err != nil {
		return Document{}, err
	}
	id, err := shared.ParseDocumentID(rawID)
	if err != nil {
		return Document{}, err
	}
	doc, err := s.repo.Get(ctx, kind, id)
	if err != nil {
		return Document{}, err
	}
	if err := s.policy.Authorize(actor, kind.DocumentType(), doc.Parties()); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// List returns the documents visible to actor.
func (s *Service) List(ctx context.Context, actor shared.Principal, kind Kind, input ListInput) ([]Document, shared.Pagination, error) {
	scope, err := s.policy.Scope(actor, kind.DocumentType())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	filter := ListFilter{Scope: scope, Page: input.Page, PerPage: input.PerPage}
	if input.Status != "" {
		if filter.Status, err = s.machine(kind).ParseStatus(input.Status); err != nil {
			return nil, shared.Pagination{}, err
		}
	}
	if input.CounterpartyID != "" {
		if filter.CounterpartyID, err = references.Parse(kind.CounterpartyKind(), input.CounterpartyID); err != nil {
			return nil, shared.Pagination{}, err
		}
	}
	if input.ChallanID != "" {
		if filter.ChallanID, err = references.Parse(references.KindChallan, input.ChallanID); err != nil {
			return nil, shared.Pagination{}, err
		}
	}
	out, total, err := s.repo.List(ctx, kind, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return out, shared.NewPagination(input.Page, input.PerPage, total), nil
}

// Update edits items or the counterparty while the document is pending and recomputes
// the total.
func (s *Service) Update(ctx context.Context, actor shared.Principal, kind Kind, rawID string, input UpdateInput) (Document, error) {
	if err := requireCompany(actor, kind, "updates"); err != nil {
		return Document{}, err
	}
	if err := shared.ValidateStruct(input); err != nil {
		return Document{}, err
	}
	if input.Items != nil && len(input.Items) == 0 {
		return Document{}, shared.Invalidf("a %s needs at least one item", kind)
	}
	fields := updateFields(input)
	if len(fields) == 0 {
		return Document{}, shared.Invalidf("update names no fields")
	}
	doc, err := s.load(ctx, actor, kind, rawID, input.ExpectedVersion)
	if err != nil {
		return Document{}, err
	}
	if err := s.machine(kind).CheckMutation(doc.Status, fields...); err != nil {
		return Document{}, err
	}

	expected := doc.Version
	if input.CounterpartyID != nil {
		counterparty, err := s.refs.Resolve(ctx, kind.CounterpartyKind(), *input.CounterpartyID)
		if err != nil {
			return Document{}, err
		}
		doc.CounterpartyID = counterparty.ID
	}
	if input.Items != nil {
		if doc.Items, err = s.resolveItems(ctx, input.Items); err != nil {
			return Document{}, err
		}
		doc.TotalAmount = s.calc.Total(doc.Lines(), pricing.RateCarried)
	}
	doc.UpdatedAt = s.now().UTC()

	updated, err := s.repo.Update(ctx, doc, expected)
	if err != nil {
		return Document{}, err
	}
	s.logger.Info("billing document updated",
		slog.String("kind", kind.String()),
		slog.String("id", updated.ID.String()),
		slog.Int64("version", updated.Version),
	)
	return updated, nil
}

// Pay marks a pending document as paid.
func (s *Service) Pay(ctx context.Context, actor shared.Principal, kind Kind, rawID string, expectedVersion int64) (Document, error) {
	doc, err := s.load(ctx, actor, kind, rawID, expectedVersion)
	if err != nil {
		return Document{}, err
	}
	next, err := s.machine(kind).Transition(doc.Status, workflow.ActionPay, actor, doc.Parties())
	if err != nil {
		return Document{}, err
	}
	expected := doc.Version
	doc.Status = next
	doc.UpdatedAt = s.now().UTC()
	updated, err := s.repo.Update(ctx, doc, expected)
	if err != nil {
		return Document{}, err
	}
	s.logger.Info("billing document paid", slog.String("kind", kind.String()), slog.String("id", updated.ID.String()))
	return updated, nil
}

// Delete removes a document. Only a company may delete.
func (s *Service) Delete(ctx context.Context, actor shared.Principal, kind Kind, rawID string, expectedVersion int64) error {
	if err := requireCompany(actor, kind, "deletes"); err != nil {
		return err
	}
	id, err := shared.ParseDocumentID(rawID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, kind, id, expectedVersion); err != nil {
		return err
	}
	s.logger.Info("billing document deleted", slog.String("kind", kind.String()), slog.String("id", id.String()))
	return nil
}

func (s *Service) machine(kind Kind) *workflow.Machine {
	return s.machines[kind]
}

func (s *Service) load(ctx context.Context, actor shared.Principal, kind Kind, rawID string, expectedVersion int64) (Document, error) {
	doc, err := s.Get(ctx, actor, kind, rawID)
	if err != nil {
		return Document{}, err
	}
	if expectedVersion != 0 && expectedVersion != doc.Version {
		return Document{}, shared.ErrConflict
	}
	return doc, nil
}

func (s *Service) resolveItems(ctx context.Context, inputs []ItemInput) ([]Item, error) {
	items := make([]Item, 0, len(inputs))
	for _, in := range inputs {
		items = append(items, Item{
			Quantity:        in.Quantity,
			PlasticQuantity: in.PlasticQuantity,
			MaterialRate:    in.MaterialRate,
			PlasticRate:     in.PlasticRate,
		})
	}
	if err := pricing.ValidateLines(itemLines(items)); err != nil {
		return nil, err
	}
	for i, in := range inputs {
		box, err := s.refs.Resolve(ctx, references.KindBox, in.BoxID)
		if err != nil {
			return nil, err
		}
		items[i].BoxID = box.ID
	}
	return items, nil
}

func updateFields(input UpdateInput) []workflow.Field {
	var fields []workflow.Field
	if input.CounterpartyID != nil {
		fields = append(fields, workflow.FieldCounterparty)
	}
	if input.Items != nil {
		fields = append(fields, workflow.FieldItems)
	}
	return fields
}

func requireCompany(actor shared.Principal, kind Kind, verb string) error {
	if actor.Role != shared.RoleCompany {
		return fmt.Errorf("%w: only a company %s %ss", shared.ErrForbidden, verb, kind)
	}
	return nil
}
