package billing

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/papertrail/internal/access"
	"github.com/odyssey-erp/papertrail/internal/challans"
	"github.com/odyssey-erp/papertrail/internal/pricing"
	"github.com/odyssey-erp/papertrail/internal/references"
	"github.com/odyssey-erp/papertrail/internal/shared"
	"github.com/odyssey-erp/papertrail/internal/workflow"
)

type memoryRepo struct {
	mu   sync.Mutex
	rows map[Kind]map[uuid.UUID]Document
	// afterGet runs outside the lock once a Get has read its row.
	afterGet func()
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: map[Kind]map[uuid.UUID]Document{
		KindBill:    {},
		KindInvoice: {},
	}}
}

func (m *memoryRepo) Create(_ context.Context, doc Document) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rows[doc.Kind] {
		if existing.Number == doc.Number {
			return Document{}, shared.ErrDuplicateKey
		}
	}
	m.rows[doc.Kind][doc.ID] = doc
	return doc, nil
}

func (m *memoryRepo) Get(_ context.Context, kind Kind, id uuid.UUID) (Document, error) {
	m.mu.Lock()
	doc, ok := m.rows[kind][id]
	hook := m.afterGet
	m.mu.Unlock()
	if !ok {
		return Document{}, shared.ErrNotFound
	}
	if hook != nil {
		hook()
	}
	return doc, nil
}

func (m *memoryRepo) List(_ context.Context, kind Kind, filter ListFilter) ([]Document, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Document
	for _, doc := range m.rows[kind] {
		if !filter.Scope.Matches(doc.Parties()) {
			continue
		}
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		out = append(out, doc)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Update(_ context.Context, doc Document, expectedVersion int64) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.rows[doc.Kind][doc.ID]
	if !ok {
		return Document{}, shared.ErrNotFound
	}
	if current.Version != expectedVersion {
		return Document{}, shared.ErrConflict
	}
	doc.Version = expectedVersion + 1
	m.rows[doc.Kind][doc.ID] = doc
	return doc, nil
}

func (m *memoryRepo) Delete(_ context.Context, kind Kind, id uuid.UUID, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.rows[kind][id]
	if !ok {
		return shared.ErrNotFound
	}
	if expectedVersion != 0 && current.Version != expectedVersion {
		return shared.ErrConflict
	}
	delete(m.rows[kind], id)
	return nil
}

type stubLookup map[references.Key]references.Entity

func (s stubLookup) Find(_ context.Context, kind references.Kind, id uuid.UUID) (references.Entity, error) {
	entity, ok := s[references.Key{Kind: kind, ID: id}]
	if !ok {
		return references.Entity{}, shared.ErrNotFound
	}
	return entity, nil
}

func (s stubLookup) add(kind references.Kind, display string) uuid.UUID {
	id := uuid.New()
	s[references.Key{Kind: kind, ID: id}] = references.Entity{Kind: kind, ID: id, Display: display}
	return id
}

type stubChallans map[uuid.UUID]challans.Challan

func (s stubChallans) Get(_ context.Context, _ shared.Principal, rawID string) (challans.Challan, error) {
	id, err := shared.ParseDocumentID(rawID)
	if err != nil {
		return challans.Challan{}, err
	}
	ch, ok := s[id]
	if !ok {
		return challans.Challan{}, shared.ErrNotFound
	}
	return ch, nil
}

type stubRates map[uuid.UUID]references.Rates

func (s stubRates) BoxRates(_ context.Context, boxID uuid.UUID) (references.Rates, error) {
	rates, ok := s[boxID]
	if !ok {
		return references.Rates{}, shared.ErrNotFound
	}
	return rates, nil
}

type fixture struct {
	svc      *Service
	repo     *memoryRepo
	lookup   stubLookup
	challans stubChallans
	rates    stubRates
	company  shared.Principal
	supplier shared.Principal
	customer shared.Principal
	challan  uuid.UUID
	boxA     uuid.UUID
	boxB     uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	lookup := stubLookup{}
	f := &fixture{
		repo:     newMemoryRepo(),
		lookup:   lookup,
		challans: stubChallans{},
		rates:    stubRates{},
		company:  shared.Principal{ID: uuid.New(), Role: shared.RoleCompany},
		supplier: shared.Principal{ID: lookup.add(references.KindSupplier, "Acme Metals"), Role: shared.RoleSupplier},
		customer: shared.Principal{ID: lookup.add(references.KindCustomer, "Buyer Ltd"), Role: shared.RoleCustomer},
		challan:  lookup.add(references.KindChallan, "CH-1"),
		boxA:     lookup.add(references.KindBox, "BX-A"),
		boxB:     lookup.add(references.KindBox, "BX-B"),
	}
	f.svc = NewService(Dependencies{
		Repo:       f.repo,
		References: references.NewValidator(lookup),
		Challans:   f.challans,
		Rates:      f.rates,
		Calculator: pricing.NewCalculator(decimal.NewFromInt(10)),
		Policy:     access.NewPolicy(true),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	f.svc.now = func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) invoiceInput() CreateInput {
	return CreateInput{
		Number:         "INV-1",
		CounterpartyID: f.customer.ID.String(),
		ChallanID:      f.challan.String(),
		Items: []ItemInput{{
			BoxID:           f.boxA.String(),
			Quantity:        decimal.NewFromInt(5),
			PlasticQuantity: decimal.NewFromInt(1),
			MaterialRate:    decimal.NewFromInt(20),
			PlasticRate:     decimal.NewFromInt(5),
		}},
	}
}

func (f *fixture) createBill(t *testing.T, number string) Document {
	t.Helper()
	doc, err := f.svc.Create(context.Background(), f.company, KindBill, CreateInput{
		Number:         number,
		CounterpartyID: f.supplier.ID.String(),
		ChallanID:      f.challan.String(),
		Items: []ItemInput{{
			BoxID:        f.boxA.String(),
			Quantity:     decimal.NewFromInt(2),
			MaterialRate: decimal.NewFromInt(3),
		}},
	})
	require.NoError(t, err)
	return doc
}

func TestInvoiceTotalIsRateCarried(t *testing.T) {
	f := newFixture(t)
	doc, err := f.svc.Create(context.Background(), f.company, KindInvoice, f.invoiceInput())
	require.NoError(t, err)

	assert.Equal(t, "105.00", pricing.Present(doc.TotalAmount))
	assert.Equal(t, workflow.BillingPending, doc.Status)
	assert.Equal(t, f.customer.ID, doc.CounterpartyID)
	assert.Equal(t, f.customer.ID, doc.Parties().Customer)
	assert.Equal(t, uuid.Nil, doc.Parties().Supplier)
}

func TestCreateGeneratesNumberPerKind(t *testing.T) {
	f := newFixture(t)
	in := f.invoiceInput()
	in.Number = ""
	doc, err := f.svc.Create(context.Background(), f.company, KindInvoice, in)
	require.NoError(t, err)
	assert.Regexp(t, `^INV-\d+$`, doc.Number)

	bill := f.createBill(t, "")
	assert.Regexp(t, `^BILL-\d+$`, bill.Number)
}

func TestCreateValidatesReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.invoiceInput()
	in.ChallanID = uuid.NewString()
	_, err := f.svc.Create(ctx, f.company, KindInvoice, in)
	assert.ErrorIs(t, err, shared.ErrReferenceNotFound)

	in = f.invoiceInput()
	in.ChallanID = "CH-1"
	_, err = f.svc.Create(ctx, f.company, KindInvoice, in)
	assert.ErrorIs(t, err, shared.ErrInvalidReference)

	in = f.invoiceInput()
	in.CounterpartyID = f.supplier.ID.String()
	_, err = f.svc.Create(ctx, f.company, KindInvoice, in)
	assert.ErrorIs(t, err, shared.ErrReferenceNotFound)

	in = f.invoiceInput()
	in.Items[0].MaterialRate = decimal.NewFromInt(-20)
	_, err = f.svc.Create(ctx, f.company, KindInvoice, in)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = f.svc.Create(ctx, f.customer, KindInvoice, f.invoiceInput())
	assert.ErrorIs(t, err, shared.ErrForbidden)

	assert.Empty(t, f.repo.rows[KindInvoice])
}

func TestVisibilityPerKind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bill := f.createBill(t, "BILL-1")
	invoice, err := f.svc.Create(ctx, f.company, KindInvoice, f.invoiceInput())
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, f.supplier, KindBill, bill.ID.String())
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, f.customer, KindInvoice, invoice.ID.String())
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, f.supplier, KindInvoice, invoice.ID.String())
	assert.ErrorIs(t, err, shared.ErrForbidden)
	_, _, err = f.svc.List(ctx, f.customer, KindBill, ListInput{})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	otherCustomer := shared.Principal{ID: uuid.New(), Role: shared.RoleCustomer}
	_, err = f.svc.Get(ctx, otherCustomer, KindInvoice, invoice.ID.String())
	assert.ErrorIs(t, err, shared.ErrNotFound)
	list, _, err := f.svc.List(ctx, otherCustomer, KindInvoice, ListInput{})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.svc.Get(ctx, f.company, KindInvoice, bill.ID.String())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPayIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bill := f.createBill(t, "BILL-1")

	_, err := f.svc.Pay(ctx, f.supplier, KindBill, bill.ID.String(), 0)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	paid, err := f.svc.Pay(ctx, f.company, KindBill, bill.ID.String(), 1)
	require.NoError(t, err)
	assert.Equal(t, workflow.BillingPaid, paid.Status)

	_, err = f.svc.Pay(ctx, f.company, KindBill, bill.ID.String(), 0)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = f.svc.Update(ctx, f.company, KindBill, bill.ID.String(), UpdateInput{
		Items: []ItemInput{{BoxID: f.boxB.String(), Quantity: decimal.NewFromInt(1)}},
	})
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = f.svc.Update(ctx, f.company, KindBill, bill.ID.String(), UpdateInput{})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	stored, err := f.svc.Get(ctx, f.company, KindBill, bill.ID.String())
	require.NoError(t, err)
	assert.Equal(t, paid.Version, stored.Version)
	assert.Equal(t, paid.UpdatedAt, stored.UpdatedAt)
}

func TestUpdateRecomputesTotal(t *testing.T) {
	f := newFixture(t)
	bill := f.createBill(t, "BILL-1")
	assert.Equal(t, "6.00", pricing.Present(bill.TotalAmount))

	updated, err := f.svc.Update(context.Background(), f.company, KindBill, bill.ID.String(), UpdateInput{
		Items: []ItemInput{
			{BoxID: f.boxB.String(), Quantity: decimal.NewFromInt(4), MaterialRate: decimal.RequireFromString("2.5")},
			{BoxID: f.boxA.String(), PlasticQuantity: decimal.NewFromInt(3), PlasticRate: decimal.NewFromInt(1)},
		},
		ExpectedVersion: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "13.00", pricing.Present(updated.TotalAmount))
	assert.Equal(t, int64(2), updated.Version)
}

func TestConcurrentUpdatesOneConflict(t *testing.T) {
	f := newFixture(t)
	bill := f.createBill(t, "BILL-1")

	var arrived sync.WaitGroup
	arrived.Add(2)
	f.repo.afterGet = func() {
		arrived.Done()
		arrived.Wait()
	}

	errs := make([]error, 2)
	var done sync.WaitGroup
	for i := range errs {
		done.Add(1)
		go func() {
			defer done.Done()
			_, errs[i] = f.svc.Update(context.Background(), f.company, KindBill, bill.ID.String(), UpdateInput{
				Items: []ItemInput{{BoxID: f.boxA.String(), Quantity: decimal.NewFromInt(int64(i + 1)), MaterialRate: decimal.NewFromInt(1)}},
			})
		}()
	}
	done.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case assert.ErrorIs(t, err, shared.ErrConflict):
			conflicted++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)
	assert.Equal(t, int64(2), f.repo.rows[KindBill][bill.ID].Version)
}

func TestDeleteUnknownIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.Delete(ctx, f.company, KindBill, uuid.NewString(), 0), shared.ErrNotFound)

	bill := f.createBill(t, "BILL-1")
	assert.ErrorIs(t, f.svc.Delete(ctx, f.company, KindBill, bill.ID.String(), 4), shared.ErrConflict)
	require.NoError(t, f.svc.Delete(ctx, f.company, KindBill, bill.ID.String(), 1))
	assert.ErrorIs(t, f.svc.Delete(ctx, f.company, KindBill, bill.ID.String(), 0), shared.ErrNotFound)
}

func TestCreateFromChallan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.challans[f.challan] = challans.Challan{
		ID:         f.challan,
		SupplierID: f.supplier.ID,
		Boxes: []challans.Box{
			{BoxID: f.boxA, Quantity: decimal.NewFromInt(5), PlasticQuantity: decimal.NewFromInt(1)},
			{BoxID: f.boxB, Quantity: decimal.NewFromInt(2)},
		},
	}
	f.rates[f.boxA] = references.Rates{BoxID: f.boxA, MaterialRate: decimal.NewFromInt(20), PlasticRate: decimal.NewFromInt(5)}
	f.rates[f.boxB] = references.Rates{BoxID: f.boxB, MaterialRate: decimal.NewFromInt(10), PlasticRate: decimal.NewFromInt(5)}

	bill, err := f.svc.CreateFromChallan(ctx, f.company, KindBill, FromChallanInput{ChallanID: f.challan.String()})
	require.NoError(t, err)
	assert.Equal(t, f.supplier.ID, bill.CounterpartyID)
	assert.Equal(t, f.challan, bill.ChallanID)
	require.Len(t, bill.Items, 2)
	assert.Equal(t, "125.00", pricing.Present(bill.TotalAmount))

	_, err = f.svc.CreateFromChallan(ctx, f.company, KindInvoice, FromChallanInput{ChallanID: f.challan.String()})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	invoice, err := f.svc.CreateFromChallan(ctx, f.company, KindInvoice, FromChallanInput{
		ChallanID:      f.challan.String(),
		CounterpartyID: f.customer.ID.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, f.customer.ID, invoice.CounterpartyID)

	_, err = f.svc.CreateFromChallan(ctx, f.company, KindBill, FromChallanInput{ChallanID: uuid.NewString()})
	assert.ErrorIs(t, err, shared.ErrReferenceNotFound)

	_, err = f.svc.CreateFromChallan(ctx, f.company, KindBill, FromChallanInput{ChallanID: "not-a-uuid"})
	assert.ErrorIs(t, err, shared.ErrInvalidReference)
	assert.NotErrorIs(t, err, shared.ErrReferenceNotFound)

	delete(f.rates, f.boxB)
	_, err = f.svc.CreateFromChallan(ctx, f.company, KindBill, FromChallanInput{ChallanID: f.challan.String()})
	assert.ErrorIs(t, err, shared.ErrReferenceNotFound)
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind(" Invoice ")
	require.NoError(t, err)
	assert.Equal(t, KindInvoice, kind)
	assert.Equal(t, shared.DocInvoice, kind.DocumentType())

	_, err = ParseKind("receipt")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}
