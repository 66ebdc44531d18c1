package billing

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/papertrail/internal/auth"
	"github.com/odyssey-erp/papertrail/internal/platform/httpx"
	"github.com/odyssey-erp/papertrail/internal/pricing"
	"github.com/odyssey-erp/papertrail/internal/references"
	"github.com/odyssey-erp/papertrail/internal/shared"
)

// Projector attaches display fields of referenced entities to responses.
type Projector interface {
	Project(ctx context.Context, keys ...references.Key) (references.Projection, error)
}

// Handler exposes the endpoints of one document kind.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	projector Projector
	kind      Kind
}

// NewHandler builds a Handler serving kind.
func NewHandler(logger *slog.Logger, service *Service, projector Projector, kind Kind) *Handler {
	return &Handler{logger: logger, service: service, projector: projector, kind: kind}
}

// MountRoutes registers the kind's routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(shared.RoleCompany))
		r.Post("/", h.create)
		r.Post("/from-challan", h.createFromChallan)
		r.Patch("/{id}", h.update)
		r.Post("/{id}/pay", h.pay)
		r.Delete("/{id}", h.delete)
	})
}

type itemPayload struct {
	BoxID           string          `json:"box_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	PlasticQuantity decimal.Decimal `json:"plastic_quantity"`
	MaterialRate    decimal.Decimal `json:"material_rate"`
	PlasticRate     decimal.Decimal `json:"plastic_rate"`
}

type createPayload struct {
	Number         string        `json:"number"`
	CounterpartyID string        `json:"counterparty_id"`
	SupplierID     string        `json:"supplier_id"`
	CustomerID     string        `json:"customer_id"`
	ChallanID      string        `json:"challan_id"`
	Items          []itemPayload `json:"items"`
}

// counterparty accepts the kind-specific field name as well as the generic one.
func (p createPayload) counterparty(kind Kind) string {
	switch {
	case p.CounterpartyID != "":
		return p.CounterpartyID
	case kind == KindInvoice:
		return p.CustomerID
	default:
		return p.SupplierID
	}
}

type updatePayload struct {
	CounterpartyID *string       `json:"counterparty_id"`
	Items          []itemPayload `json:"items"`
}

type itemResponse struct {
	Box             references.Entity `json:"box"`
	Quantity        decimal.Decimal   `json:"quantity"`
	PlasticQuantity decimal.Decimal   `json:"plastic_quantity"`
	MaterialRate    decimal.Decimal   `json:"material_rate"`
	PlasticRate     decimal.Decimal   `json:"plastic_rate"`
	LineTotal       string            `json:"line_total"`
}

type documentResponse struct {
	ID           uuid.UUID         `json:"id"`
	Kind         Kind              `json:"kind"`
	Number       string            `json:"number"`
	Company      references.Entity `json:"company"`
	Counterparty references.Entity `json:"counterparty"`
	Challan      references.Entity `json:"challan"`
	Items        []itemResponse    `json:"items"`
	TotalAmount  string            `json:"total_amount"`
	Status       string            `json:"status"`
	Version      int64             `json:"version"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

type listResponse struct {
	Data       []documentResponse `json:"data"`
	Pagination shared.Pagination  `json:"pagination"`
}

func toItemInputs(payload []itemPayload) []ItemInput {
	if payload == nil {
		return nil
	}
	out := make([]ItemInput, 0, len(payload))
	for _, item := range payload {
		out = append(out, ItemInput(item))
	}
	return out
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.Principal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var payload createPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.Create(r.Context(), actor, h.kind, CreateInput{
		Number:         payload.Number,
		CounterpartyID: payload.counterparty(h.kind),
		ChallanID:      payload.ChallanID,
		Items:          toItemInputs(payload.Items),
	})
	if err != nil {
		h.fail(w, "create "+h.kind.String(), err)
		return
	}
	h.respondOne(w, r, http.StatusCreated, doc)
}

func (h *Handler) createFromChallan(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.Principal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var payload createPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.CreateFromChallan(r.Context(), actor, h.kind, FromChallanInput{
		Number:         payload.Number,
		ChallanID:      payload.ChallanID,
		CounterpartyID: payload.counterparty(h.kind),
	})
	if err != nil {
		h.fail(w, "derive "+h.kind.String(), err)
		return
	}
	h.respondOne(w, r, http.StatusCreated, doc)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.Principal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.Get(r.Context(), actor, h.kind, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get "+h.kind.String(), err)
		return
	}
	h.respondOne(w, r, http.StatusOK, doc)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.Principal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, perPage := httpx.PageParams(r)
	q := r.URL.Query()
	input := ListInput{Status: q.Get("status"), ChallanID: q.Get("challan_id"), Page: page, PerPage: perPage}
	if h.kind == KindInvoice {
		input.CounterpartyID = q.Get("customer_id")
	} else {
		input.CounterpartyID = q.Get("supplier_id")
	}
	docs, pagination, err := h.service.List(r.Context(), actor, h.kind, input)
	if err != nil {
		h.fail(w, "list "+h.kind.String(), err)
		return
	}
	projection, err := h.projector.Project(r.Context(), projectionKeys(docs...)...)
	if err != nil {
		h.fail(w, "project "+h.kind.String(), err)
		return
	}
	out := listResponse{Data: make([]documentResponse, 0, len(docs)), Pagination: pagination}
	for _, doc := range docs {
		out.Data = append(out.Data, h.toResponse(doc, projection))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.Principal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	expected, err := httpx.ExpectedVersion(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var payload updatePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.Update(r.Context(), actor, h.kind, chi.URLParam(r, "id"), UpdateInput{
		CounterpartyID:  payload.CounterpartyID,
		Items:           toItemInputs(payload.Items),
		ExpectedVersion: expected,
	})
	if err != nil {
		h.fail(w, "update "+h.kind.String(), err)
		return
	}
	h.respondOne(w, r, http.StatusOK, doc)
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.Principal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	expected, err := httpx.ExpectedVersion(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.Pay(r.Context(), actor, h.kind, chi.URLParam(r, "id"), expected)
	if err != nil {
		h.fail(w, "pay "+h.kind.String(), err)
		return
	}
	h.respondOne(w, r, http.StatusOK, doc)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.Principal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	expected, err := httpx.ExpectedVersion(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), actor, h.kind, chi.URLParam(r, "id"), expected); err != nil {
		h.fail(w, "delete "+h.kind.String(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondOne(w http.ResponseWriter, r *http.Request, status int, doc Document) {
	projection, err := h.projector.Project(r.Context(), projectionKeys(doc)...)
	if err != nil {
		h.fail(w, "project "+h.kind.String(), err)
		return
	}
	httpx.SetVersion(w, doc.Version)
	httpx.JSON(w, status, h.toResponse(doc, projection))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func projectionKeys(docs ...Document) []references.Key {
	var keys []references.Key
	for _, doc := range docs {
		keys = append(keys,
			references.Key{Kind: references.KindCompany, ID: doc.CompanyID},
			references.Key{Kind: doc.Kind.CounterpartyKind(), ID: doc.CounterpartyID},
			references.Key{Kind: references.KindChallan, ID: doc.ChallanID},
		)
		for _, item := range doc.Items {
			keys = append(keys, references.Key{Kind: references.KindBox, ID: item.BoxID})
		}
	}
	return keys
}

func (h *Handler) toResponse(doc Document, p references.Projection) documentResponse {
	out := documentResponse{
		ID:           doc.ID,
		Kind:         doc.Kind,
		Number:       doc.Number,
		Company:      p.Ref(references.KindCompany, doc.CompanyID),
		Counterparty: p.Ref(doc.Kind.CounterpartyKind(), doc.CounterpartyID),
		Challan:      p.Ref(references.KindChallan, doc.ChallanID),
		Items:        make([]itemResponse, 0, len(doc.Items)),
		TotalAmount:  pricing.Present(doc.TotalAmount),
		Status:       string(doc.Status),
		Version:      doc.Version,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
	lines := doc.Lines()
	for i, item := range doc.Items {
		out.Items = append(out.Items, itemResponse{
			Box:             p.Ref(references.KindBox, item.BoxID),
			Quantity:        item.Quantity,
			PlasticQuantity: item.PlasticQuantity,
			MaterialRate:    item.MaterialRate,
			PlasticRate:     item.PlasticRate,
			LineTotal:       pricing.Present(h.service.calc.LineTotal(lines[i], pricing.RateCarried)),
		})
	}
	return out
}
