package challans

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
	"github.com/odyssey-erp/papertrail/internal/workflow"
)

// Projector attaches display fields of referenced entities to responses.
type Projector interface {
	Project(ctx context.Context, keys ...references.Key) (references.Projection, error)
}

// Handler exposes challan endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	projector Projector
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, projector Projector) *Handler {
	return &Handler{logger: logger, service: service, projector: projector}
}

// MountRoutes registers challan routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(shared.RoleCompany))
		r.Post("/", h.create)
		r.Post("/generate", h.generate)
		r.Patch("/{id}", h.update)
		r.Post("/{id}/dispatch", h.advance(workflow.ActionDispatch))
		r.Post("/{id}/receive", h.advance(workflow.ActionReceive))
		r.Delete("/{id}", h.delete)
	})
}

type boxPayload struct {
	BoxID           string          `json:"box_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	PlasticQuantity decimal.Decimal `json:"plastic_quantity"`
}

type createPayload struct {
	Number     string       `json:"number"`
	SupplierID string       `json:"supplier_id"`
	Boxes      []boxPayload `json:"boxes"`
}

type updatePayload struct {
	Number     *string      `json:"number"`
	SupplierID *string      `json:"supplier_id"`
	Boxes      []boxPayload `json:"boxes"`
}

type generatePayload struct {
	RequestID   string `json:"request_id"`
	Number      string `json:"number"`
	Assignments []struct {
		MaterialID string `json:"material_id"`
		BoxID      string `json:"box_id"`
	} `json:"assignments"`
}

type boxResponse struct {
	Box             references.Entity `json:"box"`
	Quantity        decimal.Decimal   `json:"quantity"`
	PlasticQuantity decimal.Decimal   `json:"plastic_quantity"`
}

type challanResponse struct {
	ID        uuid.UUID         `json:"id"`
	Number    string            `json:"number"`
	Company   references.Entity `json:"company"`
	Supplier  references.Entity `json:"supplier"`
	RequestID *uuid.UUID        `json:"request_id,omitempty"`
	Boxes     []boxResponse     `json:"boxes"`
	TotalCost string            `json:"total_cost"`
	Status    string            `json:"status"`
	Version   int64             `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type listResponse struct {
	Data       []challanResponse `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func toBoxInputs(payload []boxPayload) []BoxInput {
	if payload == nil {
		return nil
	}
	out := make([]BoxInput, 0, len(payload))
	for _, b := range payload {
		out = append(out, BoxInput(b))
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
	ch, err := h.service.Create(r.Context(), actor, CreateInput{
		Number:     payload.Number,
		SupplierID: payload.SupplierID,
		Boxes:      toBoxInputs(payload.Boxes),
	})
	if err != nil {
		h.fail(w, "create challan", err)
		return
	}
	h.respondOne(w, r, http.StatusCreated, ch)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.Principal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var payload generatePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := GenerateInput{RequestID: payload.RequestID, Number: payload.Number}
	for _, a := range payload.Assignments {
		input.Assignments = append(input.Assignments, Assignment{MaterialID: a.MaterialID, BoxID: a.BoxID})
	}
	ch, err := h.service.GenerateFromRequest(r.Context(), actor, input)
	if err != nil {
		h.fail(w, "generate challan", err)
		return
	}
	h.respondOne(w, r, http.StatusCreated, ch)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.Principal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ch, err := h.service.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get challan", err)
		return
	}
	h.respondOne(w, r, http.StatusOK, ch)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.Principal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, perPage := httpx.PageParams(r)
	q := r.URL.Query()
	items, pagination, err := h.service.List(r.Context(), actor, ListInput{
		Status:     q.Get("status"),
		SupplierID: q.Get("supplier_id"),
		RequestID:  q.Get("request_id"),
		Page:       page,
		PerPage:    perPage,
	})
	if err != nil {
		h.fail(w, "list challans", err)
		return
	}
	projection, err := h.projector.Project(r.Context(), projectionKeys(items...)...)
	if err != nil {
		h.fail(w, "project challans", err)
		return
	}
	out := listResponse{Data: make([]challanResponse, 0, len(items)), Pagination: pagination}
	for _, ch := range items {
		out.Data = append(out.Data, toResponse(ch, projection))
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
	ch, err := h.service.Update(r.Context(), actor, chi.URLParam(r, "id"), UpdateInput{
		Number:          payload.Number,
		SupplierID:      payload.SupplierID,
		Boxes:           toBoxInputs(payload.Boxes),
		ExpectedVersion: expected,
	})
	if err != nil {
		h.fail(w, "update challan", err)
		return
	}
	h.respondOne(w, r, http.StatusOK, ch)
}

func (h *Handler) advance(action workflow.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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
		ch, err := h.service.Advance(r.Context(), actor, chi.URLParam(r, "id"), action, expected)
		if err != nil {
			h.fail(w, string(action)+" challan", err)
			return
		}
		h.respondOne(w, r, http.StatusOK, ch)
	}
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
	if err := h.service.Delete(r.Context(), actor, chi.URLParam(r, "id"), expected); err != nil {
		h.fail(w, "delete challan", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondOne(w http.ResponseWriter, r *http.Request, status int, ch Challan) {
	projection, err := h.projector.Project(r.Context(), projectionKeys(ch)...)
	if err != nil {
		h.fail(w, "project challan", err)
		return
	}
	httpx.SetVersion(w, ch.Version)
	httpx.JSON(w, status, toResponse(ch, projection))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func projectionKeys(challans ...Challan) []references.Key {
	var keys []references.Key
	for _, ch := range challans {
		keys = append(keys,
			references.Key{Kind: references.KindCompany, ID: ch.CompanyID},
			references.Key{Kind: references.KindSupplier, ID: ch.SupplierID},
		)
		for _, b := range ch.Boxes {
			keys = append(keys, references.Key{Kind: references.KindBox, ID: b.BoxID})
		}
	}
	return keys
}

func toResponse(ch Challan, p references.Projection) challanResponse {
	out := challanResponse{
		ID:        ch.ID,
		Number:    ch.Number,
		Company:   p.Ref(references.KindCompany, ch.CompanyID),
		Supplier:  p.Ref(references.KindSupplier, ch.SupplierID),
		RequestID: ch.RequestID,
		Boxes:     make([]boxResponse, 0, len(ch.Boxes)),
		TotalCost: pricing.Present(ch.TotalCost),
		Status:    string(ch.Status),
		Version:   ch.Version,
		CreatedAt: ch.CreatedAt,
		UpdatedAt: ch.UpdatedAt,
	}
	for _, b := range ch.Boxes {
		out.Boxes = append(out.Boxes, boxResponse{
			Box:             p.Ref(references.KindBox, b.BoxID),
			Quantity:        b.Quantity,
			PlasticQuantity: b.PlasticQuantity,
		})
	}
	return out
}
