package requests

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
	"github.com/odyssey-erp/papertrail/internal/references"
	"github.com/odyssey-erp/papertrail/internal/shared"
)

// Projector attaches display fields of referenced entities to responses.
type Projector interface {
	Project(ctx context.Context, keys ...references.Key) (references.Projection, error)
}

// Handler exposes material request endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	projector Projector
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, projector Projector) *Handler {
	return &Handler{logger: logger, service: service, projector: projector}
}

// MountRoutes registers material request routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.With(auth.RequireRole(shared.RoleCompany)).Post("/", h.create)
	r.With(auth.RequireRole(shared.RoleCompany)).Delete("/{id}", h.delete)
	r.With(auth.RequireRole(shared.RoleSupplier)).Post("/{id}/respond", h.respond)
}

type itemPayload struct {
	MaterialID string          `json:"material_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	Unit       string          `json:"unit"`
}

type createPayload struct {
	Number     string        `json:"number"`
	SupplierID string        `json:"supplier_id"`
	Items      []itemPayload `json:"items"`
}

type respondPayload struct {
	Status        string     `json:"status"`
	SupplierNotes *string    `json:"supplier_notes"`
	DispatchDate  *time.Time `json:"dispatch_date"`
	Items         []struct {
		MaterialID string          `json:"material_id"`
		Quantity   decimal.Decimal `json:"quantity"`
	} `json:"items"`
}

type itemResponse struct {
	Material references.Entity `json:"material"`
	Quantity decimal.Decimal   `json:"quantity"`
	Unit     Unit              `json:"unit"`
}

type requestResponse struct {
	ID            uuid.UUID         `json:"id"`
	Number        string            `json:"number"`
	Company       references.Entity `json:"company"`
	Supplier      references.Entity `json:"supplier"`
	Items         []itemResponse    `json:"items"`
	Status        string            `json:"status"`
	SupplierNotes string            `json:"supplier_notes,omitempty"`
	DispatchDate  *time.Time        `json:"dispatch_date,omitempty"`
	ChallanID     *uuid.UUID        `json:"challan_id,omitempty"`
	Version       int64             `json:"version"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type listResponse struct {
	Data       []requestResponse `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
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
	input := CreateInput{Number: payload.Number, SupplierID: payload.SupplierID}
	for _, item := range payload.Items {
		input.Items = append(input.Items, ItemInput(item))
	}
	req, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		h.fail(w, "create material request", err)
		return
	}
	h.respondOne(w, r, http.StatusCreated, req)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.Principal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, err := h.service.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get material request", err)
		return
	}
	h.respondOne(w, r, http.StatusOK, req)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.Principal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, perPage := httpx.PageParams(r)
	items, pagination, err := h.service.List(r.Context(), actor, ListInput{
		Status:     r.URL.Query().Get("status"),
		SupplierID: r.URL.Query().Get("supplier_id"),
		Page:       page,
		PerPage:    perPage,
	})
	if err != nil {
		h.fail(w, "list material requests", err)
		return
	}
	projection, err := h.projector.Project(r.Context(), projectionKeys(items...)...)
	if err != nil {
		h.fail(w, "project material requests", err)
		return
	}
	out := listResponse{Data: make([]requestResponse, 0, len(items)), Pagination: pagination}
	for _, item := range items {
		out.Data = append(out.Data, toResponse(item, projection))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request) {
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
	var payload respondPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := RespondInput{
		Status:          payload.Status,
		SupplierNotes:   payload.SupplierNotes,
		DispatchDate:    payload.DispatchDate,
		ExpectedVersion: expected,
	}
	for _, item := range payload.Items {
		input.Items = append(input.Items, QuantityInput{MaterialID: item.MaterialID, Quantity: item.Quantity})
	}
	req, err := h.service.Respond(r.Context(), actor, chi.URLParam(r, "id"), input)
	if err != nil {
		h.fail(w, "respond to material request", err)
		return
	}
	h.respondOne(w, r, http.StatusOK, req)
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
		h.fail(w, "delete material request", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondOne(w http.ResponseWriter, r *http.Request, status int, req MaterialRequest) {
	projection, err := h.projector.Project(r.Context(), projectionKeys(req)...)
	if err != nil {
		h.fail(w, "project material request", err)
		return
	}
	httpx.SetVersion(w, req.Version)
	httpx.JSON(w, status, toResponse(req, projection))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func projectionKeys(reqs ...MaterialRequest) []references.Key {
	var keys []references.Key
	for _, req := range reqs {
		keys = append(keys,
			references.Key{Kind: references.KindCompany, ID: req.CompanyID},
			references.Key{Kind: references.KindSupplier, ID: req.SupplierID},
		)
		for _, item := range req.Items {
			keys = append(keys, references.Key{Kind: references.KindMaterial, ID: item.MaterialID})
		}
	}
	return keys
}

func toResponse(req MaterialRequest, p references.Projection) requestResponse {
	out := requestResponse{
		ID:            req.ID,
		Number:        req.Number,
		Company:       p.Ref(references.KindCompany, req.CompanyID),
		Supplier:      p.Ref(references.KindSupplier, req.SupplierID),
		Items:         make([]itemResponse, 0, len(req.Items)),
		Status:        string(req.Status),
		SupplierNotes: req.SupplierNotes,
		DispatchDate:  req.DispatchDate,
		ChallanID:     req.ChallanID,
		Version:       req.Version,
		CreatedAt:     req.CreatedAt,
		UpdatedAt:     req.UpdatedAt,
	}
	for _, item := range req.Items {
		out.Items = append(out.Items, itemResponse{
			Material: p.Ref(references.KindMaterial, item.MaterialID),
			Quantity: item.Quantity,
			Unit:     item.Unit,
		})
	}
	return out
}
