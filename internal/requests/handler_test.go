package requests

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/papertrail/internal/references"
	"github.com/odyssey-erp/papertrail/internal/shared"
)

func newTestRouter(f *fixture, actor shared.Principal) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc, references.NewProjector(f.lookup))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), actor)))
		})
	})
	r.Route("/material-requests", h.MountRoutes)
	return r
}

func TestHandlerCreateAndRespond(t *testing.T) {
	f := newFixture(t)

	body := `{"number":"REQ-7","supplier_id":"` + f.supplier.ID.String() + `","items":[{"material_id":"` + f.material.String() + `","quantity":"12","unit":"kg"}]}`
	rec := httptest.NewRecorder()
	newTestRouter(f, f.company).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/material-requests/", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, `"1"`, rec.Header().Get("ETag"))

	var created requestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, "Acme Metals", created.Supplier.Display)
	require.Len(t, created.Items, 1)
	assert.Equal(t, "Copper", created.Items[0].Material.Display)

	path := "/material-requests/" + created.ID.String() + "/respond"

	rec = httptest.NewRecorder()
	newTestRouter(f, f.company).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"status":"acknowledged"}`)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"status":"acknowledged","supplier_notes":"ready friday"}`))
	req.Header.Set("If-Match", `"1"`)
	rec = httptest.NewRecorder()
	newTestRouter(f, f.supplier).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var acknowledged requestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acknowledged))
	assert.Equal(t, "acknowledged", acknowledged.Status)
	assert.Equal(t, "ready friday", acknowledged.SupplierNotes)

	rec = httptest.NewRecorder()
	newTestRouter(f, f.supplier).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"status":"pending"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerVisibility(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "REQ-1")
	stranger := shared.Principal{ID: uuid.New(), Role: shared.RoleSupplier}

	rec := httptest.NewRecorder()
	newTestRouter(f, stranger).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/material-requests/"+created.ID.String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	newTestRouter(f, stranger).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/material-requests/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Data)

	rec = httptest.NewRecorder()
	newTestRouter(f, f.supplier).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/material-requests/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Data, 1)

	customer := shared.Principal{ID: uuid.New(), Role: shared.RoleCustomer}
	rec = httptest.NewRecorder()
	newTestRouter(f, customer).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/material-requests/", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	newTestRouter(f, f.supplier).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/material-requests/"+created.ID.String(), nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
