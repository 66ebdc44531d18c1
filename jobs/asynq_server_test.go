package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/papertrail/internal/shared"
)

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

type fakeEnqueuer struct {
	payloads []IntegrityPayload
	err      error
}

func (f *fakeEnqueuer) EnqueueIntegrity(_ context.Context, payload IntegrityPayload) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, payload)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func jobsRouter(h *Handler, actor *shared.Principal) http.Handler {
	r := chi.NewRouter()
	if actor != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), *actor)))
			})
		})
	}
	r.Route("/jobs", h.MountRoutes)
	return r
}

func TestJobsHealth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := NewHandler(fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4, Active: 1, Failed: 2}}, nil, logger)
	rec := httptest.NewRecorder()
	jobsRouter(h, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, queueHealth{Queue: QueueDefault, Pending: 4, Active: 1, Failed: 2}, body)

	h = NewHandler(fakeInspector{err: asynq.ErrQueueNotFound}, nil, logger)
	rec = httptest.NewRecorder()
	jobsRouter(h, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	h = NewHandler(fakeInspector{err: errors.New("redis down")}, nil, logger)
	rec = httptest.NewRecorder()
	jobsRouter(h, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestJobsEnqueueIntegrity(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	company := shared.Principal{ID: uuid.New(), Role: shared.RoleCompany}
	supplier := shared.Principal{ID: uuid.New(), Role: shared.RoleSupplier}
	fixed := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	enq := &fakeEnqueuer{}
	h := NewHandler(nil, enq, logger)
	h.now = func() time.Time { return fixed }

	rec := httptest.NewRecorder()
	jobsRouter(h, &company).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/integrity", nil))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, enq.payloads, 1)
	assert.Equal(t, company.ID.String(), enq.payloads[0].RequestedBy)
	assert.Equal(t, fixed, enq.payloads[0].ScheduledFor)

	rec = httptest.NewRecorder()
	jobsRouter(h, &supplier).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/integrity", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	jobsRouter(h, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/integrity", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	enq.err = errors.New("redis down")
	rec = httptest.NewRecorder()
	jobsRouter(h, &company).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/integrity", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
