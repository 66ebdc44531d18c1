package idempotency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/papertrail/internal/shared"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, time.Hour), mr
}

func TestStoreClaim(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Claim(ctx, "scope", "k1"))
	require.ErrorIs(t, store.Claim(ctx, "scope", "k1"), ErrReplay)
	require.ErrorIs(t, store.Claim(ctx, "scope", "k1"), shared.ErrConflict)
	require.NoError(t, store.Claim(ctx, "other", "k1"))

	mr.FastForward(2 * time.Hour)
	require.NoError(t, store.Claim(ctx, "scope", "k1"))

	require.NoError(t, store.Release(ctx, "scope", "k1"))
	require.NoError(t, store.Claim(ctx, "scope", "k1"))

	require.Error(t, store.Claim(ctx, "scope", ""))
}

func TestMiddleware(t *testing.T) {
	store, _ := newStore(t)
	actor := shared.Principal{ID: uuid.New(), Role: shared.RoleCompany}

	status := http.StatusCreated
	calls := 0
	handler := Middleware(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	}))

	send := func(method, key string) int {
		req := httptest.NewRequest(method, "/api/challans/", nil)
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), actor))
		if key != "" {
			req.Header.Set(Header, key)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusCreated, send(http.MethodPost, "abc"))
	assert.Equal(t, http.StatusConflict, send(http.MethodPost, "abc"))
	assert.Equal(t, 1, calls)

	assert.Equal(t, http.StatusCreated, send(http.MethodPost, ""))
	assert.Equal(t, http.StatusCreated, send(http.MethodPatch, "abc"))
	assert.Equal(t, 3, calls)

	status = http.StatusBadRequest
	assert.Equal(t, http.StatusBadRequest, send(http.MethodPost, "retry-me"))
	status = http.StatusCreated
	assert.Equal(t, http.StatusCreated, send(http.MethodPost, "retry-me"))

	long := make([]byte, maxKeySize+1)
	for i := range long {
		long[i] = 'x'
	}
	assert.Equal(t, http.StatusBadRequest, send(http.MethodPost, string(long)))
}

func TestMiddlewareReleasesClaimOnPanic(t *testing.T) {
	store, _ := newStore(t)
	actor := shared.Principal{ID: uuid.New(), Role: shared.RoleCompany}

	fail := true
	handler := Middleware(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			panic("handler blew up")
		}
		w.WriteHeader(http.StatusCreated)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/bills/", nil)
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), actor))
		req.Header.Set(Header, "panic-key")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.PanicsWithValue(t, "handler blew up", func() { send() })

	fail = false
	assert.Equal(t, http.StatusCreated, send().Code)
}
