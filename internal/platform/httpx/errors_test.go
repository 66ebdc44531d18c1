package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/papertrail/internal/shared"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{shared.Invalidf("items required"), http.StatusBadRequest},
		{&shared.ReferenceError{Kind: "box", ID: "x", Err: shared.ErrInvalidReference}, http.StatusBadRequest},
		{&shared.ReferenceError{Kind: "box", ID: "x", Err: shared.ErrReferenceNotFound}, http.StatusNotFound},
		{fmt.Errorf("challans: %w", shared.ErrNotFound), http.StatusNotFound},
		{shared.ErrForbidden, http.StatusForbidden},
		{shared.ErrInvalidTransition, http.StatusConflict},
		{shared.ErrInvalidState, http.StatusConflict},
		{shared.ErrConflict, http.StatusConflict},
		{shared.ErrDuplicateKey, http.StatusConflict},
		{ErrUnauthorized, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func TestRespondErrorWritesProblem(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, shared.ErrInvalidState)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Invalid State", body.Title)
	assert.Equal(t, http.StatusConflict, body.Status)
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pg: connection refused"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestExpectedVersion(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	v, err := ExpectedVersion(req)
	require.NoError(t, err)
	assert.Zero(t, v)

	req.Header.Set("If-Match", `"4"`)
	v, err = ExpectedVersion(req)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)

	req.Header.Set("If-Match", "abc")
	_, err = ExpectedVersion(req)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}
