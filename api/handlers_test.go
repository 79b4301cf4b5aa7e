package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantage/governance-mirror/governance"
)

func testHandler() *Handler {
	return NewHandler(nil, nil, nil, zerolog.Nop())
}

func TestServiceErrorMapsTheErrorTaxonomyToStatuses(t *testing.T) {
	h := testHandler()

	cases := []struct {
		err    error
		status int
	}{
		{governance.ErrNotFound, http.StatusNotFound},
		{&governance.InvalidStateError{Op: "approve", Status: governance.StatusDraft}, http.StatusBadRequest},
		{governance.ErrForbidden, http.StatusForbidden},
		{governance.ErrRefreshInProgress, http.StatusConflict},
		{governance.ErrNoIdentity, http.StatusServiceUnavailable},
		{&governance.RemoteError{Op: "update", Err: errors.New("timeout")}, http.StatusBadGateway},
		{errors.New("something unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.serviceError(rec, "operation failed", tc.err)
		assert.Equal(t, tc.status, rec.Code, "error %v", tc.err)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Error)
	}
}

func TestRequestIDRejectsNonNumericPathParams(t *testing.T) {
	h := testHandler()

	r := chi.NewRouter()
	var got int64
	var called bool
	r.Get("/requests/{id}", func(w http.ResponseWriter, req *http.Request) {
		id, ok := h.requestID(w, req)
		called = ok
		got = id
	})

	// Placeholder ids are negative and must parse.
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/requests/-42", nil))
	assert.True(t, called)
	assert.Equal(t, int64(-42), got)

	called = false
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/requests/abc", nil))
	assert.False(t, called)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommentBodyToleratesEmptyAndMalformedBodies(t *testing.T) {
	h := testHandler()

	req := httptest.NewRequest(http.MethodPost, "/requests/1/approve", nil)
	assert.Empty(t, h.commentBody(req).text())

	req = httptest.NewRequest(http.MethodPost, "/requests/1/approve", strings.NewReader("not json"))
	assert.Empty(t, h.commentBody(req).text())

	req = httptest.NewRequest(http.MethodPost, "/requests/1/approve",
		strings.NewReader(`{"COMMENTS": "fine by me"}`))
	assert.Equal(t, "fine by me", h.commentBody(req).text())
}
