package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-estimator/internal/common"
)

type payload struct {
	Code string `json:"code"`
}

func decodeHandler(t *testing.T, got *payload) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := common.DecodeJSON(r, got); err != nil {
			common.WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestBodyLimitAllowsWithinLimit(t *testing.T) {
	var got payload
	handler := BodyLimit{Max: 64}.Middleware(decodeHandler(t, &got))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/catalog", strings.NewReader(`{"code":"DRW-RMO"}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "DRW-RMO", got.Code)
}

func TestBodyLimitRejectsDeclaredLength(t *testing.T) {
	var got payload
	handler := BodyLimit{Max: 5}.Middleware(decodeHandler(t, &got))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/catalog", strings.NewReader(`{"code":"DRW-RMO"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Contains(t, rr.Body.String(), common.CodePayloadTooLarge)
}

func TestBodyLimitRejectsStreamedOversize(t *testing.T) {
	var got payload
	handler := BodyLimit{Max: 5}.Middleware(decodeHandler(t, &got))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/catalog", strings.NewReader(`{"code":"DRW-RMO"}`))
	req.ContentLength = -1
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestBodyLimitDisabled(t *testing.T) {
	var got payload
	handler := BodyLimit{}.Middleware(decodeHandler(t, &got))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"A"}`)))
	require.Equal(t, http.StatusOK, rr.Code)
}
