package common

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newIdem(t *testing.T) (Idem, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return Idem{R: client, TTL: time.Minute}, mr
}

func serve(h http.Handler, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/catalog", nil)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestIdemRejectsReplay(t *testing.T) {
	idem, mr := newIdem(t)
	calls := 0
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	require.Equal(t, http.StatusCreated, serve(h, "abc").Code)
	require.Equal(t, http.StatusConflict, serve(h, "abc").Code)
	require.Equal(t, 1, calls)

	mr.FastForward(time.Minute + time.Second)
	require.Equal(t, http.StatusCreated, serve(h, "abc").Code)
	require.Equal(t, 2, calls)
}

func TestIdemReleasesKeyOnServerError(t *testing.T) {
	idem, _ := newIdem(t)
	status := http.StatusServiceUnavailable
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))

	require.Equal(t, http.StatusServiceUnavailable, serve(h, "retry-me").Code)
	status = http.StatusCreated
	require.Equal(t, http.StatusCreated, serve(h, "retry-me").Code)
}

func TestIdemWithoutHeaderOrClient(t *testing.T) {
	idem, _ := newIdem(t)
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	require.Equal(t, http.StatusCreated, serve(h, "").Code)
	require.Equal(t, http.StatusCreated, serve(h, "").Code)

	bare := Idem{}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	require.Equal(t, http.StatusCreated, serve(bare, "abc").Code)
	require.Equal(t, http.StatusCreated, serve(bare, "abc").Code)
}

func TestIdemStoreFailure(t *testing.T) {
	idem, mr := newIdem(t)
	mr.Close()
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	require.Equal(t, http.StatusServiceUnavailable, serve(h, "abc").Code)
}

func TestIdemReplayReportsOriginalStatus(t *testing.T) {
	idem, _ := newIdem(t)
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	require.Equal(t, http.StatusCreated, serve(h, "abc").Code)

	replay := serve(h, "abc")
	require.Equal(t, http.StatusConflict, replay.Code)
	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(replay.Body.Bytes(), &body))
	require.Equal(t, CodeIdempotentReplay, body.Error.Code)
	require.EqualValues(t, http.StatusCreated, body.Error.Details["originalStatus"])
}

func TestIdemKeyIsScopedToRoute(t *testing.T) {
	require.NotEqual(t, idemKey(http.MethodPost, "/api/v1/catalog", "k"), idemKey(http.MethodPatch, "/api/v1/catalog", "k"))
}
