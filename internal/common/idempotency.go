package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// CodeIdempotentReplay is returned when an Idempotency-Key is reused inside its TTL.
const CodeIdempotentReplay = "IDEMPOTENT_REPLAY"

const idemPending = "pending"

// Idem claims each Idempotency-Key in Redis for TTL. A replay inside the
// window receives 409 carrying the status of the first request, or "pending"
// while it is still running. Keys whose request ended in a server error are
// released so the caller can retry.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

// Middleware applies the claim to write endpoints. Requests without the
// header, or without a Redis client, pass straight through.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Idempotency-Key")
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := idemKey(r.Method, r.URL.Path, header)
		claimed, err := i.R.SetNX(r.Context(), key, idemPending, i.ttl()).Result()
		if err != nil {
			JSONError(w, http.StatusServiceUnavailable, CodeStorageUnavailable, "idempotency store unavailable", nil)
			return
		}
		if !claimed {
			i.rejectReplay(r.Context(), w, key)
			return
		}

		rec := &idemStatus{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		// The request context may already be cancelled once the handler returns.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), time.Second)
		defer cancel()
		if rec.code() >= http.StatusInternalServerError {
			_ = i.R.Del(ctx, key).Err()
			return
		}
		_ = i.R.Set(ctx, key, strconv.Itoa(rec.code()), redis.KeepTTL).Err()
	})
}

func (i Idem) ttl() time.Duration {
	if i.TTL <= 0 {
		return 24 * time.Hour
	}
	return i.TTL
}

func (i Idem) rejectReplay(ctx context.Context, w http.ResponseWriter, key string) {
	details := map[string]any{"originalStatus": idemPending}
	if prior, err := i.R.Get(ctx, key).Result(); err == nil && prior != idemPending {
		if status, convErr := strconv.Atoi(prior); convErr == nil {
			details["originalStatus"] = status
		}
	}
	JSONError(w, http.StatusConflict, CodeIdempotentReplay, "request with this Idempotency-Key was already received", details)
}

func idemKey(method, path, header string) string {
	sum := sha256.Sum256([]byte(method + "\n" + path + "\n" + header))
	return "idem:" + hex.EncodeToString(sum[:])
}

type idemStatus struct {
	http.ResponseWriter
	status int
}

func (s *idemStatus) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *idemStatus) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
