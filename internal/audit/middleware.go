package audit

import (
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-estimator/internal/obs"
)

// HTTPRecorder writes one audit entry per handled request.
type HTTPRecorder struct {
	Service *Service
	OnError func(error)
}

// HTTPConfig describes the entry produced for a route. When ResourceIDParam
// is absent from the URL, as on create, the id is taken from the last
// segment of the response Location header.
type HTTPConfig struct {
	Action          string
	ResourceType    string
	ResourceIDParam string
	MetadataFunc    func(*http.Request, int) map[string]any
}

// Middleware records after the handler has written its response, so the
// entry carries the final status.
func (r HTTPRecorder) Middleware(cfg HTTPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if r.Service == nil || !r.Service.Enabled {
				next.ServeHTTP(w, req)
				return
			}

			rec := obs.NewStatusRecorder(w)
			next.ServeHTTP(rec, req)

			status := rec.Status()
			err := r.Service.Record(req.Context(), cfg.Action, cfg.ResourceType, cfg.resourceID(req, w.Header()), req, status, cfg.metadata(req, status))
			if err != nil && r.OnError != nil {
				r.OnError(err)
			}
		})
	}
}

func (cfg HTTPConfig) resourceID(req *http.Request, header http.Header) string {
	if cfg.ResourceIDParam != "" {
		if id := chi.URLParam(req, cfg.ResourceIDParam); id != "" {
			return id
		}
	}
	if loc := strings.TrimSpace(header.Get("Location")); loc != "" {
		return path.Base(loc)
	}
	return ""
}

func (cfg HTTPConfig) metadata(req *http.Request, status int) []byte {
	if cfg.MetadataFunc == nil {
		return nil
	}
	payload := cfg.MetadataFunc(req, status)
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}
