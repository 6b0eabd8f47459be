package catalog

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-estimator/internal/common"
)

// Handler exposes catalog endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Routes mounts the catalog endpoints on r. Mutating routes pass through mw.
func (h *Handler) Routes(r chi.Router, mw ...func(http.Handler) http.Handler) {
	r.Get("/", h.List)
	r.Get("/categories", h.Categories)
	r.Get("/export", h.Export)
	r.Get("/items/{id}", h.GetByID)
	r.Get("/{code}", h.GetByCode)
	r.With(mw...).Post("/", h.Create)
	r.With(mw...).Patch("/{id}", h.Update)
	r.With(mw...).Delete("/{id}", h.Deactivate)
}

// List handles GET /api/v1/catalog.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	filter, err := h.service.ParseListParams(r.URL.Query())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

// Categories handles GET /api/v1/catalog/categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	filter, err := h.service.ParseListParams(r.URL.Query())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	rows, err := h.service.Categories(r.Context(), filter.Tier)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// Export handles GET /api/v1/catalog/export.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	filter, err := h.service.ParseListParams(r.URL.Query())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	// Buffered so storage errors still render as JSON.
	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), filter, &buf); err != nil {
		common.WriteError(w, err)
		return
	}
	name := "price-list.xlsx"
	if filter.Tier != "" {
		name = "price-list-" + strings.ToLower(string(filter.Tier)) + ".xlsx"
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// GetByCode handles GET /api/v1/catalog/{code}?tier=.
func (h *Handler) GetByCode(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	q := r.URL.Query()
	includeInactive := false
	if raw := q.Get("includeInactive"); raw != "" {
		v, ok := common.ParseBool(raw)
		if !ok {
			common.WriteError(w, common.InvalidRequest("includeInactive", "includeInactive must be true or false"))
			return
		}
		includeInactive = v
	}
	item, err := h.service.GetByCodeAndTier(r.Context(), chi.URLParam(r, "code"), q.Get("tier"), includeInactive)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": item})
}

// GetByID handles GET /api/v1/catalog/items/{id}.
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	item, err := h.service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": item})
}

// Create handles POST /api/v1/catalog.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in CreateInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	item, err := h.service.Create(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/items/"+item.ID.String())
	common.JSON(w, http.StatusCreated, map[string]any{"data": item})
}

// Update handles PATCH /api/v1/catalog/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in UpdateInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	item, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": item})
}

// Deactivate handles DELETE /api/v1/catalog/{id}.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	res, err := h.service.Deactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "catalog service not configured", nil)
		return false
	}
	return true
}
