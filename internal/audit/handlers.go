package audit

import (
	"net/http"
	"strings"

	"github.com/noah-isme/backend-estimator/internal/common"
)

// Handler exposes HTTP endpoints for working with audit entries.
type Handler struct {
	Store Store
}

// List handles GET /api/v1/audit.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "audit store not configured", nil)
		return
	}
	q := r.URL.Query()
	limit := common.AtoiDefault(q.Get("limit"), 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := common.AtoiDefault(q.Get("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	rows, err := h.Store.ListEntries(r.Context(), ListParams{
		ResourceID: strings.TrimSpace(q.Get("resourceId")),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		common.WriteError(w, common.StorageUnavailable(err))
		return
	}
	if rows == nil {
		rows = []Entry{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}
