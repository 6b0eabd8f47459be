// Package audit records catalog mutations so deactivated and re-priced rows keep
// a history of who changed them and when.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-estimator/internal/common"
	"github.com/noah-isme/backend-estimator/internal/obs"
)

// Entry is one persisted audit record.
type Entry struct {
	ID         uuid.UUID       `json:"id"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	ResourceID string          `json:"resourceId,omitempty"`
	RequestID  string          `json:"requestId,omitempty"`
	IP         string          `json:"ip,omitempty"`
	UserAgent  string          `json:"userAgent,omitempty"`
	Status     int             `json:"status"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// ListParams narrows ListEntries.
type ListParams struct {
	ResourceID string
	Limit      int
	Offset     int
}

// Store defines the persistence operations required for auditing.
type Store interface {
	InsertEntry(ctx context.Context, entry Entry) error
	ListEntries(ctx context.Context, params ListParams) ([]Entry, error)
}

// Service persists audit entries for catalog mutations.
type Service struct {
	Store        Store
	Enabled      bool
	SamplingRate float64
	Clock        func() time.Time
}

// Record persists an audit entry when auditing is enabled.
func (s Service) Record(ctx context.Context, action, resourceType, resourceID string, req *http.Request, status int, metadata []byte) error {
	if !s.Enabled {
		return nil
	}
	if s.SamplingRate > 0 && s.SamplingRate < 1 && rand.Float64() > s.SamplingRate {
		return nil
	}
	if req == nil {
		return errors.New("audit: request is required")
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}

	route := routeOf(req)
	if status == 0 {
		status = http.StatusOK
	}
	requestID := middleware.GetReqID(req.Context())
	if requestID == "" {
		requestID = req.Header.Get("X-Request-ID")
	}

	return s.Store.InsertEntry(ctx, Entry{
		ID:         uuid.New(),
		Action:     buildAction(action, req.Method, route),
		Resource:   buildResource(resourceType, route),
		ResourceID: strings.TrimSpace(resourceID),
		RequestID:  strings.TrimSpace(requestID),
		IP:         common.ClientIP(req),
		UserAgent:  strings.TrimSpace(req.Header.Get("User-Agent")),
		Status:     status,
		Metadata:   toJSONB(metadata, req.URL.RawQuery),
		OccurredAt: s.now(),
	})
}

func (s Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

func routeOf(req *http.Request) string {
	if route := obs.RoutePatternFromContext(req.Context()); route != "" {
		return route
	}
	return strings.TrimSpace(req.URL.Path)
}

func buildAction(action, method, route string) string {
	if trimmed := strings.TrimSpace(action); trimmed != "" {
		return trimmed
	}
	if route == "" {
		route = "/"
	}
	return strings.ToUpper(strings.TrimSpace(method)) + " " + route
}

func buildResource(resourceType, route string) string {
	if trimmed := strings.TrimSpace(resourceType); trimmed != "" {
		return trimmed
	}
	route = strings.Trim(route, " /")
	if route == "" {
		return "unknown"
	}
	segments := strings.Split(route, "/")
	if len(segments) >= 3 && segments[0] == "api" && segments[1] == "v1" {
		segments = segments[2:]
	}
	kept := segments[:0]
	for _, seg := range segments {
		if strings.HasPrefix(seg, "{") {
			continue
		}
		kept = append(kept, seg)
	}
	if len(kept) == 0 {
		return "unknown"
	}
	return strings.Join(kept, ".")
}

func toJSONB(metadata []byte, query string) []byte {
	if len(metadata) > 0 {
		return metadata
	}
	if strings.TrimSpace(query) == "" {
		return nil
	}
	data, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil
	}
	return data
}
