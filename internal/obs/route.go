package obs

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type routePatternKey struct{}

// WithRoutePattern pins the route label for requests that are not served by a
// chi router, such as handlers exercised directly in tests.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RoutePatternFromContext returns the pinned route pattern or, failing that,
// the pattern chi has matched so far. The chi pattern is only complete once
// the request has been routed, so middleware should read it after calling the
// next handler.
func RoutePatternFromContext(ctx context.Context) string {
	if pattern, ok := ctx.Value(routePatternKey{}).(string); ok && pattern != "" {
		return pattern
	}
	if rc := chi.RouteContext(ctx); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

// routeLabel never returns an empty label; unmatched requests share one
// series instead of one per path.
func routeLabel(r *http.Request) string {
	if pattern := RoutePatternFromContext(r.Context()); pattern != "" {
		return pattern
	}
	return "unmatched"
}
