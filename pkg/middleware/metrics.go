package middleware

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pydash/methodref/pkg/metrics"
)

// RouteOther labels requests for paths the service does not serve.
const RouteOther = "other"

// Metrics instruments requests with promhttp: in-flight gauge, request
// counter by method, route and code, and latency by method and route.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		counted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			labels := prometheus.Labels{"route": normalizePath(r.URL.Path)}
			promhttp.InstrumentHandlerDuration(
				m.HTTPRequestDuration.MustCurryWith(labels),
				promhttp.InstrumentHandlerCounter(m.HTTPRequestsTotal.MustCurryWith(labels), next),
			).ServeHTTP(w, r)
		})
		return promhttp.InstrumentHandlerInFlight(m.HTTPRequestsInFlight, counted)
	}
}

// normalizePath maps a request path onto the route it will hit, replacing
// method and category ids with {id}. Paths outside the API collapse to
// RouteOther so scanners cannot inflate label cardinality.
func normalizePath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case path == "/" || path == "":
		return "/"
	case parts[0] == "health" && len(parts) == 2 && (parts[1] == "live" || parts[1] == "ready"):
		return path
	case len(parts) < 3 || parts[0] != "api" || parts[1] != "v1":
		return RouteOther
	}

	switch rest := parts[2:]; {
	case len(rest) == 1 && (rest[0] == "search" || rest[0] == "categories" || rest[0] == "analytics"):
		return "/api/v1/" + rest[0]
	case len(rest) == 2 && rest[0] == "cache" && (rest[1] == "stats" || rest[1] == "invalidate"):
		return "/api/v1/cache/" + rest[1]
	case len(rest) == 2 && (rest[0] == "methods" || rest[0] == "categories"):
		return "/api/v1/" + rest[0] + "/{id}"
	case len(rest) == 3 && rest[0] == "methods" && rest[2] == "category":
		return "/api/v1/methods/{id}/category"
	}
	return RouteOther
}
