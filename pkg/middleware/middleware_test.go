package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pydash/methodref/pkg/metrics"
	"github.com/pydash/methodref/pkg/ratelimit"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
})

func TestRequestIDGeneratesAndPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	assert.Len(t, seen, 16)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestCORS(t *testing.T) {
	h := CORS(CORSConfig{
		AllowOrigins: []string{"https://dash.example"},
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       60,
	})(okHandler)

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil)
		req.Header.Set("Origin", "https://dash.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "https://dash.example", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/categories", nil)
		req.Header.Set("Origin", "https://dash.example")
		req.Header.Set("Access-Control-Request-Method", "GET")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Access-Control-Max-Age"))
		assert.Equal(t, "GET", rec.Header().Get("Access-Control-Allow-Methods"))
		assert.Contains(t, rec.Header().Values("Vary"), "Access-Control-Request-Method")
	})

	t.Run("plain options is not a preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/categories", nil)
		req.Header.Set("Origin", "https://dash.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("other origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestMatchOrigin(t *testing.T) {
	allowed := []string{"https://dash.example", "https://*.methodref.dev"}
	tests := []struct {
		origin string
		want   bool
	}{
		{"https://dash.example", true},
		{"HTTPS://Dash.Example", true},
		{"https://docs.methodref.dev", true},
		{"https://a.b.methodref.dev", true},
		{"https://methodref.dev", false},
		{"http://docs.methodref.dev", false},
		{"https://evilmethodref.dev", false},
		{"https://other.example", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchOrigin(allowed, tt.origin), tt.origin)
	}
	assert.True(t, matchOrigin([]string{"*"}, "https://anything.example"))
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.New(2, time.Minute)
	t.Cleanup(limiter.Stop)
	h := RateLimit(limiter)(okHandler)

	do := func(path, ip string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("/api/v1/search", "10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("/api/v1/search", "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("/api/v1/search", "10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("/api/v1/search", "10.0.0.2"))
	assert.Equal(t, http.StatusOK, do("/health/live", "10.0.0.1"))
}

func TestRateLimitHeaders(t *testing.T) {
	limiter := ratelimit.New(1, time.Minute)
	t.Cleanup(limiter.Stop)
	h := RateLimit(limiter)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
	req.RemoteAddr = "10.0.0.9:5555"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "1", rec.Header().Get(HeaderRateLimitLimit))
	assert.Equal(t, "0", rec.Header().Get(HeaderRateLimitRemaining))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded","code":"rate_limited"}`, rec.Body.String())
}

func TestClientKey(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.50"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		remote  string
		xff     []string
		trusted []netip.Prefix
		want    string
	}{
		{name: "peer only", remote: "192.0.2.1:1234", want: "192.0.2.1"},
		{name: "forwarded header ignored without trusted proxies", remote: "192.0.2.1:1234", xff: []string{"203.0.113.5"}, want: "192.0.2.1"},
		{name: "untrusted peer cannot spoof", remote: "198.51.100.9:1234", xff: []string{"203.0.113.5"}, trusted: trusted, want: "198.51.100.9"},
		{name: "trusted peer forwards client", remote: "10.1.2.3:80", xff: []string{"203.0.113.5"}, trusted: trusted, want: "203.0.113.5"},
		{name: "right-most untrusted hop wins", remote: "10.1.2.3:80", xff: []string{"1.1.1.1, 203.0.113.5, 10.9.9.9"}, trusted: trusted, want: "203.0.113.5"},
		{name: "repeated headers are joined", remote: "192.0.2.50:80", xff: []string{"6.6.6.6", "203.0.113.7"}, trusted: trusted, want: "203.0.113.7"},
		{name: "all hops trusted falls back to peer", remote: "10.1.2.3:80", xff: []string{"10.0.0.1"}, trusted: trusted, want: "10.1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for _, v := range tt.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			assert.Equal(t, tt.want, clientKey(req, tt.trusted))
		})
	}
}

func TestRateLimitIgnoresRotatingForwardedFor(t *testing.T) {
	limiter := ratelimit.New(2, time.Minute)
	t.Cleanup(limiter.Stop)
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	h := RateLimit(limiter, trusted...)(okHandler)

	var codes []int
	for i := range 5 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
		req.RemoteAddr = "198.51.100.20:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429, 429, 429}, codes)
	assert.Equal(t, 1, limiter.Len())
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := ParseTrustedProxies([]string{"10.1.2.3/8", " 192.0.2.1 ", "::1"})
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.0.2.1/32"),
		netip.MustParsePrefix("::1/128"),
	}, got)

	_, err = ParseTrustedProxies([]string{"proxy.internal"})
	assert.Error(t, err)
}

func TestMetricsRecordsNormalizedPath(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	h := Metrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/methods/str-upper", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/methods/list-append", nil))

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("get", "/api/v1/methods/{id}", "404"))
	assert.Equal(t, float64(2), got)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.HTTPRequestsInFlight))
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/api/v1/methods/str-upper":          "/api/v1/methods/{id}",
		"/api/v1/methods/str-upper/category": "/api/v1/methods/{id}/category",
		"/api/v1/categories/list-methods":    "/api/v1/categories/{id}",
		"/api/v1/categories":                 "/api/v1/categories",
		"/api/v1/search":                     "/api/v1/search",
		"/api/v1/cache/stats":                "/api/v1/cache/stats",
		"/health/ready":                      "/health/ready",
		"/":                                  "/",
		"/wp-admin/setup.php":                RouteOther,
		"/api/v1/methods/a/b/c":              RouteOther,
		"/api/v2/search":                     RouteOther,
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizePath(in), in)
	}
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(finished)
		<-release
		_, err := w.Write([]byte("late"))
		assert.ErrorIs(t, err, http.ErrHandlerTimeout)
	})
	rec := httptest.NewRecorder()
	Timeout(10*time.Millisecond)(slow).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	close(release)
	<-finished
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.JSONEq(t, `{"error":"request timeout","code":"timeout"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	Timeout(time.Second)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	Chain(okHandler, mw("a"), mw("b")).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b"}, order)
}
