package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/observability"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

func TestRouterHealthAndMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	router := NewRouter(RouterParams{Config: &Config{AppEnv: "test"}, Metrics: metrics})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "gestionale_http_requests_total"))
}

func TestRouterUnmountedPrefix(t *testing.T) {
	router := NewRouter(RouterParams{Config: &Config{}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/prelievi", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActorMiddleware(t *testing.T) {
	var seen string
	h := actorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ActorHeader, " marta ")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "marta", seen)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, shared.DefaultActor, seen)
}
