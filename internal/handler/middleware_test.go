package handler_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"idphoto/internal/handler"
	"idphoto/internal/middleware"
)

func TestCSRF_RequiredOnMutatingRoutes(t *testing.T) {
	csrf := middleware.NewCSRF("test-secret")
	s := newTestServer(t, handler.RouteOptions{CSRF: csrf})
	csrf.OnFailure(s.h.CSRFFailed)

	rec := s.postForm("/api/photo/rotate", url.Values{"degrees": {"90"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeError(t, rec).Kind)

	// the page issues the token cookie; the script echoes it in a header
	rec = s.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	token := s.cookies["csrf_token"]
	require.NotNil(t, token)
	assert.Contains(t, rec.Body.String(), token.Value)

	req := httpRequestWithToken(t, "/api/photo/rotate", url.Values{"degrees": {"90"}}, token.Value)
	rec = s.do(req)
	assert.Equal(t, http.StatusConflict, rec.Code, "request passes CSRF and reaches the session")
	assert.Equal(t, "missing_source", decodeError(t, rec).Kind)
}

func TestCSRF_GetRoutesPass(t *testing.T) {
	csrf := middleware.NewCSRF("test-secret")
	s := newTestServer(t, handler.RouteOptions{CSRF: csrf})

	rec := s.get("/api/presets")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_JSONDenial(t *testing.T) {
	s := newTestServer(t, handler.RouteOptions{})
	rl := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerMinute: 1,
		Burst:             1,
		Deny:              s.h.RateLimited,
	})
	t.Cleanup(rl.Close)
	s.srv = s.h.Router(handler.RouteOptions{RateLimiter: rl, Logger: zaptest.NewLogger(t)})

	rec := s.get("/api/presets")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.get("/api/presets")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeError(t, rec).Kind)

	// health and the page are not rate limited
	assert.Equal(t, http.StatusOK, s.get("/health").Code)
	assert.Equal(t, http.StatusOK, s.get("/").Code)
}

func httpRequestWithToken(t *testing.T, path string, form url.Values, token string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRF-Token", token)
	return req
}
