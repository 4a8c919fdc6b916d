package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/meeting-room-booking/internal/config"
)

func TestCacheKey(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "path_query"}

	a := cacheKey(cfg, "/bookings/room/room-1", "")
	b := cacheKey(cfg, "/bookings/room/room-1", "x=1")
	c := cacheKey(cfg, "/bookings/room/room-2", "")
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a, cacheKey(cfg, "/bookings/room/room-1", ""))
	assert.Regexp(t, `^cache:[0-9a-f]{40}$`, a)

	cfg.KeyStrategy = "path"
	assert.Equal(t, cacheKey(cfg, "/bookings/x", "a=1"), cacheKey(cfg, "/bookings/x", "a=2"))
	assert.Equal(t, "cache:idx:/bookings/x", indexKey(cfg, "/bookings/x"))
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	payload, err := encodePayload(http.StatusOK, hdr, []byte(`{"count":0}`))
	require.NoError(t, err)

	status, gotHdr, body, ok := decodePayload(payload)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", gotHdr.Get("Content-Type"))
	assert.Equal(t, `{"count":0}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 0})
	assert.False(t, ok)
	_, _, _, ok = decodePayload([]byte{0, 0, 0, 200, 0, 0, 1, 0})
	assert.False(t, ok)
}

func TestRateKey(t *testing.T) {
	cfg := config.RateLimitConfig{Prefix: "rl"}

	cfg.KeyStrategy = "ip"
	assert.Equal(t, "rl:ip:10.0.0.1", rateKey(cfg, "10.0.0.1", "POST", "/bookings/"))
	cfg.KeyStrategy = "route"
	assert.Equal(t, "rl:route:POST /bookings/", rateKey(cfg, "10.0.0.1", "POST", "/bookings/"))
	cfg.KeyStrategy = ""
	assert.Equal(t, "rl:ip:unknown:route:DELETE /bookings/:id", rateKey(cfg, "", "DELETE", "/bookings/:id"))
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 0, retryAfterSeconds(-5))
	assert.Equal(t, 1, retryAfterSeconds(1))
	assert.Equal(t, 2, retryAfterSeconds(1500))
	assert.Equal(t, int64(7), asInt64("7"))
	assert.Equal(t, int64(3), asInt64(float64(3)))
}

func TestDisabledMiddlewarePassThrough(t *testing.T) {
	e := echo.New()
	log := logrus.New()
	cache := NewResponseCache(config.CacheConfig{Enabled: true}, nil, log)
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
		cache.Middleware(),
		RateLimit(config.RateLimitConfig{Enabled: true}, nil, log))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))

	// Invalidate on a disabled cache is a no-op.
	cache.Invalidate(context.Background(), "/x")
	var nilCache *ResponseCache
	nilCache.Invalidate(context.Background(), "/x")
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	e := echo.New()
	e.Use(RequestLogger(log))
	e.GET("/ok", func(c echo.Context) error {
		Logger(c, nil).Info("inside handler")
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ok?a=1", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(HeaderRequestID))
	assert.Contains(t, buf.String(), `"request_id":"req-123"`)
	assert.Contains(t, buf.String(), `"msg":"inside handler"`)
	assert.Contains(t, buf.String(), `"path":"/ok?a=1"`)
	assert.Contains(t, buf.String(), `"status_code":204`)

	buf.Reset()
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Len(t, rec.Header().Get(HeaderRequestID), 36)
	assert.Contains(t, buf.String(), `"level":"error"`)
}
