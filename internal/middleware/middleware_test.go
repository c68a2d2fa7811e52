package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/happiness-journal/internal/config"
	"github.com/iliyamo/happiness-journal/internal/mcp"
	"github.com/iliyamo/happiness-journal/internal/service"
	"github.com/iliyamo/happiness-journal/internal/utils"
)

type fakeVerifier map[string]uint64

func (f fakeVerifier) Verify(_ context.Context, raw string) (uint64, error) {
	if raw == "broken" {
		return 0, errors.New("db down")
	}
	if id, ok := f[raw]; ok {
		return id, nil
	}
	return 0, service.ErrInvalidToken
}

func serve(e *echo.Echo, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSessionAuth(t *testing.T) {
	e := echo.New()
	e.GET("/api/user/info", func(c echo.Context) error {
		uid, ok := UserID(c)
		require.True(t, ok)
		return c.JSON(http.StatusOK, echo.Map{"id": uid, "token": SessionToken(c)})
	}, SessionAuth(fakeVerifier{"good": 7}))

	rec := serve(e, http.MethodGet, "/api/user/info", map[string]string{"Authorization": "Bearer good"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":7,"token":"good"}`, rec.Body.String())

	rec = serve(e, http.MethodGet, "/api/user/info", map[string]string{"Authorization": "bearer good"})
	assert.Equal(t, http.StatusOK, rec.Code)

	for _, h := range []string{"", "Bearer ", "Basic Zm9vOmJhcg==", "Bearer nope"} {
		rec = serve(e, http.MethodGet, "/api/user/info", map[string]string{"Authorization": h})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, h)
	}

	rec = serve(e, http.MethodGet, "/api/user/info", map[string]string{"Authorization": "Bearer broken"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMCPAuth(t *testing.T) {
	e := echo.New()
	e.Use(MCPAuth(fakeVerifier{"good": 7}, "https://api.example/.well-known/oauth-protected-resource"))
	e.POST("/mcp", func(c echo.Context) error {
		uid, ok := mcp.UserIDFrom(c.Request().Context())
		require.True(t, ok)
		return c.JSON(http.StatusOK, echo.Map{"id": uid})
	})
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	rec := serve(e, http.MethodPost, "/mcp", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t,
		`Bearer realm="happiness-journal", resource_metadata_uri="https://api.example/.well-known/oauth-protected-resource"`,
		rec.Header().Get("WWW-Authenticate"))

	rec = serve(e, http.MethodPost, "/mcp", map[string]string{"Authorization": "Bearer expired"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	rec = serve(e, http.MethodPost, "/mcp", map[string]string{"Authorization": "Bearer good"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":7}`, rec.Body.String())

	rec = serve(e, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireBotSecret(t *testing.T) {
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

	e := echo.New()
	e.POST("/start", ok, RequireBotSecret("s3cret"))
	assert.Equal(t, http.StatusNoContent, serve(e, http.MethodPost, "/start", map[string]string{BotSecretHeader: "s3cret"}).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodPost, "/start", map[string]string{BotSecretHeader: "s3cre"}).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodPost, "/start", nil).Code)

	e = echo.New()
	e.POST("/start", ok, RequireBotSecret(""))
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodPost, "/start", map[string]string{BotSecretHeader: ""}).Code)
}

func TestRequirePasswordKey(t *testing.T) {
	broker := utils.NewPasswordKeyBroker("secret", time.Hour)
	tok, _, err := broker.Mint("pwd-key")
	require.NoError(t, err)

	e := echo.New()
	e.GET("/journal", func(c echo.Context) error {
		return c.String(http.StatusOK, PasswordKey(c))
	}, RequirePasswordKey(broker))

	rec := serve(e, http.MethodGet, "/journal", map[string]string{"Password-Key": tok})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pwd-key", rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/journal", nil).Code)

	other, _, err := utils.NewPasswordKeyBroker("other", time.Hour).Mint("pwd-key")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/journal", map[string]string{"Password-Key": other}).Code)
}

func TestTokenBucket(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Minute,
		TTL: 10 * time.Minute, KeyStrategy: "ip_route", Prefix: "test:rl",
	}
	e := echo.New()
	e.POST("/api/token", func(c echo.Context) error { return c.NoContent(http.StatusCreated) }, NewTokenBucket(cfg, rdb))

	rec := serve(e, http.MethodPost, "/api/token", nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusCreated, serve(e, http.MethodPost, "/api/token", nil).Code)

	rec = serve(e, http.MethodPost, "/api/token", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestTokenBucket_DisabledPassesThrough(t *testing.T) {
	e := echo.New()
	e.POST("/api/token", func(c echo.Context) error { return c.NoContent(http.StatusCreated) },
		NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusCreated, serve(e, http.MethodPost, "/api/token", nil).Code)
	}
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.CacheConfig{
		Enabled: true, Methods: map[string]bool{http.MethodGet: true}, TTL: time.Minute,
		KeyStrategy: "route", Prefix: "test:cache", MaxBodyBytes: 1024,
	}
	calls := 0
	e := echo.New()
	e.GET("/.well-known/oauth-authorization-server", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"issuer": "https://api.example"})
	}, NewRedisCache(cfg, rdb))

	rec := serve(e, http.MethodGet, "/.well-known/oauth-authorization-server", nil)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	first := rec.Body.String()

	rec = serve(e, http.MethodGet, "/.well-known/oauth-authorization-server", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, first, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, 1, calls)
}
