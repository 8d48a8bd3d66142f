package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/game-tracker/internal/auth"
	"github.com/iliyamo/game-tracker/internal/config"
)

func newTokens() *auth.TokenService {
	return auth.NewTokenService("access-secret", "refresh-secret", time.Hour, 24*time.Hour, nil)
}

func protected(tokens TokenVerifier, mws ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	handler := func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"user_id":  c.Get(CtxUserID),
			"username": c.Get(CtxUsername),
			"role":     c.Get(CtxRole),
		})
	}
	e.GET("/me", handler, append([]echo.MiddlewareFunc{JWTAuth(tokens)}, mws...)...)
	return e
}

func do(e *echo.Echo, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	tokens := newTokens()
	e := protected(tokens)
	access, err := tokens.IssueAccessToken("alice", 7, []string{"ROLE_USER"})
	if err != nil {
		t.Fatal(err)
	}
	refresh, _ := tokens.IssueRefreshToken("alice")

	rec := do(e, access.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	body := rec.Body.String()
	for _, want := range []string{`"user_id":7`, `"username":"alice"`, `"role":"USER"`} {
		if !strings.Contains(body, want) {
			t.Errorf("body %s missing %s", body, want)
		}
	}

	for name, tok := range map[string]string{
		"missing": "",
		"garbage": "not-a-token",
		"refresh": refresh.Token,
	} {
		if rec := do(e, tok); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s token: status = %d", name, rec.Code)
		}
	}
}

func TestRequireAuthority(t *testing.T) {
	tokens := newTokens()
	e := protected(tokens, RequireAuthority("ROLE_ADMIN"))
	user, _ := tokens.IssueAccessToken("alice", 7, []string{"ROLE_USER"})
	admin, _ := tokens.IssueAccessToken("root", 1, []string{"ROLE_ADMIN"})

	if rec := do(e, user.Token); rec.Code != http.StatusForbidden {
		t.Errorf("user status = %d", rec.Code)
	}
	rec := do(e, admin.Token)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"role":"ADMIN"`) {
		t.Errorf("admin status = %d body = %s", rec.Code, rec.Body)
	}
}

func TestRoleFrom(t *testing.T) {
	if r := roleFrom([]string{"ROLE_USER", "ROLE_ADMIN"}); r != "ADMIN" {
		t.Errorf("role = %q", r)
	}
	if r := roleFrom([]string{"SCOPE_x"}); r != "" {
		t.Errorf("role = %q", r)
	}
}

func TestDisabledRedisMiddlewarePassesThrough(t *testing.T) {
	e := echo.New()
	e.GET("/games", func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
		NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil),
		NewRedisCache(config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}}, nil))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/games", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("X-Cache") != "" {
		t.Fatalf("status = %d headers = %v", rec.Code, rec.Header())
	}
}

func TestCacheKeyIncludesPath(t *testing.T) {
	e := echo.New()
	cfg := config.CacheConfig{Prefix: "gt:cache", KeyStrategy: "route"}
	key := func(path string) string {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), httptest.NewRecorder())
		c.SetPath("/v1/games/:id")
		return cacheKeyFrom(cfg, c)
	}
	a, b := key("/v1/games/1"), key("/v1/games/2")
	if a == b {
		t.Fatal("different ids share a cache key")
	}
	if !strings.HasPrefix(a, "gt:cache:") || a != key("/v1/games/1") {
		t.Errorf("key = %q", a)
	}
}

func TestPayloadEncoding(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	if err != nil {
		t.Fatal(err)
	}
	status, got, body, ok := decodePayload(bs)
	if !ok || status != http.StatusOK || got.Get("Content-Type") != "application/json" || string(body) != `{"a":1}` {
		t.Fatalf("decoded %d %v %q %v", status, got, body, ok)
	}
	if _, _, _, ok := decodePayload(bs[:5]); ok {
		t.Error("truncated payload accepted")
	}
}

func TestCaptureWriterStopsAtLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
	cw.Write([]byte("abc"))
	cw.Write([]byte("def"))
	if !cw.overflow || rec.Body.String() != "abcdef" {
		t.Fatalf("overflow = %v client body = %q", cw.overflow, rec.Body)
	}
}

func TestRateKeyStrategies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/basic/login", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/auth/:provider/login")

	if k := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip"}, c); k != "rl:ip:10.0.0.1" {
		t.Errorf("ip key = %q", k)
	}
	if k := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip_route"}, c); k != "rl:ip:10.0.0.1:route:POST /v1/auth/:provider/login" {
		t.Errorf("ip_route key = %q", k)
	}
	c.Set(CtxUserID, uint64(5))
	if k := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip_user_route"}, c); !strings.Contains(k, ":user:5:") {
		t.Errorf("user key = %q", k)
	}
}
