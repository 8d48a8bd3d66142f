package middleware // middleware provides shared request processing for handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/game-tracker/internal/auth"
)

// Context keys set by JWTAuth.
const (
	CtxUserID      = "user_id"
	CtxUsername    = "username"
	CtxAuthorities = "authorities"
	CtxRole        = "role"
)

// TokenVerifier checks access tokens. *auth.TokenService implements it.
type TokenVerifier interface {
	Validate(token string, refresh bool) bool
	Decode(token string, refresh bool) (*auth.Claims, error)
}

// JWTAuth validates a Bearer access token and stores the caller in the
// echo context: the user id (uint64), username, authorities and the role
// derived from them. Handlers read them back with c.Get.
func JWTAuth(tokens TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(h, "Bearer ") {
				return unauthorized(c, "missing bearer token")
			}
			raw := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
			if !tokens.Validate(raw, false) {
				return unauthorized(c, "invalid token")
			}
			claims, err := tokens.Decode(raw, false)
			if err != nil || claims.UserID == 0 || claims.Type != auth.TokenType {
				return unauthorized(c, "invalid claims")
			}
			c.Set(CtxUserID, claims.UserID)
			c.Set(CtxUsername, claims.Subject)
			c.Set(CtxAuthorities, claims.Authorities)
			c.Set(CtxRole, roleFrom(claims.Authorities))
			return next(c)
		}
	}
}

// roleFrom picks the role out of "ROLE_<role>" authorities, preferring
// ADMIN when both are present.
func roleFrom(authorities []string) string {
	role := ""
	for _, a := range authorities {
		r, ok := strings.CutPrefix(a, "ROLE_")
		if !ok {
			continue
		}
		if r == "ADMIN" {
			return r
		}
		role = r
	}
	return role
}

// RequireAuthority aborts with 403 unless the caller's token carries one
// of the given authorities. It must run after JWTAuth.
func RequireAuthority(authorities ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(authorities))
	for _, a := range authorities {
		allowed[a] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			have, _ := c.Get(CtxAuthorities).([]string)
			for _, a := range have {
				if allowed[a] {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, echo.Map{"code": "FORBIDDEN", "message": "forbidden", "status": http.StatusForbidden})
		}
	}
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"code": "UNAUTHENTICATED", "message": msg, "status": http.StatusUnauthorized})
}
