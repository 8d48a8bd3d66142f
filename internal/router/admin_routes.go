package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/game-tracker/internal/handler"
	"github.com/iliyamo/game-tracker/internal/middleware"
)

// RegisterAdmin registers administrative endpoints. All routes require a
// valid JWT carrying ROLE_ADMIN.
func RegisterAdmin(e *echo.Echo, users *handler.UserHandler, games *handler.GameHandler, tokens middleware.TokenVerifier) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(tokens),
		middleware.RequireAuthority("ROLE_ADMIN"),
	)
	g.POST("/catalog/bootstrap", games.Bootstrap)

	g.POST("/users", users.Create)
	g.GET("/users", users.List)
	g.GET("/users/:id", users.Get)
	g.PUT("/users/:id", users.Update)
	g.DELETE("/users/:id", users.Delete)
}
