package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/game-tracker/internal/handler"
	"github.com/iliyamo/game-tracker/internal/middleware"
)

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers registration, verification, login and refresh
// under /v1/auth. limiter guards every route in the group; pass a no-op
// middleware to disable it.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limiter)
	g.POST("/register", a.Register)
	g.POST("/verify", a.Verify)
	g.POST("/resend-verification", a.ResendVerification)
	g.POST("/refresh", a.Refresh)

	// Steam's browser flow: redirect out, come back with the assertion.
	g.GET("/steam", a.SteamLogin)
	g.GET("/steam/return", a.SteamReturn)

	// :provider is basic or steam.
	g.POST("/:provider/login", a.Login)
}

// RegisterCatalog registers the public catalog and review reads. cache is
// applied to the catalog listing only; single games are served through the
// game cache, which every upsert invalidates.
func RegisterCatalog(e *echo.Echo, games *handler.GameHandler, reviews *handler.ReviewHandler, cache echo.MiddlewareFunc) {
	g := e.Group("/v1")
	g.GET("/games", games.List, cache)
	g.GET("/games/:id", games.Get)
	g.GET("/games/external/:externalId", games.Details)
	g.GET("/games/:id/reviews", reviews.ListByGame)
	g.GET("/reviews/:id", reviews.Get)
}

// RegisterReviews registers review writes. Every route requires a valid
// access token.
func RegisterReviews(e *echo.Echo, h *handler.ReviewHandler, tokens middleware.TokenVerifier) {
	g := e.Group("/v1/reviews", middleware.JWTAuth(tokens))
	g.POST("", h.Create)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}
