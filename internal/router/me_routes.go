package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/game-tracker/internal/handler"
	"github.com/iliyamo/game-tracker/internal/middleware"
)

// RegisterMe registers endpoints scoped to the authenticated user under
// /v1/me: profile, tracked games, Steam library and own reviews.
func RegisterMe(e *echo.Echo, users *handler.UserHandler, games *handler.GameInstanceHandler,
	library *handler.LibraryHandler, reviews *handler.ReviewHandler, tokens middleware.TokenVerifier) {
	g := e.Group("/v1/me", middleware.JWTAuth(tokens))
	g.GET("", users.Me)
	g.PATCH("", users.UpdateMe)

	g.GET("/games", games.List)
	g.POST("/games", games.Add)
	g.POST("/games/batch", games.AddBatch)
	g.GET("/games/stats", games.Stats)
	g.GET("/games/:id", games.Get)
	g.PATCH("/games/:id", games.Update)
	g.PUT("/games/:id/status", games.UpdateStatus)
	g.DELETE("/games/:id", games.Delete)

	g.POST("/steam/sync", library.Sync)
	g.GET("/steam/library", library.Owned)
	g.POST("/steam/import", library.Import)

	g.GET("/reviews", reviews.ListMine)
}
