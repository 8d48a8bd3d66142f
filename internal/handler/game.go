package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/game-tracker/internal/model"
	"github.com/iliyamo/game-tracker/internal/service"
)

// Catalog is the read and bootstrap surface of the catalog service.
type Catalog interface {
	Search(ctx context.Context, query string, page, size int) (service.GamePage, error)
	GetGame(ctx context.Context, id uint64) (model.Game, error)
	GetGameDetails(ctx context.Context, externalID int64) (model.Game, error)
	Bootstrap(ctx context.Context) (service.BootstrapReport, error)
}

// GameHandler serves the public catalog and the admin bootstrap trigger.
// Base is the server lifetime context; background bootstraps run on it so
// they outlive the request but stop on shutdown.
type GameHandler struct {
	Catalog Catalog
	Base    context.Context

	running atomic.Bool
}

func NewGameHandler(base context.Context, catalog Catalog) *GameHandler {
	return &GameHandler{Catalog: catalog, Base: base}
}

const remoteTimeout = 30 * time.Second

// List returns a page of local games; with ?q= it searches and may pull
// matching titles from the remote catalog.
func (h *GameHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), remoteTimeout)
	defer cancel()

	page, err := h.Catalog.Search(ctx, strings.TrimSpace(c.QueryParam("q")), queryInt(c, "page", 0), queryInt(c, "size", 0))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// Get returns one local game by id.
func (h *GameHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c, "id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	g, err := h.Catalog.GetGame(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, g)
}

// Details fetches one game from the remote catalog by its external id and
// stores it locally.
func (h *GameHandler) Details(c echo.Context) error {
	ext, err := strconv.ParseInt(c.Param("externalId"), 10, 64)
	if err != nil || ext <= 0 {
		return badID(c, "externalId")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), remoteTimeout)
	defer cancel()

	g, err := h.Catalog.GetGameDetails(ctx, ext)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, g)
}

// Bootstrap starts a catalog bootstrap in the background (admin). A second
// request while one is running is answered with 409.
func (h *GameHandler) Bootstrap(c echo.Context) error {
	if !h.running.CompareAndSwap(false, true) {
		return c.JSON(http.StatusConflict, errorBody{Code: "BOOTSTRAP_RUNNING", Message: "a catalog bootstrap is already running", Status: http.StatusConflict})
	}
	base := h.Base
	if base == nil {
		base = context.Background()
	}
	logger := log.Ctx(c.Request().Context()).With().Str("job", "bootstrap").Logger()
	ctx := logger.WithContext(base)
	go func() {
		defer h.running.Store(false)
		if _, err := h.Catalog.Bootstrap(ctx); err != nil {
			logger.Error().Err(err).Msg("admin bootstrap failed")
		}
	}()
	return c.JSON(http.StatusAccepted, echo.Map{"started": true})
}
