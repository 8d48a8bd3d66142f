package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/game-tracker/internal/model"
	"github.com/iliyamo/game-tracker/internal/service"
	"github.com/iliyamo/game-tracker/internal/steam"
)

// SteamLibrary syncs and imports a user's Steam games.
type SteamLibrary interface {
	OwnedGames(ctx context.Context, userID uint64) ([]steam.OwnedGame, error)
	SyncLibrary(ctx context.Context, userID uint64) (service.SyncReport, error)
	ImportSingle(ctx context.Context, userID uint64, entry steam.OwnedGame) (model.GameInstance, error)
}

// SyncQueue accepts asynchronous library sync requests. *queue.Publisher
// implements it.
type SyncQueue interface {
	Configured() bool
	PublishLibrarySync(ctx context.Context, userID uint64) error
}

type LibraryHandler struct {
	Library SteamLibrary
	Queue   SyncQueue
}

func NewLibraryHandler(library SteamLibrary, q SyncQueue) *LibraryHandler {
	return &LibraryHandler{Library: library, Queue: q}
}

type importReq struct {
	AppID           *int64 `json:"appid" validate:"required,gt=0"`
	Name            string `json:"name" validate:"required,max=255"`
	ImgIconURL      string `json:"img_icon_url"`
	PlaytimeForever int    `json:"playtime_forever" validate:"min=0"`
	RTimeLastPlayed *int64 `json:"rtime_last_played"`
}

// Sync mirrors the caller's Steam library. With ?async=true and a
// configured broker the sync is queued and 202 returned.
func (h *LibraryHandler) Sync(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	if async, _ := strconv.ParseBool(c.QueryParam("async")); async && h.Queue != nil && h.Queue.Configured() {
		if err := h.Queue.PublishLibrarySync(c.Request().Context(), uid); err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusAccepted, echo.Map{"queued": true})
	}
	// Large libraries take a while; the sync keeps going if the client
	// disconnects.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), 5*time.Minute)
	defer cancel()

	rep, err := h.Library.SyncLibrary(ctx, uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, rep)
}

// Owned returns the caller's raw Steam library without importing it.
func (h *LibraryHandler) Owned(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), remoteTimeout)
	defer cancel()

	games, err := h.Library.OwnedGames(ctx, uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"game_count": len(games), "games": games})
}

// Import stores a single library entry supplied by the caller.
func (h *LibraryHandler) Import(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	var req importReq
	if err := bind(c, &req); err != nil {
		return validationError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	gi, err := h.Library.ImportSingle(ctx, uid, steam.OwnedGame{
		AppID:           req.AppID,
		Name:            req.Name,
		ImgIconURL:      req.ImgIconURL,
		PlaytimeForever: req.PlaytimeForever,
		RTimeLastPlayed: req.RTimeLastPlayed,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, gi)
}
