package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/game-tracker/internal/apperr"
	"github.com/iliyamo/game-tracker/internal/model"
	"github.com/iliyamo/game-tracker/internal/service"
)

// Library is the game instance service as seen by the HTTP layer.
type Library interface {
	Add(ctx context.Context, userID uint64, in service.AddInstanceInput) (model.GameInstance, error)
	AddBatch(ctx context.Context, userID uint64, ids []uint64, status model.GameStatus) ([]model.GameInstance, error)
	Get(ctx context.Context, userID, id uint64) (model.GameInstance, error)
	Update(ctx context.Context, userID, id uint64, in service.UpdateInstanceInput) (model.GameInstance, error)
	UpdateStatus(ctx context.Context, userID, id uint64, status model.GameStatus) (model.GameInstance, error)
	Delete(ctx context.Context, userID, id uint64) error
	List(ctx context.Context, userID uint64, status model.GameStatus) ([]model.GameInstanceDetail, error)
	Stats(ctx context.Context, userID uint64) (model.GameInstanceStats, error)
}

// GameInstanceHandler serves /v1/me/games. Every route acts on the
// authenticated user's own library.
type GameInstanceHandler struct {
	Instances Library
}

func NewGameInstanceHandler(instances Library) *GameInstanceHandler {
	return &GameInstanceHandler{Instances: instances}
}

type addInstanceReq struct {
	GameID             uint64 `json:"game_id" validate:"required"`
	Status             string `json:"status" validate:"required,oneof=PLAYING COMPLETED PLAN_TO_PLAY DROPPED"`
	ProgressPercentage *int   `json:"progress_percentage" validate:"omitempty,min=0,max=100"`
	PlayTime           *int   `json:"play_time" validate:"omitempty,min=0"`
	Notes              string `json:"notes" validate:"max=2000"`
}

type addBatchReq struct {
	GameIDs []uint64 `json:"game_ids" validate:"required,min=1,max=100,dive,required"`
	Status  string   `json:"status" validate:"required,oneof=PLAYING COMPLETED PLAN_TO_PLAY DROPPED"`
}

type updateInstanceReq struct {
	Status             *string `json:"status" validate:"omitempty,oneof=PLAYING COMPLETED PLAN_TO_PLAY DROPPED"`
	ProgressPercentage *int    `json:"progress_percentage" validate:"omitempty,min=0,max=100"`
	PlayTime           *int    `json:"play_time" validate:"omitempty,min=0"`
	Notes              *string `json:"notes" validate:"omitempty,max=2000"`
}

type statusReq struct {
	Status string `json:"status" validate:"required,oneof=PLAYING COMPLETED PLAN_TO_PLAY DROPPED"`
}

func (h *GameInstanceHandler) Add(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	var req addInstanceReq
	if err := bind(c, &req); err != nil {
		return validationError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	gi, err := h.Instances.Add(ctx, uid, service.AddInstanceInput{
		GameID:             req.GameID,
		Status:             model.GameStatus(req.Status),
		ProgressPercentage: req.ProgressPercentage,
		PlayTime:           req.PlayTime,
		Notes:              req.Notes,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, gi)
}

// AddBatch adds several games at once; games already in the library or
// missing from the catalog are skipped.
func (h *GameInstanceHandler) AddBatch(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	var req addBatchReq
	if err := bind(c, &req); err != nil {
		return validationError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	added, err := h.Instances.AddBatch(ctx, uid, req.GameIDs, model.GameStatus(req.Status))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"items": added, "added": len(added)})
}

// List returns the caller's library, optionally filtered by ?status=.
func (h *GameInstanceHandler) List(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	status := model.GameStatus(strings.ToUpper(strings.TrimSpace(c.QueryParam("status"))))
	if status != "" && !status.Valid() {
		return c.JSON(http.StatusBadRequest, errorBody{Code: apperr.ErrValidation.Code, Message: "invalid status", Status: http.StatusBadRequest})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	items, err := h.Instances.List(ctx, uid, status)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

func (h *GameInstanceHandler) Get(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c, "id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	gi, err := h.Instances.Get(ctx, uid, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, gi)
}

func (h *GameInstanceHandler) Update(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c, "id")
	}
	var req updateInstanceReq
	if err := bind(c, &req); err != nil {
		return validationError(c, err)
	}
	in := service.UpdateInstanceInput{
		ProgressPercentage: req.ProgressPercentage,
		PlayTime:           req.PlayTime,
		Notes:              req.Notes,
	}
	if req.Status != nil {
		st := model.GameStatus(*req.Status)
		in.Status = &st
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	gi, err := h.Instances.Update(ctx, uid, id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, gi)
}

// UpdateStatus changes only the status.
func (h *GameInstanceHandler) UpdateStatus(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c, "id")
	}
	var req statusReq
	if err := bind(c, &req); err != nil {
		return validationError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	gi, err := h.Instances.UpdateStatus(ctx, uid, id, model.GameStatus(req.Status))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, gi)
}

func (h *GameInstanceHandler) Delete(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c, "id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Instances.Delete(ctx, uid, id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Stats summarises the caller's library.
func (h *GameInstanceHandler) Stats(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	st, err := h.Instances.Stats(ctx, uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}
