package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/game-tracker/internal/model"
	"github.com/iliyamo/game-tracker/internal/service"
)

// Reviews is the review service as seen by the HTTP layer.
type Reviews interface {
	Create(ctx context.Context, userID uint64, in service.ReviewInput) (model.ReviewDetail, error)
	Get(ctx context.Context, id uint64) (model.ReviewDetail, error)
	Update(ctx context.Context, userID, id uint64, rating int, text string) (model.ReviewDetail, error)
	Delete(ctx context.Context, actor service.Actor, id uint64) error
	ListByGame(ctx context.Context, gameID uint64) ([]model.ReviewDetail, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.ReviewDetail, error)
}

type ReviewHandler struct {
	Reviews Reviews
}

func NewReviewHandler(reviews Reviews) *ReviewHandler { return &ReviewHandler{Reviews: reviews} }

type createReviewReq struct {
	GameID     uint64 `json:"game_id" validate:"required"`
	Rating     int    `json:"rating" validate:"required,min=1,max=5"`
	ReviewText string `json:"review_text" validate:"max=5000"`
}

type updateReviewReq struct {
	Rating     int    `json:"rating" validate:"required,min=1,max=5"`
	ReviewText string `json:"review_text" validate:"max=5000"`
}

// Create reviews a game the caller has in their library.
func (h *ReviewHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	var req createReviewReq
	if err := bind(c, &req); err != nil {
		return validationError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	r, err := h.Reviews.Create(ctx, uid, service.ReviewInput{GameID: req.GameID, Rating: req.Rating, ReviewText: req.ReviewText})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *ReviewHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c, "id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	r, err := h.Reviews.Get(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// Update edits the caller's own review.
func (h *ReviewHandler) Update(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c, "id")
	}
	var req updateReviewReq
	if err := bind(c, &req); err != nil {
		return validationError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	r, err := h.Reviews.Update(ctx, uid, id, req.Rating, req.ReviewText)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// Delete removes a review; admins may remove anyone's.
func (h *ReviewHandler) Delete(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return unauthenticated(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c, "id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Reviews.Delete(ctx, a, id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListByGame returns all reviews of the game in the path.
func (h *ReviewHandler) ListByGame(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c, "id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	items, err := h.Reviews.ListByGame(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// ListMine returns the caller's reviews.
func (h *ReviewHandler) ListMine(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	items, err := h.Reviews.ListByUser(ctx, uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
