package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/game-tracker/internal/model"
	"github.com/iliyamo/game-tracker/internal/service"
)

// UserManager is the part of the user service the HTTP layer needs.
type UserManager interface {
	Create(ctx context.Context, actor service.Actor, in service.RegisterInput, role model.Role) (model.UserProfile, error)
	Get(ctx context.Context, id uint64) (model.UserProfile, error)
	List(ctx context.Context, page, size int) ([]model.UserProfile, error)
	Update(ctx context.Context, actor service.Actor, id uint64, in service.UpdateUserInput) (model.UserProfile, error)
	Delete(ctx context.Context, id uint64) error
}

type UserHandler struct {
	Users UserManager
}

func NewUserHandler(users UserManager) *UserHandler { return &UserHandler{Users: users} }

type updateUserReq struct {
	Username *string     `json:"username" validate:"omitempty,min=3,max=50"`
	Email    *string     `json:"email" validate:"omitempty,email,max=255"`
	Password *string     `json:"password" validate:"omitempty,min=6,max=72"`
	Role     *model.Role `json:"role" validate:"omitempty,oneof=USER ADMIN"`
}

type createUserReq struct {
	Username string     `json:"username" validate:"required,min=3,max=50"`
	Email    string     `json:"email" validate:"required,email,max=255"`
	Password string     `json:"password" validate:"required,min=6,max=72"`
	Role     model.Role `json:"role" validate:"omitempty,oneof=USER ADMIN"`
}

const dbTimeout = 5 * time.Second

// Me returns the authenticated user's profile.
func (h *UserHandler) Me(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	p, err := h.Users.Get(ctx, uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// UpdateMe edits the authenticated user's own account.
func (h *UserHandler) UpdateMe(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return unauthenticated(c)
	}
	return h.update(c, a, a.UserID)
}

// List pages through all users (admin).
func (h *UserHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	users, err := h.Users.List(ctx, queryInt(c, "page", 0), queryInt(c, "size", 0))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": users})
}

// Create adds an account with the requested role (admin). The new user
// receives a verification code like a self-registered one.
func (h *UserHandler) Create(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return unauthenticated(c)
	}
	var req createUserReq
	if err := bind(c, &req); err != nil {
		return validationError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	p, err := h.Users.Create(ctx, a, service.RegisterInput{Username: req.Username, Email: req.Email, Password: req.Password}, req.Role)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

// Get returns one user (admin).
func (h *UserHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c, "id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	p, err := h.Users.Get(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Update edits any user (admin).
func (h *UserHandler) Update(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return unauthenticated(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c, "id")
	}
	return h.update(c, a, id)
}

func (h *UserHandler) update(c echo.Context, a service.Actor, id uint64) error {
	var req updateUserReq
	if err := bind(c, &req); err != nil {
		return validationError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	p, err := h.Users.Update(ctx, a, id, service.UpdateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Delete removes a user (admin).
func (h *UserHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c, "id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Users.Delete(ctx, id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
