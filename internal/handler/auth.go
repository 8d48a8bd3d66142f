package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/game-tracker/internal/auth"
	"github.com/iliyamo/game-tracker/internal/model"
	"github.com/iliyamo/game-tracker/internal/service"
)

// Authenticator dispatches logins and refreshes. *auth.Dispatcher
// implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, provider string, credentials map[string]string) (*auth.Response, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.Response, error)
}

// Registrar owns account registration and email verification.
type Registrar interface {
	Register(ctx context.Context, in service.RegisterInput) (model.UserProfile, error)
	VerifyEmail(ctx context.Context, email, code string) error
	ResendVerification(ctx context.Context, email string) error
}

// SteamLoginURL builds the Steam OpenID redirect.
type SteamLoginURL interface {
	LoginURL() string
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Auth  Authenticator
	Users Registrar
	Steam SteamLoginURL
}

func NewAuthHandler(a Authenticator, users Registrar, steam SteamLoginURL) *AuthHandler {
	return &AuthHandler{Auth: a, Users: users, Steam: steam}
}

// ----- DTOs -----

type registerReq struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type verifyReq struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type resendReq struct {
	Email string `json:"email" validate:"required,email"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

const authTimeout = 15 * time.Second

// Register creates an unverified account; the code is mailed.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return validationError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), authTimeout)
	defer cancel()

	p, err := h.Users.Register(ctx, service.RegisterInput{Username: req.Username, Email: req.Email, Password: req.Password})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

// Verify confirms an email address with its code.
func (h *AuthHandler) Verify(c echo.Context) error {
	var req verifyReq
	if err := bind(c, &req); err != nil {
		return validationError(c, err)
	}
	if err := h.Users.VerifyEmail(c.Request().Context(), req.Email, req.Code); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"verified": true})
}

// ResendVerification issues a new code for an unverified account.
func (h *AuthHandler) ResendVerification(c echo.Context) error {
	var req resendReq
	if err := bind(c, &req); err != nil {
		return validationError(c, err)
	}
	if err := h.Users.ResendVerification(c.Request().Context(), req.Email); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{"sent": true})
}

// Login authenticates with the provider named in the path. The body is a
// flat JSON object of credentials: username/email + password for basic,
// the openid.* callback parameters for steam.
func (h *AuthHandler) Login(c echo.Context) error {
	creds := map[string]string{}
	if err := (&echo.DefaultBinder{}).BindBody(c, &creds); err != nil {
		return validationError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), authTimeout)
	defer cancel()

	resp, err := h.Auth.Authenticate(ctx, c.Param("provider"), creds)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh exchanges a refresh token for a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return validationError(c, err)
	}
	resp, err := h.Auth.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// SteamLogin redirects the browser to Steam's OpenID login page.
func (h *AuthHandler) SteamLogin(c echo.Context) error {
	return c.Redirect(http.StatusFound, h.Steam.LoginURL())
}

// SteamReturn receives Steam's OpenID callback and logs the user in with
// the steam provider.
func (h *AuthHandler) SteamReturn(c echo.Context) error {
	creds := map[string]string{}
	for k, v := range c.QueryParams() {
		if strings.HasPrefix(k, "openid.") && len(v) > 0 {
			creds[k] = v[0]
		}
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), authTimeout)
	defer cancel()

	resp, err := h.Auth.Authenticate(ctx, string(auth.ProviderSteam), creds)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}
