package handler // handler defines the echo http handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/game-tracker/internal/apperr"
	mw "github.com/iliyamo/game-tracker/internal/middleware"
	"github.com/iliyamo/game-tracker/internal/model"
	"github.com/iliyamo/game-tracker/internal/service"
)

// Validator adapts go-playground/validator to echo.Validator.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (cv *Validator) Validate(i any) error { return cv.v.Struct(i) }

// errorBody is the payload of every error response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Email   string `json:"email,omitempty"`
}

// respondError writes err as {code, message, status}. Unknown errors are
// logged and reported as INTERNAL_ERROR.
func respondError(c echo.Context, err error) error {
	ae := apperr.Resolve(err)
	body := errorBody{Code: ae.Code, Message: ae.Message, Status: ae.Status}

	var env *apperr.EmailNotVerifiedError
	if errors.As(err, &env) {
		body.Email = env.Email
	}
	logger := log.Ctx(c.Request().Context())
	switch {
	case ae.Status >= http.StatusInternalServerError:
		logger.Error().Err(err).Str("code", ae.Code).Msg("request failed")
	case errors.Is(err, apperr.ErrSteamAuth), errors.Is(err, apperr.ErrInvalidCredentials):
		logger.Info().Err(err).Str("code", ae.Code).Msg("authentication rejected")
	}
	return c.JSON(ae.Status, body)
}

// validationError reports a bind or validation failure with the first
// offending field in the message.
func validationError(c echo.Context, err error) error {
	msg := "invalid request body"
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		msg = strings.ToLower(ve[0].Field()) + ": failed " + ve[0].Tag()
	}
	return c.JSON(http.StatusBadRequest, errorBody{Code: apperr.ErrValidation.Code, Message: msg, Status: http.StatusBadRequest})
}

// bind decodes and validates the request body into req.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return err
	}
	return c.Validate(req)
}

// getUserID extracts the authenticated user id stored by JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	if id, ok := c.Get(mw.CtxUserID).(uint64); ok && id != 0 {
		return id, nil
	}
	return 0, errors.New("invalid user_id in context")
}

// actor builds the explicit caller passed to services.
func actor(c echo.Context) (service.Actor, error) {
	id, err := getUserID(c)
	if err != nil {
		return service.Actor{}, err
	}
	role, _ := c.Get(mw.CtxRole).(string)
	return service.Actor{UserID: id, Role: model.Role(role)}, nil
}

func unauthenticated(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, errorBody{Code: "UNAUTHENTICATED", Message: "authentication required", Status: http.StatusUnauthorized})
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func badID(c echo.Context, name string) error {
	return c.JSON(http.StatusBadRequest, errorBody{Code: apperr.ErrValidation.Code, Message: "invalid " + name, Status: http.StatusBadRequest})
}

// queryInt reads an integer query parameter, falling back to def.
func queryInt(c echo.Context, name string, def int) int {
	if v, err := strconv.Atoi(c.QueryParam(name)); err == nil {
		return v
	}
	return def
}
