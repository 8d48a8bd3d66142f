// Package apperr defines the error taxonomy shared by services and
// handlers. Every domain failure is either one of the sentinel *Error
// values below or a typed error that matches one of them through
// errors.Is. Handlers translate them into a {code, message, status}
// payload; anything else is reported as INTERNAL_ERROR.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a domain error with a machine readable code, a message that is
// safe to show to clients and the HTTP status class it maps to.
type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string { return e.Message }

func newErr(code string, status int, msg string) *Error {
	return &Error{Code: code, Message: msg, Status: status}
}

var (
	ErrInvalidCredentials   = newErr("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid username or password")
	ErrEmailNotVerified     = newErr("EMAIL_NOT_VERIFIED", http.StatusForbidden, "email address is not verified")
	ErrInvalidRefreshToken  = newErr("INVALID_REFRESH_TOKEN", http.StatusUnauthorized, "invalid or expired refresh token")
	ErrUnsupportedProvider  = newErr("UNSUPPORTED_PROVIDER", http.StatusBadRequest, "unsupported authentication provider")
	ErrSteamAuth            = newErr("STEAM_AUTH_FAILED", http.StatusUnauthorized, "steam authentication failed")
	ErrUserNotFound         = newErr("USER_NOT_FOUND", http.StatusNotFound, "user not found")
	ErrGameNotFound         = newErr("GAME_NOT_FOUND", http.StatusNotFound, "game not found")
	ErrGameAlreadyAdded     = newErr("GAME_ALREADY_ADDED", http.StatusConflict, "game already in library")
	ErrGameInstanceNotFound = newErr("GAME_INSTANCE_NOT_FOUND", http.StatusNotFound, "game instance not found")
	ErrUnauthorized         = newErr("UNAUTHORIZED", http.StatusForbidden, "not allowed to access this resource")
	ErrDuplicateReview      = newErr("DUPLICATE_REVIEW", http.StatusConflict, "game already reviewed")
	ErrReviewNotFound       = newErr("REVIEW_NOT_FOUND", http.StatusNotFound, "review not found")
	ErrRemoteAPI            = newErr("REMOTE_API_ERROR", http.StatusBadGateway, "upstream service unavailable")
	ErrConfiguration        = newErr("CONFIGURATION_ERROR", http.StatusServiceUnavailable, "service is not configured")
	ErrUsernameExists       = newErr("USERNAME_EXISTS", http.StatusConflict, "username already taken")
	ErrEmailExists          = newErr("EMAIL_EXISTS", http.StatusConflict, "email already registered")
	ErrEmailAlreadyVerified = newErr("EMAIL_ALREADY_VERIFIED", http.StatusConflict, "email already verified")
	ErrVerificationExpired  = newErr("VERIFICATION_EXPIRED", http.StatusGone, "verification code expired")
	ErrInvalidVerification  = newErr("INVALID_VERIFICATION_CODE", http.StatusBadRequest, "invalid verification code")
	ErrValidation           = newErr("VALIDATION_ERROR", http.StatusBadRequest, "invalid request")
	ErrForbidden            = newErr("FORBIDDEN", http.StatusForbidden, "insufficient permissions")
	ErrInternal             = newErr("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// EmailNotVerifiedError carries the address of an account whose password
// matched but which has not confirmed its email yet. The address is
// exposed to the client so it can offer a resend.
type EmailNotVerifiedError struct{ Email string }

func (e *EmailNotVerifiedError) Error() string {
	return ErrEmailNotVerified.Message + ": " + e.Email
}

func (e *EmailNotVerifiedError) Is(target error) bool { return target == ErrEmailNotVerified }

// SteamStage names a state of the Steam login flow.
type SteamStage string

const (
	StageReceived  SteamStage = "received_assertion"
	StageValidated SteamStage = "validated"
	StageIdentity  SteamStage = "identity_resolved"
)

// SteamAuthError records the last stage the Steam login flow reached
// before failing. Reason is for logs only; clients receive the generic ErrSteamAuth message.
type SteamAuthError struct {
	Stage  SteamStage
	Reason string
	Err    error
}

func (e *SteamAuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("steam auth failed at %s: %s: %v", e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("steam auth failed at %s: %s", e.Stage, e.Reason)
}

func (e *SteamAuthError) Is(target error) bool { return target == ErrSteamAuth }

func (e *SteamAuthError) Unwrap() error { return e.Err }

// RemoteAPIError wraps a transport, status or decoding failure talking to
// an external API.
type RemoteAPIError struct {
	Service string
	Err     error
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("%s api: %v", e.Service, e.Err)
}

func (e *RemoteAPIError) Is(target error) bool { return target == ErrRemoteAPI }

func (e *RemoteAPIError) Unwrap() error { return e.Err }

// Remote wraps err as a RemoteAPIError for service.
func Remote(service string, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteAPIError{Service: service, Err: err}
}

// Steam builds a SteamAuthError.
func Steam(stage SteamStage, reason string, err error) error {
	return &SteamAuthError{Stage: stage, Reason: reason, Err: err}
}

// Resolve finds the *Error that err corresponds to. Unknown errors resolve
// to ErrInternal so no internal message reaches a client. Authentication
// errors are matched before any sentinel they wrap: a Steam login failure
// always resolves to ErrSteamAuth.
func Resolve(err error) *Error {
	var env *EmailNotVerifiedError
	if errors.As(err, &env) {
		return ErrEmailNotVerified
	}
	var sae *SteamAuthError
	if errors.As(err, &sae) {
		return ErrSteamAuth
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	var rae *RemoteAPIError
	if errors.As(err, &rae) {
		return ErrRemoteAPI
	}
	return ErrInternal
}
