package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/game-tracker/internal/apperr"
	"github.com/iliyamo/game-tracker/internal/model"
)

// Credentials is the part of the credential store the password strategy
// needs. Lookups fail with apperr.ErrUserNotFound.
type Credentials interface {
	FindByUsername(ctx context.Context, username string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	// CheckPassword compares in constant time. A nil user is compared
	// against a dummy hash so unknown logins cost the same as wrong ones.
	CheckPassword(u *model.User, plain string) bool
	Profile(ctx context.Context, u model.User) model.UserProfile
}

// PasswordStrategy authenticates username or email plus password.
type PasswordStrategy struct {
	users  Credentials
	tokens *TokenService
}

func NewPasswordStrategy(users Credentials, tokens *TokenService) *PasswordStrategy {
	return &PasswordStrategy{users: users, tokens: tokens}
}

// Authenticate accepts the keys "username", "login" or "email" plus
// "password". The login is looked up as a username first, then as an
// email. Unknown users and wrong passwords fail identically.
func (s *PasswordStrategy) Authenticate(ctx context.Context, creds map[string]string) (*Response, error) {
	login := firstNonEmpty(creds["username"], creds["login"], creds["email"])
	password := creds["password"]
	if login == "" || password == "" {
		return nil, apperr.ErrInvalidCredentials
	}

	u, err := s.resolve(ctx, login)
	if err != nil {
		if errors.Is(err, apperr.ErrUserNotFound) {
			s.users.CheckPassword(nil, password)
			log.Ctx(ctx).Debug().Msg("login for unknown user")
			return nil, apperr.ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.users.CheckPassword(&u, password) {
		log.Ctx(ctx).Debug().Uint64("user_id", u.ID).Msg("password mismatch")
		return nil, apperr.ErrInvalidCredentials
	}
	if !u.EmailVerified {
		return nil, &apperr.EmailNotVerifiedError{Email: u.Email}
	}
	return issue(s.tokens, u, s.users.Profile(ctx, u))
}

// Refresh validates the token against the refresh secret, reloads the
// user named by its subject and issues a new pair from the current role.
func (s *PasswordStrategy) Refresh(ctx context.Context, refreshToken string) (*Response, error) {
	if refreshToken == "" || !s.tokens.Validate(refreshToken, true) {
		return nil, apperr.ErrInvalidRefreshToken
	}
	claims, err := s.tokens.Decode(refreshToken, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidRefreshToken, err)
	}
	u, err := s.users.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, apperr.ErrUserNotFound) {
			return nil, apperr.ErrInvalidRefreshToken
		}
		return nil, err
	}
	return issue(s.tokens, u, s.users.Profile(ctx, u))
}

func (s *PasswordStrategy) resolve(ctx context.Context, login string) (model.User, error) {
	u, err := s.users.FindByUsername(ctx, login)
	if err == nil || !errors.Is(err, apperr.ErrUserNotFound) {
		return u, err
	}
	return s.users.FindByEmail(ctx, login)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
