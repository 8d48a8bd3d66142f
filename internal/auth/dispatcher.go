package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/game-tracker/internal/apperr"
	"github.com/iliyamo/game-tracker/internal/metrics"
	"github.com/iliyamo/game-tracker/internal/model"
)

// Provider selects an authentication strategy.
type Provider string

const (
	ProviderBasic Provider = "basic"
	ProviderSteam Provider = "steam"
)

// Response is returned by every successful login or refresh.
type Response struct {
	TokenPair
	User model.UserProfile `json:"user"`
}

// Strategy is one pluggable way of authenticating a user.
type Strategy interface {
	Authenticate(ctx context.Context, credentials map[string]string) (*Response, error)
	Refresh(ctx context.Context, refreshToken string) (*Response, error)
}

// Dispatcher routes login attempts to the strategy registered for the
// provider key. Refresh always goes to the basic strategy because refresh
// tokens carry nothing provider specific.
type Dispatcher struct {
	strategies map[Provider]Strategy
}

// NewDispatcher registers the basic and steam strategies. A nil steam
// strategy leaves the provider unsupported.
func NewDispatcher(basic, steam Strategy) *Dispatcher {
	d := &Dispatcher{strategies: map[Provider]Strategy{ProviderBasic: basic}}
	if steam != nil {
		d.strategies[ProviderSteam] = steam
	}
	return d
}

// Authenticate runs the strategy for provider. Unknown providers fail with
// apperr.ErrUnsupportedProvider.
func (d *Dispatcher) Authenticate(ctx context.Context, provider string, credentials map[string]string) (*Response, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(provider)))
	s, ok := d.strategies[p]
	if !ok {
		metrics.AuthAttempts.WithLabelValues("unknown", "error").Inc()
		return nil, fmt.Errorf("provider %q: %w", provider, apperr.ErrUnsupportedProvider)
	}
	resp, err := s.Authenticate(ctx, credentials)
	metrics.AuthAttempts.WithLabelValues(string(p), metrics.Outcome(err)).Inc()
	if err != nil {
		log.Ctx(ctx).Info().Err(err).Str("provider", string(p)).Msg("authentication failed")
		return nil, err
	}
	return resp, nil
}

// Refresh exchanges a refresh token for a new pair.
func (d *Dispatcher) Refresh(ctx context.Context, refreshToken string) (*Response, error) {
	resp, err := d.strategies[ProviderBasic].Refresh(ctx, refreshToken)
	metrics.AuthAttempts.WithLabelValues("refresh", metrics.Outcome(err)).Inc()
	return resp, err
}

// issue mints a token pair for u. Authorities come from the user's current
// role.
func issue(tokens *TokenService, u model.User, profile model.UserProfile) (*Response, error) {
	access, err := tokens.IssueAccessToken(u.Username, u.ID, u.Role.Authorities())
	if err != nil {
		return nil, err
	}
	refresh, err := tokens.IssueRefreshToken(u.Username)
	if err != nil {
		return nil, err
	}
	return &Response{TokenPair: TokenPair{Access: access, Refresh: refresh}, User: profile}, nil
}
