package auth

import (
	"context"
	"errors"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/game-tracker/internal/apperr"
	"github.com/iliyamo/game-tracker/internal/model"
	"github.com/iliyamo/game-tracker/internal/steam"
)

// SteamOpenID is the part of the Steam client the strategy uses.
type SteamOpenID interface {
	ValidateAssertion(ctx context.Context, params url.Values) (bool, error)
	GetPlayerSummary(ctx context.Context, steamID string) (steam.Player, error)
}

// SteamAccounts resolves and creates users bound to a Steam identity.
// FindBySteamID fails with apperr.ErrUserNotFound.
type SteamAccounts interface {
	FindBySteamID(ctx context.Context, steamID string) (model.User, error)
	CreateSteamUser(ctx context.Context, identity model.SteamIdentity) (model.User, error)
	Profile(ctx context.Context, u model.User) model.UserProfile
}

// SteamStrategy authenticates an OpenID assertion returned by Steam. The
// flow runs assertion validation, identity extraction, profile lookup,
// user resolution and token issuance in order; any failing step aborts
// with an apperr.SteamAuthError naming the last stage reached. Nothing is
// persisted before the identity is resolved.
type SteamStrategy struct {
	client SteamOpenID
	users  SteamAccounts
	tokens *TokenService
}

func NewSteamStrategy(client SteamOpenID, users SteamAccounts, tokens *TokenService) *SteamStrategy {
	return &SteamStrategy{client: client, users: users, tokens: tokens}
}

// Authenticate takes the openid.* callback parameters as a flat map.
func (s *SteamStrategy) Authenticate(ctx context.Context, creds map[string]string) (*Response, error) {
	params := url.Values{}
	for k, v := range creds {
		params.Set(k, v)
	}

	ok, err := s.client.ValidateAssertion(ctx, params)
	if err != nil {
		return nil, apperr.Steam(apperr.StageReceived, "assertion validation request failed", err)
	}
	if !ok {
		return nil, apperr.Steam(apperr.StageReceived, "assertion rejected by steam", nil)
	}

	steamID, ok := steam.ExtractSteamID(params.Get("openid.claimed_id"))
	if !ok {
		return nil, apperr.Steam(apperr.StageValidated, "claimed_id is not a steam identity", nil)
	}

	player, err := s.client.GetPlayerSummary(ctx, steamID)
	if err != nil {
		return nil, apperr.Steam(apperr.StageValidated, "profile lookup failed", err)
	}
	identity := model.SteamIdentity{
		SteamID:     steamID,
		PersonaName: player.PersonaName,
		ProfileURL:  player.ProfileURL,
		AvatarURL:   player.Avatar,
	}

	u, err := s.users.FindBySteamID(ctx, steamID)
	switch {
	case errors.Is(err, apperr.ErrUserNotFound):
		u, err = s.users.CreateSteamUser(ctx, identity)
		if err != nil {
			return nil, apperr.Steam(apperr.StageValidated, "create user failed", err)
		}
		log.Ctx(ctx).Info().Uint64("user_id", u.ID).Str("steam_id", steamID).Msg("created steam user")
	case err != nil:
		return nil, apperr.Steam(apperr.StageValidated, "user lookup failed", err)
	}

	resp, err := issue(s.tokens, u, s.users.Profile(ctx, u))
	if err != nil {
		return nil, apperr.Steam(apperr.StageIdentity, "token issuance failed", err)
	}
	return resp, nil
}

// Refresh is handled by the password strategy.
func (s *SteamStrategy) Refresh(context.Context, string) (*Response, error) {
	return nil, apperr.ErrUnsupportedProvider
}
