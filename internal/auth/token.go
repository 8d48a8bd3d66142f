// Package auth issues and verifies bearer tokens and dispatches login
// attempts to the configured authentication strategies.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TokenType is the value of the "type" claim on access tokens.
const TokenType = "Bearer"

// Claims is the JWT payload shared by access and refresh tokens. Refresh
// tokens leave UserID, Authorities and Type empty.
type Claims struct {
	UserID      uint64   `json:"uid,omitempty"`
	Authorities []string `json:"authorities,omitempty"`
	Type        string   `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// TokenError is returned by Decode when a token cannot be parsed or its
// signature does not verify.
type TokenError struct {
	Reason string
	Err    error
}

func (e *TokenError) Error() string { return "token " + e.Reason + ": " + e.Err.Error() }

func (e *TokenError) Unwrap() error { return e.Err }

// SignedToken is a serialized JWT with its expiry.
type SignedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenPair is what every successful login or refresh returns.
type TokenPair struct {
	Access  SignedToken `json:"access"`
	Refresh SignedToken `json:"refresh"`
}

// TokenService mints and verifies two independent classes of HS512
// tokens. Access and refresh tokens are signed with different secrets so
// neither can be replayed as the other.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenService builds a TokenService. A nil now uses time.Now.
func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, now func() time.Time) *TokenService {
	if now == nil {
		now = time.Now
	}
	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           now,
	}
}

// IssueAccessToken signs subject, user id and the authority snapshot with
// the access secret. The authorities are not re-read on later requests, so
// a role change only takes effect once the token expires.
func (s *TokenService) IssueAccessToken(subject string, userID uint64, authorities []string) (SignedToken, error) {
	claims := Claims{
		UserID:           userID,
		Authorities:      append([]string(nil), authorities...),
		Type:             TokenType,
		RegisteredClaims: s.registered(subject, s.accessTTL),
	}
	return s.sign(claims, s.accessSecret)
}

// IssueRefreshToken signs only the subject and timestamps with the refresh
// secret. Authorization is re-derived from the user record on refresh.
func (s *TokenService) IssueRefreshToken(subject string) (SignedToken, error) {
	return s.sign(Claims{RegisteredClaims: s.registered(subject, s.refreshTTL)}, s.refreshSecret)
}

// Validate reports whether token carries a valid signature for its class
// and has not expired. The failure reason is logged, never returned.
func (s *TokenService) Validate(token string, refresh bool) bool {
	_, err := s.parse(token, refresh, true)
	if err == nil {
		return true
	}
	ev := log.Debug().Bool("refresh", refresh)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		ev.Msg("token expired")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		ev.Msg("token signature invalid")
	case errors.Is(err, jwt.ErrTokenMalformed):
		ev.Msg("token malformed")
	default:
		ev.Err(err).Msg("token rejected")
	}
	return false
}

// Decode returns the claims of a token whose signature verifies. Expiry is
// not checked here; callers run Validate first.
func (s *TokenService) Decode(token string, refresh bool) (*Claims, error) {
	c, err := s.parse(token, refresh, false)
	if err != nil {
		reason := "invalid"
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			reason = "malformed"
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			reason = "signature invalid"
		}
		return nil, &TokenError{Reason: reason, Err: err}
	}
	return c, nil
}

// IsExpired reports whether the token's expiry has passed. A token that
// cannot be decoded at all is treated as expired.
func (s *TokenService) IsExpired(token string, refresh bool) bool {
	c, err := s.Decode(token, refresh)
	if err != nil || c.ExpiresAt == nil {
		return true
	}
	return !s.now().Before(c.ExpiresAt.Time)
}

func (s *TokenService) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := s.now().UTC()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (s *TokenService) sign(c Claims, secret []byte) (SignedToken, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, c).SignedString(secret)
	if err != nil {
		return SignedToken{}, fmt.Errorf("sign token: %w", err)
	}
	return SignedToken{Token: signed, ExpiresAt: c.ExpiresAt.Time}, nil
}

func (s *TokenService) parse(token string, refresh, checkTime bool) (*Claims, error) {
	secret := s.accessSecret
	if refresh {
		secret = s.refreshSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if checkTime {
		opts = append(opts, jwt.WithExpirationRequired())
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	var c Claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) { return secret, nil }, opts...)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
