package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTokens(c *clock) *TokenService {
	return NewTokenService("access-secret", "refresh-secret", 15*time.Minute, 30*24*time.Hour, c.Now)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	c := newClock()
	ts := newTokens(c)

	tok, err := ts.IssueAccessToken("alice", 7, []string{"ROLE_USER", "ROLE_ADMIN"})
	if err != nil {
		t.Fatal(err)
	}
	if !ts.Validate(tok.Token, false) {
		t.Fatal("fresh access token did not validate")
	}
	claims, err := ts.Decode(tok.Token, false)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "alice" || claims.UserID != 7 || claims.Type != TokenType {
		t.Errorf("claims = %+v", claims)
	}
	if strings.Join(claims.Authorities, ",") != "ROLE_USER,ROLE_ADMIN" {
		t.Errorf("authorities = %v", claims.Authorities)
	}
	if !tok.ExpiresAt.Equal(c.Now().Add(15 * time.Minute)) {
		t.Errorf("expires = %v", tok.ExpiresAt)
	}
}

func TestExpiryWithClock(t *testing.T) {
	c := newClock()
	ts := newTokens(c)
	tok, _ := ts.IssueAccessToken("alice", 1, nil)

	if ts.IsExpired(tok.Token, false) {
		t.Fatal("expired immediately after issuance")
	}
	c.Advance(15*time.Minute - time.Second)
	if ts.IsExpired(tok.Token, false) || !ts.Validate(tok.Token, false) {
		t.Fatal("expired before ttl elapsed")
	}
	c.Advance(time.Second)
	if !ts.IsExpired(tok.Token, false) {
		t.Fatal("not expired after ttl")
	}
	if ts.Validate(tok.Token, false) {
		t.Fatal("expired token validated")
	}
	if _, err := ts.Decode(tok.Token, false); err != nil {
		t.Fatalf("Decode should not check expiry: %v", err)
	}
}

func TestSecretsAreSeparate(t *testing.T) {
	ts := newTokens(newClock())
	access, _ := ts.IssueAccessToken("alice", 1, []string{"ROLE_USER"})
	refresh, _ := ts.IssueRefreshToken("alice")

	if ts.Validate(access.Token, true) {
		t.Error("access token accepted as refresh token")
	}
	if ts.Validate(refresh.Token, false) {
		t.Error("refresh token accepted as access token")
	}
	if !ts.Validate(refresh.Token, true) {
		t.Error("refresh token rejected")
	}
	claims, err := ts.Decode(refresh.Token, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(claims.Authorities) != 0 || claims.Type != "" {
		t.Errorf("refresh token carries authorization claims: %+v", claims)
	}
}

func TestRefreshTTL(t *testing.T) {
	c := newClock()
	ts := newTokens(c)
	refresh, _ := ts.IssueRefreshToken("alice")
	c.Advance(29 * 24 * time.Hour)
	if !ts.Validate(refresh.Token, true) {
		t.Fatal("refresh token expired early")
	}
	c.Advance(24 * time.Hour)
	if ts.Validate(refresh.Token, true) || !ts.IsExpired(refresh.Token, true) {
		t.Fatal("refresh token valid after 30 days")
	}
}

func TestDecodeErrors(t *testing.T) {
	ts := newTokens(newClock())
	other := NewTokenService("other", "other-refresh", time.Minute, time.Hour, nil)
	foreign, _ := other.IssueAccessToken("mallory", 1, []string{"ROLE_ADMIN"})

	cases := map[string]string{
		"garbage":   "not-a-token",
		"foreign":   foreign.Token,
		"truncated": foreign.Token[:len(foreign.Token)-4],
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			if ts.Validate(tok, false) {
				t.Fatal("validated")
			}
			_, err := ts.Decode(tok, false)
			var te *TokenError
			if !errors.As(err, &te) {
				t.Fatalf("err = %v, want *TokenError", err)
			}
			if !ts.IsExpired(tok, false) {
				t.Fatal("undecodable token should count as expired")
			}
		})
	}
}

func TestTokensAreUnique(t *testing.T) {
	ts := newTokens(newClock())
	a, _ := ts.IssueRefreshToken("alice")
	b, _ := ts.IssueRefreshToken("alice")
	if a.Token == b.Token {
		t.Fatal("two refresh tokens issued at the same instant are identical")
	}
}
