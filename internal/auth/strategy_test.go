package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/game-tracker/internal/apperr"
	"github.com/iliyamo/game-tracker/internal/model"
	"github.com/iliyamo/game-tracker/internal/steam"
)

const steamClaimed = "https://steamcommunity.com/openid/id/76561198000000001"

type fixture struct {
	clock  *clock
	tokens *TokenService
	users  *userStore
	steam  *fakeSteam
	d      *Dispatcher
}

func newFixture() *fixture {
	c := newClock()
	ts := newTokens(c)
	users := newUserStore(
		model.User{Username: "alice", Email: "alice@example.com", PasswordHash: "plain:secret", EmailVerified: true, Role: model.RoleUser},
		model.User{Username: "bob", Email: "bob@example.com", PasswordHash: "plain:hunter2", EmailVerified: false, Role: model.RoleUser},
	)
	fs := &fakeSteam{valid: true, player: steam.Player{PersonaName: "gabe", ProfileURL: "https://steamcommunity.com/id/gabe", Avatar: "https://a/x.jpg"}}
	d := NewDispatcher(NewPasswordStrategy(users, ts), NewSteamStrategy(fs, users, ts))
	return &fixture{clock: c, tokens: ts, users: users, steam: fs, d: d}
}

func TestBasicLoginIssuesValidPair(t *testing.T) {
	f := newFixture()
	for _, creds := range []map[string]string{
		{"username": "alice", "password": "secret"},
		{"email": "alice@example.com", "password": "secret"},
		{"login": "alice@example.com", "password": "secret"},
	} {
		resp, err := f.d.Authenticate(context.Background(), "basic", creds)
		if err != nil {
			t.Fatalf("%v: %v", creds, err)
		}
		if !f.tokens.Validate(resp.Access.Token, false) || !f.tokens.Validate(resp.Refresh.Token, true) {
			t.Fatal("issued tokens do not validate")
		}
		claims, _ := f.tokens.Decode(resp.Access.Token, false)
		if claims.Subject != "alice" {
			t.Errorf("subject = %q", claims.Subject)
		}
		if resp.User.Username != "alice" {
			t.Errorf("profile = %+v", resp.User)
		}
	}
}

func TestBasicLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture()
	for name, creds := range map[string]map[string]string{
		"wrong password": {"username": "alice", "password": "nope"},
		"unknown user":   {"username": "carol", "password": "secret"},
		"missing":        {"username": "alice"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.d.Authenticate(context.Background(), "basic", creds)
			if err != apperr.ErrInvalidCredentials {
				t.Fatalf("err = %v", err)
			}
		})
	}
	if f.users.checks < 2 {
		t.Errorf("unknown user skipped the password comparison (checks=%d)", f.users.checks)
	}
}

func TestUnverifiedEmail(t *testing.T) {
	f := newFixture()
	_, err := f.d.Authenticate(context.Background(), "basic", map[string]string{"username": "bob", "password": "hunter2"})
	var env *apperr.EmailNotVerifiedError
	if !errors.As(err, &env) || env.Email != "bob@example.com" {
		t.Fatalf("err = %v", err)
	}
	if errors.Is(err, apperr.ErrInvalidCredentials) {
		t.Fatal("unverified login reported as invalid credentials")
	}
	_, err = f.d.Authenticate(context.Background(), "basic", map[string]string{"username": "bob", "password": "wrong"})
	if err != apperr.ErrInvalidCredentials {
		t.Fatalf("wrong password on unverified account: %v", err)
	}
}

func TestUnknownProvider(t *testing.T) {
	f := newFixture()
	_, err := f.d.Authenticate(context.Background(), "github", map[string]string{})
	if !errors.Is(err, apperr.ErrUnsupportedProvider) {
		t.Fatalf("err = %v", err)
	}
}

func TestRefresh(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	first, err := f.d.Authenticate(ctx, "basic", map[string]string{"username": "alice", "password": "secret"})
	if err != nil {
		t.Fatal(err)
	}

	f.users.setRole("alice", model.RoleAdmin)
	f.clock.Advance(time.Minute)
	second, err := f.d.Refresh(ctx, first.Refresh.Token)
	if err != nil {
		t.Fatal(err)
	}
	if second.Access.Token == first.Access.Token || second.Refresh.Token == first.Refresh.Token {
		t.Fatal("refresh returned the same tokens")
	}
	claims, _ := f.tokens.Decode(second.Access.Token, false)
	if len(claims.Authorities) != 1 || claims.Authorities[0] != "ROLE_ADMIN" {
		t.Errorf("authorities not re-derived: %v", claims.Authorities)
	}
	old, _ := f.tokens.Decode(first.Access.Token, false)
	if old.Authorities[0] != "ROLE_USER" {
		t.Errorf("old access token changed: %v", old.Authorities)
	}

	if _, err := f.d.Refresh(ctx, first.Access.Token); err != apperr.ErrInvalidRefreshToken {
		t.Errorf("access token as refresh: %v", err)
	}

	f.clock.Advance(31 * 24 * time.Hour)
	if _, err := f.d.Refresh(ctx, second.Refresh.Token); err != apperr.ErrInvalidRefreshToken {
		t.Errorf("expired refresh: %v", err)
	}
}

func TestRefreshDeletedUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	resp, _ := f.d.Authenticate(ctx, "basic", map[string]string{"username": "alice", "password": "secret"})
	f.users.remove("alice")
	if _, err := f.d.Refresh(ctx, resp.Refresh.Token); err != apperr.ErrInvalidRefreshToken {
		t.Fatalf("err = %v", err)
	}
}

func TestSteamLoginCreatesThenReusesUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	params := map[string]string{"openid.mode": "id_res", "openid.claimed_id": steamClaimed}

	resp, err := f.d.Authenticate(ctx, "steam", params)
	if err != nil {
		t.Fatal(err)
	}
	if resp.User.Username != "steam_76561198000000001" {
		t.Errorf("username = %q", resp.User.Username)
	}
	if f.steam.lastParams.Get("openid.claimed_id") != steamClaimed {
		t.Error("params not forwarded to validation")
	}
	if _, err := f.d.Authenticate(ctx, "steam", params); err != nil {
		t.Fatal(err)
	}
	if f.users.created != 1 {
		t.Errorf("created %d users, want 1", f.users.created)
	}

	refreshed, err := f.d.Refresh(ctx, resp.Refresh.Token)
	if err != nil || refreshed.User.Username != resp.User.Username {
		t.Fatalf("steam session refresh: %v", err)
	}
}

func TestSteamLoginFailures(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name  string
		setup func(*fakeSteam)
		claim string
		stage apperr.SteamStage
	}{
		{"rejected", func(s *fakeSteam) { s.valid = false }, steamClaimed, apperr.StageReceived},
		{"transport", func(s *fakeSteam) { s.validErr = errors.New("dial tcp") }, steamClaimed, apperr.StageReceived},
		{"bad claimed id", func(*fakeSteam) {}, "https://example.com/openid/id/1", apperr.StageValidated},
		{"no player", func(s *fakeSteam) { s.playerErr = steam.ErrNoPlayer }, steamClaimed, apperr.StageValidated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			tc.setup(f.steam)
			_, err := f.d.Authenticate(ctx, "steam", map[string]string{"openid.claimed_id": tc.claim})
			var sae *apperr.SteamAuthError
			if !errors.As(err, &sae) || !errors.Is(err, apperr.ErrSteamAuth) {
				t.Fatalf("err = %v", err)
			}
			if sae.Stage != tc.stage {
				t.Errorf("stage = %s, want %s", sae.Stage, tc.stage)
			}
			if f.users.created != 0 {
				t.Error("user persisted on failed login")
			}
		})
	}
}

func TestSteamStrategyDoesNotRefresh(t *testing.T) {
	f := newFixture()
	s := NewSteamStrategy(f.steam, f.users, f.tokens)
	if _, err := s.Refresh(context.Background(), "x"); !errors.Is(err, apperr.ErrUnsupportedProvider) {
		t.Fatalf("err = %v", err)
	}
}
