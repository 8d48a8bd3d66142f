package auth

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/game-tracker/internal/apperr"
	"github.com/iliyamo/game-tracker/internal/model"
	"github.com/iliyamo/game-tracker/internal/steam"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// userStore keeps users in memory. Password hashes are "plain:<pw>".
type userStore struct {
	mu      sync.Mutex
	users   map[uint64]model.User
	nextID  uint64
	checks  int
	created int
}

func newUserStore(users ...model.User) *userStore {
	s := &userStore{users: map[uint64]model.User{}}
	for _, u := range users {
		s.nextID++
		u.ID = s.nextID
		s.users[u.ID] = u
	}
	return s
}

func (s *userStore) find(match func(model.User) bool) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			return u, nil
		}
	}
	return model.User{}, apperr.ErrUserNotFound
}

func (s *userStore) FindByUsername(_ context.Context, username string) (model.User, error) {
	return s.find(func(u model.User) bool { return u.Username == username })
}

func (s *userStore) FindByEmail(_ context.Context, email string) (model.User, error) {
	return s.find(func(u model.User) bool { return u.Email != "" && strings.EqualFold(u.Email, email) })
}

func (s *userStore) FindBySteamID(_ context.Context, steamID string) (model.User, error) {
	return s.find(func(u model.User) bool { return u.SteamID != nil && *u.SteamID == steamID })
}

func (s *userStore) CheckPassword(u *model.User, plain string) bool {
	s.mu.Lock()
	s.checks++
	s.mu.Unlock()
	if u == nil {
		return false
	}
	return u.PasswordHash == "plain:"+plain
}

func (s *userStore) CreateSteamUser(_ context.Context, id model.SteamIdentity) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.created++
	sid := id.SteamID
	u := model.User{ID: s.nextID, Username: "steam_" + sid, PasswordHash: "unusable", Role: model.RoleUser, SteamID: &sid}
	s.users[u.ID] = u
	return u, nil
}

func (s *userStore) Profile(_ context.Context, u model.User) model.UserProfile {
	return model.UserProfile{ID: u.ID, Username: u.Username, Email: u.Email, EmailVerified: u.EmailVerified, Role: u.Role}
}

func (s *userStore) setRole(username string, r model.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.users {
		if u.Username == username {
			u.Role = r
			s.users[id] = u
		}
	}
}

func (s *userStore) remove(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.users {
		if u.Username == username {
			delete(s.users, id)
		}
	}
}

type fakeSteam struct {
	valid      bool
	validErr   error
	player     steam.Player
	playerErr  error
	lastParams url.Values
}

func (f *fakeSteam) ValidateAssertion(_ context.Context, params url.Values) (bool, error) {
	f.lastParams = params
	return f.valid, f.validErr
}

func (f *fakeSteam) GetPlayerSummary(_ context.Context, steamID string) (steam.Player, error) {
	if f.playerErr != nil {
		return steam.Player{}, f.playerErr
	}
	p := f.player
	p.SteamID = steamID
	return p, nil
}
