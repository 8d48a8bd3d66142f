package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/game-tracker/internal/model"
	"github.com/iliyamo/game-tracker/internal/rawg"
	"github.com/iliyamo/game-tracker/internal/repository"
	"github.com/iliyamo/game-tracker/internal/steam"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// ---- users ----

type memUsers struct {
	mu     sync.Mutex
	users  map[uint64]model.User
	steam  map[string]model.SteamIdentity
	nextID uint64
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[uint64]model.User{}, steam: map[string]model.SteamIdentity{}}
}

func (m *memUsers) add(u model.User) model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u.ID = m.nextID
	m.users[u.ID] = u
	return u
}

func (m *memUsers) conflict(u model.User) error {
	for _, o := range m.users {
		if o.ID == u.ID {
			continue
		}
		if o.Username == u.Username {
			return &repository.DuplicateError{Key: "uq_users_username"}
		}
		if u.Email != "" && o.Email == u.Email {
			return &repository.DuplicateError{Key: "uq_users_email"}
		}
		if u.SteamID != nil && o.SteamID != nil && *o.SteamID == *u.SteamID {
			return &repository.DuplicateError{Key: "uq_users_steam"}
		}
	}
	return nil
}

func (m *memUsers) Create(_ context.Context, u model.User) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.conflict(u); err != nil {
		return 0, err
	}
	m.nextID++
	u.ID = m.nextID
	m.users[u.ID] = u
	return u.ID, nil
}

func (m *memUsers) CreateWithSteam(ctx context.Context, u model.User, id model.SteamIdentity) (uint64, error) {
	m.mu.Lock()
	m.steam[id.SteamID] = id
	m.mu.Unlock()
	return m.Create(ctx, u)
}

func (m *memUsers) find(match func(model.User) bool) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

func (m *memUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	return m.find(func(u model.User) bool { return u.ID == id })
}

func (m *memUsers) GetByUsername(_ context.Context, name string) (model.User, error) {
	return m.find(func(u model.User) bool { return u.Username == name })
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return m.find(func(u model.User) bool { return u.Email != "" && u.Email == email })
}

func (m *memUsers) GetBySteamID(_ context.Context, sid string) (model.User, error) {
	return m.find(func(u model.User) bool { return u.SteamID != nil && *u.SteamID == sid })
}

func (m *memUsers) GetSteamIdentity(_ context.Context, sid string) (model.SteamIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.steam[sid]
	if !ok {
		return id, sql.ErrNoRows
	}
	return id, nil
}

func (m *memUsers) List(_ context.Context, limit, offset int) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.User
	for _, u := range m.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if offset >= len(all) {
		return nil, nil
	}
	return all[offset:min(len(all), offset+limit)], nil
}

func (m *memUsers) Update(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return sql.ErrNoRows
	}
	if err := m.conflict(u); err != nil {
		return err
	}
	m.users[u.ID] = u
	return nil
}

func (m *memUsers) SetVerification(_ context.Context, id uint64, verified bool, code *string, expiry *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.EmailVerified, u.VerificationCode, u.VerificationCodeExpiry = verified, code, expiry
	m.users[id] = u
	return nil
}

func (m *memUsers) Delete(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.users, id)
	return nil
}

// ---- games ----

type gameKey struct {
	ext string
	src model.GameSource
}

type memGames struct {
	mu      sync.Mutex
	rows    map[uint64]model.Game
	byKey   map[gameKey]uint64
	nextID  uint64
	updates int
	// beforeInsert runs ahead of every Insert, outside the lock, so tests
	// can let a competing writer win the race.
	beforeInsert func(g model.Game)
	// afterGetByID runs once a row has been read, outside the lock.
	afterGetByID func(id uint64)
	hideLookup   bool
}

func newMemGames() *memGames {
	return &memGames{rows: map[uint64]model.Game{}, byKey: map[gameKey]uint64{}}
}

func (m *memGames) put(g model.Game) model.Game {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	g.ID = m.nextID
	if g.Genres == nil {
		g.Genres = []string{}
	}
	m.rows[g.ID] = g
	m.byKey[gameKey{g.ExternalID, g.Source}] = g.ID
	return g
}

func (m *memGames) GetByID(_ context.Context, id uint64) (model.Game, error) {
	m.mu.Lock()
	g, ok := m.rows[id]
	hook := m.afterGetByID
	m.mu.Unlock()
	if !ok {
		return g, sql.ErrNoRows
	}
	if hook != nil {
		hook(id)
	}
	return g, nil
}

func (m *memGames) GetByExternal(_ context.Context, ext string, src model.GameSource) (model.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byKey[gameKey{ext, src}]
	if !ok || m.hideLookup {
		m.hideLookup = false
		return model.Game{}, sql.ErrNoRows
	}
	return m.rows[id], nil
}

func (m *memGames) Insert(_ context.Context, g model.Game) (uint64, error) {
	if m.beforeInsert != nil {
		m.beforeInsert(g)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byKey[gameKey{g.ExternalID, g.Source}]; ok {
		return 0, &repository.DuplicateError{Key: "uq_games_external"}
	}
	m.nextID++
	g.ID = m.nextID
	m.rows[g.ID] = g
	m.byKey[gameKey{g.ExternalID, g.Source}] = g.ID
	return g.ID, nil
}

func (m *memGames) Update(_ context.Context, g model.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[g.ID]; !ok {
		return sql.ErrNoRows
	}
	m.updates++
	m.rows[g.ID] = g
	return nil
}

func (m *memGames) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), nil
}

func (m *memGames) sorted(match func(model.Game) bool) []model.Game {
	var out []model.Game
	for _, g := range m.rows {
		if match(g) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func paginate(all []model.Game, limit, offset int) []model.Game {
	if offset >= len(all) {
		return nil
	}
	return all[offset:min(len(all), offset+limit)]
}

func (m *memGames) Search(_ context.Context, q string, limit, offset int) ([]model.Game, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q = strings.ToLower(q)
	all := m.sorted(func(g model.Game) bool { return strings.Contains(strings.ToLower(g.Title), q) })
	return paginate(all, limit, offset), len(all), nil
}

func (m *memGames) List(_ context.Context, limit, offset int) ([]model.Game, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted(func(model.Game) bool { return true })
	return paginate(all, limit, offset), len(all), nil
}

func (m *memGames) count(src model.GameSource) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, g := range m.rows {
		if g.Source == src {
			n++
		}
	}
	return n
}

type memCache struct {
	mu          sync.Mutex
	items       map[uint64]model.Game
	invalidated []uint64
}

func newMemCache() *memCache { return &memCache{items: map[uint64]model.Game{}} }

func (c *memCache) Get(_ context.Context, id uint64) (model.Game, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.items[id]
	return g, ok
}

func (c *memCache) Set(_ context.Context, g model.Game) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[g.ID] = g
}

func (c *memCache) Invalidate(_ context.Context, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
	c.invalidated = append(c.invalidated, id)
}

// ---- instances ----

type memInstances struct {
	mu     sync.Mutex
	rows   map[uint64]model.GameInstance
	games  *memGames
	nextID uint64
	// hideNext makes the next GetByUserAndGame miss, simulating a
	// concurrent writer that inserts between lookup and insert.
	hideNext bool
}

func newMemInstances(games *memGames) *memInstances {
	return &memInstances{rows: map[uint64]model.GameInstance{}, games: games}
}

func (m *memInstances) Create(_ context.Context, gi model.GameInstance) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.rows {
		if o.UserID == gi.UserID && o.GameID == gi.GameID {
			return 0, &repository.DuplicateError{Key: "uq_instance_user_game"}
		}
	}
	m.nextID++
	gi.ID = m.nextID
	m.rows[gi.ID] = gi
	return gi.ID, nil
}

func (m *memInstances) GetByID(_ context.Context, id uint64) (model.GameInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gi, ok := m.rows[id]
	if !ok {
		return gi, sql.ErrNoRows
	}
	return gi, nil
}

func (m *memInstances) GetByUserAndGame(_ context.Context, userID, gameID uint64) (model.GameInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hideNext {
		m.hideNext = false
		return model.GameInstance{}, sql.ErrNoRows
	}
	for _, gi := range m.rows {
		if gi.UserID == userID && gi.GameID == gameID {
			return gi, nil
		}
	}
	return model.GameInstance{}, sql.ErrNoRows
}

func (m *memInstances) Update(_ context.Context, gi model.GameInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[gi.ID]; !ok {
		return sql.ErrNoRows
	}
	m.rows[gi.ID] = gi
	return nil
}

func (m *memInstances) Delete(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.rows, id)
	return nil
}

func (m *memInstances) ListByUser(ctx context.Context, userID uint64, status model.GameStatus) ([]model.GameInstanceDetail, error) {
	m.mu.Lock()
	var list []model.GameInstance
	for _, gi := range m.rows {
		if gi.UserID == userID && (status == "" || gi.Status == status) {
			list = append(list, gi)
		}
	}
	m.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	out := make([]model.GameInstanceDetail, 0, len(list))
	for _, gi := range list {
		g, _ := m.games.GetByID(ctx, gi.GameID)
		out = append(out, model.GameInstanceDetail{GameInstance: gi, Game: g})
	}
	return out, nil
}

func (m *memInstances) forUser(userID uint64) []model.GameInstance {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.GameInstance
	for _, gi := range m.rows {
		if gi.UserID == userID {
			out = append(out, gi)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---- reviews ----

type memReviews struct {
	mu     sync.Mutex
	rows   map[uint64]model.Review
	nextID uint64
}

func newMemReviews() *memReviews { return &memReviews{rows: map[uint64]model.Review{}} }

func (m *memReviews) Create(_ context.Context, r model.Review) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.rows {
		if o.UserID == r.UserID && o.GameID == r.GameID {
			return 0, &repository.DuplicateError{Key: "uq_review_user_game"}
		}
	}
	m.nextID++
	r.ID = m.nextID
	m.rows[r.ID] = r
	return r.ID, nil
}

func (m *memReviews) GetByID(_ context.Context, id uint64) (model.ReviewDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return model.ReviewDetail{}, sql.ErrNoRows
	}
	return model.ReviewDetail{Review: r}, nil
}

func (m *memReviews) Update(_ context.Context, id uint64, rating int, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.Rating, r.ReviewText = rating, text
	m.rows[id] = r
	return nil
}

func (m *memReviews) Delete(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.rows, id)
	return nil
}

func (m *memReviews) list(match func(model.Review) bool) []model.ReviewDetail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.ReviewDetail{}
	for _, r := range m.rows {
		if match(r) {
			out = append(out, model.ReviewDetail{Review: r})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memReviews) ListByGame(_ context.Context, gameID uint64) ([]model.ReviewDetail, error) {
	return m.list(func(r model.Review) bool { return r.GameID == gameID }), nil
}

func (m *memReviews) ListByUser(_ context.Context, userID uint64) ([]model.ReviewDetail, error) {
	return m.list(func(r model.Review) bool { return r.UserID == userID }), nil
}

// ---- remote catalog ----

type fakeCatalog struct {
	mu         sync.Mutex
	configured bool
	// pages keyed by metacritic band, then page number (1-based)
	tiers    map[string][]rawg.Page
	tierErr  map[string]error
	search   []rawg.Page
	searchEr error
	details  map[int64]rawg.Game
	listCall []rawg.ListParams
	searches int
	onList   func(p rawg.ListParams)
}

func (f *fakeCatalog) Configured() bool { return f.configured }

func (f *fakeCatalog) List(_ context.Context, p rawg.ListParams) (rawg.Page, error) {
	f.mu.Lock()
	f.listCall = append(f.listCall, p)
	hook := f.onList
	f.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	if err := f.tierErr[p.Metacritic]; err != nil {
		return rawg.Page{}, err
	}
	pages := f.tiers[p.Metacritic]
	if p.Page < 1 || p.Page > len(pages) {
		return rawg.Page{}, nil
	}
	return pages[p.Page-1], nil
}

func (f *fakeCatalog) Search(_ context.Context, _ string, page, _ int) (rawg.Page, error) {
	f.mu.Lock()
	f.searches++
	f.mu.Unlock()
	if f.searchEr != nil {
		return rawg.Page{}, f.searchEr
	}
	if page < 1 || page > len(f.search) {
		return rawg.Page{}, nil
	}
	return f.search[page-1], nil
}

func (f *fakeCatalog) GetGame(_ context.Context, id int64) (rawg.Game, error) {
	g, ok := f.details[id]
	if !ok {
		return rawg.Game{}, errors.New("not found")
	}
	return g, nil
}

func next() *string { s := "next"; return &s }

func remoteGame(id int64, name string) rawg.Game {
	return rawg.Game{ID: id, Name: name, Rating: 4.5, BackgroundImage: "https://img/" + name,
		Genres: []rawg.Named{{Name: "Action"}}}
}

// ---- steam library ----

type fakeLibrary struct {
	configured bool
	games      []steam.OwnedGame
	err        error
	calls      int
}

func (f *fakeLibrary) Configured() bool { return f.configured }

func (f *fakeLibrary) GetOwnedGames(context.Context, string) ([]steam.OwnedGame, error) {
	f.calls++
	return f.games, f.err
}

func ptr[T any](v T) *T { return &v }
