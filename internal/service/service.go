// Package service holds the application logic between the HTTP handlers
// and the repositories: the credential store, catalog synchronization,
// Steam library import, game instances and reviews. Persistence is
// reached through the store interfaces below so every service can be
// exercised with in-memory fakes.
package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/game-tracker/internal/model"
)

// UserStore persists accounts. Missing rows are reported as sql.ErrNoRows
// and unique violations as repository.ErrDuplicate.
type UserStore interface {
	Create(ctx context.Context, u model.User) (uint64, error)
	CreateWithSteam(ctx context.Context, u model.User, id model.SteamIdentity) (uint64, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	GetByUsername(ctx context.Context, username string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetBySteamID(ctx context.Context, steamID string) (model.User, error)
	GetSteamIdentity(ctx context.Context, steamID string) (model.SteamIdentity, error)
	List(ctx context.Context, limit, offset int) ([]model.User, error)
	Update(ctx context.Context, u model.User) error
	SetVerification(ctx context.Context, userID uint64, verified bool, code *string, expiry *time.Time) error
	Delete(ctx context.Context, id uint64) error
}

// GameStore persists catalog games keyed by (external id, source).
type GameStore interface {
	GetByID(ctx context.Context, id uint64) (model.Game, error)
	GetByExternal(ctx context.Context, externalID string, source model.GameSource) (model.Game, error)
	Insert(ctx context.Context, g model.Game) (uint64, error)
	Update(ctx context.Context, g model.Game) error
	Count(ctx context.Context) (int, error)
	Search(ctx context.Context, query string, limit, offset int) ([]model.Game, int, error)
	List(ctx context.Context, limit, offset int) ([]model.Game, int, error)
}

// GameCache is the optional side cache for game lookups by id.
type GameCache interface {
	Get(ctx context.Context, id uint64) (model.Game, bool)
	Set(ctx context.Context, g model.Game)
	Invalidate(ctx context.Context, id uint64)
}

// InstanceStore persists game instances keyed by (user, game).
type InstanceStore interface {
	Create(ctx context.Context, gi model.GameInstance) (uint64, error)
	GetByID(ctx context.Context, id uint64) (model.GameInstance, error)
	GetByUserAndGame(ctx context.Context, userID, gameID uint64) (model.GameInstance, error)
	Update(ctx context.Context, gi model.GameInstance) error
	Delete(ctx context.Context, id uint64) error
	ListByUser(ctx context.Context, userID uint64, status model.GameStatus) ([]model.GameInstanceDetail, error)
}

// ReviewStore persists reviews keyed by (user, game).
type ReviewStore interface {
	Create(ctx context.Context, r model.Review) (uint64, error)
	GetByID(ctx context.Context, id uint64) (model.ReviewDetail, error)
	Update(ctx context.Context, id uint64, rating int, text string) error
	Delete(ctx context.Context, id uint64) error
	ListByGame(ctx context.Context, gameID uint64) ([]model.ReviewDetail, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.ReviewDetail, error)
}

// Actor is the authenticated caller, passed explicitly by the handler.
type Actor struct {
	UserID uint64
	Role   model.Role
}

// IsAdmin reports whether the caller has the ADMIN role.
func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }

// notFound maps sql.ErrNoRows to the given domain error and passes any
// other error through.
func notFound(err, domain error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain
	}
	return err
}

func clockOrDefault(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}

// pageBounds normalizes a 1-based page and size into limit and offset.
func pageBounds(page, size, maxSize int) (limit, offset, p int) {
	if size <= 0 {
		size = 20
	}
	if size > maxSize {
		size = maxSize
	}
	if page < 1 {
		page = 1
	}
	return size, (page - 1) * size, page
}
