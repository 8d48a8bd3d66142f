package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/game-tracker/internal/model"
)

// GameCache is a cache-aside store for game lookups by id. A nil client
// disables it; every method then behaves as a miss or no-op. Redis
// failures are logged and treated the same way.
type GameCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewGameCache(rdb *redis.Client, prefix string, ttl time.Duration) *GameCache {
	return &GameCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *GameCache) key(id uint64) string { return c.prefix + ":game:" + strconv.FormatUint(id, 10) }

// Get returns the cached game and whether it was present.
func (c *GameCache) Get(ctx context.Context, id uint64) (model.Game, bool) {
	if c == nil || c.rdb == nil {
		return model.Game{}, false
	}
	b, err := c.rdb.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Ctx(ctx).Warn().Err(err).Uint64("game_id", id).Msg("game cache get failed")
		}
		return model.Game{}, false
	}
	var g model.Game
	if err := json.Unmarshal(b, &g); err != nil {
		return model.Game{}, false
	}
	return g, true
}

// Set stores g under its id.
func (c *GameCache) Set(ctx context.Context, g model.Game) {
	if c == nil || c.rdb == nil {
		return
	}
	b, err := json.Marshal(g)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.key(g.ID), b, c.ttl).Err(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Uint64("game_id", g.ID).Msg("game cache set failed")
	}
}

// Invalidate drops the entry for id. It runs after every write to the game
// so a lookup never serves data older than the last update.
func (c *GameCache) Invalidate(ctx context.Context, id uint64) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, c.key(id)).Err(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Uint64("game_id", id).Msg("game cache invalidate failed")
	}
}
