package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/iliyamo/game-tracker/internal/apperr"
	"github.com/iliyamo/game-tracker/internal/metrics"
	"github.com/iliyamo/game-tracker/internal/model"
	"github.com/iliyamo/game-tracker/internal/rawg"
	"github.com/iliyamo/game-tracker/internal/repository"
)

// CatalogAPI is the remote catalog the synchronizer reads from.
type CatalogAPI interface {
	Configured() bool
	List(ctx context.Context, p rawg.ListParams) (rawg.Page, error)
	Search(ctx context.Context, query string, page, pageSize int) (rawg.Page, error)
	GetGame(ctx context.Context, id int64) (rawg.Game, error)
}

// Tier is one metacritic band crawled during bootstrap.
type Tier struct {
	Metacritic string // "90,100"
}

// DefaultTiers walks the catalog from the best reviewed games down.
var DefaultTiers = []Tier{{"90,100"}, {"85,89"}, {"80,84"}, {"75,79"}, {"70,74"}}

// CatalogOptions tune bootstrap and search supplementation.
type CatalogOptions struct {
	Tiers              []Tier
	Ordering           string
	PageSize           int
	MaxPagesPerTier    int
	Target             int
	BootstrapThreshold int
	PageDelay          time.Duration
	SearchPages        int
	SearchPageSize     int
}

func (o CatalogOptions) withDefaults() CatalogOptions {
	if len(o.Tiers) == 0 {
		o.Tiers = DefaultTiers
	}
	if o.Ordering == "" {
		o.Ordering = "-metacritic"
	}
	if o.PageSize <= 0 {
		o.PageSize = 40
	}
	if o.MaxPagesPerTier <= 0 {
		o.MaxPagesPerTier = 5
	}
	if o.Target <= 0 {
		o.Target = 200
	}
	if o.BootstrapThreshold <= 0 {
		o.BootstrapThreshold = 20
	}
	if o.SearchPages <= 0 {
		o.SearchPages = 2
	}
	if o.SearchPageSize <= 0 {
		o.SearchPageSize = 20
	}
	return o
}

// CatalogService keeps the local game table in step with the remote
// catalog and answers catalog queries.
type CatalogService struct {
	games  GameStore
	cache  GameCache
	remote CatalogAPI
	opts   CatalogOptions
	now    func() time.Time

	// gens counts invalidations per game id (uint64 -> *atomic.Uint64).
	gens sync.Map
}

// NewCatalogService wires the synchronizer. cache may be nil.
func NewCatalogService(games GameStore, cache GameCache, remote CatalogAPI, opts CatalogOptions, now func() time.Time) *CatalogService {
	return &CatalogService{games: games, cache: cache, remote: remote, opts: opts.withDefaults(), now: clockOrDefault(now)}
}

// GamePage is one page of catalog results.
type GamePage struct {
	Items    []model.Game `json:"items"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

// fromRemote maps a provider record onto a Game.
func fromRemote(rg rawg.Game) model.Game {
	g := model.Game{
		Title:           strings.TrimSpace(rg.Name),
		ExternalID:      strconv.FormatInt(rg.ID, 10),
		Source:          model.SourceRAWG,
		BackgroundImage: rg.BackgroundImage,
		Genres:          rg.GenreNames(),
		ReleaseDate:     rg.ReleaseDate(),
		Description:     rg.DescriptionRaw,
	}
	g.Slug = Slugify(g.Title)
	if rg.Rating > 0 {
		r := rg.Rating
		g.Rating = &r
	}
	return g
}

// Upsert stores a provider record keyed by (id, RAWG). An existing row has
// its display fields overwritten and its sync timestamp bumped; otherwise
// a row is inserted. It reports whether a row was created.
func (s *CatalogService) Upsert(ctx context.Context, rg rawg.Game) (model.Game, bool, error) {
	g, created, err := s.upsert(ctx, fromRemote(rg), true)
	metrics.CatalogUpserts.WithLabelValues(string(model.SourceRAWG), upsertResult(created, err)).Inc()
	return g, created, err
}

// EnsureGame returns the game keyed by (g.ExternalID, g.Source), inserting
// g when absent. Existing rows are left untouched.
func (s *CatalogService) EnsureGame(ctx context.Context, g model.Game) (model.Game, bool, error) {
	out, created, err := s.upsert(ctx, g, false)
	metrics.CatalogUpserts.WithLabelValues(string(g.Source), upsertResult(created, err)).Inc()
	return out, created, err
}

// upsert is the keyed find-update-or-insert. An insert that loses a race
// on the unique key re-reads the winner and, when overwrite is set,
// applies the update to it.
func (s *CatalogService) upsert(ctx context.Context, g model.Game, overwrite bool) (model.Game, bool, error) {
	now := s.now().UTC()
	g.LastSyncedAt = &now
	if g.Slug == "" {
		g.Slug = Slugify(g.Title)
	}
	if g.Genres == nil {
		g.Genres = []string{}
	}

	existing, err := s.games.GetByExternal(ctx, g.ExternalID, g.Source)
	if err == nil {
		if !overwrite {
			return existing, false, nil
		}
		return s.overwrite(ctx, existing, g)
	}
	if err = notFound(err, nil); err != nil {
		return model.Game{}, false, err
	}

	id, err := s.games.Insert(ctx, g)
	if errors.Is(err, repository.ErrDuplicate) {
		existing, err = s.games.GetByExternal(ctx, g.ExternalID, g.Source)
		if err != nil {
			return model.Game{}, false, err
		}
		if !overwrite {
			return existing, false, nil
		}
		return s.overwrite(ctx, existing, g)
	}
	if err != nil {
		return model.Game{}, false, err
	}
	g.ID = id
	g.CreatedAt = now
	return g, true, nil
}

func (s *CatalogService) overwrite(ctx context.Context, existing, g model.Game) (model.Game, bool, error) {
	existing.Title = g.Title
	existing.Slug = g.Slug
	existing.Rating = g.Rating
	existing.BackgroundImage = g.BackgroundImage
	existing.Genres = g.Genres
	existing.LastSyncedAt = g.LastSyncedAt
	if g.ReleaseDate != nil {
		existing.ReleaseDate = g.ReleaseDate
	}
	if g.Description != "" {
		existing.Description = g.Description
	}
	if err := s.games.Update(ctx, existing); err != nil {
		return model.Game{}, false, err
	}
	s.invalidate(ctx, existing.ID)
	return existing, false, nil
}

func (s *CatalogService) generation(id uint64) *atomic.Uint64 {
	v, _ := s.gens.LoadOrStore(id, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}

// invalidate bumps the generation before dropping the cache entry so a
// concurrent GetGame that read the old row notices and drops its write.
func (s *CatalogService) invalidate(ctx context.Context, id uint64) {
	if s.cache != nil {
		s.generation(id).Add(1)
		s.cache.Invalidate(ctx, id)
	}
}

func upsertResult(created bool, err error) string {
	switch {
	case err != nil:
		return "failed"
	case created:
		return "created"
	}
	return "updated"
}

// BootstrapReport summarises one bootstrap run.
type BootstrapReport struct {
	Created     int  `json:"created"`
	Updated     int  `json:"updated"`
	Skipped     int  `json:"skipped"`
	Failed      int  `json:"failed"`
	Pages       int  `json:"pages"`
	Total       int  `json:"total"`
	Interrupted bool `json:"interrupted"`
}

// NeedsBootstrap reports whether the local catalog is below the threshold.
func (s *CatalogService) NeedsBootstrap(ctx context.Context) (bool, error) {
	n, err := s.games.Count(ctx)
	if err != nil {
		return false, err
	}
	return n < s.opts.BootstrapThreshold, nil
}

// Bootstrap pages through the remote catalog tier by tier, best critic
// score first, until the local catalog holds Target rows. A tier ends at
// its page cap, on its last page or on a remote error. Blank titles are
// skipped and failed records are logged and counted. Pages are paced by a
// limiter; cancelling ctx during the wait stops the run and reports it as
// interrupted.
func (s *CatalogService) Bootstrap(ctx context.Context) (BootstrapReport, error) {
	var rep BootstrapReport
	if !s.remote.Configured() {
		return rep, apperr.ErrConfiguration
	}
	total, err := s.games.Count(ctx)
	if err != nil {
		return rep, err
	}
	logger := log.Ctx(ctx).With().Str("job", "catalog_bootstrap").Logger()
	logger.Info().Int("existing", total).Int("target", s.opts.Target).Msg("bootstrap started")

	limiter := rate.NewLimiter(rate.Every(s.opts.PageDelay), 1)
	if s.opts.PageDelay <= 0 {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

tiers:
	for _, tier := range s.opts.Tiers {
		for page := 1; page <= s.opts.MaxPagesPerTier; page++ {
			if total >= s.opts.Target {
				break tiers
			}
			if err := limiter.Wait(ctx); err != nil {
				rep.Interrupted = true
				logger.Warn().Err(err).Str("tier", tier.Metacritic).Int("page", page).Msg("bootstrap interrupted")
				break tiers
			}
			p, err := s.remote.List(ctx, rawg.ListParams{
				Page:       page,
				PageSize:   s.opts.PageSize,
				Ordering:   s.opts.Ordering,
				Metacritic: tier.Metacritic,
			})
			if err != nil {
				logger.Warn().Err(err).Str("tier", tier.Metacritic).Int("page", page).Msg("tier fetch failed; moving to next tier")
				break
			}
			rep.Pages++
			for _, rg := range p.Results {
				if strings.TrimSpace(rg.Name) == "" {
					rep.Skipped++
					continue
				}
				_, created, err := s.Upsert(ctx, rg)
				switch {
				case err != nil:
					rep.Failed++
					logger.Error().Err(err).Int64("rawg_id", rg.ID).Msg("game sync failed")
				case created:
					rep.Created++
					total++
				default:
					rep.Updated++
				}
			}
			if len(p.Results) == 0 || !p.HasNext() {
				break
			}
		}
	}
	rep.Total = total
	logger.Info().Int("created", rep.Created).Int("updated", rep.Updated).Int("failed", rep.Failed).
		Int("total", rep.Total).Bool("interrupted", rep.Interrupted).Msg("bootstrap finished")
	return rep, nil
}

// BootstrapIfNeeded runs Bootstrap when the catalog is below the threshold
// and the provider is configured.
func (s *CatalogService) BootstrapIfNeeded(ctx context.Context) {
	if !s.remote.Configured() {
		log.Ctx(ctx).Info().Msg("catalog provider not configured; skipping bootstrap")
		return
	}
	need, err := s.NeedsBootstrap(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("catalog count failed")
		return
	}
	if !need {
		return
	}
	if _, err := s.Bootstrap(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("catalog bootstrap failed")
	}
}

// Search returns local games whose title contains query. When the page is
// short, the remote catalog is consulted for up to SearchPages pages and
// only titles that plausibly match query are stored before re-querying
// locally. Remote failures leave the local result as is.
func (s *CatalogService) Search(ctx context.Context, query string, page, size int) (GamePage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.List(ctx, page, size)
	}
	limit, offset, page := pageBounds(page, size, 100)
	local, total, err := s.games.Search(ctx, query, limit, offset)
	if err != nil {
		return GamePage{}, err
	}
	result := GamePage{Items: nonNil(local), Total: total, Page: page, PageSize: limit}
	if len(local) >= limit || !s.remote.Configured() {
		return result, nil
	}

	if s.supplement(ctx, query) == 0 {
		return result, nil
	}
	refreshed, total, err := s.games.Search(ctx, query, limit, offset)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("search re-query failed; returning earlier results")
		return result, nil
	}
	return GamePage{Items: nonNil(refreshed), Total: total, Page: page, PageSize: limit}, nil
}

// supplement pulls matching remote titles into the catalog and returns how
// many were stored.
func (s *CatalogService) supplement(ctx context.Context, query string) int {
	stored := 0
	for p := 1; p <= s.opts.SearchPages; p++ {
		rp, err := s.remote.Search(ctx, query, p, s.opts.SearchPageSize)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("query", query).Msg("remote search failed; using local results")
			break
		}
		for _, rg := range rp.Results {
			if !TitleMatches(query, rg.Name) {
				continue
			}
			if _, _, err := s.Upsert(ctx, rg); err != nil {
				log.Ctx(ctx).Warn().Err(err).Int64("rawg_id", rg.ID).Msg("search upsert failed")
				continue
			}
			stored++
		}
		if !rp.HasNext() {
			break
		}
	}
	return stored
}

// List returns one page of the local catalog.
func (s *CatalogService) List(ctx context.Context, page, size int) (GamePage, error) {
	limit, offset, page := pageBounds(page, size, 100)
	games, total, err := s.games.List(ctx, limit, offset)
	if err != nil {
		return GamePage{}, err
	}
	return GamePage{Items: nonNil(games), Total: total, Page: page, PageSize: limit}, nil
}

// GetGame loads a game through the side cache.
func (s *CatalogService) GetGame(ctx context.Context, id uint64) (model.Game, error) {
	if s.cache != nil {
		if g, ok := s.cache.Get(ctx, id); ok {
			return g, nil
		}
	}
	var gen *atomic.Uint64
	var seen uint64
	if s.cache != nil {
		gen = s.generation(id)
		seen = gen.Load()
	}
	g, err := s.games.GetByID(ctx, id)
	if err != nil {
		return model.Game{}, notFound(err, apperr.ErrGameNotFound)
	}
	if s.cache != nil {
		s.cache.Set(ctx, g)
		// An upsert between the read and the Set may have left g stale in
		// the cache; drop it again.
		if gen.Load() != seen {
			s.cache.Invalidate(ctx, id)
		}
	}
	return g, nil
}

// GetGameDetails fetches one provider record, stores it with its
// description and returns the local row.
func (s *CatalogService) GetGameDetails(ctx context.Context, externalID int64) (model.Game, error) {
	if !s.remote.Configured() {
		return model.Game{}, apperr.ErrConfiguration
	}
	rg, err := s.remote.GetGame(ctx, externalID)
	if err != nil {
		return model.Game{}, err
	}
	if strings.TrimSpace(rg.Name) == "" {
		return model.Game{}, apperr.ErrGameNotFound
	}
	g, _, err := s.Upsert(ctx, rg)
	return g, err
}

func nonNil(games []model.Game) []model.Game {
	if games == nil {
		return []model.Game{}
	}
	return games
}
