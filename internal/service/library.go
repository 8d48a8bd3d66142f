package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/game-tracker/internal/apperr"
	"github.com/iliyamo/game-tracker/internal/metrics"
	"github.com/iliyamo/game-tracker/internal/model"
	"github.com/iliyamo/game-tracker/internal/repository"
	"github.com/iliyamo/game-tracker/internal/steam"
)

// SteamLibrary reads a user's owned games from Steam.
type SteamLibrary interface {
	Configured() bool
	GetOwnedGames(ctx context.Context, steamID string) ([]steam.OwnedGame, error)
}

// GameEnsurer finds or creates a game keyed by (external id, source).
type GameEnsurer interface {
	EnsureGame(ctx context.Context, g model.Game) (model.Game, bool, error)
}

// SyncReport summarises one library sync.
type SyncReport struct {
	Total    int `json:"total"`
	Imported int `json:"imported"`
	Failed   int `json:"failed"`
}

// LibraryService imports a user's Steam library into games and game
// instances. Each entry is its own unit of work: a failure on one entry is
// logged and the loop moves on, keeping everything already written.
type LibraryService struct {
	users     UserStore
	steam     SteamLibrary
	games     GameEnsurer
	instances InstanceStore
	now       func() time.Time
}

func NewLibraryService(users UserStore, steam SteamLibrary, games GameEnsurer, instances InstanceStore, now func() time.Time) *LibraryService {
	return &LibraryService{users: users, steam: steam, games: games, instances: instances, now: clockOrDefault(now)}
}

// steamUser loads userID and checks that a Steam identity is linked and
// the API key is configured.
func (s *LibraryService) steamUser(ctx context.Context, userID uint64) (model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.User{}, notFound(err, apperr.ErrUserNotFound)
	}
	if !u.HasSteam() {
		return model.User{}, apperr.Steam(apperr.StageReceived, "no steam account linked", nil)
	}
	if !s.steam.Configured() {
		return model.User{}, apperr.ErrConfiguration
	}
	return u, nil
}

// OwnedGames returns the raw Steam library of userID without importing it.
func (s *LibraryService) OwnedGames(ctx context.Context, userID uint64) ([]steam.OwnedGame, error) {
	u, err := s.steamUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.steam.GetOwnedGames(ctx, *u.SteamID)
}

// SyncLibrary imports every owned game of userID in the order Steam
// returns them.
func (s *LibraryService) SyncLibrary(ctx context.Context, userID uint64) (SyncReport, error) {
	u, err := s.steamUser(ctx, userID)
	if err != nil {
		return SyncReport{}, err
	}
	owned, err := s.steam.GetOwnedGames(ctx, *u.SteamID)
	if err != nil {
		return SyncReport{}, err
	}
	logger := log.Ctx(ctx).With().Str("job", "library_sync").Uint64("user_id", userID).Logger()

	rep := SyncReport{Total: len(owned)}
	for i, entry := range owned {
		if _, err := s.importEntry(ctx, u.ID, entry); err != nil {
			rep.Failed++
			metrics.LibraryEntries.WithLabelValues("failed").Inc()
			logger.Warn().Err(err).Int("index", i).Str("name", entry.Name).Msg("library entry skipped")
			continue
		}
		rep.Imported++
		metrics.LibraryEntries.WithLabelValues("imported").Inc()
	}
	logger.Info().Int("total", rep.Total).Int("imported", rep.Imported).Int("failed", rep.Failed).Msg("library sync finished")
	return rep, nil
}

// ImportSingle imports one caller supplied entry for userID and returns
// the resulting instance.
func (s *LibraryService) ImportSingle(ctx context.Context, userID uint64, entry steam.OwnedGame) (model.GameInstance, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return model.GameInstance{}, notFound(err, apperr.ErrUserNotFound)
	}
	gi, err := s.importEntry(ctx, userID, entry)
	if err != nil {
		return model.GameInstance{}, err
	}
	return gi, nil
}

var errMalformedEntry = errors.New("malformed library entry")

func (s *LibraryService) importEntry(ctx context.Context, userID uint64, entry steam.OwnedGame) (model.GameInstance, error) {
	title := strings.TrimSpace(entry.Name)
	if entry.AppID == nil || title == "" {
		return model.GameInstance{}, fmt.Errorf("%w: appid or name missing", errMalformedEntry)
	}
	game, _, err := s.games.EnsureGame(ctx, model.Game{
		Title:           title,
		Slug:            Slugify(title),
		ExternalID:      strconv.FormatInt(*entry.AppID, 10),
		Source:          model.SourceSteam,
		BackgroundImage: steam.HeaderImageURL(*entry.AppID),
	})
	if err != nil {
		return model.GameInstance{}, fmt.Errorf("game %d: %w", *entry.AppID, err)
	}
	return s.upsertInstance(ctx, userID, game.ID, entry)
}

// upsertInstance creates the (user, game) instance as PLAYING when absent
// and always overwrites playtime, and last played when Steam reports a
// positive timestamp.
func (s *LibraryService) upsertInstance(ctx context.Context, userID, gameID uint64, entry steam.OwnedGame) (model.GameInstance, error) {
	gi, err := s.instances.GetByUserAndGame(ctx, userID, gameID)
	if err != nil {
		if err = notFound(err, nil); err != nil {
			return model.GameInstance{}, err
		}
		gi = model.GameInstance{UserID: userID, GameID: gameID, Status: model.StatusPlaying, AddedAt: s.now().UTC()}
		applyPlaytime(&gi, entry)
		id, err := s.instances.Create(ctx, gi)
		if err == nil {
			gi.ID = id
			return gi, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return model.GameInstance{}, err
		}
		if gi, err = s.instances.GetByUserAndGame(ctx, userID, gameID); err != nil {
			return model.GameInstance{}, err
		}
	}
	applyPlaytime(&gi, entry)
	if err := s.instances.Update(ctx, gi); err != nil {
		return model.GameInstance{}, err
	}
	return gi, nil
}

func applyPlaytime(gi *model.GameInstance, entry steam.OwnedGame) {
	minutes := entry.PlaytimeForever
	gi.PlayTime = &minutes
	if entry.RTimeLastPlayed != nil && *entry.RTimeLastPlayed > 0 {
		t := time.Unix(*entry.RTimeLastPlayed, 0).UTC()
		gi.LastPlayed = &t
	}
}
