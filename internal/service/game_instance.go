package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/game-tracker/internal/apperr"
	"github.com/iliyamo/game-tracker/internal/model"
	"github.com/iliyamo/game-tracker/internal/repository"
)

// GameLookup loads catalog games by id.
type GameLookup interface {
	GetGame(ctx context.Context, id uint64) (model.Game, error)
}

// GameInstanceService manages a user's tracked games. Instances of other
// users are reported as not found.
type GameInstanceService struct {
	instances InstanceStore
	games     GameLookup
	now       func() time.Time
}

func NewGameInstanceService(instances InstanceStore, games GameLookup, now func() time.Time) *GameInstanceService {
	return &GameInstanceService{instances: instances, games: games, now: clockOrDefault(now)}
}

// AddInstanceInput describes a game being added to a library.
type AddInstanceInput struct {
	GameID             uint64
	Status             model.GameStatus
	ProgressPercentage *int
	PlayTime           *int
	Notes              string
}

// UpdateInstanceInput carries optional changes; nil fields are left alone.
type UpdateInstanceInput struct {
	Status             *model.GameStatus
	ProgressPercentage *int
	PlayTime           *int
	Notes              *string
}

// Add creates an instance of in.GameID for userID. Adding a game twice
// fails with apperr.ErrGameAlreadyAdded, also when two requests race.
func (s *GameInstanceService) Add(ctx context.Context, userID uint64, in AddInstanceInput) (model.GameInstance, error) {
	if !in.Status.Valid() {
		return model.GameInstance{}, apperr.ErrValidation
	}
	if err := checkProgress(in.ProgressPercentage); err != nil {
		return model.GameInstance{}, err
	}
	if _, err := s.games.GetGame(ctx, in.GameID); err != nil {
		return model.GameInstance{}, err
	}
	if _, err := s.instances.GetByUserAndGame(ctx, userID, in.GameID); err == nil {
		return model.GameInstance{}, apperr.ErrGameAlreadyAdded
	} else if err = notFound(err, nil); err != nil {
		return model.GameInstance{}, err
	}

	now := s.now().UTC()
	gi := model.GameInstance{
		UserID:             userID,
		GameID:             in.GameID,
		Status:             in.Status,
		ProgressPercentage: in.ProgressPercentage,
		PlayTime:           in.PlayTime,
		AddedAt:            now,
		Notes:              in.Notes,
	}
	if gi.Status == model.StatusPlaying {
		gi.LastPlayed = &now
	}
	id, err := s.instances.Create(ctx, gi)
	if errors.Is(err, repository.ErrDuplicate) {
		return model.GameInstance{}, apperr.ErrGameAlreadyAdded
	}
	if err != nil {
		return model.GameInstance{}, err
	}
	gi.ID = id
	return gi, nil
}

// AddBatch adds every game in ids with status, skipping games already in
// the library or missing from the catalog. It returns the created
// instances.
func (s *GameInstanceService) AddBatch(ctx context.Context, userID uint64, ids []uint64, status model.GameStatus) ([]model.GameInstance, error) {
	if !status.Valid() {
		return nil, apperr.ErrValidation
	}
	out := []model.GameInstance{}
	seen := map[uint64]bool{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		gi, err := s.Add(ctx, userID, AddInstanceInput{GameID: id, Status: status})
		switch {
		case err == nil:
			out = append(out, gi)
		case errors.Is(err, apperr.ErrGameAlreadyAdded), errors.Is(err, apperr.ErrGameNotFound):
			log.Ctx(ctx).Debug().Uint64("game_id", id).Err(err).Msg("batch add skipped game")
		default:
			return out, err
		}
	}
	return out, nil
}

// Get returns one of the user's instances.
func (s *GameInstanceService) Get(ctx context.Context, userID, id uint64) (model.GameInstance, error) {
	return s.owned(ctx, userID, id)
}

// Update applies in. Entering PLAYING from another status stamps last
// played; edits that keep the status do not.
func (s *GameInstanceService) Update(ctx context.Context, userID, id uint64, in UpdateInstanceInput) (model.GameInstance, error) {
	gi, err := s.owned(ctx, userID, id)
	if err != nil {
		return model.GameInstance{}, err
	}
	if err := checkProgress(in.ProgressPercentage); err != nil {
		return model.GameInstance{}, err
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return model.GameInstance{}, apperr.ErrValidation
		}
		s.transition(&gi, *in.Status)
	}
	if in.ProgressPercentage != nil {
		gi.ProgressPercentage = in.ProgressPercentage
	}
	if in.PlayTime != nil {
		if *in.PlayTime < 0 {
			return model.GameInstance{}, apperr.ErrValidation
		}
		gi.PlayTime = in.PlayTime
	}
	if in.Notes != nil {
		gi.Notes = *in.Notes
	}
	if err := s.instances.Update(ctx, gi); err != nil {
		return model.GameInstance{}, notFound(err, apperr.ErrGameInstanceNotFound)
	}
	return gi, nil
}

// UpdateStatus changes only the status.
func (s *GameInstanceService) UpdateStatus(ctx context.Context, userID, id uint64, status model.GameStatus) (model.GameInstance, error) {
	return s.Update(ctx, userID, id, UpdateInstanceInput{Status: &status})
}

func (s *GameInstanceService) transition(gi *model.GameInstance, to model.GameStatus) {
	if to == model.StatusPlaying && gi.Status != model.StatusPlaying {
		now := s.now().UTC()
		gi.LastPlayed = &now
	}
	gi.Status = to
}

// Delete removes one of the user's instances.
func (s *GameInstanceService) Delete(ctx context.Context, userID, id uint64) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return notFound(s.instances.Delete(ctx, id), apperr.ErrGameInstanceNotFound)
}

// List returns the user's library, optionally filtered by status.
func (s *GameInstanceService) List(ctx context.Context, userID uint64, status model.GameStatus) ([]model.GameInstanceDetail, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.ErrValidation
	}
	list, err := s.instances.ListByUser(ctx, userID, status)
	if list == nil {
		list = []model.GameInstanceDetail{}
	}
	return list, err
}

// Stats summarises the user's library. Average completion only counts
// instances that have a progress value.
func (s *GameInstanceService) Stats(ctx context.Context, userID uint64) (model.GameInstanceStats, error) {
	list, err := s.instances.ListByUser(ctx, userID, "")
	if err != nil {
		return model.GameInstanceStats{}, err
	}
	var st model.GameInstanceStats
	var progressSum, progressN int
	for _, d := range list {
		st.TotalGames++
		switch d.Status {
		case model.StatusPlaying:
			st.Playing++
		case model.StatusCompleted:
			st.Completed++
		case model.StatusPlanToPlay:
			st.PlanToPlay++
		case model.StatusDropped:
			st.Dropped++
		}
		if d.PlayTime != nil {
			st.TotalPlayTime += *d.PlayTime
		}
		if d.ProgressPercentage != nil {
			progressSum += *d.ProgressPercentage
			progressN++
		}
	}
	if progressN > 0 {
		st.AverageCompletion = float64(progressSum) / float64(progressN)
	}
	return st, nil
}

// owned loads instance id and hides it unless it belongs to userID.
func (s *GameInstanceService) owned(ctx context.Context, userID, id uint64) (model.GameInstance, error) {
	gi, err := s.instances.GetByID(ctx, id)
	if err != nil {
		return model.GameInstance{}, notFound(err, apperr.ErrGameInstanceNotFound)
	}
	if gi.UserID != userID {
		return model.GameInstance{}, apperr.ErrGameInstanceNotFound
	}
	return gi, nil
}

func checkProgress(p *int) error {
	if p != nil && (*p < 0 || *p > 100) {
		return apperr.ErrValidation
	}
	return nil
}
