package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/game-tracker/internal/apperr"
	"github.com/iliyamo/game-tracker/internal/model"
	"github.com/iliyamo/game-tracker/internal/repository"
)

// ReviewService manages reviews. Only games in the reviewer's library can
// be reviewed, once each.
type ReviewService struct {
	reviews   ReviewStore
	instances InstanceStore
	now       func() time.Time
}

func NewReviewService(reviews ReviewStore, instances InstanceStore, now func() time.Time) *ReviewService {
	return &ReviewService{reviews: reviews, instances: instances, now: clockOrDefault(now)}
}

// ReviewInput is the payload of Create and Update.
type ReviewInput struct {
	GameID     uint64
	Rating     int
	ReviewText string
}

// Create stores a review of in.GameID by userID. The user must own the
// game (apperr.ErrUnauthorized) and may not have reviewed it already
// (apperr.ErrDuplicateReview).
func (s *ReviewService) Create(ctx context.Context, userID uint64, in ReviewInput) (model.ReviewDetail, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return model.ReviewDetail{}, apperr.ErrValidation
	}
	if _, err := s.instances.GetByUserAndGame(ctx, userID, in.GameID); err != nil {
		return model.ReviewDetail{}, notFound(err, apperr.ErrUnauthorized)
	}
	id, err := s.reviews.Create(ctx, model.Review{
		UserID:     userID,
		GameID:     in.GameID,
		Rating:     in.Rating,
		ReviewText: strings.TrimSpace(in.ReviewText),
		CreatedAt:  s.now().UTC(),
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return model.ReviewDetail{}, apperr.ErrDuplicateReview
	}
	if err != nil {
		return model.ReviewDetail{}, err
	}
	return s.Get(ctx, id)
}

// Get returns a review by id.
func (s *ReviewService) Get(ctx context.Context, id uint64) (model.ReviewDetail, error) {
	r, err := s.reviews.GetByID(ctx, id)
	return r, notFound(err, apperr.ErrReviewNotFound)
}

// Update changes rating and text of the user's own review. CreatedAt is
// never touched.
func (s *ReviewService) Update(ctx context.Context, userID, id uint64, rating int, text string) (model.ReviewDetail, error) {
	if rating < 1 || rating > 5 {
		return model.ReviewDetail{}, apperr.ErrValidation
	}
	if _, err := s.owned(ctx, userID, id); err != nil {
		return model.ReviewDetail{}, err
	}
	if err := s.reviews.Update(ctx, id, rating, strings.TrimSpace(text)); err != nil {
		return model.ReviewDetail{}, notFound(err, apperr.ErrReviewNotFound)
	}
	return s.Get(ctx, id)
}

// Delete removes the user's own review. Admins may remove any review.
func (s *ReviewService) Delete(ctx context.Context, actor Actor, id uint64) error {
	if !actor.IsAdmin() {
		if _, err := s.owned(ctx, actor.UserID, id); err != nil {
			return err
		}
	}
	return notFound(s.reviews.Delete(ctx, id), apperr.ErrReviewNotFound)
}

// ListByGame returns the reviews of a game.
func (s *ReviewService) ListByGame(ctx context.Context, gameID uint64) ([]model.ReviewDetail, error) {
	return s.reviews.ListByGame(ctx, gameID)
}

// ListByUser returns the reviews written by a user.
func (s *ReviewService) ListByUser(ctx context.Context, userID uint64) ([]model.ReviewDetail, error) {
	return s.reviews.ListByUser(ctx, userID)
}

// owned loads review id and hides it unless it belongs to userID.
func (s *ReviewService) owned(ctx context.Context, userID, id uint64) (model.ReviewDetail, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return r, err
	}
	if r.UserID != userID {
		return model.ReviewDetail{}, apperr.ErrReviewNotFound
	}
	return r, nil
}
