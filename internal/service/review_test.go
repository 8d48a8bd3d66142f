package service

import (
	"context"
	"errors"
	"testing"

	"github.com/iliyamo/game-tracker/internal/apperr"
	"github.com/iliyamo/game-tracker/internal/model"
)

func newReviewService(t *testing.T) (*ReviewService, *memInstances) {
	t.Helper()
	instances := newMemInstances(newMemGames())
	return NewReviewService(newMemReviews(), instances, newTestClock().Now), instances
}

func TestCreateReview(t *testing.T) {
	svc, instances := newReviewService(t)
	ctx := context.Background()
	instances.Create(ctx, model.GameInstance{UserID: 1, GameID: 10, Status: model.StatusCompleted})

	r, err := svc.Create(ctx, 1, ReviewInput{GameID: 10, Rating: 5, ReviewText: "  great  "})
	if err != nil {
		t.Fatal(err)
	}
	if r.ID == 0 || r.Rating != 5 || r.ReviewText != "great" || r.CreatedAt.IsZero() {
		t.Errorf("review = %+v", r)
	}

	if _, err := svc.Create(ctx, 1, ReviewInput{GameID: 10, Rating: 3}); !errors.Is(err, apperr.ErrDuplicateReview) {
		t.Errorf("duplicate err = %v", err)
	}
	if _, err := svc.Create(ctx, 2, ReviewInput{GameID: 10, Rating: 3}); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("not owned err = %v", err)
	}
}

func TestReviewRatingBounds(t *testing.T) {
	svc, instances := newReviewService(t)
	ctx := context.Background()
	instances.Create(ctx, model.GameInstance{UserID: 1, GameID: 10})
	for _, rating := range []int{0, 6, -1} {
		if _, err := svc.Create(ctx, 1, ReviewInput{GameID: 10, Rating: rating}); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("rating %d: err = %v", rating, err)
		}
	}
}

func TestUpdateAndDeleteReview(t *testing.T) {
	svc, instances := newReviewService(t)
	ctx := context.Background()
	instances.Create(ctx, model.GameInstance{UserID: 1, GameID: 10})
	r, err := svc.Create(ctx, 1, ReviewInput{GameID: 10, Rating: 2, ReviewText: "meh"})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.Update(ctx, 1, r.ID, 4, "grew on me")
	if err != nil {
		t.Fatal(err)
	}
	if updated.Rating != 4 || updated.ReviewText != "grew on me" || !updated.CreatedAt.Equal(r.CreatedAt) {
		t.Errorf("updated = %+v", updated)
	}
	if _, err := svc.Update(ctx, 2, r.ID, 1, "hijack"); !errors.Is(err, apperr.ErrReviewNotFound) {
		t.Errorf("foreign update err = %v", err)
	}
	if err := svc.Delete(ctx, Actor{UserID: 2, Role: model.RoleUser}, r.ID); !errors.Is(err, apperr.ErrReviewNotFound) {
		t.Errorf("foreign delete err = %v", err)
	}
	if err := svc.Delete(ctx, Actor{UserID: 3, Role: model.RoleAdmin}, r.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := svc.Get(ctx, r.ID); !errors.Is(err, apperr.ErrReviewNotFound) {
		t.Errorf("get after delete err = %v", err)
	}
}

func TestListReviews(t *testing.T) {
	svc, instances := newReviewService(t)
	ctx := context.Background()
	for _, uid := range []uint64{1, 2} {
		instances.Create(ctx, model.GameInstance{UserID: uid, GameID: 10})
		if _, err := svc.Create(ctx, uid, ReviewInput{GameID: 10, Rating: 4}); err != nil {
			t.Fatal(err)
		}
	}
	byGame, _ := svc.ListByGame(ctx, 10)
	byUser, _ := svc.ListByUser(ctx, 2)
	if len(byGame) != 2 || len(byUser) != 1 || byUser[0].UserID != 2 {
		t.Errorf("by game = %d, by user = %+v", len(byGame), byUser)
	}
}
