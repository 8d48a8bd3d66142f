package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/game-tracker/internal/model"
)

// ReviewRepo persists reviews. (user_id, game_id) is unique.
type ReviewRepo struct {
	db *sql.DB
}

func NewReviewRepo(db *sql.DB) *ReviewRepo { return &ReviewRepo{db: db} }

const reviewDetailQuery = `SELECT r.id, r.user_id, r.game_id, r.rating, r.review_text, r.created_at, g.title, u.username
	FROM reviews r
	JOIN games g ON g.id = r.game_id
	JOIN users u ON u.id = r.user_id`

func scanReview(row rowScanner) (model.ReviewDetail, error) {
	var (
		d    model.ReviewDetail
		text sql.NullString
	)
	err := row.Scan(&d.ID, &d.UserID, &d.GameID, &d.Rating, &text, &d.CreatedAt, &d.GameTitle, &d.Username)
	d.ReviewText = text.String
	return d, err
}

// Create inserts a review; a second review for the same pair returns
// ErrDuplicate.
func (r *ReviewRepo) Create(ctx context.Context, rv model.Review) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO reviews (user_id, game_id, rating, review_text, created_at) VALUES (?,?,?,?,?)`,
		rv.UserID, rv.GameID, rv.Rating, nullString(rv.ReviewText), rv.CreatedAt)
	if err != nil {
		return 0, classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID fetches a review with display names.
func (r *ReviewRepo) GetByID(ctx context.Context, id uint64) (model.ReviewDetail, error) {
	return scanReview(r.db.QueryRowContext(ctx, reviewDetailQuery+` WHERE r.id=?`, id))
}

// Update changes rating and text only; created_at is immutable.
func (r *ReviewRepo) Update(ctx context.Context, id uint64, rating int, text string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE reviews SET rating=?, review_text=? WHERE id=?`, rating, nullString(text), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Delete removes a review.
func (r *ReviewRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reviews WHERE id=?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// ListByGame returns a game's reviews, newest first.
func (r *ReviewRepo) ListByGame(ctx context.Context, gameID uint64) ([]model.ReviewDetail, error) {
	return r.list(ctx, reviewDetailQuery+` WHERE r.game_id=? ORDER BY r.created_at DESC, r.id DESC`, gameID)
}

// ListByUser returns a user's reviews, newest first.
func (r *ReviewRepo) ListByUser(ctx context.Context, userID uint64) ([]model.ReviewDetail, error) {
	return r.list(ctx, reviewDetailQuery+` WHERE r.user_id=? ORDER BY r.created_at DESC, r.id DESC`, userID)
}

func (r *ReviewRepo) list(ctx context.Context, q string, args ...any) ([]model.ReviewDetail, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.ReviewDetail{}
	for rows.Next() {
		d, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
