package model

import "time"

// Review mirrors the `reviews` table; one review per (user, game).
// CreatedAt is set on insert and never updated.
type Review struct {
	ID         uint64    `json:"id"`
	UserID     uint64    `json:"user_id"`
	GameID     uint64    `json:"game_id"`
	Rating     int       `json:"rating"`
	ReviewText string    `json:"review_text"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReviewDetail adds the display names used by review listings.
type ReviewDetail struct {
	Review
	GameTitle string `json:"game_title"`
	Username  string `json:"username"`
}
