package model

import "time"

// GameSource identifies the provider a game row was imported from.
type GameSource string

const (
	SourceRAWG   GameSource = "RAWG"
	SourceSteam  GameSource = "STEAM"
	SourceManual GameSource = "MANUAL"
)

// Game mirrors the `games` table. (ExternalID, Source) is unique and is
// the key every synchronizer upserts on; the same title imported from two
// providers yields two rows.
type Game struct {
	ID              uint64     `json:"id"`
	Title           string     `json:"title"`
	Slug            string     `json:"slug"`
	ExternalID      string     `json:"external_id"`
	Source          GameSource `json:"source"`
	BackgroundImage string     `json:"background_image,omitempty"`
	Rating          *float64   `json:"rating,omitempty"`
	Genres          []string   `json:"genres"`
	ReleaseDate     *time.Time `json:"release_date,omitempty"`
	Description     string     `json:"description,omitempty"`
	LastSyncedAt    *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
