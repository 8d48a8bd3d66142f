package model

import "time"

// GameStatus is the tracking state of a game instance.
type GameStatus string

const (
	StatusPlaying    GameStatus = "PLAYING"
	StatusCompleted  GameStatus = "COMPLETED"
	StatusPlanToPlay GameStatus = "PLAN_TO_PLAY"
	StatusDropped    GameStatus = "DROPPED"
)

// Valid reports whether s is a known status.
func (s GameStatus) Valid() bool {
	switch s {
	case StatusPlaying, StatusCompleted, StatusPlanToPlay, StatusDropped:
		return true
	}
	return false
}

// GameInstance is a user's tracking record for one game, stored in
// `game_instances`. It references the user and the game by id only;
// (UserID, GameID) is unique.
type GameInstance struct {
	ID                 uint64     `json:"id"`
	UserID             uint64     `json:"user_id"`
	GameID             uint64     `json:"game_id"`
	Status             GameStatus `json:"status"`
	ProgressPercentage *int       `json:"progress_percentage,omitempty"`
	PlayTime           *int       `json:"play_time,omitempty"` // minutes
	LastPlayed         *time.Time `json:"last_played,omitempty"`
	AddedAt            time.Time  `json:"added_at"`
	Notes              string     `json:"notes,omitempty"`
}

// GameInstanceDetail joins an instance with the game it tracks for
// listing endpoints.
type GameInstanceDetail struct {
	GameInstance
	Game Game `json:"game"`
}

// GameInstanceStats summarises a user's library.
type GameInstanceStats struct {
	TotalGames        int     `json:"total_games"`
	Playing           int     `json:"playing"`
	Completed         int     `json:"completed"`
	PlanToPlay        int     `json:"plan_to_play"`
	Dropped           int     `json:"dropped"`
	TotalPlayTime     int     `json:"total_play_time"`
	AverageCompletion float64 `json:"average_completion"`
}
