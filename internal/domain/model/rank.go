package model

import "time"

// Reorder is the outcome of moving a game to a new position. Displaced is
// set when the target slot was occupied and its game took the vacated slot.
type Reorder struct {
	Moved     Game  `json:"moved"`
	Displaced *Game `json:"displaced,omitempty"`
}

// PositionHistory counts clicks for one (game, position) pair.
type PositionHistory struct {
	GameID         string    `json:"gameId"`
	Position       int       `json:"position"`
	ClickCount     int64     `json:"clickCount"`
	FirstClickedAt time.Time `json:"firstClickedAt"`
	LastClickedAt  time.Time `json:"lastClickedAt"`
}

// ClickResult is returned after recording a click.
type ClickResult struct {
	GameID     string `json:"gameId"`
	Position   int    `json:"position"`
	ClickCount int64  `json:"clickCount"`
}
