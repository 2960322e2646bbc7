package models

import "github.com/google/uuid"

// Player is one participant in a game. Guess, GuessID and PotentialPoints are
// round-scoped: they are set when a guess is accepted and cleared by round
// resolution. Score only ever grows, and only at round resolution.
type Player struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Score           int       `json:"score"`
	Guess           string    `json:"guess"`
	GuessID         string    `json:"guess_id"`
	PotentialPoints int       `json:"potential_points"`
}

// NewPlayer builds a player with a fresh id and zero score.
func NewPlayer(name string) *Player {
	return &Player{
		ID:   uuid.New(),
		Name: name,
	}
}

// PlayerScore is the ranking summary pushed to clients. PlayerID stays
// server-side; the wire shape is only name and score.
type PlayerScore struct {
	Name     string    `json:"name"`
	Score    int       `json:"score"`
	PlayerID uuid.UUID `json:"-"`
}
