package models

import (
	"time"

	"github.com/google/uuid"
)

// Phase defines the round phase of a game.
type Phase string

const (
	PhaseWait Phase = "wait"
	PhasePlay Phase = "play"
)

// GameExpiry is the idle window after which every key belonging to a game
// expires. Expiry is the only teardown; there is no explicit deletion.
const GameExpiry = 2 * time.Hour

// NumTopPlayers is how many ranked players are pushed to clients.
const NumTopPlayers = 3

// Settings holds the per-game configuration chosen by the admin at creation.
type Settings struct {
	GuessTimeLimit        int  `json:"guess_time_limit"` // seconds
	ShouldRandomizeFields bool `json:"should_randomize_fields"`
}

// Info is the single phase record a game owns. GuessDeadline is an absolute
// unix timestamp (fractional seconds) and is only meaningful while the phase
// is PhasePlay.
type Info struct {
	Phase         Phase     `json:"phase"`
	AdminID       uuid.UUID `json:"admin_id"`
	GuessDeadline float64   `json:"guess_deadline"`
}

// Game represents one trivia session: one admin, N players, a batch list and
// exactly one phase record.
type Game struct {
	ID       uuid.UUID `json:"id"`
	Settings Settings  `json:"settings"`
	Players  []*Player `json:"players"` // first player is the admin
	Batches  []*Batch  `json:"batches"`
	Info     Info      `json:"info"`
}

// NewGame builds a game in the wait phase whose first player is the admin.
func NewGame(guessTimeLimit int, shouldRandomizeFields bool, adminName string) *Game {
	admin := NewPlayer(adminName)
	return &Game{
		ID: uuid.New(),
		Settings: Settings{
			GuessTimeLimit:        guessTimeLimit,
			ShouldRandomizeFields: shouldRandomizeFields,
		},
		Players: []*Player{admin},
		Info: Info{
			Phase:   PhaseWait,
			AdminID: admin.ID,
		},
	}
}

// Admin returns the game's admin player.
func (g *Game) Admin() *Player {
	return g.Players[0]
}
