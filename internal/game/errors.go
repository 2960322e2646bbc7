package game

import "errors"

// Named rejections returned by the state machine. These are converted to
// user-facing messages at the gateway boundary, never raised as hard faults.
var (
	// ErrGameExpired means the game's keys are gone from the session store;
	// the user must restart the flow.
	ErrGameExpired = errors.New("game expired")

	// ErrNotAcceptingGuesses means the game is not in the play phase.
	ErrNotAcceptingGuesses = errors.New("not accepting answers")

	// ErrDeadlineMissed means the guess arrived at or after the deadline.
	ErrDeadlineMissed = errors.New("deadline missed")

	// ErrDuplicateGuess means the normalized guess equals the player's
	// current guess. Informational, not a scoring rule.
	ErrDuplicateGuess = errors.New("duplicate guess")

	// ErrEmptyGuess means the guess normalized to nothing. Rejected here,
	// not just at the gateway, so the aggregate never counts an empty text.
	ErrEmptyGuess = errors.New("empty guess")

	// ErrNotInGame means the submitting player is not in the game's player
	// set.
	ErrNotInGame = errors.New("player not in game")

	// ErrNotAdmin means a phase transition or batch attach came from a
	// non-admin connection.
	ErrNotAdmin = errors.New("not the game admin")

	// ErrRoundInProgress means a round was started while one is open.
	ErrRoundInProgress = errors.New("round already in progress")

	// ErrBadBatchRef means the external batch reference could not be parsed.
	ErrBadBatchRef = errors.New("bad batch reference")
)
