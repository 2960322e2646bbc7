// Package events defines the wire shapes exchanged over the real-time
// channel. Payloads live here rather than in the gateway to avoid cyclic
// imports between the gateway and the game state machine.
package events

import (
	"github.com/joshuahaertel/friendexing/internal/models"
)

// Type discriminates outbound events.
type Type string

const (
	TypeUpdateScores  Type = "update_scores"
	TypeUpdateState   Type = "update_state"
	TypeUpdateGuesses Type = "update_guesses"
	TypeShowMessage   Type = "show_message"
	TypeShowAnswer    Type = "show_answer"
	TypeAddImages     Type = "add_images"
)

// Event is any outbound message. Concrete payloads carry their own Type field
// so a single json.Marshal produces the full wire shape.
type Event interface {
	EventType() Type
}

// UpdateScores pushes the current ranking. NumTopPlayers is set on the
// player-facing variant so clients know how many entries are ranking slots
// versus the requester's own appended score.
type UpdateScores struct {
	Type          Type                 `json:"type"`
	NumTopPlayers int                  `json:"num_top_players,omitempty"`
	Scores        []models.PlayerScore `json:"scores"`
}

func NewUpdateScores(numTop int, scores []models.PlayerScore) UpdateScores {
	return UpdateScores{Type: TypeUpdateScores, NumTopPlayers: numTop, Scores: scores}
}

func (e UpdateScores) EventType() Type { return e.Type }

// UpdateState pushes the current phase and, while guessing is open, the
// seconds remaining until the deadline.
type UpdateState struct {
	Type          Type         `json:"type"`
	Phase         models.Phase `json:"phase"`
	TimeRemaining float64      `json:"time_remaining"`
}

func NewUpdateState(phase models.Phase, timeRemaining float64) UpdateState {
	return UpdateState{Type: TypeUpdateState, Phase: phase, TimeRemaining: timeRemaining}
}

func (e UpdateState) EventType() Type { return e.Type }

// GuessCount is one entry of the admin-facing guess tally.
type GuessCount struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

// UpdateGuesses pushes the aggregated guess tally to the admin.
type UpdateGuesses struct {
	Type    Type         `json:"type"`
	Guesses []GuessCount `json:"guesses"`
}

func NewUpdateGuesses(guesses []GuessCount) UpdateGuesses {
	if guesses == nil {
		guesses = []GuessCount{}
	}
	return UpdateGuesses{Type: TypeUpdateGuesses, Guesses: guesses}
}

func (e UpdateGuesses) EventType() Type { return e.Type }

// ShowMessage surfaces a user-facing informational message. Validation
// rejections arrive this way, never as hard faults.
type ShowMessage struct {
	Type     Type            `json:"type"`
	Message  string          `json:"message"`
	Severity models.Severity `json:"severity"`
}

func NewShowMessage(message string, severity models.Severity) ShowMessage {
	return ShowMessage{Type: TypeShowMessage, Message: message, Severity: severity}
}

func (e ShowMessage) EventType() Type { return e.Type }

// ShowAnswer announces the reconciled answer for the round.
type ShowAnswer struct {
	Type   Type   `json:"type"`
	Answer string `json:"answer"`
}

func NewShowAnswer(answer string) ShowAnswer {
	return ShowAnswer{Type: TypeShowAnswer, Answer: answer}
}

func (e ShowAnswer) EventType() Type { return e.Type }

// ImageRef points clients at an image's HTTP artifacts.
type ImageRef struct {
	ImageURL     string `json:"image_url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// AddImages announces a batch's images to the game group.
type AddImages struct {
	Type   Type       `json:"type"`
	Images []ImageRef `json:"images"`
}

func NewAddImages(images []ImageRef) AddImages {
	return AddImages{Type: TypeAddImages, Images: images}
}

func (e AddImages) EventType() Type { return e.Type }
