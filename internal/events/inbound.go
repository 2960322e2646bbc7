package events

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind discriminates inbound messages.
type Kind string

const (
	KindGuess        Kind = "guess"
	KindSubmitAnswer Kind = "submit_answer"
	KindUpdatePhase  Kind = "update_phase"
	KindAddBatch     Kind = "add_batch"
)

// PlayerMessage is the only inbound shape on a player connection.
type PlayerMessage struct {
	Guess string `json:"guess"`
}

// ParsePlayerMessage decodes a player frame. Player frames carry no type
// discriminator, only the guess text.
func ParsePlayerMessage(data []byte) (PlayerMessage, error) {
	var msg PlayerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return PlayerMessage{}, fmt.Errorf("decode player message: %w", err)
	}
	if strings.TrimSpace(msg.Guess) == "" {
		return PlayerMessage{}, fmt.Errorf("player message has no guess")
	}
	return msg, nil
}

// AdminMessage is the tagged union of admin frames. Exactly one payload field
// is set, matching Kind.
type AdminMessage struct {
	Kind         Kind
	SubmitAnswer *SubmitAnswer
	AddBatch     *AddBatch
}

// SubmitAnswer carries the reconciled answer for the current round.
type SubmitAnswer struct {
	DisplayAnswer  string   `json:"display_answer"`
	CorrectAnswers []string `json:"correct_answers"`
}

// AddBatch asks the server to fetch and attach an external image batch.
type AddBatch struct {
	BatchURL string `json:"batch_url"`
}

// ParseAdminMessage decodes an admin frame by its type discriminator. The
// switch is exhaustive over the admin message kinds; anything else is an
// error for the caller to surface.
func ParseAdminMessage(data []byte) (AdminMessage, error) {
	var envelope struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return AdminMessage{}, fmt.Errorf("decode admin message: %w", err)
	}

	switch envelope.Type {
	case KindSubmitAnswer:
		var payload SubmitAnswer
		if err := json.Unmarshal(data, &payload); err != nil {
			return AdminMessage{}, fmt.Errorf("decode submit_answer: %w", err)
		}
		return AdminMessage{Kind: KindSubmitAnswer, SubmitAnswer: &payload}, nil

	case KindUpdatePhase:
		return AdminMessage{Kind: KindUpdatePhase}, nil

	case KindAddBatch:
		var payload AddBatch
		if err := json.Unmarshal(data, &payload); err != nil {
			return AdminMessage{}, fmt.Errorf("decode add_batch: %w", err)
		}
		return AdminMessage{Kind: KindAddBatch, AddBatch: &payload}, nil

	default:
		return AdminMessage{}, fmt.Errorf("unknown admin message type %q", envelope.Type)
	}
}
