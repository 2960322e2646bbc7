package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/joshuahaertel/friendexing/internal/events"
	"github.com/joshuahaertel/friendexing/internal/game"
	"github.com/joshuahaertel/friendexing/internal/models"
)

// GameHandler defines what the gateway needs from the game state machine.
type GameHandler interface {
	SubmitGuess(ctx context.Context, gameID string, playerID uuid.UUID, rawText string, receivedAt time.Time) error
	StartRound(ctx context.Context, gameID string, actorID uuid.UUID) error
	ResolveRound(ctx context.Context, gameID string, actorID uuid.UUID, displayAnswer string, acceptedAnswers []string) error
	AddBatch(ctx context.Context, gameID string, actorID uuid.UUID, batchRef string) error
	Snapshot(ctx context.Context, gameID string, playerID uuid.UUID, isAdmin bool) ([]events.Event, error)
	Info(ctx context.Context, gameID string) (*models.Info, error)
}

// GameRouter dispatches inbound frames to the state machine and converts its
// named rejections into user-facing messages on the originating connection.
type GameRouter struct {
	handler GameHandler
	clock   clockwork.Clock
	timeout time.Duration
}

// NewGameRouter creates a router around a game handler.
func NewGameRouter(handler GameHandler, clock clockwork.Clock) *GameRouter {
	return &GameRouter{
		handler: handler,
		clock:   clock,
		timeout: 10 * time.Second,
	}
}

// Route implements Router.
func (r *GameRouter) Route(conn *Connection, payload []byte) {
	if conn.IsAdmin {
		r.routeAdmin(conn, payload)
		return
	}
	r.routePlayer(conn, payload)
}

func (r *GameRouter) routePlayer(conn *Connection, payload []byte) {
	receivedAt := r.clock.Now()
	msg, err := events.ParsePlayerMessage(payload)
	if err != nil {
		sendDirect(conn, events.NewShowMessage("That message could not be understood.", models.SeverityWarning))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	r.report(conn, r.handler.SubmitGuess(ctx, conn.GameID, conn.PlayerID, msg.Guess, receivedAt))
}

func (r *GameRouter) routeAdmin(conn *Connection, payload []byte) {
	msg, err := events.ParseAdminMessage(payload)
	if err != nil {
		sendDirect(conn, events.NewShowMessage("That message could not be understood.", models.SeverityWarning))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	switch msg.Kind {
	case events.KindSubmitAnswer:
		r.report(conn, r.handler.ResolveRound(ctx, conn.GameID, conn.PlayerID,
			msg.SubmitAnswer.DisplayAnswer, msg.SubmitAnswer.CorrectAnswers))
	case events.KindUpdatePhase:
		r.report(conn, r.handler.StartRound(ctx, conn.GameID, conn.PlayerID))
	case events.KindAddBatch:
		// Batch acquisition awaits the fetch worker; run it off the read
		// pump so the admin connection stays responsive.
		go func(gameID string, actorID uuid.UUID, batchURL string) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			r.report(conn, r.handler.AddBatch(ctx, gameID, actorID, batchURL))
		}(conn.GameID, conn.PlayerID, msg.AddBatch.BatchURL)
	case events.KindGuess:
		sendDirect(conn, events.NewShowMessage("Admins cannot guess.", models.SeverityWarning))
	}
}

// report maps a state machine result onto the originating connection.
// Rejections become informational messages, never hard faults.
func (r *GameRouter) report(conn *Connection, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, game.ErrGameExpired):
		sendDirect(conn, events.NewShowMessage("This game has expired. Please create a new one.", models.SeverityDanger))
	case errors.Is(err, game.ErrNotAcceptingGuesses):
		sendDirect(conn, events.NewShowMessage("The round has not started yet.", models.SeverityWarning))
	case errors.Is(err, game.ErrDeadlineMissed):
		sendDirect(conn, events.NewShowMessage("Too slow! The guessing window closed.", models.SeverityWarning))
	case errors.Is(err, game.ErrDuplicateGuess):
		sendDirect(conn, events.NewShowMessage("You already submitted that guess.", models.SeverityInfo))
	case errors.Is(err, game.ErrEmptyGuess):
		sendDirect(conn, events.NewShowMessage("A guess needs some text.", models.SeverityWarning))
	case errors.Is(err, game.ErrNotInGame):
		sendDirect(conn, events.NewShowMessage("You are not part of this game.", models.SeverityDanger))
	case errors.Is(err, game.ErrNotAdmin):
		sendDirect(conn, events.NewShowMessage("Only the game admin can do that.", models.SeverityDanger))
	case errors.Is(err, game.ErrRoundInProgress):
		sendDirect(conn, events.NewShowMessage("A round is already in progress.", models.SeverityWarning))
	case errors.Is(err, game.ErrBadBatchRef):
		sendDirect(conn, events.NewShowMessage("That batch reference could not be understood.", models.SeverityDanger))
	default:
		log.Error().Err(err).
			Str("connection_id", conn.ID).
			Str("game_id", conn.GameID).
			Msg("request failed")
		sendDirect(conn, events.NewShowMessage("Something went wrong. Please try again.", models.SeverityDanger))
	}
}

// sendDirect queues an event on a single connection, bypassing the groups.
func sendDirect(conn *Connection, event events.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("connection_id", conn.ID).Msg("failed to marshal direct event")
		return
	}
	conn.trySend(payload)
}
