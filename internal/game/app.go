package game

import (
	"context"
	"fmt"
	"iter"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/joshuahaertel/friendexing/internal/events"
	"github.com/joshuahaertel/friendexing/internal/metrics"
	"github.com/joshuahaertel/friendexing/internal/models"
	"github.com/joshuahaertel/friendexing/internal/store"
)

// GameStore defines what the state machine needs from the session store.
type GameStore interface {
	SaveGame(ctx context.Context, game *models.Game) error
	GetSettings(ctx context.Context, gameID string) (models.Settings, error)
	GetInfo(ctx context.Context, gameID string) (*models.Info, error)
	WriteInfo(ctx context.Context, gameID string, info models.Info) error

	AddPlayer(ctx context.Context, gameID string, player *models.Player) error
	SavePlayer(ctx context.Context, player *models.Player) error
	SavePlayerRanked(ctx context.Context, gameID string, player *models.Player) error
	GetPlayer(ctx context.Context, playerID uuid.UUID) (*models.Player, error)
	IsMember(ctx context.Context, gameID string, playerID uuid.UUID) (bool, error)
	TopPlayers(ctx context.Context, gameID string, limit int) ([]models.PlayerScore, error)
	ScoresForPlayer(ctx context.Context, gameID string, playerID uuid.UUID, limit int) ([]models.PlayerScore, error)
	IteratePlayers(ctx context.Context, gameID string) iter.Seq2[*models.Player, error]

	AddGuess(ctx context.Context, gameID, text string) error
	RemoveGuess(ctx context.Context, gameID, text string) error
	GuessTally(ctx context.Context, gameID string) ([]store.GuessCount, error)
	ClearGuesses(ctx context.Context, gameID string) error

	AddBatch(ctx context.Context, gameID string, batch *models.Batch) (bool, error)
	HasBatch(ctx context.Context, batchID string) (bool, error)
	GameBatches(ctx context.Context, gameID string) ([]string, error)
	BatchImageIDs(ctx context.Context, batchID string) ([]string, error)
}

// Broadcaster defines what the state machine needs from the fan-out layer.
// Sends are fire-and-forget; delivery ordering per connection follows the
// order calls are issued here.
type Broadcaster interface {
	ToGame(gameID string, event events.Event)
	ToAdmin(gameID string, event events.Event)
}

// BatchFetcher defines what the state machine needs from the image
// acquisition job: enqueue a fetch and await its result.
type BatchFetcher interface {
	Fetch(ctx context.Context, batchID string) (*models.Batch, error)
}

// App is the game state machine: the only component permitted to mutate
// game, player and phase state. Every mutating entry point takes the game's
// lock, so all mutations on one game serialize within the process.
type App struct {
	store     GameStore
	broadcast Broadcaster
	fetcher   BatchFetcher
	clock     clockwork.Clock
	locks     *lockTable
}

// NewApp creates a game App.
func NewApp(gameStore GameStore, broadcast Broadcaster, fetcher BatchFetcher, clock clockwork.Clock) *App {
	return &App{
		store:     gameStore,
		broadcast: broadcast,
		fetcher:   fetcher,
		clock:     clock,
		locks:     newLockTable(),
	}
}

// CreateGame builds and persists a game whose first player is the admin.
// The initial phase is wait.
func (a *App) CreateGame(ctx context.Context, guessTimeLimit int, shouldRandomizeFields bool, adminName string) (*models.Game, error) {
	if guessTimeLimit <= 0 {
		return nil, fmt.Errorf("guess time limit must be positive, got %d", guessTimeLimit)
	}
	g := models.NewGame(guessTimeLimit, shouldRandomizeFields, adminName)
	if err := a.store.SaveGame(ctx, g); err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}
	log.Info().
		Str("game_id", g.ID.String()).
		Int("guess_time_limit", guessTimeLimit).
		Msg("game created")
	return g, nil
}

// JoinGame adds a player to an existing game and pushes refreshed scores to
// the game group.
func (a *App) JoinGame(ctx context.Context, gameID string, name string) (*models.Player, error) {
	release := a.locks.acquire(gameID)
	defer release()

	if _, err := a.store.GetInfo(ctx, gameID); err == store.ErrNotFound {
		return nil, ErrGameExpired
	} else if err != nil {
		return nil, fmt.Errorf("join game: %w", err)
	}

	player := models.NewPlayer(name)
	if err := a.store.AddPlayer(ctx, gameID, player); err != nil {
		return nil, fmt.Errorf("join game: %w", err)
	}

	scores, err := a.store.TopPlayers(ctx, gameID, models.NumTopPlayers)
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID).Msg("failed to rank players after join")
	} else {
		a.broadcast.ToGame(gameID, events.NewUpdateScores(models.NumTopPlayers, scores))
	}
	return player, nil
}

// SubmitGuess admits a player's guess against the current phase and deadline.
// Only the last accepted guess is reflected in the player and the aggregate.
// The previous entry is removed before the new one is added: a reader of the
// aggregate never sees one player counted under two texts, and a failure
// between the two writes leaves the tally under-counted, never doubled.
func (a *App) SubmitGuess(ctx context.Context, gameID string, playerID uuid.UUID, rawText string, receivedAt time.Time) error {
	release := a.locks.acquire(gameID)
	defer release()

	info, err := a.store.GetInfo(ctx, gameID)
	if err == store.ErrNotFound {
		metrics.GuessesRejected.WithLabelValues("game_expired").Inc()
		return ErrGameExpired
	}
	if err != nil {
		return fmt.Errorf("submit guess: %w", err)
	}
	if info.Phase != models.PhasePlay {
		metrics.GuessesRejected.WithLabelValues("not_accepting").Inc()
		return ErrNotAcceptingGuesses
	}

	scoreDelta := int(math.Floor(info.GuessDeadline-unixSeconds(receivedAt))) + 1
	if scoreDelta <= 0 {
		metrics.GuessesRejected.WithLabelValues("deadline_missed").Inc()
		return ErrDeadlineMissed
	}

	member, err := a.store.IsMember(ctx, gameID, playerID)
	if err != nil {
		return fmt.Errorf("submit guess: %w", err)
	}
	if !member {
		metrics.GuessesRejected.WithLabelValues("not_in_game").Inc()
		return ErrNotInGame
	}

	player, err := a.store.GetPlayer(ctx, playerID)
	if err == store.ErrNotFound {
		metrics.GuessesRejected.WithLabelValues("not_in_game").Inc()
		return ErrNotInGame
	}
	if err != nil {
		return fmt.Errorf("submit guess: %w", err)
	}

	guess := Normalize(rawText)
	if guess == "" {
		metrics.GuessesRejected.WithLabelValues("empty").Inc()
		return ErrEmptyGuess
	}
	if guess == player.Guess {
		metrics.GuessesRejected.WithLabelValues("duplicate").Inc()
		return ErrDuplicateGuess
	}

	previous := player.Guess
	player.Guess = guess
	player.GuessID = uuid.NewString()
	player.PotentialPoints = scoreDelta
	if err := a.store.SavePlayer(ctx, player); err != nil {
		return fmt.Errorf("submit guess: %w", err)
	}
	if previous != "" {
		if err := a.store.RemoveGuess(ctx, gameID, previous); err != nil {
			return fmt.Errorf("submit guess: %w", err)
		}
	}
	if err := a.store.AddGuess(ctx, gameID, guess); err != nil {
		return fmt.Errorf("submit guess: %w", err)
	}
	metrics.GuessesAccepted.Inc()

	tally, err := a.store.GuessTally(ctx, gameID)
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID).Msg("failed to read guess tally")
		return nil
	}
	a.broadcast.ToAdmin(gameID, events.NewUpdateGuesses(toGuessCounts(tally)))
	return nil
}

// StartRound opens the guessing window: phase play with an absolute deadline
// of now plus the game's guess time limit.
func (a *App) StartRound(ctx context.Context, gameID string, actorID uuid.UUID) error {
	release := a.locks.acquire(gameID)
	defer release()

	info, err := a.store.GetInfo(ctx, gameID)
	if err == store.ErrNotFound {
		return ErrGameExpired
	}
	if err != nil {
		return fmt.Errorf("start round: %w", err)
	}
	if info.AdminID != actorID {
		return ErrNotAdmin
	}
	if info.Phase == models.PhasePlay {
		return ErrRoundInProgress
	}

	settings, err := a.store.GetSettings(ctx, gameID)
	if err == store.ErrNotFound {
		return ErrGameExpired
	}
	if err != nil {
		return fmt.Errorf("start round: %w", err)
	}

	info.Phase = models.PhasePlay
	info.GuessDeadline = unixSeconds(a.clock.Now()) + float64(settings.GuessTimeLimit)
	if err := a.store.WriteInfo(ctx, gameID, *info); err != nil {
		return fmt.Errorf("start round: %w", err)
	}

	a.broadcast.ToGame(gameID, events.NewUpdateState(models.PhasePlay, float64(settings.GuessTimeLimit)))
	log.Info().Str("game_id", gameID).Float64("deadline", info.GuessDeadline).Msg("round started")
	return nil
}

// ResolveRound reconciles every player's guess against the accepted answers,
// applies potential points, clears round state, transitions to wait and
// broadcasts the answer plus fresh scores to the whole group. A round with
// zero guesses resolves cleanly.
func (a *App) ResolveRound(ctx context.Context, gameID string, actorID uuid.UUID, displayAnswer string, acceptedAnswers []string) error {
	release := a.locks.acquire(gameID)
	defer release()

	info, err := a.store.GetInfo(ctx, gameID)
	if err == store.ErrNotFound {
		return ErrGameExpired
	}
	if err != nil {
		return fmt.Errorf("resolve round: %w", err)
	}
	if info.AdminID != actorID {
		return ErrNotAdmin
	}

	accepted := make(map[string]struct{}, len(acceptedAnswers))
	for _, answer := range acceptedAnswers {
		accepted[Normalize(answer)] = struct{}{}
	}

	for player, err := range a.store.IteratePlayers(ctx, gameID) {
		if err != nil {
			return fmt.Errorf("resolve round: %w", err)
		}
		if player.Guess != "" {
			if _, ok := accepted[player.Guess]; ok {
				player.Score += player.PotentialPoints
			}
		}
		player.Guess = ""
		player.GuessID = ""
		player.PotentialPoints = 0
		if err := a.store.SavePlayerRanked(ctx, gameID, player); err != nil {
			return fmt.Errorf("resolve round: %w", err)
		}
	}

	if err := a.store.ClearGuesses(ctx, gameID); err != nil {
		return fmt.Errorf("resolve round: %w", err)
	}

	info.Phase = models.PhaseWait
	info.GuessDeadline = 0
	if err := a.store.WriteInfo(ctx, gameID, *info); err != nil {
		return fmt.Errorf("resolve round: %w", err)
	}
	metrics.RoundsResolved.Inc()

	scores, err := a.store.TopPlayers(ctx, gameID, models.NumTopPlayers)
	if err != nil {
		return fmt.Errorf("resolve round: %w", err)
	}
	a.broadcast.ToGame(gameID, events.NewShowAnswer(displayAnswer))
	a.broadcast.ToGame(gameID, events.NewUpdateScores(models.NumTopPlayers, scores))
	a.broadcast.ToGame(gameID, events.NewUpdateState(models.PhaseWait, 0))
	a.broadcast.ToAdmin(gameID, events.NewUpdateGuesses(nil))
	log.Info().Str("game_id", gameID).Str("answer", displayAnswer).Msg("round resolved")
	return nil
}

// AddBatch parses the external batch reference, fetches the batch through
// the acquisition job unless its artifacts are already cached, attaches it to
// the game and announces the images. Attaching the same batch twice re-sends
// the same image list, nothing more.
func (a *App) AddBatch(ctx context.Context, gameID string, actorID uuid.UUID, batchRef string) error {
	batchID, err := ParseBatchRef(batchRef)
	if err != nil {
		return err
	}

	info, err := a.store.GetInfo(ctx, gameID)
	if err == store.ErrNotFound {
		return ErrGameExpired
	}
	if err != nil {
		return fmt.Errorf("add batch: %w", err)
	}
	if info.AdminID != actorID {
		return ErrNotAdmin
	}

	cached, err := a.store.HasBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("add batch: %w", err)
	}

	var batch *models.Batch
	if cached {
		imageIDs, err := a.store.BatchImageIDs(ctx, batchID)
		if err != nil {
			return fmt.Errorf("add batch: %w", err)
		}
		batch = &models.Batch{ID: batchID}
		for _, id := range imageIDs {
			batch.Images = append(batch.Images, &models.Image{ID: id})
		}
	} else {
		batch, err = a.fetcher.Fetch(ctx, batchID)
		if err != nil {
			return fmt.Errorf("fetch batch %s: %w", batchID, err)
		}
	}

	release := a.locks.acquire(gameID)
	defer release()

	if _, err := a.store.AddBatch(ctx, gameID, batch); err != nil {
		return fmt.Errorf("add batch: %w", err)
	}

	refs := make([]events.ImageRef, 0, len(batch.Images))
	for _, image := range batch.Images {
		refs = append(refs, imageRef(image.ID))
	}
	a.broadcast.ToGame(gameID, events.NewAddImages(refs))
	log.Info().Str("game_id", gameID).Str("batch_id", batchID).Int("images", len(refs)).Msg("batch attached")
	return nil
}

// Snapshot assembles the connect-time push for one participant, in the order
// the contract requires: images, then scores, then phase state. Admins also
// receive the current guess tally. The game lock is held so the tally read
// never lands between the two writes of a guess replacement.
func (a *App) Snapshot(ctx context.Context, gameID string, playerID uuid.UUID, isAdmin bool) ([]events.Event, error) {
	release := a.locks.acquire(gameID)
	defer release()

	info, err := a.store.GetInfo(ctx, gameID)
	if err == store.ErrNotFound {
		return nil, ErrGameExpired
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	batchIDs, err := a.store.GameBatches(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	var refs []events.ImageRef
	for _, batchID := range batchIDs {
		imageIDs, err := a.store.BatchImageIDs(ctx, batchID)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		for _, id := range imageIDs {
			refs = append(refs, imageRef(id))
		}
	}

	scores, err := a.store.ScoresForPlayer(ctx, gameID, playerID, models.NumTopPlayers)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	remaining := 0.0
	if info.Phase == models.PhasePlay {
		remaining = info.GuessDeadline - unixSeconds(a.clock.Now())
		if remaining < 0 {
			remaining = 0
		}
	}

	snapshot := []events.Event{
		events.NewAddImages(refs),
		events.NewUpdateScores(models.NumTopPlayers, scores),
		events.NewUpdateState(info.Phase, remaining),
	}
	if isAdmin {
		tally, err := a.store.GuessTally(ctx, gameID)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		snapshot = append(snapshot, events.NewUpdateGuesses(toGuessCounts(tally)))
	}
	return snapshot, nil
}

// Info exposes the current phase record for HTTP-boundary callers.
func (a *App) Info(ctx context.Context, gameID string) (*models.Info, error) {
	info, err := a.store.GetInfo(ctx, gameID)
	if err == store.ErrNotFound {
		return nil, ErrGameExpired
	}
	return info, err
}

// Normalize canonicalizes guess and answer text: trimmed and lowercased.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// ParseBatchRef extracts the opaque batch id from an external reference. The
// reference is either a service URL carrying a batchid query parameter or the
// bare id itself.
func ParseBatchRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrBadBatchRef
	}
	if strings.Contains(ref, "://") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", ErrBadBatchRef
		}
		if id := u.Query().Get("batchid"); id != "" {
			return id, nil
		}
		return "", ErrBadBatchRef
	}
	if strings.ContainsAny(ref, " \t\n") {
		return "", ErrBadBatchRef
	}
	return ref, nil
}

func imageRef(imageID string) events.ImageRef {
	return events.ImageRef{
		ImageURL:     "/images/" + imageID,
		ThumbnailURL: "/images/" + imageID + "/thumbnail",
	}
}

func toGuessCounts(tally []store.GuessCount) []events.GuessCount {
	counts := make([]events.GuessCount, len(tally))
	for i, entry := range tally {
		counts[i] = events.GuessCount{Text: entry.Text, Count: entry.Count}
	}
	return counts
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
