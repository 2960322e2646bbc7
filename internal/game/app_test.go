package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/joshuahaertel/friendexing/internal/events"
	"github.com/joshuahaertel/friendexing/internal/models"
	"github.com/joshuahaertel/friendexing/internal/store"
)

type recordedEvent struct {
	audience string // "game" or "admin"
	gameID   string
	event    events.Event
}

type recordingBus struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *recordingBus) ToGame(gameID string, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{audience: "game", gameID: gameID, event: event})
}

func (b *recordingBus) ToAdmin(gameID string, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{audience: "admin", gameID: gameID, event: event})
}

func (b *recordingBus) all() []recordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]recordedEvent(nil), b.events...)
}

func (b *recordingBus) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	batches map[string]*models.Batch
	calls   int
	err     error
}

func (f *fakeFetcher) Fetch(_ context.Context, batchID string) (*models.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	batch, ok := f.batches[batchID]
	if !ok {
		return nil, errors.New("unknown batch")
	}
	return batch, nil
}

type fixture struct {
	app     *App
	store   *store.Store
	clock   *clockwork.FakeClock
	bus     *recordingBus
	fetcher *fakeFetcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	st := store.NewStore(rdb)
	clock := clockwork.NewFakeClock()
	bus := &recordingBus{}
	fetcher := &fakeFetcher{batches: map[string]*models.Batch{}}
	return &fixture{
		app:     NewApp(st, bus, fetcher, clock),
		store:   st,
		clock:   clock,
		bus:     bus,
		fetcher: fetcher,
	}
}

// startedGame creates a 30 second game with one joined player and an open
// round, returning the game and the player.
func startedGame(t *testing.T, f *fixture) (*models.Game, *models.Player) {
	t.Helper()
	ctx := context.Background()
	g, err := f.app.CreateGame(ctx, 30, false, "host")
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	player, err := f.app.JoinGame(ctx, g.ID.String(), "ana")
	if err != nil {
		t.Fatalf("JoinGame: %v", err)
	}
	if err := f.app.StartRound(ctx, g.ID.String(), g.Admin().ID); err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	f.bus.reset()
	return g, player
}

func TestSubmitGuessAwardsTimeBasedPotentialPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, player := startedGame(t, f)

	f.clock.Advance(5 * time.Second)
	err := f.app.SubmitGuess(ctx, g.ID.String(), player.ID, "  Paris  ", f.clock.Now())
	if err != nil {
		t.Fatalf("SubmitGuess: %v", err)
	}

	got, err := f.store.GetPlayer(ctx, player.ID)
	if err != nil {
		t.Fatalf("GetPlayer: %v", err)
	}
	if got.Guess != "paris" {
		t.Errorf("stored guess = %q, want normalized %q", got.Guess, "paris")
	}
	// 25 whole seconds remain of the 30 second window, plus the
	// one-point floor for answering at all.
	if got.PotentialPoints != 26 {
		t.Errorf("potential points = %d, want 26", got.PotentialPoints)
	}
	if got.GuessID == "" {
		t.Error("guess id not assigned")
	}
}

func TestSubmitGuessRejectsDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, player := startedGame(t, f)

	if err := f.app.SubmitGuess(ctx, g.ID.String(), player.ID, "Paris", f.clock.Now()); err != nil {
		t.Fatalf("SubmitGuess: %v", err)
	}
	err := f.app.SubmitGuess(ctx, g.ID.String(), player.ID, "  PARIS ", f.clock.Now())
	if err != ErrDuplicateGuess {
		t.Fatalf("SubmitGuess error = %v, want ErrDuplicateGuess", err)
	}

	tally, err := f.store.GuessTally(ctx, g.ID.String())
	if err != nil {
		t.Fatalf("GuessTally: %v", err)
	}
	if len(tally) != 1 || tally[0].Count != 1 {
		t.Errorf("tally after duplicate = %v, want single paris entry", tally)
	}
}

func TestSubmitGuessRejectsAfterDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, player := startedGame(t, f)

	f.clock.Advance(31 * time.Second)
	err := f.app.SubmitGuess(ctx, g.ID.String(), player.ID, "Paris", f.clock.Now())
	if err != ErrDeadlineMissed {
		t.Fatalf("SubmitGuess error = %v, want ErrDeadlineMissed", err)
	}

	// A rejected guess must leave no trace.
	got, err := f.store.GetPlayer(ctx, player.ID)
	if err != nil {
		t.Fatalf("GetPlayer: %v", err)
	}
	if got.Guess != "" || got.PotentialPoints != 0 {
		t.Errorf("player mutated by rejected guess: %+v", got)
	}
	tally, err := f.store.GuessTally(ctx, g.ID.String())
	if err != nil {
		t.Fatalf("GuessTally: %v", err)
	}
	if len(tally) != 0 {
		t.Errorf("tally mutated by rejected guess: %v", tally)
	}
}

func TestSubmitGuessRejectsOutsidePlayPhase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, err := f.app.CreateGame(ctx, 30, false, "host")
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	player, err := f.app.JoinGame(ctx, g.ID.String(), "ana")
	if err != nil {
		t.Fatalf("JoinGame: %v", err)
	}

	err = f.app.SubmitGuess(ctx, g.ID.String(), player.ID, "Paris", f.clock.Now())
	if err != ErrNotAcceptingGuesses {
		t.Fatalf("SubmitGuess error = %v, want ErrNotAcceptingGuesses", err)
	}
}

func TestSubmitGuessRejectsNonMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, _ := startedGame(t, f)

	err := f.app.SubmitGuess(ctx, g.ID.String(), uuid.New(), "Paris", f.clock.Now())
	if err != ErrNotInGame {
		t.Fatalf("SubmitGuess error = %v, want ErrNotInGame", err)
	}
}

func TestSubmitGuessLastGuessWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, player := startedGame(t, f)

	if err := f.app.SubmitGuess(ctx, g.ID.String(), player.ID, "London", f.clock.Now()); err != nil {
		t.Fatalf("SubmitGuess(london): %v", err)
	}
	f.clock.Advance(10 * time.Second)
	if err := f.app.SubmitGuess(ctx, g.ID.String(), player.ID, "Paris", f.clock.Now()); err != nil {
		t.Fatalf("SubmitGuess(paris): %v", err)
	}

	got, err := f.store.GetPlayer(ctx, player.ID)
	if err != nil {
		t.Fatalf("GetPlayer: %v", err)
	}
	if got.Guess != "paris" {
		t.Errorf("guess = %q, want paris", got.Guess)
	}
	// The replacement guess re-prices the potential points at its own
	// arrival time: 20 whole seconds left plus one.
	if got.PotentialPoints != 21 {
		t.Errorf("potential points = %d, want 21", got.PotentialPoints)
	}

	tally, err := f.store.GuessTally(ctx, g.ID.String())
	if err != nil {
		t.Fatalf("GuessTally: %v", err)
	}
	if len(tally) != 1 || tally[0].Text != "paris" || tally[0].Count != 1 {
		t.Errorf("tally = %v, want only the replacement guess", tally)
	}
}

// opRecordingStore records the order of tally writes passing through it.
type opRecordingStore struct {
	*store.Store
	mu        sync.Mutex
	ops       []string
	removeErr error
}

func (s *opRecordingStore) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, op)
}

func (s *opRecordingStore) AddGuess(ctx context.Context, gameID, text string) error {
	s.record("add:" + text)
	return s.Store.AddGuess(ctx, gameID, text)
}

func (s *opRecordingStore) RemoveGuess(ctx context.Context, gameID, text string) error {
	s.record("remove:" + text)
	if s.removeErr != nil {
		return s.removeErr
	}
	return s.Store.RemoveGuess(ctx, gameID, text)
}

func newRecordingFixture(t *testing.T) (*fixture, *opRecordingStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	recording := &opRecordingStore{Store: store.NewStore(rdb)}
	clock := clockwork.NewFakeClock()
	bus := &recordingBus{}
	fetcher := &fakeFetcher{batches: map[string]*models.Batch{}}
	return &fixture{
		app:     NewApp(recording, bus, fetcher, clock),
		store:   recording.Store,
		clock:   clock,
		bus:     bus,
		fetcher: fetcher,
	}, recording
}

func TestSubmitGuessRemovesOldEntryBeforeAddingNew(t *testing.T) {
	f, recording := newRecordingFixture(t)
	ctx := context.Background()
	g, player := startedGame(t, f)

	if err := f.app.SubmitGuess(ctx, g.ID.String(), player.ID, "London", f.clock.Now()); err != nil {
		t.Fatalf("SubmitGuess(london): %v", err)
	}
	if err := f.app.SubmitGuess(ctx, g.ID.String(), player.ID, "Paris", f.clock.Now()); err != nil {
		t.Fatalf("SubmitGuess(paris): %v", err)
	}

	recording.mu.Lock()
	ops := append([]string(nil), recording.ops...)
	recording.mu.Unlock()
	want := []string{"add:london", "remove:london", "add:paris"}
	if len(ops) != len(want) {
		t.Fatalf("tally ops = %v, want %v", ops, want)
	}
	for i, op := range want {
		if ops[i] != op {
			t.Fatalf("tally ops = %v, want %v", ops, want)
		}
	}
}

func TestSubmitGuessNeverDoubleCountsWhenTallyWriteFails(t *testing.T) {
	f, recording := newRecordingFixture(t)
	ctx := context.Background()
	g, player := startedGame(t, f)

	if err := f.app.SubmitGuess(ctx, g.ID.String(), player.ID, "London", f.clock.Now()); err != nil {
		t.Fatalf("SubmitGuess(london): %v", err)
	}
	recording.removeErr = errors.New("tally unavailable")

	if err := f.app.SubmitGuess(ctx, g.ID.String(), player.ID, "Paris", f.clock.Now()); err == nil {
		t.Fatal("SubmitGuess succeeded despite the failed tally write")
	}

	// One player guessing means the aggregate may hold at most one entry:
	// stale is tolerable, a player counted under two texts is not.
	tally, err := f.store.GuessTally(ctx, g.ID.String())
	if err != nil {
		t.Fatalf("GuessTally: %v", err)
	}
	total := 0
	for _, entry := range tally {
		total += entry.Count
	}
	if total > 1 {
		t.Errorf("tally = %v, counts one player twice", tally)
	}
}

func TestSubmitGuessRejectsWhitespaceOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, player := startedGame(t, f)

	if err := f.app.SubmitGuess(ctx, g.ID.String(), player.ID, "   ", f.clock.Now()); err != ErrEmptyGuess {
		t.Fatalf("SubmitGuess error = %v, want ErrEmptyGuess", err)
	}

	if err := f.app.SubmitGuess(ctx, g.ID.String(), player.ID, "Paris", f.clock.Now()); err != nil {
		t.Fatalf("SubmitGuess(paris): %v", err)
	}
	if err := f.app.SubmitGuess(ctx, g.ID.String(), player.ID, "\t \n", f.clock.Now()); err != ErrEmptyGuess {
		t.Fatalf("SubmitGuess error = %v, want ErrEmptyGuess", err)
	}

	// The rejected blank never disturbs the stored guess or the aggregate.
	got, err := f.store.GetPlayer(ctx, player.ID)
	if err != nil {
		t.Fatalf("GetPlayer: %v", err)
	}
	if got.Guess != "paris" {
		t.Errorf("guess = %q, want paris", got.Guess)
	}
	tally, err := f.store.GuessTally(ctx, g.ID.String())
	if err != nil {
		t.Fatalf("GuessTally: %v", err)
	}
	if len(tally) != 1 || tally[0].Text != "paris" || tally[0].Count != 1 {
		t.Errorf("tally = %v, want only paris", tally)
	}
}

func TestSubmitGuessPushesTallyToAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, player := startedGame(t, f)

	if err := f.app.SubmitGuess(ctx, g.ID.String(), player.ID, "Paris", f.clock.Now()); err != nil {
		t.Fatalf("SubmitGuess: %v", err)
	}

	recorded := f.bus.all()
	if len(recorded) != 1 {
		t.Fatalf("recorded %d events, want 1", len(recorded))
	}
	if recorded[0].audience != "admin" {
		t.Errorf("tally audience = %q, want admin", recorded[0].audience)
	}
	update, ok := recorded[0].event.(events.UpdateGuesses)
	if !ok {
		t.Fatalf("event = %T, want UpdateGuesses", recorded[0].event)
	}
	if len(update.Guesses) != 1 || update.Guesses[0].Text != "paris" {
		t.Errorf("tally payload = %+v", update.Guesses)
	}
}

func TestStartRoundRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, err := f.app.CreateGame(ctx, 30, false, "host")
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	player, err := f.app.JoinGame(ctx, g.ID.String(), "ana")
	if err != nil {
		t.Fatalf("JoinGame: %v", err)
	}

	if err := f.app.StartRound(ctx, g.ID.String(), player.ID); err != ErrNotAdmin {
		t.Fatalf("StartRound error = %v, want ErrNotAdmin", err)
	}
}

func TestStartRoundRejectsOpenRound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, _ := startedGame(t, f)

	if err := f.app.StartRound(ctx, g.ID.String(), g.Admin().ID); err != ErrRoundInProgress {
		t.Fatalf("StartRound error = %v, want ErrRoundInProgress", err)
	}
}

func TestResolveRoundScoresAndClears(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, player := startedGame(t, f)

	f.clock.Advance(5 * time.Second)
	if err := f.app.SubmitGuess(ctx, g.ID.String(), player.ID, "Paris", f.clock.Now()); err != nil {
		t.Fatalf("SubmitGuess: %v", err)
	}
	f.bus.reset()

	err := f.app.ResolveRound(ctx, g.ID.String(), g.Admin().ID, "Paris, France", []string{"Paris", "paris france"})
	if err != nil {
		t.Fatalf("ResolveRound: %v", err)
	}

	got, err := f.store.GetPlayer(ctx, player.ID)
	if err != nil {
		t.Fatalf("GetPlayer: %v", err)
	}
	if got.Score != 26 {
		t.Errorf("score = %d, want 26", got.Score)
	}
	if got.Guess != "" || got.GuessID != "" || got.PotentialPoints != 0 {
		t.Errorf("round state not cleared: %+v", got)
	}

	info, err := f.store.GetInfo(ctx, g.ID.String())
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if info.Phase != models.PhaseWait || info.GuessDeadline != 0 {
		t.Errorf("info after resolve = %+v, want wait phase without deadline", info)
	}

	tally, err := f.store.GuessTally(ctx, g.ID.String())
	if err != nil {
		t.Fatalf("GuessTally: %v", err)
	}
	if len(tally) != 0 {
		t.Errorf("tally after resolve = %v, want empty", tally)
	}

	recorded := f.bus.all()
	if len(recorded) != 4 {
		t.Fatalf("recorded %d events, want 4: %+v", len(recorded), recorded)
	}
	if answer, ok := recorded[0].event.(events.ShowAnswer); !ok || answer.Answer != "Paris, France" {
		t.Errorf("first event = %+v, want the displayed answer", recorded[0].event)
	}
	if _, ok := recorded[1].event.(events.UpdateScores); !ok {
		t.Errorf("second event = %T, want UpdateScores", recorded[1].event)
	}
	if state, ok := recorded[2].event.(events.UpdateState); !ok || state.Phase != models.PhaseWait {
		t.Errorf("third event = %+v, want wait state", recorded[2].event)
	}
	if recorded[3].audience != "admin" {
		t.Errorf("fourth event audience = %q, want admin", recorded[3].audience)
	}
	if guesses, ok := recorded[3].event.(events.UpdateGuesses); !ok || len(guesses.Guesses) != 0 {
		t.Errorf("fourth event = %+v, want emptied tally", recorded[3].event)
	}
}

func TestResolveRoundScoresOnlyAcceptedAnswers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, player := startedGame(t, f)
	wrong, err := f.app.JoinGame(ctx, g.ID.String(), "ben")
	if err != nil {
		t.Fatalf("JoinGame: %v", err)
	}

	if err := f.app.SubmitGuess(ctx, g.ID.String(), player.ID, "Paris", f.clock.Now()); err != nil {
		t.Fatalf("SubmitGuess: %v", err)
	}
	if err := f.app.SubmitGuess(ctx, g.ID.String(), wrong.ID, "London", f.clock.Now()); err != nil {
		t.Fatalf("SubmitGuess: %v", err)
	}

	if err := f.app.ResolveRound(ctx, g.ID.String(), g.Admin().ID, "Paris", []string{"paris"}); err != nil {
		t.Fatalf("ResolveRound: %v", err)
	}

	right, err := f.store.GetPlayer(ctx, player.ID)
	if err != nil {
		t.Fatalf("GetPlayer: %v", err)
	}
	if right.Score == 0 {
		t.Error("correct guesser scored nothing")
	}
	loser, err := f.store.GetPlayer(ctx, wrong.ID)
	if err != nil {
		t.Fatalf("GetPlayer: %v", err)
	}
	if loser.Score != 0 {
		t.Errorf("wrong guesser scored %d, want 0", loser.Score)
	}
}

func TestResolveRoundWithZeroGuesses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, _ := startedGame(t, f)

	if err := f.app.ResolveRound(ctx, g.ID.String(), g.Admin().ID, "Paris", []string{"paris"}); err != nil {
		t.Fatalf("ResolveRound: %v", err)
	}
	info, err := f.store.GetInfo(ctx, g.ID.String())
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if info.Phase != models.PhaseWait {
		t.Errorf("phase = %q, want wait", info.Phase)
	}
}

func TestResolveRoundRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, player := startedGame(t, f)

	err := f.app.ResolveRound(ctx, g.ID.String(), player.ID, "Paris", []string{"paris"})
	if err != ErrNotAdmin {
		t.Fatalf("ResolveRound error = %v, want ErrNotAdmin", err)
	}
}

func TestExpiredGameRejectsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID := uuid.NewString()

	if _, err := f.app.JoinGame(ctx, gameID, "ana"); err != ErrGameExpired {
		t.Errorf("JoinGame error = %v, want ErrGameExpired", err)
	}
	if err := f.app.SubmitGuess(ctx, gameID, uuid.New(), "Paris", f.clock.Now()); err != ErrGameExpired {
		t.Errorf("SubmitGuess error = %v, want ErrGameExpired", err)
	}
	if err := f.app.StartRound(ctx, gameID, uuid.New()); err != ErrGameExpired {
		t.Errorf("StartRound error = %v, want ErrGameExpired", err)
	}
	if _, err := f.app.Snapshot(ctx, gameID, uuid.New(), false); err != ErrGameExpired {
		t.Errorf("Snapshot error = %v, want ErrGameExpired", err)
	}
}

func TestCreateGameRejectsNonPositiveTimeLimit(t *testing.T) {
	f := newFixture(t)

	if _, err := f.app.CreateGame(context.Background(), 0, false, "host"); err == nil {
		t.Fatal("CreateGame accepted a zero time limit")
	}
}

func TestAddBatchFetchesAndAnnounces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, _ := startedGame(t, f)

	f.fetcher.batches["b1"] = &models.Batch{
		ID: "b1",
		Images: []*models.Image{
			{ID: "img-1", ImageBytes: []byte("x"), ThumbnailBytes: []byte("y")},
		},
	}

	ref := "https://indexing.example.org/batch?batchid=b1"
	if err := f.app.AddBatch(ctx, g.ID.String(), g.Admin().ID, ref); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}

	recorded := f.bus.all()
	if len(recorded) != 1 {
		t.Fatalf("recorded %d events, want 1", len(recorded))
	}
	add, ok := recorded[0].event.(events.AddImages)
	if !ok {
		t.Fatalf("event = %T, want AddImages", recorded[0].event)
	}
	if len(add.Images) != 1 || add.Images[0].ImageURL != "/images/img-1" ||
		add.Images[0].ThumbnailURL != "/images/img-1/thumbnail" {
		t.Errorf("image refs = %+v", add.Images)
	}
}

func TestAddBatchUsesCacheAcrossGames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g1, _ := startedGame(t, f)
	g2, err := f.app.CreateGame(ctx, 30, false, "other-host")
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}

	f.fetcher.batches["b1"] = &models.Batch{
		ID:     "b1",
		Images: []*models.Image{{ID: "img-1"}},
	}

	if err := f.app.AddBatch(ctx, g1.ID.String(), g1.Admin().ID, "b1"); err != nil {
		t.Fatalf("AddBatch(g1): %v", err)
	}
	if err := f.app.AddBatch(ctx, g2.ID.String(), g2.Admin().ID, "b1"); err != nil {
		t.Fatalf("AddBatch(g2): %v", err)
	}

	if f.fetcher.calls != 1 {
		t.Errorf("fetcher called %d times, want 1 (second attach served from cache)", f.fetcher.calls)
	}
	batches, err := f.store.GameBatches(ctx, g2.ID.String())
	if err != nil {
		t.Fatalf("GameBatches: %v", err)
	}
	if len(batches) != 1 || batches[0] != "b1" {
		t.Errorf("g2 batches = %v, want [b1]", batches)
	}
}

func TestAddBatchRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, player := startedGame(t, f)

	if err := f.app.AddBatch(ctx, g.ID.String(), player.ID, "b1"); err != ErrNotAdmin {
		t.Fatalf("AddBatch error = %v, want ErrNotAdmin", err)
	}
}

func TestSnapshotOrderAndAdminTally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, player := startedGame(t, f)

	if err := f.app.SubmitGuess(ctx, g.ID.String(), player.ID, "Paris", f.clock.Now()); err != nil {
		t.Fatalf("SubmitGuess: %v", err)
	}
	f.clock.Advance(10 * time.Second)

	snapshot, err := f.app.Snapshot(ctx, g.ID.String(), player.ID, false)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	wantTypes := []events.Type{events.TypeAddImages, events.TypeUpdateScores, events.TypeUpdateState}
	if len(snapshot) != len(wantTypes) {
		t.Fatalf("player snapshot has %d events, want %d", len(snapshot), len(wantTypes))
	}
	for i, want := range wantTypes {
		if snapshot[i].EventType() != want {
			t.Errorf("snapshot[%d] = %q, want %q", i, snapshot[i].EventType(), want)
		}
	}
	state := snapshot[2].(events.UpdateState)
	if state.Phase != models.PhasePlay || state.TimeRemaining != 20 {
		t.Errorf("snapshot state = %+v, want play with 20s remaining", state)
	}

	adminSnapshot, err := f.app.Snapshot(ctx, g.ID.String(), g.Admin().ID, true)
	if err != nil {
		t.Fatalf("Snapshot(admin): %v", err)
	}
	if len(adminSnapshot) != 4 {
		t.Fatalf("admin snapshot has %d events, want 4", len(adminSnapshot))
	}
	tally, ok := adminSnapshot[3].(events.UpdateGuesses)
	if !ok || len(tally.Guesses) != 1 {
		t.Errorf("admin snapshot tail = %+v, want one-entry tally", adminSnapshot[3])
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Paris", "paris"},
		{"  Paris  ", "paris"},
		{"PARIS", "paris"},
		{"\tNew York\n", "new york"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseBatchRef(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare id", "b1", "b1", false},
		{"url with batchid", "https://indexing.example.org/batch?batchid=b1&x=2", "b1", false},
		{"url without batchid", "https://indexing.example.org/batch", "", true},
		{"empty", "", "", true},
		{"whitespace id", "b 1", "", true},
		{"padded id", "  b1  ", "b1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBatchRef(tt.in)
			if tt.wantErr {
				if err != ErrBadBatchRef {
					t.Fatalf("ParseBatchRef(%q) error = %v, want ErrBadBatchRef", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBatchRef(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseBatchRef(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
