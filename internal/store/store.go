package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joshuahaertel/friendexing/internal/models"
)

// ErrNotFound is returned when a key has expired or never existed. For game
// lookups this means the game is gone; callers must never read it as
// wait-phase.
var ErrNotFound = errors.New("not found")

// Store is the session store: every piece of game, player and round state
// lives here under a shared idle TTL. The store offers narrow per-key
// primitives only; sequencing multi-key updates is the state machine's job.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// Config holds connection settings for the session store.
type Config struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NewStore creates a store around an established client, using the standard
// game expiry window.
func NewStore(rdb *redis.Client) *Store {
	return NewStoreWithTTL(rdb, models.GameExpiry)
}

// NewStoreWithTTL is NewStore with an explicit TTL, used by tests.
func NewStoreWithTTL(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Connect dials the session store and verifies the connection. The returned
// client has a process-wide lifecycle: created at startup, shared by
// reference, closed on shutdown.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping session store: %w", err)
	}
	return rdb, nil
}

func settingsKey(gameID string) string { return "settings:" + gameID }
func infoKey(gameID string) string     { return "game-info:" + gameID }
func playersKey(gameID string) string  { return "players:" + gameID }
func playerKey(playerID string) string { return "player:" + playerID }
func guessesKey(gameID string) string  { return "guesses:" + gameID }
func batchesKey(gameID string) string  { return "batches:" + gameID }
func batchKey(batchID string) string   { return "batch-images:" + batchID }
func imageKey(imageID string) string   { return "image:" + imageID }
func thumbKey(imageID string) string   { return "thumbnail:" + imageID }
