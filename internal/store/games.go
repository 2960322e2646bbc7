package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/joshuahaertel/friendexing/internal/models"
)

// SaveGame persists a freshly created game: settings, info and every player.
func (s *Store) SaveGame(ctx context.Context, game *models.Game) error {
	if err := s.SaveSettings(ctx, game.ID.String(), game.Settings); err != nil {
		return err
	}
	for _, player := range game.Players {
		if err := s.AddPlayer(ctx, game.ID.String(), player); err != nil {
			return err
		}
	}
	return s.WriteInfo(ctx, game.ID.String(), game.Info)
}

// SaveSettings overwrites the game's settings hash and refreshes the TTL.
func (s *Store) SaveSettings(ctx context.Context, gameID string, settings models.Settings) error {
	randomize := 0
	if settings.ShouldRandomizeFields {
		randomize = 1
	}
	key := settingsKey(gameID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"total_time_to_guess":     settings.GuessTimeLimit,
		"should_randomize_fields": randomize,
	})
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// GetSettings returns the game's settings, or ErrNotFound once expired.
func (s *Store) GetSettings(ctx context.Context, gameID string) (models.Settings, error) {
	values, err := s.rdb.HMGet(ctx, settingsKey(gameID), "total_time_to_guess", "should_randomize_fields").Result()
	if err != nil {
		return models.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	if values[0] == nil {
		return models.Settings{}, ErrNotFound
	}
	limit, err := strconv.Atoi(values[0].(string))
	if err != nil {
		return models.Settings{}, fmt.Errorf("parse guess time limit: %w", err)
	}
	return models.Settings{
		GuessTimeLimit:        limit,
		ShouldRandomizeFields: values[1] == "1",
	}, nil
}

// WriteInfo overwrites the game's phase record and refreshes the TTL. The
// write is idempotent.
func (s *Store) WriteInfo(ctx context.Context, gameID string, info models.Info) error {
	key := infoKey(gameID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"phase":          string(info.Phase),
		"admin_id":       info.AdminID.String(),
		"guess_deadline": strconv.FormatFloat(info.GuessDeadline, 'f', -1, 64),
	})
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write game info: %w", err)
	}
	return nil
}

// GetInfo returns the game's phase record. A missing record means the game
// has expired or never existed and is reported as ErrNotFound.
func (s *Store) GetInfo(ctx context.Context, gameID string) (*models.Info, error) {
	values, err := s.rdb.HMGet(ctx, infoKey(gameID), "phase", "admin_id", "guess_deadline").Result()
	if err != nil {
		return nil, fmt.Errorf("get game info: %w", err)
	}
	if values[0] == nil {
		return nil, ErrNotFound
	}
	adminID, err := uuid.Parse(values[1].(string))
	if err != nil {
		return nil, fmt.Errorf("parse admin id: %w", err)
	}
	deadline := 0.0
	if values[2] != nil {
		deadline, err = strconv.ParseFloat(values[2].(string), 64)
		if err != nil {
			return nil, fmt.Errorf("parse guess deadline: %w", err)
		}
	}
	return &models.Info{
		Phase:         models.Phase(values[0].(string)),
		AdminID:       adminID,
		GuessDeadline: deadline,
	}, nil
}

// TouchGame refreshes the TTL of the game's shared keys without changing
// their contents.
func (s *Store) TouchGame(ctx context.Context, gameID string) error {
	pipe := s.rdb.Pipeline()
	for _, key := range []string{settingsKey(gameID), infoKey(gameID), playersKey(gameID), guessesKey(gameID), batchesKey(gameID)} {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return fmt.Errorf("touch game: %w", err)
	}
	return nil
}
