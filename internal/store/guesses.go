package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"
)

// GuessCount is one entry of the per-game guess tally.
type GuessCount struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

// AddGuess increments the tally for a normalized guess text.
func (s *Store) AddGuess(ctx context.Context, gameID, text string) error {
	key := guessesKey(gameID)
	pipe := s.rdb.TxPipeline()
	pipe.HIncrBy(ctx, key, text, 1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add guess to tally: %w", err)
	}
	return nil
}

// RemoveGuess decrements the tally for a normalized guess text. The tally
// never goes negative: a decrement of a missing or zero entry is undone and
// logged, since it signals the aggregate drifted from player state.
func (s *Store) RemoveGuess(ctx context.Context, gameID, text string) error {
	key := guessesKey(gameID)
	count, err := s.rdb.HIncrBy(ctx, key, text, -1).Result()
	if err != nil {
		return fmt.Errorf("remove guess from tally: %w", err)
	}
	if count <= 0 {
		if err := s.rdb.HDel(ctx, key, text).Err(); err != nil {
			return fmt.Errorf("drop emptied tally entry: %w", err)
		}
	}
	if count < 0 {
		log.Warn().
			Str("game_id", gameID).
			Str("guess", text).
			Msg("guess tally decremented below zero; aggregate inconsistent with player state")
	}
	return s.rdb.Expire(ctx, key, s.ttl).Err()
}

// GuessTally returns the current tally ordered by count descending, ties by
// text, so admin clients render a stable list.
func (s *Store) GuessTally(ctx context.Context, gameID string) ([]GuessCount, error) {
	entries, err := s.rdb.HGetAll(ctx, guessesKey(gameID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get guess tally: %w", err)
	}
	tally := make([]GuessCount, 0, len(entries))
	for text, raw := range entries {
		count, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("parse tally count: %w", err)
		}
		tally = append(tally, GuessCount{Text: text, Count: count})
	}
	sort.Slice(tally, func(i, j int) bool {
		if tally[i].Count != tally[j].Count {
			return tally[i].Count > tally[j].Count
		}
		return tally[i].Text < tally[j].Text
	})
	return tally, nil
}

// ClearGuesses drops the whole tally for a game.
func (s *Store) ClearGuesses(ctx context.Context, gameID string) error {
	if err := s.rdb.Del(ctx, guessesKey(gameID)).Err(); err != nil {
		return fmt.Errorf("clear guess tally: %w", err)
	}
	return nil
}
