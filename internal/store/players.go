package store

import (
	"context"
	"fmt"
	"iter"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/joshuahaertel/friendexing/internal/models"
)

// AddPlayer persists the player hash and indexes the player into the game's
// score-ranked set.
func (s *Store) AddPlayer(ctx context.Context, gameID string, player *models.Player) error {
	if err := s.SavePlayer(ctx, player); err != nil {
		return err
	}
	key := playersKey(gameID)
	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(player.Score), Member: player.ID.String()})
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add player to ranking: %w", err)
	}
	return nil
}

// SavePlayer overwrites the player's field hash and refreshes its TTL.
func (s *Store) SavePlayer(ctx context.Context, player *models.Player) error {
	key := playerKey(player.ID.String())
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"name":             player.Name,
		"score":            player.Score,
		"guess":            player.Guess,
		"guess_id":         player.GuessID,
		"potential_points": player.PotentialPoints,
	})
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save player: %w", err)
	}
	return nil
}

// GetPlayer returns a player by id, or ErrNotFound once expired.
func (s *Store) GetPlayer(ctx context.Context, playerID uuid.UUID) (*models.Player, error) {
	values, err := s.rdb.HMGet(ctx, playerKey(playerID.String()),
		"name", "score", "guess", "guess_id", "potential_points").Result()
	if err != nil {
		return nil, fmt.Errorf("get player: %w", err)
	}
	if values[0] == nil {
		return nil, ErrNotFound
	}
	score, err := strconv.Atoi(values[1].(string))
	if err != nil {
		return nil, fmt.Errorf("parse player score: %w", err)
	}
	potential := 0
	if values[4] != nil {
		potential, err = strconv.Atoi(values[4].(string))
		if err != nil {
			return nil, fmt.Errorf("parse potential points: %w", err)
		}
	}
	player := &models.Player{
		ID:              playerID,
		Name:            values[0].(string),
		Score:           score,
		PotentialPoints: potential,
	}
	if values[2] != nil {
		player.Guess = values[2].(string)
	}
	if values[3] != nil {
		player.GuessID = values[3].(string)
	}
	return player, nil
}

// SavePlayerRanked overwrites the player's field hash and the game's ranked
// set entry in one round trip, so readers of the ranking never see a score
// the hash does not yet hold.
func (s *Store) SavePlayerRanked(ctx context.Context, gameID string, player *models.Player) error {
	rankKey := playersKey(gameID)
	hashKey := playerKey(player.ID.String())
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, hashKey, map[string]interface{}{
		"name":             player.Name,
		"score":            player.Score,
		"guess":            player.Guess,
		"guess_id":         player.GuessID,
		"potential_points": player.PotentialPoints,
	})
	pipe.ZAdd(ctx, rankKey, redis.Z{Score: float64(player.Score), Member: player.ID.String()})
	pipe.Expire(ctx, hashKey, s.ttl)
	pipe.Expire(ctx, rankKey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save ranked player: %w", err)
	}
	return nil
}

// UpdatePlayerScore writes the player's new score to both the field hash and
// the game's ranked set in one round trip.
func (s *Store) UpdatePlayerScore(ctx context.Context, gameID string, player *models.Player) error {
	rankKey := playersKey(gameID)
	hashKey := playerKey(player.ID.String())
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, hashKey, "score", player.Score)
	pipe.ZAdd(ctx, rankKey, redis.Z{Score: float64(player.Score), Member: player.ID.String()})
	pipe.Expire(ctx, hashKey, s.ttl)
	pipe.Expire(ctx, rankKey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update player score: %w", err)
	}
	return nil
}

// IsMember reports whether the player belongs to the game's player set.
func (s *Store) IsMember(ctx context.Context, gameID string, playerID uuid.UUID) (bool, error) {
	err := s.rdb.ZScore(ctx, playersKey(gameID), playerID.String()).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check game membership: %w", err)
	}
	return true, nil
}

// TopPlayers returns at most limit player summaries ordered by score,
// descending. Equal scores are ordered by the ranked set's native tie-break:
// reverse-lexicographic player id, which is stable across calls.
func (s *Store) TopPlayers(ctx context.Context, gameID string, limit int) ([]models.PlayerScore, error) {
	members, err := s.rdb.ZRevRangeWithScores(ctx, playersKey(gameID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("rank players: %w", err)
	}
	scores := make([]models.PlayerScore, 0, len(members))
	for _, member := range members {
		playerID, err := uuid.Parse(member.Member.(string))
		if err != nil {
			return nil, fmt.Errorf("parse ranked player id: %w", err)
		}
		name, err := s.rdb.HGet(ctx, playerKey(playerID.String()), "name").Result()
		if err == redis.Nil {
			// Player hash expired ahead of the ranked set; skip.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get ranked player name: %w", err)
		}
		scores = append(scores, models.PlayerScore{
			Name:     name,
			Score:    int(member.Score),
			PlayerID: playerID,
		})
	}
	return scores, nil
}

// ScoresForPlayer returns the top-limit summaries; when the requesting player
// is not among them, their own summary is appended so every client always
// sees its own score.
func (s *Store) ScoresForPlayer(ctx context.Context, gameID string, playerID uuid.UUID, limit int) ([]models.PlayerScore, error) {
	scores, err := s.TopPlayers(ctx, gameID, limit)
	if err != nil {
		return nil, err
	}
	for _, ps := range scores {
		if ps.PlayerID == playerID {
			return scores, nil
		}
	}
	player, err := s.GetPlayer(ctx, playerID)
	if err == ErrNotFound {
		return scores, nil
	}
	if err != nil {
		return nil, err
	}
	return append(scores, models.PlayerScore{
		Name:     player.Name,
		Score:    player.Score,
		PlayerID: playerID,
	}), nil
}

// IteratePlayers yields every player in the game. The member list is a
// snapshot taken at call time; hashes are fetched lazily as the sequence is
// consumed, and the sequence is not restartable.
func (s *Store) IteratePlayers(ctx context.Context, gameID string) iter.Seq2[*models.Player, error] {
	return func(yield func(*models.Player, error) bool) {
		ids, err := s.rdb.ZRange(ctx, playersKey(gameID), 0, -1).Result()
		if err != nil {
			yield(nil, fmt.Errorf("snapshot players: %w", err))
			return
		}
		for _, id := range ids {
			playerID, err := uuid.Parse(id)
			if err != nil {
				if !yield(nil, fmt.Errorf("parse player id: %w", err)) {
					return
				}
				continue
			}
			player, err := s.GetPlayer(ctx, playerID)
			if err == ErrNotFound {
				continue
			}
			if !yield(player, err) {
				return
			}
		}
	}
}
