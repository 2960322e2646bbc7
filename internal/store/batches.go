package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/joshuahaertel/friendexing/internal/models"
)

// AddBatch attaches a batch and its image artifacts to a game. Attaching the
// same batch id twice is a no-op for the batch list, so callers may safely
// re-announce a cached batch.
func (s *Store) AddBatch(ctx context.Context, gameID string, batch *models.Batch) (attached bool, err error) {
	listKey := batchesKey(gameID)
	_, err = s.rdb.LPos(ctx, listKey, batch.ID, redis.LPosArgs{}).Result()
	if err == nil {
		// Already attached; refresh TTLs only.
		return false, s.TouchGame(ctx, gameID)
	}
	if err != redis.Nil {
		return false, fmt.Errorf("check batch attachment: %w", err)
	}

	imagesKey := batchKey(batch.ID)
	pipe := s.rdb.TxPipeline()
	for _, image := range batch.Images {
		pipe.Set(ctx, imageKey(image.ID), image.ImageBytes, s.ttl)
		pipe.Set(ctx, thumbKey(image.ID), image.ThumbnailBytes, s.ttl)
		pipe.RPush(ctx, imagesKey, image.ID)
	}
	pipe.Expire(ctx, imagesKey, s.ttl)
	pipe.RPush(ctx, listKey, batch.ID)
	pipe.Expire(ctx, listKey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("attach batch: %w", err)
	}
	return true, nil
}

// GameBatches returns the ordered batch ids attached to a game.
func (s *Store) GameBatches(ctx context.Context, gameID string) ([]string, error) {
	ids, err := s.rdb.LRange(ctx, batchesKey(gameID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list game batches: %w", err)
	}
	return ids, nil
}

// BatchImageIDs returns the ordered image ids belonging to a batch.
func (s *Store) BatchImageIDs(ctx context.Context, batchID string) ([]string, error) {
	ids, err := s.rdb.LRange(ctx, batchKey(batchID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list batch images: %w", err)
	}
	return ids, nil
}

// ImageBytes returns the assembled full-resolution image, or ErrNotFound.
func (s *Store) ImageBytes(ctx context.Context, imageID string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, imageKey(imageID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image bytes: %w", err)
	}
	return data, nil
}

// ThumbnailBytes returns the thumbnail rendition, or ErrNotFound.
func (s *Store) ThumbnailBytes(ctx context.Context, imageID string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, thumbKey(imageID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get thumbnail bytes: %w", err)
	}
	return data, nil
}

// HasBatch reports whether a batch's image artifacts are already cached.
func (s *Store) HasBatch(ctx context.Context, batchID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, batchKey(batchID)).Result()
	if err != nil {
		return false, fmt.Errorf("check batch cache: %w", err)
	}
	return n > 0, nil
}
