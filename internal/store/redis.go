package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mperelman/chronicle/config"
	"github.com/mperelman/chronicle/models"
)

const chunkKeyPrefix = "chunk:"

// RedisStore keeps each chunk under chunk:<id> as a JSON document.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: timeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s:%s: %w", cfg.Host, cfg.Port, err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) SaveChunks(ctx context.Context, chunks []models.Chunk) error {
	pipe := s.client.Pipeline()
	for _, c := range chunks {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshaling chunk %s: %w", c.ID, err)
		}
		pipe.Set(ctx, chunkKeyPrefix+c.ID, data, 0)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetChunks(ctx context.Context, ids []string) ([]models.Chunk, error) {
	var out []models.Chunk
	for _, id := range ids {
		val, err := s.client.Get(ctx, chunkKeyPrefix+id).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		var c models.Chunk
		if err := json.Unmarshal([]byte(val), &c); err != nil {
			return nil, fmt.Errorf("decoding chunk %s: %w", id, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *RedisStore) AllChunks(ctx context.Context) ([]models.Chunk, error) {
	iter := s.client.Scan(ctx, 0, chunkKeyPrefix+"*", 0).Iterator()
	var ids []string
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(chunkKeyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return s.GetChunks(ctx, ids)
}

func (s *RedisStore) Close() error { return s.client.Close() }
