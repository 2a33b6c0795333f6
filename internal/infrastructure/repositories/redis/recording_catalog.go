package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"stagecast/internal/core/domain"
	"stagecast/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisRecordingCatalog struct {
	client *redis.Client
	prefix string
}

func NewRedisRecordingCatalog(client *redis.Client) ports.RecordingCatalog {
	return &RedisRecordingCatalog{
		client: client,
		prefix: "stagecast:recording:",
	}
}

func (c *RedisRecordingCatalog) recordingKey(id domain.RecordingID) string {
	return c.prefix + string(id)
}

func (c *RedisRecordingCatalog) indexKey() string {
	return c.prefix + "index"
}

func (c *RedisRecordingCatalog) Save(ctx context.Context, rec *domain.FinishedRecording) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal recording: %w", err)
	}

	key := c.recordingKey(rec.ID)
	if err := c.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set recording in Redis: %w", err)
	}

	if err := c.client.SAdd(ctx, c.indexKey(), string(rec.ID)).Err(); err != nil {
		return fmt.Errorf("failed to add recording to index: %w", err)
	}

	return nil
}

func (c *RedisRecordingCatalog) Get(ctx context.Context, id domain.RecordingID) (*domain.FinishedRecording, error) {
	data, err := c.client.Get(ctx, c.recordingKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrRecordingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recording from Redis: %w", err)
	}

	var rec domain.FinishedRecording
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recording: %w", err)
	}

	return &rec, nil
}

func (c *RedisRecordingCatalog) List(ctx context.Context) ([]*domain.FinishedRecording, error) {
	ids, err := c.client.SMembers(ctx, c.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recording index: %w", err)
	}

	recs := make([]*domain.FinishedRecording, 0, len(ids))
	for _, id := range ids {
		rec, err := c.Get(ctx, domain.RecordingID(id))
		if err != nil {
			// Index entries for deleted recordings are skipped.
			continue
		}
		recs = append(recs, rec)
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].EndedAt.Before(recs[j].EndedAt)
	})

	return recs, nil
}

func (c *RedisRecordingCatalog) Delete(ctx context.Context, id domain.RecordingID) error {
	removed, err := c.client.Del(ctx, c.recordingKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete recording from Redis: %w", err)
	}
	if removed == 0 {
		return domain.ErrRecordingNotFound
	}

	if err := c.client.SRem(ctx, c.indexKey(), string(id)).Err(); err != nil {
		return fmt.Errorf("failed to remove recording from index: %w", err)
	}

	return nil
}
