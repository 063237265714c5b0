// Package cache keeps a per-room snapshot of the quiz in Redis so the export
// path can render question text without another catalog read.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/config"
	"live-quiz-service/internal/models"
)

const quizSnapshotTTL = 24 * time.Hour

type RedisClient struct {
	client *redis.Client
	config *config.RedisConfig
}

func NewRedisClient(cfg *config.RedisConfig) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{
		client: client,
		config: cfg,
	}, nil
}

func (c *RedisClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func quizSnapshotKey(roomID string) string {
	return fmt.Sprintf("quiz:%s:data", roomID)
}

func (c *RedisClient) CacheQuizSnapshot(ctx context.Context, roomID string, quiz *models.Quiz) error {
	data, err := json.Marshal(quiz)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, quizSnapshotKey(roomID), data, quizSnapshotTTL).Err()
}

func (c *RedisClient) GetQuizSnapshot(ctx context.Context, roomID string) (*models.Quiz, error) {
	data, err := c.client.Get(ctx, quizSnapshotKey(roomID)).Bytes()
	if err != nil {
		return nil, err
	}

	var quiz models.Quiz
	if err := json.Unmarshal(data, &quiz); err != nil {
		return nil, err
	}
	return &quiz, nil
}

func (c *RedisClient) DropQuizSnapshot(ctx context.Context, roomID string) error {
	return c.client.Del(ctx, quizSnapshotKey(roomID)).Err()
}
