package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"quizduel/internal/model"

	"github.com/redis/go-redis/v9"
)

// PoolCache holds fetched candidate-question pools so repeated searches in
// the same partition do not hit the content collection every time.
type PoolCache interface {
	Get(ctx context.Context, subject, qtype string, grades []string) ([]model.Question, error)
	Set(ctx context.Context, subject, qtype string, grades []string, questions []model.Question) error
}

type poolCache struct {
	client *redis.Client
}

func NewPoolCache(client *redis.Client) PoolCache {
	return &poolCache{client: client}
}

func poolKey(subject, qtype string, grades []string) string {
	return "pool:" + subject + ":" + qtype + ":" + strings.Join(grades, "+")
}

func (c *poolCache) Get(ctx context.Context, subject, qtype string, grades []string) ([]model.Question, error) {
	data, err := c.client.Get(ctx, poolKey(subject, qtype, grades)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var questions []model.Question
	err = json.Unmarshal([]byte(data), &questions)
	return questions, err
}

func (c *poolCache) Set(ctx context.Context, subject, qtype string, grades []string, questions []model.Question) error {
	data, err := json.Marshal(questions)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, poolKey(subject, qtype, grades), data, 2*time.Minute).Err()
}
