package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"fall-detector-go/internal/config"
	"fall-detector-go/pkg/models"
)

// RedisNotifier хранит последнюю рекомендацию сессии в ключе с TTL
// и публикует ее в канал для внешних подписчиков
type RedisNotifier struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisClient создает клиент по конфигурации
func NewRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// NewRedisNotifier создает получателя поверх готового клиента
func NewRedisNotifier(client *redis.Client, prefix string, ttl time.Duration) *RedisNotifier {
	return &RedisNotifier{client: client, prefix: prefix, ttl: ttl}
}

// Key ключ последней рекомендации сессии
func (n *RedisNotifier) Key(sessionID string) string {
	return fmt.Sprintf("%sadvisory:%s", n.prefix, sessionID)
}

// Channel канал публикации рекомендаций
func (n *RedisNotifier) Channel() string {
	return n.prefix + "advisories"
}

func (n *RedisNotifier) Notify(ctx context.Context, adv models.Advisory) error {
	data, err := json.Marshal(adv)
	if err != nil {
		return fmt.Errorf("failed to marshal advisory: %w", err)
	}

	pipe := n.client.TxPipeline()
	pipe.Set(ctx, n.Key(adv.SessionID), data, n.ttl)
	pipe.Publish(ctx, n.Channel(), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store advisory in redis: %w", err)
	}
	return nil
}

// Latest читает последнюю рекомендацию сессии
func (n *RedisNotifier) Latest(ctx context.Context, sessionID string) (models.Advisory, error) {
	data, err := n.client.Get(ctx, n.Key(sessionID)).Bytes()
	if err != nil {
		return models.Advisory{}, fmt.Errorf("failed to read advisory: %w", err)
	}
	var adv models.Advisory
	if err := json.Unmarshal(data, &adv); err != nil {
		return models.Advisory{}, fmt.Errorf("failed to decode advisory: %w", err)
	}
	return adv, nil
}
