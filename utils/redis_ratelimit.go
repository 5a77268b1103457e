package utils

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Атомарно увеличивает счетчик окна и возвращает {count, ttl_ms}
var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisRateLimiter - общий для всех экземпляров сервиса лимит в фиксированном окне
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// NewRedisRateLimiter создает лимитер поверх клиента Redis
func NewRedisRateLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisRateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "lending:rate_limit"
	}
	// PEXPIRE меньше секунды не имеет смысла для HTTP лимита
	if window < time.Second {
		window = time.Second
	}
	return &RedisRateLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

// Limit возвращает настроенный лимит
func (r *RedisRateLimiter) Limit() int {
	return r.limit
}

// Consume учитывает запрос и сообщает, укладывается ли он в лимит
func (r *RedisRateLimiter) Consume(ctx context.Context, key string) (bool, int, time.Time, error) {
	now := time.Now()
	rawResult, err := rateLimitScript.Run(ctx, r.client, []string{r.prefix + ":" + key}, r.window.Milliseconds()).Result()
	if err != nil {
		return true, r.limit, now, fmt.Errorf("redis rate limit: %w", err)
	}

	values, ok := rawResult.([]interface{})
	if !ok || len(values) != 2 {
		return true, r.limit, now, fmt.Errorf("unexpected redis limiter response shape: %T", rawResult)
	}
	count, okCount := values[0].(int64)
	ttlMs, okTTL := values[1].(int64)
	if !okCount || !okTTL {
		return true, r.limit, now, fmt.Errorf("unexpected redis limiter value types: %T, %T", values[0], values[1])
	}

	remaining := r.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return int(count) <= r.limit, remaining, now.Add(time.Duration(ttlMs) * time.Millisecond), nil
}

// ConnectRedis открывает клиента по URL и проверяет соединение.
// Пустой URL означает, что Redis не используется.
func ConnectRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, nil
	}

	options, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора REDIS_URL: %w", err)
	}

	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis недоступен: %w", err)
	}
	return client, nil
}
