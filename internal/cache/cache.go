package cache

import (
	"context"
	"time"
)

// BytesCache — минимальный контракт байтового кэша (redis в проде,
// map в тестах). Кэш best-effort: промах или ошибка не фатальны.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
