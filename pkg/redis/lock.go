package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nexe/nexe-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our fencing value, so an
// expired lock taken over by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TokenLocker is a SETNX lock with a TTL, used to collapse concurrent duplicate
// checkout confirmations across server instances.
type TokenLocker struct {
	client redis.UniversalClient
	prefix string
}

func NewTokenLocker(client redis.UniversalClient) *TokenLocker {
	return &TokenLocker{client: client, prefix: "lock:"}
}

func (l *TokenLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	fullKey := l.prefix + key
	value := uuid.NewString()

	ok, err := l.client.SetNX(ctx, fullKey, value, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		logger.Debug("Lock already held", map[string]interface{}{
			"key": fullKey,
		})
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{fullKey}, value).Err(); err != nil {
			logger.Warn("Failed to release lock", map[string]interface{}{
				"key":   fullKey,
				"error": err.Error(),
			})
		}
	}
	return release, true, nil
}
