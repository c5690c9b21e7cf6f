package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/khoahotran/pulse-media/internal/application/service"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

const processingLockPrefix = "video:processing:"

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisProcessingLock struct {
	rdb    *redis.Client
	logger logger.Logger
}

func NewRedisProcessingLock(rdb *redis.Client, log logger.Logger) service.ProcessingLock {
	return &redisProcessingLock{rdb: rdb, logger: log}
}

func (l *redisProcessingLock) Acquire(ctx context.Context, id uuid.UUID, ttl time.Duration) (func(), bool, error) {
	key := processingLockPrefix + id.String()
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire processing lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil {
			l.logger.Warn("Failed to release processing lock", zap.String("video_id", id.String()), zap.Error(err))
		}
	}
	return release, true, nil
}

func (l *redisProcessingLock) Held(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := l.rdb.Exists(ctx, processingLockPrefix+id.String()).Result()
	if err != nil {
		return false, fmt.Errorf("check processing lock: %w", err)
	}
	return n > 0, nil
}

type memoryProcessingLock struct {
	mu   sync.Mutex
	held map[uuid.UUID]time.Time
}

// NewMemoryProcessingLock is the single-instance lock used when Redis is
// not configured.
func NewMemoryProcessingLock() service.ProcessingLock {
	return &memoryProcessingLock{held: make(map[uuid.UUID]time.Time)}
}

func (l *memoryProcessingLock) Acquire(_ context.Context, id uuid.UUID, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if exp, ok := l.held[id]; ok && now.Before(exp) {
		return nil, false, nil
	}
	expiry := now.Add(ttl)
	l.held[id] = expiry

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[id].Equal(expiry) {
				delete(l.held, id)
			}
		})
	}, true, nil
}

func (l *memoryProcessingLock) Held(_ context.Context, id uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	exp, ok := l.held[id]
	return ok && time.Now().Before(exp), nil
}
