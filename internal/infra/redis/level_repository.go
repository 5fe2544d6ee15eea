package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"processmaster-service/internal/domain"
)

// LevelLoader fetches level content from a backing store (built-in
// catalog, Postgres library, etc).
type LevelLoader interface {
	LoadLevel(ctx context.Context, levelID string) (domain.Level, error)
}

// LevelRepository caches whole levels as JSON in Redis and falls back to a
// loader on cache miss. Levels are cached in full because the playlist
// snapshot needs titles and step text, not just the answer key.
type LevelRepository struct {
	client *redis.Client
	loader LevelLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewLevelRepository(client *redis.Client, loader LevelLoader, ttl time.Duration) *LevelRepository {
	return &LevelRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *LevelRepository) GetLevel(ctx context.Context, levelID string) (domain.Level, error) {
	key := r.key(levelID)

	if level, ok := r.cached(ctx, key); ok {
		return level, nil
	}

	result, err, _ := r.sf.Do(levelID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if level, ok := r.cached(ctx, key); ok {
			return level, nil
		}

		level, err := r.loader.LoadLevel(ctx, levelID)
		if err != nil {
			return domain.Level{}, err
		}

		if data, err := json.Marshal(level); err == nil {
			// best-effort cache fill
			_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()
		}
		return level, nil
	})
	if err != nil {
		return domain.Level{}, err
	}
	return result.(domain.Level), nil
}

func (r *LevelRepository) cached(ctx context.Context, key string) (domain.Level, bool) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return domain.Level{}, false
	}
	var level domain.Level
	if err := json.Unmarshal(data, &level); err != nil {
		return domain.Level{}, false
	}
	return level, true
}

func (r *LevelRepository) key(levelID string) string {
	return "level:" + levelID
}

func (r *LevelRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
