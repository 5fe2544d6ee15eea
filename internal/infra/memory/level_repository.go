package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"processmaster-service/internal/domain"
)

// LevelLoader fetches level content from a backing store (built-in
// catalog, Postgres library, etc).
type LevelLoader interface {
	LoadLevel(ctx context.Context, levelID string) (domain.Level, error)
}

// LevelRepository caches levels with TTL to avoid repeated store hits
// while a playlist is being assembled.
type LevelRepository struct {
	loader LevelLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedLevel
}

type cachedLevel struct {
	level     domain.Level
	expiresAt time.Time
}

func NewLevelRepository(loader LevelLoader, ttl time.Duration) *LevelRepository {
	return &LevelRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedLevel),
	}
}

func (r *LevelRepository) GetLevel(ctx context.Context, levelID string) (domain.Level, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[levelID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.level, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(levelID, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[levelID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.level, nil
		}
		r.mu.RUnlock()

		level, err := r.loader.LoadLevel(ctx, levelID)
		if err != nil {
			return domain.Level{}, err
		}

		r.mu.Lock()
		r.cache[levelID] = cachedLevel{
			level:     level,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return level, nil
	})
	if err != nil {
		return domain.Level{}, err
	}
	return result.(domain.Level), nil
}

func (r *LevelRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticLevelLoader is a mutable in-memory level library, seeded with the
// built-in catalog. It doubles as the writable store when no database is
// configured.
type StaticLevelLoader struct {
	mu     sync.RWMutex
	levels map[string]domain.Level
}

func NewStaticLevelLoader(seed map[string]domain.Level) *StaticLevelLoader {
	levels := make(map[string]domain.Level, len(seed))
	for id, level := range seed {
		levels[id] = level
	}
	return &StaticLevelLoader{levels: levels}
}

func (l *StaticLevelLoader) LoadLevel(_ context.Context, levelID string) (domain.Level, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if level, ok := l.levels[levelID]; ok {
		return level, nil
	}
	return domain.Level{}, domain.ErrLevelNotFound
}

func (l *StaticLevelLoader) SaveLevel(_ context.Context, level domain.Level) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.levels[level.ID] = level
	return nil
}
