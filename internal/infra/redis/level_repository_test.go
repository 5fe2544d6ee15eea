package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"processmaster-service/internal/domain"
	"processmaster-service/internal/infra/memory"
)

func TestLevelRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{
		LevelLoader: memory.NewStaticLevelLoader(map[string]domain.Level{
			"proc-1": sampleLevel(),
		}),
	}
	repo := NewLevelRepository(newClient(mr), loader, time.Minute)
	ctx := context.Background()

	level, err := repo.GetLevel(ctx, "proc-1")
	if err != nil {
		t.Fatalf("get level: %v", err)
	}
	if level.Title != "Brew Coffee" || len(level.Steps) != 3 {
		t.Fatalf("unexpected level: %+v", level)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("level:proc-1") {
		t.Fatalf("expected cached level key in redis")
	}

	// Second call should hit cache, loader not incremented.
	if _, err := repo.GetLevel(ctx, "proc-1"); err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}

	if _, err := repo.GetLevel(ctx, "missing"); err != domain.ErrLevelNotFound {
		t.Fatalf("expected ErrLevelNotFound, got %v", err)
	}
}

type countingLoader struct {
	memory.LevelLoader
	calls int
}

func (l *countingLoader) LoadLevel(ctx context.Context, levelID string) (domain.Level, error) {
	l.calls++
	return l.LevelLoader.LoadLevel(ctx, levelID)
}

func sampleLevel() domain.Level {
	return domain.Level{
		ID:    "proc-1",
		Title: "Brew Coffee",
		Steps: []domain.Step{
			{ID: "s1", Content: "grind the beans"},
			{ID: "s2", Content: "boil the water"},
			{ID: "s3", Content: "pour and steep"},
		},
	}
}
