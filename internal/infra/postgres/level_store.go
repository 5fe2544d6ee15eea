package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"processmaster-service/internal/domain"
)

// LevelLoader fetches level content when a level is not in the database.
type LevelLoader interface {
	LoadLevel(ctx context.Context, levelID string) (domain.Level, error)
}

// LevelStore keeps instructor-authored levels as JSONB rows. Lookups fall
// back to the provided loader (the built-in catalog) when the ID is not in
// the table.
type LevelStore struct {
	pool     *pgxpool.Pool
	fallback LevelLoader
}

func NewLevelStore(pool *pgxpool.Pool, fallback LevelLoader) *LevelStore {
	return &LevelStore{pool: pool, fallback: fallback}
}

func (s *LevelStore) LoadLevel(ctx context.Context, levelID string) (domain.Level, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM levels WHERE id=$1`, levelID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		if s.fallback != nil {
			return s.fallback.LoadLevel(ctx, levelID)
		}
		return domain.Level{}, domain.ErrLevelNotFound
	}
	if err != nil {
		return domain.Level{}, fmt.Errorf("load level: %w", err)
	}
	var level domain.Level
	if err := json.Unmarshal(raw, &level); err != nil {
		return domain.Level{}, fmt.Errorf("unmarshal level: %w", err)
	}
	return level, nil
}

func (s *LevelStore) SaveLevel(ctx context.Context, level domain.Level) error {
	data, err := json.Marshal(level)
	if err != nil {
		return fmt.Errorf("marshal level: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO levels (id, data) VALUES ($1, $2::jsonb)
		 ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`,
		level.ID, string(data))
	if err != nil {
		return fmt.Errorf("save level: %w", err)
	}
	return nil
}
