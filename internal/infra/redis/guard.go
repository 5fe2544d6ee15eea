package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SubmissionGuard implements the at-most-once submission marker with a
// conditional SET NX write, so duplicates are rejected even across service
// instances, retried calls, or a player's second device.
type SubmissionGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSubmissionGuard(client *redis.Client, ttl time.Duration) *SubmissionGuard {
	return &SubmissionGuard{client: client, ttl: ttl}
}

// Acquire claims the (session, player, round) key and reports whether this
// call won the claim.
func (g *SubmissionGuard) Acquire(ctx context.Context, sessionID, nickname string, round int) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key(sessionID, nickname, round), "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire submission marker: %w", err)
	}
	return ok, nil
}

// Release deletes the marker after a failed score write, reopening the
// round for that player.
func (g *SubmissionGuard) Release(ctx context.Context, sessionID, nickname string, round int) error {
	if err := g.client.Del(ctx, g.key(sessionID, nickname, round)).Err(); err != nil {
		return fmt.Errorf("release submission marker: %w", err)
	}
	return nil
}

func (g *SubmissionGuard) key(sessionID, nickname string, round int) string {
	return fmt.Sprintf("session:%s:round:%d:submitted:%s", sessionID, round, nickname)
}
