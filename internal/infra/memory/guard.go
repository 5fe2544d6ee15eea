package memory

import (
	"context"
	"fmt"
	"sync"
)

// SubmissionGuard keeps the (session, player, round) markers in a local
// set. Single-process only; the redis guard covers multi-instance setups.
type SubmissionGuard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewSubmissionGuard() *SubmissionGuard {
	return &SubmissionGuard{seen: make(map[string]struct{})}
}

// Acquire claims the marker and reports whether this call was the first.
func (g *SubmissionGuard) Acquire(_ context.Context, sessionID, nickname string, round int) (bool, error) {
	key := fmt.Sprintf("%s|%s|%d", sessionID, nickname, round)
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[key]; ok {
		return false, nil
	}
	g.seen[key] = struct{}{}
	return true, nil
}

// Release frees a claimed marker after a failed score write.
func (g *SubmissionGuard) Release(_ context.Context, sessionID, nickname string, round int) error {
	key := fmt.Sprintf("%s|%s|%d", sessionID, nickname, round)
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, key)
	return nil
}
