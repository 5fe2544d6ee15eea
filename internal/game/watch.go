package game

import (
	"context"
	"log"
	"sync"

	"processmaster-service/internal/domain"
)

// watchHub fans session snapshots out to subscribed clients. This replaces
// the per-collection snapshot listeners of the hosted-store design with a
// single in-process channel per watcher.
type watchHub struct {
	mu          sync.Mutex
	subscribers map[chan Snapshot]struct{}
}

func newWatchHub() *watchHub {
	return &watchHub{subscribers: make(map[chan Snapshot]struct{})}
}

// Watch returns a channel receiving a snapshot for every session change.
// The first snapshot arrives immediately. The caller must invoke the
// returned cancel function to avoid leaks.
func (s *Service) Watch(ctx context.Context, sessionID string) (<-chan Snapshot, func(), error) {
	session, err := s.stores.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	initial, err := s.snapshot(ctx, session)
	if err != nil {
		return nil, nil, err
	}

	hub := s.hub(sessionID)
	ch := make(chan Snapshot, 8)

	hub.mu.Lock()
	hub.subscribers[ch] = struct{}{}
	hub.mu.Unlock()

	ch <- initial

	cancel := func() {
		hub.mu.Lock()
		if _, ok := hub.subscribers[ch]; ok {
			delete(hub.subscribers, ch)
			close(ch)
		}
		hub.mu.Unlock()
	}
	return ch, cancel, nil
}

func (s *Service) hub(sessionID string) *watchHub {
	s.hubsMu.Lock()
	defer s.hubsMu.Unlock()
	hub, ok := s.hubs[sessionID]
	if !ok {
		hub = newWatchHub()
		s.hubs[sessionID] = hub
	}
	return hub
}

// broadcast pushes a fresh snapshot to every watcher of the session.
// Slow subscribers have their oldest pending snapshot dropped rather than
// blocking the broadcast.
func (s *Service) broadcast(ctx context.Context, session domain.Session) {
	snap, err := s.snapshot(ctx, session)
	if err != nil {
		log.Printf("snapshot failed for session %s: %v", session.ID, err)
		return
	}

	hub := s.hub(session.ID)
	hub.mu.Lock()
	defer hub.mu.Unlock()
	for ch := range hub.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (s *Service) snapshot(ctx context.Context, session domain.Session) (Snapshot, error) {
	roster, err := s.stores.Players.List(ctx, session.ID)
	if err != nil {
		return Snapshot{}, err
	}
	submitted, err := s.distinctSubmitters(ctx, session.ID, session.CurrentRound)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Session: session, Players: roster, Submitted: submitted}, nil
}
