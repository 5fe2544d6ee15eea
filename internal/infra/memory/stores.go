package memory

import (
	"context"
	"sync"

	"processmaster-service/internal/domain"
)

// SessionStore is an in-memory implementation of game.SessionStore.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]domain.Session)}
}

func (s *SessionStore) Save(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *SessionStore) Get(_ context.Context, id string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

// PlayerStore is an in-memory implementation of game.PlayerStore.
type PlayerStore struct {
	mu      sync.RWMutex
	players map[string][]domain.Player
}

func NewPlayerStore() *PlayerStore {
	return &PlayerStore{players: make(map[string][]domain.Player)}
}

func (s *PlayerStore) Add(_ context.Context, player domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[player.SessionID] = append(s.players[player.SessionID], player)
	return nil
}

func (s *PlayerStore) List(_ context.Context, sessionID string) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roster := s.players[sessionID]
	out := make([]domain.Player, len(roster))
	copy(out, roster)
	return out, nil
}

// ScoreStore is an in-memory, append-only implementation of game.ScoreStore.
type ScoreStore struct {
	mu      sync.RWMutex
	records map[string][]domain.ScoreRecord
}

func NewScoreStore() *ScoreStore {
	return &ScoreStore{records: make(map[string][]domain.ScoreRecord)}
}

func (s *ScoreStore) Append(_ context.Context, record domain.ScoreRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.SessionID] = append(s.records[record.SessionID], record)
	return nil
}

func (s *ScoreStore) List(_ context.Context, sessionID string) ([]domain.ScoreRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.records[sessionID]
	out := make([]domain.ScoreRecord, len(records))
	copy(out, records)
	return out, nil
}
