// Package mongo persists the shared game documents (sessions, players,
// scores) in a document database, mirroring the collection layout the
// service exposes to clients.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"processmaster-service/internal/domain"
)

// SessionStore implements game.SessionStore on the sessions collection.
type SessionStore struct {
	collection *mongo.Collection
}

func NewSessionStore(db *mongo.Database) *SessionStore {
	return &SessionStore{collection: db.Collection("sessions")}
}

func (s *SessionStore) Save(ctx context.Context, session domain.Session) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": session.ID}, session, opts)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (domain.Session, error) {
	var session domain.Session
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	return session, nil
}

// PlayerStore implements game.PlayerStore on the players collection.
type PlayerStore struct {
	collection *mongo.Collection
}

func NewPlayerStore(db *mongo.Database) *PlayerStore {
	return &PlayerStore{collection: db.Collection("players")}
}

func (s *PlayerStore) Add(ctx context.Context, player domain.Player) error {
	if _, err := s.collection.InsertOne(ctx, player); err != nil {
		return fmt.Errorf("add player: %w", err)
	}
	return nil
}

func (s *PlayerStore) List(ctx context.Context, sessionID string) ([]domain.Player, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"sessionId": sessionID})
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer cursor.Close(ctx)

	players := []domain.Player{}
	if err := cursor.All(ctx, &players); err != nil {
		return nil, fmt.Errorf("decode players: %w", err)
	}
	return players, nil
}

// ScoreStore implements game.ScoreStore on the scores collection.
// Documents are append-only.
type ScoreStore struct {
	collection *mongo.Collection
}

func NewScoreStore(db *mongo.Database) *ScoreStore {
	return &ScoreStore{collection: db.Collection("scores")}
}

func (s *ScoreStore) Append(ctx context.Context, record domain.ScoreRecord) error {
	if _, err := s.collection.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("append score: %w", err)
	}
	return nil
}

func (s *ScoreStore) List(ctx context.Context, sessionID string) ([]domain.ScoreRecord, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"sessionId": sessionID})
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	defer cursor.Close(ctx)

	records := []domain.ScoreRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}
	return records, nil
}
