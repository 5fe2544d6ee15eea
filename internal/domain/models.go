package domain

import "time"

// Step is one entry of a procedure, identified by a stable ID.
type Step struct {
	ID      string `json:"id" bson:"id"`
	Content string `json:"content" bson:"content"`
}

// Level is a procedural-ordering puzzle; Steps holds the canonical order.
type Level struct {
	ID    string `json:"id" bson:"_id"`
	Title string `json:"title" bson:"title"`
	Steps []Step `json:"correctOrder" bson:"correctOrder"`
}

// PlaylistEntry snapshots a level plus its time limit at playlist-build
// time, so later edits to the level library never affect a running session.
type PlaylistEntry struct {
	LevelID      string `json:"levelId" bson:"levelId"`
	TimeLimitSec int    `json:"timeLimit" bson:"timeLimit"`
	Level        Level  `json:"levelData" bson:"levelData"`
}

// Session is the shared document that drives one play-through.
// Only the instructor role mutates it, and only through explicit commands.
type Session struct {
	ID           string          `json:"id" bson:"_id"`
	Playlist     []PlaylistEntry `json:"playlist" bson:"playlist"`
	CurrentRound int             `json:"currentLevelIndex" bson:"currentLevelIndex"`
	Phase        Phase           `json:"status" bson:"status"`
	StartedAt    time.Time       `json:"startTime" bson:"startTime"`
	RoundEndsAt  time.Time       `json:"endTime" bson:"endTime"`
	CreatedAt    time.Time       `json:"createdAt" bson:"createdAt"`
}

// CurrentEntry returns the playlist entry for the active round.
func (s Session) CurrentEntry() (PlaylistEntry, bool) {
	if s.CurrentRound < 0 || s.CurrentRound >= len(s.Playlist) {
		return PlaylistEntry{}, false
	}
	return s.Playlist[s.CurrentRound], true
}

// HasNextRound reports whether advancing past the current round stays
// within playlist bounds.
func (s Session) HasNextRound() bool {
	return s.CurrentRound+1 < len(s.Playlist)
}

// Player is a student who joined a session.
type Player struct {
	SessionID string    `json:"sessionId" bson:"sessionId"`
	Nickname  string    `json:"nickname" bson:"nickname"`
	Avatar    string    `json:"avatar" bson:"avatar"`
	JoinedAt  time.Time `json:"joinedAt" bson:"joinedAt"`
}

// ScoreRecord is one append-only submission result for
// (session, player, round). Timestamp is server-assigned.
type ScoreRecord struct {
	SessionID    string    `json:"sessionId" bson:"sessionId"`
	Nickname     string    `json:"nickname" bson:"nickname"`
	Avatar       string    `json:"avatar" bson:"avatar"`
	LevelID      string    `json:"levelId" bson:"levelId"`
	RoundIndex   int       `json:"roundIndex" bson:"roundIndex"`
	Score        int       `json:"score" bson:"score"`
	CorrectCount int       `json:"correctCount" bson:"correctCount"`
	TimeTaken    int       `json:"timeTaken" bson:"timeTaken"`
	Timestamp    time.Time `json:"timestamp" bson:"timestamp"`
}

// StandingEntry is one row of the cumulative leaderboard.
type StandingEntry struct {
	Rank       int    `json:"rank"`
	Nickname   string `json:"nickname"`
	Avatar     string `json:"avatar"`
	TotalScore int    `json:"totalScore"`
}

// Avatars are the glyphs offered to players who join without one.
var Avatars = []string{
	"🐶", "🐱", "🐭", "🐹", "🐰", "🦊", "🐻", "🐼", "🐨", "🐯",
	"🦁", "🐮", "🐷", "🐸", "🐵", "🦄", "🐙", "👾", "🤖", "👻",
}
