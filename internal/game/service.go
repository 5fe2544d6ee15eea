package game

import (
	"context"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"processmaster-service/internal/domain"
	"processmaster-service/internal/levels"
)

const (
	defaultTimeLimitSec = 60
	maxNicknameLen      = 12
)

// SessionStore persists the shared session document.
type SessionStore interface {
	Save(ctx context.Context, session domain.Session) error
	Get(ctx context.Context, id string) (domain.Session, error)
}

// PlayerStore holds the roster of joined players per session.
type PlayerStore interface {
	Add(ctx context.Context, player domain.Player) error
	List(ctx context.Context, sessionID string) ([]domain.Player, error)
}

// ScoreStore appends and lists round submission records. Records are never
// updated or deleted.
type ScoreStore interface {
	Append(ctx context.Context, record domain.ScoreRecord) error
	List(ctx context.Context, sessionID string) ([]domain.ScoreRecord, error)
}

// SubmissionGuard provides the at-most-once marker for
// (session, player, round). Acquire returns false when the key was already
// claimed; the conditional write is what makes repeat submissions no-ops.
// Release frees a claimed marker when the score write behind it failed,
// so the player can retry.
type SubmissionGuard interface {
	Acquire(ctx context.Context, sessionID, nickname string, round int) (bool, error)
	Release(ctx context.Context, sessionID, nickname string, round int) error
}

// LevelRepository loads level content (built-in catalog, cache, or backing store).
type LevelRepository interface {
	GetLevel(ctx context.Context, levelID string) (domain.Level, error)
}

// LevelWriter stores instructor-authored levels.
type LevelWriter interface {
	SaveLevel(ctx context.Context, level domain.Level) error
}

// Stores bundles the persistence dependencies of the service. Library may
// be nil, which disables level authoring.
type Stores struct {
	Sessions SessionStore
	Players  PlayerStore
	Scores   ScoreStore
	Library  LevelWriter
}

// PlaylistRequest names a level and its per-round time limit when building
// a playlist. A zero or negative limit falls back to the default.
type PlaylistRequest struct {
	LevelID      string `json:"levelId"`
	TimeLimitSec int    `json:"timeLimit"`
}

// Snapshot is what session watchers receive on every relevant change: the
// session document, the roster, and how many distinct players have
// submitted for the current round.
type Snapshot struct {
	Session   domain.Session  `json:"session"`
	Players   []domain.Player `json:"players"`
	Submitted int             `json:"submitted"`
}

// Service owns the session state machine. All phase transitions go through
// explicit commands here; the service is the single writer the browser-era
// implementation never had.
type Service struct {
	stores Stores
	levels LevelRepository
	guard  SubmissionGuard
	settle time.Duration
	now    func() time.Time

	// mu serializes joins. The watcher registry has its own lock so
	// broadcasts issued while mu is held never contend with it.
	mu  sync.Mutex
	rnd *rand.Rand

	hubsMu sync.Mutex
	hubs   map[string]*watchHub
}

func NewService(stores Stores, levelRepo LevelRepository, guard SubmissionGuard, settle time.Duration) *Service {
	return NewServiceWithClock(stores, levelRepo, guard, settle, time.Now)
}

// NewServiceWithClock allows deterministic timestamps in tests.
func NewServiceWithClock(stores Stores, levelRepo LevelRepository, guard SubmissionGuard, settle time.Duration, now func() time.Time) *Service {
	return &Service{
		stores: stores,
		levels: levelRepo,
		guard:  guard,
		settle: settle,
		now:    now,
		hubs:   make(map[string]*watchHub),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// OpenLobby builds the playlist snapshot and creates the session in the
// waiting phase. The session ID is time-based, matching the join URLs
// students receive.
func (s *Service) OpenLobby(ctx context.Context, requests []PlaylistRequest) (domain.Session, error) {
	if len(requests) == 0 {
		return domain.Session{}, domain.ErrEmptyPlaylist
	}

	now := s.now()
	playlist := make([]domain.PlaylistEntry, 0, len(requests))
	for _, req := range requests {
		level, err := s.levels.GetLevel(ctx, req.LevelID)
		if err != nil {
			return domain.Session{}, err
		}
		limit := req.TimeLimitSec
		if limit <= 0 {
			limit = defaultTimeLimitSec
		}
		playlist = append(playlist, domain.PlaylistEntry{
			LevelID:      level.ID,
			TimeLimitSec: limit,
			Level:        level,
		})
	}

	session := domain.Session{
		ID:           strconv.FormatInt(now.UnixMilli(), 10),
		Playlist:     playlist,
		CurrentRound: 0,
		Phase:        domain.PhaseWaiting,
		CreatedAt:    now,
	}
	if err := s.stores.Sessions.Save(ctx, session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// StartRound moves waiting → playing and pins the absolute round deadline,
// so every watcher derives the same remaining time from it.
func (s *Service) StartRound(ctx context.Context, sessionID string) (domain.Session, error) {
	session, err := s.stores.Sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Phase != domain.PhaseWaiting {
		return domain.Session{}, domain.ErrInvalidTransition
	}
	entry, ok := session.CurrentEntry()
	if !ok {
		return domain.Session{}, domain.ErrEmptyPlaylist
	}

	now := s.now()
	session.Phase = domain.PhasePlaying
	session.RoundEndsAt = now.Add(time.Duration(entry.TimeLimitSec) * time.Second)
	if session.StartedAt.IsZero() {
		session.StartedAt = now
	}
	saved, err := s.saveAndBroadcast(ctx, session)
	if err != nil {
		return domain.Session{}, err
	}
	s.scheduleDeadlineStop(saved)
	return saved, nil
}

// StopRound moves playing → review. It is invoked by the instructor, by
// the deadline elapsing, or by the auto-advance path once everyone has
// submitted.
func (s *Service) StopRound(ctx context.Context, sessionID string) (domain.Session, error) {
	return s.transition(ctx, sessionID, domain.PhaseReview)
}

// ShowLeaderboard moves review → leaderboard and returns the recomputed
// cumulative standings.
func (s *Service) ShowLeaderboard(ctx context.Context, sessionID string) (domain.Session, []domain.StandingEntry, error) {
	session, err := s.transition(ctx, sessionID, domain.PhaseLeaderboard)
	if err != nil {
		return domain.Session{}, nil, err
	}
	standings, err := s.Standings(ctx, sessionID)
	if err != nil {
		return domain.Session{}, nil, err
	}
	return session, standings, nil
}

// AdvanceRound leaves the leaderboard: to the next round when one remains
// in the playlist, to the final podium otherwise.
func (s *Service) AdvanceRound(ctx context.Context, sessionID string) (domain.Session, error) {
	session, err := s.stores.Sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Phase != domain.PhaseLeaderboard {
		return domain.Session{}, domain.ErrInvalidTransition
	}

	if session.HasNextRound() {
		session.CurrentRound++
		entry, _ := session.CurrentEntry()
		session.Phase = domain.PhasePlaying
		session.RoundEndsAt = s.now().Add(time.Duration(entry.TimeLimitSec) * time.Second)
	} else {
		session.Phase = domain.PhaseFinalPodium
	}
	saved, err := s.saveAndBroadcast(ctx, session)
	if err != nil {
		return domain.Session{}, err
	}
	if saved.Phase == domain.PhasePlaying {
		s.scheduleDeadlineStop(saved)
	}
	return saved, nil
}

// Terminate abandons a finished session. The document stays in the store;
// only the phase changes back to setup so clients stop rendering it.
func (s *Service) Terminate(ctx context.Context, sessionID string) (domain.Session, error) {
	return s.transition(ctx, sessionID, domain.PhaseSetup)
}

// Join adds a player to the session roster. Uniqueness is checked
// read-before-write, but joins are serialized here, which closes the race
// the client-coordinated version had.
func (s *Service) Join(ctx context.Context, sessionID, nickname, avatar string) (domain.Player, error) {
	session, err := s.stores.Sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Player{}, err
	}

	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return domain.Player{}, domain.ErrEmptyNickname
	}
	if len([]rune(nickname)) > maxNicknameLen {
		return domain.Player{}, domain.ErrNicknameTooLong
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	roster, err := s.stores.Players.List(ctx, session.ID)
	if err != nil {
		return domain.Player{}, err
	}
	for _, p := range roster {
		if p.Nickname == nickname {
			return domain.Player{}, domain.ErrNicknameTaken
		}
	}
	if avatar == "" {
		avatar = domain.Avatars[s.rnd.Intn(len(domain.Avatars))]
	}

	player := domain.Player{
		SessionID: session.ID,
		Nickname:  nickname,
		Avatar:    avatar,
		JoinedAt:  s.now(),
	}
	if err := s.stores.Players.Add(ctx, player); err != nil {
		return domain.Player{}, err
	}
	s.broadcast(ctx, session)
	return player, nil
}

// SubmitOrder scores the player's ordering and appends exactly one record
// for (player, round). Forced submissions carry no time bonus.
func (s *Service) SubmitOrder(ctx context.Context, sessionID, nickname string, roundIndex int, order []string, forced bool) (domain.ScoreRecord, error) {
	session, err := s.stores.Sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.ScoreRecord{}, err
	}
	if !session.Phase.Active() || (session.Phase == domain.PhaseReview && !forced) {
		return domain.ScoreRecord{}, domain.ErrRoundClosed
	}
	if roundIndex != session.CurrentRound {
		return domain.ScoreRecord{}, domain.ErrRoundClosed
	}

	roster, err := s.stores.Players.List(ctx, session.ID)
	if err != nil {
		return domain.ScoreRecord{}, err
	}
	var player *domain.Player
	for i := range roster {
		if roster[i].Nickname == nickname {
			player = &roster[i]
			break
		}
	}
	if player == nil {
		return domain.ScoreRecord{}, domain.ErrPlayerNotFound
	}

	acquired, err := s.guard.Acquire(ctx, session.ID, nickname, roundIndex)
	if err != nil {
		return domain.ScoreRecord{}, err
	}
	if !acquired {
		return domain.ScoreRecord{}, domain.ErrAlreadySubmitted
	}

	entry, ok := session.CurrentEntry()
	if !ok {
		return domain.ScoreRecord{}, domain.ErrRoundClosed
	}

	now := s.now()
	remaining := 0
	if !forced {
		remaining = secondsRemaining(session.RoundEndsAt, now)
	}
	score, correct := ScoreOrder(entry.Level.Steps, order, remaining)

	record := domain.ScoreRecord{
		SessionID:    session.ID,
		Nickname:     nickname,
		Avatar:       player.Avatar,
		LevelID:      entry.LevelID,
		RoundIndex:   roundIndex,
		Score:        score,
		CorrectCount: correct,
		TimeTaken:    remaining,
		Timestamp:    now,
	}
	if err := s.stores.Scores.Append(ctx, record); err != nil {
		// Free the marker so the retry is not rejected as a duplicate.
		if rerr := s.guard.Release(ctx, session.ID, nickname, roundIndex); rerr != nil {
			log.Printf("release submission marker failed for session %s: %v", session.ID, rerr)
		}
		return domain.ScoreRecord{}, err
	}

	s.maybeScheduleAutoStop(ctx, session, roster)
	s.broadcast(ctx, session)
	return record, nil
}

// maybeScheduleAutoStop arms the playing → review transition once every
// joined player has a record for the current round. The settle delay gives
// last-moment writes time to land before the phase flips.
func (s *Service) maybeScheduleAutoStop(ctx context.Context, session domain.Session, roster []domain.Player) {
	if session.Phase != domain.PhasePlaying || len(roster) == 0 {
		return
	}
	submitted, err := s.distinctSubmitters(ctx, session.ID, session.CurrentRound)
	if err != nil {
		log.Printf("auto-stop check failed for session %s: %v", session.ID, err)
		return
	}
	if submitted < len(roster) {
		return
	}
	round := session.CurrentRound
	time.AfterFunc(s.settle, func() {
		s.autoStop(session.ID, round)
	})
}

// scheduleDeadlineStop arms the playing → review fallback for when the
// deadline elapses without every player submitting. autoStop re-checks
// phase and round, so an instructor stop or an all-submitted stop that
// fires first makes this a no-op.
func (s *Service) scheduleDeadlineStop(session domain.Session) {
	wait := session.RoundEndsAt.Sub(s.now()) + s.settle
	if wait < 0 {
		wait = 0
	}
	round := session.CurrentRound
	time.AfterFunc(wait, func() {
		s.autoStop(session.ID, round)
	})
}

func (s *Service) autoStop(sessionID string, round int) {
	ctx := context.Background()
	session, err := s.stores.Sessions.Get(ctx, sessionID)
	if err != nil {
		log.Printf("auto-stop load failed for session %s: %v", sessionID, err)
		return
	}
	// The instructor may already have stopped the round, or moved on.
	if session.Phase != domain.PhasePlaying || session.CurrentRound != round {
		return
	}
	if _, err := s.StopRound(ctx, sessionID); err != nil {
		log.Printf("auto-stop transition failed for session %s: %v", sessionID, err)
	}
}

// Standings returns the cumulative ranking across all rounds so far.
func (s *Service) Standings(ctx context.Context, sessionID string) ([]domain.StandingEntry, error) {
	roster, err := s.stores.Players.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	records, err := s.stores.Scores.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return BuildStandings(roster, records), nil
}

// RoundResults returns the deduplicated records of a single round, best
// score first, faster submissions breaking ties.
func (s *Service) RoundResults(ctx context.Context, sessionID string, round int) ([]domain.ScoreRecord, error) {
	records, err := s.stores.Scores.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return buildRoundResults(records, round), nil
}

// CreateLevel validates and stores an instructor-authored level.
func (s *Service) CreateLevel(ctx context.Context, title string, steps []domain.Step) (domain.Level, error) {
	if s.stores.Library == nil {
		return domain.Level{}, domain.ErrLevelLibraryReadOnly
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Level{}, domain.ErrEmptyTitle
	}
	level := domain.Level{
		ID:    "custom-" + strconv.FormatInt(s.now().UnixNano(), 10),
		Title: title,
		Steps: steps,
	}
	if err := levels.Validate(level); err != nil {
		return domain.Level{}, err
	}
	if err := s.stores.Library.SaveLevel(ctx, level); err != nil {
		return domain.Level{}, err
	}
	return level, nil
}

func (s *Service) distinctSubmitters(ctx context.Context, sessionID string, round int) (int, error) {
	records, err := s.stores.Scores.List(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{})
	for _, rec := range records {
		if rec.RoundIndex == round {
			seen[rec.Nickname] = struct{}{}
		}
	}
	return len(seen), nil
}

func (s *Service) transition(ctx context.Context, sessionID string, target domain.Phase) (domain.Session, error) {
	session, err := s.stores.Sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if !session.Phase.CanTransitionTo(target) {
		return domain.Session{}, domain.ErrInvalidTransition
	}
	session.Phase = target
	return s.saveAndBroadcast(ctx, session)
}

func (s *Service) saveAndBroadcast(ctx context.Context, session domain.Session) (domain.Session, error) {
	if err := s.stores.Sessions.Save(ctx, session); err != nil {
		return domain.Session{}, err
	}
	s.broadcast(ctx, session)
	return session, nil
}
