package game_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"processmaster-service/internal/domain"
	"processmaster-service/internal/game"
	"processmaster-service/internal/infra/memory"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testLevels() map[string]domain.Level {
	return map[string]domain.Level{
		"proc-1": {
			ID:    "proc-1",
			Title: "Four Step Procedure",
			Steps: []domain.Step{
				{ID: "s1", Content: "one"},
				{ID: "s2", Content: "two"},
				{ID: "s3", Content: "three"},
				{ID: "s4", Content: "four"},
			},
		},
		"proc-2": {
			ID:    "proc-2",
			Title: "Three Step Procedure",
			Steps: []domain.Step{
				{ID: "t1", Content: "uno"},
				{ID: "t2", Content: "dos"},
				{ID: "t3", Content: "tres"},
			},
		},
	}
}

func newTestService(settle time.Duration) (*game.Service, *clock) {
	c := &clock{t: time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)}
	loader := memory.NewStaticLevelLoader(testLevels())
	stores := game.Stores{
		Sessions: memory.NewSessionStore(),
		Players:  memory.NewPlayerStore(),
		Scores:   memory.NewScoreStore(),
		Library:  loader,
	}
	repo := memory.NewLevelRepository(loader, 5*time.Minute)
	svc := game.NewServiceWithClock(stores, repo, memory.NewSubmissionGuard(), settle, c.Now)
	return svc, c
}

func TestOpenLobbyRequiresPlaylist(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(time.Hour)

	if _, err := svc.OpenLobby(ctx, nil); err != domain.ErrEmptyPlaylist {
		t.Fatalf("expected ErrEmptyPlaylist, got %v", err)
	}
	if _, err := svc.OpenLobby(ctx, []game.PlaylistRequest{{LevelID: "missing"}}); err != domain.ErrLevelNotFound {
		t.Fatalf("expected ErrLevelNotFound, got %v", err)
	}
}

func TestTwoRoundSessionFlow(t *testing.T) {
	ctx := context.Background()
	svc, c := newTestService(time.Hour)

	session, err := svc.OpenLobby(ctx, []game.PlaylistRequest{
		{LevelID: "proc-1", TimeLimitSec: 10},
		{LevelID: "proc-2", TimeLimitSec: 30},
	})
	if err != nil {
		t.Fatalf("open lobby: %v", err)
	}
	if session.Phase != domain.PhaseWaiting || len(session.Playlist) != 2 {
		t.Fatalf("unexpected session after open: %+v", session)
	}

	if _, err := svc.Join(ctx, session.ID, "Alice", "🦊"); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if _, err := svc.Join(ctx, session.ID, "Bob", "🐼"); err != nil {
		t.Fatalf("join bob: %v", err)
	}

	session, err = svc.StartRound(ctx, session.ID)
	if err != nil {
		t.Fatalf("start round: %v", err)
	}
	if session.Phase != domain.PhasePlaying {
		t.Fatalf("expected playing, got %s", session.Phase)
	}

	// 6 seconds in, 4 remain on the 10-second clock.
	c.Advance(6 * time.Second)

	record, err := svc.SubmitOrder(ctx, session.ID, "Alice", 0, []string{"s1", "s2", "s3", "s4"}, false)
	if err != nil {
		t.Fatalf("submit alice: %v", err)
	}
	if record.Score != 440 || record.CorrectCount != 4 || record.TimeTaken != 4 {
		t.Fatalf("expected perfect 440 with 4s left, got %+v", record)
	}

	record, err = svc.SubmitOrder(ctx, session.ID, "Bob", 0, []string{"s1", "s2", "s3", "s1"}, false)
	if err != nil {
		t.Fatalf("submit bob: %v", err)
	}
	if record.Score != 300 || record.CorrectCount != 3 {
		t.Fatalf("expected imperfect 300 without bonus, got %+v", record)
	}

	if _, err := svc.StopRound(ctx, session.ID); err != nil {
		t.Fatalf("stop round: %v", err)
	}
	session, standings, err := svc.ShowLeaderboard(ctx, session.ID)
	if err != nil {
		t.Fatalf("show leaderboard: %v", err)
	}
	if session.Phase != domain.PhaseLeaderboard {
		t.Fatalf("expected leaderboard, got %s", session.Phase)
	}
	if standings[0].Nickname != "Alice" || standings[0].TotalScore != 440 {
		t.Fatalf("expected Alice leading with 440, got %+v", standings[0])
	}

	session, err = svc.AdvanceRound(ctx, session.ID)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if session.Phase != domain.PhasePlaying || session.CurrentRound != 1 {
		t.Fatalf("expected round 1 playing, got %+v", session)
	}

	// Finish round 2 without submissions and head to the podium.
	if _, err := svc.StopRound(ctx, session.ID); err != nil {
		t.Fatalf("stop round 2: %v", err)
	}
	if _, _, err := svc.ShowLeaderboard(ctx, session.ID); err != nil {
		t.Fatalf("show leaderboard 2: %v", err)
	}
	session, err = svc.AdvanceRound(ctx, session.ID)
	if err != nil {
		t.Fatalf("advance to podium: %v", err)
	}
	if session.Phase != domain.PhaseFinalPodium {
		t.Fatalf("expected final podium, got %s", session.Phase)
	}

	session, err = svc.Terminate(ctx, session.ID)
	if err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if session.Phase != domain.PhaseSetup {
		t.Fatalf("expected setup after terminate, got %s", session.Phase)
	}
}

func TestSubmitIsIdempotentPerRound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(time.Hour)

	session := openAndStart(t, svc, "proc-1", 60)
	if _, err := svc.Join(ctx, session.ID, "Alice", ""); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := svc.SubmitOrder(ctx, session.ID, "Alice", 0, []string{"s1", "s2", "s3", "s4"}, false); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := svc.SubmitOrder(ctx, session.ID, "Alice", 0, []string{"s4", "s3", "s2", "s1"}, false); err != domain.ErrAlreadySubmitted {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}

	standings, err := svc.Standings(ctx, session.ID)
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	if len(standings) != 1 || standings[0].TotalScore == 0 {
		t.Fatalf("expected one scored entry, got %+v", standings)
	}
}

func TestForcedSubmitDuringReviewHasNoBonus(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(time.Hour)

	session := openAndStart(t, svc, "proc-1", 60)
	if _, err := svc.Join(ctx, session.ID, "Alice", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := svc.StopRound(ctx, session.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// Plain submits are rejected once the round is in review.
	if _, err := svc.SubmitOrder(ctx, session.ID, "Alice", 0, []string{"s1", "s2", "s3", "s4"}, false); err != domain.ErrRoundClosed {
		t.Fatalf("expected ErrRoundClosed, got %v", err)
	}

	// The forced path submits whatever is on screen, with zero bonus even
	// though the wall clock has time left.
	record, err := svc.SubmitOrder(ctx, session.ID, "Alice", 0, []string{"s1", "s2", "s3", "s4"}, true)
	if err != nil {
		t.Fatalf("forced submit: %v", err)
	}
	if record.Score != 400 || record.TimeTaken != 0 {
		t.Fatalf("expected 400 with no bonus, got %+v", record)
	}
}

func TestSubmitStaleRoundRejected(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(time.Hour)

	session := openAndStart(t, svc, "proc-1", 60)
	if _, err := svc.Join(ctx, session.ID, "Alice", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := svc.SubmitOrder(ctx, session.ID, "Alice", 1, []string{"s1"}, false); err != domain.ErrRoundClosed {
		t.Fatalf("expected ErrRoundClosed for stale round index, got %v", err)
	}
}

func TestSinglePlaylistAdvancesToFinalPodium(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(time.Hour)

	session := openAndStart(t, svc, "proc-2", 60)
	if _, err := svc.StopRound(ctx, session.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, _, err := svc.ShowLeaderboard(ctx, session.ID); err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	session, err := svc.AdvanceRound(ctx, session.ID)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if session.Phase != domain.PhaseFinalPodium {
		t.Fatalf("expected final podium after last round, got %s", session.Phase)
	}
}

func TestAutoAdvanceWaitsForAllPlayers(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(20 * time.Millisecond)

	session := openAndStart(t, svc, "proc-1", 60)
	if _, err := svc.Join(ctx, session.ID, "Alice", ""); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if _, err := svc.Join(ctx, session.ID, "Bob", ""); err != nil {
		t.Fatalf("join bob: %v", err)
	}

	if _, err := svc.SubmitOrder(ctx, session.ID, "Alice", 0, []string{"s1", "s2", "s3", "s4"}, false); err != nil {
		t.Fatalf("submit alice: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	snapshot := mustSnapshot(t, svc, ctx, session.ID)
	if snapshot.Session.Phase != domain.PhasePlaying {
		t.Fatalf("round must not auto-stop before all players submit, got %s", snapshot.Session.Phase)
	}

	if _, err := svc.SubmitOrder(ctx, session.ID, "Bob", 0, []string{"s1", "s2", "s3", "s4"}, false); err != nil {
		t.Fatalf("submit bob: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	snapshot = mustSnapshot(t, svc, ctx, session.ID)
	if snapshot.Session.Phase != domain.PhaseReview {
		t.Fatalf("expected auto-stop into review, got %s", snapshot.Session.Phase)
	}
}

func TestJoinReachesWatchers(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(time.Hour)

	session, err := svc.OpenLobby(ctx, []game.PlaylistRequest{{LevelID: "proc-1", TimeLimitSec: 60}})
	if err != nil {
		t.Fatalf("open lobby: %v", err)
	}

	updates, cancel, err := svc.Watch(ctx, session.ID)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()
	<-updates // initial snapshot

	done := make(chan domain.Player, 1)
	go func() {
		player, err := svc.Join(ctx, session.ID, "Alice", "")
		if err != nil {
			t.Errorf("join: %v", err)
		}
		done <- player
	}()

	select {
	case snap := <-updates:
		if len(snap.Players) != 1 || snap.Players[0].Nickname != "Alice" {
			t.Fatalf("expected roster update with Alice, got %+v", snap.Players)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("join never reached the watcher")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("join never returned")
	}
}

type flakyScoreStore struct {
	game.ScoreStore
	failNext bool
}

func (s *flakyScoreStore) Append(ctx context.Context, record domain.ScoreRecord) error {
	if s.failNext {
		s.failNext = false
		return errors.New("write failed")
	}
	return s.ScoreStore.Append(ctx, record)
}

func TestSubmitRetriesAfterStoreFailure(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)}
	loader := memory.NewStaticLevelLoader(testLevels())
	scores := &flakyScoreStore{ScoreStore: memory.NewScoreStore(), failNext: true}
	stores := game.Stores{
		Sessions: memory.NewSessionStore(),
		Players:  memory.NewPlayerStore(),
		Scores:   scores,
		Library:  loader,
	}
	svc := game.NewServiceWithClock(stores, memory.NewLevelRepository(loader, 5*time.Minute), memory.NewSubmissionGuard(), time.Hour, c.Now)

	session, err := svc.OpenLobby(ctx, []game.PlaylistRequest{{LevelID: "proc-1", TimeLimitSec: 60}})
	if err != nil {
		t.Fatalf("open lobby: %v", err)
	}
	if _, err := svc.Join(ctx, session.ID, "Alice", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := svc.StartRound(ctx, session.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	order := []string{"s1", "s2", "s3", "s4"}
	if _, err := svc.SubmitOrder(ctx, session.ID, "Alice", 0, order, false); err == nil {
		t.Fatalf("expected the first submit to fail on the store write")
	}

	// The failed write released the marker, so the retry must score.
	record, err := svc.SubmitOrder(ctx, session.ID, "Alice", 0, order, false)
	if err != nil {
		t.Fatalf("retry after store failure: %v", err)
	}
	if record.CorrectCount != 4 {
		t.Fatalf("unexpected retried record: %+v", record)
	}

	records, err := svc.RoundResults(ctx, session.ID, 0)
	if err != nil {
		t.Fatalf("round results: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly one persisted record, got %d", len(records))
	}
}

func TestRoundStopsAfterDeadline(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(10 * time.Millisecond)

	session, err := svc.OpenLobby(ctx, []game.PlaylistRequest{{LevelID: "proc-1", TimeLimitSec: 1}})
	if err != nil {
		t.Fatalf("open lobby: %v", err)
	}
	if _, err := svc.Join(ctx, session.ID, "Alice", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := svc.StartRound(ctx, session.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Nobody submits; the deadline timer must flip the round to review.
	time.Sleep(1300 * time.Millisecond)
	snapshot := mustSnapshot(t, svc, ctx, session.ID)
	if snapshot.Session.Phase != domain.PhaseReview {
		t.Fatalf("expected review after the deadline elapsed, got %s", snapshot.Session.Phase)
	}
}

func TestJoinValidations(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(time.Hour)

	session, err := svc.OpenLobby(ctx, []game.PlaylistRequest{{LevelID: "proc-1", TimeLimitSec: 60}})
	if err != nil {
		t.Fatalf("open lobby: %v", err)
	}

	if _, err := svc.Join(ctx, session.ID, "   ", ""); err != domain.ErrEmptyNickname {
		t.Fatalf("expected ErrEmptyNickname, got %v", err)
	}
	if _, err := svc.Join(ctx, session.ID, "ThisNameIsWayTooLong", ""); err != domain.ErrNicknameTooLong {
		t.Fatalf("expected ErrNicknameTooLong, got %v", err)
	}

	player, err := svc.Join(ctx, session.ID, "Alice", "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if player.Avatar == "" {
		t.Fatalf("expected a random avatar to be assigned")
	}
	if _, err := svc.Join(ctx, session.ID, "Alice", "🐸"); err != domain.ErrNicknameTaken {
		t.Fatalf("expected ErrNicknameTaken, got %v", err)
	}

	if _, err := svc.Join(ctx, "missing", "Carol", ""); err != domain.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestWatchReceivesPhaseChanges(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(time.Hour)

	session, err := svc.OpenLobby(ctx, []game.PlaylistRequest{{LevelID: "proc-1", TimeLimitSec: 60}})
	if err != nil {
		t.Fatalf("open lobby: %v", err)
	}

	updates, cancel, err := svc.Watch(ctx, session.ID)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()

	first := <-updates
	if first.Session.Phase != domain.PhaseWaiting {
		t.Fatalf("expected initial waiting snapshot, got %s", first.Session.Phase)
	}

	if _, err := svc.StartRound(ctx, session.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	update := <-updates
	if update.Session.Phase != domain.PhasePlaying {
		t.Fatalf("expected playing snapshot, got %s", update.Session.Phase)
	}
}

func TestInvalidTransitionsRejected(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(time.Hour)

	session := openAndStart(t, svc, "proc-1", 60)

	if _, err := svc.StartRound(ctx, session.ID); err != domain.ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition for double start, got %v", err)
	}
	if _, err := svc.AdvanceRound(ctx, session.ID); err != domain.ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition for advance while playing, got %v", err)
	}
	if _, _, err := svc.ShowLeaderboard(ctx, session.ID); err != domain.ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition for leaderboard while playing, got %v", err)
	}
	if _, err := svc.Terminate(ctx, session.ID); err != domain.ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition for terminate while playing, got %v", err)
	}
}

func TestCreateLevelValidatesAndStores(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(time.Hour)

	if _, err := svc.CreateLevel(ctx, "  ", []domain.Step{{ID: "a", Content: "A"}, {ID: "b", Content: "B"}}); err != domain.ErrEmptyTitle {
		t.Fatalf("expected ErrEmptyTitle, got %v", err)
	}
	if _, err := svc.CreateLevel(ctx, "Tiny", []domain.Step{{ID: "a", Content: "only"}}); err != domain.ErrTooFewSteps {
		t.Fatalf("expected ErrTooFewSteps, got %v", err)
	}
	if _, err := svc.CreateLevel(ctx, "Dup", []domain.Step{
		{ID: "a", Content: "Same"},
		{ID: "b", Content: "same "},
	}); err != domain.ErrDuplicateStepText {
		t.Fatalf("expected ErrDuplicateStepText, got %v", err)
	}

	level, err := svc.CreateLevel(ctx, "Custom Flow", []domain.Step{
		{ID: "c1", Content: "start"},
		{ID: "c2", Content: "finish"},
	})
	if err != nil {
		t.Fatalf("create level: %v", err)
	}

	// The authored level is immediately usable in a playlist.
	session, err := svc.OpenLobby(ctx, []game.PlaylistRequest{{LevelID: level.ID, TimeLimitSec: 45}})
	if err != nil {
		t.Fatalf("open lobby with custom level: %v", err)
	}
	if session.Playlist[0].Level.Title != "Custom Flow" {
		t.Fatalf("expected custom level snapshot, got %+v", session.Playlist[0])
	}
}

func openAndStart(t *testing.T, svc *game.Service, levelID string, limit int) domain.Session {
	t.Helper()
	ctx := context.Background()
	session, err := svc.OpenLobby(ctx, []game.PlaylistRequest{{LevelID: levelID, TimeLimitSec: limit}})
	if err != nil {
		t.Fatalf("open lobby: %v", err)
	}
	session, err = svc.StartRound(ctx, session.ID)
	if err != nil {
		t.Fatalf("start round: %v", err)
	}
	return session
}

func mustSnapshot(t *testing.T, svc *game.Service, ctx context.Context, sessionID string) game.Snapshot {
	t.Helper()
	updates, cancel, err := svc.Watch(ctx, sessionID)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()
	return <-updates
}
