package game

import (
	"testing"
	"time"

	"processmaster-service/internal/domain"
)

var fourSteps = []domain.Step{
	{ID: "s1", Content: "first"},
	{ID: "s2", Content: "second"},
	{ID: "s3", Content: "third"},
	{ID: "s4", Content: "fourth"},
}

func TestScoreOrderPerfectEarnsTimeBonus(t *testing.T) {
	score, correct := ScoreOrder(fourSteps, []string{"s1", "s2", "s3", "s4"}, 4)
	if correct != 4 {
		t.Fatalf("expected 4 correct, got %d", correct)
	}
	if score != 440 {
		t.Fatalf("expected 400 + 40 bonus, got %d", score)
	}
}

func TestScoreOrderImperfectGetsNoBonus(t *testing.T) {
	// 3 of 4 correct with 4s remaining: the bonus applies only to perfect
	// orderings, so the score stays at 300.
	score, correct := ScoreOrder(fourSteps, []string{"s1", "s2", "s4", "s3"}, 4)
	if correct != 2 {
		t.Fatalf("expected 2 correct, got %d", correct)
	}
	if score != 200 {
		t.Fatalf("expected 200, got %d", score)
	}

	score, correct = ScoreOrder(fourSteps, []string{"s1", "s2", "s3", "s1"}, 4)
	if correct != 3 {
		t.Fatalf("expected 3 correct, got %d", correct)
	}
	if score != 300 {
		t.Fatalf("expected 300 with no bonus, got %d", score)
	}
}

func TestScoreOrderPerfectAtDeadlineGetsNoBonus(t *testing.T) {
	score, _ := ScoreOrder(fourSteps, []string{"s1", "s2", "s3", "s4"}, 0)
	if score != 400 {
		t.Fatalf("expected 400, got %d", score)
	}
}

func TestScoreOrderToleratesGaps(t *testing.T) {
	// Forced submissions may leave slots empty or short.
	score, correct := ScoreOrder(fourSteps, []string{"s1", "", "s3"}, 10)
	if correct != 2 {
		t.Fatalf("expected 2 correct, got %d", correct)
	}
	if score != 200 {
		t.Fatalf("expected 200, got %d", score)
	}

	score, correct = ScoreOrder(fourSteps, nil, 10)
	if correct != 0 || score != 0 {
		t.Fatalf("expected zero score for empty order, got score=%d correct=%d", score, correct)
	}
}

func TestSecondsRemaining(t *testing.T) {
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

	if got := secondsRemaining(now.Add(4*time.Second), now); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
	// Partial seconds round up, matching the displayed countdown.
	if got := secondsRemaining(now.Add(3500*time.Millisecond), now); got != 4 {
		t.Fatalf("expected 4 for partial second, got %d", got)
	}
	if got := secondsRemaining(now, now); got != 0 {
		t.Fatalf("expected 0 at deadline, got %d", got)
	}
	if got := secondsRemaining(now.Add(-time.Second), now); got != 0 {
		t.Fatalf("expected 0 past deadline, got %d", got)
	}
}
