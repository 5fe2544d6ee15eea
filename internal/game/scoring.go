package game

import (
	"time"

	"processmaster-service/internal/domain"
)

// ScoreOrder computes the round score for a submitted ordering: 100 points
// per position whose step ID matches the canonical order, plus a time
// bonus of 10 points per remaining second. The bonus is awarded only when
// every position is filled and correct.
func ScoreOrder(steps []domain.Step, order []string, remainingSec int) (score, correctCount int) {
	for i, step := range steps {
		if i < len(order) && order[i] == step.ID {
			correctCount++
		}
	}
	score = correctCount * 100
	if correctCount == len(steps) && len(steps) > 0 && remainingSec > 0 {
		score += remainingSec * 10
	}
	return score, correctCount
}

// secondsRemaining measures the whole seconds left until the round
// deadline, rounding partial seconds up the way the countdown displays
// them. Past the deadline it is zero.
func secondsRemaining(deadline, now time.Time) int {
	if !now.Before(deadline) {
		return 0
	}
	remaining := deadline.Sub(now)
	secs := int(remaining / time.Second)
	if remaining%time.Second != 0 {
		secs++
	}
	return secs
}
