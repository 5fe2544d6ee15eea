package domain

// Phase is the lifecycle stage of a session. The teacher client drives the
// sequence setup → waiting → playing → review → leaderboard, from which
// play loops back for the next round or ends at the final podium.
type Phase string

const (
	PhaseSetup       Phase = "setup"
	PhaseWaiting     Phase = "waiting"
	PhasePlaying     Phase = "playing"
	PhaseReview      Phase = "review"
	PhaseLeaderboard Phase = "leaderboard"
	PhaseFinalPodium Phase = "final_podium"
)

func (p Phase) String() string {
	return string(p)
}

var phaseTransitions = map[Phase][]Phase{
	PhaseSetup:       {PhaseWaiting},
	PhaseWaiting:     {PhasePlaying},
	PhasePlaying:     {PhaseReview},
	PhaseReview:      {PhaseLeaderboard},
	PhaseLeaderboard: {PhasePlaying, PhaseFinalPodium},
	PhaseFinalPodium: {PhaseSetup},
}

// CanTransitionTo reports whether moving from p to target is a legal step
// of the session state machine.
func (p Phase) CanTransitionTo(target Phase) bool {
	for _, next := range phaseTransitions[p] {
		if next == target {
			return true
		}
	}
	return false
}

// Active reports whether players are still interacting with the current
// round (submissions are accepted, possibly forced).
func (p Phase) Active() bool {
	return p == PhasePlaying || p == PhaseReview
}
