// Package levels holds the built-in procedure catalog and the validation
// rules shared by every level source.
package levels

import (
	"strings"

	"processmaster-service/internal/domain"
)

// Builtin returns the fixed procedure catalog shipped with the service.
func Builtin() map[string]domain.Level {
	return map[string]domain.Level{
		"mckinsey": {
			ID:    "mckinsey",
			Title: "McKinsey 7-Step Problem Solving",
			Steps: []domain.Step{
				{ID: "m1", Content: "Define problem"},
				{ID: "m2", Content: "Structure problem"},
				{ID: "m3", Content: "Prioritise issues"},
				{ID: "m4", Content: "Plan analysis and work"},
				{ID: "m5", Content: "Conduct analyses"},
				{ID: "m6", Content: "Synthesise findings"},
				{ID: "m7", Content: "Develop recommendation"},
			},
		},
		"design_thinking": {
			ID:    "design_thinking",
			Title: "Design Thinking",
			Steps: []domain.Step{
				{ID: "dt1", Content: "Empathize"},
				{ID: "dt2", Content: "Define"},
				{ID: "dt3", Content: "Ideate"},
				{ID: "dt4", Content: "Prototype"},
				{ID: "dt5", Content: "Test"},
			},
		},
		"bpr": {
			ID:    "bpr",
			Title: "Business Process Reengineering (BPR)",
			Steps: []domain.Step{
				{ID: "bpr1", Content: "Identify process"},
				{ID: "bpr2", Content: "Analyse As-Is"},
				{ID: "bpr3", Content: "Design To-Be"},
				{ID: "bpr4", Content: "Test & Implement To-Be"},
			},
		},
		"dmaic": {
			ID:    "dmaic",
			Title: "DMAIC (Six Sigma)",
			Steps: []domain.Step{
				{ID: "dm1", Content: "Define"},
				{ID: "dm2", Content: "Measure"},
				{ID: "dm3", Content: "Analyze"},
				{ID: "dm4", Content: "Improve"},
				{ID: "dm5", Content: "Control"},
			},
		},
		"eight_d": {
			ID:    "eight_d",
			Title: "8D Problem Solving",
			Steps: []domain.Step{
				{ID: "8d1", Content: "Create team"},
				{ID: "8d2", Content: "Define problem"},
				{ID: "8d3", Content: "Implement interim solution"},
				{ID: "8d4", Content: "Identify root cause"},
				{ID: "8d5", Content: "Develop corrective actions"},
				{ID: "8d6", Content: "Implement corrective actions"},
				{ID: "8d7", Content: "Prevent recurrence"},
				{ID: "8d8", Content: "Recognise team"},
			},
		},
	}
}

// Validate enforces the authoring rules: at least two steps, unique step
// IDs, and step text unique ignoring case.
func Validate(level domain.Level) error {
	if len(level.Steps) < 2 {
		return domain.ErrTooFewSteps
	}
	ids := make(map[string]struct{}, len(level.Steps))
	texts := make(map[string]struct{}, len(level.Steps))
	for _, step := range level.Steps {
		if _, ok := ids[step.ID]; ok {
			return domain.ErrDuplicateStepID
		}
		ids[step.ID] = struct{}{}
		key := strings.ToLower(strings.TrimSpace(step.Content))
		if _, ok := texts[key]; ok {
			return domain.ErrDuplicateStepText
		}
		texts[key] = struct{}{}
	}
	return nil
}
