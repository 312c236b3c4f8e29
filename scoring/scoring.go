// Package scoring validates proposed task scores against scenario limits.
// Validation is pure: no I/O, no side effects, and out-of-range values are
// rejected rather than clamped.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/hupe1980/chatreview/core"
)

// Policy decides how repeated scores for the same task are treated.
type Policy string

const (
	// PolicyAppend records every valid score; the latest one per task wins.
	PolicyAppend Policy = "append"
	// PolicyRejectDuplicate fails a second score for a task with ErrInvalidScore.
	PolicyRejectDuplicate Policy = "reject_duplicate"
)

// ParsePolicy converts a configuration value into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicyAppend:
		return PolicyAppend, nil
	case PolicyRejectDuplicate:
		return p, nil
	default:
		return "", fmt.Errorf("unknown score policy %q", s)
	}
}

// Unique reports whether the policy allows at most one score per task.
func (p Policy) Unique() bool { return p == PolicyRejectDuplicate }

// Validate checks points against task and returns them unchanged. It fails
// with core.ErrInvalidScore when points is negative, exceeds the task's
// max_points, or is not a finite number.
func Validate(task core.Task, points float64) (float64, error) {
	if math.IsNaN(points) || math.IsInf(points, 0) {
		return 0, core.Errorf("scoring.Validate", core.ErrInvalidScore, "points for %s must be a finite number", task.ID)
	}
	if points < 0 || points > task.MaxPoints {
		return 0, core.Errorf("scoring.Validate", core.ErrInvalidScore,
			"points %g for %s outside [0, %g]", points, task.ID, task.MaxPoints)
	}
	return points, nil
}

// ValidateFor resolves taskID within scenario and validates points. An
// unknown task fails with core.ErrInvalidScore since the model or client
// proposed a score the scenario cannot hold.
func ValidateFor(scenario core.Scenario, taskID string, points float64) (core.Task, float64, error) {
	task, ok := scenario.Task(taskID)
	if !ok {
		return core.Task{}, 0, core.Errorf("scoring.ValidateFor", core.ErrInvalidScore,
			"task %q not found in scenario %s", taskID, scenario.ID)
	}
	accepted, err := Validate(task, points)
	if err != nil {
		return core.Task{}, 0, err
	}
	return task, accepted, nil
}

// Summary aggregates the effective (latest) score per task.
type Summary struct {
	Total     float64            `json:"total"`
	Max       float64            `json:"max"`
	PerTask   map[string]float64 `json:"per_task"`
	Unscored  []string           `json:"unscored,omitempty"`
	Completed bool               `json:"completed"`
}

// Summarize computes a Summary for scenario from the latest scores.
func Summarize(scenario core.Scenario, latest map[string]core.Score) Summary {
	sum := Summary{PerTask: make(map[string]float64, len(latest))}
	for _, t := range scenario.Tasks {
		sum.Max += t.MaxPoints
		sc, ok := latest[t.ID]
		if !ok {
			sum.Unscored = append(sum.Unscored, t.ID)
			continue
		}
		sum.PerTask[t.ID] = sc.Awarded
		sum.Total += sc.Awarded
	}
	sum.Completed = len(scenario.Tasks) > 0 && len(sum.Unscored) == 0
	return sum
}
