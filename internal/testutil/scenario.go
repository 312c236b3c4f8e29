package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/chatreview/catalog"
	"github.com/hupe1980/chatreview/core"
	"github.com/hupe1980/chatreview/model"
)

// Scenario returns a small scenario "S" for role "R" with a theory task T1
// (5 points), a coding task C1 (10 points) and an SQL task SQL1 (8 points).
func Scenario() core.Scenario {
	return core.Scenario{
		ID:     "S",
		RoleID: "R",
		Name:   "Test scenario",
		Tasks: []core.Task{
			{ID: "T1", Type: core.TaskTheory, Title: "Overfitting", MaxPoints: 5, HintsAllowed: true, RelatedTopics: []string{"regularization"}},
			{ID: "C1", Type: core.TaskCoding, Title: "Logistic regression", MaxPoints: 10, Language: "python", TestsID: "logreg_basic"},
			{ID: "SQL1", Type: core.TaskSQL, Title: "Top customers", MaxPoints: 8, SQLScenarioID: "ecommerce_basic"},
		},
	}
}

// Catalog returns a catalog holding role "R" and Scenario().
func Catalog() *catalog.Catalog {
	c := catalog.New()
	if err := c.Add(catalog.Seed{
		Roles:        []core.Role{{ID: "R", Name: "Test role"}},
		Scenarios:    []core.Scenario{Scenario()},
		SQLScenarios: []core.SQLScenario{{ID: "ecommerce_basic", Name: "E-commerce"}},
	}); err != nil {
		panic(err)
	}
	return c
}

// ToolRound returns a scripted round requesting a single native tool call.
func ToolRound(id, name string, args map[string]any) model.Round {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	return model.Round{Calls: []core.FunctionCall{{ID: id, Name: name, Arguments: string(raw)}}}
}

// ScoreRound returns a scripted round calling score_task.
func ScoreRound(taskID string, points float64, rationale string) model.Round {
	return ToolRound(fmt.Sprintf("score-%s", taskID), "score_task", map[string]any{
		"task_id":   taskID,
		"points":    points,
		"rationale": rationale,
	})
}
