package core

// TaskType classifies how a task is solved and evaluated.
type TaskType string

const (
	TaskTheory TaskType = "theory"
	TaskCoding TaskType = "coding"
	TaskSQL    TaskType = "sql"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTheory, TaskCoding, TaskSQL:
		return true
	}
	return false
}

// Task is read-only reference data taken from a scenario.
type Task struct {
	ID            string   `json:"id" yaml:"id"`
	Type          TaskType `json:"type" yaml:"type"`
	Title         string   `json:"title" yaml:"title"`
	Description   string   `json:"description,omitempty" yaml:"description,omitempty"`
	MaxPoints     float64  `json:"max_points" yaml:"max_points"`
	Language      string   `json:"language,omitempty" yaml:"language,omitempty"`
	TestsID       string   `json:"tests_id,omitempty" yaml:"tests_id,omitempty"`
	SQLScenarioID string   `json:"sql_scenario_id,omitempty" yaml:"sql_scenario_id,omitempty"`
	HintsAllowed  bool     `json:"hints_allowed,omitempty" yaml:"hints_allowed,omitempty"`
	RelatedTopics []string `json:"related_topics,omitempty" yaml:"related_topics,omitempty"`
}

// Role is a job profile candidates are interviewed for.
type Role struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Scenario is an ordered set of tasks bound to a role.
type Scenario struct {
	ID          string `json:"id" yaml:"id"`
	RoleID      string `json:"role_id" yaml:"role_id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Difficulty  string `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	// RAGCorpusID names the default corpus for rag_search calls (optional).
	RAGCorpusID string `json:"rag_corpus_id,omitempty" yaml:"rag_corpus_id,omitempty"`
	Tasks       []Task `json:"tasks" yaml:"tasks"`
}

// Task looks up a task by id.
func (s Scenario) Task(id string) (Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// SQLScenario describes a database fixture used by the SQL sandbox.
type SQLScenario struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Schema      string `json:"db_schema,omitempty" yaml:"db_schema,omitempty"`
}

// Catalog exposes the read-only interview reference data.
type Catalog interface {
	Role(id string) (Role, error)
	Roles() []Role
	Scenario(id string) (Scenario, error)
	// Scenarios lists scenarios for a role, or all scenarios when roleID is empty.
	Scenarios(roleID string) []Scenario
	SQLScenario(id string) (SQLScenario, error)
}
