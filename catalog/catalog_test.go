package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chatreview/core"
)

func TestDefault(t *testing.T) {
	c := Default()

	roles := c.Roles()
	require.Len(t, roles, 3)
	assert.Equal(t, "ds", roles[0].ID)

	s, err := c.Scenario("ds-junior-ml")
	require.NoError(t, err)
	assert.Equal(t, "ds", s.RoleID)
	require.Len(t, s.Tasks, 3)

	coding, ok := s.Task("C1")
	require.True(t, ok)
	assert.Equal(t, core.TaskCoding, coding.Type)
	assert.InDelta(t, 10.0, coding.MaxPoints, 1e-9)
	assert.Equal(t, "logreg_basic", coding.TestsID)

	assert.Len(t, c.Scenarios("backend"), 2)
	assert.Len(t, c.Scenarios(""), 6)

	q, err := c.SQLScenario("ecommerce_basic")
	require.NoError(t, err)
	assert.Contains(t, q.Schema, "CREATE TABLE orders")
}

func TestNotFound(t *testing.T) {
	c := Default()
	_, err := c.Role("nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = c.Scenario("nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = c.SQLScenario("nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
roles:
  - id: qa
    name: QA
scenarios:
  - id: qa-basics
    role_id: qa
    name: QA basics
    tasks:
      - {id: T1, type: theory, title: Test pyramid, max_points: 4}
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	s, err := c.Scenario("qa-basics")
	require.NoError(t, err)
	assert.Equal(t, "qa", s.RoleID)
	_, err = c.Scenario("ds-junior-ml")
	assert.NoError(t, err)
}

func TestAddRejectsInvalidSeeds(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown role", "scenarios: [{id: x, role_id: ghost, tasks: []}]"},
		{"bad task type", "scenarios: [{id: x, role_id: ds, tasks: [{id: A, type: essay, max_points: 1}]}]"},
		{"duplicate task", "scenarios: [{id: x, role_id: ds, tasks: [{id: A, type: theory}, {id: A, type: sql}]}]"},
		{"negative points", "scenarios: [{id: x, role_id: ds, tasks: [{id: A, type: theory, max_points: -1}]}]"},
		{"not yaml", "roles: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			err := c.LoadBytes([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrInvalidArgument)
			_, err = c.Scenario("x")
			assert.ErrorIs(t, err, core.ErrNotFound)
		})
	}
}
