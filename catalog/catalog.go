// Package catalog serves the read-only interview reference data: roles,
// scenarios with their tasks and SQL sandbox fixtures. A built-in demo set
// is always available; a YAML seed file can add to or replace entries.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/chatreview/core"
)

//go:embed defaults.yaml
var defaultSeed []byte

// Seed is the on-disk layout of a catalog file.
type Seed struct {
	Roles        []core.Role        `yaml:"roles"`
	Scenarios    []core.Scenario    `yaml:"scenarios"`
	SQLScenarios []core.SQLScenario `yaml:"sql_scenarios"`
}

// Catalog is an in-memory core.Catalog. It is safe for concurrent use.
type Catalog struct {
	mu           sync.RWMutex
	roles        map[string]core.Role
	roleOrder    []string
	scenarios    map[string]core.Scenario
	scenOrder    []string
	sqlScenarios map[string]core.SQLScenario
}

var _ core.Catalog = (*Catalog)(nil)

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		roles:        map[string]core.Role{},
		scenarios:    map[string]core.Scenario{},
		sqlScenarios: map[string]core.SQLScenario{},
	}
}

// Default returns a catalog holding the built-in demo roles and scenarios.
func Default() *Catalog {
	c := New()
	if err := c.LoadBytes(defaultSeed); err != nil {
		panic(fmt.Sprintf("catalog: invalid built-in seed: %v", err))
	}
	return c
}

// Load returns the built-in catalog extended with the seed file at path.
// Entries in the file replace built-in entries with the same id.
func Load(path string) (*Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog seed: %w", err)
	}
	if err := c.LoadBytes(data); err != nil {
		return nil, fmt.Errorf("catalog seed %s: %w", path, err)
	}
	return c, nil
}

// LoadBytes merges a YAML seed document into the catalog.
func (c *Catalog) LoadBytes(data []byte) error {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return core.E("catalog.Load", core.ErrInvalidArgument, err)
	}
	return c.Add(seed)
}

// Add validates and merges seed. Nothing is merged when validation fails.
func (c *Catalog) Add(seed Seed) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	knownRole := func(id string) bool {
		if _, ok := c.roles[id]; ok {
			return true
		}
		for _, r := range seed.Roles {
			if r.ID == id {
				return true
			}
		}
		return false
	}
	for _, r := range seed.Roles {
		if r.ID == "" {
			return core.Errorf("catalog.Add", core.ErrInvalidArgument, "role without id")
		}
	}
	for _, s := range seed.Scenarios {
		if err := validateScenario(s); err != nil {
			return err
		}
		if !knownRole(s.RoleID) {
			return core.Errorf("catalog.Add", core.ErrInvalidArgument, "scenario %s references unknown role %q", s.ID, s.RoleID)
		}
	}
	for _, q := range seed.SQLScenarios {
		if q.ID == "" {
			return core.Errorf("catalog.Add", core.ErrInvalidArgument, "sql scenario without id")
		}
	}

	for _, r := range seed.Roles {
		if _, ok := c.roles[r.ID]; !ok {
			c.roleOrder = append(c.roleOrder, r.ID)
		}
		c.roles[r.ID] = r
	}
	for _, s := range seed.Scenarios {
		if _, ok := c.scenarios[s.ID]; !ok {
			c.scenOrder = append(c.scenOrder, s.ID)
		}
		c.scenarios[s.ID] = s
	}
	for _, q := range seed.SQLScenarios {
		c.sqlScenarios[q.ID] = q
	}
	return nil
}

func validateScenario(s core.Scenario) error {
	if s.ID == "" {
		return core.Errorf("catalog.Add", core.ErrInvalidArgument, "scenario without id")
	}
	seen := map[string]bool{}
	for _, t := range s.Tasks {
		switch {
		case t.ID == "":
			return core.Errorf("catalog.Add", core.ErrInvalidArgument, "scenario %s: task without id", s.ID)
		case seen[t.ID]:
			return core.Errorf("catalog.Add", core.ErrInvalidArgument, "scenario %s: duplicate task %s", s.ID, t.ID)
		case !t.Type.Valid():
			return core.Errorf("catalog.Add", core.ErrInvalidArgument, "scenario %s: task %s has unknown type %q", s.ID, t.ID, t.Type)
		case t.MaxPoints < 0:
			return core.Errorf("catalog.Add", core.ErrInvalidArgument, "scenario %s: task %s has negative max_points", s.ID, t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}

// Role returns the role with id or ErrNotFound.
func (c *Catalog) Role(id string) (core.Role, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.roles[id]
	if !ok {
		return core.Role{}, core.Errorf("catalog.Role", core.ErrNotFound, "role %q", id)
	}
	return r, nil
}

// Roles lists roles in insertion order.
func (c *Catalog) Roles() []core.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.Role, 0, len(c.roleOrder))
	for _, id := range c.roleOrder {
		out = append(out, c.roles[id])
	}
	return out
}

// Scenario returns the scenario with id or ErrNotFound.
func (c *Catalog) Scenario(id string) (core.Scenario, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.scenarios[id]
	if !ok {
		return core.Scenario{}, core.Errorf("catalog.Scenario", core.ErrNotFound, "scenario %q", id)
	}
	return s, nil
}

// Scenarios lists scenarios for roleID (all when empty) in insertion order.
func (c *Catalog) Scenarios(roleID string) []core.Scenario {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.Scenario, 0, len(c.scenOrder))
	for _, id := range c.scenOrder {
		s := c.scenarios[id]
		if roleID == "" || s.RoleID == roleID {
			out = append(out, s)
		}
	}
	return out
}

// SQLScenario returns the SQL fixture with id or ErrNotFound.
func (c *Catalog) SQLScenario(id string) (core.SQLScenario, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.sqlScenarios[id]
	if !ok {
		return core.SQLScenario{}, core.Errorf("catalog.SQLScenario", core.ErrNotFound, "sql scenario %q", id)
	}
	return q, nil
}

// SQLScenarios lists SQL fixtures ordered by id.
func (c *Catalog) SQLScenarios() []core.SQLScenario {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.SQLScenario, 0, len(c.sqlScenarios))
	for _, q := range c.sqlScenarios {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
