package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/skillforge/skillforge-backend/internal/types"
)

// Subtask is one atomic unit of a mission. Dependencies reference other
// subtask ids within the same mission.
type Subtask struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// Choice is one declared option of a decision point. Consequence is an
// opaque catalog-authored payload returned to the caller when the choice is
// recorded.
type Choice struct {
	ID          string          `json:"id"`
	Label       string          `json:"label"`
	Consequence json.RawMessage `json:"consequence,omitempty"`
}

// DecisionPoint is a branching choice attached to a subtask.
type DecisionPoint struct {
	ID        string   `json:"id"`
	SubtaskID string   `json:"subtask_id"`
	Prompt    string   `json:"prompt,omitempty"`
	Choices   []Choice `json:"choices"`
}

// MissionDefinition is the typed view of a mission's JSONB subtask and
// decision-point columns, validated at load time so evaluation never has to
// handle malformed graphs.
type MissionDefinition struct {
	Subtasks       []Subtask
	DecisionPoints []DecisionPoint

	byID       map[string]*Subtask
	decisionID map[string]*DecisionPoint
}

// ParseMissionDefinition decodes and validates a catalog mission. It rejects
// duplicate subtask ids, dangling dependency references, dependency cycles,
// and decision points that reference unknown subtasks or declare duplicate
// choices.
func ParseMissionDefinition(m *types.Mission) (*MissionDefinition, error) {
	if m == nil {
		return nil, fmt.Errorf("nil mission")
	}

	def := &MissionDefinition{
		byID:       map[string]*Subtask{},
		decisionID: map[string]*DecisionPoint{},
	}

	if len(m.Subtasks) > 0 {
		if err := json.Unmarshal(m.Subtasks, &def.Subtasks); err != nil {
			return nil, fmt.Errorf("mission %s: decode subtasks: %w", m.ID, err)
		}
	}
	if len(m.DecisionPoints) > 0 {
		if err := json.Unmarshal(m.DecisionPoints, &def.DecisionPoints); err != nil {
			return nil, fmt.Errorf("mission %s: decode decision points: %w", m.ID, err)
		}
	}

	for i := range def.Subtasks {
		st := &def.Subtasks[i]
		if st.ID == "" {
			return nil, fmt.Errorf("mission %s: subtask %d has empty id", m.ID, i+1)
		}
		if _, dup := def.byID[st.ID]; dup {
			return nil, fmt.Errorf("mission %s: duplicate subtask id %q", m.ID, st.ID)
		}
		def.byID[st.ID] = st
	}

	for _, st := range def.Subtasks {
		for _, dep := range st.Dependencies {
			if _, ok := def.byID[dep]; !ok {
				return nil, fmt.Errorf("mission %s: subtask %q depends on unknown subtask %q", m.ID, st.ID, dep)
			}
		}
	}

	if err := def.checkAcyclic(); err != nil {
		return nil, fmt.Errorf("mission %s: %w", m.ID, err)
	}

	for i := range def.DecisionPoints {
		dp := &def.DecisionPoints[i]
		if dp.ID == "" {
			return nil, fmt.Errorf("mission %s: decision point %d has empty id", m.ID, i+1)
		}
		if _, dup := def.decisionID[dp.ID]; dup {
			return nil, fmt.Errorf("mission %s: duplicate decision id %q", m.ID, dp.ID)
		}
		if dp.SubtaskID != "" {
			if _, ok := def.byID[dp.SubtaskID]; !ok {
				return nil, fmt.Errorf("mission %s: decision %q references unknown subtask %q", m.ID, dp.ID, dp.SubtaskID)
			}
		}
		seen := map[string]bool{}
		for _, c := range dp.Choices {
			if c.ID == "" {
				return nil, fmt.Errorf("mission %s: decision %q has a choice with empty id", m.ID, dp.ID)
			}
			if seen[c.ID] {
				return nil, fmt.Errorf("mission %s: decision %q has duplicate choice %q", m.ID, dp.ID, c.ID)
			}
			seen[c.ID] = true
		}
		def.decisionID[dp.ID] = dp
	}

	return def, nil
}

// checkAcyclic runs Kahn's algorithm over the dependency edges.
func (d *MissionDefinition) checkAcyclic() error {
	indegree := map[string]int{}
	dependents := map[string][]string{}
	for _, st := range d.Subtasks {
		if _, ok := indegree[st.ID]; !ok {
			indegree[st.ID] = 0
		}
		for _, dep := range st.Dependencies {
			indegree[st.ID]++
			dependents[dep] = append(dependents[dep], st.ID)
		}
	}

	queue := make([]string, 0, len(indegree))
	for _, st := range d.Subtasks {
		if indegree[st.ID] == 0 {
			queue = append(queue, st.ID)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited != len(d.Subtasks) {
		return fmt.Errorf("subtask dependency cycle detected")
	}
	return nil
}

// SubtaskCount returns the number of declared subtasks.
func (d *MissionDefinition) SubtaskCount() int { return len(d.Subtasks) }

// SubtaskAt returns the subtask at a 1-indexed position.
func (d *MissionDefinition) SubtaskAt(index int) (*Subtask, bool) {
	if index < 1 || index > len(d.Subtasks) {
		return nil, false
	}
	return &d.Subtasks[index-1], true
}

// SubtaskByID looks a subtask up by its catalog id.
func (d *MissionDefinition) SubtaskByID(id string) (*Subtask, bool) {
	st, ok := d.byID[id]
	return st, ok
}

// DecisionByID looks a decision point up by its catalog id.
func (d *MissionDefinition) DecisionByID(id string) (*DecisionPoint, bool) {
	dp, ok := d.decisionID[id]
	return dp, ok
}

// ChoiceByID looks a choice up on a decision point.
func (dp *DecisionPoint) ChoiceByID(id string) (*Choice, bool) {
	for i := range dp.Choices {
		if dp.Choices[i].ID == id {
			return &dp.Choices[i], true
		}
	}
	return nil, false
}
