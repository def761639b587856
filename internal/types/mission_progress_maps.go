package types

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// Typed accessors for the JSONB maps on MissionProgress. Keys are the
// subtask/decision identifiers declared in the mission catalog definition.

func (p *MissionProgress) DecodeSubtasks() (map[string]SubtaskProgress, error) {
	out := map[string]SubtaskProgress{}
	if len(p.Subtasks) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(p.Subtasks, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *MissionProgress) EncodeSubtasks(m map[string]SubtaskProgress) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	p.Subtasks = datatypes.JSON(raw)
	return nil
}

func (p *MissionProgress) DecodeDecisionPaths() (map[string]DecisionPath, error) {
	out := map[string]DecisionPath{}
	if len(p.DecisionPaths) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(p.DecisionPaths, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *MissionProgress) EncodeDecisionPaths(m map[string]DecisionPath) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	p.DecisionPaths = datatypes.JSON(raw)
	return nil
}

// TimePerStage is seconds spent per subtask id.
func (p *MissionProgress) DecodeTimePerStage() (map[string]int, error) {
	out := map[string]int{}
	if len(p.TimePerStage) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(p.TimePerStage, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *MissionProgress) EncodeTimePerStage(m map[string]int) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	p.TimePerStage = datatypes.JSON(raw)
	return nil
}

func (p *MissionProgress) DecodeToolsUsed() ([]string, error) {
	var out []string
	if len(p.ToolsUsed) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(p.ToolsUsed, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *MissionProgress) EncodeToolsUsed(tools []string) error {
	raw, err := json.Marshal(tools)
	if err != nil {
		return err
	}
	p.ToolsUsed = datatypes.JSON(raw)
	return nil
}
