package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	MissionTierBeginner     = "beginner"
	MissionTierIntermediate = "intermediate"
	MissionTierAdvanced     = "advanced"
	MissionTierMastery      = "mastery"
	MissionTierCapstone     = "capstone"

	MissionTypeStandard = "standard"
	MissionTypeMini     = "mini"
	MissionTypeCapstone = "capstone"
)

// Mission is the catalog definition of a practical assessment. Subtasks and
// DecisionPoints are stored as JSONB and decoded into the typed catalog
// structures (internal/catalog) at load time, where the dependency graph is
// validated.
type Mission struct {
	ID                  uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Title               string         `gorm:"column:title;not null" json:"title"`
	Description         string         `gorm:"column:description" json:"description"`
	Difficulty          int            `gorm:"column:difficulty;not null;default:1" json:"difficulty"`
	Tier                string         `gorm:"column:tier;not null;default:'beginner';index" json:"tier"`
	MissionType         string         `gorm:"column:mission_type;not null;default:'standard'" json:"mission_type"`
	TrackID             *uuid.UUID     `gorm:"type:uuid;column:track_id;index" json:"track_id,omitempty"`
	SkillTags           datatypes.JSON `gorm:"type:jsonb;column:skill_tags" json:"skill_tags"`
	Subtasks            datatypes.JSON `gorm:"type:jsonb;column:subtasks" json:"subtasks"`
	DecisionPoints      datatypes.JSON `gorm:"type:jsonb;column:decision_points" json:"decision_points"`
	TimeConstraintHours int            `gorm:"column:time_constraint_hours;not null;default:0" json:"time_constraint_hours"`
	ReflectionRequired  bool           `gorm:"column:reflection_required;not null;default:false" json:"reflection_required"`
	IsActive            bool           `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt           time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Mission) TableName() string { return "mission" }
