package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ProgressionSequential = "sequential"
	ProgressionFlexible   = "flexible"
)

// Track is a named learning pathway. Tier is the 2-5 ordinal
// (Beginner/Intermediate/Advanced/Mastery) and is immutable once created.
// ProgramKey is authored explicitly at catalog time; it is never inferred
// from the track code at evaluation time.
type Track struct {
	ID              uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Code            string    `gorm:"column:code;not null;uniqueIndex" json:"code"`
	Title           string    `gorm:"column:title;not null" json:"title"`
	ProgramKey      string    `gorm:"column:program_key;not null;index" json:"program_key"`
	Tier            int       `gorm:"column:tier;not null" json:"tier"`
	ProgressionMode string    `gorm:"column:progression_mode;not null;default:'sequential'" json:"progression_mode"`

	// Per-tier completion configuration. Changing these only affects future
	// evaluations.
	MinMiniMissionsRequired    int        `gorm:"column:min_mini_missions_required;not null;default:1" json:"min_mini_missions_required"`
	Tier2RequireMentorApproval bool       `gorm:"column:tier2_require_mentor_approval;not null;default:false" json:"tier2_require_mentor_approval"`
	Tier3RequireMentorApproval bool       `gorm:"column:tier3_require_mentor_approval;not null;default:false" json:"tier3_require_mentor_approval"`
	Tier4RequireMentorApproval bool       `gorm:"column:tier4_require_mentor_approval;not null;default:false" json:"tier4_require_mentor_approval"`
	Tier5RequireMentorApproval bool       `gorm:"column:tier5_require_mentor_approval;not null;default:false" json:"tier5_require_mentor_approval"`
	MasteryRubricID            *uuid.UUID `gorm:"type:uuid;column:mastery_rubric_id" json:"mastery_rubric_id,omitempty"`

	IsActive  bool           `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Track) TableName() string { return "track" }

// RequireMentorApprovalForTier reads the per-tier flag; unknown tiers are
// treated as not requiring approval.
func (t *Track) RequireMentorApprovalForTier(tier int) bool {
	switch tier {
	case 2:
		return t.Tier2RequireMentorApproval
	case 3:
		return t.Tier3RequireMentorApproval
	case 4:
		return t.Tier4RequireMentorApproval
	case 5:
		return t.Tier5RequireMentorApproval
	}
	return false
}
