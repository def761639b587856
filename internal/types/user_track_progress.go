package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserTrackProgress is the per-(user, track) ledger row. The per-tier
// completion flags are monotonic: once a tier's requirements-met flag is
// true it is only ever cleared by an explicit administrative reset, never by
// a later partial re-evaluation. TierN+1 unlocked implies tierN
// requirements met.
type UserTrackProgress struct {
	ID      uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID  uuid.UUID `gorm:"type:uuid;not null;index:idx_user_track,unique" json:"user_id"`
	User    *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	TrackID uuid.UUID `gorm:"type:uuid;not null;index:idx_user_track,unique" json:"track_id"`
	Track   *Track    `gorm:"constraint:OnDelete:CASCADE;foreignKey:TrackID;references:ID" json:"track,omitempty"`

	CompletionPercentage float64 `gorm:"column:completion_percentage;not null;default:0" json:"completion_percentage"`
	ModulesCompleted     int     `gorm:"column:modules_completed;not null;default:0" json:"modules_completed"`
	LessonsCompleted     int     `gorm:"column:lessons_completed;not null;default:0" json:"lessons_completed"`
	MissionsCompleted    int     `gorm:"column:missions_completed;not null;default:0" json:"missions_completed"`

	// Tier 2 counters, incremented atomically in SQL.
	QuizzesPassed         int `gorm:"column:quizzes_passed;not null;default:0" json:"quizzes_passed"`
	MiniMissionsCompleted int `gorm:"column:mini_missions_completed;not null;default:0" json:"mini_missions_completed"`
	ReflectionsSubmitted  int `gorm:"column:reflections_submitted;not null;default:0" json:"reflections_submitted"`

	Tier2CompletionRequirementsMet bool `gorm:"column:tier2_completion_requirements_met;not null;default:false" json:"tier2_completion_requirements_met"`
	Tier3CompletionRequirementsMet bool `gorm:"column:tier3_completion_requirements_met;not null;default:false" json:"tier3_completion_requirements_met"`
	Tier4CompletionRequirementsMet bool `gorm:"column:tier4_completion_requirements_met;not null;default:false" json:"tier4_completion_requirements_met"`
	Tier5CompletionRequirementsMet bool `gorm:"column:tier5_completion_requirements_met;not null;default:false" json:"tier5_completion_requirements_met"`

	Tier2MentorApproval bool `gorm:"column:tier2_mentor_approval;not null;default:false" json:"tier2_mentor_approval"`
	Tier3MentorApproval bool `gorm:"column:tier3_mentor_approval;not null;default:false" json:"tier3_mentor_approval"`
	Tier4MentorApproval bool `gorm:"column:tier4_mentor_approval;not null;default:false" json:"tier4_mentor_approval"`
	Tier5MentorApproval bool `gorm:"column:tier5_mentor_approval;not null;default:false" json:"tier5_mentor_approval"`

	Tier3Unlocked bool `gorm:"column:tier3_unlocked;not null;default:false" json:"tier3_unlocked"`
	Tier4Unlocked bool `gorm:"column:tier4_unlocked;not null;default:false" json:"tier4_unlocked"`
	Tier5Unlocked bool `gorm:"column:tier5_unlocked;not null;default:false" json:"tier5_unlocked"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (UserTrackProgress) TableName() string { return "user_track_progress" }

// TierRequirementsMet reads the monotonic flag for a tier.
func (p *UserTrackProgress) TierRequirementsMet(tier int) bool {
	switch tier {
	case 2:
		return p.Tier2CompletionRequirementsMet
	case 3:
		return p.Tier3CompletionRequirementsMet
	case 4:
		return p.Tier4CompletionRequirementsMet
	case 5:
		return p.Tier5CompletionRequirementsMet
	}
	return false
}

// MentorApprovalForTier reads the mentor-approval flag for a tier.
func (p *UserTrackProgress) MentorApprovalForTier(tier int) bool {
	switch tier {
	case 2:
		return p.Tier2MentorApproval
	case 3:
		return p.Tier3MentorApproval
	case 4:
		return p.Tier4MentorApproval
	case 5:
		return p.Tier5MentorApproval
	}
	return false
}
