package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	MissionStatusLocked            = "locked"
	MissionStatusAvailable         = "available"
	MissionStatusInProgress        = "in_progress"
	MissionStatusSubmitted         = "submitted"
	MissionStatusAIReviewed        = "ai_reviewed"
	MissionStatusMentorReview      = "mentor_review"
	MissionStatusApproved          = "approved"
	MissionStatusFailed            = "failed"
	MissionStatusRevisionRequested = "revision_requested"

	FinalStatusPass    = "pass"
	FinalStatusFail    = "fail"
	FinalStatusPending = "pending"
)

// SubtaskProgress is one entry of the subtasks_progress JSONB map, keyed by
// subtask id.
type SubtaskProgress struct {
	Completed   bool       `json:"completed"`
	Evidence    string     `json:"evidence,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// DecisionPath is one entry of the decision_paths JSONB map, keyed by
// decision id. Last write wins when a decision is re-made.
type DecisionPath struct {
	ChoiceID  string    `json:"choice_id"`
	Timestamp time.Time `json:"timestamp"`
}

// MissionProgress is one mission attempt per (user, mission). Version is an
// optimistic-concurrency token: every mutation bumps it, and writes carry a
// WHERE version = ? guard.
type MissionProgress struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index:idx_user_mission,unique" json:"user_id"`
	User      *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	MissionID uuid.UUID `gorm:"type:uuid;not null;index:idx_user_mission,unique" json:"mission_id"`
	Mission   *Mission  `gorm:"constraint:OnDelete:CASCADE;foreignKey:MissionID;references:ID" json:"mission,omitempty"`

	Status         string         `gorm:"column:status;not null;default:'in_progress'" json:"status"`
	CurrentSubtask int            `gorm:"column:current_subtask;not null;default:1" json:"current_subtask"`
	Subtasks       datatypes.JSON `gorm:"type:jsonb;column:subtasks_progress" json:"subtasks_progress"`
	DecisionPaths  datatypes.JSON `gorm:"type:jsonb;column:decision_paths" json:"decision_paths"`

	AIScore             *int           `gorm:"column:ai_score" json:"ai_score,omitempty"`
	AIFeedback          datatypes.JSON `gorm:"type:jsonb;column:ai_feedback" json:"ai_feedback,omitempty"`
	MentorScore         *int           `gorm:"column:mentor_score" json:"mentor_score,omitempty"`
	FinalStatus         string         `gorm:"column:final_status;not null;default:'pending'" json:"final_status"`
	ReflectionRequired  bool           `gorm:"column:reflection_required;not null;default:false" json:"reflection_required"`
	ReflectionSubmitted bool           `gorm:"column:reflection_submitted;not null;default:false" json:"reflection_submitted"`
	ReflectionText      string         `gorm:"column:reflection_text" json:"reflection_text,omitempty"`

	HintsUsed    int            `gorm:"column:hints_used;not null;default:0" json:"hints_used"`
	TimePerStage datatypes.JSON `gorm:"type:jsonb;column:time_per_stage" json:"time_per_stage,omitempty"`
	ToolsUsed    datatypes.JSON `gorm:"type:jsonb;column:tools_used" json:"tools_used,omitempty"`
	DropOffStage *int           `gorm:"column:drop_off_stage" json:"drop_off_stage,omitempty"`

	StartedAt        time.Time  `gorm:"column:started_at;not null;default:now()" json:"started_at"`
	DeadlineAt       *time.Time `gorm:"column:deadline_at" json:"deadline_at,omitempty"`
	SubmittedAt      *time.Time `gorm:"column:submitted_at" json:"submitted_at,omitempty"`
	MentorReviewedAt *time.Time `gorm:"column:mentor_reviewed_at" json:"mentor_reviewed_at,omitempty"`
	LastActivityAt   time.Time  `gorm:"column:last_activity_at;not null;default:now()" json:"last_activity_at"`

	Version int `gorm:"column:version;not null;default:0" json:"version"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (MissionProgress) TableName() string { return "mission_progress" }

// Terminal reports whether the attempt has reached a final state for
// completion-rule purposes.
func (p *MissionProgress) Terminal() bool {
	switch p.Status {
	case MissionStatusApproved, MissionStatusFailed:
		return true
	}
	return false
}

// Expired reports lazy deadline expiry at read time. An expired attempt is
// surfaced to the caller but never auto-transitioned to failed.
func (p *MissionProgress) Expired(now time.Time) bool {
	return p.DeadlineAt != nil && p.Status == MissionStatusInProgress && now.After(*p.DeadlineAt)
}
