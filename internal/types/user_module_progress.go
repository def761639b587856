package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ProgressNotStarted = "not_started"
	ProgressInProgress = "in_progress"
	ProgressCompleted  = "completed"
	ProgressBlocked    = "blocked"
)

// UserModuleProgress is created on first touch, mutated only by the rollup
// service, never deleted.
type UserModuleProgress struct {
	ID       uuid.UUID    `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID   uuid.UUID    `gorm:"type:uuid;not null;index:idx_user_module,unique" json:"user_id"`
	User     *User        `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	ModuleID uuid.UUID    `gorm:"type:uuid;not null;index:idx_user_module,unique" json:"module_id"`
	Module   *TrackModule `gorm:"constraint:OnDelete:CASCADE;foreignKey:ModuleID;references:ID" json:"module,omitempty"`

	Status               string     `gorm:"column:status;not null;default:'not_started'" json:"status"`
	CompletionPercentage float64    `gorm:"column:completion_percentage;not null;default:0" json:"completion_percentage"`
	LessonsCompleted     int        `gorm:"column:lessons_completed;not null;default:0" json:"lessons_completed"`
	MissionsCompleted    int        `gorm:"column:missions_completed;not null;default:0" json:"missions_completed"`
	CompletedAt          *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (UserModuleProgress) TableName() string { return "user_module_progress" }
