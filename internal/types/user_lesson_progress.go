package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserLessonProgress struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index:idx_user_lesson,unique" json:"user_id"`
	User     *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	LessonID uuid.UUID `gorm:"type:uuid;not null;index:idx_user_lesson,unique" json:"lesson_id"`
	Lesson   *Lesson   `gorm:"constraint:OnDelete:CASCADE;foreignKey:LessonID;references:ID" json:"lesson,omitempty"`

	Status             string     `gorm:"column:status;not null;default:'not_started'" json:"status"`
	ProgressPercentage float64    `gorm:"column:progress_percentage;not null;default:0" json:"progress_percentage"`
	QuizScore          *int       `gorm:"column:quiz_score" json:"quiz_score,omitempty"`
	QuizAttempts       int        `gorm:"column:quiz_attempts;not null;default:0" json:"quiz_attempts"`
	CompletedAt        *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (UserLessonProgress) TableName() string { return "user_lesson_progress" }
