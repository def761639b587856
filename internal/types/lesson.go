package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	LessonTypeVideo = "video"
	LessonTypeQuiz  = "quiz"
	LessonTypeGuide = "guide"
	LessonTypeLab   = "lab"
)

type Lesson struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ModuleID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"module_id"`
	Module     *TrackModule   `gorm:"constraint:OnDelete:CASCADE;foreignKey:ModuleID;references:ID" json:"module,omitempty"`
	Title      string         `gorm:"column:title;not null" json:"title"`
	Type       string         `gorm:"column:type;not null;default:'guide'" json:"type"`
	IsRequired bool           `gorm:"column:is_required;not null;default:true" json:"is_required"`
	OrderIndex int            `gorm:"column:order_index;not null;default:0" json:"order_index"`
	IsActive   bool           `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt  time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Lesson) TableName() string { return "lesson" }
