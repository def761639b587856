package types

import (
	"time"

	"github.com/google/uuid"
)

// SkillSignal records a demonstrated competency from an approved mission.
// Append-only; downstream recommendation surfaces consume it.
type SkillSignal struct {
	ID                uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID            uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	MissionProgressID uuid.UUID `gorm:"type:uuid;not null;index" json:"mission_progress_id"`
	Skill             string    `gorm:"column:skill;not null;index" json:"skill"`
	Level             string    `gorm:"column:level;not null;default:'demonstrated'" json:"level"`
	Score             int       `gorm:"column:score;not null;default:0" json:"score"`
	CreatedAt         time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (SkillSignal) TableName() string { return "skill_signal" }
