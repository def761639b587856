package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PortfolioArtifact is created exactly once per approved mission attempt.
// The (user, mission_progress) unique index is the idempotency guard for
// the approval side effect.
type PortfolioArtifact struct {
	ID                uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID            uuid.UUID      `gorm:"type:uuid;not null;index:idx_user_attempt_artifact,unique" json:"user_id"`
	MissionProgressID uuid.UUID      `gorm:"type:uuid;not null;index:idx_user_attempt_artifact,unique" json:"mission_progress_id"`
	MissionID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"mission_id"`
	Title             string         `gorm:"column:title;not null" json:"title"`
	Summary           string         `gorm:"column:summary" json:"summary"`
	Evidence          datatypes.JSON `gorm:"type:jsonb;column:evidence" json:"evidence,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (PortfolioArtifact) TableName() string { return "portfolio_artifact" }
