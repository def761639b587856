package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// UserEvent is the append-only activity feed consumed by analytics and
// notification collaborators. The engine writes and never reads back.
type UserEvent struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	ActivityType  string         `gorm:"column:activity_type;not null;index" json:"activity_type"`
	TrackID       *uuid.UUID     `gorm:"type:uuid;column:track_id" json:"track_id,omitempty"`
	ModuleID      *uuid.UUID     `gorm:"type:uuid;column:module_id" json:"module_id,omitempty"`
	LessonID      *uuid.UUID     `gorm:"type:uuid;column:lesson_id" json:"lesson_id,omitempty"`
	MissionID     *uuid.UUID     `gorm:"type:uuid;column:mission_id" json:"mission_id,omitempty"`
	PointsAwarded int            `gorm:"column:points_awarded;not null;default:0" json:"points_awarded"`
	Metadata      datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (UserEvent) TableName() string { return "user_event" }
