package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TrackModule is a content container within a Track holding lessons and
// linked missions.
type TrackModule struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TrackID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"track_id"`
	Track      *Track         `gorm:"constraint:OnDelete:CASCADE;foreignKey:TrackID;references:ID" json:"track,omitempty"`
	Title      string         `gorm:"column:title;not null" json:"title"`
	IsRequired bool           `gorm:"column:is_required;not null;default:true" json:"is_required"`
	OrderIndex int            `gorm:"column:order_index;not null;default:0" json:"order_index"`
	IsActive   bool           `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt  time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (TrackModule) TableName() string { return "track_module" }
