package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ModuleMission links a Mission into a TrackModule. A mission may appear
// under multiple modules; explicit links are authoritative for tier
// evaluation.
type ModuleMission struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ModuleID         uuid.UUID      `gorm:"type:uuid;not null;index:idx_module_mission,unique" json:"module_id"`
	Module           *TrackModule   `gorm:"constraint:OnDelete:CASCADE;foreignKey:ModuleID;references:ID" json:"module,omitempty"`
	MissionID        uuid.UUID      `gorm:"type:uuid;not null;index:idx_module_mission,unique" json:"mission_id"`
	Mission          *Mission       `gorm:"constraint:OnDelete:CASCADE;foreignKey:MissionID;references:ID" json:"mission,omitempty"`
	IsRequired       bool           `gorm:"column:is_required;not null;default:true" json:"is_required"`
	RecommendedOrder int            `gorm:"column:recommended_order;not null;default:0" json:"recommended_order"`
	CreatedAt        time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ModuleMission) TableName() string { return "module_mission" }
