package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skillforge/skillforge-backend/internal/logger"
	"github.com/skillforge/skillforge-backend/internal/types"
)

type ModuleMissionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.ModuleMission) ([]*types.ModuleMission, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ModuleMission, error)
	GetByModuleIDs(ctx context.Context, tx *gorm.DB, moduleIDs []uuid.UUID) ([]*types.ModuleMission, error)
	GetByMissionID(ctx context.Context, tx *gorm.DB, missionID uuid.UUID) ([]*types.ModuleMission, error)
}

type moduleMissionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewModuleMissionRepo(db *gorm.DB, baseLog *logger.Logger) ModuleMissionRepo {
	return &moduleMissionRepo{db: db, log: baseLog.With("repo", "ModuleMissionRepo")}
}

func (r *moduleMissionRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.ModuleMission) ([]*types.ModuleMission, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(rows) == 0 {
		return []*types.ModuleMission{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *moduleMissionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ModuleMission, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ModuleMission
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (r *moduleMissionRepo) GetByMissionID(ctx context.Context, tx *gorm.DB, missionID uuid.UUID) ([]*types.ModuleMission, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ModuleMission
	if missionID == uuid.Nil {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("mission_id = ?", missionID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *moduleMissionRepo) GetByModuleIDs(ctx context.Context, tx *gorm.DB, moduleIDs []uuid.UUID) ([]*types.ModuleMission, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ModuleMission
	if len(moduleIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("module_id IN ?", moduleIDs).
		Order("recommended_order ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
