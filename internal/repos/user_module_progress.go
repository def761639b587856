package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/skillforge/skillforge-backend/internal/logger"
	"github.com/skillforge/skillforge-backend/internal/types"
)

type UserModuleProgressRepo interface {
	GetOrCreate(ctx context.Context, tx *gorm.DB, userID, moduleID uuid.UUID) (*types.UserModuleProgress, error)
	GetByUserAndModuleIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID, moduleIDs []uuid.UUID) ([]*types.UserModuleProgress, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error
}

type userModuleProgressRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserModuleProgressRepo(db *gorm.DB, baseLog *logger.Logger) UserModuleProgressRepo {
	return &userModuleProgressRepo{db: db, log: baseLog.With("repo", "UserModuleProgressRepo")}
}

func (r *userModuleProgressRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, userID, moduleID uuid.UUID) (*types.UserModuleProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	row := &types.UserModuleProgress{UserID: userID, ModuleID: moduleID}
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND module_id = ?", userID, moduleID).
		Clauses(clause.OnConflict{DoNothing: true}).
		FirstOrCreate(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *userModuleProgressRepo) GetByUserAndModuleIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID, moduleIDs []uuid.UUID) ([]*types.UserModuleProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.UserModuleProgress
	if userID == uuid.Nil || len(moduleIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND module_id IN ?", userID, moduleIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *userModuleProgressRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(fields) == 0 {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Model(&types.UserModuleProgress{}).
		Where("id = ?", id).
		Updates(fields).Error; err != nil {
		return err
	}
	return nil
}
