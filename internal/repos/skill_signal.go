package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/skillforge/skillforge-backend/internal/logger"
	"github.com/skillforge/skillforge-backend/internal/types"
)

type SkillSignalRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.SkillSignal) ([]*types.SkillSignal, error)
}

type skillSignalRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSkillSignalRepo(db *gorm.DB, baseLog *logger.Logger) SkillSignalRepo {
	return &skillSignalRepo{db: db, log: baseLog.With("repo", "SkillSignalRepo")}
}

func (r *skillSignalRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.SkillSignal) ([]*types.SkillSignal, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(rows) == 0 {
		return []*types.SkillSignal{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
