package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skillforge/skillforge-backend/internal/logger"
	"github.com/skillforge/skillforge-backend/internal/types"
)

type TrackModuleRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.TrackModule) ([]*types.TrackModule, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.TrackModule, error)
	GetActiveByTrackID(ctx context.Context, tx *gorm.DB, trackID uuid.UUID) ([]*types.TrackModule, error)
}

type trackModuleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTrackModuleRepo(db *gorm.DB, baseLog *logger.Logger) TrackModuleRepo {
	return &trackModuleRepo{db: db, log: baseLog.With("repo", "TrackModuleRepo")}
}

func (r *trackModuleRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.TrackModule) ([]*types.TrackModule, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(rows) == 0 {
		return []*types.TrackModule{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *trackModuleRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.TrackModule, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.TrackModule
	if len(ids) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *trackModuleRepo) GetActiveByTrackID(ctx context.Context, tx *gorm.DB, trackID uuid.UUID) ([]*types.TrackModule, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.TrackModule
	if trackID == uuid.Nil {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("track_id = ? AND is_active = ?", trackID, true).
		Order("order_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
