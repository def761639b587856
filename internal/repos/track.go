package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skillforge/skillforge-backend/internal/logger"
	"github.com/skillforge/skillforge-backend/internal/types"
)

type TrackRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Track) ([]*types.Track, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Track, error)
	GetActiveByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Track, error)
}

type trackRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTrackRepo(db *gorm.DB, baseLog *logger.Logger) TrackRepo {
	return &trackRepo{db: db, log: baseLog.With("repo", "TrackRepo")}
}

func (r *trackRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Track) ([]*types.Track, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(rows) == 0 {
		return []*types.Track{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *trackRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Track, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Track
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

func (r *trackRepo) GetActiveByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Track, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Track
	if err := transaction.WithContext(ctx).
		Where("id = ? AND is_active = ?", id, true).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}
