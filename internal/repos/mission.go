package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skillforge/skillforge-backend/internal/logger"
	"github.com/skillforge/skillforge-backend/internal/types"
)

type MissionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Mission) ([]*types.Mission, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Mission, error)
	GetActiveByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Mission, error)
	// GetActiveByTrackAndTier is the deterministic catalog-tag fallback used
	// by tier evaluation when no explicit module links exist. Ordering is
	// fixed (created_at, id) so identical catalog state always yields the
	// same requirement set.
	GetActiveByTrackAndTier(ctx context.Context, tx *gorm.DB, trackID uuid.UUID, tier string) ([]*types.Mission, error)
}

type missionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMissionRepo(db *gorm.DB, baseLog *logger.Logger) MissionRepo {
	return &missionRepo{db: db, log: baseLog.With("repo", "MissionRepo")}
}

func (r *missionRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Mission) ([]*types.Mission, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(rows) == 0 {
		return []*types.Mission{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *missionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Mission, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Mission
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

func (r *missionRepo) GetActiveByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Mission, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Mission
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

func (r *missionRepo) GetActiveByTrackAndTier(ctx context.Context, tx *gorm.DB, trackID uuid.UUID, tier string) ([]*types.Mission, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Mission
	if trackID == uuid.Nil || tier == "" {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("track_id = ? AND tier = ? AND is_active = ?", trackID, tier, true).
		Order("created_at ASC, id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
