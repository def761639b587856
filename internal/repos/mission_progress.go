package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skillforge/skillforge-backend/internal/errs"
	"github.com/skillforge/skillforge-backend/internal/logger"
	"github.com/skillforge/skillforge-backend/internal/types"
)

type MissionProgressRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.MissionProgress) (*types.MissionProgress, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.MissionProgress, error)
	GetByUserAndMission(ctx context.Context, tx *gorm.DB, userID, missionID uuid.UUID) (*types.MissionProgress, error)
	GetByUserAndMissionIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID, missionIDs []uuid.UUID) ([]*types.MissionProgress, error)
	// UpdateWithVersion saves the row guarded by its optimistic version
	// token. On a stale version it returns errs.ErrConflict and the caller
	// re-reads and retries a bounded number of times.
	UpdateWithVersion(ctx context.Context, tx *gorm.DB, row *types.MissionProgress) error
	// GetInactiveInProgress returns in_progress attempts whose last activity
	// is older than the cutoff and that have no drop-off stage recorded yet.
	GetInactiveInProgress(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]*types.MissionProgress, error)
}

type missionProgressRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMissionProgressRepo(db *gorm.DB, baseLog *logger.Logger) MissionProgressRepo {
	return &missionProgressRepo{db: db, log: baseLog.With("repo", "MissionProgressRepo")}
}

func (r *missionProgressRepo) Create(ctx context.Context, tx *gorm.DB, row *types.MissionProgress) (*types.MissionProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return nil, nil
	}

	if err := transaction.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *missionProgressRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.MissionProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.MissionProgress
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

func (r *missionProgressRepo) GetByUserAndMission(ctx context.Context, tx *gorm.DB, userID, missionID uuid.UUID) (*types.MissionProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.MissionProgress
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND mission_id = ?", userID, missionID).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (r *missionProgressRepo) GetByUserAndMissionIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID, missionIDs []uuid.UUID) ([]*types.MissionProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.MissionProgress
	if userID == uuid.Nil || len(missionIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND mission_id IN ?", userID, missionIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *missionProgressRepo) UpdateWithVersion(ctx context.Context, tx *gorm.DB, row *types.MissionProgress) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return nil
	}

	currentVersion := row.Version
	row.Version = currentVersion + 1

	res := transaction.WithContext(ctx).
		Model(&types.MissionProgress{}).
		Where("id = ? AND version = ?", row.ID, currentVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(row)
	if res.Error != nil {
		row.Version = currentVersion
		return res.Error
	}
	if res.RowsAffected == 0 {
		row.Version = currentVersion
		return errs.ErrConflict
	}
	return nil
}

func (r *missionProgressRepo) GetInactiveInProgress(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]*types.MissionProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if limit <= 0 {
		limit = 100
	}

	var results []*types.MissionProgress
	if err := transaction.WithContext(ctx).
		Where("status = ? AND last_activity_at < ? AND drop_off_stage IS NULL", types.MissionStatusInProgress, cutoff).
		Order("last_activity_at ASC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
