package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/skillforge/skillforge-backend/internal/logger"
	"github.com/skillforge/skillforge-backend/internal/types"
)

type UserTrackProgressRepo interface {
	GetOrCreate(ctx context.Context, tx *gorm.DB, userID, trackID uuid.UUID) (*types.UserTrackProgress, error)
	GetByUserAndTrack(ctx context.Context, tx *gorm.DB, userID, trackID uuid.UUID) (*types.UserTrackProgress, error)
	// IncrementCounters applies atomic column += delta updates on the single
	// row. Read-then-save is not used here; concurrent increments must not
	// lose updates.
	IncrementCounters(ctx context.Context, tx *gorm.DB, id uuid.UUID, deltas map[string]int) error
	// UpdateFields applies a plain column update map (tier flags, aggregate
	// percentages) on the single row.
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error
}

type userTrackProgressRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserTrackProgressRepo(db *gorm.DB, baseLog *logger.Logger) UserTrackProgressRepo {
	return &userTrackProgressRepo{db: db, log: baseLog.With("repo", "UserTrackProgressRepo")}
}

func (r *userTrackProgressRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, userID, trackID uuid.UUID) (*types.UserTrackProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	row := &types.UserTrackProgress{UserID: userID, TrackID: trackID}
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND track_id = ?", userID, trackID).
		Clauses(clause.OnConflict{DoNothing: true}).
		FirstOrCreate(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *userTrackProgressRepo) GetByUserAndTrack(ctx context.Context, tx *gorm.DB, userID, trackID uuid.UUID) (*types.UserTrackProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.UserTrackProgress
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND track_id = ?", userID, trackID).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (r *userTrackProgressRepo) IncrementCounters(ctx context.Context, tx *gorm.DB, id uuid.UUID, deltas map[string]int) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(deltas) == 0 {
		return nil
	}

	updates := map[string]interface{}{}
	for column, delta := range deltas {
		updates[column] = gorm.Expr(column+" + ?", delta)
	}

	if err := transaction.WithContext(ctx).
		Model(&types.UserTrackProgress{}).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return err
	}
	return nil
}

func (r *userTrackProgressRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(fields) == 0 {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Model(&types.UserTrackProgress{}).
		Where("id = ?", id).
		Updates(fields).Error; err != nil {
		return err
	}
	return nil
}
