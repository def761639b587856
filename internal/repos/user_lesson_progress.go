package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/skillforge/skillforge-backend/internal/logger"
	"github.com/skillforge/skillforge-backend/internal/types"
)

type UserLessonProgressRepo interface {
	GetOrCreate(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID) (*types.UserLessonProgress, error)
	GetByUserAndLessonIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID, lessonIDs []uuid.UUID) ([]*types.UserLessonProgress, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error
}

type userLessonProgressRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserLessonProgressRepo(db *gorm.DB, baseLog *logger.Logger) UserLessonProgressRepo {
	return &userLessonProgressRepo{db: db, log: baseLog.With("repo", "UserLessonProgressRepo")}
}

func (r *userLessonProgressRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID) (*types.UserLessonProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	row := &types.UserLessonProgress{UserID: userID, LessonID: lessonID}
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Clauses(clause.OnConflict{DoNothing: true}).
		FirstOrCreate(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *userLessonProgressRepo) GetByUserAndLessonIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID, lessonIDs []uuid.UUID) ([]*types.UserLessonProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.UserLessonProgress
	if userID == uuid.Nil || len(lessonIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND lesson_id IN ?", userID, lessonIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *userLessonProgressRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(fields) == 0 {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Model(&types.UserLessonProgress{}).
		Where("id = ?", id).
		Updates(fields).Error; err != nil {
		return err
	}
	return nil
}
