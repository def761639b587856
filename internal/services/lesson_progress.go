package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skillforge/skillforge-backend/internal/errs"
	"github.com/skillforge/skillforge-backend/internal/logger"
	"github.com/skillforge/skillforge-backend/internal/repos"
	"github.com/skillforge/skillforge-backend/internal/types"
)

// LessonProgressService records lesson completions and quiz outcomes and
// keeps the module/track aggregates in step.
type LessonProgressService interface {
	CompleteLesson(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID) (*types.UserLessonProgress, error)
	// RecordQuizResult stores the attempt and, on the first passing score,
	// bumps the track's quizzes_passed counter. Score is a 0-100 percentage.
	RecordQuizResult(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID, score int) (*types.UserLessonProgress, error)
}

type lessonProgressService struct {
	db  *gorm.DB
	log *logger.Logger

	lessonRepo        repos.LessonRepo
	moduleRepo        repos.TrackModuleRepo
	progressRepo      repos.UserLessonProgressRepo
	trackProgressRepo repos.UserTrackProgressRepo

	activity ActivityService
	rollup   RollupService
}

func NewLessonProgressService(
	db *gorm.DB,
	baseLog *logger.Logger,
	lessonRepo repos.LessonRepo,
	moduleRepo repos.TrackModuleRepo,
	progressRepo repos.UserLessonProgressRepo,
	trackProgressRepo repos.UserTrackProgressRepo,
	activity ActivityService,
	rollup RollupService,
) LessonProgressService {
	return &lessonProgressService{
		db:                db,
		log:               baseLog.With("service", "LessonProgressService"),
		lessonRepo:        lessonRepo,
		moduleRepo:        moduleRepo,
		progressRepo:      progressRepo,
		trackProgressRepo: trackProgressRepo,
		activity:          activity,
		rollup:            rollup,
	}
}

func (s *lessonProgressService) loadLesson(ctx context.Context, tx *gorm.DB, lessonID uuid.UUID) (*types.Lesson, error) {
	lessons, err := s.lessonRepo.GetByIDs(ctx, tx, []uuid.UUID{lessonID})
	if err != nil {
		return nil, err
	}
	if len(lessons) == 0 || !lessons[0].IsActive {
		return nil, fmt.Errorf("lesson %s: %w", lessonID, errs.ErrNotFound)
	}
	return lessons[0], nil
}

func (s *lessonProgressService) CompleteLesson(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID) (*types.UserLessonProgress, error) {
	lesson, err := s.loadLesson(ctx, tx, lessonID)
	if err != nil {
		return nil, err
	}

	progress, err := s.progressRepo.GetOrCreate(ctx, tx, userID, lessonID)
	if err != nil {
		return nil, err
	}
	if progress.Status == types.ProgressCompleted {
		return progress, nil
	}

	now := time.Now().UTC()
	fields := map[string]interface{}{
		"status":              types.ProgressCompleted,
		"progress_percentage": 100.0,
		"completed_at":        now,
	}
	if err := s.progressRepo.UpdateFields(ctx, tx, progress.ID, fields); err != nil {
		return nil, err
	}
	progress.Status = types.ProgressCompleted
	progress.ProgressPercentage = 100
	progress.CompletedAt = &now

	if evErr := s.activity.Emit(ctx, tx, ActivityEvent{
		UserID:       userID,
		ActivityType: ActivityLessonCompleted,
		ModuleID:     &lesson.ModuleID,
		LessonID:     &lessonID,
	}); evErr != nil {
		s.log.Warn("CompleteLesson: emit activity failed", "error", evErr, "lesson_id", lessonID)
	}

	s.recompute(ctx, tx, userID, lesson.ModuleID)
	return progress, nil
}

func (s *lessonProgressService) RecordQuizResult(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID, score int) (*types.UserLessonProgress, error) {
	if score < 0 || score > 100 {
		return nil, fmt.Errorf("quiz score %d out of range: %w", score, errs.ErrInvalidArgument)
	}

	lesson, err := s.loadLesson(ctx, tx, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson.Type != types.LessonTypeQuiz {
		return nil, fmt.Errorf("lesson %s is not a quiz: %w", lessonID, errs.ErrInvalidArgument)
	}

	progress, err := s.progressRepo.GetOrCreate(ctx, tx, userID, lessonID)
	if err != nil {
		return nil, err
	}

	// Best score sticks; a later weaker attempt never lowers it.
	best := score
	if progress.QuizScore != nil && *progress.QuizScore > best {
		best = *progress.QuizScore
	}
	passed := score >= QuizPassScore
	firstPass := passed && (progress.QuizScore == nil || *progress.QuizScore < QuizPassScore)

	fields := map[string]interface{}{
		"quiz_score":    best,
		"quiz_attempts": progress.QuizAttempts + 1,
	}
	var completedAt *time.Time
	if passed && progress.Status != types.ProgressCompleted {
		now := time.Now().UTC()
		completedAt = &now
		fields["status"] = types.ProgressCompleted
		fields["progress_percentage"] = 100.0
		fields["completed_at"] = now
	}
	if err := s.progressRepo.UpdateFields(ctx, tx, progress.ID, fields); err != nil {
		return nil, err
	}

	progress.QuizScore = &best
	progress.QuizAttempts++
	if completedAt != nil {
		progress.Status = types.ProgressCompleted
		progress.ProgressPercentage = 100
		progress.CompletedAt = completedAt
	}

	if firstPass {
		if err := s.bumpQuizCounter(ctx, tx, userID, lesson); err != nil {
			s.log.Warn("RecordQuizResult: quizzes counter increment failed", "error", err, "lesson_id", lessonID)
		}
		if evErr := s.activity.Emit(ctx, tx, ActivityEvent{
			UserID:       userID,
			ActivityType: ActivityQuizPassed,
			ModuleID:     &lesson.ModuleID,
			LessonID:     &lessonID,
			Metadata:     map[string]interface{}{"score": score},
		}); evErr != nil {
			s.log.Warn("RecordQuizResult: emit activity failed", "error", evErr, "lesson_id", lessonID)
		}
	}

	if passed {
		s.recompute(ctx, tx, userID, lesson.ModuleID)
	}
	return progress, nil
}

// bumpQuizCounter resolves the lesson's track through its module and applies
// an atomic +1 on quizzes_passed.
func (s *lessonProgressService) bumpQuizCounter(ctx context.Context, tx *gorm.DB, userID uuid.UUID, lesson *types.Lesson) error {
	modules, err := s.moduleRepo.GetByIDs(ctx, tx, []uuid.UUID{lesson.ModuleID})
	if err != nil {
		return err
	}
	if len(modules) == 0 {
		return nil
	}

	row, err := s.trackProgressRepo.GetOrCreate(ctx, tx, userID, modules[0].TrackID)
	if err != nil {
		return err
	}
	return s.trackProgressRepo.IncrementCounters(ctx, tx, row.ID, map[string]int{"quizzes_passed": 1})
}

func (s *lessonProgressService) recompute(ctx context.Context, tx *gorm.DB, userID, moduleID uuid.UUID) {
	if _, err := s.rollup.RecomputeModule(ctx, tx, userID, moduleID); err != nil {
		s.log.Warn("rollup: module recompute failed", "error", err, "module_id", moduleID)
		return
	}
	modules, err := s.moduleRepo.GetByIDs(ctx, tx, []uuid.UUID{moduleID})
	if err != nil || len(modules) == 0 {
		s.log.Warn("rollup: module load failed", "error", err, "module_id", moduleID)
		return
	}
	if _, err := s.rollup.RecomputeTrack(ctx, tx, userID, modules[0].TrackID); err != nil {
		s.log.Warn("rollup: track recompute failed", "error", err, "track_id", modules[0].TrackID)
	}
}
