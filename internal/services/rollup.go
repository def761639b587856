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

// RollupService recomputes module- and track-level aggregates from the
// lesson/mission ledger. Both operations are idempotent; upstream events
// may trigger them redundantly for the same user in quick succession.
// Callers invoke them synchronously after the underlying ledger write
// commits, so a recomputation always observes that write.
type RollupService interface {
	RecomputeModule(ctx context.Context, tx *gorm.DB, userID, moduleID uuid.UUID) (*types.UserModuleProgress, error)
	RecomputeTrack(ctx context.Context, tx *gorm.DB, userID, trackID uuid.UUID) (*types.UserTrackProgress, error)
}

type rollupService struct {
	db  *gorm.DB
	log *logger.Logger

	trackRepo          repos.TrackRepo
	moduleRepo         repos.TrackModuleRepo
	lessonRepo         repos.LessonRepo
	moduleMissionRepo  repos.ModuleMissionRepo
	trackProgressRepo  repos.UserTrackProgressRepo
	moduleProgressRepo repos.UserModuleProgressRepo
	lessonProgressRepo repos.UserLessonProgressRepo
	missionProgRepo    repos.MissionProgressRepo

	evaluator TierEvaluator
}

func NewRollupService(
	db *gorm.DB,
	baseLog *logger.Logger,
	trackRepo repos.TrackRepo,
	moduleRepo repos.TrackModuleRepo,
	lessonRepo repos.LessonRepo,
	moduleMissionRepo repos.ModuleMissionRepo,
	trackProgressRepo repos.UserTrackProgressRepo,
	moduleProgressRepo repos.UserModuleProgressRepo,
	lessonProgressRepo repos.UserLessonProgressRepo,
	missionProgRepo repos.MissionProgressRepo,
	evaluator TierEvaluator,
) RollupService {
	return &rollupService{
		db:                 db,
		log:                baseLog.With("service", "RollupService"),
		trackRepo:          trackRepo,
		moduleRepo:         moduleRepo,
		lessonRepo:         lessonRepo,
		moduleMissionRepo:  moduleMissionRepo,
		trackProgressRepo:  trackProgressRepo,
		moduleProgressRepo: moduleProgressRepo,
		lessonProgressRepo: lessonProgressRepo,
		missionProgRepo:    missionProgRepo,
		evaluator:          evaluator,
	}
}

func (s *rollupService) RecomputeModule(ctx context.Context, tx *gorm.DB, userID, moduleID uuid.UUID) (*types.UserModuleProgress, error) {
	modules, err := s.moduleRepo.GetByIDs(ctx, tx, []uuid.UUID{moduleID})
	if err != nil {
		return nil, err
	}
	if len(modules) == 0 {
		return nil, fmt.Errorf("module %s: %w", moduleID, errs.ErrNotFound)
	}

	lessons, err := s.lessonRepo.GetActiveByModuleIDs(ctx, tx, []uuid.UUID{moduleID})
	if err != nil {
		return nil, err
	}
	links, err := s.moduleMissionRepo.GetByModuleIDs(ctx, tx, []uuid.UUID{moduleID})
	if err != nil {
		return nil, err
	}

	var requiredLessonIDs []uuid.UUID
	for _, l := range lessons {
		if l.IsRequired && l.IsActive {
			requiredLessonIDs = append(requiredLessonIDs, l.ID)
		}
	}
	var requiredMissionIDs []uuid.UUID
	for _, link := range links {
		if link.IsRequired {
			requiredMissionIDs = append(requiredMissionIDs, link.MissionID)
		}
	}

	lessonRows, err := s.lessonProgressRepo.GetByUserAndLessonIDs(ctx, tx, userID, requiredLessonIDs)
	if err != nil {
		return nil, err
	}
	missionRows, err := s.missionProgRepo.GetByUserAndMissionIDs(ctx, tx, userID, requiredMissionIDs)
	if err != nil {
		return nil, err
	}

	lessonsDone := 0
	for _, row := range lessonRows {
		if row.Status == types.ProgressCompleted {
			lessonsDone++
		}
	}
	missionsDone := 0
	for _, row := range missionRows {
		if row.FinalStatus == types.FinalStatusPass {
			missionsDone++
		}
	}

	totalRequired := len(requiredLessonIDs) + len(requiredMissionIDs)
	completedRequired := lessonsDone + missionsDone

	// Zero required items means zero percent, never a division by zero.
	percentage := 0.0
	if totalRequired > 0 {
		percentage = float64(completedRequired) / float64(totalRequired) * 100
	}

	progress, err := s.moduleProgressRepo.GetOrCreate(ctx, tx, userID, moduleID)
	if err != nil {
		return nil, err
	}

	status := progress.Status
	var completedAt *time.Time
	switch {
	case totalRequired > 0 && completedRequired == totalRequired:
		status = types.ProgressCompleted
		if progress.CompletedAt != nil {
			completedAt = progress.CompletedAt
		} else {
			now := time.Now().UTC()
			completedAt = &now
		}
	case completedRequired > 0:
		status = types.ProgressInProgress
	}

	fields := map[string]interface{}{
		"status":                status,
		"completion_percentage": percentage,
		"lessons_completed":     lessonsDone,
		"missions_completed":    missionsDone,
		"completed_at":          completedAt,
	}
	if err := s.moduleProgressRepo.UpdateFields(ctx, tx, progress.ID, fields); err != nil {
		return nil, err
	}

	progress.Status = status
	progress.CompletionPercentage = percentage
	progress.LessonsCompleted = lessonsDone
	progress.MissionsCompleted = missionsDone
	progress.CompletedAt = completedAt
	return progress, nil
}

func (s *rollupService) RecomputeTrack(ctx context.Context, tx *gorm.DB, userID, trackID uuid.UUID) (*types.UserTrackProgress, error) {
	track, err := s.trackRepo.GetActiveByID(ctx, tx, trackID)
	if err != nil {
		return nil, err
	}
	if track == nil {
		return nil, fmt.Errorf("track %s: %w", trackID, errs.ErrNotFound)
	}

	modules, err := s.moduleRepo.GetActiveByTrackID(ctx, tx, trackID)
	if err != nil {
		return nil, err
	}
	moduleIDs := make([]uuid.UUID, 0, len(modules))
	requiredModuleIDs := map[uuid.UUID]bool{}
	for _, m := range modules {
		moduleIDs = append(moduleIDs, m.ID)
		if m.IsRequired {
			requiredModuleIDs[m.ID] = true
		}
	}

	rows, err := s.moduleProgressRepo.GetByUserAndModuleIDs(ctx, tx, userID, moduleIDs)
	if err != nil {
		return nil, err
	}

	modulesCompleted := 0
	requiredCompleted := 0
	lessonsCompleted := 0
	missionsCompleted := 0
	for _, row := range rows {
		lessonsCompleted += row.LessonsCompleted
		missionsCompleted += row.MissionsCompleted
		if row.Status == types.ProgressCompleted {
			modulesCompleted++
			if requiredModuleIDs[row.ModuleID] {
				requiredCompleted++
			}
		}
	}

	percentage := 0.0
	if len(requiredModuleIDs) > 0 {
		percentage = float64(requiredCompleted) / float64(len(requiredModuleIDs)) * 100
	}

	progress, err := s.trackProgressRepo.GetOrCreate(ctx, tx, userID, trackID)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"completion_percentage": percentage,
		"modules_completed":     modulesCompleted,
		"lessons_completed":     lessonsCompleted,
		"missions_completed":    missionsCompleted,
	}
	if err := s.trackProgressRepo.UpdateFields(ctx, tx, progress.ID, fields); err != nil {
		return nil, err
	}

	progress.CompletionPercentage = percentage
	progress.ModulesCompleted = modulesCompleted
	progress.LessonsCompleted = lessonsCompleted
	progress.MissionsCompleted = missionsCompleted

	// Re-derive the tier flag for the track's own tier. The evaluator is
	// monotonic, so a redundant invocation is harmless.
	if track.Tier >= 2 && track.Tier <= 5 {
		if _, _, err := s.evaluator.EvaluateTier(ctx, tx, userID, trackID, track.Tier, false); err != nil {
			s.log.Warn("RecomputeTrack: tier evaluation failed", "error", err, "track_id", trackID, "tier", track.Tier)
		}
	}

	return progress, nil
}
