package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/skillforge/skillforge-backend/internal/logger"
	"github.com/skillforge/skillforge-backend/internal/repos"
	"github.com/skillforge/skillforge-backend/internal/types"
)

const (
	ActivityLessonCompleted  = "lesson.completed"
	ActivityQuizPassed       = "quiz.passed"
	ActivityMissionStarted   = "mission.started"
	ActivityMissionSubmitted = "mission.submitted"
	ActivityMissionApproved  = "mission.approved"
	ActivityMissionFailed    = "mission.failed"
	ActivityTierCompleted    = "tier.completed"
	ActivityTierUnlocked     = "tier.unlocked"
)

// ActivityEvent is the emitted record consumed by analytics and
// notification collaborators; the engine never reads it back.
type ActivityEvent struct {
	UserID        uuid.UUID
	ActivityType  string
	TrackID       *uuid.UUID
	ModuleID      *uuid.UUID
	LessonID      *uuid.UUID
	MissionID     *uuid.UUID
	PointsAwarded int
	Metadata      map[string]interface{}
}

type ActivityService interface {
	Emit(ctx context.Context, tx *gorm.DB, ev ActivityEvent) error
}

type activityService struct {
	db   *gorm.DB
	log  *logger.Logger
	repo repos.UserEventRepo
}

func NewActivityService(db *gorm.DB, baseLog *logger.Logger, repo repos.UserEventRepo) ActivityService {
	return &activityService{
		db:   db,
		log:  baseLog.With("service", "ActivityService"),
		repo: repo,
	}
}

func (s *activityService) Emit(ctx context.Context, tx *gorm.DB, ev ActivityEvent) error {
	row := &types.UserEvent{
		UserID:        ev.UserID,
		ActivityType:  ev.ActivityType,
		TrackID:       ev.TrackID,
		ModuleID:      ev.ModuleID,
		LessonID:      ev.LessonID,
		MissionID:     ev.MissionID,
		PointsAwarded: ev.PointsAwarded,
	}
	if len(ev.Metadata) > 0 {
		raw, err := json.Marshal(ev.Metadata)
		if err != nil {
			return err
		}
		row.Metadata = datatypes.JSON(raw)
	}

	if _, err := s.repo.Append(ctx, tx, []*types.UserEvent{row}); err != nil {
		s.log.Warn("Emit: append user event failed", "error", err, "activity_type", ev.ActivityType, "user_id", ev.UserID)
		return err
	}
	return nil
}
