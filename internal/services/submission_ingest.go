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

const (
	IngestStatusPassed    = "passed"
	IngestStatusFailed    = "failed"
	IngestStatusCompleted = "completed"
)

// IngestRecord is one graded result pushed by the external lab pipeline,
// keyed by the module-mission link it was provisioned from.
type IngestRecord struct {
	ModuleMissionID uuid.UUID `json:"module_mission_id"`
	Status          string    `json:"status"`
	Score           *int      `json:"score,omitempty"`
	Grade           *string   `json:"grade,omitempty"`
	Feedback        string    `json:"feedback,omitempty"`
}

// SubmissionIngestService maps external pipeline verdicts onto the attempt
// state machine. The record walks the same submitted -> ai_reviewed ->
// terminal path a mentor verdict does, so the approval side effects fire
// exactly once either way.
type SubmissionIngestService interface {
	Ingest(ctx context.Context, tx *gorm.DB, userID uuid.UUID, rec IngestRecord) (*types.MissionProgress, error)
}

type submissionIngestService struct {
	db  *gorm.DB
	log *logger.Logger

	moduleMissionRepo repos.ModuleMissionRepo
	progressRepo      repos.MissionProgressRepo
	coordinator       ReviewCoordinator
}

func NewSubmissionIngestService(
	db *gorm.DB,
	baseLog *logger.Logger,
	moduleMissionRepo repos.ModuleMissionRepo,
	progressRepo repos.MissionProgressRepo,
	coordinator ReviewCoordinator,
) SubmissionIngestService {
	return &submissionIngestService{
		db:                db,
		log:               baseLog.With("service", "SubmissionIngestService"),
		moduleMissionRepo: moduleMissionRepo,
		progressRepo:      progressRepo,
		coordinator:       coordinator,
	}
}

func (s *submissionIngestService) Ingest(ctx context.Context, tx *gorm.DB, userID uuid.UUID, rec IngestRecord) (*types.MissionProgress, error) {
	var decision string
	switch rec.Status {
	case IngestStatusPassed, IngestStatusCompleted:
		decision = MentorDecisionPass
	case IngestStatusFailed:
		decision = MentorDecisionFail
	default:
		return nil, fmt.Errorf("ingest status %q: %w", rec.Status, errs.ErrInvalidArgument)
	}
	if rec.Score != nil && (*rec.Score < 0 || *rec.Score > 100) {
		return nil, fmt.Errorf("ingest score %d out of range: %w", *rec.Score, errs.ErrInvalidArgument)
	}

	link, err := s.moduleMissionRepo.GetByID(ctx, tx, rec.ModuleMissionID)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, fmt.Errorf("module mission %s: %w", rec.ModuleMissionID, errs.ErrNotFound)
	}

	progress, err := s.progressRepo.GetByUserAndMission(ctx, tx, userID, link.MissionID)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		return nil, fmt.Errorf("attempt for mission %s: %w", link.MissionID, errs.ErrNotFound)
	}
	// Re-delivered records for a settled attempt are dropped, not replayed.
	if progress.Terminal() {
		return progress, nil
	}

	// The pipeline grades work done in the lab, so an attempt still marked
	// in_progress is submitted on its behalf before the verdict lands.
	if progress.Status == types.MissionStatusInProgress {
		progress, err = s.markSubmitted(ctx, tx, progress.ID)
		if err != nil {
			return nil, err
		}
	}
	if progress.Status == types.MissionStatusSubmitted {
		output := DefaultAIReview()
		if rec.Score != nil {
			output = &AIReviewOutput{Score: *rec.Score, Strengths: []string{"Graded by lab pipeline"}}
		}
		progress, err = s.coordinator.ApplyAIReview(ctx, tx, progress.ID, output)
		if err != nil {
			return nil, err
		}
	}

	feedback := rec.Feedback
	if rec.Grade != nil {
		feedback = fmt.Sprintf("Grade: %s. %s", *rec.Grade, rec.Feedback)
	}
	return s.coordinator.ApplyMentorReview(ctx, tx, progress.ID, MentorReviewInput{
		OverallScoreOverride: rec.Score,
		Decision:             decision,
		Feedback:             feedback,
	})
}

func (s *submissionIngestService) markSubmitted(ctx context.Context, tx *gorm.DB, attemptID uuid.UUID) (*types.MissionProgress, error) {
	var lastErr error
	for attempt := 0; attempt < versionRetries; attempt++ {
		progress, err := s.progressRepo.GetByID(ctx, tx, attemptID)
		if err != nil {
			return nil, err
		}
		if progress == nil {
			return nil, fmt.Errorf("attempt %s: %w", attemptID, errs.ErrNotFound)
		}
		if progress.Status != types.MissionStatusInProgress {
			return progress, nil
		}

		now := time.Now().UTC()
		progress.Status = types.MissionStatusSubmitted
		progress.SubmittedAt = &now
		progress.LastActivityAt = now

		err = s.progressRepo.UpdateWithVersion(ctx, tx, progress)
		if err == nil {
			return progress, nil
		}
		if err != errs.ErrConflict {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
