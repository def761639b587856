package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/skillforge/skillforge-backend/internal/errs"
	"github.com/skillforge/skillforge-backend/internal/logger"
	"github.com/skillforge/skillforge-backend/internal/repos"
	"github.com/skillforge/skillforge-backend/internal/types"
)

const (
	MentorDecisionPass     = "pass"
	MentorDecisionFail     = "fail"
	MentorDecisionRevision = "revision"

	// aiReviewTimeout bounds one out-of-band review task end to end,
	// provider retries included.
	aiReviewTimeout = 5 * time.Minute
)

// MentorReviewInput is the mentor's verdict for one attempt. SubtaskScores
// takes precedence for the mentor score; OverallScoreOverride is second;
// the stored AI score is the fallback.
type MentorReviewInput struct {
	MentorID             uuid.UUID      `json:"mentor_id"`
	SubtaskScores        map[string]int `json:"subtask_scores,omitempty"`
	OverallScoreOverride *int           `json:"overall_score_override,omitempty"`
	Decision             string         `json:"decision"`
	Feedback             string         `json:"feedback,omitempty"`
}

// ReviewCoordinator owns the attempt lifecycle after submission: the
// asynchronous AI pass, the mentor verdict, and the exactly-once approval
// side effects. It implements AIReviewDispatcher for the execution service.
type ReviewCoordinator interface {
	AIReviewDispatcher
	// ApplyAIReview moves a submitted attempt to ai_reviewed with the given
	// output. Re-applying to an attempt past submitted is a no-op.
	ApplyAIReview(ctx context.Context, tx *gorm.DB, attemptID uuid.UUID, output *AIReviewOutput) (*types.MissionProgress, error)
	// StartMentorReview claims an ai_reviewed attempt for a mentor.
	StartMentorReview(ctx context.Context, tx *gorm.DB, attemptID uuid.UUID) (*types.MissionProgress, error)
	ApplyMentorReview(ctx context.Context, tx *gorm.DB, attemptID uuid.UUID, input MentorReviewInput) (*types.MissionProgress, error)
	// ReopenForRevision puts a revision_requested attempt back in progress so
	// the learner can amend and resubmit.
	ReopenForRevision(ctx context.Context, tx *gorm.DB, userID, missionID uuid.UUID) (*types.MissionProgress, error)
}

type reviewCoordinator struct {
	db  *gorm.DB
	log *logger.Logger

	missionRepo       repos.MissionRepo
	progressRepo      repos.MissionProgressRepo
	moduleMissionRepo repos.ModuleMissionRepo
	moduleRepo        repos.TrackModuleRepo
	trackProgressRepo repos.UserTrackProgressRepo
	portfolioRepo     repos.PortfolioArtifactRepo
	skillSignalRepo   repos.SkillSignalRepo

	reviewer   AIReviewer
	activity   ActivityService
	dashboards DashboardInvalidator
	rollup     RollupService
}

func NewReviewCoordinator(
	db *gorm.DB,
	baseLog *logger.Logger,
	missionRepo repos.MissionRepo,
	progressRepo repos.MissionProgressRepo,
	moduleMissionRepo repos.ModuleMissionRepo,
	moduleRepo repos.TrackModuleRepo,
	trackProgressRepo repos.UserTrackProgressRepo,
	portfolioRepo repos.PortfolioArtifactRepo,
	skillSignalRepo repos.SkillSignalRepo,
	reviewer AIReviewer,
	activity ActivityService,
	dashboards DashboardInvalidator,
	rollup RollupService,
) ReviewCoordinator {
	return &reviewCoordinator{
		db:                db,
		log:               baseLog.With("service", "ReviewCoordinator"),
		missionRepo:       missionRepo,
		progressRepo:      progressRepo,
		moduleMissionRepo: moduleMissionRepo,
		moduleRepo:        moduleRepo,
		trackProgressRepo: trackProgressRepo,
		portfolioRepo:     portfolioRepo,
		skillSignalRepo:   skillSignalRepo,
		reviewer:          reviewer,
		activity:          activity,
		dashboards:        dashboards,
		rollup:            rollup,
	}
}

// EnqueueAIReview kicks off the out-of-band AI pass. The submit path never
// waits on the provider; failures land on the deterministic fallback score
// inside runAIReview.
func (s *reviewCoordinator) EnqueueAIReview(attemptID uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), aiReviewTimeout)
		defer cancel()
		if err := s.runAIReview(ctx, attemptID); err != nil {
			s.log.Error("ai review task failed", "error", err, "attempt_id", attemptID)
		}
	}()
}

func (s *reviewCoordinator) runAIReview(ctx context.Context, attemptID uuid.UUID) error {
	progress, err := s.progressRepo.GetByID(ctx, nil, attemptID)
	if err != nil {
		return err
	}
	if progress == nil {
		return fmt.Errorf("attempt %s: %w", attemptID, errs.ErrNotFound)
	}
	if progress.Status != types.MissionStatusSubmitted {
		// Already reviewed, or withdrawn before the task ran.
		return nil
	}

	mission, err := s.missionRepo.GetActiveByID(ctx, nil, progress.MissionID)
	if err != nil {
		return err
	}
	if mission == nil {
		return fmt.Errorf("mission %s: %w", progress.MissionID, errs.ErrNotFound)
	}

	output, err := s.reviewer.Review(ctx, buildAIReviewInput(mission, progress))
	if err != nil {
		s.log.Warn("ai review unavailable, applying fallback score",
			"error", err, "attempt_id", attemptID, "mission_id", mission.ID)
		output = DefaultAIReview()
	}

	_, err = s.ApplyAIReview(ctx, nil, attemptID, output)
	return err
}

func buildAIReviewInput(mission *types.Mission, progress *types.MissionProgress) AIReviewInput {
	input := AIReviewInput{
		MissionID:       mission.ID,
		Title:           mission.Title,
		Description:     mission.Description,
		SkillTags:       decodeSkillTags(mission),
		SubmissionNotes: progress.ReflectionText,
	}
	if state, err := progress.DecodeSubtasks(); err == nil {
		for id, st := range state {
			if st.Evidence == "" {
				continue
			}
			input.Artifacts = append(input.Artifacts, ReviewArtifact{
				Type:     "subtask_evidence",
				URL:      st.Evidence,
				Filename: id,
			})
		}
	}
	return input
}

func decodeSkillTags(mission *types.Mission) []string {
	var tags []string
	if len(mission.SkillTags) > 0 {
		if err := json.Unmarshal(mission.SkillTags, &tags); err != nil {
			return nil
		}
	}
	return tags
}

// mutateAttemptByID is the same bounded optimistic-retry loop the execution
// service uses, keyed by attempt id instead of (user, mission).
func (s *reviewCoordinator) mutateAttemptByID(
	ctx context.Context,
	tx *gorm.DB,
	attemptID uuid.UUID,
	fn func(p *types.MissionProgress) (bool, error),
) (*types.MissionProgress, error) {
	var lastErr error
	for attempt := 0; attempt < versionRetries; attempt++ {
		progress, err := s.progressRepo.GetByID(ctx, tx, attemptID)
		if err != nil {
			return nil, err
		}
		if progress == nil {
			return nil, fmt.Errorf("attempt %s: %w", attemptID, errs.ErrNotFound)
		}

		dirty, err := fn(progress)
		if err != nil {
			return nil, err
		}
		if !dirty {
			return progress, nil
		}

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

func (s *reviewCoordinator) ApplyAIReview(ctx context.Context, tx *gorm.DB, attemptID uuid.UUID, output *AIReviewOutput) (*types.MissionProgress, error) {
	if output == nil {
		output = DefaultAIReview()
	}
	feedback, err := json.Marshal(output)
	if err != nil {
		return nil, err
	}

	return s.mutateAttemptByID(ctx, tx, attemptID, func(p *types.MissionProgress) (bool, error) {
		switch p.Status {
		case types.MissionStatusSubmitted:
		case types.MissionStatusAIReviewed, types.MissionStatusMentorReview,
			types.MissionStatusApproved, types.MissionStatusFailed, types.MissionStatusRevisionRequested:
			// A second application of the same task is a no-op.
			return false, nil
		default:
			return false, fmt.Errorf("ai review from %s: %w", p.Status, errs.ErrInvalidTransition)
		}

		score := output.Score
		p.Status = types.MissionStatusAIReviewed
		p.AIScore = &score
		p.AIFeedback = datatypes.JSON(feedback)
		return true, nil
	})
}

func (s *reviewCoordinator) StartMentorReview(ctx context.Context, tx *gorm.DB, attemptID uuid.UUID) (*types.MissionProgress, error) {
	return s.mutateAttemptByID(ctx, tx, attemptID, func(p *types.MissionProgress) (bool, error) {
		switch p.Status {
		case types.MissionStatusAIReviewed:
			p.Status = types.MissionStatusMentorReview
			return true, nil
		case types.MissionStatusMentorReview:
			return false, nil
		default:
			return false, fmt.Errorf("start mentor review from %s: %w", p.Status, errs.ErrInvalidTransition)
		}
	})
}

// mentorScoreFor resolves the persisted mentor score: mean of per-subtask
// scores first, explicit override second, stored AI score last.
func mentorScoreFor(p *types.MissionProgress, input MentorReviewInput) int {
	if len(input.SubtaskScores) > 0 {
		sum := 0
		for _, v := range input.SubtaskScores {
			sum += v
		}
		return int(math.Round(float64(sum) / float64(len(input.SubtaskScores))))
	}
	if input.OverallScoreOverride != nil {
		return *input.OverallScoreOverride
	}
	if p.AIScore != nil {
		return *p.AIScore
	}
	return DefaultAIScore
}

func (s *reviewCoordinator) ApplyMentorReview(ctx context.Context, tx *gorm.DB, attemptID uuid.UUID, input MentorReviewInput) (*types.MissionProgress, error) {
	switch input.Decision {
	case MentorDecisionPass, MentorDecisionFail, MentorDecisionRevision:
	default:
		return nil, fmt.Errorf("mentor decision %q: %w", input.Decision, errs.ErrInvalidArgument)
	}

	progress, err := s.mutateAttemptByID(ctx, tx, attemptID, func(p *types.MissionProgress) (bool, error) {
		switch p.Status {
		case types.MissionStatusAIReviewed, types.MissionStatusMentorReview:
		default:
			return false, fmt.Errorf("mentor review from %s: %w", p.Status, errs.ErrInvalidTransition)
		}

		score := mentorScoreFor(p, input)
		now := time.Now().UTC()
		p.MentorScore = &score
		p.MentorReviewedAt = &now

		switch input.Decision {
		case MentorDecisionPass:
			p.Status = types.MissionStatusApproved
			p.FinalStatus = types.FinalStatusPass
		case MentorDecisionFail:
			p.Status = types.MissionStatusFailed
			p.FinalStatus = types.FinalStatusFail
		case MentorDecisionRevision:
			p.Status = types.MissionStatusRevisionRequested
			p.FinalStatus = types.FinalStatusPending
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	mission, err := s.missionRepo.GetActiveByID(ctx, tx, progress.MissionID)
	if err != nil {
		return nil, err
	}
	if mission == nil {
		return nil, fmt.Errorf("mission %s: %w", progress.MissionID, errs.ErrNotFound)
	}

	switch progress.Status {
	case types.MissionStatusApproved:
		s.applyApprovalSideEffects(ctx, tx, mission, progress, input)
	case types.MissionStatusFailed:
		if evErr := s.activity.Emit(ctx, tx, ActivityEvent{
			UserID:       progress.UserID,
			ActivityType: ActivityMissionFailed,
			MissionID:    &mission.ID,
			TrackID:      mission.TrackID,
		}); evErr != nil {
			s.log.Warn("ApplyMentorReview: emit mission failed event failed", "error", evErr, "attempt_id", attemptID)
		}
	}

	// Rollups are idempotent and re-derive from the ledger, so every terminal
	// verdict triggers them, pass or fail.
	if progress.Terminal() {
		s.recomputeAffected(ctx, tx, mission, progress.UserID)
	}
	return progress, nil
}

// applyApprovalSideEffects runs the approval consequences exactly once per
// attempt. The portfolio unique index is the guard: when the insert reports
// a duplicate, a concurrent or earlier approval already ran the rest.
func (s *reviewCoordinator) applyApprovalSideEffects(ctx context.Context, tx *gorm.DB, mission *types.Mission, progress *types.MissionProgress, input MentorReviewInput) {
	artifact := &types.PortfolioArtifact{
		UserID:            progress.UserID,
		MissionProgressID: progress.ID,
		MissionID:         mission.ID,
		Title:             mission.Title,
		Summary:           input.Feedback,
		Evidence:          progress.Subtasks,
	}
	inserted, err := s.portfolioRepo.CreateIfAbsent(ctx, tx, artifact)
	if err != nil {
		s.log.Error("approval: portfolio artifact create failed", "error", err, "attempt_id", progress.ID)
		return
	}
	if !inserted {
		return
	}

	score := DefaultAIScore
	if progress.MentorScore != nil {
		score = *progress.MentorScore
	}
	tags := decodeSkillTags(mission)
	if len(tags) > 0 {
		signals := make([]*types.SkillSignal, 0, len(tags))
		for _, tag := range tags {
			signals = append(signals, &types.SkillSignal{
				UserID:            progress.UserID,
				MissionProgressID: progress.ID,
				Skill:             tag,
				Level:             "demonstrated",
				Score:             score,
			})
		}
		if _, err := s.skillSignalRepo.Create(ctx, tx, signals); err != nil {
			s.log.Warn("approval: skill signal create failed", "error", err, "attempt_id", progress.ID)
		}
	}

	if err := s.dashboards.InvalidateDashboards(ctx, progress.UserID); err != nil {
		s.log.Warn("approval: dashboard invalidation failed", "error", err, "user_id", progress.UserID)
	}

	if evErr := s.activity.Emit(ctx, tx, ActivityEvent{
		UserID:       progress.UserID,
		ActivityType: ActivityMissionApproved,
		MissionID:    &mission.ID,
		TrackID:      mission.TrackID,
		Metadata:     map[string]interface{}{"mentor_score": score},
	}); evErr != nil {
		s.log.Warn("approval: emit activity failed", "error", evErr, "attempt_id", progress.ID)
	}

	if mission.MissionType == types.MissionTypeMini {
		if err := s.bumpTrackCounter(ctx, tx, progress.UserID, mission, "mini_missions_completed"); err != nil {
			s.log.Warn("approval: mini-mission counter increment failed", "error", err, "attempt_id", progress.ID)
		}
	}
}

func (s *reviewCoordinator) bumpTrackCounter(ctx context.Context, tx *gorm.DB, userID uuid.UUID, mission *types.Mission, column string) error {
	trackID := uuid.Nil
	if mission.TrackID != nil {
		trackID = *mission.TrackID
	} else {
		links, err := s.moduleMissionRepo.GetByMissionID(ctx, tx, mission.ID)
		if err != nil {
			return err
		}
		if len(links) > 0 {
			modules, err := s.moduleRepo.GetByIDs(ctx, tx, []uuid.UUID{links[0].ModuleID})
			if err != nil {
				return err
			}
			if len(modules) > 0 {
				trackID = modules[0].TrackID
			}
		}
	}
	if trackID == uuid.Nil {
		return nil
	}

	row, err := s.trackProgressRepo.GetOrCreate(ctx, tx, userID, trackID)
	if err != nil {
		return err
	}
	return s.trackProgressRepo.IncrementCounters(ctx, tx, row.ID, map[string]int{column: 1})
}

// recomputeAffected rolls up every module linked to the mission, then each
// distinct track behind those modules (plus the mission's own track tag).
func (s *reviewCoordinator) recomputeAffected(ctx context.Context, tx *gorm.DB, mission *types.Mission, userID uuid.UUID) {
	trackIDs := map[uuid.UUID]bool{}
	if mission.TrackID != nil {
		trackIDs[*mission.TrackID] = true
	}

	links, err := s.moduleMissionRepo.GetByMissionID(ctx, tx, mission.ID)
	if err != nil {
		s.log.Warn("rollup: load mission links failed", "error", err, "mission_id", mission.ID)
		links = nil
	}
	moduleIDs := make([]uuid.UUID, 0, len(links))
	for _, link := range links {
		moduleIDs = append(moduleIDs, link.ModuleID)
		if _, err := s.rollup.RecomputeModule(ctx, tx, userID, link.ModuleID); err != nil {
			s.log.Warn("rollup: module recompute failed", "error", err, "module_id", link.ModuleID)
		}
	}

	if len(moduleIDs) > 0 {
		modules, err := s.moduleRepo.GetByIDs(ctx, tx, moduleIDs)
		if err != nil {
			s.log.Warn("rollup: load modules failed", "error", err, "mission_id", mission.ID)
		}
		for _, m := range modules {
			trackIDs[m.TrackID] = true
		}
	}

	for trackID := range trackIDs {
		if _, err := s.rollup.RecomputeTrack(ctx, tx, userID, trackID); err != nil {
			s.log.Warn("rollup: track recompute failed", "error", err, "track_id", trackID)
		}
	}
}

func (s *reviewCoordinator) ReopenForRevision(ctx context.Context, tx *gorm.DB, userID, missionID uuid.UUID) (*types.MissionProgress, error) {
	progress, err := s.progressRepo.GetByUserAndMission(ctx, tx, userID, missionID)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		return nil, fmt.Errorf("attempt for mission %s: %w", missionID, errs.ErrNotFound)
	}
	return s.mutateAttemptByID(ctx, tx, progress.ID, func(p *types.MissionProgress) (bool, error) {
		switch p.Status {
		case types.MissionStatusRevisionRequested:
			p.Status = types.MissionStatusInProgress
			p.SubmittedAt = nil
			p.LastActivityAt = time.Now().UTC()
			return true, nil
		case types.MissionStatusInProgress:
			return false, nil
		default:
			return false, fmt.Errorf("reopen from %s: %w", p.Status, errs.ErrInvalidTransition)
		}
	})
}
