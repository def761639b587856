package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skillforge/skillforge-backend/internal/catalog"
	"github.com/skillforge/skillforge-backend/internal/errs"
	"github.com/skillforge/skillforge-backend/internal/logger"
	"github.com/skillforge/skillforge-backend/internal/repos"
	"github.com/skillforge/skillforge-backend/internal/types"
)

// versionRetries bounds the optimistic-concurrency retry loop on attempt
// mutations before surfacing errs.ErrConflict.
const versionRetries = 3

// AIReviewDispatcher decouples Submit from the asynchronous review task.
// The review coordinator implements it; Submit never blocks on the provider.
type AIReviewDispatcher interface {
	EnqueueAIReview(attemptID uuid.UUID)
}

type SubtaskUnlockResult struct {
	Unlockable          bool     `json:"unlockable"`
	MissingDependencies []string `json:"missing_dependencies"`
}

// MissionAttemptView is the read model for one attempt. Expired is derived
// lazily at read time; an expired attempt is never auto-failed.
type MissionAttemptView struct {
	Progress *types.MissionProgress `json:"progress"`
	Expired  bool                   `json:"expired"`
}

type MissionExecutionService interface {
	Start(ctx context.Context, tx *gorm.DB, userID, missionID uuid.UUID) (*types.MissionProgress, error)
	Get(ctx context.Context, tx *gorm.DB, userID, missionID uuid.UUID) (*MissionAttemptView, error)
	// CompleteSubtask marks the 1-indexed subtask done and reports whether
	// every declared subtask is now complete (ready to submit).
	CompleteSubtask(ctx context.Context, tx *gorm.DB, userID, missionID uuid.UUID, subtaskIndex int, notes, evidence string) (*types.MissionProgress, bool, error)
	CheckSubtaskUnlockable(ctx context.Context, tx *gorm.DB, userID, missionID uuid.UUID, subtaskID string) (*SubtaskUnlockResult, error)
	RecordDecision(ctx context.Context, tx *gorm.DB, userID, missionID uuid.UUID, decisionID, choiceID string) (json.RawMessage, error)
	Submit(ctx context.Context, tx *gorm.DB, userID, missionID uuid.UUID, reflectionText string) (*types.MissionProgress, error)
	RecordHint(ctx context.Context, tx *gorm.DB, userID, missionID uuid.UUID) error
	RecordStageTime(ctx context.Context, tx *gorm.DB, userID, missionID uuid.UUID, subtaskID string, seconds int) error
	RecordToolUsed(ctx context.Context, tx *gorm.DB, userID, missionID uuid.UUID, tool string) error
	// RecordDropOffs stamps drop_off_stage on stale in_progress attempts.
	// Analytics only; it never gates anything.
	RecordDropOffs(ctx context.Context, inactiveFor time.Duration) (int, error)
	StartDropOffWorker(ctx context.Context, interval, inactiveFor time.Duration)
}

type missionExecutionService struct {
	db  *gorm.DB
	log *logger.Logger

	missionRepo       repos.MissionRepo
	progressRepo      repos.MissionProgressRepo
	moduleMissionRepo repos.ModuleMissionRepo
	moduleRepo        repos.TrackModuleRepo
	trackProgressRepo repos.UserTrackProgressRepo

	activity   ActivityService
	dispatcher AIReviewDispatcher
}

func NewMissionExecutionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	missionRepo repos.MissionRepo,
	progressRepo repos.MissionProgressRepo,
	moduleMissionRepo repos.ModuleMissionRepo,
	moduleRepo repos.TrackModuleRepo,
	trackProgressRepo repos.UserTrackProgressRepo,
	activity ActivityService,
	dispatcher AIReviewDispatcher,
) MissionExecutionService {
	return &missionExecutionService{
		db:                db,
		log:               baseLog.With("service", "MissionExecutionService"),
		missionRepo:       missionRepo,
		progressRepo:      progressRepo,
		moduleMissionRepo: moduleMissionRepo,
		moduleRepo:        moduleRepo,
		trackProgressRepo: trackProgressRepo,
		activity:          activity,
		dispatcher:        dispatcher,
	}
}

func (s *missionExecutionService) loadMission(ctx context.Context, tx *gorm.DB, missionID uuid.UUID) (*types.Mission, *catalog.MissionDefinition, error) {
	mission, err := s.missionRepo.GetActiveByID(ctx, tx, missionID)
	if err != nil {
		return nil, nil, err
	}
	if mission == nil {
		return nil, nil, fmt.Errorf("mission %s: %w", missionID, errs.ErrNotFound)
	}
	def, err := catalog.ParseMissionDefinition(mission)
	if err != nil {
		return nil, nil, err
	}
	return mission, def, nil
}

func (s *missionExecutionService) Start(ctx context.Context, tx *gorm.DB, userID, missionID uuid.UUID) (*types.MissionProgress, error) {
	mission, def, err := s.loadMission(ctx, tx, missionID)
	if err != nil {
		return nil, err
	}

	// Idempotent: the (user, mission) row is unique, so an existing attempt
	// is returned unchanged whatever its state.
	existing, err := s.progressRepo.GetByUserAndMission(ctx, tx, userID, missionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now().UTC()
	row := &types.MissionProgress{
		UserID:             userID,
		MissionID:          missionID,
		Status:             types.MissionStatusInProgress,
		CurrentSubtask:     1,
		FinalStatus:        types.FinalStatusPending,
		ReflectionRequired: mission.ReflectionRequired,
		StartedAt:          now,
		LastActivityAt:     now,
	}
	if mission.TimeConstraintHours > 0 {
		deadline := now.Add(time.Duration(mission.TimeConstraintHours) * time.Hour)
		row.DeadlineAt = &deadline
	}

	subtasks := map[string]types.SubtaskProgress{}
	for _, st := range def.Subtasks {
		subtasks[st.ID] = types.SubtaskProgress{Completed: false}
	}
	if err := row.EncodeSubtasks(subtasks); err != nil {
		return nil, err
	}
	if err := row.EncodeDecisionPaths(map[string]types.DecisionPath{}); err != nil {
		return nil, err
	}

	if _, err := s.progressRepo.Create(ctx, tx, row); err != nil {
		// Lost a concurrent create race on the unique index; the winner's
		// row is the attempt.
		if again, readErr := s.progressRepo.GetByUserAndMission(ctx, tx, userID, missionID); readErr == nil && again != nil {
			return again, nil
		}
		return nil, err
	}

	if evErr := s.activity.Emit(ctx, tx, ActivityEvent{
		UserID:       userID,
		ActivityType: ActivityMissionStarted,
		MissionID:    &missionID,
		TrackID:      mission.TrackID,
	}); evErr != nil {
		s.log.Warn("Start: emit activity failed", "error", evErr, "mission_id", missionID)
	}
	return row, nil
}

func (s *missionExecutionService) Get(ctx context.Context, tx *gorm.DB, userID, missionID uuid.UUID) (*MissionAttemptView, error) {
	progress, err := s.progressRepo.GetByUserAndMission(ctx, tx, userID, missionID)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		return nil, fmt.Errorf("attempt for mission %s: %w", missionID, errs.ErrNotFound)
	}
	return &MissionAttemptView{
		Progress: progress,
		Expired:  progress.Expired(time.Now().UTC()),
	}, nil
}

// mutateAttempt runs fn against the current attempt row inside a bounded
// optimistic-concurrency retry loop. fn errors abort immediately; only a
// stale version triggers a re-read and retry.
func (s *missionExecutionService) mutateAttempt(
	ctx context.Context,
	tx *gorm.DB,
	userID, missionID uuid.UUID,
	def *catalog.MissionDefinition,
	fn func(p *types.MissionProgress) error,
) (*types.MissionProgress, error) {
	var lastErr error
	for attempt := 0; attempt < versionRetries; attempt++ {
		progress, err := s.progressRepo.GetByUserAndMission(ctx, tx, userID, missionID)
		if err != nil {
			return nil, err
		}
		if progress == nil {
			return nil, fmt.Errorf("attempt for mission %s: %w", missionID, errs.ErrNotFound)
		}

		if err := fn(progress); err != nil {
			return nil, err
		}
		progress.LastActivityAt = time.Now().UTC()

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

func (s *missionExecutionService) CompleteSubtask(ctx context.Context, tx *gorm.DB, userID, missionID uuid.UUID, subtaskIndex int, notes, evidence string) (*types.MissionProgress, bool, error) {
	_, def, err := s.loadMission(ctx, tx, missionID)
	if err != nil {
		return nil, false, err
	}

	ready := false
	progress, err := s.mutateAttempt(ctx, tx, userID, missionID, def, func(p *types.MissionProgress) error {
		if p.Status != types.MissionStatusInProgress {
			return fmt.Errorf("complete subtask from %s: %w", p.Status, errs.ErrInvalidTransition)
		}
		subtask, ok := def.SubtaskAt(subtaskIndex)
		if !ok {
			return fmt.Errorf("subtask index %d of %d: %w", subtaskIndex, def.SubtaskCount(), errs.ErrInvalidSubtask)
		}

		state, err := p.DecodeSubtasks()
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		state[subtask.ID] = types.SubtaskProgress{
			Completed:   true,
			Notes:       notes,
			Evidence:    evidence,
			CompletedAt: &now,
		}
		if err := p.EncodeSubtasks(state); err != nil {
			return err
		}

		if subtaskIndex < def.SubtaskCount() {
			p.CurrentSubtask = subtaskIndex + 1
		} else {
			p.CurrentSubtask = def.SubtaskCount()
		}

		ready = true
		for _, st := range def.Subtasks {
			if !state[st.ID].Completed {
				ready = false
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return progress, ready, nil
}

func (s *missionExecutionService) CheckSubtaskUnlockable(ctx context.Context, tx *gorm.DB, userID, missionID uuid.UUID, subtaskID string) (*SubtaskUnlockResult, error) {
	_, def, err := s.loadMission(ctx, tx, missionID)
	if err != nil {
		return nil, err
	}
	subtask, ok := def.SubtaskByID(subtaskID)
	if !ok {
		return nil, fmt.Errorf("subtask %q: %w", subtaskID, errs.ErrInvalidSubtask)
	}

	progress, err := s.progressRepo.GetByUserAndMission(ctx, tx, userID, missionID)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		return nil, fmt.Errorf("attempt for mission %s: %w", missionID, errs.ErrNotFound)
	}
	state, err := progress.DecodeSubtasks()
	if err != nil {
		return nil, err
	}

	// Report every unmet dependency, not just the first, so the consumer
	// can show all blockers at once.
	missing := []string{}
	for _, dep := range subtask.Dependencies {
		if !state[dep].Completed {
			missing = append(missing, dep)
		}
	}
	return &SubtaskUnlockResult{
		Unlockable:          len(missing) == 0,
		MissingDependencies: missing,
	}, nil
}

func (s *missionExecutionService) RecordDecision(ctx context.Context, tx *gorm.DB, userID, missionID uuid.UUID, decisionID, choiceID string) (json.RawMessage, error) {
	_, def, err := s.loadMission(ctx, tx, missionID)
	if err != nil {
		return nil, err
	}

	decision, ok := def.DecisionByID(decisionID)
	if !ok {
		return nil, fmt.Errorf("decision %q: %w", decisionID, errs.ErrDecisionNotFound)
	}
	choice, ok := decision.ChoiceByID(choiceID)
	if !ok {
		return nil, fmt.Errorf("choice %q on decision %q: %w", choiceID, decisionID, errs.ErrInvalidChoice)
	}

	_, err = s.mutateAttempt(ctx, tx, userID, missionID, def, func(p *types.MissionProgress) error {
		if p.Status != types.MissionStatusInProgress {
			return fmt.Errorf("record decision from %s: %w", p.Status, errs.ErrInvalidTransition)
		}
		paths, err := p.DecodeDecisionPaths()
		if err != nil {
			return err
		}
		// Last write wins on a re-made decision.
		paths[decisionID] = types.DecisionPath{ChoiceID: choiceID, Timestamp: time.Now().UTC()}
		return p.EncodeDecisionPaths(paths)
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(choice.Consequence), nil
}

func (s *missionExecutionService) Submit(ctx context.Context, tx *gorm.DB, userID, missionID uuid.UUID, reflectionText string) (*types.MissionProgress, error) {
	mission, def, err := s.loadMission(ctx, tx, missionID)
	if err != nil {
		return nil, err
	}

	reflectionAdded := false
	progress, err := s.mutateAttempt(ctx, tx, userID, missionID, def, func(p *types.MissionProgress) error {
		if p.Status != types.MissionStatusInProgress {
			return fmt.Errorf("submit from %s: %w", p.Status, errs.ErrAlreadySubmitted)
		}
		now := time.Now().UTC()
		p.Status = types.MissionStatusSubmitted
		p.SubmittedAt = &now
		if reflectionText != "" {
			p.ReflectionText = reflectionText
			reflectionAdded = !p.ReflectionSubmitted
			p.ReflectionSubmitted = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if reflectionAdded {
		if err := s.bumpTrackCounter(ctx, tx, userID, mission, "reflections_submitted"); err != nil {
			s.log.Warn("Submit: reflections counter increment failed", "error", err, "mission_id", missionID)
		}
	}

	if evErr := s.activity.Emit(ctx, tx, ActivityEvent{
		UserID:       userID,
		ActivityType: ActivityMissionSubmitted,
		MissionID:    &missionID,
		TrackID:      mission.TrackID,
	}); evErr != nil {
		s.log.Warn("Submit: emit activity failed", "error", evErr, "mission_id", missionID)
	}

	// AI review runs out of band; the submitter never waits on the provider.
	s.dispatcher.EnqueueAIReview(progress.ID)
	return progress, nil
}

// bumpTrackCounter resolves the mission's track (direct tag first, module
// links second) and applies an atomic +1 on the given counter column.
func (s *missionExecutionService) bumpTrackCounter(ctx context.Context, tx *gorm.DB, userID uuid.UUID, mission *types.Mission, column string) error {
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

func (s *missionExecutionService) RecordHint(ctx context.Context, tx *gorm.DB, userID, missionID uuid.UUID) error {
	_, def, err := s.loadMission(ctx, tx, missionID)
	if err != nil {
		return err
	}
	_, err = s.mutateAttempt(ctx, tx, userID, missionID, def, func(p *types.MissionProgress) error {
		p.HintsUsed++
		return nil
	})
	return err
}

func (s *missionExecutionService) RecordStageTime(ctx context.Context, tx *gorm.DB, userID, missionID uuid.UUID, subtaskID string, seconds int) error {
	_, def, err := s.loadMission(ctx, tx, missionID)
	if err != nil {
		return err
	}
	if _, ok := def.SubtaskByID(subtaskID); !ok {
		return fmt.Errorf("subtask %q: %w", subtaskID, errs.ErrInvalidSubtask)
	}
	if seconds <= 0 {
		return fmt.Errorf("seconds must be positive: %w", errs.ErrInvalidArgument)
	}
	_, err = s.mutateAttempt(ctx, tx, userID, missionID, def, func(p *types.MissionProgress) error {
		stage, err := p.DecodeTimePerStage()
		if err != nil {
			return err
		}
		stage[subtaskID] += seconds
		return p.EncodeTimePerStage(stage)
	})
	return err
}

func (s *missionExecutionService) RecordToolUsed(ctx context.Context, tx *gorm.DB, userID, missionID uuid.UUID, tool string) error {
	if tool == "" {
		return fmt.Errorf("tool name required: %w", errs.ErrInvalidArgument)
	}
	_, def, err := s.loadMission(ctx, tx, missionID)
	if err != nil {
		return err
	}
	_, err = s.mutateAttempt(ctx, tx, userID, missionID, def, func(p *types.MissionProgress) error {
		tools, err := p.DecodeToolsUsed()
		if err != nil {
			return err
		}
		for _, t := range tools {
			if t == tool {
				return nil
			}
		}
		return p.EncodeToolsUsed(append(tools, tool))
	})
	return err
}

func (s *missionExecutionService) RecordDropOffs(ctx context.Context, inactiveFor time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-inactiveFor)
	rows, err := s.progressRepo.GetInactiveInProgress(ctx, nil, cutoff, 200)
	if err != nil {
		return 0, err
	}

	recorded := 0
	for _, row := range rows {
		stage := row.CurrentSubtask
		row.DropOffStage = &stage
		if err := s.progressRepo.UpdateWithVersion(ctx, nil, row); err != nil {
			// A concurrent learner action beat the sweep; the attempt is no
			// longer stale, skip it.
			if err == errs.ErrConflict {
				continue
			}
			return recorded, err
		}
		recorded++
	}
	return recorded, nil
}

func (s *missionExecutionService) StartDropOffWorker(ctx context.Context, interval, inactiveFor time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.RecordDropOffs(ctx, inactiveFor)
				if err != nil {
					s.log.Warn("drop-off sweep failed", "error", err)
					continue
				}
				if n > 0 {
					s.log.Info("drop-off sweep recorded stages", "count", n)
				}
			}
		}
	}()
}
