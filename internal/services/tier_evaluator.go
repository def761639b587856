package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/skillforge/skillforge-backend/internal/errs"
	"github.com/skillforge/skillforge-backend/internal/logger"
	"github.com/skillforge/skillforge-backend/internal/repos"
	"github.com/skillforge/skillforge-backend/internal/types"
)

// TierEvaluator derives tier-completion state from the ledger and catalog.
// Evaluation itself is pure over a snapshot; the only side effect is
// persisting a newly-true requirements-met flag and the next tier's unlock.
// The flags are monotonic: a later partial re-evaluation never reverts a
// true flag, only ResetTier does.
type TierEvaluator interface {
	EvaluateTier(ctx context.Context, tx *gorm.DB, userID, trackID uuid.UUID, tier int, requireMentorOverride bool) (bool, []string, error)
	RecordMentorApproval(ctx context.Context, tx *gorm.DB, userID, trackID uuid.UUID, tier int) error
	// ResetTier is the explicit administrative clear for a tier's flags and
	// every tier above it, keeping the unlock implication intact.
	ResetTier(ctx context.Context, tx *gorm.DB, userID, trackID uuid.UUID, tier int) error
}

type tierEvaluator struct {
	db  *gorm.DB
	log *logger.Logger

	trackRepo          repos.TrackRepo
	moduleRepo         repos.TrackModuleRepo
	lessonRepo         repos.LessonRepo
	missionRepo        repos.MissionRepo
	moduleMissionRepo  repos.ModuleMissionRepo
	trackProgressRepo  repos.UserTrackProgressRepo
	moduleProgressRepo repos.UserModuleProgressRepo
	lessonProgressRepo repos.UserLessonProgressRepo
	missionProgRepo    repos.MissionProgressRepo

	activity ActivityService
}

func NewTierEvaluator(
	db *gorm.DB,
	baseLog *logger.Logger,
	trackRepo repos.TrackRepo,
	moduleRepo repos.TrackModuleRepo,
	lessonRepo repos.LessonRepo,
	missionRepo repos.MissionRepo,
	moduleMissionRepo repos.ModuleMissionRepo,
	trackProgressRepo repos.UserTrackProgressRepo,
	moduleProgressRepo repos.UserModuleProgressRepo,
	lessonProgressRepo repos.UserLessonProgressRepo,
	missionProgRepo repos.MissionProgressRepo,
	activity ActivityService,
) TierEvaluator {
	return &tierEvaluator{
		db:                 db,
		log:                baseLog.With("service", "TierEvaluator"),
		trackRepo:          trackRepo,
		moduleRepo:         moduleRepo,
		lessonRepo:         lessonRepo,
		missionRepo:        missionRepo,
		moduleMissionRepo:  moduleMissionRepo,
		trackProgressRepo:  trackProgressRepo,
		moduleProgressRepo: moduleProgressRepo,
		lessonProgressRepo: lessonProgressRepo,
		missionProgRepo:    missionProgRepo,
		activity:           activity,
	}
}

func (s *tierEvaluator) loadSnapshot(ctx context.Context, tx *gorm.DB, userID, trackID uuid.UUID, tier int) (*TierSnapshot, error) {
	track, err := s.trackRepo.GetActiveByID(ctx, tx, trackID)
	if err != nil {
		return nil, err
	}
	if track == nil {
		return nil, fmt.Errorf("track %s: %w", trackID, errs.ErrNotFound)
	}

	progress, err := s.trackProgressRepo.GetOrCreate(ctx, tx, userID, trackID)
	if err != nil {
		return nil, err
	}

	modules, err := s.moduleRepo.GetActiveByTrackID(ctx, tx, trackID)
	if err != nil {
		return nil, err
	}
	moduleIDs := make([]uuid.UUID, 0, len(modules))
	for _, m := range modules {
		moduleIDs = append(moduleIDs, m.ID)
	}

	snap := &TierSnapshot{
		Track:           track,
		Progress:        progress,
		Modules:         modules,
		Missions:        map[uuid.UUID]*types.Mission{},
		Fallback:        map[string][]*types.Mission{},
		ModuleProgress:  map[uuid.UUID]*types.UserModuleProgress{},
		LessonProgress:  map[uuid.UUID]*types.UserLessonProgress{},
		MissionProgress: map[uuid.UUID]*types.MissionProgress{},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lessons, err := s.lessonRepo.GetActiveByModuleIDs(gctx, tx, moduleIDs)
		if err != nil {
			return err
		}
		snap.Lessons = lessons
		return nil
	})
	g.Go(func() error {
		links, err := s.moduleMissionRepo.GetByModuleIDs(gctx, tx, moduleIDs)
		if err != nil {
			return err
		}
		snap.Links = links
		return nil
	})
	g.Go(func() error {
		rows, err := s.moduleProgressRepo.GetByUserAndModuleIDs(gctx, tx, userID, moduleIDs)
		if err != nil {
			return err
		}
		for _, row := range rows {
			snap.ModuleProgress[row.ModuleID] = row
		}
		return nil
	})
	if tag := tierTag(tier); tag != "" && tier >= 4 {
		g.Go(func() error {
			fallback, err := s.missionRepo.GetActiveByTrackAndTier(gctx, tx, trackID, tag)
			if err != nil {
				return err
			}
			snap.Fallback[tag] = fallback
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lessonIDs := make([]uuid.UUID, 0, len(snap.Lessons))
	for _, l := range snap.Lessons {
		lessonIDs = append(lessonIDs, l.ID)
	}
	missionIDSet := map[uuid.UUID]bool{}
	for _, link := range snap.Links {
		missionIDSet[link.MissionID] = true
	}
	for _, missions := range snap.Fallback {
		for _, m := range missions {
			missionIDSet[m.ID] = true
			snap.Missions[m.ID] = m
		}
	}
	linkedIDs := make([]uuid.UUID, 0, len(missionIDSet))
	for id := range missionIDSet {
		linkedIDs = append(linkedIDs, id)
	}

	g2, g2ctx := errgroup.WithContext(ctx)
	g2.Go(func() error {
		rows, err := s.lessonProgressRepo.GetByUserAndLessonIDs(g2ctx, tx, userID, lessonIDs)
		if err != nil {
			return err
		}
		for _, row := range rows {
			snap.LessonProgress[row.LessonID] = row
		}
		return nil
	})
	g2.Go(func() error {
		missions, err := s.missionRepo.GetByIDs(g2ctx, tx, linkedIDs)
		if err != nil {
			return err
		}
		for _, m := range missions {
			snap.Missions[m.ID] = m
		}
		return nil
	})
	g2.Go(func() error {
		rows, err := s.missionProgRepo.GetByUserAndMissionIDs(g2ctx, tx, userID, linkedIDs)
		if err != nil {
			return err
		}
		for _, row := range rows {
			snap.MissionProgress[row.MissionID] = row
		}
		return nil
	})
	if err := g2.Wait(); err != nil {
		return nil, err
	}

	return snap, nil
}

func (s *tierEvaluator) EvaluateTier(ctx context.Context, tx *gorm.DB, userID, trackID uuid.UUID, tier int, requireMentorOverride bool) (bool, []string, error) {
	if tier < 2 || tier > 5 {
		return false, nil, fmt.Errorf("tier %d out of range: %w", tier, errs.ErrInvalidArgument)
	}

	snap, err := s.loadSnapshot(ctx, tx, userID, trackID, tier)
	if err != nil {
		return false, nil, err
	}

	// Monotonic: a tier that has been met stays met.
	if snap.Progress.TierRequirementsMet(tier) {
		return true, []string{}, nil
	}

	s.flagUnlinkedTaggedMissions(snap, tier)

	complete, missing := evaluateTier(snap, tier, requireMentorOverride)
	if !complete {
		return false, missing, nil
	}

	fields := map[string]interface{}{
		fmt.Sprintf("tier%d_completion_requirements_met", tier): true,
	}
	if tier < 5 {
		fields[fmt.Sprintf("tier%d_unlocked", tier+1)] = true
	}
	if err := s.trackProgressRepo.UpdateFields(ctx, tx, snap.Progress.ID, fields); err != nil {
		return false, nil, err
	}

	if evErr := s.activity.Emit(ctx, tx, ActivityEvent{
		UserID:       userID,
		ActivityType: ActivityTierCompleted,
		TrackID:      &trackID,
		Metadata:     map[string]interface{}{"tier": tier},
	}); evErr != nil {
		s.log.Warn("EvaluateTier: emit tier completed failed", "error", evErr, "track_id", trackID, "tier", tier)
	}
	if tier < 5 {
		if evErr := s.activity.Emit(ctx, tx, ActivityEvent{
			UserID:       userID,
			ActivityType: ActivityTierUnlocked,
			TrackID:      &trackID,
			Metadata:     map[string]interface{}{"tier": tier + 1},
		}); evErr != nil {
			s.log.Warn("EvaluateTier: emit tier unlocked failed", "error", evErr, "track_id", trackID, "tier", tier+1)
		}
	}

	return true, []string{}, nil
}

// flagUnlinkedTaggedMissions surfaces catalog-tagged missions that have no
// explicit module link while links exist. Explicit links stay authoritative;
// the disagreement is logged, never merged into the requirement set.
func (s *tierEvaluator) flagUnlinkedTaggedMissions(snap *TierSnapshot, tier int) {
	if len(snap.Links) == 0 {
		return
	}
	tag := tierTag(tier)
	linked := map[uuid.UUID]bool{}
	for _, link := range snap.Links {
		linked[link.MissionID] = true
	}
	for _, m := range snap.Fallback[tag] {
		if !linked[m.ID] {
			s.log.Warn("catalog-tagged mission has no module link; excluded from tier requirements",
				"mission_id", m.ID, "track_id", snap.Track.ID, "tier", tier)
		}
	}
}

func (s *tierEvaluator) RecordMentorApproval(ctx context.Context, tx *gorm.DB, userID, trackID uuid.UUID, tier int) error {
	if tier < 2 || tier > 5 {
		return fmt.Errorf("tier %d out of range: %w", tier, errs.ErrInvalidArgument)
	}
	progress, err := s.trackProgressRepo.GetOrCreate(ctx, tx, userID, trackID)
	if err != nil {
		return err
	}
	fields := map[string]interface{}{
		fmt.Sprintf("tier%d_mentor_approval", tier): true,
	}
	if err := s.trackProgressRepo.UpdateFields(ctx, tx, progress.ID, fields); err != nil {
		return err
	}
	// Approval may have been the last missing requirement.
	if _, _, err := s.EvaluateTier(ctx, tx, userID, trackID, tier, false); err != nil {
		s.log.Warn("RecordMentorApproval: re-evaluation failed", "error", err, "track_id", trackID, "tier", tier)
	}
	return nil
}

func (s *tierEvaluator) ResetTier(ctx context.Context, tx *gorm.DB, userID, trackID uuid.UUID, tier int) error {
	if tier < 2 || tier > 5 {
		return fmt.Errorf("tier %d out of range: %w", tier, errs.ErrInvalidArgument)
	}
	progress, err := s.trackProgressRepo.GetByUserAndTrack(ctx, tx, userID, trackID)
	if err != nil {
		return err
	}
	if progress == nil {
		return fmt.Errorf("track progress for %s: %w", trackID, errs.ErrNotFound)
	}

	// Clearing tier N also clears everything above it so the unlock
	// implication cannot be violated.
	fields := map[string]interface{}{}
	for t := tier; t <= 5; t++ {
		fields[fmt.Sprintf("tier%d_completion_requirements_met", t)] = false
		fields[fmt.Sprintf("tier%d_mentor_approval", t)] = false
		if t < 5 {
			fields[fmt.Sprintf("tier%d_unlocked", t+1)] = false
		}
	}
	return s.trackProgressRepo.UpdateFields(ctx, tx, progress.ID, fields)
}
