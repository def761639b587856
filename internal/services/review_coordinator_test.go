package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/skillforge/skillforge-backend/internal/errs"
	"github.com/skillforge/skillforge-backend/internal/types"
)

type coordinatorFixture struct {
	coordinator ReviewCoordinator
	mission     *types.Mission
	attempt     *types.MissionProgress
	userID      uuid.UUID

	reviewer     *fakeAIReviewer
	progressRepo *fakeMissionProgressRepo
	trackRepo    *fakeUserTrackProgressRepo
	portfolio    *fakePortfolioArtifactRepo
	signals      *fakeSkillSignalRepo
	dashboards   *fakeDashboards
	events       *fakeUserEventRepo
	moduleRepo   *fakeTrackModuleRepo
	linkRepo     *fakeModuleMissionRepo
	modProgRepo  *fakeUserModuleProgressRepo
}

func newCoordinatorFixture(t *testing.T, missionType string) *coordinatorFixture {
	t.Helper()
	trackID := uuid.New()
	mission := &types.Mission{
		ID:          uuid.New(),
		Title:       "Harden the perimeter",
		Tier:        types.MissionTierAdvanced,
		MissionType: missionType,
		TrackID:     &trackID,
		SkillTags:   datatypes.JSON(`["firewalls", "ids"]`),
		IsActive:    true,
	}

	userID := uuid.New()
	attempt := &types.MissionProgress{
		ID:          uuid.New(),
		UserID:      userID,
		MissionID:   mission.ID,
		Status:      types.MissionStatusSubmitted,
		FinalStatus: types.FinalStatusPending,
	}

	progressRepo := newFakeMissionProgressRepo()
	cp := *attempt
	progressRepo.rows[attempt.ID] = &cp

	reviewer := &fakeAIReviewer{out: &AIReviewOutput{Score: 88, Strengths: []string{"clear writeup"}}}
	trackRepoProgress := &fakeUserTrackProgressRepo{}
	portfolio := &fakePortfolioArtifactRepo{}
	signals := &fakeSkillSignalRepo{}
	dashboards := &fakeDashboards{}
	events := &fakeUserEventRepo{}
	moduleRepo := &fakeTrackModuleRepo{}
	linkRepo := &fakeModuleMissionRepo{}
	modProgRepo := &fakeUserModuleProgressRepo{}
	lessonRepo := &fakeLessonRepo{}
	lessonProgRepo := &fakeUserLessonProgressRepo{}
	missionRepo := newFakeMissionRepo(mission)
	trackRepo := newFakeTrackRepo(&types.Track{ID: trackID, Tier: 4, IsActive: true})
	activity := NewActivityService(nil, testLogger(t), events)

	evaluator := NewTierEvaluator(nil, testLogger(t),
		trackRepo, moduleRepo, lessonRepo, missionRepo, linkRepo,
		trackRepoProgress, modProgRepo, lessonProgRepo, progressRepo, activity)
	rollup := NewRollupService(nil, testLogger(t),
		trackRepo, moduleRepo, lessonRepo, linkRepo,
		trackRepoProgress, modProgRepo, lessonProgRepo, progressRepo, evaluator)

	coordinator := NewReviewCoordinator(nil, testLogger(t),
		missionRepo, progressRepo, linkRepo, moduleRepo, trackRepoProgress,
		portfolio, signals, reviewer, activity, dashboards, rollup)

	return &coordinatorFixture{
		coordinator:  coordinator,
		mission:      mission,
		attempt:      attempt,
		userID:       userID,
		reviewer:     reviewer,
		progressRepo: progressRepo,
		trackRepo:    trackRepoProgress,
		portfolio:    portfolio,
		signals:      signals,
		dashboards:   dashboards,
		events:       events,
		moduleRepo:   moduleRepo,
		linkRepo:     linkRepo,
		modProgRepo:  modProgRepo,
	}
}

func TestRunAIReviewAppliesProviderOutput(t *testing.T) {
	fx := newCoordinatorFixture(t, types.MissionTypeStandard)
	ctx := context.Background()

	impl := fx.coordinator.(*reviewCoordinator)
	if err := impl.runAIReview(ctx, fx.attempt.ID); err != nil {
		t.Fatalf("runAIReview: %v", err)
	}

	after, _ := fx.progressRepo.GetByID(ctx, nil, fx.attempt.ID)
	if after.Status != types.MissionStatusAIReviewed {
		t.Fatalf("expected ai_reviewed, got %s", after.Status)
	}
	if after.AIScore == nil || *after.AIScore != 88 {
		t.Fatalf("expected AI score 88, got %v", after.AIScore)
	}

	// A second run is a no-op past submitted.
	if err := impl.runAIReview(ctx, fx.attempt.ID); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if fx.reviewer.calls != 1 {
		t.Fatalf("expected a single provider call, got %d", fx.reviewer.calls)
	}
}

func TestRunAIReviewFallsBackOnProviderError(t *testing.T) {
	fx := newCoordinatorFixture(t, types.MissionTypeStandard)
	fx.reviewer.err = fmt.Errorf("provider down")
	ctx := context.Background()

	impl := fx.coordinator.(*reviewCoordinator)
	if err := impl.runAIReview(ctx, fx.attempt.ID); err != nil {
		t.Fatalf("runAIReview: %v", err)
	}

	after, _ := fx.progressRepo.GetByID(ctx, nil, fx.attempt.ID)
	if after.Status != types.MissionStatusAIReviewed {
		t.Fatalf("expected ai_reviewed despite provider failure, got %s", after.Status)
	}
	if after.AIScore == nil || *after.AIScore != DefaultAIScore {
		t.Fatalf("expected fallback score %d, got %v", DefaultAIScore, after.AIScore)
	}
}

func TestApplyAIReviewInvalidFromInProgress(t *testing.T) {
	fx := newCoordinatorFixture(t, types.MissionTypeStandard)
	ctx := context.Background()

	fx.progressRepo.rows[fx.attempt.ID].Status = types.MissionStatusInProgress
	_, err := fx.coordinator.ApplyAIReview(ctx, nil, fx.attempt.ID, DefaultAIReview())
	if !errors.Is(err, errs.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestMentorScoreFromSubtaskScores(t *testing.T) {
	fx := newCoordinatorFixture(t, types.MissionTypeStandard)
	ctx := context.Background()

	if _, err := fx.coordinator.ApplyAIReview(ctx, nil, fx.attempt.ID, DefaultAIReview()); err != nil {
		t.Fatalf("ApplyAIReview: %v", err)
	}

	progress, err := fx.coordinator.ApplyMentorReview(ctx, nil, fx.attempt.ID, MentorReviewInput{
		SubtaskScores: map[string]int{"recon": 90, "exploit": 70},
		Decision:      MentorDecisionPass,
		Feedback:      "solid work",
	})
	if err != nil {
		t.Fatalf("ApplyMentorReview: %v", err)
	}
	if progress.MentorScore == nil || *progress.MentorScore != 80 {
		t.Fatalf("expected mean mentor score 80, got %v", progress.MentorScore)
	}
	if progress.Status != types.MissionStatusApproved || progress.FinalStatus != types.FinalStatusPass {
		t.Fatalf("expected approved/pass, got %s/%s", progress.Status, progress.FinalStatus)
	}
	if progress.MentorReviewedAt == nil {
		t.Fatal("expected mentor review timestamp")
	}
}

func TestMentorScoreFallsBackToAIScore(t *testing.T) {
	fx := newCoordinatorFixture(t, types.MissionTypeStandard)
	ctx := context.Background()

	if _, err := fx.coordinator.ApplyAIReview(ctx, nil, fx.attempt.ID, &AIReviewOutput{Score: 91}); err != nil {
		t.Fatalf("ApplyAIReview: %v", err)
	}
	progress, err := fx.coordinator.ApplyMentorReview(ctx, nil, fx.attempt.ID, MentorReviewInput{
		Decision: MentorDecisionPass,
	})
	if err != nil {
		t.Fatalf("ApplyMentorReview: %v", err)
	}
	if progress.MentorScore == nil || *progress.MentorScore != 91 {
		t.Fatalf("expected AI score fallback 91, got %v", progress.MentorScore)
	}
}

func TestApprovalSideEffectsExactlyOnce(t *testing.T) {
	fx := newCoordinatorFixture(t, types.MissionTypeMini)
	ctx := context.Background()

	if _, err := fx.coordinator.ApplyAIReview(ctx, nil, fx.attempt.ID, DefaultAIReview()); err != nil {
		t.Fatalf("ApplyAIReview: %v", err)
	}
	if _, err := fx.coordinator.ApplyMentorReview(ctx, nil, fx.attempt.ID, MentorReviewInput{
		OverallScoreOverride: intPtr(95),
		Decision:             MentorDecisionPass,
	}); err != nil {
		t.Fatalf("ApplyMentorReview: %v", err)
	}

	if len(fx.portfolio.artifacts) != 1 {
		t.Fatalf("expected one portfolio artifact, got %d", len(fx.portfolio.artifacts))
	}
	if len(fx.signals.signals) != 2 {
		t.Fatalf("expected a skill signal per tag, got %d", len(fx.signals.signals))
	}
	for _, sig := range fx.signals.signals {
		if sig.Score != 95 {
			t.Fatalf("expected signal score 95, got %d", sig.Score)
		}
	}
	if fx.dashboards.calls != 1 {
		t.Fatalf("expected one dashboard invalidation, got %d", fx.dashboards.calls)
	}
	if fx.events.countByType(ActivityMissionApproved) != 1 {
		t.Fatal("expected one approval event")
	}
	trackRow, _ := fx.trackRepo.GetByUserAndTrack(ctx, nil, fx.userID, *fx.mission.TrackID)
	if trackRow == nil || trackRow.MiniMissionsCompleted != 1 {
		t.Fatalf("expected mini-missions counter 1, got %+v", trackRow)
	}

	// A duplicate verdict is rejected and nothing runs twice.
	_, err := fx.coordinator.ApplyMentorReview(ctx, nil, fx.attempt.ID, MentorReviewInput{
		Decision: MentorDecisionPass,
	})
	if !errors.Is(err, errs.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on re-review, got %v", err)
	}
	if len(fx.portfolio.artifacts) != 1 || fx.dashboards.calls != 1 {
		t.Fatal("side effects must not repeat")
	}
	trackRow, _ = fx.trackRepo.GetByUserAndTrack(ctx, nil, fx.userID, *fx.mission.TrackID)
	if trackRow.MiniMissionsCompleted != 1 {
		t.Fatalf("mini-missions counter must stay 1, got %d", trackRow.MiniMissionsCompleted)
	}
}

func TestMentorFailVerdict(t *testing.T) {
	fx := newCoordinatorFixture(t, types.MissionTypeStandard)
	ctx := context.Background()

	if _, err := fx.coordinator.ApplyAIReview(ctx, nil, fx.attempt.ID, DefaultAIReview()); err != nil {
		t.Fatalf("ApplyAIReview: %v", err)
	}
	progress, err := fx.coordinator.ApplyMentorReview(ctx, nil, fx.attempt.ID, MentorReviewInput{
		Decision: MentorDecisionFail,
		Feedback: "missing evidence",
	})
	if err != nil {
		t.Fatalf("ApplyMentorReview: %v", err)
	}
	if progress.Status != types.MissionStatusFailed || progress.FinalStatus != types.FinalStatusFail {
		t.Fatalf("expected failed/fail, got %s/%s", progress.Status, progress.FinalStatus)
	}
	if len(fx.portfolio.artifacts) != 0 || len(fx.signals.signals) != 0 {
		t.Fatal("fail verdict must not run approval side effects")
	}
	if fx.events.countByType(ActivityMissionFailed) != 1 {
		t.Fatal("expected one failure event")
	}
}

func TestRevisionRoundTrip(t *testing.T) {
	fx := newCoordinatorFixture(t, types.MissionTypeStandard)
	ctx := context.Background()

	if _, err := fx.coordinator.ApplyAIReview(ctx, nil, fx.attempt.ID, DefaultAIReview()); err != nil {
		t.Fatalf("ApplyAIReview: %v", err)
	}
	progress, err := fx.coordinator.ApplyMentorReview(ctx, nil, fx.attempt.ID, MentorReviewInput{
		Decision: MentorDecisionRevision,
		Feedback: "tighten the report",
	})
	if err != nil {
		t.Fatalf("ApplyMentorReview: %v", err)
	}
	if progress.Status != types.MissionStatusRevisionRequested || progress.FinalStatus != types.FinalStatusPending {
		t.Fatalf("expected revision_requested/pending, got %s/%s", progress.Status, progress.FinalStatus)
	}

	reopened, err := fx.coordinator.ReopenForRevision(ctx, nil, fx.userID, fx.mission.ID)
	if err != nil {
		t.Fatalf("ReopenForRevision: %v", err)
	}
	if reopened.Status != types.MissionStatusInProgress || reopened.SubmittedAt != nil {
		t.Fatalf("expected attempt back in progress, got %s", reopened.Status)
	}
}

func TestStartMentorReviewClaims(t *testing.T) {
	fx := newCoordinatorFixture(t, types.MissionTypeStandard)
	ctx := context.Background()

	if _, err := fx.coordinator.StartMentorReview(ctx, nil, fx.attempt.ID); !errors.Is(err, errs.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition from submitted, got %v", err)
	}

	if _, err := fx.coordinator.ApplyAIReview(ctx, nil, fx.attempt.ID, DefaultAIReview()); err != nil {
		t.Fatalf("ApplyAIReview: %v", err)
	}
	progress, err := fx.coordinator.StartMentorReview(ctx, nil, fx.attempt.ID)
	if err != nil {
		t.Fatalf("StartMentorReview: %v", err)
	}
	if progress.Status != types.MissionStatusMentorReview {
		t.Fatalf("expected mentor_review, got %s", progress.Status)
	}

	// Claiming twice is a no-op.
	if _, err := fx.coordinator.StartMentorReview(ctx, nil, fx.attempt.ID); err != nil {
		t.Fatalf("second claim: %v", err)
	}
}
