package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/skillforge/skillforge-backend/internal/errs"
	"github.com/skillforge/skillforge-backend/internal/types"
)

type evaluatorFixture struct {
	evaluator TierEvaluator
	userID    uuid.UUID
	track     *types.Track
	module    *types.TrackModule

	moduleProg *fakeUserModuleProgressRepo
	trackProg  *fakeUserTrackProgressRepo
	events     *fakeUserEventRepo
}

func newEvaluatorFixture(t *testing.T, tier int) *evaluatorFixture {
	t.Helper()
	track := &types.Track{ID: uuid.New(), Tier: tier, IsActive: true}
	module := &types.TrackModule{ID: uuid.New(), TrackID: track.ID, IsRequired: true, IsActive: true}

	trackRepo := newFakeTrackRepo(track)
	moduleRepo := &fakeTrackModuleRepo{modules: []*types.TrackModule{module}}
	lessonRepo := &fakeLessonRepo{}
	missionRepo := newFakeMissionRepo()
	linkRepo := &fakeModuleMissionRepo{}
	moduleProg := &fakeUserModuleProgressRepo{}
	trackProg := &fakeUserTrackProgressRepo{}
	lessonProg := &fakeUserLessonProgressRepo{}
	missionProg := newFakeMissionProgressRepo()
	events := &fakeUserEventRepo{}
	activity := NewActivityService(nil, testLogger(t), events)

	evaluator := NewTierEvaluator(nil, testLogger(t),
		trackRepo, moduleRepo, lessonRepo, missionRepo, linkRepo,
		trackProg, moduleProg, lessonProg, missionProg, activity)

	return &evaluatorFixture{
		evaluator:  evaluator,
		userID:     uuid.New(),
		track:      track,
		module:     module,
		moduleProg: moduleProg,
		trackProg:  trackProg,
		events:     events,
	}
}

func (fx *evaluatorFixture) completeModule(ctx context.Context, t *testing.T) {
	t.Helper()
	row, err := fx.moduleProg.GetOrCreate(ctx, nil, fx.userID, fx.module.ID)
	if err != nil {
		t.Fatalf("module progress: %v", err)
	}
	row.Status = types.ProgressCompleted
}

func (fx *evaluatorFixture) progressRow(ctx context.Context) *types.UserTrackProgress {
	row, _ := fx.trackProg.GetByUserAndTrack(ctx, nil, fx.userID, fx.track.ID)
	return row
}

func TestEvaluateTierPersistsFlagAndUnlock(t *testing.T) {
	fx := newEvaluatorFixture(t, 2)
	ctx := context.Background()
	fx.completeModule(ctx, t)

	complete, missing, err := fx.evaluator.EvaluateTier(ctx, nil, fx.userID, fx.track.ID, 2, false)
	if err != nil {
		t.Fatalf("EvaluateTier: %v", err)
	}
	if !complete || len(missing) != 0 {
		t.Fatalf("expected complete, missing: %v", missing)
	}

	row := fx.progressRow(ctx)
	if !row.Tier2CompletionRequirementsMet {
		t.Fatal("expected the tier 2 flag persisted")
	}
	if !row.Tier3Unlocked {
		t.Fatal("completing tier 2 must unlock tier 3")
	}
	if fx.events.countByType(ActivityTierCompleted) != 1 || fx.events.countByType(ActivityTierUnlocked) != 1 {
		t.Fatal("expected one completion and one unlock event")
	}
}

func TestEvaluateTierMonotonic(t *testing.T) {
	fx := newEvaluatorFixture(t, 2)
	ctx := context.Background()
	fx.completeModule(ctx, t)

	if _, _, err := fx.evaluator.EvaluateTier(ctx, nil, fx.userID, fx.track.ID, 2, false); err != nil {
		t.Fatalf("EvaluateTier: %v", err)
	}

	// Regress the underlying ledger; the flag must not revert.
	row, _ := fx.moduleProg.GetOrCreate(ctx, nil, fx.userID, fx.module.ID)
	row.Status = types.ProgressInProgress

	complete, _, err := fx.evaluator.EvaluateTier(ctx, nil, fx.userID, fx.track.ID, 2, false)
	if err != nil {
		t.Fatalf("re-evaluation: %v", err)
	}
	if !complete {
		t.Fatal("a met tier must stay met")
	}
	if fx.events.countByType(ActivityTierCompleted) != 1 {
		t.Fatal("the short-circuit must not re-emit events")
	}
}

func TestRecordMentorApprovalCompletesTier(t *testing.T) {
	fx := newEvaluatorFixture(t, 2)
	fx.track.Tier2RequireMentorApproval = true
	ctx := context.Background()
	fx.completeModule(ctx, t)

	complete, missing, err := fx.evaluator.EvaluateTier(ctx, nil, fx.userID, fx.track.ID, 2, false)
	if err != nil {
		t.Fatalf("EvaluateTier: %v", err)
	}
	if complete {
		t.Fatal("expected incomplete without mentor approval")
	}
	if !containsString(missing, "Obtain mentor approval") {
		t.Fatalf("expected approval requirement, got %v", missing)
	}

	if err := fx.evaluator.RecordMentorApproval(ctx, nil, fx.userID, fx.track.ID, 2); err != nil {
		t.Fatalf("RecordMentorApproval: %v", err)
	}
	row := fx.progressRow(ctx)
	if !row.Tier2MentorApproval {
		t.Fatal("expected the approval flag persisted")
	}
	// Approval was the last missing requirement, so the re-evaluation
	// inside RecordMentorApproval completes the tier.
	if !row.Tier2CompletionRequirementsMet {
		t.Fatal("expected the tier completed after approval")
	}
}

func TestResetTierClearsUpward(t *testing.T) {
	fx := newEvaluatorFixture(t, 3)
	ctx := context.Background()

	row, err := fx.trackProg.GetOrCreate(ctx, nil, fx.userID, fx.track.ID)
	if err != nil {
		t.Fatalf("track progress: %v", err)
	}
	row.Tier2CompletionRequirementsMet = true
	row.Tier3CompletionRequirementsMet = true
	row.Tier3Unlocked = true
	row.Tier4CompletionRequirementsMet = true
	row.Tier4Unlocked = true
	row.Tier4MentorApproval = true
	row.Tier5Unlocked = true

	if err := fx.evaluator.ResetTier(ctx, nil, fx.userID, fx.track.ID, 3); err != nil {
		t.Fatalf("ResetTier: %v", err)
	}

	after := fx.progressRow(ctx)
	if !after.Tier2CompletionRequirementsMet || !after.Tier3Unlocked {
		t.Fatal("resetting tier 3 must leave tier 2 and its unlock intact")
	}
	if after.Tier3CompletionRequirementsMet || after.Tier4Unlocked ||
		after.Tier4CompletionRequirementsMet || after.Tier4MentorApproval || after.Tier5Unlocked {
		t.Fatal("expected tier 3 and everything above cleared")
	}
}

func TestEvaluateTierOutOfRange(t *testing.T) {
	fx := newEvaluatorFixture(t, 2)
	ctx := context.Background()

	if _, _, err := fx.evaluator.EvaluateTier(ctx, nil, fx.userID, fx.track.ID, 1, false); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for tier 1, got %v", err)
	}
	if _, _, err := fx.evaluator.EvaluateTier(ctx, nil, fx.userID, fx.track.ID, 6, false); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for tier 6, got %v", err)
	}
}
