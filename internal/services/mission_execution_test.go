package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/skillforge/skillforge-backend/internal/errs"
	"github.com/skillforge/skillforge-backend/internal/types"
)

const breachMissionSubtasks = `[
	{"id": "recon", "title": "Enumerate the target"},
	{"id": "exploit", "title": "Gain a foothold", "dependencies": ["recon"]},
	{"id": "report", "title": "Write the incident report", "dependencies": ["exploit"]}
]`

const breachMissionDecisions = `[
	{
		"id": "persistence",
		"subtask_id": "exploit",
		"prompt": "How do you maintain access?",
		"choices": [
			{"id": "quiet", "label": "Scheduled task", "consequence": {"alarm": false}},
			{"id": "loud", "label": "New admin account", "consequence": {"alarm": true}}
		]
	}
]`

type executionFixture struct {
	service     MissionExecutionService
	mission     *types.Mission
	userID      uuid.UUID
	progressRpo *fakeMissionProgressRepo
	trackRpo    *fakeUserTrackProgressRepo
	events      *fakeUserEventRepo
	dispatcher  *fakeDispatcher
}

func newExecutionFixture(t *testing.T) *executionFixture {
	t.Helper()
	trackID := uuid.New()
	mission := &types.Mission{
		ID:                  uuid.New(),
		Title:               "Breach and report",
		Tier:                types.MissionTierIntermediate,
		MissionType:         types.MissionTypeStandard,
		TrackID:             &trackID,
		Subtasks:            datatypes.JSON(breachMissionSubtasks),
		DecisionPoints:      datatypes.JSON(breachMissionDecisions),
		TimeConstraintHours: 24,
		ReflectionRequired:  true,
		IsActive:            true,
	}

	progressRepo := newFakeMissionProgressRepo()
	trackRepo := &fakeUserTrackProgressRepo{}
	events := &fakeUserEventRepo{}
	dispatcher := &fakeDispatcher{}

	service := NewMissionExecutionService(nil, testLogger(t),
		newFakeMissionRepo(mission), progressRepo,
		&fakeModuleMissionRepo{}, &fakeTrackModuleRepo{}, trackRepo,
		NewActivityService(nil, testLogger(t), events), dispatcher)

	return &executionFixture{
		service:     service,
		mission:     mission,
		userID:      uuid.New(),
		progressRpo: progressRepo,
		trackRpo:    trackRepo,
		events:      events,
		dispatcher:  dispatcher,
	}
}

func TestMissionRoundTrip(t *testing.T) {
	fx := newExecutionFixture(t)
	ctx := context.Background()

	attempt, err := fx.service.Start(ctx, nil, fx.userID, fx.mission.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if attempt.Status != types.MissionStatusInProgress || attempt.CurrentSubtask != 1 {
		t.Fatalf("unexpected initial state: %s / %d", attempt.Status, attempt.CurrentSubtask)
	}
	if attempt.DeadlineAt == nil {
		t.Fatal("expected a deadline from the time constraint")
	}
	state, _ := attempt.DecodeSubtasks()
	if len(state) != 3 || state["recon"].Completed {
		t.Fatalf("expected 3 pristine subtasks, got %v", state)
	}

	// Starting again returns the same attempt.
	again, err := fx.service.Start(ctx, nil, fx.userID, fx.mission.ID)
	if err != nil || again.ID != attempt.ID {
		t.Fatalf("Start not idempotent: %v", err)
	}

	_, ready, err := fx.service.CompleteSubtask(ctx, nil, fx.userID, fx.mission.ID, 1, "swept the subnet", "scan.txt")
	if err != nil || ready {
		t.Fatalf("CompleteSubtask 1: ready=%v err=%v", ready, err)
	}

	consequence, err := fx.service.RecordDecision(ctx, nil, fx.userID, fx.mission.ID, "persistence", "quiet")
	if err != nil {
		t.Fatalf("RecordDecision: %v", err)
	}
	if string(consequence) != `{"alarm": false}` {
		t.Fatalf("unexpected consequence payload: %s", consequence)
	}

	// Re-deciding overwrites the earlier choice.
	if _, err := fx.service.RecordDecision(ctx, nil, fx.userID, fx.mission.ID, "persistence", "loud"); err != nil {
		t.Fatalf("RecordDecision rerun: %v", err)
	}
	current, _ := fx.progressRpo.GetByUserAndMission(ctx, nil, fx.userID, fx.mission.ID)
	paths, _ := current.DecodeDecisionPaths()
	if paths["persistence"].ChoiceID != "loud" {
		t.Fatalf("expected last write to win, got %q", paths["persistence"].ChoiceID)
	}

	if _, _, err := fx.service.CompleteSubtask(ctx, nil, fx.userID, fx.mission.ID, 2, "", ""); err != nil {
		t.Fatalf("CompleteSubtask 2: %v", err)
	}
	_, ready, err = fx.service.CompleteSubtask(ctx, nil, fx.userID, fx.mission.ID, 3, "", "report.pdf")
	if err != nil || !ready {
		t.Fatalf("CompleteSubtask 3: ready=%v err=%v", ready, err)
	}

	submitted, err := fx.service.Submit(ctx, nil, fx.userID, fx.mission.ID, "learned about lateral movement")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if submitted.Status != types.MissionStatusSubmitted || submitted.SubmittedAt == nil {
		t.Fatalf("unexpected post-submit state: %s", submitted.Status)
	}
	if !submitted.ReflectionSubmitted {
		t.Fatal("expected reflection recorded")
	}
	if len(fx.dispatcher.enqueued) != 1 || fx.dispatcher.enqueued[0] != submitted.ID {
		t.Fatalf("expected one AI review enqueue for the attempt, got %v", fx.dispatcher.enqueued)
	}

	trackRow, _ := fx.trackRpo.GetByUserAndTrack(ctx, nil, fx.userID, *fx.mission.TrackID)
	if trackRow == nil || trackRow.ReflectionsSubmitted != 1 {
		t.Fatalf("expected reflections counter 1, got %+v", trackRow)
	}
	if fx.events.countByType(ActivityMissionStarted) != 1 || fx.events.countByType(ActivityMissionSubmitted) != 1 {
		t.Fatal("expected one started and one submitted event")
	}
}

func TestSubmitTwiceRejected(t *testing.T) {
	fx := newExecutionFixture(t)
	ctx := context.Background()

	if _, err := fx.service.Start(ctx, nil, fx.userID, fx.mission.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := fx.service.Submit(ctx, nil, fx.userID, fx.mission.ID, ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	before, _ := fx.progressRpo.GetByUserAndMission(ctx, nil, fx.userID, fx.mission.ID)
	_, err := fx.service.Submit(ctx, nil, fx.userID, fx.mission.ID, "second thoughts")
	if !errors.Is(err, errs.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	after, _ := fx.progressRpo.GetByUserAndMission(ctx, nil, fx.userID, fx.mission.ID)
	if after.Version != before.Version || after.ReflectionText != before.ReflectionText {
		t.Fatal("rejected submit must leave the attempt unchanged")
	}
	if len(fx.dispatcher.enqueued) != 1 {
		t.Fatal("rejected submit must not enqueue another review")
	}
}

func TestCompleteSubtaskInvalidIndex(t *testing.T) {
	fx := newExecutionFixture(t)
	ctx := context.Background()

	if _, err := fx.service.Start(ctx, nil, fx.userID, fx.mission.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	before, _ := fx.progressRpo.GetByUserAndMission(ctx, nil, fx.userID, fx.mission.ID)

	for _, idx := range []int{0, 4, -1} {
		if _, _, err := fx.service.CompleteSubtask(ctx, nil, fx.userID, fx.mission.ID, idx, "", ""); !errors.Is(err, errs.ErrInvalidSubtask) {
			t.Fatalf("index %d: expected ErrInvalidSubtask, got %v", idx, err)
		}
	}

	after, _ := fx.progressRpo.GetByUserAndMission(ctx, nil, fx.userID, fx.mission.ID)
	if after.Version != before.Version {
		t.Fatal("invalid index must leave the attempt unchanged")
	}
}

func TestRecordDecisionInvalidChoice(t *testing.T) {
	fx := newExecutionFixture(t)
	ctx := context.Background()

	if _, err := fx.service.Start(ctx, nil, fx.userID, fx.mission.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := fx.service.RecordDecision(ctx, nil, fx.userID, fx.mission.ID, "no-such-decision", "quiet"); !errors.Is(err, errs.ErrDecisionNotFound) {
		t.Fatalf("expected ErrDecisionNotFound, got %v", err)
	}
	if _, err := fx.service.RecordDecision(ctx, nil, fx.userID, fx.mission.ID, "persistence", "no-such-choice"); !errors.Is(err, errs.ErrInvalidChoice) {
		t.Fatalf("expected ErrInvalidChoice, got %v", err)
	}

	current, _ := fx.progressRpo.GetByUserAndMission(ctx, nil, fx.userID, fx.mission.ID)
	paths, _ := current.DecodeDecisionPaths()
	if len(paths) != 0 {
		t.Fatalf("rejected decisions must not be recorded, got %v", paths)
	}
}

func TestCheckSubtaskUnlockable(t *testing.T) {
	fx := newExecutionFixture(t)
	ctx := context.Background()

	if _, err := fx.service.Start(ctx, nil, fx.userID, fx.mission.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	result, err := fx.service.CheckSubtaskUnlockable(ctx, nil, fx.userID, fx.mission.ID, "exploit")
	if err != nil {
		t.Fatalf("CheckSubtaskUnlockable: %v", err)
	}
	if result.Unlockable || len(result.MissingDependencies) != 1 || result.MissingDependencies[0] != "recon" {
		t.Fatalf("expected blocked on recon, got %+v", result)
	}

	if _, _, err := fx.service.CompleteSubtask(ctx, nil, fx.userID, fx.mission.ID, 1, "", ""); err != nil {
		t.Fatalf("CompleteSubtask: %v", err)
	}
	result, err = fx.service.CheckSubtaskUnlockable(ctx, nil, fx.userID, fx.mission.ID, "exploit")
	if err != nil {
		t.Fatalf("CheckSubtaskUnlockable: %v", err)
	}
	if !result.Unlockable || len(result.MissingDependencies) != 0 {
		t.Fatalf("expected unlockable with no missing deps, got %+v", result)
	}
}

func TestLazyDeadlineExpiry(t *testing.T) {
	fx := newExecutionFixture(t)
	ctx := context.Background()

	attempt, err := fx.service.Start(ctx, nil, fx.userID, fx.mission.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Push the deadline into the past directly on the stored row.
	stored := fx.progressRpo.rows[attempt.ID]
	past := time.Now().UTC().Add(-time.Hour)
	stored.DeadlineAt = &past

	view, err := fx.service.Get(ctx, nil, fx.userID, fx.mission.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !view.Expired {
		t.Fatal("expected attempt reported expired")
	}
	if view.Progress.Status != types.MissionStatusInProgress {
		t.Fatalf("expiry must not auto-fail the attempt, got %s", view.Progress.Status)
	}
}

func TestOptimisticRetry(t *testing.T) {
	fx := newExecutionFixture(t)
	ctx := context.Background()

	if _, err := fx.service.Start(ctx, nil, fx.userID, fx.mission.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// One stale write is retried away.
	fx.progressRpo.conflictsLeft = 1
	if _, _, err := fx.service.CompleteSubtask(ctx, nil, fx.userID, fx.mission.ID, 1, "", ""); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}

	// Exhausting the retries surfaces the conflict.
	fx.progressRpo.conflictsLeft = versionRetries
	if _, _, err := fx.service.CompleteSubtask(ctx, nil, fx.userID, fx.mission.ID, 2, "", ""); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRecordDropOffs(t *testing.T) {
	fx := newExecutionFixture(t)
	ctx := context.Background()

	attempt, err := fx.service.Start(ctx, nil, fx.userID, fx.mission.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, _, err := fx.service.CompleteSubtask(ctx, nil, fx.userID, fx.mission.ID, 1, "", ""); err != nil {
		t.Fatalf("CompleteSubtask: %v", err)
	}

	stored := fx.progressRpo.rows[attempt.ID]
	stored.LastActivityAt = time.Now().UTC().Add(-72 * time.Hour)

	n, err := fx.service.RecordDropOffs(ctx, 48*time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("RecordDropOffs: n=%d err=%v", n, err)
	}

	after := fx.progressRpo.rows[attempt.ID]
	if after.DropOffStage == nil || *after.DropOffStage != 2 {
		t.Fatalf("expected drop-off stage 2, got %v", after.DropOffStage)
	}
	if after.Status != types.MissionStatusInProgress {
		t.Fatal("drop-off stamp must not change status")
	}

	// A second sweep finds nothing: the stage is already stamped.
	n, err = fx.service.RecordDropOffs(ctx, 48*time.Hour)
	if err != nil || n != 0 {
		t.Fatalf("second sweep: n=%d err=%v", n, err)
	}
}

func TestEngagementCounters(t *testing.T) {
	fx := newExecutionFixture(t)
	ctx := context.Background()

	if _, err := fx.service.Start(ctx, nil, fx.userID, fx.mission.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := fx.service.RecordHint(ctx, nil, fx.userID, fx.mission.ID); err != nil {
		t.Fatalf("RecordHint: %v", err)
	}
	if err := fx.service.RecordHint(ctx, nil, fx.userID, fx.mission.ID); err != nil {
		t.Fatalf("RecordHint: %v", err)
	}
	if err := fx.service.RecordStageTime(ctx, nil, fx.userID, fx.mission.ID, "recon", 120); err != nil {
		t.Fatalf("RecordStageTime: %v", err)
	}
	if err := fx.service.RecordStageTime(ctx, nil, fx.userID, fx.mission.ID, "recon", 60); err != nil {
		t.Fatalf("RecordStageTime: %v", err)
	}
	if err := fx.service.RecordToolUsed(ctx, nil, fx.userID, fx.mission.ID, "nmap"); err != nil {
		t.Fatalf("RecordToolUsed: %v", err)
	}
	if err := fx.service.RecordToolUsed(ctx, nil, fx.userID, fx.mission.ID, "nmap"); err != nil {
		t.Fatalf("RecordToolUsed repeat: %v", err)
	}

	current, _ := fx.progressRpo.GetByUserAndMission(ctx, nil, fx.userID, fx.mission.ID)
	if current.HintsUsed != 2 {
		t.Fatalf("expected 2 hints, got %d", current.HintsUsed)
	}
	stage, _ := current.DecodeTimePerStage()
	if stage["recon"] != 180 {
		t.Fatalf("expected 180s on recon, got %d", stage["recon"])
	}
	tools, _ := current.DecodeToolsUsed()
	if len(tools) != 1 || tools[0] != "nmap" {
		t.Fatalf("expected deduplicated tool list, got %v", tools)
	}

	if err := fx.service.RecordStageTime(ctx, nil, fx.userID, fx.mission.ID, "ghost", 10); !errors.Is(err, errs.ErrInvalidSubtask) {
		t.Fatalf("expected ErrInvalidSubtask for unknown stage, got %v", err)
	}
}
