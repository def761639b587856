package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skillforge/skillforge-backend/internal/errs"
	"github.com/skillforge/skillforge-backend/internal/logger"
	"github.com/skillforge/skillforge-backend/internal/types"
)

// In-memory repo fakes. The services never touch gorm directly, they only
// talk to the repo interfaces and pass tx through, so a nil *gorm.DB is fine
// here.

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

type fakeTrackRepo struct {
	tracks map[uuid.UUID]*types.Track
}

func newFakeTrackRepo(tracks ...*types.Track) *fakeTrackRepo {
	f := &fakeTrackRepo{tracks: map[uuid.UUID]*types.Track{}}
	for _, tr := range tracks {
		f.tracks[tr.ID] = tr
	}
	return f
}

func (f *fakeTrackRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Track) ([]*types.Track, error) {
	for _, row := range rows {
		f.tracks[row.ID] = row
	}
	return rows, nil
}

func (f *fakeTrackRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Track, error) {
	var out []*types.Track
	for _, id := range ids {
		if tr, ok := f.tracks[id]; ok {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (f *fakeTrackRepo) GetActiveByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Track, error) {
	tr, ok := f.tracks[id]
	if !ok || !tr.IsActive {
		return nil, nil
	}
	return tr, nil
}

type fakeTrackModuleRepo struct {
	modules []*types.TrackModule
}

func (f *fakeTrackModuleRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.TrackModule) ([]*types.TrackModule, error) {
	f.modules = append(f.modules, rows...)
	return rows, nil
}

func (f *fakeTrackModuleRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.TrackModule, error) {
	var out []*types.TrackModule
	for _, m := range f.modules {
		for _, id := range ids {
			if m.ID == id {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func (f *fakeTrackModuleRepo) GetActiveByTrackID(ctx context.Context, tx *gorm.DB, trackID uuid.UUID) ([]*types.TrackModule, error) {
	var out []*types.TrackModule
	for _, m := range f.modules {
		if m.TrackID == trackID && m.IsActive {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeLessonRepo struct {
	lessons []*types.Lesson
}

func (f *fakeLessonRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Lesson) ([]*types.Lesson, error) {
	f.lessons = append(f.lessons, rows...)
	return rows, nil
}

func (f *fakeLessonRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Lesson, error) {
	var out []*types.Lesson
	for _, l := range f.lessons {
		for _, id := range ids {
			if l.ID == id {
				out = append(out, l)
			}
		}
	}
	return out, nil
}

func (f *fakeLessonRepo) GetActiveByModuleIDs(ctx context.Context, tx *gorm.DB, moduleIDs []uuid.UUID) ([]*types.Lesson, error) {
	var out []*types.Lesson
	for _, l := range f.lessons {
		if !l.IsActive {
			continue
		}
		for _, id := range moduleIDs {
			if l.ModuleID == id {
				out = append(out, l)
			}
		}
	}
	return out, nil
}

type fakeMissionRepo struct {
	missions map[uuid.UUID]*types.Mission
	// fallback preserves insertion order per tier tag, standing in for the
	// created_at,id ordering of the real query.
	fallback map[string][]*types.Mission
}

func newFakeMissionRepo(missions ...*types.Mission) *fakeMissionRepo {
	f := &fakeMissionRepo{
		missions: map[uuid.UUID]*types.Mission{},
		fallback: map[string][]*types.Mission{},
	}
	for _, m := range missions {
		f.missions[m.ID] = m
	}
	return f
}

func (f *fakeMissionRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Mission) ([]*types.Mission, error) {
	for _, row := range rows {
		f.missions[row.ID] = row
	}
	return rows, nil
}

func (f *fakeMissionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Mission, error) {
	var out []*types.Mission
	for _, id := range ids {
		if m, ok := f.missions[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMissionRepo) GetActiveByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Mission, error) {
	m, ok := f.missions[id]
	if !ok || !m.IsActive {
		return nil, nil
	}
	return m, nil
}

func (f *fakeMissionRepo) GetActiveByTrackAndTier(ctx context.Context, tx *gorm.DB, trackID uuid.UUID, tier string) ([]*types.Mission, error) {
	return f.fallback[tier], nil
}

type fakeModuleMissionRepo struct {
	links []*types.ModuleMission
}

func (f *fakeModuleMissionRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.ModuleMission) ([]*types.ModuleMission, error) {
	f.links = append(f.links, rows...)
	return rows, nil
}

func (f *fakeModuleMissionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ModuleMission, error) {
	for _, l := range f.links {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, nil
}

func (f *fakeModuleMissionRepo) GetByModuleIDs(ctx context.Context, tx *gorm.DB, moduleIDs []uuid.UUID) ([]*types.ModuleMission, error) {
	var out []*types.ModuleMission
	for _, l := range f.links {
		for _, id := range moduleIDs {
			if l.ModuleID == id {
				out = append(out, l)
			}
		}
	}
	return out, nil
}

func (f *fakeModuleMissionRepo) GetByMissionID(ctx context.Context, tx *gorm.DB, missionID uuid.UUID) ([]*types.ModuleMission, error) {
	var out []*types.ModuleMission
	for _, l := range f.links {
		if l.MissionID == missionID {
			out = append(out, l)
		}
	}
	return out, nil
}

type fakeUserTrackProgressRepo struct {
	rows []*types.UserTrackProgress
}

func (f *fakeUserTrackProgressRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, userID, trackID uuid.UUID) (*types.UserTrackProgress, error) {
	for _, row := range f.rows {
		if row.UserID == userID && row.TrackID == trackID {
			return row, nil
		}
	}
	row := &types.UserTrackProgress{ID: uuid.New(), UserID: userID, TrackID: trackID}
	f.rows = append(f.rows, row)
	return row, nil
}

func (f *fakeUserTrackProgressRepo) GetByUserAndTrack(ctx context.Context, tx *gorm.DB, userID, trackID uuid.UUID) (*types.UserTrackProgress, error) {
	for _, row := range f.rows {
		if row.UserID == userID && row.TrackID == trackID {
			return row, nil
		}
	}
	return nil, nil
}

func (f *fakeUserTrackProgressRepo) IncrementCounters(ctx context.Context, tx *gorm.DB, id uuid.UUID, deltas map[string]int) error {
	for _, row := range f.rows {
		if row.ID != id {
			continue
		}
		for col, d := range deltas {
			switch col {
			case "quizzes_passed":
				row.QuizzesPassed += d
			case "mini_missions_completed":
				row.MiniMissionsCompleted += d
			case "reflections_submitted":
				row.ReflectionsSubmitted += d
			default:
				return fmt.Errorf("unexpected counter column %q", col)
			}
		}
		return nil
	}
	return fmt.Errorf("track progress %s not found", id)
}

func (f *fakeUserTrackProgressRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	for _, row := range f.rows {
		if row.ID != id {
			continue
		}
		for col, v := range fields {
			switch col {
			case "completion_percentage":
				row.CompletionPercentage = v.(float64)
			case "modules_completed":
				row.ModulesCompleted = v.(int)
			case "lessons_completed":
				row.LessonsCompleted = v.(int)
			case "missions_completed":
				row.MissionsCompleted = v.(int)
			case "tier2_completion_requirements_met":
				row.Tier2CompletionRequirementsMet = v.(bool)
			case "tier3_completion_requirements_met":
				row.Tier3CompletionRequirementsMet = v.(bool)
			case "tier4_completion_requirements_met":
				row.Tier4CompletionRequirementsMet = v.(bool)
			case "tier5_completion_requirements_met":
				row.Tier5CompletionRequirementsMet = v.(bool)
			case "tier2_mentor_approval":
				row.Tier2MentorApproval = v.(bool)
			case "tier3_mentor_approval":
				row.Tier3MentorApproval = v.(bool)
			case "tier4_mentor_approval":
				row.Tier4MentorApproval = v.(bool)
			case "tier5_mentor_approval":
				row.Tier5MentorApproval = v.(bool)
			case "tier3_unlocked":
				row.Tier3Unlocked = v.(bool)
			case "tier4_unlocked":
				row.Tier4Unlocked = v.(bool)
			case "tier5_unlocked":
				row.Tier5Unlocked = v.(bool)
			default:
				return fmt.Errorf("unexpected track progress column %q", col)
			}
		}
		return nil
	}
	return fmt.Errorf("track progress %s not found", id)
}

type fakeUserModuleProgressRepo struct {
	rows []*types.UserModuleProgress
}

func (f *fakeUserModuleProgressRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, userID, moduleID uuid.UUID) (*types.UserModuleProgress, error) {
	for _, row := range f.rows {
		if row.UserID == userID && row.ModuleID == moduleID {
			return row, nil
		}
	}
	row := &types.UserModuleProgress{ID: uuid.New(), UserID: userID, ModuleID: moduleID, Status: types.ProgressNotStarted}
	f.rows = append(f.rows, row)
	return row, nil
}

func (f *fakeUserModuleProgressRepo) GetByUserAndModuleIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID, moduleIDs []uuid.UUID) ([]*types.UserModuleProgress, error) {
	var out []*types.UserModuleProgress
	for _, row := range f.rows {
		if row.UserID != userID {
			continue
		}
		for _, id := range moduleIDs {
			if row.ModuleID == id {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

func (f *fakeUserModuleProgressRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	for _, row := range f.rows {
		if row.ID != id {
			continue
		}
		for col, v := range fields {
			switch col {
			case "status":
				row.Status = v.(string)
			case "completion_percentage":
				row.CompletionPercentage = v.(float64)
			case "lessons_completed":
				row.LessonsCompleted = v.(int)
			case "missions_completed":
				row.MissionsCompleted = v.(int)
			case "completed_at":
				switch at := v.(type) {
				case *time.Time:
					row.CompletedAt = at
				case time.Time:
					row.CompletedAt = &at
				case nil:
					row.CompletedAt = nil
				}
			default:
				return fmt.Errorf("unexpected module progress column %q", col)
			}
		}
		return nil
	}
	return fmt.Errorf("module progress %s not found", id)
}

type fakeUserLessonProgressRepo struct {
	rows []*types.UserLessonProgress
}

func (f *fakeUserLessonProgressRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, userID, lessonID uuid.UUID) (*types.UserLessonProgress, error) {
	for _, row := range f.rows {
		if row.UserID == userID && row.LessonID == lessonID {
			return row, nil
		}
	}
	row := &types.UserLessonProgress{ID: uuid.New(), UserID: userID, LessonID: lessonID, Status: types.ProgressNotStarted}
	f.rows = append(f.rows, row)
	return row, nil
}

func (f *fakeUserLessonProgressRepo) GetByUserAndLessonIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID, lessonIDs []uuid.UUID) ([]*types.UserLessonProgress, error) {
	var out []*types.UserLessonProgress
	for _, row := range f.rows {
		if row.UserID != userID {
			continue
		}
		for _, id := range lessonIDs {
			if row.LessonID == id {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

func (f *fakeUserLessonProgressRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	for _, row := range f.rows {
		if row.ID != id {
			continue
		}
		for col, v := range fields {
			switch col {
			case "status":
				row.Status = v.(string)
			case "progress_percentage":
				row.ProgressPercentage = v.(float64)
			case "quiz_score":
				score := v.(int)
				row.QuizScore = &score
			case "quiz_attempts":
				row.QuizAttempts = v.(int)
			case "completed_at":
				switch at := v.(type) {
				case *time.Time:
					row.CompletedAt = at
				case time.Time:
					row.CompletedAt = &at
				}
			default:
				return fmt.Errorf("unexpected lesson progress column %q", col)
			}
		}
		return nil
	}
	return fmt.Errorf("lesson progress %s not found", id)
}

type fakeMissionProgressRepo struct {
	rows map[uuid.UUID]*types.MissionProgress
	// conflictsLeft forces this many ErrConflict results from
	// UpdateWithVersion before writes go through, to exercise the retry loop.
	conflictsLeft int
}

func newFakeMissionProgressRepo() *fakeMissionProgressRepo {
	return &fakeMissionProgressRepo{rows: map[uuid.UUID]*types.MissionProgress{}}
}

func (f *fakeMissionProgressRepo) Create(ctx context.Context, tx *gorm.DB, row *types.MissionProgress) (*types.MissionProgress, error) {
	for _, existing := range f.rows {
		if existing.UserID == row.UserID && existing.MissionID == row.MissionID {
			return nil, fmt.Errorf("duplicate key value violates unique constraint")
		}
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	cp := *row
	f.rows[row.ID] = &cp
	return row, nil
}

func (f *fakeMissionProgressRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.MissionProgress, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (f *fakeMissionProgressRepo) GetByUserAndMission(ctx context.Context, tx *gorm.DB, userID, missionID uuid.UUID) (*types.MissionProgress, error) {
	for _, row := range f.rows {
		if row.UserID == userID && row.MissionID == missionID {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeMissionProgressRepo) GetByUserAndMissionIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID, missionIDs []uuid.UUID) ([]*types.MissionProgress, error) {
	var out []*types.MissionProgress
	for _, row := range f.rows {
		if row.UserID != userID {
			continue
		}
		for _, id := range missionIDs {
			if row.MissionID == id {
				cp := *row
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (f *fakeMissionProgressRepo) UpdateWithVersion(ctx context.Context, tx *gorm.DB, row *types.MissionProgress) error {
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return errs.ErrConflict
	}
	stored, ok := f.rows[row.ID]
	if !ok || stored.Version != row.Version {
		return errs.ErrConflict
	}
	row.Version++
	cp := *row
	f.rows[row.ID] = &cp
	return nil
}

func (f *fakeMissionProgressRepo) GetInactiveInProgress(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]*types.MissionProgress, error) {
	var out []*types.MissionProgress
	for _, row := range f.rows {
		if row.Status == types.MissionStatusInProgress && row.LastActivityAt.Before(cutoff) && row.DropOffStage == nil {
			cp := *row
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type fakeUserEventRepo struct {
	events []*types.UserEvent
}

func (f *fakeUserEventRepo) Append(ctx context.Context, tx *gorm.DB, rows []*types.UserEvent) ([]*types.UserEvent, error) {
	f.events = append(f.events, rows...)
	return rows, nil
}

func (f *fakeUserEventRepo) countByType(activityType string) int {
	n := 0
	for _, ev := range f.events {
		if ev.ActivityType == activityType {
			n++
		}
	}
	return n
}

type fakePortfolioArtifactRepo struct {
	artifacts []*types.PortfolioArtifact
}

func (f *fakePortfolioArtifactRepo) CreateIfAbsent(ctx context.Context, tx *gorm.DB, row *types.PortfolioArtifact) (bool, error) {
	for _, a := range f.artifacts {
		if a.UserID == row.UserID && a.MissionProgressID == row.MissionProgressID {
			return false, nil
		}
	}
	f.artifacts = append(f.artifacts, row)
	return true, nil
}

type fakeSkillSignalRepo struct {
	signals []*types.SkillSignal
}

func (f *fakeSkillSignalRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.SkillSignal) ([]*types.SkillSignal, error) {
	f.signals = append(f.signals, rows...)
	return rows, nil
}

type fakeAIReviewer struct {
	out   *AIReviewOutput
	err   error
	calls int
}

func (f *fakeAIReviewer) Review(ctx context.Context, input AIReviewInput) (*AIReviewOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type fakeDashboards struct {
	calls int
}

func (f *fakeDashboards) InvalidateDashboards(ctx context.Context, userID uuid.UUID) error {
	f.calls++
	return nil
}

type fakeDispatcher struct {
	enqueued []uuid.UUID
}

func (f *fakeDispatcher) EnqueueAIReview(attemptID uuid.UUID) {
	f.enqueued = append(f.enqueued, attemptID)
}
