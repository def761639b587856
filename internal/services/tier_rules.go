package services

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/skillforge/skillforge-backend/internal/types"
)

const (
	// QuizPassScore is the minimum quiz score counted as a pass.
	QuizPassScore = 70
	// MentorRubricPassScore is the minimum mentor score per mastery mission
	// when the track declares a mastery rubric.
	MentorRubricPassScore = 70
)

// TierSnapshot is a consistent read of catalog + ledger state for one
// (user, track). Evaluation over a snapshot is pure; required modules are
// fixed for the whole evaluation, never re-read mid-way.
type TierSnapshot struct {
	Track    *types.Track
	Progress *types.UserTrackProgress

	Modules []*types.TrackModule
	Lessons []*types.Lesson
	Links   []*types.ModuleMission

	Missions map[uuid.UUID]*types.Mission
	// Fallback is the deterministic, ordered catalog-tag mission set per
	// tier tag, consulted only when the track has no explicit links.
	Fallback map[string][]*types.Mission

	ModuleProgress  map[uuid.UUID]*types.UserModuleProgress
	LessonProgress  map[uuid.UUID]*types.UserLessonProgress
	MissionProgress map[uuid.UUID]*types.MissionProgress
}

func tierTag(tier int) string {
	switch tier {
	case 2:
		return types.MissionTierBeginner
	case 3:
		return types.MissionTierIntermediate
	case 4:
		return types.MissionTierAdvanced
	case 5:
		return types.MissionTierMastery
	}
	return ""
}

func (s *TierSnapshot) requiredModules() []*types.TrackModule {
	var out []*types.TrackModule
	for _, m := range s.Modules {
		if m.IsRequired && m.IsActive {
			out = append(out, m)
		}
	}
	return out
}

func (s *TierSnapshot) requiredModulesComplete() bool {
	for _, m := range s.requiredModules() {
		p := s.ModuleProgress[m.ID]
		if p == nil || p.Status != types.ProgressCompleted {
			return false
		}
	}
	return true
}

// requiredQuizzes returns required quiz-type lessons under required modules.
func (s *TierSnapshot) requiredQuizzes() []*types.Lesson {
	required := map[uuid.UUID]bool{}
	for _, m := range s.requiredModules() {
		required[m.ID] = true
	}
	var out []*types.Lesson
	for _, l := range s.Lessons {
		if l.IsRequired && l.IsActive && l.Type == types.LessonTypeQuiz && required[l.ModuleID] {
			out = append(out, l)
		}
	}
	return out
}

func (s *TierSnapshot) quizPassed(lessonID uuid.UUID) bool {
	p := s.LessonProgress[lessonID]
	if p == nil || p.Status != types.ProgressCompleted {
		return false
	}
	return p.QuizScore != nil && *p.QuizScore >= QuizPassScore
}

// requiredMissions resolves the requirement set for a tier. Explicit
// required links are authoritative; the catalog-tag fallback applies only
// when the track has no links at all. filterTag restricts linked missions
// to the tier's tag ("" keeps every linked mission, the tier-3 rule).
func (s *TierSnapshot) requiredMissions(filterTag string) (missions []*types.Mission, usedFallback bool) {
	if len(s.Links) > 0 {
		seen := map[uuid.UUID]bool{}
		for _, link := range s.Links {
			if !link.IsRequired || seen[link.MissionID] {
				continue
			}
			m := s.Missions[link.MissionID]
			if m == nil || !m.IsActive {
				continue
			}
			if filterTag != "" && m.Tier != filterTag {
				continue
			}
			seen[link.MissionID] = true
			missions = append(missions, m)
		}
		return missions, false
	}
	if filterTag == "" {
		return nil, false
	}
	return s.Fallback[filterTag], true
}

func (s *TierSnapshot) missionPassed(missionID uuid.UUID) bool {
	p := s.MissionProgress[missionID]
	return p != nil && p.FinalStatus == types.FinalStatusPass
}

func (s *TierSnapshot) missionApprovedAndPassed(missionID uuid.UUID) bool {
	p := s.MissionProgress[missionID]
	return p != nil && p.Status == types.MissionStatusApproved && p.FinalStatus == types.FinalStatusPass
}

func (s *TierSnapshot) missionMentorReviewed(missionID uuid.UUID) bool {
	p := s.MissionProgress[missionID]
	return p != nil && p.MentorReviewedAt != nil
}

func (s *TierSnapshot) reflectionsSubmittedFor(missions []*types.Mission) bool {
	for _, m := range missions {
		p := s.MissionProgress[m.ID]
		if p == nil {
			continue
		}
		if p.ReflectionRequired && !p.ReflectionSubmitted {
			return false
		}
	}
	return true
}

func (s *TierSnapshot) mentorApprovalSatisfied(tier int, override bool) bool {
	if !s.Track.RequireMentorApprovalForTier(tier) && !override {
		return true
	}
	return s.Progress.MentorApprovalForTier(tier)
}

// evaluateTier computes tier completion over the snapshot and returns the
// ordered list of unmet requirements. It has no side effects.
func evaluateTier(s *TierSnapshot, tier int, requireMentorOverride bool) (bool, []string) {
	switch tier {
	case 2:
		return evaluateTier2(s, requireMentorOverride)
	case 3:
		return evaluateTier3(s, requireMentorOverride)
	case 4:
		return evaluateTier4(s, requireMentorOverride)
	case 5:
		return evaluateTier5(s, requireMentorOverride)
	}
	return false, []string{fmt.Sprintf("Unknown tier %d", tier)}
}

func evaluateTier2(s *TierSnapshot, override bool) (bool, []string) {
	missing := []string{}

	if !s.requiredModulesComplete() {
		missing = append(missing, fmt.Sprintf("Complete all %d required modules", len(s.requiredModules())))
	}

	quizzes := s.requiredQuizzes()
	quizzesPassed := true
	for _, q := range quizzes {
		if !s.quizPassed(q.ID) {
			quizzesPassed = false
			break
		}
	}
	if !quizzesPassed {
		missing = append(missing, fmt.Sprintf("Pass all %d quizzes (%d%% minimum)", len(quizzes), QuizPassScore))
	}

	if s.Progress.MiniMissionsCompleted < s.Track.MinMiniMissionsRequired {
		missing = append(missing, fmt.Sprintf("Complete at least %d mini-missions", s.Track.MinMiniMissionsRequired))
	}

	if !s.mentorApprovalSatisfied(2, override) {
		missing = append(missing, "Obtain mentor approval")
	}

	return len(missing) == 0, missing
}

func evaluateTier3(s *TierSnapshot, override bool) (bool, []string) {
	missing := []string{}

	if !s.requiredModulesComplete() {
		missing = append(missing, fmt.Sprintf("Complete all %d required modules", len(s.requiredModules())))
	}

	missions, _ := s.requiredMissions("")
	allPassed := true
	for _, m := range missions {
		if !s.missionPassed(m.ID) {
			allPassed = false
			break
		}
	}
	if !allPassed {
		missing = append(missing, fmt.Sprintf("Pass all %d required missions", len(missions)))
	}

	if !s.reflectionsSubmittedFor(missions) {
		missing = append(missing, "Submit reflections for all missions that require them")
	}

	if !s.mentorApprovalSatisfied(3, override) {
		missing = append(missing, "Obtain mentor approval")
	}

	return len(missing) == 0, missing
}

func evaluateTier4(s *TierSnapshot, override bool) (bool, []string) {
	missing := []string{}

	if !s.requiredModulesComplete() {
		missing = append(missing, fmt.Sprintf("Complete all %d required modules", len(s.requiredModules())))
	}

	missions, _ := s.requiredMissions(types.MissionTierAdvanced)
	allApproved := true
	allReviewed := true
	for _, m := range missions {
		if !s.missionApprovedAndPassed(m.ID) {
			allApproved = false
		}
		if !s.missionMentorReviewed(m.ID) {
			allReviewed = false
		}
	}
	if !allApproved {
		missing = append(missing, fmt.Sprintf("Complete and pass all %d advanced missions", len(missions)))
	}
	if !allReviewed {
		missing = append(missing, "Obtain mentor review for all advanced missions")
	}

	if !s.reflectionsSubmittedFor(missions) {
		missing = append(missing, "Submit reflections for all missions that require them")
	}

	if !s.mentorApprovalSatisfied(4, override) {
		missing = append(missing, "Obtain mentor approval")
	}

	return len(missing) == 0, missing
}

func evaluateTier5(s *TierSnapshot, override bool) (bool, []string) {
	missing := []string{}

	missions, _ := s.requiredMissions(types.MissionTierMastery)
	allApproved := true
	for _, m := range missions {
		if !s.missionApprovedAndPassed(m.ID) {
			allApproved = false
			break
		}
	}
	if !allApproved {
		missing = append(missing, fmt.Sprintf("Complete and pass all %d mastery missions", len(missions)))
	}

	if !s.reflectionsSubmittedFor(missions) {
		missing = append(missing, "Submit reflections for all missions that require them")
	}

	capstoneDone := true
	for _, m := range missions {
		if m.MissionType == types.MissionTypeCapstone && !s.missionApprovedAndPassed(m.ID) {
			capstoneDone = false
			break
		}
	}
	if !capstoneDone {
		missing = append(missing, "Complete the capstone mission")
	}

	if s.Track.MasteryRubricID != nil {
		rubricMet := true
		for _, m := range missions {
			p := s.MissionProgress[m.ID]
			if p == nil || p.MentorScore == nil || *p.MentorScore < MentorRubricPassScore {
				rubricMet = false
				break
			}
		}
		if !rubricMet {
			missing = append(missing, fmt.Sprintf("Score at least %d%% from mentor review on all mastery missions", MentorRubricPassScore))
		}
	}

	if !s.mentorApprovalSatisfied(5, override) {
		missing = append(missing, "Obtain mentor approval")
	}

	return len(missing) == 0, missing
}
