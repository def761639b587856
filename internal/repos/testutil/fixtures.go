package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skillforge/skillforge-backend/internal/types"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *types.User {
	tb.Helper()
	u := &types.User{
		ID:    uuid.New(),
		Email: email,
		Role:  "learner",
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedTrack(tb testing.TB, ctx context.Context, tx *gorm.DB, code string, tier int) *types.Track {
	tb.Helper()
	tr := &types.Track{
		ID:         uuid.New(),
		Code:       code,
		Title:      code,
		ProgramKey: "defender",
		Tier:       tier,
		IsActive:   true,
	}
	if err := tx.WithContext(ctx).Create(tr).Error; err != nil {
		tb.Fatalf("seed track: %v", err)
	}
	return tr
}

func SeedMission(tb testing.TB, ctx context.Context, tx *gorm.DB, trackID *uuid.UUID) *types.Mission {
	tb.Helper()
	m := &types.Mission{
		ID:          uuid.New(),
		Title:       "mission",
		Tier:        types.MissionTierBeginner,
		MissionType: types.MissionTypeStandard,
		TrackID:     trackID,
		IsActive:    true,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed mission: %v", err)
	}
	return m
}
