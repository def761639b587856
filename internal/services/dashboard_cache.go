package services

import (
	"context"

	"github.com/google/uuid"
)

// DashboardInvalidator is the capability port for blowing away cached
// learner dashboards after a mission approval. Environments without a cache
// inject the no-op implementation; the dependency is explicit, never an
// import-failure fallback.
type DashboardInvalidator interface {
	InvalidateDashboards(ctx context.Context, userID uuid.UUID) error
}

type noopDashboardInvalidator struct{}

func NewNoopDashboardInvalidator() DashboardInvalidator {
	return noopDashboardInvalidator{}
}

func (noopDashboardInvalidator) InvalidateDashboards(ctx context.Context, userID uuid.UUID) error {
	return nil
}
