package repos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/skillforge/skillforge-backend/internal/logger"
	"github.com/skillforge/skillforge-backend/internal/types"
)

type PortfolioArtifactRepo interface {
	// CreateIfAbsent inserts the artifact unless one already exists for the
	// same (user, mission attempt). Returns true when a row was inserted,
	// false on the idempotent no-op path.
	CreateIfAbsent(ctx context.Context, tx *gorm.DB, row *types.PortfolioArtifact) (bool, error)
}

type portfolioArtifactRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPortfolioArtifactRepo(db *gorm.DB, baseLog *logger.Logger) PortfolioArtifactRepo {
	return &portfolioArtifactRepo{db: db, log: baseLog.With("repo", "PortfolioArtifactRepo")}
}

func (r *portfolioArtifactRepo) CreateIfAbsent(ctx context.Context, tx *gorm.DB, row *types.PortfolioArtifact) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return false, nil
	}

	res := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "mission_progress_id"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
