package main

import (
	"context"
	"fmt"
	"time"

	"github.com/skillforge/skillforge-backend/internal/db"
	apphttp "github.com/skillforge/skillforge-backend/internal/http"
	httpH "github.com/skillforge/skillforge-backend/internal/http/handlers"
	httpMW "github.com/skillforge/skillforge-backend/internal/http/middleware"
	"github.com/skillforge/skillforge-backend/internal/clients/redis"
	"github.com/skillforge/skillforge-backend/internal/logger"
	"github.com/skillforge/skillforge-backend/internal/repos"
	"github.com/skillforge/skillforge-backend/internal/services"
	"github.com/skillforge/skillforge-backend/internal/utils"
)

func main() {
	mode := utils.GetEnv("APP_ENV", "dev", nil)
	log, err := logger.New(mode)
	if err != nil {
		panic(fmt.Sprintf("logger init: %v", err))
	}
	defer log.Sync()

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("postgres init failed", "error", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Fatal("postgres migration failed", "error", err)
	}
	gdb := pg.DB()

	// Repos
	trackRepo := repos.NewTrackRepo(gdb, log)
	moduleRepo := repos.NewTrackModuleRepo(gdb, log)
	lessonRepo := repos.NewLessonRepo(gdb, log)
	missionRepo := repos.NewMissionRepo(gdb, log)
	moduleMissionRepo := repos.NewModuleMissionRepo(gdb, log)
	trackProgressRepo := repos.NewUserTrackProgressRepo(gdb, log)
	moduleProgressRepo := repos.NewUserModuleProgressRepo(gdb, log)
	lessonProgressRepo := repos.NewUserLessonProgressRepo(gdb, log)
	missionProgressRepo := repos.NewMissionProgressRepo(gdb, log)
	userEventRepo := repos.NewUserEventRepo(gdb, log)
	portfolioRepo := repos.NewPortfolioArtifactRepo(gdb, log)
	skillSignalRepo := repos.NewSkillSignalRepo(gdb, log)

	// Collaborator ports
	activity := services.NewActivityService(gdb, log, userEventRepo)

	dashboards, err := redis.NewDashboardInvalidator(log)
	if err != nil {
		log.Warn("dashboard cache unavailable, using no-op invalidator", "error", err)
		dashboards = services.NewNoopDashboardInvalidator()
	}

	reviewer, err := services.NewAIReviewer(log)
	if err != nil {
		log.Warn("ai reviewer unavailable, submissions will take the fallback score", "error", err)
		reviewer = services.NewFallbackAIReviewer()
	}

	// Core services
	evaluator := services.NewTierEvaluator(gdb, log,
		trackRepo, moduleRepo, lessonRepo, missionRepo, moduleMissionRepo,
		trackProgressRepo, moduleProgressRepo, lessonProgressRepo, missionProgressRepo,
		activity)
	rollup := services.NewRollupService(gdb, log,
		trackRepo, moduleRepo, lessonRepo, moduleMissionRepo,
		trackProgressRepo, moduleProgressRepo, lessonProgressRepo, missionProgressRepo,
		evaluator)
	coordinator := services.NewReviewCoordinator(gdb, log,
		missionRepo, missionProgressRepo, moduleMissionRepo, moduleRepo,
		trackProgressRepo, portfolioRepo, skillSignalRepo,
		reviewer, activity, dashboards, rollup)
	execution := services.NewMissionExecutionService(gdb, log,
		missionRepo, missionProgressRepo, moduleMissionRepo, moduleRepo,
		trackProgressRepo, activity, coordinator)
	lessons := services.NewLessonProgressService(gdb, log,
		lessonRepo, moduleRepo, lessonProgressRepo, trackProgressRepo,
		activity, rollup)
	ingest := services.NewSubmissionIngestService(gdb, log,
		moduleMissionRepo, missionProgressRepo, coordinator)

	// Drop-off analytics sweep
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	sweepMinutes := utils.GetEnvAsInt("DROPOFF_SWEEP_INTERVAL_MINUTES", 15, log)
	inactiveHours := utils.GetEnvAsInt("DROPOFF_INACTIVE_HOURS", 48, log)
	execution.StartDropOffWorker(workerCtx,
		time.Duration(sweepMinutes)*time.Minute,
		time.Duration(inactiveHours)*time.Hour)

	// HTTP
	jwtSecret := utils.GetEnv("JWT_SECRET", "", log)
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	server := apphttp.NewServer(apphttp.RouterConfig{
		Log:            log,
		AuthMiddleware: httpMW.NewAuthMiddleware(log, jwtSecret),
		HealthHandler:  httpH.NewHealthHandler(),
		MissionHandler: httpH.NewMissionHandler(execution, coordinator),
		TierHandler:    httpH.NewTierHandler(evaluator, rollup),
		LessonHandler:  httpH.NewLessonHandler(lessons),
		ReviewHandler:  httpH.NewReviewHandler(coordinator),
		IngestHandler:  httpH.NewIngestHandler(ingest),
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("starting server", "port", port)
	if err := server.Run(":" + port); err != nil {
		log.Fatal("server exited", "error", err)
	}
}
