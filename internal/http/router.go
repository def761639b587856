package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/skillforge/skillforge-backend/internal/http/handlers"
	httpMW "github.com/skillforge/skillforge-backend/internal/http/middleware"
	"github.com/skillforge/skillforge-backend/internal/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	AuthMiddleware *httpMW.AuthMiddleware

	HealthHandler  *httpH.HealthHandler
	MissionHandler *httpH.MissionHandler
	TierHandler    *httpH.TierHandler
	LessonHandler  *httpH.LessonHandler
	ReviewHandler  *httpH.ReviewHandler
	IngestHandler  *httpH.IngestHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(httpMW.CORS())
	r.Use(httpMW.RequestLogger(cfg.Log))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Missions (attempt state machine)
		if cfg.MissionHandler != nil {
			protected.POST("/missions/:id/start", cfg.MissionHandler.Start)
			protected.GET("/missions/:id/attempt", cfg.MissionHandler.GetAttempt)
			protected.POST("/missions/:id/subtasks/complete", cfg.MissionHandler.CompleteSubtask)
			protected.GET("/missions/:id/subtasks/:subtaskId/unlockable", cfg.MissionHandler.CheckSubtaskUnlockable)
			protected.POST("/missions/:id/decisions", cfg.MissionHandler.RecordDecision)
			protected.POST("/missions/:id/submit", cfg.MissionHandler.Submit)
			protected.POST("/missions/:id/reopen", cfg.MissionHandler.Reopen)
			protected.POST("/missions/:id/hints", cfg.MissionHandler.RecordHint)
			protected.POST("/missions/:id/stage-time", cfg.MissionHandler.RecordStageTime)
			protected.POST("/missions/:id/tools", cfg.MissionHandler.RecordToolUsed)
		}

		// Lessons and quizzes
		if cfg.LessonHandler != nil {
			protected.POST("/lessons/:id/complete", cfg.LessonHandler.Complete)
			protected.POST("/lessons/:id/quiz", cfg.LessonHandler.RecordQuizResult)
		}

		// Tracks and tiers
		if cfg.TierHandler != nil {
			protected.GET("/tracks/:id/progress", cfg.TierHandler.TrackProgress)
			protected.GET("/tracks/:id/tiers/:tier/status", cfg.TierHandler.TierStatus)
		}
	}

	// Mentor surface
	if cfg.AuthMiddleware != nil {
		mentor := api.Group("/")
		mentor.Use(cfg.AuthMiddleware.RequireAuth(), cfg.AuthMiddleware.RequireRole(httpMW.RoleMentor))
		if cfg.ReviewHandler != nil {
			mentor.POST("/reviews/:attemptId/start", cfg.ReviewHandler.StartMentorReview)
			mentor.POST("/reviews/:attemptId/verdict", cfg.ReviewHandler.ApplyMentorReview)
		}
		if cfg.TierHandler != nil {
			mentor.POST("/tracks/:id/tiers/:tier/mentor-approval", cfg.TierHandler.RecordMentorApproval)
		}

		// Pipeline + admin surface
		ops := api.Group("/")
		ops.Use(cfg.AuthMiddleware.RequireAuth(), cfg.AuthMiddleware.RequireRole(httpMW.RolePipeline))
		if cfg.IngestHandler != nil {
			ops.POST("/ingest/submissions", cfg.IngestHandler.IngestSubmission)
		}

		admin := api.Group("/")
		admin.Use(cfg.AuthMiddleware.RequireAuth(), cfg.AuthMiddleware.RequireRole(httpMW.RoleAdmin))
		if cfg.TierHandler != nil {
			admin.POST("/tracks/:id/tiers/:tier/reset", cfg.TierHandler.ResetTier)
		}
	}

	return r
}
