package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/uni-academic-api/api/swagger"
	"github.com/noah-isme/uni-academic-api/internal/audit"
	"github.com/noah-isme/uni-academic-api/internal/handler"
	"github.com/noah-isme/uni-academic-api/internal/middleware"
	"github.com/noah-isme/uni-academic-api/internal/repository"
	"github.com/noah-isme/uni-academic-api/internal/service"
	"github.com/noah-isme/uni-academic-api/pkg/cache"
	"github.com/noah-isme/uni-academic-api/pkg/config"
	"github.com/noah-isme/uni-academic-api/pkg/database"
	"github.com/noah-isme/uni-academic-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/uni-academic-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/uni-academic-api/pkg/middleware/requestid"
)

// @title University Academic Core API
// @version 0.1.0
// @description Enrollment and grade lifecycle engine
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	studentRepo := repository.NewStudentRepository(db)
	facultyRepo := repository.NewFacultyRepository(db)
	yearRepo := repository.NewAcademicYearRepository(db)
	unitRepo := repository.NewTeachingUnitRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	recorder := audit.NewAsyncRecorder(audit.NewLogRecorder(auditRepo, logr), audit.AsyncConfig{Logger: logr})
	recorder.Start(context.Background())
	defer recorder.Stop()

	policy := service.NewGradePolicy(cfg.Academic.DefaultPassingGrade, cfg.Academic.RetakeRatio)
	validate := validator.New()

	metrics := service.NewMetricsService()
	transcriptSvc := service.NewTranscriptService(gradeRepo, enrollmentRepo, unitRepo, studentRepo, yearRepo, redisClient, cfg.Academic.TranscriptCacheTTL, logr).WithMetrics(metrics)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, facultyRepo, yearRepo, recorder, validate, logr)
	gradeSvc := service.NewGradeService(gradeRepo, studentRepo, unitRepo, yearRepo, policy, transcriptSvc, recorder, validate, logr)

	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	transcriptHandler := handler.NewTranscriptHandler(transcriptSvc)
	referenceHandler := handler.NewReferenceHandler(facultyRepo, yearRepo, unitRepo, studentRepo)
	auditHandler := handler.NewAuditHandler(auditRepo)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.GET("/enrollments", enrollmentHandler.List)
		api.POST("/enrollments", enrollmentHandler.Create)
		api.PUT("/enrollments/:id", enrollmentHandler.Update)
		api.DELETE("/enrollments/:id", enrollmentHandler.Delete)
		api.POST("/enrollments/repair", enrollmentHandler.RepairAll)
		api.POST("/students/:id/enrollments/repair", enrollmentHandler.RepairStudent)

		api.GET("/grades", gradeHandler.List)
		api.POST("/grades", gradeHandler.Submit)
		api.POST("/grades/bulk", gradeHandler.BulkSubmit)
		api.GET("/grades/history", gradeHandler.History)
		api.GET("/grades/active", gradeHandler.Active)
		api.POST("/grades/:id/retake", gradeHandler.Retake)

		api.GET("/students/:id/transcript", transcriptHandler.Get)

		api.GET("/faculties", referenceHandler.Faculties)
		api.GET("/academic-years", referenceHandler.AcademicYears)
		api.GET("/teaching-units", referenceHandler.TeachingUnits)
		api.GET("/students", referenceHandler.Students)
		api.GET("/audit-logs", auditHandler.List)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
