package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/coursehub/asset-service/docs"
	"github.com/coursehub/asset-service/internal/auth"
	authMiddleware "github.com/coursehub/asset-service/internal/auth/middleware"
	authService "github.com/coursehub/asset-service/internal/auth/service"
	"github.com/coursehub/asset-service/internal/config"
	"github.com/coursehub/asset-service/internal/handlers"
	"github.com/coursehub/asset-service/internal/logger"
	"github.com/coursehub/asset-service/internal/middlewares"
	"github.com/coursehub/asset-service/internal/repositories"
	"github.com/coursehub/asset-service/internal/services"
	"github.com/coursehub/asset-service/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// @title CourseHub Asset API
// @version 1.0
// @description API for ingesting and serving course assets (covers, intro videos, lesson videos and materials)
// @termsOfService http://swagger.io/terms/

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for service-to-service cascade deletion
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v\n", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v\n", err)
	}
	defer logger.Sync()

	logger.Logger.Info("Starting CourseHub Asset Service")

	// Connect to database
	db, err := connectDB(cfg.DSN())
	if err != nil {
		logger.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	if err := runMigrations(db); err != nil {
		logger.Logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Initialize JWT token generator (for auth middleware)
	tokenGenerator := authService.NewTokenGenerator(
		cfg.JWT.Secret,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
	)

	// Initialize storage
	assetStorage := storage.NewLocalStorage(cfg.Upload.StorageBasePath)

	// Initialize repositories
	assetRepo := repositories.NewAssetRepository(db)

	// Initialize services
	assetService := services.NewAssetService(assetRepo, assetStorage, cfg.BaseURL)

	// Initialize middleware
	authMw := authMiddleware.AuthMiddleware(tokenGenerator)
	teacherMw := authMiddleware.RoleMiddleware(authService.RoleTeacher)
	apiKeyMw := authMiddleware.APIKeyMiddleware(cfg.APIKey)

	// Initialize handlers
	assetHandler := handlers.NewAssetHandler(assetService, auth.NewRoleAccessChecker(), cfg.Upload, logger.Logger)

	// Setup router
	r := chi.NewRouter()

	// Apply middleware
	r.Use(middlewares.RequestIDMiddleware)
	r.Use(middlewares.LoggingMiddleware(logger.Logger))
	r.Use(middlewares.RecoveryMiddleware(logger.Logger))
	r.Use(middlewares.CORSMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(httprate.LimitByIP(100, time.Minute))
	r.Use(middlewares.RequestSizeLimitMiddleware(cfg.Upload.MaxRequestSize()))

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL(fmt.Sprintf("http://localhost:%d/swagger/doc.json", cfg.Server.Port)),
	))

	// Scope router to /api/v1
	r.Route("/api/v1", func(r chi.Router) {
		// Uploads require an authenticated instructor
		r.Group(func(r chi.Router) {
			r.Use(authMw)
			r.Use(teacherMw)
			r.Post("/courses/{courseID}/cover", assetHandler.UploadCourseCover)
			r.Post("/courses/{courseID}/intro", assetHandler.UploadCourseIntro)
			r.Post("/courses/{courseID}/modules/{moduleID}/classes/{classID}/video", assetHandler.UploadLessonVideo)
			r.Post("/courses/{courseID}/modules/{moduleID}/classes/{classID}/material", assetHandler.UploadLessonMaterial)
		})

		// Downloads and metadata require authentication; per-course
		// access is checked in the handler
		r.Group(func(r chi.Router) {
			r.Use(authMw)
			r.Get("/courses/{courseID}/cover", assetHandler.DownloadCourseCover)
			r.Get("/courses/{courseID}/cover/meta", assetHandler.GetCourseCoverMeta)
			r.Get("/courses/{courseID}/intro", assetHandler.DownloadCourseIntro)
			r.Get("/courses/{courseID}/intro/meta", assetHandler.GetCourseIntroMeta)
			r.Get("/courses/{courseID}/modules/{moduleID}/classes/{classID}/video", assetHandler.DownloadLessonVideo)
			r.Get("/courses/{courseID}/modules/{moduleID}/classes/{classID}/video/meta", assetHandler.GetLessonVideoMeta)
			r.Get("/courses/{courseID}/modules/{moduleID}/classes/{classID}/material", assetHandler.DownloadLessonMaterial)
			r.Get("/courses/{courseID}/modules/{moduleID}/classes/{classID}/material/meta", assetHandler.GetLessonMaterialMeta)
		})

		// Cascade cleanup is service-to-service, called by the course
		// CRUD layer on entity deletion
		r.Group(func(r chi.Router) {
			r.Use(apiKeyMw)
			r.Delete("/courses/{courseID}/assets", assetHandler.RemoveCourseAssets)
			r.Delete("/courses/{courseID}/modules/{moduleID}/assets", assetHandler.RemoveModuleAssets)
			r.Delete("/courses/{courseID}/modules/{moduleID}/classes/{classID}/assets", assetHandler.RemoveClassAssets)
		})
	})

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Minute, // Long timeout for large video uploads
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Logger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Logger.Info("Server exited")
}

// connectDB connects to the database
func connectDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// runMigrations runs database migrations
func runMigrations(db *sql.DB) error {
	driver, err := mysql.WithInstance(db, &mysql.Config{
		MigrationsTable: "asset_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Get the working directory or use migrations folder relative to the binary
	migrationPath := "file://migrations"
	if _, err := os.Stat("migrations"); os.IsNotExist(err) {
		// Try parent directory if running from cmd
		if _, err := os.Stat("../migrations"); err == nil {
			migrationPath = "file://../migrations"
		}
	}

	m, err := migrate.NewWithDatabaseInstance(
		migrationPath,
		"mysql",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
