package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/campuscode/autograder-api/internal/config"
	"github.com/campuscode/autograder-api/internal/database"
	"github.com/campuscode/autograder-api/internal/handler"
	"github.com/campuscode/autograder-api/internal/middleware"
	"github.com/campuscode/autograder-api/internal/models"
	"github.com/campuscode/autograder-api/internal/repository"
	"github.com/campuscode/autograder-api/internal/router"
	"github.com/campuscode/autograder-api/internal/service"
	"github.com/campuscode/autograder-api/pkg/sandbox"
	"github.com/campuscode/autograder-api/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Class{},
		&models.Enrollment{},
		&models.Question{},
		&models.TestCase{},
		&models.Submission{},
		&models.PlagiarismReport{},
		&models.PlagiarismPair{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, report caching disabled")
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	var events service.EventPublisher
	natsConn, err := database.ConnectNATS(cfg.NATSURL)
	if err != nil {
		logger.Warn().Err(err).Msg("nats unavailable, event publishing disabled")
	} else {
		defer natsConn.Close()
		events = service.NewNATSPublisher(natsConn, "autograder", logger)
	}

	store, err := storage.NewMinioStore(context.Background(), storage.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	}, logger)
	if err != nil {
		log.Fatalf("failed to connect to object storage: %v", err)
	}

	executor, err := sandbox.NewDockerExecutor(sandbox.Config{
		Host:          cfg.DockerHost,
		Timeout:       cfg.ExecutionTimeout,
		MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
		CPUShares:     int64(cfg.CodeRunCPUShares),
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("failed to create sandbox executor: %v", err)
	}
	defer executor.Close()

	runner := service.NewSandboxRunner(executor, service.RunnerConfig{
		WorkspaceRoot: cfg.WorkspaceRoot,
		Timeout:       cfg.ExecutionTimeout,
		MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
		CPUShares:     int64(cfg.CodeRunCPUShares),
	}, logger)

	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepository(db)
	classRepo := repository.NewClassRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	authService := service.NewAuthService(userRepo, service.NewHMACVerifier(cfg.IdentitySecret), cfg.JWTSecret, 12*time.Hour, validate, logger)
	evaluationService := service.NewEvaluationService(db, runner, store, redisClient, cfg.ReportCacheTTL, events, logger)
	questionService := service.NewQuestionService(questionRepo, classRepo, userRepo, evaluationService, validate, logger)
	submissionService := service.NewSubmissionService(submissionRepo, questionRepo, classRepo, runner, store, logger)

	authHandler := handler.NewAuthHandler(authService, logger)
	instructorHandler := handler.NewInstructorHandler(questionService, evaluationService, validate, logger)
	studentHandler := handler.NewStudentHandler(submissionService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AuthHandler:       authHandler,
		InstructorHandler: instructorHandler,
		StudentHandler:    studentHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
