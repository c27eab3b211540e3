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

	"github.com/noah-isme/oelp-api/internal/config"
	"github.com/noah-isme/oelp-api/internal/database"
	"github.com/noah-isme/oelp-api/internal/draft"
	"github.com/noah-isme/oelp-api/internal/handler"
	"github.com/noah-isme/oelp-api/internal/middleware"
	"github.com/noah-isme/oelp-api/internal/models"
	"github.com/noah-isme/oelp-api/internal/repository"
	"github.com/noah-isme/oelp-api/internal/router"
	"github.com/noah-isme/oelp-api/internal/service"
	cloud "github.com/noah-isme/oelp-api/pkg/cloudinary"
	dockerexec "github.com/noah-isme/oelp-api/pkg/docker"
	"github.com/noah-isme/oelp-api/pkg/execution"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.ConnectPostgres(context.Background(), cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(context.Background(), cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	executor, err := dockerexec.NewDockerExecutor(dockerexec.Config{
		Host:          cfg.DockerHost,
		Timeout:       cfg.ExecutionTimeout,
		MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
		CPUShares:     int64(cfg.CodeRunCPUShares),
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("failed to create docker executor: %v", err)
	}
	defer executor.Close()

	var fixtures service.FixtureStorage
	if cfg.FixtureStorageEnabled() {
		storage, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		fixtures = storage
	} else {
		logger.Warn().Msg("cloudinary not configured, test case uploads disabled")
	}

	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	validate := validator.New(validator.WithRequiredStructEnabled())

	labRepo := repository.NewLabRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	draftStore := draft.NewRedisStore(redisClient, cfg.DraftTTL, logger)

	events := service.NewSubmissionEventBus(redisClient, "oelp", natsConn, logger)
	events.Start(appCtx)

	gradingService := service.NewGradingService(questionRepo, submissionRepo, fixtures, executor, events, validate, logger, service.GradingConfig{
		ExecutionTimeout: cfg.ExecutionTimeout,
		MemoryLimitMB:    cfg.CodeRunMemoryMB,
		CPUShares:        cfg.CodeRunCPUShares,
		PointsPerCase:    cfg.PointsPerCase,
	})
	progressService := service.NewProgressService(labRepo, questionRepo, submissionRepo, progressRepo, redisClient, cfg.ProgressCacheTTL, logger)
	problemService := service.NewProblemService(labRepo, questionRepo, submissionRepo, progressRepo, fixtures, logger)
	analyticsService := service.NewAnalyticsService(profileRepo, labRepo, questionRepo, submissionRepo, events, redisClient, cfg.AnalyticsCacheTTL, logger)
	labService := service.NewLabService(labRepo, questionRepo, analyticsService, validate, logger)
	questionService := service.NewQuestionService(labRepo, questionRepo, fixtures, analyticsService, validate, logger)
	draftService := service.NewDraftService(draftStore, logger)
	editorService := service.NewEditorService(questionRepo, submissionRepo, draftStore, service.EditorConfig{
		ExecutionURL: cfg.ExecutionURL,
		QuietPeriod:  cfg.DraftQuietPeriod,
		HTTPClient:   execution.NewHTTPClient(cfg.ExecutionClientTimeout),
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    16 << 20,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		ExecHandler:           handler.NewExecHandler(gradingService, logger),
		StudentLabHandler:     handler.NewStudentLabHandler(progressService, problemService, logger),
		DraftHandler:          handler.NewDraftHandler(draftService, logger),
		EditorHandler:         handler.NewEditorHandler(editorService, logger),
		AdminLabHandler:       handler.NewAdminLabHandler(labService, questionService, logger),
		AdminAnalyticsHandler: handler.NewAdminAnalyticsHandler(analyticsService, logger),
		HealthProbes: map[string]handler.HealthProbe{
			"postgres": database.PostgresProbe(db),
			"redis":    database.RedisProbe(redisClient),
		},
		JWTMiddleware: middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, cancelApp)
}

func waitForShutdown(app *fiber.App, cancelApp context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	cancelApp()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
