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

	"github.com/gradewise/gradewise-api/internal/config"
	"github.com/gradewise/gradewise-api/internal/database"
	"github.com/gradewise/gradewise-api/internal/embedding"
	"github.com/gradewise/gradewise-api/internal/evaluation"
	"github.com/gradewise/gradewise-api/internal/extract"
	"github.com/gradewise/gradewise-api/internal/grading"
	"github.com/gradewise/gradewise-api/internal/handler"
	"github.com/gradewise/gradewise-api/internal/middleware"
	"github.com/gradewise/gradewise-api/internal/models"
	"github.com/gradewise/gradewise-api/internal/orchestrator"
	"github.com/gradewise/gradewise-api/internal/repository"
	"github.com/gradewise/gradewise-api/internal/router"
	"github.com/gradewise/gradewise-api/internal/source"
	"github.com/gradewise/gradewise-api/pkg/ai"
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
		&models.Student{},
		&models.Assignment{},
		&models.Submission{},
		&models.AnswerKey{},
		&models.AnswerKeyQuestion{},
		&models.GradingTask{},
		&models.GradeResult{},
		&models.QuestionResult{},
		&models.GradeHistory{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	var aiService ai.Service
	var embedder embedding.Embedder
	if cfg.OpenAIAPIKey != "" {
		openAI, err := ai.NewOpenAIService(ai.OpenAIConfig{
			APIKey:         cfg.OpenAIAPIKey,
			ChatModel:      cfg.ChatModel,
			EmbeddingModel: cfg.EmbeddingModel,
			MaxTokens:      cfg.LLMMaxTokens,
			Temperature:    cfg.LLMTemperature,
			Logger:         logger,
		})
		if err != nil {
			log.Fatalf("failed to create openai service: %v", err)
		}
		limited := ai.NewRateLimited(openAI, cfg.LLMRequestsPerSecond, cfg.LLMBurst)
		aiService = ai.NewRetrying(limited, cfg.LLMMaxRetries, cfg.LLMRetryBaseDelay)
		embedder = embedding.NewServiceEmbedder(aiService)
	} else {
		logger.Warn().Msg("no openai api key configured, using deterministic fallbacks only")
		embedder = embedding.NewHashingEmbedder(0)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	submissionRepo := repository.NewSubmissionRepository(db)
	taskRepo := repository.NewGradingTaskRepository(db)
	keyRepo := repository.NewAnswerKeyRepository(db)
	resultRepo := repository.NewGradeResultRepository(db)
	artifactStore := repository.NewArtifactStore(redisClient)

	decomposer := evaluation.NewDecomposer(aiService, cfg.MinFragmentLength, logger)
	aligner := evaluation.NewAligner(aiService, cfg.MinFragmentLength, logger)
	rubric := evaluation.NewRubricScorer(aiService, logger)
	scorer := evaluation.NewScorer(embedder, aligner, rubric, logger)

	classifier := grading.NewWeightedClassifier(cfg.LexicalWeight, cfg.EmbeddingWeight, cfg.StructureWeight)
	predictor := grading.NewPredictor(classifier, grading.Options{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		BorderlineLow:       cfg.BorderlineLow,
		BorderlineHigh:      cfg.BorderlineHigh,
		NumericTolerance:    cfg.NumericTolerance,
	}, logger)

	orch := orchestrator.New(
		submissionRepo,
		taskRepo,
		keyRepo,
		resultRepo,
		artifactStore,
		source.NewMemorySource(),
		extract.NewJSONExtractor(),
		decomposer,
		scorer,
		predictor,
		orchestrator.Options{
			Concurrency:          cfg.WorkerConcurrency,
			Staleness:            cfg.TaskStaleness,
			AutoTriggerThreshold: cfg.AutoTriggerThreshold,
		},
		logger,
	)

	gradingHandler := handler.NewGradingHandler(orch, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		GradingHandler: gradingHandler,
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
