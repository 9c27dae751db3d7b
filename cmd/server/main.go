package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"datalens-core/internal/adapter/api"
	"datalens-core/internal/adapter/client"
	"datalens-core/internal/adapter/store"
	"datalens-core/internal/usecase"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"google.golang.org/genai"
)

func main() {
	if err := godotenv.Load(".env.dev"); err != nil {
		log.Println("Warning: .env.dev file not found, using system environment variables")
	}
	ctx := context.Background()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	assistantBaseURL := os.Getenv("ASSISTANT_BASE_URL")
	assistantAPIKey := os.Getenv("ASSISTANT_API_KEY")
	assistantModel := os.Getenv("ASSISTANT_MODEL")
	redisAddr := os.Getenv("REDIS_ADDR")
	qdrantHost := os.Getenv("QDRANT_HOST")
	qdrantPortStr := os.Getenv("QDRANT_PORT")
	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	location := os.Getenv("GOOGLE_CLOUD_LOCATION")
	sessionTTLStr := os.Getenv("SESSION_TTL_MINUTES")

	qdrantPort, _ := strconv.Atoi(qdrantPortStr)
	sessionTTL := 30 * time.Minute
	if mins, err := strconv.Atoi(sessionTTLStr); err == nil && mins > 0 {
		sessionTTL = time.Duration(mins) * time.Minute
	}
	if assistantModel == "" {
		assistantModel = "gpt-4o"
	}

	// Redis for the history document store
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Qdrant for the semantic answer cache
	qClient, err := qdrant.NewClient(&qdrant.Config{
		Host: qdrantHost,
		Port: qdrantPort,
	})
	if err != nil {
		log.Fatalf("failed to connect to qdrant: %v", err)
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		log.Fatalf("failed to init genai client: %v", err)
	}
	embedder := client.NewQuestionEmbedder(genaiClient, os.Getenv("EMBEDDING_MODEL"), logger)

	transport := client.NewTransport(client.DefaultTransportConfig(assistantBaseURL, assistantAPIKey), logger)
	assistantAPI := client.NewAssistantClient(transport, assistantModel)

	answerCache := store.NewQdrantAnswerCache(qClient, os.Getenv("QDRANT_COLLECTION"), logger)
	if err := answerCache.InitCollection(ctx, 768); err != nil {
		log.Fatalf("failed to init qdrant collection: %v", err)
	}
	historyStore := store.NewRedisHistoryStore(rdb, 0)

	session := usecase.NewSessionCache(assistantAPI, sessionTTL, logger)
	poller := usecase.NewRunPoller(assistantAPI, usecase.DefaultPollPolicy(), logger)
	parser := usecase.NewChartParser(logger)

	// Inject the adapters into the orchestration layer
	orchestrator := usecase.NewOrchestrator(assistantAPI, session, poller, parser, embedder, answerCache, transport, logger)

	go func() {
		warmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := embedder.CreateEmbedding(warmCtx, "warmup"); err != nil {
			logger.Warn("embedder warm-up failed", "error", err)
		} else {
			logger.Info("embedder pre-warm complete")
		}
	}()

	// Initialize API layer (delivery layer)
	app := fiber.New(fiber.Config{
		AppName:   "Datalens Analysis Gateway",
		BodyLimit: 32 * 1024 * 1024, // uploaded datasets
	})

	handler := api.NewAnalysisHandler(orchestrator, historyStore)
	api.SetupRouter(app, handler)

	// Start server
	log.Printf("Datalens Analysis Gateway running on port %s", os.Getenv("PORT"))
	log.Fatal(app.Listen(":" + os.Getenv("PORT")))
}
