package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amparolegal/amparo-backend/internal/data/db"
	"github.com/amparolegal/amparo-backend/internal/data/repos/audit"
	chatrepo "github.com/amparolegal/amparo-backend/internal/data/repos/chat"
	httphandlers "github.com/amparolegal/amparo-backend/internal/http/handlers"
	"github.com/amparolegal/amparo-backend/internal/http/middleware"
	"github.com/amparolegal/amparo-backend/internal/observability"
	"github.com/amparolegal/amparo-backend/internal/pkg/logger"
	"github.com/amparolegal/amparo-backend/internal/platform/envutil"
	"github.com/amparolegal/amparo-backend/internal/platform/openai"
	"github.com/amparolegal/amparo-backend/internal/platform/pinecone"
	"github.com/amparolegal/amparo-backend/internal/platform/rediscache"
	"github.com/amparolegal/amparo-backend/internal/rag"
	"github.com/amparolegal/amparo-backend/internal/server"
	"github.com/amparolegal/amparo-backend/internal/services"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownTracing := observability.Init(ctx, log, observability.Config{
		ServiceName: envutil.GetEnv("SERVICE_NAME", "amparo-backend"),
		Environment: envutil.GetEnv("ENVIRONMENT", "development"),
		Version:     envutil.GetEnv("SERVICE_VERSION", "dev"),
	})

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("postgres init failed", "error", err)
		os.Exit(1)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Error("postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	pg := postgresService.DB()

	// Repos
	conversationRepo := chatrepo.NewConversationRepo(pg, log)
	messageRepo := chatrepo.NewMessageRepo(pg, log)
	retrievalEventRepo := chatrepo.NewRetrievalEventRepo(pg, log)
	auditRepo := audit.NewRepo(pg, log)

	// Clients
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Error("could not init OpenAI client", "error", err)
		os.Exit(1)
	}
	pineconeClient, err := pinecone.New(log, pinecone.Config{
		APIKey: os.Getenv("PINECONE_API_KEY"),
	})
	if err != nil {
		log.Error("could not init Pinecone client", "error", err)
		os.Exit(1)
	}
	vectorStore, err := pinecone.NewVectorStore(log, pineconeClient)
	if err != nil {
		log.Error("could not init vector store", "error", err)
		os.Exit(1)
	}
	embeddingCache, err := rediscache.NewEmbeddingCache(log)
	if err != nil {
		log.Warn("embedding cache unavailable (continuing without it)", "error", err)
		embeddingCache = nil
	}

	// Core pipeline
	reranker, err := rag.NewReranker(log, openaiClient)
	if err != nil {
		log.Error("could not init reranker", "error", err)
		os.Exit(1)
	}
	var cache rag.EmbeddingCache
	if embeddingCache != nil {
		cache = embeddingCache
	}
	coordinator, err := rag.NewCoordinator(log, openaiClient, vectorStore, cache, reranker)
	if err != nil {
		log.Error("could not init retrieval coordinator", "error", err)
		os.Exit(1)
	}
	chatStore, err := services.NewChatStore(pg, log, conversationRepo, messageRepo, retrievalEventRepo, auditRepo)
	if err != nil {
		log.Error("could not init chat store", "error", err)
		os.Exit(1)
	}
	orchestrator, err := rag.NewOrchestrator(log, openaiClient, coordinator, chatStore, chatStore)
	if err != nil {
		log.Error("could not init orchestrator", "error", err)
		os.Exit(1)
	}

	// Services
	authService, err := services.NewAuthService(log)
	if err != nil {
		log.Error("could not init auth service", "error", err)
		os.Exit(1)
	}
	conversationService, err := services.NewConversationService(pg, log, conversationRepo, messageRepo)
	if err != nil {
		log.Error("could not init conversation service", "error", err)
		os.Exit(1)
	}

	// HTTP
	router := server.NewRouter(server.RouterConfig{
		Log:            log,
		AuthMiddleware: middleware.NewAuthMiddleware(log, authService),
		HealthHandler:  httphandlers.NewHealthHandler(pg),
		SessionHandler: httphandlers.NewSessionHandler(log, conversationService, orchestrator),
	})

	port := envutil.GetEnv("PORT", "8080")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown incomplete", "error", err)
	}
	if embeddingCache != nil {
		_ = embeddingCache.Close()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown incomplete", "error", err)
	}
}
