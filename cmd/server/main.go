package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"parley/internal/auth"
	"parley/internal/config"
	"parley/internal/handler"
	"parley/internal/handler/sse"
	"parley/internal/middleware"
	"parley/internal/repository/postgres"
	postgresChat "parley/internal/repository/postgres/chat"
	serviceAgent "parley/internal/service/agent"
	"parley/internal/service/agent/tools"
	"parley/internal/service/agent/tools/external"
	serviceChat "parley/internal/service/chat"
	"parley/internal/service/chat/pricing"
	serviceLLM "parley/internal/service/llm"
)

const systemPrompt = "You are a helpful assistant. Use the available tools when they help answer the question, and keep answers concise."

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	// JWT verifier against the auth service's JWKS endpoint
	jwtVerifier, err := auth.NewJWTVerifier(cfg.JWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	// Create pgx connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Create repositories
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: postgres.NewTableNames(cfg.TablePrefix),
		Logger: logger,
	}
	conversationRepo := postgresChat.NewConversationRepository(repoConfig)
	messageRepo := postgresChat.NewMessageRepository(repoConfig)
	toolCallRepo := postgresChat.NewToolCallRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool)

	// LLM provider for the configured default model
	providerFactory := serviceLLM.NewProviderFactory(cfg)
	provider, err := providerFactory.ProviderForModel(cfg.DefaultModel)
	if err != nil {
		log.Fatalf("Failed to setup LLM provider: %v", err)
	}
	logger.Info("llm provider ready", "provider", provider.Name(), "model", cfg.DefaultModel)

	// Tool registry
	registry := tools.NewRegistry()
	registry.Register(tools.NewCalculatorTool())
	registry.Register(tools.NewClockTool())
	if cfg.TavilyAPIKey != "" {
		registry.Register(tools.NewWebSearchTool(external.NewTavilyClient(cfg.TavilyAPIKey)))
		logger.Info("web search tool enabled")
	}

	// Agent driver with retry policy from config
	prompt := systemPrompt
	driver, err := serviceAgent.NewDriver(provider, registry, cfg.DefaultModel, &prompt, cfg.Provider, logger)
	if err != nil {
		log.Fatalf("Failed to create agent driver: %v", err)
	}

	// Pricing and metadata
	pricingRegistry, err := pricing.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to load pricing table: %v", err)
	}
	metadataService := serviceChat.NewMetadataService(pricingRegistry, logger)

	// Conversation service
	conversationService := serviceChat.NewService(
		conversationRepo,
		messageRepo,
		toolCallRepo,
		txManager,
		driver,
		metadataService,
		logger,
	)

	// Handlers
	conversationHandler := handler.NewConversationHandler(conversationService, sse.DefaultConfig(), logger)
	healthHandler := handler.NewHealthHandler(pool)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthHandler.Check)

	mux.HandleFunc("POST /api/conversations", conversationHandler.CreateConversation)
	mux.HandleFunc("GET /api/conversations", conversationHandler.ListConversations)
	mux.HandleFunc("GET /api/conversations/{id}", conversationHandler.GetConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", conversationHandler.DeleteConversation)
	mux.HandleFunc("POST /api/conversations/{id}/messages", conversationHandler.SendMessage)

	// Build middleware chain
	var httpHandler http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS -> Recovery -> Auth -> Routes
	httpHandler = middleware.AuthMiddleware(jwtVerifier, logger)(httpHandler)
	httpHandler = middleware.Recovery(logger)(httpHandler)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID"},
		AllowCredentials: true,
	})
	httpHandler = corsHandler.Handler(httpHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
	}

	// Shut down on SIGINT/SIGTERM, letting in-flight turns finalize.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}()

	logger.Info("server listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
	logger.Info("server stopped")
}
