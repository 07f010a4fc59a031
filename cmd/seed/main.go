// Command seed creates the database schema and optionally loads demo data.
//
// Usage:
//
//	go run ./cmd/seed                  # schema + demo conversation
//	go run ./cmd/seed --schema-only    # schema only
//	go run ./cmd/seed --drop-tables    # fresh start (blocked in prod)
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"parley/internal/config"
	chatmodels "parley/internal/domain/models/chat"
	"parley/internal/repository/postgres"
	postgresChat "parley/internal/repository/postgres/chat"
)

// demoUserID is a fixed UUID so repeated seeds target the same user.
const demoUserID = "00000000-0000-4000-8000-000000000001"

func main() {
	dropTables := flag.Bool("drop-tables", false, "Drop all tables before seeding (fresh start)")
	schemaOnly := flag.Bool("schema-only", false, "Only set up schema, don't seed demo data")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" && *dropTables {
		log.Fatalf("BLOCKED: cannot run --drop-tables in production environment")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	log.Printf("Seeding database (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)

	if *dropTables {
		log.Println("Dropping all tables...")
		if err := dropAllTables(ctx, pool, tables); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		log.Println("Tables dropped")
	}

	log.Println("Ensuring database schema is up to date...")
	if err := runSchema(ctx, pool, tables, cfg.TablePrefix); err != nil {
		log.Fatalf("Failed to run schema: %v", err)
	}
	log.Println("Schema ready")

	if *schemaOnly {
		log.Println("Schema setup complete (schema-only mode)")
		return
	}

	if err := seedDemoConversation(ctx, pool, tables, logger); err != nil {
		log.Fatalf("Failed to seed demo data: %v", err)
	}
	log.Println("Demo data seeded")
}

// runSchema creates tables if they don't exist
func runSchema(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames, tablePrefix string) error {
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\""); err != nil {
		return err
	}

	createConversations := `
		CREATE TABLE IF NOT EXISTS ` + tables.Conversations + ` (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID NOT NULL,
			title TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := pool.Exec(ctx, createConversations); err != nil {
		return err
	}

	createMessages := `
		CREATE TABLE IF NOT EXISTS ` + tables.Messages + ` (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			conversation_id UUID NOT NULL REFERENCES ` + tables.Conversations + `(id) ON DELETE CASCADE,
			role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
			content TEXT NOT NULL,
			model TEXT,
			input_tokens INTEGER,
			output_tokens INTEGER,
			response_time_ms INTEGER,
			cost_usd DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := pool.Exec(ctx, createMessages); err != nil {
		return err
	}

	createToolCalls := `
		CREATE TABLE IF NOT EXISTS ` + tables.ToolCalls + ` (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			message_id UUID NOT NULL REFERENCES ` + tables.Messages + `(id) ON DELETE CASCADE,
			tool_call_id TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			input_data JSONB,
			output TEXT,
			error TEXT,
			status TEXT NOT NULL CHECK (status IN ('pending', 'success', 'error')),
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			UNIQUE(message_id, tool_call_id)
		)
	`
	if _, err := pool.Exec(ctx, createToolCalls); err != nil {
		return err
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_` + tablePrefix + `conversations_user_updated ON ` + tables.Conversations + `(user_id, updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tablePrefix + `messages_conversation_created ON ` + tables.Messages + `(conversation_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tablePrefix + `tool_calls_message ON ` + tables.ToolCalls + `(message_id)`,
	}
	for _, indexSQL := range indexes {
		if _, err := pool.Exec(ctx, indexSQL); err != nil {
			return err
		}
	}

	return nil
}

// dropAllTables drops everything, children first.
func dropAllTables(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames) error {
	statements := []string{
		`DROP TABLE IF EXISTS ` + tables.ToolCalls + ` CASCADE`,
		`DROP TABLE IF EXISTS ` + tables.Messages + ` CASCADE`,
		`DROP TABLE IF EXISTS ` + tables.Conversations + ` CASCADE`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// seedDemoConversation writes one complete conversation: a user question, an
// assistant answer with usage metadata, and a finished tool call.
func seedDemoConversation(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames, logger *slog.Logger) error {
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	conversationRepo := postgresChat.NewConversationRepository(repoConfig)
	messageRepo := postgresChat.NewMessageRepository(repoConfig)
	toolCallRepo := postgresChat.NewToolCallRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool)

	return txManager.ExecTx(ctx, func(txCtx context.Context) error {
		conv := &chatmodels.Conversation{
			UserID: demoUserID,
			Title:  "What is 127 * 49?",
		}
		if err := conversationRepo.Create(txCtx, conv); err != nil {
			return err
		}

		userMsg := &chatmodels.Message{
			ConversationID: conv.ID,
			Role:           chatmodels.RoleUser,
			Content:        "What is 127 * 49?",
		}
		if err := messageRepo.Create(txCtx, userMsg); err != nil {
			return err
		}

		model := "claude-haiku-4-5-20251001"
		inputTokens := 412
		outputTokens := 38
		responseTime := 1840
		cost := 0.000602
		assistantMsg := &chatmodels.Message{
			ConversationID: conv.ID,
			Role:           chatmodels.RoleAssistant,
			Content:        "127 * 49 = 6223.",
			Model:          &model,
			InputTokens:    &inputTokens,
			OutputTokens:   &outputTokens,
			ResponseTimeMS: &responseTime,
			CostUSD:        &cost,
		}
		if err := messageRepo.Create(txCtx, assistantMsg); err != nil {
			return err
		}

		output := "6223"
		started := time.Now().UTC().Add(-2 * time.Second)
		completed := started.Add(40 * time.Millisecond)
		return toolCallRepo.CreateBatch(txCtx, []chatmodels.ToolCall{
			{
				MessageID:  assistantMsg.ID,
				ToolCallID: "toolu_demo_calc_1",
				ToolName:   "calculator",
				InputData: map[string]interface{}{
					"operation": "multiply",
					"a":         127,
					"b":         49,
				},
				Output:      &output,
				Status:      chatmodels.ToolCallStatusSuccess,
				StartedAt:   started,
				CompletedAt: &completed,
			},
		})
	})
}
