package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"parley/internal/domain"
	chatModels "parley/internal/domain/models/chat"
	chatRepo "parley/internal/domain/repositories/chat"
	"parley/internal/repository/postgres"
)

// PostgresToolCallRepository implements ToolCallRepository using PostgreSQL
type PostgresToolCallRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewToolCallRepository creates a new PostgresToolCallRepository
func NewToolCallRepository(config *postgres.RepositoryConfig) chatRepo.ToolCallRepository {
	return &PostgresToolCallRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateBatch inserts tool calls one by one in slice order so creation order
// is preserved in the serial id column.
func (r *PostgresToolCallRepository) CreateBatch(ctx context.Context, calls []chatModels.ToolCall) error {
	if len(calls) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			message_id, tool_call_id, tool_name, input_data,
			output, error, status, started_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, r.tables.ToolCalls)

	executor := postgres.GetExecutor(ctx, r.pool)
	for i := range calls {
		call := &calls[i]
		err := executor.QueryRow(ctx, query,
			call.MessageID,
			call.ToolCallID,
			call.ToolName,
			call.InputData, // pgx handles map -> JSONB (nil becomes NULL)
			call.Output,
			call.Error,
			call.Status,
			call.StartedAt,
			call.CompletedAt,
		).Scan(&call.ID)

		if err != nil {
			if postgres.IsPgForeignKeyError(err) {
				return fmt.Errorf("message %s: %w", call.MessageID, domain.ErrNotFound)
			}
			return fmt.Errorf("create tool call %s: %w", call.ToolCallID, err)
		}
	}

	return nil
}

// ListByMessage returns tool calls in creation order.
func (r *PostgresToolCallRepository) ListByMessage(ctx context.Context, messageID string) ([]chatModels.ToolCall, error) {
	query := fmt.Sprintf(`
		SELECT id, message_id, tool_call_id, tool_name, input_data,
		       output, error, status, started_at, completed_at
		FROM %s
		WHERE message_id = $1
		ORDER BY id ASC
	`, r.tables.ToolCalls)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, messageID)
	if err != nil {
		return nil, fmt.Errorf("list tool calls: %w", err)
	}
	defer rows.Close()

	calls := make([]chatModels.ToolCall, 0)
	for rows.Next() {
		var call chatModels.ToolCall
		err := rows.Scan(
			&call.ID,
			&call.MessageID,
			&call.ToolCallID,
			&call.ToolName,
			&call.InputData, // pgx handles JSONB -> map
			&call.Output,
			&call.Error,
			&call.Status,
			&call.StartedAt,
			&call.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan tool call: %w", err)
		}
		calls = append(calls, call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tool calls: %w", err)
	}

	return calls, nil
}
