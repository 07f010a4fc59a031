package chat

import (
	"log/slog"

	"parley/internal/domain"
	agentmodels "parley/internal/domain/models/agent"
	chatmodels "parley/internal/domain/models/chat"
	"parley/internal/service/chat/pricing"
)

// MessageMetadata is the usage accounting attached to an assistant message.
// Every field is nullable: a provider that reports no usage yields a value
// with all fields nil, which persists as NULLs rather than fake zeros.
type MessageMetadata struct {
	Model          *string
	InputTokens    *int
	OutputTokens   *int
	ResponseTimeMS *int
	CostUSD        *float64
}

// HasValidData reports whether any usage field is present.
func (m MessageMetadata) HasValidData() bool {
	return m.Model != nil || m.InputTokens != nil || m.OutputTokens != nil ||
		m.ResponseTimeMS != nil || m.CostUSD != nil
}

// ToNullableMap renders the metadata for API payloads. Every key is present;
// absent values serialize as JSON null.
func (m MessageMetadata) ToNullableMap() map[string]interface{} {
	out := map[string]interface{}{
		"model":            nil,
		"input_tokens":     nil,
		"output_tokens":    nil,
		"response_time_ms": nil,
		"cost_usd":         nil,
	}
	if m.Model != nil {
		out["model"] = *m.Model
	}
	if m.InputTokens != nil {
		out["input_tokens"] = *m.InputTokens
	}
	if m.OutputTokens != nil {
		out["output_tokens"] = *m.OutputTokens
	}
	if m.ResponseTimeMS != nil {
		out["response_time_ms"] = *m.ResponseTimeMS
	}
	if m.CostUSD != nil {
		out["cost_usd"] = *m.CostUSD
	}
	return out
}

// MetadataService turns agent metadata events into persistable message
// metadata, attributing cost from the pricing table.
type MetadataService struct {
	pricing *pricing.Registry
	logger  *slog.Logger
}

// NewMetadataService creates a metadata service.
func NewMetadataService(pricingRegistry *pricing.Registry, logger *slog.Logger) *MetadataService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataService{
		pricing: pricingRegistry,
		logger:  logger,
	}
}

// BuildFromEvent converts a metadata event into message metadata. A nil
// event returns the all-nil value. A field equal to its empty sentinel (zero
// counters, empty model) stays nil and persists as NULL. Negative counters
// are a validation failure; cost attribution never is - an unknown model just
// leaves cost unset.
func (s *MetadataService) BuildFromEvent(ev *agentmodels.MessageMetadataEvent) (MessageMetadata, error) {
	if ev == nil {
		return MessageMetadata{}, nil
	}
	if ev.InputTokens < 0 || ev.OutputTokens < 0 || ev.ResponseTimeMS < 0 {
		return MessageMetadata{}, &domain.ValidationError{
			Message: "usage counters must not be negative",
		}
	}

	var meta MessageMetadata
	if ev.InputTokens > 0 {
		meta.InputTokens = intPtr(ev.InputTokens)
	}
	if ev.OutputTokens > 0 {
		meta.OutputTokens = intPtr(ev.OutputTokens)
	}
	if ev.ResponseTimeMS > 0 {
		meta.ResponseTimeMS = intPtr(ev.ResponseTimeMS)
	}
	if ev.Model != "" {
		model := ev.Model
		meta.Model = &model
	}
	if ev.InputTokens > 0 {
		cost := s.pricing.CalculateCost(ev.Model, ev.InputTokens, ev.OutputTokens)
		switch {
		case cost == nil:
			s.logger.Warn("no pricing entry for model, cost left unset", "model", ev.Model)
		case *cost > 0:
			meta.CostUSD = cost
		}
	}
	return meta, nil
}

// ApplyToMessage copies metadata onto a message before persistence.
func (s *MetadataService) ApplyToMessage(msg *chatmodels.Message, meta MessageMetadata) {
	msg.Model = meta.Model
	msg.InputTokens = meta.InputTokens
	msg.OutputTokens = meta.OutputTokens
	msg.ResponseTimeMS = meta.ResponseTimeMS
	msg.CostUSD = meta.CostUSD
}

func intPtr(v int) *int { return &v }
