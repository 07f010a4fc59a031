package chat

import (
	"errors"
	"log/slog"
	"math"
	"testing"

	"parley/internal/domain"
	agentmodels "parley/internal/domain/models/agent"
	chatmodels "parley/internal/domain/models/chat"
	"parley/internal/service/chat/pricing"
)

func newMetadataService(t *testing.T) *MetadataService {
	t.Helper()
	reg, err := pricing.NewRegistry()
	if err != nil {
		t.Fatalf("pricing.NewRegistry: %v", err)
	}
	return NewMetadataService(reg, slog.Default())
}

func TestBuildFromEventNil(t *testing.T) {
	svc := newMetadataService(t)

	meta, err := svc.BuildFromEvent(nil)
	if err != nil {
		t.Fatalf("BuildFromEvent(nil): %v", err)
	}

	if meta.HasValidData() {
		t.Errorf("metadata from nil event = %#v, want empty", meta)
	}
}

func TestBuildFromEventZeroSentinelsStayNil(t *testing.T) {
	svc := newMetadataService(t)

	meta, err := svc.BuildFromEvent(&agentmodels.MessageMetadataEvent{})
	if err != nil {
		t.Fatalf("BuildFromEvent: %v", err)
	}

	if meta.HasValidData() {
		t.Errorf("all-zero event produced metadata %#v, want all nil", meta)
	}
	for key, v := range meta.ToNullableMap() {
		if v != nil {
			t.Errorf("key %q = %v, want nil", key, v)
		}
	}
}

func TestBuildFromEventNegativeCountersFail(t *testing.T) {
	svc := newMetadataService(t)

	_, err := svc.BuildFromEvent(&agentmodels.MessageMetadataEvent{InputTokens: -1})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("error = %v, want validation error", err)
	}
}

func TestBuildFromEventPopulated(t *testing.T) {
	svc := newMetadataService(t)

	meta, err := svc.BuildFromEvent(&agentmodels.MessageMetadataEvent{
		InputTokens:    1_000_000,
		OutputTokens:   1_000_000,
		Model:          "claude-haiku-4-5-20251001",
		ResponseTimeMS: 1840,
	})
	if err != nil {
		t.Fatalf("BuildFromEvent: %v", err)
	}

	if meta.Model == nil || *meta.Model != "claude-haiku-4-5-20251001" {
		t.Errorf("model = %v", meta.Model)
	}
	if meta.InputTokens == nil || *meta.InputTokens != 1_000_000 {
		t.Errorf("input tokens = %v", meta.InputTokens)
	}
	if meta.OutputTokens == nil || *meta.OutputTokens != 1_000_000 {
		t.Errorf("output tokens = %v", meta.OutputTokens)
	}
	if meta.ResponseTimeMS == nil || *meta.ResponseTimeMS != 1840 {
		t.Errorf("response time = %v", meta.ResponseTimeMS)
	}
	if meta.CostUSD == nil {
		t.Fatal("expected a cost for a priced model")
	}
	// 1M input + 1M output at the haiku 4.5 rate.
	if math.Abs(*meta.CostUSD-6.0) > 1e-9 {
		t.Errorf("cost = %f, want 6.0", *meta.CostUSD)
	}
	if !meta.HasValidData() {
		t.Error("HasValidData = false, want true")
	}
}

func TestBuildFromEventUnknownModelLeavesCostNil(t *testing.T) {
	svc := newMetadataService(t)

	meta, err := svc.BuildFromEvent(&agentmodels.MessageMetadataEvent{
		InputTokens:  100,
		OutputTokens: 50,
		Model:        "mystery-model-1",
	})
	if err != nil {
		t.Fatalf("BuildFromEvent: %v", err)
	}

	if meta.CostUSD != nil {
		t.Errorf("cost = %v, want nil for unpriced model", meta.CostUSD)
	}
	if meta.Model == nil || *meta.Model != "mystery-model-1" {
		t.Errorf("model = %v, want preserved", meta.Model)
	}
}

func TestBuildFromEventEmptyModel(t *testing.T) {
	svc := newMetadataService(t)

	meta, err := svc.BuildFromEvent(&agentmodels.MessageMetadataEvent{
		InputTokens:  10,
		OutputTokens: 5,
	})
	if err != nil {
		t.Fatalf("BuildFromEvent: %v", err)
	}

	if meta.Model != nil {
		t.Errorf("model = %v, want nil", meta.Model)
	}
	if meta.CostUSD != nil {
		t.Errorf("cost = %v, want nil without a model", meta.CostUSD)
	}
	if meta.InputTokens == nil || *meta.InputTokens != 10 {
		t.Errorf("input tokens = %v", meta.InputTokens)
	}
}

func TestToNullableMapAllKeysPresent(t *testing.T) {
	out := MessageMetadata{}.ToNullableMap()

	keys := []string{"model", "input_tokens", "output_tokens", "response_time_ms", "cost_usd"}
	for _, key := range keys {
		v, ok := out[key]
		if !ok {
			t.Errorf("key %q missing", key)
			continue
		}
		if v != nil {
			t.Errorf("key %q = %v, want nil", key, v)
		}
	}

	model := "m"
	tokens := 7
	populated := MessageMetadata{Model: &model, InputTokens: &tokens}.ToNullableMap()
	if populated["model"] != "m" || populated["input_tokens"] != 7 {
		t.Errorf("populated map = %#v", populated)
	}
	if populated["cost_usd"] != nil {
		t.Errorf("cost_usd = %v, want nil", populated["cost_usd"])
	}
}

func TestApplyToMessage(t *testing.T) {
	svc := newMetadataService(t)
	model := "m"
	in, out, ms := 1, 2, 3
	cost := 0.5

	var msg chatmodels.Message
	svc.ApplyToMessage(&msg, MessageMetadata{
		Model:          &model,
		InputTokens:    &in,
		OutputTokens:   &out,
		ResponseTimeMS: &ms,
		CostUSD:        &cost,
	})

	if msg.Model != &model || msg.InputTokens != &in || msg.OutputTokens != &out ||
		msg.ResponseTimeMS != &ms || msg.CostUSD != &cost {
		t.Errorf("message metadata not applied: %#v", msg)
	}
}
