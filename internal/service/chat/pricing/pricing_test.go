package pricing

import (
	"math"
	"testing"
)

func TestNewRegistryLoadsEmbeddedTable(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if len(reg.models) == 0 {
		t.Fatal("embedded pricing table is empty")
	}
}

func TestLookupLongestPrefixWins(t *testing.T) {
	reg := &Registry{models: []ModelPricing{
		{Prefix: "claude-haiku-4", InputPerMTok: 2, OutputPerMTok: 10},
		{Prefix: "claude-haiku-4-5", InputPerMTok: 1, OutputPerMTok: 5},
	}}

	entry := reg.Lookup("claude-haiku-4-5-20251001")
	if entry == nil {
		t.Fatal("expected a match")
	}
	if entry.Prefix != "claude-haiku-4-5" {
		t.Errorf("matched prefix %q, want the longer one", entry.Prefix)
	}
}

func TestLookupUnknownModel(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if entry := reg.Lookup("gpt-4o"); entry != nil {
		t.Errorf("expected no match, got %#v", entry)
	}
}

func TestCalculateCost(t *testing.T) {
	reg := &Registry{models: []ModelPricing{
		{Prefix: "claude-haiku-4-5", InputPerMTok: 1, OutputPerMTok: 5},
	}}

	cost := reg.CalculateCost("claude-haiku-4-5-20251001", 1_000_000, 200_000)
	if cost == nil {
		t.Fatal("expected a cost")
	}
	want := 1.0 + 0.2*5
	if math.Abs(*cost-want) > 1e-9 {
		t.Errorf("cost = %f, want %f", *cost, want)
	}

	if c := reg.CalculateCost("unknown-model", 100, 100); c != nil {
		t.Errorf("cost for unknown model = %v, want nil", c)
	}
}
