// Package pricing maps model identifiers to token prices. The table is
// embedded so cost attribution works without network access or extra
// deployment files.
package pricing

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed pricing.yaml
var pricingFile []byte

// ModelPricing is the USD price per million tokens for one model family.
type ModelPricing struct {
	Prefix        string  `yaml:"prefix"`
	InputPerMTok  float64 `yaml:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok"`
}

type pricingTable struct {
	Models []ModelPricing `yaml:"models"`
}

// Registry resolves model names to pricing by longest matching prefix.
type Registry struct {
	models []ModelPricing
}

// NewRegistry loads the embedded pricing table.
func NewRegistry() (*Registry, error) {
	var table pricingTable
	if err := yaml.Unmarshal(pricingFile, &table); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pricing table: %w", err)
	}
	return &Registry{models: table.Models}, nil
}

// Lookup returns the pricing entry for a model, or nil when no prefix
// matches.
func (r *Registry) Lookup(model string) *ModelPricing {
	var best *ModelPricing
	for i := range r.models {
		entry := &r.models[i]
		if !strings.HasPrefix(model, entry.Prefix) {
			continue
		}
		if best == nil || len(entry.Prefix) > len(best.Prefix) {
			best = entry
		}
	}
	return best
}

// CalculateCost returns the USD cost of a call, or nil when the model is
// unknown. An unknown model is not an error - cost attribution is best
// effort and must never fail a turn.
func (r *Registry) CalculateCost(model string, inputTokens, outputTokens int) *float64 {
	entry := r.Lookup(model)
	if entry == nil {
		return nil
	}
	cost := float64(inputTokens)/1e6*entry.InputPerMTok +
		float64(outputTokens)/1e6*entry.OutputPerMTok
	return &cost
}
