package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"parley/internal/domain/services/llm"
	"parley/internal/service/agent/tools/external"
)

const (
	webSearchDefaultLimit = 5
	webSearchMaxLimit     = 10
)

// WebSearchTool implements the 'web_search' tool for searching the web via
// external APIs. Uses the SearchClient abstraction to support multiple
// providers (Tavily, Brave, Serper, etc.).
type WebSearchTool struct {
	client external.SearchClient
}

// NewWebSearchTool creates a new WebSearchTool instance.
func NewWebSearchTool(client external.SearchClient) *WebSearchTool {
	return &WebSearchTool{client: client}
}

// Definition implements Tool.
func (t *WebSearchTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "web_search",
		Description: "Searches the web and returns a list of results with title, URL, and snippet.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query",
				},
				"max_results": map[string]interface{}{
					"type":        "integer",
					"description": fmt.Sprintf("Maximum results to return (default: %d, max: %d)", webSearchDefaultLimit, webSearchMaxLimit),
				},
				"topic": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"general", "news", "finance"},
					"description": "Search category (default: general)",
				},
			},
			"required": []string{"query"},
		},
	}
}

// Execute implements Tool.
// Returns {results: [...], query: string, result_count: int}.
func (t *WebSearchTool) Execute(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	query, ok := input["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, errors.New("missing required parameter: query (string)")
	}
	query = strings.TrimSpace(query)

	maxResults := webSearchDefaultLimit
	if maxVal, exists := input["max_results"]; exists {
		if maxFloat, ok := maxVal.(float64); ok {
			maxResults = int(maxFloat)
			if maxResults < 1 {
				maxResults = 1
			} else if maxResults > webSearchMaxLimit {
				maxResults = webSearchMaxLimit
			}
		}
	}

	topic := ""
	if topicVal, exists := input["topic"]; exists {
		if topicStr, ok := topicVal.(string); ok {
			topic = strings.TrimSpace(topicStr)
			if topic != "" && topic != "general" && topic != "news" && topic != "finance" {
				return nil, fmt.Errorf("invalid topic '%s': must be 'general', 'news', or 'finance'", topic)
			}
		}
	}

	response, err := t.client.Search(ctx, query, external.SearchOptions{
		MaxResults: maxResults,
		Topic:      topic,
	})
	if err != nil {
		return nil, fmt.Errorf("web search failed: %w", err)
	}

	// Format results for model consumption
	resultList := make([]map[string]interface{}, len(response.Results))
	for i, result := range response.Results {
		resultMap := map[string]interface{}{
			"title":   result.Title,
			"url":     result.URL,
			"snippet": result.Snippet,
		}
		if result.PublishedAt != nil {
			resultMap["published_at"] = result.PublishedAt.Format("2006-01-02")
		}
		if result.Score > 0 {
			resultMap["score"] = result.Score
		}
		resultList[i] = resultMap
	}

	return map[string]interface{}{
		"results":      resultList,
		"query":        query,
		"result_count": len(resultList),
	}, nil
}
