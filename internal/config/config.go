package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"parley/internal/domain"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string
	AuthURL     string
	JWKSURL     string // Constructed from AuthURL + /auth/v1/.well-known/jwks.json
	CORSOrigins string
	TablePrefix string
	// LLM Configuration
	AnthropicAPIKey string
	DefaultModel    string
	Provider        ProviderConfig
	// Tool configuration
	TavilyAPIKey string
	// Debug flags
	Debug bool
}

// ProviderConfig holds the retry/timeout policy applied to every provider
// call. Invalid values are rejected at construction, never at call time.
type ProviderConfig struct {
	// MaxRetries is how many times a failed attempt is retried.
	// Total attempts = MaxRetries + 1.
	MaxRetries int
	// RetryDelay is the exponential backoff base delay.
	RetryDelay time.Duration
	// MaxTokens caps generated output per model call.
	MaxTokens int
	// MaxToolRounds caps tool-execution rounds within one turn.
	MaxToolRounds int
}

// Validate checks the provider config invariants.
func (c ProviderConfig) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.MaxRetries, validation.Min(0)),
		validation.Field(&c.RetryDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxTokens, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxToolRounds, validation.Required, validation.Min(1)),
	)
	if err != nil {
		return &domain.ValidationError{Message: fmt.Sprintf("invalid provider config: %v", err)}
	}
	return nil
}

// Load reads configuration from the environment. Provider config violations
// are returned as a typed validation error.
func Load() (*Config, error) {
	env := getEnv("ENVIRONMENT", "dev")
	authURL := getEnv("AUTH_URL", "")

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		DatabaseURL: getEnv("DATABASE_URL", ""),
		AuthURL:     authURL,
		JWKSURL:     authURL + "/auth/v1/.well-known/jwks.json",
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix: getTablePrefix(env),
		// LLM Configuration
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		DefaultModel:    getEnv("DEFAULT_MODEL", "claude-haiku-4-5-20251001"),
		Provider: ProviderConfig{
			MaxRetries:    getEnvInt("PROVIDER_MAX_RETRIES", 3),
			RetryDelay:    time.Duration(getEnvFloat("PROVIDER_RETRY_DELAY_SECONDS", 1.0) * float64(time.Second)),
			MaxTokens:     getEnvInt("PROVIDER_MAX_TOKENS", 4096),
			MaxToolRounds: getEnvInt("PROVIDER_MAX_TOOL_ROUNDS", 5),
		},
		TavilyAPIKey: getEnv("TAVILY_API_KEY", ""),
		// Debug defaults to true in dev/test, false in production
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}

	if err := cfg.Provider.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
