package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the assistant service.
// Environment variables are parsed from the ASSISTANT_ prefix.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Persistence. DB_DRIVER "auto" picks postgres when a DSN is present,
	// sqlite otherwise.
	DBDriver    string `envconfig:"DB_DRIVER" default:"auto"`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"assistant.db"`

	// Completion provider (OpenAI-compatible)
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL   string `envconfig:"OPENAI_BASE_URL" default:""`
	CompletionModel string `envconfig:"COMPLETION_MODEL" default:"gpt-4o-mini"`

	// Embeddings
	EmbedProvider string `envconfig:"EMBED_PROVIDER" default:"openai"`
	EmbedModel    string `envconfig:"EMBED_MODEL" default:"text-embedding-3-small"`
	OllamaURL     string `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`

	// Vector index. VECTOR_INDEX "auto" picks weaviate when a URL is present,
	// otherwise the store-backed index.
	VectorIndex string `envconfig:"VECTOR_INDEX" default:"auto"`
	WeaviateURL string `envconfig:"WEAVIATE_URL" default:""`

	// Tool registry and remote tool invocation boundary
	ToolRegistryURL         string `envconfig:"TOOL_REGISTRY_URL" default:""`
	ToolEndpointURL         string `envconfig:"TOOL_ENDPOINT_URL" default:""`
	RegistryCacheTTLSeconds int    `envconfig:"REGISTRY_CACHE_TTL_SECONDS" default:"60"`

	// XMRT ecosystem upstreams
	PoolStatsURL          string `envconfig:"POOL_STATS_URL" default:"https://supportxmr.com/api/pool/stats"`
	PriceFeedURL          string `envconfig:"PRICE_FEED_URL" default:"https://api.coingecko.com/api/v3/simple/price?ids=monero&vs_currencies=usd"`
	MarketCacheTTLSeconds int    `envconfig:"MARKET_CACHE_TTL_SECONDS" default:"30"`

	// Call bounds
	ProviderTimeoutSeconds int `envconfig:"PROVIDER_TIMEOUT_SECONDS" default:"20"`
	ToolTimeoutSeconds     int `envconfig:"TOOL_TIMEOUT_SECONDS" default:"15"`

	// Outbox worker
	OutboxBatchSize       int `envconfig:"OUTBOX_BATCH_SIZE" default:"50"`
	OutboxIntervalSeconds int `envconfig:"OUTBOX_INTERVAL_SECONDS" default:"5"`

	// Health monitoring
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"15"`
}

// ResolveDefaults validates driver selections and derives "auto" values.
func (c *Config) ResolveDefaults() error {
	if c.DBDriver == "" || c.DBDriver == "auto" {
		if c.PostgresDSN != "" {
			c.DBDriver = "postgres"
		} else {
			c.DBDriver = "sqlite"
		}
	}
	allowedDB := map[string]bool{"postgres": true, "sqlite": true}
	if !allowedDB[c.DBDriver] {
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	if c.DBDriver == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("ASSISTANT_POSTGRES_DSN is required when DB_DRIVER=postgres")
	}

	if c.VectorIndex == "" || c.VectorIndex == "auto" {
		if c.WeaviateURL != "" {
			c.VectorIndex = "weaviate"
		} else {
			c.VectorIndex = "store"
		}
	}
	allowedIdx := map[string]bool{"weaviate": true, "store": true}
	if !allowedIdx[c.VectorIndex] {
		return fmt.Errorf("unsupported VECTOR_INDEX: %s", c.VectorIndex)
	}

	allowedEmb := map[string]bool{"openai": true, "ollama": true, "none": true}
	if !allowedEmb[c.EmbedProvider] {
		return fmt.Errorf("unsupported EMBED_PROVIDER: %s", c.EmbedProvider)
	}
	return nil
}

// New creates a new Config by parsing environment variables.
// Variables are prefixed with ASSISTANT_, e.g. ASSISTANT_HTTP_PORT.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("ASSISTANT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
