// Package config provides configuration management for switchboard.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultPort is the default HTTP port for the worker service.
	DefaultPort = 38180

	// DefaultSecondaryConfidenceThreshold is the routing confidence below
	// which a secondary route is executed and merged. Product-tuned; keep
	// overridable rather than re-derived.
	DefaultSecondaryConfidenceThreshold = 0.7

	// DefaultSimilarityThreshold is the minimum cosine similarity for a
	// passage to enter the semantic candidate set.
	DefaultSimilarityThreshold = 0.5

	// DefaultSemanticWeight scales the similarity component of the hybrid
	// score.
	DefaultSemanticWeight = 0.5

	// DefaultKeywordBonus is the flat bonus added when a passage has any
	// keyword match. Binary on purpose: raw rank values distort scores when
	// corpora differ greatly in size.
	DefaultKeywordBonus = 0.5

	// DefaultMatchCount is the number of passages hybrid search returns.
	DefaultMatchCount = 10

	// DefaultRowLimit caps structured-query results when the route names no
	// limit.
	DefaultRowLimit = 50

	// DefaultContextTokenBudget bounds the assembled retrieval context.
	DefaultContextTokenBudget = 3000

	// DefaultMaxResponseMs is the per-request execution budget when the
	// caller names none.
	DefaultMaxResponseMs = 5000

	// MaxResponseCeilingMs caps caller-requested budgets.
	MaxResponseCeilingMs = 30000

	// DefaultCacheTTLSeconds is the result cache entry lifetime.
	DefaultCacheTTLSeconds = 300

	// DefaultCacheMaxEntries bounds the result cache size.
	DefaultCacheMaxEntries = 500

	// DefaultEmbeddingModel is the embedding model requested from the
	// embedding endpoint.
	DefaultEmbeddingModel = "text-embedding-3-small"

	// DefaultEmbeddingDim is the embedding dimensionality.
	DefaultEmbeddingDim = 1536
)

// Config holds the application configuration.
type Config struct {
	// Worker settings
	Port     int    `json:"port"`
	Host     string `json:"host"`
	LogLevel string `json:"log_level"`

	// Storage settings. DatabaseURL selects PostgreSQL; when empty the
	// worker falls back to the embedded SQLite store under DataDir.
	DatabaseURL string `json:"database_url"`
	DataDir     string `json:"data_dir"`
	MaxConns    int    `json:"max_conns"`

	// Embedding settings
	EmbeddingEndpoint string `json:"embedding_endpoint"`
	EmbeddingModel    string `json:"embedding_model"`
	EmbeddingDim      int    `json:"embedding_dim"`

	// Routing settings
	SecondaryConfidenceThreshold float64 `json:"secondary_confidence_threshold"`

	// Hybrid search settings
	SimilarityThreshold float64 `json:"similarity_threshold"`
	SemanticWeight      float64 `json:"semantic_weight"`
	KeywordBonus        float64 `json:"keyword_bonus"`
	DefaultMatchCount   int     `json:"default_match_count"`

	// Execution settings
	DefaultRowLimit      int   `json:"default_row_limit"`
	ContextTokenBudget   int   `json:"context_token_budget"`
	DefaultMaxResponseMs int64 `json:"default_max_response_ms"`
	ResponseCeilingMs    int64 `json:"response_ceiling_ms"`

	// Result cache settings
	CacheTTLSeconds int `json:"cache_ttl_seconds"`
	CacheMaxEntries int `json:"cache_max_entries"`

	// Rate limiting settings
	RateLimitPerSecond float64 `json:"rate_limit_per_second"`
	RateLimitBurst     int     `json:"rate_limit_burst"`
}

// DefaultDataDir returns the data directory path (~/.switchboard).
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".switchboard")
}

// DBPath returns the embedded database file path.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "switchboard.db")
}

// SettingsPath returns the settings file path under dataDir.
func SettingsPath(dataDir string) string {
	return filepath.Join(dataDir, "settings.json")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0750)
}

// CacheTTL returns the result cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// DefaultBudget returns the default execution budget as a duration.
func (c *Config) DefaultBudget() time.Duration {
	return time.Duration(c.DefaultMaxResponseMs) * time.Millisecond
}

// BudgetCeiling returns the maximum accepted execution budget.
func (c *Config) BudgetCeiling() time.Duration {
	return time.Duration(c.ResponseCeilingMs) * time.Millisecond
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Port:                         DefaultPort,
		Host:                         "127.0.0.1",
		LogLevel:                     "info",
		DataDir:                      DefaultDataDir(),
		MaxConns:                     4,
		EmbeddingModel:               DefaultEmbeddingModel,
		EmbeddingDim:                 DefaultEmbeddingDim,
		SecondaryConfidenceThreshold: DefaultSecondaryConfidenceThreshold,
		SimilarityThreshold:          DefaultSimilarityThreshold,
		SemanticWeight:               DefaultSemanticWeight,
		KeywordBonus:                 DefaultKeywordBonus,
		DefaultMatchCount:            DefaultMatchCount,
		DefaultRowLimit:              DefaultRowLimit,
		ContextTokenBudget:           DefaultContextTokenBudget,
		DefaultMaxResponseMs:         DefaultMaxResponseMs,
		ResponseCeilingMs:            MaxResponseCeilingMs,
		CacheTTLSeconds:              DefaultCacheTTLSeconds,
		CacheMaxEntries:              DefaultCacheMaxEntries,
		RateLimitPerSecond:           10,
		RateLimitBurst:               20,
	}
}

// Load loads configuration from the settings file under dataDir, merging
// with defaults. A missing or unparseable settings file yields defaults.
// DATABASE_URL in the environment overrides the settings value.
func Load(dataDir string) (*Config, error) {
	cfg := Default()
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	data, err := os.ReadFile(SettingsPath(cfg.DataDir))
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}

	// Load settings into a map to preserve unknown fields
	var settings map[string]interface{}
	if err := json.Unmarshal(data, &settings); err != nil {
		applyEnv(cfg)
		return cfg, nil // Return defaults on parse error
	}

	if v, ok := settings["SWITCHBOARD_PORT"].(float64); ok && v > 0 {
		cfg.Port = int(v)
	}
	if v, ok := settings["SWITCHBOARD_HOST"].(string); ok && v != "" {
		cfg.Host = v
	}
	if v, ok := settings["SWITCHBOARD_LOG_LEVEL"].(string); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := settings["SWITCHBOARD_DATABASE_URL"].(string); ok && v != "" {
		cfg.DatabaseURL = v
	}
	if v, ok := settings["SWITCHBOARD_MAX_CONNS"].(float64); ok && v > 0 {
		cfg.MaxConns = int(v)
	}
	if v, ok := settings["SWITCHBOARD_EMBEDDING_ENDPOINT"].(string); ok && v != "" {
		cfg.EmbeddingEndpoint = v
	}
	if v, ok := settings["SWITCHBOARD_EMBEDDING_MODEL"].(string); ok && v != "" {
		cfg.EmbeddingModel = v
	}
	if v, ok := settings["SWITCHBOARD_EMBEDDING_DIM"].(float64); ok && v > 0 {
		cfg.EmbeddingDim = int(v)
	}
	if v, ok := settings["SWITCHBOARD_SECONDARY_CONFIDENCE_THRESHOLD"].(float64); ok && v >= 0 && v <= 1 {
		cfg.SecondaryConfidenceThreshold = v
	}
	if v, ok := settings["SWITCHBOARD_SIMILARITY_THRESHOLD"].(float64); ok && v >= 0 && v <= 1 {
		cfg.SimilarityThreshold = v
	}
	if v, ok := settings["SWITCHBOARD_SEMANTIC_WEIGHT"].(float64); ok && v >= 0 && v <= 1 {
		cfg.SemanticWeight = v
	}
	if v, ok := settings["SWITCHBOARD_KEYWORD_BONUS"].(float64); ok && v >= 0 && v <= 1 {
		cfg.KeywordBonus = v
	}
	if v, ok := settings["SWITCHBOARD_DEFAULT_MATCH_COUNT"].(float64); ok && v > 0 {
		cfg.DefaultMatchCount = int(v)
	}
	if v, ok := settings["SWITCHBOARD_DEFAULT_ROW_LIMIT"].(float64); ok && v > 0 {
		cfg.DefaultRowLimit = int(v)
	}
	if v, ok := settings["SWITCHBOARD_CONTEXT_TOKEN_BUDGET"].(float64); ok && v > 0 {
		cfg.ContextTokenBudget = int(v)
	}
	if v, ok := settings["SWITCHBOARD_DEFAULT_MAX_RESPONSE_MS"].(float64); ok && v > 0 {
		cfg.DefaultMaxResponseMs = int64(v)
	}
	if v, ok := settings["SWITCHBOARD_RESPONSE_CEILING_MS"].(float64); ok && v > 0 {
		cfg.ResponseCeilingMs = int64(v)
	}
	if v, ok := settings["SWITCHBOARD_CACHE_TTL_SECONDS"].(float64); ok && v > 0 {
		cfg.CacheTTLSeconds = int(v)
	}
	if v, ok := settings["SWITCHBOARD_CACHE_MAX_ENTRIES"].(float64); ok && v > 0 {
		cfg.CacheMaxEntries = int(v)
	}
	if v, ok := settings["SWITCHBOARD_RATE_LIMIT_PER_SECOND"].(float64); ok && v > 0 {
		cfg.RateLimitPerSecond = v
	}
	if v, ok := settings["SWITCHBOARD_RATE_LIMIT_BURST"].(float64); ok && v > 0 {
		cfg.RateLimitBurst = int(v)
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv applies environment overrides that must win over settings.
func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("SWITCHBOARD_EMBEDDING_ENDPOINT"); v != "" {
		cfg.EmbeddingEndpoint = v
	}
}

// ApplyLogLevel sets the global log level from its string form. An unknown
// level is ignored rather than failing startup.
func ApplyLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("Unknown log level, keeping current")
		return
	}
	zerolog.SetGlobalLevel(lvl)
}
