package model

import "time"

// Config is the explicit configuration object handed to the orchestrator at
// construction. There are no process-wide flags; every toggle lives here.
type Config struct {
	Agent    AgentConfig    `yaml:"agent"`
	Triage   TriageConfig   `yaml:"triage"`
	Extract  ExtractConfig  `yaml:"extract"`
	Verify   VerifyConfig   `yaml:"verify"`
	Trust    TrustConfig    `yaml:"trust"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Store    StoreConfig    `yaml:"store"`
	Cache    CacheConfig    `yaml:"cache"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Comments CommentsConfig `yaml:"comments"`
}

// AgentConfig configures the generative agent providers.
type AgentConfig struct {
	Provider    string  `yaml:"provider"`     // "openai", "ollama", "" (disabled)
	Model       string  `yaml:"model"`        // Text model
	VisionModel string  `yaml:"vision_model"` // Used when content carries an image
	SearchModel string  `yaml:"search_model"` // Web-search-augmented verification model
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Timeout     int     `yaml:"timeout"` // seconds
	MaxTokens   int     `yaml:"max_tokens"`
	RatePerSec  float64 `yaml:"rate_per_sec"` // Agent call rate limit, per provider
	RateBurst   int     `yaml:"rate_burst"`
}

// TriageConfig controls the risk triage thresholds.
type TriageConfig struct {
	VerifyThreshold float64 `yaml:"verify_threshold"` // Above: always verify
	SkipThreshold   float64 `yaml:"skip_threshold"`   // Below (and no image): skip
	OverrideFloor   float64 `yaml:"override_floor"`   // Gate "skip" overridden back to verify at/above this heuristic risk
	UseGate         bool    `yaml:"use_gate"`         // Consult the LLM gate in the middle band
}

// ExtractConfig controls claim extraction.
type ExtractConfig struct {
	MaxClaims         int     `yaml:"max_claims"`
	FallbackSentences int     `yaml:"fallback_sentences"` // Sentences kept by the heuristic fallback
	FallbackConf      float64 `yaml:"fallback_confidence"`
}

// VerifyConfig controls fact-check verification.
type VerifyConfig struct {
	MaxConcurrent   int           `yaml:"max_concurrent"` // Per-claim fan-out cap
	MaxAttempts     int           `yaml:"max_attempts"`   // Transient-error retry ceiling
	BaseBackoff     time.Duration `yaml:"base_backoff"`
	SimilarityFloor float64       `yaml:"similarity_floor"` // Quote-reuse Jaccard floor
	ValidateLinks   bool          `yaml:"validate_links"`   // HEAD-check evidence URLs
	LinkTimeout     time.Duration `yaml:"link_timeout"`
	LinkWorkers     int           `yaml:"link_workers"`
	UserAgent       string        `yaml:"user_agent"`
	TrustedDomains  []string      `yaml:"trusted_domains"`
	BlockedDomains  []string      `yaml:"blocked_domains"`
}

// TrustConfig controls the trust score computation.
type TrustConfig struct {
	Baseline   float64 `yaml:"baseline"`    // Initial score for new users
	HistoryCap int     `yaml:"history_cap"` // Max retained history entries
}

// LedgerConfig controls contribution ledger aggregation.
type LedgerConfig struct {
	WindowDays int `yaml:"window_days"` // Rolling aggregate window
}

// StoreConfig configures the document store backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	Path   string `yaml:"path"`   // SQLite database path
}

// CacheConfig configures the verdict cache.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Dir       string        `yaml:"dir"` // Disk layer; empty disables it
	MemoryTTL time.Duration `yaml:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl"`
}

// SweepConfig controls the periodic retry sweep over stalled content.
type SweepConfig struct {
	Schedule    string        `yaml:"schedule"`     // cron expression
	StaleAfter  time.Duration `yaml:"stale_after"`  // in_progress older than this is eligible
	Concurrency int           `yaml:"concurrency"`  // Fan-out width for reprocessing
	BatchLimit  int           `yaml:"batch_limit"`  // Max items per sweep run
}

// CommentsConfig bounds the reply tree.
type CommentsConfig struct {
	MaxDepth int `yaml:"max_depth"`
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			VisionModel: "gpt-4o",
			SearchModel: "gpt-4o-search-preview",
			Timeout:     30,
			MaxTokens:   1500,
			RatePerSec:  5,
			RateBurst:   10,
		},
		Triage: TriageConfig{
			VerifyThreshold: 0.7,
			SkipThreshold:   0.3,
			OverrideFloor:   0.45,
			UseGate:         true,
		},
		Extract: ExtractConfig{
			MaxClaims:         10,
			FallbackSentences: 3,
			FallbackConf:      0.35,
		},
		Verify: VerifyConfig{
			MaxConcurrent:   4,
			MaxAttempts:     3,
			BaseBackoff:     500 * time.Millisecond,
			SimilarityFloor: 0.7,
			ValidateLinks:   false,
			LinkTimeout:     10 * time.Second,
			LinkWorkers:     8,
			UserAgent:       "Veracity/0.1 (+https://github.com/veracity-social/veracity)",
		},
		Trust: TrustConfig{
			Baseline:   50,
			HistoryCap: 50,
		},
		Ledger: LedgerConfig{
			WindowDays: 30,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "veracity.db",
		},
		Cache: CacheConfig{
			Enabled:   true,
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Sweep: SweepConfig{
			Schedule:    "*/10 * * * *",
			StaleAfter:  15 * time.Minute,
			Concurrency: 4,
			BatchLimit:  100,
		},
		Comments: CommentsConfig{
			MaxDepth: 10,
		},
	}
}
