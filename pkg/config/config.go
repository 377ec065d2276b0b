// Package config loads, merges, and validates RAGShield configuration.
//
// Configuration sources, in increasing precedence:
//  1. Code defaults (defaults.go)
//  2. ragshield.yaml in the config directory
//  3. Environment variables referenced from YAML via {{.VAR}} templates
//
// A .env file in the config directory is loaded into the environment by
// the caller (cmd/ragshield) before Initialize runs.
package config

import "time"

// Config is the fully merged and validated configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Paths     PathsConfig     `yaml:"paths"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Integrity IntegrityConfig `yaml:"integrity"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Events    EventsConfig    `yaml:"events"`
	Kafka     KafkaConfig     `yaml:"kafka"`

	// TrustSources maps source prefixes to trust scores in [0,1].
	// Longest matching prefix wins; unknown sources score DefaultTrust.
	TrustSources map[string]float64 `yaml:"trust_sources"`

	// RedFlags maps semantic categories to case-insensitive keyword phrases.
	RedFlags map[string][]string `yaml:"red_flags"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Port                 int           `yaml:"port"`
	AllowedOrigins       []string      `yaml:"allowed_origins"`
	RateLimitRPS         float64       `yaml:"rate_limit_rps"`
	RateLimitBurst       int           `yaml:"rate_limit_burst"`
	QueryTimeout         time.Duration `yaml:"query_timeout"`
	EnableUnsafeEndpoint bool          `yaml:"enable_unsafe_endpoint"`
	EnableDemoReset      bool          `yaml:"enable_demo_reset"`
}

// PathsConfig holds the working root for all persisted state. The event
// log, lineage log, vault, and index directories all live under DataDir.
type PathsConfig struct {
	DataDir string `yaml:"data_dir"`
}

// OllamaConfig holds the LLM and embedding collaborator settings.
type OllamaConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	EmbedModel     string        `yaml:"embed_model"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// IntegrityConfig holds the scorer and aggregation settings.
type IntegrityConfig struct {
	// Threshold is the failing-signal cutoff; a signal strictly below it
	// counts toward quarantine.
	Threshold float64 `yaml:"threshold"`
	// Quorum is how many signals must fall below Threshold to quarantine.
	Quorum int `yaml:"quorum"`
	// DefaultTrust is the trust score for sources absent from TrustSources.
	DefaultTrust float64 `yaml:"default_trust"`
	// ScorerWorkers bounds the per-query scoring fan-out.
	ScorerWorkers int `yaml:"scorer_workers"`
	// SignalWeights is parsed and validated but reserved for a future
	// weighted mode; the quarantine decision is an unweighted vote.
	SignalWeights map[string]float64 `yaml:"signal_weights"`
}

// RetrievalConfig holds the retrieval adapter settings.
type RetrievalConfig struct {
	DefaultK        int `yaml:"default_k"`
	MaxK            int `yaml:"max_k"`
	OverfetchFactor int `yaml:"overfetch_factor"`
	BoostFactor     int `yaml:"boost_factor"`
	EmbedCacheSize  int `yaml:"embed_cache_size"`
}

// EventsConfig holds the event bus settings.
type EventsConfig struct {
	// QueueSize bounds the publish queue in front of the appender.
	QueueSize int `yaml:"queue_size"`
	// SubscriberBuffer bounds each live subscriber's channel; a subscriber
	// whose buffer fills up is dropped.
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// KafkaConfig holds the optional SIEM event forwarder settings.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}
