package config

import (
	"fmt"
	"math"
)

// Validate checks the merged configuration for values the engine cannot
// run with. It returns a *ValidationError wrapping ErrValidationFailed.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return invalid("server.port", "must be in (0, 65535]")
	}
	if c.Server.QueryTimeout <= 0 {
		return invalid("server.query_timeout", "must be positive")
	}
	if c.Paths.DataDir == "" {
		return invalid("paths.data_dir", "must not be empty")
	}
	if c.Ollama.BaseURL == "" {
		return invalid("ollama.base_url", "must not be empty")
	}
	if c.Integrity.Threshold < 0 || c.Integrity.Threshold > 1 {
		return invalid("integrity.threshold", "must be in [0,1]")
	}
	if c.Integrity.Quorum < 1 || c.Integrity.Quorum > 4 {
		return invalid("integrity.quorum", "must be in [1,4]")
	}
	if c.Integrity.DefaultTrust < 0 || c.Integrity.DefaultTrust > 1 {
		return invalid("integrity.default_trust", "must be in [0,1]")
	}
	if c.Integrity.ScorerWorkers < 1 {
		return invalid("integrity.scorer_workers", "must be at least 1")
	}
	if len(c.Integrity.SignalWeights) > 0 {
		var sum float64
		for name, w := range c.Integrity.SignalWeights {
			if w < 0 {
				return invalid("integrity.signal_weights."+name, "must be non-negative")
			}
			sum += w
		}
		if math.Abs(sum-1.0) > 1e-6 {
			return invalid("integrity.signal_weights", "must sum to 1.0")
		}
	}
	for source, score := range c.TrustSources {
		if score < 0 || score > 1 {
			return invalid("trust_sources."+source, "score must be in [0,1]")
		}
	}
	if c.Retrieval.DefaultK < 1 || c.Retrieval.DefaultK > c.Retrieval.MaxK {
		return invalid("retrieval.default_k", "must be in [1, max_k]")
	}
	if c.Retrieval.OverfetchFactor < 3 {
		return invalid("retrieval.overfetch_factor", "must be at least 3")
	}
	if c.Retrieval.BoostFactor < 1 {
		return invalid("retrieval.boost_factor", "must be at least 1")
	}
	if c.Events.QueueSize < 1 {
		return invalid("events.queue_size", "must be at least 1")
	}
	if c.Events.SubscriberBuffer < 1 {
		return invalid("events.subscriber_buffer", "must be at least 1")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return invalid("kafka.brokers", "must not be empty when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return invalid("kafka.topic", "must not be empty when kafka is enabled")
		}
	}
	return nil
}

func invalid(field, msg string) error {
	return &ValidationError{
		Field: field,
		Err:   fmt.Errorf("%w: %s", ErrValidationFailed, msg),
	}
}
