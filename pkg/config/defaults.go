package config

import "time"

// Defaults returns the built-in configuration. YAML settings are merged on
// top of this, so every field has a working value out of the box.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
			RateLimitRPS:   20,
			RateLimitBurst: 40,
			QueryTimeout:   60 * time.Second,
		},
		Paths: PathsConfig{
			DataDir: "./data",
		},
		Ollama: OllamaConfig{
			BaseURL:        "http://localhost:11434",
			Model:          "mistral",
			EmbedModel:     "nomic-embed-text",
			RequestTimeout: 180 * time.Second,
		},
		Integrity: IntegrityConfig{
			Threshold:     0.5,
			Quorum:        2,
			DefaultTrust:  0.5,
			ScorerWorkers: 8,
			// Reserved for a future weighted mode; never applied to the
			// quarantine vote.
			SignalWeights: map[string]float64{
				"trust":          0.25,
				"red_flag":       0.35,
				"anomaly":        0.15,
				"semantic_drift": 0.25,
			},
		},
		Retrieval: RetrievalConfig{
			DefaultK:        5,
			MaxK:            20,
			OverfetchFactor: 3,
			BoostFactor:     3,
			EmbedCacheSize:  1024,
		},
		Events: EventsConfig{
			QueueSize:        1024,
			SubscriberBuffer: 64,
		},
		Kafka: KafkaConfig{
			Topic: "ragshield-events",
		},
		TrustSources: defaultTrustSources(),
		RedFlags:     defaultRedFlags(),
	}
}

// defaultTrustSources is the built-in source reputation table.
// Keys are matched as prefixes of the document source; longest match wins.
func defaultTrustSources() map[string]float64 {
	return map[string]float64{
		"nvd.nist.gov":           1.0,
		"cve.mitre.org":          1.0,
		"ubuntu.com/security":    0.9,
		"redhat.com/security":    0.9,
		"debian.org/security":    0.9,
		"microsoft.com/security": 0.85,
		"github.com/advisories":  0.8,
		"internal_kb":            0.9,
		"golden":                 0.95,
		"clean":                  0.85,
		"unknown":                0.0,
		"poisoned":               0.0,
	}
}

// defaultRedFlags is the built-in red-flag phrase table, grouped into the
// five semantic categories the red-flag scorer penalizes across.
func defaultRedFlags() map[string][]string {
	return map[string][]string{
		"security_downgrade": {
			"disable firewall",
			"turn off waf",
			"skip security scan",
			"stop firewalld",
			"systemctl stop",
			"ufw disable",
			"temporarily disable security",
			"bypass security",
			"disable antivirus",
		},
		"dangerous_permissions": {
			"chmod 777",
			"chmod -r 777",
			"permissive permissions",
			"world-writable",
			"grant full access",
			"0777",
		},
		"severity_downplay": {
			"low priority",
			"not urgent",
			"ignore this cve",
			"can be deferred",
			"no immediate action",
			"largely mitigated",
			"low-medium severity",
			"adequate protection",
			"next maintenance window",
		},
		"unsafe_operations": {
			"skip verification",
			"bypass check",
			"disable validation",
			"without security modules",
			"run as root",
			"disable selinux",
			"disable apparmor",
			"ignore warning",
		},
		"social_engineering": {
			"trust this source",
			"urgent action required",
			"verify later",
			"verified by community",
			"everyone uses this",
			"no need to check",
			"pre-approved",
			"already validated",
		},
	}
}
