// RAGShield server: integrity-gated retrieval in front of a local LLM,
// with quarantine review, event streaming, and blast-radius analysis.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ragshield/ragshield/pkg/api"
	"github.com/ragshield/ragshield/pkg/blast"
	"github.com/ragshield/ragshield/pkg/config"
	"github.com/ragshield/ragshield/pkg/events"
	"github.com/ragshield/ragshield/pkg/extract"
	"github.com/ragshield/ragshield/pkg/index"
	"github.com/ragshield/ragshield/pkg/lineage"
	"github.com/ragshield/ragshield/pkg/llm"
	"github.com/ragshield/ragshield/pkg/metrics"
	"github.com/ragshield/ragshield/pkg/pipeline"
	"github.com/ragshield/ragshield/pkg/retrieval"
	"github.com/ragshield/ragshield/pkg/scoring"
	"github.com/ragshield/ragshield/pkg/vault"
	"github.com/ragshield/ragshield/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting RAGShield", "version", version.Full(), "config_dir", *configDir)

	// 1. Configuration. A config error is exit code 2.
	cfg, err := config.Initialize(*configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(2)
	}

	// 2. Ollama collaborator. Startup requires it reachable; exit code 1.
	ollama := llm.NewClient(cfg.Ollama.BaseURL, cfg.Ollama.Model, cfg.Ollama.EmbedModel,
		cfg.Ollama.RequestTimeout)
	probeCtx, probeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = ollama.Probe(probeCtx)
	probeCancel()
	if err != nil {
		slog.Error("Ollama collaborator unreachable", "base_url", cfg.Ollama.BaseURL, "error", err)
		os.Exit(1)
	}
	slog.Info("Ollama collaborator reachable",
		"base_url", cfg.Ollama.BaseURL, "model", cfg.Ollama.Model, "embed_model", cfg.Ollama.EmbedModel)

	// 3. Event bus and logger.
	bus, err := events.NewBus(cfg.EventLogPath(), cfg.Events.QueueSize, cfg.Events.SubscriberBuffer)
	if err != nil {
		slog.Error("Failed to open event log", "error", err)
		os.Exit(1)
	}

	var forwarder *events.Forwarder
	if cfg.Kafka.Enabled {
		forwarder = events.NewForwarder(cfg.Kafka, bus)
		slog.Info("Kafka event forwarder enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// 4. Lineage store.
	lineageStore, err := lineage.NewStore(cfg.LineageLogPath())
	if err != nil {
		slog.Error("Failed to open lineage log", "error", err)
		os.Exit(1)
	}

	// 5. Vector index and retrieval adapter.
	idx, err := index.Open(cfg.IndexDir())
	if err != nil {
		slog.Error("Failed to open vector index", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := idx.Close(); err != nil {
			slog.Error("Error closing vector index", "error", err)
		}
	}()

	adapter, err := retrieval.NewAdapter(ollama, idx, cfg.Retrieval.OverfetchFactor, cfg.Retrieval.EmbedCacheSize)
	if err != nil {
		slog.Error("Failed to build retrieval adapter", "error", err)
		os.Exit(1)
	}

	// 6. Quarantine vault.
	quarantineVault, err := vault.Open(cfg.VaultDir(), adapter)
	if err != nil {
		slog.Error("Failed to open quarantine vault", "error", err)
		os.Exit(1)
	}

	// 7. Scoring engine. The drift reference corpus embeds at startup.
	driftCtx, driftCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	drift, err := scoring.NewDriftScorer(driftCtx, adapter)
	driftCancel()
	if err != nil {
		slog.Error("Failed to load drift reference corpus", "error", err)
		os.Exit(1)
	}

	engine := scoring.NewEngine(
		scoring.NewTrustScorer(cfg.TrustSources, cfg.Integrity.DefaultTrust),
		scoring.NewRedFlagScorer(cfg.RedFlags),
		drift,
		cfg.Integrity.Threshold,
		cfg.Integrity.Quorum,
		cfg.Integrity.ScorerWorkers,
	)

	// 8. Pipeline and HTTP surface.
	m := metrics.New()
	processor := extract.NewProcessor(cfg.Retrieval.BoostFactor)
	pipe := pipeline.New(processor, adapter, engine, quarantineVault, bus, lineageStore,
		ollama, m, cfg.Retrieval.DefaultK)

	server := api.NewServer(cfg.Server, pipe, quarantineVault, blast.NewAnalyzer(lineageStore),
		bus, lineageStore, adapter, m, ollama, version.Full())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = server.Run(ctx)

	// Teardown in reverse of initialization; the bus drains last so late
	// events from shutdown still reach the durable log.
	if forwarder != nil {
		if closeErr := forwarder.Close(); closeErr != nil {
			slog.Error("Error closing Kafka forwarder", "error", closeErr)
		}
	}
	bus.Close()

	if err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("RAGShield stopped")
}
