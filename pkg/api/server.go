// Package api exposes the HTTP and SSE surface: protected and unsafe
// queries, quarantine review, blast-radius reports, the event feed, and
// operational endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ragshield/ragshield/pkg/blast"
	"github.com/ragshield/ragshield/pkg/config"
	"github.com/ragshield/ragshield/pkg/events"
	"github.com/ragshield/ragshield/pkg/lineage"
	"github.com/ragshield/ragshield/pkg/metrics"
	"github.com/ragshield/ragshield/pkg/pipeline"
	"github.com/ragshield/ragshield/pkg/retrieval"
	"github.com/ragshield/ragshield/pkg/vault"
)

// Server is the HTTP front end. It holds one-way handles to the domain
// components and owns nothing but the HTTP lifecycle.
type Server struct {
	cfg      config.ServerConfig
	pipeline *pipeline.Pipeline
	vault    *vault.Vault
	analyzer *blast.Analyzer
	bus      *events.Bus
	lineage  *lineage.Store
	adapter  *retrieval.Adapter
	metrics  *metrics.Metrics
	prober   Prober
	version  string
	started  time.Time

	httpServer *http.Server
}

// Prober checks a collaborator's reachability for the status endpoint.
type Prober interface {
	Probe(ctx context.Context) error
}

// NewServer wires the HTTP surface. prober may be nil when no
// collaborator health check applies (tests).
func NewServer(cfg config.ServerConfig, p *pipeline.Pipeline, v *vault.Vault,
	analyzer *blast.Analyzer, bus *events.Bus, store *lineage.Store,
	adapter *retrieval.Adapter, m *metrics.Metrics, prober Prober, version string) *Server {
	return &Server{
		cfg:      cfg,
		pipeline: p,
		vault:    v,
		analyzer: analyzer,
		bus:      bus,
		lineage:  store,
		adapter:  adapter,
		metrics:  m,
		prober:   prober,
		version:  version,
		started:  time.Now(),
	}
}

// Router builds the gin engine with all routes and middleware attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())
	router.Use(corsMiddleware(s.cfg.AllowedOrigins))
	router.Use(rateLimitMiddleware(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst))
	router.Use(metricsMiddleware(s.metrics))

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/query", s.handleQuery)
		apiGroup.POST("/query/unsafe", s.handleQueryUnsafe)
		apiGroup.POST("/ingest", s.handleIngest)
		apiGroup.GET("/quarantine", s.handleQuarantineList)
		apiGroup.POST("/quarantine/:id/confirm", s.handleQuarantineConfirm)
		apiGroup.POST("/quarantine/:id/restore", s.handleQuarantineRestore)
		apiGroup.GET("/blast-radius/:doc_id", s.handleBlastRadius)
		apiGroup.GET("/events", s.handleEvents)
		apiGroup.GET("/events/stream", s.handleEventStream)
		apiGroup.POST("/demo/reset", s.handleDemoReset)
		apiGroup.GET("/status", s.handleStatus)
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))

	return router
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
