package discovery

import (
	"context"
	"time"

	"github.com/promptpilot-hq/promptpilot/pkg/circuitbreaker"
	"github.com/promptpilot-hq/promptpilot/pkg/config"
	"github.com/promptpilot-hq/promptpilot/pkg/generator"
	"github.com/promptpilot-hq/promptpilot/pkg/health"
	"github.com/promptpilot-hq/promptpilot/pkg/llm"
	"github.com/promptpilot-hq/promptpilot/pkg/logger"
	"github.com/promptpilot-hq/promptpilot/pkg/orchestrator"
	"github.com/promptpilot-hq/promptpilot/pkg/store"
)

// Service wires the prompt discovery subsystem together: upstream client,
// circuit breaker, invoker, message store, orchestrator and the health and
// metrics server. Hosts embed it and drive it through Orchestrator and Store.
type Service struct {
	cfg          *config.Config
	logger       logger.Logger
	client       *llm.Client
	breaker      *circuitbreaker.CircuitBreaker
	orchestrator *orchestrator.Orchestrator
	store        *store.MemStore
	healthServer *health.Server
}

// NewService creates the service and verifies upstream reachability. An
// unreachable upstream is logged but not fatal; attempts will retry on their
// own schedule once it comes back.
func NewService(ctx context.Context, cfg *config.Config) (*Service, error) {
	log := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	client := llm.NewClient(cfg.UpstreamEndpoint, cfg.UpstreamModel, cfg.UpstreamTimeout)

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(checkCtx); err != nil {
		log.NoticeWithScope(logger.Upstream, "Upstream %s not reachable at startup: %v", cfg.UpstreamEndpoint, err)
	} else {
		log.InfoWithScope(logger.Upstream, "Upstream %s reachable", cfg.UpstreamEndpoint)
	}

	breaker := circuitbreaker.NewCircuitBreaker(
		cfg.CircuitBreaker.Enabled,
		cfg.CircuitBreaker.Threshold,
		cfg.CircuitBreaker.WindowDuration,
		cfg.CircuitBreaker.ResetTimeout,
	)

	invoker := generator.NewInvoker(client, breaker, cfg, log)
	memStore := store.NewMemStore(2*time.Second, nil, log)
	orch := orchestrator.New(invoker, nil, memStore, nil, cfg.RetryDelays, log)

	return &Service{
		cfg:          cfg,
		logger:       log,
		client:       client,
		breaker:      breaker,
		orchestrator: orch,
		store:        memStore,
		healthServer: health.NewServer(cfg.MetricsPort, client, breaker, orch, log),
	}, nil
}

// Orchestrator returns the retry orchestrator for request submission.
func (s *Service) Orchestrator() *orchestrator.Orchestrator {
	return s.orchestrator
}

// Store returns the message store backing the orchestrator.
func (s *Service) Store() *store.MemStore {
	return s.store
}

// Logger returns the service logger.
func (s *Service) Logger() logger.Logger {
	return s.logger
}

// Start runs the health and metrics server and blocks until ctx is cancelled,
// then shuts the orchestrator down.
func (s *Service) Start(ctx context.Context) {
	go s.healthServer.Start()

	s.logger.Info("Prompt discovery service started (max retries %d, metrics on :%s)",
		s.cfg.MaxRetries(), s.cfg.MetricsPort)

	<-ctx.Done()

	s.logger.Info("Shutting down, cancelling tracked retries")
	s.orchestrator.Close()
	s.store.Flush()
}
