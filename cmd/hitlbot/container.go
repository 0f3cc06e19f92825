package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"hitlbot/internal/agent/remote"
	"hitlbot/internal/channels/console"
	"hitlbot/internal/config"
	"hitlbot/internal/logging"
	"hitlbot/internal/observability"
)

// Container holds the process-wide collaborators built from configuration.
type Container struct {
	Config  config.Config
	Logger  logging.Logger
	Metrics *observability.MetricsCollector
	Tracer  *observability.TracerProvider
	Agents  *remote.Registry
}

func buildContainer(cfg config.Config, logOutput io.Writer) (*Container, error) {
	obsLogger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: logOutput,
	})
	logger := logging.FromObservabilityWithComponent(obsLogger, "hitlbot")

	metrics, err := observability.NewMetricsCollector(cfg.Observability.Metrics)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	tracer, err := observability.NewTracerProvider(cfg.Observability.Tracing)
	if err != nil {
		_ = metrics.Shutdown(context.Background())
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	agents := remote.NewRegistry()
	switch cfg.Agent.Provider {
	case config.ProviderDemo:
		agents.Register(console.NewDemoAgent(cfg.Agent.Name))
	default:
		client, err := remote.NewClient(remote.Config{
			BaseURL: cfg.Agent.BaseURL,
			AgentID: cfg.Agent.AgentID,
			Name:    cfg.Agent.Name,
			Timeout: cfg.Agent.Timeout,
		}, remote.WithLogger(logging.FromObservabilityWithComponent(obsLogger, "agent")))
		if err != nil {
			_ = metrics.Shutdown(context.Background())
			_ = tracer.Shutdown(context.Background())
			return nil, fmt.Errorf("init agent client: %w", err)
		}
		agents.Register(client)
	}
	logger.Info("Agents: %v (provider %s)", agents.Names(), cfg.Agent.Provider)

	return &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
		Tracer:  tracer,
		Agents:  agents,
	}, nil
}

// Cleanup flushes telemetry.
func (c *Container) Cleanup(ctx context.Context) error {
	return errors.Join(c.Tracer.Shutdown(ctx), c.Metrics.Shutdown(ctx))
}
