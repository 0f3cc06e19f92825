package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"hitlbot/internal/channels/slack"
	"hitlbot/internal/config"
	"hitlbot/internal/server"
)

func newServeCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Slack over Socket Mode and serve health and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, meta, err := cli.loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			container, err := buildContainer(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := container.Cleanup(ctx); err != nil {
					container.Logger.Warn("Cleanup error: %v", err)
				}
			}()
			if path := meta.Path(); path != "" {
				container.Logger.Info("Loaded config from %s", path)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, container)
		},
	}
}

func slackConfig(cfg config.Config) slack.Config {
	return slack.Config{
		BotToken:        cfg.Slack.BotToken,
		AppToken:        cfg.Slack.AppToken,
		APIURL:          cfg.Slack.APIURL,
		Debug:           cfg.Slack.Debug,
		DefaultAgent:    cfg.Agent.Name,
		LegacyAgentName: cfg.Approval.LegacyAgentName,
		Streaming:       cfg.Delivery.Streaming,
		DedupCacheSize:  cfg.Delivery.DedupCacheSize,
		DedupTTL:        cfg.Delivery.DedupTTL,
	}
}

// runServe runs the gateway and the HTTP server until ctx is done or either
// of them fails.
func runServe(ctx context.Context, c *Container) error {
	cfg := c.Config
	slackCfg := slackConfig(cfg)

	api := slack.NewAPIClient(slackCfg)
	handler, err := slack.NewHandler(slackCfg, slack.HandlerDeps{
		Surface: slack.NewMessenger(api),
		Streams: slack.NewStreamAPI(slackCfg.BotToken, slackCfg.APIURL, nil),
		Agents:  c.Agents,
		Metrics: c.Metrics,
		Tracer:  c.Tracer,
		Logger:  c.Logger,
	})
	if err != nil {
		return err
	}
	gateway, err := slack.NewGateway(slackCfg, api, handler, c.Metrics, c.Logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.Logger.Info("Starting Slack gateway")
		return gateway.Start(gctx)
	})
	if cfg.Server.Enabled {
		srv := server.New(cfg.Server.Config, server.Deps{
			Version: version,
			Metrics: c.Metrics.Handler(),
			Agents:  c.Agents.Names,
			Logger:  c.Logger,
		})
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	err = g.Wait()
	c.Logger.Info("Shut down")
	return err
}
