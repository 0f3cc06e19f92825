package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"hitlbot/internal/config"
)

func newConfigCommand(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	var showSources bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, meta, err := cli.loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			out, err := config.Dump(cfg)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if path := meta.Path(); path != "" {
				fmt.Fprintf(w, "# loaded from %s\n", path)
			}
			if _, err := w.Write(out); err != nil {
				return err
			}
			if showSources {
				printSources(cmd, meta)
			}
			return nil
		},
	}
	show.Flags().BoolVar(&showSources, "sources", false, "Also list values not taken from defaults")
	cmd.AddCommand(show)

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check that serve can start with the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := cli.loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration OK")
			return nil
		},
	})
	return cmd
}

var sourceKeys = []string{
	"slack.bot_token", "slack.app_token", "slack.api_url", "slack.debug",
	"agent.provider", "agent.base_url", "agent.agent_id", "agent.name", "agent.timeout",
	"server.enabled", "server.addr",
	"observability.logging.level", "observability.metrics.enabled", "observability.tracing.enabled",
	"delivery.streaming", "delivery.dedup_cache_size", "delivery.dedup_ttl",
	"approval.legacy_agent_name", "approval.console_timeout",
}

func printSources(cmd *cobra.Command, meta config.Metadata) {
	keys := append([]string(nil), sourceKeys...)
	sort.Strings(keys)
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "# sources")
	for _, key := range keys {
		if src := meta.Source(key); src != config.SourceDefault {
			fmt.Fprintf(w, "# %s: %s\n", key, src)
		}
	}
}
