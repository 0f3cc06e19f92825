package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"hitlbot/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
)

// isTTY checks if the current environment has a TTY available
func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// CLI holds the flags shared by every command.
type CLI struct {
	configPath string
	logLevel   string
	slackDebug bool
	agentURL   string
	addr       string

	// env, homeDir and ttyCheck are swapped in tests.
	env      config.EnvLookup
	homeDir  func() (string, error)
	ttyCheck func() bool
}

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":   "observability.logging.level",
	"slack-debug": "slack.debug",
	"agent-url":   "agent.base_url",
	"addr":        "server.addr",
}

// NewRootCommand creates the root cobra command
func NewRootCommand() *cobra.Command {
	return newRootCommand(&CLI{env: config.DefaultEnvLookup, homeDir: os.UserHomeDir})
}

func newRootCommand(cli *CLI) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "hitlbot",
		Short:         "Slack bot that pauses agent tool calls for human approval",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cli.configPath, "config", "c", "", "Config file (default $HOME/.hitlbot/config.yaml, or $"+config.ConfigPathEnv+")")
	flags.StringVar(&cli.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.BoolVar(&cli.slackDebug, "slack-debug", false, "Log Slack API traffic")
	flags.StringVar(&cli.agentURL, "agent-url", "", "Agent runtime base URL")
	flags.StringVar(&cli.addr, "addr", "", "Health and metrics listen address")

	rootCmd.AddCommand(newServeCommand(cli))
	rootCmd.AddCommand(newSimulateCommand(cli))
	rootCmd.AddCommand(newConfigCommand(cli))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// loadConfig reads configuration, letting explicitly set flags win.
func (cli *CLI) loadConfig(cmd *cobra.Command, extra config.Overrides) (config.Config, config.Metadata, error) {
	overrides := config.Overrides{}
	flags := cmd.Flags()
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		overrides[key] = flag.Value.String()
	}
	for key, value := range extra {
		overrides[key] = value
	}
	return config.Load(
		config.WithConfigPath(cli.configPath),
		config.WithEnv(cli.env),
		config.WithHomeDir(cli.homeDir),
		config.WithOverrides(overrides),
	)
}

// newVersionCommand creates the version subcommand
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hitlbot %s\n", version)
		},
	}
}
