package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hitlbot/internal/agent"
	"hitlbot/internal/approval"
	"hitlbot/internal/channels/console"
	"hitlbot/internal/config"
)

type simulateOptions struct {
	remote      bool
	autoApprove bool
	noColor     bool
}

func newSimulateCommand(cli *CLI) *cobra.Command {
	opts := &simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate [request...]",
		Short: "Walk the approval flow in the terminal against a demo or remote agent",
		Long: "Runs a request the way a Slack mention would: the reply is streamed, " +
			"tool calls that need approval are prompted for, and the run is resumed " +
			"with the decision. Without arguments it reads requests line by line.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.runSimulate(cmd, args, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.remote, "remote", false, "Use the configured agent runtime instead of the demo agent")
	cmd.Flags().BoolVarP(&opts.autoApprove, "yes", "y", false, "Approve every tool call without prompting")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	return cmd
}

func (cli *CLI) runSimulate(cmd *cobra.Command, args []string, opts *simulateOptions) error {
	interactive := cli.interactive()
	if !interactive && !opts.autoApprove {
		return errors.New("simulate needs an interactive terminal to prompt for approvals; pass --yes to approve automatically")
	}

	overrides := config.Overrides{}
	if !opts.remote {
		overrides["agent.provider"] = config.ProviderDemo
	}
	if flag := cmd.Flags().Lookup("log-level"); flag == nil || !flag.Changed {
		overrides["observability.logging.level"] = "warn"
	}
	cfg, _, err := cli.loadConfig(cmd, overrides)
	if err != nil {
		return err
	}
	container, err := buildContainer(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = container.Cleanup(ctx)
	}()

	ag, err := container.Agents.Get(cfg.Agent.Name)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	in := approval.NewLineReader(cmd.InOrStdin())
	colorEnabled := interactive && !opts.noColor && !color.NoColor

	session, err := console.NewSession(
		console.NewSurface(out, colorEnabled),
		ag,
		approval.NewInteractiveApprover(in, out, cfg.Approval.ConsoleTimeout, opts.autoApprove, colorEnabled),
		console.SessionConfig{Metrics: container.Metrics, Tracer: container.Tracer, Logger: container.Logger},
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if len(args) > 0 {
		return session.Ask(ctx, strings.Join(args, " "))
	}
	printBanner(out, ag, colorEnabled)
	return repl(ctx, in, out, session, colorEnabled)
}

func (cli *CLI) interactive() bool {
	if cli.ttyCheck != nil {
		return cli.ttyCheck()
	}
	return isTTY()
}

func printBanner(out io.Writer, ag agent.Agent, colorEnabled bool) {
	title := fmt.Sprintf("hitlbot simulate (agent %s)", ag.Name())
	hint := "Type a request, or exit to quit."
	if colorEnabled {
		title, hint = bold(cyan(title)), gray(hint)
	}
	fmt.Fprintln(out, title)
	fmt.Fprintln(out, hint)
}

func repl(ctx context.Context, in *approval.LineReader, out io.Writer, session *console.Session, colorEnabled bool) error {
	prompt := "you> "
	if colorEnabled {
		prompt = green(prompt)
	}
	for {
		fmt.Fprint(out, prompt)
		line, err := in.ReadLine(ctx)
		if err != nil {
			fmt.Fprintln(out)
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		switch text := strings.TrimSpace(line); text {
		case "exit", "quit":
			return nil
		case "":
		default:
			if askErr := session.Ask(ctx, text); askErr != nil {
				fmt.Fprintf(out, "%s %v\n", yellow("warning:"), askErr)
			}
		}
	}
}
