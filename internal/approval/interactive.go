package approval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"hitlbot/internal/agent"
)

// Response is the operator's answer to a tool-call approval prompt.
type Response struct {
	Decision agent.Decision
	Reason   string
	Message  string
}

// Approved reports whether the tool call may proceed.
func (r Response) Approved() bool {
	return r.Decision == agent.DecisionApprove
}

// Approver decides on a paused tool call.
type Approver interface {
	RequestApproval(ctx context.Context, req agent.ApprovalRequired) (Response, error)
}

// InteractiveApprover implements approval via terminal prompts
type InteractiveApprover struct {
	in           *LineReader
	out          io.Writer
	timeout      time.Duration
	autoApprove  bool
	colorEnabled bool
}

// NewInteractiveApprover creates a new interactive approver reading answers
// from in and writing prompts to out. A zero timeout waits forever.
func NewInteractiveApprover(in *LineReader, out io.Writer, timeout time.Duration, autoApprove, colorEnabled bool) *InteractiveApprover {
	return &InteractiveApprover{
		in:           in,
		out:          out,
		timeout:      timeout,
		autoApprove:  autoApprove,
		colorEnabled: colorEnabled,
	}
}

// RequestApproval shows the tool call and asks the operator to approve it.
// A timeout declines.
func (a *InteractiveApprover) RequestApproval(ctx context.Context, req agent.ApprovalRequired) (Response, error) {
	if a.autoApprove {
		return Response{Decision: agent.DecisionApprove, Message: "Auto-approved"}, nil
	}

	a.displayRequest(req)
	return a.promptWithTimeout(ctx)
}

func (a *InteractiveApprover) displayRequest(req agent.ApprovalRequired) {
	separator := strings.Repeat("=", 60)

	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, a.colorize(separator, color.FgCyan))
	fmt.Fprintln(a.out, a.colorize(fmt.Sprintf("Tool: %s", req.ToolName), color.FgYellow, color.Bold))
	fmt.Fprintln(a.out, a.colorize(fmt.Sprintf("Run: %s  Call: %s", req.RunID, req.ToolCallID), color.FgWhite))
	fmt.Fprintln(a.out, a.colorize(separator, color.FgCyan))

	if args := req.ArgsJSON(); args != "" {
		fmt.Fprintln(a.out, a.colorize("Arguments:", color.FgCyan))
		fmt.Fprintln(a.out, args)
	}
	fmt.Fprintln(a.out, a.colorize(separator, color.FgCyan))
}

func (a *InteractiveApprover) promptWithTimeout(ctx context.Context) (Response, error) {
	promptCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		promptCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	resp, err := a.readUserInput(promptCtx)
	switch {
	case err == nil:
		return resp, nil
	case ctx.Err() != nil:
		return Response{}, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		fmt.Fprintln(a.out)
		fmt.Fprintln(a.out, a.colorize("Timeout - tool call declined", color.FgRed))
		return Response{Decision: agent.DecisionDecline, Message: "Approval timeout"}, nil
	default:
		return Response{}, err
	}
}

func (a *InteractiveApprover) readUserInput(ctx context.Context) (Response, error) {
	for {
		fmt.Fprintln(a.out)
		fmt.Fprintln(a.out, a.colorize("Allow this tool call?", color.FgYellow, color.Bold))
		fmt.Fprintln(a.out, "  [y] Approve")
		fmt.Fprintln(a.out, "  [n] Reject")
		fmt.Fprint(a.out, a.colorize("Choice: ", color.FgCyan))

		input, err := a.in.ReadLine(ctx)
		if err != nil {
			return Response{}, fmt.Errorf("failed to read input: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(input)) {
		case "y", "yes":
			return Response{Decision: agent.DecisionApprove, Message: "Approved by user"}, nil
		case "n", "no", "":
			fmt.Fprint(a.out, a.colorize("Reason (optional): ", color.FgCyan))
			reason, err := a.in.ReadLine(ctx)
			if err != nil && !errors.Is(err, io.EOF) {
				return Response{}, fmt.Errorf("failed to read input: %w", err)
			}
			return Response{Decision: agent.DecisionDecline, Reason: strings.TrimSpace(reason), Message: "Rejected by user"}, nil
		default:
			fmt.Fprintln(a.out, a.colorize("Invalid choice. Please enter y or n.", color.FgRed))
		}
	}
}

func (a *InteractiveApprover) colorize(text string, attributes ...color.Attribute) string {
	if !a.colorEnabled {
		return text
	}
	c := color.New(attributes...)
	return c.Sprint(text)
}

// NoOpApprover always approves (for testing or auto-approve mode)
type NoOpApprover struct{}

// NewNoOpApprover creates a new no-op approver
func NewNoOpApprover() *NoOpApprover {
	return &NoOpApprover{}
}

// RequestApproval always approves
func (a *NoOpApprover) RequestApproval(context.Context, agent.ApprovalRequired) (Response, error) {
	return Response{Decision: agent.DecisionApprove, Message: "Auto-approved (no-op)"}, nil
}
