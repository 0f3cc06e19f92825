package presentation

import (
	"context"
	"errors"
	"fmt"

	"hitlbot/internal/agent"
	"hitlbot/internal/approval"
	"hitlbot/internal/logging"
)

// User-visible texts.
const (
	WaitingApprovalText = "⏸️ Waiting for approval..."
	ErrorPrefix         = "❌ Error: "
)

// ErrUnexpectedApproval is reported when a resumed run pauses again.
var ErrUnexpectedApproval = errors.New("Unexpected approval-required result")

// ErrUnaddressableApproval is reported when a paused run cannot be encoded
// into button ids, so a click could never resume it.
var ErrUnaddressableApproval = errors.New("approval request has an empty or malformed agent, run or tool call id")

// Messenger is the surface's message mutation API.
type Messenger interface {
	PostMessage(ctx context.Context, channel, threadTS, text string) (string, error)
	UpdateMessage(ctx context.Context, channel, ts, text string) error
	DeleteMessage(ctx context.Context, channel, ts string) error
}

// ApprovalPoster renders an interactive approve/reject element.
type ApprovalPoster interface {
	PostApprovalRequest(ctx context.Context, channel, threadTS string, req agent.ApprovalRequired) (string, error)
}

// MentionTarget locates the progress message of a fresh run.
type MentionTarget struct {
	Channel  string
	ThreadTS string
	// MessageTS is the progress message that is replaced or removed.
	MessageTS string
	// AgentName is used when the result does not carry one.
	AgentName string
}

// ResumeTarget locates the thread a resumed run replies in.
type ResumeTarget struct {
	Channel  string
	ThreadTS string
	// Operation names the resume for logs, e.g. "approve tool call".
	Operation string
}

// Presenter turns run results into surface effects.
type Presenter struct {
	messenger Messenger
	approvals ApprovalPoster
	reporter  *ErrorReporter
	logger    logging.Logger
}

// NewPresenter creates a presenter.
func NewPresenter(messenger Messenger, approvals ApprovalPoster, logger logging.Logger) *Presenter {
	logger = logging.OrNop(logger)
	return &Presenter{
		messenger: messenger,
		approvals: approvals,
		reporter:  NewErrorReporter(messenger, logger),
		logger:    logger,
	}
}

// Reporter exposes the error reporter shared with callers.
func (p *Presenter) Reporter() *ErrorReporter {
	return p.reporter
}

// PresentMention handles the result of a fresh run. Surface failures are
// returned to the caller.
func (p *Presenter) PresentMention(ctx context.Context, result agent.Result, target MentionTarget) error {
	switch r := result.(type) {
	case agent.ApprovalRequired:
		if r.AgentName == "" {
			r.AgentName = target.AgentName
		}
		if _, err := approval.DecodeIdentity(approval.EncodeIdentity(approval.ActionApprove, r.AgentName, r.RunID, r.ToolCallID)); err != nil {
			p.reporter.Report(ctx, ErrorReport{
				Operation: "approval request",
				Err:       fmt.Errorf("%w: %v", ErrUnaddressableApproval, err),
				Channel:   target.Channel,
				ThreadTS:  target.ThreadTS,
				MessageTS: target.MessageTS,
			})
			return nil
		}
		if _, err := p.approvals.PostApprovalRequest(ctx, target.Channel, target.ThreadTS, r); err != nil {
			return err
		}
		return p.messenger.UpdateMessage(ctx, target.Channel, target.MessageTS, WaitingApprovalText)
	case agent.Completed:
		return p.messenger.DeleteMessage(ctx, target.Channel, target.MessageTS)
	case agent.Failed:
		p.reporter.Report(ctx, ErrorReport{
			Operation: "agent execution",
			Err:       r.Err,
			Channel:   target.Channel,
			ThreadTS:  target.ThreadTS,
			MessageTS: target.MessageTS,
		})
		return nil
	default:
		p.logger.Warn("Unhandled result kind %T", result)
		return nil
	}
}

// PresentResume handles the result of an approve or decline resume. The
// completed text was already delivered by the stream.
func (p *Presenter) PresentResume(ctx context.Context, result agent.Result, target ResumeTarget) {
	report := ErrorReport{Operation: target.Operation, Channel: target.Channel, ThreadTS: target.ThreadTS}
	switch r := result.(type) {
	case agent.Completed:
		return
	case agent.Failed:
		report.Err = r.Err
	case agent.ApprovalRequired:
		report.Err = ErrUnexpectedApproval
	default:
		p.logger.Warn("Unhandled result kind %T", result)
		return
	}
	p.reporter.Report(ctx, report)
}
