package slack

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"

	"hitlbot/internal/agent"
	"hitlbot/internal/presentation"
)

// Surface is everything the handlers need from Slack.
type Surface interface {
	presentation.Messenger
	presentation.ApprovalPoster
	UpdateApprovalStatus(ctx context.Context, channel, ts string, status ApprovalStatus) error
	OpenRejectionModal(ctx context.Context, triggerID string, view slackapi.ModalViewRequest) error
}

// Messenger implements Surface on the Slack Web API.
type Messenger struct {
	api *slackapi.Client
}

var _ Surface = (*Messenger)(nil)

// NewMessenger wraps a Web API client.
func NewMessenger(api *slackapi.Client) *Messenger {
	return &Messenger{api: api}
}

func threadOption(threadTS string) []slackapi.MsgOption {
	if threadTS == "" {
		return nil
	}
	return []slackapi.MsgOption{slackapi.MsgOptionTS(threadTS)}
}

func (m *Messenger) PostMessage(ctx context.Context, channel, threadTS, text string) (string, error) {
	opts := append([]slackapi.MsgOption{slackapi.MsgOptionText(text, false)}, threadOption(threadTS)...)
	_, ts, err := m.api.PostMessageContext(ctx, channel, opts...)
	if err != nil {
		return "", fmt.Errorf("slack post message: %w", err)
	}
	return ts, nil
}

func (m *Messenger) UpdateMessage(ctx context.Context, channel, ts, text string) error {
	if _, _, _, err := m.api.UpdateMessageContext(ctx, channel, ts, slackapi.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("slack update message: %w", err)
	}
	return nil
}

func (m *Messenger) DeleteMessage(ctx context.Context, channel, ts string) error {
	if _, _, err := m.api.DeleteMessageContext(ctx, channel, ts); err != nil {
		return fmt.Errorf("slack delete message: %w", err)
	}
	return nil
}

func (m *Messenger) PostApprovalRequest(ctx context.Context, channel, threadTS string, req agent.ApprovalRequired) (string, error) {
	opts := append([]slackapi.MsgOption{
		slackapi.MsgOptionText("Approval required for "+req.ToolName, false),
		slackapi.MsgOptionBlocks(ApprovalBlocks(req)...),
	}, threadOption(threadTS)...)
	_, ts, err := m.api.PostMessageContext(ctx, channel, opts...)
	if err != nil {
		return "", fmt.Errorf("slack post approval request: %w", err)
	}
	return ts, nil
}

// UpdateApprovalStatus replaces the approval message with its final state and
// removes the buttons so the call cannot be decided twice.
func (m *Messenger) UpdateApprovalStatus(ctx context.Context, channel, ts string, status ApprovalStatus) error {
	_, _, _, err := m.api.UpdateMessageContext(ctx, channel, ts,
		slackapi.MsgOptionText(status.Text(), false),
		slackapi.MsgOptionBlocks([]slackapi.Block{}...),
	)
	if err != nil {
		return fmt.Errorf("slack update approval message: %w", err)
	}
	return nil
}

func (m *Messenger) OpenRejectionModal(ctx context.Context, triggerID string, view slackapi.ModalViewRequest) error {
	if _, err := m.api.OpenViewContext(ctx, triggerID, view); err != nil {
		return fmt.Errorf("slack open view: %w", err)
	}
	return nil
}
