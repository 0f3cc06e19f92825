package console

import (
	"context"
	"fmt"
	"strings"

	"hitlbot/internal/agent"
	"hitlbot/internal/approval"
	"hitlbot/internal/delivery"
	"hitlbot/internal/logging"
	"hitlbot/internal/observability"
	"hitlbot/internal/presentation"
)

const (
	DefaultChannel  = "console"
	DefaultUserID   = "local-user"
	processingText  = "🤔 Processing..."
	rejectedPrefix  = "❌ Rejected. Agent response:\n"
	defaultNoReason = "No reason provided"
)

// SessionConfig configures a console session.
type SessionConfig struct {
	Channel string
	UserID  string
	Metrics *observability.MetricsCollector
	Tracer  *observability.TracerProvider
	Logger  logging.Logger
}

// Session plays one user's side of the bot conversation in the terminal:
// each request is run, streamed, and any approval is asked of the operator.
type Session struct {
	cfg       SessionConfig
	surface   *Surface
	agent     agent.Agent
	approver  approval.Approver
	executor  *agent.Executor
	delivery  *delivery.Manager
	presenter *presentation.Presenter
	logger    logging.Logger
}

func NewSession(surface *Surface, ag agent.Agent, approver approval.Approver, cfg SessionConfig) (*Session, error) {
	if surface == nil || ag == nil || approver == nil {
		return nil, fmt.Errorf("console session requires a surface, an agent and an approver")
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.UserID == "" {
		cfg.UserID = DefaultUserID
	}
	logger := logging.OrNop(cfg.Logger)
	return &Session{
		cfg:      cfg,
		surface:  surface,
		agent:    ag,
		approver: approver,
		executor: agent.NewExecutor(agent.WithLogger(logger), agent.WithMetrics(cfg.Metrics), agent.WithTracer(cfg.Tracer)),
		delivery: delivery.NewManager(surface,
			delivery.WithLogger(logger),
			delivery.WithMetrics(cfg.Metrics),
			delivery.WithTracer(cfg.Tracer),
		),
		presenter: presentation.NewPresenter(surface, surface, logger),
		logger:    logger,
	}, nil
}

// Ask sends one request to the agent and carries it through approval.
func (s *Session) Ask(ctx context.Context, input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}
	channel := s.cfg.Channel

	threadTS, err := s.surface.PostMessage(ctx, channel, "", "> "+input)
	if err != nil {
		return err
	}
	progressTS, err := s.surface.PostMessage(ctx, channel, threadTS, processingText)
	if err != nil {
		return err
	}

	scope := agent.MemoryScope{ResourceID: s.cfg.UserID, ThreadID: channel + ":" + threadTS}
	result, err := delivery.Stream(ctx, s.delivery, delivery.Request{Channel: channel, ThreadTS: threadTS},
		func(ctx context.Context, onChunk agent.ChunkFunc) (agent.Result, error) {
			return s.executor.Run(ctx, s.agent, input, scope, onChunk), nil
		})
	if err == nil {
		err = s.presenter.PresentMention(ctx, result, presentation.MentionTarget{
			Channel:   channel,
			ThreadTS:  threadTS,
			MessageTS: progressTS,
			AgentName: s.agent.Name(),
		})
	}
	if err != nil {
		s.presenter.Reporter().Report(ctx, presentation.ErrorReport{
			Operation: "mention", Err: err, Channel: channel, ThreadTS: threadTS, MessageTS: progressTS,
		})
		return nil
	}

	pending, ok := result.(agent.ApprovalRequired)
	if !ok {
		return nil
	}
	resp, err := s.approver.RequestApproval(ctx, pending)
	if err != nil {
		return err
	}
	s.resume(ctx, pending, resp, threadTS)
	return nil
}

func (s *Session) resume(ctx context.Context, pending agent.ApprovalRequired, resp approval.Response, threadTS string) {
	req := delivery.Request{Channel: s.cfg.Channel, ThreadTS: threadTS}
	operation := "approve tool call"
	if !resp.Approved() {
		reason := resp.Reason
		if reason == "" {
			reason = defaultNoReason
		}
		s.logger.Info("Rejection reason for %s/%s: %s", pending.RunID, pending.ToolCallID, reason)
		req.InitialPrefix = rejectedPrefix
		operation = "decline tool call"
	}

	result, err := delivery.Stream(ctx, s.delivery, req, func(ctx context.Context, onChunk agent.ChunkFunc) (agent.Result, error) {
		return s.executor.Resume(ctx, s.agent, pending.RunID, pending.ToolCallID, resp.Decision, onChunk), nil
	})
	if err != nil {
		result = agent.Failed{Err: err}
	}
	s.presenter.PresentResume(ctx, result, presentation.ResumeTarget{Channel: s.cfg.Channel, ThreadTS: threadTS, Operation: operation})
}
