package slack

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"hitlbot/internal/agent"
	"hitlbot/internal/approval"
	"hitlbot/internal/delivery"
	boterrors "hitlbot/internal/errors"
	"hitlbot/internal/logging"
	"hitlbot/internal/observability"
	"hitlbot/internal/presentation"
)

var mentionPattern = regexp.MustCompile(`<@[^>]*>`)

// MentionEvent is an app mention addressed to the bot.
type MentionEvent struct {
	Channel  string
	Text     string
	TS       string
	ThreadTS string
	TeamID   string
	UserID   string
}

// ActionEvent is a click on an approval button.
type ActionEvent struct {
	ActionID        string
	Channel         string
	MessageTS       string
	MessageThreadTS string
	TriggerID       string
}

// ViewSubmission is a submitted rejection-reason modal.
type ViewSubmission struct {
	CallbackID      string
	PrivateMetadata string
	Reason          string
}

// AgentResolver looks up agents by name.
type AgentResolver interface {
	Get(name string) (agent.Agent, error)
}

// Handler runs the mention, approve and reject flows.
type Handler struct {
	cfg       Config
	surface   Surface
	agents    AgentResolver
	executor  *agent.Executor
	delivery  *delivery.Manager
	presenter *presentation.Presenter
	codec     approval.IdentityCodec
	logger    logging.Logger
}

// HandlerDeps are the collaborators of a Handler.
type HandlerDeps struct {
	Surface Surface
	// Streams publishes incremental output. Nil, or Config.Streaming off,
	// falls back to a BufferedStream on Surface.
	Streams  delivery.StreamClient
	Agents   AgentResolver
	Executor *agent.Executor
	Metrics  *observability.MetricsCollector
	Tracer   *observability.TracerProvider
	Logger   logging.Logger
}

// NewHandler wires the flows.
func NewHandler(cfg Config, deps HandlerDeps) (*Handler, error) {
	if deps.Surface == nil {
		return nil, fmt.Errorf("slack handler requires a surface")
	}
	if deps.Agents == nil {
		return nil, fmt.Errorf("slack handler requires an agent resolver")
	}
	cfg = cfg.withDefaults()
	logger := logging.OrNop(deps.Logger)
	executor := deps.Executor
	if executor == nil {
		executor = agent.NewExecutor(agent.WithLogger(logger), agent.WithMetrics(deps.Metrics), agent.WithTracer(deps.Tracer))
	}
	streams := deps.Streams
	if streams == nil || !cfg.Streaming {
		streams = NewBufferedStream(deps.Surface)
	}
	return &Handler{
		cfg:      cfg,
		surface:  deps.Surface,
		agents:   deps.Agents,
		executor: executor,
		delivery: delivery.NewManager(streams,
			delivery.WithLogger(logger),
			delivery.WithMetrics(deps.Metrics),
			delivery.WithTracer(deps.Tracer),
		),
		presenter: presentation.NewPresenter(deps.Surface, deps.Surface, logger),
		codec:     approval.IdentityCodec{LegacyAgentName: cfg.LegacyAgentName, Logger: logger},
		logger:    logger,
	}, nil
}

// HandleMention answers an app mention: it posts a progress message, streams
// the agent run into the thread and presents the outcome.
func (h *Handler) HandleMention(ctx context.Context, ev MentionEvent) error {
	logger := logging.FromContext(ctx, h.logger)

	text := strings.TrimSpace(mentionPattern.ReplaceAllString(ev.Text, ""))
	if text == "" {
		_, err := h.surface.PostMessage(ctx, ev.Channel, ev.ThreadTS, EmptyMentionText)
		return err
	}
	if ev.UserID == "" {
		_, err := h.surface.PostMessage(ctx, ev.Channel, ev.ThreadTS, UnknownUserText)
		return err
	}

	threadTS := ev.ThreadTS
	if threadTS == "" {
		threadTS = ev.TS
	}
	progressTS, err := h.surface.PostMessage(ctx, ev.Channel, threadTS, ProcessingText)
	if err != nil {
		return err
	}
	if progressTS == "" {
		progressTS = ev.TS
	}

	ag, err := h.agents.Get(h.cfg.DefaultAgent)
	if err != nil {
		h.reportMentionError(ctx, ev.Channel, threadTS, progressTS, err)
		return nil
	}
	logger.Info("Running agent %s for %s in %s", ag.Name(), ev.UserID, ev.Channel)

	scope := agent.MemoryScope{ResourceID: ev.UserID, ThreadID: ThreadID(ev.Channel, ev.ThreadTS, ev.TS)}
	result, err := delivery.Stream(ctx, h.delivery, delivery.Request{
		Channel:         ev.Channel,
		ThreadTS:        threadTS,
		RecipientTeamID: ev.TeamID,
		RecipientUserID: ev.UserID,
	}, func(ctx context.Context, onChunk agent.ChunkFunc) (agent.Result, error) {
		return h.executor.Run(ctx, ag, text, scope, onChunk), nil
	})
	if err == nil {
		err = h.presenter.PresentMention(ctx, result, presentation.MentionTarget{
			Channel:   ev.Channel,
			ThreadTS:  threadTS,
			MessageTS: progressTS,
			AgentName: ag.Name(),
		})
	}
	if err != nil {
		h.reportMentionError(ctx, ev.Channel, threadTS, progressTS, err)
	}
	return nil
}

func (h *Handler) reportMentionError(ctx context.Context, channel, threadTS, progressTS string, err error) {
	h.presenter.Reporter().Report(ctx, presentation.ErrorReport{
		Operation: "mention",
		Err:       err,
		Channel:   channel,
		ThreadTS:  threadTS,
		MessageTS: progressTS,
	})
}

// HandleAction handles an Approve or Reject click. Malformed identities are
// logged and dropped since they come from stale or tampered messages.
func (h *Handler) HandleAction(ctx context.Context, ev ActionEvent) error {
	logger := logging.FromContext(ctx, h.logger)

	id, err := h.codec.Decode(ev.ActionID)
	if err != nil {
		if boterrors.IsFormat(err) {
			logger.Error("Invalid action ID: %v", err)
			return nil
		}
		return err
	}
	if ev.Channel == "" || ev.MessageTS == "" {
		logger.Error("Missing channel or message for action %s", ev.ActionID)
		return nil
	}

	switch id.ActionType {
	case approval.ActionApprove:
		return h.approve(ctx, id, ev)
	case approval.ActionReject:
		h.openRejectionModal(ctx, logger, id, ev)
		return nil
	default:
		logger.Error("Unknown action type: %s", id.ActionType)
		return nil
	}
}

func (h *Handler) approve(ctx context.Context, id approval.Identity, ev ActionEvent) error {
	if err := h.surface.UpdateApprovalStatus(ctx, ev.Channel, ev.MessageTS, StatusApproved); err != nil {
		return err
	}
	threadTS := ev.MessageThreadTS
	if threadTS == "" {
		threadTS = ev.MessageTS
	}
	h.resume(ctx, id, agent.DecisionApprove, ev.Channel, threadTS, "", "approve tool call")
	return nil
}

func (h *Handler) openRejectionModal(ctx context.Context, logger logging.Logger, id approval.Identity, ev ActionEvent) {
	if ev.TriggerID == "" {
		logger.Error("Missing trigger_id for reject action %s", ev.ActionID)
		return
	}
	view, err := RejectionModal(id, approval.Metadata{
		AgentName:  id.AgentName,
		RunID:      id.RunID,
		ToolCallID: id.ToolCallID,
		ChannelID:  ev.Channel,
		MessageTS:  ev.MessageTS,
		ThreadTS:   ev.MessageThreadTS,
	})
	if err != nil {
		logger.Error("Failed to build rejection modal: %v", err)
		return
	}
	if err := h.surface.OpenRejectionModal(ctx, ev.TriggerID, view); err != nil {
		logger.Error("Error opening modal: %v", err)
	}
}

// HandleViewSubmission handles a submitted rejection reason and resumes the
// run with a decline.
func (h *Handler) HandleViewSubmission(ctx context.Context, sub ViewSubmission) error {
	logger := logging.FromContext(ctx, h.logger)

	id, err := h.codec.Decode(sub.CallbackID)
	if err != nil {
		if boterrors.IsFormat(err) {
			logger.Error("Invalid callback_id: %v", err)
			return nil
		}
		return err
	}
	if id.ActionType != approval.ActionRejectReason {
		logger.Error("Unexpected view callback type: %s", id.ActionType)
		return nil
	}

	reason := strings.TrimSpace(sub.Reason)
	if reason == "" {
		reason = NoReasonText
	}

	meta, err := approval.DeserializeMetadata(sub.PrivateMetadata)
	if err != nil {
		logger.Error("Invalid metadata: %v", err)
		return nil
	}

	if err := h.surface.UpdateApprovalStatus(ctx, meta.ChannelID, meta.MessageTS, StatusRejected); err != nil {
		return err
	}

	// The agent API has no field for the reason yet.
	logger.Info("Rejection reason for %s/%s: %s", id.RunID, id.ToolCallID, reason)
	h.resume(ctx, id, agent.DecisionDecline, meta.ChannelID, meta.ThreadAnchor(), RejectedPrefix, "decline tool call")
	return nil
}

func (h *Handler) resume(ctx context.Context, id approval.Identity, decision agent.Decision, channel, threadTS, prefix, operation string) {
	target := presentation.ResumeTarget{Channel: channel, ThreadTS: threadTS, Operation: operation}

	ag, err := h.agents.Get(id.AgentName)
	if err != nil {
		h.presenter.PresentResume(ctx, agent.Failed{Err: err}, target)
		return
	}

	result, err := delivery.Stream(ctx, h.delivery, delivery.Request{
		Channel:       channel,
		ThreadTS:      threadTS,
		InitialPrefix: prefix,
	}, func(ctx context.Context, onChunk agent.ChunkFunc) (agent.Result, error) {
		return h.executor.Resume(ctx, ag, id.RunID, id.ToolCallID, decision, onChunk), nil
	})
	if err != nil {
		result = agent.Failed{Err: err}
	}
	h.presenter.PresentResume(ctx, result, target)
}
