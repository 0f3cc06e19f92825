package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	boterrors "hitlbot/internal/errors"
	"hitlbot/internal/logging"
	"hitlbot/internal/observability"
)

// Fallback texts used when a call produces no text at all.
const (
	RunFallbackText     = "Done."
	ApproveFallbackText = "✅ Completed."
	DeclineFallbackText = "No response."
)

// Executor drives agent runs and normalizes their outcome. It holds no
// per-run state and is safe for concurrent use.
type Executor struct {
	logger  logging.Logger
	tracer  *observability.TracerProvider
	metrics *observability.MetricsCollector
	clock   func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(logger logging.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// WithTracer enables per-call spans.
func WithTracer(tracer *observability.TracerProvider) ExecutorOption {
	return func(e *Executor) { e.tracer = tracer }
}

// WithMetrics enables run outcome metrics.
func WithMetrics(metrics *observability.MetricsCollector) ExecutorOption {
	return func(e *Executor) { e.metrics = metrics }
}

// NewExecutor creates an executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.logger = logging.OrNop(e.logger)
	return e
}

// Run starts a fresh run with the user's input.
func (e *Executor) Run(ctx context.Context, ag Agent, input string, scope MemoryScope, onChunk ChunkFunc) Result {
	ctx, span := e.tracer.StartSpan(ctx, observability.SpanAgentRun, attribute.String(observability.AttrAgentName, ag.Name()))
	defer span.End()

	start := e.clock()
	result := e.execute(ctx, ag, RunFallbackText, onChunk, func(ctx context.Context) (ChunkStream, error) {
		return ag.Stream(ctx, input, scope)
	})
	e.finish(ctx, span, "run", result, start)
	return result
}

// Resume continues a paused run after a human decision.
func (e *Executor) Resume(ctx context.Context, ag Agent, runID, toolCallID string, decision Decision, onChunk ChunkFunc) Result {
	attrs := observability.RunAttrs(ag.Name(), runID, toolCallID)
	attrs = append(attrs, attribute.String(observability.AttrDecision, string(decision)))
	ctx, span := e.tracer.StartSpan(observability.ContextWithRunID(ctx, runID), observability.SpanAgentResume, attrs...)
	defer span.End()

	start := e.clock()
	var result Result
	switch decision {
	case DecisionApprove:
		result = e.execute(ctx, ag, ApproveFallbackText, onChunk, func(ctx context.Context) (ChunkStream, error) {
			return ag.ApproveToolCall(ctx, runID, toolCallID)
		})
	case DecisionDecline:
		result = e.execute(ctx, ag, DeclineFallbackText, onChunk, func(ctx context.Context) (ChunkStream, error) {
			return ag.DeclineToolCall(ctx, runID, toolCallID)
		})
	default:
		result = Failed{Err: fmt.Errorf("unknown decision %q", decision)}
	}
	e.finish(ctx, span, string(decision), result, start)
	return result
}

type openFunc func(ctx context.Context) (ChunkStream, error)

func (e *Executor) execute(ctx context.Context, ag Agent, fallback string, onChunk ChunkFunc, open openFunc) Result {
	logger := logging.FromContext(ctx, e.logger)

	stream, err := open(ctx)
	if err != nil {
		return e.fail(logger, err)
	}
	defer func() {
		if closeErr := stream.Close(); closeErr != nil {
			logger.Warn("Failed to close agent stream: %v", closeErr)
		}
	}()

	text, approval, err := e.drain(ctx, logger, stream, onChunk)
	if err != nil {
		return e.fail(logger, err)
	}
	if approval != nil {
		approval.AgentName = ag.Name()
		return *approval
	}
	if text == "" {
		text = fallback
	}
	return Completed{Text: text}
}

// drain consumes the stream until io.EOF. The agent runtime persists the
// resumable checkpoint only after the caller reads the whole stream, so the
// loop keeps going after an approval request is seen.
func (e *Executor) drain(ctx context.Context, logger logging.Logger, stream ChunkStream, onChunk ChunkFunc) (string, *ApprovalRequired, error) {
	var (
		text     strings.Builder
		approval *ApprovalRequired
	)
	for {
		chunk, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, err
		}

		switch chunk.Type {
		case ChunkTypeTextDelta:
			var payload TextDeltaPayload
			if err := decodePayload(chunk, &payload); err != nil {
				return "", nil, err
			}
			text.WriteString(payload.Text)
			if onChunk != nil {
				if err := onChunk(ctx, payload.Text); err != nil {
					return "", nil, err
				}
			}
		case ChunkTypeToolCallApproval:
			var payload ToolCallApprovalPayload
			if err := decodePayload(chunk, &payload); err != nil {
				return "", nil, err
			}
			if approval != nil {
				logger.Warn("Ignoring extra tool-call approval %s/%s while %s/%s is pending",
					chunk.RunID, payload.ToolCallID, approval.RunID, approval.ToolCallID)
				continue
			}
			args := payload.Args
			if args == nil {
				args = NewArgs()
			}
			approval = &ApprovalRequired{
				RunID:      chunk.RunID,
				ToolCallID: payload.ToolCallID,
				ToolName:   payload.ToolName,
				Args:       args,
			}
			logger.Info("Tool call %s (%s) awaiting approval in run %s", payload.ToolCallID, payload.ToolName, chunk.RunID)
		}
	}
	return text.String(), approval, nil
}

func (e *Executor) fail(logger logging.Logger, err error) Result {
	classified := boterrors.ClassifyAgentError(err)
	if boterrors.IsSessionExpired(classified) {
		logger.Warn("Agent checkpoint missing: %v", err)
	} else {
		logger.Error("Agent execution failed: %v", err)
	}
	return Failed{Err: classified}
}

func (e *Executor) finish(ctx context.Context, span trace.Span, mode string, result Result, start time.Time) {
	span.SetAttributes(attribute.String(observability.AttrOutcome, result.Kind()))
	switch r := result.(type) {
	case ApprovalRequired:
		span.SetAttributes(observability.RunAttrs(r.AgentName, r.RunID, r.ToolCallID)...)
		span.SetAttributes(attribute.String(observability.AttrToolName, r.ToolName))
	case Failed:
		span.SetStatus(codes.Error, r.Error())
	}
	e.metrics.RecordAgentRun(ctx, mode, result.Kind(), e.clock().Sub(start))
}

func decodePayload(chunk Chunk, target any) error {
	if len(chunk.Payload) == 0 || string(chunk.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(chunk.Payload, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", chunk.Type, err)
	}
	return nil
}
