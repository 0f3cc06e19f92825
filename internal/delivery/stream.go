package delivery

import (
	"context"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"go.opentelemetry.io/otel/attribute"

	"hitlbot/internal/agent"
	"hitlbot/internal/logging"
	"hitlbot/internal/observability"
)

// StartRequest opens a streamed message anchored to a thread.
type StartRequest struct {
	Channel         string
	ThreadTS        string
	RecipientTeamID string
	RecipientUserID string
}

// AppendRequest appends markdown to an open streamed message.
type AppendRequest struct {
	Channel      string
	TS           string
	MarkdownText string
}

// StopRequest closes a streamed message. An empty MarkdownText closes
// without a final edit.
type StopRequest struct {
	Channel      string
	TS           string
	MarkdownText string
}

// StreamClient is the surface's incremental message API.
type StreamClient interface {
	StartStream(ctx context.Context, req StartRequest) (string, error)
	AppendStream(ctx context.Context, req AppendRequest) error
	StopStream(ctx context.Context, req StopRequest) error
}

// Request describes where a managed stream is published.
type Request struct {
	Channel  string
	ThreadTS string
	// InitialPrefix is prepended to the first fragment only.
	InitialPrefix   string
	RecipientTeamID string
	RecipientUserID string
}

// FinalTexter is implemented by results that carry authoritative final text.
type FinalTexter interface {
	FinalText() (string, bool)
}

// ExecuteFunc runs the work being streamed, reporting fragments via onChunk.
type ExecuteFunc[T any] func(ctx context.Context, onChunk agent.ChunkFunc) (T, error)

// Reconcile modes recorded when a session closes.
const (
	ReconcileNone    = "none"
	ReconcileSuffix  = "suffix"
	ReconcileFull    = "full"
	ReconcileAborted = "aborted"
)

// Manager publishes partial output through a StreamClient.
type Manager struct {
	client  StreamClient
	logger  logging.Logger
	metrics *observability.MetricsCollector
	tracer  *observability.TracerProvider
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(logger logging.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithMetrics(metrics *observability.MetricsCollector) Option {
	return func(m *Manager) { m.metrics = metrics }
}

func WithTracer(tracer *observability.TracerProvider) Option {
	return func(m *Manager) { m.tracer = tracer }
}

// NewManager creates a Manager over client.
func NewManager(client StreamClient, opts ...Option) *Manager {
	m := &Manager{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.logger = logging.OrNop(m.logger)
	return m
}

// session is one open/append/close lifecycle. It is owned by a single Stream
// call and never shared.
type session struct {
	req      Request
	handle   string
	sent     strings.Builder
	prefixed bool
	open     bool
}

// Stream runs execute while forwarding its fragments to a streamed message,
// then reconciles what was sent against the result's final text. The session
// is opened at most once and closed exactly once. When the surface cannot
// open a session, execute still runs with a no-op callback.
func Stream[T any](ctx context.Context, m *Manager, req Request, execute ExecuteFunc[T]) (T, error) {
	logger := logging.FromContext(ctx, m.logger)
	ctx, span := m.tracer.StartSpan(ctx, observability.SpanDelivery, attribute.String(observability.AttrChannel, req.Channel))
	defer span.End()

	handle, err := m.client.StartStream(ctx, StartRequest{
		Channel:         req.Channel,
		ThreadTS:        req.ThreadTS,
		RecipientTeamID: req.RecipientTeamID,
		RecipientUserID: req.RecipientUserID,
	})
	if err != nil {
		logger.Warn("Failed to start stream in %s: %v", req.Channel, err)
	}
	if err != nil || handle == "" {
		return execute(ctx, func(context.Context, string) error { return nil })
	}

	s := &session{req: req, handle: handle, open: true}
	result, execErr := execute(ctx, func(ctx context.Context, text string) error {
		return m.append(ctx, s, text)
	})
	s.open = false

	if execErr != nil {
		if closeErr := m.client.StopStream(ctx, StopRequest{Channel: req.Channel, TS: handle}); closeErr != nil {
			logger.Error("Failed to close stream %s after execution error: %v", handle, closeErr)
		}
		m.metrics.RecordStreamReconcile(ctx, ReconcileAborted)
		return result, execErr
	}

	closing, mode := m.reconcile(logger, s, result)
	m.metrics.RecordStreamReconcile(ctx, mode)
	if err := m.client.StopStream(ctx, StopRequest{Channel: req.Channel, TS: handle, MarkdownText: closing}); err != nil {
		return result, fmt.Errorf("close stream %s: %w", handle, err)
	}
	return result, nil
}

func (m *Manager) append(ctx context.Context, s *session, text string) error {
	if !s.open {
		return nil
	}
	if !s.prefixed {
		s.prefixed = true
		text = s.req.InitialPrefix + text
	}
	s.sent.WriteString(text)
	m.metrics.RecordStreamFragment(ctx)
	return m.client.AppendStream(ctx, AppendRequest{Channel: s.req.Channel, TS: s.handle, MarkdownText: text})
}

// reconcile returns the text to send when closing and the mode it chose.
func (m *Manager) reconcile(logger logging.Logger, s *session, result any) (string, string) {
	final, ok := finalText(result)
	if !ok {
		return "", ReconcileNone
	}
	expected := s.req.InitialPrefix + final
	sent := s.sent.String()
	switch {
	case sent == expected:
		return "", ReconcileNone
	case strings.HasPrefix(expected, sent):
		return expected[len(sent):], ReconcileSuffix
	default:
		logger.Warn("Streamed text diverged from final text in %s (%s); sending full text", s.handle, diffSummary(sent, expected))
		return expected, ReconcileFull
	}
}

func finalText(result any) (string, bool) {
	switch r := result.(type) {
	case string:
		return r, true
	case FinalTexter:
		return r.FinalText()
	default:
		return "", false
	}
}

func diffSummary(sent, expected string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(sent, expected, false)
	return fmt.Sprintf("distance=%d delta=%s", dmp.DiffLevenshtein(diffs), dmp.DiffToDelta(diffs))
}
