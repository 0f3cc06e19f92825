package presentation

import (
	"context"
	"fmt"
	"sync"

	"hitlbot/internal/agent"
	"hitlbot/internal/delivery"
)

// SurfaceCall records a single outbound call made through a RecordingSurface.
type SurfaceCall struct {
	Method   string // "PostMessage", "UpdateMessage", "DeleteMessage", "PostApprovalRequest", "StartStream", "AppendStream", "StopStream"
	Channel  string
	ThreadTS string
	TS       string
	Text     string
	Approval agent.ApprovalRequired
}

// RecordingSurface implements Messenger, ApprovalPoster and
// delivery.StreamClient by recording every call for later assertion.
type RecordingSurface struct {
	mu    sync.Mutex
	calls []SurfaceCall

	// Errors maps a method name to an error it always returns.
	Errors map[string]error

	// NextError, when set, is returned by the next call (any method) and then cleared.
	NextError error

	// StreamHandle is returned by StartStream. Defaults to "stream_recorded".
	StreamHandle string

	// DisableStreaming makes StartStream return an empty handle.
	DisableStreaming bool

	postCount int
}

var (
	_ Messenger             = (*RecordingSurface)(nil)
	_ ApprovalPoster        = (*RecordingSurface)(nil)
	_ delivery.StreamClient = (*RecordingSurface)(nil)
)

// NewRecordingSurface creates a RecordingSurface with defaults.
func NewRecordingSurface() *RecordingSurface {
	return &RecordingSurface{Errors: map[string]error{}}
}

// Record appends a call and returns the error configured for it. It is
// exported so surfaces with extra methods can embed RecordingSurface.
func (r *RecordingSurface) Record(call SurfaceCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	if r.NextError != nil {
		err := r.NextError
		r.NextError = nil
		return err
	}
	return r.Errors[call.Method]
}

func (r *RecordingSurface) nextTS() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.postCount++
	return fmt.Sprintf("ts_recorded_%d", r.postCount)
}

func (r *RecordingSurface) PostMessage(_ context.Context, channel, threadTS, text string) (string, error) {
	if err := r.Record(SurfaceCall{Method: "PostMessage", Channel: channel, ThreadTS: threadTS, Text: text}); err != nil {
		return "", err
	}
	return r.nextTS(), nil
}

func (r *RecordingSurface) UpdateMessage(_ context.Context, channel, ts, text string) error {
	return r.Record(SurfaceCall{Method: "UpdateMessage", Channel: channel, TS: ts, Text: text})
}

func (r *RecordingSurface) DeleteMessage(_ context.Context, channel, ts string) error {
	return r.Record(SurfaceCall{Method: "DeleteMessage", Channel: channel, TS: ts})
}

func (r *RecordingSurface) PostApprovalRequest(_ context.Context, channel, threadTS string, req agent.ApprovalRequired) (string, error) {
	if err := r.Record(SurfaceCall{Method: "PostApprovalRequest", Channel: channel, ThreadTS: threadTS, Approval: req}); err != nil {
		return "", err
	}
	return r.nextTS(), nil
}

func (r *RecordingSurface) StartStream(_ context.Context, req delivery.StartRequest) (string, error) {
	if err := r.Record(SurfaceCall{Method: "StartStream", Channel: req.Channel, ThreadTS: req.ThreadTS}); err != nil {
		return "", err
	}
	switch {
	case r.DisableStreaming:
		return "", nil
	case r.StreamHandle != "":
		return r.StreamHandle, nil
	default:
		return "stream_recorded", nil
	}
}

func (r *RecordingSurface) AppendStream(_ context.Context, req delivery.AppendRequest) error {
	return r.Record(SurfaceCall{Method: "AppendStream", Channel: req.Channel, TS: req.TS, Text: req.MarkdownText})
}

func (r *RecordingSurface) StopStream(_ context.Context, req delivery.StopRequest) error {
	return r.Record(SurfaceCall{Method: "StopStream", Channel: req.Channel, TS: req.TS, Text: req.MarkdownText})
}

// Calls returns a copy of all recorded calls.
func (r *RecordingSurface) Calls() []SurfaceCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SurfaceCall, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsByMethod returns recorded calls filtered by method name.
func (r *RecordingSurface) CallsByMethod(method string) []SurfaceCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []SurfaceCall
	for _, c := range r.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Methods returns the method names of all calls in order.
func (r *RecordingSurface) Methods() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.Method
	}
	return out
}

// Reset clears all recorded calls.
func (r *RecordingSurface) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
