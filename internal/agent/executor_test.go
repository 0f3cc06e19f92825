package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	boterrors "hitlbot/internal/errors"
	"hitlbot/internal/logging"
	"hitlbot/internal/observability"
)

type fakeAgent struct {
	mu sync.Mutex

	stream    *SliceStream
	streamErr error

	calls []string
	input string
	scope MemoryScope
}

func (a *fakeAgent) Name() string { return "assistant" }

func (a *fakeAgent) open(call string) (ChunkStream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
	if a.streamErr != nil {
		return nil, a.streamErr
	}
	if a.stream == nil {
		a.stream = NewSliceStream()
	}
	return a.stream, nil
}

func (a *fakeAgent) Stream(_ context.Context, input string, scope MemoryScope) (ChunkStream, error) {
	a.input = input
	a.scope = scope
	return a.open("stream")
}

func (a *fakeAgent) ApproveToolCall(_ context.Context, runID, toolCallID string) (ChunkStream, error) {
	return a.open(fmt.Sprintf("approve %s %s", runID, toolCallID))
}

func (a *fakeAgent) DeclineToolCall(_ context.Context, runID, toolCallID string) (ChunkStream, error) {
	return a.open(fmt.Sprintf("decline %s %s", runID, toolCallID))
}

type recordedChunks struct {
	texts []string
}

func (r *recordedChunks) onChunk(_ context.Context, text string) error {
	r.texts = append(r.texts, text)
	return nil
}

func TestRunCollectsTextAndForwardsFragmentsInOrder(t *testing.T) {
	ag := &fakeAgent{stream: NewSliceStream(TextDelta("Hello "), TextDelta("world"))}
	rec := &recordedChunks{}

	result := NewExecutor().Run(context.Background(), ag, "hi", MemoryScope{ResourceID: "U1", ThreadID: "C1:1.0"}, rec.onChunk)

	assert.Equal(t, Completed{Text: "Hello world"}, result)
	assert.Equal(t, []string{"Hello ", "world"}, rec.texts)
	assert.Equal(t, "hi", ag.input)
	assert.Equal(t, MemoryScope{ResourceID: "U1", ThreadID: "C1:1.0"}, ag.scope)
	assert.True(t, ag.stream.Closed())
}

func TestRunWithoutCallback(t *testing.T) {
	ag := &fakeAgent{stream: NewSliceStream(TextDelta("ok"))}
	result := NewExecutor().Run(context.Background(), ag, "hi", MemoryScope{}, nil)
	assert.Equal(t, Completed{Text: "ok"}, result)
}

func TestRunEmptyStreamFallsBackToDone(t *testing.T) {
	ag := &fakeAgent{stream: NewSliceStream()}
	result := NewExecutor().Run(context.Background(), ag, "hi", MemoryScope{}, nil)
	assert.Equal(t, Completed{Text: "Done."}, result)
}

func TestRunDrainsStreamAfterApprovalRequest(t *testing.T) {
	args := NewArgs()
	args.Set("title", "Sync")
	args.Set("start", "2024-01-01T15:00")

	stream := NewSliceStream(
		TextDelta("Let me book that. "),
		ToolCallApproval("run-1", "tc-1", "createEvent", args),
		TextDelta("trailing"),
		Chunk{Type: "step-finish"},
		ToolCallApproval("run-1", "tc-2", "deleteEvent", nil),
		Chunk{Type: "finish"},
	)
	ag := &fakeAgent{stream: stream}
	rec := &recordedChunks{}

	result := NewExecutor().Run(context.Background(), ag, "book", MemoryScope{}, rec.onChunk)

	require.IsType(t, ApprovalRequired{}, result)
	approval := result.(ApprovalRequired)
	assert.Equal(t, "assistant", approval.AgentName)
	assert.Equal(t, "run-1", approval.RunID)
	assert.Equal(t, "tc-1", approval.ToolCallID)
	assert.Equal(t, "createEvent", approval.ToolName)
	assert.Equal(t, []string{"title", "start"}, keys(approval.Args))

	assert.Equal(t, 6, stream.Consumed(), "every chunk must be consumed before returning")
	assert.Equal(t, []string{"Let me book that. ", "trailing"}, rec.texts)
	assert.True(t, stream.Closed())
}

func TestRunApprovalDefaults(t *testing.T) {
	ag := &fakeAgent{stream: NewSliceStream(Chunk{
		Type:    ChunkTypeToolCallApproval,
		Payload: []byte(`{"toolCallId":"tc-1","toolName":"createEvent"}`),
	})}

	result := NewExecutor().Run(context.Background(), ag, "book", MemoryScope{}, nil)

	require.IsType(t, ApprovalRequired{}, result)
	approval := result.(ApprovalRequired)
	assert.Equal(t, "", approval.RunID)
	require.NotNil(t, approval.Args)
	assert.Equal(t, 0, approval.Args.Len())
	assert.Equal(t, "{}", approval.ArgsJSON())
}

func TestApprovalArgsJSONKeepsAgentOrder(t *testing.T) {
	ag := &fakeAgent{stream: NewSliceStream(Chunk{
		Type:    ChunkTypeToolCallApproval,
		RunID:   "run-1",
		Payload: []byte(`{"toolCallId":"tc-1","toolName":"createEvent","args":{"zeta":1,"alpha":"a"}}`),
	})}

	result := NewExecutor().Run(context.Background(), ag, "book", MemoryScope{}, nil)

	approval := result.(ApprovalRequired)
	assert.Equal(t, "{\n  \"zeta\": 1,\n  \"alpha\": \"a\"\n}", approval.ArgsJSON())
}

func TestRunCallbackErrorAbortsWithFailure(t *testing.T) {
	stream := NewSliceStream(TextDelta("a"), TextDelta("b"))
	ag := &fakeAgent{stream: stream}
	boom := errors.New("append failed")

	result := NewExecutor().Run(context.Background(), ag, "hi", MemoryScope{}, func(context.Context, string) error {
		return boom
	})

	require.IsType(t, Failed{}, result)
	assert.ErrorIs(t, result.(Failed).Err, boom)
	assert.True(t, stream.Closed())
}

func TestRunMalformedPayloadFails(t *testing.T) {
	ag := &fakeAgent{stream: NewSliceStream(Chunk{Type: ChunkTypeTextDelta, Payload: []byte(`{"text":`)})}
	result := NewExecutor().Run(context.Background(), ag, "hi", MemoryScope{}, nil)
	require.IsType(t, Failed{}, result)
	assert.Contains(t, result.(Failed).Error(), "decode text-delta payload")
}

func TestRunAndResumeMapMissingCheckpointToSessionExpired(t *testing.T) {
	missing := errors.New("No snapshot found for run run-1")
	exec := NewExecutor()

	cases := map[string]func(ag Agent) Result{
		"run": func(ag Agent) Result {
			return exec.Run(context.Background(), ag, "hi", MemoryScope{}, nil)
		},
		"approve": func(ag Agent) Result {
			return exec.Resume(context.Background(), ag, "run-1", "tc-1", DecisionApprove, nil)
		},
		"decline": func(ag Agent) Result {
			return exec.Resume(context.Background(), ag, "run-1", "tc-1", DecisionDecline, nil)
		},
	}
	for name, call := range cases {
		t.Run(name+" start", func(t *testing.T) {
			result := call(&fakeAgent{streamErr: missing})
			require.IsType(t, Failed{}, result)
			err := result.(Failed).Err
			assert.True(t, boterrors.IsSessionExpired(err))
			assert.Equal(t, boterrors.SessionExpiredMessage, err.Error())
			assert.ErrorIs(t, err, missing)
		})
		t.Run(name+" iterate", func(t *testing.T) {
			result := call(&fakeAgent{stream: NewSliceStream(TextDelta("partial")).FailAfter(missing)})
			require.IsType(t, Failed{}, result)
			assert.True(t, boterrors.IsSessionExpired(result.(Failed).Err))
		})
	}
}

func TestRunPassesOtherErrorsThrough(t *testing.T) {
	cause := errors.New("Unknown error")
	result := NewExecutor().Run(context.Background(), &fakeAgent{streamErr: cause}, "hi", MemoryScope{}, nil)

	require.IsType(t, Failed{}, result)
	assert.Same(t, cause, result.(Failed).Err)
	assert.Equal(t, "Unknown error", result.(Failed).Error())
}

func TestResumeFallbacks(t *testing.T) {
	exec := NewExecutor()

	approved := &fakeAgent{}
	result := exec.Resume(context.Background(), approved, "run-1", "tc-1", DecisionApprove, nil)
	assert.Equal(t, Completed{Text: "✅ Completed."}, result)
	assert.Equal(t, []string{"approve run-1 tc-1"}, approved.calls)

	declined := &fakeAgent{}
	result = exec.Resume(context.Background(), declined, "run-1", "tc-1", DecisionDecline, nil)
	assert.Equal(t, Completed{Text: "No response."}, result)
	assert.Equal(t, []string{"decline run-1 tc-1"}, declined.calls)
}

func TestResumeStreamsText(t *testing.T) {
	ag := &fakeAgent{stream: NewSliceStream(TextDelta("Event "), TextDelta("created."))}
	rec := &recordedChunks{}

	result := NewExecutor().Resume(context.Background(), ag, "run-1", "tc-1", DecisionApprove, rec.onChunk)

	assert.Equal(t, Completed{Text: "Event created."}, result)
	assert.Equal(t, []string{"Event ", "created."}, rec.texts)
}

func TestResumeLogsCarryRunID(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.FromObservabilityWithComponent(observability.NewLogger(observability.LogConfig{Output: buf}), "agent")
	ag := &fakeAgent{streamErr: errors.New("runtime unavailable")}

	result := NewExecutor(WithLogger(logger)).Resume(context.Background(), ag, "run-7", "tc-1", DecisionApprove, nil)

	require.IsType(t, Failed{}, result)
	assert.Contains(t, buf.String(), "Agent execution failed")
	assert.Contains(t, buf.String(), "run_id=run-7")
}

func TestResumeUnknownDecision(t *testing.T) {
	ag := &fakeAgent{}
	result := NewExecutor().Resume(context.Background(), ag, "run-1", "tc-1", Decision("maybe"), nil)
	require.IsType(t, Failed{}, result)
	assert.Empty(t, ag.calls)
}

func keys(args *Args) []string {
	var out []string
	for pair := args.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}
