package agent

import (
	"context"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Chunk types the executor understands. Anything else is ignored.
const (
	ChunkTypeTextDelta        = "text-delta"
	ChunkTypeToolCallApproval = "tool-call-approval"
)

// Chunk is one record of an agent's output stream.
type Chunk struct {
	Type    string          `json:"type"`
	RunID   string          `json:"runId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TextDeltaPayload is the payload of a text-delta chunk.
type TextDeltaPayload struct {
	Text string `json:"text"`
}

// ToolCallApprovalPayload is the payload of a tool-call-approval chunk.
type ToolCallApprovalPayload struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Args       *Args  `json:"args,omitempty"`
}

// Args preserves the key order the agent produced for tool arguments.
type Args = orderedmap.OrderedMap[string, any]

// NewArgs returns an empty argument mapping.
func NewArgs() *Args {
	return orderedmap.New[string, any]()
}

// TextDelta builds a text-delta chunk.
func TextDelta(text string) Chunk {
	payload, _ := json.Marshal(TextDeltaPayload{Text: text})
	return Chunk{Type: ChunkTypeTextDelta, Payload: payload}
}

// ToolCallApproval builds a tool-call-approval chunk.
func ToolCallApproval(runID, toolCallID, toolName string, args *Args) Chunk {
	payload, _ := json.Marshal(ToolCallApprovalPayload{ToolCallID: toolCallID, ToolName: toolName, Args: args})
	return Chunk{Type: ChunkTypeToolCallApproval, RunID: runID, Payload: payload}
}

// ChunkStream iterates an agent's output. Next returns io.EOF once the stream
// is exhausted. Close releases the underlying connection and is safe to call
// more than once.
type ChunkStream interface {
	Next(ctx context.Context) (Chunk, error)
	Close() error
}

// MemoryScope keys the agent's conversation memory.
type MemoryScope struct {
	ResourceID string
	ThreadID   string
}

// Agent is the remote agent runtime a run is executed against.
type Agent interface {
	Name() string
	Stream(ctx context.Context, input string, scope MemoryScope) (ChunkStream, error)
	ApproveToolCall(ctx context.Context, runID, toolCallID string) (ChunkStream, error)
	DeclineToolCall(ctx context.Context, runID, toolCallID string) (ChunkStream, error)
}

// ChunkFunc receives text fragments as they are produced. Calls are strictly
// sequential and in stream order.
type ChunkFunc func(ctx context.Context, text string) error

// Decision is the human verdict on a paused tool call.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDecline Decision = "decline"
)

// Result kinds.
const (
	KindCompleted        = "completed"
	KindApprovalRequired = "approval-required"
	KindError            = "error"
)

// Result is the outcome of a run or resume. It is one of Completed,
// ApprovalRequired or Failed.
type Result interface {
	Kind() string
}

// Completed carries the full text the agent produced.
type Completed struct {
	Text string
}

func (Completed) Kind() string { return KindCompleted }

// FinalText returns the authoritative text for delivery reconciliation.
func (c Completed) FinalText() (string, bool) { return c.Text, true }

// ApprovalRequired means the run paused on a tool call that needs a human
// decision before it can continue.
type ApprovalRequired struct {
	AgentName  string
	RunID      string
	ToolCallID string
	ToolName   string
	Args       *Args
}

func (ApprovalRequired) Kind() string { return KindApprovalRequired }

// ArgsJSON renders the tool arguments as indented JSON in agent key order.
func (a ApprovalRequired) ArgsJSON() string {
	args := a.Args
	if args == nil {
		args = NewArgs()
	}
	data, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", err)
	}
	return string(data)
}

// Failed wraps the error that ended a run.
type Failed struct {
	Err error
}

func (Failed) Kind() string { return KindError }

func (f Failed) Error() string {
	if f.Err == nil {
		return "unknown error"
	}
	return f.Err.Error()
}

func (f Failed) Unwrap() error { return f.Err }
