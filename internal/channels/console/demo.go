package console

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"hitlbot/internal/agent"
)

// DemoToolName is the tool the demo agent asks approval for.
const DemoToolName = "createEvent"

// DemoAgent is a scripted calendar assistant. Every request pauses on a
// createEvent tool call; the run can then be approved or declined once.
type DemoAgent struct {
	name string

	mu   sync.Mutex
	runs map[string]demoRun
}

type demoRun struct {
	toolCallID string
	summary    string
}

var _ agent.Agent = (*DemoAgent)(nil)

func NewDemoAgent(name string) *DemoAgent {
	if name == "" {
		name = "assistant"
	}
	return &DemoAgent{name: name, runs: make(map[string]demoRun)}
}

func (d *DemoAgent) Name() string { return d.name }

func (d *DemoAgent) Stream(_ context.Context, input string, scope agent.MemoryScope) (agent.ChunkStream, error) {
	summary := strings.TrimSpace(input)
	if summary == "" {
		return agent.NewSliceStream(words("What should I put on your calendar?")...), nil
	}

	runID := uuid.NewString()
	toolCallID := "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	d.mu.Lock()
	d.runs[runID] = demoRun{toolCallID: toolCallID, summary: summary}
	d.mu.Unlock()

	args := agent.NewArgs()
	args.Set("summary", summary)
	args.Set("calendarId", "primary")
	args.Set("attendees", []string{scope.ResourceID})

	chunks := words("I'll create that event for you.")
	chunks = append(chunks, agent.ToolCallApproval(runID, toolCallID, DemoToolName, args))
	return agent.NewSliceStream(chunks...), nil
}

func (d *DemoAgent) ApproveToolCall(_ context.Context, runID, toolCallID string) (agent.ChunkStream, error) {
	run, err := d.take(runID, toolCallID)
	if err != nil {
		return nil, err
	}
	return agent.NewSliceStream(words(fmt.Sprintf("Done! %q is on your calendar.", run.summary))...), nil
}

func (d *DemoAgent) DeclineToolCall(_ context.Context, runID, toolCallID string) (agent.ChunkStream, error) {
	if _, err := d.take(runID, toolCallID); err != nil {
		return nil, err
	}
	return agent.NewSliceStream(words("Understood, I left your calendar unchanged.")...), nil
}

// take consumes a paused run. Unknown runs fail the way the agent runtime
// does when its snapshot is gone.
func (d *DemoAgent) take(runID, toolCallID string) (demoRun, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	run, ok := d.runs[runID]
	if !ok {
		return demoRun{}, fmt.Errorf("No snapshot found for run %s", runID)
	}
	if run.toolCallID != toolCallID {
		return demoRun{}, fmt.Errorf("tool call %s not pending for run %s", toolCallID, runID)
	}
	delete(d.runs, runID)
	return run, nil
}

// words splits text into word-sized text deltas.
func words(text string) []agent.Chunk {
	fields := strings.SplitAfter(text, " ")
	chunks := make([]agent.Chunk, 0, len(fields))
	for _, field := range fields {
		chunks = append(chunks, agent.TextDelta(field))
	}
	return chunks
}
