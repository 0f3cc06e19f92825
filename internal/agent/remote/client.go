package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"hitlbot/internal/agent"
	"hitlbot/internal/httpclient"
	"hitlbot/internal/logging"
)

var _ agent.Agent = (*Client)(nil)

const (
	defaultBaseURL = "http://localhost:4111"
	defaultTimeout = 5 * time.Minute

	maxErrorBodyBytes = 4 * 1024
	maxChunkBytes     = 2 * 1024 * 1024
)

// Config describes one agent hosted by an agent runtime server.
type Config struct {
	BaseURL string
	// AgentID is the runtime's key for the agent, used in request paths.
	AgentID string
	// Name is the logical name carried in approval identities. Defaults to AgentID.
	Name    string
	Timeout time.Duration
}

// Client streams runs of a single agent over HTTP. Responses are either
// newline-delimited JSON chunks or server-sent events whose data lines carry
// the same JSON.
type Client struct {
	baseURL    string
	agentID    string
	name       string
	httpClient *http.Client
	logger     logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client for the agent described by cfg.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	agentID := strings.TrimSpace(cfg.AgentID)
	if agentID == "" {
		return nil, fmt.Errorf("agent id is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid agent base url %q: %w", baseURL, err)
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = agentID
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		baseURL: baseURL,
		agentID: agentID,
		name:    name,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.logger = logging.OrNop(c.logger)
	if c.httpClient == nil {
		c.httpClient = httpclient.New(timeout, c.logger)
	}
	return c, nil
}

func (c *Client) Name() string { return c.name }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type memoryRef struct {
	Resource string `json:"resource"`
	Thread   string `json:"thread"`
}

type streamRequest struct {
	Messages []message `json:"messages"`
	Memory   memoryRef `json:"memory"`
}

type toolCallRequest struct {
	RunID      string `json:"runId"`
	ToolCallID string `json:"toolCallId"`
}

func (c *Client) Stream(ctx context.Context, input string, scope agent.MemoryScope) (agent.ChunkStream, error) {
	return c.post(ctx, "stream", streamRequest{
		Messages: []message{{Role: "user", Content: input}},
		Memory:   memoryRef{Resource: scope.ResourceID, Thread: scope.ThreadID},
	})
}

func (c *Client) ApproveToolCall(ctx context.Context, runID, toolCallID string) (agent.ChunkStream, error) {
	return c.post(ctx, "approve-tool-call", toolCallRequest{RunID: runID, ToolCallID: toolCallID})
}

func (c *Client) DeclineToolCall(ctx context.Context, runID, toolCallID string) (agent.ChunkStream, error) {
	return c.post(ctx, "decline-tool-call", toolCallRequest{RunID: runID, ToolCallID: toolCallID})
}

func (c *Client) post(ctx context.Context, action string, payload any) (agent.ChunkStream, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", action, err)
	}

	endpoint := fmt.Sprintf("%s/api/agents/%s/%s", c.baseURL, url.PathEscape(c.agentID), action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream, application/x-ndjson")

	c.logger.Debug("POST %s", endpoint)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", action, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() {
			_ = resp.Body.Close()
		}()
		return nil, &StatusError{Action: action, StatusCode: resp.StatusCode, Body: httpclient.Snippet(resp.Body, maxErrorBodyBytes)}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxChunkBytes)
	return &httpStream{body: resp.Body, scanner: scanner}, nil
}

// StatusError is returned when the agent runtime answers with a non-2xx status.
type StatusError struct {
	Action     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("agent %s failed: status %d", e.Action, e.StatusCode)
	}
	return fmt.Sprintf("agent %s failed: status %d: %s", e.Action, e.StatusCode, e.Body)
}

type errorPayload struct {
	Error   any    `json:"error"`
	Message string `json:"message"`
}

// httpStream decodes chunks from a response body. A bare line is one NDJSON
// record; SSE data lines are buffered until the blank line ending the event
// and decoded together.
type httpStream struct {
	mu      sync.Mutex
	body    io.ReadCloser
	scanner *bufio.Scanner
	data    []string
	done    bool
	closed  bool
}

func (s *httpStream) Next(ctx context.Context) (agent.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.done {
		if err := ctx.Err(); err != nil {
			return agent.Chunk{}, err
		}
		var record string
		if !s.scanner.Scan() {
			s.done = true
			if err := s.scanner.Err(); err != nil {
				return agent.Chunk{}, fmt.Errorf("read agent stream: %w", err)
			}
			record = s.takeEvent()
		} else {
			line := strings.TrimRight(s.scanner.Text(), "\r")
			switch {
			case strings.TrimSpace(line) == "":
				record = s.takeEvent()
			case strings.HasPrefix(line, "data:"):
				data := strings.TrimPrefix(line, "data:")
				s.data = append(s.data, strings.TrimPrefix(data, " "))
				continue
			case strings.HasPrefix(line, ":"), strings.HasPrefix(line, "event:"),
				strings.HasPrefix(line, "id:"), strings.HasPrefix(line, "retry:"):
				continue
			default:
				record = line
			}
		}

		record = strings.TrimSpace(record)
		if record == "" {
			continue
		}
		if record == "[DONE]" {
			s.done = true
			break
		}

		var chunk agent.Chunk
		if err := json.Unmarshal([]byte(record), &chunk); err != nil {
			return agent.Chunk{}, fmt.Errorf("decode agent stream chunk: %w", err)
		}
		if chunk.Type == "error" {
			return agent.Chunk{}, chunkError(chunk)
		}
		return chunk, nil
	}
	return agent.Chunk{}, io.EOF
}

// takeEvent returns the buffered SSE data joined with newlines.
func (s *httpStream) takeEvent() string {
	if len(s.data) == 0 {
		return ""
	}
	event := strings.Join(s.data, "\n")
	s.data = s.data[:0]
	return event
}

func (s *httpStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.done = true
	return s.body.Close()
}

func chunkError(chunk agent.Chunk) error {
	var payload errorPayload
	if len(chunk.Payload) > 0 && json.Unmarshal(chunk.Payload, &payload) == nil {
		switch v := payload.Error.(type) {
		case string:
			if v != "" {
				return errors.New(v)
			}
		case map[string]any:
			if msg, ok := v["message"].(string); ok && msg != "" {
				return errors.New(msg)
			}
		}
		if payload.Message != "" {
			return errors.New(payload.Message)
		}
	}
	return fmt.Errorf("agent stream error: %s", strings.TrimSpace(string(chunk.Payload)))
}
