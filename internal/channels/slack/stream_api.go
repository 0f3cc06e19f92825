package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"hitlbot/internal/delivery"
	"hitlbot/internal/httpclient"
	"hitlbot/internal/presentation"
)

const maxStreamResponseBytes = 64 * 1024

// StreamAPI calls chat.startStream, chat.appendStream and chat.stopStream.
type StreamAPI struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

var _ delivery.StreamClient = (*StreamAPI)(nil)

// NewStreamAPI creates a client. baseURL defaults to the public Web API.
func NewStreamAPI(token, baseURL string, httpClient *http.Client) *StreamAPI {
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if httpClient == nil {
		httpClient = httpclient.New(30*time.Second, nil)
	}
	return &StreamAPI{token: token, baseURL: baseURL, httpClient: httpClient}
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	TS    string `json:"ts"`
}

func (s *StreamAPI) StartStream(ctx context.Context, req delivery.StartRequest) (string, error) {
	form := url.Values{"channel": {req.Channel}, "thread_ts": {req.ThreadTS}}
	if req.RecipientTeamID != "" {
		form.Set("recipient_team_id", req.RecipientTeamID)
	}
	if req.RecipientUserID != "" {
		form.Set("recipient_user_id", req.RecipientUserID)
	}
	resp, err := s.call(ctx, "chat.startStream", form)
	if err != nil {
		return "", err
	}
	return resp.TS, nil
}

func (s *StreamAPI) AppendStream(ctx context.Context, req delivery.AppendRequest) error {
	_, err := s.call(ctx, "chat.appendStream", url.Values{
		"channel":       {req.Channel},
		"ts":            {req.TS},
		"markdown_text": {req.MarkdownText},
	})
	return err
}

func (s *StreamAPI) StopStream(ctx context.Context, req delivery.StopRequest) error {
	form := url.Values{"channel": {req.Channel}, "ts": {req.TS}}
	if req.MarkdownText != "" {
		form.Set("markdown_text", req.MarkdownText)
	}
	_, err := s.call(ctx, "chat.stopStream", form)
	return err
}

func (s *StreamAPI) call(ctx context.Context, method string, form url.Values) (apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+method, strings.NewReader(form.Encode()))
	if err != nil {
		return apiResponse{}, fmt.Errorf("%s: build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return apiResponse{}, fmt.Errorf("%s: %w", method, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := httpclient.ReadBody(resp.Body, maxStreamResponseBytes)
	if err != nil {
		return apiResponse{}, fmt.Errorf("%s: read response: %w", method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiResponse{}, fmt.Errorf("%s: status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return apiResponse{}, fmt.Errorf("%s: decode response: %w", method, err)
	}
	if !parsed.OK {
		return apiResponse{}, fmt.Errorf("%s: %s", method, parsed.Error)
	}
	return parsed, nil
}

// BufferedStream emulates a stream for workspaces without the streaming
// API: fragments are collected and posted as one message on stop.
type BufferedStream struct {
	messenger presentation.Messenger

	mu      sync.Mutex
	seq     int
	pending map[string]*bufferedMessage
}

type bufferedMessage struct {
	threadTS string
	text     strings.Builder
}

var _ delivery.StreamClient = (*BufferedStream)(nil)

func NewBufferedStream(messenger presentation.Messenger) *BufferedStream {
	return &BufferedStream{messenger: messenger, pending: make(map[string]*bufferedMessage)}
}

func (b *BufferedStream) StartStream(_ context.Context, req delivery.StartRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	handle := fmt.Sprintf("buffered-%s-%d", req.Channel, b.seq)
	b.pending[handle] = &bufferedMessage{threadTS: req.ThreadTS}
	return handle, nil
}

func (b *BufferedStream) AppendStream(_ context.Context, req delivery.AppendRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg, ok := b.pending[req.TS]
	if !ok {
		return fmt.Errorf("unknown buffered stream %q", req.TS)
	}
	msg.text.WriteString(req.MarkdownText)
	return nil
}

func (b *BufferedStream) StopStream(ctx context.Context, req delivery.StopRequest) error {
	b.mu.Lock()
	msg, ok := b.pending[req.TS]
	delete(b.pending, req.TS)
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown buffered stream %q", req.TS)
	}

	text := msg.text.String() + req.MarkdownText
	if text == "" {
		return nil
	}
	_, err := b.messenger.PostMessage(ctx, req.Channel, msg.threadTS, text)
	return err
}
