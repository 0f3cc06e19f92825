package slack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hitlbot/internal/agent"
	"hitlbot/internal/approval"
)

type apiCall struct {
	Method string
	Form   url.Values
	JSON   map[string]any
	Auth   string
}

// fakeSlackAPI answers Web API calls with canned ok responses.
type fakeSlackAPI struct {
	mu        sync.Mutex
	calls     []apiCall
	responses map[string]string
}

func newFakeSlackAPI(t *testing.T) (*fakeSlackAPI, *httptest.Server) {
	t.Helper()
	fake := &fakeSlackAPI{responses: map[string]string{}}
	server := httptest.NewServer(http.HandlerFunc(fake.serve))
	t.Cleanup(server.Close)
	return fake, server
}

func (f *fakeSlackAPI) serve(w http.ResponseWriter, r *http.Request) {
	method := strings.TrimPrefix(r.URL.Path, "/")
	call := apiCall{Method: method, Auth: r.Header.Get("Authorization")}
	body, _ := io.ReadAll(r.Body)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(body, &call.JSON)
	} else {
		call.Form, _ = url.ParseQuery(string(body))
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	resp, ok := f.responses[method]
	f.mu.Unlock()

	if !ok {
		resp = `{"ok":true,"channel":"C1","ts":"123.456"}`
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, resp)
}

func (f *fakeSlackAPI) byMethod(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func newTestMessenger(server *httptest.Server) *Messenger {
	return NewMessenger(NewAPIClient(Config{BotToken: "xoxb-test", AppToken: "xapp-test", APIURL: server.URL + "/"}))
}

func TestMessengerPostMessage(t *testing.T) {
	fake, server := newFakeSlackAPI(t)
	m := newTestMessenger(server)

	ts, err := m.PostMessage(context.Background(), "C1", "1.0", ProcessingText)
	require.NoError(t, err)
	assert.Equal(t, "123.456", ts)

	calls := fake.byMethod("chat.postMessage")
	require.Len(t, calls, 1)
	assert.Equal(t, "C1", calls[0].Form.Get("channel"))
	assert.Equal(t, "1.0", calls[0].Form.Get("thread_ts"))
	assert.Equal(t, ProcessingText, calls[0].Form.Get("text"))
}

func TestMessengerPostMessageWithoutThread(t *testing.T) {
	fake, server := newFakeSlackAPI(t)
	m := newTestMessenger(server)

	_, err := m.PostMessage(context.Background(), "C1", "", EmptyMentionText)
	require.NoError(t, err)
	assert.False(t, fake.byMethod("chat.postMessage")[0].Form.Has("thread_ts"))
}

func TestMessengerUpdateAndDelete(t *testing.T) {
	fake, server := newFakeSlackAPI(t)
	m := newTestMessenger(server)

	require.NoError(t, m.UpdateMessage(context.Background(), "C1", "5.0", "⏸️ Waiting for approval..."))
	require.NoError(t, m.DeleteMessage(context.Background(), "C1", "5.0"))

	update := fake.byMethod("chat.update")
	require.Len(t, update, 1)
	assert.Equal(t, "5.0", update[0].Form.Get("ts"))
	assert.Equal(t, "⏸️ Waiting for approval...", update[0].Form.Get("text"))

	del := fake.byMethod("chat.delete")
	require.Len(t, del, 1)
	assert.Equal(t, "5.0", del[0].Form.Get("ts"))
}

func TestMessengerSurfacesAPIErrors(t *testing.T) {
	fake, server := newFakeSlackAPI(t)
	fake.responses["chat.delete"] = `{"ok":false,"error":"message_not_found"}`
	m := newTestMessenger(server)

	err := m.DeleteMessage(context.Background(), "C1", "5.0")
	require.ErrorContains(t, err, "message_not_found")
}

func TestMessengerPostApprovalRequest(t *testing.T) {
	fake, server := newFakeSlackAPI(t)
	m := newTestMessenger(server)

	_, err := m.PostApprovalRequest(context.Background(), "C1", "1.0", agent.ApprovalRequired{
		AgentName: "assistant", RunID: "run-1", ToolCallID: "tc-1", ToolName: "createEvent",
	})
	require.NoError(t, err)

	call := fake.byMethod("chat.postMessage")[0]
	assert.Equal(t, "Approval required for createEvent", call.Form.Get("text"))
	assert.Contains(t, call.Form.Get("blocks"), `"action_id":"approve:assistant:run-1:tc-1"`)
	assert.Contains(t, call.Form.Get("blocks"), `"action_id":"reject:assistant:run-1:tc-1"`)
}

func TestMessengerUpdateApprovalStatusRemovesButtons(t *testing.T) {
	fake, server := newFakeSlackAPI(t)
	m := newTestMessenger(server)

	require.NoError(t, m.UpdateApprovalStatus(context.Background(), "C1", "5.0", StatusApproved))

	call := fake.byMethod("chat.update")[0]
	assert.Equal(t, ApprovedText, call.Form.Get("text"))
	assert.Equal(t, "[]", call.Form.Get("blocks"))
}

func TestMessengerOpenRejectionModal(t *testing.T) {
	fake, server := newFakeSlackAPI(t)
	fake.responses["views.open"] = `{"ok":true,"view":{"id":"V1"}}`
	m := newTestMessenger(server)

	view, err := RejectionModal(
		approval.Identity{AgentName: "assistant", RunID: "run-1", ToolCallID: "tc-1"},
		approval.Metadata{AgentName: "assistant", RunID: "run-1", ToolCallID: "tc-1", ChannelID: "C1", MessageTS: "5.0"},
	)
	require.NoError(t, err)
	require.NoError(t, m.OpenRejectionModal(context.Background(), "trig-1", view))

	calls := fake.byMethod("views.open")
	require.Len(t, calls, 1)
	assert.Equal(t, "trig-1", calls[0].JSON["trigger_id"])
	sentView, ok := calls[0].JSON["view"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "reject_reason:assistant:run-1:tc-1", sentView["callback_id"])
}
