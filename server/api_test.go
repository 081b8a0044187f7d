package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/reactchat/agents/react"
	"github.com/lexcodex/reactchat/framework"
	"github.com/lexcodex/reactchat/llm"
)

// stubModel answers every turn with the next scripted delta list.
type stubModel struct {
	mu       sync.Mutex
	turns    [][]llm.Delta
	requests []llm.ChatRequest
}

func (m *stubModel) StreamChat(ctx context.Context, req llm.ChatRequest) (llm.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	idx := len(m.requests) - 1
	if idx >= len(m.turns) {
		idx = len(m.turns) - 1
	}
	return &llm.SliceStream{Deltas: m.turns[idx]}, nil
}

type upperTool struct{}

func (upperTool) Name() string        { return "upper" }
func (upperTool) Description() string { return "Upper-cases text" }
func (upperTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{{Name: "text", Type: "string", Required: true}}
}
func (upperTool) Execute(ctx context.Context, args map[string]interface{}) framework.ToolResult {
	text, _ := args["text"].(string)
	if text == "" {
		return framework.Fail("text is required")
	}
	return framework.Ok(strings.ToUpper(text))
}

func newTestServer(t *testing.T, model llm.ChatModel) *APIServer {
	t.Helper()
	registry := framework.NewToolRegistry(nil)
	require.NoError(t, registry.Register(upperTool{}))
	return &APIServer{
		Driver:      &react.Driver{Model: model},
		Tools:       registry,
		CORSOrigins: []string{"http://localhost:3000"},
	}
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readFrames(t *testing.T, body []byte) []frame {
	t.Helper()
	var frames []frame
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var f frame
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &f))
		frames = append(frames, f)
	}
	return frames
}

func frameTypes(frames []frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Type
	}
	return out
}

func TestHealthEndpoints(t *testing.T) {
	handler := newTestServer(t, &stubModel{}).Handler()
	for path, status := range map[string]string{
		"/health":        "healthy",
		"/api/v1/health": "healthy",
		"/api/v1/ready":  "ready",
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, HealthResponse{Status: status, Version: Version}, resp)
		assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	}
}

func TestChatStreamsServerSentEvents(t *testing.T) {
	model := &stubModel{turns: [][]llm.Delta{
		{
			{ReasoningContent: "I need to shout the word."},
			{ToolCalls: []llm.ToolCallDelta{{Index: 0, ID: "call_1", Function: llm.FunctionCallDelta{Name: "upper", Arguments: `{"text":"hi"}`}}}},
		},
		{{Content: "HI"}},
	}}
	handler := newTestServer(t, model).Handler()
	body := `{"messages":[{"role":"user","content":"shout hi"}],"max_tokens":64}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))

	frames := readFrames(t, rec.Body.Bytes())
	assert.Equal(t, []string{
		"reasoning", "react_step", "tool_call", "react_step", "react_step",
		"tool_result", "react_step", "content", "done",
	}, frameTypes(frames))

	var step map[string]interface{}
	require.NoError(t, json.Unmarshal(frames[1].Data, &step))
	assert.Equal(t, "thought", step["type"])
	assert.Equal(t, "Shout the word", step["title"])

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(frames[5].Data, &result))
	assert.Equal(t, map[string]interface{}{"toolCallId": "call_1", "result": "HI"}, result)
	assert.Equal(t, "null", string(frames[8].Data))

	require.Len(t, model.requests, 2)
	assert.Equal(t, 64, model.requests[0].MaxTokens)
	assert.Len(t, model.requests[0].Tools, 1)
}

func TestChatRejectsBadRequests(t *testing.T) {
	handler := newTestServer(t, &stubModel{}).Handler()
	for _, body := range []string{
		`{`,
		`{"messages":[]}`,
		`{"messages":[{"role":"wizard","content":"x"}]}`,
		`{"messages":[{"role":"user"}]}`,
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, rec.Body.String(), "detail", body)
	}
}

func TestInboundMessageAcceptsBothCasings(t *testing.T) {
	var req ChatRequest
	require.NoError(t, json.Unmarshal([]byte(`{"messages":[
		{"role":"assistant","content":"","reasoningContent":"why","toolCalls":[{"id":"c1","type":"function","function":{"name":"upper","arguments":"{\"text\":\"a\"}"}}]},
		{"role":"tool","content":"\"A\"","toolCallId":"c1"},
		{"role":"assistant","content":"","tool_calls":[{"id":"c2","name":"upper","arguments":{"text":"b"}}],"reasoning_content":""},
		{"role":"tool","content":"\"B\"","tool_call_id":"c2"}
	]}`), &req))

	out, err := req.toDriver()
	require.NoError(t, err)
	require.Len(t, out.Messages, 4)
	assert.Equal(t, []framework.ToolCall{{ID: "c1", Name: "upper", Arguments: `{"text":"a"}`}}, out.Messages[0].ToolCalls)
	assert.Equal(t, "why", *out.Messages[0].ReasoningContent)
	assert.Equal(t, "c1", out.Messages[1].ToolCallID)
	assert.Equal(t, []framework.ToolCall{{ID: "c2", Name: "upper", Arguments: `{"text":"b"}`}}, out.Messages[2].ToolCalls)
	require.NotNil(t, out.Messages[2].ReasoningContent)
	assert.Equal(t, "", *out.Messages[2].ReasoningContent)
	assert.Equal(t, "c2", out.Messages[3].ToolCallID)
}

func TestToolEndpoints(t *testing.T) {
	handler := newTestServer(t, &stubModel{}).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Tools []ToolInfo `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Tools, 1)
	assert.Equal(t, "upper", list.Tools[0].Name)
	assert.Equal(t, "object", list.Tools[0].Parameters["type"])

	cases := []struct {
		body   string
		status int
		want   framework.ToolResult
	}{
		{`{"tool_name":"upper","parameters":{"text":"go"}}`, http.StatusOK, framework.ToolResult{Success: true, Result: "GO"}},
		{`{"tool_name":"upper","parameters":{}}`, http.StatusOK, framework.ToolResult{Error: "text is required"}},
		{`{"tool_name":"ghost","parameters":{}}`, http.StatusNotFound, framework.ToolResult{Error: "Tool 'ghost' not found"}},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tools/execute", strings.NewReader(tc.body)))
		assert.Equal(t, tc.status, rec.Code, tc.body)
		var got framework.ToolResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, tc.want, got, tc.body)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tools/execute", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORS(t *testing.T) {
	handler := newTestServer(t, &stubModel{}).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "content-type", rec.Header().Get("Access-Control-Allow-Headers"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestChatOverWebSocket(t *testing.T) {
	model := &stubModel{turns: [][]llm.Delta{{{Content: "Hel"}, {Content: "lo"}}}}
	srv := httptest.NewServer(newTestServer(t, model).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"messages":[{"role":"user","content":"hi"}]}`)))

	var types []string
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
			break
		}
		types = append(types, f.Type)
	}
	assert.Equal(t, []string{"content", "content", "done"}, types)
}

func TestWebSocketRejectsInvalidRequest(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t, &stubModel{}).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"messages":[]}`)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "error", f.Type)
	assert.Contains(t, string(f.Data), "messages must not be empty")
}

func TestChatTranscriptRecordsEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	transcript, err := framework.NewJSONFileSink(path)
	require.NoError(t, err)

	api := newTestServer(t, &stubModel{turns: [][]llm.Delta{{{Content: "ok"}}}})
	api.Transcript = transcript
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	req.Header.Set(RequestIDHeader, "req-t")
	api.Handler().ServeHTTP(httptest.NewRecorder(), req)
	require.NoError(t, transcript.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "req-t", first["request_id"])
	assert.Equal(t, "content", first["type"])
	assert.Equal(t, "ok", first["data"])
}
