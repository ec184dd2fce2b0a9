package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/docintel/docintel/agent"
	"github.com/docintel/docintel/log"
	"github.com/docintel/docintel/session"
	"github.com/docintel/docintel/tool"
)

const testAPIKey = "test-key"

type mockModel struct {
	responses []*llms.ContentResponse
	calls     [][]llms.MessageContent
	loop      bool
}

func (m *mockModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls = append(m.calls, messages)
	idx := len(m.calls) - 1
	if idx >= len(m.responses) {
		if m.loop && len(m.responses) > 0 {
			idx = len(m.responses) - 1
		} else {
			return nil, fmt.Errorf("mock model exhausted")
		}
	}
	return m.responses[idx], nil
}

func (m *mockModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", nil
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}
}

func toolCallResponse(callID, name, args string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{
			ID:           callID,
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
		}},
	}}}
}

type fixedSearcher struct{ hits []tool.Hit }

func (s *fixedSearcher) Search(ctx context.Context, query string, k int) ([]tool.Hit, error) {
	return s.hits, nil
}

type fixedQuerier struct{}

func (fixedQuerier) GenerateSQL(ctx context.Context, question string) (string, error) {
	return "SELECT 1", nil
}
func (fixedQuerier) Run(ctx context.Context, query string) (string, error) { return "1", nil }

type testHarness struct {
	server   *Server
	sessions *session.Manager
	planner  *mockModel
}

func newTestHarness(t *testing.T, planner, final *mockModel) *testHarness {
	t.Helper()

	searcher := &fixedSearcher{hits: []tool.Hit{{
		Content:  "The reimbursement rate is 80%.",
		Metadata: map[string]any{"path": "/docs/x.pdf", "chunk_number": 3},
		Score:    0.9,
	}}}
	registry := tool.NewRegistry(searcher, fixedQuerier{},
		func(string) string { return "" },
		tool.WithLogger(log.NoOpLogger{}))

	a, err := agent.New(agent.Config{
		PlannerModel: planner,
		FinalModel:   final,
		SummaryModel: &mockModel{responses: []*llms.ContentResponse{textResponse("summary")}, loop: true},
		Registry:     registry,
		BaseURL:      "http://localhost:8080",
		Logger:       log.NoOpLogger{},
	})
	require.NoError(t, err)

	sessions := session.NewManager(session.NewMemoryStore())
	srv, err := New(Config{
		Agent:    a,
		Sessions: sessions,
		APIKey:   testAPIKey,
		Logger:   log.NoOpLogger{},
	})
	require.NoError(t, err)

	return &testHarness{server: srv, sessions: sessions, planner: planner}
}

type filePart struct {
	name    string
	content string
}

func postQuery(t *testing.T, handler http.Handler, fields map[string]string, file *filePart) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if file != nil {
		part, err := writer.CreateFormFile("file", file.name)
		require.NoError(t, err)
		_, err = io.WriteString(part, file.content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/query-stream", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// sseEvents decodes every data: line of an SSE body.
func sseEvents(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		events = append(events, event)
	}
	return events
}

func TestQueryStreamRejectsBadAPIKey(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t,
		&mockModel{responses: []*llms.ContentResponse{textResponse("")}},
		&mockModel{responses: []*llms.ContentResponse{textResponse("answer")}})

	rec := postQuery(t, h.server.Router(), map[string]string{
		"session_id": "s1", "query": "q", "api_key": "wrong",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestQueryStreamRequiresQuery(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t,
		&mockModel{responses: []*llms.ContentResponse{textResponse("")}},
		&mockModel{responses: []*llms.ContentResponse{textResponse("answer")}})

	rec := postQuery(t, h.server.Router(), map[string]string{
		"session_id": "s1", "api_key": testAPIKey,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryStreamFullTurn(t *testing.T) {
	t.Parallel()

	planner := &mockModel{responses: []*llms.ContentResponse{
		toolCallResponse("call-1", tool.NameRetrieveChunks, `{"query":"rate"}`),
		textResponse(""),
	}}
	final := &mockModel{responses: []*llms.ContentResponse{
		textResponse("**The rate is 80%.**"),
	}}
	h := newTestHarness(t, planner, final)

	rec := postQuery(t, h.server.Router(), map[string]string{
		"session_id": "sess-1", "query": "what is the rate?", "api_key": testAPIKey,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")

	events := sseEvents(t, rec.Body.String())
	require.NotEmpty(t, events)

	assert.Equal(t, "status", events[0]["type"])
	assert.Equal(t, "Running: "+tool.NameRetrieveChunks, events[0]["content"])

	last := events[len(events)-1]
	assert.Equal(t, "final_response", last["type"])
	assert.Contains(t, last["content"], "The rate is 80%.")
	assert.Contains(t, last["content_html"], "<strong>")
	assert.Contains(t, last["content"], "[x.pdf](http://localhost:8080/documents/x.pdf)")

	sources, ok := last["sources"].([]any)
	require.True(t, ok)
	require.Len(t, sources, 1)
	source := sources[0].(map[string]any)
	assert.Equal(t, "/docs/x.pdf_3", source["id"])

	// The turn was persisted: user, tool-call, tool result, routing, final.
	state, err := h.sessions.Peek(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Len(t, state.Messages, 5)
	assert.Empty(t, state.AdHocContext)
}

func TestQueryStreamUploadFeedsPlanner(t *testing.T) {
	t.Parallel()

	planner := &mockModel{responses: []*llms.ContentResponse{textResponse("direct answer")}}
	final := &mockModel{responses: []*llms.ContentResponse{textResponse("answer")}}
	h := newTestHarness(t, planner, final)

	rec := postQuery(t, h.server.Router(), map[string]string{
		"session_id": "sess-2", "query": "what does my document say?", "api_key": testAPIKey,
	}, &filePart{name: "upload.txt", content: "uploaded contract body"})
	require.Equal(t, http.StatusOK, rec.Code)

	// The uploaded text reached the planner's instruction.
	require.NotEmpty(t, planner.calls)
	instruction := ""
	for _, part := range planner.calls[0][0].Parts {
		if text, ok := part.(llms.TextContent); ok {
			instruction += text.Text
		}
	}
	assert.Contains(t, instruction, "uploaded contract body")

	// But it was not persisted with the session.
	state, err := h.sessions.Peek(context.Background(), "sess-2")
	require.NoError(t, err)
	assert.Empty(t, state.AdHocContext)
}

func TestQueryStreamGeneratesSessionID(t *testing.T) {
	t.Parallel()

	planner := &mockModel{responses: []*llms.ContentResponse{textResponse("direct answer")}}
	final := &mockModel{responses: []*llms.ContentResponse{textResponse("answer")}}
	h := newTestHarness(t, planner, final)

	rec := postQuery(t, h.server.Router(), map[string]string{
		"query": "hello", "api_key": testAPIKey,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	events := sseEvents(t, rec.Body.String())
	last := events[len(events)-1]
	require.Equal(t, "final_response", last["type"])
	assert.NotEmpty(t, last["session_id"])
}

func TestQueryStreamEmitsErrorEvent(t *testing.T) {
	t.Parallel()

	// Planner loops on tool calls until the step limit trips.
	planner := &mockModel{responses: []*llms.ContentResponse{
		toolCallResponse("call-1", tool.NameRetrieveChunks, `{"query":"q"}`),
	}, loop: true}
	final := &mockModel{responses: []*llms.ContentResponse{textResponse("answer")}}
	h := newTestHarness(t, planner, final)

	rec := postQuery(t, h.server.Router(), map[string]string{
		"session_id": "sess-3", "query": "q", "api_key": testAPIKey,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	events := sseEvents(t, rec.Body.String())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "error", last["type"])
	assert.Contains(t, last["content"], "step limit")
}

func TestResetSession(t *testing.T) {
	t.Parallel()

	planner := &mockModel{responses: []*llms.ContentResponse{textResponse("direct answer")}}
	final := &mockModel{responses: []*llms.ContentResponse{textResponse("answer")}}
	h := newTestHarness(t, planner, final)
	router := h.server.Router()

	rec := postQuery(t, router, map[string]string{
		"session_id": "sess-4", "query": "hello", "api_key": testAPIKey,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodDelete, "/v1/sessions/sess-4", nil)
	req.Header.Set("X-API-Key", testAPIKey)
	del := httptest.NewRecorder()
	router.ServeHTTP(del, req)
	assert.Equal(t, http.StatusNoContent, del.Code)

	_, err := h.sessions.Peek(context.Background(), "sess-4")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRenderHTMLSanitizes(t *testing.T) {
	t.Parallel()

	out := renderHTML("**bold** and [link](http://example.com)\n\n<script>alert(1)</script>")
	assert.Contains(t, out, "<strong>bold</strong>")
	assert.Contains(t, out, `<a href="http://example.com"`)
	assert.NotContains(t, out, "<script>")
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	planner := &mockModel{responses: []*llms.ContentResponse{textResponse("")}}
	final := &mockModel{responses: []*llms.ContentResponse{textResponse("answer")}}
	h := newTestHarness(t, planner, final)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.server.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
