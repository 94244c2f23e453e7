package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/samcharles93/hush/internal/inference"
	"github.com/samcharles93/hush/internal/inference/mock"
	"github.com/samcharles93/hush/internal/logger"
	"github.com/samcharles93/hush/internal/prompt"
	"github.com/samcharles93/hush/internal/reasoning"
)

const failureBody = `{"error":"Failed to process request"}`

func assetHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "asset:"+r.Method+" "+r.URL.Path)
	})
}

func newTestEcho(t *testing.T, src inference.Source, cfg Config) *echo.Echo {
	t.Helper()
	server, err := NewServer(src, assetHandler(), cfg, logger.Discard())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	e := echo.New()
	server.Register(e)
	return e
}

func doRequest(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// readEvents splits an SSE body into its data payloads. The [DONE] marker is
// reported separately.
func readEvents(t *testing.T, body string) ([]string, bool) {
	t.Helper()
	var texts []string
	done := false
	for _, block := range strings.Split(body, "\n\n") {
		if block == "" {
			continue
		}
		data, ok := strings.CutPrefix(block, "data: ")
		if !ok {
			t.Fatalf("unexpected SSE block %q", block)
		}
		if data == "[DONE]" {
			done = true
			continue
		}
		if done {
			t.Fatalf("event after [DONE]: %q", data)
		}
		var ev chunkEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("decode event %q: %v", data, err)
		}
		if ev.Response == "" {
			t.Fatalf("empty event emitted")
		}
		texts = append(texts, ev.Response)
	}
	return texts, done
}

func TestChatStreamsFilteredText(t *testing.T) {
	t.Parallel()
	src := &mock.Script{Fragments: []string{"<think>", "secret", "</think>", "answer"}}
	e := newTestEcho(t, src, Config{})

	rec := doRequest(t, e, http.MethodPost, ChatPath, `{"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "text/event-stream; charset=utf-8" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Fatalf("unexpected cache-control %q", got)
	}
	if got := rec.Header().Get("Connection"); got != "keep-alive" {
		t.Fatalf("unexpected connection %q", got)
	}

	texts, done := readEvents(t, rec.Body.String())
	if !done {
		t.Fatalf("missing [DONE] in %q", rec.Body.String())
	}
	if len(texts) != 1 || texts[0] != "answer" {
		t.Fatalf("expected [answer], got %q", texts)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Fatalf("reasoning leaked: %s", rec.Body.String())
	}
	if src.Closed() != 1 {
		t.Fatalf("expected upstream closed once, got %d", src.Closed())
	}
}

func TestChatSplitMarkersAcrossFragments(t *testing.T) {
	t.Parallel()
	src := &mock.Script{Fragments: []string{"Hel", "lo <th", "ink>plan", " more</thi", "nk> world"}}
	e := newTestEcho(t, src, Config{})

	rec := doRequest(t, e, http.MethodPost, ChatPath, `{"messages":[{"role":"user","content":"hi"}]}`)
	texts, done := readEvents(t, rec.Body.String())
	if !done {
		t.Fatal("missing [DONE]")
	}
	if got := strings.Join(texts, ""); got != "Hello  world" {
		t.Fatalf("expected %q, got %q", "Hello  world", got)
	}
}

func TestChatConversationSentUpstream(t *testing.T) {
	t.Parallel()
	src := &mock.Script{}
	e := newTestEcho(t, src, Config{Directive: "be brief"})

	body := `{"messages":[
		{"role":"user","content":"q1"},
		{"role":"assistant","content":"<think>old plan</think>\n\nA1<|im_end|>"},
		{"role":"user","content":[{"type":"text","text":"q2"},{"type":"image_url","image_url":{"url":"x"}}]}
	]}`
	rec := doRequest(t, e, http.MethodPost, ChatPath, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	calls := src.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one upstream call, got %d", len(calls))
	}
	want := []inference.Message{
		{Role: inference.RoleSystem, Content: "be brief"},
		{Role: inference.RoleUser, Content: "q1"},
		{Role: inference.RoleAssistant, Content: "A1"},
		{Role: inference.RoleUser, Content: "q2"},
	}
	got := calls[0].Conversation
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("message %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}

	cfg := calls[0].Config
	if cfg.MaxOutputTokens != inference.DefaultMaxOutputTokens || !cfg.Stream {
		t.Fatalf("unexpected generation config %+v", cfg)
	}
}

func TestChatMissingMessages(t *testing.T) {
	t.Parallel()
	src := &mock.Script{Fragments: []string{"ok"}}
	e := newTestEcho(t, src, Config{})

	rec := doRequest(t, e, http.MethodPost, ChatPath, `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	conv := src.Calls()[0].Conversation
	if len(conv) != 1 || conv[0].Role != inference.RoleSystem || conv[0].Content != prompt.DefaultDirective {
		t.Fatalf("expected only the default directive, got %+v", conv)
	}
}

func TestChatPromptPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		policy prompt.Policy
		want   int
	}{
		{"always", prompt.PolicyAlways, 3},
		{"if-absent", prompt.PolicyIfAbsent, 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			src := &mock.Script{}
			e := newTestEcho(t, src, Config{Policy: tc.policy})
			doRequest(t, e, http.MethodPost, ChatPath, `{"messages":[{"role":"system","content":"mine"},{"role":"user","content":"hi"}]}`)

			conv := src.Calls()[0].Conversation
			if len(conv) != tc.want {
				t.Fatalf("expected %d messages, got %+v", tc.want, conv)
			}
			if tc.policy == prompt.PolicyIfAbsent && conv[0].Content != "mine" {
				t.Fatalf("client system message replaced: %+v", conv)
			}
		})
	}
}

func TestChatFailuresBeforeStreaming(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  *mock.Script
		body string
	}{
		{"malformed json", &mock.Script{}, `{"messages":`},
		{"empty body", &mock.Script{}, ``},
		{"unknown role", &mock.Script{}, `{"messages":[{"role":"tool","content":"x"}]}`},
		{"messages not a list", &mock.Script{}, `{"messages":"hi"}`},
		{"trailing data", &mock.Script{}, `{"messages":[]} garbage`},
		{"trailing open brace", &mock.Script{}, `{"messages":[]}{`},
		{"trailing bracket", &mock.Script{}, `{"messages":[{"role":"user","content":"hi"}]}]`},
		{"second value", &mock.Script{}, `{"messages":[]} {"messages":[]}`},
		{"upstream rejects", &mock.Script{StartErr: &inference.ProviderError{Provider: "test", Status: 401, Message: "bad token sk-123"}}, `{"messages":[]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e := newTestEcho(t, tc.src, Config{})
			rec := doRequest(t, e, http.MethodPost, ChatPath, tc.body)

			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d", rec.Code)
			}
			if got := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(got, echo.MIMEApplicationJSON) {
				t.Fatalf("unexpected content type %q", got)
			}
			if got := rec.Body.String(); got != failureBody {
				t.Fatalf("expected %s, got %s", failureBody, got)
			}
		})
	}
}

func TestChatMidStreamFailure(t *testing.T) {
	t.Parallel()
	src := &mock.Script{Fragments: []string{"partial ", "<think>x"}, EndErr: errors.New("connection reset")}
	e := newTestEcho(t, src, Config{})

	rec := doRequest(t, e, http.MethodPost, ChatPath, `{"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 once streaming started, got %d", rec.Code)
	}
	texts, done := readEvents(t, rec.Body.String())
	if done {
		t.Fatal("[DONE] written after upstream failure")
	}
	if len(texts) != 1 || texts[0] != "partial " {
		t.Fatalf("unexpected events %q", texts)
	}
	if strings.Contains(rec.Body.String(), "connection reset") {
		t.Fatal("error text leaked into the stream")
	}
	if src.Closed() != 1 {
		t.Fatalf("expected upstream closed, got %d", src.Closed())
	}
}

func TestChatUnterminatedBlockStillCompletes(t *testing.T) {
	t.Parallel()
	src := &mock.Script{Fragments: []string{"visible", "<think>never closed"}}
	e := newTestEcho(t, src, Config{})

	rec := doRequest(t, e, http.MethodPost, ChatPath, `{"messages":[]}`)
	texts, done := readEvents(t, rec.Body.String())
	if !done {
		t.Fatal("missing [DONE]")
	}
	if strings.Join(texts, "") != "visible" {
		t.Fatalf("unexpected events %q", texts)
	}
}

func TestChatClientCancellationClosesUpstream(t *testing.T) {
	t.Parallel()
	src := &mock.Script{Fragments: []string{"first"}, Hang: true}
	e := newTestEcho(t, src, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, ChatPath, strings.NewReader(`{"messages":[]}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	texts, done := readEvents(t, rec.Body.String())
	if done {
		t.Fatal("[DONE] written after cancellation")
	}
	if len(texts) != 1 || texts[0] != "first" {
		t.Fatalf("unexpected events %q", texts)
	}
	if src.Closed() != 1 {
		t.Fatalf("expected upstream closed, got %d", src.Closed())
	}
}

func TestRouting(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t, &mock.Script{}, Config{})

	tests := []struct {
		method string
		path   string
		status int
		body   string
	}{
		{http.MethodGet, ChatPath, http.StatusMethodNotAllowed, ""},
		{http.MethodPut, ChatPath, http.StatusMethodNotAllowed, ""},
		{http.MethodGet, "/api/health", http.StatusNotFound, ""},
		{http.MethodPost, "/api/other", http.StatusNotFound, ""},
		{http.MethodGet, "/", http.StatusOK, "asset:GET /"},
		{http.MethodGet, "/chat.js", http.StatusOK, "asset:GET /chat.js"},
		{http.MethodPost, "/submit", http.StatusOK, "asset:POST /submit"},
		{http.MethodGet, "/apix", http.StatusOK, "asset:GET /apix"},
	}

	for _, tc := range tests {
		rec := doRequest(t, e, tc.method, tc.path, "")
		if rec.Code != tc.status {
			t.Errorf("%s %s: expected %d, got %d", tc.method, tc.path, tc.status, rec.Code)
			continue
		}
		if tc.body != "" && rec.Body.String() != tc.body {
			t.Errorf("%s %s: expected body %q, got %q", tc.method, tc.path, tc.body, rec.Body.String())
		}
	}

	rec := doRequest(t, e, http.MethodGet, ChatPath, "")
	if got := rec.Header().Get("Allow"); got != http.MethodPost {
		t.Fatalf("expected Allow: POST, got %q", got)
	}
}

func TestNewServerValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewServer(nil, nil, Config{}, nil); err == nil {
		t.Fatal("expected error for nil source")
	}

	_, err := NewServer(&mock.Script{}, nil, Config{Filter: reasoning.Options{Open: "x", Close: "x"}}, nil)
	if !errors.Is(err, reasoning.ErrInvalidDelimiters) {
		t.Fatalf("expected ErrInvalidDelimiters, got %v", err)
	}
}

func TestChatMessagesToConversation(t *testing.T) {
	t.Parallel()

	conv, err := chatMessagesToConversation([]ChatMessage{
		{Role: "user", Content: nil},
		{Role: "user", Content: []any{
			map[string]any{"type": "text", "text": "a"},
			"ignored",
			map[string]any{"type": "text", "text": "b"},
		}},
		{Role: "user", Content: map[string]any{"k": "v"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"", "a\nb", `{"k":"v"}`}
	for i, w := range want {
		if conv[i].Content != w {
			t.Errorf("message %d: expected %q, got %q", i, w, conv[i].Content)
		}
	}

	_, err = chatMessagesToConversation([]ChatMessage{{Role: "robot", Content: "x"}})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
