package workersai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/hush/internal/inference"
	"github.com/samcharles93/hush/internal/logger"
)

type captured struct {
	path    string
	header  http.Header
	request runRequest
}

func newUpstream(t *testing.T, status int, body string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.header = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got.request)
		if status == http.StatusOK {
			w.Header().Set("Content-Type", "text/event-stream")
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func newClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(Config{
		AccountID:  "acct",
		APIToken:   "token",
		BaseURL:    srv.URL + "/client/v4",
		GatewayURL: srv.URL + "/gw",
	})
	require.NoError(t, err)
	return c
}

func sse(fragments ...string) string {
	var b strings.Builder
	for _, f := range fragments {
		payload, _ := json.Marshal(map[string]string{"response": f})
		fmt.Fprintf(&b, "data: %s\n\n", payload)
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

func drain(t *testing.T, st inference.Stream) []string {
	t.Helper()
	var out []string
	for {
		frag, err := st.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, frag)
	}
}

func TestStreamDirect(t *testing.T) {
	t.Parallel()

	srv, got := newUpstream(t, http.StatusOK, sse("<think>", "hmm", "</think>", "Hi ", "there"))
	c := newClient(t, srv)

	conv := []inference.Message{
		{Role: inference.RoleSystem, Content: "rules"},
		{Role: inference.RoleUser, Content: "hi"},
	}
	st, err := c.Stream(context.Background(), conv, inference.DefaultGenerationConfig())
	require.NoError(t, err)
	defer st.Close()

	assert.Equal(t, []string{"<think>", "hmm", "</think>", "Hi ", "there"}, drain(t, st))
	assert.Equal(t, "/client/v4/accounts/acct/ai/run/"+DefaultModel, got.path)
	assert.Equal(t, "Bearer token", got.header.Get("Authorization"))
	assert.Empty(t, got.header.Get("cf-aig-skip-cache"))
	assert.Equal(t, 1024, got.request.MaxTokens)
	assert.True(t, got.request.Stream)
	assert.Equal(t, conv, got.request.Messages)
}

func TestStreamLogsThroughContextLogger(t *testing.T) {
	t.Parallel()

	srv, _ := newUpstream(t, http.StatusUnauthorized, `{"success":false,"errors":[{"message":"bad token"}]}`)
	c := newClient(t, srv)

	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.JSON(&buf, slog.LevelDebug).With("request_id", "req-1"))
	_, err := c.Stream(ctx, []inference.Message{{Role: inference.RoleUser, Content: "hi"}}, inference.DefaultGenerationConfig())
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"workersai request"`)
	assert.Contains(t, out, `"msg":"workersai rejected"`)
	assert.Contains(t, out, `"status":401`)
	assert.Contains(t, out, `"request_id":"req-1"`)
	assert.NotContains(t, out, "Bearer")
}

func TestStreamThroughGateway(t *testing.T) {
	t.Parallel()

	srv, got := newUpstream(t, http.StatusOK, sse("ok"))
	c := newClient(t, srv)

	cfg := inference.DefaultGenerationConfig()
	cfg.Gateway = &inference.GatewayOptions{ID: "my-gw", SkipCache: true, CacheTTL: 5 * time.Minute}
	st, err := c.Stream(context.Background(), nil, cfg)
	require.NoError(t, err)
	defer st.Close()

	assert.Equal(t, []string{"ok"}, drain(t, st))
	assert.Equal(t, "/gw/acct/my-gw/workers-ai/"+DefaultModel, got.path)
	assert.Equal(t, "true", got.header.Get("cf-aig-skip-cache"))
	assert.Equal(t, "300", got.header.Get("cf-aig-cache-ttl"))
}

func TestStreamOpenAIShapedChunks(t *testing.T) {
	t.Parallel()

	body := `data: {"choices":[{"delta":{"content":"a"}}]}` + "\n\n" +
		": keep-alive\n\n" +
		`data: {"choices":[{"delta":{}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"content":"b"}}]}` + "\n\n"
	srv, _ := newUpstream(t, http.StatusOK, body)
	c := newClient(t, srv)

	st, err := c.Stream(context.Background(), nil, inference.DefaultGenerationConfig())
	require.NoError(t, err)
	defer st.Close()

	// No [DONE]: the end of the body ends the stream.
	assert.Equal(t, []string{"a", "b"}, drain(t, st))
}

func TestStreamRejected(t *testing.T) {
	t.Parallel()

	srv, _ := newUpstream(t, http.StatusBadRequest, `{"success":false,"errors":[{"code":5006,"message":"bad input"}]}`)
	c := newClient(t, srv)

	_, err := c.Stream(context.Background(), nil, inference.DefaultGenerationConfig())
	require.ErrorIs(t, err, inference.ErrProvider)

	var perr *inference.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusBadRequest, perr.Status)
	assert.Equal(t, "bad input", perr.Message)
}

func TestStreamRejectedPlainBody(t *testing.T) {
	t.Parallel()

	srv, _ := newUpstream(t, http.StatusBadGateway, "")
	c := newClient(t, srv)

	_, err := c.Stream(context.Background(), nil, inference.DefaultGenerationConfig())
	var perr *inference.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "Bad Gateway", perr.Message)
}

func TestStreamMalformedEvent(t *testing.T) {
	t.Parallel()

	srv, _ := newUpstream(t, http.StatusOK, "data: {not json\n\n")
	c := newClient(t, srv)

	st, err := c.Stream(context.Background(), nil, inference.DefaultGenerationConfig())
	require.NoError(t, err)
	defer st.Close()

	_, err = st.Next()
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestNonStreamingResponse(t *testing.T) {
	t.Parallel()

	srv, got := newUpstream(t, http.StatusOK, `{"result":{"response":"<think>x</think>done"},"success":true}`)
	c := newClient(t, srv)

	cfg := inference.DefaultGenerationConfig()
	cfg.Stream = false
	st, err := c.Stream(context.Background(), nil, cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"<think>x</think>done"}, drain(t, st))
	assert.False(t, got.request.Stream)
}

func TestStreamCancelledContext(t *testing.T) {
	t.Parallel()

	srv, _ := newUpstream(t, http.StatusOK, sse("x"))
	c := newClient(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Stream(ctx, nil, inference.DefaultGenerationConfig())
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, inference.ErrProvider)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{APIToken: "t"})
	assert.Error(t, err)
	_, err = New(Config{AccountID: "a"})
	assert.Error(t, err)

	c, err := New(Config{AccountID: "a", APIToken: "t", Model: "@cf/meta/llama-3.1-8b-instruct"})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL+"/accounts/a/ai/run/@cf/meta/llama-3.1-8b-instruct", c.endpoint(nil))
	assert.Equal(t, DefaultGatewayURL+"/a/g/workers-ai/@cf/meta/llama-3.1-8b-instruct", c.endpoint(&inference.GatewayOptions{ID: "g"}))
}
