package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-scraper/internal/config"
	"github.com/sells-group/company-scraper/internal/resilience"
	"github.com/sells-group/company-scraper/pkg/anthropic"
)

type fakeAnthropic struct {
	req  anthropic.MessageRequest
	resp *anthropic.MessageResponse
	err  error
}

func (f *fakeAnthropic) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestAnthropic_Complete(t *testing.T) {
	fake := &fakeAnthropic{resp: &anthropic.MessageResponse{
		Model:   "claude-haiku-4-5-20251001",
		Content: []anthropic.ContentBlock{{Type: "text", Text: " {\"company_name\":\"Acme\"} "}},
		Usage:   anthropic.TokenUsage{InputTokens: 900, OutputTokens: 40, CacheReadInputTokens: 100},
	}}

	c := NewAnthropic(fake, "claude-haiku-4-5-20251001", 0)
	got, err := c.Complete(context.Background(), "extract", "pages")
	require.NoError(t, err)

	assert.Equal(t, `{"company_name":"Acme"}`, got.Text)
	assert.Equal(t, "claude-haiku-4-5-20251001", got.Model)
	assert.Equal(t, Usage{InputTokens: 1000, OutputTokens: 40}, got.Usage)

	assert.Equal(t, int64(defaultMaxTokens), fake.req.MaxTokens)
	require.Len(t, fake.req.System, 1)
	assert.Equal(t, "extract", fake.req.System[0].Text)
	require.Len(t, fake.req.Messages, 1)
	assert.Equal(t, "pages", fake.req.Messages[0].Content)
	require.NotNil(t, fake.req.Temperature)
	assert.InDelta(t, 0.0, *fake.req.Temperature, 1e-9)
	assert.Equal(t, "anthropic", c.Name())
}

func TestAnthropic_Errors(t *testing.T) {
	_, err := NewAnthropic(&fakeAnthropic{err: errors.New("overloaded")}, "m", 10).Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")

	_, err = NewAnthropic(&fakeAnthropic{resp: &anthropic.MessageResponse{StopReason: "max_tokens"}}, "m", 10).
		Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrEmptyCompletion))
}

func openAIServer(t *testing.T, status int, body any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAI_Complete(t *testing.T) {
	srv := openAIServer(t, http.StatusOK, map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": "{\"company_name\":\"Acme\"}"},
		}},
		"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 30, "total_tokens": 150},
	})

	c := NewOpenAI("sk-test", "gpt-4o", srv.URL)
	got, err := c.Complete(context.Background(), "extract", "pages")
	require.NoError(t, err)
	assert.Equal(t, `{"company_name":"Acme"}`, got.Text)
	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, Usage{InputTokens: 120, OutputTokens: 30}, got.Usage)
	assert.Equal(t, "openai", c.Name())
}

func TestOpenAI_NoChoices(t *testing.T) {
	srv := openAIServer(t, http.StatusOK, map[string]any{
		"id": "chatcmpl-2", "object": "chat.completion", "model": "gpt-4o", "choices": []any{},
	})
	_, err := NewOpenAI("sk-test", "gpt-4o", srv.URL).Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrEmptyCompletion))
}

func TestOpenAI_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := openAIServer(t, tt.status, map[string]any{
				"error": map[string]any{"message": "nope", "type": "invalid_request_error"},
			})
			_, err := NewOpenAI("sk-test", "gpt-4o", srv.URL).Complete(context.Background(), "s", "u")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "llm: openai")
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
		})
	}
}

func TestNew(t *testing.T) {
	cfg := &config.Config{}
	_, err := New(cfg)
	require.Error(t, err)

	cfg.Anthropic.Key = "k"
	c, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Name())

	cfg.LLM.Provider = "openai"
	cfg.OpenAI.Key = "k"
	c, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())

	cfg.LLM.Provider = "llama"
	_, err = New(cfg)
	require.Error(t, err)
}
