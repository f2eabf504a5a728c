package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soyeahso/leadreach/internal/config"
	"github.com/soyeahso/leadreach/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// --- Registry tests ---

func TestRegistryRegisterAndResolve(t *testing.T) {
	reg := NewRegistry(silentLog())

	mock := &MockClient{ProviderName: "test-provider"}
	reg.Register("test-provider", mock)

	client, err := reg.Resolve("test-provider")
	require.NoError(t, err)
	assert.Equal(t, "test-provider", client.Name())
}

func TestRegistryAlias(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("openai", &MockClient{ProviderName: "openai"})
	reg.Alias("gpt-4o-mini", "openai")

	client, err := reg.Resolve("gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "openai", client.Name())
}

func TestRegistryFallback(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("default-llm", &MockClient{ProviderName: "default-llm"})
	reg.SetFallback("default-llm")

	client, err := reg.Resolve("unknown-model-xyz")
	require.NoError(t, err)
	assert.Equal(t, "default-llm", client.Name())
}

func TestRegistryResolveNotFound(t *testing.T) {
	reg := NewRegistry(silentLog())

	_, err := reg.Resolve("nonexistent")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no LLM provider")
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("a", &MockClient{ProviderName: "a"})
	reg.Register("b", &MockClient{ProviderName: "b"})

	names := reg.List()
	assert.Len(t, names, 2)
	assert.Contains(t, names, "a")
	assert.Contains(t, names, "b")
}

func TestNewRegistryFromConfig(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"openai", "openai"},
		{"", "openai"},
		{"ollama", "ollama"},
		{"Claude", "claude"},
	}
	for _, tt := range tests {
		t.Run(tt.want+"/"+tt.provider, func(t *testing.T) {
			reg := NewRegistryFromConfig(config.LLMConfig{
				Provider:  tt.provider,
				Model:     "m1",
				Fallbacks: []string{"m2"},
				Timeout:   5,
			}, silentLog())

			for _, model := range []string{"m1", "m2", "anything"} {
				c, err := reg.Resolve(model)
				require.NoError(t, err)
				assert.Equal(t, tt.want, c.Name())
			}
		})
	}
}

// --- Mock tests ---

func TestMockClientDefaultComplete(t *testing.T) {
	m := &MockClient{ProviderName: "mock"}
	resp, err := m.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "mock response", resp.Content)
}

func TestScriptedClient(t *testing.T) {
	s := NewScriptedClient(&CompletionResponse{Content: "one"})
	s.PushError(errors.New("boom"))
	s.Push(&CompletionResponse{Content: "three"})
	assert.Equal(t, 3, s.Remaining())

	ctx := context.Background()
	r, err := s.Complete(ctx, CompletionRequest{System: "a"})
	require.NoError(t, err)
	assert.Equal(t, "one", r.Content)

	_, err = s.Complete(ctx, CompletionRequest{System: "b"})
	assert.EqualError(t, err, "boom")

	r, err = s.Complete(ctx, CompletionRequest{System: "c"})
	require.NoError(t, err)
	assert.Equal(t, "three", r.Content)

	_, err = s.Complete(ctx, CompletionRequest{})
	assert.Error(t, err)

	reqs := s.Requests()
	require.Len(t, reqs, 4)
	assert.Equal(t, "b", reqs[1].System)
}

// --- Provider tests ---

func decodeBody(t *testing.T, r *http.Request) map[string]interface{} {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))
	return body
}

func toolHistory() []Message {
	return []Message{
		{Role: RoleUser, Content: "new lead"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_1", Name: "scraper", Input: `{"url":"https://acme.org"}`}}},
		{Role: RoleTool, ToolCallID: "call_1", Name: "scraper", Content: "Acme sells anvils"},
	}
}

func TestOpenAIClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		body := decodeBody(t, r)
		assert.Equal(t, "gpt-4o-mini", body["model"])
		assert.InDelta(t, 0.25, body["temperature"], 1e-9)

		msgs := body["messages"].([]interface{})
		require.Len(t, msgs, 4)
		assert.Equal(t, "system", msgs[0].(map[string]interface{})["role"])
		assistant := msgs[2].(map[string]interface{})
		calls := assistant["tool_calls"].([]interface{})
		require.Len(t, calls, 1)
		tool := msgs[3].(map[string]interface{})
		assert.Equal(t, "call_1", tool["tool_call_id"])

		tools := body["tools"].([]interface{})
		require.Len(t, tools, 1)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"model": "gpt-4o-mini",
			"choices": [{
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{"id": "call_2", "type": "function",
						"function": {"name": "summarizer", "arguments": "{\"content\":\"Acme\"}"}}]
				}
			}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 7}
		}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "sk-test", "gpt-4o-mini")
	resp, err := c.Complete(context.Background(), CompletionRequest{
		System:      "be brief",
		Messages:    toolHistory(),
		Tools:       []ToolDefinition{{Name: "summarizer", InputSchema: `{"type":"object"}`}},
		Temperature: Temperature(0.25),
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_2", resp.ToolCalls[0].ID)
	assert.Equal(t, "summarizer", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"content":"Acme"}`, resp.ToolCalls[0].Input)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 7, resp.Usage.OutputTokens)
	assert.Equal(t, "tool_calls", resp.StopReason)
}

func TestOpenAIClientProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "sk-test", "gpt-4o-mini")
	_, err := c.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.Error(t, err)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 429, pe.Code)
	assert.Equal(t, "openai", pe.Provider)
}

func TestOllamaClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, false, body["stream"])
		opts := body["options"].(map[string]interface{})
		assert.InDelta(t, 0.5, opts["temperature"], 1e-9)
		assert.EqualValues(t, 256, opts["num_predict"])

		msgs := body["messages"].([]interface{})
		require.Len(t, msgs, 3)
		assistant := msgs[1].(map[string]interface{})
		call := assistant["tool_calls"].([]interface{})[0].(map[string]interface{})
		args := call["function"].(map[string]interface{})["arguments"].(map[string]interface{})
		assert.Equal(t, "https://acme.org", args["url"])

		_, _ = io.WriteString(w, `{
			"model": "llama3",
			"done": true,
			"done_reason": "stop",
			"message": {"role": "assistant", "content": "",
				"tool_calls": [{"function": {"name": "email-drafter",
					"arguments": {"emailAddress": "jane@acme.org", "companyDescription": "anvils"}}}]},
			"prompt_eval_count": 30,
			"eval_count": 9
		}`)
	}))
	defer srv.Close()

	c := NewOllamaAPIClient(srv.URL+"/", "llama3")
	resp, err := c.Complete(context.Background(), CompletionRequest{
		Messages:    toolHistory(),
		MaxTokens:   256,
		Temperature: Temperature(0.5),
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.NotEmpty(t, resp.ToolCalls[0].ID)
	assert.Equal(t, "email-drafter", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"emailAddress":"jane@acme.org","companyDescription":"anvils"}`, resp.ToolCalls[0].Input)
	assert.Equal(t, 30, resp.Usage.InputTokens)
}

func TestClaudeClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("anthropic-version"))

		body := decodeBody(t, r)
		assert.Equal(t, "sys", body["system"])
		msgs := body["messages"].([]interface{})
		require.Len(t, msgs, 3)
		result := msgs[2].(map[string]interface{})
		assert.Equal(t, "user", result["role"])
		block := result["content"].([]interface{})[0].(map[string]interface{})
		assert.Equal(t, "tool_result", block["type"])
		assert.Equal(t, "call_1", block["tool_use_id"])

		_, _ = io.WriteString(w, `{
			"model": "claude-test",
			"stop_reason": "end_turn",
			"content": [
				{"type": "text", "text": "Hi Jane, "},
				{"type": "text", "text": "let's talk fruit."}
			],
			"usage": {"input_tokens": 40, "output_tokens": 11}
		}`)
	}))
	defer srv.Close()

	c := NewClaudeAPIClient(srv.URL, "key", "claude-test")
	resp, err := c.Complete(context.Background(), CompletionRequest{System: "sys", Messages: toolHistory()})
	require.NoError(t, err)
	assert.Equal(t, "Hi Jane, let's talk fruit.", resp.Content)
	assert.Empty(t, resp.ToolCalls)
	assert.Equal(t, 11, resp.Usage.OutputTokens)
}

func TestClaudeMergesConsecutiveToolResults(t *testing.T) {
	c := NewClaudeAPIClient("", "k", "m")
	msgs := c.messagesToClaude([]Message{
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "a", Name: "x"}, {ID: "b", Name: "y"}}},
		{Role: RoleTool, ToolCallID: "a", Content: "1"},
		{Role: RoleTool, ToolCallID: "b", Content: "2"},
	})
	require.Len(t, msgs, 2)
	blocks := msgs[1]["content"].([]map[string]interface{})
	assert.Len(t, blocks, 2)
}

func TestProviderErrorFormat(t *testing.T) {
	assert.Equal(t, "openai: 500 down", (&ProviderError{Provider: "openai", Code: 500, Message: "down"}).Error())
	assert.Equal(t, "ollama: refused", (&ProviderError{Provider: "ollama", Message: "refused"}).Error())
}

func TestParseJSONSchema(t *testing.T) {
	assert.Equal(t, map[string]interface{}{"type": "object"}, parseJSONSchema(""))
	assert.Equal(t, map[string]interface{}{"type": "object"}, parseJSONSchema("{not json"))
	s := parseJSONSchema(`{"type":"object","required":["url"]}`)
	assert.Equal(t, []interface{}{"url"}, s["required"])
}
